package schema

// Fixed shell chrome dimensions in device-independent pixels.
const (
	ChromeHeight       = 100
	SidebarWidth       = 320
	MenuOverlayWidth   = 330
	SettingsPanelWidth = 400
)

// Size is a window content size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is a surface bounding rectangle in window coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Panel names a toggleable piece of shell chrome.
type Panel string

const (
	// PanelSidebar is the AI sidebar docked on the right.
	PanelSidebar Panel = "sidebar"
	// PanelMenu is the menu overlay on the left.
	PanelMenu Panel = "menu"
	// PanelSettings is the settings panel on the right.
	PanelSettings Panel = "settings"
)

// ShellLayout is the toggle state of the shell chrome. It is never persisted.
type ShellLayout struct {
	SidebarOpen  bool `json:"sidebar_open"`
	MenuOpen     bool `json:"menu_open"`
	SettingsOpen bool `json:"settings_open"`
}

// LayoutMetrics is the geometry derived from a ShellLayout.
type LayoutMetrics struct {
	SidebarWidth      int `json:"sidebar_width"`
	OverlayOffsetLeft int `json:"overlay_offset_left"`
	OverlayInsetRight int `json:"overlay_inset_right"`
	ChromeHeight      int `json:"chrome_height"`
}

// Metrics derives the chrome geometry for the layout.
func (l ShellLayout) Metrics() LayoutMetrics {
	m := LayoutMetrics{ChromeHeight: ChromeHeight}
	if l.SidebarOpen {
		m.SidebarWidth = SidebarWidth
	}
	if l.MenuOpen {
		m.OverlayOffsetLeft = MenuOverlayWidth
	}
	if l.SettingsOpen {
		m.OverlayInsetRight = SettingsPanelWidth
	}
	return m
}

// With returns a copy of the layout with the panel set open or closed.
func (l ShellLayout) With(panel Panel, open bool) (ShellLayout, error) {
	switch panel {
	case PanelSidebar:
		l.SidebarOpen = open
	case PanelMenu:
		l.MenuOpen = open
	case PanelSettings:
		l.SettingsOpen = open
	default:
		return l, ErrInvalidPanel
	}
	return l, nil
}
