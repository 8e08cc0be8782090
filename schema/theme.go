package schema

import "strings"

// ThemeMode selects the page chrome palette.
type ThemeMode string

const (
	// ThemeDark is the default palette.
	ThemeDark ThemeMode = "dark"
	// ThemeLight is the light palette.
	ThemeLight ThemeMode = "light"
)

// Default theme values.
const (
	DefaultThemeMode       = ThemeDark
	DefaultThemeBackground = "#0f0f13"
	DefaultThemeAccent     = "#8b5cf6"
)

// ThemeSettings controls the stylesheet injected into new tab pages and widgets.
type ThemeSettings struct {
	Mode       ThemeMode `json:"mode"`
	Background string    `json:"bg"`
	Accent     string    `json:"accent"`
}

// NormalizeThemeMode returns a canonical theme mode if supported.
func NormalizeThemeMode(name string) (ThemeMode, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dark", "":
		return ThemeDark, true
	case "light":
		return ThemeLight, true
	default:
		return "", false
	}
}

// ThemeFromSettings reads the theme object from the settings map, falling back to defaults.
func ThemeFromSettings(settings Settings) ThemeSettings {
	theme := ThemeSettings{Mode: DefaultThemeMode, Background: DefaultThemeBackground, Accent: DefaultThemeAccent}
	raw, ok := settings[SettingTheme].(map[string]any)
	if !ok {
		return theme
	}
	if mode, ok := raw["mode"].(string); ok {
		if normalized, ok := NormalizeThemeMode(mode); ok {
			theme.Mode = normalized
		}
	}
	if bg, ok := raw["bg"].(string); ok && isCSSColor(bg) {
		theme.Background = bg
	}
	if accent, ok := raw["accent"].(string); ok && isCSSColor(accent) {
		theme.Accent = accent
	}
	return theme
}

func isCSSColor(value string) bool {
	if len(value) != 4 && len(value) != 7 {
		return false
	}
	if value[0] != '#' {
		return false
	}
	for _, r := range value[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
