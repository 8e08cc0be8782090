package schema

// Tab lifecycle.

// CreateTabRequest describes a request to create a tab.
type CreateTabRequest struct {
	URL      string `json:"url,omitempty"`
	Activate bool   `json:"activate,omitempty"`
}

// CreateTabResponse reports the created tab.
type CreateTabResponse struct {
	Tab       TabSnapshot `json:"tab"`
	ActiveTab TabID       `json:"active_tab"`
}

// CloseTabRequest describes a request to close a tab.
type CloseTabRequest struct {
	TabID TabID `json:"tab_id"`
}

// CloseTabResponse reports the closed tab and the resulting active tab.
type CloseTabResponse struct {
	Tab         TabSnapshot  `json:"tab"`
	ActiveTab   TabID        `json:"active_tab"`
	Replacement *TabSnapshot `json:"replacement,omitempty"`
}

// SwitchTabRequest describes a request to activate a tab.
type SwitchTabRequest struct {
	TabID TabID `json:"tab_id"`
}

// SwitchTabResponse reports the activated tab and its applied bounds.
type SwitchTabResponse struct {
	Tab    TabSnapshot `json:"tab"`
	Bounds Rect        `json:"bounds"`
}

// ListTabsRequest describes a request to list tabs.
type ListTabsRequest struct{}

// ListTabsResponse reports tabs in display order plus shell state.
type ListTabsResponse struct {
	Tabs      []TabSnapshot `json:"tabs"`
	ActiveTab TabID         `json:"active_tab"`
	Layout    ShellLayout   `json:"layout"`
	Window    Size          `json:"window"`
	Bounds    Rect          `json:"bounds"`
}

// Navigation.

// NavigateRequest carries raw address bar input for a tab.
type NavigateRequest struct {
	TabID TabID  `json:"tab_id"`
	Input string `json:"input"`
}

// NavigateResponse reports the resolved URL.
type NavigateResponse struct {
	Tab TabSnapshot `json:"tab"`
	URL string      `json:"url"`
}

// HistoryAction selects a history move.
type HistoryAction string

const (
	// HistoryBack moves back one entry.
	HistoryBack HistoryAction = "back"
	// HistoryForward moves forward one entry.
	HistoryForward HistoryAction = "forward"
	// HistoryReload reloads the current entry.
	HistoryReload HistoryAction = "reload"
)

// HistoryMoveRequest describes a back, forward, or reload request.
type HistoryMoveRequest struct {
	TabID  TabID         `json:"tab_id"`
	Action HistoryAction `json:"action"`
}

// HistoryMoveResponse reports the tab after the move was issued.
type HistoryMoveResponse struct {
	Tab TabSnapshot `json:"tab"`
}

// Layout.

// SetPanelRequest reports a chrome panel opening or closing.
type SetPanelRequest struct {
	Panel Panel `json:"panel"`
	Open  bool  `json:"open"`
}

// ResizeWindowRequest reports a new window content size.
type ResizeWindowRequest struct {
	Size Size `json:"size"`
}

// LayoutResponse reports recomputed chrome geometry.
type LayoutResponse struct {
	Layout    ShellLayout   `json:"layout"`
	Metrics   LayoutMetrics `json:"metrics"`
	Window    Size          `json:"window"`
	Bounds    Rect          `json:"bounds"`
	ActiveTab TabID         `json:"active_tab"`
}

// AI features driven by the shell.

// OrganizeTabsRequest asks the backend to group open tabs.
type OrganizeTabsRequest struct{}

// TabGroup is a named cluster of tabs.
type TabGroup struct {
	Name   string  `json:"name"`
	TabIDs []TabID `json:"tabIds"`
}

// OrganizeTabsResponse reports the suggested groups.
type OrganizeTabsResponse struct {
	Groups []TabGroup `json:"groups"`
}

// SmartSearchRequest asks the backend to locate the answer to Query in a tab's
// text. A zero TabID targets the active tab.
type SmartSearchRequest struct {
	TabID TabID  `json:"tab_id,omitempty"`
	Query string `json:"query"`
}

// Reasons a smart search found nothing.
const (
	SmartSearchEmptyPage = "empty-page"
	SmartSearchNoMatch   = "no-match"
)

// SmartSearchResponse reports the passage the backend picked. Highlighted is
// false when the tab navigated away before the passage could be selected.
type SmartSearchResponse struct {
	TabID       TabID  `json:"tab_id"`
	Found       bool   `json:"found"`
	Quote       string `json:"quote,omitempty"`
	Highlighted bool   `json:"highlighted"`
	Reason      string `json:"reason,omitempty"`
}

// AskAssistantRequest is a free-form prompt for the shell assistant. With
// IncludeNotes the saved notes are appended as context.
type AskAssistantRequest struct {
	Prompt       string `json:"prompt"`
	IncludeNotes bool   `json:"include_notes,omitempty"`
}

// AskAssistantResponse carries the assistant's answer.
type AskAssistantResponse struct {
	Answer string `json:"answer"`
	Notes  int    `json:"notes,omitempty"`
}

// SetTranslationLanguageRequest changes the translation target for every tab.
type SetTranslationLanguageRequest struct {
	Language LanguageCode `json:"language"`
}

// SetTranslationLanguageResponse reports how many tabs received the change.
type SetTranslationLanguageResponse struct {
	Language LanguageCode `json:"language"`
	Tabs     int          `json:"tabs"`
}

// Session.

// SaveSessionRequest asks the service to persist open tabs.
type SaveSessionRequest struct{}

// SaveSessionResponse reports the persisted session.
type SaveSessionResponse struct {
	Session Session `json:"session"`
}

// RestoreSessionRequest asks the service to reopen persisted tabs.
type RestoreSessionRequest struct{}

// RestoreSessionResponse reports the restored tabs.
type RestoreSessionResponse struct {
	Tabs []TabSnapshot `json:"tabs"`
}
