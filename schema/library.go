package schema

import "time"

const (
	// HistoryLimit caps stored history entries.
	HistoryLimit = 1000
	// NotesLimit caps stored notes.
	NotesLimit = 500
	// DefaultBookmarkFolder is used when a bookmark names no folder.
	DefaultBookmarkFolder = "General"
)

// HistoryEntry is one visited page, newest first in the store.
type HistoryEntry struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Favicon   string    `json:"favicon,omitempty"`
	VisitedAt time.Time `json:"visitedAt"`
}

// Bookmark is a saved page.
type Bookmark struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Favicon   string    `json:"favicon,omitempty"`
	Folder    string    `json:"folder"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionTab is a persisted tab.
type SessionTab struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Session is the persisted set of open tabs.
type Session struct {
	Tabs        []SessionTab `json:"tabs"`
	ActiveIndex int          `json:"activeIndex"`
	SavedAt     time.Time    `json:"savedAt"`
}

// Note is a short text snippet saved from a page.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Settings is an open key/value map owned by the shell.
type Settings map[string]any

// Setting keys read by the core.
const (
	SettingHomepage            = "homepage"
	SettingSearchEngine        = "searchEngine"
	SettingRestoreSession      = "restoreSession"
	SettingTranslationLanguage = "translationLanguage"
	SettingTheme               = "theme"
)

// DefaultSettings returns the settings used before the shell stores any.
func DefaultSettings() Settings {
	return Settings{
		SettingTheme: map[string]any{
			"mode":   string(DefaultThemeMode),
			"bg":     DefaultThemeBackground,
			"accent": DefaultThemeAccent,
		},
		SettingHomepage:       "newtab",
		SettingSearchEngine:   string(SearchGoogle),
		SettingRestoreSession: false,
	}
}

// Bool reads a boolean setting.
func (s Settings) Bool(key string) bool {
	v, ok := s[key].(bool)
	return ok && v
}

// String reads a string setting.
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}
