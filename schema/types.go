package schema

import "strconv"

// TabID identifies a tab. Ids come from a monotonic counter and are never reused.
type TabID int64

// String renders the id for logs and transports.
func (id TabID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseTabID parses a decimal tab id.
func ParseTabID(value string) (TabID, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidTab
	}
	return TabID(n), nil
}

// Generation counts page lifetimes of a tab. It advances on every full navigation.
type Generation uint64

// RequestID correlates a page request with its backend response.
type RequestID string

// ModelID identifies an LLM model.
type ModelID string

// LanguageCode is a short translation target code such as "uk" or "en".
type LanguageCode string
