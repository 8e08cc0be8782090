package schema

import (
	"strings"
	"unicode"
)

// NormalizeModelID validates and normalizes a model identifier.
// Allowed characters: A-Z, a-z, 0-9, '.', '_', '-', '/'.
func NormalizeModelID(model string) (ModelID, error) {
	trimmed := strings.TrimSpace(model)
	if trimmed == "" {
		return "", ErrInvalidModel
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' || r == '/' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", ErrInvalidModel
	}
	return ModelID(trimmed), nil
}

var languageNames = map[LanguageCode]string{
	"uk": "Ukrainian",
	"en": "English",
	"ru": "Russian",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"it": "Italian",
	"pl": "Polish",
	"ja": "Japanese",
	"zh": "Chinese",
}

// NormalizeLanguage validates a translation target code.
func NormalizeLanguage(value string) (LanguageCode, error) {
	code := LanguageCode(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := languageNames[code]; !ok {
		return "", ErrInvalidLanguage
	}
	return code, nil
}

// LanguageName returns the English name of a language code, or the code itself.
func LanguageName(code LanguageCode) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return string(code)
}

// SearchEngine names the engine used for non-URL address bar input.
type SearchEngine string

const (
	SearchGoogle     SearchEngine = "google"
	SearchDuckDuckGo SearchEngine = "duckduckgo"
	SearchBing       SearchEngine = "bing"
)

// NormalizeSearchEngine returns a canonical engine, defaulting to google.
func NormalizeSearchEngine(value string) SearchEngine {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "duckduckgo", "ddg":
		return SearchDuckDuckGo
	case "bing":
		return SearchBing
	default:
		return SearchGoogle
	}
}
