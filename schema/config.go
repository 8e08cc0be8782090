package schema

import (
	"errors"
	"strings"
	"time"
)

// ModelSet names the backend models used per feature.
type ModelSet struct {
	// Fast answers short explanations.
	Fast ModelID
	// Large handles code, translation, link previews, and tab grouping.
	Large ModelID
	// Complete serves autocomplete.
	Complete ModelID
}

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	// StateDir enables persistence of history, bookmarks, session, settings, and notes when set.
	StateDir     string
	NewTabURL    string
	SearchEngine SearchEngine
	Window       Size
	Models       ModelSet

	AutocompleteQuietPeriod time.Duration
	AutocompleteMinChars    int
	ComposeMinChars         int
	LinkScanTimeout         time.Duration
	BackendTimeout          time.Duration
	ScriptTimeout           time.Duration

	TranslationLanguage  LanguageCode
	ContextMenuAssistant bool
	DisableHistory       bool
}

// Defaults for the service configuration.
const (
	DefaultNewTabURL               = "about:blank"
	DefaultAutocompleteQuietPeriod = 600 * time.Millisecond
	DefaultAutocompleteMinChars    = 3
	DefaultComposeMinChars         = 5
	DefaultLinkScanTimeout         = 5 * time.Second
	MinLinkScanTimeout             = 3 * time.Second
	DefaultBackendTimeout          = 30 * time.Second
	DefaultScriptTimeout           = 5 * time.Second
	DefaultTranslationLanguage     = LanguageCode("uk")
	DefaultWindowWidth             = 1280
	DefaultWindowHeight            = 800
)

// DefaultModels mirrors the Groq models the shell was tuned against.
var DefaultModels = ModelSet{
	Fast:     "llama-3.1-8b-instant",
	Large:    "llama-3.3-70b-versatile",
	Complete: "llama3-8b-8192",
}

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	cfg.StateDir = strings.TrimSpace(cfg.StateDir)
	if strings.TrimSpace(cfg.NewTabURL) == "" {
		cfg.NewTabURL = DefaultNewTabURL
	}
	cfg.SearchEngine = NormalizeSearchEngine(string(cfg.SearchEngine))
	if cfg.Window.Width == 0 && cfg.Window.Height == 0 {
		cfg.Window = Size{Width: DefaultWindowWidth, Height: DefaultWindowHeight}
	}
	if cfg.Window.Width < 0 || cfg.Window.Height < 0 {
		return ServiceConfig{}, ErrInvalidSize
	}
	var err error
	if cfg.Models.Fast, err = modelOrDefault(cfg.Models.Fast, DefaultModels.Fast); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.Models.Large, err = modelOrDefault(cfg.Models.Large, DefaultModels.Large); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.Models.Complete, err = modelOrDefault(cfg.Models.Complete, DefaultModels.Complete); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.AutocompleteQuietPeriod <= 0 {
		cfg.AutocompleteQuietPeriod = DefaultAutocompleteQuietPeriod
	}
	if cfg.AutocompleteMinChars <= 0 {
		cfg.AutocompleteMinChars = DefaultAutocompleteMinChars
	}
	if cfg.ComposeMinChars <= 0 {
		cfg.ComposeMinChars = DefaultComposeMinChars
	}
	switch {
	case cfg.LinkScanTimeout <= 0:
		cfg.LinkScanTimeout = DefaultLinkScanTimeout
	case cfg.LinkScanTimeout < MinLinkScanTimeout:
		cfg.LinkScanTimeout = MinLinkScanTimeout
	case cfg.LinkScanTimeout > DefaultLinkScanTimeout:
		cfg.LinkScanTimeout = DefaultLinkScanTimeout
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = DefaultBackendTimeout
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = DefaultScriptTimeout
	}
	if cfg.TranslationLanguage == "" {
		cfg.TranslationLanguage = DefaultTranslationLanguage
	}
	lang, err := NormalizeLanguage(string(cfg.TranslationLanguage))
	if err != nil {
		return ServiceConfig{}, errors.New("translation language is not supported")
	}
	cfg.TranslationLanguage = lang
	return cfg, nil
}

func modelOrDefault(value, fallback ModelID) (ModelID, error) {
	if strings.TrimSpace(string(value)) == "" {
		return fallback, nil
	}
	return NormalizeModelID(string(value))
}
