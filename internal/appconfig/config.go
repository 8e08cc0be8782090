package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/browserx/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Browser       BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LLM           LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Bridge        BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	Search        SearchConfig  `mapstructure:"search" yaml:"search"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// APIKeyEnv names the environment variable that overrides llm.api_key.
const APIKeyEnv = "BROWSERX_LLM_API_KEY"

// BrowserConfig controls the Chrome instance backing the tabs.
type BrowserConfig struct {
	// RemoteURL attaches to a running browser instead of launching one.
	RemoteURL    string   `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath     string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir  string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	NoSandbox    bool     `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	Proxy        string   `mapstructure:"proxy" yaml:"proxy"`
	Flags        []string `mapstructure:"flags" yaml:"flags"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	NewTabURL    string   `mapstructure:"new_tab_url" yaml:"new_tab_url"`
}

// LLMConfig configures the chat completion backend.
type LLMConfig struct {
	BaseURL        string       `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string       `mapstructure:"api_key" yaml:"api_key"`
	Models         ModelsConfig `mapstructure:"models" yaml:"models"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// ModelsConfig names the model used per feature class.
type ModelsConfig struct {
	Fast     string `mapstructure:"fast" yaml:"fast"`
	Large    string `mapstructure:"large" yaml:"large"`
	Complete string `mapstructure:"complete" yaml:"complete"`
}

// BridgeConfig tunes the page/backend request bridge.
type BridgeConfig struct {
	AutocompleteQuietPeriodMS int    `mapstructure:"autocomplete_quiet_period_ms" yaml:"autocomplete_quiet_period_ms"`
	AutocompleteMinChars      int    `mapstructure:"autocomplete_min_chars" yaml:"autocomplete_min_chars"`
	ComposeMinChars           int    `mapstructure:"compose_min_chars" yaml:"compose_min_chars"`
	LinkScanTimeoutSeconds    int    `mapstructure:"link_scan_timeout_seconds" yaml:"link_scan_timeout_seconds"`
	ScriptTimeoutSeconds      int    `mapstructure:"script_timeout_seconds" yaml:"script_timeout_seconds"`
	TranslationLanguage       string `mapstructure:"translation_language" yaml:"translation_language"`
	ContextMenuAssistant      bool   `mapstructure:"context_menu_assistant" yaml:"context_menu_assistant"`
	DisableHistory            bool   `mapstructure:"disable_history" yaml:"disable_history"`
	RestoreSession            bool   `mapstructure:"restore_session" yaml:"restore_session"`
}

// HTTPConfig configures the shell IPC server.
type HTTPConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	BasePath       string   `mapstructure:"base_path" yaml:"base_path"`
	Token          string   `mapstructure:"token" yaml:"token"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	StreamHistory  int      `mapstructure:"stream_history" yaml:"stream_history"`
}

// SearchConfig selects the engine for non-URL address bar input.
type SearchConfig struct {
	Engine string `mapstructure:"engine" yaml:"engine"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".browserx", "state"),
		Browser: BrowserConfig{
			UserDataDir:  filepath.Join(home, ".browserx", "profile"),
			Headless:     false,
			Flags:        []string{},
			WindowWidth:  schema.DefaultWindowWidth,
			WindowHeight: schema.DefaultWindowHeight,
			NewTabURL:    schema.DefaultNewTabURL,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Models: ModelsConfig{
				Fast:     string(schema.DefaultModels.Fast),
				Large:    string(schema.DefaultModels.Large),
				Complete: string(schema.DefaultModels.Complete),
			},
			TimeoutSeconds: int(schema.DefaultBackendTimeout / time.Second),
			RateLimit:      2,
			MaxRetries:     2,
		},
		Bridge: BridgeConfig{
			AutocompleteQuietPeriodMS: int(schema.DefaultAutocompleteQuietPeriod / time.Millisecond),
			AutocompleteMinChars:      schema.DefaultAutocompleteMinChars,
			ComposeMinChars:           schema.DefaultComposeMinChars,
			LinkScanTimeoutSeconds:    int(schema.DefaultLinkScanTimeout / time.Second),
			ScriptTimeoutSeconds:      int(schema.DefaultScriptTimeout / time.Second),
			TranslationLanguage:       string(schema.DefaultTranslationLanguage),
			ContextMenuAssistant:      true,
			RestoreSession:            true,
		},
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:27490",
			AllowedOrigins: []string{},
			StreamHistory:  512,
		},
		Search: SearchConfig{
			Engine: string(schema.SearchGoogle),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".browserx", "config.yaml"), nil
}

// ServiceConfig maps the file settings onto the core service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		StateDir:     c.StateDir,
		NewTabURL:    c.Browser.NewTabURL,
		SearchEngine: schema.SearchEngine(c.Search.Engine),
		Window:       schema.Size{Width: c.Browser.WindowWidth, Height: c.Browser.WindowHeight},
		Models: schema.ModelSet{
			Fast:     schema.ModelID(c.LLM.Models.Fast),
			Large:    schema.ModelID(c.LLM.Models.Large),
			Complete: schema.ModelID(c.LLM.Models.Complete),
		},
		AutocompleteQuietPeriod: time.Duration(c.Bridge.AutocompleteQuietPeriodMS) * time.Millisecond,
		AutocompleteMinChars:    c.Bridge.AutocompleteMinChars,
		ComposeMinChars:         c.Bridge.ComposeMinChars,
		LinkScanTimeout:         time.Duration(c.Bridge.LinkScanTimeoutSeconds) * time.Second,
		BackendTimeout:          time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		ScriptTimeout:           time.Duration(c.Bridge.ScriptTimeoutSeconds) * time.Second,
		TranslationLanguage:     schema.LanguageCode(c.Bridge.TranslationLanguage),
		ContextMenuAssistant:    c.Bridge.ContextMenuAssistant,
		DisableHistory:          c.Bridge.DisableHistory,
	}
}
