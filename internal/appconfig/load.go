package appconfig

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/browserx/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BROWSERX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("browser.remote_url", cfg.Browser.RemoteURL)
	v.SetDefault("browser.exec_path", cfg.Browser.ExecPath)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.proxy", cfg.Browser.Proxy)
	v.SetDefault("browser.flags", cfg.Browser.Flags)
	v.SetDefault("browser.window_width", cfg.Browser.WindowWidth)
	v.SetDefault("browser.window_height", cfg.Browser.WindowHeight)
	v.SetDefault("browser.new_tab_url", cfg.Browser.NewTabURL)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.models.fast", cfg.LLM.Models.Fast)
	v.SetDefault("llm.models.large", cfg.LLM.Models.Large)
	v.SetDefault("llm.models.complete", cfg.LLM.Models.Complete)
	v.SetDefault("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.SetDefault("llm.rate_limit", cfg.LLM.RateLimit)
	v.SetDefault("llm.max_retries", cfg.LLM.MaxRetries)
	v.SetDefault("bridge.autocomplete_quiet_period_ms", cfg.Bridge.AutocompleteQuietPeriodMS)
	v.SetDefault("bridge.autocomplete_min_chars", cfg.Bridge.AutocompleteMinChars)
	v.SetDefault("bridge.compose_min_chars", cfg.Bridge.ComposeMinChars)
	v.SetDefault("bridge.link_scan_timeout_seconds", cfg.Bridge.LinkScanTimeoutSeconds)
	v.SetDefault("bridge.script_timeout_seconds", cfg.Bridge.ScriptTimeoutSeconds)
	v.SetDefault("bridge.translation_language", cfg.Bridge.TranslationLanguage)
	v.SetDefault("bridge.context_menu_assistant", cfg.Bridge.ContextMenuAssistant)
	v.SetDefault("bridge.disable_history", cfg.Bridge.DisableHistory)
	v.SetDefault("bridge.restore_session", cfg.Bridge.RestoreSession)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.token", cfg.HTTP.Token)
	v.SetDefault("http.allowed_origins", cfg.HTTP.AllowedOrigins)
	v.SetDefault("http.stream_history", cfg.HTTP.StreamHistory)
	v.SetDefault("search.engine", cfg.Search.Engine)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return err
	}
	if base := strings.TrimSpace(cfg.LLM.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("llm.base_url must be an http(s) URL")
		}
	}
	if cfg.LLM.RateLimit < 0 {
		return fmt.Errorf("llm.rate_limit must not be negative")
	}
	if cfg.Browser.WindowWidth < 0 || cfg.Browser.WindowHeight < 0 {
		return fmt.Errorf("browser window size must not be negative")
	}
	if remote := strings.TrimSpace(cfg.Browser.RemoteURL); remote != "" {
		parsed, err := url.Parse(remote)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("browser.remote_url must include scheme and host (e.g. ws://127.0.0.1:9222)")
		}
	}
	if proxy := strings.TrimSpace(cfg.Browser.Proxy); proxy != "" {
		if err := validateProxy(proxy); err != nil {
			return err
		}
	}
	switch schema.SearchEngine(strings.ToLower(strings.TrimSpace(cfg.Search.Engine))) {
	case "", schema.SearchGoogle, schema.SearchDuckDuckGo, schema.SearchBing:
	default:
		return fmt.Errorf("unsupported search.engine %q", cfg.Search.Engine)
	}
	if lang := strings.TrimSpace(cfg.Bridge.TranslationLanguage); lang != "" {
		if _, err := schema.NormalizeLanguage(lang); err != nil {
			return fmt.Errorf("bridge.translation_language: %w", err)
		}
	}
	return nil
}

// validateProxy accepts the proxy schemes Chrome understands.
func validateProxy(proxy string) error {
	parsed, err := url.Parse(proxy)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("browser.proxy must include scheme and host (e.g. socks5://127.0.0.1:9050)")
	}
	switch parsed.Scheme {
	case "http", "https", "socks4", "socks5":
		return nil
	default:
		return fmt.Errorf("browser.proxy scheme %q is not supported", parsed.Scheme)
	}
}

func validateHTTPConfig(cfg HTTPConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Browser.ExecPath = expandEnv(cfg.Browser.ExecPath)
	cfg.Browser.UserDataDir = expandEnv(cfg.Browser.UserDataDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	// A fresh config always carries a token so pages in tabs cannot drive the API.
	if cfg.HTTP.Token == "" {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		cfg.HTTP.Token = token
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func newToken() (string, error) {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate http token: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = "********"
	}
	if c.HTTP.Token != "" {
		c.HTTP.Token = "********"
	}
	return c
}
