package schema

import "testing"

func TestNormalizeModelID(t *testing.T) {
	cases := []struct {
		name  string
		model string
		valid bool
	}{
		{"simple", "llama-3.3-70b-versatile", true},
		{"with-slash", "meta-llama/llama-4", true},
		{"padded", "  llama3-8b-8192 ", true},
		{"empty", "", false},
		{"space", "llama 3", false},
		{"symbol", "llama@3", false},
	}

	for _, tc := range cases {
		_, err := NormalizeModelID(tc.model)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	code, err := NormalizeLanguage(" UK ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if code != "uk" {
		t.Fatalf("expected uk, got %q", code)
	}
	if LanguageName(code) != "Ukrainian" {
		t.Fatalf("unexpected name %q", LanguageName(code))
	}
	if _, err := NormalizeLanguage("klingon"); err != ErrInvalidLanguage {
		t.Fatalf("expected ErrInvalidLanguage, got %v", err)
	}
}

func TestLayoutMetrics(t *testing.T) {
	layout := ShellLayout{SidebarOpen: true, MenuOpen: true, SettingsOpen: true}
	m := layout.Metrics()
	if m.SidebarWidth != SidebarWidth || m.OverlayOffsetLeft != MenuOverlayWidth || m.OverlayInsetRight != SettingsPanelWidth {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if m.ChromeHeight != ChromeHeight {
		t.Fatalf("expected chrome height %d, got %d", ChromeHeight, m.ChromeHeight)
	}
	if _, err := layout.With("dock", true); err != ErrInvalidPanel {
		t.Fatalf("expected ErrInvalidPanel, got %v", err)
	}
}

func TestThemeFromSettingsRejectsBadColors(t *testing.T) {
	theme := ThemeFromSettings(Settings{SettingTheme: map[string]any{"mode": "light", "bg": "red;}", "accent": "#abc"}})
	if theme.Mode != ThemeLight {
		t.Fatalf("expected light mode, got %q", theme.Mode)
	}
	if theme.Background != DefaultThemeBackground {
		t.Fatalf("expected default background, got %q", theme.Background)
	}
	if theme.Accent != "#abc" {
		t.Fatalf("expected accent #abc, got %q", theme.Accent)
	}
}
