// Package scripts holds the page scripts and stylesheet installed into every content surface.
package scripts

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/browserx/schema"
)

//go:embed assets/*.js assets/*.css
var embedded embed.FS

// Script is one page script body. Bodies run inside an install wrapper that binds
// `ns` to the page namespace and guards against double installation.
type Script struct {
	Name string
	// SameDocument scripts also rescan after in-page navigation.
	SameDocument bool
	Body         string
}

// Set is the full injection payload, read from the binary once.
type Set struct {
	Scripts []Script
	// Theme is the stylesheet with the default palette.
	Theme string
}

// Names of the embedded scripts in install order.
const (
	Selection         = "selection"
	Codemate          = "codemate"
	LinkXRay          = "linkxray"
	Autocomplete      = "autocomplete"
	SmartCompose      = "smartcompose"
	TranslatorHotkeys = "translator-hotkeys"
)

var manifest = []struct {
	name         string
	sameDocument bool
}{
	{Selection, true},
	{Codemate, true},
	{LinkXRay, true},
	{Autocomplete, false},
	{SmartCompose, false},
	{TranslatorHotkeys, false},
}

var (
	loadOnce sync.Once
	loaded   Set
	loadErr  error
)

// Load returns the embedded script set. The files are read on first use only.
func Load() (Set, error) {
	loadOnce.Do(func() {
		loaded, loadErr = read()
	})
	if loadErr != nil {
		return Set{}, loadErr
	}
	out := Set{Theme: loaded.Theme, Scripts: make([]Script, len(loaded.Scripts))}
	copy(out.Scripts, loaded.Scripts)
	return out, nil
}

// MustLoad is Load for callers that treat a broken binary as fatal.
func MustLoad() Set {
	set, err := Load()
	if err != nil {
		panic(err)
	}
	return set
}

func read() (Set, error) {
	set := Set{Scripts: make([]Script, 0, len(manifest))}
	for _, entry := range manifest {
		data, err := embedded.ReadFile("assets/" + entry.name + ".js")
		if err != nil {
			return Set{}, fmt.Errorf("read script %s: %w", entry.name, err)
		}
		set.Scripts = append(set.Scripts, Script{
			Name:         entry.name,
			SameDocument: entry.sameDocument,
			Body:         string(data),
		})
	}
	css, err := embedded.ReadFile("assets/theme.css")
	if err != nil {
		return Set{}, fmt.Errorf("read theme: %w", err)
	}
	set.Theme = string(css)
	return set, nil
}

// ThemeCSS renders the stylesheet with the user's palette.
func (s Set) ThemeCSS(theme schema.ThemeSettings) string {
	css := s.Theme
	if theme.Background != "" {
		css = strings.ReplaceAll(css, schema.DefaultThemeBackground, theme.Background)
	}
	if theme.Accent != "" {
		css = strings.ReplaceAll(css, schema.DefaultThemeAccent, theme.Accent)
	}
	if theme.Mode == schema.ThemeLight {
		css += "\n:root { color-scheme: light; }\n"
	} else {
		css += "\n:root { color-scheme: dark; }\n"
	}
	return css
}
