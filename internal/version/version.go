// Package version reports build metadata for the browserx binary.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/browserx"

// buildVersion is set via -ldflags "-X pkt.systems/browserx/internal/version.buildVersion=...".
var buildVersion = ""

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info is the build metadata printed by the version command.
type Info struct {
	Module    string
	Version   string
	Revision  string
	BuildTime time.Time
	Dirty     bool
	GoVersion string
	// Deps maps the browser-facing modules to their linked versions.
	Deps map[string]string
}

// reportedDeps are the modules whose versions matter when debugging a browser session.
var reportedDeps = []string{
	"github.com/chromedp/chromedp",
	"github.com/chromedp/cdproto",
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

// Module returns the module path from build info when available.
func Module() string {
	return Read().Module
}

// Read collects build metadata, falling back to defaults without build info.
func Read() Info {
	out := Info{Module: defaultModule, Version: "v0.0.0-unknown", Deps: map[string]string{}}
	info, ok := readBuildInfo()
	if ok && info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		out.GoVersion = info.GoVersion
		applyVCS(&out, info.Settings)
		for _, dep := range info.Deps {
			for _, want := range reportedDeps {
				if dep.Path == want {
					out.Deps[want] = dep.Version
				}
			}
		}
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			out.Version = v
		} else if v := pseudoVersion(out); v != "" {
			out.Version = v
		}
	}
	if v := strings.TrimSpace(buildVersion); v != "" {
		out.Version = v
	}
	out.Version = strings.TrimSuffix(out.Version, "+dirty")
	return out
}

func applyVCS(out *Info, settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			out.Revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				out.BuildTime = parsed.UTC()
			}
		case "vcs.modified":
			out.Dirty = setting.Value == "true"
		}
	}
}

// pseudoVersion builds a Go-style pseudo version from VCS metadata.
func pseudoVersion(info Info) string {
	if info.Revision == "" || info.BuildTime.IsZero() {
		return ""
	}
	rev := info.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + info.BuildTime.Format("20060102150405") + "-" + rev
}
