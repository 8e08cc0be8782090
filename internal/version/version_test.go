package version

import (
	"runtime/debug"
	"testing"
	"time"
)

func withBuildInfo(t *testing.T, info *debug.BuildInfo, ok bool) {
	t.Helper()
	old := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, ok }
	t.Cleanup(func() { readBuildInfo = old })
}

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3"
	t.Cleanup(func() { buildVersion = old })
	withBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Path: "pkt.systems/browserx", Version: "v0.9.0"}}, true)

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
}

func TestReadPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	withBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.25.2",
		Main:      debug.Module{Path: "pkt.systems/browserx", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "github.com/chromedp/chromedp", Version: "v0.14.2"},
			{Path: "github.com/spf13/cobra", Version: "v1.10.2"},
		},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}, true)

	info := Read()
	if info.Version != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected version %q", info.Version)
	}
	if !info.Dirty || info.GoVersion != "go1.25.2" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Deps["github.com/chromedp/chromedp"] != "v0.14.2" {
		t.Fatalf("expected chromedp version, got %+v", info.Deps)
	}
	if _, ok := info.Deps["github.com/spf13/cobra"]; ok {
		t.Fatalf("expected only browser modules in deps")
	}
}

func TestReadWithoutBuildInfo(t *testing.T) {
	withBuildInfo(t, nil, false)
	info := Read()
	if info.Module != defaultModule || info.Version != "v0.0.0-unknown" {
		t.Fatalf("unexpected fallback %+v", info)
	}
}
