package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetTabsOpen(3)
	m.SurfaceEvent("loaded")
	m.Injection("selection", "installed")
	m.Request("link-scan")
	m.Outcome("link-scan", "delivered")
	m.ObserveBackend("link-scan", time.Second)
	m.ParseError()
	m.IPCConnected(1)
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.SetTabsOpen(2)
	m.Outcome("autocomplete", "stale")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, "browserx_tabs_open 2") {
		t.Fatalf("expected tabs gauge in output")
	}
	if !strings.Contains(text, `browserx_bridge_outcomes_total{kind="autocomplete",outcome="stale"} 1`) {
		t.Fatalf("expected outcome counter in output")
	}
}
