package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/browserx"
	"pkt.systems/browserx/core"
	"pkt.systems/browserx/httpapi"
	"pkt.systems/browserx/internal/persist"
	"pkt.systems/browserx/schema"
)

// pageFactory hands out scripted in-memory pages.
type pageFactory struct {
	mu    sync.Mutex
	pages map[schema.TabID]*page
}

func (f *pageFactory) Create(_ context.Context, cfg core.SurfaceConfig) (core.Surface, error) {
	p := &page{id: cfg.TabID, events: make(chan core.SurfaceEvent, 256)}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages == nil {
		f.pages = make(map[schema.TabID]*page)
	}
	f.pages[cfg.TabID] = p
	return p, nil
}

func (f *pageFactory) page(id schema.TabID) *page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[id]
}

// page completes every load immediately and records messages posted into it.
type page struct {
	id     schema.TabID
	events chan core.SurfaceEvent

	mu     sync.Mutex
	closed bool
	url    string
	posted []schema.HostMessage
}

func (p *page) Load(_ context.Context, url string) error {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	p.emit(core.SurfaceEvent{Type: core.SurfaceNavigated, URL: url})
	p.emit(core.SurfaceEvent{Type: core.SurfaceTitleChanged, Title: "Title of " + url})
	p.emit(core.SurfaceEvent{Type: core.SurfaceLoaded, URL: url})
	return nil
}

func (p *page) GoBack(context.Context) error    { return nil }
func (p *page) GoForward(context.Context) error { return nil }
func (p *page) Reload(context.Context) error    { return nil }

func (p *page) ExecuteScript(_ context.Context, source string) (json.RawMessage, error) {
	const prefix, suffix = "window.postMessage(", ", '*');"
	start := strings.Index(source, prefix)
	if start < 0 {
		return json.RawMessage(`"installed"`), nil
	}
	rest := source[start+len(prefix):]
	end := strings.Index(rest, suffix)
	var msg schema.HostMessage
	if end < 0 || json.Unmarshal([]byte(rest[:end]), &msg) != nil {
		return json.RawMessage(`false`), nil
	}
	p.mu.Lock()
	p.posted = append(p.posted, msg)
	p.mu.Unlock()
	return json.RawMessage(`true`), nil
}

func (p *page) InsertCSS(context.Context, string, string) error { return nil }
func (p *page) SetBounds(context.Context, schema.Rect) error    { return nil }
func (p *page) Show(context.Context) error                      { return nil }
func (p *page) Events() <-chan core.SurfaceEvent                { return p.events }

func (p *page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

func (p *page) console(line string) {
	p.emit(core.SurfaceEvent{Type: core.SurfaceConsoleMessage, Text: line})
}

func (p *page) emit(ev core.SurfaceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.events <- ev
}

func (p *page) currentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *page) messages() []schema.HostMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schema.HostMessage(nil), p.posted...)
}

type shell struct {
	server  browserx.Server
	factory *pageFactory
	store   *persist.Store
	url     string
}

// startShell runs the composed server with scripted pages, a canned backend, and a
// real store under a temp dir.
func startShell(t *testing.T) *shell {
	t.Helper()
	dir := t.TempDir()
	store, err := persist.NewStore(dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	factory := &pageFactory{}
	backend := core.BackendFunc(func(_ context.Context, req schema.CompletionRequest) (string, error) {
		return "summary from " + string(req.Model), nil
	})
	fetcher := core.PageFetcherFunc(func(_ context.Context, url string) (schema.PagePreview, error) {
		return schema.PagePreview{URL: url, Title: "Linked", Text: "Linked page body"}, nil
	})
	server, err := browserx.New(browserx.ServerConfig{
		Service: schema.ServiceConfig{StateDir: dir},
		HTTP:    httpapi.Config{Addr: "127.0.0.1:0"},
	}, browserx.ServerDeps{
		ServiceDeps: core.ServiceDeps{
			Surfaces: factory,
			Backend:  backend,
			Fetcher:  fetcher,
			Store:    store,
		},
	}, browserx.WithHTTP())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := server.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = server.Stop(context.Background())
		cancel()
	})
	return &shell{server: server, factory: factory, store: store, url: ts.URL}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("GET %s: decode: %v", url, err)
	}
}

func waitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
