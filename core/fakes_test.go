package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/browserx/internal/scripts"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

// fakeSurface emulates a page context. It tracks the per-document install markers
// and lifetime stamp the injected wrappers keep in window.__browserx.
type fakeSurface struct {
	tabID   schema.TabID
	events  chan SurfaceEvent
	emitted *atomic.Int64
	// autoLoad completes every Load with a navigated, title, and loaded sequence.
	autoLoad bool

	mu        sync.Mutex
	closed    bool
	url       string
	documents int
	installed map[string]int
	lifetime  string
	language  string
	css       map[string]string
	executed  []string
	posted    []schema.HostMessage
	loads     []string
	bounds    []schema.Rect
	shown     int
	execErr   func(source string) error
	// pageText is what the page reports as document.body.innerText.
	pageText  string
	selected  []string
}

func (f *fakeSurface) Load(ctx context.Context, url string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return schema.ErrSurfaceClosed
	}
	f.loads = append(f.loads, url)
	auto := f.autoLoad
	f.mu.Unlock()
	if auto {
		f.navigate(url, titleFor(url))
	}
	return nil
}

func (f *fakeSurface) GoBack(context.Context) error    { return nil }
func (f *fakeSurface) GoForward(context.Context) error { return nil }

func (f *fakeSurface) Reload(ctx context.Context) error {
	f.mu.Lock()
	url := f.url
	f.mu.Unlock()
	f.navigate(url, titleFor(url))
	return nil
}

func (f *fakeSurface) ExecuteScript(ctx context.Context, source string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, &schema.ScriptError{Err: schema.ErrSurfaceClosed}
	}
	if f.execErr != nil {
		if err := f.execErr(source); err != nil {
			return nil, err
		}
	}
	f.executed = append(f.executed, source)
	switch {
	case strings.HasPrefix(source, installMarker+lifetimeScriptName+"*/"):
		token := between(source, "ns.lifetime = ", ";")
		if f.lifetime == token {
			return json.RawMessage(`"present"`), nil
		}
		f.lifetime = token
		f.language = between(source, "ns.translationLanguage = ", ";")
		return json.RawMessage(`"installed"`), nil
	case strings.HasPrefix(source, installMarker):
		name := between(source, installMarker, "*/")
		if f.installed[name] > 0 {
			if strings.Contains(source, "ns.rescan."+name+" =") {
				return json.RawMessage(`"rescanned"`), nil
			}
			return json.RawMessage(`"present"`), nil
		}
		f.installed[name]++
		return json.RawMessage(`"installed"`), nil
	case strings.Contains(source, "window.postMessage("):
		token := between(source, "ns.lifetime !== ", ")")
		if f.lifetime == "" || token != f.lifetime {
			return json.RawMessage(`false`), nil
		}
		if lang := between(source, "ns.translationLanguage = ", ";"); lang != "" {
			f.language = lang
		}
		var msg schema.HostMessage
		if err := json.Unmarshal([]byte(between(source, "window.postMessage(", ", '*');")), &msg); err != nil {
			return nil, err
		}
		f.posted = append(f.posted, msg)
		return json.RawMessage(`true`), nil
	case source == pageTextScript:
		return json.Marshal(f.pageText)
	case strings.Contains(source, "window.find("):
		var quote string
		literal := source[strings.LastIndex(source, "})(")+3 : len(source)-1]
		if err := json.Unmarshal([]byte(literal), &quote); err != nil {
			return nil, err
		}
		if !strings.Contains(f.pageText, quote) {
			return json.RawMessage(`false`), nil
		}
		f.selected = append(f.selected, quote)
		return json.RawMessage(`true`), nil
	default:
		return json.RawMessage(`null`), nil
	}
}

func (f *fakeSurface) InsertCSS(ctx context.Context, id, css string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return &schema.ScriptError{Err: schema.ErrSurfaceClosed}
	}
	f.css[id] = css
	return nil
}

func (f *fakeSurface) SetBounds(ctx context.Context, bounds schema.Rect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounds = append(f.bounds, bounds)
	return nil
}

func (f *fakeSurface) Show(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown++
	return nil
}

func (f *fakeSurface) Events() <-chan SurfaceEvent { return f.events }

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	return nil
}

// navigate commits a fresh document, which drops everything the previous one installed.
func (f *fakeSurface) navigate(url, title string) {
	f.mu.Lock()
	f.url = url
	f.documents++
	f.installed = make(map[string]int)
	f.lifetime = ""
	f.css = make(map[string]string)
	f.mu.Unlock()
	f.emit(SurfaceEvent{Type: SurfaceNavigated, URL: url})
	if title != "" {
		f.emit(SurfaceEvent{Type: SurfaceTitleChanged, Title: title})
	}
	f.emit(SurfaceEvent{Type: SurfaceLoaded, URL: url})
}

func (f *fakeSurface) console(line string) {
	f.emit(SurfaceEvent{Type: SurfaceConsoleMessage, Text: line})
}

func (f *fakeSurface) emit(ev SurfaceEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.emitted.Add(1)
	f.events <- ev
}

func (f *fakeSurface) postedMessages() []schema.HostMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.HostMessage(nil), f.posted...)
}

func (f *fakeSurface) installCounts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.installed))
	for k, v := range f.installed {
		out[k] = v
	}
	return out
}

func (f *fakeSurface) setPageText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageText = text
}

func (f *fakeSurface) selections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.selected...)
}

func (f *fakeSurface) appliedBounds() []schema.Rect {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.Rect(nil), f.bounds...)
}

func (f *fakeSurface) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func titleFor(url string) string {
	if url == "" || url == schema.DefaultNewTabURL {
		return ""
	}
	return "Page " + url
}

func between(source, start, end string) string {
	idx := strings.Index(source, start)
	if idx < 0 {
		return ""
	}
	rest := source[idx+len(start):]
	stop := strings.Index(rest, end)
	if stop < 0 {
		return ""
	}
	value := rest[:stop]
	var decoded string
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		return decoded
	}
	return value
}

type fakeFactory struct {
	autoLoad bool
	emitted  atomic.Int64

	mu       sync.Mutex
	surfaces []*fakeSurface
	failNext error
}

func (f *fakeFactory) Create(ctx context.Context, cfg SurfaceConfig) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	s := &fakeSurface{
		tabID:     cfg.TabID,
		events:    make(chan SurfaceEvent, 256),
		emitted:   &f.emitted,
		autoLoad:  f.autoLoad,
		installed: make(map[string]int),
		css:       make(map[string]string),
		bounds:    []schema.Rect{cfg.Bounds},
	}
	f.surfaces = append(f.surfaces, s)
	return s, nil
}

func (f *fakeFactory) surface(t *testing.T, id schema.TabID) *fakeSurface {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.surfaces {
		if s.tabID == id {
			return s
		}
	}
	t.Fatalf("no surface for tab %d", id)
	return nil
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) clock() clock {
	return clock{
		now: c.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			c.mu.Lock()
			defer c.mu.Unlock()
			t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
			c.timers = append(c.timers, t)
			return t
		},
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

type backendCall struct {
	at  time.Time
	req schema.CompletionRequest
}

// fakeBackend records completions and answers through reply.
type fakeBackend struct {
	clock *fakeClock
	reply func(ctx context.Context, req schema.CompletionRequest) (string, error)

	mu    sync.Mutex
	calls []backendCall
}

func (b *fakeBackend) Complete(ctx context.Context, req schema.CompletionRequest) (string, error) {
	b.mu.Lock()
	at := time.Time{}
	if b.clock != nil {
		at = b.clock.Now()
	}
	b.calls = append(b.calls, backendCall{at: at, req: req})
	reply := b.reply
	b.mu.Unlock()
	if reply == nil {
		return "", errors.New("no reply configured")
	}
	return reply(ctx, req)
}

func (b *fakeBackend) Calls() []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backendCall(nil), b.calls...)
}

type recordingSink struct {
	mu       sync.Mutex
	tabs     []schema.TabEvent
	layouts  []schema.LayoutEvent
	requests []schema.RequestEvent
}

func (s *recordingSink) OnTabEvent(event schema.TabEvent) {
	s.mu.Lock()
	s.tabs = append(s.tabs, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnLayoutEvent(event schema.LayoutEvent) {
	s.mu.Lock()
	s.layouts = append(s.layouts, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnRequestEvent(event schema.RequestEvent) {
	s.mu.Lock()
	s.requests = append(s.requests, event)
	s.mu.Unlock()
}

func (s *recordingSink) outcomes(kind schema.RequestKind) []schema.RequestOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.RequestOutcome
	for _, ev := range s.requests {
		if ev.Kind == kind {
			out = append(out, ev.Outcome)
		}
	}
	return out
}

func (s *recordingSink) tabEvents(eventType schema.TabEventType) []schema.TabEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.TabEvent
	for _, ev := range s.tabs {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	svc     *service
	factory *fakeFactory
	backend *fakeBackend
	clock   *fakeClock
	sink    *recordingSink
	handled atomic.Int64
}

type harnessOption func(*schema.ServiceConfig, *ServiceDeps)

func withFetcher(fetcher PageFetcher) harnessOption {
	return func(_ *schema.ServiceConfig, deps *ServiceDeps) { deps.Fetcher = fetcher }
}

func withStateDir(dir string) harnessOption {
	return func(cfg *schema.ServiceConfig, _ *ServiceDeps) { cfg.StateDir = dir }
}

func withoutBackend() harnessOption {
	return func(_ *schema.ServiceConfig, deps *ServiceDeps) { deps.Backend = nil }
}

func withLogger(logger pslog.Logger) harnessOption {
	return func(_ *schema.ServiceConfig, deps *ServiceDeps) { deps.Logger = logger }
}

func withConfig(mutate func(*schema.ServiceConfig)) harnessOption {
	return func(cfg *schema.ServiceConfig, _ *ServiceDeps) { mutate(cfg) }
}

// newHarness builds a service over fake surfaces. Bridge work runs synchronously
// on the goroutine that triggered it, so results are visible once events settle.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		factory: &fakeFactory{autoLoad: true},
		clock:   newFakeClock(),
		sink:    &recordingSink{},
	}
	h.backend = &fakeBackend{clock: h.clock}
	set, err := scripts.Load()
	if err != nil {
		t.Fatalf("load scripts: %v", err)
	}
	cfg := schema.ServiceConfig{}
	deps := ServiceDeps{
		Surfaces:  h.factory,
		Backend:   h.backend,
		Scripts:   &set,
		EventSink: h.sink,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	svc, err := newService(cfg, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.clock = h.clock.clock()
	svc.bridge.clock = svc.clock
	svc.bridge.spawn = func(f func()) { f() }
	svc.eventHook = func(schema.TabID, SurfaceEvent) { h.handled.Add(1) }
	h.svc = svc
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return h
}

// settle waits until every emitted surface event was handled.
func (h *harness) settle() {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.handled.Load() >= h.factory.emitted.Load() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for surface events: handled %d of %d", h.handled.Load(), h.factory.emitted.Load())
}

func (h *harness) createTab(url string, activate bool) schema.TabSnapshot {
	h.t.Helper()
	resp, err := h.svc.CreateTab(context.Background(), schema.CreateTabRequest{URL: url, Activate: activate})
	if err != nil {
		h.t.Fatalf("create tab: %v", err)
	}
	h.settle()
	return resp.Tab
}

func (h *harness) closeTab(id schema.TabID) schema.CloseTabResponse {
	h.t.Helper()
	resp, err := h.svc.CloseTab(context.Background(), schema.CloseTabRequest{TabID: id})
	if err != nil {
		h.t.Fatalf("close tab %d: %v", id, err)
	}
	h.settle()
	return resp
}

func (h *harness) list() schema.ListTabsResponse {
	h.t.Helper()
	resp, err := h.svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if err != nil {
		h.t.Fatalf("list tabs: %v", err)
	}
	return resp
}

func (h *harness) assertRegistry() {
	h.t.Helper()
	resp := h.list()
	if len(resp.Tabs) == 0 {
		h.t.Fatalf("registry is empty")
	}
	active := 0
	for _, tab := range resp.Tabs {
		if tab.Active {
			active++
			if tab.ID != resp.ActiveTab {
				h.t.Fatalf("active flag on %d but active tab is %d", tab.ID, resp.ActiveTab)
			}
		}
	}
	if active != 1 {
		h.t.Fatalf("expected exactly one active tab, got %d in %+v", active, resp.Tabs)
	}
	for _, tab := range resp.Tabs {
		if h.factory.surface(h.t, tab.ID).isClosed() {
			h.t.Fatalf("tab %d points at a destroyed surface", tab.ID)
		}
	}
}

// waitFor polls cond for asynchronous bridge work.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// logCapture collects structured log lines written by pslog.
type logCapture struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func newCapturedLogger() (*logCapture, pslog.Logger) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	return capture, logger
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.buf.Write(p)
	for {
		data := c.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		c.lines = append(c.lines, string(data[:idx]))
		c.buf.Next(idx + 1)
	}
	return len(p), nil
}

func (c *logCapture) Entries() []logEntry {
	c.mu.Lock()
	lines := append([]string(nil), c.lines...)
	c.mu.Unlock()
	entries := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			continue
		}
		entry := logEntry{Fields: payload}
		if v, ok := payload["level"].(string); ok {
			entry.Level = v
		} else if v, ok := payload["lvl"].(string); ok {
			entry.Level = v
		}
		if v, ok := payload["message"].(string); ok {
			entry.Message = v
		} else if v, ok := payload["msg"].(string); ok {
			entry.Message = v
		}
		entries = append(entries, entry)
	}
	return entries
}

func (c *logCapture) count(message string) int {
	n := 0
	for _, entry := range c.Entries() {
		if entry.Message == message {
			n++
		}
	}
	return n
}
