package cdpsurface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"pkt.systems/browserx/core"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

const titleTimeout = 2 * time.Second

// navigationFailed is queued by Load when the latest navigation did not commit.
type navigationFailed struct {
	url string
	err error
}

// Surface is one Chrome tab.
type Surface struct {
	ctx    context.Context
	cancel context.CancelFunc
	tabID  schema.TabID
	log    pslog.Logger
	queue  *eventQueue
	events chan core.SurfaceEvent
	stop   chan struct{}

	loadSeq atomic.Uint64

	mu        sync.Mutex
	closed    bool
	mainFrame string
	// mainContext is the default execution context of the main frame; console
	// lines from any other context (iframes, extensions) are not relayed.
	mainContext runtime.ExecutionContextID
	url       string
	title     string
	bounds    schema.Rect
	closeOnce sync.Once
}

func newSurface(ctx context.Context, cancel context.CancelFunc, cfg core.SurfaceConfig, log pslog.Logger) *Surface {
	return &Surface{
		ctx:    ctx,
		cancel: cancel,
		tabID:  cfg.TabID,
		log:    log,
		queue:  newEventQueue(),
		events: make(chan core.SurfaceEvent, 16),
		stop:   make(chan struct{}),
		bounds: cfg.Bounds,
	}
}

// listen runs on the CDP reader goroutine and must never block.
func (s *Surface) listen(ev any) {
	switch ev.(type) {
	case *page.EventFrameNavigated, *page.EventNavigatedWithinDocument, *page.EventLoadEventFired,
		*runtime.EventConsoleAPICalled, *runtime.EventExecutionContextCreated,
		*runtime.EventExecutionContextDestroyed, *runtime.EventExecutionContextsCleared:
		s.queue.push(ev)
	}
}

func (s *Surface) loop() {
	defer close(s.events)
	for {
		select {
		case <-s.stop:
			return
		case <-s.queue.ready():
			for _, ev := range s.queue.drain() {
				s.translate(ev)
			}
		}
	}
}

func (s *Surface) translate(raw any) {
	switch ev := raw.(type) {
	case *page.EventFrameNavigated:
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		url := ev.Frame.URL + ev.Frame.URLFragment
		if strings.HasPrefix(url, "chrome-error://") {
			return
		}
		s.mu.Lock()
		s.mainFrame = string(ev.Frame.ID)
		s.url = url
		s.mu.Unlock()
		s.emit(core.SurfaceEvent{Type: core.SurfaceNavigated, URL: url})
	case *page.EventNavigatedWithinDocument:
		s.mu.Lock()
		main := s.mainFrame
		if main == "" || string(ev.FrameID) == main {
			s.url = ev.URL
		}
		s.mu.Unlock()
		if main != "" && string(ev.FrameID) != main {
			return
		}
		s.emit(core.SurfaceEvent{Type: core.SurfaceNavigatedInPage, URL: ev.URL})
	case *page.EventLoadEventFired:
		s.refreshTitle()
		s.mu.Lock()
		url := s.url
		s.mu.Unlock()
		s.emit(core.SurfaceEvent{Type: core.SurfaceLoaded, URL: url})
	case *runtime.EventExecutionContextCreated:
		s.trackContext(ev.Context)
	case *runtime.EventExecutionContextDestroyed:
		s.mu.Lock()
		if s.mainContext == ev.ExecutionContextID {
			s.mainContext = 0
		}
		s.mu.Unlock()
	case *runtime.EventExecutionContextsCleared:
		s.mu.Lock()
		s.mainContext = 0
		s.mu.Unlock()
	case *runtime.EventConsoleAPICalled:
		s.mu.Lock()
		main := s.mainContext
		s.mu.Unlock()
		if main == 0 || ev.ExecutionContextID != main {
			s.log.Debug("cdp console dropped", "context", int64(ev.ExecutionContextID))
			return
		}
		text := consoleText(ev.Args)
		if payload, ok := strings.CutPrefix(text, schema.TagContextMenu+":"); ok {
			s.emit(core.SurfaceEvent{Type: core.SurfaceContextMenu, Selection: contextSelection(payload)})
			return
		}
		s.emit(core.SurfaceEvent{Type: core.SurfaceConsoleMessage, Text: text})
	case navigationFailed:
		s.emit(core.SurfaceEvent{
			Type: core.SurfaceNavigationFailed,
			URL:  ev.url,
			Err:  &schema.NavigationError{URL: ev.url, Reason: ev.err.Error()},
		})
	}
}

// trackContext records the main frame's default context. Isolated worlds and
// subframes get their own contexts and are ignored.
func (s *Surface) trackContext(desc *runtime.ExecutionContextDescription) {
	if desc == nil || len(desc.AuxData) == 0 {
		return
	}
	var aux struct {
		FrameID   string `json:"frameId"`
		IsDefault bool   `json:"isDefault"`
	}
	if err := json.Unmarshal([]byte(desc.AuxData), &aux); err != nil || !aux.IsDefault {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mainFrame == "" || aux.FrameID == s.mainFrame {
		s.mainContext = desc.ID
	}
}

func (s *Surface) refreshTitle() {
	ctx, cancel := context.WithTimeout(s.ctx, titleTimeout)
	defer cancel()
	var title string
	if err := chromedp.Run(ctx, chromedp.Title(&title)); err != nil {
		s.log.Debug("cdp title read failed", "err", err)
		return
	}
	s.mu.Lock()
	changed := title != s.title
	s.title = title
	s.mu.Unlock()
	if changed {
		s.emit(core.SurfaceEvent{Type: core.SurfaceTitleChanged, Title: title})
	}
}

func (s *Surface) emit(ev core.SurfaceEvent) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

// consoleText joins console arguments the way the page printed them.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if len(arg.Value) > 0 {
			var str string
			if err := json.Unmarshal([]byte(arg.Value), &str); err == nil {
				parts = append(parts, str)
				continue
			}
			parts = append(parts, string(arg.Value))
			continue
		}
		parts = append(parts, arg.Description)
	}
	return strings.Join(parts, " ")
}

// contextSelection reads the selection relayed by the page on right click.
func contextSelection(payload string) string {
	var body struct {
		Selection string `json:"selection"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return strings.TrimSpace(payload)
	}
	return strings.TrimSpace(body.Selection)
}

// Load starts a navigation and returns without waiting for it. Only the most
// recent load reports a failure.
func (s *Surface) Load(ctx context.Context, url string) error {
	if s.isClosed() {
		return schema.ErrSurfaceClosed
	}
	seq := s.loadSeq.Add(1)
	go func() {
		err := chromedp.Run(s.ctx, chromedp.Navigate(url))
		if err == nil || s.isClosed() || s.loadSeq.Load() != seq {
			return
		}
		s.log.Debug("cdp navigation failed", "url", url, "err", err)
		s.queue.push(navigationFailed{url: url, err: err})
	}()
	return nil
}

func (s *Surface) GoBack(ctx context.Context) error    { return s.moveHistory(ctx, -1) }
func (s *Surface) GoForward(ctx context.Context) error { return s.moveHistory(ctx, 1) }

func (s *Surface) moveHistory(ctx context.Context, delta int64) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		current, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		target := current + delta
		if target < 0 || target >= int64(len(entries)) {
			return nil
		}
		return page.NavigateToHistoryEntry(entries[target].ID).Do(ctx)
	}))
}

func (s *Surface) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Reload().Do(ctx)
	}))
}

// ExecuteScript evaluates source in the page and returns its JSON value. Transport
// failures, usually a closed or navigating tab, come back as *schema.ScriptError.
func (s *Surface) ExecuteScript(ctx context.Context, source string) (json.RawMessage, error) {
	var (
		raw       json.RawMessage
		exception error
	)
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate(source).WithReturnByValue(true).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			exception = scriptException(exc)
			return nil
		}
		if res != nil && len(res.Value) > 0 {
			raw = json.RawMessage(res.Value)
		}
		return nil
	}))
	if err != nil {
		return nil, &schema.ScriptError{Err: err}
	}
	if exception != nil {
		return nil, exception
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return raw, nil
}

func scriptException(exc *runtime.ExceptionDetails) error {
	msg := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg = exc.Exception.Description
	}
	return fmt.Errorf("script exception at %d:%d: %s", exc.LineNumber, exc.ColumnNumber, msg)
}

// InsertCSS adds or replaces a stylesheet identified by id.
func (s *Surface) InsertCSS(ctx context.Context, id, css string) error {
	quotedID, _ := json.Marshal(id)
	quotedCSS, _ := json.Marshal(css)
	script := fmt.Sprintf(`(function () {
var el = document.getElementById(%s);
if (!el) {
  el = document.createElement('style');
  el.id = %s;
  (document.head || document.documentElement).appendChild(el);
}
el.textContent = %s;
return true;
})()`, quotedID, quotedID, quotedCSS)
	_, err := s.ExecuteScript(ctx, script)
	return err
}

// SetBounds sizes the viewport. Headless tabs have no window to place, so only the
// size is applied.
func (s *Surface) SetBounds(ctx context.Context, bounds schema.Rect) error {
	s.mu.Lock()
	if bounds == s.bounds {
		s.mu.Unlock()
		return nil
	}
	s.bounds = bounds
	s.mu.Unlock()
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return setViewport(ctx, bounds)
	}))
}

func (s *Surface) Show(ctx context.Context) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

func (s *Surface) Events() <-chan core.SurfaceEvent { return s.events }

// Close closes the tab. Events is closed once the event loop exits.
func (s *Surface) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = chromedp.Cancel(s.ctx)
		s.shutdown()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}

func (s *Surface) shutdown() {
	s.cancel()
	s.queue.close()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Surface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// attach opens the target. chromedp runs the target's message loop on the
// context of the first Run, so that Run must use the tab context itself and
// never a per-call derivative.
func (s *Surface) attach(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx) }()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	if c := chromedp.FromContext(s.ctx); c != nil && c.Target != nil {
		s.mu.Lock()
		// The main frame of a page target shares the target id.
		s.mainFrame = string(c.Target.TargetID)
		s.mu.Unlock()
	}
	return nil
}

// run executes actions on the tab, bounded by the caller's context.
func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.isClosed() {
		return schema.ErrSurfaceClosed
	}
	rctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(rctx, actions...)
}
