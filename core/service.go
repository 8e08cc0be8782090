package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/internal/metrics"
	"pkt.systems/browserx/internal/persist"
	"pkt.systems/browserx/internal/scripts"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

var errServiceClosed = errors.New("service closed")

// service implements the core service behavior.
type service struct {
	cfg      schema.ServiceConfig
	surfaces SurfaceFactory
	backend  Backend
	store    *persist.Store
	sink     EventSink
	metrics  *metrics.Metrics
	logger   pslog.Logger
	injector *injector
	bridge   *bridge
	clock    clock
	// eventHook observes each surface event after it was handled.
	eventHook func(schema.TabID, SurfaceEvent)

	// structMu serializes registry changes that allocate or destroy surfaces, so
	// closing the last tab and creating its replacement is one step.
	structMu sync.Mutex
	// geomMu serializes computing and applying bounds to the active surface.
	geomMu sync.Mutex

	mu     sync.Mutex
	state  shellState
	closed bool
}

// shellState is the single source of truth for tabs and chrome geometry.
type shellState struct {
	tabs     map[schema.TabID]*tab
	order    []schema.TabID
	active   schema.TabID
	nextID   schema.TabID
	window   schema.Size
	layout   schema.ShellLayout
	language schema.LanguageCode
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	svc, err := newService(cfg, deps)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func newService(cfg schema.ServiceConfig, deps ServiceDeps) (*service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Surfaces == nil {
		return nil, errors.New("surface factory is required")
	}
	var set scripts.Set
	if deps.Scripts != nil {
		set = *deps.Scripts
	} else if set, err = scripts.Load(); err != nil {
		return nil, err
	}
	store := deps.Store
	if store == nil && cfg.StateDir != "" {
		store, err = persist.NewStoreWithLogger(cfg.StateDir, deps.Logger)
		if err != nil {
			return nil, err
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	language := cfg.TranslationLanguage
	if store != nil {
		if settings, err := store.Settings(); err == nil {
			if lang, err := schema.NormalizeLanguage(settings.String(schema.SettingTranslationLanguage)); err == nil {
				language = lang
			}
		} else {
			logger.Warn("service settings load failed", "err", err)
		}
	}
	svc := &service{
		cfg:      cfg,
		surfaces: deps.Surfaces,
		backend:  deps.Backend,
		store:    store,
		sink:     deps.EventSink,
		metrics:  deps.Metrics,
		logger:   logger,
		injector: newInjector(set, cfg.NewTabURL, cfg.ScriptTimeout, deps.Metrics),
		clock:    realClock(),
		state: shellState{
			tabs:     make(map[schema.TabID]*tab),
			window:   cfg.Window,
			language: language,
		},
	}
	svc.bridge = newBridge(svc, deps.Backend, deps.Fetcher, bridgeConfig{
		models:          cfg.Models,
		quietPeriod:     cfg.AutocompleteQuietPeriod,
		minChars:        cfg.AutocompleteMinChars,
		composeMinChars: cfg.ComposeMinChars,
		linkScanTimeout: cfg.LinkScanTimeout,
		backendTimeout:  cfg.BackendTimeout,
		scriptTimeout:   cfg.ScriptTimeout,
	}, svc.translationLanguage, deps.EventSink, deps.Metrics)
	return svc, nil
}

func (s *service) CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.CreateTabResponse, error) {
	if ctx == nil {
		return schema.CreateTabResponse{}, errors.New("missing context")
	}
	target := ""
	if strings.TrimSpace(req.URL) != "" {
		resolved, err := ResolveInput(req.URL, s.searchEngine())
		if err != nil {
			return schema.CreateTabResponse{}, err
		}
		target = resolved
	}
	s.structMu.Lock()
	defer s.structMu.Unlock()
	snap, active, err := s.createTabLocked(ctx, target, req.Activate)
	if err != nil {
		return schema.CreateTabResponse{}, err
	}
	return schema.CreateTabResponse{Tab: snap, ActiveTab: active}, nil
}

// createTabLocked allocates a surface and registers the tab. Callers hold structMu.
func (s *service) createTabLocked(ctx context.Context, target string, activate bool) (schema.TabSnapshot, schema.TabID, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.TabSnapshot{}, 0, errServiceClosed
	}
	s.state.nextID++
	id := s.state.nextID
	bounds := ComputeBounds(s.state.window, s.state.layout)
	s.mu.Unlock()

	log := logx.WithTab(ctx, id)
	url := target
	if url == "" {
		url = s.cfg.NewTabURL
	}
	log.Info("service tab create start", "url", url)
	surface, err := s.surfaces.Create(ctx, SurfaceConfig{TabID: id, Bounds: bounds})
	if err != nil {
		var allocErr *schema.AllocationError
		if !errors.As(err, &allocErr) {
			err = &schema.AllocationError{Err: err}
		}
		log.Warn("service tab create failed", "err", err)
		return schema.TabSnapshot{}, 0, err
	}

	t := newTab(id, surface, url, s.clock.now())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = surface.Close()
		return schema.TabSnapshot{}, 0, errServiceClosed
	}
	becameActive := len(s.state.order) == 0 || activate
	s.state.tabs[id] = t
	s.state.order = append(s.state.order, id)
	if becameActive {
		s.state.active = id
	}
	snap := t.Snapshot(becameActive)
	active := s.state.active
	count := len(s.state.order)
	s.mu.Unlock()

	s.metrics.SetTabsOpen(count)
	go s.pump(t)
	s.emitTab(schema.TabEventCreated, snap, active)
	if becameActive {
		s.applyActive(ctx, true)
		s.emitTab(schema.TabEventActivated, snap, active)
	}
	if err := surface.Load(ctx, url); err != nil {
		s.markFailed(ctx, t, url, err)
	}
	log.Info("service tab create ok", "active", becameActive, "tabs", count)
	if current, ok := s.tabSnapshot(id); ok {
		snap = current
	}
	return snap, active, nil
}

func (s *service) CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	if ctx == nil {
		return schema.CloseTabResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.TabID)
	s.structMu.Lock()
	defer s.structMu.Unlock()

	s.mu.Lock()
	t := s.state.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		log.Info("service tab close ignored", "reason", "unknown tab")
		return schema.CloseTabResponse{}, schema.ErrTabNotFound
	}
	last := len(s.state.order) == 1
	s.mu.Unlock()

	log.Info("service tab close start", "last", last)
	var replacement *schema.TabSnapshot
	if last {
		snap, _, err := s.createTabLocked(ctx, "", false)
		if err != nil {
			log.Warn("service tab close failed", "err", err)
			return schema.CloseTabResponse{}, fmt.Errorf("replace last tab: %w", err)
		}
		replacement = &snap
	}

	s.mu.Lock()
	idx := slices.Index(s.state.order, req.TabID)
	s.state.order = slices.Delete(s.state.order, idx, idx+1)
	delete(s.state.tabs, req.TabID)
	t.closed = true
	t.Status = schema.TabStatusClosed
	wasActive := s.state.active == req.TabID
	if wasActive {
		switch {
		case idx < len(s.state.order):
			s.state.active = s.state.order[idx]
		case idx > 0:
			s.state.active = s.state.order[idx-1]
		default:
			s.state.active = 0
		}
	}
	active := s.state.active
	closedSnap := t.Snapshot(false)
	var activeSnap schema.TabSnapshot
	if next := s.state.tabs[active]; next != nil {
		activeSnap = next.Snapshot(true)
	}
	count := len(s.state.order)
	s.mu.Unlock()

	s.bridge.discardTab(req.TabID)
	if err := t.surface.Close(); err != nil {
		log.Debug("service surface close failed", "err", err)
	}
	s.metrics.SetTabsOpen(count)
	s.emitTab(schema.TabEventClosed, closedSnap, active)
	if wasActive && active != 0 {
		s.applyActive(ctx, true)
		s.emitTab(schema.TabEventActivated, activeSnap, active)
	}
	if replacement != nil {
		if current, ok := s.tabSnapshot(replacement.ID); ok {
			replacement = &current
		}
	}
	log.Info("service tab close ok", "active", int64(active), "tabs", count)
	return schema.CloseTabResponse{Tab: closedSnap, ActiveTab: active, Replacement: replacement}, nil
}

func (s *service) SwitchTab(ctx context.Context, req schema.SwitchTabRequest) (schema.SwitchTabResponse, error) {
	if ctx == nil {
		return schema.SwitchTabResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.TabID)
	s.mu.Lock()
	t := s.state.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		log.Info("service tab switch ignored", "reason", "unknown tab")
		return schema.SwitchTabResponse{}, schema.ErrTabNotFound
	}
	s.state.active = req.TabID
	snap := t.Snapshot(true)
	s.mu.Unlock()

	layout := s.applyActive(ctx, true)
	s.emitTab(schema.TabEventActivated, snap, req.TabID)
	log.Debug("service tab switch ok", "url", snap.URL)
	return schema.SwitchTabResponse{Tab: snap, Bounds: layout.Bounds}, nil
}

func (s *service) ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error) {
	if ctx == nil {
		return schema.ListTabsResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tabs := make([]schema.TabSnapshot, 0, len(s.state.order))
	for _, id := range s.state.order {
		if t := s.state.tabs[id]; t != nil {
			tabs = append(tabs, t.Snapshot(id == s.state.active))
		}
	}
	return schema.ListTabsResponse{
		Tabs:      tabs,
		ActiveTab: s.state.active,
		Layout:    s.state.layout,
		Window:    s.state.window,
		Bounds:    ComputeBounds(s.state.window, s.state.layout),
	}, nil
}

func (s *service) Navigate(ctx context.Context, req schema.NavigateRequest) (schema.NavigateResponse, error) {
	if ctx == nil {
		return schema.NavigateResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.TabID)
	target, err := ResolveInput(req.Input, s.searchEngine())
	if err != nil {
		return schema.NavigateResponse{}, err
	}
	s.mu.Lock()
	t := s.state.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		log.Info("service navigate ignored", "reason", "unknown tab")
		return schema.NavigateResponse{}, schema.ErrTabNotFound
	}
	if t.Status == schema.TabStatusReady || t.Status == schema.TabStatusFailed {
		t.Status = schema.TabStatusNavigating
	}
	t.LoadError = ""
	snap, active := t.Snapshot(s.state.active == t.ID), s.state.active
	s.mu.Unlock()

	s.emitTab(schema.TabEventUpdated, snap, active)
	log.Info("service navigate", "url", target)
	if err := t.surface.Load(ctx, target); err != nil {
		s.markFailed(ctx, t, target, err)
		return schema.NavigateResponse{}, err
	}
	return schema.NavigateResponse{Tab: snap, URL: target}, nil
}

func (s *service) MoveHistory(ctx context.Context, req schema.HistoryMoveRequest) (schema.HistoryMoveResponse, error) {
	if ctx == nil {
		return schema.HistoryMoveResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	t := s.state.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		logx.WithTab(ctx, req.TabID).Info("service history move ignored", "reason", "unknown tab")
		return schema.HistoryMoveResponse{}, schema.ErrTabNotFound
	}
	snap := t.Snapshot(s.state.active == t.ID)
	s.mu.Unlock()

	var err error
	switch req.Action {
	case schema.HistoryBack:
		err = t.surface.GoBack(ctx)
	case schema.HistoryForward:
		err = t.surface.GoForward(ctx)
	case schema.HistoryReload:
		err = t.surface.Reload(ctx)
	default:
		return schema.HistoryMoveResponse{}, schema.ErrInvalidRequest
	}
	if err != nil {
		return schema.HistoryMoveResponse{}, err
	}
	return schema.HistoryMoveResponse{Tab: snap}, nil
}

func (s *service) SetPanel(ctx context.Context, req schema.SetPanelRequest) (schema.LayoutResponse, error) {
	if ctx == nil {
		return schema.LayoutResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	layout, err := s.state.layout.With(req.Panel, req.Open)
	if err != nil {
		s.mu.Unlock()
		return schema.LayoutResponse{}, err
	}
	s.state.layout = layout
	s.mu.Unlock()
	resp := s.applyActive(ctx, false)
	s.emitLayout(resp)
	return resp, nil
}

func (s *service) ResizeWindow(ctx context.Context, req schema.ResizeWindowRequest) (schema.LayoutResponse, error) {
	if ctx == nil {
		return schema.LayoutResponse{}, errors.New("missing context")
	}
	if req.Size.Width < 0 || req.Size.Height < 0 {
		return schema.LayoutResponse{}, schema.ErrInvalidSize
	}
	s.mu.Lock()
	s.state.window = req.Size
	s.mu.Unlock()
	resp := s.applyActive(ctx, false)
	s.emitLayout(resp)
	return resp, nil
}

// applyActive computes bounds from the current state and applies them to the
// active surface only. Repeating it with unchanged state is a no-op for the page.
func (s *service) applyActive(ctx context.Context, show bool) schema.LayoutResponse {
	s.geomMu.Lock()
	defer s.geomMu.Unlock()
	s.mu.Lock()
	resp := schema.LayoutResponse{
		Layout:    s.state.layout,
		Metrics:   s.state.layout.Metrics(),
		Window:    s.state.window,
		Bounds:    ComputeBounds(s.state.window, s.state.layout),
		ActiveTab: s.state.active,
	}
	var surface Surface
	if t := s.state.tabs[s.state.active]; t != nil {
		surface = t.surface
	}
	s.mu.Unlock()
	if surface == nil {
		return resp
	}
	log := logx.WithTab(ctx, resp.ActiveTab)
	if show {
		if err := surface.Show(ctx); err != nil {
			log.Debug("service surface show failed", "err", err)
		}
	}
	if err := surface.SetBounds(ctx, resp.Bounds); err != nil {
		log.Debug("service surface bounds failed", "err", err)
	}
	return resp
}

// Close saves the session, destroys every surface, and waits for event pumps.
func (s *service) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.structMu.Lock()
	defer s.structMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	session := s.sessionLocked()
	s.closed = true
	tabs := make([]*tab, 0, len(s.state.order))
	for _, id := range s.state.order {
		if t := s.state.tabs[id]; t != nil {
			t.closed = true
			tabs = append(tabs, t)
		}
	}
	s.mu.Unlock()

	var errs []error
	if s.store != nil && len(session.Tabs) > 0 {
		if err := s.store.SaveSession(session); err != nil {
			errs = append(errs, fmt.Errorf("save session: %w", err))
		}
	}
	s.bridge.close()
	for _, t := range tabs {
		if err := t.surface.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, t := range tabs {
		select {
		case <-t.done:
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		}
	}
	s.metrics.SetTabsOpen(0)
	return errors.Join(errs...)
}

// resolveTab implements tabResolver for the bridge.
func (s *service) resolveTab(id schema.TabID) (Surface, schema.Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.state.tabs[id]
	if t == nil || t.closed {
		return nil, 0, false
	}
	return t.surface, t.Generation, true
}

func (s *service) translationLanguage() schema.LanguageCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.language
}

func (s *service) tabSnapshot(id schema.TabID) (schema.TabSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.state.tabs[id]
	if t == nil {
		return schema.TabSnapshot{}, false
	}
	return t.Snapshot(s.state.active == id), true
}

func (s *service) markFailed(ctx context.Context, t *tab, url string, err error) {
	s.mu.Lock()
	if t.closed {
		s.mu.Unlock()
		return
	}
	t.Status = schema.TabStatusFailed
	t.LoadError = err.Error()
	snap, active := t.Snapshot(s.state.active == t.ID), s.state.active
	s.mu.Unlock()
	logx.WithTab(ctx, t.ID).Warn("service load failed", "url", url, "err", err)
	s.emitTab(schema.TabEventUpdated, snap, active)
}

// searchEngine prefers the engine stored in settings over the configured default.
func (s *service) searchEngine() schema.SearchEngine {
	if s.store != nil {
		if settings, err := s.store.Settings(); err == nil {
			if name := settings.String(schema.SettingSearchEngine); name != "" {
				return schema.NormalizeSearchEngine(name)
			}
		}
	}
	return s.cfg.SearchEngine
}

func (s *service) theme() schema.ThemeSettings {
	if s.store != nil {
		if settings, err := s.store.Settings(); err == nil {
			return schema.ThemeFromSettings(settings)
		}
	}
	return schema.ThemeFromSettings(schema.DefaultSettings())
}

func (s *service) emitTab(eventType schema.TabEventType, snap schema.TabSnapshot, active schema.TabID) {
	if s.sink == nil {
		return
	}
	s.sink.OnTabEvent(schema.TabEvent{Type: eventType, Tab: snap, ActiveTab: active})
}

func (s *service) emitLayout(resp schema.LayoutResponse) {
	if s.sink == nil {
		return
	}
	s.sink.OnLayoutEvent(schema.LayoutEvent{
		Layout:    resp.Layout,
		Metrics:   resp.Metrics,
		Window:    resp.Window,
		Bounds:    resp.Bounds,
		ActiveTab: resp.ActiveTab,
	})
}
