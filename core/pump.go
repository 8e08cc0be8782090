package core

import (
	"context"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/internal/persist"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

// pump consumes surface events of one tab in order until the surface closes.
func (s *service) pump(t *tab) {
	defer close(t.done)
	base := pslog.ContextWithLogger(context.Background(), s.logger)
	ctx := logx.ContextWithTabLogger(base, logx.WithTab(base, t.ID), t.ID)
	for ev := range t.surface.Events() {
		s.metrics.SurfaceEvent(string(ev.Type))
		s.handleSurfaceEvent(ctx, t, ev)
		if s.eventHook != nil {
			s.eventHook(t.ID, ev)
		}
	}
}

func (s *service) handleSurfaceEvent(ctx context.Context, t *tab, ev SurfaceEvent) {
	switch ev.Type {
	case SurfaceNavigated:
		s.mu.Lock()
		if t.closed {
			s.mu.Unlock()
			return
		}
		t.Generation++
		t.URL = ev.URL
		t.LoadError = ""
		if t.Status == schema.TabStatusReady || t.Status == schema.TabStatusFailed {
			t.Status = schema.TabStatusNavigating
		}
		gen := t.Generation
		snap, active := t.Snapshot(s.state.active == t.ID), s.state.active
		s.mu.Unlock()
		logx.WithGeneration(logx.Ctx(ctx), gen).Debug("service page committed", "url", ev.URL)
		s.bridge.pageChanged(t.ID, gen)
		s.emitTab(schema.TabEventUpdated, snap, active)

	case SurfaceNavigatedInPage:
		s.mu.Lock()
		if t.closed {
			s.mu.Unlock()
			return
		}
		t.URL = ev.URL
		gen := t.Generation
		rescan := gen > 0 && t.injected == gen
		title := t.Title
		snap, active := t.Snapshot(s.state.active == t.ID), s.state.active
		s.mu.Unlock()
		if rescan {
			s.injector.rescan(ctx, t.surface, t.ID, gen)
		}
		s.recordVisit(ctx, ev.URL, title)
		s.emitTab(schema.TabEventUpdated, snap, active)

	case SurfaceLoaded:
		s.mu.Lock()
		if t.closed {
			s.mu.Unlock()
			return
		}
		bumped := false
		if t.Generation == 0 {
			t.Generation = 1
			bumped = true
		}
		if ev.URL != "" {
			t.URL = ev.URL
		}
		t.Status = schema.TabStatusReady
		t.LoadError = ""
		gen := t.Generation
		inject := t.injected != gen
		if inject {
			t.injected = gen
		}
		url, title := t.URL, t.Title
		lang := s.state.language
		snap, active := t.Snapshot(s.state.active == t.ID), s.state.active
		s.mu.Unlock()
		if bumped {
			s.bridge.pageChanged(t.ID, gen)
		}
		if inject {
			s.injector.install(ctx, t.surface, t.ID, gen, url, lang, s.theme())
		}
		s.recordVisit(ctx, url, title)
		s.emitTab(schema.TabEventUpdated, snap, active)

	case SurfaceTitleChanged:
		s.mu.Lock()
		if t.closed || t.Title == ev.Title {
			s.mu.Unlock()
			return
		}
		t.Title = ev.Title
		url := t.URL
		ready := t.Status == schema.TabStatusReady
		snap, active := t.Snapshot(s.state.active == t.ID), s.state.active
		s.mu.Unlock()
		if ready {
			s.recordVisit(ctx, url, ev.Title)
		}
		s.emitTab(schema.TabEventUpdated, snap, active)

	case SurfaceConsoleMessage:
		gen, ok := s.generation(t)
		if !ok {
			return
		}
		s.bridge.handleConsole(ctx, t.ID, gen, ev.Text)

	case SurfaceContextMenu:
		if !s.cfg.ContextMenuAssistant || ev.Selection == "" {
			return
		}
		gen, ok := s.generation(t)
		if !ok {
			return
		}
		s.bridge.dispatch(ctx, t.ID, gen, schema.PageMessage{
			Kind: schema.RequestAssistant,
			Text: clip(ev.Selection, maxTextRunes),
		})

	case SurfaceNavigationFailed:
		err := ev.Err
		if err == nil {
			err = &schema.NavigationError{URL: ev.URL, Reason: "unknown error"}
		}
		s.markFailed(ctx, t, ev.URL, err)
	}
}

func (s *service) generation(t *tab) (schema.Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.closed {
		return 0, false
	}
	return t.Generation, true
}

// recordVisit adds a page to history unless history is disabled or the page is internal.
func (s *service) recordVisit(ctx context.Context, url, title string) {
	if s.store == nil || s.cfg.DisableHistory || !persist.Recordable(url, s.cfg.NewTabURL) {
		return
	}
	entry := schema.HistoryEntry{URL: url, Title: title, VisitedAt: s.clock.now()}
	if err := s.store.AddHistory(entry); err != nil {
		logx.Ctx(ctx).Warn("service history record failed", "url", url, "err", err)
	}
}
