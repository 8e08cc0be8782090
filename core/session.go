package core

import (
	"context"
	"errors"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/schema"
)

func (s *service) SaveSession(ctx context.Context, req schema.SaveSessionRequest) (schema.SaveSessionResponse, error) {
	if ctx == nil {
		return schema.SaveSessionResponse{}, errors.New("missing context")
	}
	if s.store == nil {
		return schema.SaveSessionResponse{}, schema.ErrStoreUnavailable
	}
	s.mu.Lock()
	session := s.sessionLocked()
	s.mu.Unlock()
	if err := s.store.SaveSession(session); err != nil {
		logx.Ctx(ctx).Warn("service session save failed", "err", err)
		return schema.SaveSessionResponse{}, err
	}
	logx.Ctx(ctx).Info("service session saved", "tabs", len(session.Tabs))
	return schema.SaveSessionResponse{Session: session}, nil
}

// sessionLocked captures open tabs in display order. Callers hold mu.
func (s *service) sessionLocked() schema.Session {
	session := schema.Session{Tabs: make([]schema.SessionTab, 0, len(s.state.order)), SavedAt: s.clock.now()}
	for i, id := range s.state.order {
		t := s.state.tabs[id]
		if t == nil {
			continue
		}
		if id == s.state.active {
			session.ActiveIndex = i
		}
		session.Tabs = append(session.Tabs, schema.SessionTab{URL: t.URL, Title: t.Title})
	}
	return session
}

// RestoreSession reopens persisted tabs after the current ones and activates the
// tab that was active when the session was saved.
func (s *service) RestoreSession(ctx context.Context, req schema.RestoreSessionRequest) (schema.RestoreSessionResponse, error) {
	if ctx == nil {
		return schema.RestoreSessionResponse{}, errors.New("missing context")
	}
	if s.store == nil {
		return schema.RestoreSessionResponse{}, schema.ErrStoreUnavailable
	}
	log := logx.Ctx(ctx)
	session, found, err := s.store.LoadSession()
	if err != nil {
		log.Warn("service session load failed", "err", err)
		return schema.RestoreSessionResponse{}, err
	}
	if !found || len(session.Tabs) == 0 {
		return schema.RestoreSessionResponse{Tabs: []schema.TabSnapshot{}}, nil
	}

	s.structMu.Lock()
	restored := make([]schema.TabSnapshot, 0, len(session.Tabs))
	for _, saved := range session.Tabs {
		target := saved.URL
		if s.injector.isNewTabPage(target) {
			target = ""
		}
		snap, _, err := s.createTabLocked(ctx, target, false)
		if err != nil {
			s.structMu.Unlock()
			log.Warn("service session restore stopped", "restored", len(restored), "err", err)
			return schema.RestoreSessionResponse{Tabs: restored}, err
		}
		restored = append(restored, snap)
	}
	s.structMu.Unlock()

	idx := session.ActiveIndex
	if idx < 0 || idx >= len(restored) {
		idx = 0
	}
	if _, err := s.SwitchTab(ctx, schema.SwitchTabRequest{TabID: restored[idx].ID}); err != nil {
		log.Warn("service session restore activate failed", "err", err)
	}
	for i := range restored {
		if current, ok := s.tabSnapshot(restored[i].ID); ok {
			restored[i] = current
		}
	}
	log.Info("service session restored", "tabs", len(restored))
	return schema.RestoreSessionResponse{Tabs: restored}, nil
}

// SetTranslationLanguage stores the new target language and pushes it into every
// live page. Pages that were replaced meanwhile pick it up on their next injection.
func (s *service) SetTranslationLanguage(ctx context.Context, req schema.SetTranslationLanguageRequest) (schema.SetTranslationLanguageResponse, error) {
	if ctx == nil {
		return schema.SetTranslationLanguageResponse{}, errors.New("missing context")
	}
	lang, err := schema.NormalizeLanguage(string(req.Language))
	if err != nil {
		return schema.SetTranslationLanguageResponse{}, err
	}
	log := logx.Ctx(ctx)
	s.mu.Lock()
	s.state.language = lang
	ids := append([]schema.TabID(nil), s.state.order...)
	s.mu.Unlock()

	if s.store != nil {
		if _, err := s.store.UpdateSettings(schema.Settings{schema.SettingTranslationLanguage: string(lang)}); err != nil {
			log.Warn("service settings update failed", "err", err)
		}
	}
	delivered := 0
	for _, id := range ids {
		err := s.bridge.deliver(ctx, id, schema.HostMessage{Type: schema.MsgSetTranslationLanguage, Language: lang})
		if err != nil {
			logx.WithTab(ctx, id).Debug("service language broadcast skipped", "err", err)
			continue
		}
		delivered++
	}
	log.Info("service translation language set", "language", string(lang), "tabs", delivered)
	return schema.SetTranslationLanguageResponse{Language: lang, Tabs: delivered}, nil
}
