package httpapi

import (
	"context"
	"encoding/json"
	"strings"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/schema"
)

// Library ops read and write the persisted shell documents directly.

func (s *Server) sessionGet(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	session, found, err := s.store.LoadSession()
	if err != nil {
		return nil, err
	}
	if !found {
		session = schema.Session{Tabs: []schema.SessionTab{}}
	}
	return session, nil
}

func (s *Server) historyList(ctx context.Context, params json.RawMessage) (any, error) {
	var q historyQuery
	if err := decodeParams(params, &q); err != nil {
		return nil, err
	}
	return s.listHistory(q)
}

func (s *Server) listHistory(q historyQuery) ([]schema.HistoryEntry, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	return s.store.History(strings.TrimSpace(q.Query), q.Limit)
}

func (s *Server) historyAdd(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	var entry schema.HistoryEntry
	if err := decodeParams(params, &entry); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.URL) == "" {
		return nil, schema.ErrInvalidRequest
	}
	if err := s.store.AddHistory(entry); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// historyDelete removes one URL, or clears everything when no URL is given.
func (s *Server) historyDelete(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	var p urlParam
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.URL) == "" {
		if err := s.store.ClearHistory(); err != nil {
			return nil, err
		}
		logx.Ctx(ctx).Info("http history cleared")
		return map[string]any{"removed": true}, nil
	}
	removed, err := s.store.DeleteHistory(p.URL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

func (s *Server) bookmarksList(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	return s.store.Bookmarks()
}

func (s *Server) bookmarksAdd(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	var b schema.Bookmark
	if err := decodeParams(params, &b); err != nil {
		return nil, err
	}
	stored, added, err := s.store.AddBookmark(b)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bookmark": stored, "added": added}, nil
}

func (s *Server) bookmarksRemove(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	var p urlParam
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.URL) == "" {
		return nil, schema.ErrInvalidRequest
	}
	removed, err := s.store.RemoveBookmark(p.URL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

func (s *Server) bookmarksCheck(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	var p urlParam
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	bookmarked, err := s.store.IsBookmarked(p.URL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bookmarked": bookmarked}, nil
}

func (s *Server) notesList(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	return s.store.Notes()
}

func (s *Server) notesAdd(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	var note schema.Note
	if err := decodeParams(params, &note); err != nil {
		return nil, err
	}
	return s.store.AddNote(note)
}

func (s *Server) notesDelete(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	var p idParam
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, schema.ErrInvalidRequest
	}
	removed, err := s.store.DeleteNote(p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

func (s *Server) settingsGet(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	return s.store.Settings()
}

// settingsUpdate merges a settings patch. A translation language change goes
// through the service so open tabs pick it up.
func (s *Server) settingsUpdate(ctx context.Context, params json.RawMessage) (any, error) {
	if s.store == nil {
		return nil, schema.ErrStoreUnavailable
	}
	patch := schema.Settings{}
	if err := decodeParams(params, &patch); err != nil {
		return nil, err
	}
	if raw, ok := patch[schema.SettingTranslationLanguage]; ok {
		lang, _ := raw.(string)
		if _, err := s.service.SetTranslationLanguage(ctx, schema.SetTranslationLanguageRequest{Language: schema.LanguageCode(lang)}); err != nil {
			return nil, err
		}
		delete(patch, schema.SettingTranslationLanguage)
	}
	return s.store.UpdateSettings(patch)
}
