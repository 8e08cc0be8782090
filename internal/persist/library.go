package persist

import (
	"strings"

	"pkt.systems/browserx/schema"
)

// Recordable reports whether a URL belongs in history. New tab, file, and
// internal pages are skipped.
func Recordable(url, newTabURL string) bool {
	url = strings.TrimSpace(url)
	if url == "" || url == newTabURL {
		return false
	}
	lower := strings.ToLower(url)
	for _, prefix := range []string{"about:", "file://", "data:", "chrome:", "devtools:", "javascript:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// AddHistory records a visit newest first, replacing any older entry for the same URL.
func (s *Store) AddHistory(entry schema.HistoryEntry) error {
	if strings.TrimSpace(entry.URL) == "" {
		return schema.ErrInvalidRequest
	}
	if entry.VisitedAt.IsZero() {
		entry.VisitedAt = s.now()
	}
	var history []schema.HistoryEntry
	return s.update(KeyHistory, &history, func(bool) (bool, error) {
		out := make([]schema.HistoryEntry, 0, len(history)+1)
		out = append(out, entry)
		for _, existing := range history {
			if existing.URL == entry.URL {
				continue
			}
			out = append(out, existing)
		}
		if len(out) > schema.HistoryLimit {
			out = out[:schema.HistoryLimit]
		}
		history = out
		return true, nil
	})
}

// History lists history entries whose URL or title contains query. A zero limit returns all matches.
func (s *Store) History(query string, limit int) ([]schema.HistoryEntry, error) {
	var history []schema.HistoryEntry
	if _, err := s.view(KeyHistory, &history); err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]schema.HistoryEntry, 0, len(history))
	for _, entry := range history {
		if query != "" && !strings.Contains(strings.ToLower(entry.URL), query) && !strings.Contains(strings.ToLower(entry.Title), query) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// DeleteHistory removes the entry for url.
func (s *Store) DeleteHistory(url string) (bool, error) {
	var history []schema.HistoryEntry
	removed := false
	err := s.update(KeyHistory, &history, func(bool) (bool, error) {
		out := history[:0]
		for _, entry := range history {
			if entry.URL == url {
				removed = true
				continue
			}
			out = append(out, entry)
		}
		history = out
		return removed, nil
	})
	return removed, err
}

// ClearHistory removes all history entries.
func (s *Store) ClearHistory() error {
	var history []schema.HistoryEntry
	return s.update(KeyHistory, &history, func(found bool) (bool, error) {
		history = []schema.HistoryEntry{}
		return found, nil
	})
}

// AddBookmark saves a bookmark unless the URL is already bookmarked.
// It returns the stored bookmark and whether it was added.
func (s *Store) AddBookmark(b schema.Bookmark) (schema.Bookmark, bool, error) {
	if strings.TrimSpace(b.URL) == "" {
		return schema.Bookmark{}, false, schema.ErrInvalidRequest
	}
	var bookmarks []schema.Bookmark
	added := false
	err := s.update(KeyBookmarks, &bookmarks, func(bool) (bool, error) {
		for _, existing := range bookmarks {
			if existing.URL == b.URL {
				b = existing
				return false, nil
			}
		}
		if b.ID == "" {
			b.ID = s.newID()
		}
		if strings.TrimSpace(b.Folder) == "" {
			b.Folder = schema.DefaultBookmarkFolder
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = s.now()
		}
		bookmarks = append(bookmarks, b)
		added = true
		return true, nil
	})
	return b, added, err
}

// Bookmarks lists bookmarks in creation order.
func (s *Store) Bookmarks() ([]schema.Bookmark, error) {
	var bookmarks []schema.Bookmark
	if _, err := s.view(KeyBookmarks, &bookmarks); err != nil {
		return nil, err
	}
	if bookmarks == nil {
		bookmarks = []schema.Bookmark{}
	}
	return bookmarks, nil
}

// RemoveBookmark deletes the bookmark for url.
func (s *Store) RemoveBookmark(url string) (bool, error) {
	var bookmarks []schema.Bookmark
	removed := false
	err := s.update(KeyBookmarks, &bookmarks, func(bool) (bool, error) {
		out := bookmarks[:0]
		for _, b := range bookmarks {
			if b.URL == url {
				removed = true
				continue
			}
			out = append(out, b)
		}
		bookmarks = out
		return removed, nil
	})
	return removed, err
}

// IsBookmarked reports whether url is bookmarked.
func (s *Store) IsBookmarked(url string) (bool, error) {
	bookmarks, err := s.Bookmarks()
	if err != nil {
		return false, err
	}
	for _, b := range bookmarks {
		if b.URL == url {
			return true, nil
		}
	}
	return false, nil
}

// SaveSession replaces the persisted session.
func (s *Store) SaveSession(session schema.Session) error {
	if session.SavedAt.IsZero() {
		session.SavedAt = s.now()
	}
	if session.Tabs == nil {
		session.Tabs = []schema.SessionTab{}
	}
	var current schema.Session
	return s.update(KeySession, &current, func(bool) (bool, error) {
		current = session
		return true, nil
	})
}

// LoadSession reads the persisted session.
func (s *Store) LoadSession() (schema.Session, bool, error) {
	var session schema.Session
	found, err := s.view(KeySession, &session)
	return session, found, err
}

// Settings returns stored settings layered over the defaults.
func (s *Store) Settings() (schema.Settings, error) {
	stored := schema.Settings{}
	if _, err := s.view(KeySettings, &stored); err != nil {
		return nil, err
	}
	out := schema.DefaultSettings()
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// UpdateSettings merges patch into the stored settings. A nil value deletes the key.
func (s *Store) UpdateSettings(patch schema.Settings) (schema.Settings, error) {
	stored := schema.Settings{}
	err := s.update(KeySettings, &stored, func(bool) (bool, error) {
		if stored == nil {
			stored = schema.Settings{}
		}
		for k, v := range patch {
			if v == nil {
				delete(stored, k)
				continue
			}
			stored[k] = v
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return s.Settings()
}

// AddNote stores a note newest first.
func (s *Store) AddNote(note schema.Note) (schema.Note, error) {
	if strings.TrimSpace(note.Text) == "" {
		return schema.Note{}, schema.ErrInvalidRequest
	}
	if note.ID == "" {
		note.ID = s.newID()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = s.now()
	}
	var notes []schema.Note
	err := s.update(KeyNotes, &notes, func(bool) (bool, error) {
		notes = append([]schema.Note{note}, notes...)
		if len(notes) > schema.NotesLimit {
			notes = notes[:schema.NotesLimit]
		}
		return true, nil
	})
	return note, err
}

// Notes lists notes newest first.
func (s *Store) Notes() ([]schema.Note, error) {
	var notes []schema.Note
	if _, err := s.view(KeyNotes, &notes); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []schema.Note{}
	}
	return notes, nil
}

// DeleteNote removes the note with id.
func (s *Store) DeleteNote(id string) (bool, error) {
	var notes []schema.Note
	removed := false
	err := s.update(KeyNotes, &notes, func(bool) (bool, error) {
		out := notes[:0]
		for _, n := range notes {
			if n.ID == id {
				removed = true
				continue
			}
			out = append(out, n)
		}
		notes = out
		return removed, nil
	})
	return removed, err
}
