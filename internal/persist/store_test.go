package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pkt.systems/browserx/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreRequiresDir(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestSessionLoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing session")
	}
}

func TestSessionSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	saved := schema.Session{
		Tabs:        []schema.SessionTab{{URL: "https://example.com", Title: "Example"}},
		ActiveIndex: 0,
		SavedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := store.SaveSession(saved); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.LoadSession()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(got.Tabs) != 1 || got.Tabs[0].URL != "https://example.com" || !got.SavedAt.Equal(saved.SavedAt) {
		t.Fatalf("session mismatch: %+v", got)
	}
	info, err := os.Stat(filepath.Join(store.dir, "session.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	store := newTestStore(t)
	path := filepath.Join(store.dir, "session.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o600); err != nil {
		t.Fatalf("write bad json: %v", err)
	}
	if _, _, err := store.LoadSession(); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestHistoryDedupesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	for _, url := range []string{"https://a.test", "https://b.test", "https://a.test"} {
		if err := store.AddHistory(schema.HistoryEntry{URL: url, Title: url}); err != nil {
			t.Fatalf("add history: %v", err)
		}
	}
	history, err := store.History("", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].URL != "https://a.test" || history[1].URL != "https://b.test" {
		t.Fatalf("unexpected order: %+v", history)
	}
	matches, err := store.History("B.TEST", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].URL != "https://b.test" {
		t.Fatalf("unexpected search result: %+v", matches)
	}
	removed, err := store.DeleteHistory("https://b.test")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if err := store.ClearHistory(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	history, _ = store.History("", 0)
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
}

func TestHistoryIsCapped(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < schema.HistoryLimit+5; i++ {
		if err := store.AddHistory(schema.HistoryEntry{URL: fmt.Sprintf("https://site.test/%d", i)}); err != nil {
			t.Fatalf("add history: %v", err)
		}
	}
	history, err := store.History("", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != schema.HistoryLimit {
		t.Fatalf("expected %d entries, got %d", schema.HistoryLimit, len(history))
	}
	if history[0].URL != fmt.Sprintf("https://site.test/%d", schema.HistoryLimit+4) {
		t.Fatalf("expected newest first, got %s", history[0].URL)
	}
}

func TestRecordable(t *testing.T) {
	cases := map[string]bool{
		"https://example.com": true,
		"about:blank":         false,
		"file:///etc/hosts":   false,
		"":                    false,
		"browserx://newtab":   false,
	}
	for url, want := range cases {
		if got := Recordable(url, "browserx://newtab"); got != want {
			t.Fatalf("Recordable(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestBookmarksSkipDuplicates(t *testing.T) {
	store := newTestStore(t)
	first, added, err := store.AddBookmark(schema.Bookmark{URL: "https://example.com", Title: "Example"})
	if err != nil || !added {
		t.Fatalf("add: added=%v err=%v", added, err)
	}
	if first.Folder != schema.DefaultBookmarkFolder || first.ID == "" {
		t.Fatalf("expected defaults applied, got %+v", first)
	}
	again, added, err := store.AddBookmark(schema.Bookmark{URL: "https://example.com", Title: "Other"})
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if added || again.ID != first.ID {
		t.Fatalf("expected existing bookmark, got added=%v %+v", added, again)
	}
	ok, err := store.IsBookmarked("https://example.com")
	if err != nil || !ok {
		t.Fatalf("expected bookmarked, ok=%v err=%v", ok, err)
	}
	removed, err := store.RemoveBookmark("https://example.com")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	list, err := store.Bookmarks()
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no bookmarks, got %v err=%v", list, err)
	}
}

func TestSettingsMergeDefaults(t *testing.T) {
	store := newTestStore(t)
	settings, err := store.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.String(schema.SettingSearchEngine) != "google" {
		t.Fatalf("expected default search engine, got %+v", settings)
	}
	updated, err := store.UpdateSettings(schema.Settings{schema.SettingRestoreSession: true, "custom": "x"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Bool(schema.SettingRestoreSession) || updated.String("custom") != "x" {
		t.Fatalf("unexpected settings %+v", updated)
	}
	updated, err = store.UpdateSettings(schema.Settings{"custom": nil})
	if err != nil {
		t.Fatalf("update delete: %v", err)
	}
	if _, ok := updated["custom"]; ok {
		t.Fatalf("expected custom key removed")
	}
}

func TestNotesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	first, err := store.AddNote(schema.Note{Text: "one"})
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if _, err := store.AddNote(schema.Note{Text: "two"}); err != nil {
		t.Fatalf("add note: %v", err)
	}
	if _, err := store.AddNote(schema.Note{Text: "  "}); err == nil {
		t.Fatalf("expected empty note rejected")
	}
	notes, err := store.Notes()
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(notes) != 2 || notes[0].Text != "two" {
		t.Fatalf("unexpected notes %+v", notes)
	}
	removed, err := store.DeleteNote(first.ID)
	if err != nil || !removed {
		t.Fatalf("delete note: removed=%v err=%v", removed, err)
	}
}

func TestConcurrentHistoryWritesAreSerialized(t *testing.T) {
	store := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AddHistory(schema.HistoryEntry{URL: fmt.Sprintf("https://c.test/%d", i)})
		}(i)
	}
	wg.Wait()
	history, err := store.History("", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(history))
	}
}
