package core

import (
	"time"

	"pkt.systems/browserx/schema"
)

// tab tracks one content surface and the page it shows.
type tab struct {
	ID         schema.TabID
	URL        string
	Title      string
	Status     schema.TabStatus
	Generation schema.Generation
	LoadError  string
	CreatedAt  time.Time
	surface    Surface
	// injected is the page lifetime that already received the page scripts.
	injected schema.Generation
	closed   bool
	done     chan struct{}
}

func newTab(id schema.TabID, surface Surface, url string, now time.Time) *tab {
	return &tab{
		ID:        id,
		URL:       url,
		Status:    schema.TabStatusLoading,
		CreatedAt: now,
		surface:   surface,
		done:      make(chan struct{}),
	}
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(active bool) schema.TabSnapshot {
	return schema.TabSnapshot{
		ID:         t.ID,
		URL:        t.URL,
		Title:      t.Title,
		Status:     t.Status,
		Active:     active,
		Generation: t.Generation,
		LoadError:  t.LoadError,
		CreatedAt:  t.CreatedAt,
	}
}
