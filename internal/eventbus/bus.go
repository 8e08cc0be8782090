package eventbus

import (
	"context"
	"sync"

	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle updates.
	EventTab EventType = "tab"
	// EventLayout carries recomputed chrome geometry.
	EventLayout EventType = "layout"
	// EventRequest carries bridged AI request progress.
	EventRequest EventType = "request"
)

// Event represents a shell-facing event emitted by the core service.
type Event struct {
	Type    EventType            `json:"type"`
	Tab     *schema.TabEvent     `json:"tab,omitempty"`
	Layout  *schema.LayoutEvent  `json:"layout,omitempty"`
	Request *schema.RequestEvent `json:"request,omitempty"`
}

// Bus fans out events to subscribers without blocking the publisher.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(Event{Type: EventTab, Tab: &event})
}

// OnLayoutEvent publishes a layout event.
func (b *Bus) OnLayoutEvent(event schema.LayoutEvent) {
	b.publish(Event{Type: EventLayout, Layout: &event})
}

// OnRequestEvent publishes a bridge request event.
func (b *Bus) OnRequestEvent(event schema.RequestEvent) {
	b.publish(Event{Type: EventRequest, Request: &event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
