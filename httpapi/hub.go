package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                   `json:"seq"`
	Type      string                   `json:"type"`
	Tab       *schema.TabEvent         `json:"tab,omitempty"`
	Layout    *schema.LayoutEvent      `json:"layout,omitempty"`
	Request   *schema.RequestEvent     `json:"request,omitempty"`
	Snapshot  *schema.ListTabsResponse `json:"snapshot,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// Hub keeps a bounded event history for SSE replay and broadcasts to subscribers.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
		now:         time.Now,
	}
}

// OnTabEvent implements core.EventSink.
func (h *Hub) OnTabEvent(event schema.TabEvent) {
	logx.WithTab(context.Background(), event.Tab.ID).Trace("hub tab event", "type", event.Type, "active", int64(event.ActiveTab))
	h.publish(StreamEvent{Type: "tab", Tab: &event})
}

// OnLayoutEvent implements core.EventSink.
func (h *Hub) OnLayoutEvent(event schema.LayoutEvent) {
	h.publish(StreamEvent{Type: "layout", Layout: &event})
}

// OnRequestEvent implements core.EventSink.
func (h *Hub) OnRequestEvent(event schema.RequestEvent) {
	logx.WithRequest(context.Background(), event.TabID, event.ID, event.Kind).Trace("hub request event", "outcome", event.Outcome)
	h.publish(StreamEvent{Type: "request", Request: &event})
}

// Subscribe registers a subscriber and returns its channel and cancel func.
func (h *Hub) Subscribe() (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	log := logx.Ctx(context.Background())
	log.Debug("hub subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Debug("hub unsubscribe", "subs", remaining)
		})
	}
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	return events
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	event.Seq = h.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now()
	}
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		logx.Ctx(context.Background()).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}
