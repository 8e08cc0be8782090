package core

import "pkt.systems/browserx/schema"

// EventSink receives tab, layout, and request events from the core service.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
	OnLayoutEvent(event schema.LayoutEvent)
	OnRequestEvent(event schema.RequestEvent)
}
