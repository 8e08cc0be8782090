package browserx

import (
	"pkt.systems/browserx/core"
	"pkt.systems/browserx/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTabEvent(event)
	}
}

func (f eventFanout) OnLayoutEvent(event schema.LayoutEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnLayoutEvent(event)
	}
}

func (f eventFanout) OnRequestEvent(event schema.RequestEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnRequestEvent(event)
	}
}

// joinSinks drops nil and duplicate sinks and avoids wrapping a single one.
func joinSinks(sinks ...core.EventSink) core.EventSink {
	out := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == sink {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, sink)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return &eventFanout{sinks: out}
}
