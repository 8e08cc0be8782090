package core

import (
	"context"
	"sync"
	"time"

	"pkt.systems/browserx/schema"
)

// pendingRequest is a bridged page request awaiting its backend answer. It is
// bound to the tab, surface, and page lifetime that issued it.
type pendingRequest struct {
	id       schema.RequestID
	tabID    schema.TabID
	gen      schema.Generation
	surface  Surface
	msg      schema.PageMessage
	issuedAt time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

type pendingSet struct {
	mu    sync.Mutex
	items map[schema.RequestID]*pendingRequest
}

func newPendingSet() *pendingSet {
	return &pendingSet{items: make(map[schema.RequestID]*pendingRequest)}
}

func (p *pendingSet) add(req *pendingRequest) {
	p.mu.Lock()
	p.items[req.id] = req
	p.mu.Unlock()
}

// take removes the request and reports whether it was still pending.
func (p *pendingSet) take(id schema.RequestID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return false
	}
	delete(p.items, id)
	return true
}

// discard removes and cancels the tab's requests matching drop.
func (p *pendingSet) discard(tabID schema.TabID, drop func(*pendingRequest) bool) []*pendingRequest {
	p.mu.Lock()
	var removed []*pendingRequest
	for id, req := range p.items {
		if req.tabID != tabID || (drop != nil && !drop(req)) {
			continue
		}
		delete(p.items, id)
		removed = append(removed, req)
	}
	p.mu.Unlock()
	for _, req := range removed {
		req.cancel()
	}
	return removed
}

func (p *pendingSet) discardAll() []*pendingRequest {
	p.mu.Lock()
	removed := make([]*pendingRequest, 0, len(p.items))
	for id, req := range p.items {
		delete(p.items, id)
		removed = append(removed, req)
	}
	p.mu.Unlock()
	for _, req := range removed {
		req.cancel()
	}
	return removed
}

func (p *pendingSet) count(tabID schema.TabID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, req := range p.items {
		if req.tabID == tabID {
			n++
		}
	}
	return n
}
