package core

import (
	"context"
	"strings"
	"unicode/utf8"

	"pkt.systems/browserx/schema"
)

// autocompleteIntent is the newest completion wanted for a tab.
type autocompleteIntent struct {
	msg schema.PageMessage
	gen schema.Generation
}

func intentKey(msg schema.PageMessage) string {
	return msg.FieldID + "\x00" + msg.Text
}

// autocompleteState coalesces keystrokes of one tab. At most one completion is in
// flight; input that arrives meanwhile waits as the latest intent.
type autocompleteState struct {
	base     context.Context
	gen      schema.Generation
	timer    timer
	seq      uint64
	latest   *autocompleteIntent
	due      bool
	inflight *pendingRequest
	issued   string
	lastSeen string
}

func (st *autocompleteState) reset() {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.seq++
	st.latest = nil
	st.due = false
	st.inflight = nil
	st.issued = ""
	st.lastSeen = ""
}

// autocomplete records a keystroke and restarts the quiet period.
func (b *bridge) autocomplete(ctx context.Context, tabID schema.TabID, gen schema.Generation, msg schema.PageMessage) {
	minChars := b.cfg.minChars
	if msg.Mode == schema.AutocompleteCompose {
		minChars = b.cfg.composeMinChars
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.auto[tabID]
	if st == nil {
		st = &autocompleteState{gen: gen}
		b.auto[tabID] = st
	}
	if st.gen != gen {
		st.reset()
		st.gen = gen
	}
	st.base = ctx
	st.lastSeen = intentKey(msg)
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.due = false
	st.seq++
	if utf8.RuneCountInString(strings.TrimSpace(msg.Text)) < minChars {
		st.latest = nil
		return
	}
	st.latest = &autocompleteIntent{msg: msg, gen: gen}
	seq := st.seq
	st.timer = b.clock.afterFunc(b.cfg.quietPeriod, func() { b.quietPeriodElapsed(tabID, seq) })
}

func (b *bridge) quietPeriodElapsed(tabID schema.TabID, seq uint64) {
	b.mu.Lock()
	st := b.auto[tabID]
	if st == nil || st.seq != seq {
		b.mu.Unlock()
		return
	}
	st.timer = nil
	if st.inflight != nil {
		st.due = true
		b.mu.Unlock()
		return
	}
	req := b.takeLatestLocked(tabID, st)
	b.mu.Unlock()
	if req != nil {
		b.start(req)
	}
}

func (b *bridge) takeLatestLocked(tabID schema.TabID, st *autocompleteState) *pendingRequest {
	intent := st.latest
	st.latest = nil
	st.due = false
	if intent == nil {
		return nil
	}
	req := b.prepare(st.base, tabID, intent.gen, intent.msg)
	if req == nil {
		return nil
	}
	st.inflight = req
	st.issued = intentKey(intent.msg)
	return req
}

// autocompleteSettled releases the in-flight slot. It reports whether the answer no
// longer matches the field and whether a newer intent is ready to go out.
func (b *bridge) autocompleteSettled(req *pendingRequest) (superseded bool, next bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.auto[req.tabID]
	if st == nil || st.inflight != req {
		return true, false
	}
	st.inflight = nil
	superseded = st.lastSeen != intentKey(req.msg)
	if st.due && st.latest != nil {
		if intentKey(st.latest.msg) == st.issued {
			st.latest = nil
			st.due = false
		} else {
			next = true
		}
	}
	return superseded, next
}

func (b *bridge) issueLatest(tabID schema.TabID) {
	b.mu.Lock()
	st := b.auto[tabID]
	if st == nil || st.inflight != nil || !st.due {
		b.mu.Unlock()
		return
	}
	req := b.takeLatestLocked(tabID, st)
	b.mu.Unlock()
	if req != nil {
		b.start(req)
	}
}

func (b *bridge) resetAutocomplete(tabID schema.TabID, remove bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.auto[tabID]
	if st == nil {
		return
	}
	st.reset()
	if remove {
		delete(b.auto, tabID)
	}
}
