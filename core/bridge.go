package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/internal/metrics"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

// tabResolver reports the live surface and page lifetime of a tab.
type tabResolver interface {
	resolveTab(id schema.TabID) (Surface, schema.Generation, bool)
}

type bridgeConfig struct {
	models          schema.ModelSet
	quietPeriod     time.Duration
	minChars        int
	composeMinChars int
	linkScanTimeout time.Duration
	backendTimeout  time.Duration
	scriptTimeout   time.Duration
}

// bridge routes tagged page requests to the backend and posts answers back into the
// page that asked, provided that page is still alive.
type bridge struct {
	tabs     tabResolver
	backend  Backend
	fetcher  PageFetcher
	cfg      bridgeConfig
	language func() schema.LanguageCode
	sink     EventSink
	metrics  *metrics.Metrics
	pending  *pendingSet
	clock    clock
	spawn    func(func())
	newID    func() schema.RequestID

	mu   sync.Mutex
	auto map[schema.TabID]*autocompleteState
}

func newBridge(tabs tabResolver, backend Backend, fetcher PageFetcher, cfg bridgeConfig, language func() schema.LanguageCode, sink EventSink, m *metrics.Metrics) *bridge {
	return &bridge{
		tabs:     tabs,
		backend:  backend,
		fetcher:  fetcher,
		cfg:      cfg,
		language: language,
		sink:     sink,
		metrics:  m,
		pending:  newPendingSet(),
		clock:    realClock(),
		spawn:    func(f func()) { go f() },
		newID:    func() schema.RequestID { return schema.RequestID(uuid.NewString()) },
		auto:     make(map[schema.TabID]*autocompleteState),
	}
}

// handleConsole parses a console line from a tab and dispatches it. gen is the page
// lifetime the line was received in.
func (b *bridge) handleConsole(ctx context.Context, tabID schema.TabID, gen schema.Generation, line string) {
	msg, err := ParsePageMessage(line)
	if err != nil {
		if errors.Is(err, schema.ErrNotTagged) {
			return
		}
		b.metrics.ParseError()
		logx.WithTab(ctx, tabID).Warn("bridge message dropped", "err", err)
		return
	}
	b.dispatch(ctx, tabID, gen, msg)
}

func (b *bridge) dispatch(ctx context.Context, tabID schema.TabID, gen schema.Generation, msg schema.PageMessage) {
	ctx = context.WithoutCancel(ctx)
	if msg.Kind == schema.RequestAutocomplete {
		b.autocomplete(ctx, tabID, gen, msg)
		return
	}
	if msg.Kind == schema.RequestLinkScan && !isWebURL(msg.URL) {
		logx.WithTab(ctx, tabID).Debug("bridge link scan skipped", "url", msg.URL)
		return
	}
	if req := b.prepare(ctx, tabID, gen, msg); req != nil {
		b.start(req)
	}
}

// prepare binds a request to the tab's current surface, or returns nil when the
// issuing page is already gone.
func (b *bridge) prepare(ctx context.Context, tabID schema.TabID, gen schema.Generation, msg schema.PageMessage) *pendingRequest {
	surface, current, ok := b.tabs.resolveTab(tabID)
	if !ok || current != gen {
		logx.WithTab(ctx, tabID).Debug("bridge request dropped", "kind", string(msg.Kind), "reason", "page gone")
		return nil
	}
	timeout := b.cfg.backendTimeout
	if msg.Kind == schema.RequestLinkScan {
		timeout = b.cfg.linkScanTimeout
	}
	id := b.newID()
	rctx := logx.ContextWithRequest(logx.ContextWithTab(ctx, tabID), id)
	rctx = pslog.ContextWithLogger(rctx, logx.WithRequest(ctx, tabID, id, msg.Kind))
	rctx, cancel := context.WithTimeout(rctx, timeout)
	return &pendingRequest{
		id:       id,
		tabID:    tabID,
		gen:      gen,
		surface:  surface,
		msg:      msg,
		issuedAt: b.clock.now(),
		ctx:      rctx,
		cancel:   cancel,
	}
}

func (b *bridge) start(req *pendingRequest) {
	b.pending.add(req)
	b.metrics.Request(string(req.msg.Kind))
	b.emit(req, schema.OutcomeIssued, "")
	logx.Ctx(req.ctx).Debug("bridge request issued")
	b.spawn(func() { b.run(req) })
}

func (b *bridge) run(req *pendingRequest) {
	started := b.clock.now()
	msg, outcome := b.execute(req)
	b.metrics.ObserveBackend(string(req.msg.Kind), b.clock.now().Sub(started))
	b.finish(req, msg, outcome)
}

// execute performs the backend work and renders the message for the page.
func (b *bridge) execute(req *pendingRequest) (schema.HostMessage, schema.RequestOutcome) {
	ctx := req.ctx
	msg := req.msg
	if b.backend == nil {
		return b.failure(req, schema.ErrBackendUnavailable)
	}
	switch msg.Kind {
	case schema.RequestLinkScan:
		return b.linkScan(req)
	case schema.RequestCodeExplain:
		answer, err := b.backend.Complete(ctx, codeExplainRequest(b.cfg.models, msg))
		if err != nil {
			return b.failure(req, err)
		}
		return schema.HostMessage{Type: schema.MsgCodeExplanationResult, RequestID: req.id, Explanation: answer}, schema.OutcomeDelivered
	case schema.RequestAssistant:
		answer, err := b.backend.Complete(ctx, assistantRequest(b.cfg.models, msg))
		if err != nil {
			return b.failure(req, err)
		}
		return schema.HostMessage{Type: schema.MsgAssistantResult, RequestID: req.id, Answer: answer, OriginalText: msg.Text}, schema.OutcomeDelivered
	case schema.RequestTranslate:
		answer, err := b.backend.Complete(ctx, translateRequest(b.cfg.models, msg, b.language()))
		if err != nil {
			return b.failure(req, err)
		}
		lang := msg.TargetLanguage
		if lang == "" {
			lang = b.language()
		}
		return schema.HostMessage{Type: schema.MsgTranslationResult, RequestID: req.id, Translation: answer, OriginalText: msg.Text, Language: lang}, schema.OutcomeDelivered
	case schema.RequestAutocomplete:
		answer, err := b.backend.Complete(ctx, autocompleteRequest(b.cfg.models, msg))
		if err != nil {
			logx.Ctx(ctx).Debug("autocomplete failed", "err", err)
			if schema.IsTimeout(err) {
				return schema.HostMessage{}, schema.OutcomeTimedOut
			}
			return schema.HostMessage{}, schema.OutcomeFailed
		}
		return schema.HostMessage{
			Type:       schema.MsgAutocompleteResult,
			RequestID:  req.id,
			Suggestion: cleanSuggestion(msg.Text, answer),
			Input:      msg.Text,
			FieldID:    msg.FieldID,
		}, schema.OutcomeDelivered
	default:
		return b.failure(req, schema.ErrInvalidRequest)
	}
}

func (b *bridge) linkScan(req *pendingRequest) (schema.HostMessage, schema.RequestOutcome) {
	ctx := req.ctx
	url := req.msg.URL
	result := func(summary string, outcome schema.RequestOutcome) (schema.HostMessage, schema.RequestOutcome) {
		return schema.HostMessage{Type: schema.MsgXRayResult, RequestID: req.id, URL: url, Summary: summary}, outcome
	}
	fail := func(err error) (schema.HostMessage, schema.RequestOutcome) {
		if schema.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logx.Ctx(ctx).Debug("link scan timed out", "err", err)
			return result("⏱ Preview timed out", schema.OutcomeTimedOut)
		}
		logx.Ctx(ctx).Debug("link scan failed", "err", err)
		return result("⚠️ "+userMessage(err), schema.OutcomeFailed)
	}
	preview := schema.PagePreview{URL: url}
	if b.fetcher != nil {
		fetched, err := b.fetcher.Fetch(ctx, url)
		if err != nil {
			return fail(err)
		}
		preview = fetched
		if preview.URL == "" {
			preview.URL = url
		}
	}
	answer, err := b.backend.Complete(ctx, linkScanRequest(b.cfg.models, preview))
	if err != nil {
		return fail(err)
	}
	return result(answer, schema.OutcomeDelivered)
}

func (b *bridge) failure(req *pendingRequest, err error) (schema.HostMessage, schema.RequestOutcome) {
	outcome := schema.OutcomeFailed
	if schema.IsTimeout(err) {
		outcome = schema.OutcomeTimedOut
	}
	logx.Ctx(req.ctx).Warn("bridge request failed", "err", err)
	return schema.HostMessage{
		Type:      schema.MsgError,
		RequestID: req.id,
		Kind:      req.msg.Kind,
		Error:     userMessage(err),
	}, outcome
}

// finish delivers the answer if the page that asked is still the tab's current page.
func (b *bridge) finish(req *pendingRequest, msg schema.HostMessage, outcome schema.RequestOutcome) {
	defer req.cancel()
	log := logx.Ctx(req.ctx)
	superseded := false
	if req.msg.Kind == schema.RequestAutocomplete {
		var next bool
		superseded, next = b.autocompleteSettled(req)
		if next {
			defer b.issueLatest(req.tabID)
		}
	}
	if !b.pending.take(req.id) {
		// Already settled by whoever discarded it.
		log.Debug("bridge result dropped", "reason", "discarded")
		return
	}
	surface, gen, ok := b.tabs.resolveTab(req.tabID)
	if !ok || gen != req.gen || surface != req.surface {
		log.Debug("bridge result dropped", "reason", "page gone", "issued_generation", uint64(req.gen))
		b.settle(req, schema.OutcomeStale, "")
		return
	}
	if superseded {
		log.Debug("bridge result dropped", "reason", "input changed")
		b.settle(req, schema.OutcomeSuperseded, "")
		return
	}
	if msg.Type == "" {
		b.settle(req, outcome, "")
		return
	}
	script, err := deliveryScript(lifetimeToken(req.tabID, req.gen), msg)
	if err != nil {
		log.Warn("bridge result encode failed", "err", err)
		b.settle(req, schema.OutcomeFailed, err.Error())
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(req.ctx), b.cfg.scriptTimeout)
	raw, err := surface.ExecuteScript(dctx, script)
	cancel()
	if err != nil {
		log.Debug("bridge result dropped", "reason", "script", "err", err)
		b.settle(req, schema.OutcomeStale, "")
		return
	}
	if !delivered(raw) {
		log.Debug("bridge result dropped", "reason", "lifetime mismatch")
		b.settle(req, schema.OutcomeStale, "")
		return
	}
	log.Debug("bridge result delivered", "outcome", string(outcome), "elapsed", b.clock.now().Sub(req.issuedAt))
	message := ""
	if msg.Type == schema.MsgError {
		message = msg.Error
	}
	b.settle(req, outcome, message)
}

func (b *bridge) settle(req *pendingRequest, outcome schema.RequestOutcome, message string) {
	b.metrics.Outcome(string(req.msg.Kind), string(outcome))
	b.emit(req, outcome, message)
}

func (b *bridge) emit(req *pendingRequest, outcome schema.RequestOutcome, message string) {
	if b.sink == nil {
		return
	}
	b.sink.OnRequestEvent(schema.RequestEvent{
		ID:      req.id,
		TabID:   req.tabID,
		Kind:    req.msg.Kind,
		Outcome: outcome,
		Message: message,
	})
}

// discardTab drops every pending request and debounce state of a closed tab.
func (b *bridge) discardTab(tabID schema.TabID) {
	b.resetAutocomplete(tabID, true)
	for _, req := range b.pending.discard(tabID, nil) {
		b.settle(req, schema.OutcomeStale, "")
	}
}

// pageChanged drops requests issued by earlier page lifetimes of the tab.
func (b *bridge) pageChanged(tabID schema.TabID, gen schema.Generation) {
	b.resetAutocomplete(tabID, false)
	for _, req := range b.pending.discard(tabID, func(req *pendingRequest) bool { return req.gen < gen }) {
		b.settle(req, schema.OutcomeStale, "")
	}
}

// deliver posts a host initiated message into the tab's current page.
func (b *bridge) deliver(ctx context.Context, tabID schema.TabID, msg schema.HostMessage) error {
	surface, gen, ok := b.tabs.resolveTab(tabID)
	if !ok {
		return schema.ErrTabNotFound
	}
	script, err := deliveryScript(lifetimeToken(tabID, gen), msg)
	if err != nil {
		return err
	}
	dctx, cancel := context.WithTimeout(ctx, b.cfg.scriptTimeout)
	defer cancel()
	raw, err := surface.ExecuteScript(dctx, script)
	if err != nil {
		return err
	}
	if !delivered(raw) {
		return &schema.ScriptError{Err: errors.New("page lifetime changed")}
	}
	return nil
}

func (b *bridge) close() {
	b.mu.Lock()
	for id, st := range b.auto {
		st.reset()
		delete(b.auto, id)
	}
	b.mu.Unlock()
	b.pending.discardAll()
}

func userMessage(err error) string {
	var backendErr *schema.BackendError
	switch {
	case err == nil:
		return ""
	case schema.IsTimeout(err):
		return "AI service took too long to answer"
	case errors.As(err, &backendErr):
		return backendErr.UserMessage()
	case errors.Is(err, schema.ErrBackendUnavailable):
		return "AI service is not configured"
	default:
		return "AI request failed"
	}
}
