package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/browserx/schema"
)

func autocompleteLine(t *testing.T, text, fieldID string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"text": text, "fieldId": fieldID, "mode": "predict"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return schema.TagAutocompleteRequest + ":" + string(payload)
}

func textLine(t *testing.T, tag, text string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return tag + ":" + string(payload)
}

func TestLinkScanDeliveredToIssuingTab(t *testing.T) {
	fetched := make(chan string, 1)
	fetcher := PageFetcherFunc(func(ctx context.Context, url string) (schema.PagePreview, error) {
		fetched <- url
		return schema.PagePreview{URL: url, Title: "Test Page", Text: "A page about tests."}, nil
	})
	h := newHarness(t, withFetcher(fetcher))
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		if !strings.Contains(req.Prompt, "Title: Test Page") {
			return "", fmt.Errorf("unexpected prompt %q", req.Prompt)
		}
		return "✅ test page", nil
	}
	tab := h.createTab("example.com", false)
	other := h.createTab("example.org", false)
	surface := h.factory.surface(t, tab.ID)

	executed := 0
	surface.mu.Lock()
	for _, source := range surface.executed {
		if strings.HasPrefix(source, installMarker) {
			executed++
		}
	}
	surface.mu.Unlock()
	if want := len(h.svc.injector.set.Scripts) + 1; executed != want {
		t.Fatalf("expected %d injections, got %d", want, executed)
	}
	for name, count := range surface.installCounts() {
		if count != 1 {
			t.Fatalf("expected %s installed once, got %d", name, count)
		}
	}

	surface.console(schema.TagXRayRequest + ":https://example.com/page")
	h.settle()

	if got := <-fetched; got != "https://example.com/page" {
		t.Fatalf("expected fetch of link target, got %q", got)
	}
	posted := surface.postedMessages()
	if len(posted) != 1 {
		t.Fatalf("expected one posted message, got %+v", posted)
	}
	msg := posted[0]
	if msg.Type != schema.MsgXRayResult || msg.Summary != "✅ test page" || msg.URL != "https://example.com/page" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if got := h.factory.surface(t, other.ID).postedMessages(); len(got) != 0 {
		t.Fatalf("expected nothing posted to other tab, got %+v", got)
	}
	outcomes := h.sink.outcomes(schema.RequestLinkScan)
	if len(outcomes) != 2 || outcomes[0] != schema.OutcomeIssued || outcomes[1] != schema.OutcomeDelivered {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestLinkScanTimeoutReportsTimedOut(t *testing.T) {
	fetcher := PageFetcherFunc(func(ctx context.Context, url string) (schema.PagePreview, error) {
		return schema.PagePreview{}, &schema.TimeoutError{Op: "fetch", After: 5 * time.Second}
	})
	h := newHarness(t, withFetcher(fetcher))
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)

	surface.console(schema.TagXRayRequest + ":https://slow.example/page")
	h.settle()

	posted := surface.postedMessages()
	if len(posted) != 1 || posted[0].Type != schema.MsgXRayResult || posted[0].Summary != "⏱ Preview timed out" {
		t.Fatalf("expected timeout preview, got %+v", posted)
	}
	if len(h.backend.Calls()) != 0 {
		t.Fatalf("expected no completion after fetch timeout")
	}
	outcomes := h.sink.outcomes(schema.RequestLinkScan)
	if outcomes[len(outcomes)-1] != schema.OutcomeTimedOut {
		t.Fatalf("expected timed out outcome, got %v", outcomes)
	}
}

func TestLinkScanSkipsNonWebLinks(t *testing.T) {
	h := newHarness(t)
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	surface.console(schema.TagXRayRequest + ":javascript:void(0)")
	h.settle()
	if len(h.sink.outcomes(schema.RequestLinkScan)) != 0 {
		t.Fatalf("expected non-web link to be ignored")
	}
}

func TestBackendErrorPostsUserMessage(t *testing.T) {
	h := newHarness(t)
	h.backend.reply = func(context.Context, schema.CompletionRequest) (string, error) {
		return "", &schema.BackendError{Reason: schema.BackendRateLimited, Status: 429}
	}
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)

	surface.console(textLine(t, schema.TagAssistantRequest, "What is a monad?"))
	h.settle()

	posted := surface.postedMessages()
	if len(posted) != 1 {
		t.Fatalf("expected one message, got %+v", posted)
	}
	if posted[0].Type != schema.MsgError || posted[0].Kind != schema.RequestAssistant || posted[0].Error != "AI service is busy, try again shortly" {
		t.Fatalf("unexpected error message %+v", posted[0])
	}
	outcomes := h.sink.outcomes(schema.RequestAssistant)
	if outcomes[len(outcomes)-1] != schema.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %v", outcomes)
	}
}

func TestMissingBackendReportsNotConfigured(t *testing.T) {
	h := newHarness(t, withoutBackend())
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	surface.console(textLine(t, schema.TagTranslateRequest, "Guten Morgen"))
	h.settle()
	posted := surface.postedMessages()
	if len(posted) != 1 || posted[0].Error != "AI service is not configured" {
		t.Fatalf("expected not configured error, got %+v", posted)
	}
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	capture, logger := newCapturedLogger()
	h := newHarness(t, withLogger(logger))
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	for _, line := range []string{
		schema.TagCodeRequest + ":{not json",
		schema.TagAutocompleteRequest + `:{"text":"hello"}`,
		"plain console noise",
	} {
		surface.console(line)
	}
	h.settle()
	if calls := h.backend.Calls(); len(calls) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(calls))
	}
	if got := capture.count("bridge message dropped"); got != 2 {
		t.Fatalf("expected two dropped message logs, got %d", got)
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if len(h.sink.requests) != 0 {
		t.Fatalf("expected no request events, got %+v", h.sink.requests)
	}
}

func TestTranslateUsesShellLanguage(t *testing.T) {
	h := newHarness(t)
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		if !strings.Contains(req.Prompt, "to German") {
			return "", fmt.Errorf("unexpected prompt %q", req.Prompt)
		}
		return "Guten Tag", nil
	}
	blank := h.createTab("", false)
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)

	resp, err := h.svc.SetTranslationLanguage(context.Background(), schema.SetTranslationLanguageRequest{Language: "DE"})
	if err != nil {
		t.Fatalf("set language: %v", err)
	}
	if resp.Language != "de" || resp.Tabs != 1 {
		t.Fatalf("expected one injected tab to receive de, got %+v", resp)
	}
	surface.mu.Lock()
	lang := surface.language
	surface.mu.Unlock()
	if lang != "de" {
		t.Fatalf("expected page language de, got %q", lang)
	}
	if got := h.factory.surface(t, blank.ID).postedMessages(); len(got) != 0 {
		t.Fatalf("expected new tab page untouched, got %+v", got)
	}

	surface.console(textLine(t, schema.TagTranslateRequest, "Good day"))
	h.settle()
	posted := surface.postedMessages()
	last := posted[len(posted)-1]
	if last.Type != schema.MsgTranslationResult || last.Translation != "Guten Tag" || last.Language != "de" || last.OriginalText != "Good day" {
		t.Fatalf("unexpected translation %+v", last)
	}
	if _, err := h.svc.SetTranslationLanguage(context.Background(), schema.SetTranslationLanguageRequest{Language: "xx"}); err == nil {
		t.Fatalf("expected unsupported language error")
	}
}

func TestContextMenuAssistant(t *testing.T) {
	h := newHarness(t, withConfig(func(cfg *schema.ServiceConfig) { cfg.ContextMenuAssistant = true }))
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		return "It prints a greeting.", nil
	}
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	surface.emit(SurfaceEvent{Type: SurfaceContextMenu, Selection: "func main() { fmt.Println(\"hi\") }"})
	h.settle()

	calls := h.backend.Calls()
	if len(calls) != 1 || calls[0].req.Model != schema.DefaultModels.Large {
		t.Fatalf("expected one code explanation on the large model, got %+v", calls)
	}
	posted := surface.postedMessages()
	if len(posted) != 1 || posted[0].Type != schema.MsgAssistantResult || posted[0].Answer != "It prints a greeting." {
		t.Fatalf("unexpected posted %+v", posted)
	}
}

func TestCloseDropsPendingResult(t *testing.T) {
	h := newHarness(t)
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		if _, err := h.svc.CloseTab(context.Background(), schema.CloseTabRequest{TabID: tab.ID}); err != nil {
			return "", err
		}
		if ctx.Err() == nil {
			return "", fmt.Errorf("expected request context cancelled")
		}
		return "late answer", nil
	}

	surface.console(textLine(t, schema.TagAssistantRequest, "explain this"))
	h.settle()

	h.factory.mu.Lock()
	surfaces := append([]*fakeSurface(nil), h.factory.surfaces...)
	h.factory.mu.Unlock()
	for _, s := range surfaces {
		if got := s.postedMessages(); len(got) != 0 {
			t.Fatalf("expected nothing delivered, tab %d got %+v", s.tabID, got)
		}
	}
	outcomes := h.sink.outcomes(schema.RequestAssistant)
	if len(outcomes) != 2 || outcomes[1] != schema.OutcomeStale {
		t.Fatalf("expected issued then stale once, got %v", outcomes)
	}
	if n := h.svc.bridge.pending.count(tab.ID); n != 0 {
		t.Fatalf("expected no pending requests, got %d", n)
	}
}

func TestNavigationDropsPendingResult(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	h.svc.bridge.spawn = func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	started := make(chan struct{})
	release := make(chan struct{})
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		close(started)
		<-release
		return "func main explained", nil
	}
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)

	code, _ := json.Marshal(map[string]string{"code": "package main\nfunc main() {}", "prompt": ""})
	surface.console(schema.TagCodeRequest + ":" + string(code))
	h.settle()
	<-started

	surface.navigate("https://example.com/next", "Next")
	h.settle()
	close(release)
	wg.Wait()

	if got := surface.postedMessages(); len(got) != 0 {
		t.Fatalf("expected nothing delivered to the new document, got %+v", got)
	}
	outcomes := h.sink.outcomes(schema.RequestCodeExplain)
	if len(outcomes) != 2 || outcomes[1] != schema.OutcomeStale {
		t.Fatalf("expected issued then stale once, got %v", outcomes)
	}
}

func TestLifetimeGuardBlocksLateDelivery(t *testing.T) {
	h := newHarness(t)
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	// The document is replaced while the answer is computed; the host has not seen
	// the navigation yet, so only the in-page stamp can catch it.
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		surface.navigate("https://example.com/other", "Other")
		return "answer", nil
	}
	surface.console(textLine(t, schema.TagAssistantRequest, "what is this"))
	h.settle()

	if got := surface.postedMessages(); len(got) != 0 {
		t.Fatalf("expected nothing delivered, got %+v", got)
	}
	outcomes := h.sink.outcomes(schema.RequestAssistant)
	if outcomes[len(outcomes)-1] != schema.OutcomeStale {
		t.Fatalf("expected stale outcome, got %v", outcomes)
	}
}

func TestAutocompleteDebounce(t *testing.T) {
	h := newHarness(t)
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		return "\"hello world\"", nil
	}
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	start := h.clock.Now()

	texts := []string{"hel", "hell", "hello", "hello ", "hello w", "hello wo"}
	for i, text := range texts {
		surface.console(autocompleteLine(t, text, "f1"))
		h.settle()
		if i < len(texts)-1 {
			h.clock.Advance(100 * time.Millisecond)
		}
	}
	h.clock.Advance(599 * time.Millisecond)
	if calls := h.backend.Calls(); len(calls) != 0 {
		t.Fatalf("expected no call before the quiet period, got %d", len(calls))
	}
	h.clock.Advance(time.Millisecond)

	calls := h.backend.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one call, got %d", len(calls))
	}
	if want := start.Add(1100 * time.Millisecond); !calls[0].at.Equal(want) {
		t.Fatalf("expected call at +1100ms, got +%s", calls[0].at.Sub(start))
	}
	if !strings.HasSuffix(calls[0].req.Prompt, "hello wo") || calls[0].req.Model != schema.DefaultModels.Complete {
		t.Fatalf("unexpected request %+v", calls[0].req)
	}
	posted := surface.postedMessages()
	if len(posted) != 1 {
		t.Fatalf("expected one suggestion, got %+v", posted)
	}
	if posted[0].Type != schema.MsgAutocompleteResult || posted[0].FieldID != "f1" || posted[0].Input != "hello wo" || posted[0].Suggestion != "rld" {
		t.Fatalf("unexpected suggestion %+v", posted[0])
	}

	h.clock.Advance(5 * time.Second)
	if got := len(h.backend.Calls()); got != 1 {
		t.Fatalf("expected no further calls, got %d", got)
	}
}

func TestAutocompleteShortInputIsIgnored(t *testing.T) {
	h := newHarness(t)
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	surface.console(autocompleteLine(t, "hello", "f1"))
	surface.console(autocompleteLine(t, "he", "f1"))
	h.settle()
	h.clock.Advance(2 * time.Second)
	if got := len(h.backend.Calls()); got != 0 {
		t.Fatalf("expected no call for short input, got %d", got)
	}
}

func TestAutocompleteQueuesLatestIntent(t *testing.T) {
	h := newHarness(t)
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	_, gen, _ := h.svc.resolveTab(tab.ID)
	inflight := 0
	maxInflight := 0
	var mu sync.Mutex
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		mu.Lock()
		inflight++
		maxInflight = max(maxInflight, inflight)
		first := len(h.backend.Calls()) == 1
		mu.Unlock()
		defer func() {
			mu.Lock()
			inflight--
			mu.Unlock()
		}()
		if first {
			// The user keeps typing while the first completion is in flight.
			h.svc.bridge.handleConsole(context.Background(), tab.ID, gen, autocompleteLine(t, "the quick brown", "f1"))
			h.clock.Advance(time.Second)
			return "fox", nil
		}
		return "fox jumps", nil
	}

	surface.console(autocompleteLine(t, "the quick", "f1"))
	h.settle()
	h.clock.Advance(600 * time.Millisecond)

	calls := h.backend.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two sequential calls, got %d", len(calls))
	}
	if !strings.HasSuffix(calls[1].req.Prompt, "the quick brown") {
		t.Fatalf("expected follow-up for latest input, got %q", calls[1].req.Prompt)
	}
	if maxInflight != 1 {
		t.Fatalf("expected at most one call in flight, got %d", maxInflight)
	}
	posted := surface.postedMessages()
	if len(posted) != 1 || posted[0].Input != "the quick brown" || posted[0].Suggestion != "fox jumps" {
		t.Fatalf("expected only the latest suggestion, got %+v", posted)
	}
	outcomes := h.sink.outcomes(schema.RequestAutocomplete)
	want := []schema.RequestOutcome{schema.OutcomeIssued, schema.OutcomeSuperseded, schema.OutcomeIssued, schema.OutcomeDelivered}
	if fmt.Sprint(outcomes) != fmt.Sprint(want) {
		t.Fatalf("expected outcomes %v, got %v", want, outcomes)
	}
}

func TestAutocompleteTabSwitchDoesNotLeak(t *testing.T) {
	h := newHarness(t)
	first := h.createTab("example.com", false)
	second := h.createTab("example.org", false)
	h.backend.reply = func(ctx context.Context, req schema.CompletionRequest) (string, error) {
		if _, err := h.svc.SwitchTab(context.Background(), schema.SwitchTabRequest{TabID: second.ID}); err != nil {
			return "", err
		}
		return "weather today", nil
	}
	firstSurface := h.factory.surface(t, first.ID)
	firstSurface.console(autocompleteLine(t, "what is the", "q"))
	h.settle()
	h.clock.Advance(600 * time.Millisecond)

	if got := h.list().ActiveTab; got != second.ID {
		t.Fatalf("expected second tab active, got %d", got)
	}
	if got := h.factory.surface(t, second.ID).postedMessages(); len(got) != 0 {
		t.Fatalf("expected nothing posted into the second tab, got %+v", got)
	}
	posted := firstSurface.postedMessages()
	if len(posted) != 1 || posted[0].FieldID != "q" {
		t.Fatalf("expected suggestion kept in the issuing tab, got %+v", posted)
	}
}

func TestAutocompleteResetOnNavigation(t *testing.T) {
	h := newHarness(t)
	tab := h.createTab("example.com", false)
	surface := h.factory.surface(t, tab.ID)
	surface.console(autocompleteLine(t, "pending words", "f1"))
	h.settle()
	surface.navigate("https://example.com/next", "Next")
	h.settle()
	h.clock.Advance(time.Second)
	if got := len(h.backend.Calls()); got != 0 {
		t.Fatalf("expected pending keystroke dropped on navigation, got %d calls", got)
	}
}
