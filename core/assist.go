package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/schema"
)

const pageTextScript = `(function () { return document.body ? document.body.innerText : ""; })()`

// minQuoteRunes rejects replies too short to be a passage from the page.
const minQuoteRunes = 5

func (s *service) SmartSearch(ctx context.Context, req schema.SmartSearchRequest) (schema.SmartSearchResponse, error) {
	if ctx == nil {
		return schema.SmartSearchResponse{}, errors.New("missing context")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return schema.SmartSearchResponse{}, schema.ErrEmptyInput
	}
	id := req.TabID
	if id == 0 {
		s.mu.Lock()
		id = s.state.active
		s.mu.Unlock()
		if id == 0 {
			return schema.SmartSearchResponse{}, schema.ErrNoTabs
		}
	}
	log := logx.WithTab(ctx, id)
	surface, gen, ok := s.resolveTab(id)
	if !ok {
		return schema.SmartSearchResponse{}, schema.ErrTabNotFound
	}
	if s.backend == nil {
		return schema.SmartSearchResponse{}, schema.ErrBackendUnavailable
	}
	resp := schema.SmartSearchResponse{TabID: id}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.ScriptTimeout)
	raw, err := surface.ExecuteScript(sctx, pageTextScript)
	cancel()
	if err != nil {
		log.Warn("service smart search read failed", "err", err)
		return schema.SmartSearchResponse{}, err
	}
	var text string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &text); err != nil {
			return schema.SmartSearchResponse{}, &schema.ParseError{Tag: "page text", Err: err}
		}
	}
	if strings.TrimSpace(text) == "" {
		log.Info("service smart search skipped", "reason", "empty page")
		resp.Reason = schema.SmartSearchEmptyPage
		return resp, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()
	answer, err := s.backend.Complete(cctx, smartSearchRequest(s.cfg.Models, query, text))
	if err != nil {
		log.Warn("service smart search failed", "err", err)
		return schema.SmartSearchResponse{}, err
	}
	quote := cleanQuote(answer)
	if strings.Contains(answer, notFoundMarker) || utf8.RuneCountInString(quote) < minQuoteRunes {
		log.Info("service smart search ok", "found", false)
		resp.Reason = schema.SmartSearchNoMatch
		return resp, nil
	}
	resp.Found = true
	resp.Quote = quote
	resp.Highlighted = s.highlight(ctx, id, gen, quote)
	log.Info("service smart search ok", "found", true, "highlighted", resp.Highlighted)
	return resp, nil
}

// highlight selects quote in the page if the tab still shows the document the
// text was read from.
func (s *service) highlight(ctx context.Context, id schema.TabID, gen schema.Generation, quote string) bool {
	surface, current, ok := s.resolveTab(id)
	if !ok || current != gen {
		logx.WithTab(ctx, id).Info("service smart search stale", "generation", int64(gen), "current", int64(current))
		return false
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.ScriptTimeout)
	defer cancel()
	raw, err := surface.ExecuteScript(sctx, findScript(quote))
	if err != nil {
		logx.WithTab(ctx, id).Debug("service smart search highlight failed", "err", err)
		return false
	}
	var found bool
	_ = json.Unmarshal(raw, &found)
	return found
}

func findScript(quote string) string {
	literal, _ := json.Marshal(quote)
	return fmt.Sprintf(`(function (q) {
  if (typeof window.find !== "function") return false;
  var sel = window.getSelection();
  if (sel) sel.removeAllRanges();
  return window.find(q, false, false, true);
})(%s)`, literal)
}

// cleanQuote strips the quotes and whitespace models wrap around a passage.
func cleanQuote(answer string) string {
	return strings.Trim(strings.TrimSpace(answer), "\"'`“”‘’ \t\r\n")
}

func (s *service) AskAssistant(ctx context.Context, req schema.AskAssistantRequest) (schema.AskAssistantResponse, error) {
	if ctx == nil {
		return schema.AskAssistantResponse{}, errors.New("missing context")
	}
	log := logx.Ctx(ctx)
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return schema.AskAssistantResponse{}, schema.ErrEmptyInput
	}
	if s.backend == nil {
		return schema.AskAssistantResponse{}, schema.ErrBackendUnavailable
	}
	var notes []schema.Note
	if req.IncludeNotes {
		if s.store == nil {
			return schema.AskAssistantResponse{}, schema.ErrStoreUnavailable
		}
		var err error
		if notes, err = s.store.Notes(); err != nil {
			return schema.AskAssistantResponse{}, err
		}
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()
	answer, err := s.backend.Complete(cctx, askRequest(s.cfg.Models, prompt, notes))
	if err != nil {
		log.Warn("service ask failed", "err", err)
		return schema.AskAssistantResponse{}, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return schema.AskAssistantResponse{}, &schema.BackendError{Reason: schema.BackendBadResponse, Message: "empty answer"}
	}
	log.Info("service ask ok", "notes", len(notes))
	return schema.AskAssistantResponse{Answer: answer, Notes: len(notes)}, nil
}
