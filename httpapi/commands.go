package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"pkt.systems/browserx/schema"
)

// errUnknownCommand reports an IPC op with no handler.
var errUnknownCommand = errors.New("unknown command")

// command executes one IPC op. The same table serves HTTP routes and websocket frames.
type command func(ctx context.Context, params json.RawMessage) (any, error)

type urlParam struct {
	URL string `json:"url"`
}

type idParam struct {
	ID string `json:"id"`
}

type tabParam struct {
	TabID schema.TabID `json:"tab_id"`
}

type historyQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) buildCommands() map[string]command {
	return map[string]command{
		"tabs.list": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.service.ListTabs(ctx, schema.ListTabsRequest{})
		},
		"tabs.create": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.CreateTabRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.CreateTab(ctx, req)
		},
		"tabs.close": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.CloseTabRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.CloseTab(ctx, req)
		},
		"tabs.switch": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.SwitchTabRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.SwitchTab(ctx, req)
		},
		"tabs.navigate": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.NavigateRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.Navigate(ctx, req)
		},
		"tabs.back":    s.historyMove(schema.HistoryBack),
		"tabs.forward": s.historyMove(schema.HistoryForward),
		"tabs.reload":  s.historyMove(schema.HistoryReload),
		"tabs.organize": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.service.OrganizeTabs(ctx, schema.OrganizeTabsRequest{})
		},
		"tabs.smart_search": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.SmartSearchRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.SmartSearch(ctx, req)
		},
		"assistant.ask": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.AskAssistantRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.AskAssistant(ctx, req)
		},
		"layout.panel": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.SetPanelRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.SetPanel(ctx, req)
		},
		"window.resize": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.ResizeWindowRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.ResizeWindow(ctx, req)
		},
		"translation.set": func(ctx context.Context, params json.RawMessage) (any, error) {
			var req schema.SetTranslationLanguageRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return s.service.SetTranslationLanguage(ctx, req)
		},
		"session.get":     s.sessionGet,
		"session.save": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.service.SaveSession(ctx, schema.SaveSessionRequest{})
		},
		"session.restore": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.service.RestoreSession(ctx, schema.RestoreSessionRequest{})
		},
		"history.list":     s.historyList,
		"history.add":      s.historyAdd,
		"history.delete":   s.historyDelete,
		"bookmarks.list":   s.bookmarksList,
		"bookmarks.add":    s.bookmarksAdd,
		"bookmarks.remove": s.bookmarksRemove,
		"bookmarks.check":  s.bookmarksCheck,
		"notes.list":       s.notesList,
		"notes.add":        s.notesAdd,
		"notes.delete":     s.notesDelete,
		"settings.get":     s.settingsGet,
		"settings.update":  s.settingsUpdate,
	}
}

func (s *Server) historyMove(action schema.HistoryAction) command {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var req tabParam
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return s.service.MoveHistory(ctx, schema.HistoryMoveRequest{TabID: req.TabID, Action: action})
	}
}

// run executes op.
func (s *Server) run(ctx context.Context, op string, params json.RawMessage) (any, error) {
	cmd, ok := s.commands[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, op)
	}
	return cmd(ctx, params)
}

func decodeParams(params json.RawMessage, target any) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := decodeJSON(bytes.NewReader(trimmed), target); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	return nil
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		allocErr   *schema.AllocationError
		backendErr *schema.BackendError
		parseErr   *schema.ParseError
	)
	switch {
	case errors.Is(err, errUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidTab),
		errors.Is(err, schema.ErrInvalidPanel),
		errors.Is(err, schema.ErrInvalidSize),
		errors.Is(err, schema.ErrEmptyInput),
		errors.Is(err, schema.ErrInvalidLanguage):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrNotEnoughTabs), errors.Is(err, schema.ErrNoTabs):
		return http.StatusConflict
	case errors.Is(err, schema.ErrStoreUnavailable), errors.Is(err, schema.ErrBackendUnavailable), errors.As(err, &allocErr):
		return http.StatusServiceUnavailable
	case schema.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.As(err, &backendErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
