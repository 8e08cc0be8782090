// Package httpapi exposes the browser shell core over HTTP JSON, SSE, and a
// websocket IPC channel.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/browserx/core"
	"pkt.systems/browserx/internal/eventbus"
	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/internal/metrics"
	"pkt.systems/browserx/internal/persist"
	"pkt.systems/browserx/schema"
)

// Deps wires the server to the shell core. Service is required.
type Deps struct {
	Service core.Service
	// Store backs the library endpoints; they answer 503 without it.
	Store   *persist.Store
	Hub     *Hub
	Bus     *eventbus.Bus
	Metrics *metrics.Metrics
}

// Server serves the shell IPC API.
type Server struct {
	cfg      Config
	service  core.Service
	store    *persist.Store
	hub      *Hub
	bus      *eventbus.Bus
	metrics  *metrics.Metrics
	basePath string
	commands map[string]command
	upgrader websocket.Upgrader
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps Deps) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(cfg.HubHistory)
	}
	s := &Server{
		cfg:      cfg,
		service:  deps.Service,
		store:    deps.Store,
		hub:      hub,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		basePath: normalizeBasePath(cfg.BasePath),
	}
	s.commands = s.buildCommands()
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub returns the SSE hub so callers can register it as an event sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/tabs", s.guard(s.commandRoute("tabs.list")))
	mux.HandleFunc("POST /api/tabs", s.guard(s.commandRoute("tabs.create")))
	for _, op := range []string{"close", "switch", "navigate", "back", "forward", "reload", "organize", "smart_search"} {
		mux.HandleFunc("POST /api/tabs/"+op, s.guard(s.commandRoute("tabs."+op)))
	}
	mux.HandleFunc("POST /api/layout/{panel}", s.guard(s.handleLayout))
	mux.HandleFunc("POST /api/window/resize", s.guard(s.commandRoute("window.resize")))
	mux.HandleFunc("POST /api/translation", s.guard(s.commandRoute("translation.set")))
	mux.HandleFunc("POST /api/assistant", s.guard(s.commandRoute("assistant.ask")))

	mux.HandleFunc("GET /api/session", s.guard(s.commandRoute("session.get")))
	mux.HandleFunc("POST /api/session", s.guard(s.commandRoute("session.save")))
	mux.HandleFunc("POST /api/session/restore", s.guard(s.commandRoute("session.restore")))

	mux.HandleFunc("GET /api/history", s.guard(s.handleHistoryList))
	mux.HandleFunc("POST /api/history", s.guard(s.commandRoute("history.add")))
	mux.HandleFunc("DELETE /api/history", s.guard(s.queryRoute("history.delete", "url")))

	mux.HandleFunc("GET /api/bookmarks", s.guard(s.handleBookmarks))
	mux.HandleFunc("POST /api/bookmarks", s.guard(s.commandRoute("bookmarks.add")))
	mux.HandleFunc("DELETE /api/bookmarks", s.guard(s.queryRoute("bookmarks.remove", "url")))

	mux.HandleFunc("GET /api/notes", s.guard(s.commandRoute("notes.list")))
	mux.HandleFunc("POST /api/notes", s.guard(s.commandRoute("notes.add")))
	mux.HandleFunc("DELETE /api/notes", s.guard(s.queryRoute("notes.delete", "id")))

	mux.HandleFunc("GET /api/settings", s.guard(s.commandRoute("settings.get")))
	mux.HandleFunc("POST /api/settings", s.guard(s.commandRoute("settings.update")))

	mux.HandleFunc("GET /api/stream", s.guard(s.handleStream))
	mux.HandleFunc("GET /api/ipc", s.guard(s.handleIPC))

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

// commandRoute serves op with the request body as params.
func (s *Server) commandRoute(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params json.RawMessage
		if r.Method != http.MethodGet {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if len(body) > maxBodyBytes {
				writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
				return
			}
			params = body
		}
		s.respond(w, r, op, params)
	}
}

// queryRoute serves op with the named query parameters as string params.
func (s *Server) queryRoute(op string, keys ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values := make(map[string]string, len(keys))
		for _, key := range keys {
			if v := r.URL.Query().Get(key); v != "" {
				values[key] = v
			}
		}
		params, _ := json.Marshal(values)
		s.respond(w, r, op, params)
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, params json.RawMessage) {
	log := logx.Ctx(r.Context()).With("op", op)
	resp, err := s.run(r.Context(), op, params)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Warn("http command failed", "err", err, "status", status)
		} else {
			log.Debug("http command rejected", "err", err, "status", status)
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Open bool `json:"open"`
	}
	if err := decodeJSON(io.LimitReader(r.Body, maxBodyBytes), &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params, _ := json.Marshal(schema.SetPanelRequest{Panel: schema.Panel(r.PathValue("panel")), Open: payload.Open})
	s.respond(w, r, "layout.panel", params)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	q := historyQuery{
		Query: r.URL.Query().Get("q"),
		Limit: parseInt(r.URL.Query().Get("limit"), 0),
	}
	entries, err := s.listHistory(q)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleBookmarks lists bookmarks, or checks one URL when ?url= is present.
func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("url") != "" {
		s.queryRoute("bookmarks.check", "url")(w, r)
		return
	}
	s.commandRoute("bookmarks.list")(w, r)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())
	ctx := r.Context()

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	if snapshot, err := s.service.ListTabs(ctx, schema.ListTabsRequest{}); err == nil {
		_ = writeSSEvent(w, StreamEvent{Type: "snapshot", Snapshot: &snapshot, Timestamp: time.Now()})
	}
	replay := 0
	if lastID > 0 {
		for _, event := range s.hub.Replay(lastID) {
			_ = writeSSEvent(w, event)
			lastID = event.Seq
			replay++
		}
	}
	flusher.Flush()

	log.Info("http stream opened", "replay", replay)
	for {
		select {
		case <-ctx.Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= lastID {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

// guard admits only the shell's own origins, requires JSON on writes, and
// enforces the bearer token when one is configured. Pages loaded in tabs share
// the loopback with this listener and must not be able to drive it.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	want := []byte(s.cfg.Token)
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context())
		if !s.sameOrigin(r) {
			log.Warn("http origin rejected", "origin", r.Header.Get("Origin"), "remote", clientIP(r))
			writeError(w, http.StatusForbidden, errors.New("origin not allowed"))
			return
		}
		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			if !isJSONContent(r.Header.Get("Content-Type")) {
				log.Debug("http content type rejected", "content_type", r.Header.Get("Content-Type"))
				writeError(w, http.StatusUnsupportedMediaType, errors.New("content type must be application/json"))
				return
			}
		}
		if len(want) > 0 {
			got := r.URL.Query().Get("token")
			if auth := r.Header.Get("Authorization"); auth != "" {
				got, _ = strings.CutPrefix(auth, "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				log.Warn("http token rejected", "remote", clientIP(r))
				writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
				return
			}
		}
		next(w, r)
	}
}

// sameOrigin applies the websocket origin policy to every route. Requests a
// browser marks as cross-site without an Origin header are refused as well.
func (s *Server) sameOrigin(r *http.Request) bool {
	if r.Header.Get("Origin") == "" {
		return r.Header.Get("Sec-Fetch-Site") != "cross-site"
	}
	return s.checkOrigin(r)
}

func isJSONContent(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	return err == nil && mediaType == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
