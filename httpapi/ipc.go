package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pkt.systems/browserx/internal/eventbus"
	"pkt.systems/browserx/internal/logx"
	"pkt.systems/pslog"
)

// ipcFrame is one command sent by the shell over the websocket.
type ipcFrame struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ipcMessage is a command reply or a pushed core event.
type ipcMessage struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status int             `json:"status,omitempty"`
	Event  *eventbus.Event `json:"event,omitempty"`
}

func (s *Server) handleIPC(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Ctx(r.Context()).Warn("ipc upgrade failed", "err", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := logx.Ctx(ctx).With("ipc", uuid.NewString())
	ctx = pslog.ContextWithLogger(ctx, log)

	s.metrics.IPCConnected(1)
	defer s.metrics.IPCConnected(-1)
	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	out := make(chan ipcMessage, 64)
	done := make(chan struct{})
	go ipcWriter(ctx, conn, out, events, done, log)
	log.Info("ipc connected")

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(2 * wsPingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * wsPingInterval))
	})
	handled := 0
read:
	for {
		var frame ipcFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("ipc read failed", "err", err)
			}
			break
		}
		reply := s.dispatchFrame(ctx, frame)
		handled++
		select {
		case out <- reply:
		case <-done:
			break read
		}
	}
	cancel()
	<-done
	log.Info("ipc disconnected", "commands", handled)
}

func (s *Server) dispatchFrame(ctx context.Context, frame ipcFrame) ipcMessage {
	resp, err := s.run(ctx, frame.Op, frame.Params)
	if err != nil {
		status := statusFor(err)
		logx.Ctx(ctx).Debug("ipc command failed", "op", frame.Op, "err", err, "status", status)
		return ipcMessage{Type: "reply", ID: frame.ID, Error: err.Error(), Status: status}
	}
	return ipcMessage{Type: "reply", ID: frame.ID, OK: true, Result: resp}
}

// ipcWriter owns all writes to conn. It closes conn on exit so the reader unblocks.
func ipcWriter(ctx context.Context, conn *websocket.Conn, out <-chan ipcMessage, events <-chan eventbus.Event, done chan<- struct{}, log pslog.Logger) {
	defer close(done)
	defer conn.Close()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		var msg ipcMessage
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msg = <-out:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			msg = ipcMessage{Type: "event", Event: &ev}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Debug("ipc ping failed", "err", err)
				return
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug("ipc write failed", "err", err)
			return
		}
	}
}

// checkOrigin admits same-host pages, configured origins, and non-browser clients.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}
