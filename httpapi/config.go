package httpapi

import "time"

// Config defines the shell IPC listener.
type Config struct {
	Addr     string
	BasePath string
	// Token, when set, must accompany every /api request as a bearer token or
	// a token query parameter.
	Token string
	// AllowedOrigins lists extra websocket origins besides the listener's own host.
	AllowedOrigins []string
	HubHistory     int
}

const (
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
)
