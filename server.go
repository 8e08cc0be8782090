// Package browserx composes the browser shell core with its IPC server.
package browserx

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"pkt.systems/browserx/core"
	"pkt.systems/browserx/httpapi"
	"pkt.systems/browserx/internal/eventbus"
	"pkt.systems/browserx/internal/metrics"
	"pkt.systems/browserx/internal/persist"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

// Server runs the shell core and, optionally, the IPC server.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Service() core.Service
	// Handler serves the IPC API; nil unless WithHTTP was given.
	Handler() http.Handler
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    httpapi.Config
	// RestoreSession reopens the saved tabs on start. The persisted
	// restoreSession setting enables it as well.
	RestoreSession bool
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
}

// WithHTTP enables the shell IPC server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// New constructs the shell server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	serviceDeps := deps.ServiceDeps
	if serviceDeps.Surfaces == nil {
		return nil, errors.New("surface factory is required")
	}
	if serviceDeps.Store == nil && cfg.Service.StateDir != "" {
		store, err := persist.NewStoreWithLogger(cfg.Service.StateDir, serviceDeps.Logger)
		if err != nil {
			return nil, err
		}
		serviceDeps.Store = store
	}
	if serviceDeps.Metrics == nil && options.enableHTTP {
		serviceDeps.Metrics = metrics.New()
	}

	var hub *httpapi.Hub
	var bus *eventbus.Bus
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.HubHistory)
		bus = eventbus.New(serviceDeps.Logger)
		serviceDeps.EventSink = joinSinks(serviceDeps.EventSink, hub, bus)
	}

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, httpapi.Deps{
			Service: service,
			Store:   serviceDeps.Store,
			Hub:     hub,
			Bus:     bus,
			Metrics: serviceDeps.Metrics,
		})
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		store:   serviceDeps.Store,
		httpSrv: httpSrv,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	store   *persist.Store
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
	stopped bool
}

func (s *compositeServer) Service() core.Service {
	return s.service
}

func (s *compositeServer) Handler() http.Handler {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Handler()
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"state_dir", s.cfg.Service.StateDir,
	)
	if err := s.openInitialTabs(s.ctx); err != nil {
		log.Error("server initial tab failed", "err", err)
		s.cancel()
		return err
	}
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

// openInitialTabs restores the saved session when enabled and falls back to one
// fresh tab so the registry is never empty.
func (s *compositeServer) openInitialTabs(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	if s.restoreEnabled(log) {
		resp, err := s.service.RestoreSession(ctx, schema.RestoreSessionRequest{})
		switch {
		case err != nil && len(resp.Tabs) > 0:
			log.Warn("server session partially restored", "tabs", len(resp.Tabs), "err", err)
			return nil
		case err != nil:
			log.Warn("server session restore failed", "err", err)
		case len(resp.Tabs) > 0:
			return nil
		}
	}
	_, err := s.service.CreateTab(ctx, schema.CreateTabRequest{Activate: true})
	return err
}

func (s *compositeServer) restoreEnabled(log pslog.Logger) bool {
	if s.cfg.RestoreSession {
		return true
	}
	if s.store == nil {
		return false
	}
	settings, err := s.store.Settings()
	if err != nil {
		log.Warn("server settings load failed", "err", err)
		return false
	}
	return settings.Bool(schema.SettingRestoreSession)
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop saves the session, closes every tab, and shuts the IPC server down.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	stopped := s.stopped
	if started {
		s.stopped = true
	}
	log := s.logger
	s.mu.Unlock()
	if !started || stopped {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log.Info("server stop requested")
	var closeErr error
	if err := s.service.Close(ctx); err != nil {
		log.Warn("server service close failed", "err", err)
		closeErr = err
	} else {
		log.Info("server service close ok")
	}
	if cancel != nil {
		cancel()
	}
	log.Info("server stopped")
	return closeErr
}
