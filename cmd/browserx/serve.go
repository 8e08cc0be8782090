package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/browserx"
	"pkt.systems/browserx/core"
	"pkt.systems/browserx/httpapi"
	"pkt.systems/browserx/internal/appconfig"
	"pkt.systems/browserx/internal/cdpsurface"
	"pkt.systems/browserx/internal/linkscan"
	"pkt.systems/browserx/internal/llm"
	"pkt.systems/browserx/internal/metrics"
	"pkt.systems/browserx/internal/version"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

const stopTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var cfgPath string
	var headless bool
	var addr string
	var noRestore bool
	var proxy string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser and the shell IPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if strings.TrimSpace(addr) != "" {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("proxy") {
				cfg.Browser.Proxy = strings.TrimSpace(proxy)
			}
			if noRestore {
				cfg.Bridge.RestoreSession = false
			}
			if strings.TrimSpace(cfg.LLM.APIKey) == "" {
				logger.Warn("llm api key missing; assistant features will fail", "env", appconfig.APIKeyEnv)
			}
			if strings.TrimSpace(cfg.HTTP.Token) == "" {
				logger.Warn("http token not set; any local process can drive the shell api", "hint", "browserx config init")
			}

			backend, err := llm.New(toLLMConfig(cfg.LLM, logger))
			if err != nil {
				return err
			}
			fetcher := linkscan.New(linkscan.Config{
				Timeout: time.Duration(cfg.Bridge.LinkScanTimeoutSeconds) * time.Second,
			})

			logger.Info("browser start", "remote", cfg.Browser.RemoteURL != "", "headless", cfg.Browser.Headless, "proxy", cfg.Browser.Proxy)
			surfaces, err := cdpsurface.New(ctx, toSurfaceConfig(cfg.Browser, logger))
			if err != nil {
				return err
			}
			defer func() { _ = surfaces.Close() }()
			logger.Info("browser ready")

			serverCfg := browserx.ServerConfig{
				Service:        cfg.ServiceConfig(),
				HTTP:           toHTTPConfig(cfg.HTTP),
				RestoreSession: cfg.Bridge.RestoreSession,
			}
			server, err := browserx.New(serverCfg, browserx.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Surfaces: surfaces,
					Backend:  backend,
					Fetcher:  fetcher,
					Metrics:  metrics.New(),
					Logger:   logger,
				},
			}, browserx.WithHTTP())
			if err != nil {
				return err
			}

			logger.Info("serve start", "http_addr", serverCfg.HTTP.Addr, "version", version.Current())
			if err := server.Start(ctx); err != nil {
				return err
			}
			waitErr := server.Wait()
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Warn("server stop failed", "err", err)
			}
			return waitErr
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&headless, "headless", false, "run chrome without a window")
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	cmd.Flags().StringVar(&proxy, "proxy", "", "route tab traffic through a proxy, e.g. socks5://127.0.0.1:9050 for Tor")
	cmd.Flags().BoolVar(&noRestore, "no-restore", false, "start with a fresh tab instead of the saved session")
	return cmd
}

func toLLMConfig(cfg appconfig.LLMConfig, logger pslog.Logger) llm.Config {
	return llm.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		RateLimit:  cfg.RateLimit,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  "browserx/" + version.Current(),
		Logger:     logger,
	}
}

func toSurfaceConfig(cfg appconfig.BrowserConfig, logger pslog.Logger) cdpsurface.Config {
	return cdpsurface.Config{
		RemoteURL:   cfg.RemoteURL,
		ExecPath:    cfg.ExecPath,
		UserDataDir: cfg.UserDataDir,
		Headless:    cfg.Headless,
		NoSandbox:   cfg.NoSandbox,
		Proxy:       cfg.Proxy,
		Flags:       cfg.Flags,
		Window:      schema.Size{Width: cfg.WindowWidth, Height: cfg.WindowHeight},
		Logger:      logger,
	}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:           cfg.Addr,
		BasePath:       cfg.BasePath,
		Token:          cfg.Token,
		AllowedOrigins: cfg.AllowedOrigins,
		HubHistory:     cfg.StreamHistory,
	}
}
