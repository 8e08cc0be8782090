// Package cdpsurface implements content surfaces as Chrome tabs driven over the
// DevTools protocol.
package cdpsurface

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"pkt.systems/browserx/core"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

// Config selects the Chrome instance surfaces are opened in.
type Config struct {
	// RemoteURL attaches to a running browser (ws://host:port/...) instead of launching one.
	RemoteURL   string
	ExecPath    string
	UserDataDir string
	Headless    bool
	NoSandbox   bool
	// Proxy routes all tab traffic through a proxy, e.g. socks5://127.0.0.1:9050 for Tor.
	Proxy string
	// Flags are extra command line switches, with or without leading dashes.
	Flags  []string
	Window schema.Size
	Logger pslog.Logger
}

// chromeNames are probed on PATH when no exec path is configured.
var chromeNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"}

// FindChrome resolves the browser binary, preferring execPath when set.
func FindChrome(execPath string) (string, error) {
	if execPath = strings.TrimSpace(execPath); execPath != "" {
		return exec.LookPath(execPath)
	}
	for _, name := range chromeNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no chrome or chromium binary found on PATH")
}

// Factory opens one Chrome tab per content surface.
type Factory struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	logger        pslog.Logger

	mu     sync.Mutex
	closed bool
}

// New starts or attaches to Chrome.
func New(ctx context.Context, cfg Config) (*Factory, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		logger.Info("cdp attach", "url", cfg.RemoteURL)
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), cfg.RemoteURL)
	} else {
		logger.Info("cdp launch", "headless", cfg.Headless, "exec", cfg.ExecPath)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.WithoutCancel(ctx), execOptions(cfg)...)
	}
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Factory{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		logger:        logger,
	}, nil
}

func execOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.Window.Width > 0 && cfg.Window.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Window.Width, cfg.Window.Height))
	}
	for _, flag := range cfg.Flags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(flag, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Create opens a new tab sized to the requested bounds.
func (f *Factory) Create(ctx context.Context, cfg core.SurfaceConfig) (core.Surface, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, &schema.AllocationError{Err: errors.New("browser closed")}
	}
	tabCtx, cancel := chromedp.NewContext(f.browserCtx)
	s := newSurface(tabCtx, cancel, cfg, f.logger.With("tab", int64(cfg.TabID)))
	chromedp.ListenTarget(tabCtx, s.listen)

	if err := s.attach(ctx); err != nil {
		s.shutdown()
		return nil, &schema.AllocationError{Err: err}
	}
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		if err := runtime.Enable().Do(ctx); err != nil {
			return err
		}
		return setViewport(ctx, cfg.Bounds)
	}))
	if err != nil {
		s.shutdown()
		return nil, &schema.AllocationError{Err: err}
	}
	go s.loop()
	return s, nil
}

// Close shuts the browser down, or detaches from a remote one.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	err := chromedp.Cancel(f.browserCtx)
	f.cancelBrowser()
	f.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func setViewport(ctx context.Context, bounds schema.Rect) error {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return emulation.ClearDeviceMetricsOverride().Do(ctx)
	}
	return emulation.SetDeviceMetricsOverride(int64(bounds.Width), int64(bounds.Height), 1, false).Do(ctx)
}
