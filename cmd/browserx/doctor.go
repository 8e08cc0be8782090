package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/browserx/core"
	"pkt.systems/browserx/internal/appconfig"
	"pkt.systems/browserx/internal/cdpsurface"
	"pkt.systems/browserx/internal/llm"
	"pkt.systems/browserx/internal/persist"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var launch bool
	var pingLLM bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run browserx diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			if err := checkStateDir(cfg.StateDir); err != nil {
				return err
			}
			logger.Info("doctor state dir ok", "path", cfg.StateDir)

			if cfg.Browser.RemoteURL == "" {
				path, err := cdpsurface.FindChrome(cfg.Browser.ExecPath)
				if err != nil {
					return fmt.Errorf("doctor chrome: %w", err)
				}
				logger.Info("doctor chrome found", "path", path)
			}
			if launch {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				err := checkBrowser(ctx, cfg.Browser, logger)
				cancel()
				if err != nil {
					return err
				}
				logger.Info("doctor chrome tab ok")
			}

			if err := checkAPIKey(cfg.LLM); err != nil {
				return err
			}
			logger.Info("doctor llm key present", "base_url", cfg.LLM.BaseURL)
			if pingLLM {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				err := checkLLM(ctx, cfg, logger)
				cancel()
				if err != nil {
					return err
				}
				logger.Info("doctor llm ping ok", "model", cfg.LLM.Models.Fast)
			}
			logger.Info("doctor ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&launch, "launch", true, "start chrome headless and open a tab")
	cmd.Flags().BoolVar(&pingLLM, "llm-ping", false, "send one short completion to the llm backend")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout per live check")
	return cmd
}

func checkStateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("state_dir is empty; history and sessions will not persist")
	}
	store, err := persist.NewStore(dir)
	if err != nil {
		return fmt.Errorf("doctor state dir: %w", err)
	}
	if _, err := store.Settings(); err != nil {
		return fmt.Errorf("doctor settings: %w", err)
	}
	return nil
}

func checkAPIKey(cfg appconfig.LLMConfig) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("llm api key missing; set llm.api_key or %s", appconfig.APIKeyEnv)
	}
	return nil
}

// checkBrowser launches a headless browser and evaluates a script in a fresh tab.
func checkBrowser(ctx context.Context, cfg appconfig.BrowserConfig, logger pslog.Logger) error {
	surfaceCfg := toSurfaceConfig(cfg, logger)
	surfaceCfg.Headless = true
	factory, err := cdpsurface.New(ctx, surfaceCfg)
	if err != nil {
		return fmt.Errorf("doctor chrome start: %w", err)
	}
	defer func() { _ = factory.Close() }()
	surface, err := factory.Create(ctx, core.SurfaceConfig{TabID: 1, Bounds: schema.Rect{Width: 800, Height: 600}})
	if err != nil {
		return fmt.Errorf("doctor chrome tab: %w", err)
	}
	defer func() { _ = surface.Close() }()
	raw, err := surface.ExecuteScript(ctx, "1 + 1")
	if err != nil {
		return fmt.Errorf("doctor chrome script: %w", err)
	}
	if strings.TrimSpace(string(raw)) != "2" {
		return fmt.Errorf("doctor chrome script: unexpected result %s", raw)
	}
	return nil
}

func checkLLM(ctx context.Context, cfg appconfig.Config, logger pslog.Logger) error {
	client, err := llm.New(toLLMConfig(cfg.LLM, logger))
	if err != nil {
		return err
	}
	_, err = client.Complete(ctx, schema.CompletionRequest{
		Prompt:    "Reply with the single word: pong",
		Model:     schema.ModelID(cfg.LLM.Models.Fast),
		MaxTokens: 4,
	})
	if err != nil {
		return fmt.Errorf("doctor llm: %w", err)
	}
	return nil
}
