package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/buffr/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, err := a.prompts.SeedBuiltins(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to seed built-in prompts")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("built-in prompts seeded")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("addr", cfg.HTTPAddr).
		Str("auth_mode", cfg.AuthMode).
		Bool("llm_enabled", cfg.LLMEnabled()).
		Bool("github_app", cfg.GitHubAppEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Int("tools", len(a.tools.Schemas())).
		Msg("starting buffr")

	srv := a.server()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully")
	}

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("API server shutdown error")
		}
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("buffr stopped")
	return nil
}
