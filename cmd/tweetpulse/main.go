package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spacesedan/tweetpulse/config"
	"github.com/spacesedan/tweetpulse/internal/analysis"
	"github.com/spacesedan/tweetpulse/internal/clients"
	"github.com/spacesedan/tweetpulse/internal/logging"
	"github.com/spacesedan/tweetpulse/internal/monitoring"
	"github.com/spacesedan/tweetpulse/internal/session"
	"github.com/spacesedan/tweetpulse/internal/web"
)

func main() {
	config.LoadEnv(config.AppEnv())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logging.InitLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("[Main] Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	analyzer, err := clients.NewAnalyzerClient(ctx, cfg.Upstream)
	if err != nil {
		return err
	}

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	controller := analysis.NewController(analyzer, store, analysis.Options{
		Fallback: analysis.FallbackPolicy{
			Enabled: cfg.Analysis.FallbackEnabled,
			Delay:   cfg.Analysis.FallbackDelay,
		},
		InputErrorTTL: cfg.Analysis.InputErrorTTL,
		JitterDelay:   cfg.Analysis.JitterDelay,
	})
	defer controller.Close()

	analyzerHealthy := &atomic.Bool{}
	analyzerHealthy.Store(true)
	go monitoring.MonitorAnalyzerHealth(ctx, analyzer, analyzerHealthy, cfg.Upstream.HealthInterval)

	handler, err := web.NewServer(controller, web.Options{
		CookieName:      cfg.Session.CookieName,
		SessionTTL:      cfg.Session.TTL,
		UpstreamHealthy: analyzerHealthy,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	shutdownErrCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		slog.Info("[Main] Shutdown signal received, shutting down server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		shutdownErrCh <- server.Shutdown(shutdownCtx)
	}()

	slog.Info("[Main] HTTP server starting",
		slog.String("address", cfg.Server.Addr()),
		slog.String("env", cfg.Env),
		slog.String("upstream", cfg.Upstream.BaseURL),
		slog.Bool("fallback", cfg.Analysis.FallbackEnabled),
		slog.String("session_backend", cfg.Session.Backend))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	if err := <-shutdownErrCh; err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("[Main] Server stopped gracefully")
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case config.SESSION_BACKEND_VALKEY:
		vc, err := clients.NewValkeyClient(ctx, cfg.Session)
		if err != nil {
			return nil, nil, err
		}
		return session.NewValkeyStore(vc, cfg.Session.TTL), vc.Close, nil
	default:
		store := session.NewMemoryStore(cfg.Session.TTL)
		go store.RunSweeper(ctx, cfg.Session.TTL/4)
		return store, func() {}, nil
	}
}
