// Package server assembles the HTTP surface and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/config"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/health"
	middleware "github.com/mohammed-shakir/spatial-heatmap/internal/core/middleware"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/router"
)

type Deps struct {
	Handlers *router.Handlers
	// Metrics is mounted on /metrics when set.
	Metrics   http.Handler
	Readiness health.ReadinessReporter
	Checks    []health.Check
}

func NewRouter(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Readiness, d.Checks...))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/space", router.Observe("/v1/space", d.Handlers.PrepareSpace))
		r.Get("/space", router.Observe("/v1/space", d.Handlers.LookupSpaces))
		r.Post("/heatmap", router.Observe("/v1/heatmap", d.Handlers.Heatmap))
	})
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
