package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/cache/spacestore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/config"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/health"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/router"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/server"
	"github.com/mohammed-shakir/spatial-heatmap/internal/dataset"
	"github.com/mohammed-shakir/spatial-heatmap/internal/heatmap"
	"github.com/mohammed-shakir/spatial-heatmap/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/spatial-heatmap/internal/logger"
	"github.com/mohammed-shakir/spatial-heatmap/internal/metrics"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
	"github.com/mohammed-shakir/spatial-heatmap/internal/resultevents"
	jobs "github.com/mohammed-shakir/spatial-heatmap/pkg/jobs/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	kindFlag := flag.String("kind", "", "default score kind (jaccard|dice)")
	addrFlag := flag.String("addr", "", "http listen address")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
		SampleN: cfg.LogSampleN,
		Service: "heatmapd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if *kindFlag != "" {
		k, err := model.ParseScoreKind(*kindFlag)
		if err != nil {
			appLog.Error("invalid -kind", "err", err)
			return 2
		}
		cfg.ScoreKind = k
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.ExposeBuildInfo(Version)

	appLog.Info("starting heatmapd",
		"addr", cfg.Addr,
		"version", Version,
		"workers", cfg.Workers,
		"partitions", cfg.Partitions,
		"kind", cfg.ScoreKind.String())

	par := parallel.Options{Workers: cfg.Workers, Partitions: cfg.Partitions}
	deps := server.Deps{}

	var (
		spaceCache dataset.SpaceCache
		lookup     router.SpaceLookup
	)
	if cfg.SpaceCache.Enabled {
		rc, err := redisstore.New(ctx, cfg.SpaceCache.RedisAddr,
			redisstore.WithDialTimeout(2*time.Second),
			redisstore.WithReadTimeout(cfg.SpaceCache.OpTimeout),
		)
		if err != nil {
			appLog.Error("redis unavailable", "addr", cfg.SpaceCache.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()

		st := spacestore.New(rc, spacestore.Options{
			TTL:       cfg.SpaceCache.TTL,
			LRUSize:   cfg.SpaceCache.LRUSize,
			OpTimeout: cfg.SpaceCache.OpTimeout,
			Logger:    appLog.With("component", "spacestore"),
		})
		spaceCache, lookup = st, st
		deps.Checks = append(deps.Checks, health.Check{Name: "redis", Ping: rc.Ping})

		if cfg.Invalidation.Enabled {
			inv := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation, cfg.Jobs),
				appLog.With("component", "invalidation"), &zl, st)
			go func() {
				if err := inv.Start(ctx); err != nil {
					appLog.Error("space invalidation consumer exited", "err", err)
				}
			}()
		}
	} else if cfg.Invalidation.Enabled {
		appLog.Warn("invalidation enabled without a space cache; ignoring")
	}

	prep := dataset.NewPreparer(dataset.Options{
		Logger:     appLog.With("component", "dataset"),
		Cache:      spaceCache,
		Parallel:   par,
		Partitions: cfg.Partitions,
	})
	pipe := heatmap.New(heatmap.Options{
		Logger:     appLog.With("component", "heatmap"),
		Parallel:   par,
		Partitions: cfg.Partitions,
	})

	deps.Handlers = router.New(appLog.With("component", "router"), cfg, prep, lookup, pipe)
	if cfg.Metrics.Enabled {
		deps.Metrics = provider.Handler()
		if cfg.Metrics.Addr != "" && cfg.Metrics.Addr != cfg.Addr {
			go serveMetrics(ctx, appLog, cfg.Metrics.Addr, cfg.Metrics.Path, provider.Handler())
		}
	}

	if cfg.Jobs.Enabled {
		pub, err := resultevents.NewPublisher(cfg.Jobs.Brokers, cfg.Jobs.ResultsTopic, resultevents.Options{
			Logger:    appLog.With("component", "resultevents"),
			Register:  provider.Registerer(),
			QueueSize: cfg.Jobs.ResultsQueue,
		})
		if err != nil {
			appLog.Error("result publisher setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("result publisher close", "err", err)
			}
		}()

		runner := jobs.New(jobs.FromConfig(cfg.Jobs), pipe, jobs.Options{
			Logger:   appLog.With("component", "jobs"),
			Register: provider.Registerer(),
			Sink:     pub,
		})
		if err := runner.Start(ctx); err != nil {
			appLog.Error("job runner start failed", "err", err)
			return 1
		}
		defer runner.Stop()
		deps.Readiness = runner
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr, path string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", "err", err)
		}
	}()

	log.Info("metrics listen", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server exited", "err", err)
	}
}
