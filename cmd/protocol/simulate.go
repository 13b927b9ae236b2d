package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blxProtocol/internal/aggregate"
	"blxProtocol/internal/config"
	"blxProtocol/internal/metrics"
	"blxProtocol/internal/scenario"
	"blxProtocol/internal/storage"
	"blxProtocol/internal/storage/postgres"
)

type simulateSinks struct {
	events    storage.Storage
	snapshots storage.SnapshotSink
	metrics   storage.MetricsSink
	close     func()
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSimulate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	windowSeconds, err := config.WindowSeconds(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}

	doc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := openSimulateSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer sinks.close()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown()
	}

	runner := scenario.NewRunner(doc,
		scenario.WithRunID(cfg.RunID),
		scenario.WithStorage(sinks.events),
		scenario.WithSnapshots(sinks.snapshots),
		scenario.WithMetrics(metrics.Protocol()),
		scenario.WithLogger(logger.Named("scenario")),
	)

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.String("run_id", runner.RunID()),
		zap.String("events_out", cfg.EventsOut),
		zap.String("snapshots_out", cfg.SnapshotsOut),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
	)

	result, runErr := runner.Run(ctx)
	if result == nil {
		return runErr
	}

	// Aggregate whatever was recorded, including a run aborted midway.
	tokens := aggregate.NewTokenMetaCache()
	for _, meta := range result.World.Tokens() {
		tokens.Set(meta)
	}
	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		StateStore:    &aggregate.MemoryStateStore{},
	}, sinks.metrics, tokens, nil, logger.Named("aggregate"))
	if err := agg.Process(ctx, result.Records); err != nil {
		return fmt.Errorf("aggregate run: %w", err)
	}

	if step, failed := result.Failed(); failed {
		logger.Error("scenario step failed",
			zap.Int("step", step.Index),
			zap.String("op", step.Op),
			zap.String("as", step.As),
			zap.Error(step.Err),
		)
	}
	return runErr
}

func openSimulateSinks(ctx context.Context, cfg config.SimulateConfig) (simulateSinks, error) {
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return simulateSinks{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return simulateSinks{}, err
		}
		return simulateSinks{events: store, snapshots: store, metrics: store, close: store.Close}, nil
	}
	return simulateSinks{
		events:    storage.NewJsonlStorage(cfg.EventsOut),
		snapshots: storage.NewJsonlStorage(cfg.SnapshotsOut),
		metrics:   storage.NewJsonlStorage(cfg.MetricsOut),
		close:     func() {},
	}, nil
}

func serveMetrics(addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
