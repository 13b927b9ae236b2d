package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"blxProtocol/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "protocol",
		Short:        "BLX protocol simulator and tooling",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "optional rotating JSON log file")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario file against the in-memory protocol",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario YAML path")
	simulateCmd.Flags().String("run-id", "", "run id stamped on records (default random UUID)")
	simulateCmd.Flags().String("events-out", "./data/events.jsonl", "event records JSONL output")
	simulateCmd.Flags().String("snapshots-out", "./data/snapshots.jsonl", "per-step snapshot JSONL output")
	simulateCmd.Flags().String("metrics-out", "./data/window_metrics.jsonl", "pair window metrics JSONL output")
	simulateCmd.Flags().String("window", "1h", "aggregation window (e.g. 1m, 5m, 1h)")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN; records are written there instead of JSONL")
	simulateCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(simulateCmd)

	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Read and validate on-chain price aggregators",
		RunE:  runFeed,
	}

	feedCmd.Flags().String("rpc", "", "RPC URL")
	feedCmd.Flags().StringSlice("feed", nil, "aggregator feeds as label=address (comma-separated)")
	feedCmd.Flags().Int("max-retries", 3, "maximum retry attempts per RPC call")
	feedCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	root.AddCommand(feedCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a multi-hop swap from raw reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().StringSlice("reserves", nil, "hop reserves as reserveIn:reserveOut (comma-separated, in path order)")
	quoteCmd.Flags().String("amount-in", "", "exact input amount")
	quoteCmd.Flags().String("amount-out", "", "exact output amount")

	root.AddCommand(quoteCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate event records into pair window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("rpc", "", "optional RPC URL for token decimals lookups")
	aggregateCmd.Flags().String("in", "", "input event records JSONL")
	aggregateCmd.Flags().String("out", "./data/window_metrics.jsonl", "output window metrics JSONL")
	aggregateCmd.Flags().String("window", "1h", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN; metrics are written there instead of JSONL")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")

	root.AddCommand(aggregateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevel()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.File == "" {
		return logger, nil
	}

	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zcfg.EncoderConfig), rotating, zcfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
