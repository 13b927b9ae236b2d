package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blxProtocol/internal/chain"
	"blxProtocol/internal/config"
	"blxProtocol/internal/oracle"
)

type feedReport struct {
	Label       string `json:"label"`
	Feed        string `json:"feed"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Decimals    int    `json:"price_decimals"`
	UpdatedAt   uint64 `json:"updated_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

func runFeed(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFeed(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if len(cfg.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	labels := make([]string, 0, len(cfg.Feeds))
	for label, addr := range cfg.Feeds {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("feed %s: invalid address %q", label, addr)
		}
		labels = append(labels, label)
	}
	sort.Strings(labels)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	now, err := chainClient.LatestTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	logger.Info("feed check start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("feeds", len(labels)),
		zap.Uint64("block_time", now),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, label := range labels {
		feed := chain.NewAggregatorFeed(chainClient, common.HexToAddress(cfg.Feeds[label]), cfg.MaxRetries, cfg.RetryBackoff, logger)
		report := readFeedReport(ctx, label, feed, now)
		if report.Error != "" {
			failed++
			logger.Warn("feed rejected", zap.String("label", label), zap.String("feed", report.Feed), zap.String("error", report.Error))
		}
		if err := enc.Encode(report); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d feeds failed validation", failed, len(labels))
	}
	return nil
}

func readFeedReport(ctx context.Context, label string, feed *chain.AggregatorFeed, now uint64) feedReport {
	report := feedReport{Label: label, Feed: feed.Address().Hex(), Decimals: oracle.PriceDecimals}
	if desc, err := feed.Description(ctx); err == nil {
		report.Description = desc
	}
	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.UpdatedAt = round.UpdatedAt
	decimals, err := feed.Decimals(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	price, err := oracle.ValidateRound(round, decimals, now)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Price = price.Dec()
	return report
}
