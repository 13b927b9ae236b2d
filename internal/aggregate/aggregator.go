package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"blxProtocol/internal/events"
	"blxProtocol/internal/model"
	"blxProtocol/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator folds pair swap and sync records into per-pair window
// metrics.
type Aggregator struct {
	cfg    Config
	sink   storage.MetricsSink
	tokens *TokenMetaCache
	fetch  DecimalsFetcher
	logger *zap.Logger

	accumulators map[string]*Accumulator
	reserves     map[string]*model.SyncData
	pairs        map[string]model.Pair

	batch    []model.PairWindowMetrics
	newPairs []model.Pair
	startTs  uint64
	maxTs    uint64

	total, emitted, skipped, failed int
}

func NewAggregator(cfg Config, sink storage.MetricsSink, tokens *TokenMetaCache, fetch DecimalsFetcher, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = NewTokenMetaCache()
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		tokens:       tokens,
		fetch:        fetch,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		reserves:     make(map[string]*model.SyncData),
		pairs:        make(map[string]model.Pair),
	}
}

// Run executes aggregation over an event record JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if err := a.begin(ctx); err != nil {
		return err
	}
	err := storage.ReadEvents(inputPath, func(record model.EventRecord) error {
		return a.add(ctx, record)
	}, func(line int, err error) {
		a.failed++
		a.logger.Warn("decode event record", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return err
	}
	return a.finish(ctx)
}

// Process aggregates records already in memory, in order.
func (a *Aggregator) Process(ctx context.Context, records []model.EventRecord) error {
	if err := a.begin(ctx); err != nil {
		return err
	}
	for _, record := range records {
		if err := a.add(ctx, record); err != nil {
			return err
		}
	}
	return a.finish(ctx)
}

func (a *Aggregator) begin(ctx context.Context) error {
	if a.sink == nil {
		return fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}
	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}
	a.startTs = startTs
	a.maxTs = startTs
	return nil
}

func (a *Aggregator) add(ctx context.Context, record model.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.total++

	switch record.Type {
	case events.TypePairCreated:
		a.registerPair(ctx, record)
		return nil
	case events.TypeSwap, events.TypeSync:
	default:
		return nil
	}

	if record.Timestamp <= a.startTs {
		a.skipped++
		return nil
	}

	windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
	windowEnd := windowStart + a.cfg.WindowSeconds

	accKey := pairKey(record.RunID, record.Source)
	acc := a.accumulators[accKey]
	if acc == nil || acc.WindowStart != windowStart {
		if acc != nil {
			if err := a.flushAccumulator(ctx, acc); err != nil {
				return err
			}
		}
		acc = NewAccumulator(record, windowStart, windowEnd, a.reserves[accKey])
		a.accumulators[accKey] = acc
	}

	if err := acc.AddEvent(record); err != nil {
		a.failed++
		a.logger.Warn("aggregate event", zap.Error(err), zap.String("pair", record.Source), zap.String("event", record.Type))
		return nil
	}
	if record.Type == events.TypeSync {
		a.reserves[accKey] = &model.SyncData{Reserve0: acc.Reserve0, Reserve1: acc.Reserve1}
	}

	if record.Timestamp > a.maxTs {
		a.maxTs = record.Timestamp
	}

	if len(a.batch) >= a.cfg.BatchSize {
		if err := a.flushBatches(ctx); err != nil {
			return err
		}
		if err := a.saveState(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) finish(ctx context.Context) error {
	keys := make([]string, 0, len(a.accumulators))
	for key := range a.accumulators {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := a.flushAccumulator(ctx, a.accumulators[key]); err != nil {
			return err
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if err := a.flushBatches(ctx); err != nil {
		return err
	}

	a.cfg.RecomputeFrom = a.maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", a.total),
		zap.Int("windows", a.emitted),
		zap.Int("skipped", a.skipped),
		zap.Int("failed", a.failed),
	)
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context) error {
	if len(a.newPairs) > 0 {
		if err := a.sink.UpsertPairs(ctx, a.newPairs); err != nil {
			return fmt.Errorf("store pairs: %w", err)
		}
		a.newPairs = a.newPairs[:0]
	}
	if len(a.batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, a.batch); err != nil {
			return fmt.Errorf("store window metrics: %w", err)
		}
		a.batch = a.batch[:0]
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) error {
	if acc == nil {
		return nil
	}
	pair, ok := a.pairs[pairKey(acc.RunID, acc.PairAddress)]
	if !ok {
		a.logger.Warn("missing pair meta", zap.String("pair", acc.PairAddress))
	}

	feeRate0, feeRate1 := computeFeeRates(acc.Fee0, acc.Fee1, acc.Reserve0, acc.Reserve1)
	metrics := model.PairWindowMetrics{
		RunID:          acc.RunID,
		PairAddress:    acc.PairAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		Volume0:        formatTokenAmount(acc.Volume0, pair.Decimals0),
		Volume1:        formatTokenAmount(acc.Volume1, pair.Decimals1),
		Fee0:           formatTokenAmount(acc.Fee0, pair.Decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, pair.Decimals1),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		APR:            computeAPR(acc.Fee0, acc.Fee1, acc.Reserve0, acc.Reserve1, a.cfg.WindowSeconds),
	}
	if acc.Reserve0 != nil && acc.Reserve1 != nil {
		r0 := formatTokenAmount(acc.Reserve0, pair.Decimals0)
		r1 := formatTokenAmount(acc.Reserve1, pair.Decimals1)
		metrics.Reserve0, metrics.Reserve1 = &r0, &r1
	}
	a.batch = append(a.batch, metrics)
	a.emitted++
	return nil
}

func (a *Aggregator) registerPair(ctx context.Context, record model.EventRecord) {
	address := record.Attributes["pair"]
	key := pairKey(record.RunID, address)
	if existing, ok := a.pairs[key]; ok && existing.FirstSeen <= record.Timestamp {
		return
	}
	pair := model.Pair{
		RunID:     record.RunID,
		Address:   address,
		Token0:    record.Attributes["token0"],
		Token1:    record.Attributes["token1"],
		FirstSeen: record.Timestamp,
	}
	pair.Symbol0, pair.Decimals0 = a.tokenMeta(ctx, pair.Token0)
	pair.Symbol1, pair.Decimals1 = a.tokenMeta(ctx, pair.Token1)
	a.pairs[key] = pair
	a.newPairs = append(a.newPairs, pair)
}

func (a *Aggregator) tokenMeta(ctx context.Context, token string) (string, uint8) {
	if !common.IsHexAddress(token) {
		a.logger.Warn("invalid token address", zap.String("token", token))
		return "", 0
	}
	addr := common.HexToAddress(token)
	if meta, ok := a.tokens.Get(addr); ok {
		return meta.Symbol, meta.Decimals
	}
	if a.fetch == nil {
		return "", 0
	}
	decimals, err := a.fetch(ctx, addr)
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
		return "", 0
	}
	a.tokens.Set(model.TokenMeta{Address: addr.Hex(), Decimals: decimals})
	return "", decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func pairKey(runID, address string) string {
	return runID + "/" + strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
