package aggregate

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"blxProtocol/internal/events"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/model"
	"blxProtocol/internal/storage"
)

type memorySink struct {
	pairs   []model.Pair
	metrics []model.PairWindowMetrics
}

func (s *memorySink) UpsertPairs(_ context.Context, pairs []model.Pair) error {
	s.pairs = append(s.pairs, pairs...)
	return nil
}

func (s *memorySink) UpsertWindowMetrics(_ context.Context, metrics []model.PairWindowMetrics) error {
	s.metrics = append(s.metrics, metrics...)
	return nil
}

var (
	factory = common.HexToAddress("0xfac")
	pair    = common.HexToAddress("0x9a1")
	token0  = common.HexToAddress("0x70")
	token1  = common.HexToAddress("0x71")
)

func fixture() []model.EventRecord {
	payloads := []struct {
		source common.Address
		ts     uint64
		p      events.Payload
	}{
		{factory, 1000, events.PairCreated{Token0: token0, Token1: token1, Pair: pair, Index: 0}},
		{pair, 1000, events.Sync{Reserve0: mathx.MustAmount("1000e18"), Reserve1: mathx.MustAmount("10e18")}},
		{pair, 1010, events.Swap{
			Amount0In: mathx.MustAmount("10e18"), Amount1In: new(uint256.Int),
			Amount0Out: new(uint256.Int), Amount1Out: uint256.NewInt(98715803439706129), FeeBps: 30,
		}},
		{pair, 1010, events.Sync{Reserve0: mathx.MustAmount("1010e18"), Reserve1: mathx.MustAmount("9901284196560293871")}},
		{pair, 1250, events.Swap{
			Amount0In: new(uint256.Int), Amount1In: mathx.MustAmount("1e18"),
			Amount0Out: mathx.MustAmount("5e18"), Amount1Out: new(uint256.Int), FeeBps: 30,
		}},
	}
	out := make([]model.EventRecord, 0, len(payloads))
	for i, item := range payloads {
		ev := events.New(item.source, item.ts, item.p)
		out = append(out, model.NewEventRecord("run", uint64(i), ev, time.Unix(0, 0)))
	}
	return out
}

func newTestAggregator(sink storage.MetricsSink, state StateStore) *Aggregator {
	tokens := NewTokenMetaCache()
	tokens.Set(model.TokenMeta{Address: token0.Hex(), Symbol: "TKN", Decimals: 18})
	tokens.Set(model.TokenMeta{Address: token1.Hex(), Symbol: "BASE", Decimals: 18})
	return NewAggregator(Config{WindowSeconds: 300, StateStore: state}, sink, tokens, nil, nil)
}

func TestAggregateWindows(t *testing.T) {
	sink := &memorySink{}
	state := &MemoryStateStore{}
	require.NoError(t, newTestAggregator(sink, state).Process(context.Background(), fixture()))

	require.Len(t, sink.pairs, 1)
	require.Equal(t, pair.Hex(), sink.pairs[0].Address)
	require.Equal(t, "TKN", sink.pairs[0].Symbol0)
	require.Equal(t, uint8(18), sink.pairs[0].Decimals1)

	require.Len(t, sink.metrics, 2)
	sort.Slice(sink.metrics, func(i, j int) bool { return sink.metrics[i].WindowStart.Before(sink.metrics[j].WindowStart) })

	first := sink.metrics[0]
	require.Equal(t, time.Unix(900, 0).UTC(), first.WindowStart)
	require.Equal(t, time.Unix(1200, 0).UTC(), first.WindowEnd)
	require.Equal(t, uint64(1), first.SwapCount)
	require.Equal(t, "10.000000000000000000", first.Volume0)
	require.Equal(t, "0.098715803439706129", first.Volume1)
	require.Equal(t, "0.030000000000000000", first.Fee0)
	require.Equal(t, "0.000000000000000000", first.Fee1)
	require.NotNil(t, first.Reserve0)
	require.Equal(t, "1010.000000000000000000", *first.Reserve0)
	require.NotNil(t, first.FeeRate0)
	require.Nil(t, first.FeeRate1)
	require.NotNil(t, first.APR)

	second := sink.metrics[1]
	require.Equal(t, time.Unix(1200, 0).UTC(), second.WindowStart)
	require.Equal(t, "5.000000000000000000", second.Volume0)
	require.Equal(t, "0.003000000000000000", second.Fee1)
	// Reserves carry over from the previous window's sync.
	require.Equal(t, "1010.000000000000000000", *second.Reserve0)
	require.Nil(t, second.FeeRate0)
	require.NotNil(t, second.FeeRate1)

	last, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1250), last)
}

func TestAggregateResumesFromState(t *testing.T) {
	state := &MemoryStateStore{}
	require.NoError(t, newTestAggregator(&memorySink{}, state).Process(context.Background(), fixture()))

	sink := &memorySink{}
	agg := newTestAggregator(sink, state)
	require.NoError(t, agg.Process(context.Background(), fixture()))
	require.Empty(t, sink.metrics)
	require.Equal(t, 4, agg.skipped)
}

func TestAggregateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, storage.NewJsonlStorage(path).PutEventBatch(context.Background(), fixture()))

	sink := &memorySink{}
	statePath := filepath.Join(t.TempDir(), "state", "agg.json")
	agg := newTestAggregator(sink, &FileStateStore{Path: statePath})
	require.NoError(t, agg.Run(context.Background(), path))
	require.Len(t, sink.metrics, 2)

	last, ok, err := (&FileStateStore{Path: statePath}).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1250), last)
}

func TestAggregateFlushOrderIsStable(t *testing.T) {
	pairs := []common.Address{
		common.HexToAddress("0x9a5"),
		common.HexToAddress("0x9a3"),
		common.HexToAddress("0x9a1"),
		common.HexToAddress("0x9a4"),
		common.HexToAddress("0x9a2"),
	}
	var records []model.EventRecord
	for i, address := range pairs {
		ev := events.New(address, 1000, events.Sync{Reserve0: mathx.MustAmount("1e18"), Reserve1: mathx.MustAmount("2e18")})
		records = append(records, model.NewEventRecord("run", uint64(i), ev, time.Unix(0, 0)))
	}

	for round := 0; round < 5; round++ {
		sink := &memorySink{}
		require.NoError(t, newTestAggregator(sink, nil).Process(context.Background(), records))
		require.Len(t, sink.metrics, len(pairs))
		for i, want := range []string{"0x9a1", "0x9a2", "0x9a3", "0x9a4", "0x9a5"} {
			require.Equal(t, common.HexToAddress(want), common.HexToAddress(sink.metrics[i].PairAddress))
		}
	}
}

func TestComputeAPR(t *testing.T) {
	// 1% of one side in a day, nothing on the other: 0.5% of TVL per day.
	apr := computeAPR(uint256.NewInt(1), new(uint256.Int), uint256.NewInt(100), uint256.NewInt(100), 86400)
	require.NotNil(t, apr)
	require.Equal(t, "1.825000000000000000", *apr)

	require.Nil(t, computeAPR(uint256.NewInt(1), nil, uint256.NewInt(100), nil, 86400))
}
