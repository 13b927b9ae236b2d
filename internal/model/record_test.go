package model

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"blxProtocol/internal/events"
)

func TestNewEventRecord(t *testing.T) {
	ev := events.New(common.HexToAddress("0x9a1"), 1_700_000_000, events.Swap{
		Sender:     common.HexToAddress("0x1"),
		To:         common.HexToAddress("0x2"),
		Amount0In:  uint256.NewInt(1000),
		Amount1In:  new(uint256.Int),
		Amount0Out: new(uint256.Int),
		Amount1Out: uint256.NewInt(9),
		FeeBps:     30,
	})
	rec := NewEventRecord("run-1", 4, ev, time.Unix(1_700_000_001, 0))

	require.Equal(t, events.TypeSwap, rec.Type)
	require.Equal(t, RecordID("run-1", 4, events.TypeSwap), rec.ID)
	require.NotEqual(t, RecordID("run-1", 5, events.TypeSwap), rec.ID)
	require.Len(t, rec.ID, 32)
	require.Equal(t, "2023-11-14T22:13:21Z", rec.IngestedAt)

	swap, err := DecodeSwap(rec)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), swap.Amount0In.Uint64())
	require.Equal(t, uint64(9), swap.Amount1Out.Uint64())
	require.True(t, swap.Amount1In.IsZero())
	require.Equal(t, uint64(30), swap.FeeBps)

	ev.Attributes["amount0In"] = "changed"
	require.Equal(t, "1000", rec.Attributes["amount0In"])
}

func TestDecodeRejectsMalformed(t *testing.T) {
	rec := EventRecord{Type: events.TypeSync, Attributes: map[string]string{"reserve0": "-5", "reserve1": "7"}}
	_, err := DecodeSync(rec)
	require.Error(t, err)

	rec.Attributes["reserve0"] = "5"
	sync, err := DecodeSync(rec)
	require.NoError(t, err)
	require.Equal(t, uint64(5), sync.Reserve0.Uint64())

	_, err = EventRecord{Type: events.TypeSwap, Attributes: map[string]string{"feeBps": "x"}}.Uint("feeBps")
	require.Error(t, err)
}
