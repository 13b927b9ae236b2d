package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"blxProtocol/internal/access"
	"blxProtocol/internal/events"
	"blxProtocol/internal/protocol"
)

var (
	admin     = common.HexToAddress("0xad")
	stranger  = common.HexToAddress("0x5e")
	tokenA    = common.HexToAddress("0xa1")
	feedAddrA = common.HexToAddress("0xfa")
)

func newOracle(t *testing.T) (*PriceOracle, *events.Log) {
	t.Helper()
	reg := access.NewRegistry()
	reg.Grant(access.RoleOracleAdmin, admin)
	log := events.NewLog()
	return NewPriceOracle(common.HexToAddress("0x0c"), reg, log, nil), log
}

func TestGetPriceUnknownToken(t *testing.T) {
	o, _ := newOracle(t)
	_, err := o.GetPrice(context.Background(), tokenA, 100)
	require.ErrorIs(t, err, ErrPriceNotAvailable)
}

func TestSetCustomPriceValidation(t *testing.T) {
	o, _ := newOracle(t)
	call := protocol.NewCall(admin, 1_000)

	require.ErrorIs(t, o.SetCustomPrice(call.As(stranger), tokenA, big.NewInt(1)), access.ErrUnauthorized)
	require.ErrorIs(t, o.SetCustomPrice(call, common.Address{}, big.NewInt(1)), protocol.ErrZeroAddress)
	require.ErrorIs(t, o.SetCustomPrice(call, tokenA, big.NewInt(0)), ErrZeroPrice)
	require.ErrorIs(t, o.SetCustomPrice(call, tokenA, big.NewInt(-5)), ErrNegativePrice)

	require.NoError(t, o.SetCustomPrice(call, tokenA, big.NewInt(2_000_00000000)))
	price, err := o.GetPrice(context.Background(), tokenA, 1_000+MaxPriceAge)
	require.NoError(t, err)
	require.Equal(t, "200000000000", price.Dec())

	_, err = o.GetPrice(context.Background(), tokenA, 1_001+MaxPriceAge)
	require.ErrorIs(t, err, ErrPriceNotAvailable)
	require.ErrorIs(t, err, ErrStalePrice)
}

func TestSetPriceFeedValidation(t *testing.T) {
	o, _ := newOracle(t)
	feed := NewStaticFeed(8)
	call := protocol.NewCall(admin, 10)

	require.ErrorIs(t, o.SetPriceFeed(call.As(stranger), tokenA, feedAddrA, feed), access.ErrUnauthorized)
	require.ErrorIs(t, o.SetPriceFeed(call, tokenA, common.Address{}, feed), protocol.ErrZeroAddress)
	require.ErrorIs(t, o.SetPriceFeed(call, common.Address{}, feedAddrA, feed), protocol.ErrZeroAddress)
	require.NoError(t, o.SetPriceFeed(call, tokenA, feedAddrA, feed))

	addr, ok := o.FeedOf(tokenA)
	require.True(t, ok)
	require.Equal(t, feedAddrA, addr)
}

func TestFeedTakesPriorityOverCustom(t *testing.T) {
	o, _ := newOracle(t)
	feed := NewStaticFeed(8)
	call := protocol.NewCall(admin, 1_000)
	require.NoError(t, o.SetPriceFeed(call, tokenA, feedAddrA, feed))
	require.NoError(t, o.SetCustomPrice(call, tokenA, big.NewInt(150)))

	// Feed has never answered: updatedAt == 0, fall back to custom.
	price, err := o.GetPrice(context.Background(), tokenA, 1_000)
	require.NoError(t, err)
	require.Equal(t, "150", price.Dec())

	feed.Push(big.NewInt(300), 1_000)
	price, err = o.GetPrice(context.Background(), tokenA, 1_500)
	require.NoError(t, err)
	require.Equal(t, "300", price.Dec())

	feed.Push(big.NewInt(-1), 1_500)
	price, err = o.GetPrice(context.Background(), tokenA, 1_500)
	require.NoError(t, err)
	require.Equal(t, "150", price.Dec())
}

func TestSourcesAgeIndependently(t *testing.T) {
	o, _ := newOracle(t)
	feed := NewStaticFeed(8)
	require.NoError(t, o.SetPriceFeed(protocol.NewCall(admin, 1), tokenA, feedAddrA, feed))
	feed.Push(big.NewInt(300), 1)
	require.NoError(t, o.SetCustomPrice(protocol.NewCall(admin, 50_000), tokenA, big.NewInt(150)))

	price, err := o.GetPrice(context.Background(), tokenA, 1+MaxPriceAge+1)
	require.NoError(t, err)
	require.Equal(t, "150", price.Dec())

	_, err = o.GetPrice(context.Background(), tokenA, 50_000+MaxPriceAge+1)
	require.ErrorIs(t, err, ErrPriceNotAvailable)
}

func TestValidateRound(t *testing.T) {
	round := RoundData{
		RoundID:         big.NewInt(7),
		Answer:          big.NewInt(2_000_000_000_000_000_000),
		UpdatedAt:       90,
		AnsweredInRound: big.NewInt(7),
	}
	price, err := ValidateRound(round, 18, 100)
	require.NoError(t, err)
	require.Equal(t, "200000000", price.Dec())

	price, err = ValidateRound(RoundData{Answer: big.NewInt(5), UpdatedAt: 90}, 6, 100)
	require.NoError(t, err)
	require.Equal(t, "500", price.Dec())

	cases := []struct {
		name  string
		round RoundData
		want  error
	}{
		{"zero", RoundData{Answer: big.NewInt(0), UpdatedAt: 90}, ErrZeroPrice},
		{"negative", RoundData{Answer: big.NewInt(-1), UpdatedAt: 90}, ErrNegativePrice},
		{"no timestamp", RoundData{Answer: big.NewInt(1)}, ErrInvalidTimestamp},
		{"future", RoundData{Answer: big.NewInt(1), UpdatedAt: 101}, ErrInvalidTimestamp},
		{"carried over", RoundData{Answer: big.NewInt(1), UpdatedAt: 90, RoundID: big.NewInt(3), AnsweredInRound: big.NewInt(2)}, ErrStalePrice},
	}
	for _, tc := range cases {
		_, err := ValidateRound(tc.round, 8, 100)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestOracleEmitsEvents(t *testing.T) {
	o, log := newOracle(t)
	require.NoError(t, o.SetCustomPrice(protocol.NewCall(admin, 5), tokenA, big.NewInt(9)))
	got := log.Filter(events.TypeOraclePriceSet)
	require.Len(t, got, 1)
	require.Equal(t, "9", got[0].Attributes["price"])
}
