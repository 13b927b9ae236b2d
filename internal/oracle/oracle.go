// Package oracle resolves a token's reference price in 8 decimals from a
// registered aggregator feed or an admin-set override. Both sources are
// rejected once older than MaxPriceAge.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"blxProtocol/internal/access"
	"blxProtocol/internal/events"
	"blxProtocol/internal/protocol"
)

const (
	// PriceDecimals is the precision of every price returned by GetPrice.
	PriceDecimals = 8
	// MaxPriceAge is the staleness window, in seconds.
	MaxPriceAge = 24 * 60 * 60
)

var (
	ErrPriceNotAvailable = errors.New("oracle: price not available")
	ErrStalePrice        = errors.New("oracle: stale price")
	ErrNegativePrice     = errors.New("oracle: negative price")
	ErrZeroPrice         = errors.New("oracle: zero price")
	ErrInvalidTimestamp  = errors.New("oracle: invalid timestamp")
	ErrInvalidDecimals   = errors.New("oracle: invalid feed decimals")
)

type entry struct {
	feedAddress     common.Address
	feed            Feed
	customPrice     *uint256.Int
	customUpdatedAt uint64
}

// PriceOracle holds one entry per token.
type PriceOracle struct {
	mu      sync.RWMutex
	entries map[common.Address]*entry

	address common.Address
	auth    access.Authorizer
	emitter events.Emitter
	logger  *zap.Logger
}

func NewPriceOracle(address common.Address, auth access.Authorizer, emitter events.Emitter, logger *zap.Logger) *PriceOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceOracle{
		entries: make(map[common.Address]*entry),
		address: address,
		auth:    auth,
		emitter: emitter,
		logger:  logger,
	}
}

func (o *PriceOracle) Address() common.Address { return o.address }

// SetPriceFeed registers feed as the primary source for token.
func (o *PriceOracle) SetPriceFeed(call protocol.Call, token, feedAddress common.Address, feed Feed) error {
	if err := access.Require(o.auth, access.RoleOracleAdmin, call.Caller); err != nil {
		o.logger.Warn("set price feed rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	if err := protocol.RequireAddress(token, "token"); err != nil {
		return err
	}
	if err := protocol.RequireAddress(feedAddress, "feed"); err != nil {
		return err
	}
	if feed == nil {
		return fmt.Errorf("%w: feed", protocol.ErrZeroAddress)
	}

	o.mu.Lock()
	e := o.entryLocked(token)
	e.feedAddress = feedAddress
	e.feed = feed
	o.mu.Unlock()

	o.logger.Debug("price feed set", zap.String("token", token.Hex()), zap.String("feed", feedAddress.Hex()))
	events.Publish(o.emitter, o.address, call.Timestamp, events.OracleFeedSet{Token: token, Feed: feedAddress})
	return nil
}

// SetCustomPrice records an 8-decimal override for token stamped with the
// call time.
func (o *PriceOracle) SetCustomPrice(call protocol.Call, token common.Address, price *big.Int) error {
	if err := access.Require(o.auth, access.RoleOracleAdmin, call.Caller); err != nil {
		o.logger.Warn("set custom price rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	if err := protocol.RequireAddress(token, "token"); err != nil {
		return err
	}
	value, err := checkAnswer(price)
	if err != nil {
		return err
	}
	if call.Timestamp == 0 {
		return ErrInvalidTimestamp
	}

	o.mu.Lock()
	e := o.entryLocked(token)
	e.customPrice = value
	e.customUpdatedAt = call.Timestamp
	o.mu.Unlock()

	o.logger.Debug("custom price set", zap.String("token", token.Hex()), zap.String("price", value.Dec()))
	events.Publish(o.emitter, o.address, call.Timestamp, events.OraclePriceSet{Token: token, Price: value})
	return nil
}

// GetPrice returns the 8-decimal price of token at time now. A fresh,
// positive feed answer wins; otherwise a fresh custom price is used.
func (o *PriceOracle) GetPrice(ctx context.Context, token common.Address, now uint64) (*uint256.Int, error) {
	o.mu.RLock()
	e, ok := o.entries[token]
	var (
		feed            Feed
		customPrice     *uint256.Int
		customUpdatedAt uint64
	)
	if ok {
		feed = e.feed
		if e.customPrice != nil {
			customPrice = e.customPrice.Clone()
		}
		customUpdatedAt = e.customUpdatedAt
	}
	o.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPriceNotAvailable, token.Hex())
	}

	var feedErr error
	if feed != nil {
		price, err := ReadFeed(ctx, feed, now)
		if err == nil {
			return price, nil
		}
		feedErr = err
		o.logger.Debug("feed rejected, trying custom price", zap.String("token", token.Hex()), zap.Error(err))
	}

	if customPrice != nil {
		err := checkAge(customUpdatedAt, now)
		if err == nil {
			return customPrice, nil
		}
		if feedErr == nil {
			feedErr = err
		}
	}

	if feedErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPriceNotAvailable, token.Hex(), feedErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrPriceNotAvailable, token.Hex())
}

// FeedOf returns the registered feed address for token, if any.
func (o *PriceOracle) FeedOf(token common.Address) (common.Address, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[token]
	if !ok || e.feed == nil {
		return common.Address{}, false
	}
	return e.feedAddress, true
}

func (o *PriceOracle) entryLocked(token common.Address) *entry {
	e, ok := o.entries[token]
	if !ok {
		e = &entry{}
		o.entries[token] = e
	}
	return e
}

// ReadFeed reads the latest round of feed and validates it at time now,
// returning the answer scaled to PriceDecimals.
func ReadFeed(ctx context.Context, feed Feed, now uint64) (*uint256.Int, error) {
	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("read round: %w", err)
	}
	decimals, err := feed.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("read decimals: %w", err)
	}
	return ValidateRound(round, decimals, now)
}

// ValidateRound applies the sign, timestamp and staleness checks to a
// round and normalises its answer to PriceDecimals.
func ValidateRound(round RoundData, decimals uint8, now uint64) (*uint256.Int, error) {
	value, err := checkAnswer(round.Answer)
	if err != nil {
		return nil, err
	}
	if round.UpdatedAt == 0 {
		return nil, ErrInvalidTimestamp
	}
	if err := checkAge(round.UpdatedAt, now); err != nil {
		return nil, err
	}
	if round.AnsweredInRound != nil && round.RoundID != nil && round.AnsweredInRound.Cmp(round.RoundID) < 0 {
		return nil, fmt.Errorf("%w: answered in round %s < round %s", ErrStalePrice, round.AnsweredInRound, round.RoundID)
	}
	return normalise(value, decimals)
}

func checkAnswer(price *big.Int) (*uint256.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrZeroPrice
	}
	if price.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegativePrice, price)
	}
	value, overflow := uint256.FromBig(price)
	if overflow {
		return nil, fmt.Errorf("oracle: price %s overflows 256 bits", price)
	}
	return value, nil
}

func checkAge(updatedAt, now uint64) error {
	if updatedAt > now {
		return fmt.Errorf("%w: updated at %d is after %d", ErrInvalidTimestamp, updatedAt, now)
	}
	if now-updatedAt > MaxPriceAge {
		return fmt.Errorf("%w: age %ds", ErrStalePrice, now-updatedAt)
	}
	return nil
}

func normalise(value *uint256.Int, decimals uint8) (*uint256.Int, error) {
	switch {
	case decimals == PriceDecimals:
		return value, nil
	case decimals > 77:
		return nil, fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	case decimals > PriceDecimals:
		scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals-PriceDecimals)))
		out := new(uint256.Int).Div(value, scale)
		if out.IsZero() {
			return nil, ErrZeroPrice
		}
		return out, nil
	default:
		scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(PriceDecimals-decimals)))
		out, overflow := new(uint256.Int).MulOverflow(value, scale)
		if overflow {
			return nil, fmt.Errorf("%w: price overflows", ErrInvalidDecimals)
		}
		return out, nil
	}
}
