package amm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"blxProtocol/internal/access"
	"blxProtocol/internal/events"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/metrics"
	"blxProtocol/internal/protocol"
)

const (
	// MaxProtocolFeeBps is the hard ceiling for the protocol fee.
	MaxProtocolFeeBps = 100
	// DefaultMaxPriceDeviationBps bounds post-swap prices around the oracle.
	DefaultMaxPriceDeviationBps = 500
)

var (
	ErrIdenticalAddresses = errors.New("amm: identical addresses")
	ErrPairExists         = errors.New("amm: pair exists")
	ErrPairNotFound       = errors.New("amm: pair not found")
	ErrFeeTooHigh         = errors.New("amm: fee too high")
	ErrInvalidDeviation   = errors.New("amm: invalid price deviation")
)

// PriceSource returns 8-decimal reference prices.
type PriceSource interface {
	GetPrice(ctx context.Context, token common.Address, now uint64) (*uint256.Int, error)
}

// Settings are the governance parameters every pair reads at call time.
type Settings interface {
	ProtocolFee() (receiver common.Address, bps uint64)
	PriceOracle() (PriceSource, uint64)
}

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// Factory deploys pairs and owns their shared governance settings.
type Factory struct {
	mu    sync.RWMutex
	pairs map[pairKey]*Pair
	all   []*Pair

	feeTo          common.Address
	protocolFeeBps uint64
	oracle         PriceSource
	maxDeviation   uint64

	address common.Address
	auth    access.Authorizer
	emitter events.Emitter
	logger  *zap.Logger
	metrics *metrics.ProtocolMetrics
}

type FactoryOption func(*Factory)

func WithMetrics(m *metrics.ProtocolMetrics) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

func WithEmitter(e events.Emitter) FactoryOption {
	return func(f *Factory) { f.emitter = e }
}

func WithLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFactory(address common.Address, auth access.Authorizer, opts ...FactoryOption) *Factory {
	f := &Factory{
		pairs:        make(map[pairKey]*Pair),
		maxDeviation: DefaultMaxPriceDeviationBps,
		address:      address,
		auth:         auth,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Address() common.Address { return f.address }

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	if a == b {
		return common.Address{}, common.Address{}, ErrIdenticalAddresses
	}
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	if a == (common.Address{}) {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: token", protocol.ErrZeroAddress)
	}
	return a, b, nil
}

// PairAddress derives the deterministic address of the (a, b) pair.
func (f *Factory) PairAddress(a, b common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(a, b)
	if err != nil {
		return common.Address{}, err
	}
	return protocol.DeriveAddress("pair", f.address.Hex(), token0.Hex(), token1.Hex()), nil
}

// CreatePair deploys and initializes the pair for two tokens.
func (f *Factory) CreatePair(call protocol.Call, tokenA, tokenB ledger.Token) (*Pair, error) {
	if tokenA == nil || tokenB == nil {
		return nil, fmt.Errorf("%w: token", protocol.ErrZeroAddress)
	}
	token0, token1 := tokenA, tokenB
	if bytes.Compare(token0.Address().Bytes(), token1.Address().Bytes()) > 0 {
		token0, token1 = token1, token0
	}
	address, err := f.PairAddress(token0.Address(), token1.Address())
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{token0.Address(), token1.Address()}
	if _, ok := f.pairs[key]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairExists, token0.Symbol(), token1.Symbol())
	}

	pair := newPair(address, f.address, f, f.emitter, f.logger, f.metrics)
	if err := pair.Initialize(call.As(f.address), token0, token1); err != nil {
		return nil, err
	}
	f.pairs[key] = pair
	f.all = append(f.all, pair)

	f.logger.Info("pair created",
		zap.String("pair", address.Hex()),
		zap.String("token0", token0.Symbol()),
		zap.String("token1", token1.Symbol()),
	)
	events.Publish(f.emitter, f.address, call.Timestamp, events.PairCreated{
		Token0: token0.Address(),
		Token1: token1.Address(),
		Pair:   address,
		Index:  len(f.all) - 1,
	})
	return pair, nil
}

// GetPair returns the pair for two tokens in either order.
func (f *Factory) GetPair(a, b common.Address) (*Pair, error) {
	token0, token1, err := SortTokens(a, b)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	pair, ok := f.pairs[pairKey{token0, token1}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, a.Hex(), b.Hex())
	}
	return pair, nil
}

// AllPairs returns pairs in creation order.
func (f *Factory) AllPairs() []*Pair {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Pair, len(f.all))
	copy(out, f.all)
	return out
}

// SetProtocolFee sets the share of the swap fee, in bps of volume, minted
// to the fee receiver. It cannot exceed MaxProtocolFeeBps or the swap fee.
func (f *Factory) SetProtocolFee(call protocol.Call, bps uint64) error {
	if err := access.Require(f.auth, access.RoleFeeAdmin, call.Caller); err != nil {
		f.logger.Warn("set protocol fee rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	if bps > MaxProtocolFeeBps || bps > SwapFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
	}
	f.mu.Lock()
	f.protocolFeeBps = bps
	f.mu.Unlock()
	f.logger.Info("protocol fee set", zap.Uint64("bps", bps))
	return nil
}

// SetFeeReceiver sets where protocol fees are minted; the zero address
// turns the fee off.
func (f *Factory) SetFeeReceiver(call protocol.Call, receiver common.Address) error {
	if err := access.Require(f.auth, access.RoleFeeAdmin, call.Caller); err != nil {
		f.logger.Warn("set fee receiver rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	f.mu.Lock()
	f.feeTo = receiver
	f.mu.Unlock()
	return nil
}

// SetPriceOracle configures the swap price guard; nil disables it.
func (f *Factory) SetPriceOracle(call protocol.Call, oracle PriceSource) error {
	if err := access.Require(f.auth, access.RoleOracleAdmin, call.Caller); err != nil {
		f.logger.Warn("set price oracle rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	f.mu.Lock()
	f.oracle = oracle
	f.mu.Unlock()
	return nil
}

func (f *Factory) SetMaxPriceDeviation(call protocol.Call, bps uint64) error {
	if err := access.Require(f.auth, access.RoleOracleAdmin, call.Caller); err != nil {
		f.logger.Warn("set max price deviation rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	if bps == 0 || bps > 10_000 {
		return fmt.Errorf("%w: %d bps", ErrInvalidDeviation, bps)
	}
	f.mu.Lock()
	f.maxDeviation = bps
	f.mu.Unlock()
	return nil
}

func (f *Factory) ProtocolFee() (common.Address, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeTo, f.protocolFeeBps
}

func (f *Factory) PriceOracle() (PriceSource, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.oracle, f.maxDeviation
}
