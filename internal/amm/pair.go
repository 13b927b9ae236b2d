// Package amm implements the constant-product market maker: a factory that
// deploys pairs, the pair itself, and the pure pricing library the router
// uses to plan multi-hop swaps.
package amm

import (
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
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/metrics"
	"blxProtocol/internal/protocol"
)

var (
	ErrInsufficientLiquidityMinted = errors.New("amm: insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("amm: insufficient liquidity burned")
	ErrKInvariant                  = errors.New("amm: K invariant violated")
	ErrPriceOutsideBounds          = errors.New("amm: price outside bounds")
	ErrFlashSwapUnsupported        = errors.New("amm: flash swaps are not supported")
	ErrInvalidTo                   = errors.New("amm: invalid recipient")
	ErrNotInitialized              = errors.New("amm: pair not initialized")
	ErrAlreadyInitialized          = errors.New("amm: pair already initialized")
)

// MaxReserve bounds each reserve so that fee-adjusted K products stay
// within 256 bits.
var MaxReserve = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))

// State is the lifecycle stage of a pair.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pair holds the reserves of two tokens and issues liquidity shares.
// Tokens are sent to the pair first, then Mint, Burn or Swap reconcile the
// pair's balances against its reserves.
type Pair struct {
	mu    sync.RWMutex
	guard protocol.Guard

	address  common.Address
	factory  common.Address
	settings Settings

	token0 ledger.Token
	token1 ledger.Token
	lp     *ledger.MemoryToken

	reserve0   *uint256.Int
	reserve1   *uint256.Int
	lastUpdate uint64
	kLast      *uint256.Int

	emitter events.Emitter
	logger  *zap.Logger
	metrics *metrics.ProtocolMetrics
}

func newPair(address, factory common.Address, settings Settings, emitter events.Emitter, logger *zap.Logger, m *metrics.ProtocolMetrics) *Pair {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pair{
		address:  address,
		factory:  factory,
		settings: settings,
		reserve0: new(uint256.Int),
		reserve1: new(uint256.Int),
		kLast:    new(uint256.Int),
		emitter:  emitter,
		logger:   logger.With(zap.String("pair", address.Hex())),
		metrics:  m,
	}
}

// Initialize binds the pair's tokens. Only the factory may call it, once.
func (p *Pair) Initialize(call protocol.Call, token0, token1 ledger.Token) error {
	if call.Caller != p.factory {
		return fmt.Errorf("%w: only the factory initializes pairs", access.ErrUnauthorized)
	}
	if err := p.guard.Enter(); err != nil {
		return err
	}
	defer p.guard.Exit()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token0 != nil {
		return ErrAlreadyInitialized
	}
	if token0 == nil || token1 == nil {
		return fmt.Errorf("%w: token", protocol.ErrZeroAddress)
	}
	if token0.Address() == token1.Address() {
		return ErrIdenticalAddresses
	}
	p.token0 = token0
	p.token1 = token1
	lpAddress := protocol.DeriveAddress("lp", p.address.Hex())
	p.lp = ledger.NewMemoryToken(lpAddress, token0.Symbol()+"-"+token1.Symbol()+"-LP", 18)
	return nil
}

func (p *Pair) Address() common.Address { return p.address }

func (p *Pair) Token0() ledger.Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token0
}

func (p *Pair) Token1() ledger.Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token1
}

// LPToken is the liquidity share ledger.
func (p *Pair) LPToken() ledger.Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lp
}

func (p *Pair) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateLocked()
}

func (p *Pair) stateLocked() State {
	switch {
	case p.token0 == nil:
		return StateUninitialized
	case p.reserve0.IsZero() || p.reserve1.IsZero():
		return StateInitialized
	default:
		return StateActive
	}
}

// GetReserves returns copies of both reserves and the time of the last update.
func (p *Pair) GetReserves() (*uint256.Int, *uint256.Int, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserve0.Clone(), p.reserve1.Clone(), p.lastUpdate
}

func (p *Pair) KLast() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.kLast.Clone()
}

// ReservesFor orients the reserves along a swap from tokenIn.
func (p *Pair) ReservesFor(tokenIn common.Address) (Hop, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token0 == nil {
		return Hop{}, ErrNotInitialized
	}
	switch tokenIn {
	case p.token0.Address():
		return Hop{ReserveIn: p.reserve0.Clone(), ReserveOut: p.reserve1.Clone()}, nil
	case p.token1.Address():
		return Hop{ReserveIn: p.reserve1.Clone(), ReserveOut: p.reserve0.Clone()}, nil
	default:
		return Hop{}, fmt.Errorf("%w: %s not in pair %s", ErrInvalidPath, tokenIn.Hex(), p.address.Hex())
	}
}

func (p *Pair) enter() (func(), error) {
	if err := p.guard.Enter(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.token0 == nil {
		p.mu.Unlock()
		p.guard.Exit()
		return nil, ErrNotInitialized
	}
	return func() {
		p.mu.Unlock()
		p.guard.Exit()
	}, nil
}

// Mint issues shares to to for the tokens sent to the pair since the last
// reserve update.
func (p *Pair) Mint(call protocol.Call, to common.Address) (*uint256.Int, error) {
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return nil, err
	}
	release, err := p.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	balance0 := p.token0.BalanceOf(p.address)
	balance1 := p.token1.BalanceOf(p.address)
	if err := checkReserves(balance0, balance1); err != nil {
		return nil, err
	}
	amount0, err := mathx.Sub(balance0, p.reserve0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientLiquidityMinted, err)
	}
	amount1, err := mathx.Sub(balance1, p.reserve1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientLiquidityMinted, err)
	}

	liquidity, fee, first, err := p.mintQuoteLocked(amount0, amount1)
	if err != nil {
		return nil, err
	}

	if err := p.applyProtocolFeeLocked(fee); err != nil {
		return nil, err
	}
	if first {
		if err := p.lp.Mint(common.Address{}, mathx.U(MinimumLiquidity)); err != nil {
			return nil, err
		}
	}
	if err := p.lp.Mint(to, liquidity); err != nil {
		return nil, err
	}
	p.updateLocked(call.Timestamp, balance0, balance1)
	if fee.on {
		p.kLast = new(uint256.Int).Mul(p.reserve0, p.reserve1)
	}

	p.logger.Debug("liquidity minted",
		zap.String("to", to.Hex()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
		zap.String("liquidity", liquidity.Dec()),
	)
	p.metrics.ObserveLiquidity(p.address.Hex(), "mint")
	events.Publish(p.emitter, p.address, call.Timestamp, events.LiquidityMinted{
		Sender: call.Caller, To: to, Amount0: amount0, Amount1: amount1, Liquidity: liquidity,
	})
	return liquidity.Clone(), nil
}

// mintQuoteLocked returns the shares owed for depositing amount0/amount1,
// after accounting for the pending protocol fee.
func (p *Pair) mintQuoteLocked(amount0, amount1 *uint256.Int) (*uint256.Int, protocolFee, bool, error) {
	fee, err := p.protocolFeeLocked()
	if err != nil {
		return nil, fee, false, err
	}
	supply, err := mathx.Add(p.lp.TotalSupply(), fee.liquidity)
	if err != nil {
		return nil, fee, false, err
	}

	var liquidity *uint256.Int
	first := supply.IsZero()
	if first {
		product, err := mathx.Mul(amount0, amount1)
		if err != nil {
			return nil, fee, false, err
		}
		root := mathx.Sqrt(product)
		if !root.Gt(mathx.U(MinimumLiquidity)) {
			return nil, fee, false, fmt.Errorf("%w: initial liquidity %s", ErrInsufficientLiquidityMinted, root.Dec())
		}
		liquidity = new(uint256.Int).Sub(root, mathx.U(MinimumLiquidity))
	} else {
		liquidity0, err := mathx.MulDiv(amount0, supply, p.reserve0)
		if err != nil {
			return nil, fee, false, err
		}
		liquidity1, err := mathx.MulDiv(amount1, supply, p.reserve1)
		if err != nil {
			return nil, fee, false, err
		}
		liquidity = mathx.Min(liquidity0, liquidity1)
	}
	if liquidity.IsZero() {
		return nil, fee, false, ErrInsufficientLiquidityMinted
	}
	return liquidity, fee, first, nil
}

func (p *Pair) burnQuoteLocked(liquidity, balance0, balance1 *uint256.Int) (*uint256.Int, *uint256.Int, protocolFee, error) {
	if liquidity.IsZero() {
		return nil, nil, protocolFee{}, ErrInsufficientLiquidityBurned
	}
	fee, err := p.protocolFeeLocked()
	if err != nil {
		return nil, nil, fee, err
	}
	supply, err := mathx.Add(p.lp.TotalSupply(), fee.liquidity)
	if err != nil {
		return nil, nil, fee, err
	}
	amount0, err := mathx.MulDiv(liquidity, balance0, supply)
	if err != nil {
		return nil, nil, fee, err
	}
	amount1, err := mathx.MulDiv(liquidity, balance1, supply)
	if err != nil {
		return nil, nil, fee, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		return nil, nil, fee, ErrInsufficientLiquidityBurned
	}
	return amount0, amount1, fee, nil
}

// PreviewMint returns the shares a deposit of amount0/amount1 on top of the
// current reserves would mint.
func (p *Pair) PreviewMint(amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token0 == nil {
		return nil, ErrNotInitialized
	}
	liquidity, _, _, err := p.mintQuoteLocked(amount0, amount1)
	return liquidity, err
}

// PreviewBurn returns the token amounts liquidity shares redeem for now.
func (p *Pair) PreviewBurn(liquidity *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token0 == nil {
		return nil, nil, ErrNotInitialized
	}
	amount0, amount1, _, err := p.burnQuoteLocked(liquidity, p.reserve0, p.reserve1)
	return amount0, amount1, err
}

// Burn redeems the shares held by the pair itself and sends the
// proportional reserves to to.
func (p *Pair) Burn(call protocol.Call, to common.Address) (*uint256.Int, *uint256.Int, error) {
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return nil, nil, err
	}
	release, err := p.enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	balance0 := p.token0.BalanceOf(p.address)
	balance1 := p.token1.BalanceOf(p.address)
	liquidity := p.lp.BalanceOf(p.address)
	amount0, amount1, fee, err := p.burnQuoteLocked(liquidity, balance0, balance1)
	if err != nil {
		return nil, nil, err
	}

	if err := p.applyProtocolFeeLocked(fee); err != nil {
		return nil, nil, err
	}
	if err := p.lp.Burn(p.address, liquidity); err != nil {
		return nil, nil, err
	}
	if err := p.token0.Transfer(p.address, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.token1.Transfer(p.address, to, amount1); err != nil {
		return nil, nil, err
	}
	p.updateLocked(call.Timestamp, p.token0.BalanceOf(p.address), p.token1.BalanceOf(p.address))
	if fee.on {
		p.kLast = new(uint256.Int).Mul(p.reserve0, p.reserve1)
	}

	p.logger.Debug("liquidity burned",
		zap.String("to", to.Hex()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
		zap.String("liquidity", liquidity.Dec()),
	)
	p.metrics.ObserveLiquidity(p.address.Hex(), "burn")
	events.Publish(p.emitter, p.address, call.Timestamp, events.LiquidityBurned{
		Sender: call.Caller, To: to, Amount0: amount0, Amount1: amount1, Liquidity: liquidity,
	})
	return amount0, amount1, nil
}

// Swap sends the requested outputs to to, paid for by the input already
// transferred to the pair. The post-swap balances are verified against the
// fee-adjusted K invariant and the oracle bounds before any output leaves
// the pair. A non-empty data payload requests a flash swap, which is
// rejected.
func (p *Pair) Swap(call protocol.Call, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error {
	if len(data) > 0 {
		return ErrFlashSwapUnsupported
	}
	if amount0Out.IsZero() && amount1Out.IsZero() {
		return ErrInsufficientOutputAmount
	}
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return err
	}
	release, err := p.enter()
	if err != nil {
		return err
	}
	defer release()

	if !amount0Out.Lt(p.reserve0) || !amount1Out.Lt(p.reserve1) {
		p.metrics.ObserveRejected("amm", "liquidity")
		return fmt.Errorf("%w: out %s/%s reserves %s/%s", ErrInsufficientLiquidity,
			amount0Out.Dec(), amount1Out.Dec(), p.reserve0.Dec(), p.reserve1.Dec())
	}
	if to == p.token0.Address() || to == p.token1.Address() {
		return ErrInvalidTo
	}

	balance0, err := mathx.Sub(p.token0.BalanceOf(p.address), amount0Out)
	if err != nil {
		return err
	}
	balance1, err := mathx.Sub(p.token1.BalanceOf(p.address), amount1Out)
	if err != nil {
		return err
	}
	amount0In := inflow(balance0, p.reserve0, amount0Out)
	amount1In := inflow(balance1, p.reserve1, amount1Out)
	if err := p.validateSwapLocked(call, balance0, balance1, amount0In, amount1In); err != nil {
		return err
	}

	if !amount0Out.IsZero() {
		if err := p.token0.Transfer(p.address, to, amount0Out); err != nil {
			return err
		}
	}
	if !amount1Out.IsZero() {
		if err := p.token1.Transfer(p.address, to, amount1Out); err != nil {
			return err
		}
	}
	p.updateLocked(call.Timestamp, p.token0.BalanceOf(p.address), p.token1.BalanceOf(p.address))

	p.logger.Debug("swap",
		zap.String("to", to.Hex()),
		zap.String("amount0In", amount0In.Dec()),
		zap.String("amount1In", amount1In.Dec()),
		zap.String("amount0Out", amount0Out.Dec()),
		zap.String("amount1Out", amount1Out.Dec()),
	)
	p.metrics.ObserveSwap(p.address.Hex())
	events.Publish(p.emitter, p.address, call.Timestamp, events.Swap{
		Sender:     call.Caller,
		To:         to,
		Amount0In:  amount0In,
		Amount1In:  amount1In,
		Amount0Out: amount0Out.Clone(),
		Amount1Out: amount1Out.Clone(),
		FeeBps:     SwapFeeBps,
	})
	return nil
}

// PreviewSwap checks a swap against the current reserves as if the inputs
// had been transferred in, without touching any balance.
func (p *Pair) PreviewSwap(call protocol.Call, amount0In, amount1In, amount0Out, amount1Out *uint256.Int) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token0 == nil {
		return ErrNotInitialized
	}
	if amount0Out.IsZero() && amount1Out.IsZero() {
		return ErrInsufficientOutputAmount
	}
	if !amount0Out.Lt(p.reserve0) || !amount1Out.Lt(p.reserve1) {
		return ErrInsufficientLiquidity
	}
	balance0, err := projected(p.reserve0, amount0In, amount0Out)
	if err != nil {
		return err
	}
	balance1, err := projected(p.reserve1, amount1In, amount1Out)
	if err != nil {
		return err
	}
	return p.validateSwapLocked(call, balance0, balance1, amount0In, amount1In)
}

func (p *Pair) validateSwapLocked(call protocol.Call, balance0, balance1, amount0In, amount1In *uint256.Int) error {
	if amount0In.IsZero() && amount1In.IsZero() {
		return ErrInsufficientInputAmount
	}
	if err := checkReserves(balance0, balance1); err != nil {
		return err
	}
	adjusted0, err := feeAdjusted(balance0, amount0In)
	if err != nil {
		return err
	}
	adjusted1, err := feeAdjusted(balance1, amount1In)
	if err != nil {
		return err
	}
	after, err := mathx.Mul(adjusted0, adjusted1)
	if err != nil {
		return err
	}
	before := new(uint256.Int).Mul(p.reserve0, p.reserve1)
	before, err = mathx.Mul(before, mathx.U(mathx.BpsDenominator*mathx.BpsDenominator))
	if err != nil {
		return err
	}
	if after.Lt(before) {
		p.metrics.ObserveRejected("amm", "k")
		return ErrKInvariant
	}
	if err := p.checkPriceLocked(call.Ctx(), call.Timestamp, balance0, balance1); err != nil {
		p.metrics.ObserveRejected("amm", "price")
		return err
	}
	return nil
}

// checkPriceLocked compares the pool's spot price of token0 in token1 with
// the oracle cross price, in both directions.
func (p *Pair) checkPriceLocked(ctx context.Context, now uint64, balance0, balance1 *uint256.Int) error {
	if p.settings == nil {
		return nil
	}
	source, maxDeviation := p.settings.PriceOracle()
	if source == nil {
		return nil
	}
	price0, err := source.GetPrice(ctx, p.token0.Address(), now)
	if err != nil {
		return fmt.Errorf("price %s: %w", p.token0.Symbol(), err)
	}
	price1, err := source.GetPrice(ctx, p.token1.Address(), now)
	if err != nil {
		return fmt.Errorf("price %s: %w", p.token1.Symbol(), err)
	}

	// spot = (b1 / 10^d1) / (b0 / 10^d0), reference = price0 / price1.
	// Both sides are scaled by b0 * 10^d1 * price1.
	spot, err := mul3(balance1, pow10(p.token0.Decimals()), price1)
	if err != nil {
		return err
	}
	reference, err := mul3(balance0, pow10(p.token1.Decimals()), price0)
	if err != nil {
		return err
	}
	var diff uint256.Int
	if spot.Gt(reference) {
		diff.Sub(spot, reference)
	} else {
		diff.Sub(reference, spot)
	}
	scaledDiff, err := mathx.Mul(&diff, mathx.U(mathx.BpsDenominator))
	if err != nil {
		return err
	}
	for _, base := range []*uint256.Int{reference, spot} {
		bound, err := mathx.Mul(base, mathx.U(maxDeviation))
		if err != nil {
			return err
		}
		if scaledDiff.Gt(bound) {
			return fmt.Errorf("%w: deviation above %d bps", ErrPriceOutsideBounds, maxDeviation)
		}
	}
	return nil
}

// Skim sends any balance above the reserves to to.
func (p *Pair) Skim(call protocol.Call, to common.Address) error {
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return err
	}
	release, err := p.enter()
	if err != nil {
		return err
	}
	defer release()
	for _, side := range []struct {
		token   ledger.Token
		reserve *uint256.Int
	}{{p.token0, p.reserve0}, {p.token1, p.reserve1}} {
		excess, err := mathx.Sub(side.token.BalanceOf(p.address), side.reserve)
		if err != nil || excess.IsZero() {
			continue
		}
		if err := side.token.Transfer(p.address, to, excess); err != nil {
			return err
		}
	}
	return nil
}

// Sync sets the reserves to the current balances.
func (p *Pair) Sync(call protocol.Call) error {
	release, err := p.enter()
	if err != nil {
		return err
	}
	defer release()
	balance0 := p.token0.BalanceOf(p.address)
	balance1 := p.token1.BalanceOf(p.address)
	if err := checkReserves(balance0, balance1); err != nil {
		return err
	}
	p.updateLocked(call.Timestamp, balance0, balance1)
	return nil
}

func (p *Pair) updateLocked(now uint64, balance0, balance1 *uint256.Int) {
	p.reserve0 = balance0.Clone()
	p.reserve1 = balance1.Clone()
	p.lastUpdate = now
	p.metrics.SetReserves(p.address.Hex(), p.reserve0, p.reserve1)
	events.Publish(p.emitter, p.address, now, events.Sync{Reserve0: p.reserve0.Clone(), Reserve1: p.reserve1.Clone()})
}

type protocolFee struct {
	on        bool
	receiver  common.Address
	liquidity *uint256.Int
}

// protocolFeeLocked computes the shares owed to the fee receiver for the
// growth of sqrt(K) since kLast. A fraction protocolFeeBps/SwapFeeBps of
// that growth is minted:
//
//	S * p * (rootK - rootKLast) / ((F - p) * rootK + p * rootKLast)
func (p *Pair) protocolFeeLocked() (protocolFee, error) {
	fee := protocolFee{liquidity: new(uint256.Int)}
	if p.settings == nil {
		return fee, nil
	}
	receiver, bps := p.settings.ProtocolFee()
	fee.receiver = receiver
	fee.on = receiver != (common.Address{}) && bps > 0
	if !fee.on || p.kLast.IsZero() {
		return fee, nil
	}
	rootK := mathx.Sqrt(new(uint256.Int).Mul(p.reserve0, p.reserve1))
	rootKLast := mathx.Sqrt(p.kLast)
	if !rootK.Gt(rootKLast) {
		return fee, nil
	}
	growth := new(uint256.Int).Sub(rootK, rootKLast)
	numerator, err := mathx.Mul(p.lp.TotalSupply(), mathx.U(bps))
	if err != nil {
		return fee, err
	}
	denominator, err := mathx.Mul(rootK, mathx.U(SwapFeeBps-bps))
	if err != nil {
		return fee, err
	}
	tail, err := mathx.Mul(rootKLast, mathx.U(bps))
	if err != nil {
		return fee, err
	}
	denominator, err = mathx.Add(denominator, tail)
	if err != nil {
		return fee, err
	}
	liquidity, err := mathx.MulDiv(numerator, growth, denominator)
	if err != nil {
		return fee, err
	}
	fee.liquidity = liquidity
	return fee, nil
}

func (p *Pair) applyProtocolFeeLocked(fee protocolFee) error {
	if !fee.on {
		p.kLast = new(uint256.Int)
		return nil
	}
	if fee.liquidity.IsZero() {
		return nil
	}
	p.logger.Debug("protocol fee minted", zap.String("receiver", fee.receiver.Hex()), zap.String("liquidity", fee.liquidity.Dec()))
	return p.lp.Mint(fee.receiver, fee.liquidity)
}

func checkReserves(balance0, balance1 *uint256.Int) error {
	if balance0.Gt(MaxReserve) || balance1.Gt(MaxReserve) {
		return fmt.Errorf("%w: reserve above 2^112-1", mathx.ErrOverflow)
	}
	return nil
}

// inflow is balance - (reserve - out), or zero when the balance did not
// grow past the post-output reserve.
func inflow(balance, reserve, out *uint256.Int) *uint256.Int {
	floor := new(uint256.Int).Sub(reserve, out)
	if balance.Gt(floor) {
		return new(uint256.Int).Sub(balance, floor)
	}
	return new(uint256.Int)
}

func projected(reserve, in, out *uint256.Int) (*uint256.Int, error) {
	total, err := mathx.Add(reserve, in)
	if err != nil {
		return nil, err
	}
	return mathx.Sub(total, out)
}

// feeAdjusted returns balance*10000 - amountIn*SwapFeeBps.
func feeAdjusted(balance, amountIn *uint256.Int) (*uint256.Int, error) {
	scaled, err := mathx.Mul(balance, mathx.U(mathx.BpsDenominator))
	if err != nil {
		return nil, err
	}
	fee, err := mathx.Mul(amountIn, mathx.U(SwapFeeBps))
	if err != nil {
		return nil, err
	}
	return mathx.Sub(scaled, fee)
}

func mul3(a, b, c *uint256.Int) (*uint256.Int, error) {
	ab, err := mathx.Mul(a, b)
	if err != nil {
		return nil, err
	}
	return mathx.Mul(ab, c)
}

func pow10(decimals uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
}
