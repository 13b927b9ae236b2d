// Package router orchestrates deadline-bounded liquidity and multi-hop
// swap operations over factory pairs. Every entry point checks its
// deadline, plans all amounts, and validates every hop before the first
// token moves.
package router

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"blxProtocol/internal/amm"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/protocol"
)

var (
	ErrInsufficientAmount       = amm.ErrInsufficientAmount
	ErrInsufficientOutputAmount = amm.ErrInsufficientOutputAmount
	ErrInvalidPath              = amm.ErrInvalidPath
	ErrExcessiveInputAmount     = errors.New("router: excessive input amount")
	ErrNativeUnsupported        = errors.New("router: no wrapped native token configured")
)

// Router holds no balances between calls; it only has custody of wrapped
// native tokens for the duration of an ETH entry point.
type Router struct {
	guard protocol.Guard

	address common.Address
	factory *amm.Factory
	wrapped *ledger.WrappedNative
	logger  *zap.Logger
}

// New builds a router. wrapped may be nil when the ETH entry points are
// not needed.
func New(address common.Address, factory *amm.Factory, wrapped *ledger.WrappedNative, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		address: address,
		factory: factory,
		wrapped: wrapped,
		logger:  logger,
	}
}

func (r *Router) Address() common.Address { return r.address }

func (r *Router) begin(call protocol.Call, deadline uint64) (func(), error) {
	if err := call.CheckDeadline(deadline); err != nil {
		return nil, err
	}
	if err := r.guard.Enter(); err != nil {
		return nil, err
	}
	return r.guard.Exit, nil
}

// route is a resolved swap path.
type route struct {
	path  []common.Address
	pairs []*amm.Pair
	hops  []amm.Hop
}

func (r *Router) resolve(path []common.Address) (*route, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: need at least two tokens", ErrInvalidPath)
	}
	rt := &route{path: path}
	seen := make(map[common.Address]bool, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		pair, err := r.factory.GetPair(path[i], path[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: hop %d: %w", ErrInvalidPath, i, err)
		}
		if seen[pair.Address()] {
			return nil, fmt.Errorf("%w: pair %s visited twice", ErrInvalidPath, pair.Address().Hex())
		}
		seen[pair.Address()] = true
		hop, err := pair.ReservesFor(path[i])
		if err != nil {
			return nil, err
		}
		rt.pairs = append(rt.pairs, pair)
		rt.hops = append(rt.hops, hop)
	}
	return rt, nil
}

// inputToken returns the ledger of path[0].
func (rt *route) inputToken() ledger.Token {
	pair := rt.pairs[0]
	if pair.Token0().Address() == rt.path[0] {
		return pair.Token0()
	}
	return pair.Token1()
}

func (rt *route) outputToken() ledger.Token {
	pair := rt.pairs[len(rt.pairs)-1]
	last := rt.path[len(rt.path)-1]
	if pair.Token0().Address() == last {
		return pair.Token0()
	}
	return pair.Token1()
}

// swapArgs orients hop i's amounts into the pair's token0/token1 order.
func (rt *route) swapArgs(i int, amounts []*uint256.Int) (in0, in1, out0, out1 *uint256.Int) {
	zero := new(uint256.Int)
	if rt.path[i] == rt.pairs[i].Token0().Address() {
		return amounts[i], zero, zero, amounts[i+1]
	}
	return zero, amounts[i], amounts[i+1], zero
}

// preflight validates every hop on reserves projected forward from the
// planned amounts.
func (r *Router) preflight(call protocol.Call, rt *route, amounts []*uint256.Int) error {
	routed := call.As(r.address)
	for i, pair := range rt.pairs {
		in0, in1, out0, out1 := rt.swapArgs(i, amounts)
		if err := pair.PreviewSwap(routed, in0, in1, out0, out1); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}

// execute runs every hop in order. The input must already sit in the
// first pair; each hop sends its output straight to the next pair.
func (r *Router) execute(call protocol.Call, rt *route, amounts []*uint256.Int, to common.Address) error {
	routed := call.As(r.address)
	for i, pair := range rt.pairs {
		_, _, out0, out1 := rt.swapArgs(i, amounts)
		recipient := to
		if i+1 < len(rt.pairs) {
			recipient = rt.pairs[i+1].Address()
		}
		if err := pair.Swap(routed, out0, out1, recipient, nil); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	r.logger.Debug("swap routed",
		zap.String("caller", call.Caller.Hex()),
		zap.Int("hops", len(rt.pairs)),
		zap.String("amountIn", amounts[0].Dec()),
		zap.String("amountOut", amounts[len(amounts)-1].Dec()),
	)
	return nil
}

// checkFunds fails when owner cannot cover amount, or the router's
// allowance is short, without moving anything.
func (r *Router) checkFunds(token ledger.Token, owner common.Address, amount *uint256.Int) error {
	if token.BalanceOf(owner).Lt(amount) {
		return fmt.Errorf("%w: %s holder %s wants %s", ledger.ErrInsufficientBalance, token.Symbol(), owner.Hex(), amount.Dec())
	}
	if owner != r.address && token.Allowance(owner, r.address).Lt(amount) {
		return fmt.Errorf("%w: %s router allowance below %s", ledger.ErrInsufficientAllowance, token.Symbol(), amount.Dec())
	}
	return nil
}

func (r *Router) pull(token ledger.Token, from, to common.Address, amount *uint256.Int) error {
	if from == r.address {
		return token.Transfer(r.address, to, amount)
	}
	return token.TransferFrom(r.address, from, to, amount)
}

// GetAmountsOut quotes a path for an exact input.
func (r *Router) GetAmountsOut(amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	rt, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	return amm.GetAmountsOut(amountIn, rt.hops)
}

// GetAmountsIn quotes a path for an exact output.
func (r *Router) GetAmountsIn(amountOut *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	rt, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	return amm.GetAmountsIn(amountOut, rt.hops)
}

// Quote converts amountA at the pair's reserve ratio.
func (r *Router) Quote(amountA *uint256.Int, tokenA, tokenB common.Address) (*uint256.Int, error) {
	pair, err := r.factory.GetPair(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	hop, err := pair.ReservesFor(tokenA)
	if err != nil {
		return nil, err
	}
	return amm.Quote(amountA, hop.ReserveIn, hop.ReserveOut)
}

func (r *Router) requireWrapped() error {
	if r.wrapped == nil {
		return ErrNativeUnsupported
	}
	return nil
}

func minOut(got, floor *uint256.Int, what string) error {
	if got.Lt(floor) {
		return fmt.Errorf("%w: %s %s below minimum %s", ErrInsufficientAmount, what, got.Dec(), floor.Dec())
	}
	return nil
}
