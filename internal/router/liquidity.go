package router

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"blxProtocol/internal/amm"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/protocol"
)

type liquidityPlan struct {
	pair    *amm.Pair
	tokenA  ledger.Token
	tokenB  ledger.Token
	amountA *uint256.Int
	amountB *uint256.Int
}

// planLiquidity picks the deposit amounts for a pair at its current ratio,
// or the desired amounts for an empty pair, and checks they mint shares.
func (r *Router) planLiquidity(tokenA, tokenB ledger.Token, desiredA, desiredB, minA, minB *uint256.Int) (*liquidityPlan, error) {
	if tokenA == nil || tokenB == nil {
		return nil, fmt.Errorf("%w: token", protocol.ErrZeroAddress)
	}
	plan := &liquidityPlan{tokenA: tokenA, tokenB: tokenB}
	pair, err := r.factory.GetPair(tokenA.Address(), tokenB.Address())
	switch {
	case err == nil:
		plan.pair = pair
	case errors.Is(err, amm.ErrPairNotFound):
	default:
		return nil, err
	}

	reserveA, reserveB := new(uint256.Int), new(uint256.Int)
	if plan.pair != nil {
		hop, err := plan.pair.ReservesFor(tokenA.Address())
		if err != nil {
			return nil, err
		}
		reserveA, reserveB = hop.ReserveIn, hop.ReserveOut
	}

	if reserveA.IsZero() && reserveB.IsZero() {
		plan.amountA, plan.amountB = desiredA.Clone(), desiredB.Clone()
	} else {
		optimalB, err := amm.Quote(desiredA, reserveA, reserveB)
		if err != nil {
			return nil, err
		}
		if !optimalB.Gt(desiredB) {
			plan.amountA, plan.amountB = desiredA.Clone(), optimalB
		} else {
			optimalA, err := amm.Quote(desiredB, reserveB, reserveA)
			if err != nil {
				return nil, err
			}
			if optimalA.Gt(desiredA) {
				return nil, fmt.Errorf("%w: %s needs %s", ErrInsufficientAmount, tokenA.Symbol(), optimalA.Dec())
			}
			plan.amountA, plan.amountB = optimalA, desiredB.Clone()
		}
	}
	if err := minOut(plan.amountA, minA, tokenA.Symbol()); err != nil {
		return nil, err
	}
	if err := minOut(plan.amountB, minB, tokenB.Symbol()); err != nil {
		return nil, err
	}

	if plan.pair == nil {
		product, err := mathx.Mul(plan.amountA, plan.amountB)
		if err != nil {
			return nil, err
		}
		if !mathx.Sqrt(product).Gt(mathx.U(amm.MinimumLiquidity)) {
			return nil, amm.ErrInsufficientLiquidityMinted
		}
		return plan, nil
	}
	amount0, amount1 := plan.amountA, plan.amountB
	if plan.pair.Token0().Address() != tokenA.Address() {
		amount0, amount1 = amount1, amount0
	}
	if _, err := plan.pair.PreviewMint(amount0, amount1); err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *Router) openPair(call protocol.Call, plan *liquidityPlan) (*amm.Pair, error) {
	if plan.pair != nil {
		return plan.pair, nil
	}
	return r.factory.CreatePair(call, plan.tokenA, plan.tokenB)
}

// AddLiquidity deposits both tokens at the pair's current ratio, creating
// the pair if it does not exist, and mints shares to to.
func (r *Router) AddLiquidity(call protocol.Call, tokenA, tokenB ledger.Token, amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	release, err := r.begin(call, deadline)
	if err != nil {
		return nil, nil, nil, err
	}
	defer release()
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return nil, nil, nil, err
	}

	plan, err := r.planLiquidity(tokenA, tokenB, amountADesired, amountBDesired, amountAMin, amountBMin)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.checkFunds(tokenA, call.Caller, plan.amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := r.checkFunds(tokenB, call.Caller, plan.amountB); err != nil {
		return nil, nil, nil, err
	}

	pair, err := r.openPair(call, plan)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.pull(tokenA, call.Caller, pair.Address(), plan.amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := r.pull(tokenB, call.Caller, pair.Address(), plan.amountB); err != nil {
		return nil, nil, nil, err
	}
	liquidity, err := pair.Mint(call.As(r.address), to)
	if err != nil {
		return nil, nil, nil, err
	}
	r.logger.Debug("liquidity added",
		zap.String("pair", pair.Address().Hex()),
		zap.String("amountA", plan.amountA.Dec()),
		zap.String("amountB", plan.amountB.Dec()),
	)
	return plan.amountA, plan.amountB, liquidity, nil
}

// AddLiquidityETH pairs token with wrapped native currency. value is the
// native amount offered; only the planned amount is taken from the caller.
func (r *Router) AddLiquidityETH(call protocol.Call, token ledger.Token, value, amountTokenDesired, amountTokenMin, amountETHMin *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	release, err := r.begin(call, deadline)
	if err != nil {
		return nil, nil, nil, err
	}
	defer release()
	if err := r.requireWrapped(); err != nil {
		return nil, nil, nil, err
	}
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return nil, nil, nil, err
	}

	plan, err := r.planLiquidity(token, r.wrapped, amountTokenDesired, value, amountTokenMin, amountETHMin)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.checkFunds(token, call.Caller, plan.amountA); err != nil {
		return nil, nil, nil, err
	}
	native := r.wrapped.Native()
	if native.BalanceOf(call.Caller).Lt(plan.amountB) {
		return nil, nil, nil, fmt.Errorf("%w: native balance below %s", ledger.ErrInsufficientBalance, plan.amountB.Dec())
	}

	pair, err := r.openPair(call, plan)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.pull(token, call.Caller, pair.Address(), plan.amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := r.wrapInto(call.Caller, pair.Address(), plan.amountB); err != nil {
		return nil, nil, nil, err
	}
	liquidity, err := pair.Mint(call.As(r.address), to)
	if err != nil {
		return nil, nil, nil, err
	}
	return plan.amountA, plan.amountB, liquidity, nil
}

// wrapInto takes amount of native currency from payer, wraps it in the
// router's custody and forwards the wrapped tokens to dest.
func (r *Router) wrapInto(payer, dest common.Address, amount *uint256.Int) error {
	if err := r.wrapped.Native().Transfer(payer, r.address, amount); err != nil {
		return err
	}
	if err := r.wrapped.Deposit(r.address, amount); err != nil {
		return err
	}
	return r.wrapped.Transfer(r.address, dest, amount)
}

// RemoveLiquidity redeems liquidity shares of the (tokenA, tokenB) pair.
func (r *Router) RemoveLiquidity(call protocol.Call, tokenA, tokenB common.Address, liquidity, amountAMin, amountBMin *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, *uint256.Int, error) {
	release, err := r.begin(call, deadline)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return nil, nil, err
	}
	return r.removeLiquidity(call, tokenA, tokenB, liquidity, amountAMin, amountBMin, to)
}

func (r *Router) removeLiquidity(call protocol.Call, tokenA, tokenB common.Address, liquidity, amountAMin, amountBMin *uint256.Int, to common.Address) (*uint256.Int, *uint256.Int, error) {
	pair, err := r.factory.GetPair(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	lp := pair.LPToken()
	if err := r.checkFunds(lp, call.Caller, liquidity); err != nil {
		return nil, nil, err
	}
	aIsToken0 := pair.Token0().Address() == tokenA

	amount0, amount1, err := pair.PreviewBurn(liquidity)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB := orient(aIsToken0, amount0, amount1)
	if err := minOut(amountA, amountAMin, "amountA"); err != nil {
		return nil, nil, err
	}
	if err := minOut(amountB, amountBMin, "amountB"); err != nil {
		return nil, nil, err
	}

	if err := r.pull(lp, call.Caller, pair.Address(), liquidity); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err = pair.Burn(call.As(r.address), to)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB = orient(aIsToken0, amount0, amount1)
	r.logger.Debug("liquidity removed",
		zap.String("pair", pair.Address().Hex()),
		zap.String("amountA", amountA.Dec()),
		zap.String("amountB", amountB.Dec()),
	)
	return amountA, amountB, nil
}

// RemoveLiquidityETH redeems shares of a token/wrapped-native pair and
// pays the native side out unwrapped.
func (r *Router) RemoveLiquidityETH(call protocol.Call, token common.Address, liquidity, amountTokenMin, amountETHMin *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, *uint256.Int, error) {
	release, err := r.begin(call, deadline)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	if err := r.requireWrapped(); err != nil {
		return nil, nil, err
	}
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return nil, nil, err
	}
	pair, err := r.factory.GetPair(token, r.wrapped.Address())
	if err != nil {
		return nil, nil, err
	}
	tokenLedger := pair.Token0()
	if tokenLedger.Address() != token {
		tokenLedger = pair.Token1()
	}

	amountToken, amountETH, err := r.removeLiquidity(call, token, r.wrapped.Address(), liquidity, amountTokenMin, amountETHMin, r.address)
	if err != nil {
		return nil, nil, err
	}
	if err := tokenLedger.Transfer(r.address, to, amountToken); err != nil {
		return nil, nil, err
	}
	if err := r.wrapped.Withdraw(r.address, to, amountETH); err != nil {
		return nil, nil, err
	}
	return amountToken, amountETH, nil
}

func orient(aIsToken0 bool, amount0, amount1 *uint256.Int) (*uint256.Int, *uint256.Int) {
	if aIsToken0 {
		return amount0, amount1
	}
	return amount1, amount0
}
