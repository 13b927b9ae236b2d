// Package ledger defines the token-ledger contract consumed by the core and
// an in-memory implementation used by the scenario runner and tests.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
)

// Token is the standard fungible-token contract. Caller identities are
// explicit: from is the authenticated sender for Transfer and Approve,
// spender for TransferFrom.
type Token interface {
	Address() common.Address
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int
	BalanceOf(account common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

// Mintable is a Token whose supply is controlled by its owning aggregate
// (LP shares, staking shares, vault rewards).
type Mintable interface {
	Token
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// MemoryToken is a map-backed Mintable.
type MemoryToken struct {
	address  common.Address
	symbol   string
	decimals uint8

	mu         sync.RWMutex
	supply     uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

func NewMemoryToken(address common.Address, symbol string, decimals uint8) *MemoryToken {
	return &MemoryToken{
		address:    address,
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

func (t *MemoryToken) Address() common.Address { return t.address }
func (t *MemoryToken) Symbol() string          { return t.symbol }
func (t *MemoryToken) Decimals() uint8         { return t.decimals }

func (t *MemoryToken) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply.Clone()
}

func (t *MemoryToken) BalanceOf(account common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked(account).Clone()
}

func (t *MemoryToken) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (t *MemoryToken) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

func (t *MemoryToken) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{from, spender}
	if spender != from {
		allowed, ok := t.allowances[key]
		if !ok || allowed.Lt(amount) {
			return fmt.Errorf("%w: %s spender %s wants %s", ErrInsufficientAllowance, t.symbol, spender.Hex(), amount.Dec())
		}
	}
	if t.balanceLocked(from).Lt(amount) {
		return fmt.Errorf("%w: %s holder %s wants %s", ErrInsufficientBalance, t.symbol, from.Hex(), amount.Dec())
	}
	if spender != from {
		allowed := t.allowances[key]
		if !isUnlimited(allowed) {
			t.allowances[key] = new(uint256.Int).Sub(allowed, amount)
		}
	}
	return t.moveLocked(from, to, amount)
}

func (t *MemoryToken) Approve(owner, spender common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{owner, spender}] = amount.Clone()
	return nil
}

func (t *MemoryToken) Mint(to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(&t.supply, amount)
	if overflow {
		return fmt.Errorf("%s: mint overflows supply", t.symbol)
	}
	t.supply = *supply
	t.balances[to] = new(uint256.Int).Add(t.balanceLocked(to), amount)
	return nil
}

func (t *MemoryToken) Burn(from common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	balance := t.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s burn %s from %s", ErrInsufficientBalance, t.symbol, amount.Dec(), from.Hex())
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	t.supply.Sub(&t.supply, amount)
	return nil
}

func (t *MemoryToken) balanceLocked(account common.Address) *uint256.Int {
	if v, ok := t.balances[account]; ok {
		return v
	}
	return new(uint256.Int)
}

func (t *MemoryToken) moveLocked(from, to common.Address, amount *uint256.Int) error {
	balance := t.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holder %s has %s wants %s", ErrInsufficientBalance, t.symbol, from.Hex(), balance.Dec(), amount.Dec())
	}
	if amount.IsZero() || from == to {
		return nil
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	t.balances[to] = new(uint256.Int).Add(t.balanceLocked(to), amount)
	return nil
}

func isUnlimited(v *uint256.Int) bool {
	return v != nil && v.Eq(new(uint256.Int).SetAllOne())
}

// Unlimited returns the allowance value that is never decremented.
func Unlimited() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}
