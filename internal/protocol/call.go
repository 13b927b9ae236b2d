// Package protocol holds the execution context shared by every entry point:
// who is calling, at what time, and the per-aggregate reentrancy guard.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

var (
	ErrExpired     = errors.New("protocol: expired")
	ErrReentrant   = errors.New("protocol: reentrant call")
	ErrZeroAddress = errors.New("protocol: zero address")
	ErrZeroAmount  = errors.New("protocol: zero amount")
)

// Call is the execution context of one top-level operation. Timestamp is
// read once by the caller and must be used for every time-dependent
// computation inside the operation.
type Call struct {
	Context   context.Context
	Caller    common.Address
	Timestamp uint64
}

// NewCall builds a Call with a background context.
func NewCall(caller common.Address, timestamp uint64) Call {
	return Call{Context: context.Background(), Caller: caller, Timestamp: timestamp}
}

// Ctx returns the call context, never nil.
func (c Call) Ctx() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

// As returns a copy of the call issued by another account at the same time.
func (c Call) As(caller common.Address) Call {
	c.Caller = caller
	return c
}

// CheckDeadline fails with ErrExpired when the call time is past deadline.
func (c Call) CheckDeadline(deadline uint64) error {
	if c.Timestamp > deadline {
		return fmt.Errorf("%w: now %d > deadline %d", ErrExpired, c.Timestamp, deadline)
	}
	return nil
}

// RequireAddress rejects the zero address.
func RequireAddress(addr common.Address, name string) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: %s", ErrZeroAddress, name)
	}
	return nil
}

// Guard marks an aggregate as having an operation in progress. A second
// Enter before Exit, nested or concurrent, is rejected.
type Guard struct {
	busy atomic.Bool
}

// Enter claims the guard.
func (g *Guard) Enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	return nil
}

// Exit releases the guard.
func (g *Guard) Exit() {
	g.busy.Store(false)
}

// Busy reports whether an operation is in progress.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}

// DeriveAddress hashes labels into a deterministic 20-byte address.
func DeriveAddress(labels ...string) common.Address {
	h := blake3.New()
	for _, label := range labels {
		h.Write([]byte(label))
		h.Write([]byte{0})
	}
	var digest [32]byte
	h.Digest().Read(digest[:])
	return common.BytesToAddress(digest[12:])
}
