package aggregate

import (
	"fmt"

	"github.com/holiman/uint256"

	"blxProtocol/internal/events"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/model"
)

// Accumulator holds aggregate values for a pair window.
type Accumulator struct {
	RunID       string
	PairAddress string
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	Volume0     *uint256.Int
	Volume1     *uint256.Int
	Fee0        *uint256.Int
	Fee1        *uint256.Int
	Reserve0    *uint256.Int
	Reserve1    *uint256.Int
	LastTS      uint64
}

// NewAccumulator opens a window for the pair that emitted record. The
// reserves carry over from the previous window until a sync arrives.
func NewAccumulator(record model.EventRecord, windowStart, windowEnd uint64, reserves *model.SyncData) *Accumulator {
	acc := &Accumulator{
		RunID:       record.RunID,
		PairAddress: record.Source,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     new(uint256.Int),
		Volume1:     new(uint256.Int),
		Fee0:        new(uint256.Int),
		Fee1:        new(uint256.Int),
		LastTS:      record.Timestamp,
	}
	if reserves != nil {
		acc.Reserve0 = reserves.Reserve0.Clone()
		acc.Reserve1 = reserves.Reserve1.Clone()
	}
	return acc
}

func (a *Accumulator) AddEvent(record model.EventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
	}

	switch record.Type {
	case events.TypeSwap:
		swap, err := model.DecodeSwap(record)
		if err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case events.TypeSync:
		sync, err := model.DecodeSync(record)
		if err != nil {
			return fmt.Errorf("decode sync: %w", err)
		}
		a.Reserve0 = sync.Reserve0
		a.Reserve1 = sync.Reserve1
		return nil
	default:
		return nil
	}
}

// applySwap counts both legs as volume and charges the fee on the input
// side, rounded down.
func (a *Accumulator) applySwap(swap model.SwapData) error {
	var err error
	if a.Volume0, err = sum(a.Volume0, swap.Amount0In, swap.Amount0Out); err != nil {
		return err
	}
	if a.Volume1, err = sum(a.Volume1, swap.Amount1In, swap.Amount1Out); err != nil {
		return err
	}
	fee0, err := mathx.Bps(swap.Amount0In, swap.FeeBps)
	if err != nil {
		return err
	}
	fee1, err := mathx.Bps(swap.Amount1In, swap.FeeBps)
	if err != nil {
		return err
	}
	if a.Fee0, err = mathx.Add(a.Fee0, fee0); err != nil {
		return err
	}
	if a.Fee1, err = mathx.Add(a.Fee1, fee1); err != nil {
		return err
	}
	a.SwapCount++
	return nil
}

func sum(total *uint256.Int, values ...*uint256.Int) (*uint256.Int, error) {
	out := total
	for _, v := range values {
		var err error
		if out, err = mathx.Add(out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
