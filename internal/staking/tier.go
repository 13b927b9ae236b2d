package staking

import (
	"fmt"

	"blxProtocol/internal/mathx"
)

const (
	day = 24 * 60 * 60

	// MaxMultiplierBps caps a tier's reward multiplier at 5x.
	MaxMultiplierBps = 50_000
	// MaxEarlyWithdrawalFeeBps caps a tier's early exit penalty at 50%.
	MaxEarlyWithdrawalFeeBps = 5_000
)

// LockTier is a (duration, reward multiplier, early exit fee) triple.
// Tiers are append-only; an index stays valid for the hub's lifetime.
type LockTier struct {
	Duration              uint64 `yaml:"duration_seconds" json:"duration_seconds"`
	MultiplierBps         uint64 `yaml:"multiplier_bps" json:"multiplier_bps"`
	EarlyWithdrawalFeeBps uint64 `yaml:"early_withdrawal_fee_bps" json:"early_withdrawal_fee_bps"`
}

func (t LockTier) validate() error {
	if t.MultiplierBps == 0 || t.MultiplierBps > MaxMultiplierBps {
		return fmt.Errorf("%w: multiplier %d bps", ErrInvalidTier, t.MultiplierBps)
	}
	if t.EarlyWithdrawalFeeBps > MaxEarlyWithdrawalFeeBps {
		return fmt.Errorf("%w: early withdrawal fee %d bps", ErrInvalidTier, t.EarlyWithdrawalFeeBps)
	}
	if t.Duration == 0 && t.EarlyWithdrawalFeeBps != 0 {
		return fmt.Errorf("%w: unlocked tier cannot charge an early fee", ErrInvalidTier)
	}
	return nil
}

// DefaultTiers are the tiers a hub starts with.
func DefaultTiers() []LockTier {
	return []LockTier{
		{Duration: 0, MultiplierBps: mathx.BpsDenominator, EarlyWithdrawalFeeBps: 0},
		{Duration: 30 * day, MultiplierBps: 12_500, EarlyWithdrawalFeeBps: 1_000},
		{Duration: 90 * day, MultiplierBps: 15_000, EarlyWithdrawalFeeBps: 1_500},
		{Duration: 365 * day, MultiplierBps: 20_000, EarlyWithdrawalFeeBps: 2_500},
	}
}
