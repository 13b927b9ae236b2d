package staking

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"blxProtocol/internal/access"
	"blxProtocol/internal/events"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/protocol"
)

func (h *Hub) authorize(call protocol.Call, action string) error {
	if err := access.Require(h.auth, access.RoleStakingAdmin, call.Caller); err != nil {
		h.logger.Warn(action+" rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	return nil
}

// AddLockTier appends a tier and returns its index.
func (h *Hub) AddLockTier(call protocol.Call, tier LockTier) (int, error) {
	if err := h.authorize(call, "add lock tier"); err != nil {
		return 0, err
	}
	if err := tier.validate(); err != nil {
		return 0, err
	}
	release, err := h.enter()
	if err != nil {
		return 0, err
	}
	defer release()
	h.tiers = append(h.tiers, tier)
	index := len(h.tiers) - 1

	h.logger.Info("lock tier added", zap.Int("index", index), zap.Uint64("duration", tier.Duration), zap.Uint64("multiplierBps", tier.MultiplierBps))
	events.Publish(h.emitter, h.address, call.Timestamp, events.LockTierAdded{
		Index: index, Duration: tier.Duration, MultiplierBps: tier.MultiplierBps, EarlyFeeBps: tier.EarlyWithdrawalFeeBps,
	})
	return index, nil
}

// SetRewardRate changes the annual base rate after accruing at the old one.
func (h *Hub) SetRewardRate(call protocol.Call, bps uint64) error {
	if err := h.authorize(call, "set reward rate"); err != nil {
		return err
	}
	if bps > MaxRewardRateBps {
		return fmt.Errorf("%w: %d bps", ErrRateTooHigh, bps)
	}
	release, err := h.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := h.accrueLocked(call.Timestamp); err != nil {
		return err
	}
	h.rewardRateBps = bps
	h.logger.Info("reward rate set", zap.Uint64("bps", bps))
	return nil
}

func (h *Hub) SetProtocolFee(call protocol.Call, bps uint64) error {
	if err := h.authorize(call, "set protocol fee"); err != nil {
		return err
	}
	if bps > MaxProtocolFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
	}
	release, err := h.enter()
	if err != nil {
		return err
	}
	defer release()
	h.protocolFeeBps = bps
	h.logger.Info("protocol fee set", zap.Uint64("bps", bps))
	return nil
}

func (h *Hub) SetFeeCollector(call protocol.Call, collector common.Address) error {
	if err := h.authorize(call, "set fee collector"); err != nil {
		return err
	}
	if err := protocol.RequireAddress(collector, "fee collector"); err != nil {
		return err
	}
	release, err := h.enter()
	if err != nil {
		return err
	}
	defer release()
	h.feeCollector = collector
	return nil
}

// FundRewards moves amount of the base token from the caller into the
// reward reserve. Anyone may fund.
func (h *Hub) FundRewards(call protocol.Call, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return protocol.ErrZeroAmount
	}
	release, err := h.enter()
	if err != nil {
		return err
	}
	defer release()
	a, err := h.planAccrual(call.Timestamp)
	if err != nil {
		return err
	}
	reserve, err := mathx.Add(a.reserve, amount)
	if err != nil {
		return err
	}
	if err := h.checkFunds(call.Caller, amount); err != nil {
		return err
	}
	if err := h.base.TransferFrom(h.address, call.Caller, h.address, amount); err != nil {
		return fmt.Errorf("fund rewards: %w", err)
	}
	h.commitAccrual(a)
	h.rewardReserve = reserve
	h.logger.Debug("rewards funded", zap.String("from", call.Caller.Hex()), zap.String("amount", amount.Dec()))
	return nil
}
