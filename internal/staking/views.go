package staking

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"blxProtocol/internal/mathx"
)

// projectLocked returns the exchange rate and reward index as they would
// be after accruing up to now, without mutating the hub.
func (h *Hub) projectLocked(now uint64) (*uint256.Int, *uint256.Int, error) {
	a, err := h.planAccrual(now)
	if err != nil {
		return nil, nil, err
	}
	return a.rate.Clone(), a.index.Clone(), nil
}

// ExchangeRate returns the Wad-scaled base units per share at time now.
func (h *Hub) ExchangeRate(now uint64) (*uint256.Int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rate, _, err := h.projectLocked(now)
	return rate, err
}

// GetPendingRewards returns the tier rewards user could claim at time now,
// before the protocol fee.
func (h *Hub) GetPendingRewards(user common.Address, now uint64) (*uint256.Int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pendingLocked(user, now)
}

func (h *Hub) pendingLocked(user common.Address, now uint64) (*uint256.Int, error) {
	s, ok := h.stakes[user]
	if !ok {
		return new(uint256.Int), nil
	}
	_, index, err := h.projectLocked(now)
	if err != nil {
		return nil, err
	}
	earned, err := h.earned(s, index)
	if err != nil {
		return nil, err
	}
	return mathx.Add(s.Accrued, earned)
}

// GetUserStakingInfo returns user's position projected to time now.
func (h *Hub) GetUserStakingInfo(user common.Address, now uint64) (StakingInfo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	shares := h.shares.BalanceOf(user)
	rate, _, err := h.projectLocked(now)
	if err != nil {
		return StakingInfo{}, err
	}
	value, err := mathx.MulDiv(shares, rate, mathx.Wad)
	if err != nil {
		return StakingInfo{}, err
	}
	pending, err := h.pendingLocked(user, now)
	if err != nil {
		return StakingInfo{}, err
	}
	info := StakingInfo{
		Amount:         new(uint256.Int),
		Shares:         shares,
		Value:          value,
		PendingRewards: pending,
	}
	if s, ok := h.stakes[user]; ok {
		info.Amount = s.Amount.Clone()
		info.TierIndex = s.TierIndex
		info.LockEnd = s.LockEnd
		info.Locked = now < s.LockEnd
		info.LastRewardTime = s.LastRewardTime
	}
	info.Tier = h.tiers[info.TierIndex]
	return info, nil
}

// GetStBLXForBLX converts a base amount into shares at the rate at now.
func (h *Hub) GetStBLXForBLX(amount *uint256.Int, now uint64) (*uint256.Int, error) {
	rate, err := h.ExchangeRate(now)
	if err != nil {
		return nil, err
	}
	return mathx.MulDiv(amount, mathx.Wad, rate)
}

// GetBLXForStBLX converts shares into base units at the rate at now.
func (h *Hub) GetBLXForStBLX(shares *uint256.Int, now uint64) (*uint256.Int, error) {
	rate, err := h.ExchangeRate(now)
	if err != nil {
		return nil, err
	}
	return mathx.MulDiv(shares, rate, mathx.Wad)
}

func (h *Hub) TotalStaked() *uint256.Int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalStaked.Clone()
}

// RewardReserve is the base-token balance available to fund rewards.
func (h *Hub) RewardReserve() *uint256.Int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rewardReserve.Clone()
}

func (h *Hub) LockTiers() []LockTier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]LockTier(nil), h.tiers...)
}

func (h *Hub) Parameters() (rewardRateBps, protocolFeeBps uint64, feeCollector common.Address) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rewardRateBps, h.protocolFeeBps, h.feeCollector
}
