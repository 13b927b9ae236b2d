package model

// ProtocolSnapshot captures staking and vault totals at the end of a run
// step.
type ProtocolSnapshot struct {
	RunID         string          `json:"run_id"`
	Step          int             `json:"step"`
	Timestamp     uint64          `json:"timestamp"`
	ExchangeRate  string          `json:"exchange_rate"`
	TotalStaked   string          `json:"total_staked"`
	RewardReserve string          `json:"reward_reserve"`
	Vaults        []VaultSnapshot `json:"vaults,omitempty"`
}

type VaultSnapshot struct {
	Address        string `json:"address"`
	Name           string `json:"name"`
	Active         bool   `json:"active"`
	TotalDeposited string `json:"total_deposited"`
	YieldReserve   string `json:"yield_reserve"`
}
