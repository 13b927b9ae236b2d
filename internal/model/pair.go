package model

// Pair is a pair metadata record for storage.
type Pair struct {
	RunID     string `json:"run_id"`
	Address   string `json:"address"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Symbol0   string `json:"symbol0"`
	Symbol1   string `json:"symbol1"`
	Decimals0 uint8  `json:"decimals0"`
	Decimals1 uint8  `json:"decimals1"`
	FirstSeen uint64 `json:"first_seen_ts"`
}

// TokenMeta captures token metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}
