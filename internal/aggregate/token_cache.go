package aggregate

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"blxProtocol/internal/model"
)

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(meta model.TokenMeta) {
	c.mu.Lock()
	c.data[common.HexToAddress(meta.Address)] = meta
	c.mu.Unlock()
}

// DecimalsFetcher resolves decimals for tokens missing from the cache,
// e.g. chain.FetchTokenDecimals bound to an RPC client.
type DecimalsFetcher func(ctx context.Context, token common.Address) (uint8, error)
