package fund

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsCache caches token and feed decimals by address. Decimals never
// change after deployment, so entries are never invalidated.
type DecimalsCache struct {
	mu   sync.RWMutex
	data map[common.Address]uint8
}

func NewDecimalsCache() *DecimalsCache {
	return &DecimalsCache{data: make(map[common.Address]uint8)}
}

func (c *DecimalsCache) Get(address common.Address) (uint8, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.RLock()
	decimals, ok := c.data[address]
	c.mu.RUnlock()
	return decimals, ok
}

func (c *DecimalsCache) Set(address common.Address, decimals uint8) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.data[address] = decimals
	c.mu.Unlock()
}

type decimalsReader interface {
	Decimals(ctx context.Context) (uint8, error)
}

func (c *DecimalsCache) load(ctx context.Context, address common.Address, src decimalsReader) (uint8, error) {
	if decimals, ok := c.Get(address); ok {
		return decimals, nil
	}
	decimals, err := src.Decimals(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals of %s: %w", ErrExternalFailure, address.Hex(), err)
	}
	c.Set(address, decimals)
	return decimals, nil
}
