package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"tokenWatch/internal/model"
)

// Cache caches resolved token metadata by address.
type Cache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenInfo
}

func NewCache() *Cache {
	return &Cache{data: make(map[common.Address]model.TokenInfo)}
}

func (c *Cache) Get(address common.Address) (model.TokenInfo, bool) {
	c.mu.RLock()
	info, ok := c.data[address]
	c.mu.RUnlock()
	return info, ok
}

func (c *Cache) Set(address common.Address, info model.TokenInfo) {
	c.mu.Lock()
	c.data[address] = info
	c.mu.Unlock()
}
