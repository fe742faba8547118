package marketdata

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Cache holds the last traded price per symbol. The stream goroutine
// writes, everyone else reads; lookups never block on network I/O.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewCache() *Cache {
	return &Cache{prices: make(map[string]decimal.Decimal)}
}

// Set stores the latest price for a symbol. Last write wins.
func (c *Cache) Set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	c.prices[symbol] = price
	c.mu.Unlock()
}

func (c *Cache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[symbol]
	return price, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// Clear drops every cached price. Called when the stream disconnects so
// stale quotes never feed a rebalance decision.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.prices = make(map[string]decimal.Decimal)
	c.mu.Unlock()
}
