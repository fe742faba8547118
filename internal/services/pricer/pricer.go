// Package pricer resolves spot prices, preferring the streaming cache and
// falling back to a direct REST query on a cache miss.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/services/marketdata"
)

type restPricer interface {
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// CachedPricer serves prices cache-first. The cache never blocks; only a
// miss costs a network round trip.
type CachedPricer struct {
	cache *marketdata.Cache
	rest  restPricer
}

func NewCachedPricer(cache *marketdata.Cache, rest restPricer) *CachedPricer {
	return &CachedPricer{cache: cache, rest: rest}
}

// GetPrice returns the latest known price for a symbol.
func (p *CachedPricer) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if price, ok := p.cache.Get(symbol); ok {
		return price, nil
	}
	return p.rest.TickerPrice(ctx, symbol)
}
