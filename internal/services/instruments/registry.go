// Package instruments caches per-symbol trading constraints.
package instruments

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

type instrumentFetcher interface {
	Instruments(ctx context.Context) ([]domain.InstrumentInfo, error)
}

// Registry holds the instrument map for active USDT spot pairs. Refresh
// replaces the map wholesale; a failed refresh keeps the previous map
// (stale-but-available over empty).
type Registry struct {
	fetcher instrumentFetcher
	logger  *zap.Logger

	mu          sync.RWMutex
	instruments map[string]domain.InstrumentInfo
}

func NewRegistry(fetcher instrumentFetcher, logger *zap.Logger) *Registry {
	return &Registry{
		fetcher:     fetcher,
		logger:      logger,
		instruments: make(map[string]domain.InstrumentInfo),
	}
}

// Refresh fetches the full instrument list, filters it to tradable USDT
// pairs and atomically swaps the map.
func (r *Registry) Refresh(ctx context.Context) error {
	list, err := r.fetcher.Instruments(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to refresh instruments")
	}

	next := make(map[string]domain.InstrumentInfo, len(list))
	for _, info := range list {
		if info.QuoteCoin != domain.StableCoin || info.Status != domain.InstrumentStatusTrading {
			continue
		}
		next[info.Symbol] = info
	}

	r.mu.Lock()
	r.instruments = next
	r.mu.Unlock()

	r.logger.Info("instrument registry refreshed", zap.Int("pairs", len(next)))
	return nil
}

// Lookup returns the constraints for a symbol, if known.
func (r *Registry) Lookup(symbol string) (domain.InstrumentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.instruments[symbol]
	return info, ok
}

// Len returns the number of registered pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
