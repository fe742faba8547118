package instruments

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

type stubFetcher struct {
	list []domain.InstrumentInfo
	err  error
}

func (s *stubFetcher) Instruments(ctx context.Context) ([]domain.InstrumentInfo, error) {
	return s.list, s.err
}

func TestRegistry_RefreshFiltersToActiveUSDTPairs(t *testing.T) {
	fetcher := &stubFetcher{list: []domain.InstrumentInfo{
		{Symbol: "BTCUSDT", BaseCoin: "BTC", QuoteCoin: "USDT", Status: "Trading", BasePrecision: 6, MinOrderQty: decimal.RequireFromString("0.00001")},
		{Symbol: "ETHBTC", BaseCoin: "ETH", QuoteCoin: "BTC", Status: "Trading"},
		{Symbol: "DOGEUSDT", BaseCoin: "DOGE", QuoteCoin: "USDT", Status: "Closed"},
	}}
	registry := NewRegistry(fetcher, zap.NewNop())

	require.NoError(t, registry.Refresh(context.Background()))
	require.Equal(t, 1, registry.Len())

	info, ok := registry.Lookup("BTCUSDT")
	require.True(t, ok)
	require.Equal(t, int32(6), info.BasePrecision)

	_, ok = registry.Lookup("ETHBTC")
	require.False(t, ok)
	_, ok = registry.Lookup("DOGEUSDT")
	require.False(t, ok)
}

func TestRegistry_FailedRefreshKeepsPreviousMap(t *testing.T) {
	fetcher := &stubFetcher{list: []domain.InstrumentInfo{
		{Symbol: "BTCUSDT", BaseCoin: "BTC", QuoteCoin: "USDT", Status: "Trading"},
	}}
	registry := NewRegistry(fetcher, zap.NewNop())
	require.NoError(t, registry.Refresh(context.Background()))

	fetcher.err = errors.New("api down")
	require.Error(t, registry.Refresh(context.Background()))

	// stale map stays available
	_, ok := registry.Lookup("BTCUSDT")
	require.True(t, ok)
	require.Equal(t, 1, registry.Len())
}

func TestRegistry_LookupOnEmptyRegistry(t *testing.T) {
	registry := NewRegistry(&stubFetcher{}, zap.NewNop())

	_, ok := registry.Lookup("BTCUSDT")
	require.False(t, ok)
}
