package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "rebalancer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertAndListTradeLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := domain.TradeLog{
		Timestamp:       time.Now().UTC().Truncate(time.Second),
		Action:          "SELL",
		Symbol:          "BTCUSDT",
		Coin:            "BTC",
		Quantity:        decimal.RequireFromString("0.00123456"),
		Price:           decimal.RequireFromString("61234.56"),
		USDTAmount:      decimal.RequireFromString("75.34"),
		PortfolioBefore: `{"totalValueUSDT":"1000"}`,
		PortfolioAfter:  `{"totalValueUSDT":"1000.12"}`,
		OrderID:         "order-1",
		Status:          domain.TradeStatusSuccess,
	}
	require.NoError(t, store.InsertTradeLog(ctx, &first))
	require.NotZero(t, first.ID)

	second := domain.TradeLog{
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		Action:     "BUY",
		Symbol:     "ETHUSDT",
		Coin:       "ETH",
		Quantity:   decimal.RequireFromString("0.02"),
		Price:      decimal.RequireFromString("2500"),
		USDTAmount: decimal.RequireFromString("50"),
		Status:     domain.TradeStatusFailed,
	}
	require.NoError(t, store.InsertTradeLog(ctx, &second))

	logs, err := store.ListTradeLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// newest first
	require.Equal(t, "ETHUSDT", logs[0].Symbol)
	require.Equal(t, domain.TradeStatusFailed, logs[0].Status)
	require.Equal(t, "BTCUSDT", logs[1].Symbol)
	require.True(t, logs[1].Quantity.Equal(first.Quantity), "quantity survives the round trip exactly")
	require.True(t, logs[1].Price.Equal(first.Price))
	require.Equal(t, first.PortfolioBefore, logs[1].PortfolioBefore)
	require.Equal(t, "order-1", logs[1].OrderID)
}

func TestListTradeLogsHonorsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		log := domain.TradeLog{
			Timestamp:  time.Now(),
			Action:     "BUY",
			Symbol:     "BTCUSDT",
			Coin:       "BTC",
			Quantity:   decimal.NewFromInt(int64(i + 1)),
			Price:      decimal.NewFromInt(100),
			USDTAmount: decimal.NewFromInt(100),
			Status:     domain.TradeStatusSuccess,
		}
		require.NoError(t, store.InsertTradeLog(ctx, &log))
	}

	logs, err := store.ListTradeLogs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.True(t, logs[0].Quantity.Equal(decimal.NewFromInt(5)))
}

func TestUpsertTargetReplacesAllocation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertTarget(ctx, domain.PortfolioTarget{
		Coin:             "BTC",
		TargetPercentage: decimal.NewFromInt(60),
		Enabled:          true,
	}))
	require.NoError(t, store.UpsertTarget(ctx, domain.PortfolioTarget{
		Coin:             "BTC",
		TargetPercentage: decimal.NewFromInt(45),
		Enabled:          true,
	}))

	targets, err := store.ListTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.True(t, targets[0].TargetPercentage.Equal(decimal.NewFromInt(45)))
}

func TestEnabledTargetsFiltersDisabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertTarget(ctx, domain.PortfolioTarget{
		Coin: "BTC", TargetPercentage: decimal.NewFromInt(50), Enabled: true,
	}))
	require.NoError(t, store.UpsertTarget(ctx, domain.PortfolioTarget{
		Coin: "DOGE", TargetPercentage: decimal.NewFromInt(10), Enabled: false,
	}))

	enabled, err := store.EnabledTargets(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "BTC", enabled[0].Coin)
	require.True(t, enabled[0].TargetPercentage.Equal(decimal.NewFromInt(50)))
}

func TestSeedTargets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SeedTargets(ctx, map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(50),
		"ETH": decimal.NewFromInt(30),
	}))

	enabled, err := store.EnabledTargets(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)

	byCoin := make(map[string]decimal.Decimal, len(enabled))
	for _, target := range enabled {
		byCoin[target.Coin] = target.TargetPercentage
	}
	require.True(t, byCoin["ETH"].Equal(decimal.NewFromInt(30)))
}

func TestSaveAndReadRebalanceSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RebalanceSettings(ctx)
	require.Error(t, err, "no settings row until the first save")

	require.NoError(t, store.SaveSettings(ctx, domain.RebalanceSettings{
		ThresholdPercent: decimal.RequireFromString("5"),
		MinTradeUSDT:     decimal.RequireFromString("10"),
		CheckInterval:    5 * time.Minute,
	}))

	settings, err := store.RebalanceSettings(ctx)
	require.NoError(t, err)
	require.True(t, settings.ThresholdPercent.Equal(decimal.NewFromInt(5)))
	require.True(t, settings.MinTradeUSDT.Equal(decimal.NewFromInt(10)))
	require.Equal(t, 5*time.Minute, settings.CheckInterval)

	// saving again replaces the single row
	require.NoError(t, store.SaveSettings(ctx, domain.RebalanceSettings{
		ThresholdPercent: decimal.RequireFromString("2.5"),
		MinTradeUSDT:     decimal.RequireFromString("25"),
		CheckInterval:    time.Minute,
	}))

	settings, err = store.RebalanceSettings(ctx)
	require.NoError(t, err)
	require.True(t, settings.ThresholdPercent.Equal(decimal.RequireFromString("2.5")))
	require.True(t, settings.MinTradeUSDT.Equal(decimal.NewFromInt(25)))
	require.Equal(t, time.Minute, settings.CheckInterval)
}
