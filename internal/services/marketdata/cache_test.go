package marketdata

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	cache := NewCache()

	_, ok := cache.Get("BTCUSDT")
	require.False(t, ok)

	cache.Set("BTCUSDT", decimal.RequireFromString("61234.56"))
	price, ok := cache.Get("BTCUSDT")
	require.True(t, ok)
	require.True(t, price.Equal(decimal.RequireFromString("61234.56")))

	// last write wins
	cache.Set("BTCUSDT", decimal.RequireFromString("61300"))
	price, _ = cache.Get("BTCUSDT")
	require.True(t, price.Equal(decimal.RequireFromString("61300")))
}

func TestClear(t *testing.T) {
	cache := NewCache()
	cache.Set("BTCUSDT", decimal.NewFromInt(50000))
	cache.Set("ETHUSDT", decimal.NewFromInt(2500))
	require.Equal(t, 2, cache.Len())

	cache.Clear()
	require.Equal(t, 0, cache.Len())
	_, ok := cache.Get("BTCUSDT")
	require.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			cache.Set("BTCUSDT", decimal.NewFromInt(n))
		}(int64(i))
		go func() {
			defer wg.Done()
			cache.Get("BTCUSDT")
		}()
	}
	wg.Wait()

	_, ok := cache.Get("BTCUSDT")
	require.True(t, ok)
}
