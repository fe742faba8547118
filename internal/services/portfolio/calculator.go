// Package portfolio values wallet holdings against live prices and
// user-configured allocation targets.
package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

const (
	// percentScale decimal places percentages are rounded to (half-up).
	percentScale = 4
	valueScale   = 4
	balanceScale = 8
)

var hundred = decimal.NewFromInt(100)

// Calculate produces a portfolio snapshot from raw balances, prices and
// targets. Pure: identical inputs yield an identical state.
//
// USDT values itself at exactly 1. Any other coin missing from prices is
// skipped, both from the holdings and from the total; missing feed data
// is not an error.
func Calculate(balances, prices, targets map[string]decimal.Decimal) domain.PortfolioState {
	type valued struct {
		coin      string
		balance   decimal.Decimal
		price     decimal.Decimal
		usdtValue decimal.Decimal
	}

	entries := make([]valued, 0, len(balances))
	totalValue := decimal.Zero
	for coin, balance := range balances {
		price, ok := priceOf(coin, prices)
		if !ok {
			continue
		}
		usdtValue := balance.Mul(price)
		totalValue = totalValue.Add(usdtValue)
		entries = append(entries, valued{coin: coin, balance: balance, price: price, usdtValue: usdtValue})
	}

	if totalValue.LessThanOrEqual(decimal.Zero) {
		return domain.PortfolioState{TotalValueUSDT: decimal.Zero, Timestamp: time.Now()}
	}

	holdings := make([]domain.CoinHolding, 0, len(entries))
	for _, e := range entries {
		currentPct := e.usdtValue.Div(totalValue).Mul(hundred).Round(percentScale)
		targetPct := targets[e.coin] // zero for coins held but not targeted
		holdings = append(holdings, domain.CoinHolding{
			Coin:              e.coin,
			Balance:           e.balance.Round(balanceScale),
			USDTValue:         e.usdtValue.Round(valueScale),
			CurrentPercentage: currentPct,
			TargetPercentage:  targetPct,
			Deviation:         currentPct.Sub(targetPct).Round(percentScale),
			PriceUSDT:         e.price.Round(balanceScale),
		})
	}

	// largest position first; coin name breaks ties so output is stable
	sort.Slice(holdings, func(i, j int) bool {
		if !holdings[i].USDTValue.Equal(holdings[j].USDTValue) {
			return holdings[i].USDTValue.GreaterThan(holdings[j].USDTValue)
		}
		return holdings[i].Coin < holdings[j].Coin
	})

	return domain.PortfolioState{
		Holdings:       holdings,
		TotalValueUSDT: totalValue.Round(valueScale),
		Timestamp:      time.Now(),
	}
}

func priceOf(coin string, prices map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if coin == domain.StableCoin {
		return decimal.NewFromInt(1), true
	}
	price, ok := prices[coin]
	return price, ok
}
