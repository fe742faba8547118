package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StableCoin is the quote currency every pair trades against.
const StableCoin = "USDT"

// Symbol returns the spot trading symbol for a coin, e.g. "BTC" -> "BTCUSDT".
func Symbol(coin string) string {
	return coin + StableCoin
}

// CoinHolding is a single coin inside a portfolio snapshot.
// Never mutated after construction.
type CoinHolding struct {
	Coin string `json:"coin"`
	// Balance amount of the coin held in the wallet.
	Balance decimal.Decimal `json:"balance"`
	// USDTValue balance valued in the quote currency.
	USDTValue decimal.Decimal `json:"usdtValue"`
	// CurrentPercentage share of the total portfolio value, 0-100.
	CurrentPercentage decimal.Decimal `json:"currentPercentage"`
	// TargetPercentage configured target share, 0 for coins without a target.
	TargetPercentage decimal.Decimal `json:"targetPercentage"`
	// Deviation is CurrentPercentage - TargetPercentage.
	Deviation decimal.Decimal `json:"deviation"`
	// PriceUSDT last known price used for valuation.
	PriceUSDT decimal.Decimal `json:"priceUsdt"`
}

// PortfolioState is a point-in-time valuation of the whole portfolio.
type PortfolioState struct {
	Holdings       []CoinHolding   `json:"holdings"`
	TotalValueUSDT decimal.Decimal `json:"totalValueUsdt"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Degenerate reports whether the state carries no tradable value.
// No rebalancing may be attempted against a degenerate state.
func (s *PortfolioState) Degenerate() bool {
	return s.TotalValueUSDT.LessThanOrEqual(decimal.Zero)
}

// Holding returns the holding for a coin, if present.
func (s *PortfolioState) Holding(coin string) (CoinHolding, bool) {
	for _, h := range s.Holdings {
		if h.Coin == coin {
			return h, true
		}
	}
	return CoinHolding{}, false
}

// PortfolioTarget is a user-configured allocation target for one coin.
type PortfolioTarget struct {
	Coin             string          `json:"coin"`
	TargetPercentage decimal.Decimal `json:"targetPercentage"`
	Enabled          bool            `json:"enabled"`
	AddedAt          time.Time       `json:"addedAt"`
}
