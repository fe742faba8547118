// Package rebalancer decides which trades bring a portfolio back to its
// target allocation and executes them sequentially.
package rebalancer

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

// defaultBasePrecision is the conservative quantity precision used when the
// instrument registry has not been loaded yet.
const defaultBasePrecision = 2

var plannerHundred = decimal.NewFromInt(100)

type instrumentRegistry interface {
	Lookup(symbol string) (domain.InstrumentInfo, bool)
	Len() int
}

type priceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Planner turns portfolio deviations into an ordered list of market trades.
type Planner struct {
	registry instrumentRegistry
	pricer   priceSource
	logger   *zap.Logger
}

func NewPlanner(registry instrumentRegistry, pricer priceSource, logger *zap.Logger) *Planner {
	return &Planner{registry: registry, pricer: pricer, logger: logger}
}

// NeedsRebalancing reports whether any non-stablecoin holding with a
// configured positive target deviates by at least threshold percentage
// points. The stablecoin has no pair against itself and is never checked.
func (p *Planner) NeedsRebalancing(state *domain.PortfolioState, threshold decimal.Decimal) bool {
	if state.Degenerate() {
		return false
	}
	for _, h := range state.Holdings {
		if h.Coin == domain.StableCoin {
			continue
		}
		if h.TargetPercentage.GreaterThan(decimal.Zero) && h.Deviation.Abs().GreaterThanOrEqual(threshold) {
			return true
		}
	}
	return false
}

// Plan computes the trades needed to close every deviation at or above
// threshold, subject to the minimum trade amount and the per-instrument
// lot constraints. Sells are ordered before buys so freed quote liquidity
// is available when the buys run.
func (p *Planner) Plan(ctx context.Context, state *domain.PortfolioState,
	threshold, minTradeUSDT decimal.Decimal) ([]domain.RebalanceTrade, error) {

	if state.Degenerate() {
		return nil, nil
	}

	trades := make([]domain.RebalanceTrade, 0, len(state.Holdings))
	for _, h := range state.Holdings {
		if h.Coin == domain.StableCoin || h.Deviation.Abs().LessThan(threshold) {
			continue
		}

		symbol := domain.Symbol(h.Coin)
		instrument, found := p.registry.Lookup(symbol)
		if !found && p.registry.Len() > 0 {
			// registry is loaded but the pair does not exist: not tradable
			p.logger.Warn("no instrument for symbol, skipping coin", zap.String("symbol", symbol))
			continue
		}
		precision := instrument.BasePrecision
		if !found {
			// empty registry degrades to a conservative default policy
			precision = defaultBasePrecision
		}

		targetUSDT := state.TotalValueUSDT.Mul(h.TargetPercentage).Div(plannerHundred)
		differenceUSDT := targetUSDT.Sub(h.USDTValue)

		if differenceUSDT.Abs().LessThan(minTradeUSDT) {
			p.logger.Debug("difference below minimum trade amount, skipping coin",
				zap.String("coin", h.Coin), zap.String("difference_usdt", differenceUSDT.StringFixed(2)))
			continue
		}

		price, err := p.pricer.GetPrice(ctx, symbol)
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			p.logger.Warn("price unavailable, skipping coin",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		// truncate, never round up: an over-rounded sell could exceed the
		// balance and an over-rounded buy could overspend
		quantity := differenceUSDT.Abs().Div(price).RoundFloor(precision)

		if found && quantity.LessThan(instrument.MinOrderQty) {
			p.logger.Debug("quantity below exchange minimum, skipping coin",
				zap.String("coin", h.Coin),
				zap.String("quantity", quantity.String()),
				zap.String("min_order_qty", instrument.MinOrderQty.String()))
			continue
		}

		action := domain.ActionSell
		if differenceUSDT.GreaterThan(decimal.Zero) {
			action = domain.ActionBuy
		}

		trade := domain.RebalanceTrade{
			Coin:                h.Coin,
			Symbol:              symbol,
			Action:              action,
			Quantity:            quantity,
			EstimatedUSDTAmount: differenceUSDT.Abs(),
			CurrentPrice:        price,
		}
		trades = append(trades, trade)

		p.logger.Info("planned trade",
			zap.String("trade", trade.String()),
			zap.String("target_pct", h.TargetPercentage.StringFixed(2)),
			zap.String("current_pct", h.CurrentPercentage.StringFixed(2)),
			zap.String("deviation", h.Deviation.StringFixed(2)))
	}

	// sells free quote liquidity the buys depend on; stable sort keeps the
	// per-coin order inside each group
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Action == domain.ActionSell && trades[j].Action != domain.ActionSell
	})

	return trades, nil
}
