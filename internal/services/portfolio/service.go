package portfolio

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

type balanceSource interface {
	WalletBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}

type priceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type targetSource interface {
	EnabledTargets(ctx context.Context) ([]domain.PortfolioTarget, error)
}

// Service assembles live snapshots: wallet balances from the exchange,
// prices from the cache-backed pricer, targets from the config store.
type Service struct {
	balances balanceSource
	prices   priceSource
	targets  targetSource
	logger   *zap.Logger
}

func NewService(balances balanceSource, prices priceSource, targets targetSource, logger *zap.Logger) *Service {
	return &Service{balances: balances, prices: prices, targets: targets, logger: logger}
}

// Snapshot values the configured portfolio coins right now. Coins whose
// price cannot be resolved are left out of the valuation for this call.
func (s *Service) Snapshot(ctx context.Context) (domain.PortfolioState, error) {
	walletBalances, err := s.balances.WalletBalances(ctx)
	if err != nil {
		return domain.PortfolioState{}, errors.Wrap(err, "failed to get wallet balances")
	}

	targetList, err := s.targets.EnabledTargets(ctx)
	if err != nil {
		return domain.PortfolioState{}, errors.Wrap(err, "failed to load portfolio targets")
	}

	targets := make(map[string]decimal.Decimal, len(targetList))
	for _, t := range targetList {
		targets[t.Coin] = t.TargetPercentage
	}

	// only configured coins participate; stray wallet dust stays out of
	// the valuation so it cannot skew percentages
	balances := make(map[string]decimal.Decimal, len(targets)+1)
	for coin, balance := range walletBalances {
		if _, ok := targets[coin]; ok || coin == domain.StableCoin {
			balances[coin] = balance
		}
	}

	prices := make(map[string]decimal.Decimal, len(balances))
	for coin := range balances {
		if coin == domain.StableCoin {
			continue
		}
		price, err := s.prices.GetPrice(ctx, domain.Symbol(coin))
		if err != nil {
			s.logger.Debug("price unavailable, coin excluded from valuation",
				zap.String("coin", coin), zap.Error(err))
			continue
		}
		prices[coin] = price
	}

	return Calculate(balances, prices, targets), nil
}

// ValidateTargets returns the sum of enabled target percentages. The sum is
// expected to be 100; callers surface violations, they are never corrected.
func ValidateTargets(targets []domain.PortfolioTarget) (decimal.Decimal, bool) {
	sum := decimal.Zero
	for _, t := range targets {
		if t.Enabled {
			sum = sum.Add(t.TargetPercentage)
		}
	}
	return sum, sum.Equal(hundred)
}
