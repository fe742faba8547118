package rebalancer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

// ReconcilePending resolves intents left pending by a previous run, i.e.
// a crash between order submission and outcome recording. Each one is looked
// up on the exchange by its order-link id; orders the exchange never saw
// are recorded as failed. Called once at startup, before the first tick.
func (e *Executor) ReconcilePending(ctx context.Context) error {
	pending := e.journal.pending()
	if len(pending) == 0 {
		return nil
	}

	e.logger.Info("reconciling unresolved trade intents", zap.Int("count", len(pending)))

	for _, intent := range pending {
		status, err := e.orders.OrderStatus(ctx, intent.Symbol, intent.OrderID, intent.ID)
		if err != nil {
			// leave the intent pending; the next startup retries
			e.logger.Warn("intent reconciliation deferred, status unavailable",
				zap.String("intent_id", intent.ID), zap.Error(err))
			continue
		}

		log := domain.TradeLog{
			Timestamp:       time.Now(),
			Action:          intent.Action,
			Symbol:          intent.Symbol,
			Coin:            intent.Coin,
			Quantity:        decimalOrZero(intent.Qty),
			Price:           decimalOrZero(intent.Price),
			USDTAmount:      decimalOrZero(intent.USDTAmount),
			PortfolioBefore: "{}",
			PortfolioAfter:  "{}",
			OrderID:         intent.OrderID,
		}

		switch status {
		case exchangeStatusFilled:
			log.Status = domain.TradeStatusSuccess
			if err := e.journal.markDone(intent, intent.OrderID); err != nil {
				e.logger.Warn("failed to journal reconciled intent", zap.Error(err))
			}
		case string(domain.TradeStatusUnknown), "":
			// the exchange has no record: the submission never landed
			log.Status = domain.TradeStatusFailed
			if err := e.journal.markFailed(intent, nil); err != nil {
				e.logger.Warn("failed to journal reconciled intent", zap.Error(err))
			}
		default:
			log.Status = domain.TradeStatus(status)
			if err := e.journal.markDone(intent, intent.OrderID); err != nil {
				e.logger.Warn("failed to journal reconciled intent", zap.Error(err))
			}
		}

		e.persistLog(ctx, &log)
		e.logger.Info("reconciled trade intent",
			zap.String("intent_id", intent.ID),
			zap.String("symbol", intent.Symbol),
			zap.String("status", string(log.Status)))
	}
	return nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
