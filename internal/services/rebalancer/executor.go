package rebalancer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/exchange"
)

const (
	// quoteAmountScale decimal places for quote-denominated buy amounts.
	quoteAmountScale = 2

	defaultSettlementDelay = 1 * time.Second
	defaultInterTradeDelay = 500 * time.Millisecond
)

// ErrAllTradesFailed is returned when not a single trade in a batch was
// accepted by the exchange. A partial rebalance is not an error.
var ErrAllTradesFailed = errors.New("all trades failed")

const exchangeStatusFilled = "Filled"

type orderClient interface {
	CreateOrder(ctx context.Context, req exchange.OrderRequest) (string, error)
	OrderStatus(ctx context.Context, symbol, orderID, orderLinkID string) (string, error)
}

type snapshotter interface {
	Snapshot(ctx context.Context) (domain.PortfolioState, error)
}

type tradeLogStore interface {
	InsertTradeLog(ctx context.Context, log *domain.TradeLog) error
}

// Executor submits planned trades one at a time, in list order. Each trade
// is journaled before submission, bracketed by best-effort portfolio
// snapshots and recorded as a TradeLog whatever the outcome.
type Executor struct {
	orders    orderClient
	snapshots snapshotter
	store     tradeLogStore
	journal   *intentJournal
	logger    *zap.Logger

	// fixed timed waits, not event-driven; shortened in tests
	settlementDelay time.Duration
	interTradeDelay time.Duration
}

func NewExecutor(orders orderClient, snapshots snapshotter, store tradeLogStore,
	journalDir string, logger *zap.Logger) (*Executor, error) {

	journal, err := openIntentJournal(journalDir)
	if err != nil {
		return nil, err
	}
	return &Executor{
		orders:          orders,
		snapshots:       snapshots,
		store:           store,
		journal:         journal,
		logger:          logger,
		settlementDelay: defaultSettlementDelay,
		interTradeDelay: defaultInterTradeDelay,
	}, nil
}

// ExecuteAll runs every trade sequentially. If at least one order was
// accepted the batch succeeds and callers must inspect individual statuses;
// only a batch with zero accepted orders returns ErrAllTradesFailed.
//
// Cancelling ctx stops the batch between trades; the trade already in
// flight always completes so no order is left without a recorded outcome.
func (e *Executor) ExecuteAll(ctx context.Context, trades []domain.RebalanceTrade) ([]domain.TradeLog, error) {
	if len(trades) == 0 {
		return nil, nil
	}

	e.logger.Info("executing rebalance batch", zap.Int("trades", len(trades)))

	logs := make([]domain.TradeLog, 0, len(trades))
	submitted := 0

	for i, trade := range trades {
		if ctx.Err() != nil {
			e.logger.Info("rebalance batch interrupted",
				zap.Int("executed", i), zap.Int("planned", len(trades)))
			return logs, ctx.Err()
		}

		e.logger.Info("executing trade",
			zap.Int("index", i+1), zap.Int("total", len(trades)), zap.String("trade", trade.String()))

		log := e.executeOne(ctx, trade)
		logs = append(logs, log)
		if log.Status != domain.TradeStatusFailed {
			submitted++
		}

		// rate-limit courtesy between consecutive orders
		if i < len(trades)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(e.interTradeDelay):
			}
		}
	}

	if submitted == 0 {
		return nil, ErrAllTradesFailed
	}

	e.logger.Info("rebalance batch finished",
		zap.Int("submitted", submitted), zap.Int("planned", len(trades)))
	return logs, nil
}

// executeOne performs the full per-trade sequence. It never returns an
// error: every outcome, including submission failure, becomes a TradeLog.
func (e *Executor) executeOne(ctx context.Context, trade domain.RebalanceTrade) domain.TradeLog {
	before := e.snapshotJSON(ctx)

	qty, marketUnit := orderQty(trade)
	intent := &tradeIntent{
		ID:         newOrderLinkID(),
		Status:     intentStatusPending,
		Coin:       trade.Coin,
		Symbol:     trade.Symbol,
		Action:     trade.Action.String(),
		Qty:        qty,
		MarketUnit: marketUnit,
		Price:      trade.CurrentPrice.String(),
		USDTAmount: trade.EstimatedUSDTAmount.String(),
		Time:       time.Now(),
	}
	if err := e.journal.persist(intent); err != nil {
		// the journal is a safety net, not a precondition
		e.logger.Warn("failed to journal trade intent", zap.Error(err))
	}

	log := domain.TradeLog{
		Timestamp:       time.Now(),
		Action:          trade.Action.String(),
		Symbol:          trade.Symbol,
		Coin:            trade.Coin,
		Quantity:        trade.Quantity,
		Price:           trade.CurrentPrice,
		USDTAmount:      trade.EstimatedUSDTAmount,
		PortfolioBefore: before,
	}

	orderID, err := e.orders.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:      trade.Symbol,
		Side:        trade.Action,
		Qty:         qty,
		MarketUnit:  marketUnit,
		OrderLinkID: intent.ID,
	})
	if err != nil {
		e.logger.Error("order submission failed",
			zap.String("symbol", trade.Symbol), zap.Error(err))
		if jerr := e.journal.markFailed(intent, err); jerr != nil {
			e.logger.Warn("failed to journal intent failure", zap.Error(jerr))
		}
		log.Status = domain.TradeStatusFailed
		log.PortfolioAfter = e.snapshotJSON(ctx)
		e.persistLog(ctx, &log)
		return log
	}

	// the order is on the exchange now: finish recording its outcome even
	// if the caller is shutting down
	finishCtx := context.WithoutCancel(ctx)

	time.Sleep(e.settlementDelay)
	status := e.resolveStatus(finishCtx, trade.Symbol, orderID, intent.ID)

	log.OrderID = orderID
	log.Status = status
	log.PortfolioAfter = e.snapshotJSON(finishCtx)

	if jerr := e.journal.markDone(intent, orderID); jerr != nil {
		e.logger.Warn("failed to journal intent completion", zap.Error(jerr))
	}
	e.persistLog(finishCtx, &log)

	e.logger.Info("order completed",
		zap.String("symbol", trade.Symbol),
		zap.String("order_id", orderID),
		zap.String("status", string(status)))
	return log
}

// orderQty applies the denomination convention: buys spend a quote amount
// (2 decimal places), sells move a base quantity (instrument precision,
// applied by the planner). Both round down, never up.
func orderQty(trade domain.RebalanceTrade) (qty, marketUnit string) {
	if trade.Action == domain.ActionBuy {
		return trade.EstimatedUSDTAmount.RoundFloor(quoteAmountScale).String(), "quoteCoin"
	}
	return trade.Quantity.String(), "baseCoin"
}

// resolveStatus polls the order once after the settlement delay and maps
// the exchange status into the internal taxonomy. Anything other than a
// full fill is surfaced verbatim, never coerced.
func (e *Executor) resolveStatus(ctx context.Context, symbol, orderID, orderLinkID string) domain.TradeStatus {
	status, err := e.orders.OrderStatus(ctx, symbol, orderID, orderLinkID)
	if err != nil {
		e.logger.Warn("order status check failed",
			zap.String("order_id", orderID), zap.Error(err))
		return domain.TradeStatusUnknown
	}
	if status == exchangeStatusFilled {
		return domain.TradeStatusSuccess
	}
	if status == "" {
		return domain.TradeStatusUnknown
	}
	return domain.TradeStatus(status)
}

// snapshotJSON serializes the current portfolio state, best-effort: a
// failed snapshot never blocks a trade and is recorded as "{}".
func (e *Executor) snapshotJSON(ctx context.Context) string {
	state, err := e.snapshots.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("portfolio snapshot failed", zap.Error(err))
		return "{}"
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (e *Executor) persistLog(ctx context.Context, log *domain.TradeLog) {
	if err := e.store.InsertTradeLog(ctx, log); err != nil {
		e.logger.Error("failed to persist trade log",
			zap.String("symbol", log.Symbol), zap.Error(err))
	}
}

// Close releases the intent journal.
func (e *Executor) Close() error {
	return e.journal.Close()
}
