package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RebalanceTrade is a planned, not yet executed instruction produced by the
// planner and consumed exactly once by the executor.
type RebalanceTrade struct {
	Coin   string
	Symbol string
	Action Action
	// Quantity amount of the base coin, truncated to instrument precision.
	Quantity decimal.Decimal
	// EstimatedUSDTAmount absolute difference from target in quote currency.
	EstimatedUSDTAmount decimal.Decimal
	CurrentPrice        decimal.Decimal
}

// String returns a human-readable string representation.
func (t *RebalanceTrade) String() string {
	return fmt.Sprintf("%s %s qty=%s (~%s USDT @ %s)",
		t.Action.String(), t.Symbol, t.Quantity.String(), t.EstimatedUSDTAmount.String(), t.CurrentPrice.String())
}

// TradeStatus is the internal taxonomy order outcomes are mapped into.
// Non-terminal or unusual exchange statuses are surfaced verbatim.
type TradeStatus string

const (
	TradeStatusSuccess         TradeStatus = "SUCCESS"
	TradeStatusFailed          TradeStatus = "FAILED"
	TradeStatusPending         TradeStatus = "PENDING"
	TradeStatusPartiallyFilled TradeStatus = "PartiallyFilled"
	TradeStatusCancelled       TradeStatus = "Cancelled"
	TradeStatusRejected        TradeStatus = "Rejected"
	TradeStatusUnknown         TradeStatus = "Unknown"
)

// TradeLog is the persisted record of one attempted trade.
type TradeLog struct {
	ID        int64
	Timestamp time.Time
	Action    string
	Symbol    string
	Coin      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	// USDTAmount estimated quote amount the trade was sized to.
	USDTAmount decimal.Decimal
	// PortfolioBefore and PortfolioAfter are JSON-serialized snapshots,
	// recorded best-effort ("{}" when the snapshot itself failed).
	PortfolioBefore string
	PortfolioAfter  string
	OrderID         string
	Status          TradeStatus
}
