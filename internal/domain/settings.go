package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RebalanceSettings are the tunable loop parameters. The monitoring loop
// re-reads them at the start of every tick, so edits take effect on the
// next cycle without a restart.
type RebalanceSettings struct {
	ThresholdPercent decimal.Decimal `json:"thresholdPercent"`
	MinTradeUSDT     decimal.Decimal `json:"minTradeUsdt"`
	CheckInterval    time.Duration   `json:"checkInterval"`
}
