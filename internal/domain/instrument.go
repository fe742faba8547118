package domain

import "github.com/shopspring/decimal"

// InstrumentStatusTrading is the only exchange status the registry retains.
const InstrumentStatusTrading = "Trading"

// InstrumentInfo carries per-symbol trading constraints fetched from the
// exchange. Immutable once fetched; the registry replaces entries wholesale.
type InstrumentInfo struct {
	Symbol    string
	BaseCoin  string
	QuoteCoin string
	Status    string
	// BasePrecision number of decimal places allowed for base quantity.
	BasePrecision int32
	// QuotePrecision number of decimal places allowed for quote amounts.
	QuotePrecision int32
	MinOrderQty    decimal.Decimal
	MaxOrderQty    decimal.Decimal
	MinOrderAmt    decimal.Decimal
	MaxOrderAmt    decimal.Decimal
	TickSize       decimal.Decimal
}
