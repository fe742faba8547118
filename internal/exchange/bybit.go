// Package exchange wraps the Bybit V5 API surface the rebalancer needs:
// wallet balances, spot tickers, instrument constraints and market orders.
package exchange

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

const instrumentsPageLimit = 1000

// OrderRequest is a market order to be submitted.
// Qty is already formatted per the side's denomination convention:
// quote currency for buys, base currency for sells.
type OrderRequest struct {
	Symbol string
	Side   domain.Action
	Qty    string
	// MarketUnit tells the exchange which currency Qty is denominated in
	// ("baseCoin" or "quoteCoin").
	MarketUnit string
	// OrderLinkID client-generated idempotency token; the exchange
	// de-duplicates resubmissions carrying the same id.
	OrderLinkID string
}

// BybitClient is the REST collaborator backed by the official V5 endpoints.
type BybitClient struct {
	client *bybit.Client
	logger *zap.Logger
}

func NewBybitClient(client *bybit.Client, logger *zap.Logger) *BybitClient {
	return &BybitClient{client: client, logger: logger}
}

// WalletBalances returns the unified-account balance per coin.
func (b *BybitClient) WalletBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	res, err := b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get wallet balance")
	}
	if len(res.Result.List) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	balances := make(map[string]decimal.Decimal, len(res.Result.List[0].Coin))
	for _, coin := range res.Result.List[0].Coin {
		balance, err := decimal.NewFromString(coin.WalletBalance)
		if err != nil {
			b.logger.Warn("unparsable wallet balance, skipping coin",
				zap.String("coin", string(coin.Coin)), zap.String("raw", coin.WalletBalance))
			continue
		}
		balances[string(coin.Coin)] = balance
	}
	return balances, nil
}

// TickerPrice returns the last traded spot price for a symbol.
func (b *BybitClient) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := bybit.SymbolV5(symbol)
	res, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &sym,
	})
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "failed to get ticker for %s", symbol)
	}
	if res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
		return decimal.Decimal{}, errors.Errorf("bybit returned no ticker for %s", symbol)
	}
	return decimal.NewFromString(res.Result.Spot.List[0].LastPrice)
}

// Instruments fetches the full spot instrument list. Filtering to active
// USDT pairs is the registry's job, not the transport's.
func (b *BybitClient) Instruments(ctx context.Context) ([]domain.InstrumentInfo, error) {
	limit := instrumentsPageLimit
	res, err := b.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: "spot",
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get instruments info")
	}
	if res.Result.Spot == nil {
		return nil, errors.New("bybit returned no spot instruments")
	}

	instruments := make([]domain.InstrumentInfo, 0, len(res.Result.Spot.List))
	for _, item := range res.Result.Spot.List {
		instruments = append(instruments, domain.InstrumentInfo{
			Symbol:         string(item.Symbol),
			BaseCoin:       string(item.BaseCoin),
			QuoteCoin:      string(item.QuoteCoin),
			Status:         string(item.Status),
			BasePrecision:  precisionFromStep(item.LotSizeFilter.BasePrecision),
			QuotePrecision: precisionFromStep(item.LotSizeFilter.QuotePrecision),
			MinOrderQty:    decimalOrZero(item.LotSizeFilter.MinOrderQty),
			MaxOrderQty:    decimalOrZero(item.LotSizeFilter.MaxOrderQty),
			MinOrderAmt:    decimalOrZero(item.LotSizeFilter.MinOrderAmt),
			MaxOrderAmt:    decimalOrZero(item.LotSizeFilter.MaxOrderAmt),
			TickSize:       decimalOrZero(item.PriceFilter.TickSize),
		})
	}
	return instruments, nil
}

// CreateOrder submits a spot market order and returns the exchange order id.
func (b *BybitClient) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	side := bybit.SideBuy
	if req.Side == domain.ActionSell {
		side = bybit.SideSell
	}

	marketUnit := bybit.MarketUnit(req.MarketUnit)
	orderLinkID := req.OrderLinkID

	res, err := b.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    "spot",
		Symbol:      bybit.SymbolV5(req.Symbol),
		Side:        side,
		OrderType:   bybit.OrderTypeMarket,
		Qty:         req.Qty,
		MarketUnit:  &marketUnit,
		OrderLinkID: &orderLinkID,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s order for %s", req.Side.String(), req.Symbol)
	}
	return res.Result.OrderID, nil
}

// OrderStatus returns the exchange status string for an order, looked up by
// order id or, when orderID is empty, by the client order-link id.
func (b *BybitClient) OrderStatus(ctx context.Context, symbol, orderID, orderLinkID string) (string, error) {
	sym := bybit.SymbolV5(symbol)
	param := bybit.V5GetOpenOrdersParam{
		Category: "spot",
		Symbol:   &sym,
	}
	if orderID != "" {
		param.OrderID = &orderID
	} else {
		param.OrderLinkID = &orderLinkID
	}

	res, err := b.client.V5().Order().GetOpenOrders(param)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get order status for %s", symbol)
	}
	if len(res.Result.List) == 0 {
		return string(domain.TradeStatusUnknown), nil
	}
	return string(res.Result.List[0].OrderStatus), nil
}

// precisionFromStep converts an exchange precision step ("0.000001") into a
// decimal-place count. Steps of "1" or malformed values yield 0.
func precisionFromStep(step string) int32 {
	d, err := decimal.NewFromString(step)
	if err != nil || d.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
