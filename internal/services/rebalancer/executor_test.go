package rebalancer

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/exchange"
)

type mockOrderClient struct {
	mock.Mock
}

func (m *mockOrderClient) CreateOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockOrderClient) OrderStatus(ctx context.Context, symbol, orderID, orderLinkID string) (string, error) {
	args := m.Called(ctx, symbol, orderID, orderLinkID)
	return args.String(0), args.Error(1)
}

type stubSnapshotter struct {
	state domain.PortfolioState
	err   error
}

func (s *stubSnapshotter) Snapshot(ctx context.Context) (domain.PortfolioState, error) {
	return s.state, s.err
}

type memoryStore struct {
	logs []domain.TradeLog
}

func (s *memoryStore) InsertTradeLog(ctx context.Context, log *domain.TradeLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

func newTestExecutor(t *testing.T, orders orderClient) (*Executor, *memoryStore) {
	t.Helper()
	store := &memoryStore{}
	snapshots := &stubSnapshotter{state: domain.PortfolioState{
		TotalValueUSDT: decimal.NewFromInt(1000),
		Timestamp:      time.Now(),
	}}

	executor, err := NewExecutor(orders, snapshots, store, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { executor.Close() })

	executor.settlementDelay = time.Millisecond
	executor.interTradeDelay = time.Millisecond
	return executor, store
}

func sellBTC() domain.RebalanceTrade {
	return domain.RebalanceTrade{
		Coin: "BTC", Symbol: "BTCUSDT", Action: domain.ActionSell,
		Quantity:            decimal.RequireFromString("0.001"),
		EstimatedUSDTAmount: decimal.RequireFromString("50"),
		CurrentPrice:        decimal.NewFromInt(50000),
	}
}

func buyETH() domain.RebalanceTrade {
	return domain.RebalanceTrade{
		Coin: "ETH", Symbol: "ETHUSDT", Action: domain.ActionBuy,
		Quantity:            decimal.RequireFromString("0.02"),
		EstimatedUSDTAmount: decimal.RequireFromString("50.129"),
		CurrentPrice:        decimal.NewFromInt(2500),
	}
}

func TestExecuteAll_EmptyPlanIsNoop(t *testing.T) {
	orders := &mockOrderClient{}
	executor, store := newTestExecutor(t, orders)

	logs, err := executor.ExecuteAll(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, logs)
	require.Empty(t, store.logs)
	orders.AssertNotCalled(t, "CreateOrder")
}

func TestExecuteAll_BuyAndSellDenomination(t *testing.T) {
	orders := &mockOrderClient{}
	executor, _ := newTestExecutor(t, orders)

	// SELL moves base quantity, BUY spends a floor-rounded quote amount
	orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.Symbol == "BTCUSDT" && req.Side == domain.ActionSell &&
			req.Qty == "0.001" && req.MarketUnit == "baseCoin"
	})).Return("order-1", nil).Once()
	orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.Symbol == "ETHUSDT" && req.Side == domain.ActionBuy &&
			req.Qty == "50.12" && req.MarketUnit == "quoteCoin"
	})).Return("order-2", nil).Once()
	orders.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Filled", nil)

	logs, err := executor.ExecuteAll(context.Background(), []domain.RebalanceTrade{sellBTC(), buyETH()})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, domain.TradeStatusSuccess, logs[0].Status)
	require.Equal(t, domain.TradeStatusSuccess, logs[1].Status)
	orders.AssertExpectations(t)
}

func TestExecuteAll_OrderLinkIDAttached(t *testing.T) {
	orders := &mockOrderClient{}
	executor, _ := newTestExecutor(t, orders)

	var linkID string
	orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		linkID = req.OrderLinkID
		return true
	})).Return("order-1", nil)
	orders.On("OrderStatus", mock.Anything, "BTCUSDT", "order-1", mock.Anything).
		Return("Filled", nil)

	_, err := executor.ExecuteAll(context.Background(), []domain.RebalanceTrade{sellBTC()})
	require.NoError(t, err)
	require.Regexp(t, `^rebal_[0-9a-f-]{8}$`, linkID)
}

func TestExecuteAll_PartialFailureStillSucceeds(t *testing.T) {
	orders := &mockOrderClient{}
	executor, store := newTestExecutor(t, orders)

	orders.On("CreateOrder", mock.Anything, mock.Anything).
		Return("", errors.New("rate limited")).Once()
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return("order-ok", nil).Twice()
	orders.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Filled", nil)

	trades := []domain.RebalanceTrade{sellBTC(), sellBTC(), buyETH()}
	logs, err := executor.ExecuteAll(context.Background(), trades)

	require.NoError(t, err, "one success is enough for the batch to succeed")
	require.Len(t, logs, 3)
	require.Equal(t, domain.TradeStatusFailed, logs[0].Status)
	require.Empty(t, logs[0].OrderID)
	require.Equal(t, domain.TradeStatusSuccess, logs[1].Status)
	require.Equal(t, domain.TradeStatusSuccess, logs[2].Status)
	require.Len(t, store.logs, 3, "every attempt is persisted")
}

func TestExecuteAll_AllFailedIsOverallFailure(t *testing.T) {
	orders := &mockOrderClient{}
	executor, store := newTestExecutor(t, orders)

	orders.On("CreateOrder", mock.Anything, mock.Anything).
		Return("", errors.New("insufficient balance"))

	logs, err := executor.ExecuteAll(context.Background(),
		[]domain.RebalanceTrade{sellBTC(), buyETH(), sellBTC()})

	require.ErrorIs(t, err, ErrAllTradesFailed)
	require.Nil(t, logs)
	require.Len(t, store.logs, 3, "failed attempts are still persisted")
	for _, log := range store.logs {
		require.Equal(t, domain.TradeStatusFailed, log.Status)
	}
}

func TestExecuteAll_NonFilledStatusSurfacedVerbatim(t *testing.T) {
	orders := &mockOrderClient{}
	executor, _ := newTestExecutor(t, orders)

	orders.On("CreateOrder", mock.Anything, mock.Anything).Return("order-1", nil)
	orders.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("PartiallyFilled", nil)

	logs, err := executor.ExecuteAll(context.Background(), []domain.RebalanceTrade{sellBTC()})
	require.NoError(t, err)
	require.Equal(t, domain.TradeStatus("PartiallyFilled"), logs[0].Status)
}

func TestExecuteAll_StatusCheckFailureIsUnknown(t *testing.T) {
	orders := &mockOrderClient{}
	executor, _ := newTestExecutor(t, orders)

	orders.On("CreateOrder", mock.Anything, mock.Anything).Return("order-1", nil)
	orders.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("timeout"))

	logs, err := executor.ExecuteAll(context.Background(), []domain.RebalanceTrade{sellBTC()})
	require.NoError(t, err)
	require.Equal(t, domain.TradeStatusUnknown, logs[0].Status)
	require.Equal(t, "order-1", logs[0].OrderID)
}

// sequenceSnapshotter returns a different portfolio state on each call.
type sequenceSnapshotter struct {
	states []domain.PortfolioState
	calls  int
}

func (s *sequenceSnapshotter) Snapshot(ctx context.Context) (domain.PortfolioState, error) {
	state := s.states[s.calls%len(s.states)]
	s.calls++
	return state, nil
}

func TestExecuteAll_FailedSubmissionRecordsFreshAfterSnapshot(t *testing.T) {
	orders := &mockOrderClient{}
	executor, store := newTestExecutor(t, orders)
	executor.snapshots = &sequenceSnapshotter{states: []domain.PortfolioState{
		{TotalValueUSDT: decimal.NewFromInt(1000)},
		{TotalValueUSDT: decimal.NewFromInt(990)},
	}}

	orders.On("CreateOrder", mock.Anything, mock.Anything).
		Return("", errors.New("insufficient balance")).Once()

	logs, err := executor.ExecuteAll(context.Background(), []domain.RebalanceTrade{sellBTC()})
	require.ErrorIs(t, err, ErrAllTradesFailed)
	require.Nil(t, logs)

	require.Len(t, store.logs, 1)
	require.Equal(t, domain.TradeStatusFailed, store.logs[0].Status)
	require.Contains(t, store.logs[0].PortfolioBefore, "1000")
	require.Contains(t, store.logs[0].PortfolioAfter, "990",
		"the after snapshot is taken after the failed submission, not copied from before")
}

func TestExecuteAll_SnapshotFailureDoesNotBlockTrade(t *testing.T) {
	orders := &mockOrderClient{}
	store := &memoryStore{}
	snapshots := &stubSnapshotter{err: errors.New("balance endpoint down")}

	executor, err := NewExecutor(orders, snapshots, store, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { executor.Close() })
	executor.settlementDelay = time.Millisecond
	executor.interTradeDelay = time.Millisecond

	orders.On("CreateOrder", mock.Anything, mock.Anything).Return("order-1", nil)
	orders.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Filled", nil)

	logs, err := executor.ExecuteAll(context.Background(), []domain.RebalanceTrade{sellBTC()})
	require.NoError(t, err)
	require.Equal(t, "{}", logs[0].PortfolioBefore)
	require.Equal(t, "{}", logs[0].PortfolioAfter)
	require.Equal(t, domain.TradeStatusSuccess, logs[0].Status)
}

func TestExecuteAll_CancelledBetweenTrades(t *testing.T) {
	orders := &mockOrderClient{}
	executor, _ := newTestExecutor(t, orders)

	ctx, cancel := context.WithCancel(context.Background())
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return("order-1", nil).
		Run(func(mock.Arguments) { cancel() }).Once()
	orders.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Filled", nil)

	logs, err := executor.ExecuteAll(ctx, []domain.RebalanceTrade{sellBTC(), buyETH()})

	// the in-flight trade completed with a recorded outcome; the rest stop
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, logs, 1)
	require.Equal(t, domain.TradeStatusSuccess, logs[0].Status)
	orders.AssertNumberOfCalls(t, "CreateOrder", 1)
}
