package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

type marketStream interface {
	Start(ctx context.Context) error
	Subscribe(symbols []string) error
	Close()
}

type instrumentRegistry interface {
	Refresh(ctx context.Context) error
}

type snapshotter interface {
	Snapshot(ctx context.Context) (domain.PortfolioState, error)
}

type rebalancePlanner interface {
	NeedsRebalancing(state *domain.PortfolioState, threshold decimal.Decimal) bool
	Plan(ctx context.Context, state *domain.PortfolioState, threshold, minTradeUSDT decimal.Decimal) ([]domain.RebalanceTrade, error)
}

type tradeExecutor interface {
	ExecuteAll(ctx context.Context, trades []domain.RebalanceTrade) ([]domain.TradeLog, error)
	ReconcilePending(ctx context.Context) error
}

type configSource interface {
	EnabledTargets(ctx context.Context) ([]domain.PortfolioTarget, error)
	RebalanceSettings(ctx context.Context) (domain.RebalanceSettings, error)
}

// Settings are the startup loop parameters. Threshold, minimum trade size
// and check interval are only fallbacks: the live values are re-read from
// the store at the start of every tick, together with the target
// allocations, so edits take effect on the next cycle.
type Settings struct {
	CheckInterval              time.Duration
	InstrumentsRefreshInterval time.Duration
	ThresholdPercent           decimal.Decimal
	MinTradeUSDT               decimal.Decimal
}

// Monitor drives the closed loop: subscribe to market data, snapshot the
// portfolio on a timer, plan and execute trades when allocations drift.
// It is the single writer of ServiceState.
type Monitor struct {
	settings Settings

	stream    marketStream
	registry  instrumentRegistry
	snapshots snapshotter
	planner   rebalancePlanner
	executor  tradeExecutor
	config    configSource
	logger    *zap.Logger

	// symbols already subscribed on the stream; only touched from Start
	// and the loop goroutine
	subscribed map[string]struct{}

	stateMu  sync.RWMutex
	state    domain.ServiceState
	watchers map[chan domain.ServiceState]struct{}

	rebalanceMu sync.Mutex // held for the whole plan+execute of one rebalance
	rebalanceWG sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}
}

func New(settings Settings, stream marketStream, registry instrumentRegistry,
	snapshots snapshotter, planner rebalancePlanner, executor tradeExecutor,
	config configSource, logger *zap.Logger) *Monitor {

	return &Monitor{
		settings:   settings,
		stream:     stream,
		registry:   registry,
		snapshots:  snapshots,
		planner:    planner,
		executor:   executor,
		config:     config,
		logger:     logger,
		subscribed: make(map[string]struct{}),
		state: domain.ServiceState{
			ConnectionStatus: domain.ConnectionDisconnected,
		},
		watchers: make(map[chan domain.ServiceState]struct{}),
	}
}

// Start brings the loop up: pending intents are reconciled first, then the
// instrument registry and the price stream, then the tick scheduler. A
// stream that cannot connect does not stop the loop; ticks fall back to
// REST prices until it recovers.
func (m *Monitor) Start(ctx context.Context) error {
	m.updateState(func(s *domain.ServiceState) {
		s.IsRunning = true
		s.ConnectionStatus = domain.ConnectionConnecting
	})

	if err := m.executor.ReconcilePending(ctx); err != nil {
		return errors.Wrap(err, "failed to reconcile pending trades")
	}

	if err := m.registry.Refresh(ctx); err != nil {
		// tolerated: the planner falls back to default precision
		m.logger.Warn("initial instrument refresh failed", zap.Error(err))
	}

	if err := m.stream.Start(ctx); err != nil {
		m.logger.Warn("market data stream unavailable, using REST prices", zap.Error(err))
		m.updateState(func(s *domain.ServiceState) {
			s.ConnectionStatus = domain.ConnectionError
			s.ErrorMessage = err.Error()
		})
	}
	if err := m.subscribeTargets(ctx); err != nil {
		m.logger.Warn("failed to subscribe to ticker topics", zap.Error(err))
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx)

	m.logger.Info("monitoring started",
		zap.Duration("check_interval", m.settings.CheckInterval),
		zap.String("threshold_percent", m.settings.ThresholdPercent.String()))
	return nil
}

// Stop cancels the scheduler, waits for an in-flight rebalance to wind
// down and closes the stream.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.rebalanceWG.Wait()
	m.stream.Close()

	m.updateState(func(s *domain.ServiceState) {
		s.IsRunning = false
		s.ConnectionStatus = domain.ConnectionDisconnected
	})
	m.logger.Info("monitoring stopped")
}

// State returns a copy of the current service state.
func (m *Monitor) State() domain.ServiceState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Watch returns a channel receiving every state change until ctx is
// cancelled. Slow receivers miss intermediate states, never block the loop.
func (m *Monitor) Watch(ctx context.Context) <-chan domain.ServiceState {
	ch := make(chan domain.ServiceState, 8)

	m.stateMu.Lock()
	m.watchers[ch] = struct{}{}
	m.stateMu.Unlock()

	go func() {
		<-ctx.Done()
		m.stateMu.Lock()
		delete(m.watchers, ch)
		m.stateMu.Unlock()
		close(ch)
	}()
	return ch
}

// StreamStatus is wired as the stream's status callback so connection
// transitions show up in the service state.
func (m *Monitor) StreamStatus(status domain.ConnectionStatus, err error) {
	m.updateState(func(s *domain.ServiceState) {
		s.ConnectionStatus = status
		if err != nil {
			s.ErrorMessage = err.Error()
		}
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	refresh := time.NewTicker(m.settings.InstrumentsRefreshInterval)
	defer refresh.Stop()

	// one immediate tick so a fresh start does not wait a full interval;
	// the timer is re-armed with whatever interval the tick read, so an
	// interval change is picked up one cycle later
	settings := m.tick(ctx)
	timer := time.NewTimer(settings.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			if err := m.registry.Refresh(ctx); err != nil {
				m.logger.Warn("instrument refresh failed", zap.Error(err))
			}
		case <-timer.C:
			settings = m.tick(ctx)
			timer.Reset(settings.CheckInterval)
		}
	}
}

// loopSettings re-reads the tunable parameters from the store. A store
// that cannot be read keeps the loop running on the startup values.
func (m *Monitor) loopSettings(ctx context.Context) domain.RebalanceSettings {
	fallback := domain.RebalanceSettings{
		ThresholdPercent: m.settings.ThresholdPercent,
		MinTradeUSDT:     m.settings.MinTradeUSDT,
		CheckInterval:    m.settings.CheckInterval,
	}

	settings, err := m.config.RebalanceSettings(ctx)
	if err != nil {
		m.logger.Warn("failed to read loop settings, keeping startup values", zap.Error(err))
		return fallback
	}
	if settings.CheckInterval <= 0 {
		settings.CheckInterval = fallback.CheckInterval
	}
	return settings
}

// tick takes one snapshot and, when drift crosses the threshold, kicks off
// a rebalance in the background. A tick that lands while a rebalance is
// still running is skipped, never queued. The settings in effect for this
// tick are returned so the scheduler can re-arm with the current interval.
func (m *Monitor) tick(ctx context.Context) domain.RebalanceSettings {
	m.updateState(func(s *domain.ServiceState) {
		s.LastCheckTime = time.Now()
	})

	settings := m.loopSettings(ctx)

	// coins enabled since the last tick get their ticker topic now
	// instead of waiting for the next instruments refresh
	if err := m.subscribeTargets(ctx); err != nil {
		m.logger.Warn("failed to subscribe to ticker topics", zap.Error(err))
	}

	state, err := m.snapshots.Snapshot(ctx)
	if err != nil {
		m.logger.Error("portfolio snapshot failed", zap.Error(err))
		m.updateState(func(s *domain.ServiceState) { s.ErrorMessage = err.Error() })
		return settings
	}
	m.updateState(func(s *domain.ServiceState) { s.ErrorMessage = "" })

	if !m.planner.NeedsRebalancing(&state, settings.ThresholdPercent) {
		m.logger.Debug("portfolio within threshold",
			zap.String("total_usdt", state.TotalValueUSDT.String()))
		return settings
	}

	if !m.rebalanceMu.TryLock() {
		m.logger.Info("rebalance already in progress, skipping tick")
		return settings
	}

	m.rebalanceWG.Add(1)
	go func() {
		defer m.rebalanceWG.Done()
		defer m.rebalanceMu.Unlock()
		m.rebalance(ctx, &state, settings)
	}()
	return settings
}

func (m *Monitor) rebalance(ctx context.Context, state *domain.PortfolioState, settings domain.RebalanceSettings) {
	trades, err := m.planner.Plan(ctx, state, settings.ThresholdPercent, settings.MinTradeUSDT)
	if err != nil {
		m.logger.Error("rebalance planning failed", zap.Error(err))
		m.updateState(func(s *domain.ServiceState) { s.ErrorMessage = err.Error() })
		return
	}
	if len(trades) == 0 {
		m.logger.Info("deviation above threshold but no executable trades")
		return
	}

	logs, err := m.executor.ExecuteAll(ctx, trades)
	if err != nil {
		m.logger.Error("rebalance execution failed", zap.Error(err))
		m.updateState(func(s *domain.ServiceState) { s.ErrorMessage = err.Error() })
		return
	}

	m.updateState(func(s *domain.ServiceState) {
		s.LastRebalanceTime = time.Now()
		s.ErrorMessage = ""
	})
	m.logger.Info("rebalance completed", zap.Int("trades", len(logs)))
}

// subscribeTargets keeps the stream's topic set aligned with the enabled
// allocation coins. Only symbols not yet subscribed are sent.
func (m *Monitor) subscribeTargets(ctx context.Context) error {
	targets, err := m.config.EnabledTargets(ctx)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.Coin == domain.StableCoin {
			continue
		}
		symbol := domain.Symbol(t.Coin)
		if _, ok := m.subscribed[symbol]; ok {
			continue
		}
		symbols = append(symbols, symbol)
	}
	if len(symbols) == 0 {
		return nil
	}
	if err := m.stream.Subscribe(symbols); err != nil {
		return err
	}
	for _, symbol := range symbols {
		m.subscribed[symbol] = struct{}{}
	}
	return nil
}

func (m *Monitor) updateState(apply func(*domain.ServiceState)) {
	m.stateMu.Lock()
	apply(&m.state)
	snapshot := m.state
	for ch := range m.watchers {
		select {
		case ch <- snapshot:
		default:
		}
	}
	m.stateMu.Unlock()
}
