// Command rebalancer keeps a Bybit spot portfolio at its target
// allocations. It watches balances and prices in a closed loop, computes
// the drift from the configured targets and issues market orders to close
// it, journaling every order so a crash never loses an outcome.
//
// Usage:
//
//	rebalancer --config config.yaml
//	rebalancer --targets BTC:50,ETH:30,USDT:20 --threshold 5
//	rebalancer setup   (interactive configuration wizard)
//
// Required environment variables: BYBIT_API_KEY, BYBIT_API_SECRET.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/config"
	"github.com/drcevik47/MahfuzC-Rebalancer/dashboard"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/clients"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/exchange"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/monitor"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/services/instruments"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/services/marketdata"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/services/portfolio"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/services/pricer"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/services/rebalancer"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/setup"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/storage"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	apiKey := os.Getenv("BYBIT_API_KEY")
	apiSecret := os.Getenv("BYBIT_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		log.Fatal("BYBIT_API_KEY and BYBIT_API_SECRET environment variables must be set")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if sum := cfg.TargetsSum(); !sum.Equal(decimal.NewFromInt(100)) {
		logger.Warn("target allocations do not sum to 100",
			zap.String("sum", sum.String()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()
	if err := store.SeedTargets(ctx, cfg.Targets); err != nil {
		logger.Fatal("failed to seed portfolio targets", zap.Error(err))
	}
	if err := store.SaveSettings(ctx, domain.RebalanceSettings{
		ThresholdPercent: cfg.ThresholdPercent,
		MinTradeUSDT:     cfg.MinTradeUSDT,
		CheckInterval:    cfg.CheckInterval,
	}); err != nil {
		logger.Fatal("failed to seed loop settings", zap.Error(err))
	}

	client := clients.NewBybitClient(apiKey, apiSecret, cfg.Testnet)
	bybitClient := exchange.NewBybitClient(client, logger)

	cache := marketdata.NewCache()

	// the monitor does not exist yet when the stream is built; the
	// callback closes over the variable filled in below
	var mon *monitor.Monitor
	onStatus := func(status domain.ConnectionStatus, err error) {
		if mon != nil {
			mon.StreamStatus(status, err)
		}
	}

	streamURL := exchange.MainnetStreamURL
	if cfg.Testnet {
		streamURL = exchange.TestnetStreamURL
	}
	stream := exchange.NewStream(streamURL, cache, onStatus, logger)

	cachedPricer := pricer.NewCachedPricer(cache, bybitClient)
	registry := instruments.NewRegistry(bybitClient, logger)
	portfolioService := portfolio.NewService(bybitClient, cachedPricer, store, logger)
	planner := rebalancer.NewPlanner(registry, cachedPricer, logger)

	executor, err := rebalancer.NewExecutor(bybitClient, portfolioService, store, cfg.JournalDir, logger)
	if err != nil {
		logger.Fatal("failed to open trade journal", zap.Error(err))
	}
	defer executor.Close()

	mon = monitor.New(monitor.Settings{
		CheckInterval:              cfg.CheckInterval,
		InstrumentsRefreshInterval: cfg.InstrumentsRefreshInterval,
		ThresholdPercent:           cfg.ThresholdPercent,
		MinTradeUSDT:               cfg.MinTradeUSDT,
	}, stream, registry, portfolioService, planner, executor, store, logger)

	server := dashboard.NewServer(cfg.DashboardAddr, mon, portfolioService, store, logger)
	go func() {
		var err error
		if cfg.DashboardDomain != "" {
			err = server.StartWithAutoTLS(ctx, []string{cfg.DashboardDomain}, "")
		} else {
			err = server.Start(ctx)
		}
		if err != nil {
			logger.Error("dashboard server stopped", zap.Error(err))
		}
	}()

	if err := mon.Start(ctx); err != nil {
		logger.Fatal("failed to start monitoring", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	mon.Stop()
}

func loadConfig() (config.Config, error) {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "setup", "-setup", "--setup":
			if err := setup.RunTUI(); err != nil {
				return config.Config{}, err
			}
			return config.FromFile("config.gen.yaml")
		}
	}
	return config.Get()
}
