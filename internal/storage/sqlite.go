package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
)

// SQLiteStore keeps the trade history and the persisted portfolio targets.
// Decimal columns are stored as TEXT so exchange quantities round-trip
// without float drift.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trade_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			coin TEXT NOT NULL,
			quantity TEXT NOT NULL,
			price TEXT NOT NULL,
			usdt_amount TEXT NOT NULL,
			portfolio_before TEXT NOT NULL DEFAULT '{}',
			portfolio_after TEXT NOT NULL DEFAULT '{}',
			order_id TEXT,
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_logs_timestamp ON trade_logs(timestamp);`,
		`CREATE TABLE IF NOT EXISTS portfolio_coins (
			coin TEXT PRIMARY KEY,
			target_percentage TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			added_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rebalance_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			threshold_percent TEXT NOT NULL,
			min_trade_usdt TEXT NOT NULL,
			check_interval_seconds INTEGER NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return errors.Wrapf(err, "failed to exec query %s", q)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertTradeLog(ctx context.Context, log *domain.TradeLog) error {
	query := `INSERT INTO trade_logs (timestamp, action, symbol, coin, quantity, price, usdt_amount, portfolio_before, portfolio_after, order_id, status)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		log.Timestamp, log.Action, log.Symbol, log.Coin,
		log.Quantity.String(), log.Price.String(), log.USDTAmount.String(),
		log.PortfolioBefore, log.PortfolioAfter, log.OrderID, string(log.Status))
	if err != nil {
		return errors.Wrap(err, "failed to insert trade log")
	}

	id, err := res.LastInsertId()
	if err == nil {
		log.ID = id
	}
	return nil
}

// ListTradeLogs returns the most recent trades first.
func (s *SQLiteStore) ListTradeLogs(ctx context.Context, limit int) ([]domain.TradeLog, error) {
	query := `SELECT id, timestamp, action, symbol, coin, quantity, price, usdt_amount, portfolio_before, portfolio_after, order_id, status
			  FROM trade_logs ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query trade logs")
	}
	defer rows.Close()

	var logs []domain.TradeLog
	for rows.Next() {
		var (
			log                   domain.TradeLog
			quantity, price, usdt string
			orderID               sql.NullString
			status                string
		)
		if err := rows.Scan(&log.ID, &log.Timestamp, &log.Action, &log.Symbol, &log.Coin,
			&quantity, &price, &usdt, &log.PortfolioBefore, &log.PortfolioAfter,
			&orderID, &status); err != nil {
			return nil, errors.Wrap(err, "failed to scan trade log")
		}

		log.Quantity = decimalColumn(quantity)
		log.Price = decimalColumn(price)
		log.USDTAmount = decimalColumn(usdt)
		log.OrderID = orderID.String
		log.Status = domain.TradeStatus(status)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// UpsertTarget inserts or replaces a coin's target allocation.
func (s *SQLiteStore) UpsertTarget(ctx context.Context, target domain.PortfolioTarget) error {
	if target.AddedAt.IsZero() {
		target.AddedAt = time.Now()
	}
	query := `INSERT INTO portfolio_coins (coin, target_percentage, enabled, added_at)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(coin) DO UPDATE SET
			  target_percentage=excluded.target_percentage,
			  enabled=excluded.enabled`
	_, err := s.db.ExecContext(ctx, query,
		target.Coin, target.TargetPercentage.String(), target.Enabled, target.AddedAt)
	return errors.Wrap(err, "failed to upsert portfolio target")
}

func (s *SQLiteStore) ListTargets(ctx context.Context) ([]domain.PortfolioTarget, error) {
	query := `SELECT coin, target_percentage, enabled, added_at FROM portfolio_coins ORDER BY coin`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query portfolio targets")
	}
	defer rows.Close()

	var targets []domain.PortfolioTarget
	for rows.Next() {
		var (
			t   domain.PortfolioTarget
			pct string
		)
		if err := rows.Scan(&t.Coin, &pct, &t.Enabled, &t.AddedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan portfolio target")
		}
		t.TargetPercentage = decimalColumn(pct)
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// EnabledTargets returns the active allocations the monitoring loop and
// snapshot valuation work from.
func (s *SQLiteStore) EnabledTargets(ctx context.Context) ([]domain.PortfolioTarget, error) {
	targets, err := s.ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]domain.PortfolioTarget, 0, len(targets))
	for _, t := range targets {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

// SaveSettings writes the loop parameters into their single row.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings domain.RebalanceSettings) error {
	query := `INSERT INTO rebalance_settings (id, threshold_percent, min_trade_usdt, check_interval_seconds)
			  VALUES (1, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  threshold_percent=excluded.threshold_percent,
			  min_trade_usdt=excluded.min_trade_usdt,
			  check_interval_seconds=excluded.check_interval_seconds`
	_, err := s.db.ExecContext(ctx, query,
		settings.ThresholdPercent.String(), settings.MinTradeUSDT.String(),
		int64(settings.CheckInterval/time.Second))
	return errors.Wrap(err, "failed to save rebalance settings")
}

// RebalanceSettings returns the loop parameters the monitoring loop reads
// at the start of every tick.
func (s *SQLiteStore) RebalanceSettings(ctx context.Context) (domain.RebalanceSettings, error) {
	var (
		threshold, minTrade string
		intervalSeconds     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT threshold_percent, min_trade_usdt, check_interval_seconds FROM rebalance_settings WHERE id = 1`).
		Scan(&threshold, &minTrade, &intervalSeconds)
	if err != nil {
		return domain.RebalanceSettings{}, errors.Wrap(err, "failed to query rebalance settings")
	}

	return domain.RebalanceSettings{
		ThresholdPercent: decimalColumn(threshold),
		MinTradeUSDT:     decimalColumn(minTrade),
		CheckInterval:    time.Duration(intervalSeconds) * time.Second,
	}, nil
}

// SeedTargets writes the configured allocations into the store on startup
// so the database always reflects the running configuration.
func (s *SQLiteStore) SeedTargets(ctx context.Context, allocations map[string]decimal.Decimal) error {
	for coin, pct := range allocations {
		target := domain.PortfolioTarget{
			Coin:             coin,
			TargetPercentage: pct,
			Enabled:          true,
			AddedAt:          time.Now(),
		}
		if err := s.UpsertTarget(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decimalColumn(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
