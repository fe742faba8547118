package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGetYaml(t *testing.T) {
	raw := `targets:
  btc: "50"
  ETH: "30"
  SOL: "20"
threshold_percent: "2.5"
min_trade_usdt: "15"
check_interval: 1m
testnet: true
dashboard_addr: ":9090"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 3)
	require.True(t, cfg.Targets["BTC"].Equal(decimal.NewFromInt(50)), "coin keys are uppercased")
	require.True(t, cfg.ThresholdPercent.Equal(decimal.RequireFromString("2.5")))
	require.True(t, cfg.MinTradeUSDT.Equal(decimal.NewFromInt(15)))
	require.Equal(t, time.Minute, cfg.CheckInterval)
	require.True(t, cfg.Testnet)
	require.Equal(t, ":9090", cfg.DashboardAddr)

	// unset fields fall back to defaults
	require.Equal(t, DefaultDBPath, cfg.DBPath)
	require.Equal(t, DefaultJournalDir, cfg.JournalDir)
	require.Equal(t, DefaultRefreshInterval, cfg.InstrumentsRefreshInterval)
}

func TestGetYamlRejectsBadTarget(t *testing.T) {
	raw := `targets:
  BTC: "fifty"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := getYaml(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Targets:          map[string]decimal.Decimal{"BTC": decimal.NewFromInt(120)},
		ThresholdPercent: decimal.NewFromInt(5),
	}
	require.Error(t, cfg.validate(), "allocation above 100 is rejected")

	cfg.Targets["BTC"] = decimal.NewFromInt(60)
	cfg.ThresholdPercent = decimal.Zero
	require.Error(t, cfg.validate(), "threshold must be positive")

	cfg.ThresholdPercent = decimal.NewFromInt(5)
	require.NoError(t, cfg.validate())
}

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets("BTC:50, eth:30,SOL:20")
	require.NoError(t, err)
	require.Len(t, targets, 3)
	require.True(t, targets["ETH"].Equal(decimal.NewFromInt(30)))

	_, err = parseTargets("BTC=50")
	require.Error(t, err)
}

func TestTargetsSum(t *testing.T) {
	cfg := Config{Targets: map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("49.5"),
		"ETH": decimal.RequireFromString("50.5"),
	}}
	require.True(t, cfg.TargetsSum().Equal(decimal.NewFromInt(100)))
}
