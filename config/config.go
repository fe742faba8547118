package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultThresholdPercent = "5"
	DefaultMinTradeUSDT     = "10"
	DefaultCheckInterval    = 5 * time.Minute
	DefaultRefreshInterval  = 1 * time.Hour
	DefaultDBPath           = "rebalancer.db"
	DefaultJournalDir       = "wal"
	DefaultDashboardAddr    = ":8080"
)

type Config struct {
	// Targets maps coin to its desired allocation percent of total value.
	Targets                    map[string]decimal.Decimal
	ThresholdPercent           decimal.Decimal
	MinTradeUSDT               decimal.Decimal
	CheckInterval              time.Duration
	InstrumentsRefreshInterval time.Duration
	Testnet                    bool
	DBPath                     string
	JournalDir                 string
	DashboardAddr              string
	DashboardDomain            string
}

type ConfigTmp struct {
	Targets                    map[string]string `yaml:"targets"`
	ThresholdPercent           string            `yaml:"threshold_percent,omitempty"`
	MinTradeUSDT               string            `yaml:"min_trade_usdt,omitempty"`
	CheckInterval              time.Duration     `yaml:"check_interval,omitempty"`
	InstrumentsRefreshInterval time.Duration     `yaml:"instruments_refresh_interval,omitempty"`
	Testnet                    bool              `yaml:"testnet,omitempty"`
	DBPath                     string            `yaml:"db_path,omitempty"`
	JournalDir                 string            `yaml:"journal_dir,omitempty"`
	DashboardAddr              string            `yaml:"dashboard_addr,omitempty"`
	DashboardDomain            string            `yaml:"dashboard_domain,omitempty"`
}

func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	targetsFlag := flag.String("targets", "", "target allocations, example: BTC:50,ETH:30,SOL:20")
	threshold := flag.String("threshold", DefaultThresholdPercent, "deviation percent that triggers a rebalance")
	minTrade := flag.String("mintrade", DefaultMinTradeUSDT, "minimum trade size in USDT")
	interval := flag.Duration("interval", DefaultCheckInterval, "portfolio check interval")
	testnet := flag.Bool("testnet", false, "use the Bybit testnet")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	targets, err := parseTargets(*targetsFlag)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --targets provided, --targets=%s: %w", *targetsFlag, err)
	}

	cfg := Config{
		Targets:                    targets,
		CheckInterval:              *interval,
		InstrumentsRefreshInterval: DefaultRefreshInterval,
		Testnet:                    *testnet,
		DBPath:                     DefaultDBPath,
		JournalDir:                 DefaultJournalDir,
		DashboardAddr:              DefaultDashboardAddr,
	}
	cfg.ThresholdPercent, err = decimal.NewFromString(*threshold)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --threshold provided, --threshold=%s: %w", *threshold, err)
	}
	cfg.MinTradeUSDT, err = decimal.NewFromString(*minTrade)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --mintrade provided, --mintrade=%s: %w", *minTrade, err)
	}

	return cfg, cfg.validate()
}

// FromFile loads a yaml config directly, bypassing the CLI flags. Used
// after the setup wizard writes its generated file.
func FromFile(path string) (Config, error) {
	return getYaml(path)
}

func getYaml(path string) (Config, error) {
	var tmp ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Targets:                    make(map[string]decimal.Decimal, len(tmp.Targets)),
		CheckInterval:              tmp.CheckInterval,
		InstrumentsRefreshInterval: tmp.InstrumentsRefreshInterval,
		Testnet:                    tmp.Testnet,
		DBPath:                     tmp.DBPath,
		JournalDir:                 tmp.JournalDir,
		DashboardAddr:              tmp.DashboardAddr,
		DashboardDomain:            tmp.DashboardDomain,
	}

	for coin, pctStr := range tmp.Targets {
		pct, err := decimal.NewFromString(pctStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect target for %s in yaml config: %s, error: %w", coin, pctStr, err)
		}
		cfg.Targets[strings.ToUpper(coin)] = pct
	}

	cfg.ThresholdPercent, err = parseDecimalOrDefault(tmp.ThresholdPercent, DefaultThresholdPercent)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'threshold_percent' param in yaml config: %w", err)
	}
	cfg.MinTradeUSDT, err = parseDecimalOrDefault(tmp.MinTradeUSDT, DefaultMinTradeUSDT)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'min_trade_usdt' param in yaml config: %w", err)
	}

	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.InstrumentsRefreshInterval == 0 {
		cfg.InstrumentsRefreshInterval = DefaultRefreshInterval
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = DefaultJournalDir
	}
	if cfg.DashboardAddr == "" {
		cfg.DashboardAddr = DefaultDashboardAddr
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("no target allocations configured")
	}
	for coin, pct := range c.Targets {
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("target for %s out of range: %s", coin, pct.String())
		}
	}
	if !c.ThresholdPercent.IsPositive() {
		return fmt.Errorf("threshold_percent must be positive, got %s", c.ThresholdPercent.String())
	}
	if c.MinTradeUSDT.IsNegative() {
		return fmt.Errorf("min_trade_usdt must not be negative, got %s", c.MinTradeUSDT.String())
	}
	return nil
}

// TargetsSum reports the total of all configured allocations. Callers warn
// when it is not exactly 100; the loop still runs with whatever is set.
func (c Config) TargetsSum() decimal.Decimal {
	sum := decimal.Zero
	for _, pct := range c.Targets {
		sum = sum.Add(pct)
	}
	return sum
}

func parseTargets(s string) (map[string]decimal.Decimal, error) {
	if s == "" {
		return nil, fmt.Errorf("no targets provided")
	}

	targets := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(s, ",") {
		kv := strings.Split(strings.TrimSpace(part), ":")
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid target %q, expected COIN:PERCENT", part)
		}
		pct, err := decimal.NewFromString(kv[1])
		if err != nil {
			return nil, fmt.Errorf("invalid percent for %s: %w", kv[0], err)
		}
		targets[strings.ToUpper(strings.TrimSpace(kv[0]))] = pct
	}
	return targets, nil
}

func parseDecimalOrDefault(s, def string) (decimal.Decimal, error) {
	if s == "" {
		s = def
	}
	return decimal.NewFromString(s)
}
