package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/drcevik47/MahfuzC-Rebalancer/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and writes the result
// to config.gen.yaml. API credentials are never written to the file; the
// bot reads BYBIT_API_KEY / BYBIT_API_SECRET from the environment.
func RunTUI() error {
	var (
		targetsStr    string
		thresholdStr  string
		minTradeStr   string
		intervalStr   string
		network       string
		dashboardAddr string
		confirm       bool
	)

	// defaults
	targetsStr = "BTC:50,ETH:30,USDT:20"
	thresholdStr = config.DefaultThresholdPercent
	minTradeStr = config.DefaultMinTradeUSDT
	intervalStr = config.DefaultCheckInterval.String()
	network = "mainnet"
	dashboardAddr = config.DefaultDashboardAddr

	// step 1: welcome + allocations
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("REBALANCER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Set your target allocations and let the bot hold the line.\n"))

	fmt.Println(stepStyle.Render("STEP 1: TARGET ALLOCATIONS"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target Allocations").
				Description("COIN:PERCENT pairs, comma separated (e.g. BTC:50,ETH:30,USDT:20)").
				Value(&targetsStr).
				Validate(validateTargets),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: rebalance triggers
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("REBALANCER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: TRIGGERS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Deviation Threshold %").
				Description("Rebalance when any coin drifts this far from target (e.g. 5)").
				Value(&thresholdStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Minimum Trade (USDT)").
				Description("Differences below this are left alone (e.g. 10)").
				Value(&minTradeStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Check Interval").
				Description("Duration string (e.g. 1m, 5m, 1h)").
				Value(&intervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: network
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("REBALANCER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: NETWORK"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Bybit Network").
				Options(
					huh.NewOption("Mainnet (real funds)", "mainnet"),
					huh.NewOption("Testnet", "testnet"),
				).
				Value(&network),
			huh.NewInput().
				Title("Dashboard Address").
				Description("Listen address for the status dashboard (e.g. :8080)").
				Value(&dashboardAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("REBALANCER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Targets: %s\nThreshold: %s%%\nMin Trade: %s USDT\nInterval: %s\nNetwork: %s\nDashboard: %s\n",
		targetsStr, thresholdStr, minTradeStr, intervalStr, network, dashboardAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	interval, _ := time.ParseDuration(intervalStr)

	cfgTmp := config.ConfigTmp{
		Targets:          parseTargetsToMap(targetsStr),
		ThresholdPercent: thresholdStr,
		MinTradeUSDT:     minTradeStr,
		CheckInterval:    interval,
		Testnet:          network == "testnet",
		DashboardAddr:    dashboardAddr,
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateTargets(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("targets cannot be empty")
	}

	sum := decimal.Zero
	for _, part := range strings.Split(s, ",") {
		kv := strings.Split(strings.TrimSpace(part), ":")
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return fmt.Errorf("invalid entry %q: expected COIN:PERCENT", part)
		}
		pct, err := decimal.NewFromString(kv[1])
		if err != nil {
			return fmt.Errorf("invalid percent for %s", kv[0])
		}
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percent for %s must be between 0 and 100", kv[0])
		}
		sum = sum.Add(pct)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		return fmt.Errorf("allocations sum to %s, must be exactly 100", sum.String())
	}
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func parseTargetsToMap(s string) map[string]string {
	targets := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		kv := strings.Split(strings.TrimSpace(part), ":")
		if len(kv) != 2 {
			continue
		}
		targets[strings.ToUpper(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
	}
	return targets
}
