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

	"github.com/signalpipe/signalpipe/config"
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

// RunTUI launches the terminal configuration wizard and writes the
// generated config to config.gen.yaml.
func RunTUI() error {
	var (
		platform        string
		pairsStr        string
		referencePair   string
		timeframe       string
		scanIntervalStr string
		accountSizeStr  string
		riskMinStr      string
		riskMaxStr      string
		maxSignalsStr   string
		telegramToken   string
		telegramChatID  string
		webAddr         string
		confirm         bool
	)

	// defaults
	referencePair = "BTC_USDT"
	timeframe = "15m"
	scanIntervalStr = "5m"
	accountSizeStr = "10000"
	riskMinStr = "1"
	riskMaxStr = "2"
	maxSignalsStr = "3"
	webAddr = ":8080"

	// step 1: welcome + platform
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("SIGNALPIPE CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's wire up your signal pipeline.\n"))

	fmt.Println(stepStyle.Render("STEP 1: PLATFORM"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select market data platform").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: instruments
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNALPIPE CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: INSTRUMENTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Scanned Pairs").
				Description("Comma-separated, scan order matters (e.g. ETH_USDT,SOL_USDT)").
				Value(&pairsStr).
				Validate(validatePairs),
			huh.NewInput().
				Title("Regime Reference Pair").
				Description("Market regime is read off this asset (e.g. BTC_USDT)").
				Value(&referencePair).
				Validate(validatePair),
			huh.NewInput().
				Title("Signal Timeframe").
				Description("Primary candle timeframe (e.g. 15m)").
				Value(&timeframe),
			huh.NewInput().
				Title("Scan Interval").
				Description("Duration string (e.g. 1m, 5m)").
				Value(&scanIntervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: risk budget
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNALPIPE CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: RISK BUDGET"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account Size").
				Description("Equity in quote currency").
				Value(&accountSizeStr).
				Validate(validatePositiveNumber),
			huh.NewInput().
				Title("Min Risk % per signal").
				Description("Used in high volatility (e.g. 1)").
				Value(&riskMinStr).
				Validate(validatePositiveNumber),
			huh.NewInput().
				Title("Max Risk % per signal").
				Description("Used in calm conditions (e.g. 2)").
				Value(&riskMaxStr).
				Validate(validatePositiveNumber),
			huh.NewInput().
				Title("Max Signals per Day").
				Value(&maxSignalsStr),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: delivery
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNALPIPE CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: DELIVERY"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram Bot Token").
				Description("Leave empty to log signals instead").
				Value(&telegramToken).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("Telegram Chat ID").
				Value(&telegramChatID),
			huh.NewInput().
				Title("Status Server Address").
				Description("Leave empty to disable the web server").
				Value(&webAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNALPIPE CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Platform: %s\nPairs: %s\nReference: %s\nTimeframe: %s\nScan: %s\nAccount: %s\nRisk: %s%%-%s%%\n",
		platform, pairsStr, referencePair, timeframe, scanIntervalStr, accountSizeStr, riskMinStr, riskMaxStr,
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

	scanInterval, _ := time.ParseDuration(scanIntervalStr)
	accountSize, _ := decimal.NewFromString(accountSizeStr)
	riskMin, _ := decimal.NewFromString(riskMinStr)
	riskMax, _ := decimal.NewFromString(riskMaxStr)

	fc := config.FileConfig{
		Platform:       platform,
		Pairs:          splitPairs(pairsStr),
		ReferencePair:  referencePair,
		Timeframe:      timeframe,
		ScanInterval:   scanInterval,
		AccountSize:    accountSize.InexactFloat64(),
		RiskPercentMin: riskMin.InexactFloat64(),
		RiskPercentMax: riskMax.InexactFloat64(),
		WebAddr:        webAddr,
		TelegramToken:  telegramToken,
		TelegramChatID: telegramChatID,
	}
	if n, err := decimal.NewFromString(maxSignalsStr); err == nil {
		fc.MaxSignalsPerDay = int(n.IntPart())
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\nConfiguration saved to %s\nStarting service...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func splitPairs(s string) []string {
	parts := strings.Split(s, ",")
	pairs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

func validatePairs(s string) error {
	pairs := splitPairs(s)
	if len(pairs) == 0 {
		return fmt.Errorf("at least one pair is required")
	}
	for _, p := range pairs {
		if err := validatePair(p); err != nil {
			return err
		}
	}
	return nil
}

func validatePair(s string) error {
	if s == "" {
		return fmt.Errorf("pair cannot be empty")
	}
	if !strings.Contains(s, "_") {
		return fmt.Errorf("invalid format: must be BASE_QUOTE (e.g. BTC_USDT)")
	}
	return nil
}

func validatePositiveNumber(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}
