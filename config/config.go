// Package config loads and validates the signal service configuration.
// Configuration is read once at startup and is immutable for the process
// lifetime; any value outside sane bounds is a fatal startup error so that
// a safety gate can never be silently disabled.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// Config fully validated runtime configuration.
type Config struct {
	// Platform market data source: binance, bybit or hyperliquid.
	Platform string
	// Pairs instruments scanned each cycle, in configured scan order.
	Pairs []domain.Pair
	// ReferencePair regime reference asset, normally BTC_USDT.
	ReferencePair domain.Pair
	// Timeframe primary signal timeframe.
	Timeframe string
	// HigherTimeframe context confirmation timeframe.
	HigherTimeframe string
	// ScanInterval wall-clock cadence of evaluation cycles.
	ScanInterval time.Duration

	// AccountSize account equity in quote currency.
	AccountSize decimal.Decimal

	RSIOversold      decimal.Decimal
	RSIOverbought    decimal.Decimal
	VolumeMultiplier decimal.Decimal

	ATRStopMult   decimal.Decimal
	ATRTargetMult decimal.Decimal
	MinRiskReward decimal.Decimal

	MinFiltersPass   int
	MaxSignalsPerDay int
	MaxOpenPositions int

	RiskPercentMin      decimal.Decimal
	RiskPercentMax      decimal.Decimal
	Leverage            int
	MaxDrawdownPercent  decimal.Decimal
	MaxConsecutiveStops int

	RegimeMinConfidence int
	// VolatilityReduceATRPct ATR% above which size is halved.
	VolatilityReduceATRPct decimal.Decimal
	// VolatilityBlockATRPct ATR% above which the candidate is blocked.
	VolatilityBlockATRPct decimal.Decimal

	StructureMinScore       int
	StructureMinScoreChoppy int

	// WALDir root directory for write-ahead logs.
	WALDir string
	// WebAddr status server listen address, empty disables the server.
	WebAddr string
	// WebDomain enables autocert TLS for the status server when set.
	WebDomain string

	// TelegramToken bot token, empty disables Telegram delivery.
	TelegramToken  string
	TelegramChatID string
}

// FileConfig is the on-disk YAML schema. The setup wizard generates it,
// Load consumes it.
type FileConfig struct {
	Platform        string        `yaml:"platform"`
	Pairs           []string      `yaml:"pairs"`
	ReferencePair   string        `yaml:"reference_pair"`
	Timeframe       string        `yaml:"timeframe"`
	HigherTimeframe string        `yaml:"higher_timeframe"`
	ScanInterval    time.Duration `yaml:"scan_interval"`

	AccountSize float64 `yaml:"account_size"`

	RSIOversold      float64 `yaml:"rsi_oversold"`
	RSIOverbought    float64 `yaml:"rsi_overbought"`
	VolumeMultiplier float64 `yaml:"volume_multiplier"`

	ATRStopMult   float64 `yaml:"atr_stop_mult"`
	ATRTargetMult float64 `yaml:"atr_target_mult"`
	MinRiskReward float64 `yaml:"min_risk_reward"`

	MinFiltersPass   int `yaml:"min_filters_pass"`
	MaxSignalsPerDay int `yaml:"max_signals_per_day"`
	MaxOpenPositions int `yaml:"max_open_positions"`

	RiskPercentMin      float64 `yaml:"risk_percent_min"`
	RiskPercentMax      float64 `yaml:"risk_percent_max"`
	Leverage            int     `yaml:"leverage"`
	MaxDrawdownPercent  float64 `yaml:"max_drawdown_percent"`
	MaxConsecutiveStops int     `yaml:"max_consecutive_stops"`

	RegimeMinConfidence    int     `yaml:"regime_min_confidence"`
	VolatilityReduceATRPct float64 `yaml:"volatility_reduce_atr_pct"`
	VolatilityBlockATRPct  float64 `yaml:"volatility_block_atr_pct"`

	StructureMinScore       int `yaml:"structure_min_score"`
	StructureMinScoreChoppy int `yaml:"structure_min_score_choppy"`

	WALDir    string `yaml:"wal_dir"`
	WebAddr   string `yaml:"web_addr"`
	WebDomain string `yaml:"web_domain"`

	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// Get parses the --config flag and loads the configuration.
func Get() (*Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()
	return Load(*path)
}

// Load reads, defaults, and validates a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var yc FileConfig
	if err := yaml.Unmarshal(raw, &yc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg, err := fromYAML(yc)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromYAML(yc FileConfig) (*Config, error) {
	applyDefaults(&yc)

	pairs := make([]domain.Pair, 0, len(yc.Pairs))
	for _, p := range yc.Pairs {
		pair, err := domain.PairFromString(p)
		if err != nil {
			return nil, fmt.Errorf("incorrect 'pairs' entry: %w", err)
		}
		pairs = append(pairs, pair)
	}

	refPair, err := domain.PairFromString(yc.ReferencePair)
	if err != nil {
		return nil, fmt.Errorf("incorrect 'reference_pair': %w", err)
	}

	return &Config{
		Platform:        yc.Platform,
		Pairs:           pairs,
		ReferencePair:   refPair,
		Timeframe:       yc.Timeframe,
		HigherTimeframe: yc.HigherTimeframe,
		ScanInterval:    yc.ScanInterval,

		AccountSize: decimal.NewFromFloat(yc.AccountSize),

		RSIOversold:      decimal.NewFromFloat(yc.RSIOversold),
		RSIOverbought:    decimal.NewFromFloat(yc.RSIOverbought),
		VolumeMultiplier: decimal.NewFromFloat(yc.VolumeMultiplier),

		ATRStopMult:   decimal.NewFromFloat(yc.ATRStopMult),
		ATRTargetMult: decimal.NewFromFloat(yc.ATRTargetMult),
		MinRiskReward: decimal.NewFromFloat(yc.MinRiskReward),

		MinFiltersPass:   yc.MinFiltersPass,
		MaxSignalsPerDay: yc.MaxSignalsPerDay,
		MaxOpenPositions: yc.MaxOpenPositions,

		RiskPercentMin:      decimal.NewFromFloat(yc.RiskPercentMin),
		RiskPercentMax:      decimal.NewFromFloat(yc.RiskPercentMax),
		Leverage:            yc.Leverage,
		MaxDrawdownPercent:  decimal.NewFromFloat(yc.MaxDrawdownPercent),
		MaxConsecutiveStops: yc.MaxConsecutiveStops,

		RegimeMinConfidence:    yc.RegimeMinConfidence,
		VolatilityReduceATRPct: decimal.NewFromFloat(yc.VolatilityReduceATRPct),
		VolatilityBlockATRPct:  decimal.NewFromFloat(yc.VolatilityBlockATRPct),

		StructureMinScore:       yc.StructureMinScore,
		StructureMinScoreChoppy: yc.StructureMinScoreChoppy,

		WALDir:    yc.WALDir,
		WebAddr:   yc.WebAddr,
		WebDomain: yc.WebDomain,

		TelegramToken:  yc.TelegramToken,
		TelegramChatID: yc.TelegramChatID,
	}, nil
}

func applyDefaults(yc *FileConfig) {
	if yc.Platform == "" {
		yc.Platform = "binance"
	}
	if yc.ReferencePair == "" {
		yc.ReferencePair = "BTC_USDT"
	}
	if yc.Timeframe == "" {
		yc.Timeframe = "15m"
	}
	if yc.HigherTimeframe == "" {
		yc.HigherTimeframe = "1h"
	}
	if yc.ScanInterval == 0 {
		yc.ScanInterval = 5 * time.Minute
	}
	if yc.RSIOversold == 0 {
		yc.RSIOversold = 38
	}
	if yc.RSIOverbought == 0 {
		yc.RSIOverbought = 62
	}
	if yc.VolumeMultiplier == 0 {
		yc.VolumeMultiplier = 1.0
	}
	if yc.ATRStopMult == 0 {
		yc.ATRStopMult = 1.5
	}
	if yc.ATRTargetMult == 0 {
		yc.ATRTargetMult = 3.0
	}
	if yc.MinRiskReward == 0 {
		yc.MinRiskReward = 2.0
	}
	if yc.MinFiltersPass == 0 {
		yc.MinFiltersPass = 4
	}
	if yc.MaxSignalsPerDay == 0 {
		yc.MaxSignalsPerDay = 3
	}
	if yc.MaxOpenPositions == 0 {
		yc.MaxOpenPositions = 1
	}
	if yc.RiskPercentMin == 0 {
		yc.RiskPercentMin = 1.0
	}
	if yc.RiskPercentMax == 0 {
		yc.RiskPercentMax = 2.0
	}
	if yc.Leverage == 0 {
		yc.Leverage = 15
	}
	if yc.MaxDrawdownPercent == 0 {
		yc.MaxDrawdownPercent = 2.0
	}
	if yc.MaxConsecutiveStops == 0 {
		yc.MaxConsecutiveStops = 2
	}
	if yc.RegimeMinConfidence == 0 {
		yc.RegimeMinConfidence = 45
	}
	if yc.VolatilityReduceATRPct == 0 {
		yc.VolatilityReduceATRPct = 2.0
	}
	if yc.VolatilityBlockATRPct == 0 {
		yc.VolatilityBlockATRPct = 3.0
	}
	if yc.StructureMinScore == 0 {
		yc.StructureMinScore = 4
	}
	if yc.StructureMinScoreChoppy == 0 {
		yc.StructureMinScoreChoppy = 6
	}
	if yc.WALDir == "" {
		yc.WALDir = "./wal"
	}
}

// Validate rejects any configuration that would disable a safety gate.
func (c *Config) Validate() error {
	switch c.Platform {
	case "binance", "bybit", "hyperliquid":
	default:
		return fmt.Errorf("unsupported platform %q", c.Platform)
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("at least one pair is required")
	}
	if c.ScanInterval < time.Second {
		return fmt.Errorf("scan_interval %s is too small", c.ScanInterval)
	}
	if c.AccountSize.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("account_size must be positive, got %s", c.AccountSize)
	}
	if c.RSIOversold.LessThanOrEqual(decimal.Zero) || c.RSIOverbought.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("RSI thresholds must stay inside (0, 100)")
	}
	if c.RSIOversold.GreaterThanOrEqual(c.RSIOverbought) {
		return fmt.Errorf("rsi_oversold %s must be below rsi_overbought %s", c.RSIOversold, c.RSIOverbought)
	}
	if c.ATRStopMult.LessThanOrEqual(decimal.Zero) || c.ATRTargetMult.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("ATR multipliers must be positive")
	}
	if c.MinRiskReward.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("min_risk_reward must be positive, got %s", c.MinRiskReward)
	}
	if c.MinFiltersPass < 1 || c.MinFiltersPass > 6 {
		return fmt.Errorf("min_filters_pass must be in [1, 6], got %d", c.MinFiltersPass)
	}
	if c.MaxSignalsPerDay < 1 {
		return fmt.Errorf("max_signals_per_day must be at least 1, got %d", c.MaxSignalsPerDay)
	}
	if c.MaxOpenPositions < 1 {
		return fmt.Errorf("max_open_positions must be at least 1, got %d", c.MaxOpenPositions)
	}
	if c.RiskPercentMin.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("risk_percent_min must be positive, got %s", c.RiskPercentMin)
	}
	if c.RiskPercentMin.GreaterThan(c.RiskPercentMax) {
		return fmt.Errorf("risk percent band inverted: min %s > max %s", c.RiskPercentMin, c.RiskPercentMax)
	}
	if c.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %d", c.Leverage)
	}
	if c.MaxDrawdownPercent.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("max_drawdown_percent must be positive, got %s", c.MaxDrawdownPercent)
	}
	if c.MaxConsecutiveStops < 1 {
		return fmt.Errorf("max_consecutive_stops must be at least 1, got %d", c.MaxConsecutiveStops)
	}
	if c.RegimeMinConfidence < 0 || c.RegimeMinConfidence > 100 {
		return fmt.Errorf("regime_min_confidence must be in [0, 100], got %d", c.RegimeMinConfidence)
	}
	if c.VolatilityReduceATRPct.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("volatility_reduce_atr_pct must be positive")
	}
	if c.VolatilityBlockATRPct.LessThanOrEqual(c.VolatilityReduceATRPct) {
		return fmt.Errorf("volatility_block_atr_pct %s must exceed volatility_reduce_atr_pct %s",
			c.VolatilityBlockATRPct, c.VolatilityReduceATRPct)
	}
	if c.StructureMinScore < 1 || c.StructureMinScore > domain.StructureScoreMax {
		return fmt.Errorf("structure_min_score must be in [1, %d], got %d", domain.StructureScoreMax, c.StructureMinScore)
	}
	if c.StructureMinScoreChoppy < c.StructureMinScore || c.StructureMinScoreChoppy > domain.StructureScoreMax {
		return fmt.Errorf("structure_min_score_choppy %d must be in [%d, %d]",
			c.StructureMinScoreChoppy, c.StructureMinScore, domain.StructureScoreMax)
	}
	return nil
}
