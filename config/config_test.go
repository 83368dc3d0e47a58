package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
pairs:
  - ETH_USDT
  - SOL_USDT
account_size: 10000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "binance", cfg.Platform)
	assert.Equal(t, "BTC_USDT", cfg.ReferencePair.String())
	assert.Equal(t, "15m", cfg.Timeframe)
	assert.Equal(t, "1h", cfg.HigherTimeframe)
	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
	assert.True(t, cfg.RSIOversold.Equal(decimal.NewFromInt(38)))
	assert.True(t, cfg.MinRiskReward.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 4, cfg.MinFiltersPass)
	assert.Equal(t, 3, cfg.MaxSignalsPerDay)
	assert.Equal(t, 1, cfg.MaxOpenPositions)
	assert.Equal(t, 15, cfg.Leverage)
	assert.Equal(t, 45, cfg.RegimeMinConfidence)
	assert.Equal(t, "./wal", cfg.WALDir)

	require.Len(t, cfg.Pairs, 2)
	assert.Equal(t, "ETH", cfg.Pairs[0].From)
	assert.Equal(t, "USDT", cfg.Pairs[0].To)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
platform: bybit
pairs:
  - ETH_USDT
reference_pair: ETH_USDT
timeframe: 5m
scan_interval: 1m
account_size: 2500
max_signals_per_day: 5
risk_percent_min: 0.5
risk_percent_max: 1.5
telegram_token: tok
telegram_chat_id: "42"
web_addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bybit", cfg.Platform)
	assert.Equal(t, "ETH_USDT", cfg.ReferencePair.String())
	assert.Equal(t, "5m", cfg.Timeframe)
	assert.Equal(t, time.Minute, cfg.ScanInterval)
	assert.True(t, cfg.AccountSize.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, 5, cfg.MaxSignalsPerDay)
	assert.True(t, cfg.RiskPercentMin.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, "tok", cfg.TelegramToken)
	assert.Equal(t, ":9090", cfg.WebAddr)
}

func TestLoadRejectsBadPair(t *testing.T) {
	path := writeConfig(t, `
pairs:
  - ETHUSDT
account_size: 10000
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsUnsafeValues(t *testing.T) {
	base := func() string {
		return `
pairs:
  - ETH_USDT
account_size: 10000
`
	}

	tests := []struct {
		name  string
		extra string
	}{
		{"unknown platform", "platform: kraken"},
		{"no account size", "account_size: 0\n"},
		{"inverted rsi band", "rsi_oversold: 70\nrsi_overbought: 60"},
		{"zero risk reward", "min_risk_reward: -1"},
		{"filters out of range", "min_filters_pass: 7"},
		{"inverted risk band", "risk_percent_min: 3\nrisk_percent_max: 1"},
		{"block below reduce", "volatility_reduce_atr_pct: 3\nvolatility_block_atr_pct: 2"},
		{"choppy floor below normal", "structure_min_score: 6\nstructure_min_score_choppy: 4"},
		{"confidence out of range", "regime_min_confidence: 150"},
		{"scan interval too small", "scan_interval: 100ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, base()+tt.extra+"\n")
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	path := writeConfig(t, `
pairs:
  - ETH_USDT
account_size: 10000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}
