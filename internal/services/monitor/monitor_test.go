package monitor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalpipe/signalpipe/internal/domain"
)

func longPosition(t *testing.T) *domain.Position {
	t.Helper()
	pos, err := domain.NewPosition(
		domain.Pair{From: "ETH", To: "USDT"},
		domain.DirectionLong,
		decimal.NewFromInt(100),
		decimal.NewFromFloat(98.5),
		decimal.NewFromInt(103),
		decimal.NewFromInt(1000),
		decimal.NewFromInt(10),
		decimal.NewFromInt(15),
		time.Now().UTC(),
	)
	require.NoError(t, err)
	return pos
}

func candle(high, low float64) domain.MarketCandle {
	return domain.MarketCandle{
		Open:      decimal.NewFromInt(100),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromInt(100),
		CloseTime: time.Now().UTC(),
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		high float64
		low  float64
		hit  bool
		kind domain.OutcomeKind
	}{
		{
			name: "price inside the levels",
			high: 101, low: 99,
			hit: false,
		},
		{
			name: "stop loss touched",
			high: 100, low: 98,
			hit: true, kind: domain.OutcomeStopLoss,
		},
		{
			name: "take profit touched",
			high: 103.5, low: 100,
			hit: true, kind: domain.OutcomeTakeProfit,
		},
		{
			name: "both touched resolves to the stop",
			high: 104, low: 98,
			hit: true, kind: domain.OutcomeStopLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := longPosition(t)
			outcome, hit := Detect(pos, candle(tt.high, tt.low))

			assert.Equal(t, tt.hit, hit)
			if tt.hit {
				assert.Equal(t, tt.kind, outcome.Kind)
				assert.Equal(t, pos.Pair, outcome.Pair)
			}
		})
	}
}

func TestDetectShortPosition(t *testing.T) {
	pos, err := domain.NewPosition(
		domain.Pair{From: "SOL", To: "USDT"},
		domain.DirectionShort,
		decimal.NewFromInt(100),
		decimal.NewFromFloat(101.5),
		decimal.NewFromInt(97),
		decimal.NewFromInt(1000),
		decimal.NewFromInt(10),
		decimal.NewFromInt(15),
		time.Now().UTC(),
	)
	require.NoError(t, err)

	outcome, hit := Detect(pos, candle(102, 100))
	require.True(t, hit)
	assert.Equal(t, domain.OutcomeStopLoss, outcome.Kind)
	assert.True(t, outcome.PnLPercent.LessThan(decimal.Zero))

	outcome, hit = Detect(pos, candle(100.5, 96.5))
	require.True(t, hit)
	assert.Equal(t, domain.OutcomeTakeProfit, outcome.Kind)
	assert.True(t, outcome.PnLPercent.GreaterThan(decimal.Zero))
}
