package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// trendingCandles builds n closed candles moving step per candle from base.
// A negative step produces a downtrend.
func trendingCandles(n int, base, step float64, tf time.Duration) []domain.MarketCandle {
	candles := make([]domain.MarketCandle, n)
	start := testCaptureTime.Add(-time.Duration(n) * tf)
	for i := range candles {
		open := base + float64(i)*step
		close := open + step
		high := open
		low := close
		if step > 0 {
			high, low = close, open
		}
		candles[i] = domain.MarketCandle{
			OpenTime:  start.Add(time.Duration(i) * tf),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high + 0.3),
			Low:       decimal.NewFromFloat(low - 0.3),
			Close:     decimal.NewFromFloat(close),
			Volume:    decimal.NewFromInt(1000),
			CloseTime: start.Add(time.Duration(i+1) * tf),
		}
	}
	return candles
}

func trendingInput(step float64) RegimeInput {
	return RegimeInput{
		M15: trendingCandles(60, 100, step, 15*time.Minute),
		H1:  trendingCandles(60, 100, step, time.Hour),
		H4:  trendingCandles(60, 100, step, 4*time.Hour),
	}
}

func TestGatekeeperClassifiesTrends(t *testing.T) {
	gate := NewGatekeeper()

	verdict, err := gate.Classify(trendingInput(1))
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeBullish, verdict.Class)
	assert.GreaterOrEqual(t, verdict.Confidence, 45)
	assert.Greater(t, verdict.Score, 0.0)

	down := NewGatekeeper()
	verdict, err = down.Classify(trendingInput(-1))
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeBearish, verdict.Class)
	assert.Less(t, verdict.Score, 0.0)
}

func TestGatekeeperReportsRegimeChange(t *testing.T) {
	gate := NewGatekeeper()

	first, err := gate.Classify(trendingInput(1))
	require.NoError(t, err)
	require.Equal(t, domain.RegimeBullish, first.Class)

	// The reference flips: the transition cycle must read CHANGING.
	second, err := gate.Classify(trendingInput(-1))
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeChanging, second.Class)
	assert.Equal(t, string(domain.RegimeBullish), second.Details["previous"])

	// Once the new trend repeats, the class settles.
	third, err := gate.Classify(trendingInput(-1))
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeBearish, third.Class)
}

func TestGatekeeperInsufficientHistory(t *testing.T) {
	gate := NewGatekeeper()

	input := trendingInput(1)
	input.H4 = input.H4[:20]

	_, err := gate.Classify(input)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}
