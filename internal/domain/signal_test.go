package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecomputeRR(t *testing.T) {
	sig := TradeSignal{
		Entry:      decimal.NewFromInt(100),
		StopLoss:   decimal.NewFromFloat(98.5),
		TakeProfit: decimal.NewFromInt(103),
	}
	assert.True(t, sig.RecomputeRR().Equal(decimal.NewFromInt(2)))

	short := TradeSignal{
		Entry:      decimal.NewFromInt(100),
		StopLoss:   decimal.NewFromFloat(101.5),
		TakeProfit: decimal.NewFromInt(97),
	}
	assert.True(t, short.RecomputeRR().Equal(decimal.NewFromInt(2)))
}

func TestRecomputeRRZeroStopDistance(t *testing.T) {
	sig := TradeSignal{
		Entry:      decimal.NewFromInt(100),
		StopLoss:   decimal.NewFromInt(100),
		TakeProfit: decimal.NewFromInt(103),
	}
	assert.True(t, sig.RecomputeRR().IsZero())
}

func TestPairFromString(t *testing.T) {
	pair, err := PairFromString("BTC_USDT")
	assert.NoError(t, err)
	assert.Equal(t, "BTC", pair.From)
	assert.Equal(t, "USDT", pair.To)
	assert.Equal(t, "BTCUSDT", pair.Symbol())

	for _, bad := range []string{"", "BTCUSDT", "BTC_", "_USDT", "A_B_C"} {
		_, err := PairFromString(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
