// Package indicators provides technical analysis indicators (EMA, RSI, ATR).
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// Set indicator values for the most recent candle of a series.
type Set struct {
	EMA9  decimal.Decimal
	EMA21 decimal.Decimal
	EMA50 decimal.Decimal
	RSI14 decimal.Decimal
	ATR14 decimal.Decimal
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	ema := trend.NewEmaWithPeriod[float64](period)
	inputChan := helper.SliceToChan(closesFloat)
	outputChan := ema.Compute(inputChan)
	emaFloat := helper.ChanToSlice(outputChan)

	return float64ToDecimals(emaFloat), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
func CalculateRSI(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	rsi := momentum.NewRsiWithPeriod[float64](period)
	inputChan := helper.SliceToChan(closesFloat)
	outputChan := rsi.Compute(inputChan)
	rsiFloat := helper.ChanToSlice(outputChan)

	return float64ToDecimals(rsiFloat), nil
}

// CalculateATR calculates the Average True Range for the given period.
func CalculateATR(candles []domain.MarketCandle, period int) ([]decimal.Decimal, error) {
	if len(candles) < period+1 {
		return nil, fmt.Errorf("not enough data points for ATR: need %d, got %d", period+1, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))

	for i, c := range candles {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	highChan := helper.SliceToChan(highs)
	lowChan := helper.SliceToChan(lows)
	closeChan := helper.SliceToChan(closes)
	outputChan := atr.Compute(highChan, lowChan, closeChan)
	atrFloat := helper.ChanToSlice(outputChan)

	return float64ToDecimals(atrFloat), nil
}

// Latest computes the full indicator set for the last candle of the series.
func Latest(candles []domain.MarketCandle) (Set, error) {
	if len(candles) < 51 {
		return Set{}, fmt.Errorf("not enough data points: need at least 51, got %d", len(candles))
	}

	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	ema9, err := CalculateEMA(closes, 9)
	if err != nil {
		return Set{}, fmt.Errorf("failed to calculate EMA9: %w", err)
	}
	ema21, err := CalculateEMA(closes, 21)
	if err != nil {
		return Set{}, fmt.Errorf("failed to calculate EMA21: %w", err)
	}
	ema50, err := CalculateEMA(closes, 50)
	if err != nil {
		return Set{}, fmt.Errorf("failed to calculate EMA50: %w", err)
	}
	rsi14, err := CalculateRSI(closes, 14)
	if err != nil {
		return Set{}, fmt.Errorf("failed to calculate RSI14: %w", err)
	}
	atr14, err := CalculateATR(candles, 14)
	if err != nil {
		return Set{}, fmt.Errorf("failed to calculate ATR14: %w", err)
	}

	return Set{
		EMA9:  last(ema9),
		EMA21: last(ema21),
		EMA50: last(ema50),
		RSI14: last(rsi14),
		ATR14: last(atr14),
	}, nil
}

func last(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return values[len(values)-1]
}

// decimalsToFloat64 converts a slice of decimal.Decimal to []float64.
func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

// float64ToDecimals converts a slice of float64 to []decimal.Decimal.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
