// Package analysis provides market analysis utilities such as volume and
// swing-point studies.
package analysis

import (
	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
)

const (
	// volumeLookback rolling window for the average-volume baseline.
	volumeLookback = 20
	// SwingWindow candles on each side required to confirm a swing point.
	SwingWindow = 2
)

// SwingPoint a confirmed local extreme.
type SwingPoint struct {
	// Index position of the swing candle within the analyzed series.
	Index int
	Level decimal.Decimal
}

// VolumeRatio returns the last candle's volume relative to the rolling
// average of the preceding candles. Zero when there is no baseline.
func VolumeRatio(candles []domain.MarketCandle) decimal.Decimal {
	if len(candles) < 2 {
		return decimal.Zero
	}

	period := volumeLookback
	if len(candles)-1 < period {
		period = len(candles) - 1
	}

	sum := decimal.Zero
	for i := len(candles) - 1 - period; i < len(candles)-1; i++ {
		sum = sum.Add(candles[i].Volume)
	}
	avg := sum.Div(decimal.NewFromInt(int64(period)))
	if avg.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	return candles[len(candles)-1].Volume.Div(avg)
}

// SwingHighs returns confirmed local maxima: a candle whose high exceeds
// the highs of SwingWindow candles on both sides.
func SwingHighs(candles []domain.MarketCandle) []SwingPoint {
	var out []SwingPoint
	for i := SwingWindow; i < len(candles)-SwingWindow; i++ {
		isSwing := true
		for j := i - SwingWindow; j <= i+SwingWindow; j++ {
			if j == i {
				continue
			}
			if !candles[i].High.GreaterThan(candles[j].High) {
				isSwing = false
				break
			}
		}
		if isSwing {
			out = append(out, SwingPoint{Index: i, Level: candles[i].High})
		}
	}
	return out
}

// SwingLows returns confirmed local minima, mirror of SwingHighs.
func SwingLows(candles []domain.MarketCandle) []SwingPoint {
	var out []SwingPoint
	for i := SwingWindow; i < len(candles)-SwingWindow; i++ {
		isSwing := true
		for j := i - SwingWindow; j <= i+SwingWindow; j++ {
			if j == i {
				continue
			}
			if !candles[i].Low.LessThan(candles[j].Low) {
				isSwing = false
				break
			}
		}
		if isSwing {
			out = append(out, SwingPoint{Index: i, Level: candles[i].Low})
		}
	}
	return out
}

// RecentRange returns the highest high and lowest low of the last n candles.
func RecentRange(candles []domain.MarketCandle, n int) (high, low decimal.Decimal) {
	if len(candles) == 0 {
		return decimal.Zero, decimal.Zero
	}
	start := len(candles) - n
	if start < 0 {
		start = 0
	}
	high = candles[start].High
	low = candles[start].Low
	for _, c := range candles[start+1:] {
		if c.High.GreaterThan(high) {
			high = c.High
		}
		if c.Low.LessThan(low) {
			low = c.Low
		}
	}
	return high, low
}
