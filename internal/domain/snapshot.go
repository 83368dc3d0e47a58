package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInsufficientData marks a candidate that cannot be evaluated this cycle.
// It is a discard reason, never a process failure.
var ErrInsufficientData = errors.New("insufficient data")

// MinCandleHistory is the minimum primary-timeframe history a snapshot
// must carry before any stage may evaluate it.
const MinCandleHistory = 30

// IndicatorSnapshot market data for one instrument in one evaluation cycle.
// Immutable once captured: stages read it, none of them write it.
type IndicatorSnapshot struct {
	Pair       Pair
	CapturedAt time.Time
	// Timeframe primary trading timeframe, e.g. "15m".
	Timeframe string
	Price     decimal.Decimal
	RSI       decimal.Decimal
	EMA9      decimal.Decimal
	EMA21     decimal.Decimal
	ATR       decimal.Decimal
	// VolumeRatio last candle volume relative to the rolling average.
	VolumeRatio decimal.Decimal
	SwingHigh   decimal.Decimal
	SwingLow    decimal.Decimal
	FundingRate  decimal.Decimal
	OpenInterest decimal.Decimal
	// Candles primary timeframe history, oldest first.
	Candles []MarketCandle
	// HigherCandles higher timeframe history for context confirmation.
	HigherCandles []MarketCandle
}

// Validate reports ErrInsufficientData when the snapshot cannot support a
// full pipeline pass.
func (s *IndicatorSnapshot) Validate() error {
	if s == nil {
		return errors.Wrap(ErrInsufficientData, "nil snapshot")
	}
	if len(s.Candles) < MinCandleHistory {
		return errors.Wrapf(ErrInsufficientData, "%s: %d candles, need %d", s.Pair.String(), len(s.Candles), MinCandleHistory)
	}
	if s.Price.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInsufficientData, "%s: non-positive price", s.Pair.String())
	}
	if s.ATR.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInsufficientData, "%s: non-positive ATR", s.Pair.String())
	}
	return nil
}

// ATRPercent returns ATR as a percentage of the current price.
func (s *IndicatorSnapshot) ATRPercent() decimal.Decimal {
	if s.Price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return s.ATR.Div(s.Price).Mul(decimal.NewFromInt(100))
}

// LatestClosedCandle returns the most recent candle that closed at or
// before the capture time.
func (s *IndicatorSnapshot) LatestClosedCandle() (MarketCandle, bool) {
	for i := len(s.Candles) - 1; i >= 0; i-- {
		if s.Candles[i].ClosedBy(s.CapturedAt) {
			return s.Candles[i], true
		}
	}
	return MarketCandle{}, false
}
