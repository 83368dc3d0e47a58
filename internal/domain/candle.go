package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction proposed trade direction.
type Direction int

const (
	// DirectionNone no directional bias.
	DirectionNone Direction = iota
	// DirectionLong long bias.
	DirectionLong
	// DirectionShort short bias.
	DirectionShort
)

// String returns a human-readable representation.
func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// MarketCandle single OHLCV candlestick.
type MarketCandle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// ClosedBy reports whether the candle is fully closed at the given time.
// Structure breaks are only valid on closed candles.
func (c MarketCandle) ClosedBy(t time.Time) bool {
	return !c.CloseTime.After(t)
}

// Range returns the high-low span.
func (c MarketCandle) Range() decimal.Decimal {
	return c.High.Sub(c.Low)
}

// Body returns the absolute open-close span.
func (c MarketCandle) Body() decimal.Decimal {
	return c.Close.Sub(c.Open).Abs()
}

// Bullish reports whether the candle closed above its open.
func (c MarketCandle) Bullish() bool {
	return c.Close.GreaterThan(c.Open)
}
