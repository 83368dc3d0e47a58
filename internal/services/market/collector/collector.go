// Package collector fetches market data from exchanges and assembles the
// per-instrument indicator snapshots consumed by the decision pipeline.
package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/internal/services/market/analysis"
	"github.com/signalpipe/signalpipe/pkg/indicators"
)

const (
	// candleLookback candles fetched per timeframe, enough for EMA50.
	candleLookback = 120

	fetchTimeout = 30 * time.Second
)

// KlineProvider fetches historical kline (candlestick) data.
type KlineProvider interface {
	// GetKlines returns up to limit candles for the pair and interval
	// (e.g. "15m", "1h", "4h"), oldest first.
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

// FundingProvider optionally exposes the current funding rate for a pair.
// Providers without funding data simply do not implement it.
type FundingProvider interface {
	GetFundingRate(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// OpenInterestProvider optionally exposes current perpetual open interest.
type OpenInterestProvider interface {
	GetOpenInterest(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// SnapshotBuilder assembles an IndicatorSnapshot per instrument per cycle.
type SnapshotBuilder struct {
	provider        KlineProvider
	timeframe       string
	higherTimeframe string
}

// NewSnapshotBuilder creates a builder over the given provider.
func NewSnapshotBuilder(provider KlineProvider, timeframe, higherTimeframe string) *SnapshotBuilder {
	return &SnapshotBuilder{
		provider:        provider,
		timeframe:       timeframe,
		higherTimeframe: higherTimeframe,
	}
}

// Candles fetches raw history for the pair at an arbitrary interval.
func (b *SnapshotBuilder) Candles(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	candles, err := b.provider.GetKlines(ctx, pair, interval, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s klines for %s", interval, pair.String())
	}
	return candles, nil
}

// Snapshot fetches both timeframes and derives the indicator values for the
// most recent candle. The snapshot is immutable once returned.
func (b *SnapshotBuilder) Snapshot(ctx context.Context, pair domain.Pair) (*domain.IndicatorSnapshot, error) {
	candles, err := b.Candles(ctx, pair, b.timeframe, candleLookback)
	if err != nil {
		return nil, err
	}
	if len(candles) < domain.MinCandleHistory {
		return nil, errors.Wrapf(domain.ErrInsufficientData,
			"%s: %d candles on %s", pair.String(), len(candles), b.timeframe)
	}

	higher, err := b.Candles(ctx, pair, b.higherTimeframe, candleLookback)
	if err != nil {
		return nil, err
	}

	set, err := indicators.Latest(candles)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInsufficientData, "%s: %v", pair.String(), err)
	}

	snap := &domain.IndicatorSnapshot{
		Pair:          pair,
		CapturedAt:    time.Now().UTC(),
		Timeframe:     b.timeframe,
		Price:         candles[len(candles)-1].Close,
		RSI:           set.RSI14,
		EMA9:          set.EMA9,
		EMA21:         set.EMA21,
		ATR:           set.ATR14,
		VolumeRatio:   analysis.VolumeRatio(candles),
		Candles:       candles,
		HigherCandles: higher,
	}

	if highs := analysis.SwingHighs(candles); len(highs) > 0 {
		snap.SwingHigh = highs[len(highs)-1].Level
	}
	if lows := analysis.SwingLows(candles); len(lows) > 0 {
		snap.SwingLow = lows[len(lows)-1].Level
	}

	if funding, ok := b.provider.(FundingProvider); ok {
		rate, err := funding.GetFundingRate(ctx, pair)
		if err == nil {
			snap.FundingRate = rate
		}
	}
	if oi, ok := b.provider.(OpenInterestProvider); ok {
		value, err := oi.GetOpenInterest(ctx, pair)
		if err == nil {
			snap.OpenInterest = value
		}
	}

	return snap, nil
}
