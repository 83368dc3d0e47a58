package collector

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// BinanceKlineProvider implements KlineProvider for Binance exchange.
// When a futures client is supplied it also serves perpetual funding rates.
type BinanceKlineProvider struct {
	client  *binance.Client
	futures *futures.Client
}

// NewBinanceKlineProvider creates a new Binance kline provider. The futures
// client may be nil; funding rates are then unavailable.
func NewBinanceKlineProvider(client *binance.Client, futuresClient *futures.Client) *BinanceKlineProvider {
	return &BinanceKlineProvider{client: client, futures: futuresClient}
}

// GetKlines fetches kline data from Binance.
func (p *BinanceKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	symbol := pair.Symbol()

	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
	}

	result := make([]domain.MarketCandle, len(klines))
	for i, k := range klines {
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse open price at index %d", i)
		}
		high, err := decimal.NewFromString(k.High)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse high price at index %d", i)
		}
		low, err := decimal.NewFromString(k.Low)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse low price at index %d", i)
		}
		close, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		volume, err := decimal.NewFromString(k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse volume at index %d", i)
		}

		result[i] = domain.MarketCandle{
			OpenTime:  time.Unix(0, k.OpenTime*int64(time.Millisecond)),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: time.Unix(0, k.CloseTime*int64(time.Millisecond)),
		}
	}

	return result, nil
}

// GetFundingRate fetches the current perpetual funding rate from Binance
// futures.
func (p *BinanceKlineProvider) GetFundingRate(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if p.futures == nil {
		return decimal.Zero, errors.New("binance futures client is not configured")
	}

	premiums, err := p.futures.NewPremiumIndexService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch funding rate for %s", pair.String())
	}
	if len(premiums) == 0 {
		return decimal.Zero, errors.Errorf("no premium index data for %s", pair.String())
	}

	rate, err := decimal.NewFromString(premiums[0].LastFundingRate)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to parse funding rate")
	}
	return rate, nil
}

// GetOpenInterest fetches current perpetual open interest from Binance
// futures.
func (p *BinanceKlineProvider) GetOpenInterest(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if p.futures == nil {
		return decimal.Zero, errors.New("binance futures client is not configured")
	}

	oi, err := p.futures.NewGetOpenInterestService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch open interest for %s", pair.String())
	}

	value, err := decimal.NewFromString(oi.OpenInterest)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to parse open interest")
	}
	return value, nil
}
