package internal

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/config"
	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/internal/services/market/collector"
	"github.com/signalpipe/signalpipe/internal/services/pipeline"
	"github.com/signalpipe/signalpipe/internal/services/risk"
	"github.com/signalpipe/signalpipe/internal/storage/signals"
)

func botConfig() *config.Config {
	return &config.Config{
		Platform:      "binance",
		Pairs:         []domain.Pair{{From: "ETH", To: "USDT"}, {From: "SOL", To: "USDT"}, {From: "XRP", To: "USDT"}},
		ReferencePair: domain.Pair{From: "BTC", To: "USDT"},
		Timeframe:     "15m",
		HigherTimeframe: "1h",
		ScanInterval:  5 * time.Minute,

		AccountSize: decimal.NewFromInt(10000),

		RSIOversold:      decimal.NewFromInt(38),
		RSIOverbought:    decimal.NewFromInt(62),
		VolumeMultiplier: decimal.NewFromInt(1),

		ATRStopMult:   decimal.NewFromFloat(1.5),
		ATRTargetMult: decimal.NewFromFloat(3.0),
		MinRiskReward: decimal.NewFromInt(2),

		MinFiltersPass:   4,
		MaxSignalsPerDay: 3,
		MaxOpenPositions: 1,

		RiskPercentMin:      decimal.NewFromInt(1),
		RiskPercentMax:      decimal.NewFromInt(2),
		Leverage:            15,
		MaxDrawdownPercent:  decimal.NewFromInt(2),
		MaxConsecutiveStops: 2,

		RegimeMinConfidence:    45,
		VolatilityReduceATRPct: decimal.NewFromInt(2),
		VolatilityBlockATRPct:  decimal.NewFromInt(3),

		StructureMinScore:       4,
		StructureMinScoreChoppy: 6,
	}
}

// fakeProvider serves canned candle history per pair and interval.
type fakeProvider struct {
	candles map[string][]domain.MarketCandle
}

func (p *fakeProvider) GetKlines(_ context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	candles, ok := p.candles[pair.String()+"/"+interval]
	if !ok {
		return nil, errors.Wrap(domain.ErrInsufficientData, "no data")
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// fakeNotifier records deliveries and can simulate channel failure.
type fakeNotifier struct {
	signals []*domain.TradeSignal
	texts   []string
	fail    bool
}

func (n *fakeNotifier) NotifySignal(_ context.Context, sig *domain.TradeSignal) error {
	if n.fail {
		return errors.New("delivery failed")
	}
	n.signals = append(n.signals, sig)
	return nil
}

func (n *fakeNotifier) NotifyText(_ context.Context, text string) error {
	if n.fail {
		return errors.New("delivery failed")
	}
	n.texts = append(n.texts, text)
	return nil
}

func newTestBot(t *testing.T, provider collector.KlineProvider, notif *fakeNotifier) (*SignalBot, *risk.Manager, *signals.WALStore) {
	t.Helper()
	cfg := botConfig()

	manager, err := risk.NewManager(cfg, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	journal, err := signals.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	builder := collector.NewSnapshotBuilder(provider, cfg.Timeframe, cfg.HigherTimeframe)
	bot := NewSignalBot(cfg, builder, manager, journal, notif, zap.NewNop())
	return bot, manager, journal
}

func TestRankSurvivorsGradeFirstThenScanOrder(t *testing.T) {
	notif := &fakeNotifier{}
	bot, _, _ := newTestBot(t, &fakeProvider{}, notif)

	cand := func(from string, grade domain.Grade) *pipeline.Candidate {
		return &pipeline.Candidate{
			Snapshot: &domain.IndicatorSnapshot{Pair: domain.Pair{From: from, To: "USDT"}},
			Card:     domain.ScoreCard{Grade: grade},
		}
	}

	survivors := []*pipeline.Candidate{
		cand("XRP", domain.GradeAPlus),
		cand("ETH", domain.GradeB),
		cand("SOL", domain.GradeAPlus),
	}
	bot.rankSurvivors(survivors)

	assert.Equal(t, "SOL", survivors[0].Snapshot.Pair.From)
	assert.Equal(t, "XRP", survivors[1].Snapshot.Pair.From)
	assert.Equal(t, "ETH", survivors[2].Snapshot.Pair.From)
}

func TestCycleSkipsWhenReferenceDataMissing(t *testing.T) {
	notif := &fakeNotifier{}
	bot, _, _ := newTestBot(t, &fakeProvider{candles: map[string][]domain.MarketCandle{}}, notif)

	// No reference history at all: the cycle is abandoned quietly.
	err := bot.Cycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notif.signals)
}

func TestPublishCommitSurvivesDeliveryFailure(t *testing.T) {
	notif := &fakeNotifier{fail: true}
	bot, manager, journal := newTestBot(t, &fakeProvider{}, notif)

	sig := &domain.TradeSignal{
		ID:         "sig-1",
		Pair:       domain.Pair{From: "ETH", To: "USDT"},
		Direction:  domain.DirectionLong,
		Entry:      decimal.NewFromInt(100),
		StopLoss:   decimal.NewFromFloat(98.5),
		TakeProfit: decimal.NewFromInt(103),
		Grade:      domain.GradeA,
		Notional:   decimal.NewFromInt(1000),
		Contracts:  decimal.NewFromInt(10),
		CreatedAt:  time.Now().UTC(),
	}
	bot.publish(context.Background(), sig)

	// The risk commit and the journal entry stand despite the failure.
	view := manager.Snapshot()
	assert.Equal(t, 1, view.SignalsToday)
	require.Len(t, view.OpenPositions, 1)

	records, err := journal.SignalsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sig-1", records[0].Signal.ID)
}

func TestPublishDuplicatePositionRejected(t *testing.T) {
	notif := &fakeNotifier{}
	bot, manager, journal := newTestBot(t, &fakeProvider{}, notif)

	sig := &domain.TradeSignal{
		ID:         "sig-1",
		Pair:       domain.Pair{From: "ETH", To: "USDT"},
		Direction:  domain.DirectionLong,
		Entry:      decimal.NewFromInt(100),
		StopLoss:   decimal.NewFromFloat(98.5),
		TakeProfit: decimal.NewFromInt(103),
		Grade:      domain.GradeA,
		Notional:   decimal.NewFromInt(1000),
		Contracts:  decimal.NewFromInt(10),
		CreatedAt:  time.Now().UTC(),
	}
	bot.publish(context.Background(), sig)

	dup := *sig
	dup.ID = "sig-2"
	bot.publish(context.Background(), &dup)

	assert.Equal(t, 1, manager.Snapshot().SignalsToday)
	records, err := journal.SignalsAfter(0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Len(t, notif.signals, 1)
}
