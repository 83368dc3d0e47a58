package internal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalpipe/signalpipe/config"
	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/internal/services/market/collector"
	"github.com/signalpipe/signalpipe/internal/services/monitor"
	"github.com/signalpipe/signalpipe/internal/services/notifier"
	"github.com/signalpipe/signalpipe/internal/services/pipeline"
	"github.com/signalpipe/signalpipe/internal/services/risk"
	"github.com/signalpipe/signalpipe/internal/storage/signals"
)

// SignalBot runs the evaluation cycle: one full pipeline pass per
// configured instrument per scan interval. The regime verdict is computed
// once per cycle and shared read-only across instruments; the early stages
// run in parallel, while risk approval and finalization run serially in
// grade order so the daily caps are never oversubscribed.
type SignalBot struct {
	cfg        *config.Config
	builder    *collector.SnapshotBuilder
	gatekeeper *pipeline.Gatekeeper
	evalRunner *pipeline.Runner
	riskRunner *pipeline.Runner
	manager    *risk.Manager
	journal    *signals.WALStore
	notifier   notifier.Notifier
	logger     *zap.Logger

	// pairOrder configured scan order, the grade tie-break.
	pairOrder map[string]int
}

// NewSignalBot wires the pipeline stages in their fixed order.
func NewSignalBot(
	cfg *config.Config,
	builder *collector.SnapshotBuilder,
	manager *risk.Manager,
	journal *signals.WALStore,
	notif notifier.Notifier,
	logger *zap.Logger,
) *SignalBot {
	evalRunner := pipeline.NewRunner(logger,
		pipeline.NewRegimeStage(cfg.RegimeMinConfidence),
		pipeline.NewVolatilityStage(cfg.VolatilityReduceATRPct, cfg.VolatilityBlockATRPct),
		pipeline.NewStructureStage(cfg.StructureMinScore, cfg.StructureMinScoreChoppy),
		pipeline.NewScoreStage(pipeline.ScoreConfig{
			RSIOversold:      cfg.RSIOversold,
			RSIOverbought:    cfg.RSIOverbought,
			VolumeMultiplier: cfg.VolumeMultiplier,
			MinFiltersPass:   cfg.MinFiltersPass,
			ReferencePair:    cfg.ReferencePair,
		}),
	)

	riskRunner := pipeline.NewRunner(logger,
		pipeline.NewRiskStage(manager),
		pipeline.NewFinalizeStage(cfg.ATRStopMult, cfg.ATRTargetMult, cfg.MinRiskReward),
	)

	pairOrder := make(map[string]int, len(cfg.Pairs))
	for i, pair := range cfg.Pairs {
		pairOrder[pair.String()] = i
	}

	return &SignalBot{
		cfg:        cfg,
		builder:    builder,
		gatekeeper: pipeline.NewGatekeeper(),
		evalRunner: evalRunner,
		riskRunner: riskRunner,
		manager:    manager,
		journal:    journal,
		notifier:   notif,
		logger:     logger,
		pairOrder:  pairOrder,
	}
}

// Run executes cycles at the configured scan interval until the context is
// canceled.
func (b *SignalBot) Run(ctx context.Context) error {
	b.logger.Info("starting signal loop",
		zap.Int("pairs", len(b.cfg.Pairs)),
		zap.Duration("scan_interval", b.cfg.ScanInterval))

	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if err := b.Cycle(ctx); err != nil {
			b.logger.Error("cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			b.logger.Info("context done, stopping signal loop")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle runs one full evaluation pass over every configured instrument.
func (b *SignalBot) Cycle(ctx context.Context) error {
	now := time.Now().UTC()
	if b.manager.ResetDay(now) {
		b.notifyText(ctx, fmt.Sprintf("New trading day %s: risk counters reset", now.Format("2006-01-02")))
	}

	b.tendOpenPositions(ctx)

	regime, err := b.classifyRegime(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			b.logger.Warn("regime reference data insufficient, skipping cycle", zap.Error(err))
			return nil
		}
		return errors.Wrap(err, "classify regime")
	}

	b.logger.Info("regime classified",
		zap.String("class", string(regime.Class)),
		zap.Int("confidence", regime.Confidence),
		zap.Float64("score", regime.Score))

	survivors := b.evaluateInstruments(ctx, regime)

	// Risk and finalization are serial: the risk state is one critical
	// section per cycle, approved grade-first, scan order breaking ties.
	b.rankSurvivors(survivors)

	for _, cand := range survivors {
		outcome := b.riskRunner.Run(ctx, cand)
		if outcome.Blocked {
			continue
		}
		b.publish(ctx, cand.Signal)
	}

	return nil
}

// classifyRegime fetches the reference asset's multi-timeframe history and
// classifies it once for the whole cycle.
func (b *SignalBot) classifyRegime(ctx context.Context) (domain.RegimeVerdict, error) {
	const lookback = 120

	var input pipeline.RegimeInput
	var err error

	if input.M15, err = b.builder.Candles(ctx, b.cfg.ReferencePair, "15m", lookback); err != nil {
		return domain.RegimeVerdict{}, err
	}
	if input.H1, err = b.builder.Candles(ctx, b.cfg.ReferencePair, "1h", lookback); err != nil {
		return domain.RegimeVerdict{}, err
	}
	if input.H4, err = b.builder.Candles(ctx, b.cfg.ReferencePair, "4h", lookback); err != nil {
		return domain.RegimeVerdict{}, err
	}

	return b.gatekeeper.Classify(input)
}

// evaluateInstruments runs the regime, volatility, structure and score
// stages for every pair in parallel and returns the surviving candidates.
func (b *SignalBot) evaluateInstruments(ctx context.Context, regime domain.RegimeVerdict) []*pipeline.Candidate {
	var mu sync.Mutex
	var survivors []*pipeline.Candidate

	g, gctx := errgroup.WithContext(ctx)
	for _, pair := range b.cfg.Pairs {
		pair := pair
		g.Go(func() error {
			snap, err := b.builder.Snapshot(gctx, pair)
			if err != nil {
				b.logCandidateSkip(pair, err)
				return nil
			}
			if err := snap.Validate(); err != nil {
				b.logCandidateSkip(pair, err)
				return nil
			}

			cand := pipeline.NewCandidate(snap, regime)
			if outcome := b.evalRunner.Run(gctx, cand); outcome.Blocked {
				return nil
			}

			mu.Lock()
			survivors = append(survivors, cand)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return survivors
}

// rankSurvivors orders candidates for risk approval: best grade first,
// configured scan order breaking ties.
func (b *SignalBot) rankSurvivors(survivors []*pipeline.Candidate) {
	sort.SliceStable(survivors, func(i, j int) bool {
		ri, rj := survivors[i].Card.Grade.Rank(), survivors[j].Card.Grade.Rank()
		if ri != rj {
			return ri > rj
		}
		return b.pairOrder[survivors[i].Snapshot.Pair.String()] < b.pairOrder[survivors[j].Snapshot.Pair.String()]
	})
}

// logCandidateSkip logs a discarded candidate. Insufficient data is a
// normal per-cycle outcome, anything else is an operational error.
func (b *SignalBot) logCandidateSkip(pair domain.Pair, err error) {
	if errors.Is(err, domain.ErrInsufficientData) {
		b.logger.Info("candidate discarded",
			zap.String("pair", pair.String()),
			zap.String("reason", "insufficient_data"),
			zap.Error(err))
		return
	}
	b.logger.Error("snapshot failed", zap.String("pair", pair.String()), zap.Error(err))
}

// publish commits the signal against the risk budget, journals it, and
// delivers the notification. Delivery failure never rolls the commit back.
func (b *SignalBot) publish(ctx context.Context, sig *domain.TradeSignal) {
	if err := b.manager.Commit(sig); err != nil {
		b.logger.Error("failed to commit signal", zap.String("pair", sig.Pair.String()), zap.Error(err))
		return
	}

	if err := b.journal.Save(sig); err != nil {
		b.logger.Error("failed to journal signal", zap.String("id", sig.ID), zap.Error(err))
	}

	b.logger.Info("signal published",
		zap.String("id", sig.ID),
		zap.String("pair", sig.Pair.String()),
		zap.String("direction", sig.Direction.String()),
		zap.String("grade", string(sig.Grade)))

	if err := b.notifier.NotifySignal(ctx, sig); err != nil {
		b.logger.Error("signal notification failed", zap.String("id", sig.ID), zap.Error(err))
	}
}

// tendOpenPositions feeds trade outcomes to the risk manager and applies
// the standing partial-exit and break-even rules, independent of whether
// any new signal is produced this cycle.
func (b *SignalBot) tendOpenPositions(ctx context.Context) {
	pairs := b.manager.OpenPositionPairs()
	if len(pairs) == 0 {
		return
	}

	prices := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		candles, err := b.builder.Candles(ctx, pair, b.cfg.Timeframe, 2)
		if err != nil || len(candles) == 0 {
			b.logger.Warn("failed to fetch candles for open position",
				zap.String("pair", pair.String()), zap.Error(err))
			continue
		}
		last := candles[len(candles)-1]

		pos, ok := b.manager.OpenPosition(pair)
		if !ok {
			continue
		}

		if outcome, hit := monitor.Detect(&pos, last); hit {
			if err := b.manager.RecordOutcome(outcome); err != nil {
				b.logger.Error("failed to record trade outcome",
					zap.String("pair", pair.String()), zap.Error(err))
				continue
			}
			b.notifyText(ctx, fmt.Sprintf("%s %s closed at %s (%s%%)",
				pair.String(), outcome.Kind, outcome.ExitPrice.String(), outcome.PnLPercent.StringFixed(2)))
			continue
		}

		prices[pair.String()] = last.Close
	}

	for _, update := range b.manager.ManagePositions(prices) {
		b.notifyText(ctx, fmt.Sprintf("%s %s: %s", update.Pair.String(), update.Action, update.Detail))
	}
}

func (b *SignalBot) notifyText(ctx context.Context, text string) {
	if err := b.notifier.NotifyText(ctx, text); err != nil {
		b.logger.Error("notification failed", zap.Error(err))
	}
}
