// Package pipeline implements the signal decision pipeline: a strict,
// non-reorderable sequence of gates that turns an indicator snapshot into a
// graded trade signal or a logged block reason. Stage order is fixed:
// regime, volatility, structure, score, risk, finalize. Any stage may
// short-circuit the rest with a hard block.
package pipeline

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/internal/services/risk"
)

type resultKind int

const (
	kindPass resultKind = iota
	kindReduce
	kindBlock
)

// StageResult tagged outcome of one stage: pass, pass with a position-size
// reduction, or hard block with a reason code.
type StageResult struct {
	kind   resultKind
	Reason string
	// Factor multiplier applied to position size on a reduce outcome.
	Factor decimal.Decimal
}

// Pass lets the candidate continue at full size.
func Pass() StageResult {
	return StageResult{kind: kindPass}
}

// Reduce lets the candidate continue with its size multiplied by factor.
func Reduce(factor decimal.Decimal, reason string) StageResult {
	return StageResult{kind: kindReduce, Factor: factor, Reason: reason}
}

// Block stops the pipeline for this candidate with a reason code.
func Block(reason string) StageResult {
	return StageResult{kind: kindBlock, Reason: reason}
}

// Blocked reports whether the result short-circuits the pipeline.
func (r StageResult) Blocked() bool {
	return r.kind == kindBlock
}

// Reduced reports whether the result carries a size reduction.
func (r StageResult) Reduced() bool {
	return r.kind == kindReduce
}

// Candidate one instrument's evaluation in one cycle. Stages read the
// snapshot and regime verdict and fill in the remaining fields as the
// candidate moves down the pipeline.
type Candidate struct {
	Snapshot *domain.IndicatorSnapshot
	// Regime computed once per cycle, shared read-only by every candidate.
	Regime domain.RegimeVerdict

	// Direction set by the structure stage from the confirmed break.
	Direction domain.Direction
	Structure domain.StructureVerdict
	Card      domain.ScoreCard

	// SizeFactor accumulated reduce factor, starts at 1.
	SizeFactor decimal.Decimal

	// Approval sizing granted by the risk stage.
	Approval risk.Approval
	// Signal the finalized output, set by the last stage.
	Signal *domain.TradeSignal
}

// NewCandidate prepares a candidate at full size.
func NewCandidate(snap *domain.IndicatorSnapshot, regime domain.RegimeVerdict) *Candidate {
	return &Candidate{
		Snapshot:   snap,
		Regime:     regime,
		SizeFactor: decimal.NewFromInt(1),
	}
}

// Stage one gate of the pipeline.
type Stage interface {
	Name() string
	Evaluate(ctx context.Context, c *Candidate) StageResult
}

// Outcome terminal result of a pipeline run for one candidate.
type Outcome struct {
	// Blocked the candidate was stopped before finalization.
	Blocked bool
	// Stage name of the blocking stage, empty on success.
	Stage string
	// Reason block reason code, empty on success.
	Reason string
}

// Runner executes an ordered list of stages against a candidate.
type Runner struct {
	stages []Stage
	logger *zap.Logger
}

// NewRunner builds a runner over the given stages, executed in order.
func NewRunner(logger *zap.Logger, stages ...Stage) *Runner {
	return &Runner{stages: stages, logger: logger}
}

// Run pushes the candidate through every stage in order. A block is a
// normal, frequent outcome: it is logged with its reason code and returned,
// never escalated as an error.
func (r *Runner) Run(ctx context.Context, c *Candidate) Outcome {
	pair := c.Snapshot.Pair.String()

	for _, stage := range r.stages {
		res := stage.Evaluate(ctx, c)

		if res.Blocked() {
			r.logger.Info("candidate blocked",
				zap.String("pair", pair),
				zap.String("stage", stage.Name()),
				zap.String("reason", res.Reason))
			return Outcome{Blocked: true, Stage: stage.Name(), Reason: res.Reason}
		}

		if res.Reduced() {
			c.SizeFactor = c.SizeFactor.Mul(res.Factor)
			r.logger.Info("position size reduced",
				zap.String("pair", pair),
				zap.String("stage", stage.Name()),
				zap.String("reason", res.Reason),
				zap.String("size_factor", c.SizeFactor.String()))
		}
	}

	return Outcome{}
}
