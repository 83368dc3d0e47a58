package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// Block reason code of the finalizer.
const ReasonRiskRewardBelowMinimum = "risk_reward_below_minimum"

// finalizeStage assembles the approved candidate into an immutable
// TradeSignal: ATR-derived stop and target around the entry, the computed
// risk:reward ratio, the grade and the approved size. The risk:reward
// floor is the pipeline's last hard gate, applied even after risk
// approval.
type finalizeStage struct {
	stopMult      decimal.Decimal
	targetMult    decimal.Decimal
	minRiskReward decimal.Decimal
}

// NewFinalizeStage builds the finalizer from the configured ATR multipliers
// and risk:reward floor.
func NewFinalizeStage(stopMult, targetMult, minRiskReward decimal.Decimal) Stage {
	return &finalizeStage{stopMult: stopMult, targetMult: targetMult, minRiskReward: minRiskReward}
}

func (s *finalizeStage) Name() string { return "finalize" }

func (s *finalizeStage) Evaluate(_ context.Context, c *Candidate) StageResult {
	snap := c.Snapshot
	entry := snap.Price

	stopDistance := snap.ATR.Mul(s.stopMult)
	targetDistance := snap.ATR.Mul(s.targetMult)

	var stop, target decimal.Decimal
	if c.Direction == domain.DirectionLong {
		stop = entry.Sub(stopDistance)
		target = entry.Add(targetDistance)
	} else {
		stop = entry.Add(stopDistance)
		target = entry.Sub(targetDistance)
	}

	if stopDistance.LessThanOrEqual(decimal.Zero) || stop.LessThanOrEqual(decimal.Zero) {
		return Block(ReasonRiskRewardBelowMinimum)
	}

	riskReward := targetDistance.Div(stopDistance)
	if riskReward.LessThan(s.minRiskReward) {
		return Block(ReasonRiskRewardBelowMinimum)
	}

	c.Signal = &domain.TradeSignal{
		ID:             uuid.NewString(),
		Pair:           snap.Pair,
		Direction:      c.Direction,
		Entry:          entry,
		StopLoss:       stop,
		TakeProfit:     target,
		RiskReward:     riskReward,
		Grade:          c.Card.Grade,
		Notional:       c.Approval.Notional,
		Contracts:      c.Approval.Contracts,
		SizeFactor:     c.SizeFactor,
		RiskPercent:    c.Approval.RiskPercent,
		ScoreCard:      c.Card,
		Regime:         c.Regime,
		StructureScore: c.Structure.Score,
		CreatedAt:      time.Now().UTC(),
	}

	return Pass()
}
