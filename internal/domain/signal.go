package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSignal the pipeline's sole output artifact. Immutable once finalized.
type TradeSignal struct {
	ID         string          `json:"id"`
	Pair       Pair            `json:"pair"`
	Direction  Direction       `json:"direction"`
	Entry      decimal.Decimal `json:"entry"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	RiskReward decimal.Decimal `json:"risk_reward"`
	Grade      Grade           `json:"grade"`
	// Notional approved position value in quote currency, after any
	// volatility size reduction.
	Notional  decimal.Decimal `json:"notional"`
	Contracts decimal.Decimal `json:"contracts"`
	// SizeFactor accumulated reduce factor applied by the pipeline (1 = full size).
	SizeFactor decimal.Decimal `json:"size_factor"`
	RiskPercent decimal.Decimal `json:"risk_percent"`
	ScoreCard   ScoreCard       `json:"score_card"`
	Regime      RegimeVerdict   `json:"regime"`
	StructureScore int          `json:"structure_score"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RecomputeRR recalculates the risk:reward ratio from the signal's own
// entry, stop, and target. Must match RiskReward within rounding.
func (s TradeSignal) RecomputeRR() decimal.Decimal {
	stopDist := s.Entry.Sub(s.StopLoss).Abs()
	if stopDist.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return s.TakeProfit.Sub(s.Entry).Abs().Div(stopDist)
}

// OutcomeKind how an open position was resolved.
type OutcomeKind string

const (
	OutcomeStopLoss   OutcomeKind = "STOP_LOSS"
	OutcomeTakeProfit OutcomeKind = "TAKE_PROFIT"
)

// TradeOutcome external report of a stop or target hit on an open position.
type TradeOutcome struct {
	Pair      Pair            `json:"pair"`
	Kind      OutcomeKind     `json:"kind"`
	ExitPrice decimal.Decimal `json:"exit_price"`
	// PnLPercent realized move in percent of entry, signed.
	PnLPercent decimal.Decimal `json:"pnl_percent"`
	At         time.Time       `json:"at"`
}
