package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Block and reduce reason codes of the volatility gate.
const (
	ReasonVolatilityExcess   = "volatility_excess"
	ReasonVolatilityElevated = "volatility_elevated"
)

// volatilityStage gates on the candidate's ATR as a percentage of price:
// above the block threshold the candidate is dropped for slippage and gap
// risk, inside the elevated band it continues at half size, below it at
// full size. Orthogonal to direction, runs once per candidate.
type volatilityStage struct {
	reduceAbove decimal.Decimal
	blockAbove  decimal.Decimal
}

// NewVolatilityStage builds the volatility gate from the configured ATR%
// thresholds.
func NewVolatilityStage(reduceAbove, blockAbove decimal.Decimal) Stage {
	return &volatilityStage{reduceAbove: reduceAbove, blockAbove: blockAbove}
}

func (s *volatilityStage) Name() string { return "volatility" }

func (s *volatilityStage) Evaluate(_ context.Context, c *Candidate) StageResult {
	atrPct := c.Snapshot.ATRPercent()

	if atrPct.GreaterThan(s.blockAbove) {
		return Block(ReasonVolatilityExcess)
	}
	if atrPct.GreaterThanOrEqual(s.reduceAbove) {
		return Reduce(decimal.NewFromFloat(0.5),
			fmt.Sprintf("%s: atr %s%%", ReasonVolatilityElevated, atrPct.StringFixed(2)))
	}
	return Pass()
}
