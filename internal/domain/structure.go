package domain

import "github.com/shopspring/decimal"

// StructureBreakKind kind of confirmed market-structure event.
type StructureBreakKind string

const (
	// BreakOfStructure price closed beyond a swing level in the
	// direction of the prevailing trend.
	BreakOfStructure StructureBreakKind = "BOS"
	// ChangeOfCharacter price closed beyond a swing level against the
	// prevailing trend.
	ChangeOfCharacter StructureBreakKind = "CHOCH"
	// NoBreak nothing confirmed.
	NoBreak StructureBreakKind = "NONE"
)

// StructureScoreMax upper bound of the structure score: up to 6 points for
// break magnitude plus 2 for order-block and 2 for fair-value-gap confluence.
const StructureScoreMax = 10

// StructureVerdict result of market-structure confirmation for a candidate.
type StructureVerdict struct {
	Confirmed bool
	// Score 0..StructureScoreMax, strength of the confirmed break.
	Score int
	Bias  Direction
	Kind  StructureBreakKind
	// BreakLevel the swing level the closing candle broke.
	BreakLevel decimal.Decimal
	// OrderBlock candidate closed inside an order-block zone.
	OrderBlock bool
	// FairValueGap an unfilled imbalance sits behind the break.
	FairValueGap bool
	// PremiumDiscount entry aligns with the discount (long) or premium
	// (short) half of the recent range.
	PremiumDiscount bool
}

// ConfluenceCount number of smart-money confluence factors present.
func (v StructureVerdict) ConfluenceCount() int {
	n := 0
	if v.Bias != DirectionNone && v.Confirmed {
		n++
	}
	if v.OrderBlock {
		n++
	}
	if v.FairValueGap {
		n++
	}
	if v.PremiumDiscount {
		n++
	}
	return n
}
