package domain

// RegimeClass reference-asset market regime.
type RegimeClass string

const (
	RegimeBullish  RegimeClass = "BULLISH"
	RegimeBearish  RegimeClass = "BEARISH"
	RegimeChoppy   RegimeClass = "CHOPPY"
	RegimeChanging RegimeClass = "CHANGING"
)

// RegimeVerdict reference-asset classification shared by every instrument
// evaluated in the same cycle.
type RegimeVerdict struct {
	Class RegimeClass
	// Confidence 0..100.
	Confidence int
	// Score weighted composite in [-100, 100], positive means bullish.
	Score float64
	// Details per-layer diagnostics for logging and alerts.
	Details map[string]string
}

// Allows reports whether a trade in the given direction is compatible with
// the regime. Choppy and Changing regimes allow nothing.
func (v RegimeVerdict) Allows(d Direction) bool {
	switch v.Class {
	case RegimeBullish:
		return d == DirectionLong
	case RegimeBearish:
		return d == DirectionShort
	default:
		return false
	}
}
