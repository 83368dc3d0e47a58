package pipeline

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/internal/services/market/analysis"
	"github.com/signalpipe/signalpipe/pkg/indicators"
)

// Block reason codes of the structure gate.
const (
	ReasonStructureUnconfirmed = "structure_unconfirmed"
	ReasonStructureWeak        = "structure_weak"
	ReasonStructureHTFConflict = "structure_htf_conflict"
)

const (
	// orderBlockLookback candles scanned backwards for an order block.
	orderBlockLookback = 15
	// fvgLookback candle triples scanned for a fair value gap.
	fvgLookback = 10
	// rangeLookback candles defining the premium/discount range.
	rangeLookback = 20
	// magnitudePointsMax break-magnitude share of the structure score.
	magnitudePointsMax = 6

	// htfMinHistory candles required before the higher timeframe gets a
	// vote. Shorter history is a neutral pass, not a penalty.
	htfMinHistory = 25
	// htfTrendBuffer EMA separation, as a fraction of price, below which
	// the higher timeframe reads neutral. Filters false crossovers on
	// flat markets.
	htfTrendBuffer = 0.0005
)

// structureStage confirms a break-of-structure or change-of-character on
// the candidate instrument. Only candle closes count: an in-progress or
// wick-only break is rejected to avoid false triggers. A choppy regime
// raises the minimum score required to confirm.
type structureStage struct {
	minScore       int
	minScoreChoppy int
}

// NewStructureStage builds the structure gate with the configured score
// floors.
func NewStructureStage(minScore, minScoreChoppy int) Stage {
	return &structureStage{minScore: minScore, minScoreChoppy: minScoreChoppy}
}

func (s *structureStage) Name() string { return "structure" }

func (s *structureStage) Evaluate(_ context.Context, c *Candidate) StageResult {
	closed := closedCandles(c.Snapshot)
	if len(closed) < domain.MinCandleHistory {
		return Block(ReasonStructureUnconfirmed)
	}

	verdict := detectBreak(closed, c.Snapshot)
	if verdict.Kind == domain.NoBreak {
		return Block(ReasonStructureUnconfirmed)
	}

	required := s.minScore
	if c.Regime.Class == domain.RegimeChoppy {
		required = s.minScoreChoppy
	}
	if verdict.Score < required {
		return Block(ReasonStructureWeak)
	}

	if !higherTimeframeConfirms(c.Snapshot.HigherCandles, verdict.Bias) {
		return Block(ReasonStructureHTFConflict)
	}

	verdict.Confirmed = true
	c.Structure = verdict
	c.Direction = verdict.Bias
	return Pass()
}

// higherTimeframeConfirms checks the break direction against the higher
// timeframe's EMA9/EMA21 trend and RSI position. A long needs a bullish
// higher timeframe, a short a bearish one; a neutral or opposing read
// rejects the break. Missing history never penalizes the candidate.
func higherTimeframeConfirms(candles []domain.MarketCandle, bias domain.Direction) bool {
	if len(candles) < htfMinHistory {
		return true
	}

	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	ema9, err := indicators.CalculateEMA(closes, 9)
	if err != nil {
		return true
	}
	ema21, err := indicators.CalculateEMA(closes, 21)
	if err != nil {
		return true
	}
	rsi, err := indicators.CalculateRSI(closes, 14)
	if err != nil {
		return true
	}

	fast := ema9[len(ema9)-1]
	slow := ema21[len(ema21)-1]
	strength := rsi[len(rsi)-1]
	buffer := closes[len(closes)-1].Mul(decimal.NewFromFloat(htfTrendBuffer))

	if bias == domain.DirectionLong {
		return fast.GreaterThan(slow.Add(buffer)) && strength.GreaterThan(decimal.NewFromInt(45))
	}
	return fast.LessThan(slow.Sub(buffer)) && strength.LessThan(decimal.NewFromInt(55))
}

// closedCandles trims candles still in progress at capture time.
func closedCandles(snap *domain.IndicatorSnapshot) []domain.MarketCandle {
	candles := snap.Candles
	for len(candles) > 0 && !candles[len(candles)-1].ClosedBy(snap.CapturedAt) {
		candles = candles[:len(candles)-1]
	}
	return candles
}

// detectBreak checks whether the latest closed candle closed beyond the
// most recent confirmed swing level, and scores the break.
func detectBreak(closed []domain.MarketCandle, snap *domain.IndicatorSnapshot) domain.StructureVerdict {
	verdict := domain.StructureVerdict{Kind: domain.NoBreak}

	breakCandle := closed[len(closed)-1]
	history := closed[:len(closed)-1]

	highs := analysis.SwingHighs(history)
	lows := analysis.SwingLows(history)

	var bias domain.Direction
	var level decimal.Decimal

	brokeUp := len(highs) > 0 && breakCandle.Close.GreaterThan(highs[len(highs)-1].Level)
	brokeDown := len(lows) > 0 && breakCandle.Close.LessThan(lows[len(lows)-1].Level)

	switch {
	case brokeUp && brokeDown:
		// A single candle sweeping both levels: follow the close.
		if breakCandle.Bullish() {
			bias, level = domain.DirectionLong, highs[len(highs)-1].Level
		} else {
			bias, level = domain.DirectionShort, lows[len(lows)-1].Level
		}
	case brokeUp:
		bias, level = domain.DirectionLong, highs[len(highs)-1].Level
	case brokeDown:
		bias, level = domain.DirectionShort, lows[len(lows)-1].Level
	default:
		return verdict
	}

	verdict.Bias = bias
	verdict.BreakLevel = level
	verdict.Kind = classifyBreak(bias, snap)
	verdict.OrderBlock = hasOrderBlock(history, bias, breakCandle.Close, snap.ATR)
	verdict.FairValueGap = hasFairValueGap(closed, bias)
	verdict.PremiumDiscount = inFavorableZone(closed, bias, breakCandle.Close)

	verdict.Score = magnitudePoints(breakCandle.Close, level, snap.ATR)
	if verdict.OrderBlock {
		verdict.Score += 2
	}
	if verdict.FairValueGap {
		verdict.Score += 2
	}
	if verdict.Score > domain.StructureScoreMax {
		verdict.Score = domain.StructureScoreMax
	}

	return verdict
}

// classifyBreak labels the break BOS when it continues the prevailing EMA
// trend and CHoCH when it goes against it.
func classifyBreak(bias domain.Direction, snap *domain.IndicatorSnapshot) domain.StructureBreakKind {
	trendUp := snap.EMA9.GreaterThan(snap.EMA21)
	if (bias == domain.DirectionLong && trendUp) || (bias == domain.DirectionShort && !trendUp) {
		return domain.BreakOfStructure
	}
	return domain.ChangeOfCharacter
}

// magnitudePoints scales the close-beyond-level distance by ATR into
// 0..magnitudePointsMax points. A full-ATR break earns the maximum.
func magnitudePoints(close, level, atr decimal.Decimal) int {
	if atr.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	ratio := close.Sub(level).Abs().Div(atr)
	points := int(ratio.Mul(decimal.NewFromInt(magnitudePointsMax)).IntPart())
	if points > magnitudePointsMax {
		points = magnitudePointsMax
	}
	return points
}

// hasOrderBlock looks for the most recent opposite-direction candle before
// the break whose zone sits within one ATR of the breaking close.
func hasOrderBlock(history []domain.MarketCandle, bias domain.Direction, close, atr decimal.Decimal) bool {
	start := len(history) - orderBlockLookback
	if start < 0 {
		start = 0
	}

	for i := len(history) - 1; i >= start; i-- {
		candle := history[i]
		opposite := (bias == domain.DirectionLong && !candle.Bullish()) ||
			(bias == domain.DirectionShort && candle.Bullish())
		if !opposite || candle.Body().IsZero() {
			continue
		}

		nearLow := close.Sub(candle.Low).Abs().LessThanOrEqual(atr)
		nearHigh := close.Sub(candle.High).Abs().LessThanOrEqual(atr)
		inside := close.GreaterThanOrEqual(candle.Low) && close.LessThanOrEqual(candle.High)
		if inside || nearLow || nearHigh {
			return true
		}
	}
	return false
}

// hasFairValueGap scans recent candle triples for an unfilled imbalance in
// the break direction: for a long, candle i's low gapping above candle
// i-2's high, with no later candle trading back through the gap.
func hasFairValueGap(closed []domain.MarketCandle, bias domain.Direction) bool {
	start := len(closed) - fvgLookback
	if start < 2 {
		start = 2
	}

	for i := len(closed) - 1; i >= start; i-- {
		if bias == domain.DirectionLong {
			gapBottom := closed[i-2].High
			gapTop := closed[i].Low
			if gapTop.LessThanOrEqual(gapBottom) {
				continue
			}
			if !gapFilledBelow(closed[i+1:], gapBottom) {
				return true
			}
		} else {
			gapTop := closed[i-2].Low
			gapBottom := closed[i].High
			if gapTop.LessThanOrEqual(gapBottom) {
				continue
			}
			if !gapFilledAbove(closed[i+1:], gapTop) {
				return true
			}
		}
	}
	return false
}

func gapFilledBelow(later []domain.MarketCandle, gapBottom decimal.Decimal) bool {
	for _, c := range later {
		if c.Low.LessThanOrEqual(gapBottom) {
			return true
		}
	}
	return false
}

func gapFilledAbove(later []domain.MarketCandle, gapTop decimal.Decimal) bool {
	for _, c := range later {
		if c.High.GreaterThanOrEqual(gapTop) {
			return true
		}
	}
	return false
}

// inFavorableZone reports whether the entry sits in the discount half of
// the recent range for a long, or the premium half for a short.
func inFavorableZone(closed []domain.MarketCandle, bias domain.Direction, close decimal.Decimal) bool {
	high, low := analysis.RecentRange(closed, rangeLookback)
	if high.LessThanOrEqual(low) {
		return false
	}

	mid := high.Add(low).Div(decimal.NewFromInt(2))
	if bias == domain.DirectionLong {
		return close.LessThanOrEqual(mid)
	}
	return close.GreaterThanOrEqual(mid)
}
