package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/internal/services/market/analysis"
	"github.com/signalpipe/signalpipe/pkg/indicators"
)

// Block reason codes of the regime gate.
const (
	ReasonRegimeLowConfidence = "regime_low_confidence"
	ReasonRegimeChanging      = "regime_changing"
)

// Layer weights of the regime composite.
const (
	regimeWeightEMAStack   = 0.4
	regimeWeightStructure  = 0.3
	regimeWeightMomentum   = 0.2
	regimeWeightVolatility = 0.1

	// regimeClassThreshold composite magnitude separating a directional
	// regime from chop.
	regimeClassThreshold = 10.0
)

// RegimeInput reference-asset candle history across the three analysis
// timeframes, oldest first.
type RegimeInput struct {
	M15 []domain.MarketCandle
	H1  []domain.MarketCandle
	H4  []domain.MarketCandle
}

// Gatekeeper classifies the reference asset's market regime once per cycle.
// It remembers the previous cycle's classification: a change of class is
// reported as CHANGING, because transition periods are unreliable.
type Gatekeeper struct {
	mu        sync.Mutex
	prevClass domain.RegimeClass
}

// NewGatekeeper returns a gatekeeper with no previous classification.
func NewGatekeeper() *Gatekeeper {
	return &Gatekeeper{}
}

// Classify computes the regime verdict from reference-asset history alone.
// Pure function of the input except for the previous-class memory.
func (g *Gatekeeper) Classify(input RegimeInput) (domain.RegimeVerdict, error) {
	for name, candles := range map[string][]domain.MarketCandle{"15m": input.M15, "1h": input.H1, "4h": input.H4} {
		if len(candles) < 51 {
			return domain.RegimeVerdict{}, errors.Wrapf(domain.ErrInsufficientData,
				"regime reference %s: %d candles, need 51", name, len(candles))
		}
	}

	emaScore, err := g.emaStackScore(input)
	if err != nil {
		return domain.RegimeVerdict{}, err
	}
	structScore := g.swingStructureScore(input.H1)
	momScore, err := g.momentumScore(input.H1)
	if err != nil {
		return domain.RegimeVerdict{}, err
	}

	directional := regimeWeightEMAStack*emaScore +
		regimeWeightStructure*structScore +
		regimeWeightMomentum*momScore

	volScore, err := g.volatilityScore(input.H1, directional)
	if err != nil {
		return domain.RegimeVerdict{}, err
	}

	score := directional + regimeWeightVolatility*volScore
	score = math.Max(-100, math.Min(100, score))

	class := domain.RegimeChoppy
	switch {
	case score >= regimeClassThreshold:
		class = domain.RegimeBullish
	case score <= -regimeClassThreshold:
		class = domain.RegimeBearish
	}

	confidence := int(math.Min(100, math.Abs(score)*1.5))
	if class == domain.RegimeChoppy {
		confidence = int(math.Max(0, 50-math.Abs(score)*2))
	}

	verdict := domain.RegimeVerdict{
		Class:      class,
		Confidence: confidence,
		Score:      score,
		Details: map[string]string{
			"ema_stack":  fmt.Sprintf("%.1f", emaScore),
			"structure":  fmt.Sprintf("%.1f", structScore),
			"momentum":   fmt.Sprintf("%.1f", momScore),
			"volatility": fmt.Sprintf("%.1f", volScore),
		},
	}

	g.mu.Lock()
	if g.prevClass != "" && g.prevClass != class {
		verdict.Details["previous"] = string(g.prevClass)
		verdict.Class = domain.RegimeChanging
	}
	g.prevClass = class
	g.mu.Unlock()

	return verdict, nil
}

// emaStackScore averages the EMA9/EMA21/EMA50 stack ordering across the
// three timeframes: a fully bullish stack counts +100, fully bearish -100.
func (g *Gatekeeper) emaStackScore(input RegimeInput) (float64, error) {
	total := 0.0
	for _, candles := range [][]domain.MarketCandle{input.M15, input.H1, input.H4} {
		set, err := indicators.Latest(candles)
		if err != nil {
			return 0, errors.Wrap(err, "regime EMA stack")
		}
		switch {
		case set.EMA9.GreaterThan(set.EMA21) && set.EMA21.GreaterThan(set.EMA50):
			total += 100
		case set.EMA9.LessThan(set.EMA21) && set.EMA21.LessThan(set.EMA50):
			total -= 100
		}
	}
	return total / 3, nil
}

// swingStructureScore reads the swing sequence on the 1h chart: higher
// highs with higher lows is +100, lower highs with lower lows is -100,
// anything mixed is 0.
func (g *Gatekeeper) swingStructureScore(h1 []domain.MarketCandle) float64 {
	highs := analysis.SwingHighs(h1)
	lows := analysis.SwingLows(h1)
	if len(highs) < 2 || len(lows) < 2 {
		return 0
	}

	lastHigh, prevHigh := highs[len(highs)-1].Level, highs[len(highs)-2].Level
	lastLow, prevLow := lows[len(lows)-1].Level, lows[len(lows)-2].Level

	switch {
	case lastHigh.GreaterThan(prevHigh) && lastLow.GreaterThan(prevLow):
		return 100
	case lastHigh.LessThan(prevHigh) && lastLow.LessThan(prevLow):
		return -100
	default:
		return 0
	}
}

// momentumScore scales 1h RSI distance from the midline, dampened to half
// strength when volume runs below its rolling average.
func (g *Gatekeeper) momentumScore(h1 []domain.MarketCandle) (float64, error) {
	closes := make([]decimal.Decimal, len(h1))
	for i, c := range h1 {
		closes[i] = c.Close
	}
	rsiSeries, err := indicators.CalculateRSI(closes, 14)
	if err != nil {
		return 0, errors.Wrap(err, "regime momentum")
	}

	rsi, _ := rsiSeries[len(rsiSeries)-1].Float64()
	score := (rsi - 50) * 4
	score = math.Max(-100, math.Min(100, score))

	if analysis.VolumeRatio(h1).LessThan(decimal.NewFromInt(1)) {
		score /= 2
	}
	return score, nil
}

// volatilityScore rewards a healthy 1h ATR band. Healthy volatility
// reinforces the directional read; dead or excessive volatility contributes
// nothing.
func (g *Gatekeeper) volatilityScore(h1 []domain.MarketCandle, directional float64) (float64, error) {
	atrSeries, err := indicators.CalculateATR(h1, 14)
	if err != nil {
		return 0, errors.Wrap(err, "regime volatility")
	}

	atr := atrSeries[len(atrSeries)-1]
	price := h1[len(h1)-1].Close
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, nil
	}
	atrPct, _ := atr.Div(price).Mul(decimal.NewFromInt(100)).Float64()

	if atrPct < 0.3 || atrPct > 2.5 {
		return 0, nil
	}
	if directional < 0 {
		return -100, nil
	}
	return 100, nil
}

// regimeStage the first pipeline gate. The verdict itself is computed once
// per cycle by the Gatekeeper and shared across all candidates; this stage
// applies the hard-block rules to it.
type regimeStage struct {
	minConfidence int
}

// NewRegimeStage builds the regime gate with the configured confidence floor.
func NewRegimeStage(minConfidence int) Stage {
	return &regimeStage{minConfidence: minConfidence}
}

func (s *regimeStage) Name() string { return "regime" }

func (s *regimeStage) Evaluate(_ context.Context, c *Candidate) StageResult {
	if c.Regime.Class == domain.RegimeChanging {
		return Block(ReasonRegimeChanging)
	}
	if c.Regime.Confidence < s.minConfidence {
		return Block(ReasonRegimeLowConfidence)
	}
	return Pass()
}
