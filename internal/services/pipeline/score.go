package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// Block reason codes of the score gate.
const (
	ReasonBaseRuleFailed      = "base_rule_failed"
	ReasonFiltersBelowMinimum = "filters_below_minimum"
)

const (
	// Session hours (UTC) covering London and New York activity.
	sessionOpenHour  = 7
	sessionCloseHour = 21

	// fundingExtremeRate funding beyond which positioning is judged
	// crowded against the candidate.
	fundingExtremeRate = 0.0005

	// keyLevelATRMult proximity to a swing level, in ATR units.
	keyLevelATRMult = 1.5

	// minATRPercent volatility floor below which the market is dead.
	minATRPercent = 0.5

	// impulseBodyATRMult candle body required to count as an
	// independent impulse, in ATR units.
	impulseBodyATRMult = 0.3

	baseRuleWeight   = 20
	filterWeight     = 10
	confluenceWeight = 5
)

// ScoreConfig thresholds of the score validation stage.
type ScoreConfig struct {
	RSIOversold      decimal.Decimal
	RSIOverbought    decimal.Decimal
	VolumeMultiplier decimal.Decimal
	MinFiltersPass   int
	ReferencePair    domain.Pair
}

// scoreStage validates the base entry rule, tallies the six context
// filters and the smart-money confluence factors, and assigns a grade.
// The base rule and the minimum-filters threshold are hard gates; the
// grade itself is advisory metadata and never blocks publication.
type scoreStage struct {
	cfg    ScoreConfig
	grades []gradeRule
}

// gradeRule one row of the grade precedence table, first match wins.
type gradeRule struct {
	grade   domain.Grade
	matches func(filtersPassed, confluenceCount int) bool
}

// NewScoreStage builds the score gate and its grade precedence table.
func NewScoreStage(cfg ScoreConfig) Stage {
	minFilters := cfg.MinFiltersPass
	return &scoreStage{
		cfg: cfg,
		grades: []gradeRule{
			{domain.GradeAPlus, func(f, c int) bool { return f == 6 && c >= 3 }},
			{domain.GradeA, func(f, c int) bool { return f >= 5 && c >= 2 }},
			{domain.GradeB, func(f, c int) bool { return f == minFilters }},
			{domain.GradeC, func(f, c int) bool { return true }},
		},
	}
}

func (s *scoreStage) Name() string { return "score" }

func (s *scoreStage) Evaluate(_ context.Context, c *Candidate) StageResult {
	if c.Direction == domain.DirectionNone {
		return Block(ReasonStructureUnconfirmed)
	}

	if !s.baseRulePasses(c) {
		return Block(ReasonBaseRuleFailed)
	}

	card := domain.ScoreCard{
		Filters:    s.contextFilters(c),
		Confluence: confluenceFactors(c),
	}
	for _, f := range card.Filters {
		if f.Passed {
			card.FiltersPassed++
			card.Composite += f.Weight
		}
	}
	for _, f := range card.Confluence {
		if f.Passed {
			card.ConfluenceCount++
			card.Composite += f.Weight
		}
	}
	card.Composite += baseRuleWeight

	if card.FiltersPassed < s.cfg.MinFiltersPass {
		return Block(ReasonFiltersBelowMinimum)
	}

	for _, rule := range s.grades {
		if rule.matches(card.FiltersPassed, card.ConfluenceCount) {
			card.Grade = rule.grade
			break
		}
	}

	c.Card = card
	return Pass()
}

// baseRulePasses checks the entry trigger: RSI at an extreme, the EMA
// cross agreeing with the direction, and volume above its baseline.
func (s *scoreStage) baseRulePasses(c *Candidate) bool {
	snap := c.Snapshot

	if snap.VolumeRatio.LessThan(s.cfg.VolumeMultiplier) {
		return false
	}

	if c.Direction == domain.DirectionLong {
		return snap.RSI.LessThanOrEqual(s.cfg.RSIOversold) && snap.EMA9.GreaterThan(snap.EMA21)
	}
	return snap.RSI.GreaterThanOrEqual(s.cfg.RSIOverbought) && snap.EMA9.LessThan(snap.EMA21)
}

// contextFilters evaluates the six context filters, in fixed order.
func (s *scoreStage) contextFilters(c *Candidate) []domain.Factor {
	snap := c.Snapshot

	hour := snap.CapturedAt.UTC().Hour()
	session := hour >= sessionOpenHour && hour < sessionCloseHour

	funding, _ := snap.FundingRate.Float64()
	orderflow := true
	if c.Direction == domain.DirectionLong {
		orderflow = funding <= fundingExtremeRate
	} else {
		orderflow = funding >= -fundingExtremeRate
	}

	keyLevel := snap.SwingLow
	if c.Direction == domain.DirectionShort {
		keyLevel = snap.SwingHigh
	}
	nearKeyLevel := keyLevel.GreaterThan(decimal.Zero) &&
		snap.Price.Sub(keyLevel).Abs().LessThanOrEqual(snap.ATR.Mul(decimal.NewFromFloat(keyLevelATRMult)))

	aligned := c.Regime.Allows(c.Direction)

	independent := snap.Pair == s.cfg.ReferencePair
	if !independent {
		if last, ok := snap.LatestClosedCandle(); ok {
			independent = snap.VolumeRatio.GreaterThanOrEqual(decimal.NewFromInt(1)) &&
				last.Body().GreaterThanOrEqual(snap.ATR.Mul(decimal.NewFromFloat(impulseBodyATRMult)))
		}
	}

	sufficient := snap.ATRPercent().GreaterThanOrEqual(decimal.NewFromFloat(minATRPercent))

	return []domain.Factor{
		{Name: "session_activity", Weight: filterWeight, Passed: session,
			Detail: fmt.Sprintf("hour %02d UTC", hour)},
		{Name: "orderflow_pressure", Weight: filterWeight, Passed: orderflow,
			Detail: fmt.Sprintf("funding %s, oi %s", snap.FundingRate.String(), snap.OpenInterest.String())},
		{Name: "key_level_proximity", Weight: filterWeight, Passed: nearKeyLevel,
			Detail: fmt.Sprintf("level %s", keyLevel.String())},
		{Name: "reference_alignment", Weight: filterWeight, Passed: aligned,
			Detail: fmt.Sprintf("regime %s", c.Regime.Class)},
		{Name: "correlation_independence", Weight: filterWeight, Passed: independent},
		{Name: "volatility_sufficiency", Weight: filterWeight, Passed: sufficient,
			Detail: fmt.Sprintf("atr %s%%", snap.ATRPercent().StringFixed(2))},
	}
}

// confluenceFactors maps the structure verdict into the four smart-money
// confluence factors.
func confluenceFactors(c *Candidate) []domain.Factor {
	v := c.Structure
	return []domain.Factor{
		{Name: "structure_bias", Weight: confluenceWeight,
			Passed: v.Confirmed && v.Bias == c.Direction,
			Detail: string(v.Kind)},
		{Name: "order_block", Weight: confluenceWeight, Passed: v.OrderBlock},
		{Name: "fair_value_gap", Weight: confluenceWeight, Passed: v.FairValueGap},
		{Name: "premium_discount", Weight: confluenceWeight, Passed: v.PremiumDiscount},
	}
}
