package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/config"
	"github.com/signalpipe/signalpipe/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		AccountSize:         decimal.NewFromInt(10000),
		ATRStopMult:         decimal.NewFromFloat(1.5),
		MaxSignalsPerDay:    3,
		MaxOpenPositions:    1,
		RiskPercentMin:      decimal.NewFromInt(1),
		RiskPercentMax:      decimal.NewFromInt(2),
		Leverage:            15,
		MaxDrawdownPercent:  decimal.NewFromInt(2),
		MaxConsecutiveStops: 2,
	}
}

func newTestManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func ethPair() domain.Pair {
	return domain.Pair{From: "ETH", To: "USDT"}
}

func testSignal(pair domain.Pair, entry, stop, target, notional, contracts float64) *domain.TradeSignal {
	return &domain.TradeSignal{
		ID:         "test-signal",
		Pair:       pair,
		Direction:  domain.DirectionLong,
		Entry:      decimal.NewFromFloat(entry),
		StopLoss:   decimal.NewFromFloat(stop),
		TakeProfit: decimal.NewFromFloat(target),
		Grade:      domain.GradeA,
		Notional:   decimal.NewFromFloat(notional),
		Contracts:  decimal.NewFromFloat(contracts),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestApproveSizing(t *testing.T) {
	m := newTestManager(t, testConfig())

	approval, veto := m.Approve(ethPair(), decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.Empty(t, veto)

	// Risk percent stays inside the configured band.
	assert.True(t, approval.RiskPercent.GreaterThanOrEqual(decimal.NewFromInt(1)))
	assert.True(t, approval.RiskPercent.LessThanOrEqual(decimal.NewFromInt(2)))

	// Size is strictly positive and risk matches notional times stop distance.
	assert.True(t, approval.Contracts.GreaterThan(decimal.Zero))
	stopDistPct := decimal.NewFromFloat(0.015) // ATR 1 x 1.5 on entry 100
	assert.True(t, approval.RiskAmount.Sub(approval.Notional.Mul(stopDistPct)).Abs().LessThan(decimal.NewFromFloat(0.0001)))
}

func TestApproveRiskBand(t *testing.T) {
	m := newTestManager(t, testConfig())

	// Calm instrument earns the top of the band.
	calm, veto := m.Approve(ethPair(), decimal.NewFromInt(100), decimal.NewFromFloat(0.3), decimal.NewFromInt(1))
	require.Empty(t, veto)
	assert.True(t, calm.RiskPercent.Equal(decimal.NewFromInt(2)))

	// Volatile instrument is pinned to the bottom.
	wild, veto := m.Approve(ethPair(), decimal.NewFromInt(100), decimal.NewFromFloat(2.5), decimal.NewFromInt(1))
	require.Empty(t, veto)
	assert.True(t, wild.RiskPercent.Equal(decimal.NewFromInt(1)))
}

func TestApproveRejectsZeroSize(t *testing.T) {
	m := newTestManager(t, testConfig())

	_, veto := m.Approve(ethPair(), decimal.NewFromInt(100), decimal.Zero, decimal.NewFromInt(1))
	assert.Equal(t, VetoZeroSize, veto)

	_, veto = m.Approve(ethPair(), decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.Zero)
	assert.Equal(t, VetoZeroSize, veto)
}

func TestConsecutiveStopsLockDay(t *testing.T) {
	m := newTestManager(t, testConfig())
	pair := ethPair()

	for i := 0; i < 2; i++ {
		require.NoError(t, m.Commit(testSignal(pair, 100, 99, 103, 1000, 10)))
		require.NoError(t, m.RecordOutcome(domain.TradeOutcome{
			Pair:      pair,
			Kind:      domain.OutcomeStopLoss,
			ExitPrice: decimal.NewFromInt(99),
			At:        time.Now().UTC(),
		}))
	}

	view := m.Snapshot()
	assert.True(t, view.DayLocked)
	assert.Equal(t, lockReasonStops, view.LockReason)

	// Even a perfect candidate is vetoed until the day boundary.
	_, veto := m.Approve(pair, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Equal(t, VetoDayLock, veto)
}

func TestTakeProfitResetsStopCounter(t *testing.T) {
	m := newTestManager(t, testConfig())
	pair := ethPair()

	require.NoError(t, m.Commit(testSignal(pair, 100, 99, 103, 1000, 10)))
	require.NoError(t, m.RecordOutcome(domain.TradeOutcome{
		Pair: pair, Kind: domain.OutcomeStopLoss, ExitPrice: decimal.NewFromInt(99),
	}))
	require.Equal(t, 1, m.Snapshot().ConsecutiveStops)

	require.NoError(t, m.Commit(testSignal(pair, 100, 99, 103, 1000, 10)))
	require.NoError(t, m.RecordOutcome(domain.TradeOutcome{
		Pair: pair, Kind: domain.OutcomeTakeProfit, ExitPrice: decimal.NewFromInt(103),
	}))

	view := m.Snapshot()
	assert.Equal(t, 0, view.ConsecutiveStops)
	assert.False(t, view.DayLocked)
}

func TestDrawdownLocksDay(t *testing.T) {
	m := newTestManager(t, testConfig())
	pair := ethPair()

	// One large loss: 250 contracts losing 1 each is -2.5% of the account.
	require.NoError(t, m.Commit(testSignal(pair, 100, 99, 103, 25000, 250)))
	require.NoError(t, m.RecordOutcome(domain.TradeOutcome{
		Pair: pair, Kind: domain.OutcomeStopLoss, ExitPrice: decimal.NewFromInt(99),
	}))

	view := m.Snapshot()
	assert.True(t, view.DayLocked)
	assert.Equal(t, lockReasonDrawdown, view.LockReason)

	_, veto := m.Approve(pair, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Equal(t, VetoDayLock, veto)
}

func TestOpenPositionCap(t *testing.T) {
	m := newTestManager(t, testConfig())

	require.NoError(t, m.Commit(testSignal(ethPair(), 100, 99, 103, 1000, 10)))

	_, veto := m.Approve(domain.Pair{From: "SOL", To: "USDT"}, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Equal(t, VetoPositionCap, veto)
}

func TestApprovePairAlreadyOpen(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 2
	m := newTestManager(t, cfg)

	require.NoError(t, m.Commit(testSignal(ethPair(), 100, 99, 103, 1000, 10)))

	// The pair with an open position is vetoed even with a free slot.
	_, veto := m.Approve(ethPair(), decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Equal(t, VetoPairOpen, veto)

	// A different pair still fits into the remaining slot.
	_, veto = m.Approve(domain.Pair{From: "SOL", To: "USDT"}, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Empty(t, veto)
}

func TestDailySignalCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSignalsPerDay = 2
	cfg.MaxOpenPositions = 5
	m := newTestManager(t, cfg)

	require.NoError(t, m.Commit(testSignal(ethPair(), 100, 99, 103, 1000, 10)))
	require.NoError(t, m.Commit(testSignal(domain.Pair{From: "SOL", To: "USDT"}, 100, 99, 103, 1000, 10)))

	_, veto := m.Approve(domain.Pair{From: "XRP", To: "USDT"}, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Equal(t, VetoSignalCap, veto)
}

func TestManagePositionsStandingRules(t *testing.T) {
	m := newTestManager(t, testConfig())
	pair := ethPair()

	// Entry 100, stop 98: 1R is two points.
	require.NoError(t, m.Commit(testSignal(pair, 100, 98, 106, 1000, 10)))

	updates := m.ManagePositions(map[string]decimal.Decimal{
		pair.String(): decimal.NewFromInt(102),
	})
	require.Len(t, updates, 2)

	actions := []string{updates[0].Action, updates[1].Action}
	assert.Contains(t, actions, "partial_exit")
	assert.Contains(t, actions, "break_even")

	pos, ok := m.OpenPosition(pair)
	require.True(t, ok)
	assert.True(t, pos.PartialExited)
	assert.True(t, pos.BreakEvenMoved)
	assert.True(t, pos.StopLoss.Equal(pos.EntryPrice))
	// 70% of the initial size is off, 30% keeps running.
	assert.True(t, pos.Contracts.Equal(decimal.NewFromInt(3)))

	// Standing rules are idempotent across cycles.
	updates = m.ManagePositions(map[string]decimal.Decimal{
		pair.String(): decimal.NewFromInt(103),
	})
	assert.Empty(t, updates)
}

func TestBreakEvenOnlyBelowOneR(t *testing.T) {
	m := newTestManager(t, testConfig())
	pair := ethPair()

	// Entry 100, stop 98: +0.6% favorable is below 1R.
	require.NoError(t, m.Commit(testSignal(pair, 100, 98, 106, 1000, 10)))

	updates := m.ManagePositions(map[string]decimal.Decimal{
		pair.String(): decimal.NewFromFloat(100.6),
	})
	require.Len(t, updates, 1)
	assert.Equal(t, "break_even", updates[0].Action)

	pos, ok := m.OpenPosition(pair)
	require.True(t, ok)
	assert.False(t, pos.PartialExited)
	assert.True(t, pos.BreakEvenMoved)
}

func TestDayBoundaryReset(t *testing.T) {
	m := newTestManager(t, testConfig())
	pair := ethPair()

	require.NoError(t, m.Commit(testSignal(pair, 100, 99, 103, 1000, 10)))
	require.NoError(t, m.RecordOutcome(domain.TradeOutcome{
		Pair: pair, Kind: domain.OutcomeStopLoss, ExitPrice: decimal.NewFromInt(99),
	}))
	require.NoError(t, m.Commit(testSignal(pair, 100, 99, 103, 1000, 10)))
	require.NoError(t, m.RecordOutcome(domain.TradeOutcome{
		Pair: pair, Kind: domain.OutcomeStopLoss, ExitPrice: decimal.NewFromInt(99),
	}))
	require.True(t, m.Snapshot().DayLocked)

	reset := m.ResetDay(time.Now().UTC().Add(24 * time.Hour))
	require.True(t, reset)

	view := m.Snapshot()
	assert.False(t, view.DayLocked)
	assert.Equal(t, 0, view.ConsecutiveStops)
	assert.Equal(t, 0, view.SignalsToday)

	_, veto := m.Approve(pair, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Empty(t, veto)
}

func TestResetDaySameDayNoop(t *testing.T) {
	m := newTestManager(t, testConfig())
	assert.False(t, m.ResetDay(time.Now().UTC()))
}

func TestStateSurvivesRestart(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()

	m, err := NewManager(cfg, dir, zap.NewNop())
	require.NoError(t, err)

	pair := ethPair()
	require.NoError(t, m.Commit(testSignal(pair, 100, 98, 106, 1000, 10)))
	require.NoError(t, m.Close())

	recovered, err := NewManager(cfg, dir, zap.NewNop())
	require.NoError(t, err)
	defer recovered.Close()

	view := recovered.Snapshot()
	assert.Equal(t, 1, view.SignalsToday)
	require.Len(t, view.OpenPositions, 1)
	assert.Equal(t, pair, view.OpenPositions[0].Pair)
	assert.True(t, view.OpenPositions[0].EntryPrice.Equal(decimal.NewFromInt(100)))
}

func TestPartialExitProfitCountedOnStop(t *testing.T) {
	m := newTestManager(t, testConfig())
	pair := ethPair()

	require.NoError(t, m.Commit(testSignal(pair, 100, 98, 106, 1000, 10)))
	m.ManagePositions(map[string]decimal.Decimal{pair.String(): decimal.NewFromInt(102)})

	// The remainder stops out at break-even; the 1R tranche keeps its gain.
	require.NoError(t, m.RecordOutcome(domain.TradeOutcome{
		Pair: pair, Kind: domain.OutcomeStopLoss, ExitPrice: decimal.NewFromInt(100),
	}))

	view := m.Snapshot()
	// 7 contracts realized 2 points each: +14 on a 10k account.
	assert.True(t, view.RealizedPnLPercent.Equal(decimal.NewFromFloat(0.14)))
	// A break-even stop is not a loss.
	assert.Equal(t, 0, view.ConsecutiveStops)
}
