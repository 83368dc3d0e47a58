// Package risk implements the stateful approval gate of the signal pipeline.
// The Manager owns the trading day's RiskState: veto checks, size
// reservation, trade-outcome accounting, partial-exit and break-even rules,
// and the day-boundary reset. All access is serialized through one lock so
// two instruments can never reserve budget that together exceeds the cap.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/config"
	"github.com/signalpipe/signalpipe/internal/domain"
)

// Veto reason codes. A veto is a normal outcome, not a process failure.
const (
	VetoHalted      = "risk_state_halted"
	VetoDayLock     = "risk_day_lock"
	VetoSignalCap   = "risk_daily_signal_cap"
	VetoPositionCap = "risk_position_cap"
	VetoPairOpen    = "risk_pair_position_open"
	VetoZeroSize    = "risk_zero_size"
)

const (
	lockReasonStops    = "consecutive_stops"
	lockReasonDrawdown = "drawdown"

	// partialExitFraction share of the position closed at 1R.
	partialExitFraction = 0.7
	// breakEvenTriggerPct favorable move that lifts the stop to entry.
	breakEvenTriggerPct = 0.5
)

// Approval sizing computed for an approved candidate.
type Approval struct {
	RiskPercent decimal.Decimal
	RiskAmount  decimal.Decimal
	Notional    decimal.Decimal
	Contracts   decimal.Decimal
}

// Manager the single writer of the risk state.
type Manager struct {
	mu     sync.Mutex
	cfg    *config.Config
	state  *State
	store  *walStore
	logger *zap.Logger
}

// NewManager opens the risk WAL under dir and recovers the persisted state.
// A state that fails validation halts the manager: it will veto everything
// until the operator repairs or removes the WAL.
func NewManager(cfg *config.Config, dir string, logger *zap.Logger) (*Manager, error) {
	store, err := newWALStore(dir)
	if err != nil {
		return nil, err
	}

	state, err := store.load()
	if err != nil {
		return nil, err
	}

	today := tradingDay(time.Now())
	if state == nil {
		state = newState(today)
	} else if err := state.validate(); err != nil {
		logger.Error("recovered risk state is corrupted, halting signal production", zap.Error(err))
		state.Halted = true
	} else if state.Day != today {
		state.resetForDay(today)
	}

	m := &Manager{cfg: cfg, state: state, store: store, logger: logger}
	if err := m.store.save(m.state); err != nil {
		return nil, errors.Wrap(err, "persist recovered risk state")
	}

	return m, nil
}

// Approve runs the veto checks and computes position size for a candidate.
// Read-only: the budget is reserved later by Commit, after the finalizer's
// risk:reward gate has passed. Returns a non-empty veto reason on rejection.
func (m *Manager) Approve(pair domain.Pair, entry, atr, sizeFactor decimal.Decimal) (Approval, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Halted {
		return Approval{}, VetoHalted
	}
	if m.state.DayLocked {
		return Approval{}, VetoDayLock
	}
	if m.state.RealizedPnLPercent.LessThanOrEqual(m.cfg.MaxDrawdownPercent.Neg()) {
		m.lockDay(lockReasonDrawdown)
		return Approval{}, VetoDayLock
	}
	if m.state.SignalsToday >= m.cfg.MaxSignalsPerDay {
		return Approval{}, VetoSignalCap
	}
	if len(m.state.Positions) >= m.cfg.MaxOpenPositions {
		return Approval{}, VetoPositionCap
	}
	if _, exists := m.state.Positions[pair.String()]; exists {
		return Approval{}, VetoPairOpen
	}

	approval, ok := m.size(entry, atr, sizeFactor)
	if !ok {
		return Approval{}, VetoZeroSize
	}

	return approval, ""
}

// size computes position sizing from the risk-percent band, the stop
// distance, and account equity, capped by leverage. Returns false when the
// resulting size is not strictly positive.
func (m *Manager) size(entry, atr, sizeFactor decimal.Decimal) (Approval, bool) {
	if entry.LessThanOrEqual(decimal.Zero) || atr.LessThanOrEqual(decimal.Zero) {
		return Approval{}, false
	}

	atrPercent := atr.Div(entry).Mul(decimal.NewFromInt(100))
	riskPercent := m.riskPercentFor(atrPercent)

	riskAmount := m.cfg.AccountSize.Mul(riskPercent).Div(decimal.NewFromInt(100)).Mul(sizeFactor)
	stopDistance := atr.Mul(m.cfg.ATRStopMult)
	stopDistancePct := stopDistance.Div(entry)
	if stopDistancePct.LessThanOrEqual(decimal.Zero) {
		return Approval{}, false
	}

	notional := riskAmount.Div(stopDistancePct)
	maxNotional := m.cfg.AccountSize.Mul(decimal.NewFromInt(int64(m.cfg.Leverage)))
	if notional.GreaterThan(maxNotional) {
		notional = maxNotional
		riskAmount = notional.Mul(stopDistancePct)
	}

	contracts := notional.Div(entry)
	if contracts.LessThanOrEqual(decimal.Zero) {
		return Approval{}, false
	}

	return Approval{
		RiskPercent: riskPercent,
		RiskAmount:  riskAmount,
		Notional:    notional,
		Contracts:   contracts,
	}, true
}

// riskPercentFor maps the instrument's ATR% into the configured risk band:
// calm markets earn the top of the band, volatile markets the bottom,
// linear in between.
func (m *Manager) riskPercentFor(atrPercent decimal.Decimal) decimal.Decimal {
	calm := decimal.NewFromFloat(0.5)
	wild := decimal.NewFromInt(2)

	if atrPercent.LessThanOrEqual(calm) {
		return m.cfg.RiskPercentMax
	}
	if atrPercent.GreaterThanOrEqual(wild) {
		return m.cfg.RiskPercentMin
	}

	span := m.cfg.RiskPercentMax.Sub(m.cfg.RiskPercentMin)
	fraction := wild.Sub(atrPercent).Div(wild.Sub(calm))
	return m.cfg.RiskPercentMin.Add(span.Mul(fraction))
}

// Commit reserves the approved signal against the day's budget: opens the
// tracked position, bumps the signal counter, and persists the state.
// Called after the finalizer accepted the signal; never rolled back, even
// if notification delivery later fails.
func (m *Manager) Commit(sig *domain.TradeSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Halted {
		return errors.New("risk state is halted")
	}

	key := sig.Pair.String()
	if _, exists := m.state.Positions[key]; exists {
		return errors.Errorf("position already open for %s", key)
	}

	riskAmount := sig.Notional.Mul(sig.Entry.Sub(sig.StopLoss).Abs().Div(sig.Entry))
	pos, err := domain.NewPosition(sig.Pair, sig.Direction, sig.Entry, sig.StopLoss, sig.TakeProfit,
		sig.Notional, sig.Contracts, riskAmount, sig.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "open position for signal")
	}

	m.state.Positions[key] = pos
	m.state.SignalsToday++
	m.state.ReservedRisk = m.state.ReservedRisk.Add(riskAmount)

	return m.persist()
}

// RecordOutcome applies a stop-loss or take-profit report for an open
// position: realizes P&L, updates the consecutive-stop counter, releases
// the reserved risk, and engages the day lock when a cap is breached.
func (m *Manager) RecordOutcome(o domain.TradeOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := o.Pair.String()
	pos, exists := m.state.Positions[key]
	if !exists {
		return errors.Errorf("no open position for %s", key)
	}

	pnl := m.realizedQuotePnL(pos, o.ExitPrice)
	pnlPercent := decimal.Zero
	if m.cfg.AccountSize.GreaterThan(decimal.Zero) {
		pnlPercent = pnl.Div(m.cfg.AccountSize).Mul(decimal.NewFromInt(100))
	}
	m.state.RealizedPnLPercent = m.state.RealizedPnLPercent.Add(pnlPercent)

	switch o.Kind {
	case domain.OutcomeStopLoss:
		// A break-even stop that exits flat or better is not a loss.
		if pnl.LessThan(decimal.Zero) {
			m.state.ConsecutiveStops++
		}
	case domain.OutcomeTakeProfit:
		m.state.ConsecutiveStops = 0
	}

	delete(m.state.Positions, key)
	m.state.ReservedRisk = m.state.ReservedRisk.Sub(pos.RiskAmount)
	if m.state.ReservedRisk.LessThan(decimal.Zero) {
		m.state.ReservedRisk = decimal.Zero
	}

	if m.state.ConsecutiveStops >= m.cfg.MaxConsecutiveStops {
		m.lockDay(lockReasonStops)
	}
	if m.state.RealizedPnLPercent.LessThanOrEqual(m.cfg.MaxDrawdownPercent.Neg()) {
		m.lockDay(lockReasonDrawdown)
	}

	m.logger.Info("trade outcome recorded",
		zap.String("pair", key),
		zap.String("kind", string(o.Kind)),
		zap.String("pnl_percent", pnlPercent.StringFixed(3)),
		zap.String("day_pnl_percent", m.state.RealizedPnLPercent.StringFixed(3)),
		zap.Int("consecutive_stops", m.state.ConsecutiveStops),
		zap.Bool("day_locked", m.state.DayLocked))

	return m.persist()
}

// realizedQuotePnL values the exit of the remaining contracts plus, when a
// partial exit was taken, the 70% tranche realized at 1R.
func (m *Manager) realizedQuotePnL(pos *domain.Position, exit decimal.Decimal) decimal.Decimal {
	move := exit.Sub(pos.EntryPrice)
	if pos.Direction == domain.DirectionShort {
		move = move.Neg()
	}
	pnl := move.Mul(pos.Contracts)

	if pos.PartialExited {
		pnl = pnl.Add(pos.StopDistance().Mul(pos.ExitedContracts()))
	}

	return pnl
}

// PositionUpdate standing-rule action applied to an open position.
type PositionUpdate struct {
	Pair   domain.Pair
	Action string
	Detail string
}

// ManagePositions applies the standing rules to every open position:
// unrealized profit at or beyond 1R marks 70% of the size partial-exited,
// a +0.5% favorable move lifts the stop to break-even. Runs every cycle,
// independent of whether any new signal is produced.
func (m *Manager) ManagePositions(prices map[string]decimal.Decimal) []PositionUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updates []PositionUpdate
	changed := false

	for key, pos := range m.state.Positions {
		price, ok := prices[key]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			continue
		}

		if pos.Progress(price).GreaterThanOrEqual(decimal.NewFromInt(1)) {
			if pos.MarkPartialExit(decimal.NewFromFloat(partialExitFraction)) {
				changed = true
				updates = append(updates, PositionUpdate{
					Pair:   pos.Pair,
					Action: "partial_exit",
					Detail: fmt.Sprintf("closed %s at 1R, %s remaining", pos.ExitedContracts().StringFixed(6), pos.Contracts.StringFixed(6)),
				})
			}
		}

		if pos.FavorablePercent(price).GreaterThanOrEqual(decimal.NewFromFloat(breakEvenTriggerPct)) {
			if pos.MoveStopToBreakEven() {
				changed = true
				updates = append(updates, PositionUpdate{
					Pair:   pos.Pair,
					Action: "break_even",
					Detail: fmt.Sprintf("stop moved to entry %s", pos.EntryPrice.String()),
				})
			}
		}
	}

	if changed {
		if err := m.persist(); err != nil {
			m.logger.Error("failed to persist position updates", zap.Error(err))
		}
	}

	return updates
}

// ResetDay resets counters and locks at a trading-day boundary. Open
// positions survive the reset. Returns true when a reset happened.
func (m *Manager) ResetDay(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := tradingDay(now)
	if m.state.Day == day {
		return false
	}

	m.state.resetForDay(day)
	if err := m.persist(); err != nil {
		m.logger.Error("failed to persist day reset", zap.Error(err))
	}

	m.logger.Info("trading day reset", zap.String("day", day))
	return true
}

// Snapshot returns a read-only copy of the current state.
func (m *Manager) Snapshot() StateView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := StateView{
		Day:                m.state.Day,
		RealizedPnLPercent: m.state.RealizedPnLPercent,
		ConsecutiveStops:   m.state.ConsecutiveStops,
		SignalsToday:       m.state.SignalsToday,
		ReservedRisk:       m.state.ReservedRisk,
		DayLocked:          m.state.DayLocked,
		LockReason:         m.state.LockReason,
		Halted:             m.state.Halted,
	}
	for _, pos := range m.state.Positions {
		view.OpenPositions = append(view.OpenPositions, *pos)
	}
	return view
}

// OpenPositionPairs returns the pairs with a tracked open position.
func (m *Manager) OpenPositionPairs() []domain.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairs := make([]domain.Pair, 0, len(m.state.Positions))
	for _, pos := range m.state.Positions {
		pairs = append(pairs, pos.Pair)
	}
	return pairs
}

// OpenPosition returns a copy of the open position for the pair, if any.
func (m *Manager) OpenPosition(pair domain.Pair) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.state.Positions[pair.String()]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Halted reports whether the manager is in the fail-closed state.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Halted
}

// Close flushes and closes the underlying WAL.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.close()
}

// lockDay engages the day lock. Caller holds the lock.
func (m *Manager) lockDay(reason string) {
	if m.state.DayLocked {
		return
	}
	m.state.DayLocked = true
	m.state.LockReason = reason
	m.logger.Warn("risk day lock engaged", zap.String("reason", reason))
}

// persist validates and saves the state. Validation failure halts the
// manager: capital-protection gates fail closed. Caller holds the lock.
func (m *Manager) persist() error {
	if err := m.state.validate(); err != nil {
		m.state.Halted = true
		m.logger.Error("risk state invariant violated, halting signal production", zap.Error(err))
	}
	return m.store.save(m.state)
}
