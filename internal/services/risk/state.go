package risk

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// State the trading day's cumulative risk state. It is the only piece of
// state that outlives an evaluation cycle. Owned exclusively by the Manager;
// every read and mutation goes through the Manager's lock.
type State struct {
	// Day trading day in UTC, format 2006-01-02.
	Day string `json:"day"`
	// RealizedPnLPercent cumulative realized P&L today, percent of account.
	RealizedPnLPercent decimal.Decimal `json:"realized_pnl_percent"`
	// ConsecutiveStops consecutive stop-loss outcomes today.
	ConsecutiveStops int `json:"consecutive_stops"`
	// SignalsToday signals committed today.
	SignalsToday int `json:"signals_today"`
	// ReservedRisk quote-currency risk reserved by open positions.
	ReservedRisk decimal.Decimal `json:"reserved_risk"`
	// DayLocked no further approvals until the next day boundary.
	DayLocked bool `json:"day_locked"`
	// LockReason why the day lock engaged.
	LockReason string `json:"lock_reason,omitempty"`
	// Halted fail-closed state after corruption, cleared only manually.
	Halted bool `json:"halted"`
	// Positions open positions keyed by pair string.
	Positions map[string]*domain.Position `json:"positions"`
}

func newState(day string) *State {
	return &State{
		Day:                day,
		RealizedPnLPercent: decimal.Zero,
		ReservedRisk:       decimal.Zero,
		Positions:          make(map[string]*domain.Position),
	}
}

// validate reports an impossible invariant. A failing state must halt
// signal production rather than guess and continue.
func (s *State) validate() error {
	if s.ConsecutiveStops < 0 {
		return errors.Errorf("negative consecutive stop count: %d", s.ConsecutiveStops)
	}
	if s.SignalsToday < 0 {
		return errors.Errorf("negative signals-today counter: %d", s.SignalsToday)
	}
	if s.ReservedRisk.LessThan(decimal.Zero) {
		return errors.Errorf("negative reserved risk: %s", s.ReservedRisk)
	}
	for key, pos := range s.Positions {
		if pos == nil {
			return errors.Errorf("nil position under key %s", key)
		}
		if pos.Contracts.LessThan(decimal.Zero) {
			return errors.Errorf("%s: negative position size %s", key, pos.Contracts)
		}
	}
	return nil
}

// resetForDay starts a fresh trading day. Open positions survive the
// boundary; counters, locks and realized P&L do not.
func (s *State) resetForDay(day string) {
	s.Day = day
	s.RealizedPnLPercent = decimal.Zero
	s.ConsecutiveStops = 0
	s.SignalsToday = 0
	s.DayLocked = false
	s.LockReason = ""
	if s.Positions == nil {
		s.Positions = make(map[string]*domain.Position)
	}
}

// StateView read-only copy of the risk state for logging and the status page.
type StateView struct {
	Day                string          `json:"day"`
	RealizedPnLPercent decimal.Decimal `json:"realized_pnl_percent"`
	ConsecutiveStops   int             `json:"consecutive_stops"`
	SignalsToday       int             `json:"signals_today"`
	ReservedRisk       decimal.Decimal `json:"reserved_risk"`
	DayLocked          bool            `json:"day_locked"`
	LockReason         string          `json:"lock_reason,omitempty"`
	Halted             bool            `json:"halted"`
	OpenPositions      []domain.Position `json:"open_positions"`
}

func tradingDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
