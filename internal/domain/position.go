package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Position an open position tracked by the risk manager.
type Position struct {
	Pair       Pair            `json:"pair"`
	Direction  Direction       `json:"direction"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	// InitialStopLoss stop at entry, before any break-even move. Defines 1R.
	InitialStopLoss decimal.Decimal `json:"initial_stop_loss"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	// Notional position value in quote currency.
	Notional decimal.Decimal `json:"notional"`
	// Contracts remaining base-asset size.
	Contracts decimal.Decimal `json:"contracts"`
	// InitialContracts size at entry, before partial exits.
	InitialContracts decimal.Decimal `json:"initial_contracts"`
	// RiskAmount quote-currency risk reserved against the daily budget.
	RiskAmount decimal.Decimal `json:"risk_amount"`
	OpenedAt   time.Time       `json:"opened_at"`
	// PartialExited 70% of the initial size has been marked exited.
	PartialExited bool `json:"partial_exited"`
	// BreakEvenMoved stop has been moved to the entry price.
	BreakEvenMoved bool `json:"break_even_moved"`
}

// NewPosition constructs a position opened for an approved signal.
func NewPosition(pair Pair, dir Direction, entry, stop, target, notional, contracts, riskAmount decimal.Decimal, openedAt time.Time) (*Position, error) {
	if contracts.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position size must be greater than zero")
	}
	if entry.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}
	if stop.Equal(entry) {
		return nil, errors.New("stop must differ from entry")
	}

	return &Position{
		Pair:             pair,
		Direction:        dir,
		EntryPrice:       entry,
		StopLoss:         stop,
		InitialStopLoss:  stop,
		TakeProfit:       target,
		Notional:         notional,
		Contracts:        contracts,
		InitialContracts: contracts,
		RiskAmount:       riskAmount,
		OpenedAt:         openedAt,
	}, nil
}

// StopDistance entry-to-initial-stop distance, one R unit. Unaffected by a
// later break-even move.
func (p *Position) StopDistance() decimal.Decimal {
	return p.EntryPrice.Sub(p.InitialStopLoss).Abs()
}

// Progress unrealized profit at the given price, expressed in R units.
func (p *Position) Progress(price decimal.Decimal) decimal.Decimal {
	dist := p.StopDistance()
	if dist.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if p.Direction == DirectionShort {
		return p.EntryPrice.Sub(price).Div(dist)
	}
	return price.Sub(p.EntryPrice).Div(dist)
}

// FavorablePercent favorable price move since entry, in percent.
// Negative values mean the position is under water.
func (p *Position) FavorablePercent(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	move := price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
	if p.Direction == DirectionShort {
		return move.Neg()
	}
	return move
}

// MarkPartialExit marks the given fraction of the initial size as exited
// and keeps the remainder running. Returns false when already applied.
func (p *Position) MarkPartialExit(fraction decimal.Decimal) bool {
	if p.PartialExited || fraction.LessThanOrEqual(decimal.Zero) || fraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return false
	}
	p.Contracts = p.InitialContracts.Mul(decimal.NewFromInt(1).Sub(fraction))
	p.PartialExited = true
	return true
}

// ExitedContracts base-asset size already taken off via partial exit.
func (p *Position) ExitedContracts() decimal.Decimal {
	return p.InitialContracts.Sub(p.Contracts)
}

// MoveStopToBreakEven lifts the stop to the entry price. Returns false
// when already applied.
func (p *Position) MoveStopToBreakEven() bool {
	if p.BreakEvenMoved {
		return false
	}
	p.StopLoss = p.EntryPrice
	p.BreakEvenMoved = true
	return true
}

// PnLPercent realized percentage move for an exit at the given price.
func (p *Position) PnLPercent(exit decimal.Decimal) decimal.Decimal {
	return p.FavorablePercent(exit)
}
