// Package monitor detects stop-loss and take-profit hits on open positions
// from candle data. It produces the trade-outcome feed consumed by the risk
// manager.
package monitor

import (
	"time"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// Detect checks a candle against an open position's levels. When the candle
// touched both the stop and the target, the stop wins: the conservative
// reading protects the loss-streak and drawdown accounting.
func Detect(pos *domain.Position, candle domain.MarketCandle) (domain.TradeOutcome, bool) {
	var stopHit, targetHit bool

	if pos.Direction == domain.DirectionLong {
		stopHit = candle.Low.LessThanOrEqual(pos.StopLoss)
		targetHit = candle.High.GreaterThanOrEqual(pos.TakeProfit)
	} else {
		stopHit = candle.High.GreaterThanOrEqual(pos.StopLoss)
		targetHit = candle.Low.LessThanOrEqual(pos.TakeProfit)
	}

	at := candle.CloseTime
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch {
	case stopHit:
		return domain.TradeOutcome{
			Pair:       pos.Pair,
			Kind:       domain.OutcomeStopLoss,
			ExitPrice:  pos.StopLoss,
			PnLPercent: pos.PnLPercent(pos.StopLoss),
			At:         at,
		}, true
	case targetHit:
		return domain.TradeOutcome{
			Pair:       pos.Pair,
			Kind:       domain.OutcomeTakeProfit,
			ExitPrice:  pos.TakeProfit,
			PnLPercent: pos.PnLPercent(pos.TakeProfit),
			At:         at,
		}, true
	default:
		return domain.TradeOutcome{}, false
	}
}
