// Package notifier delivers finalized trade signals to a notification
// channel. Delivery failures are retried with backoff and never roll back
// risk-state mutations already committed for the signal.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/internal/domain"
)

// Notifier delivers signal and status messages.
type Notifier interface {
	// NotifySignal delivers a finalized trade signal with its factor
	// breakdown.
	NotifySignal(ctx context.Context, sig *domain.TradeSignal) error
	// NotifyText delivers a free-form status message.
	NotifyText(ctx context.Context, text string) error
}

// LogNotifier writes notifications to the process log. Used when no
// delivery channel is configured, and as the fallback sink.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifySignal(_ context.Context, sig *domain.TradeSignal) error {
	n.logger.Info("signal published",
		zap.String("pair", sig.Pair.String()),
		zap.String("direction", sig.Direction.String()),
		zap.String("grade", string(sig.Grade)),
		zap.String("entry", sig.Entry.String()),
		zap.String("stop", sig.StopLoss.String()),
		zap.String("target", sig.TakeProfit.String()),
		zap.String("rr", sig.RiskReward.StringFixed(2)))
	return nil
}

func (n *LogNotifier) NotifyText(_ context.Context, text string) error {
	n.logger.Info("notification", zap.String("text", text))
	return nil
}

// FormatSignal renders a trade signal as a human-readable message with the
// full filter and confluence breakdown.
func FormatSignal(sig *domain.TradeSignal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s [%s]\n", sig.Direction, sig.Pair.String(), sig.Grade)
	fmt.Fprintf(&b, "Entry:  %s\n", sig.Entry.String())
	fmt.Fprintf(&b, "Stop:   %s\n", sig.StopLoss.String())
	fmt.Fprintf(&b, "Target: %s\n", sig.TakeProfit.String())
	fmt.Fprintf(&b, "R:R %s | Size %s (risk %s%%",
		sig.RiskReward.StringFixed(2), sig.Contracts.StringFixed(6), sig.RiskPercent.StringFixed(2))
	if !sig.SizeFactor.Equal(decimal.NewFromInt(1)) {
		fmt.Fprintf(&b, ", x%s", sig.SizeFactor.String())
	}
	b.WriteString(")\n")

	fmt.Fprintf(&b, "Regime: %s (%d)\n", sig.Regime.Class, sig.Regime.Confidence)
	fmt.Fprintf(&b, "Structure: %d/%d\n", sig.StructureScore, domain.StructureScoreMax)

	fmt.Fprintf(&b, "Filters %d/6:\n", sig.ScoreCard.FiltersPassed)
	for _, f := range sig.ScoreCard.Filters {
		b.WriteString(factorLine(f))
	}
	fmt.Fprintf(&b, "Confluence %d/4:\n", sig.ScoreCard.ConfluenceCount)
	for _, f := range sig.ScoreCard.Confluence {
		b.WriteString(factorLine(f))
	}

	return b.String()
}

func factorLine(f domain.Factor) string {
	mark := "-"
	if f.Passed {
		mark = "+"
	}
	if f.Detail != "" {
		return fmt.Sprintf("  %s %s (%s)\n", mark, f.Name, f.Detail)
	}
	return fmt.Sprintf("  %s %s\n", mark, f.Name)
}
