package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/pkg/retrier"
)

func fastRetrier() *retrier.Retrier {
	return retrier.New(
		retrier.WithInitialInterval(time.Millisecond),
		retrier.WithMaxInterval(2*time.Millisecond),
		retrier.WithMaxRetries(3),
	)
}

func sampleSignal() *domain.TradeSignal {
	return &domain.TradeSignal{
		ID:         "sig-1",
		Pair:       domain.Pair{From: "ETH", To: "USDT"},
		Direction:  domain.DirectionLong,
		Entry:      decimal.NewFromInt(100),
		StopLoss:   decimal.NewFromFloat(98.5),
		TakeProfit: decimal.NewFromInt(103),
		RiskReward: decimal.NewFromInt(2),
		Grade:      domain.GradeAPlus,
		Contracts:  decimal.NewFromInt(10),
		SizeFactor: decimal.NewFromFloat(0.5),
		RiskPercent: decimal.NewFromFloat(1.5),
		ScoreCard: domain.ScoreCard{
			Filters: []domain.Factor{
				{Name: "session_activity", Passed: true},
				{Name: "orderflow_pressure", Passed: false, Detail: "funding 0.001"},
			},
			Confluence:      []domain.Factor{{Name: "order_block", Passed: true}},
			FiltersPassed:   5,
			ConfluenceCount: 3,
			Grade:           domain.GradeAPlus,
		},
		Regime:         domain.RegimeVerdict{Class: domain.RegimeBullish, Confidence: 80},
		StructureScore: 8,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestTelegramNotifierDeliversSignal(t *testing.T) {
	var received sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token123", "chat42", zap.NewNop(), WithBaseURL(srv.URL))
	err := n.NotifySignal(context.Background(), sampleSignal())
	require.NoError(t, err)

	assert.Equal(t, "chat42", received.ChatID)
	assert.Contains(t, received.Text, "LONG ETH_USDT [A+]")
	assert.Contains(t, received.Text, "Stop:   98.5")
	assert.Contains(t, received.Text, "orderflow_pressure")
	assert.Contains(t, received.Text, "x0.5")
}

func TestTelegramNotifierRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", zap.NewNop(), WithBaseURL(srv.URL))
	n.retrier = fastRetrier()

	err := n.NotifyText(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTelegramNotifierReportsAPIRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: false, Description: "chat not found"})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", zap.NewNop(), WithBaseURL(srv.URL))
	n.retrier = fastRetrier()

	err := n.NotifyText(context.Background(), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestFormatSignalFullBreakdown(t *testing.T) {
	text := FormatSignal(sampleSignal())

	assert.Contains(t, text, "Entry:  100")
	assert.Contains(t, text, "Target: 103")
	assert.Contains(t, text, "R:R 2.00")
	assert.Contains(t, text, "Regime: BULLISH (80)")
	assert.Contains(t, text, "Structure: 8/10")
	assert.Contains(t, text, "Filters 5/6")
	assert.Contains(t, text, "+ session_activity")
	assert.Contains(t, text, "- orderflow_pressure (funding 0.001)")
}
