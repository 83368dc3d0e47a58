package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/signalpipe/signalpipe/internal/domain"
	"github.com/signalpipe/signalpipe/pkg/retrier"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier delivers messages through the Telegram Bot API.
type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// TelegramOption configures the notifier.
type TelegramOption func(*TelegramNotifier)

// WithBaseURL overrides the Telegram API endpoint.
func WithBaseURL(url string) TelegramOption {
	return func(n *TelegramNotifier) {
		n.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(n *TelegramNotifier) {
		n.client = client
	}
}

// NewTelegramNotifier creates a Telegram notifier for the given bot token
// and chat.
func NewTelegramNotifier(token, chatID string, logger *zap.Logger, opts ...TelegramOption) *TelegramNotifier {
	n := &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: defaultTelegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
		retrier: retrier.New(
			retrier.WithInitialInterval(time.Second),
			retrier.WithMaxRetries(3),
		),
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifySignal formats and delivers a finalized signal.
func (n *TelegramNotifier) NotifySignal(ctx context.Context, sig *domain.TradeSignal) error {
	return n.NotifyText(ctx, FormatSignal(sig))
}

// NotifyText delivers a text message, retrying transient failures with
// backoff.
func (n *TelegramNotifier) NotifyText(ctx context.Context, text string) error {
	err := n.retrier.Do(ctx, func(ctx context.Context) error {
		return n.send(ctx, text)
	})
	if err != nil {
		n.logger.Error("telegram delivery failed", zap.Error(err))
		return errors.Wrap(err, "telegram delivery")
	}
	return nil
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text})
	if err != nil {
		return errors.Wrap(err, "marshal telegram message")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send telegram request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return errors.Wrap(err, "read telegram response")
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram API status %d: %s", resp.StatusCode, string(body))
	}

	var result sendMessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return errors.Wrap(err, "decode telegram response")
	}
	if !result.OK {
		return errors.Errorf("telegram API rejected message: %s", result.Description)
	}

	return nil
}
