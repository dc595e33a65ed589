// Package notify delivers best-effort customer notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FundingAlert summarizes a credited funding event for the wallet holder.
type FundingAlert struct {
	Email         string          `json:"email"`
	Name          string          `json:"name"`
	Narration     string          `json:"narration"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
}

// Notifier sends customer-facing alerts. Callers log failures and carry on.
type Notifier interface {
	SendFundingAlert(ctx context.Context, alert FundingAlert) error
}

// HTTPNotifier posts alerts as JSON to an email relay endpoint.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

func (n *HTTPNotifier) SendFundingAlert(ctx context.Context, alert FundingAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode funding alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build funding alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send funding alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send funding alert: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier only logs alerts. Used when no relay URL is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendFundingAlert(_ context.Context, alert FundingAlert) error {
	n.logger.Info("funding alert",
		zap.String("email", alert.Email),
		zap.String("transaction_id", alert.TransactionID),
		zap.String("amount", alert.Amount.StringFixed(2)),
	)
	return nil
}
