// Package notify tells the chat bot that an imported bill is ready to be
// claimed.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mmynk/splitclaim/internal/metrics"
	"github.com/mmynk/splitclaim/internal/models"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1 << 10
)

type billReady struct {
	BillID   string `json:"bill_id"`
	ChatID   string `json:"chat_id"`
	Currency string `json:"currency"`
}

// Webhook posts a bill ready event to a fixed URL.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a Webhook for url. A nil client selects an instrumented
// default.
func NewWebhook(url string, hc *http.Client) *Webhook {
	if hc == nil {
		hc = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Webhook{url: url, httpClient: hc}
}

// BillReady posts {bill_id, chat_id, currency}. The chat ID is the bill's
// external ID. Any non-2xx response is an error.
func (h *Webhook) BillReady(ctx context.Context, bill *models.Bill) error {
	err := h.post(ctx, billReady{BillID: bill.ID, ChatID: bill.ExternalID, Currency: bill.Currency})
	if err != nil {
		metrics.BillReadyNotificationsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.BillReadyNotificationsTotal.WithLabelValues("ok").Inc()
	slog.Debug("Bill ready notification sent", "bill_id", bill.ID, "chat_id", bill.ExternalID)
	return nil
}

func (h *Webhook) post(ctx context.Context, event billReady) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode bill ready event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return nil
}
