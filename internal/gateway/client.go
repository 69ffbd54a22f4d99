// Package gateway submits claim toggles to the claim endpoint. It is a thin
// HTTP client: one request per call, no retries, and no local state. The
// resulting change reaches the local snapshot through the change feed.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mmynk/splitclaim/internal/metrics"
	"github.com/mmynk/splitclaim/internal/models"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// ClaimResult is the decoded success body. Fields are zero when the server
// sent something else.
type ClaimResult struct {
	Status   string `json:"status"`
	NewCount int    `json:"new_count"`
}

type claimRequest struct {
	ItemID   string `json:"item_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client. A nil client
// keeps the default.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout. With WithHTTPClient the timeout is
// applied to a copy, and the caller's client is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client talks to the claim endpoint.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	baseURL    string
}

// New creates a client for the API at baseURL. An empty baseURL is accepted
// here and reported as a ConfigError on the first submission.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.httpClient == nil:
		timeout := c.timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	case c.timeout != 0:
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// SubmitClaim toggles the user's claim on an item.
func (c *Client) SubmitClaim(ctx context.Context, billID, itemID string, user *models.User) (*ClaimResult, error) {
	result, err := c.submit(ctx, billID, itemID, user)
	if err != nil {
		metrics.ClaimSubmissionsTotal.WithLabelValues(Kind(err)).Inc()
		return nil, err
	}
	metrics.ClaimSubmissionsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (c *Client) submit(ctx context.Context, billID, itemID string, user *models.User) (*ClaimResult, error) {
	if c.baseURL == "" {
		return nil, &ConfigError{Message: "claim API base URL is not set"}
	}
	if user == nil {
		return nil, ErrNoIdentity
	}

	body, err := json.Marshal(claimRequest{
		ItemID:   itemID,
		UserID:   user.ID,
		UserName: user.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode claim: %w", err)
	}

	endpoint := c.baseURL + "/v1/bills/" + url.PathEscape(billID) + "/claim"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("invalid claim API base URL %q: %v", c.baseURL, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ServerError{StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
	}

	var result ClaimResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Debug("Claim response body not decodable", "bill_id", billID, "error", err)
		return &ClaimResult{}, nil
	}

	slog.Debug("Claim submitted",
		"bill_id", billID,
		"item_id", itemID,
		"user_id", user.ID,
		"new_count", result.NewCount,
	)
	return &result, nil
}

// errorDetail extracts the "detail" field of an error body, falling back to
// the trimmed body.
func errorDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}
