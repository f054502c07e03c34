// Package jupiter is a small HTTP client for the Jupiter quote, swap and
// referral APIs. It performs one request per call; retry policy belongs to
// the caller.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"golang.org/x/time/rate"
)

// Config configures the Jupiter client.
type Config struct {
	QuoteAPIURL    string // e.g. https://quote-api.jup.ag/v6
	ReferralAPIURL string // e.g. https://referral.jup.ag/api
	Timeout        time.Duration
	RateLimit      float64 // requests per second, 0 disables throttling
	RateBurst      int
}

// Client talks to the Jupiter APIs. Safe for concurrent use.
type Client struct {
	quoteURL    string
	referralURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewClient creates a new Jupiter client.
// If httpClient is nil, one with cfg.Timeout (default 10s) is used.
func NewClient(cfg Config, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		quoteURL:    cfg.QuoteAPIURL,
		referralURL: cfg.ReferralAPIURL,
		httpClient:  httpClient,
		limiter:     limiter,
		logger:      logger,
		metrics:     m,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// do sends req and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, op string, out interface{}) error {
	start := time.Now()
	status := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordQuoteCall(op, status, time.Since(start).Seconds())
		}
	}()

	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.WarnContext(req.Context(), "jupiter request failed",
			"op", op,
			"status", resp.StatusCode,
		)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url, op string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out)
}
