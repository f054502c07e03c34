package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/jupiter"
	"github.com/cenkalti/backoff/v4"
)

// QuoteService is the external route and swap-transaction provider.
// *jupiter.Client satisfies it.
type QuoteService interface {
	Quote(ctx context.Context, q jupiter.QuoteRequest) (*jupiter.Quote, error)
	Swap(ctx context.Context, r jupiter.SwapRequest) (*jupiter.SwapTransaction, error)
}

// QuoteAggregator retries the quote service a bounded number of times and
// reports persistent failure as QuoteUnavailable.
type QuoteAggregator struct {
	svc         QuoteService
	maxAttempts int
	interval    time.Duration
	logger      *slog.Logger
}

// NewQuoteAggregator creates an aggregator that tries each call up to
// maxAttempts times, interval apart.
func NewQuoteAggregator(svc QuoteService, maxAttempts int, interval time.Duration, logger *slog.Logger) *QuoteAggregator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteAggregator{svc: svc, maxAttempts: maxAttempts, interval: interval, logger: logger}
}

// Quote fetches a route for baseAmount of inputMint.
func (q *QuoteAggregator) Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error) {
	var quote *jupiter.Quote
	err := q.retry(ctx, "quote", func() error {
		var err error
		quote, err = q.svc.Quote(ctx, req)
		return err
	})
	if err != nil {
		return nil, wrapErr(KindQuoteUnavailable, err, "no quote for %s -> %s", req.InputMint, req.OutputMint)
	}
	return quote, nil
}

// SwapTransaction fetches the encoded swap transaction for a quote.
func (q *QuoteAggregator) SwapTransaction(ctx context.Context, req jupiter.SwapRequest) (*jupiter.SwapTransaction, error) {
	var tx *jupiter.SwapTransaction
	err := q.retry(ctx, "swap", func() error {
		var err error
		tx, err = q.svc.Swap(ctx, req)
		return err
	})
	if err != nil {
		return nil, wrapErr(KindQuoteUnavailable, err, "swap transaction unavailable")
	}
	return tx, nil
}

func (q *QuoteAggregator) retry(ctx context.Context, op string, call func() error) error {
	policy := backoff.WithMaxRetries(
		backoff.WithContext(backoff.NewConstantBackOff(q.interval), ctx),
		uint64(q.maxAttempts-1),
	)

	operation := func() error {
		err := call()
		var se *jupiter.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		q.logger.WarnContext(ctx, "quote service call failed, retrying",
			"op", op,
			"retry_in", next,
			"error", err,
		)
	}

	return backoff.RetryNotify(operation, policy, notify)
}
