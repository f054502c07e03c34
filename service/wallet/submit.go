package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
)

// BuildFunc produces a fresh unsigned envelope. It is called once up front
// and again whenever the previous blockhash has expired.
type BuildFunc func(ctx context.Context) (*solana.Envelope, error)

// SubmitConfig bounds the submission state machine.
type SubmitConfig struct {
	MaxAttempts    int           // total sends, including rebuilds
	RetryDelay     time.Duration // fixed delay between sends
	ConfirmTimeout time.Duration // per send
	PollInterval   time.Duration
	Commitment     solana.ConfirmationStatus
}

func (c SubmitConfig) withDefaults() SubmitConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Commitment == solana.StatusUnknown {
		c.Commitment = solana.StatusConfirmed
	}
	return c
}

// Submitter signs, sends and confirms transactions.
//
//	BUILT -> SIGNED -> SUBMITTED -> CONFIRMED
//	                            -> RETRYING -> SUBMITTED  (transient: same signed bytes)
//	                            -> BUILT                  (blockhash expired: rebuild, re-sign)
//	                            -> FAILED                 (rejected, or attempts exhausted)
type Submitter struct {
	ledger  Ledger
	cfg     SubmitConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSubmitter creates a submitter. If metrics is nil, no metrics will be recorded.
func NewSubmitter(ledger Ledger, cfg SubmitConfig, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		ledger:  ledger,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type confirmOutcome int

const (
	outcomeConfirmed confirmOutcome = iota
	outcomeFailedOnChain
	outcomeExpired
	outcomeTimedOut
)

// Submit drives one transaction to a terminal state. purpose labels logs and
// metrics ("transfer", "swap", "provision", "referral"). On failure the
// returned result is non-nil and the error is a *Error of kind
// submission_failed, transaction_expired or unexpected.
func (s *Submitter) Submit(ctx context.Context, purpose string, build BuildFunc, signers ...solana.Signer) (*SubmissionResult, error) {
	log := s.logger.With("purpose", purpose)
	result := &SubmissionResult{Status: StatusFailed}

	var (
		env       *solana.Envelope
		lastClass solana.ErrorClass
		lastErr   error
	)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if s.metrics != nil {
				s.metrics.RecordRPCRetry("sendTransaction", lastClass.String())
			}
			if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
				return s.fail(ctx, purpose, result, wrapErr(KindUnexpected, err, "submission interrupted"))
			}
		}

		// BUILT -> SIGNED
		if env == nil {
			built, err := build(ctx)
			if err != nil {
				return s.fail(ctx, purpose, result, asError(err, "build transaction"))
			}
			if err := solana.Sign(built, signers...); err != nil {
				return s.fail(ctx, purpose, result, wrapErr(KindUnexpected, err, "sign transaction"))
			}
			if result.Attempts > 0 {
				result.Rebuilds++
			}
			env = built
			log.DebugContext(ctx, "transaction signed",
				"attempt", attempt,
				"signature", env.Signature().String(),
				"instructions", instructionKinds(env),
			)
		}
		result.Attempts = attempt
		result.Signature = env.Signature()

		// SIGNED -> SUBMITTED
		_, err := s.ledger.SendTransaction(ctx, env.Tx)
		if err != nil {
			class := solana.ClassifyError(err)
			s.recordAttempt(purpose, class.String())
			log.WarnContext(ctx, "transaction send failed",
				"attempt", attempt,
				"signature", result.Signature.String(),
				"class", class.String(),
				"error", err,
			)

			switch class {
			case solana.ClassRejected:
				result.Detail = err.Error()
				return s.fail(ctx, purpose, result, wrapErr(KindSubmissionFailed, err, "ledger rejected transaction"))
			case solana.ClassExpired:
				lastClass, lastErr = class, err
				env = nil
				continue
			case solana.ClassDuplicate:
				// Already accepted by the ledger; fall through to confirmation.
			default:
				lastClass, lastErr = class, err
				continue
			}
		} else {
			s.recordAttempt(purpose, "sent")
		}

		// SUBMITTED -> CONFIRMED | FAILED | BUILT | RETRYING
		outcome, detail, slot := s.awaitConfirmation(ctx, env)
		switch outcome {
		case outcomeConfirmed:
			result.Status = StatusConfirmed
			result.Slot = slot
			result.Detail = ""
			if s.metrics != nil {
				s.metrics.RecordSubmission(purpose, string(StatusConfirmed))
			}
			log.InfoContext(ctx, "transaction confirmed",
				"signature", result.Signature.String(),
				"attempts", result.Attempts,
				"slot", slot,
			)
			return result, nil

		case outcomeFailedOnChain:
			result.Detail = detail
			result.Slot = slot
			return s.fail(ctx, purpose, result, &Error{Kind: KindSubmissionFailed, Message: "transaction failed on chain: " + detail})

		case outcomeExpired:
			lastClass, lastErr = solana.ClassExpired, errors.New("block height exceeded before confirmation")
			env = nil

		case outcomeTimedOut:
			if ctx.Err() != nil {
				return s.fail(ctx, purpose, result, wrapErr(KindUnexpected, ctx.Err(), "submission interrupted"))
			}
			lastClass, lastErr = solana.ClassTransient, errors.New(detail)
		}
	}

	if lastErr != nil {
		result.Detail = lastErr.Error()
	}
	if lastClass == solana.ClassExpired {
		return s.fail(ctx, purpose, result, wrapErr(KindTransactionExpired, lastErr, "blockhash expired after %d attempts", result.Attempts))
	}
	return s.fail(ctx, purpose, result, wrapErr(KindSubmissionFailed, lastErr, "gave up after %d attempts", result.Attempts))
}

func instructionKinds(env *solana.Envelope) []string {
	summary := solana.Summarize(env.Tx)
	kinds := make([]string, len(summary))
	for i, ix := range summary {
		kinds[i] = ix.Kind
	}
	return kinds
}

// awaitConfirmation polls the signature until it reaches the configured
// commitment, fails on chain, outlives its blockhash or ConfirmTimeout passes.
func (s *Submitter) awaitConfirmation(ctx context.Context, env *solana.Envelope) (confirmOutcome, string, uint64) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	sig := env.Signature()
	for {
		status, err := s.ledger.SignatureStatus(ctx, sig)
		if err == nil && status.Found {
			if status.Err != "" {
				return outcomeFailedOnChain, status.Err, status.Slot
			}
			if status.Landed(s.cfg.Commitment) {
				return outcomeConfirmed, "", status.Slot
			}
		}

		if env.LastValidBlockHeight > 0 && (err != nil || !status.Found) {
			if height, herr := s.ledger.BlockHeight(ctx); herr == nil && height > env.LastValidBlockHeight {
				return outcomeExpired, "", 0
			}
		}

		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return outcomeTimedOut, fmt.Sprintf("not confirmed within %s", s.cfg.ConfirmTimeout), 0
		}
	}
}

func (s *Submitter) fail(ctx context.Context, purpose string, result *SubmissionResult, err *Error) (*SubmissionResult, error) {
	result.Status = StatusFailed
	if result.Detail == "" {
		result.Detail = err.Error()
	}
	if s.metrics != nil {
		s.metrics.RecordSubmission(purpose, string(err.Kind))
	}
	s.logger.ErrorContext(ctx, "transaction submission failed",
		"purpose", purpose,
		"signature", result.Signature.String(),
		"attempts", result.Attempts,
		"kind", err.Kind,
		"error", err,
	)
	return result, err
}

func (s *Submitter) recordAttempt(purpose, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmissionAttempt(purpose, outcome)
	}
}
