package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/metrics"
	natspkg "github.com/brojonat/solwallet/service/nats"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// TrackFinalityInput contains the input parameters for tracking a signature.
type TrackFinalityInput struct {
	OperationID  string        `json:"operation_id"`
	Kind         string        `json:"kind"`
	Signature    string        `json:"signature"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxPolls     int           `json:"max_polls"`
	StartedAt    time.Time     `json:"started_at"`
}

// TrackFinalityResult contains the outcome of finality tracking.
type TrackFinalityResult struct {
	Signature string `json:"signature"`
	Finality  string `json:"finality"`
	Polls     int    `json:"polls"`
	Slot      uint64 `json:"slot,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CheckSignatureStatusInput contains parameters for the CheckSignatureStatus activity.
type CheckSignatureStatusInput struct {
	Signature string `json:"signature"`
}

// RecordOperationFinalityInput contains parameters for the RecordOperationFinality activity.
type RecordOperationFinalityInput struct {
	Signature string    `json:"signature"`
	Finality  string    `json:"finality"`
	StartedAt time.Time `json:"started_at"`
}

// PublishFinalityEventInput contains parameters for the PublishFinalityEvent activity.
type PublishFinalityEventInput struct {
	OperationID string `json:"operation_id"`
	Kind        string `json:"kind"`
	Signature   string `json:"signature"`
	Finality    string `json:"finality"`
	Error       string `json:"error,omitempty"`
}

// LedgerInterface defines the ledger reads needed by activities.
type LedgerInterface interface {
	SignatureStatus(ctx context.Context, sig solanago.Signature) (*solana.SignatureStatus, error)
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	RecordFinality(ctx context.Context, signature, finality string, at time.Time) (*db.Operation, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishOperation(ctx context.Context, event *natspkg.OperationEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	ledger    LedgerInterface
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher and m may be nil.
func NewActivities(ledger LedgerInterface, store StoreInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		ledger:    ledger,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) observe(activity string) func() {
	return metrics.Since(time.Now(), func(d float64) {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration(activity, d)
		}
	})
}

// CheckSignatureStatus fetches the current status of a signature.
func (a *Activities) CheckSignatureStatus(ctx context.Context, input CheckSignatureStatusInput) (*solana.SignatureStatus, error) {
	defer a.observe("CheckSignatureStatus")()

	sig, err := solanago.SignatureFromBase58(input.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	status, err := a.ledger.SignatureStatus(ctx, sig)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to fetch signature status",
			"signature", input.Signature,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch signature status: %w", err)
	}

	a.logger.DebugContext(ctx, "signature status",
		"signature", input.Signature,
		"found", status.Found,
		"status", status.Status,
	)
	return status, nil
}

// RecordOperationFinality stores the finality outcome on the operation.
func (a *Activities) RecordOperationFinality(ctx context.Context, input RecordOperationFinalityInput) error {
	defer a.observe("RecordOperationFinality")()

	_, err := a.store.RecordFinality(ctx, input.Signature, input.Finality, time.Now().UTC())
	if err != nil {
		if db.IsNotFound(err) {
			// Nothing to update; the operation was pruned or never recorded.
			a.logger.WarnContext(ctx, "no operation for signature", "signature", input.Signature)
			return nil
		}
		return fmt.Errorf("failed to record finality: %w", err)
	}

	if a.metrics != nil && !input.StartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(input.Finality, time.Since(input.StartedAt).Seconds())
	}

	a.logger.InfoContext(ctx, "recorded finality",
		"signature", input.Signature,
		"finality", input.Finality,
	)
	return nil
}

// PublishFinalityEvent publishes the finality outcome. It is a no-op without a publisher.
func (a *Activities) PublishFinalityEvent(ctx context.Context, input PublishFinalityEventInput) error {
	defer a.observe("PublishFinalityEvent")()

	if a.publisher == nil {
		return nil
	}

	now := time.Now().UTC()
	event := &natspkg.OperationEvent{
		OperationID:  input.OperationID,
		Stage:        natspkg.StageFinality,
		Kind:         input.Kind,
		Status:       input.Finality,
		Signature:    input.Signature,
		ErrorMessage: input.Error,
		OccurredAt:   now,
		PublishedAt:  now,
	}
	if err := a.publisher.PublishOperation(ctx, event); err != nil {
		return fmt.Errorf("failed to publish finality event: %w", err)
	}
	return nil
}
