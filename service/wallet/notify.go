package wallet

import (
	"context"
	"log/slog"
	"time"
)

// Event describes the terminal outcome of an orchestration.
type Event struct {
	Kind         OperationKind
	Status       Status
	Signature    string
	Source       string
	Destination  string
	InputMint    string
	OutputMint   string
	Amount       string
	BaseAmount   uint64
	OutAmount    uint64
	ErrorKind    Kind
	ErrorMessage string
	OccurredAt   time.Time
}

// Notifier receives terminal outcomes. Delivery is best effort: a failing
// notifier never changes the orchestration result.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

func notify(ctx context.Context, n Notifier, logger *slog.Logger, result *Result, err error) {
	if n == nil || result == nil {
		return
	}

	ev := Event{
		Kind:        result.Kind,
		Status:      result.Status,
		Signature:   result.Signature,
		Source:      result.Source,
		Destination: result.Destination,
		InputMint:   result.InputMint,
		OutputMint:  result.OutputMint,
		Amount:      result.Amount,
		BaseAmount:  result.BaseAmount,
		OutAmount:   result.OutAmount,
		OccurredAt:  time.Now().UTC(),
	}
	if err != nil {
		ev.Status = StatusFailed
		ev.ErrorKind = KindOf(err)
		ev.ErrorMessage = PublicMessage(err)
	}

	// The request context may already be cancelled; delivery should still be attempted.
	ctx = context.WithoutCancel(ctx)
	if nerr := n.Notify(ctx, ev); nerr != nil {
		logger.WarnContext(ctx, "failed to deliver operation event",
			"kind", ev.Kind,
			"status", ev.Status,
			"signature", ev.Signature,
			"error", nerr,
		)
	}
}
