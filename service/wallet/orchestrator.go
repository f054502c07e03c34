package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Deps are the collaborators shared by both orchestrators.
type Deps struct {
	Ledger    Ledger
	Submitter *Submitter
	Balances  *BalanceVerifier
	Accounts  *AccountProvisioner
	Fees      *solana.FeeBudgetPolicy
	Notifier  Notifier // optional
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// finish records metrics, logs the outcome and notifies. It runs exactly once
// per orchestration, after the result is final.
func (d Deps) finish(ctx context.Context, start time.Time, result *Result, err error) {
	result.CompletedAt = time.Now().UTC()

	outcome := string(StatusConfirmed)
	if err != nil {
		result.Status = StatusFailed
		outcome = string(KindOf(err))
		d.logger().WarnContext(ctx, "operation failed",
			"kind", result.Kind,
			"source", result.Source,
			"signature", result.Signature,
			"error_kind", KindOf(err),
			"error", err,
		)
	} else {
		d.logger().InfoContext(ctx, "operation confirmed",
			"kind", result.Kind,
			"source", result.Source,
			"signature", result.Signature,
			"attempts", result.Attempts,
		)
	}

	if d.Metrics != nil {
		d.Metrics.RecordOrchestration(string(result.Kind), outcome, time.Since(start).Seconds())
	}
	notify(ctx, d.Notifier, d.logger(), result, err)
}

func applySubmission(result *Result, sub *SubmissionResult) {
	if sub == nil {
		return
	}
	result.Status = sub.Status
	result.Attempts = sub.Attempts
	result.Slot = sub.Slot
	if sub.Signature != (solanago.Signature{}) {
		result.Signature = sub.Signature.String()
	}
}
