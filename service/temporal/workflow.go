package temporal

import (
	"time"

	"github.com/brojonat/solwallet/service/solana"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Finality outcomes recorded on an operation.
const (
	FinalityFinalized = "finalized"
	FinalityFailed    = "failed"
	FinalityUnknown   = "unknown"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 60
)

// TrackFinalityWorkflow follows a confirmed signature until the ledger
// finalizes it, reports an execution error, or the poll budget runs out.
//
// The workflow performs these steps:
// 1. Poll the signature status (CheckSignatureStatus) every PollInterval
// 2. Record the outcome on the operation (RecordOperationFinality)
// 3. Publish a finality event (PublishFinalityEvent, best effort)
func TrackFinalityWorkflow(ctx workflow.Context, input TrackFinalityInput) (*TrackFinalityResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("TrackFinalityWorkflow started", "signature", input.Signature, "kind", input.Kind)

	pollInterval := input.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxPolls := input.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	result := &TrackFinalityResult{
		Signature: input.Signature,
		Finality:  FinalityUnknown,
	}

	for result.Polls < maxPolls {
		result.Polls++

		var status *solana.SignatureStatus
		err := workflow.ExecuteActivity(ctx, a.CheckSignatureStatus, CheckSignatureStatusInput{
			Signature: input.Signature,
		}).Get(ctx, &status)
		if err != nil {
			// A failed poll counts against the budget; the ledger may recover.
			logger.Warn("signature status check failed", "signature", input.Signature, "error", err)
		} else if status != nil && status.Found {
			result.Slot = status.Slot
			if status.Err != "" {
				result.Finality = FinalityFailed
				result.Error = status.Err
				break
			}
			if status.Status == solana.StatusFinalized {
				result.Finality = FinalityFinalized
				break
			}
		}

		if result.Polls < maxPolls {
			if err := workflow.Sleep(ctx, pollInterval); err != nil {
				return result, err
			}
		}
	}

	logger.Info("finality resolved",
		"signature", input.Signature,
		"finality", result.Finality,
		"polls", result.Polls,
	)

	err := workflow.ExecuteActivity(ctx, a.RecordOperationFinality, RecordOperationFinalityInput{
		Signature: input.Signature,
		Finality:  result.Finality,
		StartedAt: input.StartedAt,
	}).Get(ctx, nil)
	if err != nil {
		logger.Error("failed to record finality", "signature", input.Signature, "error", err)
		return result, err
	}

	err = workflow.ExecuteActivity(ctx, a.PublishFinalityEvent, PublishFinalityEventInput{
		OperationID: input.OperationID,
		Kind:        input.Kind,
		Signature:   input.Signature,
		Finality:    result.Finality,
		Error:       result.Error,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish finality event", "signature", input.Signature, "error", err)
	}

	return result, nil
}
