package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/solwallet/service/wallet"
)

// Event stages.
const (
	StageCompleted = "completed"
	StageFinality  = "finality"
)

// OperationEvent is published to the subject "ops.{kind}.{status}" in JetStream.
type OperationEvent struct {
	OperationID string `json:"operation_id,omitempty"`
	Stage       string `json:"stage"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Signature   string `json:"signature,omitempty"`

	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	InputMint   string `json:"input_mint,omitempty"`
	OutputMint  string `json:"output_mint,omitempty"`
	Amount      string `json:"amount,omitempty"`
	BaseAmount  uint64 `json:"base_amount,omitempty"`
	OutAmount   uint64 `json:"out_amount,omitempty"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	OccurredAt  time.Time `json:"occurred_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published to.
func (e *OperationEvent) Subject() string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e.Kind, e.Status)
}

// FromWalletEvent converts a terminal orchestration outcome for publishing.
func FromWalletEvent(ev wallet.Event) *OperationEvent {
	return &OperationEvent{
		Stage:        StageCompleted,
		Kind:         string(ev.Kind),
		Status:       string(ev.Status),
		Signature:    ev.Signature,
		Source:       ev.Source,
		Destination:  ev.Destination,
		InputMint:    ev.InputMint,
		OutputMint:   ev.OutputMint,
		Amount:       ev.Amount,
		BaseAmount:   ev.BaseAmount,
		OutAmount:    ev.OutAmount,
		ErrorKind:    string(ev.ErrorKind),
		ErrorMessage: ev.ErrorMessage,
		OccurredAt:   ev.OccurredAt,
		PublishedAt:  time.Now().UTC(),
	}
}
