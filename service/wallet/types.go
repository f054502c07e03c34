// Package wallet turns transfer and swap intents into submitted, confirmed
// ledger transactions.
package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Ledger is the subset of the ledger client the orchestration core uses.
// *solana.Client satisfies it.
type Ledger interface {
	Balance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Blockhash, error)
	AccountExists(ctx context.Context, address solanago.PublicKey) (bool, error)
	TokenAccountsByOwner(ctx context.Context, owner, mint solanago.PublicKey) ([]solanago.PublicKey, error)
	TokenAccountBalance(ctx context.Context, account solanago.PublicKey) (solana.TokenAmount, error)
	MintDecimals(ctx context.Context, mint solanago.PublicKey) (uint8, error)
	SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
	SignatureStatus(ctx context.Context, sig solanago.Signature) (*solana.SignatureStatus, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

// OperationKind names the two request types the core serves.
type OperationKind string

const (
	OperationTransfer OperationKind = "transfer"
	OperationSwap     OperationKind = "swap"
)

// Status is the terminal state of a submission.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Asset is the native asset (zero Mint) or a token identified by its mint.
type Asset struct {
	Mint     solanago.PublicKey
	Decimals uint8
}

// IsNative reports whether the asset is the native currency.
func (a Asset) IsNative() bool {
	return a.Mint.IsZero()
}

func (a Asset) String() string {
	if a.IsNative() {
		return "SOL"
	}
	return a.Mint.String()
}

// AccountHandle is the resolved token account for an (owner, mint) pair.
// Existed is false when this call created the account.
type AccountHandle struct {
	Owner   solanago.PublicKey
	Mint    solanago.PublicKey
	Address solanago.PublicKey
	Existed bool
}

// TransferIntent moves Amount of an asset from the key's address to Destination.
// A nil Mint means the native asset.
type TransferIntent struct {
	Key         *solana.KeyMaterial
	Destination solanago.PublicKey
	Mint        *solanago.PublicKey
	Amount      decimal.Decimal
}

// SwapIntent exchanges Amount of InputMint for OutputMint. SlippagePercent is
// bounded to (0, 100].
type SwapIntent struct {
	Key             *solana.KeyMaterial
	InputMint       solanago.PublicKey
	OutputMint      solanago.PublicKey
	Amount          decimal.Decimal
	SlippagePercent decimal.Decimal
}

// SubmissionResult is the outcome of the signing and submission state machine.
type SubmissionResult struct {
	Signature solanago.Signature
	Status    Status
	Attempts  int
	Rebuilds  int
	Slot      uint64
	Detail    string
}

// Result is what the orchestrators return to the service layer.
type Result struct {
	Kind        OperationKind `json:"kind"`
	Status      Status        `json:"status"`
	Signature   string        `json:"signature,omitempty"`
	Source      string        `json:"source"`
	Destination string        `json:"destination,omitempty"`
	InputMint   string        `json:"input_mint,omitempty"`
	OutputMint  string        `json:"output_mint,omitempty"`
	Amount      string        `json:"amount"`
	BaseAmount  uint64        `json:"base_amount"`
	OutAmount   uint64        `json:"out_amount,omitempty"`
	Attempts    int           `json:"attempts"`
	Slot        uint64        `json:"slot,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ParseKey decodes a private key into scoped key material. The caller owns
// the returned key and must Destroy it.
func ParseKey(encoded string) (*solana.KeyMaterial, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, validationf("private_key is required")
	}
	key, err := solana.ParseKeyMaterial(strings.TrimSpace(encoded))
	if err != nil {
		return nil, wrapErr(KindValidation, err, "invalid private_key")
	}
	return key, nil
}

// ParseAddress decodes a base58 address, naming field in the error.
func ParseAddress(field, encoded string) (solanago.PublicKey, error) {
	if encoded == "" {
		return solanago.PublicKey{}, validationf("%s is required", field)
	}
	pk, err := solanago.PublicKeyFromBase58(encoded)
	if err != nil {
		return solanago.PublicKey{}, wrapErr(KindValidation, err, "invalid %s", field)
	}
	return pk, nil
}

// ParseAmount decodes a human readable amount.
func ParseAmount(encoded string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(encoded))
	if err != nil {
		return decimal.Zero, wrapErr(KindValidation, err, "invalid amount %q", encoded)
	}
	return d, nil
}
