package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Blockhash is a recent blockhash together with the last block height at
// which transactions referencing it are still accepted.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// TokenAmount is a token account balance in base units.
type TokenAmount struct {
	Amount   uint64
	Decimals uint8
}

// TokenHolding is one token account and its raw balance.
type TokenHolding struct {
	Account solana.PublicKey
	Mint    solana.PublicKey
	Amount  uint64
}

// SignatureInfo is one entry of an address's signature history.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Status    ConfirmationStatus
	Err       string
	Memo      string
}

// TransactionRecord is a landed transaction with its execution outcome.
type TransactionRecord struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Fee       uint64
	Err       string // empty when execution succeeded
	Tx        *solana.Transaction
}

// ConfirmationStatus mirrors the ledger's commitment levels for a signature.
type ConfirmationStatus string

const (
	StatusUnknown   ConfirmationStatus = ""
	StatusProcessed ConfirmationStatus = "processed"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFinalized ConfirmationStatus = "finalized"
)

// SignatureStatus is the ledger's view of a submitted signature.
// Found is false when the node has no record of it (yet).
type SignatureStatus struct {
	Found  bool
	Slot   uint64
	Status ConfirmationStatus
	Err    string // execution error, empty when the transaction succeeded
}

// Landed reports whether the signature reached at least the given level.
func (s *SignatureStatus) Landed(level ConfirmationStatus) bool {
	if s == nil || !s.Found {
		return false
	}
	return rank(s.Status) >= rank(level)
}

func rank(s ConfirmationStatus) int {
	switch s {
	case StatusProcessed:
		return 1
	case StatusConfirmed:
		return 2
	case StatusFinalized:
		return 3
	default:
		return 0
	}
}
