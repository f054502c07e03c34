package solana

import (
	"encoding/base64"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Stage orders instructions inside a transaction. Compute budget must be set
// before any compute-consuming instruction runs.
type Stage int

const (
	StageComputeBudget Stage = iota
	StageAccountSetup
	StageTransfer
)

// StagedInstruction is an instruction tagged with the stage it belongs to.
type StagedInstruction struct {
	Stage       Stage
	Instruction solana.Instruction
}

// Staged tags every instruction in ixs with stage.
func Staged(stage Stage, ixs ...solana.Instruction) []StagedInstruction {
	out := make([]StagedInstruction, len(ixs))
	for i, ix := range ixs {
		out[i] = StagedInstruction{Stage: stage, Instruction: ix}
	}
	return out
}

// Envelope is a transaction plus the block height after which its blockhash
// is no longer accepted.
type Envelope struct {
	Tx                   *solana.Transaction
	LastValidBlockHeight uint64
}

// Signature returns the fee payer signature, which identifies the transaction.
// It is the zero value until the envelope is signed.
func (e *Envelope) Signature() solana.Signature {
	if e == nil || e.Tx == nil || len(e.Tx.Signatures) == 0 {
		return solana.Signature{}
	}
	return e.Tx.Signatures[0]
}

// Build assembles an unsigned transaction. Instructions are ordered by stage;
// order within a stage is preserved.
func Build(feePayer solana.PublicKey, blockhash Blockhash, staged []StagedInstruction) (*Envelope, error) {
	if len(staged) == 0 {
		return nil, fmt.Errorf("build transaction: no instructions")
	}

	ordered := make([]StagedInstruction, len(staged))
	copy(ordered, staged)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Stage < ordered[j].Stage
	})

	ixs := make([]solana.Instruction, len(ordered))
	for i, s := range ordered {
		ixs[i] = s.Instruction
	}

	tx, err := solana.NewTransaction(ixs, blockhash.Hash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return &Envelope{Tx: tx, LastValidBlockHeight: blockhash.LastValidBlockHeight}, nil
}

// DecodeEnvelope decodes a base64 wire transaction produced by an external
// service. Legacy and v0 messages are both accepted.
func DecodeEnvelope(encoded string, lastValidBlockHeight uint64) (*Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode transaction base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &Envelope{Tx: tx, LastValidBlockHeight: lastValidBlockHeight}, nil
}

// Signer produces ed25519 signatures for one address.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// Sign attaches a signature for every required signer held in signers.
// Required signers without a key must already carry a signature. The message,
// and therefore the instruction list, is never modified.
func Sign(env *Envelope, signers ...Signer) error {
	if env == nil || env.Tx == nil {
		return fmt.Errorf("sign: nil transaction")
	}
	tx := env.Tx

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("sign: marshal message: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return fmt.Errorf("sign: header requires %d signatures but message has %d keys", required, len(tx.Message.AccountKeys))
	}
	if len(tx.Signatures) < required {
		padded := make([]solana.Signature, required)
		copy(padded, tx.Signatures)
		tx.Signatures = padded
	}

	for i := 0; i < required; i++ {
		key := tx.Message.AccountKeys[i]
		var signer Signer
		for _, s := range signers {
			if s.PublicKey().Equals(key) {
				signer = s
				break
			}
		}

		if signer == nil {
			if tx.Signatures[i] == (solana.Signature{}) {
				return fmt.Errorf("sign: missing signature for required signer %s", key)
			}
			continue
		}

		sig, err := signer.Sign(message)
		if err != nil {
			return fmt.Errorf("sign: signer %s: %w", key, err)
		}
		tx.Signatures[i] = sig
	}
	return nil
}
