package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// AssociatedTokenProgramID creates associated token accounts
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// ComputeBudgetProgramID sets compute unit limit and price
	ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// Compute Budget instruction types
const (
	ComputeBudgetSetUnitLimitInstruction = uint8(2)
	ComputeBudgetSetUnitPriceInstruction = uint8(3)
)

// Instruction kinds reported by Summarize.
const (
	KindTransfer            = "transfer"
	KindTransferChecked     = "transfer_checked"
	KindCreateTokenAccount  = "create_token_account"
	KindSetComputeUnitLimit = "set_compute_unit_limit"
	KindSetComputeUnitPrice = "set_compute_unit_price"
	KindMemo                = "memo"
	KindOther               = "other"
)

// InstructionSummary is a decoded view of one compiled instruction, used in
// logs and to check what a built or externally supplied transaction does.
type InstructionSummary struct {
	Program solana.PublicKey
	Kind    string
	// Value is lamports or token base units for transfers, units for the
	// compute limit, micro-lamports for the compute price.
	Value  uint64
	Mint   *solana.PublicKey
	Source *solana.PublicKey
	Dest   *solana.PublicKey
	Memo   string
}

// Summarize decodes the instructions of tx in order. Instructions that
// reference accounts outside the static key list (address lookup tables)
// are reported as KindOther.
func Summarize(tx *solana.Transaction) []InstructionSummary {
	if tx == nil {
		return nil
	}

	keys := tx.Message.AccountKeys
	out := make([]InstructionSummary, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) {
			out = append(out, InstructionSummary{Kind: KindOther})
			continue
		}
		programID := keys[ix.ProgramIDIndex]
		summary := InstructionSummary{Program: programID, Kind: KindOther}

		switch {
		case programID.Equals(SystemProgramID):
			if amount, from, to, err := parseSystemTransfer(ix, keys); err == nil {
				summary.Kind = KindTransfer
				summary.Value = amount
				summary.Source = from
				summary.Dest = to
			}

		case programID.Equals(TokenProgramID) || programID.Equals(Token2022ProgramID):
			if kind, amount, mint, dest, err := parseTokenTransfer(ix, keys); err == nil {
				summary.Kind = kind
				summary.Value = amount
				summary.Mint = mint
				summary.Dest = dest
			}

		case programID.Equals(AssociatedTokenProgramID):
			summary.Kind = KindCreateTokenAccount
			// Accounts: [payer, associated account, owner, mint, ...]
			if len(ix.Accounts) >= 4 {
				summary.Dest = keyAt(keys, ix.Accounts[1])
				summary.Mint = keyAt(keys, ix.Accounts[3])
			}

		case programID.Equals(ComputeBudgetProgramID):
			if kind, value, err := parseComputeBudget(ix.Data); err == nil {
				summary.Kind = kind
				summary.Value = value
			}

		case programID.Equals(MemoProgramIDSPL):
			summary.Kind = KindMemo
			summary.Memo = parseMemo(ix.Data)
		}

		out = append(out, summary)
	}
	return out
}

// parseSystemTransfer extracts lamports, source and destination from a System Program Transfer.
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (uint64, *solana.PublicKey, *solana.PublicKey, error) {
	// [0..4]  = instruction type (u32, 2 for Transfer)
	// [4..12] = lamports (u64)
	if len(instruction.Data) < 12 {
		return 0, nil, nil, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}
	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return 0, nil, nil, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}
	amount := binary.LittleEndian.Uint64(instruction.Data[4:12])

	// Accounts: [from, to]
	var from, to *solana.PublicKey
	if len(instruction.Accounts) >= 2 {
		from = keyAt(accountKeys, instruction.Accounts[0])
		to = keyAt(accountKeys, instruction.Accounts[1])
	}
	return amount, from, to, nil
}

// parseTokenTransfer extracts the kind, amount, mint and destination token account from an SPL Token transfer.
func parseTokenTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (kind string, amount uint64, mint, dest *solana.PublicKey, err error) {
	if len(instruction.Data) == 0 {
		return "", 0, nil, nil, fmt.Errorf("empty instruction data")
	}

	switch instruction.Data[0] {
	case TokenProgramTransferInstruction:
		// [0] = 3, [1..9] = amount
		if len(instruction.Data) < 9 {
			return "", 0, nil, nil, fmt.Errorf("transfer instruction data too short")
		}
		amount = binary.LittleEndian.Uint64(instruction.Data[1:9])
		// Accounts: [source, destination, authority]
		if len(instruction.Accounts) >= 2 {
			dest = keyAt(accountKeys, instruction.Accounts[1])
		}
		return KindTransfer, amount, nil, dest, nil

	case TokenProgramTransferCheckedInstruction:
		// [0] = 12, [1..9] = amount, [9] = decimals
		if len(instruction.Data) < 10 {
			return "", 0, nil, nil, fmt.Errorf("transferChecked instruction data too short")
		}
		amount = binary.LittleEndian.Uint64(instruction.Data[1:9])
		// Accounts: [source, mint, destination, authority, ...]
		if len(instruction.Accounts) < 4 {
			return "", 0, nil, nil, fmt.Errorf("transferChecked missing accounts")
		}
		mint = keyAt(accountKeys, instruction.Accounts[1])
		if mint == nil {
			return "", 0, nil, nil, fmt.Errorf("mint account index out of bounds")
		}
		dest = keyAt(accountKeys, instruction.Accounts[2])
		return KindTransferChecked, amount, mint, dest, nil

	default:
		return "", 0, nil, nil, fmt.Errorf("unknown token instruction type: %d", instruction.Data[0])
	}
}

// parseComputeBudget decodes SetComputeUnitLimit (u32) and SetComputeUnitPrice (u64).
func parseComputeBudget(data []byte) (string, uint64, error) {
	if len(data) == 0 {
		return "", 0, fmt.Errorf("empty instruction data")
	}
	switch data[0] {
	case ComputeBudgetSetUnitLimitInstruction:
		if len(data) < 5 {
			return "", 0, fmt.Errorf("set compute unit limit data too short")
		}
		return KindSetComputeUnitLimit, uint64(binary.LittleEndian.Uint32(data[1:5])), nil
	case ComputeBudgetSetUnitPriceInstruction:
		if len(data) < 9 {
			return "", 0, fmt.Errorf("set compute unit price data too short")
		}
		return KindSetComputeUnitPrice, binary.LittleEndian.Uint64(data[1:9]), nil
	default:
		return "", 0, fmt.Errorf("unknown compute budget instruction: %d", data[0])
	}
}

func keyAt(keys []solana.PublicKey, idx uint16) *solana.PublicKey {
	if int(idx) >= len(keys) {
		return nil
	}
	k := keys[idx]
	return &k
}

// parseMemo extracts the memo text from a Memo Program instruction.
// Some memos are base64 encoded, others are plain text.
func parseMemo(data []byte) string {
	memo := string(data)
	if decoded, err := base64.StdEncoding.DecodeString(memo); err == nil && isValidUTF8(decoded) {
		return string(decoded)
	}
	return memo
}

// isValidUTF8 rejects decoded memos containing NUL bytes.
func isValidUTF8(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return false
		}
	}
	return true
}
