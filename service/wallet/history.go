package wallet

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 20
	// MaxHistoryLimit bounds a page; every entry costs one extra RPC.
	MaxHistoryLimit = 100
)

// ReadLedger is the read side used by wallet queries. *solana.Client satisfies it.
type ReadLedger interface {
	TokenHoldings(ctx context.Context, owner, program solanago.PublicKey) ([]solana.TokenHolding, error)
	MintDecimals(ctx context.Context, mint solanago.PublicKey) (uint8, error)
	SignaturesForAddress(ctx context.Context, address solanago.PublicKey, limit int, before solanago.Signature) ([]solana.SignatureInfo, error)
	Transaction(ctx context.Context, sig solanago.Signature) (*solana.TransactionRecord, error)
}

// TokenBalance is one non-empty token account of a wallet.
type TokenBalance struct {
	Account  solanago.PublicKey
	Mint     solanago.PublicKey
	Program  solanago.PublicKey
	Amount   uint64
	Decimals uint8
}

// UIAmount is Amount scaled by the mint's decimals.
func (b TokenBalance) UIAmount() decimal.Decimal {
	return solana.FromBaseUnits(b.Amount, b.Decimals)
}

// TransactionSummary is one entry of a wallet's history with its decoded
// instructions. Instructions is empty when the node could not return the
// transaction body.
type TransactionSummary struct {
	Signature    solanago.Signature
	Slot         uint64
	BlockTime    *time.Time
	Status       solana.ConfirmationStatus
	Err          string
	Memo         string
	Fee          uint64
	Instructions []solana.InstructionSummary
}

// Succeeded reports whether the transaction executed without error.
func (s TransactionSummary) Succeeded() bool {
	return s.Err == ""
}

// WalletReader answers read-only questions about a wallet: what it holds and
// what it has done. It never signs or submits anything.
type WalletReader struct {
	ledger ReadLedger
	logger *slog.Logger
}

// NewWalletReader creates a reader over ledger.
func NewWalletReader(ledger ReadLedger, logger *slog.Logger) *WalletReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletReader{ledger: ledger, logger: logger}
}

// Tokens lists the token accounts owner holds a non-zero balance in, across
// both token programs, ordered by mint then account.
func (r *WalletReader) Tokens(ctx context.Context, owner solanago.PublicKey) ([]TokenBalance, error) {
	decimals := make(map[solanago.PublicKey]uint8)
	var out []TokenBalance

	for _, program := range []solanago.PublicKey{solana.TokenProgramID, solana.Token2022ProgramID} {
		holdings, err := r.ledger.TokenHoldings(ctx, owner, program)
		if err != nil {
			return nil, wrapErr(KindUnexpected, err, "list token accounts")
		}
		for _, h := range holdings {
			if h.Amount == 0 {
				continue
			}
			d, ok := decimals[h.Mint]
			if !ok {
				d, err = r.ledger.MintDecimals(ctx, h.Mint)
				if err != nil {
					return nil, wrapErr(KindUnexpected, err, "fetch decimals for mint %s", h.Mint)
				}
				decimals[h.Mint] = d
			}
			out = append(out, TokenBalance{
				Account:  h.Account,
				Mint:     h.Mint,
				Program:  program,
				Amount:   h.Amount,
				Decimals: d,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Mint[:], out[j].Mint[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Account[:], out[j].Account[:]) < 0
	})

	r.logger.DebugContext(ctx, "listed wallet tokens", "owner", owner.String(), "count", len(out))
	return out, nil
}

// Transactions returns up to limit of owner's most recent transactions,
// newest first. A zero limit means DefaultHistoryLimit; a non-zero before
// continues from that signature.
func (r *WalletReader) Transactions(ctx context.Context, owner solanago.PublicKey, limit int, before solanago.Signature) ([]TransactionSummary, error) {
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 0 || limit > MaxHistoryLimit {
		return nil, validationf("limit must be between 1 and %d", MaxHistoryLimit)
	}

	sigs, err := r.ledger.SignaturesForAddress(ctx, owner, limit, before)
	if err != nil {
		return nil, wrapErr(KindUnexpected, err, "list signatures")
	}

	out := make([]TransactionSummary, 0, len(sigs))
	for _, info := range sigs {
		summary := TransactionSummary{
			Signature: info.Signature,
			Slot:      info.Slot,
			BlockTime: info.BlockTime,
			Status:    info.Status,
			Err:       info.Err,
			Memo:      info.Memo,
		}

		record, err := r.ledger.Transaction(ctx, info.Signature)
		if err != nil {
			return nil, wrapErr(KindUnexpected, err, "fetch transaction %s", info.Signature)
		}
		if record == nil {
			r.logger.DebugContext(ctx, "transaction body unavailable", "signature", info.Signature.String())
		} else {
			summary.Fee = record.Fee
			summary.Instructions = solana.Summarize(record.Tx)
			if summary.BlockTime == nil {
				summary.BlockTime = record.BlockTime
			}
			if summary.Err == "" {
				summary.Err = record.Err
			}
		}
		out = append(out, summary)
	}
	return out, nil
}
