package wallet

import (
	"context"

	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// BalanceVerifier checks live balances before any mutation is attempted.
// It is read-only and keeps no state between calls.
type BalanceVerifier struct {
	ledger    Ledger
	feeBuffer uint64
}

// NewBalanceVerifier reserves max(minFeeBuffer, estimated fee of budget) lamports
// on top of every native requirement.
func NewBalanceVerifier(ledger Ledger, minFeeBuffer uint64, budget solana.FeeBudget) *BalanceVerifier {
	buffer := budget.EstimatedFeeLamports(1)
	if minFeeBuffer > buffer {
		buffer = minFeeBuffer
	}
	return &BalanceVerifier{ledger: ledger, feeBuffer: buffer}
}

// FeeBuffer returns the lamports reserved for fees.
func (v *BalanceVerifier) FeeBuffer() uint64 {
	return v.feeBuffer
}

// VerifyNative fails with InsufficientFunds when owner cannot cover
// required lamports plus the fee buffer.
func (v *BalanceVerifier) VerifyNative(ctx context.Context, owner solanago.PublicKey, required uint64) error {
	available, err := v.ledger.Balance(ctx, owner)
	if err != nil {
		return wrapErr(KindUnexpected, err, "fetch native balance")
	}

	need := required + v.feeBuffer
	if need < required {
		return validationf("amount %d overflows with fee buffer", required)
	}
	if available < need {
		return insufficientFunds("SOL", solana.NativeDecimals, available, need)
	}
	return nil
}

// VerifyToken resolves owner's token account for mint and checks it holds at
// least required base units. The associated account is preferred when owner
// has several. Returns the source account.
func (v *BalanceVerifier) VerifyToken(ctx context.Context, owner, mint solanago.PublicKey, required uint64) (solanago.PublicKey, error) {
	accounts, err := v.ledger.TokenAccountsByOwner(ctx, owner, mint)
	if err != nil {
		return solanago.PublicKey{}, wrapErr(KindUnexpected, err, "list token accounts")
	}
	if len(accounts) == 0 {
		return solanago.PublicKey{}, &Error{
			Kind:    KindNoSourceAccount,
			Message: "owner " + owner.String() + " holds no account for mint " + mint.String(),
		}
	}

	source := accounts[0]
	if ata, err := solana.AssociatedTokenAddress(owner, mint); err == nil {
		for _, a := range accounts {
			if a.Equals(ata) {
				source = a
				break
			}
		}
	}

	balance, err := v.ledger.TokenAccountBalance(ctx, source)
	if err != nil {
		return solanago.PublicKey{}, wrapErr(KindUnexpected, err, "fetch token balance")
	}
	if balance.Amount < required {
		return solanago.PublicKey{}, insufficientFunds(mint.String(), balance.Decimals, balance.Amount, required)
	}
	return source, nil
}
