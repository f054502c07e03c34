package wallet

import (
	"context"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
)

// TransferOrchestrator moves native or token balances between wallets.
type TransferOrchestrator struct {
	Deps
}

// NewTransferOrchestrator creates a transfer orchestrator.
func NewTransferOrchestrator(d Deps) *TransferOrchestrator {
	return &TransferOrchestrator{Deps: d}
}

// Transfer validates the intent, checks balances, provisions the destination
// token account when needed, then builds, signs and submits the transfer.
// The intent's key is destroyed before Transfer returns. The returned result
// is never nil, even on error.
func (o *TransferOrchestrator) Transfer(ctx context.Context, intent TransferIntent) (result *Result, err error) {
	defer intent.Key.Destroy()

	start := time.Now()
	result = &Result{
		Kind:   OperationTransfer,
		Status: StatusFailed,
		Amount: intent.Amount.String(),
	}
	defer func() { o.finish(ctx, start, result, err) }()

	if err := validateTransfer(intent); err != nil {
		return result, err
	}
	owner := intent.Key.PublicKey()
	result.Source = owner.String()
	result.Destination = intent.Destination.String()

	asset := Asset{Decimals: solana.NativeDecimals}
	if intent.Mint != nil {
		result.InputMint = intent.Mint.String()
		decimals, err := o.Ledger.MintDecimals(ctx, *intent.Mint)
		if err != nil {
			return result, wrapErr(KindUnexpected, err, "fetch mint decimals")
		}
		asset = Asset{Mint: *intent.Mint, Decimals: decimals}
	}

	base, err := toBaseUnits(intent.Amount, asset.Decimals)
	if err != nil {
		return result, err
	}
	result.BaseAmount = base

	var transfer func() (solanago.Instruction, error)
	if asset.IsNative() {
		if err := o.Balances.VerifyNative(ctx, owner, base); err != nil {
			return result, err
		}
		transfer = func() (solanago.Instruction, error) {
			return system.NewTransferInstruction(base, owner, intent.Destination).ValidateAndBuild()
		}
	} else {
		if err := o.Balances.VerifyNative(ctx, owner, 0); err != nil {
			return result, err
		}
		source, err := o.Balances.VerifyToken(ctx, owner, asset.Mint, base)
		if err != nil {
			return result, err
		}
		dest, err := o.Accounts.EnsureAccount(ctx, intent.Key, intent.Destination, asset.Mint)
		if err != nil {
			return result, err
		}
		if !dest.Existed {
			o.logger().DebugContext(ctx, "provisioned destination token account",
				"address", dest.Address.String(),
			)
		}
		transfer = func() (solanago.Instruction, error) {
			return token.NewTransferCheckedInstruction(
				base, asset.Decimals, source, asset.Mint, dest.Address, owner, nil,
			).ValidateAndBuild()
		}
	}

	build := func(ctx context.Context) (*solana.Envelope, error) {
		budget, err := o.Fees.Budget().Instructions()
		if err != nil {
			return nil, err
		}
		ix, err := transfer()
		if err != nil {
			return nil, err
		}
		blockhash, err := o.Ledger.LatestBlockhash(ctx)
		if err != nil {
			return nil, wrapErr(KindSubmissionFailed, err, "fetch blockhash")
		}
		staged := append(solana.Staged(solana.StageComputeBudget, budget...), solana.Staged(solana.StageTransfer, ix)...)
		return solana.Build(owner, blockhash, staged)
	}

	sub, err := o.Submitter.Submit(ctx, "transfer", build, intent.Key)
	applySubmission(result, sub)
	if err != nil {
		return result, err
	}
	return result, nil
}

func validateTransfer(intent TransferIntent) error {
	if intent.Key == nil {
		return validationf("private key is required")
	}
	if intent.Destination.IsZero() {
		return validationf("destination is required")
	}
	if !intent.Amount.IsPositive() {
		return validationf("amount must be greater than zero, got %s", intent.Amount)
	}
	if intent.Mint != nil && intent.Mint.IsZero() {
		return validationf("mint must not be the zero address")
	}
	return nil
}

// toBaseUnits converts a validated human amount, rejecting amounts that
// round to zero base units.
func toBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	base, err := solana.ToBaseUnits(amount, decimals)
	if err != nil {
		return 0, wrapErr(KindValidation, err, "invalid amount")
	}
	if base == 0 {
		return 0, validationf("amount %s is below the smallest unit for %d decimals", amount, decimals)
	}
	return base, nil
}
