package wallet

import (
	"context"
	"time"

	"github.com/brojonat/solwallet/service/jupiter"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SwapOrchestrator exchanges one asset for another through the quote service.
type SwapOrchestrator struct {
	Deps
	quotes    *QuoteAggregator
	referrals *ReferralProvisioner
}

// NewSwapOrchestrator creates a swap orchestrator. referrals may be nil to
// disable referral fee routing.
func NewSwapOrchestrator(d Deps, quotes *QuoteAggregator, referrals *ReferralProvisioner) *SwapOrchestrator {
	return &SwapOrchestrator{Deps: d, quotes: quotes, referrals: referrals}
}

// Swap validates the intent before any I/O, checks the source balance,
// provisions the destination and referral accounts, fetches a quote, then
// signs and submits the externally built swap transaction. The intent's key
// is destroyed before Swap returns. The returned result is never nil.
func (o *SwapOrchestrator) Swap(ctx context.Context, intent SwapIntent) (result *Result, err error) {
	defer intent.Key.Destroy()

	start := time.Now()
	result = &Result{
		Kind:       OperationSwap,
		Status:     StatusFailed,
		Amount:     intent.Amount.String(),
		InputMint:  intent.InputMint.String(),
		OutputMint: intent.OutputMint.String(),
	}
	defer func() { o.finish(ctx, start, result, err) }()

	slippageBps, err := validateSwap(intent)
	if err != nil {
		return result, err
	}
	owner := intent.Key.PublicKey()
	result.Source = owner.String()

	inputIsNative := intent.InputMint.Equals(solana.WrappedSOLMint)
	outputIsNative := intent.OutputMint.Equals(solana.WrappedSOLMint)

	decimals := solana.NativeDecimals
	if !inputIsNative {
		decimals, err = o.Ledger.MintDecimals(ctx, intent.InputMint)
		if err != nil {
			return result, wrapErr(KindUnexpected, err, "fetch mint decimals")
		}
	}
	base, err := toBaseUnits(intent.Amount, decimals)
	if err != nil {
		return result, err
	}
	result.BaseAmount = base

	// Source balance.
	if inputIsNative {
		if err := o.Balances.VerifyNative(ctx, owner, base); err != nil {
			return result, err
		}
	} else {
		if err := o.Balances.VerifyNative(ctx, owner, 0); err != nil {
			return result, err
		}
		if _, err := o.Balances.VerifyToken(ctx, owner, intent.InputMint, base); err != nil {
			return result, err
		}
	}

	// Destination account. Wrapped SOL output is unwrapped into the owner's native balance.
	if !outputIsNative {
		if _, err := o.Accounts.EnsureAccount(ctx, intent.Key, owner, intent.OutputMint); err != nil {
			return result, err
		}
	}

	// Referral fee accounts for both sides.
	if err := o.referrals.Ensure(ctx, intent.InputMint); err != nil {
		return result, err
	}
	if err := o.referrals.Ensure(ctx, intent.OutputMint); err != nil {
		return result, err
	}
	feeAccount, err := o.referrals.FeeAccount(intent.OutputMint)
	if err != nil {
		return result, wrapErr(KindProvisioning, err, "derive referral fee account")
	}

	quote, err := o.quotes.Quote(ctx, jupiter.QuoteRequest{
		InputMint:      intent.InputMint.String(),
		OutputMint:     intent.OutputMint.String(),
		Amount:         base,
		SlippageBps:    slippageBps,
		PlatformFeeBps: o.referrals.PlatformFeeBps(),
	})
	if err != nil {
		return result, err
	}
	result.OutAmount = quote.OutAmount

	swapReq := jupiter.SwapRequest{
		UserPublicKey:             owner.String(),
		Quote:                     quote,
		PrioritizationFeeLamports: o.Fees.Budget().PriorityFeeLamports,
	}
	if !feeAccount.IsZero() {
		swapReq.FeeAccount = feeAccount.String()
	}

	// The swap payload is untrusted: decode it as is and only attach signatures.
	build := func(ctx context.Context) (*solana.Envelope, error) {
		swapTx, err := o.quotes.SwapTransaction(ctx, swapReq)
		if err != nil {
			return nil, err
		}
		env, err := solana.DecodeEnvelope(swapTx.Transaction, swapTx.LastValidBlockHeight)
		if err != nil {
			return nil, wrapErr(KindQuoteUnavailable, err, "decode swap transaction")
		}
		keys := env.Tx.Message.AccountKeys
		if len(keys) == 0 || !keys[0].Equals(owner) {
			return nil, &Error{Kind: KindQuoteUnavailable, Message: "swap transaction fee payer is not the source wallet"}
		}
		return env, nil
	}

	sub, err := o.Submitter.Submit(ctx, "swap", build, intent.Key)
	applySubmission(result, sub)
	if err != nil {
		return result, err
	}
	return result, nil
}

// validateSwap checks the intent without any I/O and returns the slippage in basis points.
func validateSwap(intent SwapIntent) (int, error) {
	if intent.Key == nil {
		return 0, validationf("private key is required")
	}
	if intent.InputMint.IsZero() || intent.OutputMint.IsZero() {
		return 0, validationf("input_mint and output_mint are required")
	}
	if intent.InputMint.Equals(intent.OutputMint) {
		return 0, validationf("input_mint and output_mint must differ")
	}
	if !intent.Amount.IsPositive() {
		return 0, validationf("amount must be greater than zero, got %s", intent.Amount)
	}
	if !intent.SlippagePercent.IsPositive() || intent.SlippagePercent.GreaterThan(hundred) {
		return 0, validationf("slippage must be in (0, 100], got %s", intent.SlippagePercent)
	}

	bps := intent.SlippagePercent.Mul(hundred).Round(0).IntPart()
	if bps < 1 {
		bps = 1
	}
	return int(bps), nil
}
