package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
)

// Well-known addresses.
var (
	// WrappedSOLMint is the mint of wrapped SOL. Swaps into it settle to the
	// owner's native balance, so no destination token account is needed.
	WrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	// ReferralProgramID owns the referral fee token accounts used by the swap aggregator.
	ReferralProgramID = solana.MustPublicKeyFromBase58("REFER4ZgmyYx9c6He5XfaTMiGfdLwRnkV4RPp9t9iF3")
)

// AssociatedTokenAddress derives the token account that holds owner's balance of mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account for owner %s mint %s: %w", owner, mint, err)
	}
	return addr, nil
}

// ReferralFeeAccount derives the referral program's fee token account for mint.
func ReferralFeeAccount(referral, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("referral_ata"), referral.Bytes(), mint.Bytes()},
		ReferralProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive referral fee account for mint %s: %w", mint, err)
	}
	return addr, nil
}

// CreateTokenAccountInstruction creates owner's associated token account for mint, paid by payer.
func CreateTokenAccountInstruction(payer, owner, mint solana.PublicKey) (solana.Instruction, error) {
	ix, err := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build create token account instruction: %w", err)
	}
	return ix, nil
}
