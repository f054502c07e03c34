package wallet

import (
	"context"
	"testing"

	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceVerifier_FeeBufferIsMax(t *testing.T) {
	ledger := newFakeLedger()
	assert.Equal(t, testBudget.EstimatedFeeLamports(1), NewBalanceVerifier(ledger, 5000, testBudget).FeeBuffer())
	assert.Equal(t, uint64(10_000_000), NewBalanceVerifier(ledger, 10_000_000, testBudget).FeeBuffer())
}

func TestVerifyNative(t *testing.T) {
	ledger := newFakeLedger()
	owner := testDest
	v := NewBalanceVerifier(ledger, 0, solana.FeeBudget{})
	buffer := v.FeeBuffer()
	ledger.native[owner] = 1_000 + buffer

	assert.NoError(t, v.VerifyNative(context.Background(), owner, 1_000))

	err := v.VerifyNative(context.Background(), owner, 1_001)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, KindInsufficientFunds, werr.Kind)
	assert.Equal(t, 1_000+buffer, werr.Available)
	assert.Equal(t, 1_001+buffer, werr.Required)
}

func TestVerifyToken_PrefersAssociatedAccount(t *testing.T) {
	ledger := newFakeLedger()
	other := solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	ledger.tokenAccounts[testDest] = []solanago.PublicKey{other}
	ledger.tokenBalances[other] = 1
	ata := ledger.addTokenAccount(t, testDest, testMint, 500)

	v := NewBalanceVerifier(ledger, 0, testBudget)
	source, err := v.VerifyToken(context.Background(), testDest, testMint, 500)
	require.NoError(t, err)
	assert.Equal(t, ata, source)

	_, err = v.VerifyToken(context.Background(), testDest, testMint, 501)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
}

func TestVerifyToken_NoAccount(t *testing.T) {
	v := NewBalanceVerifier(newFakeLedger(), 0, testBudget)
	_, err := v.VerifyToken(context.Background(), testDest, testMint, 1)
	assert.ErrorIs(t, err, ErrNoSourceAccount)
}
