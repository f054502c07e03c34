package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/brojonat/solwallet/service/solana"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBuild builds a one-instruction transfer paid by key and counts calls.
func countingBuild(t *testing.T, ledger *fakeLedger, key *solana.KeyMaterial, calls *int) BuildFunc {
	return func(ctx context.Context) (*solana.Envelope, error) {
		*calls++
		bh, err := ledger.LatestBlockhash(ctx)
		require.NoError(t, err)
		ix := system.NewTransferInstruction(1, key.PublicKey(), testDest).Build()
		return solana.Build(key.PublicKey(), bh, solana.Staged(solana.StageTransfer, ix))
	}
}

func TestSubmit_ConfirmsFirstAttempt(t *testing.T) {
	ledger := newFakeLedger()
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	res, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, builds)
	assert.Equal(t, uint64(42), res.Slot)
	assert.Equal(t, ledger.sent[0].Signatures[0], res.Signature)
}

func TestSubmit_TransientRetriesAreBounded(t *testing.T) {
	ledger := newFakeLedger()
	transient := errors.New("HTTP 503 service unavailable")
	ledger.sendErrs = []error{transient, transient, transient, transient, transient}
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	res, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubmissionFailed))
	assert.Equal(t, 3, ledger.sendCalls)
	assert.Equal(t, 1, builds, "transient errors resend the same signed transaction")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, res.Attempts)
}

func TestSubmit_TransientThenSuccess(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sendErrs = []error{errors.New("Blockhash not found"), nil}
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	res, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, builds)
}

func TestSubmit_ExpiredRebuilds(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sendErrs = []error{errors.New("TransactionExpiredBlockheightExceededError: block height exceeded"), nil}
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	res, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.NoError(t, err)
	assert.Equal(t, 2, builds, "expiry must rebuild, not resend")
	assert.Equal(t, 1, res.Rebuilds)
	assert.Equal(t, 2, ledger.blockhashCalls)
}

func TestSubmit_ExpiryExhaustedReportsExpired(t *testing.T) {
	ledger := newFakeLedger()
	ledger.neverLand = true
	ledger.blockHeight = 5000 // past LastValidBlockHeight of every envelope
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	_, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.Error(t, err)
	assert.Equal(t, KindTransactionExpired, KindOf(err))
	assert.Equal(t, 3, builds)
	assert.Equal(t, 3, ledger.sendCalls)
}

func TestSubmit_RejectedIsTerminal(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sendErrs = []error{errors.New("Transaction simulation failed: custom program error: 0x1")}
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	res, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.Error(t, err)
	assert.Equal(t, KindSubmissionFailed, KindOf(err))
	assert.Equal(t, 1, ledger.sendCalls)
	assert.Contains(t, res.Detail, "custom program error")
}

func TestSubmit_DuplicateGoesToConfirmation(t *testing.T) {
	ledger := newFakeLedger()
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	build := countingBuild(t, ledger, key, &builds)
	// Land the transaction first, then make the next send report a duplicate.
	env, err := build(context.Background())
	require.NoError(t, err)
	require.NoError(t, solana.Sign(env, key))
	ledger.landed[env.Signature()] = true
	ledger.sendErrs = []error{errors.New("This transaction has already been processed")}

	res, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", func(ctx context.Context) (*solana.Envelope, error) {
		return env, nil
	}, key)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, env.Signature(), res.Signature)
}

func TestSubmit_FailedOnChain(t *testing.T) {
	ledger := newFakeLedger()
	ledger.chainErr = "InstructionError: [0, Custom(1)]"
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	res, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.Error(t, err)
	assert.Equal(t, KindSubmissionFailed, KindOf(err))
	assert.Equal(t, 1, ledger.sendCalls)
	assert.Equal(t, ledger.chainErr, res.Detail)
}

func TestSubmit_UnconfirmedGivesUp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.neverLand = true
	key := newTestKey(t)
	defer key.Destroy()

	builds := 0
	_, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", countingBuild(t, ledger, key, &builds), key)
	require.Error(t, err)
	assert.Equal(t, KindSubmissionFailed, KindOf(err))
	assert.Equal(t, 3, ledger.sendCalls)
	assert.Equal(t, 1, builds)
}

func TestSubmit_BuildErrorKeepsKind(t *testing.T) {
	ledger := newFakeLedger()
	key := newTestKey(t)
	defer key.Destroy()

	_, err := newTestSubmitter(ledger).Submit(context.Background(), "swap", func(ctx context.Context) (*solana.Envelope, error) {
		return nil, &Error{Kind: KindQuoteUnavailable, Message: "down"}
	}, key)
	require.Error(t, err)
	assert.Equal(t, KindQuoteUnavailable, KindOf(err))
	assert.Equal(t, 0, ledger.sendCalls)
}

func TestSubmit_DestroyedKeyFailsSigning(t *testing.T) {
	ledger := newFakeLedger()
	key := newTestKey(t)
	builds := 0
	build := countingBuild(t, ledger, key, &builds)
	key.Destroy()

	_, err := newTestSubmitter(ledger).Submit(context.Background(), "transfer", build, key)
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))
	assert.Equal(t, 0, ledger.sendCalls)
}

func TestSubmit_ContextCancelled(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sendErrs = []error{errors.New("timeout")}
	key := newTestKey(t)
	defer key.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builds := 0
	_, err := newTestSubmitter(ledger).Submit(ctx, "transfer", countingBuild(t, ledger, key, &builds), key)
	require.Error(t, err)
	assert.LessOrEqual(t, ledger.sendCalls, 1)
}
