package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReadLedger serves wallet queries from fixed data.
type fakeReadLedger struct {
	holdings     map[solanago.PublicKey][]solana.TokenHolding // keyed by program
	decimals     map[solanago.PublicKey]uint8
	signatures   []solana.SignatureInfo
	records      map[solanago.Signature]*solana.TransactionRecord
	holdingsErr  error
	txErr        error
	decimalCalls int
	lastLimit    int
	lastBefore   solanago.Signature
}

func (f *fakeReadLedger) TokenHoldings(ctx context.Context, owner, program solanago.PublicKey) ([]solana.TokenHolding, error) {
	if f.holdingsErr != nil {
		return nil, f.holdingsErr
	}
	return f.holdings[program], nil
}

func (f *fakeReadLedger) MintDecimals(ctx context.Context, mint solanago.PublicKey) (uint8, error) {
	f.decimalCalls++
	d, ok := f.decimals[mint]
	if !ok {
		return 0, errors.New("mint not found")
	}
	return d, nil
}

func (f *fakeReadLedger) SignaturesForAddress(ctx context.Context, address solanago.PublicKey, limit int, before solanago.Signature) ([]solana.SignatureInfo, error) {
	f.lastLimit = limit
	f.lastBefore = before
	if len(f.signatures) > limit {
		return f.signatures[:limit], nil
	}
	return f.signatures, nil
}

func (f *fakeReadLedger) Transaction(ctx context.Context, sig solanago.Signature) (*solana.TransactionRecord, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	return f.records[sig], nil
}

func TestWalletReader_TokensSkipsEmptyAccounts(t *testing.T) {
	otherMint := solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdc := solanago.NewWallet().PublicKey()
	empty := solanago.NewWallet().PublicKey()
	t22 := solanago.NewWallet().PublicKey()

	ledger := &fakeReadLedger{
		holdings: map[solanago.PublicKey][]solana.TokenHolding{
			solana.TokenProgramID: {
				{Account: usdc, Mint: testMint, Amount: 1_500_000},
				{Account: empty, Mint: otherMint, Amount: 0},
			},
			solana.Token2022ProgramID: {
				{Account: t22, Mint: testMint, Amount: 250_000},
			},
		},
		decimals: map[solanago.PublicKey]uint8{testMint: 6},
	}

	tokens, err := NewWalletReader(ledger, nil).Tokens(context.Background(), testDest)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	for _, tok := range tokens {
		assert.Equal(t, testMint, tok.Mint)
		assert.Equal(t, uint8(6), tok.Decimals)
		assert.NotEqual(t, empty, tok.Account)
	}
	assert.Equal(t, 1, ledger.decimalCalls, "decimals are fetched once per mint")

	byAccount := map[solanago.PublicKey]TokenBalance{}
	for _, tok := range tokens {
		byAccount[tok.Account] = tok
	}
	assert.Equal(t, "1.5", byAccount[usdc].UIAmount().String())
	assert.Equal(t, solana.Token2022ProgramID, byAccount[t22].Program)
}

func TestWalletReader_TokensLedgerFailure(t *testing.T) {
	ledger := &fakeReadLedger{holdingsErr: errors.New("node is behind")}

	_, err := NewWalletReader(ledger, nil).Tokens(context.Background(), testDest)
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))
}

func TestWalletReader_TokensUnknownMint(t *testing.T) {
	ledger := &fakeReadLedger{holdings: map[solanago.PublicKey][]solana.TokenHolding{
		solana.TokenProgramID: {{Account: testReferer, Mint: testMint, Amount: 1}},
	}}

	_, err := NewWalletReader(ledger, nil).Tokens(context.Background(), testDest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), testMint.String())
}

func TestWalletReader_TransactionsSummarizesInstructions(t *testing.T) {
	key := newTestKey(t)
	defer key.Destroy()
	transfer := system.NewTransferInstruction(2_000, key.PublicKey(), testDest).Build()
	env, err := solana.Build(key.PublicKey(), solana.Blockhash{Hash: testHash, LastValidBlockHeight: 10}, solana.Staged(solana.StageTransfer, transfer))
	require.NoError(t, err)
	require.NoError(t, solana.Sign(env, key))
	sig := env.Signature()

	blockTime := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	missing := solanago.SignatureFromBytes(make([]byte, 64))
	missing[0] = 9

	ledger := &fakeReadLedger{
		signatures: []solana.SignatureInfo{
			{Signature: sig, Slot: 50, Status: solana.StatusFinalized},
			{Signature: missing, Slot: 49, Err: "InstructionError"},
		},
		records: map[solanago.Signature]*solana.TransactionRecord{
			sig: {Signature: sig, Slot: 50, BlockTime: &blockTime, Fee: 5000, Tx: env.Tx},
		},
	}

	history, err := NewWalletReader(ledger, nil).Transactions(context.Background(), testDest, 0, solanago.Signature{})
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, ledger.lastLimit)
	require.Len(t, history, 2)

	first := history[0]
	assert.Equal(t, sig, first.Signature)
	assert.True(t, first.Succeeded())
	assert.Equal(t, uint64(5000), first.Fee)
	require.NotNil(t, first.BlockTime)
	assert.Equal(t, blockTime, *first.BlockTime)
	require.Len(t, first.Instructions, 1)
	assert.Equal(t, solana.KindTransfer, first.Instructions[0].Kind)
	assert.Equal(t, uint64(2_000), first.Instructions[0].Value)

	second := history[1]
	assert.False(t, second.Succeeded())
	assert.Empty(t, second.Instructions)
}

func TestWalletReader_TransactionsLimit(t *testing.T) {
	ledger := &fakeReadLedger{}
	reader := NewWalletReader(ledger, nil)

	for _, limit := range []int{-1, MaxHistoryLimit + 1} {
		_, err := reader.Transactions(context.Background(), testDest, limit, solanago.Signature{})
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	}

	before := solanago.SignatureFromBytes(append([]byte{7}, make([]byte, 63)...))
	_, err := reader.Transactions(context.Background(), testDest, 5, before)
	require.NoError(t, err)
	assert.Equal(t, 5, ledger.lastLimit)
	assert.Equal(t, before, ledger.lastBefore)
}

func TestWalletReader_TransactionsFetchFailure(t *testing.T) {
	ledger := &fakeReadLedger{
		signatures: []solana.SignatureInfo{{Slot: 1}},
		txErr:      errors.New("timeout"),
	}

	_, err := NewWalletReader(ledger, nil).Transactions(context.Background(), testDest, 1, solanago.Signature{})
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))
}
