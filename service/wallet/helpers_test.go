package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/jupiter"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
)

var (
	testMint    = solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testDest    = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testReferer = solanago.MustPublicKeyFromBase58("3cnbobTC5P1oBinqZsDkSpX2AJX8qLy68RLYgexSisrA")
	testHash    = solanago.MustHashFromBase58("4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn")
)

// fakeLedger is an in-memory ledger. Successful sends land immediately and
// any associated token accounts they create start to exist.
type fakeLedger struct {
	mu sync.Mutex

	native        map[solanago.PublicKey]uint64
	tokenAccounts map[solanago.PublicKey][]solanago.PublicKey // keyed by owner
	tokenBalances map[solanago.PublicKey]uint64
	decimals      map[solanago.PublicKey]uint8
	existing      map[solanago.PublicKey]bool

	// sendErrs are returned by successive SendTransaction calls; nil entries succeed.
	sendErrs []error
	// chainErr makes landed transactions report an execution error.
	chainErr string
	// neverLand keeps sent signatures unknown to SignatureStatus.
	neverLand   bool
	blockHeight uint64

	landed         map[solanago.Signature]bool
	sent           []*solanago.Transaction
	sendCalls      int
	blockhashCalls int
	calls          int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		native:        make(map[solanago.PublicKey]uint64),
		tokenAccounts: make(map[solanago.PublicKey][]solanago.PublicKey),
		tokenBalances: make(map[solanago.PublicKey]uint64),
		decimals:      make(map[solanago.PublicKey]uint8),
		existing:      make(map[solanago.PublicKey]bool),
		landed:        make(map[solanago.Signature]bool),
	}
}

func (f *fakeLedger) addTokenAccount(t *testing.T, owner, mint solanago.PublicKey, amount uint64) solanago.PublicKey {
	t.Helper()
	ata, err := solana.AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	f.tokenAccounts[owner] = append(f.tokenAccounts[owner], ata)
	f.tokenBalances[ata] = amount
	f.existing[ata] = true
	return ata
}

func (f *fakeLedger) Balance(ctx context.Context, owner solanago.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.native[owner], nil
}

func (f *fakeLedger) LatestBlockhash(ctx context.Context) (solana.Blockhash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.blockhashCalls++
	return solana.Blockhash{Hash: testHash, LastValidBlockHeight: 1000}, nil
}

func (f *fakeLedger) AccountExists(ctx context.Context, address solanago.PublicKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.existing[address], nil
}

func (f *fakeLedger) TokenAccountsByOwner(ctx context.Context, owner, mint solanago.PublicKey) ([]solanago.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.tokenAccounts[owner], nil
}

func (f *fakeLedger) TokenAccountBalance(ctx context.Context, account solanago.PublicKey) (solana.TokenAmount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return solana.TokenAmount{Amount: f.tokenBalances[account]}, nil
}

func (f *fakeLedger) MintDecimals(ctx context.Context, mint solanago.PublicKey) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.decimals[mint]
	if !ok {
		return 0, errors.New("mint not found")
	}
	return d, nil
}

func (f *fakeLedger) SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sendCalls++

	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return solanago.Signature{}, err
		}
	}

	f.sent = append(f.sent, tx)
	if !f.neverLand {
		f.landed[tx.Signatures[0]] = true
		for _, s := range solana.Summarize(tx) {
			if s.Kind == solana.KindCreateTokenAccount && s.Dest != nil {
				f.existing[*s.Dest] = true
			}
		}
	}
	return tx.Signatures[0], nil
}

func (f *fakeLedger) SignatureStatus(ctx context.Context, sig solanago.Signature) (*solana.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if !f.landed[sig] {
		return &solana.SignatureStatus{}, nil
	}
	return &solana.SignatureStatus{Found: true, Slot: 42, Status: solana.StatusConfirmed, Err: f.chainErr}, nil
}

func (f *fakeLedger) BlockHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.blockHeight, nil
}

// sentKinds returns the instruction kinds of every successfully sent transaction.
func (f *fakeLedger) sentKinds() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, tx := range f.sent {
		var kinds []string
		for _, s := range solana.Summarize(tx) {
			kinds = append(kinds, s.Kind)
		}
		out = append(out, kinds)
	}
	return out
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var testBudget = solana.FeeBudget{ComputeUnitPrice: 400_000, ComputeUnitLimit: 200_000, PriorityFeeLamports: 500_000}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSubmitter(ledger Ledger) *Submitter {
	s := NewSubmitter(ledger, SubmitConfig{
		MaxAttempts:    3,
		RetryDelay:     time.Second,
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   time.Millisecond,
	}, nil, discardLogger())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if d >= time.Second {
			// retry delay: skip
			return ctx.Err()
		}
		return sleepContext(ctx, d)
	}
	return s
}

func newTestDeps(ledger *fakeLedger) Deps {
	fees := solana.NewFeeBudgetPolicy(testBudget)
	submitter := newTestSubmitter(ledger)
	return Deps{
		Ledger:    ledger,
		Submitter: submitter,
		Balances:  NewBalanceVerifier(ledger, 5000, testBudget),
		Accounts:  NewAccountProvisioner(ledger, submitter, fees, nil, discardLogger()),
		Fees:      fees,
		Logger:    discardLogger(),
	}
}

func newTestKey(t *testing.T) *solana.KeyMaterial {
	t.Helper()
	pk, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	key, err := solana.ParseKeyMaterial(pk.String())
	require.NoError(t, err)
	return key
}

func newTestKeyString(t *testing.T) (string, solanago.PublicKey) {
	t.Helper()
	pk, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.String(), pk.PublicKey()
}

// unsignedTxBase64 encodes an unsigned transaction paid by payer, the way an
// external service hands one over.
func unsignedTxBase64(t *testing.T, payer solanago.PublicKey, lamports uint64) string {
	t.Helper()
	ix := system.NewTransferInstruction(lamports, payer, testDest).Build()
	env, err := solana.Build(payer, solana.Blockhash{Hash: testHash, LastValidBlockHeight: 1000}, solana.Staged(solana.StageTransfer, ix))
	require.NoError(t, err)
	raw, err := env.Tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

// fakeQuoteService returns queued errors before succeeding.
type fakeQuoteService struct {
	mu         sync.Mutex
	quoteErrs  []error
	quoteCalls int
	swapCalls  int
	lastQuote  jupiter.QuoteRequest
	lastSwap   jupiter.SwapRequest
	swapTx     func() string
}

func (f *fakeQuoteService) Quote(ctx context.Context, q jupiter.QuoteRequest) (*jupiter.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	f.lastQuote = q
	if len(f.quoteErrs) > 0 {
		err := f.quoteErrs[0]
		f.quoteErrs = f.quoteErrs[1:]
		return nil, err
	}
	return &jupiter.Quote{
		InputMint:  q.InputMint,
		OutputMint: q.OutputMint,
		InAmount:   q.Amount,
		OutAmount:  q.Amount * 2,
		Raw:        []byte(`{"outAmount":"2"}`),
	}, nil
}

func (f *fakeQuoteService) Swap(ctx context.Context, r jupiter.SwapRequest) (*jupiter.SwapTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swapCalls++
	f.lastSwap = r
	return &jupiter.SwapTransaction{Transaction: f.swapTx(), LastValidBlockHeight: 1000}, nil
}

// memRegistry is a minimal Registry for tests.
type memRegistry struct {
	mu    sync.Mutex
	mints map[string]bool
}

func (r *memRegistry) Contains(ctx context.Context, mint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mints[mint], nil
}

func (r *memRegistry) EnsureOnce(ctx context.Context, mint string, provision func(ctx context.Context) error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mints[mint] {
		return false, nil
	}
	if err := provision(ctx); err != nil {
		return false, err
	}
	r.mints[mint] = true
	return true, nil
}

// fakeReferralAPI hands out unsigned creation transactions paid by feePayer.
type fakeReferralAPI struct {
	t     *testing.T
	mu    sync.Mutex
	calls []string
}

func (f *fakeReferralAPI) CreateReferralTokenAccount(ctx context.Context, referral, mint, feePayer string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, mint)
	f.mu.Unlock()
	return unsignedTxBase64(f.t, solanago.MustPublicKeyFromBase58(feePayer), 1), nil
}
