package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/temporal"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDestination = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint        = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testWSOL        = "So11111111111111111111111111111111111111112"
	testSignature   = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

// memStore is an in-memory OperationStore.
type memStore struct {
	mu        sync.Mutex
	ops       map[uuid.UUID]*db.Operation
	createErr error
}

func newMemStore() *memStore {
	return &memStore{ops: make(map[uuid.UUID]*db.Operation)}
}

func (s *memStore) CreateOperation(ctx context.Context, p db.CreateOperationParams) (*db.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	now := time.Now()
	op := &db.Operation{
		ID:          p.ID,
		Kind:        p.Kind,
		Status:      db.StatusPending,
		Destination: p.Destination,
		InputMint:   p.InputMint,
		OutputMint:  p.OutputMint,
		Amount:      p.Amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.ops[p.ID] = op
	return op, nil
}

func (s *memStore) CompleteOperation(ctx context.Context, p db.CompleteOperationParams) (*db.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[p.ID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	op.Status = p.Status
	op.Signature = p.Signature
	op.Source = p.Source
	op.BaseAmount = p.BaseAmount
	op.OutAmount = p.OutAmount
	op.Attempts = p.Attempts
	op.Slot = p.Slot
	op.ErrorKind = p.ErrorKind
	op.ErrorMessage = p.ErrorMessage
	op.ErrorDetail = p.ErrorDetail
	op.UpdatedAt = time.Now()
	return op, nil
}

func (s *memStore) GetOperation(ctx context.Context, id uuid.UUID) (*db.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return op, nil
}

func (s *memStore) ListOperations(ctx context.Context, p db.ListOperationsParams) ([]*db.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Operation
	for _, op := range s.ops {
		if p.Address == "" || (op.Source != nil && *op.Source == p.Address) || (op.Destination != nil && *op.Destination == p.Address) {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *memStore) only(t *testing.T) *db.Operation {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.ops, 1)
	for _, op := range s.ops {
		return op
	}
	return nil
}

type fakeOrchestrator struct {
	mu         sync.Mutex
	transfers  []wallet.TransferIntent
	swaps      []wallet.SwapIntent
	err        error
	baseAmount uint64
}

func (f *fakeOrchestrator) result(kind wallet.OperationKind, source string) *wallet.Result {
	r := &wallet.Result{
		Kind:        kind,
		Status:      wallet.StatusConfirmed,
		Source:      source,
		Amount:      "1.5",
		BaseAmount:  1_500_000,
		Attempts:    1,
		Slot:        42,
		CompletedAt: time.Now(),
	}
	if f.baseAmount != 0 {
		r.BaseAmount = f.baseAmount
	}
	if f.err != nil {
		r.Status = wallet.StatusFailed
		r.Attempts = 3
		return r
	}
	r.Signature = testSignature
	return r
}

func (f *fakeOrchestrator) Transfer(ctx context.Context, intent wallet.TransferIntent) (*wallet.Result, error) {
	defer intent.Key.Destroy()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, intent)
	return f.result(wallet.OperationTransfer, intent.Key.PublicKey().String()), f.err
}

func (f *fakeOrchestrator) Swap(ctx context.Context, intent wallet.SwapIntent) (*wallet.Result, error) {
	defer intent.Key.Destroy()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, intent)
	r := f.result(wallet.OperationSwap, intent.Key.PublicKey().String())
	r.OutAmount = 3_000_000
	return r, f.err
}

type testServer struct {
	handler  http.Handler
	store    *memStore
	orch     *fakeOrchestrator
	tracker  *temporal.MockFinalityTracker
	key      string
	keyOwner string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	pk, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	ts := &testServer{
		store:    newMemStore(),
		orch:     &fakeOrchestrator{},
		tracker:  temporal.NewMockFinalityTracker(),
		key:      pk.String(),
		keyOwner: pk.PublicKey().String(),
	}
	ts.handler = New(":0", Deps{
		Store:           ts.store,
		Transfers:       ts.orch,
		Swaps:           ts.orch,
		Finality:        ts.tracker,
		DefaultSlippage: decimal.NewFromInt(1),
		Logger:          discardLogger(),
	}).Handler()
	return ts
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHandleTransfer_Success(t *testing.T) {
	ts := newTestServer(t)

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","mint":"` + testMint + `","amount":"1.5"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp operationResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "transfer", resp.Kind)
	assert.Equal(t, db.StatusConfirmed, resp.Status)
	assert.Equal(t, testSignature, resp.Signature)
	assert.Equal(t, ts.keyOwner, resp.Source)
	assert.Equal(t, testDestination, resp.Destination)
	assert.Equal(t, testMint, resp.InputMint)
	assert.Equal(t, uint64(1_500_000), resp.BaseAmount)

	require.Len(t, ts.orch.transfers, 1)
	intent := ts.orch.transfers[0]
	require.NotNil(t, intent.Mint)
	assert.Equal(t, testMint, intent.Mint.String())
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, intent.Key.Destroyed())

	op := ts.store.only(t)
	assert.Equal(t, resp.ID, op.ID.String())

	in, ok := ts.tracker.Tracking(testSignature)
	require.True(t, ok)
	assert.Equal(t, resp.ID, in.OperationID)
	assert.Equal(t, "transfer", in.Kind)
}

func TestHandleTransfer_NativeHasNoMint(t *testing.T) {
	ts := newTestServer(t)

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"0.25"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.orch.transfers, 1)
	assert.Nil(t, ts.orch.transfers[0].Mint)
	assert.Nil(t, ts.store.only(t).InputMint)
}

func TestHandleTransfer_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		body     func(key string) string
		contains string
	}{
		{
			name:     "malformed JSON",
			body:     func(string) string { return `{"destination":` },
			contains: "invalid request body",
		},
		{
			name:     "too large",
			body:     func(string) string { return `{"destination":"` + strings.Repeat("A", 2<<20) + `"}` },
			contains: "request body too large",
		},
		{
			name:     "missing destination",
			body:     func(key string) string { return `{"private_key":"` + key + `","amount":"1"}` },
			contains: "destination is required",
		},
		{
			name: "non base58 destination",
			body: func(key string) string {
				return `{"private_key":"` + key + `","destination":"0OIl; DROP TABLE","amount":"1"}`
			},
			contains: "base58",
		},
		{
			name: "bad amount",
			body: func(key string) string {
				return `{"private_key":"` + key + `","destination":"` + testDestination + `","amount":"lots"}`
			},
			contains: "invalid amount",
		},
		{
			name: "missing key",
			body: func(string) string {
				return `{"destination":"` + testDestination + `","amount":"1"}`
			},
			contains: "private_key is required",
		},
		{
			name: "bad key",
			body: func(string) string {
				return `{"private_key":"abc","destination":"` + testDestination + `","amount":"1"}`
			},
			contains: "invalid private_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/v1/transfers", tt.body(ts.key))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
			assert.NotContains(t, rec.Body.String(), ts.key)
			assert.Empty(t, ts.orch.transfers)
			assert.Empty(t, ts.store.ops)
		})
	}
}

func TestHandleTransfer_ErrorKindMapping(t *testing.T) {
	tests := []struct {
		kind   wallet.Kind
		status int
	}{
		{wallet.KindValidation, http.StatusBadRequest},
		{wallet.KindInsufficientFunds, http.StatusUnprocessableEntity},
		{wallet.KindNoSourceAccount, http.StatusUnprocessableEntity},
		{wallet.KindQuoteUnavailable, http.StatusServiceUnavailable},
		{wallet.KindProvisioning, http.StatusBadGateway},
		{wallet.KindTransactionExpired, http.StatusBadGateway},
		{wallet.KindSubmissionFailed, http.StatusBadGateway},
		{wallet.KindUnexpected, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ts := newTestServer(t)
			ts.orch.err = &wallet.Error{Kind: tt.kind, Message: "boom"}

			body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
			rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
			assert.Equal(t, tt.status, rec.Code)

			var resp errorResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, string(tt.kind), resp.Kind)
			if tt.kind == wallet.KindUnexpected {
				assert.Equal(t, wallet.GenericFailureMessage, resp.Error)
			} else {
				assert.Contains(t, resp.Error, "boom")
			}

			op := ts.store.only(t)
			assert.Equal(t, op.ID.String(), resp.OperationID)
			assert.Equal(t, db.StatusFailed, op.Status)
			require.NotNil(t, op.ErrorKind)
			assert.Equal(t, string(tt.kind), *op.ErrorKind)
			assert.Equal(t, int32(3), op.Attempts)
			assert.Equal(t, 0, ts.tracker.Count())
		})
	}
}

func TestHandleTransfer_PlainErrorIsUnexpected(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.err = errors.New("something odd")

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unexpected"`)
}

func TestHandleTransfer_UnexpectedFailureHidesCause(t *testing.T) {
	ts := newTestServer(t)
	// What a failed balance lookup against a keyed RPC endpoint looks like.
	rpcErr := errors.New(`rpc call getBalance() on http://127.0.0.1:1/?api-key=SUPERSECRET: Post "http://127.0.0.1:1/?api-key=SUPERSECRET": dial tcp 127.0.0.1:1: connect: connection refused`)
	ts.orch.err = fmt.Errorf("fetch balance: %w", rpcErr)

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "SUPERSECRET")
	assert.NotContains(t, rec.Body.String(), "127.0.0.1")

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, wallet.GenericFailureMessage, resp.Error)
	assert.Equal(t, string(wallet.KindUnexpected), resp.Kind)

	op := ts.store.only(t)
	assert.Equal(t, op.ID.String(), resp.OperationID)
	require.NotNil(t, op.ErrorMessage)
	assert.Equal(t, wallet.GenericFailureMessage, *op.ErrorMessage)
	require.NotNil(t, op.ErrorDetail)
	assert.Contains(t, *op.ErrorDetail, "getBalance")

	get := ts.do(t, http.MethodGet, "/api/v1/operations/"+op.ID.String(), "")
	require.Equal(t, http.StatusOK, get.Code)
	assert.NotContains(t, get.Body.String(), "SUPERSECRET")
}

func TestHandleTransfer_BaseAmountAboveInt64Range(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.baseAmount = math.MaxUint64

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"base_amount":18446744073709551615`)

	var resp operationResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, uint64(math.MaxUint64), resp.BaseAmount)
	assert.Equal(t, uint64(math.MaxUint64), ts.store.only(t).BaseAmount)
}

func TestHandleTransfer_StoreFailureDestroysKey(t *testing.T) {
	ts := newTestServer(t)
	ts.store.createErr = errors.New("db down")

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, ts.orch.transfers)
}

func TestHandleTransfer_FinalityFailureStillSucceeds(t *testing.T) {
	ts := newTestServer(t)
	ts.tracker.SetStartError(errors.New("temporal unavailable"))

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, db.StatusConfirmed, ts.store.only(t).Status)
}

func TestHandleSwap_DefaultSlippage(t *testing.T) {
	ts := newTestServer(t)

	body := `{"private_key":"` + ts.key + `","input_mint":"` + testMint + `","output_mint":"` + testWSOL + `","amount":"2"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/swaps", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, ts.orch.swaps, 1)
	intent := ts.orch.swaps[0]
	assert.True(t, intent.SlippagePercent.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, testMint, intent.InputMint.String())
	assert.Equal(t, testWSOL, intent.OutputMint.String())

	var resp operationResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "swap", resp.Kind)
	assert.Equal(t, uint64(3_000_000), resp.OutAmount)
	assert.Equal(t, testWSOL, resp.OutputMint)

	in, ok := ts.tracker.Tracking(testSignature)
	require.True(t, ok)
	assert.Equal(t, "swap", in.Kind)
}

func TestHandleSwap_ExplicitSlippage(t *testing.T) {
	ts := newTestServer(t)

	body := `{"private_key":"` + ts.key + `","input_mint":"` + testMint + `","output_mint":"` + testWSOL + `","amount":"2","slippage":"0.5"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/swaps", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.orch.swaps[0].SlippagePercent.Equal(decimal.RequireFromString("0.5")))
}

func TestHandleSwap_QuoteUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.err = &wallet.Error{Kind: wallet.KindQuoteUnavailable, Message: "quote service returned 503"}

	body := `{"private_key":"` + ts.key + `","input_mint":"` + testMint + `","output_mint":"` + testWSOL + `","amount":"2"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/swaps", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "quote_unavailable", *ts.store.only(t).ErrorKind)
}

func TestHandleSwap_MissingMint(t *testing.T) {
	ts := newTestServer(t)

	body := `{"private_key":"` + ts.key + `","input_mint":"` + testMint + `","amount":"2"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/swaps", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "output_mint is required")
	assert.Empty(t, ts.orch.swaps)
}

func TestHandleGetOperation(t *testing.T) {
	ts := newTestServer(t)

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var created operationResponse
	decodeBody(t, rec, &created)

	rec = ts.do(t, http.MethodGet, "/api/v1/operations/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got operationResponse
	decodeBody(t, rec, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, testSignature, got.Signature)

	rec = ts.do(t, http.MethodGet, "/api/v1/operations/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/operations/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListOperations(t *testing.T) {
	ts := newTestServer(t)

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1"}`
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/transfers", body).Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/operations?address="+ts.keyOwner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Operations []operationResponse `json:"operations"`
		Count      int                 `json:"count"`
		Limit      int                 `json:"limit"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 50, resp.Limit)

	rec = ts.do(t, http.MethodGet, "/api/v1/operations?address="+testMint, "")
	decodeBody(t, rec, &resp)
	assert.Equal(t, 0, resp.Count)

	for _, q := range []string{"limit=0", "limit=501", "limit=abc", "offset=-1", "address=0OIl"} {
		rec := ts.do(t, http.MethodGet, "/api/v1/operations?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = ts.do(t, http.MethodOptions, "/api/v1/transfers", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusForKind_Default(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusForKind(wallet.Kind("something_new")))
}
