package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxListLimit       = 500
)

type transferRequest struct {
	PrivateKey  string `json:"private_key"`
	Destination string `json:"destination"`
	Mint        string `json:"mint,omitempty"`
	Amount      string `json:"amount"`
}

type swapRequest struct {
	PrivateKey string `json:"private_key"`
	InputMint  string `json:"input_mint"`
	OutputMint string `json:"output_mint"`
	Amount     string `json:"amount"`
	Slippage   string `json:"slippage,omitempty"` // percent
}

type operationResponse struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Signature    string     `json:"signature,omitempty"`
	Source       string     `json:"source,omitempty"`
	Destination  string     `json:"destination,omitempty"`
	InputMint    string     `json:"input_mint,omitempty"`
	OutputMint   string     `json:"output_mint,omitempty"`
	Amount       string     `json:"amount"`
	BaseAmount   uint64     `json:"base_amount"`
	OutAmount    uint64     `json:"out_amount,omitempty"`
	Attempts     int32      `json:"attempts"`
	Slot         int64      `json:"slot,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Finality     string     `json:"finality,omitempty"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Kind        string `json:"kind,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
}

// handleTransfer runs a native or token transfer and records it in the
// operation log.
// POST /api/v1/transfers
func handleTransfer(deps Deps) http.Handler {
	logger := deps.Logger.With("handler", "transfer")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if !decodeRequest(w, r, &req, logger) {
			return
		}

		if err := validateAddress("destination", req.Destination); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Mint != "" {
			if err := validateAddress("mint", req.Mint); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		intent, err := transferIntent(req)
		if err != nil {
			writeWalletError(w, "", err)
			return
		}

		op, err := deps.Store.CreateOperation(r.Context(), db.CreateOperationParams{
			ID:          uuid.New(),
			Kind:        string(wallet.OperationTransfer),
			Destination: db.StringPtr(req.Destination),
			InputMint:   db.StringPtr(req.Mint),
			Amount:      req.Amount,
		})
		if err != nil {
			intent.Key.Destroy()
			logger.ErrorContext(r.Context(), "failed to create operation", "error", err)
			writeError(w, "failed to record operation", http.StatusInternalServerError)
			return
		}

		// The submission outlives a client disconnect so the log stays accurate.
		ctx := context.WithoutCancel(r.Context())
		result, runErr := deps.Transfers.Transfer(ctx, intent)
		finishOperation(ctx, w, deps, logger, op.ID, result, runErr)
	})
}

// handleSwap exchanges one token for another through the quote service.
// POST /api/v1/swaps
func handleSwap(deps Deps) http.Handler {
	logger := deps.Logger.With("handler", "swap")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req swapRequest
		if !decodeRequest(w, r, &req, logger) {
			return
		}

		if err := validateAddress("input_mint", req.InputMint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress("output_mint", req.OutputMint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		intent, err := swapIntent(req, deps.DefaultSlippage)
		if err != nil {
			writeWalletError(w, "", err)
			return
		}

		op, err := deps.Store.CreateOperation(r.Context(), db.CreateOperationParams{
			ID:         uuid.New(),
			Kind:       string(wallet.OperationSwap),
			InputMint:  db.StringPtr(req.InputMint),
			OutputMint: db.StringPtr(req.OutputMint),
			Amount:     req.Amount,
		})
		if err != nil {
			intent.Key.Destroy()
			logger.ErrorContext(r.Context(), "failed to create operation", "error", err)
			writeError(w, "failed to record operation", http.StatusInternalServerError)
			return
		}

		ctx := context.WithoutCancel(r.Context())
		result, runErr := deps.Swaps.Swap(ctx, intent)
		finishOperation(ctx, w, deps, logger, op.ID, result, runErr)
	})
}

// handleGetOperation returns one operation by id.
// GET /api/v1/operations/{id}
func handleGetOperation(store OperationStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid operation id: must be a UUID", http.StatusBadRequest)
			return
		}

		op, err := store.GetOperation(r.Context(), id)
		if err != nil {
			if db.IsNotFound(err) {
				writeError(w, "operation not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get operation", "id", id, "error", err)
			writeError(w, "failed to get operation", http.StatusInternalServerError)
			return
		}

		writeJSON(w, operationToResponse(op), http.StatusOK)
	})
}

// handleListOperations lists operations newest first, optionally filtered
// by an address appearing as source or destination.
// GET /api/v1/operations?address=...&limit=...&offset=...
func handleListOperations(store OperationStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		address := q.Get("address")
		if address != "" {
			if err := validateAddress("address", address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, err := parseQueryInt(q.Get("limit"), 50)
		if err != nil || limit <= 0 || limit > maxListLimit {
			writeError(w, "invalid limit: must be between 1 and 500", http.StatusBadRequest)
			return
		}
		offset, err := parseQueryInt(q.Get("offset"), 0)
		if err != nil || offset < 0 {
			writeError(w, "invalid offset: must be non-negative", http.StatusBadRequest)
			return
		}

		ops, err := store.ListOperations(r.Context(), db.ListOperationsParams{
			Address: address,
			Limit:   int32(limit),
			Offset:  int32(offset),
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list operations", "error", err)
			writeError(w, "failed to list operations", http.StatusInternalServerError)
			return
		}

		resp := make([]operationResponse, 0, len(ops))
		for _, op := range ops {
			resp = append(resp, operationToResponse(op))
		}
		writeJSON(w, map[string]interface{}{
			"operations": resp,
			"count":      len(resp),
			"limit":      limit,
			"offset":     offset,
		}, http.StatusOK)
	})
}

// finishOperation records the orchestration outcome, starts finality
// tracking for confirmed submissions and writes the response.
func finishOperation(ctx context.Context, w http.ResponseWriter, deps Deps, logger *slog.Logger, id uuid.UUID, result *wallet.Result, runErr error) {
	params := db.CompleteOperationParams{
		ID:     id,
		Status: db.StatusFailed,
	}
	if result != nil {
		params.Source = db.StringPtr(result.Source)
		params.Signature = db.StringPtr(result.Signature)
		params.BaseAmount = result.BaseAmount
		params.OutAmount = result.OutAmount
		params.Attempts = int32(result.Attempts)
		params.Slot = int64(result.Slot)
		if runErr == nil && result.Status == wallet.StatusConfirmed {
			params.Status = db.StatusConfirmed
		}
	}
	if runErr != nil {
		params.ErrorKind = db.StringPtr(string(wallet.KindOf(runErr)))
		params.ErrorMessage = db.StringPtr(wallet.PublicMessage(runErr))
		params.ErrorDetail = db.StringPtr(runErr.Error())
		logger.ErrorContext(ctx, "operation failed",
			"id", id,
			"kind", string(wallet.KindOf(runErr)),
			"error", runErr,
		)
	}

	op, err := deps.Store.CompleteOperation(ctx, params)
	if err != nil {
		// The ledger outcome stands regardless; report it without the log row.
		logger.ErrorContext(ctx, "failed to complete operation", "id", id, "error", err)
	}

	if runErr != nil {
		writeWalletError(w, id.String(), runErr)
		return
	}

	if deps.Finality != nil && result.Signature != "" {
		if err := deps.Finality.StartFinalityTracking(ctx, id.String(), string(result.Kind), result.Signature); err != nil {
			logger.WarnContext(ctx, "failed to start finality tracking",
				"id", id,
				"signature", result.Signature,
				"error", err,
			)
		}
	}

	if op == nil {
		writeJSON(w, resultToResponse(id, result), http.StatusOK)
		return
	}
	writeJSON(w, operationToResponse(op), http.StatusOK)
}

func transferIntent(req transferRequest) (wallet.TransferIntent, error) {
	dest, err := wallet.ParseAddress("destination", req.Destination)
	if err != nil {
		return wallet.TransferIntent{}, err
	}
	var mint *solanago.PublicKey
	if req.Mint != "" {
		m, err := wallet.ParseAddress("mint", req.Mint)
		if err != nil {
			return wallet.TransferIntent{}, err
		}
		mint = &m
	}
	amount, err := wallet.ParseAmount(req.Amount)
	if err != nil {
		return wallet.TransferIntent{}, err
	}
	// Key last so no earlier failure leaves material behind.
	key, err := wallet.ParseKey(req.PrivateKey)
	if err != nil {
		return wallet.TransferIntent{}, err
	}
	return wallet.TransferIntent{Key: key, Destination: dest, Mint: mint, Amount: amount}, nil
}

func swapIntent(req swapRequest, defaultSlippage decimal.Decimal) (wallet.SwapIntent, error) {
	in, err := wallet.ParseAddress("input_mint", req.InputMint)
	if err != nil {
		return wallet.SwapIntent{}, err
	}
	out, err := wallet.ParseAddress("output_mint", req.OutputMint)
	if err != nil {
		return wallet.SwapIntent{}, err
	}
	amount, err := wallet.ParseAmount(req.Amount)
	if err != nil {
		return wallet.SwapIntent{}, err
	}
	slippage := defaultSlippage
	if req.Slippage != "" {
		slippage, err = wallet.ParseAmount(req.Slippage)
		if err != nil {
			return wallet.SwapIntent{}, err
		}
	}
	key, err := wallet.ParseKey(req.PrivateKey)
	if err != nil {
		return wallet.SwapIntent{}, err
	}
	return wallet.SwapIntent{
		Key:             key,
		InputMint:       in,
		OutputMint:      out,
		Amount:          amount,
		SlippagePercent: slippage,
	}, nil
}

// decodeRequest reads a size-limited JSON body into v, writing a 400 on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Debug("failed to decode request", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func operationToResponse(op *db.Operation) operationResponse {
	return operationResponse{
		ID:           op.ID.String(),
		Kind:         op.Kind,
		Status:       op.Status,
		Signature:    deref(op.Signature),
		Source:       deref(op.Source),
		Destination:  deref(op.Destination),
		InputMint:    deref(op.InputMint),
		OutputMint:   deref(op.OutputMint),
		Amount:       op.Amount,
		BaseAmount:   op.BaseAmount,
		OutAmount:    op.OutAmount,
		Attempts:     op.Attempts,
		Slot:         op.Slot,
		ErrorKind:    deref(op.ErrorKind),
		ErrorMessage: deref(op.ErrorMessage),
		Finality:     deref(op.Finality),
		FinalizedAt:  op.FinalizedAt,
		CreatedAt:    op.CreatedAt,
		UpdatedAt:    op.UpdatedAt,
	}
}

func resultToResponse(id uuid.UUID, result *wallet.Result) operationResponse {
	return operationResponse{
		ID:          id.String(),
		Kind:        string(result.Kind),
		Status:      string(result.Status),
		Signature:   result.Signature,
		Source:      result.Source,
		Destination: result.Destination,
		InputMint:   result.InputMint,
		OutputMint:  result.OutputMint,
		Amount:      result.Amount,
		BaseAmount:  result.BaseAmount,
		OutAmount:   result.OutAmount,
		Attempts:    int32(result.Attempts),
		Slot:        int64(result.Slot),
		CreatedAt:   result.CompletedAt,
		UpdatedAt:   result.CompletedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseQueryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// statusForKind maps an orchestration failure to an HTTP status.
func statusForKind(kind wallet.Kind) int {
	switch kind {
	case wallet.KindValidation:
		return http.StatusBadRequest
	case wallet.KindInsufficientFunds, wallet.KindNoSourceAccount:
		return http.StatusUnprocessableEntity
	case wallet.KindQuoteUnavailable:
		return http.StatusServiceUnavailable
	case wallet.KindProvisioning, wallet.KindTransactionExpired, wallet.KindSubmissionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, errorResponse{Error: message}, statusCode)
}

// writeWalletError writes an orchestration failure with its kind. Unexpected
// failures only carry the operation id; the cause is in the log and the
// operation row.
func writeWalletError(w http.ResponseWriter, operationID string, err error) {
	kind := wallet.KindOf(err)
	writeJSON(w, errorResponse{
		Error:       wallet.PublicMessage(err),
		Kind:        string(kind),
		OperationID: operationID,
	}, statusForKind(kind))
}

// validateAddress rejects values that cannot be a base58 address before
// they reach the decoder or the database.
func validateAddress(field, address string) error {
	if address == "" {
		return errorf("%s is required", field)
	}
	if len(address) > maxAddressLength {
		return errorf("%s too long: maximum length is %d characters", field, maxAddressLength)
	}
	for _, r := range address {
		if !strings.ContainsRune(base58Alphabet, r) {
			return errorf("invalid %s: must contain only base58 characters", field)
		}
	}
	return nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}

func errorf(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}
