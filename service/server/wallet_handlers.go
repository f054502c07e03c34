package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
)

type tokenBalanceResponse struct {
	Account  string `json:"account"`
	Mint     string `json:"mint"`
	Program  string `json:"program"`
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
	UIAmount string `json:"ui_amount"`
}

type instructionResponse struct {
	Program     string `json:"program,omitempty"`
	Kind        string `json:"kind"`
	Value       uint64 `json:"value,omitempty"`
	Mint        string `json:"mint,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Memo        string `json:"memo,omitempty"`
}

type transactionResponse struct {
	Signature    string                `json:"signature"`
	Slot         uint64                `json:"slot"`
	BlockTime    *time.Time            `json:"block_time,omitempty"`
	Status       string                `json:"status,omitempty"`
	Success      bool                  `json:"success"`
	Error        string                `json:"error,omitempty"`
	Memo         string                `json:"memo,omitempty"`
	Fee          uint64                `json:"fee"`
	Instructions []instructionResponse `json:"instructions"`
}

// handleWalletTokens lists the wallet's non-empty token accounts.
// GET /api/v1/wallets/{address}/tokens
func handleWalletTokens(wallets WalletQuerier, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := walletAddress(w, r, wallets)
		if !ok {
			return
		}

		tokens, err := wallets.Tokens(r.Context(), owner)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list wallet tokens", "address", owner.String(), "error", err)
			writeWalletError(w, "", err)
			return
		}

		resp := make([]tokenBalanceResponse, 0, len(tokens))
		for _, t := range tokens {
			resp = append(resp, tokenBalanceResponse{
				Account:  t.Account.String(),
				Mint:     t.Mint.String(),
				Program:  t.Program.String(),
				Amount:   t.Amount,
				Decimals: t.Decimals,
				UIAmount: t.UIAmount().String(),
			})
		}
		writeJSON(w, map[string]interface{}{
			"address": owner.String(),
			"tokens":  resp,
			"count":   len(resp),
		}, http.StatusOK)
	})
}

// handleWalletTransactions returns the wallet's recent transactions with
// decoded instructions.
// GET /api/v1/wallets/{address}/transactions?limit=...&before=...
func handleWalletTransactions(wallets WalletQuerier, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := walletAddress(w, r, wallets)
		if !ok {
			return
		}
		q := r.URL.Query()

		limit, err := parseQueryInt(q.Get("limit"), wallet.DefaultHistoryLimit)
		if err != nil || limit <= 0 || limit > wallet.MaxHistoryLimit {
			writeError(w, "invalid limit: must be between 1 and 100", http.StatusBadRequest)
			return
		}

		var before solanago.Signature
		if s := q.Get("before"); s != "" {
			before, err = solanago.SignatureFromBase58(s)
			if err != nil {
				writeError(w, "invalid before: must be a base58 transaction signature", http.StatusBadRequest)
				return
			}
		}

		history, err := wallets.Transactions(r.Context(), owner, limit, before)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list wallet transactions", "address", owner.String(), "error", err)
			writeWalletError(w, "", err)
			return
		}

		resp := make([]transactionResponse, 0, len(history))
		for _, tx := range history {
			resp = append(resp, transactionToResponse(tx))
		}
		writeJSON(w, map[string]interface{}{
			"address":      owner.String(),
			"transactions": resp,
			"count":        len(resp),
			"limit":        limit,
		}, http.StatusOK)
	})
}

// walletAddress validates the {address} path value, writing the error response on failure.
func walletAddress(w http.ResponseWriter, r *http.Request, wallets WalletQuerier) (solanago.PublicKey, bool) {
	if wallets == nil {
		writeError(w, "wallet queries are not configured", http.StatusServiceUnavailable)
		return solanago.PublicKey{}, false
	}
	address := r.PathValue("address")
	if err := validateAddress("address", address); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return solanago.PublicKey{}, false
	}
	owner, err := wallet.ParseAddress("address", address)
	if err != nil {
		writeWalletError(w, "", err)
		return solanago.PublicKey{}, false
	}
	return owner, true
}

func transactionToResponse(tx wallet.TransactionSummary) transactionResponse {
	resp := transactionResponse{
		Signature:    tx.Signature.String(),
		Slot:         tx.Slot,
		BlockTime:    tx.BlockTime,
		Status:       string(tx.Status),
		Success:      tx.Succeeded(),
		Error:        tx.Err,
		Memo:         tx.Memo,
		Fee:          tx.Fee,
		Instructions: make([]instructionResponse, 0, len(tx.Instructions)),
	}
	for _, ix := range tx.Instructions {
		resp.Instructions = append(resp.Instructions, instructionToResponse(ix))
	}
	return resp
}

func instructionToResponse(ix solana.InstructionSummary) instructionResponse {
	resp := instructionResponse{
		Kind:  ix.Kind,
		Value: ix.Value,
		Memo:  ix.Memo,
	}
	if !ix.Program.IsZero() {
		resp.Program = ix.Program.String()
	}
	if ix.Mint != nil {
		resp.Mint = ix.Mint.String()
	}
	if ix.Source != nil {
		resp.Source = ix.Source.String()
	}
	if ix.Dest != nil {
		resp.Destination = ix.Dest.String()
	}
	return resp
}
