package solana

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassUnknown},
		{"blockhash not found", errors.New("Transaction simulation failed: Blockhash not found"), ClassTransient},
		{"rate limited", errors.New("HTTP status 429 Too Many Requests"), ClassTransient},
		{"deadline", fmt.Errorf("send transaction: %w", context.DeadlineExceeded), ClassTransient},
		{"node unhealthy code", &jsonrpc.RPCError{Code: -32005, Message: "Node is unhealthy"}, ClassTransient},
		{"expired", errors.New("TransactionExpiredBlockheightExceededError: block height exceeded"), ClassExpired},
		{"duplicate", errors.New("This transaction has already been processed"), ClassDuplicate},
		{"program error", errors.New("Transaction simulation failed: custom program error: 0x1"), ClassRejected},
		{"insufficient funds", errors.New("Attempt to debit an account but found no record of a prior credit. insufficient funds"), ClassRejected},
		{"preflight code", fmt.Errorf("send transaction: %w", &jsonrpc.RPCError{Code: -32002, Message: "Transaction precompile verification failure"}), ClassRejected},
		{"unrecognized", errors.New("something odd"), ClassUnknown},
		{"gateway status", jsonrpc.NewHTTPError(503, errors.New("rpc call sendTransaction() on https://rpc.example status code: 503. rpc response missing")), ClassTransient},
		{"gateway status text", errors.New("rpc call getBalance() on https://rpc.example status code: 502. could not decode body to rpc response"), ClassTransient},
		{"dropped connection", fmt.Errorf(`Post "https://rpc.example": %w`, io.EOF), ClassTransient},
		{"dropped connection text", errors.New(`Post "https://rpc.example": EOF`), ClassTransient},
		{"client status is not retried", jsonrpc.NewHTTPError(401, errors.New("rpc call sendTransaction() on https://rpc.example status code: 401. rpc response missing")), ClassUnknown},
		{"program error code containing 503", errors.New("Transaction simulation failed: custom program error: 0x503"), ClassRejected},
		{"account data naming 429", errors.New("invalid account data for instruction 4290"), ClassRejected},
		{"eof inside a word", errors.New("Transaction simulation failed: Program log: thereof: insufficient lamports"), ClassRejected},
		{"unknown text with 504", errors.New("slot 50412 not confirmed"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "expired", ClassExpired.String())
	assert.Equal(t, "rejected", ClassRejected.String())
	assert.Equal(t, "duplicate", ClassDuplicate.String())
	assert.Equal(t, "unknown", ClassUnknown.String())
}

func TestRateLimited(t *testing.T) {
	assert.True(t, rateLimited(jsonrpc.NewHTTPError(429, errors.New("rpc call getBalance() status code: 429"))))
	assert.True(t, rateLimited(errors.New("HTTP status 429 Too Many Requests")))
	assert.False(t, rateLimited(errors.New("custom program error: 0x429")))
	assert.False(t, rateLimited(nil))
}
