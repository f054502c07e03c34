package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
)

// SwapRequest asks the swap API to encode a transaction for a quote.
type SwapRequest struct {
	UserPublicKey             string
	Quote                     *Quote
	FeeAccount                string // empty when referral fees are disabled
	PrioritizationFeeLamports uint64
}

// SwapTransaction is an unsigned, base64 encoded versioned transaction.
type SwapTransaction struct {
	Transaction          string
	LastValidBlockHeight uint64
}

type swapRequestBody struct {
	UserPublicKey             string          `json:"userPublicKey"`
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
	FeeAccount                string          `json:"feeAccount,omitempty"`
}

type swapResponseBody struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Swap builds the swap transaction for a previously fetched quote.
func (c *Client) Swap(ctx context.Context, r SwapRequest) (*SwapTransaction, error) {
	if r.Quote == nil || len(r.Quote.Raw) == 0 {
		return nil, fmt.Errorf("swap: quote is required")
	}

	var out swapResponseBody
	err := c.postJSON(ctx, c.quoteURL+"/swap", "swap", swapRequestBody{
		UserPublicKey:             r.UserPublicKey,
		QuoteResponse:             r.Quote.Raw,
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: r.PrioritizationFeeLamports,
		FeeAccount:                r.FeeAccount,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.SwapTransaction == "" {
		return nil, fmt.Errorf("swap: response has no transaction")
	}
	return &SwapTransaction{
		Transaction:          out.SwapTransaction,
		LastValidBlockHeight: out.LastValidBlockHeight,
	}, nil
}
