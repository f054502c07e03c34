package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// QuoteRequest asks for the best route for an exact input amount.
type QuoteRequest struct {
	InputMint      string
	OutputMint     string
	Amount         uint64 // input base units
	SlippageBps    int
	PlatformFeeBps int // 0 omits the parameter
}

// Quote is a route returned by the quote API. Raw is passed back unchanged
// when requesting the swap transaction.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct string
	Raw            json.RawMessage
}

type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// Quote fetches a swap route.
func (c *Client) Quote(ctx context.Context, q QuoteRequest) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", q.InputMint)
	params.Set("outputMint", q.OutputMint)
	params.Set("amount", strconv.FormatUint(q.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(q.SlippageBps))
	if q.PlatformFeeBps > 0 {
		params.Set("platformFeeBps", strconv.Itoa(q.PlatformFeeBps))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("quote: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var raw json.RawMessage
	if err := c.do(req, "quote", &raw); err != nil {
		return nil, err
	}

	var parsed quoteResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("quote: failed to decode response: %w", err)
	}
	inAmount, err := strconv.ParseUint(parsed.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quote: invalid inAmount %q: %w", parsed.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(parsed.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quote: invalid outAmount %q: %w", parsed.OutAmount, err)
	}

	return &Quote{
		InputMint:      parsed.InputMint,
		OutputMint:     parsed.OutputMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		PriceImpactPct: parsed.PriceImpactPct,
		Raw:            raw,
	}, nil
}
