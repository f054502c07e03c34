package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Operation is one transfer or swap as recorded by the server.
type Operation struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`   // transfer, swap
	Status       string     `json:"status"` // pending, confirmed, failed
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
	Finality     string     `json:"finality,omitempty"` // finalized, failed, unknown
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TransferRequest moves Amount of the native asset, or of Mint when set, to
// Destination.
type TransferRequest struct {
	PrivateKey  string `json:"private_key"`
	Destination string `json:"destination"`
	Mint        string `json:"mint,omitempty"`
	Amount      string `json:"amount"`
}

// SwapRequest exchanges Amount of InputMint for OutputMint. An empty
// Slippage uses the server default.
type SwapRequest struct {
	PrivateKey string `json:"private_key"`
	InputMint  string `json:"input_mint"`
	OutputMint string `json:"output_mint"`
	Amount     string `json:"amount"`
	Slippage   string `json:"slippage,omitempty"`
}

// ListOptions filters ListOperations.
type ListOptions struct {
	Address string
	Limit   int
	Offset  int
}

// TokenBalance is one non-empty token account of a wallet.
type TokenBalance struct {
	Account  string `json:"account"`
	Mint     string `json:"mint"`
	Program  string `json:"program"`
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
	UIAmount string `json:"ui_amount"`
}

// Instruction is a decoded instruction of a wallet transaction.
type Instruction struct {
	Program     string `json:"program,omitempty"`
	Kind        string `json:"kind"` // transfer, transfer_checked, create_token_account, ...
	Value       uint64 `json:"value,omitempty"`
	Mint        string `json:"mint,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Memo        string `json:"memo,omitempty"`
}

// Transaction is one entry of a wallet's on-chain history.
type Transaction struct {
	Signature    string        `json:"signature"`
	Slot         uint64        `json:"slot"`
	BlockTime    *time.Time    `json:"block_time,omitempty"`
	Status       string        `json:"status,omitempty"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Memo         string        `json:"memo,omitempty"`
	Fee          uint64        `json:"fee"`
	Instructions []Instruction `json:"instructions"`
}

// HistoryOptions pages WalletTransactions. Before continues after the last
// signature of a previous page.
type HistoryOptions struct {
	Limit  int
	Before string
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode  int
	Message     string
	Kind        string // failure kind, e.g. insufficient_funds
	OperationID string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("request failed (%d %s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the solwallet service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new wallet service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		// Submissions wait for confirmation server side.
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Transfer submits a transfer and returns the recorded operation.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*Operation, error) {
	var op Operation
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfers", req, &op); err != nil {
		return nil, err
	}
	c.logger.Debug("transfer submitted", "id", op.ID, "signature", op.Signature)
	return &op, nil
}

// Swap submits a swap and returns the recorded operation.
func (c *Client) Swap(ctx context.Context, req SwapRequest) (*Operation, error) {
	var op Operation
	if err := c.do(ctx, http.MethodPost, "/api/v1/swaps", req, &op); err != nil {
		return nil, err
	}
	c.logger.Debug("swap submitted", "id", op.ID, "signature", op.Signature)
	return &op, nil
}

// GetOperation fetches one operation by id.
func (c *Client) GetOperation(ctx context.Context, id string) (*Operation, error) {
	var op Operation
	if err := c.do(ctx, http.MethodGet, "/api/v1/operations/"+url.PathEscape(id), nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// ListOperations lists operations newest first.
func (c *Client) ListOperations(ctx context.Context, opts ListOptions) ([]*Operation, error) {
	q := url.Values{}
	if opts.Address != "" {
		q.Set("address", opts.Address)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/v1/operations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Operations []*Operation `json:"operations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Operations, nil
}

// WalletTokens lists the token accounts address holds a non-zero balance in.
func (c *Client) WalletTokens(ctx context.Context, address string) ([]TokenBalance, error) {
	var result struct {
		Tokens []TokenBalance `json:"tokens"`
	}
	path := "/api/v1/wallets/" + url.PathEscape(address) + "/tokens"
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Tokens, nil
}

// WalletTransactions returns address's recent transactions, newest first.
func (c *Client) WalletTransactions(ctx context.Context, address string, opts HistoryOptions) ([]Transaction, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Before != "" {
		q.Set("before", opts.Before)
	}
	path := "/api/v1/wallets/" + url.PathEscape(address) + "/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Transactions, nil
}

// AwaitFinality polls an operation until the server records its finality,
// or ctx ends.
func (c *Client) AwaitFinality(ctx context.Context, id string, interval time.Duration) (*Operation, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		op, err := c.GetOperation(ctx, id)
		if err != nil {
			return nil, err
		}
		if op.Finality != "" {
			return op, nil
		}
		if op.Status == "failed" {
			return op, fmt.Errorf("operation %s failed: %s", id, op.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error       string `json:"error"`
		Kind        string `json:"kind"`
		OperationID string `json:"operation_id"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Message:     errResp.Error,
		Kind:        errResp.Kind,
		OperationID: errResp.OperationID,
	}
}
