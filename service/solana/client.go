package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// ClientConfig configures a ledger Client.
type ClientConfig struct {
	// Endpoint identifies the RPC endpoint in metrics (e.g. "mainnet", "helius").
	Endpoint string
	// CallTimeout bounds every individual RPC call. Zero means 30s.
	CallTimeout time.Duration
	// Commitment used for reads and as the preflight commitment on sends.
	Commitment rpc.CommitmentType
}

// Client is the ledger facade used by the orchestration core. It performs
// exactly one RPC per method call and never retries; retry policy belongs to
// the caller.
type Client struct {
	rpc        RPCClient
	logger     *slog.Logger
	metrics    *metrics.Metrics
	endpoint   string
	timeout    time.Duration
	commitment rpc.CommitmentType
}

// NewClient creates a new ledger client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, cfg ClientConfig, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	return &Client{
		rpc:        rpcClient,
		logger:     logger,
		metrics:    m,
		endpoint:   cfg.Endpoint,
		timeout:    cfg.CallTimeout,
		commitment: cfg.Commitment,
	}
}

// Balance returns the native balance of owner in lamports.
func (c *Client) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, owner, c.commitment)
	c.record(ctx, "GetBalance", start, err)
	if err != nil {
		return 0, fmt.Errorf("get balance for %s: %w", owner, err)
	}
	return out.Value, nil
}

// LatestBlockhash fetches a recent blockhash and its validity window.
func (c *Client) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	c.record(ctx, "GetLatestBlockhash", start, err)
	if err != nil {
		return Blockhash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return Blockhash{}, fmt.Errorf("get latest blockhash: empty response")
	}
	return Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// AccountExists reports whether an account is allocated at address.
func (c *Client) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		c.record(ctx, "GetAccountInfo", start, nil)
		return false, nil
	}
	c.record(ctx, "GetAccountInfo", start, err)
	if err != nil {
		return false, fmt.Errorf("get account info for %s: %w", address, err)
	}
	return out != nil && out.Value != nil, nil
}

// TokenAccountsByOwner lists the token accounts owner holds for mint.
func (c *Client) TokenAccountsByOwner(ctx context.Context, owner, mint solana.PublicKey) ([]solana.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{Mint: &mint},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
	)
	c.record(ctx, "GetTokenAccountsByOwner", start, err)
	if err != nil {
		return nil, fmt.Errorf("get token accounts for %s (mint %s): %w", owner, mint, err)
	}

	accounts := make([]solana.PublicKey, 0, len(out.Value))
	for _, acct := range out.Value {
		if acct != nil {
			accounts = append(accounts, acct.Pubkey)
		}
	}
	return accounts, nil
}

// TokenAccountBalance returns the balance held by a token account.
func (c *Client) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (TokenAmount, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetTokenAccountBalance(ctx, account, c.commitment)
	c.record(ctx, "GetTokenAccountBalance", start, err)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("get token balance for %s: %w", account, err)
	}
	if out == nil || out.Value == nil {
		return TokenAmount{}, fmt.Errorf("get token balance for %s: empty response", account)
	}

	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
	}
	return TokenAmount{Amount: amount, Decimals: out.Value.Decimals}, nil
}

// MintDecimals returns the decimals of a token mint.
func (c *Client) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetTokenSupply(ctx, mint, c.commitment)
	c.record(ctx, "GetTokenSupply", start, err)
	if err != nil {
		return 0, fmt.Errorf("get token supply for %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("get token supply for %s: empty response", mint)
	}
	return out.Value.Decimals, nil
}

// SendTransaction broadcasts a signed transaction with preflight disabled.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxRetries := uint(0)
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
	c.record(ctx, "SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// SignatureStatus fetches the status of a single signature.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	c.record(ctx, "GetSignatureStatuses", start, err)
	if err != nil {
		return nil, fmt.Errorf("get signature status for %s: %w", sig, err)
	}

	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return &SignatureStatus{Found: false}, nil
	}

	v := out.Value[0]
	status := &SignatureStatus{
		Found:  true,
		Slot:   v.Slot,
		Status: ConfirmationStatus(v.ConfirmationStatus),
	}
	if v.Err != nil {
		status.Err = fmt.Sprintf("%v", v.Err)
	}
	return status, nil
}

// BlockHeight returns the current block height.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	c.record(ctx, "GetBlockHeight", start, err)
	if err != nil {
		return 0, fmt.Errorf("get block height: %w", err)
	}
	return height, nil
}

// TokenHoldings lists every token account owner holds under program, with
// balances decoded from the account data.
func (c *Client) TokenHoldings(ctx context.Context, owner, program solana.PublicKey) ([]TokenHolding, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &program},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
	)
	c.record(ctx, "GetTokenAccountsByOwner", start, err)
	if err != nil {
		return nil, fmt.Errorf("get token accounts for %s (program %s): %w", owner, program, err)
	}

	holdings := make([]TokenHolding, 0, len(out.Value))
	for _, acct := range out.Value {
		if acct == nil || acct.Account.Data == nil {
			continue
		}
		var state token.Account
		if err := bin.NewBinDecoder(acct.Account.Data.GetBinary()).Decode(&state); err != nil {
			return nil, fmt.Errorf("decode token account %s: %w", acct.Pubkey, err)
		}
		holdings = append(holdings, TokenHolding{
			Account: acct.Pubkey,
			Mint:    state.Mint,
			Amount:  state.Amount,
		})
	}
	return holdings, nil
}

// SignaturesForAddress lists up to limit signatures involving address, newest
// first. A non-zero before continues a previous page.
func (c *Client) SignaturesForAddress(ctx context.Context, address solana.PublicKey, limit int, before solana.Signature) ([]SignatureInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	commitment := c.commitment
	if commitment == rpc.CommitmentProcessed {
		commitment = rpc.CommitmentConfirmed
	}

	start := time.Now()
	out, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, address, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Before:     before,
		Commitment: commitment,
	})
	c.record(ctx, "GetSignaturesForAddress", start, err)
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}

	infos := make([]SignatureInfo, 0, len(out))
	for _, s := range out {
		if s == nil {
			continue
		}
		info := SignatureInfo{
			Signature: s.Signature,
			Slot:      s.Slot,
			Status:    ConfirmationStatus(s.ConfirmationStatus),
		}
		if s.BlockTime != nil {
			t := s.BlockTime.Time().UTC()
			info.BlockTime = &t
		}
		if s.Err != nil {
			info.Err = fmt.Sprintf("%v", s.Err)
		}
		if s.Memo != nil {
			info.Memo = *s.Memo
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Transaction fetches and decodes a landed transaction. It returns nil
// without error when the node does not know the signature.
func (c *Client) Transaction(ctx context.Context, sig solana.Signature) (*TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	commitment := c.commitment
	if commitment == rpc.CommitmentProcessed {
		commitment = rpc.CommitmentConfirmed
	}
	maxVersion := uint64(0)

	start := time.Now()
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		c.record(ctx, "GetTransaction", start, nil)
		return nil, nil
	}
	c.record(ctx, "GetTransaction", start, err)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if out == nil || out.Transaction == nil {
		return nil, nil
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}
	record := &TransactionRecord{Signature: sig, Slot: out.Slot, Tx: tx}
	if out.BlockTime != nil {
		t := out.BlockTime.Time().UTC()
		record.BlockTime = &t
	}
	if out.Meta != nil {
		record.Fee = out.Meta.Fee
		if out.Meta.Err != nil {
			record.Err = fmt.Sprintf("%v", out.Meta.Err)
		}
	}
	return record, nil
}

// record emits call metrics and logs failures at warn level.
func (c *Client) record(ctx context.Context, method string, start time.Time, err error) {
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.WarnContext(ctx, "solana rpc call failed",
			"method", method,
			"endpoint", c.endpoint,
			"error", err,
		)
	}

	if c.metrics == nil {
		return
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	if rateLimited(err) {
		c.metrics.RecordRateLimitHit(c.endpoint)
	}
}
