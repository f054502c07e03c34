package wallet

import (
	"context"
	"log/slog"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Registry records which mints already have a referral fee account. EnsureOnce
// must run provision at most once per mint across every caller sharing the
// registry, and only record the mint when provision succeeds.
type Registry interface {
	Contains(ctx context.Context, mint string) (bool, error)
	EnsureOnce(ctx context.Context, mint string, provision func(ctx context.Context) error) (created bool, err error)
}

// ReferralAPI creates referral fee token accounts. *jupiter.Client satisfies it.
type ReferralAPI interface {
	CreateReferralTokenAccount(ctx context.Context, referral, mint, feePayer string) (string, error)
}

// ReferralConfig enables referral fee routing.
type ReferralConfig struct {
	Account        solanago.PublicKey
	FeePayerKey    string // base58 private key, decoded only while provisioning
	PlatformFeeBps int
}

// ReferralProvisioner ensures the referral fee account for a mint exists
// before a swap routes fees into it. A nil *ReferralProvisioner is disabled.
type ReferralProvisioner struct {
	cfg       ReferralConfig
	api       ReferralAPI
	registry  Registry
	ledger    Ledger
	submitter *Submitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewReferralProvisioner returns nil when cfg.Account is zero.
func NewReferralProvisioner(cfg ReferralConfig, api ReferralAPI, registry Registry, ledger Ledger, submitter *Submitter, m *metrics.Metrics, logger *slog.Logger) *ReferralProvisioner {
	if cfg.Account.IsZero() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferralProvisioner{
		cfg:       cfg,
		api:       api,
		registry:  registry,
		ledger:    ledger,
		submitter: submitter,
		logger:    logger,
		metrics:   m,
	}
}

// Enabled reports whether referral fees are routed.
func (p *ReferralProvisioner) Enabled() bool {
	return p != nil
}

// PlatformFeeBps is the fee requested in quotes, 0 when disabled.
func (p *ReferralProvisioner) PlatformFeeBps() int {
	if p == nil {
		return 0
	}
	return p.cfg.PlatformFeeBps
}

// FeeAccount returns the referral fee account for mint, or the zero key when disabled.
func (p *ReferralProvisioner) FeeAccount(mint solanago.PublicKey) (solanago.PublicKey, error) {
	if p == nil {
		return solanago.PublicKey{}, nil
	}
	return solana.ReferralFeeAccount(p.cfg.Account, mint)
}

// Ensure provisions the referral fee account for mint unless the registry
// already has it.
func (p *ReferralProvisioner) Ensure(ctx context.Context, mint solanago.PublicKey) error {
	if p == nil {
		return nil
	}

	known, err := p.registry.Contains(ctx, mint.String())
	if err != nil {
		return wrapErr(KindProvisioning, err, "referral registry lookup for %s", mint)
	}
	if known {
		return nil
	}

	created, err := p.registry.EnsureOnce(ctx, mint.String(), func(ctx context.Context) error {
		return p.provision(ctx, mint)
	})
	if err != nil {
		return asProvisioning(err, "referral account for "+mint.String())
	}
	if created && p.metrics != nil {
		p.metrics.RecordAccountProvisioned("referral", "registered")
	}
	return nil
}

func (p *ReferralProvisioner) provision(ctx context.Context, mint solanago.PublicKey) error {
	feeAccount, err := solana.ReferralFeeAccount(p.cfg.Account, mint)
	if err != nil {
		return err
	}

	exists, err := p.ledger.AccountExists(ctx, feeAccount)
	if err != nil {
		return err
	}
	if exists {
		p.logger.InfoContext(ctx, "referral account already on chain", "mint", mint.String(), "address", feeAccount.String())
		if p.metrics != nil {
			p.metrics.RecordAccountProvisioned("referral", "existing")
		}
		return nil
	}

	key, err := solana.ParseKeyMaterial(p.cfg.FeePayerKey)
	if err != nil {
		return wrapErr(KindProvisioning, err, "fee payer key")
	}
	defer key.Destroy()

	build := func(ctx context.Context) (*solana.Envelope, error) {
		encoded, err := p.api.CreateReferralTokenAccount(ctx, p.cfg.Account.String(), mint.String(), key.PublicKey().String())
		if err != nil {
			return nil, wrapErr(KindProvisioning, err, "request referral account transaction")
		}
		return solana.DecodeEnvelope(encoded, 0)
	}

	p.logger.InfoContext(ctx, "creating referral account", "mint", mint.String(), "address", feeAccount.String())
	if _, err := p.submitter.Submit(ctx, "referral", build, key); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordAccountProvisioned("referral", "created")
	}
	return nil
}

func asProvisioning(err error, what string) *Error {
	if KindOf(err) == KindProvisioning {
		return asError(err, "")
	}
	return &Error{Kind: KindProvisioning, Message: what, Err: err}
}
