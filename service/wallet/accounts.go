package wallet

import (
	"context"
	"log/slog"

	"github.com/brojonat/solwallet/service/keylock"
	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// AccountProvisioner makes sure associated token accounts exist before a
// transaction relies on them. Creation is serialized per (owner, mint) so
// concurrent callers create at most once.
type AccountProvisioner struct {
	ledger    Ledger
	submitter *Submitter
	fees      *solana.FeeBudgetPolicy
	locks     *keylock.Map
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewAccountProvisioner creates a provisioner. If metrics is nil, no metrics will be recorded.
func NewAccountProvisioner(ledger Ledger, submitter *Submitter, fees *solana.FeeBudgetPolicy, m *metrics.Metrics, logger *slog.Logger) *AccountProvisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountProvisioner{
		ledger:    ledger,
		submitter: submitter,
		fees:      fees,
		locks:     keylock.New(),
		logger:    logger,
		metrics:   m,
	}
}

// EnsureAccount returns owner's associated token account for mint, creating
// it with payer as fee payer when it does not exist yet. Existence is always
// re-checked against the ledger, never cached.
func (p *AccountProvisioner) EnsureAccount(ctx context.Context, payer *solana.KeyMaterial, owner, mint solanago.PublicKey) (AccountHandle, error) {
	address, err := solana.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return AccountHandle{}, wrapErr(KindValidation, err, "derive token account")
	}
	handle := AccountHandle{Owner: owner, Mint: mint, Address: address}

	unlock := p.locks.Lock(owner.String() + "/" + mint.String())
	defer unlock()

	exists, err := p.ledger.AccountExists(ctx, address)
	if err != nil {
		return AccountHandle{}, wrapErr(KindProvisioning, err, "check token account %s", address)
	}
	if exists {
		p.record("existing")
		handle.Existed = true
		return handle, nil
	}

	p.logger.InfoContext(ctx, "creating token account",
		"owner", owner.String(),
		"mint", mint.String(),
		"address", address.String(),
		"payer", payer,
	)

	build := func(ctx context.Context) (*solana.Envelope, error) {
		create, err := solana.CreateTokenAccountInstruction(payer.PublicKey(), owner, mint)
		if err != nil {
			return nil, err
		}
		budget, err := p.fees.Budget().Instructions()
		if err != nil {
			return nil, err
		}
		blockhash, err := p.ledger.LatestBlockhash(ctx)
		if err != nil {
			return nil, wrapErr(KindProvisioning, err, "fetch blockhash")
		}
		staged := append(solana.Staged(solana.StageComputeBudget, budget...), solana.Staged(solana.StageAccountSetup, create)...)
		return solana.Build(payer.PublicKey(), blockhash, staged)
	}

	result, err := p.submitter.Submit(ctx, "provision", build, payer)
	if err != nil {
		p.record("failed")
		return AccountHandle{}, &Error{
			Kind:    KindProvisioning,
			Message: "create token account " + address.String(),
			Err:     err,
		}
	}

	p.record("created")
	p.logger.InfoContext(ctx, "token account created",
		"address", address.String(),
		"signature", result.Signature.String(),
	)
	return handle, nil
}

func (p *AccountProvisioner) record(action string) {
	if p.metrics != nil {
		p.metrics.RecordAccountProvisioned("token_account", action)
	}
}
