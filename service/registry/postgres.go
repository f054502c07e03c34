package registry

import (
	"context"

	"github.com/brojonat/solwallet/service/db"
)

// Postgres stores registered mints in the referral_mints table and
// serializes provisioning with a transaction-scoped advisory lock.
type Postgres struct {
	store *db.Store
}

// NewPostgres creates a registry backed by store.
func NewPostgres(store *db.Store) *Postgres {
	return &Postgres{store: store}
}

func (r *Postgres) Contains(ctx context.Context, mint string) (bool, error) {
	return r.store.IsReferralMint(ctx, mint)
}

func (r *Postgres) EnsureOnce(ctx context.Context, mint string, provision func(ctx context.Context) error) (bool, error) {
	return r.store.EnsureReferralMint(ctx, mint, provision)
}
