// Package registry records which mints already have a provisioned referral
// fee account. Every backend guarantees that concurrent EnsureOnce calls for
// the same mint run the provisioning function at most once, and that a mint
// is only recorded after provisioning succeeds.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/metrics"
)

// Registry is the shared contract of every backend.
type Registry interface {
	Contains(ctx context.Context, mint string) (bool, error)
	EnsureOnce(ctx context.Context, mint string, provision func(ctx context.Context) error) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend       string // memory, redis or postgres
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New builds the configured backend. store is required for the postgres backend.
func New(ctx context.Context, cfg Config, store *db.Store, m *metrics.Metrics, logger *slog.Logger) (Registry, error) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}

	var (
		r   Registry
		err error
	)
	switch cfg.Backend {
	case "memory":
		r = NewMemory()
	case "redis":
		r, err = NewRedis(ctx, RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	case "postgres":
		if store == nil {
			return nil, fmt.Errorf("postgres registry requires a database store")
		}
		r = NewPostgres(store)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(r, cfg.Backend, m), nil
}

// Instrument records every call on m. A nil m returns r unchanged.
func Instrument(r Registry, backend string, m *metrics.Metrics) Registry {
	if m == nil {
		return r
	}
	return &instrumented{next: r, backend: backend, metrics: m}
}

type instrumented struct {
	next    Registry
	backend string
	metrics *metrics.Metrics
}

func (i *instrumented) Contains(ctx context.Context, mint string) (bool, error) {
	ok, err := i.next.Contains(ctx, mint)
	i.metrics.RecordRegistryOperation(i.backend, "contains", err)
	return ok, err
}

func (i *instrumented) EnsureOnce(ctx context.Context, mint string, provision func(ctx context.Context) error) (bool, error) {
	created, err := i.next.EnsureOnce(ctx, mint, provision)
	op := "ensure_existing"
	if created {
		op = "ensure_created"
	}
	i.metrics.RecordRegistryOperation(i.backend, op, err)
	return created, err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
