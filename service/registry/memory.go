package registry

import (
	"context"
	"sync"

	"github.com/brojonat/solwallet/service/keylock"
)

// Memory is a process-local registry. Provisioning for one mint does not
// block lookups or provisioning of other mints.
type Memory struct {
	mu    sync.Mutex
	mints map[string]bool
	locks *keylock.Map
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		mints: make(map[string]bool),
		locks: keylock.New(),
	}
}

// Contains reports whether mint is registered.
func (r *Memory) Contains(ctx context.Context, mint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mints[mint], nil
}

// EnsureOnce runs provision unless mint is registered, holding the mint's lock throughout.
func (r *Memory) EnsureOnce(ctx context.Context, mint string, provision func(ctx context.Context) error) (bool, error) {
	unlock := r.locks.Lock(mint)
	defer unlock()

	if known, _ := r.Contains(ctx, mint); known {
		return false, nil
	}
	if err := provision(ctx); err != nil {
		return false, err
	}

	r.mu.Lock()
	r.mints[mint] = true
	r.mu.Unlock()
	return true, nil
}

// Mints returns the registered mints in no particular order.
func (r *Memory) Mints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.mints))
	for m := range r.mints {
		out = append(out, m)
	}
	return out
}
