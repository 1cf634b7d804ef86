package priority

import (
	"context"
	"sort"
	"sync"

	"github.com/rdss/casework/internal/shared/errors"
)

// Store is the persistence interface for tiers.
type Store interface {
	All(ctx context.Context) ([]Tier, error)
	Insert(ctx context.Context, t Tier) error
}

// Registry serves tier lookups from memory. The tier set is closed, so it
// is loaded once at startup (seeding defaults when the store is empty) and
// never refreshed.
type Registry struct {
	mu    sync.RWMutex
	tiers map[string]Tier
}

// NewRegistry loads all tiers from the store, seeding DefaultTiers when the
// store holds none.
func NewRegistry(ctx context.Context, store Store) (*Registry, error) {
	tiers, err := store.All(ctx)
	if err != nil {
		return nil, err
	}

	if len(tiers) == 0 {
		for _, t := range DefaultTiers() {
			if err := store.Insert(ctx, t); err != nil {
				return nil, err
			}
		}
		tiers, err = store.All(ctx)
		if err != nil {
			return nil, err
		}
	}

	r := &Registry{tiers: make(map[string]Tier, len(tiers))}
	for _, t := range tiers {
		if err := ValidateCode(t.Code); err != nil {
			return nil, err
		}
		r.tiers[t.Code] = t
	}

	return r, nil
}

// NewStaticRegistry builds a registry straight from a tier slice. Used in
// tests and by callers embedding the engine without a database.
func NewStaticRegistry(tiers []Tier) *Registry {
	r := &Registry{tiers: make(map[string]Tier, len(tiers))}
	for _, t := range tiers {
		r.tiers[t.Code] = t
	}
	return r
}

// Get returns the tier for a code.
func (r *Registry) Get(code string) (Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tiers[code]
	if !ok {
		return Tier{}, errors.NotFound("priority tier", code)
	}
	return t, nil
}

// All returns every tier ordered by code (P1 first).
func (r *Registry) All() []Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tier, 0, len(r.tiers))
	for _, t := range r.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
