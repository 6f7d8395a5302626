package accounts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTier is assumed for addresses with no account record.
const DefaultTier = "standard"

// Directory resolves tier and exemption for the rate limiter, caching
// store lookups so the hot transfer path does not hit Postgres.
type Directory struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]directoryEntry
}

type directoryEntry struct {
	tier      string
	exempt    bool
	fetchedAt time.Time
}

// NewDirectory creates a caching directory over the store.
func NewDirectory(store Store, ttl time.Duration) *Directory {
	return &Directory{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]directoryEntry),
	}
}

// Lookup implements ratelimit.Directory. Unknown addresses resolve to
// the default tier, not an error.
func (d *Directory) Lookup(ctx context.Context, address string) (string, bool, error) {
	d.mu.RLock()
	entry, ok := d.cache[address]
	d.mu.RUnlock()
	if ok && d.now().Sub(entry.fetchedAt) < d.ttl {
		return entry.tier, entry.exempt, nil
	}

	account, err := d.store.Get(ctx, address)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			d.put(address, DefaultTier, false)
			return DefaultTier, false, nil
		}
		return "", false, err
	}

	d.put(address, account.Tier, account.Exempt)
	return account.Tier, account.Exempt, nil
}

// Invalidate drops one address from the cache, called after admin writes.
func (d *Directory) Invalidate(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, address)
}

func (d *Directory) put(address, tier string, exempt bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[address] = directoryEntry{tier: tier, exempt: exempt, fetchedAt: d.now()}
}

// StaticDirectory serves tiers and exemptions from configuration, used
// by memory-ledger deployments that run without Postgres.
type StaticDirectory struct {
	Tiers  map[string]string
	Exempt map[string]bool
}

// Lookup implements ratelimit.Directory.
func (s *StaticDirectory) Lookup(_ context.Context, address string) (string, bool, error) {
	tier, ok := s.Tiers[address]
	if !ok {
		tier = DefaultTier
	}
	return tier, s.Exempt[address], nil
}
