// Package cached decorates a store.Store with a read-through LRU cache for
// the slowly changing collections: bills, contributions and household
// rosters. Member contributions carry payment status and are never cached.
package cached

import (
	"context"
	"time"

	"opticash/internal/cache"
	"opticash/internal/core"
	"opticash/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	prefixBills         = "bills:"
	prefixBill          = "bill:"
	prefixContributions = "contributions:"
	prefixMembers       = "members:"
)

type Store struct {
	next          store.Store
	bills         *cache.LRUCache[[]core.Bill]
	bill          *cache.LRUCache[core.Bill]
	contributions *cache.LRUCache[[]core.Contribution]
	members       *cache.LRUCache[[]core.Member]
}

// New wraps next. Each collection keeps at most size entries for ttl.
func New(next store.Store, size int, ttl time.Duration, opts ...cache.LRUOption) *Store {
	return &Store{
		next:          next,
		bills:         cache.NewLRUCache[[]core.Bill](size, ttl, opts...),
		bill:          cache.NewLRUCache[core.Bill](size, ttl, opts...),
		contributions: cache.NewLRUCache[[]core.Contribution](size, ttl, opts...),
		members:       cache.NewLRUCache[[]core.Member](size, ttl, opts...),
	}
}

// Register hands the caches to a cleanup manager.
func (s *Store) Register(m *cache.Manager) {
	m.Register(s.bills)
	m.Register(s.bill)
	m.Register(s.contributions)
	m.Register(s.members)
}

// Invalidate drops everything cached for a household.
func (s *Store) Invalidate(householdID string) {
	s.bills.Delete(prefixBills + householdID)
	s.contributions.Delete(prefixContributions + householdID)
	s.members.Delete(prefixMembers + householdID)
}

// Stats returns the combined counters of all caches.
func (s *Store) Stats() cache.Stats {
	var total cache.Stats
	for _, st := range []cache.Stats{s.bills.Stats(), s.bill.Stats(), s.contributions.Stats(), s.members.Stats()} {
		total.Size += st.Size
		total.Hits += st.Hits
		total.Misses += st.Misses
	}
	return total
}

func (s *Store) ListBills(ctx context.Context, householdID string) ([]core.Bill, error) {
	return readThrough(s.bills, prefixBills+householdID, func() ([]core.Bill, error) {
		return s.next.ListBills(ctx, householdID)
	})
}

func (s *Store) GetBill(ctx context.Context, id string) (core.Bill, error) {
	return readThrough(s.bill, prefixBill+id, func() (core.Bill, error) {
		return s.next.GetBill(ctx, id)
	})
}

func (s *Store) ListContributions(ctx context.Context, householdID string) ([]core.Contribution, error) {
	return readThrough(s.contributions, prefixContributions+householdID, func() ([]core.Contribution, error) {
		return s.next.ListContributions(ctx, householdID)
	})
}

func (s *Store) CreateContribution(ctx context.Context, c core.Contribution) (core.Contribution, error) {
	created, err := s.next.CreateContribution(ctx, c)
	if err != nil {
		return created, err
	}
	s.contributions.Delete(prefixContributions + c.HouseholdID)
	return created, nil
}

func (s *Store) ListMemberContributions(ctx context.Context, memberID string) ([]core.MemberContribution, error) {
	return s.next.ListMemberContributions(ctx, memberID)
}

func (s *Store) CreateMemberContribution(ctx context.Context, mc core.MemberContribution) (core.MemberContribution, error) {
	return s.next.CreateMemberContribution(ctx, mc)
}

func (s *Store) PayMemberContribution(ctx context.Context, id string, amount core.Money) (core.MemberContribution, error) {
	return s.next.PayMemberContribution(ctx, id, amount)
}

func (s *Store) ListHouseholdMembers(ctx context.Context, householdID string) ([]core.Member, error) {
	return readThrough(s.members, prefixMembers+householdID, func() ([]core.Member, error) {
		return s.next.ListHouseholdMembers(ctx, householdID)
	})
}

func (s *Store) Close() error {
	s.bills.Purge()
	s.bill.Purge()
	s.contributions.Purge()
	s.members.Purge()
	return s.next.Close()
}

// readThrough returns the cached value for key or loads and caches it.
// Errors are never cached.
func readThrough[T any](c *cache.LRUCache[T], key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}
