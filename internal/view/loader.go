package view

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"opticash/internal/core"
	"opticash/internal/metrics"
	"opticash/internal/store"
)

// Resource names reported in core.RemoteFetchError.
const (
	ResourceMemberContributions = "member-contributions"
	ResourceContributions       = "contributions"
	ResourceBills               = "bills"
)

// Loader fetches the three collections concurrently and joins them once
// all have arrived.
type Loader struct {
	store    store.Reader
	resolver Resolver
	metrics  *metrics.Metrics
}

func NewLoader(s store.Reader, r Resolver) *Loader {
	return &Loader{store: s, resolver: r}
}

// WithMetrics records load outcomes and durations on m.
func (l *Loader) WithMetrics(m *metrics.Metrics) *Loader {
	l.metrics = m
	return l
}

// Load returns the view of memberID within householdID. If any fetch fails
// the others are cancelled and a *core.RemoteFetchError is returned with an
// empty view.
func (l *Loader) Load(ctx context.Context, householdID, memberID string) (View, error) {
	start := time.Now()
	var (
		mcs           []core.MemberContribution
		contributions []core.Contribution
		bills         []core.Bill
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mcs, err = l.store.ListMemberContributions(gctx, memberID)
		return wrapFetch(ResourceMemberContributions, err)
	})
	g.Go(func() error {
		var err error
		contributions, err = l.store.ListContributions(gctx, householdID)
		return wrapFetch(ResourceContributions, err)
	})
	g.Go(func() error {
		var err error
		bills, err = l.store.ListBills(gctx, householdID)
		return wrapFetch(ResourceBills, err)
	})
	if err := g.Wait(); err != nil {
		slog.WarnContext(ctx, "Member view load failed",
			"household_id", householdID,
			"member_id", memberID,
			"error", err)
		l.metrics.ViewLoad(metrics.ResultError, time.Since(start))
		return View{}, err
	}

	v := Build(memberID, mcs, contributions, bills, l.resolver)
	l.metrics.ViewLoad(metrics.ResultOK, time.Since(start))
	slog.DebugContext(ctx, "Member view loaded",
		"household_id", householdID,
		"member_id", memberID,
		"shares", len(v.Shares),
		"skipped", v.Skipped,
		"duration_ms", time.Since(start).Milliseconds())
	return v, nil
}

func wrapFetch(resource string, err error) error {
	if err == nil {
		return nil
	}
	return &core.RemoteFetchError{Resource: resource, Err: err}
}
