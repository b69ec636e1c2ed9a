package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"opticash/internal/allocation"
	"opticash/internal/core"
	"opticash/internal/metrics"
	"opticash/internal/store"
)

// Resource names reported in core.RemoteFetchError.
const (
	ResourceBills               = "bills"
	ResourceHouseholdMembers    = "household-members"
	ResourceMemberContributions = "member-contributions"
)

// DefaultBatchConcurrency bounds concurrent member contribution creates.
const DefaultBatchConcurrency = 4

// ContributionStore is what ContributionService needs from the remote store.
type ContributionStore interface {
	store.BillReader
	store.ContributionStore
	store.MemberContributionReader
	store.MemberContributionWriter
	store.MemberLister
}

// ContributionRequest describes a split of one bill.
type ContributionRequest struct {
	BillID      string
	Description string
	Strategy    core.StrategyTag
	DueDate     time.Time
}

// ContributionResult is a fully persisted split.
type ContributionResult struct {
	Contribution core.Contribution
	Records      []core.MemberContribution
	// Unassigned is the part of the bill no record covers: the sum of the
	// records still failing. Zero after a successful split.
	Unassigned core.Money
}

// RecordFailure is one member contribution the store refused.
type RecordFailure struct {
	Record core.MemberContribution
	Err    error
}

// PartialBatchError reports a contribution whose member contributions were
// only partly created. Created holds the records the store accepted.
type PartialBatchError struct {
	Contribution core.Contribution
	Created      []core.MemberContribution
	Failed       []RecordFailure
}

func (e *PartialBatchError) Error() string {
	members := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		members[i] = f.Record.MemberID
	}
	return fmt.Sprintf("contribution %s: %d of %d member contributions failed (%s)",
		e.Contribution.ID, len(e.Failed), len(e.Failed)+len(e.Created), strings.Join(members, ", "))
}

func (e *PartialBatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// ContributionService splits bills and persists the resulting records.
type ContributionService struct {
	store       ContributionStore
	concurrency int
	metrics     *metrics.Metrics
}

type ContributionOption func(*ContributionService)

// WithBatchConcurrency sets how many creates may run at once.
func WithBatchConcurrency(n int) ContributionOption {
	return func(s *ContributionService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithContributionMetrics(m *metrics.Metrics) ContributionOption {
	return func(s *ContributionService) { s.metrics = m }
}

func NewContributionService(s ContributionStore, opts ...ContributionOption) *ContributionService {
	svc := &ContributionService{store: s, concurrency: DefaultBatchConcurrency}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateContribution splits the bill among its household roster and
// persists the contribution and one record per member.
//
// Allocation is computed before any write, so allocation errors leave the
// store untouched. When some records fail the returned error is a
// *PartialBatchError and the result still carries what was created.
func (s *ContributionService) CreateContribution(ctx context.Context, req ContributionRequest) (ContributionResult, error) {
	if _, err := allocation.Resolve(req.Strategy); err != nil {
		s.metrics.Allocation(string(req.Strategy), metrics.ResultError)
		return ContributionResult{}, err
	}
	tag := core.StrategyTag(strings.ToUpper(strings.TrimSpace(string(req.Strategy))))

	bill, err := s.store.GetBill(ctx, req.BillID)
	if err != nil {
		return ContributionResult{}, &core.RemoteFetchError{Resource: ResourceBills, Err: err}
	}
	roster, err := s.store.ListHouseholdMembers(ctx, bill.HouseholdID)
	if err != nil {
		return ContributionResult{}, &core.RemoteFetchError{Resource: ResourceHouseholdMembers, Err: err}
	}

	meta := core.Contribution{
		BillID:      bill.ID,
		HouseholdID: bill.HouseholdID,
		Description: req.Description,
		Strategy:    tag,
		DueDate:     req.DueDate,
	}
	if meta.Description == "" {
		meta.Description = bill.Description
	}

	// Dry run: the contribution ID is not known yet.
	records, err := allocation.CreateAllocation(bill, meta, roster, tag)
	if err != nil {
		s.metrics.Allocation(string(tag), metrics.ResultError)
		return ContributionResult{}, err
	}

	created, err := s.store.CreateContribution(ctx, meta)
	if err != nil {
		return ContributionResult{}, fmt.Errorf("create contribution for bill %s: %w", bill.ID, err)
	}
	for i := range records {
		records[i].ContributionID = created.ID
	}

	slog.InfoContext(ctx, "Contribution created",
		"contribution_id", created.ID,
		"bill_id", bill.ID,
		"household_id", bill.HouseholdID,
		"strategy", tag,
		"members", len(records))

	ok, failed := s.persist(ctx, records)
	result := ContributionResult{
		Contribution: created,
		Records:      ok,
		Unassigned:   allocation.Unassigned(bill, ok),
	}
	if len(failed) > 0 {
		s.metrics.Allocation(string(tag), metrics.ResultPartial)
		return result, &PartialBatchError{Contribution: created, Created: ok, Failed: failed}
	}
	s.metrics.Allocation(string(tag), metrics.ResultOK)
	return result, nil
}

// RetryFailed re-issues only the failed records of a partial batch. A
// record the store now reports as existing counts as created, carrying the
// stored ID.
func (s *ContributionService) RetryFailed(ctx context.Context, perr *PartialBatchError) (ContributionResult, error) {
	if perr == nil {
		return ContributionResult{}, errors.New("retry failed: nil batch error")
	}
	pending := make([]core.MemberContribution, len(perr.Failed))
	for i, f := range perr.Failed {
		pending[i] = f.Record
	}

	ok, failed := s.persist(ctx, pending)
	created := append(append([]core.MemberContribution(nil), perr.Created...), ok...)
	result := ContributionResult{Contribution: perr.Contribution, Records: created}
	for _, f := range failed {
		result.Unassigned = result.Unassigned.Add(f.Record.Amount)
	}
	if len(failed) > 0 {
		return result, &PartialBatchError{Contribution: perr.Contribution, Created: created, Failed: failed}
	}
	return result, nil
}

// existing fetches the stored record with the same (contribution, member)
// key as r, so a create that lost a race still yields a payable ID.
func (s *ContributionService) existing(ctx context.Context, r core.MemberContribution) (core.MemberContribution, error) {
	records, err := s.store.ListMemberContributions(ctx, r.MemberID)
	if err != nil {
		return core.MemberContribution{}, &core.RemoteFetchError{Resource: ResourceMemberContributions, Err: err}
	}
	for _, mc := range records {
		if mc.Key() == r.Key() && mc.ID != "" {
			slog.DebugContext(ctx, "Member contribution already exists",
				"member_contribution_id", mc.ID,
				"contribution_id", r.ContributionID,
				"member_id", r.MemberID)
			return mc, nil
		}
	}
	return core.MemberContribution{}, fmt.Errorf("member contribution for member %s of contribution %s conflicts but is not listed: %w",
		r.MemberID, r.ContributionID, store.ErrConflict)
}

// persist creates every record with bounded concurrency. A failing record
// never cancels its siblings. Results keep the input order.
func (s *ContributionService) persist(ctx context.Context, records []core.MemberContribution) ([]core.MemberContribution, []RecordFailure) {
	results := make([]core.MemberContribution, len(records))
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, r := range records {
		g.Go(func() error {
			mc, err := s.store.CreateMemberContribution(ctx, r)
			if errors.Is(err, store.ErrConflict) {
				mc, err = s.existing(ctx, r)
			}
			results[i], errs[i] = mc, err
			return nil
		})
	}
	_ = g.Wait()

	var (
		ok     []core.MemberContribution
		failed []RecordFailure
	)
	for i := range records {
		if errs[i] != nil {
			slog.WarnContext(ctx, "Failed to create member contribution",
				"contribution_id", records[i].ContributionID,
				"member_id", records[i].MemberID,
				"error", errs[i])
			s.metrics.RecordCreated(metrics.ResultError)
			failed = append(failed, RecordFailure{Record: records[i], Err: errs[i]})
			continue
		}
		s.metrics.RecordCreated(metrics.ResultOK)
		ok = append(ok, results[i])
	}
	return ok, failed
}
