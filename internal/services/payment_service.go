package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"opticash/internal/amqp"
	"opticash/internal/core"
	"opticash/internal/metrics"
	"opticash/internal/overlay"
	"opticash/internal/store"
)

// PaymentStore is what PaymentService needs from the remote store.
type PaymentStore interface {
	store.PaymentSubmitter
	store.MemberContributionReader
}

// Publisher queues offline payments for later submission.
type Publisher interface {
	PublishPayment(ctx context.Context, msg *amqp.PaymentMessage) error
}

// PaymentService submits payments and keeps the local overlay in step with
// the store.
type PaymentService struct {
	store     PaymentStore
	overlay   *overlay.Overlay
	kv        overlay.KV
	publisher Publisher
	metrics   *metrics.Metrics

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type PaymentOption func(*PaymentService)

// WithStateStore persists the overlay after every change.
func WithStateStore(kv overlay.KV) PaymentOption {
	return func(s *PaymentService) { s.kv = kv }
}

// WithPublisher queues offline payments through p.
func WithPublisher(p Publisher) PaymentOption {
	return func(s *PaymentService) { s.publisher = p }
}

func WithPaymentMetrics(m *metrics.Metrics) PaymentOption {
	return func(s *PaymentService) { s.metrics = m }
}

func NewPaymentService(s PaymentStore, o *overlay.Overlay, opts ...PaymentOption) *PaymentService {
	if o == nil {
		o = overlay.New()
	}
	svc := &PaymentService{
		store:    s,
		overlay:  o,
		inFlight: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.metrics.OverlaySize(o.Len())
	return svc
}

// Overlay returns the overlay the service maintains.
func (s *PaymentService) Overlay() *overlay.Overlay {
	return s.overlay
}

func (s *PaymentService) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *PaymentService) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// Pay submits a payment for one member contribution. At most one request
// per ID is outstanding; a concurrent call fails with core.ErrPaymentInFlight.
// Store failures are returned as *core.RemotePaymentError and leave the
// authoritative status unchanged.
func (s *PaymentService) Pay(ctx context.Context, id string, amount core.Money) (core.MemberContribution, error) {
	if id == "" {
		return core.MemberContribution{}, overlay.ErrEmptyID
	}
	if err := amount.Validate(); err != nil {
		return core.MemberContribution{}, fmt.Errorf("pay member contribution %s: %w", id, err)
	}
	if !s.acquire(id) {
		s.metrics.Payment(metrics.ResultInFlight)
		return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w", id, core.ErrPaymentInFlight)
	}
	defer s.release(id)

	paid, err := s.store.PayMemberContribution(ctx, id, amount)
	if err != nil {
		if errors.Is(err, core.ErrAlreadyPaid) {
			s.metrics.Payment(metrics.ResultConflict)
			s.retire(ctx, id)
		} else {
			s.metrics.Payment(metrics.ResultError)
		}
		slog.WarnContext(ctx, "Payment failed",
			"member_contribution_id", id,
			"amount_cents", amount.Cents,
			"error", err)
		return core.MemberContribution{}, &core.RemotePaymentError{MemberContributionID: id, Err: err}
	}

	s.metrics.Payment(metrics.ResultOK)
	s.retire(ctx, id)
	slog.InfoContext(ctx, "Payment recorded",
		"member_contribution_id", id,
		"member_id", paid.MemberID,
		"amount_cents", paid.Amount.Cents)
	return paid, nil
}

// RecordOffline records a local payment for mc and queues it for later
// submission. A failed publish is logged; the entry stays in the overlay
// and SubmitPending picks it up.
func (s *PaymentService) RecordOffline(ctx context.Context, householdID string, mc core.MemberContribution) (overlay.Entry, error) {
	if mc.Status.IsPaid() {
		return overlay.Entry{}, fmt.Errorf("member contribution %s: %w", mc.ID, core.ErrAlreadyPaid)
	}
	entry, err := s.overlay.RecordLocalPayment(mc.ID, mc.Amount)
	if err != nil {
		return overlay.Entry{}, fmt.Errorf("record local payment %s: %w", mc.ID, err)
	}
	s.metrics.OfflinePayment()
	if err := s.save(ctx); err != nil {
		return entry, err
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, payment kept in overlay",
			"member_contribution_id", mc.ID)
		return entry, nil
	}
	msg := amqp.NewPaymentMessage(mc.ID, mc.MemberID, householdID, entry.OriginalAmount, *entry.RecordedAt)
	if err := s.publisher.PublishPayment(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish offline payment",
			"member_contribution_id", mc.ID,
			"error", err)
	}
	return entry, nil
}

// Refresh reloads the overlay from the state store so that entries
// recorded by another process are visible.
func (s *PaymentService) Refresh(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	healed, err := overlay.Reload(ctx, s.kv, s.overlay)
	if healed {
		s.metrics.OverlayHealed()
	}
	if err != nil {
		return err
	}
	s.metrics.OverlaySize(s.overlay.Len())
	return nil
}

// SubmitPending pays every overlay entry against the store. Entries the
// store already reports as paid are retired. It returns how many were
// settled and the joined errors of the rest.
func (s *PaymentService) SubmitPending(ctx context.Context) (int, error) {
	var (
		settled int
		errs    []error
	)
	for _, id := range s.overlay.IDs() {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		entry, ok := s.overlay.Lookup(id)
		if !ok {
			continue
		}
		_, err := s.Pay(ctx, id, entry.OriginalAmount)
		switch {
		case err == nil, errors.Is(err, core.ErrAlreadyPaid):
			settled++
		case errors.Is(err, core.ErrPaymentInFlight):
		default:
			errs = append(errs, err)
		}
	}
	return settled, errors.Join(errs...)
}

// Reconcile drops overlay entries that the store now reports as PAID for
// memberID and returns how many were dropped.
func (s *PaymentService) Reconcile(ctx context.Context, memberID string) (int, error) {
	records, err := s.store.ListMemberContributions(ctx, memberID)
	if err != nil {
		return 0, &core.RemoteFetchError{Resource: ResourceMemberContributions, Err: err}
	}
	n := s.overlay.Prune(records)
	if n == 0 {
		return 0, nil
	}
	slog.InfoContext(ctx, "Overlay reconciled",
		"member_id", memberID,
		"retired", n)
	return n, s.save(ctx)
}

func (s *PaymentService) retire(ctx context.Context, id string) {
	if !s.overlay.Retire(id) {
		return
	}
	if err := s.save(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to persist overlay", "error", err)
	}
}

func (s *PaymentService) save(ctx context.Context) error {
	s.metrics.OverlaySize(s.overlay.Len())
	if s.kv == nil {
		return nil
	}
	return overlay.Save(ctx, s.kv, s.overlay)
}
