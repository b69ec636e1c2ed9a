package worker

import (
	"context"
	"errors"
	"log/slog"

	"opticash/internal/amqp"
	"opticash/internal/core"
	"opticash/internal/metrics"
	"opticash/internal/store"
)

// Payments is the part of services.PaymentService the worker drives.
type Payments interface {
	Refresh(ctx context.Context) error
	Pay(ctx context.Context, id string, amount core.Money) (core.MemberContribution, error)
	SubmitPending(ctx context.Context) (int, error)
}

// PaymentWorker submits queued offline payments to the store.
type PaymentWorker struct {
	payments Payments
	metrics  *metrics.Metrics
}

func NewPaymentWorker(payments Payments, m *metrics.Metrics) *PaymentWorker {
	return &PaymentWorker{payments: payments, metrics: m}
}

// HandlePaymentMessage submits one queued payment. A payment the store
// already holds as paid is acknowledged. Records the store does not know
// are rejected permanently; every other failure is requeued.
func (w *PaymentWorker) HandlePaymentMessage(ctx context.Context, msg *amqp.PaymentMessage) error {
	slog.InfoContext(ctx, "Processing payment message",
		"member_contribution_id", msg.MemberContributionID,
		"member_id", msg.MemberID,
		"amount_cents", msg.Amount.Cents)

	if err := w.payments.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to refresh payment overlay", "error", err)
	}

	paid, err := w.payments.Pay(ctx, msg.MemberContributionID, msg.Amount)
	switch {
	case err == nil:
		w.metrics.Message(metrics.ResultOK)
		slog.InfoContext(ctx, "Queued payment submitted",
			"member_contribution_id", paid.ID,
			"paid_at", paid.PaidAt)
		return nil
	case errors.Is(err, core.ErrAlreadyPaid):
		w.metrics.Message(metrics.ResultConflict)
		slog.InfoContext(ctx, "Queued payment already settled",
			"member_contribution_id", msg.MemberContributionID)
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, core.ErrInvalidAmount):
		w.metrics.Message(metrics.ResultError)
		slog.ErrorContext(ctx, "Dropping queued payment",
			"member_contribution_id", msg.MemberContributionID,
			"error", err)
		return amqp.Permanent(err)
	default:
		if errors.Is(err, core.ErrPaymentInFlight) {
			w.metrics.Message(metrics.ResultInFlight)
		} else {
			w.metrics.Message(metrics.ResultError)
		}
		return err
	}
}

// StartupSettlementCheck submits whatever the overlay holds when the
// worker starts, recovering payments whose messages were lost.
func (w *PaymentWorker) StartupSettlementCheck(ctx context.Context) error {
	if err := w.payments.Refresh(ctx); err != nil {
		return err
	}
	settled, err := w.payments.SubmitPending(ctx)
	slog.InfoContext(ctx, "Startup settlement completed",
		"settled", settled,
		"failed", err != nil)
	return err
}
