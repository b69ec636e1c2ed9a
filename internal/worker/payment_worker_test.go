package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opticash/internal/amqp"
	"opticash/internal/core"
	"opticash/internal/metrics"
	"opticash/internal/overlay"
	"opticash/internal/services"
	"opticash/internal/store"
	"opticash/internal/store/memory"
)

type stubPayments struct {
	err       error
	refreshed int
	paid      []string
}

func (s *stubPayments) Refresh(context.Context) error {
	s.refreshed++
	return nil
}

func (s *stubPayments) Pay(_ context.Context, id string, amount core.Money) (core.MemberContribution, error) {
	s.paid = append(s.paid, id)
	if s.err != nil {
		return core.MemberContribution{}, s.err
	}
	return core.MemberContribution{ID: id, Amount: amount, Status: core.StatusPaid}, nil
}

func (s *stubPayments) SubmitPending(context.Context) (int, error) {
	return 0, s.err
}

func message(id string) *amqp.PaymentMessage {
	return amqp.NewPaymentMessage(id, "m-1", "h-1", core.NewMoney(5000), time.Now())
}

func TestHandlePaymentMessageOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   bool
		permanent bool
	}{
		{"paid", nil, false, false},
		{"already paid", &core.RemotePaymentError{MemberContributionID: "1", Err: core.ErrAlreadyPaid}, false, false},
		{"unknown record", &core.RemotePaymentError{MemberContributionID: "1", Err: store.ErrNotFound}, true, true},
		{"invalid amount", core.ErrInvalidAmount, true, true},
		{"in flight", core.ErrPaymentInFlight, true, false},
		{"store down", &core.RemotePaymentError{MemberContributionID: "1", Err: store.ErrUnavailable}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &stubPayments{err: tt.err}
			w := NewPaymentWorker(payments, metrics.New())

			err := w.HandlePaymentMessage(context.Background(), message("1"))
			assert.Equal(t, []string{"1"}, payments.paid)
			assert.Equal(t, 1, payments.refreshed)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.permanent, amqp.IsPermanent(err))
		})
	}
}

func TestHandlePaymentMessageEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mc, err := s.CreateMemberContribution(ctx, core.MemberContribution{ContributionID: "c-1", MemberID: "m-1", Amount: core.NewMoney(5000)})
	require.NoError(t, err)

	kv := overlay.NewMemoryKV()
	recorder := services.NewPaymentService(s, nil, services.WithStateStore(kv))
	_, err = recorder.RecordOffline(ctx, "h-1", mc)
	require.NoError(t, err)

	// The worker runs with its own overlay, loaded from the shared state.
	workerPayments := services.NewPaymentService(s, nil, services.WithStateStore(kv))
	w := NewPaymentWorker(workerPayments, nil)

	require.NoError(t, w.HandlePaymentMessage(ctx, message(mc.ID)))
	assert.Zero(t, workerPayments.Overlay().Len())

	records, err := s.ListMemberContributions(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, records[0].Status)

	// Redelivery of the same message is acknowledged.
	require.NoError(t, w.HandlePaymentMessage(ctx, message(mc.ID)))
}

func TestStartupSettlementCheck(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mc, err := s.CreateMemberContribution(ctx, core.MemberContribution{ContributionID: "c-1", MemberID: "m-1", Amount: core.NewMoney(1200)})
	require.NoError(t, err)

	kv := overlay.NewMemoryKV()
	pending := overlay.New()
	_, err = pending.RecordLocalPayment(mc.ID, mc.Amount)
	require.NoError(t, err)
	require.NoError(t, overlay.Save(ctx, kv, pending))

	payments := services.NewPaymentService(s, nil, services.WithStateStore(kv))
	require.NoError(t, NewPaymentWorker(payments, nil).StartupSettlementCheck(ctx))

	records, err := s.ListMemberContributions(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, records[0].Status)
	assert.Zero(t, payments.Overlay().Len())
}
