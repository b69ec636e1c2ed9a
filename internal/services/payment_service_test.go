package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opticash/internal/amqp"
	"opticash/internal/core"
	"opticash/internal/metrics"
	"opticash/internal/overlay"
	"opticash/internal/store"
	"opticash/internal/store/memory"
	"opticash/internal/store/rest"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.PaymentMessage
	err  error
}

func (p *recordingPublisher) PublishPayment(_ context.Context, msg *amqp.PaymentMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

// blockingStore holds PayMemberContribution until release is closed.
type blockingStore struct {
	*memory.Store
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) PayMemberContribution(ctx context.Context, id string, amount core.Money) (core.MemberContribution, error) {
	close(b.started)
	<-b.release
	return b.Store.PayMemberContribution(ctx, id, amount)
}

func pendingShare(t *testing.T, s *memory.Store, memberID string, cents int64) core.MemberContribution {
	t.Helper()
	mc, err := s.CreateMemberContribution(context.Background(), core.MemberContribution{
		ContributionID: fmt.Sprintf("c-%d", cents),
		MemberID:       memberID,
		Amount:         core.NewMoney(cents),
	})
	require.NoError(t, err)
	return mc
}

func TestPaySuccessRetiresOverlayEntry(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mc := pendingShare(t, s, "a", 5000)

	o := overlay.New()
	_, err := o.RecordLocalPayment(mc.ID, mc.Amount)
	require.NoError(t, err)
	kv := overlay.NewMemoryKV()

	svc := NewPaymentService(s, o, WithStateStore(kv))
	paid, err := svc.Pay(ctx, mc.ID, core.NewMoney(5000))
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Zero(t, o.Len())

	raw, ok, err := kv.Get(ctx, overlay.StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestPayErrors(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mc := pendingShare(t, s, "a", 5000)
	svc := NewPaymentService(s, nil)

	_, err := svc.Pay(ctx, mc.ID, core.Money{})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = svc.Pay(ctx, "", core.NewMoney(1))
	assert.ErrorIs(t, err, overlay.ErrEmptyID)

	_, err = svc.Pay(ctx, "missing", core.NewMoney(1))
	var payErr *core.RemotePaymentError
	require.ErrorAs(t, err, &payErr)
	assert.Equal(t, "missing", payErr.MemberContributionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPayAlreadyPaid(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mc := pendingShare(t, s, "a", 5000)
	_, err := s.PayMemberContribution(ctx, mc.ID, mc.Amount)
	require.NoError(t, err)

	o := overlay.New()
	_, err = o.RecordLocalPayment(mc.ID, mc.Amount)
	require.NoError(t, err)

	_, err = NewPaymentService(s, o).Pay(ctx, mc.ID, mc.Amount)
	assert.ErrorIs(t, err, core.ErrAlreadyPaid)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Zero(t, o.Len(), "authoritative PAID retires the overlay entry")
}

func TestPaySingleInFlight(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	mc := pendingShare(t, mem, "a", 5000)
	s := &blockingStore{Store: mem, started: make(chan struct{}), release: make(chan struct{})}
	svc := NewPaymentService(s, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Pay(ctx, mc.ID, mc.Amount)
		done <- err
	}()
	<-s.started

	_, err := svc.Pay(ctx, mc.ID, mc.Amount)
	assert.ErrorIs(t, err, core.ErrPaymentInFlight)

	close(s.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first payment did not finish")
	}
}

func TestRecordOffline(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mc := pendingShare(t, s, "a", 5000)
	kv := overlay.NewMemoryKV()
	pub := &recordingPublisher{}
	svc := NewPaymentService(s, nil, WithStateStore(kv), WithPublisher(pub))

	entry, err := svc.RecordOffline(ctx, "h-1", mc)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), entry.OriginalAmount.Cents)
	require.NotNil(t, entry.RecordedAt)

	shown := svc.Overlay().Resolve(mc)
	assert.Equal(t, core.StatusPaid, shown.Status)
	assert.True(t, shown.Optimistic)
	assert.True(t, shown.Remaining.IsZero())

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, mc.ID, pub.msgs[0].MemberContributionID)
	assert.Equal(t, "a", pub.msgs[0].MemberID)
	assert.Equal(t, "h-1", pub.msgs[0].HouseholdID)

	raw, ok, err := kv.Get(ctx, overlay.StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), mc.ID)

	paid := mc
	paid.Status = core.StatusPaid
	_, err = svc.RecordOffline(ctx, "h-1", paid)
	assert.ErrorIs(t, err, core.ErrAlreadyPaid)
}

func TestRecordOfflinePublishFailureKeepsEntry(t *testing.T) {
	s := memory.New()
	mc := pendingShare(t, s, "a", 5000)
	svc := NewPaymentService(s, nil, WithPublisher(&recordingPublisher{err: errors.New("broker down")}))

	_, err := svc.RecordOffline(context.Background(), "h-1", mc)
	require.NoError(t, err)
	_, ok := svc.Overlay().Lookup(mc.ID)
	assert.True(t, ok)
}

func TestSubmitPending(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	pending := pendingShare(t, s, "a", 5000)
	alreadyPaid := pendingShare(t, s, "b", 2500)
	_, err := s.PayMemberContribution(ctx, alreadyPaid.ID, alreadyPaid.Amount)
	require.NoError(t, err)

	o := overlay.New()
	for _, mc := range []core.MemberContribution{pending, alreadyPaid, {ID: "ghost", Amount: core.NewMoney(100)}} {
		_, err := o.RecordLocalPayment(mc.ID, mc.Amount)
		require.NoError(t, err)
	}

	settled, err := NewPaymentService(s, o).SubmitPending(ctx)
	assert.Equal(t, 2, settled)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"ghost"}, o.IDs())

	records, err := s.ListMemberContributions(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, records[0].Status)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	paid := pendingShare(t, s, "a", 5000)
	open := pendingShare(t, s, "a", 700)
	_, err := s.PayMemberContribution(ctx, paid.ID, paid.Amount)
	require.NoError(t, err)

	o := overlay.New()
	for _, mc := range []core.MemberContribution{paid, open} {
		_, err := o.RecordLocalPayment(mc.ID, mc.Amount)
		require.NoError(t, err)
	}
	kv := overlay.NewMemoryKV()

	n, err := NewPaymentService(s, o, WithStateStore(kv)).Reconcile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{open.ID}, o.IDs())

	restored, err := overlay.Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Len())
}

func TestRefreshSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	kv := overlay.NewMemoryKV()
	svc := NewPaymentService(memory.New(), nil, WithStateStore(kv))

	other := overlay.New()
	_, err := other.RecordLocalPayment("mc-9", core.NewMoney(100))
	require.NoError(t, err)
	require.NoError(t, overlay.Save(ctx, kv, other))

	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, []string{"mc-9"}, svc.Overlay().IDs())
}

func TestRefreshHealsMalformedState(t *testing.T) {
	ctx := context.Background()
	kv := overlay.NewMemoryKV()
	m := metrics.New()
	svc := NewPaymentService(memory.New(), nil, WithStateStore(kv), WithPaymentMetrics(m))
	require.NoError(t, kv.Set(ctx, overlay.StorageKey, []byte(`["not", "an", "object"]`)))

	require.NoError(t, svc.Refresh(ctx))
	assert.Zero(t, svc.Overlay().Len())

	raw, _, err := kv.Get(ctx, overlay.StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "opticash_overlay_heals_total 1")
	assert.Contains(t, rec.Body.String(), "opticash_overlay_entries 0")
}

func TestPayTreatsStoreConflictAsAlreadyPaid(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		http.Error(w, "already paid", http.StatusConflict)
	}))
	t.Cleanup(srv.Close)
	client, err := rest.New(srv.URL, "token")
	require.NoError(t, err)

	o := overlay.New()
	_, err = o.RecordLocalPayment("11", core.NewMoney(5000))
	require.NoError(t, err)
	svc := NewPaymentService(client, o)

	_, err = svc.Pay(ctx, "11", core.NewMoney(5000))
	require.ErrorIs(t, err, core.ErrAlreadyPaid)
	assert.Zero(t, o.Len())

	_, err = o.RecordLocalPayment("12", core.NewMoney(2500))
	require.NoError(t, err)
	settled, err := svc.SubmitPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Zero(t, o.Len())
}
