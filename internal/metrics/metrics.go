// Package metrics holds the Prometheus collectors of the contribution
// engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opticash"

// Result label values.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultConflict = "conflict"
	ResultInFlight = "in_flight"
	ResultPartial  = "partial"
)

type Metrics struct {
	registry prometheus.Gatherer

	allocations      *prometheus.CounterVec
	recordsCreated   *prometheus.CounterVec
	payments         *prometheus.CounterVec
	offlinePayments  prometheus.Counter
	overlayEntries   prometheus.Gauge
	overlayHeals     prometheus.Counter
	viewLoads        *prometheus.CounterVec
	viewLoadDuration prometheus.Histogram
	messages         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)
	m.registry = reg
	return m
}

// NewWithRegisterer registers the collectors on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		allocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Contributions allocated, by strategy and result.",
		}, []string{"strategy", "result"}),
		recordsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "member_contributions_created_total",
			Help:      "Member contribution create calls, by result.",
		}, []string{"result"}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment submissions, by result.",
		}, []string{"result"}),
		offlinePayments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_payments_recorded_total",
			Help:      "Payments recorded in the local overlay.",
		}),
		overlayEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overlay_entries",
			Help:      "Entries currently held in the local payment overlay.",
		}),
		overlayHeals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_heals_total",
			Help:      "Times malformed overlay state was reset.",
		}),
		viewLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_loads_total",
			Help:      "Member view loads, by result.",
		}, []string{"result"}),
		viewLoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_load_duration_seconds",
			Help:      "Time to fetch and join a member view.",
			Buckets:   prometheus.DefBuckets,
		}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_messages_total",
			Help:      "Queued payment messages handled by the worker, by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry created by New, or the default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Allocation(strategy, result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(strategy, result).Inc()
}

func (m *Metrics) RecordCreated(result string) {
	if m == nil {
		return
	}
	m.recordsCreated.WithLabelValues(result).Inc()
}

func (m *Metrics) Payment(result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(result).Inc()
}

func (m *Metrics) OfflinePayment() {
	if m == nil {
		return
	}
	m.offlinePayments.Inc()
}

func (m *Metrics) OverlaySize(n int) {
	if m == nil {
		return
	}
	m.overlayEntries.Set(float64(n))
}

func (m *Metrics) OverlayHealed() {
	if m == nil {
		return
	}
	m.overlayHeals.Inc()
}

func (m *Metrics) ViewLoad(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.viewLoads.WithLabelValues(result).Inc()
	m.viewLoadDuration.Observe(d.Seconds())
}

func (m *Metrics) Message(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}
