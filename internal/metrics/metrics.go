// Package metrics exposes Prometheus collectors for revenue ingestion, payout settlement
// and the background reconciliation loops.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "royalty"

type Metrics struct {
	registry *prometheus.Registry

	revenueEvents     *prometheus.CounterVec
	revenueAmount     *prometheus.CounterVec
	ledgerEntries     prometheus.Counter
	payoutRequests    *prometheus.CounterVec
	payoutTransitions *prometheus.CounterVec
	compensations     *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	sweepActions      *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	httpLatency       *prometheus.HistogramVec
	panics            prometheus.Counter
}

// New builds the collectors on a private registry so that independent instances
// (tests, CLI runs) never collide on registration.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		revenueEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revenue",
			Name:      "events_total",
			Help:      "Revenue events recorded, segmented by source.",
		}, []string{"source"}),
		revenueAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revenue",
			Name:      "amount_minor_total",
			Help:      "Recorded revenue in minor currency units, segmented by source.",
		}, []string{"source"}),
		ledgerEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Ledger entries posted.",
		}),
		payoutRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "requests_total",
			Help:      "Payout requests segmented by kind and outcome.",
		}, []string{"kind", "outcome"}),
		payoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "transitions_total",
			Help:      "Applied payout status transitions segmented by target status and actor kind.",
		}, []string{"status", "actor"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "compensated_minor_total",
			Help:      "Minor units credited back to available balances, segmented by target status.",
		}, []string{"status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Processed provider webhook events segmented by type and outcome.",
		}, []string{"type", "outcome"}),
		sweepActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "actions_total",
			Help:      "Reconciliation sweep actions segmented by action and outcome.",
		}, []string{"action", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Latency of outbound payment provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests segmented by method and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_recovered_total",
			Help:      "Handler panics turned into 500 responses.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.revenueEvents,
		m.revenueAmount,
		m.ledgerEntries,
		m.payoutRequests,
		m.payoutTransitions,
		m.compensations,
		m.webhookEvents,
		m.sweepActions,
		m.providerLatency,
		m.httpLatency,
		m.panics,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// All recorders tolerate a nil receiver so services can run without metrics.

func (m *Metrics) RevenueRecorded(source string, amount int64, entries int) {
	if m == nil {
		return
	}
	m.revenueEvents.WithLabelValues(source).Inc()
	m.revenueAmount.WithLabelValues(source).Add(float64(amount))
	m.ledgerEntries.Add(float64(entries))
}

func (m *Metrics) PayoutRequested(kind, outcome string) {
	if m == nil {
		return
	}
	m.payoutRequests.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) PayoutTransitioned(status, actor string) {
	if m == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(status, actor).Inc()
}

func (m *Metrics) Compensated(status string, amount int64) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(status).Add(float64(amount))
}

func (m *Metrics) WebhookProcessed(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) SweepAction(action, outcome string) {
	if m == nil {
		return
	}
	m.sweepActions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ProviderCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// HTTPRequest buckets status codes into classes to keep label cardinality fixed.
func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, strconv.Itoa(status/100)+"xx").Observe(d.Seconds())
}

func (m *Metrics) PanicRecovered() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
