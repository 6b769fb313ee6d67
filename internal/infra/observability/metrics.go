package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	cpfLookups       *prometheus.CounterVec
	paymentIntents   *prometheus.CounterVec
	trackedEvents    *prometheus.CounterVec
	activeCountdowns prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upsell_request_duration_seconds",
				Help:    "Duration of operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsell_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsell_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsell_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		cpfLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsell_cpf_lookups_total",
				Help: "CPF lookups by outcome (invalid, named, placeholder).",
			},
			[]string{"outcome"},
		),
		paymentIntents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsell_payment_intents_total",
				Help: "PIX charge creations by outcome (created or error kind).",
			},
			[]string{"outcome"},
		),
		trackedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsell_tracked_events_total",
				Help: "Tracked funnel events by name.",
			},
			[]string{"event"},
		),
		activeCountdowns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "upsell_active_countdowns",
				Help: "Countdowns currently ticking.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrCPFLookup counts a CPF lookup outcome.
func (m *Metrics) IncrCPFLookup(outcome string) {
	m.cpfLookups.WithLabelValues(outcome).Inc()
}

// IncrPaymentIntent counts a payment intent outcome.
func (m *Metrics) IncrPaymentIntent(outcome string) {
	m.paymentIntents.WithLabelValues(outcome).Inc()
}

// IncrTrackedEvent counts a tracked event.
func (m *Metrics) IncrTrackedEvent(event string) {
	m.trackedEvents.WithLabelValues(event).Inc()
}

// CountdownStarted and CountdownStopped keep the active countdown gauge.
func (m *Metrics) CountdownStarted() { m.activeCountdowns.Inc() }

func (m *Metrics) CountdownStopped() { m.activeCountdowns.Dec() }

// TrackedEventCount returns how many events with the given name were tracked.
func (m *Metrics) TrackedEventCount(event string) float64 {
	return getCounterValue(m.trackedEvents, event)
}

// PaymentIntentCount returns the number of payment intents with the given outcome.
func (m *Metrics) PaymentIntentCount(outcome string) float64 {
	return getCounterValue(m.paymentIntents, outcome)
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
