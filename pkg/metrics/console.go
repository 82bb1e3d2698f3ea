package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sign-in outcomes recorded by the admin gate.
const (
	SignInOutcomeAdmin    = "admin"
	SignInOutcomeRejected = "rejected"
	SignInOutcomeError    = "error"
)

// ConsoleMetrics records shop lifecycle and admin sign-in activity.
type ConsoleMetrics struct {
	transitions     *prometheus.CounterVec
	listingFailures *prometheus.CounterVec
	listingDuration *prometheus.HistogramVec
	signIns         *prometheus.CounterVec
}

// NewConsoleMetrics registers the console metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewConsoleMetrics(reg prometheus.Registerer) *ConsoleMetrics {
	if reg == nil {
		return &ConsoleMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_status_transitions_total",
		Help: "Shop status changes applied by admins.",
	}, []string{"transition"})
	listingFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_listing_failures_total",
		Help: "Shop listings that failed and were served as empty.",
	}, []string{"operation"})
	listingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shop_listing_duration_seconds",
		Help:    "Duration of shop listing queries in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	signIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_sign_in_total",
		Help: "Admin console sign-in attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(transitions, listingFailures, listingDuration, signIns)
	return &ConsoleMetrics{
		transitions:     transitions,
		listingFailures: listingFailures,
		listingDuration: listingDuration,
		signIns:         signIns,
	}
}

// IncTransition counts an applied status transition.
func (m *ConsoleMetrics) IncTransition(transition string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(transition)).Inc()
}

// IncListingFailure counts a swallowed listing failure.
func (m *ConsoleMetrics) IncListingFailure(operation string) {
	if m == nil || m.listingFailures == nil {
		return
	}
	m.listingFailures.WithLabelValues(normalizeLabel(operation)).Inc()
}

// ObserveListing records how long a listing query took.
func (m *ConsoleMetrics) ObserveListing(operation string, duration time.Duration) {
	if m == nil || m.listingDuration == nil {
		return
	}
	m.listingDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSignIn counts an admin sign-in attempt by outcome.
func (m *ConsoleMetrics) IncSignIn(outcome string) {
	if m == nil || m.signIns == nil {
		return
	}
	m.signIns.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
