package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	// Events counts handled events by source, kind and outcome.
	Events *prometheus.CounterVec
	// EventDuration observes handler latency by kind.
	EventDuration *prometheus.HistogramVec
	// ShareIDsAllocated counts share ids handed out by the counter.
	ShareIDsAllocated prometheus.Counter
	// Notifications counts push attempts by result (sent, failed, claimed_elsewhere).
	Notifications *prometheus.CounterVec
	// TransactionAborts counts transactions that exhausted their retry budget.
	TransactionAborts prometheus.Counter
	// AuditFindings reports the last share-id audit (missing, duplicate, total).
	AuditFindings *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "story_pipeline_events_total",
			Help: "Total number of pipeline events by source, kind and outcome",
		}, []string{"source", "kind", "outcome"}),

		EventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "story_pipeline_event_duration_seconds",
			Help:    "Event handling latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),

		ShareIDsAllocated: f.NewCounter(prometheus.CounterOpts{
			Name: "story_pipeline_share_ids_allocated_total",
			Help: "Total number of share ids allocated",
		}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "story_pipeline_notifications_total",
			Help: "Total number of new-content notifications by result",
		}, []string{"result"}),

		TransactionAborts: f.NewCounter(prometheus.CounterOpts{
			Name: "story_pipeline_transaction_aborts_total",
			Help: "Total number of document store transactions that ran out of attempts",
		}),

		AuditFindings: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "story_pipeline_audit_records",
			Help: "Record counts from the last share-id audit",
		}, []string{"state"}),
	}
}

// Nop returns collectors registered nowhere, for tests and CLI runs.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
