package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adengine_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// selections that returned no eligible ad
	NoFillCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adengine_nofill_total",
			Help: "Total ad selections with an empty result",
		},
	)

	// ads returned by the selector, labelled by placement
	SelectionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_selections_total",
			Help: "Total ads returned by the selector",
		},
		[]string{"placement"},
	)

	// events recorded, labelled by type and billable flag
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_events_total",
			Help: "Total events recorded",
		},
		[]string{"type", "billable"},
	)

	// duplicate events suppressed within the dedup window
	DuplicateEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_duplicate_events_total",
			Help: "Total events suppressed as duplicates",
		},
		[]string{"type"},
	)

	// ledger debit attempts by outcome (ok, insufficient, error)
	DebitCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_ledger_debits_total",
			Help: "Total ledger debit attempts",
		},
		[]string{"outcome"},
	)

	// spend gauge per campaign
	SpendTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adengine_spend_total",
			Help: "Total spend recorded per campaign",
		},
		[]string{"campaign"},
	)

	// errors persisting events to the analytics store
	EventPersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adengine_event_persist_errors_total",
			Help: "Total event persistence errors",
		},
	)

	// campaigns auto-completed on budget exhaustion or window expiry
	AutoCompleteCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_auto_complete_total",
			Help: "Total automatic campaign completions",
		},
		[]string{"reason"},
	)

	// content activity checks by outcome (active, inactive, unavailable)
	ContentCheckCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_content_checks_total",
			Help: "Total content activity checks",
		},
		[]string{"outcome"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		NoFillCount,
		SelectionCount,
		EventCount,
		DuplicateEventCount,
		DebitCount,
		SpendTotal,
		EventPersistErrors,
		AutoCompleteCount,
		ContentCheckCount,
	)
}
