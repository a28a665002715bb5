package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the global
// Prometheus vectors directly.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Selection metrics
	IncrementNoFills()
	IncrementSelections(placement string)

	// Event metrics
	IncrementEvent(eventType string, billable bool)
	IncrementDuplicateEvent(eventType string)
	IncrementEventPersistErrors()

	// Ledger metrics
	IncrementDebit(outcome string)
	SetSpendTotal(campaign string, amount float64)

	// Lifecycle metrics
	IncrementAutoComplete(reason string)

	// Content collaborator metrics
	IncrementContentCheck(outcome string)
}

// PrometheusRegistry implements MetricsRegistry over the package-level
// Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementNoFills() {
	NoFillCount.Inc()
}

func (r *PrometheusRegistry) IncrementSelections(placement string) {
	SelectionCount.WithLabelValues(placement).Inc()
}

func (r *PrometheusRegistry) IncrementEvent(eventType string, billable bool) {
	b := "false"
	if billable {
		b = "true"
	}
	EventCount.WithLabelValues(eventType, b).Inc()
}

func (r *PrometheusRegistry) IncrementDuplicateEvent(eventType string) {
	DuplicateEventCount.WithLabelValues(eventType).Inc()
}

func (r *PrometheusRegistry) IncrementEventPersistErrors() {
	EventPersistErrors.Inc()
}

func (r *PrometheusRegistry) IncrementDebit(outcome string) {
	DebitCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) SetSpendTotal(campaign string, amount float64) {
	SpendTotal.WithLabelValues(campaign).Set(amount)
}

func (r *PrometheusRegistry) IncrementAutoComplete(reason string) {
	AutoCompleteCount.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementContentCheck(outcome string) {
	ContentCheckCount.WithLabelValues(outcome).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementNoFills()                                                    {}
func (r *NoOpRegistry) IncrementSelections(placement string)                                 {}
func (r *NoOpRegistry) IncrementEvent(eventType string, billable bool)                       {}
func (r *NoOpRegistry) IncrementDuplicateEvent(eventType string)                             {}
func (r *NoOpRegistry) IncrementEventPersistErrors()                                         {}
func (r *NoOpRegistry) IncrementDebit(outcome string)                                        {}
func (r *NoOpRegistry) SetSpendTotal(campaign string, amount float64)                        {}
func (r *NoOpRegistry) IncrementAutoComplete(reason string)                                  {}
func (r *NoOpRegistry) IncrementContentCheck(outcome string)                                 {}
