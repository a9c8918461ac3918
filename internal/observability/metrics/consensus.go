// Package metrics provides custom Prometheus metrics for the components of alertwatch.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ConsensusMetrics contains the metrics of the alert service: votes by
// outcome, state transitions, view deduplication and operation latency.
type ConsensusMetrics struct {
	VotesTotal        *prometheus.CounterVec   // by outcome
	TransitionsTotal  *prometheus.CounterVec   // by from, to
	ViewsTotal        *prometheus.CounterVec   // by result: counted, repeat
	OperationsTotal   *prometheus.CounterVec   // by operation, status
	OperationDuration *prometheus.HistogramVec // by operation

	registry *prometheus.Registry
}

// NewConsensusMetrics creates a new instance of ConsensusMetrics registered
// with registry.
func NewConsensusMetrics(registry *prometheus.Registry) (*ConsensusMetrics, error) {
	m := &ConsensusMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register consensus metrics: %w", err)
	}
	return m, nil
}

func (m *ConsensusMetrics) initMetrics() {
	m.VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_votes_total",
			Help: "Total number of vote attempts by outcome",
		},
		[]string{"outcome"}, // accepted, duplicate, closed, denied, error
	)

	m.TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_state_transitions_total",
			Help: "Total number of committed alert state transitions",
		},
		[]string{"from", "to"},
	)

	m.ViewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_views_total",
			Help: "Total number of recorded views by result",
		},
		[]string{"result"},
	)

	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_operations_total",
			Help: "Total number of alert service operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertwatch_operation_duration_seconds",
			Help:    "Latency of alert service operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)
}

// RecordVote counts one vote attempt.
func (m *ConsensusMetrics) RecordVote(outcome string) {
	m.VotesTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition counts one committed state change.
func (m *ConsensusMetrics) RecordTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordView counts one view, split by whether it incremented the alert's counter.
func (m *ConsensusMetrics) RecordView(incremented bool) {
	result := "repeat"
	if incremented {
		result = "counted"
	}
	m.ViewsTotal.WithLabelValues(result).Inc()
}

// RecordOperation records the outcome and latency of a service operation.
func (m *ConsensusMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *ConsensusMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.VotesTotal.Describe(ch)
	m.TransitionsTotal.Describe(ch)
	m.ViewsTotal.Describe(ch)
	m.OperationsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ConsensusMetrics) Collect(ch chan<- prometheus.Metric) {
	m.VotesTotal.Collect(ch)
	m.TransitionsTotal.Collect(ch)
	m.ViewsTotal.Collect(ch)
	m.OperationsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
}
