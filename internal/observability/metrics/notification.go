package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains the metrics of the transition notifier.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec   // by provider, status
	DeliveryDuration *prometheus.HistogramVec // by provider
	DroppedTotal     prometheus.Counter       // events dropped because the queue was full
	QueueDepth       prometheus.Gauge         // events waiting for delivery
	LastSuccessTime  *prometheus.GaugeVec     // by provider

	registry *prometheus.Registry
}

// NewNotificationMetrics creates a new instance of NotificationMetrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_provider_deliveries_total",
			Help: "Total number of notification delivery attempts by provider and status",
		},
		[]string{"provider", "status"},
	)

	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_provider_delivery_duration_seconds",
			Help:    "Time taken for notification delivery by provider",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}, // 10ms to 30s
		},
		[]string{"provider"},
	)

	m.DroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_dropped_total",
		Help: "Total number of transition events dropped because the queue was full",
	})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_queue_depth",
		Help: "Current depth of the notification queue",
	})

	m.LastSuccessTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_provider_last_success_timestamp_seconds",
			Help: "Timestamp of last successful notification delivery by provider",
		},
		[]string{"provider"},
	)
}

// RecordDelivery records one delivery attempt.
func (m *NotificationMetrics) RecordDelivery(provider string, duration time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.DeliveriesTotal.WithLabelValues(provider, status).Inc()
	m.DeliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err == nil {
		m.LastSuccessTime.WithLabelValues(provider).SetToCurrentTime()
	}
}

// RecordDropped counts one event dropped on a full queue.
func (m *NotificationMetrics) RecordDropped() {
	m.DroppedTotal.Inc()
}

// SetQueueDepth reports the number of queued events.
func (m *NotificationMetrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	ch <- m.DroppedTotal.Desc()
	ch <- m.QueueDepth.Desc()
	m.LastSuccessTime.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	ch <- m.DroppedTotal
	ch <- m.QueueDepth
	m.LastSuccessTime.Collect(ch)
}
