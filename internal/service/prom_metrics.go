package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics holds the Prometheus metrics for the sync engine.
// Pass to components that need to record metrics.
type PromMetrics struct {
	MessagesProcessed *prometheus.CounterVec
	MessageLatency    prometheus.Histogram
	SyncErrors        *prometheus.CounterVec
	Recoveries        *prometheus.CounterVec
	RecoveryDuration  prometheus.Histogram
	InventorySize     prometheus.Gauge
	QueueDepth        prometheus.Gauge
}

// NewPromMetrics creates and registers all metrics with the given registry.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	return &PromMetrics{
		MessagesProcessed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolsync",
				Name:      "messages_processed_total",
				Help:      "Total incremental tool update messages processed",
			},
			[]string{"outcome"}, // outcome=success/failure
		),
		MessageLatency: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "toolsync",
				Name:      "message_processing_seconds",
				Help:      "Time spent processing one update message",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SyncErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolsync",
				Name:      "sync_errors_total",
				Help:      "Sync errors by type",
			},
			[]string{"type"}, // type=validation/deserialization/unexpected
		),
		Recoveries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolsync",
				Name:      "recoveries_total",
				Help:      "Full-resync recovery episodes",
			},
			[]string{"outcome", "reason"},
		),
		RecoveryDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "toolsync",
				Name:      "recovery_duration_seconds",
				Help:      "Duration of recovery episodes",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		InventorySize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "toolsync",
				Name:      "inventory_size",
				Help:      "Current mirrored tool inventory size",
			},
		),
		QueueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "toolsync",
				Name:      "queue_depth",
				Help:      "Pending messages on the update queue",
			},
		),
	}
}
