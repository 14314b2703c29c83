// Package metrics provides Prometheus metrics for the Aster service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks total model build runs by status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "build",
			Name:      "runs_total",
			Help:      "Total number of model build runs by status",
		},
		[]string{"tenant_id", "spec_key", "status"},
	)

	// RunDuration tracks model build run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "build",
			Name:      "run_duration_seconds",
			Help:      "Duration of model build runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tenant_id", "spec_key"},
	)

	// RowsBuilt tracks rows produced per run by table kind
	RowsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "build",
			Name:      "rows_built_total",
			Help:      "Total number of rows built by table kind",
		},
		[]string{"tenant_id", "kind"},
	)

	// RowErrorsTotal tracks source rows skipped for per-row errors
	RowErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "build",
			Name:      "row_errors_total",
			Help:      "Total number of source rows skipped with row errors",
		},
		[]string{"tenant_id", "spec_key"},
	)

	// LockContention tracks triggers rejected because a run held the lock
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "build",
			Name:      "lock_contention_total",
			Help:      "Total number of triggers rejected while another run held the lock",
		},
		[]string{"tenant_id", "spec_key"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// KafkaMessagesConsumed tracks snapshot messages consumed by outcome
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of snapshot messages consumed by outcome",
		},
		[]string{"topic", "status"},
	)
)

// RecordRun records the outcome of one model build run
func RecordRun(tenantID, specKey, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(tenantID, specKey, status).Inc()
	RunDuration.WithLabelValues(tenantID, specKey).Observe(durationSeconds)
}

// RecordRowsBuilt records rows produced for one table kind
func RecordRowsBuilt(tenantID, kind string, count int) {
	RowsBuilt.WithLabelValues(tenantID, kind).Add(float64(count))
}

// RecordRowErrors records source rows skipped with row errors
func RecordRowErrors(tenantID, specKey string, count int) {
	if count == 0 {
		return
	}
	RowErrorsTotal.WithLabelValues(tenantID, specKey).Add(float64(count))
}

// RecordLockContention records a trigger rejected on lock contention
func RecordLockContention(tenantID, specKey string) {
	LockContention.WithLabelValues(tenantID, specKey).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordKafkaConsume records a consumed message outcome
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}
