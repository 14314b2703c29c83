package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RunEvent announces the outcome of a model build run. Downstream loaders
// watch these to know when fresh dimension and fact tables are available.
type RunEvent struct {
	EventType         string    `json:"event_type"` // run.completed, run.completed_with_skips, run.failed
	TenantID          string    `json:"tenant_id"`
	RunID             string    `json:"run_id"`
	SpecKey           string    `json:"spec_key"`
	SpecVersion       int       `json:"spec_version"`
	Status            string    `json:"status"`
	DimensionRowCount int       `json:"dimension_row_count"`
	FactRowCount      int       `json:"fact_row_count"`
	CalendarRowCount  int       `json:"calendar_row_count"`
	SkippedRowCount   int       `json:"skipped_row_count"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewRunEvent builds the event for a finished run
func NewRunEvent(run *models.BuildRun) *RunEvent {
	eventType := "run." + string(run.Status)

	event := &RunEvent{
		EventType:         eventType,
		TenantID:          run.TenantID,
		RunID:             run.ID,
		SpecKey:           run.SpecKey,
		SpecVersion:       run.SpecVersion,
		Status:            string(run.Status),
		DimensionRowCount: run.DimensionRowCount,
		FactRowCount:      run.FactRowCount,
		CalendarRowCount:  run.CalendarRowCount,
		SkippedRowCount:   run.SkippedRowCount,
	}
	if run.FailureReason != nil {
		event.FailureReason = *run.FailureReason
	}
	return event
}

// PublishRunEvent publishes a run event to Kafka
func (p *Producer) PublishRunEvent(ctx context.Context, event *RunEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRunEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "spec_key", Value: []byte(event.SpecKey)},
		},
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish run event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"run_id":     event.RunID,
		"spec_key":   event.SpecKey,
	}).Debug("Published run event")

	return nil
}
