// Package kafka publishes engine events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"beacon/internal/config"
	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrNoBrokers       = errors.New("at least one broker is required")
	ErrNoTopic         = errors.New("topic is required")
	ErrSerializeFailed = errors.New("failed to serialize message")
)

// Message headers
const (
	HeaderEventID  = "event_id"
	HeaderDeviceID = "device_id"
	HeaderOrigin   = "origin"
	HeaderLevel    = "level"
	HeaderNode     = "node"
)

// Producer writes envelopes through a small pool of synchronous writers.
// Messages are keyed by device so one device's events stay in one partition.
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []*kafka.Writer
	pool    chan *kafka.Writer
	closed  atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// NewProducer creates a producer for topic on brokers
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, ErrNoTopic
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	p := &Producer{
		cfg:     cfg,
		topic:   topic,
		writers: make([]*kafka.Writer, cfg.PoolSize),
		pool:    make(chan *kafka.Writer, cfg.PoolSize),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := range p.writers {
		w := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compression(cfg.Compression),
			MaxAttempts:  1,
		}
		p.writers[i] = w
		p.pool <- w
	}

	log := logger.WithComponent("kafka_producer")
	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Int("pool_size", cfg.PoolSize).
		Msg("kafka producer ready")

	return p, nil
}

func compression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Message converts an envelope into a keyed Kafka message
func Message(envelope *models.Envelope) (kafka.Message, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	ev := envelope.Event
	return kafka.Message{
		Key:   []byte(envelope.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(ev.ID)},
			{Key: HeaderDeviceID, Value: []byte(ev.DeviceID.String())},
			{Key: HeaderOrigin, Value: []byte(ev.Origin)},
			{Key: HeaderLevel, Value: []byte(ev.Level)},
			{Key: HeaderNode, Value: []byte(envelope.Node)},
		},
		Time: envelope.ReceivedAt,
	}, nil
}

// Publish sends one envelope
func (p *Producer) Publish(ctx context.Context, envelope *models.Envelope) error {
	return p.PublishBatch(ctx, []*models.Envelope{envelope})
}

// PublishBatch sends envelopes in one write. Envelopes that cannot be
// serialised are counted and skipped.
func (p *Producer) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(envelopes) == 0 {
		return nil
	}

	log := logger.WithComponent("kafka_producer")
	start := time.Now()

	messages := make([]kafka.Message, 0, len(envelopes))
	var size uint64
	for _, envelope := range envelopes {
		msg, err := Message(envelope)
		if err != nil {
			log.Error().
				Err(err).
				Str("event_id", envelope.Event.ID).
				Int64("device_id", int64(envelope.Event.DeviceID)).
				Msg("failed to serialize envelope")
			p.messagesFailed.Add(1)
			metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
			continue
		}
		size += uint64(len(msg.Value))
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil
	}

	var writer *kafka.Writer
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.messagesFailed.Add(uint64(len(messages)))
		return ctx.Err()
	}

	err := p.writeWithRetry(ctx, writer, messages)
	duration := time.Since(start)
	metrics.KafkaPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(messages)).
			Dur("duration", duration).
			Msg("failed to publish to kafka")
		p.messagesFailed.Add(uint64(len(messages)))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return err
	}

	p.messagesSent.Add(uint64(len(messages)))
	p.bytesWritten.Add(size)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(len(messages)))
	metrics.KafkaBytesWritten.Add(float64(size))
	return nil
}

// writeWithRetry retries with exponential backoff. Context errors are not retried.
func (p *Producer) writeWithRetry(ctx context.Context, writer *kafka.Writer, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	backoff := p.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.KafkaPublishRetries.Inc()
			log.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(messages)).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

// HealthCheck reports whether the producer can still publish
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	select {
	case w := <-p.pool:
		p.pool <- w
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
