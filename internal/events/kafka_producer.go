package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducerConfig configures the transitions Kafka producer.
// Copied from kernel/internal/audit/kafka_producer.go's KafkaProducerConfig.
type KafkaProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
	Balancer     kafka.Balancer
}

// KafkaProducer wraps segmentio/kafka-go's Writer with retries, the same
// as kernel/internal/audit/kafka_producer.go.
type KafkaProducer struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewKafkaProducer(cfg KafkaProducerConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     cfg.Balancer,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaProducer{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

// Produce writes one message keyed by meetingId, retrying any write
// failure up to maxAttempts times. The sleep between attempts starts at
// 100ms and doubles after each failure until it reaches 2s or more.
func (p *KafkaProducer) Produce(ctx context.Context, key []byte, value []byte) (producedAt time.Time, err error) {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		msg := kafka.Message{Key: key, Value: value, Time: time.Now().UTC()}

		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.writer.WriteMessages(attemptCtx, msg)
		cancel()

		if err == nil {
			return msg.Time, nil
		}
		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return time.Time{}, fmt.Errorf("events: produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// ProduceJSON marshals v to compact JSON and produces it.
func (p *KafkaProducer) ProduceJSON(ctx context.Context, key []byte, v interface{}) (time.Time, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("events: marshal json: %w", err)
	}
	return p.Produce(ctx, key, b)
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
