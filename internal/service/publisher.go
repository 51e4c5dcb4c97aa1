package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/model"
)

// RetryConfig controls publish retries. Delays grow as 2^attempt * BaseDelay,
// capped at MaxDelay.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublishMetrics records publish outcomes.
type PublishMetrics interface {
	ConversionPublished(ok bool)
}

// KafkaPublisher publishes conversion jobs as JSON with retry.
type KafkaPublisher struct {
	writer  MessageWriter
	topic   string
	retry   RetryConfig
	metrics PublishMetrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewKafkaPublisher builds a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, retry RetryConfig, metrics PublishMetrics) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaPublisherWithWriter(writer, topic, retry, metrics)
}

// NewKafkaPublisherWithWriter builds a publisher on an existing writer.
func NewKafkaPublisherWithWriter(writer MessageWriter, topic string, retry RetryConfig, metrics PublishMetrics) *KafkaPublisher {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 10 * time.Second
	}
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		retry:   retry,
		metrics: metrics,
		sleep:   sleepCtx,
	}
}

// Publish writes one message per job, keyed by shop so a shop's jobs stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, jobs ...model.ConversionJob) error {
	if len(jobs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(jobs))
	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal conversion job: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(job.ShopID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(job.EventID)},
				{Key: "platform", Value: []byte(job.Platform)},
			},
		})
	}

	err := p.publishWithRetry(ctx, msgs)
	if p.metrics != nil {
		for range jobs {
			p.metrics.ConversionPublished(err == nil)
		}
	}
	return err
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, msgs []kafka.Message) error {
	var lastErr error

	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := p.writer.WriteMessages(ctx, msgs...)
		if err == nil {
			if attempt > 0 {
				logrus.WithFields(logrus.Fields{
					"topic":    p.topic,
					"attempts": attempt + 1,
				}).Info("conversion jobs published after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		logrus.WithError(err).WithFields(logrus.Fields{
			"topic":   p.topic,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Warn("conversion job publish failed, retrying")

		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("publish cancelled during retry: %w", err)
		}
	}

	return fmt.Errorf("publish to %s after %d attempts: %w", p.topic, p.retry.MaxAttempts, lastErr)
}

// backoff returns the delay before retry attempt+1. Jitter spreads it by ±15%.
func (p *KafkaPublisher) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay
	if delay > p.retry.MaxDelay || delay <= 0 {
		delay = p.retry.MaxDelay
	}
	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
