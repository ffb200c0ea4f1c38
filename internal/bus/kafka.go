package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// KafkaBus is the broker-backed bus. Delivery is at-least-once:
// offsets are committed only after the handler succeeds, so a crash
// between handling and commit redelivers the message. Consumers in the
// same group compete per topic partition.
type KafkaBus struct {
	brokers  []string
	clientID string
	group    string
	logger   *zap.Logger
	handlers map[string][]Handler

	producer *kgo.Client
	consumer *kgo.Client

	running      int32
	produceCount int64
	consumeCount int64
	errorCount   int64
}

// NewKafkaBus creates a Kafka-backed bus for the given consumer group.
// The client id identifies this service in broker logs and quotas.
func NewKafkaBus(brokers []string, clientID, group string, logger *zap.Logger) (*KafkaBus, error) {
	producer, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBus{
		brokers:  brokers,
		clientID: clientID,
		group:    group,
		logger:   logger,
		handlers: make(map[string][]Handler),
		producer: producer,
	}

	logger.Info("kafka bus initialized",
		zap.Strings("brokers", brokers),
		zap.String("client_id", clientID),
		zap.String("group", group),
	)

	go b.logStats()

	return b, nil
}

// Subscribe registers a handler for a topic. Must be called before Run.
func (b *KafkaBus) Subscribe(topic string, h Handler) {
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish produces v as JSON to topic, keyed for per-key ordering.
func (b *KafkaBus) Publish(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		atomic.AddInt64(&b.errorCount, 1)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := b.producer.ProduceSync(produceCtx, record)
	if result.FirstErr() != nil {
		atomic.AddInt64(&b.errorCount, 1)
		return fmt.Errorf("failed to produce message: %w", result.FirstErr())
	}

	atomic.AddInt64(&b.produceCount, 1)
	return nil
}

// Run consumes subscribed topics until ctx is canceled.
func (b *KafkaBus) Run(ctx context.Context) error {
	if len(b.handlers) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	topics := make([]string, 0, len(b.handlers))
	for topic := range b.handlers {
		topics = append(topics, topic)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(b.brokers...),
		kgo.ClientID(b.clientID),
		kgo.ConsumerGroup(b.group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(), // Manual commit after handler success
	)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	b.consumer = consumer

	b.logger.Info("starting kafka consumer",
		zap.String("group", b.group),
		zap.Strings("topics", topics),
	)

	atomic.StoreInt32(&b.running, 1)
	defer atomic.StoreInt32(&b.running, 0)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("kafka consumer stopping", zap.String("group", b.group))
			return ctx.Err()
		default:
			fetches := consumer.PollFetches(ctx)
			if fetches.IsClientClosed() {
				return fmt.Errorf("kafka client closed")
			}

			iter := fetches.RecordIter()
			for !iter.Done() {
				record := iter.Next()

				if err := b.handleWithRetry(ctx, record); err != nil {
					b.logger.Error("handler failed after retries",
						zap.String("topic", record.Topic),
						zap.String("key", string(record.Key)),
						zap.Error(err),
					)
					atomic.AddInt64(&b.errorCount, 1)
					// Leave uncommitted so the record is redelivered.
					continue
				}

				consumer.CommitRecords(ctx, record)
				atomic.AddInt64(&b.consumeCount, 1)
			}
		}
	}
}

// handleWithRetry calls every handler for the record with bounded retries.
func (b *KafkaBus) handleWithRetry(ctx context.Context, record *kgo.Record) error {
	maxRetries := 3
	backoff := 100 * time.Millisecond

	handlers := b.handlers[record.Topic]

	for attempt := 0; attempt < maxRetries; attempt++ {
		var firstErr error
		for _, h := range handlers {
			if err := h(ctx, record.Topic, string(record.Key), record.Value); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if firstErr == nil {
			return nil
		}

		if attempt < maxRetries-1 {
			b.logger.Warn("handler failed, retrying",
				zap.String("topic", record.Topic),
				zap.String("key", string(record.Key)),
				zap.Int("attempt", attempt+1),
				zap.Error(firstErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("handler failed after %d attempts", maxRetries)
}

// IsRunning returns whether the consumer loop is active.
func (b *KafkaBus) IsRunning() bool {
	return atomic.LoadInt32(&b.running) == 1
}

// Close closes the underlying Kafka clients.
func (b *KafkaBus) Close() {
	if b.producer != nil {
		b.producer.Close()
	}
	if b.consumer != nil {
		b.consumer.Close()
	}
}

func (b *KafkaBus) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		b.logger.Info("kafka bus stats",
			zap.String("group", b.group),
			zap.Int64("produced", atomic.LoadInt64(&b.produceCount)),
			zap.Int64("consumed", atomic.LoadInt64(&b.consumeCount)),
			zap.Int64("errors", atomic.LoadInt64(&b.errorCount)),
		)
	}
}
