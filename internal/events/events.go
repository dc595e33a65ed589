// Package events publishes wallet domain events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	WalletCreated   = "wallet.created"
	WalletFunded    = "wallet.funded"
	PaymentSplit    = "payment.split"
	PayoutCompleted = "payout.completed"
	PayoutFailed    = "payout.failed"
)

// Event is the envelope written to the topic. Key keeps events for one
// aggregate on the same partition.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// New builds an event with a fresh id.
func New(eventType, key string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return Event{
		ID:         domain.NewULID(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// Publisher emits events after the ledger change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
	Close() error
}

// Emit builds and publishes a single event, logging instead of failing. The
// ledger is already committed when events are emitted.
func Emit(ctx context.Context, p Publisher, logger *zap.Logger, eventType, key string, data any) {
	if p == nil {
		return
	}
	evt, err := New(eventType, key, data)
	if err == nil {
		err = p.Publish(ctx, evt)
	}
	if err != nil {
		observability.IncrementEventPublish(eventType, "error")
		if logger != nil {
			logger.Warn("event publish failed", zap.String("event", eventType), zap.String("key", key), zap.Error(err))
		}
		return
	}
	observability.IncrementEventPublish(eventType, "ok")
}

// KafkaPublisher writes events to a single topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evts ...Event) error {
	msgs, err := toMessages(evts)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessages(evts []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		value, err := json.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", evt.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.Key),
			Value: value,
			Time:  evt.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
			},
		})
	}
	return msgs, nil
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                            { return nil }
