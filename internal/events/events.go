// Package events publishes the durable audit/analytics trail backing
// the messaging core: every notable domain event is written to Kafka,
// separately from the Redis delivery stream that actually drives
// fan-out (spec.md §4.5 supplement — dead-letter observability).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
)

const (
	TypeMessageSent      = "message.sent"
	TypeMessageEdited    = "message.edited"
	TypeMessageDeleted   = "message.deleted"
	TypeDeliveryRead     = "delivery.read"
	TypeDeliveryDeadLetter = "delivery.dead_letter"
	TypeChatCreated      = "chat.created"
	TypeParticipantAdded = "participant.added"
	TypeParticipantLeft  = "participant.left"
	TypeUserStatus       = "user.status"
)

// Event is the envelope written to the audit topic.
type Event struct {
	Type      string          `json:"type"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
}

type Log struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func New(cfg config.KafkaConfig, logger *logrus.Logger) *Log {
	return &Log{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		logger: logger,
	}
}

func (l *Log) Close() error { return l.writer.Close() }

// Publish writes an event to the audit topic. Failures are logged, not
// returned — the audit trail is best-effort and must never block the
// request path that triggered it (spec.md §4.5 delivery is the
// authoritative path; this is observability).
func (l *Log) Publish(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.logger.WithError(err).WithField("type", eventType).Warn("events: marshal payload failed")
		return
	}
	env := Event{Type: eventType, At: time.Now().UTC(), Payload: data}
	envData, err := json.Marshal(env)
	if err != nil {
		l.logger.WithError(err).WithField("type", eventType).Warn("events: marshal envelope failed")
		return
	}
	if err := l.writer.WriteMessages(ctx, kafka.Message{Key: []byte(eventType), Value: envData}); err != nil {
		l.logger.WithError(err).WithField("type", eventType).Warn("events: publish failed")
	}
}
