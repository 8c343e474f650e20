package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Message is one notification addressed to a member
type Message struct {
	ID             string                  `json:"id"`
	UserID         uint                    `json:"user_id"`
	Name           string                  `json:"name"`
	Email          string                  `json:"email"`
	Phone          string                  `json:"phone,omitempty"`
	Type           models.NotificationType `json:"type"`
	Subject        string                  `json:"subject"`
	Body           string                  `json:"body"`
	OrderID        *uint                   `json:"order_id,omitempty"`
	SubscriptionID *uint                   `json:"subscription_id,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

// NotificationChannel delivers messages. Delivery mechanics (SMS, email) are
// owned by whoever consumes the channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// kafkaWriter is the subset of *kafka.Writer used by KafkaChannel
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes notifications to a topic keyed by user id so one
// member's messages stay ordered.
type KafkaChannel struct {
	writer kafkaWriter
	topic  string
}

func NewKafkaChannel(brokers []string, topic string) *KafkaChannel {
	return &KafkaChannel{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		topic: topic,
	}
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	err = c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(msg.UserID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification to %s: %w", c.topic, err)
	}
	return nil
}

func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}

// LogChannel writes notifications to the log. Used when no broker is configured.
type LogChannel struct {
	log *zap.Logger
}

func NewLogChannel(log *zap.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	c.log.Info("notification",
		zap.String("id", msg.ID),
		zap.Uint("user_id", msg.UserID),
		zap.String("type", string(msg.Type)),
		zap.String("to", msg.Email),
		zap.String("body", msg.Body),
	)
	return nil
}

// MockChannel records messages for tests
type MockChannel struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func NewMockChannel() *MockChannel {
	return &MockChannel{}
}

func (c *MockChannel) Name() string { return "mock" }

func (c *MockChannel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *MockChannel) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}
