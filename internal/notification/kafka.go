package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notifications to "<prefix>.<kind>" topics keyed by booking id.
type KafkaPublisher struct {
	writer      messageWriter
	topicPrefix string
}

// NewKafkaPublisher builds a publisher over the given brokers.
func NewKafkaPublisher(brokers []string, topicPrefix string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &KafkaPublisher{writer: writer, topicPrefix: topicPrefix}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, n Notification) error {
	msg, err := p.message(ctx, n)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) topic(kind Kind) string {
	if p.topicPrefix == "" {
		return string(kind)
	}
	return strings.TrimSuffix(p.topicPrefix, ".") + "." + string(kind)
}

func (p *KafkaPublisher) message(ctx context.Context, n Notification) (kafka.Message, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic(n.Kind),
		Key:   []byte(n.BookingID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(n.ID)},
			{Key: "event_type", Value: []byte(n.Kind)},
		},
		Time: n.OccurredAt,
	}
	carrier := &headerCarrier{headers: msg.Headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	msg.Headers = carrier.headers
	return msg, nil
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
