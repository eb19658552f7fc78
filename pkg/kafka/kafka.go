package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

// Enabled reports whether a broker list was configured. The service degrades
// to in-process dispatch only when Kafka is absent.
func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewWriter builds a writer for one topic. The Hash balancer keeps all
// messages with the same key (aggregate id) on one partition, which is what
// gives consumers per-aggregate ordering.
func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// PublishRaw writes pre-encoded payloads keyed by aggregate id, used by the
// outbox relay which stores events already marshalled.
func PublishRaw(ctx context.Context, writer *kafka.Writer, key string, payload []byte) error {
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload, Time: time.Now().UTC()})
}
