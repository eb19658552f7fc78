package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

// Consumer feeds the handler set from a Kafka topic, the durable
// cross-process leg of the bus. A failing event is retried in place before
// the offset advances, so newer events on the same partition cannot overtake
// it; partition assignment by aggregate key then preserves per-aggregate
// order. Only an event that exhausts its attempts is dropped.
type Consumer struct {
	reader      *kafkago.Reader
	handlers    []Handler
	log         *zap.Logger
	maxAttempts int
	retryDelay  time.Duration
}

func NewConsumer(reader *kafkago.Reader, handlers []Handler, log *zap.Logger) *Consumer {
	return &Consumer{
		reader:      reader,
		handlers:    handlers,
		log:         log,
		maxAttempts: 5,
		retryDelay:  time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("kafka fetch failed", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}

		var evt contracts.Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.EventID == "" {
			c.log.Error("undecodable event skipped", zap.Error(err))
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		c.process(ctx, evt)
		if ctx.Err() != nil {
			// Shut down without committing; the event is redelivered to
			// the next consumer in the group.
			return
		}
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

// process runs the handlers with bounded in-place retries. Returning without
// success means the event is dropped and the offset advances.
func (c *Consumer) process(ctx context.Context, evt contracts.Event) {
	for attempt := 1; ; attempt++ {
		if c.handle(ctx, evt) {
			return
		}
		if attempt >= c.maxAttempts {
			c.log.Error("event exhausted deliveries, dropping",
				zap.String("event_id", evt.EventID),
				zap.String("event_type", evt.EventType),
				zap.Int("attempts", attempt))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) handle(ctx context.Context, evt contracts.Event) bool {
	ok := true
	for _, h := range c.handlers {
		if !h.CanHandle(evt.EventType) {
			continue
		}
		if err := h.Handle(ctx, evt); err != nil {
			ok = false
			c.log.Warn("event handler failed",
				zap.String("handler", h.Name()),
				zap.String("event_id", evt.EventID),
				zap.Error(err))
		}
	}
	return ok
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
