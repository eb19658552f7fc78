package events

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/outbox"
)

// OutboxPublisher stages events in the outbox table; the relay ships them to
// the broker afterwards. Events the saga store already staged inside its own
// transaction collapse into the existing row via the event_id conflict
// clause. If a local bus is attached, the event is also fed to in-process
// handlers directly, so projections and notifications do not wait on a
// broker round trip. Handlers dedup on event id, so consuming the same event
// again off the broker is harmless.
type OutboxPublisher struct {
	pool  *pgxpool.Pool
	topic string
	local Publisher
}

func NewOutboxPublisher(pool *pgxpool.Pool, topic string, local Publisher) *OutboxPublisher {
	return &OutboxPublisher{pool: pool, topic: topic, local: local}
}

func (p *OutboxPublisher) Publish(ctx context.Context, evt contracts.Event) error {
	if err := outbox.Insert(ctx, p.pool, p.topic, evt); err != nil {
		return err
	}
	if p.local != nil {
		return p.local.Publish(ctx, evt)
	}
	return nil
}
