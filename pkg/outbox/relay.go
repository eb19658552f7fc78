package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PublishFunc hands one pending record to the broker. A nil error marks the
// record sent; on error the record stays pending and is retried next tick,
// which can re-publish an already delivered message. Consumers dedup.
type PublishFunc func(ctx context.Context, topic, key string, payload []byte) error

type Relay struct {
	pool     *pgxpool.Pool
	publish  PublishFunc
	log      *zap.Logger
	interval time.Duration
	batch    int
}

func NewRelay(pool *pgxpool.Pool, publish PublishFunc, log *zap.Logger, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{pool: pool, publish: publish, log: log, interval: interval, batch: batch}
}

// Run drains pending records until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	pending, err := FetchPending(ctx, r.pool, r.batch)
	if err != nil {
		return err
	}
	for _, rec := range pending {
		if err := r.publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			// Stop at the first failure so per-key ordering is preserved.
			r.log.Warn("outbox publish failed",
				zap.String("event_id", rec.EventID), zap.Error(err))
			return err
		}
		if err := MarkSent(ctx, r.pool, rec.ID); err != nil {
			return err
		}
	}
	return nil
}
