// Package outbox persists domain events in the same database transaction as
// the state change that produced them, then relays them to the broker. This
// is what makes event publication at-least-once instead of best-effort.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// InsertTx stages an event inside the caller's transaction. The event only
// becomes publishable if that transaction commits. event_id is unique, so
// staging the same event twice leaves a single row.
func InsertTx(ctx context.Context, tx pgx.Tx, topic string, evt contracts.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, topic, evt.AggregateID, data)
	return err
}

func Insert(ctx context.Context, pool *pgxpool.Pool, topic string, evt contracts.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, topic, evt.AggregateID, data)
	return err
}

func MarkSent(ctx context.Context, pool *pgxpool.Pool, id int64) error {
	_, err := pool.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

func FetchPending(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Record, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, event_id, topic, key, payload, created_at, sent_at
		 FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
