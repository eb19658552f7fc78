package saga

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/domain"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/outbox"
)

type PGStore struct {
	pool        *pgxpool.Pool
	outboxTopic string
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// WithOutbox makes Create and Update stage their events in the outbox table
// inside the same transaction as the saga row write. Without it staged
// events are dropped and delivery is the publisher's problem alone.
func (s *PGStore) WithOutbox(topic string) *PGStore {
	s.outboxTopic = topic
	return s
}

func (s *PGStore) Create(ctx context.Context, rec *Record, staged ...contracts.Event) error {
	now := time.Now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO saga_states(order_id, current_state, completed_steps, last_error, needs_attention,
		                         reservation_ids, payment_id, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		rec.OrderID, rec.Current.String(), stepsToText(rec.Completed), rec.LastError,
		rec.NeedsAttention, rec.ReservationIDs, rec.PaymentID, rec.Version, now)
	if err != nil {
		return err
	}
	if err := s.stage(ctx, tx, staged); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Update writes against the version it read; losing the race returns
// ErrVersionConflict instead of clobbering the winner.
func (s *PGStore) Update(ctx context.Context, rec *Record, staged ...contracts.Event) error {
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE saga_states
		 SET current_state=$2, completed_steps=$3, last_error=$4, needs_attention=$5,
		     reservation_ids=$6, payment_id=$7, version=version+1, updated_at=$8
		 WHERE order_id=$1 AND version=$9`,
		rec.OrderID, rec.Current.String(), stepsToText(rec.Completed), rec.LastError,
		rec.NeedsAttention, rec.ReservationIDs, rec.PaymentID, now, rec.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	if err := s.stage(ctx, tx, staged); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (s *PGStore) stage(ctx context.Context, tx pgx.Tx, staged []contracts.Event) error {
	if s.outboxTopic == "" {
		return nil
	}
	for _, evt := range staged {
		if err := outbox.InsertTx(ctx, tx, s.outboxTopic, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, orderID string) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT order_id, current_state, completed_steps, last_error, needs_attention,
		        reservation_ids, payment_id, version, created_at, updated_at
		 FROM saga_states WHERE order_id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PGStore) ListUnfinished(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, current_state, completed_steps, last_error, needs_attention,
		        reservation_ids, payment_id, version, created_at, updated_at
		 FROM saga_states WHERE current_state NOT IN ($1, $2)
		 ORDER BY created_at LIMIT $3`,
		StateConfirmed.String(), StateCancelled.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		stateName string
		steps     []string
	)
	err := row.Scan(&rec.OrderID, &stateName, &steps, &rec.LastError, &rec.NeedsAttention,
		&rec.ReservationIDs, &rec.PaymentID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Current, err = ParseState(stateName)
	if err != nil {
		return nil, err
	}
	rec.Completed = make([]Step, 0, len(steps))
	for _, s := range steps {
		rec.Completed = append(rec.Completed, Step(s))
	}
	return &rec, nil
}

func stepsToText(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, string(s))
	}
	return out
}

type PGOrderStore struct {
	pool *pgxpool.Pool
}

func NewPGOrderStore(pool *pgxpool.Pool) *PGOrderStore {
	return &PGOrderStore{pool: pool}
}

func (s *PGOrderStore) Create(ctx context.Context, o *domain.Order) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO orders(id, user_id, total_amount, currency, idempotency_key, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		o.ID, o.UserID, o.TotalAmount, o.Currency, o.IdempotencyKey, o.Status, now)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items(order_id, product_id, quantity, unit_price, total_price)
			 VALUES ($1, $2, $3, $4, $5)`,
			o.ID, it.ProductID, it.Quantity, it.UnitPrice, it.TotalPrice())
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGOrderStore) UpdateStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGOrderStore) Get(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	var o domain.Order
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, total_amount, currency, idempotency_key, status, created_at, updated_at
		 FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.IdempotencyKey, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT product_id, quantity, unit_price FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}
