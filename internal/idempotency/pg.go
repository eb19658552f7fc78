package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGGuard claims keys with a unique-constrained insert; the loser of a race
// sees a 23505 and reads back whoever won.
type PGGuard struct {
	pool *pgxpool.Pool
}

func NewPGGuard(pool *pgxpool.Pool) *PGGuard {
	return &PGGuard{pool: pool}
}

func (g *PGGuard) Begin(ctx context.Context, key, orderID string) (BeginResult, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO idempotency_keys(idempotency_key, order_id, status) VALUES ($1, $2, 'IN_FLIGHT')`,
		key, orderID)
	if err == nil {
		return BeginResult{Decision: Proceed, OrderID: orderID}, nil
	}
	if !isUniqueViolation(err) {
		return BeginResult{}, err
	}

	var (
		existingOrder string
		status        string
		outStatus     *string
		completedAt   *time.Time
	)
	err = g.pool.QueryRow(ctx,
		`SELECT order_id, status, outcome_status, completed_at FROM idempotency_keys WHERE idempotency_key=$1`,
		key).Scan(&existingOrder, &status, &outStatus, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row vanished between insert and read; treat as a lost race.
		return BeginResult{Decision: Conflict}, nil
	}
	if err != nil {
		return BeginResult{}, err
	}

	if status == "COMPLETED" && outStatus != nil {
		out := &Outcome{OrderID: existingOrder, Status: *outStatus}
		if completedAt != nil {
			out.CompletedAt = *completedAt
		}
		return BeginResult{Decision: Replay, Outcome: out, OrderID: existingOrder}, nil
	}
	return BeginResult{Decision: Conflict, OrderID: existingOrder}, nil
}

func (g *PGGuard) Complete(ctx context.Context, key string, out Outcome) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE idempotency_keys
		 SET status='COMPLETED', outcome_status=$2, completed_at=$3
		 WHERE idempotency_key=$1`,
		key, out.Status, out.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCompleteWithoutBegin
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
