package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGEngine serializes per-(product, location) mutations with row locks:
// every transaction locks the inventory row with SELECT ... FOR UPDATE
// before touching counters, so check-and-increment cannot lose updates.
type PGEngine struct {
	pool *pgxpool.Pool
}

func NewPGEngine(pool *pgxpool.Pool) *PGEngine {
	return &PGEngine{pool: pool}
}

func (p *PGEngine) Reserve(ctx context.Context, productID, location, reservationID string, qty int32, ttl time.Duration) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := lockRecord(ctx, tx, productID, location)
	if err != nil {
		return err
	}
	existing, err := lockReservation(ctx, tx, reservationID)
	if err != nil && !errors.Is(err, ErrReservationNotFound) {
		return err
	}

	now := time.Now().UTC()
	res, err := applyReserve(rec, existing, reservationID, qty, now, ttl)
	if err != nil {
		return err
	}
	if existing != nil {
		// Idempotent replay, nothing changed.
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reservations(id, product_id, location, quantity, expires_at, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		res.ID, res.ProductID, res.Location, res.Quantity, res.ExpiresAt, res.Status, now)
	if err != nil {
		return err
	}
	if err := saveRecord(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PGEngine) Confirm(ctx context.Context, reservationID string) error {
	return p.mutateReservation(ctx, reservationID, applyConfirm)
}

func (p *PGEngine) Release(ctx context.Context, reservationID, reason string) error {
	return p.mutateReservation(ctx, reservationID, applyRelease)
}

// mutateReservation runs one transition inside a transaction with both rows
// locked, record first to keep lock order consistent with Reserve.
func (p *PGEngine) mutateReservation(ctx context.Context, reservationID string, apply func(*Record, *Reservation, time.Time) (bool, error)) error {
	res, err := p.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := lockRecord(ctx, tx, res.ProductID, res.Location)
	if err != nil {
		return err
	}
	locked, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return err
	}

	changed, err := apply(rec, locked, time.Now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		return tx.Commit(ctx)
	}
	if err := saveReservation(ctx, tx, locked); err != nil {
		return err
	}
	if err := saveRecord(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PGEngine) Available(ctx context.Context, productID, location string) (int32, error) {
	var available int32
	err := p.pool.QueryRow(ctx,
		`SELECT current_stock - reserved_stock FROM inventory_records
		 WHERE product_id=$1 AND location=$2`, productID, location).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrRecordNotFound
	}
	return available, err
}

func (p *PGEngine) ExpireDue(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id FROM reservations WHERE status=$1 AND expires_at <= $2 ORDER BY expires_at LIMIT $3`,
		ReservationActive, now, limit)
	if err != nil {
		return nil, err
	}
	var due []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []Reservation
	for _, id := range due {
		res, err := p.expireOne(ctx, id, now)
		if err != nil {
			return expired, err
		}
		if res != nil {
			expired = append(expired, *res)
		}
	}
	return expired, nil
}

// expireOne re-checks status under lock; a reservation confirmed or released
// since the scan is skipped, so only one of the racing operations decrements.
func (p *PGEngine) expireOne(ctx context.Context, reservationID string, now time.Time) (*Reservation, error) {
	res, err := p.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, nil
		}
		return nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := lockRecord(ctx, tx, res.ProductID, res.Location)
	if err != nil {
		return nil, err
	}
	locked, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if !applyExpire(rec, locked, now) {
		return nil, tx.Commit(ctx)
	}
	if err := saveReservation(ctx, tx, locked); err != nil {
		return nil, err
	}
	if err := saveRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return locked, nil
}

func (p *PGEngine) GetReservation(ctx context.Context, reservationID string) (Reservation, error) {
	var res Reservation
	err := p.pool.QueryRow(ctx,
		`SELECT id, product_id, location, quantity, expires_at, status, created_at, updated_at
		 FROM reservations WHERE id=$1`, reservationID).
		Scan(&res.ID, &res.ProductID, &res.Location, &res.Quantity, &res.ExpiresAt, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrReservationNotFound
	}
	return res, err
}

func (p *PGEngine) GetRecord(ctx context.Context, productID, location string) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT product_id, location, current_stock, reserved_stock, minimum_stock, maximum_stock, reorder_point
		 FROM inventory_records WHERE product_id=$1 AND location=$2`, productID, location).
		Scan(&rec.ProductID, &rec.Location, &rec.CurrentStock, &rec.ReservedStock, &rec.MinimumStock, &rec.MaximumStock, &rec.ReorderPoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

// UpsertRecord seeds stock, used by dev tooling.
func (p *PGEngine) UpsertRecord(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO inventory_records(product_id, location, current_stock, reserved_stock, minimum_stock, maximum_stock, reorder_point)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (product_id, location) DO UPDATE SET
		   current_stock=EXCLUDED.current_stock, reserved_stock=EXCLUDED.reserved_stock`,
		rec.ProductID, rec.Location, rec.CurrentStock, rec.ReservedStock, rec.MinimumStock, rec.MaximumStock, rec.ReorderPoint)
	return err
}

func lockRecord(ctx context.Context, tx pgx.Tx, productID, location string) (*Record, error) {
	var rec Record
	err := tx.QueryRow(ctx,
		`SELECT product_id, location, current_stock, reserved_stock, minimum_stock, maximum_stock, reorder_point
		 FROM inventory_records WHERE product_id=$1 AND location=$2 FOR UPDATE`, productID, location).
		Scan(&rec.ProductID, &rec.Location, &rec.CurrentStock, &rec.ReservedStock, &rec.MinimumStock, &rec.MaximumStock, &rec.ReorderPoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func lockReservation(ctx context.Context, tx pgx.Tx, reservationID string) (*Reservation, error) {
	var res Reservation
	err := tx.QueryRow(ctx,
		`SELECT id, product_id, location, quantity, expires_at, status, created_at, updated_at
		 FROM reservations WHERE id=$1 FOR UPDATE`, reservationID).
		Scan(&res.ID, &res.ProductID, &res.Location, &res.Quantity, &res.ExpiresAt, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func saveRecord(ctx context.Context, tx pgx.Tx, rec *Record) error {
	_, err := tx.Exec(ctx,
		`UPDATE inventory_records SET current_stock=$3, reserved_stock=$4
		 WHERE product_id=$1 AND location=$2`,
		rec.ProductID, rec.Location, rec.CurrentStock, rec.ReservedStock)
	return err
}

func saveReservation(ctx context.Context, tx pgx.Tx, res *Reservation) error {
	_, err := tx.Exec(ctx,
		`UPDATE reservations SET status=$2, updated_at=$3 WHERE id=$1`,
		res.ID, res.Status, res.UpdatedAt)
	return err
}
