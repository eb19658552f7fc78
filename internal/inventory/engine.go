package inventory

import (
	"context"
	"time"
)

// Engine owns stock counters and time-bounded reservations. All mutations to
// one (product, location) pair are serialized by the implementation: row
// locks in Postgres, a mutex in memory. A plain read-then-write here is the
// canonical lost-update bug this component exists to prevent.
type Engine interface {
	// Reserve atomically checks availableStock >= qty and increments the
	// hold. reservationID is caller-supplied so a re-sent request after a
	// crash is recognized instead of double-reserving.
	Reserve(ctx context.Context, productID, location, reservationID string, qty int32, ttl time.Duration) error

	// Confirm permanently deducts a previously reserved quantity.
	// Idempotent: confirming a FULFILLED reservation is a no-op success.
	Confirm(ctx context.Context, reservationID string) error

	// Release returns held stock to availability. Idempotent for
	// CANCELLED/EXPIRED; fails for FULFILLED.
	Release(ctx context.Context, reservationID, reason string) error

	// Available is the optimistic, non-mutating pre-check. It may race
	// with concurrent reservations; Reserve is the authoritative gate.
	Available(ctx context.Context, productID, location string) (int32, error)

	// ExpireDue transitions ACTIVE reservations with expiresAt <= now to
	// EXPIRED and returns the reservations it expired.
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	GetReservation(ctx context.Context, reservationID string) (Reservation, error)
	GetRecord(ctx context.Context, productID, location string) (Record, error)
}
