package inventory

import (
	"errors"
	"time"
)

var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrReservationNotActive = errors.New("reservation not active")
	ErrReservationFulfilled = errors.New("reservation already fulfilled")
	ErrRecordNotFound       = errors.New("inventory record not found")
	ErrReservationNotFound  = errors.New("reservation not found")
)

// Record holds per-(product, location) stock counters. The invariant
// 0 <= ReservedStock <= CurrentStock must hold at every observable instant,
// under arbitrary concurrent access.
type Record struct {
	ProductID     string
	Location      string
	CurrentStock  int32
	ReservedStock int32
	MinimumStock  int32
	MaximumStock  int32
	ReorderPoint  int32
}

// Available is the stock a new reservation may claim.
func (r Record) Available() int32 {
	return r.CurrentStock - r.ReservedStock
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Reservation is a time-bounded hold. It leaves ACTIVE exactly once; the
// only legal "transition" from a terminal status is re-applying the same one,
// which is an idempotent no-op.
type Reservation struct {
	ID        string
	ProductID string
	Location  string
	Quantity  int32
	ExpiresAt time.Time
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
