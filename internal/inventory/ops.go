package inventory

import "time"

// Stateless transition logic shared by the Postgres and in-memory engines.
// Each function assumes the caller has serialized access to the record and
// reservation (row lock or mutex) and mutates them in place.

// applyReserve performs the check-and-increment. existing is the reservation
// already stored under the same id, if any; re-sending the same id after a
// crash must not double-reserve.
func applyReserve(rec *Record, existing *Reservation, id string, qty int32, now time.Time, ttl time.Duration) (*Reservation, error) {
	if existing != nil {
		switch existing.Status {
		case ReservationActive, ReservationFulfilled:
			// Same id re-sent: the hold (or deduction) already exists.
			return existing, nil
		default:
			return nil, ErrReservationNotActive
		}
	}
	if rec.Available() < qty {
		return nil, ErrInsufficientStock
	}
	rec.ReservedStock += qty
	res := &Reservation{
		ID:        id,
		ProductID: rec.ProductID,
		Location:  rec.Location,
		Quantity:  qty,
		ExpiresAt: now.Add(ttl),
		Status:    ReservationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return res, nil
}

// applyConfirm turns the hold into a permanent deduction.
func applyConfirm(rec *Record, res *Reservation, now time.Time) (changed bool, err error) {
	switch res.Status {
	case ReservationActive:
		rec.CurrentStock -= res.Quantity
		rec.ReservedStock -= res.Quantity
		res.Status = ReservationFulfilled
		res.UpdatedAt = now
		return true, nil
	case ReservationFulfilled:
		return false, nil
	default:
		return false, ErrReservationNotActive
	}
}

// applyRelease gives the held quantity back to availability.
func applyRelease(rec *Record, res *Reservation, now time.Time) (changed bool, err error) {
	switch res.Status {
	case ReservationActive:
		rec.ReservedStock -= res.Quantity
		res.Status = ReservationCancelled
		res.UpdatedAt = now
		return true, nil
	case ReservationCancelled, ReservationExpired:
		return false, nil
	default:
		return false, ErrReservationFulfilled
	}
}

// applyExpire is the sweeper's transition. Only an ACTIVE reservation past
// its deadline expires; a concurrent confirm/release wins by getting there
// first, and this becomes a no-op.
func applyExpire(rec *Record, res *Reservation, now time.Time) (changed bool) {
	if res.Status != ReservationActive || res.ExpiresAt.After(now) {
		return false
	}
	rec.ReservedStock -= res.Quantity
	res.Status = ReservationExpired
	res.UpdatedAt = now
	return true
}
