package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryEngine serializes all mutations behind one mutex. Coarser than the
// per-row locks the Postgres engine takes, but the serializability guarantee
// is the same. Used in tests and brokerless dev mode.
type MemoryEngine struct {
	mu           sync.Mutex
	records      map[string]*Record // keyed productID|location
	reservations map[string]*Reservation
	now          func() time.Time
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		records:      make(map[string]*Record),
		reservations: make(map[string]*Reservation),
		now:          time.Now,
	}
}

func recordKey(productID, location string) string {
	return fmt.Sprintf("%s|%s", productID, location)
}

// SetStock seeds or replaces a record. Test/dev helper.
func (m *MemoryEngine) SetStock(productID, location string, current int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(productID, location)] = &Record{
		ProductID:    productID,
		Location:     location,
		CurrentStock: current,
	}
}

func (m *MemoryEngine) Reserve(ctx context.Context, productID, location, reservationID string, qty int32, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(productID, location)]
	if !ok {
		return ErrRecordNotFound
	}
	res, err := applyReserve(rec, m.reservations[reservationID], reservationID, qty, m.now(), ttl)
	if err != nil {
		return err
	}
	m.reservations[res.ID] = res
	return nil
}

func (m *MemoryEngine) Confirm(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[reservationID]
	if !ok {
		return ErrReservationNotFound
	}
	rec := m.records[recordKey(res.ProductID, res.Location)]
	_, err := applyConfirm(rec, res, m.now())
	return err
}

func (m *MemoryEngine) Release(ctx context.Context, reservationID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[reservationID]
	if !ok {
		return ErrReservationNotFound
	}
	rec := m.records[recordKey(res.ProductID, res.Location)]
	_, err := applyRelease(rec, res, m.now())
	return err
}

func (m *MemoryEngine) Available(ctx context.Context, productID, location string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(productID, location)]
	if !ok {
		return 0, ErrRecordNotFound
	}
	return rec.Available(), nil
}

func (m *MemoryEngine) ExpireDue(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []Reservation
	for _, res := range m.reservations {
		if limit > 0 && len(expired) >= limit {
			break
		}
		rec := m.records[recordKey(res.ProductID, res.Location)]
		if applyExpire(rec, res, now) {
			expired = append(expired, *res)
		}
	}
	return expired, nil
}

func (m *MemoryEngine) GetReservation(ctx context.Context, reservationID string) (Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[reservationID]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return *res, nil
}

func (m *MemoryEngine) GetRecord(ctx context.Context, productID, location string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(productID, location)]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return *rec, nil
}
