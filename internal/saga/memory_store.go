package saga

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/domain"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

// MemoryStore drops staged events: there is no durable outbox in memory
// mode, so the caller's in-process publish is the only delivery leg.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]*Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record, _ ...contracts.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.OrderID]; ok {
		return errors.New("saga already exists for order " + rec.OrderID)
	}
	now := time.Now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := cloneRecord(rec)
	s.recs[rec.OrderID] = cp
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *Record, _ ...contracts.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[rec.OrderID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != rec.Version {
		return ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.recs[rec.OrderID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, orderID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) ListUnfinished(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.recs {
		if rec.Current.Terminal() {
			continue
		}
		out = append(out, cloneRecord(rec))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func cloneRecord(rec *Record) *Record {
	cp := *rec
	cp.Completed = append([]Step(nil), rec.Completed...)
	cp.ReservationIDs = append([]string(nil), rec.ReservationIDs...)
	return &cp
}

type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[domain.OrderID]*domain.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[domain.OrderID]*domain.Order)}
}

func (s *MemoryOrderStore) Create(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return errors.New("order already exists: " + string(o.ID))
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryOrderStore) UpdateStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryOrderStore) Get(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}
