package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Stub is the in-process provider used in tests and brokerless dev mode.
// Behavior is scripted per order id.
type Stub struct {
	mu       sync.Mutex
	failWith map[string]error // orderID -> error returned by ProcessPayment
	captured map[string]int64 // paymentID -> amount
	refunded map[string]int64 // paymentID -> amount
	orders   map[string]string

	CaptureCalls int
	RefundCalls  int
}

func NewStub() *Stub {
	return &Stub{
		failWith: make(map[string]error),
		captured: make(map[string]int64),
		refunded: make(map[string]int64),
		orders:   make(map[string]string),
	}
}

func (s *Stub) FailWith(orderID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith[orderID] = err
}

func (s *Stub) ProcessPayment(ctx context.Context, orderID string, amount int64, currency, method string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CaptureCalls++
	if err, ok := s.failWith[orderID]; ok {
		return Result{}, err
	}
	// Same order already captured: return the same payment rather than
	// charging twice.
	if id, ok := s.orders[orderID]; ok {
		return Result{PaymentID: id, Status: "CAPTURED"}, nil
	}
	id := uuid.NewString()
	s.orders[orderID] = id
	s.captured[id] = amount
	return Result{PaymentID: id, Status: "CAPTURED"}, nil
}

func (s *Stub) RefundPayment(ctx context.Context, paymentID string, amount int64) (RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefundCalls++
	s.refunded[paymentID] = amount
	return RefundResult{RefundID: uuid.NewString(), Status: "REFUNDED"}, nil
}

// Refunded reports the refunded amount for a payment, for assertions.
func (s *Stub) Refunded(paymentID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.refunded[paymentID]
	return amount, ok
}
