package saga

import (
	"context"
	"errors"
	"time"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/domain"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

var (
	ErrNotFound        = errors.New("saga not found")
	ErrVersionConflict = errors.New("saga version conflict")
)

// Record is the persisted saga progress, 1:1 with its order. It is mutated
// exactly once per step transition and is what makes the saga resumable: a
// crash leaves an inspectable record, never an untraced side effect.
type Record struct {
	OrderID   string
	Current   State
	Completed []Step
	LastError string

	// NeedsAttention flags a compensation failure for manual remediation.
	NeedsAttention bool

	// ReservationIDs are fixed at saga creation, one per order item, so a
	// re-entered reservation step re-sends the same ids instead of
	// double-reserving.
	ReservationIDs []string
	PaymentID      string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition validates and applies a state change. Illegal moves are
// construction-time errors, not silent string writes.
func (r *Record) Transition(to State) error {
	if !CanTransition(r.Current, to) {
		return errors.New("illegal saga transition " + r.Current.String() + " -> " + to.String())
	}
	r.Current = to
	return nil
}

func (r *Record) StepDone(step Step) bool {
	for _, s := range r.Completed {
		if s == step {
			return true
		}
	}
	return false
}

// Store persists saga records with optimistic concurrency: Update only
// succeeds against the version it read, so two racing writers cannot both
// win. Events passed as staged become publishable exactly when the record
// write commits; an implementation with a durable outbox writes both in one
// transaction, which keeps a terminal state and its terminal event
// inseparable across crashes.
type Store interface {
	Create(ctx context.Context, rec *Record, staged ...contracts.Event) error
	Update(ctx context.Context, rec *Record, staged ...contracts.Event) error
	Get(ctx context.Context, orderID string) (*Record, error)

	// ListUnfinished returns sagas not yet in a terminal state, for the
	// recovery sweep after a restart.
	ListUnfinished(ctx context.Context, limit int) ([]*Record, error)
}

// OrderStore persists order rows. Orders are mutated only by the
// orchestrator and never physically deleted.
type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	UpdateStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error
	Get(ctx context.Context, id domain.OrderID) (*domain.Order, error)
}
