package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/inventory"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/payment"
)

// ErrSagaInFlight is the conflict signal for a resubmitted idempotency key
// whose first execution has not finished. Callers retry later; they must not
// start a second saga.
var ErrSagaInFlight = errors.New("saga already in flight for this idempotency key")

// CompensationError is operator-visible: a compensation step failed and the
// order needs manual remediation even though the saga reached CANCELLED.
type CompensationError struct {
	Comp string
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation %s failed: %v", e.Comp, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

type errorClass int

const (
	classTransient errorClass = iota
	classPermanent
)

type temporary interface {
	Temporary() bool
}

// classify decides a failed step's fate: transient errors get bounded
// retries with backoff, everything else escalates to compensation
// immediately. Unknown errors are treated as permanent; retrying a side
// effect blindly is worse than compensating once.
func classify(err error) errorClass {
	if errors.Is(err, inventory.ErrInsufficientStock) {
		return classPermanent
	}
	var declined *payment.DeclinedError
	if errors.As(err, &declined) {
		return classPermanent
	}
	var tmp temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return classTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classTransient
	}
	return classPermanent
}
