// Package idempotency maps a caller-supplied key to a saga outcome so a
// retried order submission is side-effect-free.
package idempotency

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Header is where HTTP callers put their key.
const Header = "Idempotency-Key"

func KeyFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

var ErrCompleteWithoutBegin = errors.New("complete called for unknown idempotency key")

// Outcome is the permanent record stored once a saga terminates. It is what
// short-circuits every later resubmission of the same key.
type Outcome struct {
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

type Decision int

const (
	// Proceed: no record existed, an in-flight marker is now in place.
	Proceed Decision = iota
	// Replay: a completed outcome exists, return it, run nothing.
	Replay
	// Conflict: another execution holds the in-flight marker; the caller
	// should retry later rather than start a second saga.
	Conflict
)

type BeginResult struct {
	Decision Decision
	Outcome  *Outcome // set when Decision == Replay
	OrderID  string   // order attached to the marker, set for Conflict too
}

type Guard interface {
	// Begin atomically claims the key. Exactly one concurrent caller per
	// key gets Proceed; the rest see Conflict until Complete is called.
	Begin(ctx context.Context, key, orderID string) (BeginResult, error)

	// Complete replaces the in-flight marker with the permanent outcome.
	Complete(ctx context.Context, key string, out Outcome) error
}
