// Package payment specifies the payment collaborator at its interface
// boundary. The saga only needs capture and refund; everything else about
// the provider is someone else's problem.
package payment

import (
	"context"
	"fmt"
)

type Result struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

type Provider interface {
	ProcessPayment(ctx context.Context, orderID string, amount int64, currency, method string) (Result, error)
	RefundPayment(ctx context.Context, paymentID string, amount int64) (RefundResult, error)
}

// DeclinedError is a provider-reported permanent failure. Retrying a decline
// is pointless; the saga escalates straight to compensation.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

// TransientError marks timeouts and 5xx-class failures worth retrying with
// backoff before escalating.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("payment %s failed transiently: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Temporary() bool { return true }
