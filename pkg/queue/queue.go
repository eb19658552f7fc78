// Package queue defines the work-queue contract the saga workers run on:
// enqueue, dequeue-with-lease, ack, nack-with-retry. Delivery is
// at-least-once; a job whose lease expires becomes visible again with an
// incremented delivery count, so consumers must be idempotent.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmpty        = errors.New("queue empty")
	ErrUnknownLease = errors.New("unknown lease")
	ErrClosed       = errors.New("queue closed")
)

type Job struct {
	ID      string
	Kind    string
	Key     string
	Payload []byte

	// DeliveryCount is how many times this job has been handed to a
	// consumer, including the current delivery.
	DeliveryCount int
	NotBefore     time.Time
}

func NewJob(kind, key string, payload []byte) Job {
	return Job{ID: uuid.NewString(), Kind: kind, Key: key, Payload: payload}
}

// Queue is the broker-independent surface the orchestration code sees.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error

	// Dequeue leases the oldest visible job. The job stays invisible for
	// the queue's visibility timeout; if neither Ack nor Nack arrives in
	// time it is redelivered. Returns ErrEmpty when nothing is visible.
	Dequeue(ctx context.Context) (*Job, error)

	// Ack removes the job permanently. Call only after the durable state
	// update the job drove has committed.
	Ack(ctx context.Context, jobID string) error

	// Nack returns the job to the queue, visible again after delay.
	Nack(ctx context.Context, jobID string, delay time.Duration) error
}
