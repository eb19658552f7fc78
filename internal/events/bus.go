// Package events delivers domain events to in-process handlers with
// at-least-once semantics. Events sharing an aggregate id are delivered in
// emission order, retries included; nothing is guaranteed across aggregates,
// and handlers must be idempotent because redelivery duplicates are normal.
package events

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/queue"
)

type Handler interface {
	Name() string
	CanHandle(eventType string) bool
	Handle(ctx context.Context, evt contracts.Event) error
}

// Publisher is the producer-side surface the orchestrator depends on.
type Publisher interface {
	Publish(ctx context.Context, evt contracts.Event) error
}

type Bus struct {
	log           *zap.Logger
	shards        []*queue.Memory
	handlers      []Handler
	maxDeliveries int
	retryDelay    time.Duration
	pollInterval  time.Duration

	mu      sync.RWMutex
	started bool
	wg      sync.WaitGroup
}

type BusOption func(*Bus)

func WithMaxDeliveries(n int) BusOption {
	return func(b *Bus) { b.maxDeliveries = n }
}

func WithRetryDelay(d time.Duration) BusOption {
	return func(b *Bus) { b.retryDelay = d }
}

func NewBus(log *zap.Logger, shardCount int, opts ...BusOption) *Bus {
	if shardCount <= 0 {
		shardCount = 8
	}
	b := &Bus{
		log:           log,
		shards:        make([]*queue.Memory, shardCount),
		maxDeliveries: 5,
		retryDelay:    100 * time.Millisecond,
		pollInterval:  5 * time.Millisecond,
	}
	for i := range b.shards {
		b.shards[i] = queue.NewMemory(30 * time.Second)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register must be called before Start.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish hands ownership of the event to the bus. Events with the same
// aggregate id land on the same shard, and each shard has a single worker,
// which is what preserves per-aggregate order.
func (b *Bus) Publish(ctx context.Context, evt contracts.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	job := queue.NewJob(evt.EventType, evt.AggregateID, data)
	return b.shards[b.shardFor(evt.AggregateID)].Enqueue(ctx, job)
}

func (b *Bus) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(b.shards)))
}

// Start launches one worker per shard. Workers run until ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	for _, shard := range b.shards {
		b.wg.Add(1)
		go func(q *queue.Memory) {
			defer b.wg.Done()
			b.drain(ctx, q)
		}(shard)
	}
}

func (b *Bus) Wait() {
	b.wg.Wait()
}

func (b *Bus) drain(ctx context.Context, q *queue.Memory) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			job, err := q.Dequeue(ctx)
			if err != nil {
				break
			}
			b.deliver(ctx, q, job)
		}
	}
}

// deliver fans one event out to every matching handler. A failed event is
// retried in place while the worker holds the shard: re-queueing it would
// let newer events of the same aggregate overtake it. On each retry every
// matching handler runs again; their idempotence makes that safe. An event
// that exhausts its attempts is dropped so it cannot wedge the shard.
func (b *Bus) deliver(ctx context.Context, q *queue.Memory, job *queue.Job) {
	var evt contracts.Event
	if err := json.Unmarshal(job.Payload, &evt); err != nil {
		b.log.Error("undecodable event dropped", zap.String("job_id", job.ID), zap.Error(err))
		_ = q.Ack(ctx, job.ID)
		return
	}

	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for attempt := job.DeliveryCount; ; attempt++ {
		var failed bool
		for _, h := range handlers {
			if !h.CanHandle(evt.EventType) {
				continue
			}
			if err := h.Handle(ctx, evt); err != nil {
				failed = true
				b.log.Warn("event handler failed",
					zap.String("handler", h.Name()),
					zap.String("event_id", evt.EventID),
					zap.String("event_type", evt.EventType),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
		}
		if !failed {
			_ = q.Ack(ctx, job.ID)
			return
		}
		if attempt >= b.maxDeliveries {
			b.log.Error("event exhausted deliveries, dropping",
				zap.String("event_id", evt.EventID),
				zap.String("event_type", evt.EventType),
				zap.Int("attempts", attempt))
			_ = q.Ack(ctx, job.ID)
			return
		}
		select {
		case <-ctx.Done():
			_ = q.Nack(ctx, job.ID, 0)
			return
		case <-time.After(b.retryDelay):
		}
	}
}
