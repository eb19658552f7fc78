package idempotency

import (
	"context"
	"sync"
)

type memoryEntry struct {
	orderID string
	outcome *Outcome
}

type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{entries: make(map[string]*memoryEntry)}
}

func (g *MemoryGuard) Begin(ctx context.Context, key, orderID string) (BeginResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[key]; ok {
		if e.outcome != nil {
			return BeginResult{Decision: Replay, Outcome: e.outcome, OrderID: e.orderID}, nil
		}
		return BeginResult{Decision: Conflict, OrderID: e.orderID}, nil
	}
	g.entries[key] = &memoryEntry{orderID: orderID}
	return BeginResult{Decision: Proceed, OrderID: orderID}, nil
}

func (g *MemoryGuard) Complete(ctx context.Context, key string, out Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		return ErrCompleteWithoutBegin
	}
	o := out
	e.outcome = &o
	return nil
}
