package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process Queue used in tests and when no broker is
// configured. Visibility-timeout bookkeeping is done lazily on Dequeue, so
// the queue needs no background goroutine of its own.
type Memory struct {
	mu         sync.Mutex
	ready      []*Job
	leased     map[string]*leasedJob
	visibility time.Duration
	closed     bool
	now        func() time.Time
}

type leasedJob struct {
	job      *Job
	deadline time.Time
}

func NewMemory(visibility time.Duration) *Memory {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Memory{
		leased:     make(map[string]*leasedJob),
		visibility: visibility,
		now:        time.Now,
	}
}

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	j := job
	m.ready = append(m.ready, &j)
	return nil
}

func (m *Memory) Dequeue(ctx context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	now := m.now()
	m.reclaimExpired(now)

	for i, j := range m.ready {
		if j.NotBefore.After(now) {
			continue
		}
		m.ready = append(m.ready[:i], m.ready[i+1:]...)
		j.DeliveryCount++
		m.leased[j.ID] = &leasedJob{job: j, deadline: now.Add(m.visibility)}
		out := *j
		return &out, nil
	}
	return nil, ErrEmpty
}

func (m *Memory) Ack(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leased[jobID]; !ok {
		return ErrUnknownLease
	}
	delete(m.leased, jobID)
	return nil
}

func (m *Memory) Nack(ctx context.Context, jobID string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leased[jobID]
	if !ok {
		return ErrUnknownLease
	}
	delete(m.leased, jobID)
	l.job.NotBefore = m.now().Add(delay)
	m.ready = append(m.ready, l.job)
	return nil
}

func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Len reports visible plus leased jobs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready) + len(m.leased)
}

// reclaimExpired moves jobs with a blown lease back to ready. Caller holds mu.
func (m *Memory) reclaimExpired(now time.Time) {
	for id, l := range m.leased {
		if now.After(l.deadline) {
			delete(m.leased, id)
			m.ready = append(m.ready, l.job)
		}
	}
}
