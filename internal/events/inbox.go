package events

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Inbox is the dedup ledger a handler consults to make itself idempotent
// under at-least-once delivery. A handler checks Seen before acting and
// calls MarkSeen only after its side effect succeeded; marking earlier would
// turn a failed attempt into a permanently skipped event.
type Inbox interface {
	// Seen reports whether the handler already processed the event.
	Seen(ctx context.Context, handler, eventID string) (bool, error)

	// MarkSeen claims (handler, eventID); false means someone else already
	// had.
	MarkSeen(ctx context.Context, handler, eventID string) (fresh bool, err error)
}

type MemoryInbox struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{seen: make(map[string]struct{})}
}

func (i *MemoryInbox) Seen(ctx context.Context, handler, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.seen[handler+"|"+eventID]
	return ok, nil
}

func (i *MemoryInbox) MarkSeen(ctx context.Context, handler, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := handler + "|" + eventID
	if _, ok := i.seen[key]; ok {
		return false, nil
	}
	i.seen[key] = struct{}{}
	return true, nil
}

// PGInbox claims (handler, event_id) with an insert that silently loses to a
// prior claim.
type PGInbox struct {
	pool *pgxpool.Pool
}

func NewPGInbox(pool *pgxpool.Pool) *PGInbox {
	return &PGInbox{pool: pool}
}

func (i *PGInbox) Seen(ctx context.Context, handler, eventID string) (bool, error) {
	var seen bool
	err := i.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM inbox WHERE handler=$1 AND event_id=$2)`,
		handler, eventID).Scan(&seen)
	return seen, err
}

func (i *PGInbox) MarkSeen(ctx context.Context, handler, eventID string) (bool, error) {
	tag, err := i.pool.Exec(ctx,
		`INSERT INTO inbox(handler, event_id, received_at) VALUES ($1, $2, now())
		 ON CONFLICT (handler, event_id) DO NOTHING`, handler, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
