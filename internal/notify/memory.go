package notify

import (
	"context"
	"sync"
	"time"

	"github.com/harrylevesque/callform/internal/models"
)

// MemoryQueue keeps notifications in process. With a ttl, an owner's list is
// dropped once ttl has passed since its last push, as the Redis list expires.
type MemoryQueue struct {
	ttl time.Duration

	mu       sync.Mutex
	pending  map[string][]models.Notification
	lastPush map[string]time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return NewExpiringMemoryQueue(0)
}

// NewExpiringMemoryQueue returns a queue whose lists expire after ttl. Zero keeps them forever.
func NewExpiringMemoryQueue(ttl time.Duration) *MemoryQueue {
	return &MemoryQueue{
		ttl:      ttl,
		pending:  make(map[string][]models.Notification),
		lastPush: make(map[string]time.Time),
	}
}

func (q *MemoryQueue) Push(_ context.Context, owner string, n models.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[owner] = append(q.pending[owner], n)
	q.lastPush[owner] = time.Now()
	return nil
}

func (q *MemoryQueue) Pending(_ context.Context, owner string) ([]models.Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Notification, len(q.pending[owner]))
	copy(out, q.pending[owner])
	return out, nil
}

func (q *MemoryQueue) Ack(_ context.Context, owner, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.pending[owner]
	for i, n := range list {
		if n.ID != id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(q.pending, owner)
			delete(q.lastPush, owner)
		} else {
			q.pending[owner] = list
		}
		return nil
	}
	return ErrNotFound
}

// Prune drops every list whose ttl has run out at now and returns how many were dropped.
func (q *MemoryQueue) Prune(now time.Time) int {
	if q.ttl <= 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := 0
	for owner, pushed := range q.lastPush {
		if now.Sub(pushed) > q.ttl {
			delete(q.pending, owner)
			delete(q.lastPush, owner)
			dropped++
		}
	}
	return dropped
}

// RunPruner prunes every interval until ctx is done.
func (q *MemoryQueue) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			q.Prune(now)
		}
	}
}

func (q *MemoryQueue) Close() error {
	return nil
}
