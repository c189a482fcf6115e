package form

import (
	"context"
	"sync"
	"time"

	"github.com/harrylevesque/callform/internal/notify"
	"github.com/harrylevesque/callform/internal/utils"
)

// Registry keeps one Form per browser session.
type Registry struct {
	sender Sender
	queue  notify.Queue
	log    *utils.Logger

	mu    sync.Mutex
	forms map[string]*Form
}

func NewRegistry(sender Sender, queue notify.Queue, logger *utils.Logger) *Registry {
	return &Registry{
		sender: sender,
		queue:  queue,
		log:    logger,
		forms:  make(map[string]*Form),
	}
}

// Get returns the form for id, creating an empty one on first use.
// Every lookup counts as activity for Sweep.
func (r *Registry) Get(id string) *Form {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	if !ok {
		f = New(id, r.sender, r.queue, r.log)
		r.forms[id] = f
		return f
	}
	f.touch(time.Now())
	return f
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

// Sweep drops forms idle for longer than maxIdle and returns how many were dropped.
// Forms with a request in flight are never dropped. Pending notifications are
// left in the queue; they expire on the queue's own TTL.
func (r *Registry) Sweep(now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for id, f := range r.forms {
		if f.idleSince(now) > maxIdle {
			delete(r.forms, id)
			dropped++
		}
	}
	return dropped
}

// RunSweeper sweeps every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now, maxIdle); n > 0 {
				r.log.Infof("dropped %d idle forms", n)
			}
		}
	}
}
