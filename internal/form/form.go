// Package form holds the phone-number form: its input value, the
// Idle/Submitting guard, and the submission flow that ends in a notification.
package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harrylevesque/callform/internal/calls"
	"github.com/harrylevesque/callform/internal/models"
	"github.com/harrylevesque/callform/internal/notify"
	"github.com/harrylevesque/callform/internal/utils"
)

var (
	// ErrEmptyPhone is returned when submitting with an empty input. No request is sent.
	ErrEmptyPhone = errors.New("phone is required")
	// ErrSubmitInFlight is returned while a previous submission is still outstanding.
	ErrSubmitInFlight = errors.New("submission already in progress")
)

type State int

const (
	StateIdle State = iota
	StateSubmitting
)

func (s State) String() string {
	if s == StateSubmitting {
		return "submitting"
	}
	return "idle"
}

// Sender delivers one call request. *calls.Client implements it.
type Sender interface {
	Send(ctx context.Context, phone string) (calls.Outcome, error)
}

type Form struct {
	id     string
	sender Sender
	queue  notify.Queue
	log    *utils.Logger

	mu       sync.Mutex
	phone    string
	state    State
	lastUsed time.Time
}

func New(id string, sender Sender, queue notify.Queue, logger *utils.Logger) *Form {
	return &Form{
		id:       id,
		sender:   sender,
		queue:    queue,
		log:      logger,
		lastUsed: time.Now(),
	}
}

func (f *Form) ID() string {
	return f.id
}

// OnInputChange replaces the current phone value unconditionally.
func (f *Form) OnInputChange(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phone = raw
	f.lastUsed = time.Now()
}

func (f *Form) Phone() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phone
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnSubmit sends the current phone value once and queues a notification for
// the outcome. Rejections and network failures are not returned as errors:
// they are reported through the notification. The phone value is kept.
func (f *Form) OnSubmit(ctx context.Context) (models.Notification, error) {
	f.mu.Lock()
	if f.phone == "" {
		f.mu.Unlock()
		return models.Notification{}, ErrEmptyPhone
	}
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return models.Notification{}, ErrSubmitInFlight
	}
	f.state = StateSubmitting
	f.lastUsed = time.Now()
	phone := f.phone
	f.mu.Unlock()

	f.log.Infof("form %s: sending number %q", f.id, phone)
	outcome, err := f.sender.Send(ctx, phone)

	f.mu.Lock()
	f.state = StateIdle
	f.lastUsed = time.Now()
	f.mu.Unlock()

	kind := models.KindSuccess
	if err != nil {
		kind = models.KindError
		f.log.Errorf("form %s: request failed (%s): %v", f.id, outcome, err)
	}
	n := notify.New(kind, outcome.String(), outcome.Message())
	if err := f.queue.Push(ctx, f.id, n); err != nil {
		return n, err
	}
	return n, nil
}

func (f *Form) touch(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUsed = now
}

func (f *Form) idleSince(now time.Time) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return 0
	}
	return now.Sub(f.lastUsed)
}
