// Package notify queues blocking notifications until the user acknowledges them.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/harrylevesque/callform/internal/models"
)

// ErrNotFound is returned when acknowledging an id that is not pending.
var ErrNotFound = errors.New("notification not found")

// Queue holds pending notifications per owner (one owner per form).
type Queue interface {
	Push(ctx context.Context, owner string, n models.Notification) error
	// Pending returns the owner's unacknowledged notifications, oldest first.
	Pending(ctx context.Context, owner string) ([]models.Notification, error)
	Ack(ctx context.Context, owner, id string) error
	Close() error
}

// New builds a notification with a fresh id.
func New(kind models.NotificationKind, outcome, message string) models.Notification {
	return models.Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Outcome:   outcome,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}
