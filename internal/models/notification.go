package models

import "time"

// ===== Notifications =====

type NotificationKind string

const (
	KindSuccess NotificationKind = "success"
	KindError   NotificationKind = "error"
)

// Notification is a blocking message shown to the user until acknowledged.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Outcome   string           `json:"outcome"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}
