package notification

import "time"

// Notification mirrors the notifications table.
type Notification struct {
	ID          string
	RecipientID string
	Kind        string
	Subject     string
	Message     string
	ReferenceID *string
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// Read reports whether the recipient has opened the notification.
func (n Notification) Read() bool {
	return n.ReadAt != nil
}

// CreateParams contains write parameters for a delivered notification.
type CreateParams struct {
	RecipientID string
	Kind        string
	Subject     string
	Message     string
	ReferenceID string
	DedupeKey   string
}
