package ports

import "context"

// Notification is an outbound message carrying a workflow link (email
// confirmation or password reset) to one recipient.
type Notification struct {
	Recipient string
	Subject   string
	Link      string
}

// NotificationSender delivers notifications. Actual mail transport is a
// collaborator concern; the core only hands the link over.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}
