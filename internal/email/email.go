// Package email sends order notification mail.
//
// Two senders exist: SMTP via go-mail and the Postmark HTTP API. The
// Notifier composes customer receipts and admin alerts and dispatches them
// through whichever Sender is configured.
package email

import "context"

// Email represents an email message to be sent.
type Email struct {
	To       []string
	From     string
	ReplyTo  string
	Subject  string
	TextBody string
	HTMLBody string
	Headers  map[string]string
}

// Sender defines the interface for sending emails.
type Sender interface {
	// Send sends an email message and returns the provider's message ID
	// when one is available.
	Send(ctx context.Context, email *Email) (string, error)
}
