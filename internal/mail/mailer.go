// Package mail delivers transactional email for authentication flows.
package mail

import "context"

// Mailer dispatches a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
