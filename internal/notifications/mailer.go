package notifications

import "context"

type Email struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

type Mailer interface {
	Send(ctx context.Context, msg Email) error
}
