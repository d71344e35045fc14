package notify

import "context"

// Notifier sends one message to one recipient. It is owned by the bot
// transport layer; the campaign service treats a returned error as
// per-recipient delivery data, never as a reason to abort a job.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}
