package telegram

import (
	"context"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the notify.Notifier interface using the
// gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// Send delivers one text message to the chat. telebot's Send is
// blocking, so the call is pushed to a goroutine and raced against the
// context; campaign sends carry a per-recipient timeout.
func (tba *TelebotAdapter) Send(ctx context.Context, chatID int64, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := tba.bot.Send(&telebot.User{ID: chatID}, text)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
