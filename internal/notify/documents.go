package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Documents sends files to a fixed set of Telegram chats, such as the
// managers receiving the monthly report.
type Documents struct {
	bot   TelegramSender
	chats []int64
}

func NewDocuments(bot TelegramSender, chats []int64) *Documents {
	return &Documents{bot: bot, chats: chats}
}

// SendDocument delivers the file to every chat. A failed chat does not stop
// delivery to the others.
func (d *Documents) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	if len(d.chats) == 0 {
		return errors.New("no recipients configured")
	}
	var errs []error
	for _, chatID := range d.chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
		doc.Caption = caption
		if _, err := d.bot.Send(doc); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, telegramError(err)))
		}
	}
	return errors.Join(errs...)
}
