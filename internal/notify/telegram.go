// Package notify delivers reminder notifications over Telegram and Expo push.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"studiotblack/internal/model"
	"studiotblack/internal/reminders"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender is the part of tgbotapi.BotAPI used to send messages.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends notifications to customers identified by a tg: user id.
type Telegram struct {
	bot TelegramSender
}

func NewTelegram(bot TelegramSender) *Telegram {
	return &Telegram{bot: bot}
}

// Send implements reminders.Notifier.
func (t *Telegram) Send(ctx context.Context, n reminders.Notification) error {
	chatID, ok := model.TelegramChatID(n.UserID)
	if !ok {
		return &reminders.SendError{Code: 404, Message: "not a telegram user: " + n.UserID}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(n.Title), html.EscapeString(n.Body)))
	msg.ParseMode = tgbotapi.ModeHTML
	if id := n.Payload["booking_id"]; id != "" && n.Payload["kind"] == string(reminders.KindConfirmed) {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📋 Meus agendamentos", "my_bookings"),
			),
		)
	}

	if _, err := t.bot.Send(msg); err != nil {
		return telegramError(err)
	}
	return nil
}

// telegramError converts Telegram API errors to reminders.SendError so the
// dispatcher can tell rate limits and blocked users apart.
func telegramError(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &reminders.SendError{
			Code:       tgErr.Code,
			Message:    tgErr.Message,
			RetryAfter: time.Duration(tgErr.RetryAfter) * time.Second,
		}
	}
	return err
}
