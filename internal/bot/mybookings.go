package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studiotblack/internal/model"
	"studiotblack/internal/report"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) sendMyBookings(ctx context.Context, chatID int64, userID string) {
	l := zerolog.Ctx(ctx)
	list, err := b.bookings.UpcomingUserBookings(ctx, userID, b.now().Format(model.DateLayout))
	if err != nil {
		l.Error().Err(err).Str("user_id", userID).Msg("list user bookings failed")
		b.reply(chatID, "Não foi possível carregar seus agendamentos. Tente novamente.")
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "Você não tem agendamentos futuros. Use /agendar para marcar um horário.")
		return
	}

	names := b.catalogNames(ctx)
	var sb strings.Builder
	sb.WriteString("📋 <b>Seus agendamentos</b>\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, bk := range list {
		fmt.Fprintf(&sb, "\n%d. %s às %s\n   ✂️ %s com %s\n   %s\n",
			i+1, formatDate(bk.Date), bk.Time,
			escape(names.service(bk.ServiceID)), escape(names.professional(bk.ProfessionalID)),
			report.StatusLabel(bk.Status))
		if bk.Status.Cancellable() {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("❌ Cancelar %d (%s %s)", i+1, bk.Date[8:]+"/"+bk.Date[5:7], bk.Time),
					"cancel_bk:"+bk.ID),
			))
		}
	}
	if len(rows) == 0 {
		b.replyHTML(chatID, sb.String())
		return
	}
	b.sendKeyboard(chatID, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) cancelBooking(ctx context.Context, chatID int64, userID, id string) {
	bk, err := b.bookings.CancelBooking(ctx, id, userID)
	switch {
	case err == nil:
		b.replyHTML(chatID, fmt.Sprintf("❌ Agendamento de <b>%s às %s</b> cancelado.", formatDate(bk.Date), bk.Time))
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrForbidden):
		b.reply(chatID, "Agendamento não encontrado.")
	case errors.Is(err, model.ErrNotCancellable):
		b.reply(chatID, "Este agendamento não pode mais ser cancelado.")
	default:
		zerolog.Ctx(ctx).Error().Err(err).Str("booking_id", id).Msg("cancel booking failed")
		b.reply(chatID, "Não foi possível cancelar. Tente novamente.")
	}
}

type catalogNames struct {
	services      map[string]string
	professionals map[string]string
}

func (n catalogNames) service(id string) string {
	if name, ok := n.services[id]; ok {
		return name
	}
	return id
}

func (n catalogNames) professional(id string) string {
	if name, ok := n.professionals[id]; ok {
		return name
	}
	return id
}

// catalogNames falls back to raw ids when the catalog cannot be read.
func (b *Bot) catalogNames(ctx context.Context) catalogNames {
	n := catalogNames{services: map[string]string{}, professionals: map[string]string{}}
	if services, err := b.bookings.ListServices(ctx); err == nil {
		for _, s := range services {
			n.services[s.ID] = s.Name
		}
	}
	if pros, err := b.bookings.ListProfessionals(ctx); err == nil {
		for _, p := range pros {
			n.professionals[p.ID] = p.Name
		}
	}
	return n
}
