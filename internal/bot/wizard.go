package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"studiotblack/internal/access"
	"studiotblack/internal/booking"
	"studiotblack/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const maxNotesLength = 500

func sessionKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func (b *Bot) startBookingFlow(ctx context.Context, chatID int64, userID string) {
	if err := b.access.CheckCustomer(ctx, userID); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	flow := b.sessions.GetOrCreate(ctx, sessionKey(chatID))
	if _, done := flow.Step().(booking.SubmittedStep); done {
		_ = flow.Reset()
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

// flowFor returns the live flow of chatID or tells the customer it expired.
func (b *Bot) flowFor(ctx context.Context, chatID int64) (*booking.Flow, bool) {
	flow, ok := b.sessions.Get(ctx, sessionKey(chatID))
	if !ok {
		b.reply(chatID, "Seu agendamento expirou. Use /agendar para começar de novo.")
		return nil, false
	}
	return flow, true
}

func (b *Bot) save(ctx context.Context, chatID int64) {
	if err := b.sessions.Save(ctx, sessionKey(chatID)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).Msg("failed to save booking flow")
	}
}

func (b *Bot) abortFlow(ctx context.Context, chatID int64, _ string) {
	b.setAwaitingNote(chatID, false)
	b.sessions.Delete(ctx, sessionKey(chatID))
	b.reply(chatID, "Agendamento cancelado. Quando quiser, use /agendar.")
}

func (b *Bot) renderStep(ctx context.Context, chatID int64, flow *booking.Flow) {
	switch st := flow.Step().(type) {
	case booking.ProfessionalStep:
		if st.Service == nil {
			b.sendServices(ctx, chatID)
			return
		}
		b.sendProfessionals(chatID, st)
	case booking.DateTimeStep:
		if st.Date == "" {
			b.sendCalendar(chatID, st, b.now())
			return
		}
		b.sendSlots(chatID, st)
	case booking.SummaryStep:
		silent, notes := flow.Preferences()
		b.sendSummary(chatID, st, silent, notes)
	case booking.SubmittedStep:
		b.sendSubmitted(chatID, st.Booking)
	}
}

func (b *Bot) sendServices(ctx context.Context, chatID int64) {
	services, err := b.bookings.ListServices(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list services failed")
		b.reply(chatID, booking.GenericFailureMessage)
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range services {
		if !s.Active {
			continue
		}
		label := fmt.Sprintf("%s · %s", s.Name, formatPrice(s.Price))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "svc:"+s.ID),
		))
	}
	if len(rows) == 0 {
		b.reply(chatID, "Nenhum serviço disponível no momento.")
		return
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancelar", "abort"),
	))
	b.sendKeyboard(chatID, "✂️ <b>Escolha o serviço</b>", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) sendProfessionals(chatID int64, st booking.ProfessionalStep) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range st.Professionals {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Name, "pro:"+p.ID),
		))
	}
	text := fmt.Sprintf("💈 <b>%s</b>\nEscolha o profissional:", escape(st.Service.Name))
	if len(rows) == 0 {
		text = fmt.Sprintf("💈 <b>%s</b>\nNenhum profissional atende este serviço no momento.", escape(st.Service.Name))
	}
	rows = append(rows, navigationRow())
	b.sendKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) sendCalendar(chatID int64, st booking.DateTimeStep, month time.Time) {
	text := fmt.Sprintf("💈 <b>%s</b> com <b>%s</b>\n📅 Escolha a data:", escape(st.Service.Name), escape(st.Professional.Name))
	kb := b.calendarKeyboard(month)
	kb.InlineKeyboard = append(kb.InlineKeyboard, navigationRow())
	b.sendKeyboard(chatID, text, kb)
}

func (b *Bot) sendSlots(chatID int64, st booking.DateTimeStep) {
	header := fmt.Sprintf("💈 <b>%s</b> com <b>%s</b>\n📅 %s\n", escape(st.Service.Name), escape(st.Professional.Name), formatDate(st.Date))

	var rows [][]tgbotapi.InlineKeyboardButton
	switch {
	case st.Failed:
		header += "Não foi possível carregar os horários."
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Tentar de novo", "refresh"),
		))
	case st.Loading:
		header += "Carregando horários..."
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Atualizar", "refresh"),
		))
	case len(st.Available) == 0:
		header += "Sem horários livres nesta data. Escolha outro dia."
	default:
		header += "🕐 Escolha o horário:"
		rows = timeSlotRows(st.Available)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📅 Outra data", "cal:"+st.Date[:7]),
	))
	rows = append(rows, navigationRow())
	b.sendKeyboard(chatID, header, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) sendSummary(chatID int64, st booking.SummaryStep, silent bool, notes string) {
	var sb strings.Builder
	sb.WriteString("📝 <b>Confirme seu agendamento</b>\n\n")
	fmt.Fprintf(&sb, "✂️ Serviço: %s\n", escape(st.Service.Name))
	fmt.Fprintf(&sb, "💈 Profissional: %s\n", escape(st.Professional.Name))
	fmt.Fprintf(&sb, "📅 Data: %s\n", formatDate(st.Date))
	fmt.Fprintf(&sb, "🕐 Horário: %s\n", st.Time)
	fmt.Fprintf(&sb, "💰 Valor: %s\n", formatPrice(st.Service.Price))
	if silent {
		sb.WriteString("🤫 Atendimento silencioso\n")
	}
	if notes != "" {
		fmt.Fprintf(&sb, "🗒 Observações: %s\n", escape(notes))
	}

	silentLabel := "🤫 Atendimento silencioso: não"
	if silent {
		silentLabel = "🤫 Atendimento silencioso: sim"
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(silentLabel, "silent")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗒 Observações", "notes")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Confirmar", "confirm")),
		navigationRow(),
	)
	b.sendKeyboard(chatID, sb.String(), kb)
}

func (b *Bot) sendSubmitted(chatID int64, bk model.Booking) {
	text := fmt.Sprintf("✅ <b>Agendamento confirmado!</b>\n\n📅 %s às %s\n💰 %s\n\nVocê receberá um lembrete antes do horário.",
		formatDate(bk.Date), bk.Time, formatPrice(bk.TotalPrice))
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Meus agendamentos", "my_bookings")),
	)
	b.sendKeyboard(chatID, text, kb)
}

func navigationRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Voltar", "back"),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancelar", "abort"),
	)
}

func (b *Bot) onService(ctx context.Context, chatID int64, id string) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	if err := flow.SelectServiceByID(ctx, id); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

func (b *Bot) onProfessional(ctx context.Context, chatID int64, id string) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	if err := flow.SelectProfessional(id); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

// onMonth redraws the calendar for "YYYY-MM", editing the message in place.
func (b *Bot) onMonth(ctx context.Context, chatID int64, messageID int, raw string) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	month, err := time.ParseInLocation("2006-01", raw, b.rules.Location)
	if err != nil {
		return
	}
	switch st := flow.Step().(type) {
	case booking.DateTimeStep:
		if st.Date == "" {
			kb := b.calendarKeyboard(month)
			kb.InlineKeyboard = append(kb.InlineKeyboard, navigationRow())
			_, _ = b.tg.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, kb))
			return
		}
		b.sendCalendar(chatID, st, month)
	case booking.SummaryStep:
		b.sendCalendar(chatID, booking.DateTimeStep{Service: st.Service, Professional: st.Professional}, month)
	}
}

func (b *Bot) onDate(ctx context.Context, chatID int64, date string) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	if !b.dateBookable(date) {
		b.reply(chatID, "Esta data não está disponível para agendamento.")
		return
	}
	if _, err := flow.ChangeDate(ctx, date); err != nil && !errors.Is(err, booking.ErrStaleSlots) {
		b.save(ctx, chatID)
		b.sendError(ctx, chatID, err)
		if _, isDate := flow.Step().(booking.DateTimeStep); !isDate {
			return
		}
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

func (b *Bot) onRefresh(ctx context.Context, chatID int64) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	if _, err := flow.RefreshSlots(ctx); err != nil && !errors.Is(err, booking.ErrStaleSlots) {
		b.sendError(ctx, chatID, err)
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

func (b *Bot) onSlot(ctx context.Context, chatID int64, hhmm string) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	if err := flow.SelectTime(hhmm); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

func (b *Bot) onBack(ctx context.Context, chatID int64) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	var err error
	if _, atStart := flow.Step().(booking.ProfessionalStep); atStart {
		err = flow.Reset()
	} else {
		err = flow.Back()
	}
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

func (b *Bot) onToggleSilent(ctx context.Context, chatID int64) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	silent, notes := flow.Preferences()
	if err := flow.SetPreferences(!silent, notes); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

func (b *Bot) onNotesPrompt(chatID int64) {
	b.setAwaitingNote(chatID, true)
	b.reply(chatID, "Escreva suas observações em uma mensagem (envie - para apagar).")
}

func (b *Bot) saveNotes(ctx context.Context, chatID int64, text string) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	if text == "-" {
		text = ""
	}
	if r := []rune(text); len(r) > maxNotesLength {
		text = string(r[:maxNotesLength])
	}
	silent, _ := flow.Preferences()
	if err := flow.SetPreferences(silent, text); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.save(ctx, chatID)
	b.renderStep(ctx, chatID, flow)
}

func (b *Bot) onConfirm(ctx context.Context, chatID int64, userID string) {
	flow, ok := b.flowFor(ctx, chatID)
	if !ok {
		return
	}
	if err := b.access.CheckCustomer(ctx, userID); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	flow.OnComplete(func(bk model.Booking) {
		zerolog.Ctx(ctx).Info().Str("booking_id", bk.ID).Str("user_id", userID).Msg("booking confirmed via telegram")
		b.sessions.Delete(ctx, sessionKey(chatID))
		b.sendSubmitted(chatID, bk)
	})
	if _, err := flow.Confirm(ctx, userID); err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			b.reply(chatID, "Este horário acabou de ser reservado. Escolha outro.")
			if backErr := flow.Back(); backErr == nil {
				if _, rErr := flow.RefreshSlots(ctx); rErr != nil && !errors.Is(rErr, booking.ErrStaleSlots) {
					zerolog.Ctx(ctx).Warn().Err(rErr).Msg("refresh after taken slot failed")
				}
			}
			b.save(ctx, chatID)
			b.renderStep(ctx, chatID, flow)
			return
		}
		b.sendError(ctx, chatID, err)
	}
}

// sendError turns a flow or access error into a message for the customer.
func (b *Bot) sendError(ctx context.Context, chatID int64, err error) {
	var (
		denied *access.DeniedError
		verr   *booking.ValidationError
		remote *booking.RemoteError
	)
	switch {
	case errors.As(err, &denied):
		b.reply(chatID, "⛔ "+denied.UserMessage())
	case errors.As(err, &verr):
		b.reply(chatID, "Faltam informações: "+strings.Join(missingLabels(verr.Missing), ", ")+".")
	case errors.Is(err, model.ErrSlotTaken):
		b.reply(chatID, "Este horário acabou de ser reservado. Escolha outro.")
	case errors.Is(err, booking.ErrSlotUnavailable):
		b.reply(chatID, "Este horário não está mais disponível.")
	case errors.Is(err, booking.ErrUnknownService):
		b.reply(chatID, "Serviço indisponível.")
	case errors.Is(err, booking.ErrUnknownProfessional):
		b.reply(chatID, "Este profissional não atende o serviço escolhido.")
	case errors.Is(err, booking.ErrSubmissionInFlight):
		b.reply(chatID, "Seu agendamento já está sendo enviado, aguarde.")
	case errors.Is(err, booking.ErrAlreadySubmitted):
		b.reply(chatID, "Este agendamento já foi concluído. Use /agendar para um novo.")
	case errors.As(err, &remote):
		b.reply(chatID, remote.Message)
	case errors.Is(err, booking.ErrIllegalTransition):
		b.reply(chatID, "Esta opção não está mais disponível. Use /agendar para continuar.")
	default:
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("booking flow error")
		b.reply(chatID, booking.GenericFailureMessage)
	}
}

var fieldLabels = map[string]string{
	"user_id":         "cliente",
	"service_id":      "serviço",
	"professional_id": "profissional",
	"date":            "data",
	"time":            "horário",
}

func missingLabels(missing []string) []string {
	out := make([]string, len(missing))
	for i, m := range missing {
		if l, ok := fieldLabels[m]; ok {
			out[i] = l
		} else {
			out[i] = m
		}
	}
	return out
}

func (b *Bot) sendKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = kb
	_, _ = b.tg.Send(msg)
}
