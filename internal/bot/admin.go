package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"studiotblack/internal/model"
	"studiotblack/internal/report"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) requireManager(chatID int64, userID string) bool {
	if err := b.access.CheckManager(userID); err != nil {
		b.reply(chatID, "⛔ Comando disponível apenas para a equipe.")
		return false
	}
	return true
}

func (b *Bot) sendDashboard(ctx context.Context, chatID int64, userID string) {
	if !b.requireManager(chatID, userID) {
		return
	}
	d, err := b.bookings.Dashboard(ctx, b.now(), b.pending)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("dashboard failed")
		b.reply(chatID, "Não foi possível montar o painel.")
		return
	}

	names := b.catalogNames(ctx)
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Painel de %s</b>\n\n", formatDate(d.Date))
	if len(d.Today) == 0 {
		sb.WriteString("Nenhum agendamento hoje.\n")
	}
	for _, bk := range d.Today {
		fmt.Fprintf(&sb, "🕐 %s · %s · %s · %s\n", bk.Time,
			escape(names.professional(bk.ProfessionalID)), escape(names.service(bk.ServiceID)),
			report.StatusLabel(bk.Status))
	}
	fmt.Fprintf(&sb, "\n💰 Faturamento do dia: %s\n", formatPrice(d.TodayRevenue))

	if len(d.MonthByStatus) > 0 {
		sb.WriteString("\n<b>No mês</b>\n")
		statuses := make([]model.BookingStatus, 0, len(d.MonthByStatus))
		for s := range d.MonthByStatus {
			statuses = append(statuses, s)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
		for _, s := range statuses {
			fmt.Fprintf(&sb, "%s: %d\n", report.StatusLabel(s), d.MonthByStatus[s])
		}
	}
	fmt.Fprintf(&sb, "\nServiços: %d · Profissionais: %d · Lembretes pendentes: %d",
		d.Services, d.Professionals, d.PendingReminders)
	b.replyHTML(chatID, sb.String())
}

func (b *Bot) sendExport(ctx context.Context, chatID int64, userID, arg string) {
	if !b.requireManager(chatID, userID) {
		return
	}
	month := b.now()
	if arg != "" {
		m, err := report.ParseMonth(arg, b.rules.Location)
		if err != nil {
			b.reply(chatID, "Formato inválido. Use /exportar AAAA-MM.")
			return
		}
		month = m
	}

	rep, err := report.BuildMonthly(ctx, b.bookings, month)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("monthly export failed")
		b.reply(chatID, "Não foi possível gerar a planilha.")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: rep.Filename, Bytes: rep.Data})
	doc.Caption = fmt.Sprintf("%s %d · %d agendamentos", report.MonthName(month.Month()), month.Year(), rep.Bookings)
	if _, err := b.tg.Send(doc); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("send export failed")
	}
}

// targetUser accepts a bare Telegram id or a full user id.
func targetUser(raw string) string {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return model.TelegramUserID(id)
	}
	return raw
}

func (b *Bot) blockUser(ctx context.Context, chatID int64, userID, args string) {
	if !b.requireManager(chatID, userID) {
		return
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(chatID, "Uso: /bloquear ID motivo")
		return
	}
	target := targetUser(fields[0])
	reason := strings.Join(fields[1:], " ")
	if err := b.access.BlockUser(ctx, target, reason, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("target", target).Msg("block user failed")
		b.reply(chatID, "Não foi possível bloquear: "+err.Error())
		return
	}
	b.reply(chatID, fmt.Sprintf("🚫 %s bloqueado.", target))
}

func (b *Bot) unblockUser(ctx context.Context, chatID int64, userID, args string) {
	if !b.requireManager(chatID, userID) {
		return
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(chatID, "Uso: /desbloquear ID")
		return
	}
	target := targetUser(fields[0])
	if err := b.access.UnblockUser(ctx, target, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("target", target).Msg("unblock user failed")
		b.reply(chatID, "Não foi possível desbloquear: "+err.Error())
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ %s desbloqueado.", target))
}

// sendBlocked lists blocked customers, one unblock button each. A non-zero
// messageID edits the list in place.
func (b *Bot) sendBlocked(ctx context.Context, chatID int64, userID string, messageID, page int) {
	if !b.requireManager(chatID, userID) {
		return
	}
	list, err := b.access.ListBlockedUsers(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list blocked users failed")
		b.reply(chatID, "Não foi possível carregar a lista.")
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "Nenhum cliente bloqueado.")
		return
	}
	items := make([]pageItem, 0, len(list))
	for _, u := range list {
		line := fmt.Sprintf("%s · %s", escape(u.UserID), u.BlockedAt.Format("02/01/2006"))
		if u.Reason != "" {
			line += " · " + escape(u.Reason)
		}
		items = append(items, pageItem{Line: line, Button: "Desbloquear " + u.UserID, Callback: "unblk:" + u.UserID})
	}
	b.renderPage(pageParams{
		ChatID:     chatID,
		MessageID:  messageID,
		Page:       page,
		Title:      "🚫 <b>Clientes bloqueados</b>",
		Items:      items,
		PagePrefix: "blk:",
	})
}
