// Package bot is the Telegram front-end of the shop: the booking wizard,
// the customer's bookings and the manager commands.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"studiotblack/internal/booking"
	"studiotblack/internal/model"
	"studiotblack/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// BookingService is the booking surface used by the bot.
type BookingService interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
	ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error)
	UpcomingUserBookings(ctx context.Context, userID, today string) ([]model.Booking, error)
	CancelBooking(ctx context.Context, id, userID string) (*model.Booking, error)
	Dashboard(ctx context.Context, day time.Time, pending service.PendingCounter) (*service.Dashboard, error)
}

// AccessService decides who may book and who manages the shop.
type AccessService interface {
	CheckCustomer(ctx context.Context, userID string) error
	CheckManager(userID string) error
	IsManager(userID string) bool
	BlockUser(ctx context.Context, userID, reason, blockedBy string) error
	UnblockUser(ctx context.Context, userID, by string) error
	ListBlockedUsers(ctx context.Context) ([]model.BlockedUser, error)
}

type SettingsStore interface {
	ToggleReminders(ctx context.Context, userID string) (bool, error)
}

// Deps are the collaborators of the bot. Settings and Pending are optional.
type Deps struct {
	Bookings BookingService
	Sessions *booking.SessionStore
	Access   AccessService
	Settings SettingsStore
	Pending  service.PendingCounter
	Logger   *zerolog.Logger
}

// Rules bound the dates offered in the calendar.
type Rules struct {
	MaxAdvance time.Duration
	Location   *time.Location
	Now        func() time.Time
}

// Bot handles Telegram updates.
type Bot struct {
	tg       telegramClient
	bookings BookingService
	sessions *booking.SessionStore
	access   AccessService
	settings SettingsStore
	pending  service.PendingCounter
	rules    Rules
	logger   *zerolog.Logger

	mu           sync.Mutex
	awaitingNote map[int64]bool
}

// New builds the bot on an authorized API client. The same client is
// shared with the Telegram notifier.
func New(api *tgbotapi.BotAPI, deps Deps, rules Rules) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram api is nil")
	}
	return NewWithTelegramClient(&realTelegramClient{api: api}, deps, rules)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, deps Deps, rules Rules) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if deps.Bookings == nil || deps.Sessions == nil || deps.Access == nil {
		return nil, fmt.Errorf("bot requires bookings, sessions and access")
	}
	if deps.Logger == nil {
		l := zerolog.Nop()
		deps.Logger = &l
	}
	if rules.MaxAdvance <= 0 {
		rules.MaxAdvance = 30 * 24 * time.Hour
	}
	if rules.Location == nil {
		rules.Location = time.Local
	}
	if rules.Now == nil {
		rules.Now = time.Now
	}
	l := deps.Logger.With().Str("component", "bot").Logger()
	return &Bot{
		tg:           tg,
		bookings:     deps.Bookings,
		sessions:     deps.Sessions,
		access:       deps.Access,
		settings:     deps.Settings,
		pending:      deps.Pending,
		rules:        rules,
		logger:       &l,
		awaitingNote: make(map[int64]bool),
	}, nil
}

var (
	customerMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBook),
			tgbotapi.NewKeyboardButton(btnMyBookings),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnReminders),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)

	managerMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBook),
			tgbotapi.NewKeyboardButton(btnMyBookings),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDashboard),
			tgbotapi.NewKeyboardButton(btnExport),
		),
	)
)

const (
	btnBook       = "✂️ Agendar"
	btnMyBookings = "📋 Meus agendamentos"
	btnReminders  = "🔔 Lembretes"
	btnHelp       = "ℹ️ Ajuda"
	btnDashboard  = "📊 Painel"
	btnExport     = "📥 Exportar mês"
)

const helpText = `<b>Studio T Black</b>

/agendar - novo agendamento
/meus - seus próximos agendamentos
/cancelar - interromper o agendamento em andamento
/lembretes - ligar ou desligar lembretes`

const managerHelpText = `

<b>Equipe</b>
/painel - resumo do dia
/exportar AAAA-MM - planilha do mês
/bloquear ID motivo - bloquear cliente
/desbloquear ID - desbloquear cliente
/bloqueados - lista de bloqueados`

// Start polls updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("telegram bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
			b.HandleUpdate(l.WithContext(ctx), &update)
		}
	}
}

// HandleUpdate processes one update.
func (b *Bot) HandleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	switch {
	case update.CallbackQuery != nil:
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	userID := model.TelegramUserID(msg.From.ID)

	// Commands interrupt a pending notes prompt.
	if msg.IsCommand() || isMenuButton(text) {
		b.setAwaitingNote(chatID, false)
	}

	if msg.IsCommand() {
		args := strings.TrimSpace(msg.CommandArguments())
		switch msg.Command() {
		case "start":
			b.sendWelcome(chatID, msg.From)
		case "agendar":
			b.startBookingFlow(ctx, chatID, userID)
		case "meus":
			b.sendMyBookings(ctx, chatID, userID)
		case "cancelar":
			b.abortFlow(ctx, chatID, userID)
		case "lembretes":
			b.toggleReminders(ctx, chatID, userID)
		case "ajuda", "help":
			b.sendHelp(chatID, userID)
		case "painel":
			b.sendDashboard(ctx, chatID, userID)
		case "exportar":
			b.sendExport(ctx, chatID, userID, args)
		case "bloquear":
			b.blockUser(ctx, chatID, userID, args)
		case "desbloquear":
			b.unblockUser(ctx, chatID, userID, args)
		case "bloqueados":
			b.sendBlocked(ctx, chatID, userID, 0, 0)
		default:
			b.reply(chatID, "Comando não reconhecido. Use /ajuda.")
		}
		return
	}

	switch text {
	case btnBook:
		b.startBookingFlow(ctx, chatID, userID)
		return
	case btnMyBookings:
		b.sendMyBookings(ctx, chatID, userID)
		return
	case btnReminders:
		b.toggleReminders(ctx, chatID, userID)
		return
	case btnHelp:
		b.sendHelp(chatID, userID)
		return
	case btnDashboard:
		b.sendDashboard(ctx, chatID, userID)
		return
	case btnExport:
		b.sendExport(ctx, chatID, userID, "")
		return
	}

	if b.takeAwaitingNote(chatID) {
		b.saveNotes(ctx, chatID, text)
		return
	}
	b.reply(chatID, "Use /agendar para marcar um horário ou /ajuda para ver os comandos.")
}

func isMenuButton(text string) bool {
	switch text {
	case btnBook, btnMyBookings, btnReminders, btnHelp, btnDashboard, btnExport:
		return true
	}
	return false
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	_ = b.answerCallback(cq.ID)
	if cq.Message == nil || cq.Data == "noop" {
		return
	}
	chatID := cq.Message.Chat.ID
	userID := model.TelegramUserID(cq.From.ID)
	data := cq.Data

	switch {
	case strings.HasPrefix(data, "svc:"):
		b.onService(ctx, chatID, strings.TrimPrefix(data, "svc:"))
	case strings.HasPrefix(data, "pro:"):
		b.onProfessional(ctx, chatID, strings.TrimPrefix(data, "pro:"))
	case strings.HasPrefix(data, "cal:"):
		b.onMonth(ctx, chatID, cq.Message.MessageID, strings.TrimPrefix(data, "cal:"))
	case strings.HasPrefix(data, "date:"):
		b.onDate(ctx, chatID, strings.TrimPrefix(data, "date:"))
	case strings.HasPrefix(data, "slot:"):
		b.onSlot(ctx, chatID, strings.TrimPrefix(data, "slot:"))
	case strings.HasPrefix(data, "blk:"):
		page, _ := strconv.Atoi(strings.TrimPrefix(data, "blk:"))
		b.sendBlocked(ctx, chatID, userID, cq.Message.MessageID, page)
	case strings.HasPrefix(data, "unblk:"):
		b.unblockUser(ctx, chatID, userID, strings.TrimPrefix(data, "unblk:"))
	case strings.HasPrefix(data, "cancel_bk:"):
		b.cancelBooking(ctx, chatID, userID, strings.TrimPrefix(data, "cancel_bk:"))
	case data == "refresh":
		b.onRefresh(ctx, chatID)
	case data == "back":
		b.onBack(ctx, chatID)
	case data == "silent":
		b.onToggleSilent(ctx, chatID)
	case data == "notes":
		b.onNotesPrompt(chatID)
	case data == "confirm":
		b.onConfirm(ctx, chatID, userID)
	case data == "abort":
		b.abortFlow(ctx, chatID, userID)
	case data == "my_bookings":
		b.sendMyBookings(ctx, chatID, userID)
	}
}

func (b *Bot) sendWelcome(chatID int64, from *tgbotapi.User) {
	name := strings.TrimSpace(from.FirstName)
	if name == "" {
		name = "cliente"
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Olá, %s! Bem-vindo ao <b>Studio T Black</b> 💈\n\nEscolha uma opção no menu abaixo.", escape(name)))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = b.menuFor(model.TelegramUserID(from.ID))
	_, _ = b.tg.Send(msg)
}

func (b *Bot) sendHelp(chatID int64, userID string) {
	text := helpText
	if b.access.IsManager(userID) {
		text += managerHelpText
	}
	b.replyHTML(chatID, text)
}

func (b *Bot) menuFor(userID string) tgbotapi.ReplyKeyboardMarkup {
	if b.access.IsManager(userID) {
		return managerMenu
	}
	return customerMenu
}

func (b *Bot) toggleReminders(ctx context.Context, chatID int64, userID string) {
	if b.settings == nil {
		b.reply(chatID, "Lembretes indisponíveis no momento.")
		return
	}
	enabled, err := b.settings.ToggleReminders(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("toggle reminders failed")
		b.reply(chatID, "Não foi possível alterar os lembretes. Tente novamente.")
		return
	}
	if enabled {
		b.reply(chatID, "🔔 Lembretes ativados.")
	} else {
		b.reply(chatID, "🔕 Lembretes desativados.")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	_, _ = b.tg.Send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, _ = b.tg.Send(msg)
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

func (b *Bot) setAwaitingNote(chatID int64, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.awaitingNote[chatID] = true
	} else {
		delete(b.awaitingNote, chatID)
	}
}

func (b *Bot) takeAwaitingNote(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok := b.awaitingNote[chatID]
	delete(b.awaitingNote, chatID)
	return ok
}

func (b *Bot) now() time.Time {
	return b.rules.Now().In(b.rules.Location)
}
