package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const itemsPerPage = 8

type pageItem struct {
	Line     string
	Button   string
	Callback string
}

type pageParams struct {
	ChatID     int64
	MessageID  int // 0 sends a new message
	Page       int
	Title      string
	Items      []pageItem
	PagePrefix string
}

// renderPage shows one page of items with a button per item and
// previous/next navigation.
func (b *Bot) renderPage(p pageParams) {
	pages := (len(p.Items) + itemsPerPage - 1) / itemsPerPage
	if pages == 0 {
		pages = 1
	}
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page >= pages {
		p.Page = pages - 1
	}
	start := p.Page * itemsPerPage
	end := min(start+itemsPerPage, len(p.Items))

	var text strings.Builder
	fmt.Fprintf(&text, "%s\nPágina %d de %d\n", p.Title, p.Page+1, pages)

	var keyboard [][]tgbotapi.InlineKeyboardButton
	for i, item := range p.Items[start:end] {
		fmt.Fprintf(&text, "\n%d. %s", start+i+1, item.Line)
		if item.Callback != "" {
			keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s", start+i+1, item.Button), item.Callback),
			))
		}
	}

	var nav []tgbotapi.InlineKeyboardButton
	if p.Page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Anterior", fmt.Sprintf("%s%d", p.PagePrefix, p.Page-1)))
	}
	if end < len(p.Items) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Próxima ➡️", fmt.Sprintf("%s%d", p.PagePrefix, p.Page+1)))
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)

	if p.MessageID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(p.ChatID, p.MessageID, text.String(), markup)
		edit.ParseMode = tgbotapi.ModeHTML
		_, _ = b.tg.Send(edit)
		return
	}
	msg := tgbotapi.NewMessage(p.ChatID, text.String())
	msg.ParseMode = tgbotapi.ModeHTML
	if len(keyboard) > 0 {
		msg.ReplyMarkup = markup
	}
	_, _ = b.tg.Send(msg)
}
