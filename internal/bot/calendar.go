package bot

import (
	"fmt"
	"time"

	"studiotblack/internal/model"
	"studiotblack/internal/report"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var weekdayHeader = []string{"Seg", "Ter", "Qua", "Qui", "Sex", "Sáb", "Dom"}

// calendarKeyboard builds a Monday-first month grid. Days before today or
// beyond the booking window are shown as "·" and cannot be picked.
func (b *Bot) calendarKeyboard(month time.Time) tgbotapi.InlineKeyboardMarkup {
	today := truncateDay(b.now())
	last := truncateDay(today.Add(b.rules.MaxAdvance))
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, b.rules.Location)

	offset := int(first.Weekday())
	if offset == 0 {
		offset = 7
	}
	days := daysIn(first.Month(), first.Year())

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 8)
	rows = append(rows, monthHeader(first, today, last))

	header := make([]tgbotapi.InlineKeyboardButton, 0, 7)
	for _, d := range weekdayHeader {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(d, "noop"))
	}
	rows = append(rows, header)

	day := 1
	for day <= days {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for col := 1; col <= 7; col++ {
			if (len(rows) == 2 && col < offset) || day > days {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
				continue
			}
			date := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, b.rules.Location)
			if date.Before(today) || date.After(last) {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData("·", "noop"))
			} else {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("%d", day), "date:"+date.Format(model.DateLayout)))
			}
			day++
		}
		rows = append(rows, row)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func monthHeader(first, today, last time.Time) []tgbotapi.InlineKeyboardButton {
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)

	prevBtn := tgbotapi.NewInlineKeyboardButtonData(" ", "noop")
	if !prev.AddDate(0, 1, -1).Before(today) {
		prevBtn = tgbotapi.NewInlineKeyboardButtonData("◀️", "cal:"+prev.Format("2006-01"))
	}
	nextBtn := tgbotapi.NewInlineKeyboardButtonData(" ", "noop")
	if !next.After(last) {
		nextBtn = tgbotapi.NewInlineKeyboardButtonData("▶️", "cal:"+next.Format("2006-01"))
	}
	title := fmt.Sprintf("%s %d", report.MonthName(first.Month()), first.Year())
	return []tgbotapi.InlineKeyboardButton{
		prevBtn,
		tgbotapi.NewInlineKeyboardButtonData(title, "noop"),
		nextBtn,
	}
}

// timeSlotRows groups slot buttons in rows of three.
func timeSlotRows(available []string) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	var current []tgbotapi.InlineKeyboardButton
	for _, t := range available {
		current = append(current, tgbotapi.NewInlineKeyboardButtonData(t, "slot:"+t))
		if len(current) == 3 {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	return rows
}

func (b *Bot) dateBookable(date string) bool {
	d, err := time.ParseInLocation(model.DateLayout, date, b.rules.Location)
	if err != nil {
		return false
	}
	today := truncateDay(b.now())
	return !d.Before(today) && !d.After(truncateDay(today.Add(b.rules.MaxAdvance)))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
