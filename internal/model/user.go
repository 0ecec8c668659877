package model

import (
	"strconv"
	"strings"
	"time"
)

const telegramPrefix = "tg:"

// TelegramUserID builds the user id used for Telegram customers.
func TelegramUserID(id int64) string {
	return telegramPrefix + strconv.FormatInt(id, 10)
}

// TelegramChatID extracts the Telegram id from a user id built by TelegramUserID.
func TelegramChatID(userID string) (int64, bool) {
	raw, ok := strings.CutPrefix(userID, telegramPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// UserSettings stores user preferences like reminder settings.
type UserSettings struct {
	UserID              string    `json:"user_id"`
	RemindersEnabled    bool      `json:"reminders_enabled"`
	ReminderHoursBefore int       `json:"reminder_hours_before"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Device is a push token registered by the mobile app.
type Device struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockedUser is an entry of the booking blocklist.
type BlockedUser struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	BlockedBy string    `json:"blocked_by"`
	BlockedAt time.Time `json:"blocked_at"`
}
