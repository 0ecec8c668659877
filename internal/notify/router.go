package notify

import (
	"context"
	"strings"

	"studiotblack/internal/reminders"

	"github.com/rs/zerolog"
)

// Router picks the channel by user id: tg: users go to Telegram, everyone
// else to push. A nil channel reports the user as unreachable.
type Router struct {
	Telegram reminders.Notifier
	Push     reminders.Notifier
}

func (r *Router) Send(ctx context.Context, n reminders.Notification) error {
	target := r.Push
	if strings.HasPrefix(n.UserID, "tg:") {
		target = r.Telegram
	}
	if target == nil {
		return &reminders.SendError{Code: 404, Message: "no channel for " + n.UserID}
	}
	return target.Send(ctx, n)
}

// Log only writes notifications to the log. It is used when no real
// channel is configured.
type Log struct {
	Logger *zerolog.Logger
}

func (l *Log) Send(_ context.Context, n reminders.Notification) error {
	l.Logger.Info().
		Str("user_id", n.UserID).
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("notification")
	return nil
}
