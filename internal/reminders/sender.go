package reminders

import (
	"context"
	"fmt"
	"time"
)

// deliver sends r with rate limiting and retry, then records the outcome.
// Rate limited attempts wait for the channel's retry-after; 400, 403 and
// 404 fail permanently; other errors are retried after each RetryDelays entry.
func (s *Service) deliver(ctx context.Context, r *Reminder) error {
	start := time.Now()
	defer func() { reminderSendDuration.Observe(time.Since(start).Seconds()) }()

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	delays := s.cfg.RetryDelays
	var lastErr error
	for attempt := 0; attempt <= len(delays); attempt++ {
		err := s.notifier.Send(ctx, r.Notification())
		if err == nil {
			return s.markAsSent(ctx, r)
		}
		lastErr = err

		if se, ok := AsSendError(err); ok {
			switch se.Code {
			case 429:
				if attempt == len(delays) {
					break
				}
				wait := se.RetryAfter
				if wait == 0 {
					wait = delays[attempt]
				}
				s.logger.Info().Dur("retry_after", wait).Int("attempt", attempt).Int64("reminder_id", r.ID).
					Msg("rate limited by channel, waiting")
				reminderRetries.Inc()
				if err := s.sleep(ctx, wait); err != nil {
					return err
				}
				continue
			case 403:
				s.logger.Info().Str("user_id", r.UserID).Int64("reminder_id", r.ID).Msg("user blocked the channel")
				return s.markAsFailed(ctx, r, "user_blocked")
			case 400:
				s.logger.Error().Err(err).Int64("reminder_id", r.ID).Msg("bad request to channel")
				return s.markAsFailed(ctx, r, "bad_request")
			case 404:
				s.logger.Info().Str("user_id", r.UserID).Int64("reminder_id", r.ID).Msg("no delivery channel for user")
				return s.markAsFailed(ctx, r, "unreachable")
			}
		}

		if attempt < len(delays) {
			delay := delays[attempt]
			s.logger.Info().Int("attempt", attempt+1).Int("max_retries", len(delays)).Dur("delay", delay).Err(err).
				Msg("retrying reminder send")
			reminderRetries.Inc()
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	s.logger.Error().Err(lastErr).Int64("reminder_id", r.ID).Str("user_id", r.UserID).
		Msg("max retries exceeded for reminder")
	return s.markAsFailed(ctx, r, "max_retries_exceeded")
}

func (s *Service) markAsSent(ctx context.Context, r *Reminder) error {
	now := s.now()
	r.Status = StatusSent
	r.SentAt = &now
	r.LastError = ""

	if err := s.repo.UpdateReminder(ctx, r); err != nil {
		return fmt.Errorf("mark reminder %d sent: %w", r.ID, err)
	}
	remindersSent.WithLabelValues(string(StatusSent), string(r.Kind)).Inc()

	s.logger.Info().
		Int64("reminder_id", r.ID).
		Str("user_id", r.UserID).
		Str("booking_id", r.BookingID).
		Str("kind", string(r.Kind)).
		Msg("reminder sent")
	return nil
}

func (s *Service) markAsFailed(ctx context.Context, r *Reminder, reason string) error {
	r.Status = StatusFailed
	r.LastError = reason
	r.RetryCount++

	if err := s.repo.UpdateReminder(ctx, r); err != nil {
		return fmt.Errorf("mark reminder %d failed: %w", r.ID, err)
	}
	remindersSent.WithLabelValues(string(StatusFailed), string(r.Kind)).Inc()

	s.logger.Info().Int64("reminder_id", r.ID).Str("reason", reason).Msg("reminder marked as failed")
	return nil
}
