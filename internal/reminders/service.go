package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studiotblack/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config holds configuration for the reminder service.
type Config struct {
	// Offsets are how long before the appointment reminders are delivered.
	Offsets  []time.Duration
	Location *time.Location
	// PollInterval is how often due reminders are looked up.
	PollInterval time.Duration
	// Retention is how long finished reminders are kept.
	Retention     time.Duration
	RatePerSecond float64
	Burst         int
	RetryDelays   []time.Duration
	BatchSize     int
	MaxConcurrent int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Offsets:       []time.Duration{24 * time.Hour, time.Hour},
		Location:      time.Local,
		PollInterval:  30 * time.Second,
		Retention:     7 * 24 * time.Hour,
		RatePerSecond: 20,
		Burst:         30,
		RetryDelays:   []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		BatchSize:     100,
		MaxConcurrent: 5,
	}
}

// Deps are the collaborators of a Service. Settings and Directory are optional.
type Deps struct {
	Repo      Repository
	Settings  SettingsStore
	Directory Directory
	Notifier  Notifier
	Logger    *zerolog.Logger
}

// Service schedules booking notifications and delivers them when due.
type Service struct {
	cfg       Config
	repo      Repository
	settings  SettingsStore
	directory Directory
	notifier  Notifier
	limiter   *rate.Limiter
	logger    *zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates a reminder service. Zero fields of cfg take their
// default values.
func NewService(cfg Config, deps Deps) *Service {
	def := DefaultConfig()
	if len(cfg.Offsets) == 0 {
		cfg.Offsets = def.Offsets
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = def.RetryDelays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}

	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "reminders").Logger()

	return &Service{
		cfg:       cfg,
		repo:      deps.Repo,
		settings:  deps.Settings,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:    &l,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleBooking stores the confirmation notification, due immediately,
// and one reminder per offset before the appointment. Reminders whose time
// has already passed are skipped. Scheduling the same booking twice is a
// no-op.
func (s *Service) ScheduleBooking(ctx context.Context, b model.Booking) error {
	start, err := b.StartsAt(s.cfg.Location)
	if err != nil {
		return err
	}
	now := s.now()
	n := s.lookupNames(ctx, b)

	settings := s.userSettings(ctx, b.UserID)

	list := []Reminder{confirmedReminder(b, n, start, now)}
	if settings.RemindersEnabled {
		for _, offset := range s.offsetsFor(settings) {
			r := beforeReminder(b, n, start, offset)
			if !r.DeliverAt.After(now) {
				continue
			}
			list = append(list, r)
		}
	}

	var errs []error
	for i := range list {
		err := s.repo.CreateReminder(ctx, &list[i])
		if err != nil && !errors.Is(err, ErrDuplicate) {
			errs = append(errs, fmt.Errorf("schedule %s: %w", list[i].Kind, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Debug().
		Str("booking_id", b.ID).
		Int("count", len(list)).
		Msg("booking notifications scheduled")
	return nil
}

func (s *Service) offsetsFor(settings *model.UserSettings) []time.Duration {
	if settings.ReminderHoursBefore > 0 {
		return []time.Duration{time.Duration(settings.ReminderHoursBefore) * time.Hour}
	}
	return s.cfg.Offsets
}

func (s *Service) userSettings(ctx context.Context, userID string) *model.UserSettings {
	defaults := &model.UserSettings{UserID: userID, RemindersEnabled: true}
	if s.settings == nil {
		return defaults
	}
	settings, err := s.settings.GetUserSettings(ctx, userID)
	if err != nil || settings == nil {
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to get user settings")
		}
		return defaults
	}
	return settings
}

// CancelForBooking cancels the reminders of a booking not yet delivered.
func (s *Service) CancelForBooking(ctx context.Context, bookingID string) (int64, error) {
	n, err := s.repo.CancelBookingReminders(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Str("booking_id", bookingID).Int64("count", n).Msg("reminders cancelled")
	}
	return n, nil
}

// PendingCount returns how many reminders wait for delivery.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.repo.CountPendingReminders(ctx)
}

// Start begins the dispatch loop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)

	s.logger.Info().Dur("poll_interval", s.cfg.PollInterval).Msg("reminder service started")
}

// Stop stops the dispatch loop and waits for in-flight deliveries.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("reminder service stopped")
}

// IsRunning returns whether the dispatch loop is running.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	lastCleanup := s.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.DispatchDue(ctx); err != nil {
				s.logger.Error().Err(err).Msg("reminder dispatch failed")
			}
			if s.now().Sub(lastCleanup) >= time.Hour {
				lastCleanup = s.now()
				if _, err := s.Cleanup(ctx); err != nil {
					s.logger.Error().Err(err).Msg("reminder cleanup failed")
				}
			}
		}
	}
}

// DispatchDue delivers the pending reminders whose time has come and
// returns how many were handled by this worker.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.FindReminders(ctx, Filter{
		Status:    []Status{StatusPending},
		DueBefore: &now,
		Limit:     s.cfg.BatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		handled int
	)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i := range due {
		r := due[i]
		g.Go(func() error {
			ok, err := s.process(ctx, &r)
			if err != nil {
				s.logger.Error().Err(err).Int64("reminder_id", r.ID).Msg("Failed to process reminder")
			}
			if ok {
				mu.Lock()
				handled++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if pending, err := s.repo.CountPendingReminders(ctx); err == nil {
		remindersQueue.Set(float64(pending))
	}
	return handled, nil
}

func (s *Service) process(ctx context.Context, r *Reminder) (bool, error) {
	acquired, err := s.repo.TryAcquireReminder(ctx, r.ID)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if err := s.repo.ReleaseReminder(context.WithoutCancel(ctx), r.ID); err != nil {
			s.logger.Error().Err(err).Int64("reminder_id", r.ID).Msg("Failed to release reminder")
		}
	}()
	r.Status = StatusProcessing

	if r.Kind != KindConfirmed && !s.userSettings(ctx, r.UserID).RemindersEnabled {
		r.Status = StatusCancelled
		remindersSent.WithLabelValues(string(StatusCancelled), string(r.Kind)).Inc()
		return true, s.repo.UpdateReminder(ctx, r)
	}

	return true, s.deliver(ctx, r)
}

// Cleanup deletes finished reminders older than the retention period.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.repo.DeleteReminders(ctx, Filter{
		Status:        []Status{StatusSent, StatusFailed, StatusCancelled},
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		remindersCleanedUp.Add(float64(n))
		s.logger.Info().Int64("deleted", n).Msg("cleaned up old reminders")
	}
	return n, nil
}
