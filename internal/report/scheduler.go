package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studiotblack/internal/model"

	"github.com/rs/zerolog"
)

// Sender delivers a finished workbook to the managers.
type Sender interface {
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

// Cleaner removes bookings dated before date (YYYY-MM-DD).
type Cleaner interface {
	DeleteBookingsBefore(ctx context.Context, date string) (int64, error)
}

type SchedulerConfig struct {
	Location *time.Location
	// Retention keeps bookings this long after their date. Zero keeps
	// them forever.
	Retention     time.Duration
	ExportOnStart bool
	RunTimeout    time.Duration

	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Scheduler sends last month's workbook to the managers shortly after
// midnight on the 1st and then prunes bookings past the retention period.
type Scheduler struct {
	cfg     SchedulerConfig
	src     Source
	sender  Sender
	cleaner Cleaner
	logger  *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. cleaner may be nil.
func NewScheduler(cfg SchedulerConfig, src Source, sender Sender, cleaner Cleaner, logger *zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "monthly_report").Logger()
	return &Scheduler{cfg: cfg, src: src, sender: sender, cleaner: cleaner, logger: &l}
}

// NextRun returns 00:01 on the first day of the month after now, in now's
// location.
func NextRun(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)
	s.logger.Info().Dur("retention", s.cfg.Retention).Msg("monthly report scheduler started")
}

// Stop ends the loop and waits for a run in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	if s.cfg.ExportOnStart {
		s.run(ctx)
	}
	for {
		now := s.cfg.Now().In(s.cfg.Location)
		next := NextRun(now)
		s.logger.Debug().Time("next_run", next).Msg("monthly report scheduled")

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-s.cfg.After(next.Sub(now)):
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("monthly report run failed")
	}
}

// RunOnce exports the month before now and, when the export was delivered,
// deletes bookings older than the retention period. Bookings are never
// pruned after a failed export.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.cfg.Now().In(s.cfg.Location)
	month := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, s.cfg.Location)

	rep, err := BuildMonthly(ctx, s.src, month)
	if err != nil {
		return fmt.Errorf("build %s: %w", month.Format("2006-01"), err)
	}
	caption := fmt.Sprintf("📊 Relatório mensal · %s %d · %d agendamentos", MonthName(month.Month()), month.Year(), rep.Bookings)
	if err := s.sender.SendDocument(ctx, rep.Filename, rep.Data, caption); err != nil {
		return fmt.Errorf("send %s: %w", rep.Filename, err)
	}
	s.logger.Info().Str("file", rep.Filename).Int("bookings", rep.Bookings).Msg("monthly report sent")

	if s.cleaner == nil || s.cfg.Retention <= 0 {
		return nil
	}
	cutoff := now.Add(-s.cfg.Retention).Format(model.DateLayout)
	deleted, err := s.cleaner.DeleteBookingsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune bookings before %s: %w", cutoff, err)
	}
	s.logger.Info().Str("before", cutoff).Int64("deleted", deleted).Msg("old bookings pruned")
	return nil
}
