package service

import (
	"context"
	"fmt"
	"time"

	"studiotblack/internal/model"

	"golang.org/x/sync/errgroup"
)

// PendingCounter reports the reminders waiting for delivery.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int64, error)
}

// Dashboard is the admin overview of one day.
type Dashboard struct {
	Date             string                      `json:"date"`
	Today            []model.Booking             `json:"today"`
	TodayRevenue     float64                     `json:"today_revenue"`
	MonthByStatus    map[model.BookingStatus]int `json:"month_by_status"`
	Services         int                         `json:"services"`
	Professionals    int                         `json:"professionals"`
	PendingReminders int64                       `json:"pending_reminders"`
}

// Dashboard runs the independent reads of the admin overview in parallel.
// pending may be nil.
func (s *Bookings) Dashboard(ctx context.Context, day time.Time, pending PendingCounter) (*Dashboard, error) {
	date := day.Format(model.DateLayout)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	monthEnd := monthStart.AddDate(0, 1, -1)

	d := &Dashboard{Date: date}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		today, err := s.store.ListBookingsBetween(gctx, date, date)
		if err != nil {
			return fmt.Errorf("today bookings: %w", err)
		}
		d.Today = today
		for _, b := range today {
			if b.Status.Active() {
				d.TodayRevenue += b.TotalPrice
			}
		}
		return nil
	})
	g.Go(func() error {
		counts, err := s.store.CountBookingsByStatus(gctx, monthStart.Format(model.DateLayout), monthEnd.Format(model.DateLayout))
		if err != nil {
			return fmt.Errorf("month counts: %w", err)
		}
		d.MonthByStatus = counts
		return nil
	})
	g.Go(func() error {
		svcs, err := s.catalog.ListServices(gctx)
		if err != nil {
			return fmt.Errorf("services: %w", err)
		}
		d.Services = len(svcs)
		return nil
	})
	g.Go(func() error {
		pros, err := s.catalog.ListProfessionals(gctx)
		if err != nil {
			return fmt.Errorf("professionals: %w", err)
		}
		d.Professionals = len(pros)
		return nil
	})
	if pending != nil {
		g.Go(func() error {
			n, err := pending.PendingCount(gctx)
			if err != nil {
				return fmt.Errorf("pending reminders: %w", err)
			}
			d.PendingReminders = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}
