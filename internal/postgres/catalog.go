package postgres

import (
	"context"
	"errors"
	"fmt"

	"studiotblack/internal/model"

	"github.com/jackc/pgx/v5"
)

type serviceRow struct {
	ID          string
	Name        string
	Description *string
	Duration    int
	Price       float64
	Category    *string
	IsActive    bool
}

func (r serviceRow) toModel() model.Service {
	return model.Service{
		ID:          r.ID,
		Name:        r.Name,
		Description: deref(r.Description),
		DurationMin: r.Duration,
		Price:       r.Price,
		Category:    deref(r.Category),
		Active:      r.IsActive,
	}
}

type professionalRow struct {
	ID            string
	Name          string
	AvatarURL     *string
	Specialties   []string
	WorkingHours  []byte
	IsActive      bool
	ShowInBooking *bool
	Services      []string
}

// toModel normalises working_hours, which is stored either as a list of
// "Seg-Sex: 09:00-18:00" lines or as an object keyed by day.
func (r professionalRow) toModel() (model.Professional, error) {
	hours, err := model.DecodeWorkingHours(r.WorkingHours)
	if err != nil {
		return model.Professional{}, fmt.Errorf("professional %s: %w", r.ID, err)
	}
	return model.Professional{
		ID:            r.ID,
		Name:          r.Name,
		AvatarURL:     deref(r.AvatarURL),
		Specialties:   r.Specialties,
		WorkingHours:  hours,
		Active:        r.IsActive,
		ShowInBooking: r.ShowInBooking,
		Services:      r.Services,
	}, nil
}

const serviceColumns = `id, name, description, duration, price::float8, category, is_active`

func scanService(row pgx.Row) (serviceRow, error) {
	var r serviceRow
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Duration, &r.Price, &r.Category, &r.IsActive)
	return r, err
}

// ListServices returns the active services by name.
func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	out := []model.Service{}
	for rows.Next() {
		r, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r.toModel())
	}
	return out, rows.Err()
}

func (s *Store) GetService(ctx context.Context, id string) (*model.Service, error) {
	r, err := scanService(s.pool.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	svc := r.toModel()
	return &svc, nil
}

// ListProfessionals returns the active professionals by name.
func (s *Store) ListProfessionals(ctx context.Context) ([]model.Professional, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, avatar_url, specialties, working_hours, is_active, show_in_booking, services
		FROM professionals WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()

	out := []model.Professional{}
	for rows.Next() {
		var r professionalRow
		if err := rows.Scan(&r.ID, &r.Name, &r.AvatarURL, &r.Specialties, &r.WorkingHours,
			&r.IsActive, &r.ShowInBooking, &r.Services); err != nil {
			return nil, err
		}
		p, err := r.toModel()
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping professional with unreadable working hours")
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
