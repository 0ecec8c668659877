package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"studiotblack/internal/model"
)

// ListServices returns the active services in catalog order.
func (db *DB) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, duration_min, price, category, active
		FROM services
		WHERE active = 1
		ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMin, &s.Price, &s.Category, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetService returns a service by id, active or not.
func (db *DB) GetService(ctx context.Context, id string) (*model.Service, error) {
	var s model.Service
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, duration_min, price, category, active
		FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.DurationMin, &s.Price, &s.Category, &s.Active)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	return &s, nil
}

// ListProfessionals returns the active professionals in catalog order with
// their working hours normalized.
func (db *DB) ListProfessionals(ctx context.Context) ([]model.Professional, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, avatar_url, specialties, working_hours, active, show_in_booking, services
		FROM professionals
		WHERE active = 1
		ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()

	var out []model.Professional
	for rows.Next() {
		var (
			p                            model.Professional
			specialties, hours, services sql.NullString
			showInBooking                sql.NullBool
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.AvatarURL, &specialties, &hours, &p.Active, &showInBooking, &services); err != nil {
			return nil, err
		}
		if err := decodeProfessional(&p, specialties, hours, showInBooking, services); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodeProfessional(p *model.Professional, specialties, hours sql.NullString, show sql.NullBool, services sql.NullString) error {
	if specialties.Valid && specialties.String != "" {
		if err := json.Unmarshal([]byte(specialties.String), &p.Specialties); err != nil {
			return fmt.Errorf("professional %s specialties: %w", p.ID, err)
		}
	}
	if hours.Valid {
		wh, err := model.DecodeWorkingHours([]byte(hours.String))
		if err != nil {
			return fmt.Errorf("professional %s working_hours: %w", p.ID, err)
		}
		p.WorkingHours = wh
	}
	if show.Valid {
		p.ShowInBooking = model.Bool(show.Bool)
	}
	// A JSON null is the same as a missing list.
	if services.Valid && services.String != "" && services.String != "null" {
		list := []string{}
		if err := json.Unmarshal([]byte(services.String), &list); err != nil {
			return fmt.Errorf("professional %s services: %w", p.ID, err)
		}
		p.Services = list
	}
	return nil
}
