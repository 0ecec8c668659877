package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"studiotblack/internal/config"
)

// SyncCatalog applies catalog.yaml to the database. It upserts services and
// professionals in file order and deactivates entries missing from the file.
func (db *DB) SyncCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog sync: %w", err)
	}
	defer tx.Rollback()

	now := stamp(time.Now())

	services := make([]string, 0, len(cat.Services))
	for i, sc := range cat.Services {
		s := sc.Service()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO services (id, name, description, duration_min, price, category, active, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				duration_min = excluded.duration_min,
				price = excluded.price,
				category = excluded.category,
				active = excluded.active,
				position = excluded.position,
				updated_at = excluded.updated_at`,
			s.ID, s.Name, s.Description, s.DurationMin, s.Price, s.Category, s.Active, i, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync service %s: %w", s.ID, err)
		}
		services = append(services, s.ID)
	}

	pros := make([]string, 0, len(cat.Professionals))
	for i, pc := range cat.Professionals {
		hours, err := pc.RawWorkingHours()
		if err != nil {
			return fmt.Errorf("professional %s working_hours: %w", pc.ID, err)
		}
		specialties, err := jsonColumn(pc.Specialties)
		if err != nil {
			return fmt.Errorf("professional %s specialties: %w", pc.ID, err)
		}
		serviceList, err := jsonColumn(pc.Services)
		if err != nil {
			return fmt.Errorf("professional %s services: %w", pc.ID, err)
		}
		var show sql.NullBool
		if pc.ShowInBooking != nil {
			show = sql.NullBool{Bool: *pc.ShowInBooking, Valid: true}
		}
		var rawHours sql.NullString
		if hours != nil {
			rawHours = sql.NullString{String: string(hours), Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO professionals (id, name, avatar_url, specialties, working_hours, active, show_in_booking, services, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				avatar_url = excluded.avatar_url,
				specialties = excluded.specialties,
				working_hours = excluded.working_hours,
				active = excluded.active,
				show_in_booking = excluded.show_in_booking,
				services = excluded.services,
				position = excluded.position,
				updated_at = excluded.updated_at`,
			pc.ID, pc.Name, pc.AvatarURL, specialties, rawHours, pc.IsActive(), show, serviceList, i, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync professional %s: %w", pc.ID, err)
		}
		pros = append(pros, pc.ID)
	}

	// Deactivate entries that disappeared from the file.
	if err := deactivateMissing(ctx, tx, "services", services, now); err != nil {
		return err
	}
	if err := deactivateMissing(ctx, tx, "professionals", pros, now); err != nil {
		return err
	}

	return tx.Commit()
}

func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, keep []string, now time.Time) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE active = 1", table))
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		seen[id] = struct{}{}
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range stale {
		q := fmt.Sprintf("UPDATE %s SET active = 0, updated_at = ? WHERE id = ?", table)
		if _, err := tx.ExecContext(ctx, q, now, id); err != nil {
			return fmt.Errorf("deactivate %s %s: %w", table, id, err)
		}
	}
	return nil
}

func jsonColumn[T any](v []T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
