// Package db is the local sqlite store: catalog, bookings, reminders,
// user settings, push devices and the blocklist.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the booking backend.
type DB struct {
	*sql.DB
	path string
}

// Open opens the database at path and runs migrations.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			duration_min INTEGER NOT NULL DEFAULT 0,
			price REAL NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT 1,
			position INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// working_hours keeps the JSON shape it was written in; services is
		// NULL when the professional carries no list.
		`CREATE TABLE IF NOT EXISTS professionals (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			specialties TEXT,
			working_hours TEXT,
			active BOOLEAN NOT NULL DEFAULT 1,
			show_in_booking BOOLEAN,
			services TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			professional_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			notes TEXT NOT NULL DEFAULT '',
			total_price REAL NOT NULL DEFAULT 0,
			payment_method TEXT NOT NULL DEFAULT '',
			payment_status TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			payload TEXT,
			deliver_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			sent_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(booking_id, kind)
		)`,

		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id TEXT PRIMARY KEY,
			reminders_enabled BOOLEAN NOT NULL DEFAULT 1,
			reminder_hours_before INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS devices (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS blocked_users (
			user_id TEXT PRIMARY KEY,
			reason TEXT NOT NULL DEFAULT '',
			blocked_by TEXT NOT NULL DEFAULT '',
			blocked_at DATETIME NOT NULL
		)`,

		// Indexes
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_slot ON bookings(professional_id, date, time)
			WHERE status NOT IN ('cancelled', 'no_show')`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date, time)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, deliver_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_booking ON reminders(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// stamp normalizes times written to the store so that text comparisons in
// sqlite order them correctly.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
