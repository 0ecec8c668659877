package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupOptions configures the periodic snapshot of the database file.
type BackupOptions struct {
	Enabled   bool
	Dir       string
	Interval  time.Duration
	Retention time.Duration
}

type BackupService struct {
	db     *DB
	opts   BackupOptions
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, opts BackupOptions, logger *zerolog.Logger) *BackupService {
	if opts.Dir == "" {
		opts.Dir = filepath.Join(filepath.Dir(db.Path()), "backups")
	}
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &BackupService{db: db, opts: opts, logger: logger, now: time.Now}
}

// Start runs a backup immediately and then on every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.opts.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.opts.Interval).Str("dir", s.opts.Dir).Msg("Backup service started")

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup writes a consistent copy of the database with VACUUM INTO
// and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s.db", s.now().Format("20060102_150405"))
	path := filepath.Join(s.opts.Dir, name)

	s.logger.Info().Str("path", path).Msg("Performing database backup")

	quoted := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return path, nil
}

// CleanupOldBackups removes backup files older than the retention period.
func (s *BackupService) CleanupOldBackups() int {
	if s.opts.Retention <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().Add(-s.opts.Retention)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "backup_") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.opts.Dir, file.Name())); err == nil {
				removed++
			}
		}
	}
	return removed
}
