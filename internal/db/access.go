package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiotblack/internal/model"
)

const blockedColumns = `user_id, reason, blocked_by, blocked_at`

func scanBlocked(row rowScanner) (*model.BlockedUser, error) {
	var bu model.BlockedUser
	if err := row.Scan(&bu.UserID, &bu.Reason, &bu.BlockedBy, &bu.BlockedAt); err != nil {
		return nil, err
	}
	return &bu, nil
}

// GetBlockedUser returns the blocklist entry of userID, or nil when the
// user may book.
func (db *DB) GetBlockedUser(ctx context.Context, userID string) (*model.BlockedUser, error) {
	bu, err := scanBlocked(db.QueryRowContext(ctx,
		`SELECT `+blockedColumns+` FROM blocked_users WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blocked user %s: %w", userID, err)
	}
	return bu, nil
}

// BlockUser adds userID to the blocklist. Blocking an already blocked user
// replaces the reason and the author.
func (db *DB) BlockUser(ctx context.Context, userID, reason, blockedBy string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO blocked_users (`+blockedColumns+`) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			reason = excluded.reason,
			blocked_by = excluded.blocked_by,
			blocked_at = excluded.blocked_at`,
		userID, reason, blockedBy, stamp(time.Now()))
	if err != nil {
		return fmt.Errorf("block user %s: %w", userID, err)
	}
	return nil
}

// UnblockUser removes userID from the blocklist. It returns
// model.ErrNotFound when the user was not blocked.
func (db *DB) UnblockUser(ctx context.Context, userID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM blocked_users WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("unblock user %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("blocked user %s: %w", userID, model.ErrNotFound)
	}
	return nil
}

func (db *DB) ListBlockedUsers(ctx context.Context) ([]model.BlockedUser, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+blockedColumns+` FROM blocked_users ORDER BY blocked_at DESC, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list blocked users: %w", err)
	}
	defer rows.Close()

	var out []model.BlockedUser
	for rows.Next() {
		bu, err := scanBlocked(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *bu)
	}
	return out, rows.Err()
}
