// Package access decides who may book and who may manage the shop.
package access

import (
	"context"
	"errors"
	"fmt"

	"studiotblack/internal/model"

	"github.com/rs/zerolog"
)

// BlocklistRepository persists blocked users.
type BlocklistRepository interface {
	GetBlockedUser(ctx context.Context, userID string) (*model.BlockedUser, error)
	BlockUser(ctx context.Context, userID, reason, blockedBy string) error
	UnblockUser(ctx context.Context, userID string) error
	ListBlockedUsers(ctx context.Context) ([]model.BlockedUser, error)
}

// Service combines the configured managers with the persisted blocklist.
type Service struct {
	blocklist BlocklistRepository
	managers  map[string]bool
	logger    zerolog.Logger
}

// NewService creates the access service. managers are user ids such as
// "tg:123456".
func NewService(blocklist BlocklistRepository, managers []string, logger zerolog.Logger) *Service {
	set := make(map[string]bool, len(managers))
	for _, id := range managers {
		set[id] = true
	}
	return &Service{
		blocklist: blocklist,
		managers:  set,
		logger:    logger.With().Str("component", "access").Logger(),
	}
}

// IsManager reports whether userID is a configured manager.
func (s *Service) IsManager(userID string) bool {
	return s.managers[userID]
}

// BlockUser adds a user to the blocklist. Only managers may block, and
// managers cannot be blocked.
func (s *Service) BlockUser(ctx context.Context, userID, reason, blockedBy string) error {
	if !s.IsManager(blockedBy) {
		return &DeniedError{Reason: managerOnly}
	}
	if s.IsManager(userID) {
		return fmt.Errorf("user %s is a manager and cannot be blocked", userID)
	}
	if err := s.blocklist.BlockUser(ctx, userID, reason, blockedBy); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("blocked_by", blockedBy).
		Str("reason", reason).
		Msg("user blocked")
	return nil
}

// UnblockUser removes a user from the blocklist.
func (s *Service) UnblockUser(ctx context.Context, userID, by string) error {
	if !s.IsManager(by) {
		return &DeniedError{Reason: managerOnly}
	}
	if err := s.blocklist.UnblockUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Str("unblocked_by", by).Msg("user unblocked")
	return nil
}

func (s *Service) ListBlockedUsers(ctx context.Context) ([]model.BlockedUser, error) {
	return s.blocklist.ListBlockedUsers(ctx)
}

// CheckCustomer returns a *DeniedError when userID may not book.
func (s *Service) CheckCustomer(ctx context.Context, userID string) error {
	blocked, err := s.blocklist.GetBlockedUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking blocklist: %w", err)
	}
	if blocked == nil {
		return nil
	}
	reason := "Seu acesso aos agendamentos está bloqueado."
	if blocked.Reason != "" {
		reason = fmt.Sprintf("Seu acesso aos agendamentos está bloqueado: %s", blocked.Reason)
	}
	return &DeniedError{Reason: reason}
}

// CheckManager returns a *DeniedError when userID is not a manager.
func (s *Service) CheckManager(userID string) error {
	if !s.IsManager(userID) {
		return &DeniedError{Reason: managerOnly}
	}
	return nil
}

const managerOnly = "Este comando é exclusivo para a equipe do Studio T Black."

// DeniedError is returned when a user may not perform an action. Reason is
// shown to the user.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return e.Reason
}

func (e *DeniedError) UserMessage() string {
	return e.Reason
}

// IsDenied reports whether err is, or wraps, a *DeniedError.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}
