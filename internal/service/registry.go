package service

import (
	"context"
	"fmt"

	"github.com/Rrens/thread-router/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// RegistryService exposes the session registry for administration
type RegistryService struct {
	sessions domain.SessionRepository
	validate *validator.Validate
}

// NewRegistryService creates a new registry service
func NewRegistryService(sessions domain.SessionRepository) *RegistryService {
	return &RegistryService{
		sessions: sessions,
		validate: validator.New(),
	}
}

// List returns every registered session
func (s *RegistryService) List(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.sessions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// ThreadForUser returns the user's thread or ErrNotFound
func (s *RegistryService) ThreadForUser(ctx context.Context, user string) (string, error) {
	threadID, ok, err := s.sessions.GetThreadForUser(ctx, user)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: no thread for user %q", domain.ErrNotFound, user)
	}
	return threadID, nil
}

// UserForThread returns the thread's owner or ErrNotFound
func (s *RegistryService) UserForThread(ctx context.Context, threadID string) (string, error) {
	user, ok, err := s.sessions.GetUserForThread(ctx, threadID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: no user for thread %q", domain.ErrNotFound, threadID)
	}
	return user, nil
}

// Assign binds the user to an existing remote thread
func (s *RegistryService) Assign(ctx context.Context, user string, req domain.SessionUpsert) error {
	if user == "" {
		return fmt.Errorf("%w: user identity is required", domain.ErrInvalidInput)
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if err := s.sessions.Upsert(ctx, user, req.ThreadID); err != nil {
		return err
	}

	log.Info().Str("user", user).Str("thread_id", req.ThreadID).Msg("Session assigned")
	return nil
}

// Remove deletes the user's session, reporting whether one existed
func (s *RegistryService) Remove(ctx context.Context, user string) (bool, error) {
	deleted, err := s.sessions.Delete(ctx, user)
	if err != nil {
		return false, err
	}
	if deleted {
		log.Info().Str("user", user).Msg("Session removed")
	}
	return deleted, nil
}

// Clear removes every session. It is irreversible and refuses to run
// without explicit confirmation.
func (s *RegistryService) Clear(ctx context.Context, confirm bool) (int64, error) {
	if !confirm {
		return 0, fmt.Errorf("%w: clearing the registry requires confirmation", domain.ErrInvalidInput)
	}

	removed, err := s.sessions.ClearAll(ctx)
	if err != nil {
		return 0, err
	}

	log.Warn().Int64("removed", removed).Msg("Session registry cleared")
	return removed, nil
}

// Ping checks that the registry store is reachable
func (s *RegistryService) Ping(ctx context.Context) error {
	_, err := s.sessions.ListAll(ctx)
	return err
}
