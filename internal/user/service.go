package user

import (
	"context"
	"errors"
)

// Service contains business logic for user management.
type Service struct {
	repo *Repository
}

// NewService creates a new user Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetByID returns a user by their UUID.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// AvatarURL returns the user's current avatar URL, or "" when none is set.
func (s *Service) AvatarURL(ctx context.Context, id string) (string, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.AvatarURL == nil {
		return "", nil
	}
	return *u.AvatarURL, nil
}

// UpdateAvatarURL replaces the user's avatar pointer.
func (s *Service) UpdateAvatarURL(ctx context.Context, id, url string) error {
	return s.repo.UpdateAvatarURL(ctx, id, url)
}

// IsNotFound returns true when the error indicates a user was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
