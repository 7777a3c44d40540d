// Package services – UserService
//
// Thin CRUD over the users collection (command codes 100–103). The service
// validates the little there is to validate (non-blank username on create)
// and translates repository errors into service sentinels; persistence
// itself lives in the repo package.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-view-backend/internal/domain"
	"github.com/tbourn/go-view-backend/internal/repo"
)

// UserService provides create/get/update/delete operations for users.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Create inserts a new user. Username is required and must be unique;
// a taken name yields ErrDuplicateUsername.
func (s *UserService) Create(ctx context.Context, username, email, role string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrMissingUsername
	}
	u := &domain.User{
		Username: username,
		Email:    strings.TrimSpace(email),
		Role:     defaultString(role, "member"),
		Status:   "active",
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	return u, nil
}

// Get fetches a user by id, or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Update applies non-empty fields to an existing user.
func (s *UserService) Update(ctx context.Context, id, email, role, status string) error {
	updates := map[string]any{}
	if v := strings.TrimSpace(email); v != "" {
		updates["email"] = v
	}
	if v := strings.TrimSpace(role); v != "" {
		updates["role"] = v
	}
	if v := strings.TrimSpace(status); v != "" {
		updates["status"] = v
	}
	err := repo.UpdateUser(ctx, s.DB, id, updates)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Delete removes a user by id, or ErrUserNotFound.
func (s *UserService) Delete(ctx context.Context, id string) error {
	err := repo.DeleteUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// defaultString returns v unless blank, else def.
func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
