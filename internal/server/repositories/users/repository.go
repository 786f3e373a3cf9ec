// Package users declares the repository contract for principals and their
// stored password credentials.
package users

import (
	"context"

	"github.com/shelfmark/authd/internal/server/models"
)

// Repository persists users. The password credential is stored only in its
// derived "{saltHex}:{keyHex}" form.
type Repository interface {
	// Create inserts a new user. A missing ID is assigned by the
	// implementation.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// Get returns the user with the given id, or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.User, error)

	// GetByEmail returns the user with the given email, or
	// common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdatePassword replaces the stored credential string.
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}
