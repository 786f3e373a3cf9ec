// Package tokens declares the server-side repository contract for refresh
// token records in persistent storage.
package tokens

import (
	"context"
	"time"

	"github.com/shelfmark/authd/internal/server/models"
)

// Repository persists TokenRecords. Lookups are always by digest or by
// identifiers, never by the raw token value. Records are never deleted;
// revocation is a field patch so the audit trail is retained.
type Repository interface {
	// Create inserts a new token record. A missing ID is assigned by the
	// implementation.
	Create(ctx context.Context, rec *models.TokenRecord) error

	// Get returns the record with the given id, or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.TokenRecord, error)

	// FindByHash returns the record holding the given refresh-token digest,
	// or common.ErrorNotFound.
	FindByHash(ctx context.Context, tokenHash string) (*models.TokenRecord, error)

	// FindActiveByDevice returns the record for (principal, device) that is
	// not revoked and not expired at the given time, or
	// common.ErrorNotFound.
	FindActiveByDevice(ctx context.Context, principalID, deviceID string, at time.Time) (*models.TokenRecord, error)

	// ListByPrincipal returns every record owned by the principal, newest
	// first, regardless of state.
	ListByPrincipal(ctx context.Context, principalID string) ([]*models.TokenRecord, error)

	// Revoke marks the record revoked at the given time. Revoking an
	// already-revoked record is a no-op that preserves the original
	// revocation time.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllActive revokes every active record owned by the principal
	// and returns the number of records revoked.
	RevokeAllActive(ctx context.Context, principalID string, at time.Time) (int64, error)

	// Touch updates the record's last-used time.
	Touch(ctx context.Context, id string, at time.Time) error
}
