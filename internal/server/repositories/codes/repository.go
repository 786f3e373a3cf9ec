// Package codes declares the repository contract for one-time verification
// code digests.
package codes

import (
	"context"
	"time"

	"github.com/shelfmark/authd/internal/server/models"
)

// Repository persists verification codes. Only digests are stored; raw
// codes travel to the principal through the notification collaborator.
type Repository interface {
	// Create inserts a new code record. A missing ID is assigned by the
	// implementation.
	Create(ctx context.Context, code *models.VerificationCode) error

	// FindCurrent returns the newest code for the principal, used or not,
	// or common.ErrorNotFound. Older codes are superseded by insertion
	// order: only the newest is ever redeemable.
	FindCurrent(ctx context.Context, principalID string) (*models.VerificationCode, error)

	// MarkUsed stamps the code as redeemed. Single use is enforced by the
	// service checking UsedAt before redemption.
	MarkUsed(ctx context.Context, id string, at time.Time) error
}
