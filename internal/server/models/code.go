package models

import "time"

// VerificationCode is the stored form of a one-time numeric code: only its
// digest is persisted, with an expiry and a single-use flag.
type VerificationCode struct {
	ID          string
	PrincipalID string
	CodeHash    string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// Usable reports whether the code can still be redeemed at the given time.
func (c *VerificationCode) Usable(now time.Time) bool {
	return c.UsedAt == nil && now.Before(c.ExpiresAt)
}
