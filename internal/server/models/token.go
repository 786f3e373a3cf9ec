package models

import "time"

// Platform tags the kind of device a token was issued to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformUnknown Platform = "unknown"
)

// ParsePlatform maps arbitrary client input onto a known tag.
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformIOS, PlatformAndroid:
		return Platform(s)
	default:
		return PlatformUnknown
	}
}

// TokenRecord is the persisted state of one refresh token. Only the SHA-256
// digest of the token is stored; the raw value is returned to the caller
// once at issue time. Records are never physically deleted — revocation is
// a flag so the audit trail survives.
type TokenRecord struct {
	ID          string
	PrincipalID string
	TokenHash   string
	DeviceID    string
	DeviceName  string
	Platform    Platform
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastUsedAt  *time.Time
	Revoked     bool
	RevokedAt   *time.Time
}

// Expired reports whether the record is past its expiry at the given time.
// Expiry is a read-time classification and is never written back.
func (t *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the record is neither revoked nor expired.
func (t *TokenRecord) Active(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// Session is the caller-facing view of an active TokenRecord. It never
// carries the refresh-token hash.
type Session struct {
	ID         string
	DeviceID   string
	DeviceName string
	Platform   Platform
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
}

// SessionFromRecord projects a TokenRecord onto its public view.
func SessionFromRecord(r *TokenRecord) *Session {
	return &Session{
		ID:         r.ID,
		DeviceID:   r.DeviceID,
		DeviceName: r.DeviceName,
		Platform:   r.Platform,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		LastUsedAt: r.LastUsedAt,
	}
}
