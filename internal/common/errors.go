// Package common defines shared constants and sentinel errors used across
// authd components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal        = errors.New("internal error")
	ErrorUnauthenticated = errors.New("unauthenticated")
	ErrorUnauthorized    = errors.New("unauthorized")

	// Configuration errors are fatal at startup and never retried.
	ErrorConfiguration = errors.New("configuration error")

	// Validation errors.
	ErrorValidation   = errors.New("validation error")
	ErrorWeakPassword = errors.New("password does not meet minimum requirements")
	ErrorInvalidCode  = errors.New("invalid verification code")

	// Token decode errors (invalid or malformed token).
	ErrInvalidToken          = errors.New("invalid token")
	ErrInvalidTokenSignature = errors.New("invalid token signature")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// RateLimitedError reports that an identity exceeded the attempt budget for
// an action. RetryAfter is how long the caller must wait before the lock
// elapses.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: action %q locked for %s", e.Action, e.RetryAfter)
}

// IsRateLimited reports whether err (or anything it wraps) is a
// RateLimitedError, returning it when so.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
