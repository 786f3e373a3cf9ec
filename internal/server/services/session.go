// Package services contains server-side business logic. This file implements
// SessionService, which orchestrates issuing, refreshing, revoking, and
// listing refresh-token sessions.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shelfmark/authd/internal/common"
	"github.com/shelfmark/authd/internal/cryptox"
	"github.com/shelfmark/authd/internal/dbx"
	"github.com/shelfmark/authd/internal/logging"
	"github.com/shelfmark/authd/internal/server/config"
	"github.com/shelfmark/authd/internal/server/models"
	"github.com/shelfmark/authd/internal/server/repositories/repomanager"
	"github.com/shelfmark/authd/internal/token"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// token, with their expiry times. The refresh token appears here exactly
// once; only its digest is persisted.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessGrant is the result of a successful refresh.
type AccessGrant struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// DeviceInfo identifies the device a token pair is issued to. A zero ID
// means the session is not device-scoped. Platform is raw client input and
// is mapped onto a known tag.
type DeviceInfo struct {
	ID       string
	Name     string
	Platform string
}

// SessionService provides the token lifecycle operations:
// issue, refresh, revoke, revoke-all, and list-active.
type SessionService struct {
	db               *sql.DB
	repos            repomanager.RepositoryManager
	codec            *token.Codec
	logger           logging.Logger
	accessValidity   time.Duration
	refreshValidity  time.Duration
	platformValidity time.Duration

	// now is an injection point for tests.
	now func() time.Time
}

// NewSessionService constructs a SessionService using repositories, the
// token codec, and server config.
func NewSessionService(db *sql.DB, rm repomanager.RepositoryManager, codec *token.Codec, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:               db,
		repos:            rm,
		codec:            codec,
		logger:           logger.With("module", "session_service"),
		accessValidity:   cfg.AccessTokenValidityDuration,
		refreshValidity:  cfg.RefreshTokenValidityDuration,
		platformValidity: cfg.PlatformTokenValidityDuration,
		now:              time.Now,
	}
}

// Issue mints a fresh access/refresh pair for the principal. When a device
// id is given, any active record for the same (principal, device) pair is
// superseded first: the revoke and the insert are two dependent writes run
// inside one store transaction. Two racing issuers on separate instances can
// transiently both look active; the trigger is user-initiated and the window
// narrow, so this relaxation is accepted rather than serialized.
func (s *SessionService) Issue(ctx context.Context, principalID string, device *DeviceInfo) (*TokenPair, error) {
	raw, err := cryptox.NewOpaqueToken()
	if err != nil {
		s.logger.Error(ctx, "generating refresh token", "error", err)
		return nil, common.ErrorInternal
	}

	access, accessExpiresAt, err := s.codec.EncodeAccess(principalID, s.accessValidity)
	if err != nil {
		s.logger.Error(ctx, "signing access token", "error", err)
		return nil, common.ErrorInternal
	}

	now := s.now()
	rec := &models.TokenRecord{
		PrincipalID: principalID,
		TokenHash:   cryptox.DigestToken(raw),
		Platform:    models.PlatformUnknown,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.refreshValidity),
	}
	if device != nil {
		rec.DeviceID = device.ID
		rec.DeviceName = device.Name
		rec.Platform = models.ParsePlatform(device.Platform)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Tokens(tx)
		if rec.DeviceID != "" {
			prior, err := repo.FindActiveByDevice(ctx, principalID, rec.DeviceID, now)
			switch {
			case err == nil:
				if err := repo.Revoke(ctx, prior.ID, now); err != nil {
					return fmt.Errorf("superseding prior device token: %w", err)
				}
			case errors.Is(err, common.ErrorNotFound):
				// First session for this device.
			default:
				return fmt.Errorf("looking up prior device token: %w", err)
			}
		}
		return repo.Create(ctx, rec)
	})
	if err != nil {
		s.logger.Error(ctx, "persisting token record", "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "issued token pair", "principal_id", principalID, "device_id", rec.DeviceID)
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// IssuePlatformToken mints an RS256 token for the external session verifier.
// The session id fragment is a fresh opaque value; the verifier's single
// subject field carries both the principal and the session.
func (s *SessionService) IssuePlatformToken(ctx context.Context, principalID string) (string, time.Time, error) {
	sessionID, err := cryptox.NewOpaqueToken()
	if err != nil {
		s.logger.Error(ctx, "generating session id", "error", err)
		return "", time.Time{}, common.ErrorInternal
	}
	signed, expiresAt, err := s.codec.EncodePlatform(principalID, sessionID, s.platformValidity)
	if err != nil {
		s.logger.Error(ctx, "signing platform token", "error", err)
		return "", time.Time{}, common.ErrorInternal
	}
	return signed, expiresAt, nil
}

// Refresh validates a presented refresh token and mints a new access token.
// The lookup is by digest only. Fails with common.ErrorNotFound for an
// unknown value, common.ErrTokenRevoked for a revoked record, and
// common.ErrRefreshTokenExpired past expiry. On success the record's
// last-used time is updated; the refresh token itself is not rotated.
func (s *SessionService) Refresh(ctx context.Context, rawRefreshToken string) (*AccessGrant, error) {
	repo := s.repos.Tokens(s.db)

	rec, err := repo.FindByHash(ctx, cryptox.DigestToken(rawRefreshToken))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "looking up refresh token", "error", err)
		return nil, common.ErrorInternal
	}

	now := s.now()
	if rec.Revoked {
		return nil, common.ErrTokenRevoked
	}
	if rec.Expired(now) {
		return nil, common.ErrRefreshTokenExpired
	}

	access, accessExpiresAt, err := s.codec.EncodeAccess(rec.PrincipalID, s.accessValidity)
	if err != nil {
		s.logger.Error(ctx, "signing access token", "error", err)
		return nil, common.ErrorInternal
	}

	if err := repo.Touch(ctx, rec.ID, now); err != nil {
		s.logger.Error(ctx, "updating last used time", "error", err)
		return nil, common.ErrorInternal
	}

	return &AccessGrant{AccessToken: access, AccessExpiresAt: accessExpiresAt}, nil
}

// Revoke marks the record revoked. Fails with common.ErrorNotFound for an
// unknown id and common.ErrorUnauthorized when the requester does not own
// the record. Revoking an already-revoked record succeeds as a no-op.
func (s *SessionService) Revoke(ctx context.Context, tokenID, requestingPrincipalID string) error {
	repo := s.repos.Tokens(s.db)

	rec, err := repo.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "looking up token record", "error", err)
		return common.ErrorInternal
	}
	if rec.PrincipalID != requestingPrincipalID {
		return common.ErrorUnauthorized
	}
	if rec.Revoked {
		return nil
	}
	if err := repo.Revoke(ctx, tokenID, s.now()); err != nil {
		s.logger.Error(ctx, "revoking token record", "error", err)
		return common.ErrorInternal
	}
	s.logger.Info(ctx, "revoked session", "principal_id", requestingPrincipalID, "token_id", tokenID)
	return nil
}

// RevokeAll revokes every active record owned by the principal and returns
// the count revoked.
func (s *SessionService) RevokeAll(ctx context.Context, principalID string) (int64, error) {
	n, err := s.repos.Tokens(s.db).RevokeAllActive(ctx, principalID, s.now())
	if err != nil {
		s.logger.Error(ctx, "revoking all sessions", "error", err)
		return 0, common.ErrorInternal
	}
	s.logger.Info(ctx, "revoked all sessions", "principal_id", principalID, "count", n)
	return n, nil
}

// ListActive returns the principal's active, non-expired sessions. The
// projection never exposes the refresh-token hash.
func (s *SessionService) ListActive(ctx context.Context, principalID string) ([]*models.Session, error) {
	recs, err := s.repos.Tokens(s.db).ListByPrincipal(ctx, principalID)
	if err != nil {
		s.logger.Error(ctx, "listing sessions", "error", err)
		return nil, common.ErrorInternal
	}

	now := s.now()
	sessions := make([]*models.Session, 0, len(recs))
	for _, rec := range recs {
		if rec.Active(now) {
			sessions = append(sessions, models.SessionFromRecord(rec))
		}
	}
	return sessions, nil
}
