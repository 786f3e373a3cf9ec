// This file implements PasswordService: credential verification, the
// one-time-code password change flow, and the rate limiting that gates both.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shelfmark/authd/internal/common"
	"github.com/shelfmark/authd/internal/cryptox"
	"github.com/shelfmark/authd/internal/dbx"
	"github.com/shelfmark/authd/internal/logging"
	"github.com/shelfmark/authd/internal/ratelimit"
	"github.com/shelfmark/authd/internal/server/config"
	"github.com/shelfmark/authd/internal/server/models"
	"github.com/shelfmark/authd/internal/server/repositories/repomanager"
)

// Rate-limited actions, keyed by the acting principal.
const (
	ActionPasswordCodeRequest = "password_code_request"
	ActionPasswordCodeVerify  = "password_code_verify"
	ActionPasswordLogin       = "password_login"
)

const (
	verificationCodeLength = 6
	minPasswordLength      = 8
)

// decoyCredential is a syntactically valid stored credential used to run a
// full derivation when the user does not exist, so lookup misses are not
// distinguishable from password mismatches by timing.
const decoyCredential = "0f1e2d3c4b5a69788796a5b4c3d2e1f0:ce0a7f7f79cc59b12da1aad85312903aec34216177c1f787b73ffa7cd06379b70e5dba27e21302e5e413460e920aaee30ae13db40516854baf1eff56c90edda7"

// PasswordService handles password verification and the verification-code
// password change flow. All hash derivations go through the bounded hasher.
type PasswordService struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	hasher        *cryptox.BoundedHasher
	limiter       *ratelimit.Limiter
	notifier      Notifier
	logger        logging.Logger
	codeValidity  time.Duration
	notifyTimeout time.Duration

	// now is an injection point for tests.
	now func() time.Time
}

// NewPasswordService constructs a PasswordService from repositories, the
// bounded hasher, the rate limiter, and the notification collaborator.
func NewPasswordService(db *sql.DB, rm repomanager.RepositoryManager, hasher *cryptox.BoundedHasher, limiter *ratelimit.Limiter, notifier Notifier, cfg *config.Config, logger logging.Logger) *PasswordService {
	return &PasswordService{
		db:            db,
		repos:         rm,
		hasher:        hasher,
		limiter:       limiter,
		notifier:      notifier,
		logger:        logger.With("module", "password_service"),
		codeValidity:  cfg.VerificationCodeValidityDuration,
		notifyTimeout: cfg.NotifyTimeout,
		now:           time.Now,
	}
}

// Authenticate verifies an email/password pair and returns the principal id.
// Unknown emails and wrong passwords are the same failure; a decoy
// derivation runs on lookup misses so existence does not leak through
// timing.
func (s *PasswordService) Authenticate(ctx context.Context, email, password string) (string, error) {
	if err := s.limiter.Check(email, ActionPasswordLogin); err != nil {
		return "", err
	}

	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.Verify(ctx, password, decoyCredential)
			return "", common.ErrorUnauthenticated
		}
		s.logger.Error(ctx, "looking up user", "error", err)
		return "", common.ErrorInternal
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "verifying password", "error", err)
		return "", common.ErrorInternal
	}
	if !ok {
		return "", common.ErrorUnauthenticated
	}

	s.limiter.Reset(email, ActionPasswordLogin)
	return user.ID, nil
}

// RequestChangeCode generates a one-time numeric code for the principal,
// stores only its digest, and hands the raw code to the notification
// collaborator under an explicit timeout. Issuance is rate limited per
// principal.
func (s *PasswordService) RequestChangeCode(ctx context.Context, principalID string) error {
	if err := s.limiter.Check(principalID, ActionPasswordCodeRequest); err != nil {
		return err
	}

	user, err := s.repos.Users(s.db).Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "looking up user", "error", err)
		return common.ErrorInternal
	}

	code, err := cryptox.GenerateVerificationCode(verificationCodeLength)
	if err != nil {
		s.logger.Error(ctx, "generating verification code", "error", err)
		return common.ErrorInternal
	}

	now := s.now()
	rec := &models.VerificationCode{
		PrincipalID: principalID,
		CodeHash:    cryptox.DigestToken(code),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.codeValidity),
	}
	if err := s.repos.Codes(s.db).Create(ctx, rec); err != nil {
		s.logger.Error(ctx, "persisting verification code", "error", err)
		return common.ErrorInternal
	}

	nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	body := fmt.Sprintf("Your Shelfmark password change code is %s. It expires in %s.", code, s.codeValidity)
	if err := s.notifier.Send(nctx, user.Email, "Password change code", body); err != nil {
		// Delivery failure is surfaced, not retried; retry policy is the caller's.
		return fmt.Errorf("sending verification code: %w", err)
	}

	s.logger.Info(ctx, "verification code issued", "principal_id", principalID)
	return nil
}

// ChangePassword redeems a verification code and replaces the principal's
// credential. The code is single-use and compared by digest in constant
// time. Every session of the principal is revoked on success, forcing
// re-authentication with the new password.
func (s *PasswordService) ChangePassword(ctx context.Context, principalID, code, newPassword string) error {
	if err := s.limiter.Check(principalID, ActionPasswordCodeVerify); err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return common.ErrorWeakPassword
	}

	current, err := s.repos.Codes(s.db).FindCurrent(ctx, principalID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorInvalidCode
		}
		s.logger.Error(ctx, "looking up verification code", "error", err)
		return common.ErrorInternal
	}

	now := s.now()
	if !current.Usable(now) {
		return common.ErrorInvalidCode
	}
	digest := cryptox.DigestToken(code)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(current.CodeHash)) != 1 {
		return common.ErrorInvalidCode
	}

	passwordHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		s.logger.Error(ctx, "hashing new password", "error", err)
		return common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).UpdatePassword(ctx, principalID, passwordHash); err != nil {
			return fmt.Errorf("updating credential: %w", err)
		}
		if err := s.repos.Codes(tx).MarkUsed(ctx, current.ID, now); err != nil {
			return fmt.Errorf("marking code used: %w", err)
		}
		if _, err := s.repos.Tokens(tx).RevokeAllActive(ctx, principalID, now); err != nil {
			return fmt.Errorf("revoking sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "applying password change", "error", err)
		return common.ErrorInternal
	}

	s.limiter.Reset(principalID, ActionPasswordCodeVerify)
	s.logger.Info(ctx, "password changed", "principal_id", principalID)
	return nil
}
