// Package token builds and parses the signed tokens used by authd:
// HS256 access tokens verified locally, and RS256 "platform" tokens shaped
// for the paper platform's external session verifier.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shelfmark/authd/internal/common"
)

// Claims is the set of assertions carried by an access token. Only the
// registered claim fields are used so any standard JWT verifier can consume
// the result; the subject carries the principal id.
type Claims struct {
	jwt.RegisteredClaims
}

// PrincipalID returns the principal the token was issued to. Access tokens
// carry the id alone; platform tokens carry "{principalID}|{sessionID}", so
// the id is everything before the first separator.
func (c *Claims) PrincipalID() string {
	id, _, _ := strings.Cut(c.Subject, "|")
	return id
}

// SessionID returns the session fragment of a platform-token subject, or ""
// for an access token.
func (c *Claims) SessionID() string {
	_, session, _ := strings.Cut(c.Subject, "|")
	return session
}

// Codec signs and verifies tokens. The symmetric secret signs access tokens;
// the RSA key signs platform tokens only and is never used on the verify
// path for access tokens.
type Codec struct {
	secret           []byte
	issuer           string
	audience         string
	platformKey      *rsa.PrivateKey
	platformIssuer   string
	platformAudience string
}

// NewCodec validates the supplied key material and returns a ready Codec.
// An empty secret or an unparsable platform key PEM is a configuration
// error: signing must never be silently bypassed.
func NewCodec(secret, issuer, audience string, platformKeyPEM []byte, platformIssuer, platformAudience string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: token secret key is empty", common.ErrorConfiguration)
	}
	if len(platformKeyPEM) == 0 {
		return nil, fmt.Errorf("%w: platform private key is empty", common.ErrorConfiguration)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(platformKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing platform private key: %v", common.ErrorConfiguration, err)
	}
	return &Codec{
		secret:           []byte(secret),
		issuer:           issuer,
		audience:         audience,
		platformKey:      key,
		platformIssuer:   platformIssuer,
		platformAudience: platformAudience,
	}, nil
}

// EncodeAccess mints a short-lived HS256 access token for the principal and
// returns it together with its expiry time.
func (c *Codec) EncodeAccess(principalID string, validity time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(validity)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// EncodePlatform mints an RS256 token accepted by the platform's session
// verifier. The verifier's schema has a single subject field, so the session
// id rides along as "{principalID}|{sessionID}".
func (c *Codec) EncodePlatform(principalID, sessionID string, validity time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(validity)

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID + "|" + sessionID,
			Issuer:    c.platformIssuer,
			Audience:  jwt.ClaimStrings{c.platformAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := t.SignedString(c.platformKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing platform token: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode parses and verifies a token produced by either signing method and
// returns its claims. Signature checks go through jwt/v5's constant-time
// primitives. Failures map onto the common sentinels: malformed input →
// ErrInvalidToken, bad signature → ErrInvalidTokenSignature, past expiry →
// ErrTokenExpired.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}

	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return c.secret, nil
		case *jwt.SigningMethodRSA:
			return &c.platformKey.PublicKey, nil
		default:
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
	}, jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if err != nil {
		return nil, mapDecodeError(err)
	}
	if !t.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// DecodeAccess parses and verifies an HS256 access token. Platform tokens
// are refused here even though their signature would verify: they are minted
// for the external session verifier and must not authenticate calls at
// authd's own surface.
func (c *Codec) DecodeAccess(tokenString string) (*Claims, error) {
	claims := &Claims{}

	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, mapDecodeError(err)
	}
	if !t.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func mapDecodeError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrInvalidTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return common.ErrInvalidToken
	default:
		// Any other crypto/claims failure is a verification failure, never a crash.
		return common.ErrInvalidToken
	}
}
