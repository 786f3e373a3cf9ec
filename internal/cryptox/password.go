// Package cryptox implements authd's credential hashing: memory-hard
// password hashing in the legacy platform's exact byte layout, fast digests
// for opaque tokens and verification codes, and secure code generation.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/shelfmark/authd/internal/common"
)

// scrypt parameters fixed by the legacy hash format. Changing any of them
// breaks verification of every stored credential.
const (
	scryptN      = 16384
	scryptR      = 16
	scryptP      = 1
	scryptKeyLen = 64
	saltBytes    = 16
)

// deriveKey runs scrypt over the NFC-normalized password. The salt fed to
// scrypt is the UTF-8 encoding of the lowercase hex string, not the raw salt
// bytes. The legacy implementation hashed the hex string, so compatibility
// requires keeping that asymmetry.
func deriveKey(password, saltHex string) ([]byte, error) {
	normalized := norm.NFC.String(password)
	key, err := scrypt.Key([]byte(normalized), []byte(saltHex), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

// HashPassword hashes a plaintext password into the stored credential format
// "{saltHex}:{keyHex}" with a fresh random salt. The plaintext is never
// persisted.
func HashPassword(password string) (string, error) {
	salt := common.GenerateRandByteArray(saltBytes)
	return HashPasswordWithSalt(password, hex.EncodeToString(salt))
}

// HashPasswordWithSalt derives the credential string for a known salt.
// Exposed for cross-implementation reference vectors; production callers use
// HashPassword.
func HashPasswordWithSalt(password, saltHex string) (string, error) {
	key, err := deriveKey(password, saltHex)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)
	return saltHex + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword recomputes the derived key for the stored salt and compares
// it to the stored key in constant time. A malformed stored credential is a
// validation error, not a mismatch.
func VerifyPassword(password, stored string) (bool, error) {
	saltHex, keyHex, found := strings.Cut(stored, ":")
	if !found || saltHex == "" || keyHex == "" {
		return false, fmt.Errorf("%w: malformed stored credential", common.ErrorValidation)
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil {
		return false, fmt.Errorf("%w: stored key is not hex", common.ErrorValidation)
	}
	got, err := deriveKey(password, saltHex)
	if err != nil {
		return false, err
	}
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// DigestToken returns the SHA-256 hex digest of an opaque value: refresh
// tokens and verification codes are stored only in this form. A fast digest
// is sufficient here because the inputs are high-entropy or rate-limited,
// unlike passwords.
func DigestToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueToken returns a 256-bit cryptographically secure random value as
// a hex string. The value carries no decodable structure.
func NewOpaqueToken() (string, error) {
	return common.MakeRandHexString(32)
}

// GenerateVerificationCode returns a numeric code of the given length, each
// digit taken from a secure random byte modulo 10. The modulo introduces a
// small bias toward digits 0–5, acceptable for a short-lived, rate-limited
// code but not for key material.
func GenerateVerificationCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: code length must be positive", common.ErrorValidation)
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	digits := make([]byte, length)
	for i, v := range b {
		digits[i] = '0' + v%10
	}
	return string(digits), nil
}
