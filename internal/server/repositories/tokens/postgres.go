// Package tokens provides a PostgreSQL-backed repository for the refresh
// token records used in the server's authentication flow.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmark/authd/internal/common"
	"github.com/shelfmark/authd/internal/dbx"
	"github.com/shelfmark/authd/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, principal_id, token_hash, device_id, device_name, platform, created_at, expires_at, last_used_at, is_revoked, revoked_at`

func scanRecord(row interface{ Scan(...any) error }) (*models.TokenRecord, error) {
	rec := &models.TokenRecord{}
	var platform string
	var lastUsedAt, revokedAt sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.PrincipalID, &rec.TokenHash,
		&rec.DeviceID, &rec.DeviceName, &platform,
		&rec.CreatedAt, &rec.ExpiresAt, &lastUsedAt,
		&rec.Revoked, &revokedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Platform = models.ParsePlatform(platform)
	if lastUsedAt.Valid {
		rec.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		rec.RevokedAt = &revokedAt.Time
	}
	return rec, nil
}

// Create inserts a new token record, assigning an id when the caller left
// it empty.
func (r *PostgresRepository) Create(ctx context.Context, rec *models.TokenRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO token_records (id, principal_id, token_hash, device_id, device_name, platform, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.PrincipalID, rec.TokenHash,
		rec.DeviceID, rec.DeviceName, string(rec.Platform),
		rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the record with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.TokenRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM token_records WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// FindByHash returns the record holding the given refresh-token digest.
func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.TokenRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM token_records WHERE token_hash = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// FindActiveByDevice returns the record for the (principal, device) pair
// that is not revoked and not expired at the given time. Expiry is judged
// against the caller's clock, like every other state check, not the
// database's.
func (r *PostgresRepository) FindActiveByDevice(ctx context.Context, principalID, deviceID string, at time.Time) (*models.TokenRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM token_records
		WHERE principal_id = $1 AND device_id = $2 AND NOT is_revoked AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, principalID, deviceID, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// ListByPrincipal returns every record owned by the principal, newest first.
func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*models.TokenRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM token_records
		WHERE principal_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var recs []*models.TokenRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return recs, nil
}

// Revoke marks the record revoked. The WHERE guard keeps the first
// revocation time when called twice.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE token_records SET is_revoked = true, revoked_at = $2
		WHERE id = $1 AND NOT is_revoked
	`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RevokeAllActive revokes every active record owned by the principal and
// returns how many were revoked.
func (r *PostgresRepository) RevokeAllActive(ctx context.Context, principalID string, at time.Time) (int64, error) {
	query := `
		UPDATE token_records SET is_revoked = true, revoked_at = $2
		WHERE principal_id = $1 AND NOT is_revoked AND expires_at > $2
	`
	res, err := r.db.ExecContext(ctx, query, principalID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Touch updates the record's last-used time.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE token_records SET last_used_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
