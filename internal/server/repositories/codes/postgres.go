package codes

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

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	query := `
		INSERT INTO verification_codes (id, principal_id, code_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, code.ID, code.PrincipalID, code.CodeHash, code.CreatedAt, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindCurrent(ctx context.Context, principalID string) (*models.VerificationCode, error) {
	query := `
		SELECT id, principal_id, code_hash, created_at, expires_at, used_at
		FROM verification_codes
		WHERE principal_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	code := &models.VerificationCode{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, principalID).
		Scan(&code.ID, &code.PrincipalID, &code.CodeHash, &code.CreatedAt, &code.ExpiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if usedAt.Valid {
		code.UsedAt = &usedAt.Time
	}
	return code, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE verification_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
