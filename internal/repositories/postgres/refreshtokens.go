package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

// RefreshTokenRepository implements token storage over dbx.DBTX.
type RefreshTokenRepository struct {
	db dbx.DBTX
}

func NewRefreshTokenRepository(db dbx.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, userID, token string, expires time.Time) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token, expires.UTC()); err != nil {
		return fmt.Errorf("error performing sql request: %w", storageErr("insert refresh token", err))
	}
	return nil
}

func (r *RefreshTokenRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT user_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	t := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&t.UserID, &t.Token, &t.Expires, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &common.Error{Kind: common.KindNotFound, EntityType: "refresh_token", Message: "refresh token not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", storageErr("select refresh token", err))
	}
	return t, nil
}

func (r *RefreshTokenRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", storageErr("delete refresh token", err))
	}
	return nil
}
