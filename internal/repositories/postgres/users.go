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

// UserRepository stores accounts and the per-user server stamp.
type UserRepository struct {
	db dbx.DBTX
}

func NewUserRepository(db dbx.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, disabled)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, u.ID, u.UserName, u.PasswordHash, u.Disabled).Scan(&u.CreatedAt)
	if isUniqueViolation(err, "") {
		return &common.Error{Kind: common.KindConflict, Reason: common.ReasonDuplicate, EntityType: "user",
			Message: fmt.Sprintf("user name %q is taken", u.UserName)}
	}
	if err != nil {
		return fmt.Errorf("db error: %w", storageErr("insert user", err))
	}
	return nil
}

func (r *UserRepository) get(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT id, username, password_hash, disabled, created_at FROM users WHERE ` + where
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.UserName, &u.PasswordHash, &u.Disabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &common.Error{Kind: common.KindNotFound, EntityType: "user", Message: "user not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", storageErr("select user", err))
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *UserRepository) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	return r.get(ctx, `username = $1`, userName)
}

func (r *UserRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE users SET disabled = $2 WHERE id = $1`, id, disabled)
	if err != nil {
		return fmt.Errorf("db error: %w", storageErr("update user", err))
	}
	if n == 0 {
		return &common.Error{Kind: common.KindNotFound, EntityType: "user", EntityID: id, Message: "user not found"}
	}
	return nil
}

func (r *UserRepository) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := queryAll(ctx, r.db, `SELECT id FROM users WHERE NOT disabled ORDER BY id`, func(s scanner) (string, error) {
		var id string
		return id, s.Scan(&id)
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", storageErr("list users", err))
	}
	return ids, nil
}

// LastStamp returns the user's latest committed server stamp.
func (r *UserRepository) LastStamp(ctx context.Context, id string) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `SELECT last_stamp FROM users WHERE id = $1`, id).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, &common.Error{Kind: common.KindNotFound, EntityType: "user", EntityID: id, Message: "user not found"}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", storageErr("select stamp", err))
	}
	return t.UTC(), nil
}
