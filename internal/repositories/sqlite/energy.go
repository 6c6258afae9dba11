package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const energyColumns = `user_id, date, budget, spent, updated_at`

// EnergyRepository stores daily energy budgets. Rows are device-local and
// never synced.
type EnergyRepository struct {
	db dbx.DBTX
}

func NewEnergyRepository(db dbx.DBTX) *EnergyRepository {
	return &EnergyRepository{db: db}
}

func scanEnergy(s scanner) (*models.EnergyBudget, error) {
	var (
		e       models.EnergyBudget
		updated int64
	)
	if err := s.Scan(&e.UserID, &e.Date, &e.Budget, &e.Spent, &updated); err != nil {
		return nil, err
	}
	e.UpdatedAt = fromMicros(updated)
	return &e, nil
}

func energyNotFound(date string) error {
	return &common.Error{Kind: common.KindNotFound, EntityType: "energy_budget", EntityID: date,
		Message: "no energy budget for " + date}
}

func (r *EnergyRepository) Get(ctx context.Context, userID, date string) (*models.EnergyBudget, error) {
	e, err := scanEnergy(r.db.QueryRowContext(ctx,
		`SELECT `+energyColumns+` FROM energy_budgets WHERE user_id = ? AND date = ?`, userID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, energyNotFound(date)
	}
	if err != nil {
		return nil, storageErr("select energy_budget", err)
	}
	return e, nil
}

func (r *EnergyRepository) ListRange(ctx context.Context, userID, from, to string) ([]*models.EnergyBudget, error) {
	out, err := queryAll(ctx, r.db, `SELECT `+energyColumns+` FROM energy_budgets
		WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date`, scanEnergy, userID, from, to)
	if err != nil {
		return nil, storageErr("select energy_budget", err)
	}
	return out, nil
}

func (r *EnergyRepository) upsert(ctx context.Context, op, query string, args ...any) (*models.EnergyBudget, error) {
	e, err := scanEnergy(r.db.QueryRowContext(ctx, query+` RETURNING `+energyColumns, args...))
	if err != nil {
		return nil, storageErr(op, err)
	}
	return e, nil
}

func (r *EnergyRepository) SetBudget(ctx context.Context, userID, date string, budget int, now time.Time) (*models.EnergyBudget, error) {
	return r.upsert(ctx, "set energy budget", `INSERT INTO energy_budgets (user_id, date, budget, spent, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET budget = excluded.budget, updated_at = excluded.updated_at`,
		userID, date, budget, micros(now))
}

func (r *EnergyRepository) AddSpent(ctx context.Context, userID, date string, amount, defaultBudget int, now time.Time) (*models.EnergyBudget, error) {
	if amount < 0 {
		return nil, common.Validation("amount", "must not be negative")
	}
	return r.upsert(ctx, "add spent energy", `INSERT INTO energy_budgets (user_id, date, budget, spent, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET spent = energy_budgets.spent + excluded.spent,
			updated_at = excluded.updated_at`,
		userID, date, defaultBudget, amount, micros(now))
}

func (r *EnergyRepository) ResetSpent(ctx context.Context, userID, date string, now time.Time) (*models.EnergyBudget, error) {
	e, err := scanEnergy(r.db.QueryRowContext(ctx, `UPDATE energy_budgets SET spent = 0, updated_at = ?
		WHERE user_id = ? AND date = ? RETURNING `+energyColumns, micros(now), userID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, energyNotFound(date)
	}
	if err != nil {
		return nil, storageErr("reset spent energy", err)
	}
	return e, nil
}
