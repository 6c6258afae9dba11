package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const energyColumns = `user_id, date::text, budget, spent, updated_at`

// EnergyRepository stores the server's daily energy ledger.
type EnergyRepository struct {
	db dbx.DBTX
}

func NewEnergyRepository(db dbx.DBTX) *EnergyRepository {
	return &EnergyRepository{db: db}
}

func scanEnergy(s scanner) (*models.EnergyBudget, error) {
	var e models.EnergyBudget
	if err := s.Scan(&e.UserID, &e.Date, &e.Budget, &e.Spent, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func energyNotFound(date string) error {
	return &common.Error{Kind: common.KindNotFound, EntityType: "energy_budget", EntityID: date,
		Message: "no energy budget for " + date}
}

func (r *EnergyRepository) Get(ctx context.Context, userID, date string) (*models.EnergyBudget, error) {
	e, err := scanEnergy(r.db.QueryRowContext(ctx,
		`SELECT `+energyColumns+` FROM energy_budgets WHERE user_id = $1 AND date = $2::date`, userID, date))
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
		WHERE user_id = $1 AND date BETWEEN $2::date AND $3::date ORDER BY date`, scanEnergy, userID, from, to)
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
		VALUES ($1, $2::date, $3, 0, $4)
		ON CONFLICT (user_id, date) DO UPDATE SET budget = EXCLUDED.budget, updated_at = EXCLUDED.updated_at`,
		userID, date, budget, ts(now))
}

func (r *EnergyRepository) AddSpent(ctx context.Context, userID, date string, amount, defaultBudget int, now time.Time) (*models.EnergyBudget, error) {
	if amount < 0 {
		return nil, common.Validation("amount", "must not be negative")
	}
	return r.upsert(ctx, "add spent energy", `INSERT INTO energy_budgets (user_id, date, budget, spent, updated_at)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (user_id, date) DO UPDATE SET spent = energy_budgets.spent + EXCLUDED.spent,
			updated_at = EXCLUDED.updated_at`,
		userID, date, defaultBudget, amount, ts(now))
}

func (r *EnergyRepository) ResetSpent(ctx context.Context, userID, date string, now time.Time) (*models.EnergyBudget, error) {
	e, err := scanEnergy(r.db.QueryRowContext(ctx, `UPDATE energy_budgets SET spent = 0, updated_at = $3
		WHERE user_id = $1 AND date = $2::date RETURNING `+energyColumns, userID, date, ts(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, energyNotFound(date)
	}
	if err != nil {
		return nil, storageErr("reset spent energy", err)
	}
	return e, nil
}
