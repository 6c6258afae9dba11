package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const routineColumns = `id, user_id, title, description, schedule, energy_cost, active, next_due, initiative_id,
	created_at, updated_at, deleted_at, version, modified_at`

var routineSchema = schema{
	name:    "routines",
	entity:  models.EntityRoutine,
	columns: []string{"title", "description", "schedule", "energy_cost", "active", "next_due", "initiative_id"},
	values: func(e models.Entity) ([]any, error) {
		r := e.(*models.Routine)
		return []any{r.Title, r.Description, r.Schedule, r.EnergyCost, r.Active, ts(r.NextDue), nullID(r.InitiativeID)}, nil
	},
	load: loadAs(scanRoutine, routineColumns, "routines"),
}

type RoutineRepository struct {
	db dbx.DBTX
	t  table
}

func NewRoutineRepository(db dbx.DBTX) *RoutineRepository {
	return &RoutineRepository{db: db, t: table{db: db, name: "routines", entity: "routine"}}
}

func scanRoutine(s scanner, modified *time.Time) (*models.Routine, error) {
	var (
		r          models.Routine
		initiative sql.NullString
		deleted    sql.NullTime
	)
	if err := s.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Schedule, &r.EnergyCost, &r.Active, &r.NextDue,
		&initiative, &r.CreatedAt, &r.UpdatedAt, &deleted, &r.Version, modified); err != nil {
		return nil, err
	}
	r.NextDue = r.NextDue.UTC()
	r.InitiativeID = idPtr(initiative)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.DeletedAt = timePtr(deleted)
	return &r, nil
}

func (r *RoutineRepository) list(ctx context.Context, where string, args ...any) ([]*models.Routine, error) {
	var at time.Time
	out, err := queryAll(ctx, r.db, `SELECT `+routineColumns+` FROM routines WHERE `+where+` ORDER BY next_due, id`,
		func(s scanner) (*models.Routine, error) { return scanRoutine(s, &at) }, args...)
	if err != nil {
		return nil, storageErr("select routine", err)
	}
	return out, nil
}

func (r *RoutineRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Routine, error) {
	out, err := r.list(ctx, `id = $1 AND user_id = $2 AND deleted_at IS NULL`, id.String(), userID)
	if err != nil {
		return nil, err
	}
	return one(id, "routine", out, nil)
}

func (r *RoutineRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Routine, error) {
	return r.list(ctx, `user_id = $1 AND deleted_at IS NULL`, userID)
}

func (r *RoutineRepository) ListDue(ctx context.Context, userID string, t time.Time) ([]*models.Routine, error) {
	return r.list(ctx, `user_id = $1 AND active AND next_due <= $2 AND deleted_at IS NULL`, userID, ts(t))
}

func (r *RoutineRepository) Create(ctx context.Context, rt *models.Routine) error {
	if err := routineSchema.insert(ctx, r.db, rt, rt.UpdatedAt); err != nil {
		return r.t.insertErr(rt.ID, err)
	}
	return nil
}

func (r *RoutineRepository) Update(ctx context.Context, rt *models.Routine) error {
	n, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE routines SET title = $3, description = $4, schedule = $5,
		energy_cost = $6, active = $7, next_due = $8, initiative_id = $9, updated_at = $1, `+written+`
		WHERE id = $10 AND user_id = $2 AND deleted_at IS NULL`,
		ts(rt.UpdatedAt), rt.UserID, rt.Title, rt.Description, rt.Schedule, rt.EnergyCost, rt.Active, ts(rt.NextDue),
		nullID(rt.InitiativeID), rt.ID.String())
	return r.t.updateResult(rt.ID, n, err)
}

func (r *RoutineRepository) AdvanceNextDue(ctx context.Context, userID string, id common.ID, next, now time.Time) error {
	n, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE routines SET next_due = $3, updated_at = $1, `+written+`
		WHERE id = $4 AND user_id = $2 AND deleted_at IS NULL`, ts(now), userID, ts(next), id.String())
	return r.t.updateResult(id, n, err)
}

func (r *RoutineRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *RoutineRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
