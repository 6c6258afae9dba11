package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const routineColumns = `id, user_id, title, description, schedule, energy_cost, active, next_due, initiative_id,
	created_at, updated_at, deleted_at, version, local_rev`

type RoutineRepository struct {
	db dbx.DBTX
	t  table
}

func NewRoutineRepository(db dbx.DBTX) *RoutineRepository {
	return &RoutineRepository{db: db, t: table{db: db, name: "routines", entity: "routine"}}
}

func scanRoutine(s scanner, rev *int64) (*models.Routine, error) {
	var (
		r                         models.Routine
		active                    int
		initiative                sql.NullString
		nextDue, created, updated int64
		deleted                   sql.NullInt64
	)
	if err := s.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Schedule, &r.EnergyCost, &active, &nextDue,
		&initiative, &created, &updated, &deleted, &r.Version, rev); err != nil {
		return nil, err
	}
	r.Active = active == 1
	r.NextDue = fromMicros(nextDue)
	r.InitiativeID = idPtr(initiative)
	r.CreatedAt = fromMicros(created)
	r.UpdatedAt = fromMicros(updated)
	r.DeletedAt = timePtr(deleted)
	return &r, nil
}

func (r *RoutineRepository) list(ctx context.Context, where string, args ...any) ([]*models.Routine, error) {
	var rev int64
	out, err := queryAll(ctx, r.db, `SELECT `+routineColumns+` FROM routines WHERE `+where+` ORDER BY next_due, id`,
		func(s scanner) (*models.Routine, error) { return scanRoutine(s, &rev) }, args...)
	if err != nil {
		return nil, storageErr("select routine", err)
	}
	return out, nil
}

func (r *RoutineRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Routine, error) {
	out, err := r.list(ctx, `id = ? AND user_id = ? AND deleted_at IS NULL`, id.String(), userID)
	if err != nil {
		return nil, err
	}
	return one(id, "routine", out, nil)
}

func (r *RoutineRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Routine, error) {
	return r.list(ctx, `user_id = ? AND deleted_at IS NULL`, userID)
}

func (r *RoutineRepository) ListDue(ctx context.Context, userID string, t time.Time) ([]*models.Routine, error) {
	return r.list(ctx, `user_id = ? AND active = 1 AND next_due <= ? AND deleted_at IS NULL`, userID, micros(t))
}

func insertRoutine(ctx context.Context, db dbx.DBTX, rt *models.Routine, pending int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO routines (id, user_id, title, description, schedule, energy_cost,
		active, next_due, initiative_id, created_at, updated_at, deleted_at, version, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID.String(), rt.UserID, rt.Title, rt.Description, rt.Schedule, rt.EnergyCost, boolInt(rt.Active),
		micros(rt.NextDue), nullID(rt.InitiativeID), micros(rt.CreatedAt), micros(rt.UpdatedAt),
		nullMicros(rt.DeletedAt), rt.Version, pending)
	return err
}

func (r *RoutineRepository) Create(ctx context.Context, rt *models.Routine) error {
	if err := insertRoutine(ctx, r.db, rt, 1); err != nil {
		return r.t.insertErr(rt.ID, err)
	}
	return nil
}

func (r *RoutineRepository) Update(ctx context.Context, rt *models.Routine) error {
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE routines SET title = ?, description = ?, schedule = ?, energy_cost = ?,
		active = ?, next_due = ?, initiative_id = ?, updated_at = ?, `+dirty+`
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		rt.Title, rt.Description, rt.Schedule, rt.EnergyCost, boolInt(rt.Active), micros(rt.NextDue),
		nullID(rt.InitiativeID), micros(rt.UpdatedAt), rt.ID.String(), rt.UserID)
	return r.t.updateResult(rt.ID, n, err)
}

func (r *RoutineRepository) AdvanceNextDue(ctx context.Context, userID string, id common.ID, next, now time.Time) error {
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE routines SET next_due = ?, updated_at = ?, `+dirty+`
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, micros(next), micros(now), id.String(), userID)
	return r.t.updateResult(id, n, err)
}

func (r *RoutineRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *RoutineRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
