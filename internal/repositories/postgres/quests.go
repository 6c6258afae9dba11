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

const questColumns = `id, user_id, title, description, energy_cost, status, epic_id, routine_id,
	started_at, completed_at, created_at, updated_at, deleted_at, version, modified_at`

const checkpointColumns = `id, quest_id, title, completed, sort_order, completed_at`

// questLock serializes activation and quest pushes per user.
const questLock = "quest"

var questSchema = schema{
	name:   "quests",
	entity: models.EntityQuest,
	columns: []string{"title", "description", "energy_cost", "status", "epic_id", "routine_id",
		"started_at", "completed_at"},
	values: func(e models.Entity) ([]any, error) {
		q := e.(*models.Quest)
		return []any{q.Title, q.Description, q.EnergyCost, string(q.Status), nullID(q.EpicID), nullID(q.RoutineID),
			nullTime(q.StartedAt), nullTime(q.CompletedAt)}, nil
	},
	load: func(ctx context.Context, db dbx.DBTX, stamps *[]time.Time, where string, args ...any) ([]models.Entity, error) {
		qs, err := selectQuests(ctx, db, stamps, where, args...)
		if err != nil {
			return nil, err
		}
		out := make([]models.Entity, len(qs))
		for i, q := range qs {
			out[i] = q
		}
		return out, nil
	},
	after: func(ctx context.Context, db dbx.DBTX, e models.Entity) error {
		q := e.(*models.Quest)
		if _, err := db.ExecContext(ctx, `DELETE FROM checkpoints WHERE quest_id = $1`, q.ID.String()); err != nil {
			return err
		}
		return insertCheckpoints(ctx, db, q.Checkpoints)
	},
}

// QuestRepository stores quests and their checkpoints.
type QuestRepository struct {
	db dbx.DBTX
	tx txRunner
	t  table
}

func NewQuestRepository(db dbx.DBTX) *QuestRepository {
	return &QuestRepository{db: db, tx: newTxRunner(db), t: table{db: db, name: "quests", entity: "quest"}}
}

func scanQuest(s scanner, modified *time.Time) (*models.Quest, error) {
	var (
		q                  models.Quest
		epic, routine      sql.NullString
		started, completed sql.NullTime
		deleted            sql.NullTime
	)
	if err := s.Scan(&q.ID, &q.UserID, &q.Title, &q.Description, &q.EnergyCost, &q.Status,
		&epic, &routine, &started, &completed, &q.CreatedAt, &q.UpdatedAt, &deleted, &q.Version, modified); err != nil {
		return nil, err
	}
	q.EpicID = idPtr(epic)
	q.RoutineID = idPtr(routine)
	q.StartedAt = timePtr(started)
	q.CompletedAt = timePtr(completed)
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	q.DeletedAt = timePtr(deleted)
	q.Checkpoints = []models.Checkpoint{}
	return &q, nil
}

func scanCheckpoint(s scanner) (models.Checkpoint, error) {
	var (
		c  models.Checkpoint
		at sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.QuestID, &c.Title, &c.Completed, &c.Order, &at); err != nil {
		return c, err
	}
	c.CompletedAt = timePtr(at)
	return c, nil
}

// selectQuests loads quests matching where with their checkpoints, ordered
// by creation unless where carries its own ORDER BY.
func selectQuests(ctx context.Context, db dbx.DBTX, stamps *[]time.Time, where string, args ...any) ([]*models.Quest, error) {
	quests, err := queryAll(ctx, db, `SELECT `+questColumns+` FROM quests WHERE `+where,
		func(s scanner) (*models.Quest, error) {
			var at time.Time
			q, err := scanQuest(s, &at)
			if err == nil && stamps != nil {
				*stamps = append(*stamps, at.UTC())
			}
			return q, err
		}, args...)
	if err != nil || len(quests) == 0 {
		return quests, err
	}

	byID := make(map[common.ID]*models.Quest, len(quests))
	ids := make([]any, 0, len(quests))
	for _, q := range quests {
		byID[q.ID] = q
		ids = append(ids, q.ID.String())
	}
	cps, err := queryAll(ctx, db, `SELECT `+checkpointColumns+` FROM checkpoints
		WHERE quest_id IN (`+placeholders(1, len(ids))+`) ORDER BY quest_id, sort_order, id`, scanCheckpoint, ids...)
	if err != nil {
		return nil, err
	}
	for _, c := range cps {
		q := byID[c.QuestID]
		q.Checkpoints = append(q.Checkpoints, c)
	}
	return quests, nil
}

func (r *QuestRepository) list(ctx context.Context, where string, args ...any) ([]*models.Quest, error) {
	quests, err := selectQuests(ctx, r.db, nil, where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, storageErr("select quest", err)
	}
	return quests, nil
}

func getQuest(ctx context.Context, db dbx.DBTX, userID string, id common.ID) (*models.Quest, error) {
	quests, err := selectQuests(ctx, db, nil, `id = $1 AND user_id = $2 AND deleted_at IS NULL`, id.String(), userID)
	return one(id, "quest", quests, err)
}

func (r *QuestRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	return getQuest(ctx, r.db, userID, id)
}

func (r *QuestRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Quest, error) {
	return r.list(ctx, `user_id = $1 AND deleted_at IS NULL`, userID)
}

func (r *QuestRepository) ListByStatus(ctx context.Context, userID string, status models.QuestStatus) ([]*models.Quest, error) {
	return r.list(ctx, `user_id = $1 AND status = $2 AND deleted_at IS NULL`, userID, string(status))
}

func (r *QuestRepository) ListByEpic(ctx context.Context, userID string, epicID common.ID) ([]*models.Quest, error) {
	return r.list(ctx, `user_id = $1 AND epic_id = $2 AND deleted_at IS NULL`, userID, epicID.String())
}

func (r *QuestRepository) GetActive(ctx context.Context, userID string) (*models.Quest, error) {
	quests, err := r.list(ctx, `user_id = $1 AND status = 'ACTIVE' AND deleted_at IS NULL`, userID)
	if err != nil {
		return nil, err
	}
	if len(quests) == 0 {
		return nil, &common.Error{Kind: common.KindNotFound, EntityType: "quest", Message: "no active quest"}
	}
	return quests[0], nil
}

func insertCheckpoints(ctx context.Context, db dbx.DBTX, cps []models.Checkpoint) error {
	for _, c := range cps {
		if _, err := db.ExecContext(ctx, `INSERT INTO checkpoints (`+checkpointColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID.String(), c.QuestID.String(), c.Title, c.Completed, c.Order, nullTime(c.CompletedAt)); err != nil {
			return err
		}
	}
	return nil
}

// activeQuestID returns the user's ACTIVE quest other than except, or "".
func activeQuestID(ctx context.Context, db dbx.DBTX, userID string, except common.ID) (common.ID, error) {
	var active string
	err := db.QueryRowContext(ctx, `SELECT id FROM quests WHERE user_id = $1 AND status = 'ACTIVE'
		AND deleted_at IS NULL AND id <> $2`, userID, except.String()).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("lookup active quest", err)
	}
	return common.ID(active), nil
}

func wipConflict(active common.ID) error {
	return common.WipLimitExceeded(active, common.WipLimit, common.WipLimit)
}

func (r *QuestRepository) Create(ctx context.Context, q *models.Quest) error {
	return r.tx.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		if q.Status == models.QuestActive && q.DeletedAt == nil {
			if err := lock(ctx, db, lockKey(q.UserID, questLock)); err != nil {
				return err
			}
			active, err := activeQuestID(ctx, db, q.UserID, q.ID)
			if err != nil {
				return err
			}
			if active != "" {
				return wipConflict(active)
			}
		}
		if err := questSchema.insert(ctx, db, q, q.UpdatedAt); err != nil {
			if isActiveQuestViolation(err) {
				return wipConflict("")
			}
			if isUniqueViolation(err, "checkpoints_pkey") {
				return common.Validation("checkpoints", "duplicate checkpoint id")
			}
			return r.t.insertErr(q.ID, err)
		}
		return nil
	})
}

func (r *QuestRepository) Update(ctx context.Context, q *models.Quest) error {
	n, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE quests SET title = $3, description = $4, energy_cost = $5,
		epic_id = $6, routine_id = $7, updated_at = $1, `+written+`
		WHERE id = $8 AND user_id = $2 AND deleted_at IS NULL`,
		ts(q.UpdatedAt), q.UserID, q.Title, q.Description, q.EnergyCost, nullID(q.EpicID), nullID(q.RoutineID),
		q.ID.String())
	return r.t.updateResult(q.ID, n, err)
}

func (r *QuestRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

// Restore refuses to bring back an ACTIVE quest while another one holds the slot.
func (r *QuestRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.tx.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		if err := lock(ctx, db, lockKey(userID, questLock)); err != nil {
			return err
		}
		var status models.QuestStatus
		err := db.QueryRowContext(ctx, `SELECT status FROM quests WHERE id = $1 AND user_id = $2 AND deleted_at IS NOT NULL`,
			id.String(), userID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return common.NotFound("quest", id)
		}
		if err != nil {
			return storageErr("select quest", err)
		}
		if status == models.QuestActive {
			active, err := activeQuestID(ctx, db, userID, id)
			if err != nil {
				return err
			}
			if active != "" {
				return wipConflict(active)
			}
		}
		return table{db: db, name: "quests", entity: "quest"}.restore(ctx, userID, id, now)
	})
}

// Activate runs a guarded UPDATE under the per-user quest lock; the partial
// unique index quests_one_active_per_user backs it up.
func (r *QuestRepository) Activate(ctx context.Context, userID string, id common.ID, now time.Time) (*models.Quest, error) {
	var out *models.Quest
	err := r.tx.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		if err := lock(ctx, db, lockKey(userID, questLock)); err != nil {
			return err
		}
		n, err := dbx.ExecAffected(ctx, db, stamp+`UPDATE quests SET status = 'ACTIVE', started_at = $1, updated_at = $1, `+written+`
			WHERE id = $3 AND user_id = $2 AND deleted_at IS NULL AND status = 'BACKLOG'
			AND NOT EXISTS (SELECT 1 FROM quests a WHERE a.user_id = $2 AND a.status = 'ACTIVE' AND a.deleted_at IS NULL)`,
			ts(now), userID, id.String())
		if isActiveQuestViolation(err) {
			return wipConflict("")
		}
		if err != nil {
			return storageErr("activate quest", err)
		}
		q, err := getQuest(ctx, db, userID, id)
		if err != nil {
			return err
		}
		if n == 0 {
			if q.Status != models.QuestBacklog {
				return common.Validation("status", fmt.Sprintf("cannot start a %s quest", q.Status))
			}
			active, err := activeQuestID(ctx, db, userID, id)
			if err != nil {
				return err
			}
			return wipConflict(active)
		}
		out = q
		return nil
	})
	return out, err
}

func (r *QuestRepository) Transition(ctx context.Context, userID string, id common.ID, from []models.QuestStatus, to models.QuestStatus, now time.Time) (*models.Quest, error) {
	if to == models.QuestActive {
		return r.Activate(ctx, userID, id, now)
	}
	if len(from) == 0 {
		return nil, common.Validation("status", "no source status")
	}

	set := `status = $3, updated_at = $1`
	switch to {
	case models.QuestCompleted:
		set += `, completed_at = $1`
	case models.QuestBacklog:
		set += `, started_at = NULL, completed_at = NULL`
	}
	args := []any{ts(now), userID, string(to), id.String()}
	for _, s := range from {
		args = append(args, string(s))
	}

	n, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE quests SET `+set+`, `+written+`
		WHERE id = $4 AND user_id = $2 AND deleted_at IS NULL AND status IN (`+placeholders(5, len(from))+`)`, args...)
	if err != nil {
		return nil, storageErr("transition quest", err)
	}
	q, err := r.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, common.Validation("status", fmt.Sprintf("cannot move a %s quest to %s", q.Status, to))
	}
	return q, nil
}

func touchQuest(ctx context.Context, db dbx.DBTX, userID string, questID common.ID, now time.Time) error {
	_, err := db.ExecContext(ctx, stamp+`UPDATE quests SET updated_at = $1, `+written+` WHERE id = $3 AND user_id = $2`,
		ts(now), userID, questID.String())
	if err != nil {
		return storageErr("touch quest", err)
	}
	return nil
}

func (r *QuestRepository) AddCheckpoint(ctx context.Context, userID string, cp *models.Checkpoint, now time.Time) error {
	return r.tx.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		ok, err := r.t.exists(ctx, db, userID, cp.QuestID)
		if err != nil {
			return err
		}
		if !ok {
			return common.NotFound("quest", cp.QuestID)
		}
		if err := insertCheckpoints(ctx, db, []models.Checkpoint{*cp}); err != nil {
			if isUniqueViolation(err, "checkpoints_pkey") {
				return common.Duplicate("checkpoint", cp.ID)
			}
			return storageErr("insert checkpoint", err)
		}
		return touchQuest(ctx, db, userID, cp.QuestID, now)
	})
}

const ownedCheckpoint = `id = $1 AND quest_id IN (SELECT id FROM quests WHERE user_id = $2 AND deleted_at IS NULL)`

func (r *QuestRepository) SetCheckpointCompleted(ctx context.Context, userID string, checkpointID common.ID, completed bool, now time.Time) (*models.Checkpoint, error) {
	var out models.Checkpoint
	err := r.tx.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var at any
		if completed {
			at = ts(now)
		}
		c, err := scanCheckpoint(db.QueryRowContext(ctx, `UPDATE checkpoints SET completed = $3, completed_at = $4
			WHERE `+ownedCheckpoint+` RETURNING `+checkpointColumns, checkpointID.String(), userID, completed, at))
		if errors.Is(err, sql.ErrNoRows) {
			return common.NotFound("checkpoint", checkpointID)
		}
		if err != nil {
			return storageErr("update checkpoint", err)
		}
		out = c
		return touchQuest(ctx, db, userID, c.QuestID, now)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *QuestRepository) ReorderCheckpoints(ctx context.Context, userID string, questID common.ID, ids []common.ID, now time.Time) error {
	return r.tx.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		q, err := getQuest(ctx, db, userID, questID)
		if err != nil {
			return err
		}
		if err := checkPermutation(q.Checkpoints, ids); err != nil {
			return err
		}
		for i, id := range ids {
			if _, err := db.ExecContext(ctx, `UPDATE checkpoints SET sort_order = $1 WHERE id = $2`, i, id.String()); err != nil {
				return storageErr("reorder checkpoints", err)
			}
		}
		return touchQuest(ctx, db, userID, questID, now)
	})
}

func checkPermutation(current []models.Checkpoint, ids []common.ID) error {
	if len(current) != len(ids) {
		return common.Validation("checkpoints", "order must list every checkpoint exactly once")
	}
	want := make(map[common.ID]bool, len(current))
	for _, c := range current {
		want[c.ID] = true
	}
	for _, id := range ids {
		if !want[id] {
			return common.Validation("checkpoints", "order must list every checkpoint exactly once")
		}
		delete(want, id)
	}
	return nil
}

func (r *QuestRepository) DeleteCheckpoint(ctx context.Context, userID string, checkpointID common.ID, now time.Time) error {
	return r.tx.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var questID common.ID
		err := db.QueryRowContext(ctx, `DELETE FROM checkpoints WHERE `+ownedCheckpoint+` RETURNING quest_id`,
			checkpointID.String(), userID).Scan(&questID)
		if errors.Is(err, sql.ErrNoRows) {
			return common.NotFound("checkpoint", checkpointID)
		}
		if err != nil {
			return storageErr("delete checkpoint", err)
		}
		return touchQuest(ctx, db, userID, questID, now)
	})
}
