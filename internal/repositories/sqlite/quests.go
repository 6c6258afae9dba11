package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const questColumns = `id, user_id, title, description, energy_cost, status, epic_id, routine_id,
	started_at, completed_at, created_at, updated_at, deleted_at, version, local_rev`

const checkpointColumns = `id, quest_id, title, completed, sort_order, completed_at`

// QuestRepository stores quests and their checkpoints.
type QuestRepository struct {
	db   dbx.DBTX
	conn *sql.DB // set when not bound to a transaction
	t    table
}

func NewQuestRepository(db dbx.DBTX) *QuestRepository {
	conn, _ := db.(*sql.DB)
	return &QuestRepository{db: db, conn: conn, t: table{db: db, name: "quests", entity: "quest"}}
}

// atomic runs fn in a transaction unless the repository is already bound to one.
func (r *QuestRepository) atomic(ctx context.Context, fn func(ctx context.Context, db dbx.DBTX) error) error {
	if r.conn == nil {
		return fn(ctx, r.db)
	}
	return dbx.WithTx(ctx, r.conn, nil, fn)
}

func scanQuest(s scanner, rev *int64) (*models.Quest, error) {
	var (
		q                  models.Quest
		epic, routine      sql.NullString
		started, completed sql.NullInt64
		created, updated   int64
		deleted            sql.NullInt64
	)
	if err := s.Scan(&q.ID, &q.UserID, &q.Title, &q.Description, &q.EnergyCost, &q.Status,
		&epic, &routine, &started, &completed, &created, &updated, &deleted, &q.Version, rev); err != nil {
		return nil, err
	}
	q.EpicID = idPtr(epic)
	q.RoutineID = idPtr(routine)
	q.StartedAt = timePtr(started)
	q.CompletedAt = timePtr(completed)
	q.CreatedAt = fromMicros(created)
	q.UpdatedAt = fromMicros(updated)
	q.DeletedAt = timePtr(deleted)
	q.Checkpoints = []models.Checkpoint{}
	return &q, nil
}

func scanCheckpoint(s scanner) (models.Checkpoint, error) {
	var (
		c         models.Checkpoint
		completed int
		at        sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.QuestID, &c.Title, &completed, &c.Order, &at); err != nil {
		return c, err
	}
	c.Completed = completed == 1
	c.CompletedAt = timePtr(at)
	return c, nil
}

// selectQuests loads quests matching where together with their checkpoints.
// revs receives the local_rev of each quest when non-nil.
func selectQuests(ctx context.Context, db dbx.DBTX, revs *[]int64, where string, args ...any) ([]*models.Quest, error) {
	quests, err := queryAll(ctx, db, `SELECT `+questColumns+` FROM quests WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.Quest, error) {
			var rev int64
			q, err := scanQuest(s, &rev)
			if revs != nil {
				*revs = append(*revs, rev)
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
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	cps, err := queryAll(ctx, db, `SELECT `+checkpointColumns+` FROM checkpoints
		WHERE quest_id IN (`+placeholders+`) ORDER BY quest_id, sort_order, id`, scanCheckpoint, ids...)
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
	quests, err := selectQuests(ctx, r.db, nil, where, args...)
	if err != nil {
		return nil, storageErr("select quest", err)
	}
	return quests, nil
}

func (r *QuestRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	quests, err := selectQuests(ctx, r.db, nil, `id = ? AND user_id = ? AND deleted_at IS NULL`, id.String(), userID)
	return one(id, "quest", quests, err)
}

func (r *QuestRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Quest, error) {
	return r.list(ctx, `user_id = ? AND deleted_at IS NULL`, userID)
}

func (r *QuestRepository) ListByStatus(ctx context.Context, userID string, status models.QuestStatus) ([]*models.Quest, error) {
	return r.list(ctx, `user_id = ? AND status = ? AND deleted_at IS NULL`, userID, string(status))
}

func (r *QuestRepository) ListByEpic(ctx context.Context, userID string, epicID common.ID) ([]*models.Quest, error) {
	return r.list(ctx, `user_id = ? AND epic_id = ? AND deleted_at IS NULL`, userID, epicID.String())
}

func (r *QuestRepository) GetActive(ctx context.Context, userID string) (*models.Quest, error) {
	quests, err := r.list(ctx, `user_id = ? AND status = 'ACTIVE' AND deleted_at IS NULL`, userID)
	if err != nil {
		return nil, err
	}
	if len(quests) == 0 {
		return nil, &common.Error{Kind: common.KindNotFound, EntityType: "quest", Message: "no active quest"}
	}
	return quests[0], nil
}

func insertQuest(ctx context.Context, db dbx.DBTX, q *models.Quest, pending int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO quests (id, user_id, title, description, energy_cost, status,
		epic_id, routine_id, started_at, completed_at, created_at, updated_at, deleted_at, version, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID.String(), q.UserID, q.Title, q.Description, q.EnergyCost, string(q.Status),
		nullID(q.EpicID), nullID(q.RoutineID), nullMicros(q.StartedAt), nullMicros(q.CompletedAt),
		micros(q.CreatedAt), micros(q.UpdatedAt), nullMicros(q.DeletedAt), q.Version, pending)
	return err
}

func insertCheckpoints(ctx context.Context, db dbx.DBTX, cps []models.Checkpoint) error {
	for _, c := range cps {
		if _, err := db.ExecContext(ctx, `INSERT INTO checkpoints (`+checkpointColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID.String(), c.QuestID.String(), c.Title, boolInt(c.Completed), c.Order, nullMicros(c.CompletedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (r *QuestRepository) Create(ctx context.Context, q *models.Quest) error {
	return r.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		if err := insertQuest(ctx, db, q, 1); err != nil {
			if isActiveQuestViolation(err) {
				return r.wipConflict(ctx, db, q.UserID)
			}
			return r.t.insertErr(q.ID, err)
		}
		if err := insertCheckpoints(ctx, db, q.Checkpoints); err != nil {
			if isPrimaryKeyViolation(err) {
				return common.Validation("checkpoints", "duplicate checkpoint id")
			}
			return storageErr("insert checkpoint", err)
		}
		return nil
	})
}

func (r *QuestRepository) Update(ctx context.Context, q *models.Quest) error {
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE quests SET title = ?, description = ?, energy_cost = ?,
		epic_id = ?, routine_id = ?, updated_at = ?, `+dirty+`
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		q.Title, q.Description, q.EnergyCost, nullID(q.EpicID), nullID(q.RoutineID), micros(q.UpdatedAt),
		q.ID.String(), q.UserID)
	return r.t.updateResult(q.ID, n, err)
}

func (r *QuestRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *QuestRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	err := r.t.restore(ctx, userID, id, now)
	if isActiveQuestViolation(err) {
		return r.wipConflict(ctx, r.db, userID)
	}
	return err
}

// Activate is a single guarded UPDATE; the partial unique index
// quests_one_active_per_user backs it up.
func (r *QuestRepository) Activate(ctx context.Context, userID string, id common.ID, now time.Time) (*models.Quest, error) {
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE quests SET status = 'ACTIVE', started_at = ?, updated_at = ?, `+dirty+`
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL AND status = 'BACKLOG'
		AND NOT EXISTS (SELECT 1 FROM quests a WHERE a.user_id = ? AND a.status = 'ACTIVE' AND a.deleted_at IS NULL)`,
		micros(now), micros(now), id.String(), userID, userID)
	if err != nil && !isActiveQuestViolation(err) {
		return nil, storageErr("activate quest", err)
	}
	if err != nil || n == 0 {
		return nil, r.activationFailure(ctx, userID, id)
	}
	return r.GetByID(ctx, userID, id)
}

func (r *QuestRepository) activationFailure(ctx context.Context, userID string, id common.ID) error {
	q, err := r.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if q.Status != models.QuestBacklog {
		return common.Validation("status", fmt.Sprintf("cannot start a %s quest", q.Status))
	}
	return r.wipConflict(ctx, r.db, userID)
}

func (r *QuestRepository) wipConflict(ctx context.Context, db dbx.DBTX, userID string) error {
	var active string
	err := db.QueryRowContext(ctx, `SELECT id FROM quests WHERE user_id = ? AND status = 'ACTIVE' AND deleted_at IS NULL`,
		userID).Scan(&active)
	if err != nil {
		return storageErr("lookup active quest", err)
	}
	return common.WipLimitExceeded(common.ID(active), common.WipLimit, common.WipLimit)
}

func (r *QuestRepository) Transition(ctx context.Context, userID string, id common.ID, from []models.QuestStatus, to models.QuestStatus, now time.Time) (*models.Quest, error) {
	if to == models.QuestActive {
		return r.Activate(ctx, userID, id, now)
	}
	if len(from) == 0 {
		return nil, common.Validation("status", "no source status")
	}

	set := `status = ?, updated_at = ?`
	args := []any{string(to), micros(now)}
	switch to {
	case models.QuestCompleted:
		set += `, completed_at = ?`
		args = append(args, micros(now))
	case models.QuestBacklog:
		set += `, started_at = NULL, completed_at = NULL`
	}
	args = append(args, id.String(), userID)
	for _, s := range from {
		args = append(args, string(s))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")

	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE quests SET `+set+`, `+dirty+`
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL AND status IN (`+placeholders+`)`, args...)
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

func touchQuest(ctx context.Context, db dbx.DBTX, questID common.ID, now time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE quests SET updated_at = ?, `+dirty+` WHERE id = ?`, micros(now), questID.String())
	return err
}

func (r *QuestRepository) AddCheckpoint(ctx context.Context, userID string, cp *models.Checkpoint, now time.Time) error {
	return r.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		ok, err := table{db: db, name: "quests", entity: "quest"}.exists(ctx, userID, cp.QuestID)
		if err != nil {
			return err
		}
		if !ok {
			return common.NotFound("quest", cp.QuestID)
		}
		if err := insertCheckpoints(ctx, db, []models.Checkpoint{*cp}); err != nil {
			if isPrimaryKeyViolation(err) {
				return common.Duplicate("checkpoint", cp.ID)
			}
			return storageErr("insert checkpoint", err)
		}
		if err := touchQuest(ctx, db, cp.QuestID, now); err != nil {
			return storageErr("touch quest", err)
		}
		return nil
	})
}

const ownedCheckpoint = `id = ? AND quest_id IN (SELECT id FROM quests WHERE user_id = ? AND deleted_at IS NULL)`

func (r *QuestRepository) SetCheckpointCompleted(ctx context.Context, userID string, checkpointID common.ID, completed bool, now time.Time) (*models.Checkpoint, error) {
	var out models.Checkpoint
	err := r.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var at any
		if completed {
			at = micros(now)
		}
		n, err := dbx.ExecAffected(ctx, db, `UPDATE checkpoints SET completed = ?, completed_at = ? WHERE `+ownedCheckpoint,
			boolInt(completed), at, checkpointID.String(), userID)
		if err != nil {
			return storageErr("update checkpoint", err)
		}
		if n == 0 {
			return common.NotFound("checkpoint", checkpointID)
		}
		out, err = scanCheckpoint(db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, checkpointID.String()))
		if err != nil {
			return storageErr("select checkpoint", err)
		}
		if err := touchQuest(ctx, db, out.QuestID, now); err != nil {
			return storageErr("touch quest", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *QuestRepository) ReorderCheckpoints(ctx context.Context, userID string, questID common.ID, ids []common.ID, now time.Time) error {
	return r.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		quests, err := selectQuests(ctx, db, nil, `id = ? AND user_id = ? AND deleted_at IS NULL`, questID.String(), userID)
		if err != nil {
			return storageErr("select quest", err)
		}
		if len(quests) == 0 {
			return common.NotFound("quest", questID)
		}
		if err := checkPermutation(quests[0].Checkpoints, ids); err != nil {
			return err
		}
		for i, id := range ids {
			if _, err := db.ExecContext(ctx, `UPDATE checkpoints SET sort_order = ? WHERE id = ?`, i, id.String()); err != nil {
				return storageErr("reorder checkpoints", err)
			}
		}
		if err := touchQuest(ctx, db, questID, now); err != nil {
			return storageErr("touch quest", err)
		}
		return nil
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
	return r.atomic(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var questID common.ID
		err := db.QueryRowContext(ctx, `SELECT quest_id FROM checkpoints WHERE `+ownedCheckpoint,
			checkpointID.String(), userID).Scan(&questID)
		if err == sql.ErrNoRows {
			return common.NotFound("checkpoint", checkpointID)
		}
		if err != nil {
			return storageErr("select checkpoint", err)
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, checkpointID.String()); err != nil {
			return storageErr("delete checkpoint", err)
		}
		if err := touchQuest(ctx, db, questID, now); err != nil {
			return storageErr("touch quest", err)
		}
		return nil
	})
}
