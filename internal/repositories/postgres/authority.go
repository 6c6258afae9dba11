package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/timex"
)

// Authority answers pulls and applies pushes against the remote store.
type Authority struct {
	store *Store

	// Location decides the civil date of pushed completions. Defaults to UTC.
	Location *time.Location
	// DefaultBudget is used when a pushed completion creates an energy row.
	DefaultBudget int
}

func NewAuthority(s *Store) *Authority {
	return &Authority{store: s, Location: time.UTC, DefaultBudget: common.DefaultDailyBudget}
}

func schemaFor(t models.EntityType) (schema, error) {
	s, ok := schemas[t]
	if !ok {
		return schema{}, common.Validation("type", fmt.Sprintf("unknown entity type %q", t))
	}
	return s, nil
}

// Pull returns up to limit rows of type t stamped after since, tombstones
// included, in (modified_at, id) order.
func (a *Authority) Pull(ctx context.Context, userID string, t models.EntityType, since *time.Time, limit int) (*models.PullResponse, error) {
	s, err := schemaFor(t)
	if err != nil {
		return nil, err
	}
	// Read the committed stamp before the rows: a row committed later gets a
	// larger stamp, so reporting this value never skips it.
	committed, err := a.store.Users().LastStamp(ctx, userID)
	if err != nil {
		return nil, err
	}

	where := `user_id = $1`
	args := []any{userID}
	if since != nil {
		where += ` AND modified_at > $2`
		args = append(args, ts(*since))
	}
	where += fmt.Sprintf(` ORDER BY modified_at, id LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	var stamps []time.Time
	entities, err := s.load(ctx, a.store.db, &stamps, where, args...)
	if err != nil {
		return nil, storageErr("pull "+string(t), err)
	}

	resp := &models.PullResponse{Entities: []models.SyncRecord{}}
	if len(entities) > limit {
		entities, stamps = entities[:limit], stamps[:limit]
		resp.HasMore = true
	}
	for i, e := range entities {
		rec, err := models.EncodeRecord(e)
		if err != nil {
			return nil, err
		}
		rec.ModifiedAt = stamps[i]
		resp.Entities = append(resp.Entities, rec)
	}

	var last time.Time
	if n := len(stamps); n > 0 {
		last = stamps[n-1]
	}
	switch {
	case resp.HasMore:
		resp.ServerTimestamp = last
	default:
		resp.ServerTimestamp = latest(committed, last)
		if since != nil {
			resp.ServerTimestamp = latest(resp.ServerTimestamp, since.UTC())
		}
	}
	return resp, nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

type storedRow struct {
	userID  string
	version int64
	status  models.QuestStatus
}

// Push applies recs in one transaction holding the per-user lock for t.
// Records failing validation, ownership or the version guard come back as
// conflicts; any storage error rolls the whole batch back.
func (a *Authority) Push(ctx context.Context, userID string, t models.EntityType, recs []models.SyncRecord, now time.Time) (*models.PushResponse, error) {
	s, err := schemaFor(t)
	if err != nil {
		return nil, err
	}
	resp := &models.PushResponse{Accepted: []common.ID{}, Conflicts: []models.SyncConflict{}}
	err = dbx.WithTx(ctx, a.store.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		resp.Accepted, resp.Conflicts = resp.Accepted[:0], resp.Conflicts[:0]
		if err := lock(ctx, tx, lockKey(userID, string(t))); err != nil {
			return err
		}
		for _, rec := range applyOrder(t, recs) {
			c, err := a.apply(ctx, tx, s, userID, rec, now)
			if err != nil {
				return err
			}
			if c != nil {
				resp.Conflicts = append(resp.Conflicts, *c)
				continue
			}
			resp.Accepted = append(resp.Accepted, rec.ID)
		}
		return nil
	})
	if err != nil {
		var ce *common.Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, storageErr("push "+string(t), err)
	}
	return resp, nil
}

// applyOrder moves quest activations last so a batch that finishes one
// quest and starts another is accepted whole.
func applyOrder(t models.EntityType, recs []models.SyncRecord) []models.SyncRecord {
	if t != models.EntityQuest {
		return recs
	}
	out := append([]models.SyncRecord(nil), recs...)
	activates := func(r models.SyncRecord) bool {
		var probe struct {
			Status models.QuestStatus `json:"status"`
		}
		return !r.Deleted && json.Unmarshal(r.Data, &probe) == nil && probe.Status == models.QuestActive
	}
	sort.SliceStable(out, func(i, j int) bool { return !activates(out[i]) && activates(out[j]) })
	return out
}

func conflict(rec models.SyncRecord, serverVersion int64, msg string) *models.SyncConflict {
	return &models.SyncConflict{
		EntityID:      rec.ID,
		EntityType:    rec.Type,
		ServerVersion: serverVersion,
		ClientVersion: rec.Version,
		Message:       msg,
	}
}

func (a *Authority) apply(ctx context.Context, db dbx.DBTX, s schema, userID string, rec models.SyncRecord, now time.Time) (*models.SyncConflict, error) {
	if rec.Type != s.entity {
		return conflict(rec, 0, fmt.Sprintf("record type %q pushed as %q", rec.Type, s.entity)), nil
	}

	stored, err := a.stored(ctx, db, s, rec.ID)
	if err != nil {
		return nil, err
	}
	var serverVersion int64
	if stored != nil {
		if stored.userID != userID {
			return conflict(rec, 0, common.NotFound(string(rec.Type), rec.ID).Message), nil
		}
		serverVersion = stored.version
	}

	e, err := rec.Decode()
	if err != nil {
		return conflict(rec, serverVersion, err.Error()), nil
	}
	m := e.Meta()
	m.UserID = userID
	if rec.Deleted && m.DeletedAt == nil {
		at := rec.ModifiedAt
		if at.IsZero() {
			at = now
		}
		m.DeletedAt = &at
	}
	if err := e.Validate(); err != nil {
		return conflict(rec, serverVersion, err.Error()), nil
	}

	if stored != nil && stored.version != rec.Version {
		return conflict(rec, serverVersion,
			common.VersionConflict(string(rec.Type), rec.ID, serverVersion, rec.Version).Message), nil
	}

	q, isQuest := e.(*models.Quest)
	if isQuest && q.Status == models.QuestActive && q.DeletedAt == nil {
		active, err := activeQuestID(ctx, db, userID, q.ID)
		if err != nil {
			return nil, err
		}
		if active != "" {
			return conflict(rec, serverVersion, wipConflict(active).Error()), nil
		}
	}

	if _, ok, err := s.upsert(ctx, db, userID, e, rec.Version, now); err != nil {
		return nil, storageErr("apply "+string(rec.Type), err)
	} else if !ok {
		return conflict(rec, serverVersion, "rejected by version guard"), nil
	}

	if isQuest && q.Status == models.QuestCompleted && q.DeletedAt == nil &&
		(stored == nil || stored.status != models.QuestCompleted) {
		at := now
		if q.CompletedAt != nil {
			at = *q.CompletedAt
		}
		if _, err := NewEnergyRepository(db).AddSpent(ctx, userID, timex.DateIn(at, a.Location), q.EnergyCost,
			a.DefaultBudget, now); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// stored locks and returns the current row for id, or nil.
func (a *Authority) stored(ctx context.Context, db dbx.DBTX, s schema, id common.ID) (*storedRow, error) {
	cols := `user_id, version, ''`
	if s.entity == models.EntityQuest {
		cols = `user_id, version, status`
	}
	var row storedRow
	err := db.QueryRowContext(ctx, `SELECT `+cols+` FROM `+s.name+` WHERE id = $1 FOR UPDATE`, id.String()).
		Scan(&row.userID, &row.version, &row.status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("select "+string(s.entity), err)
	}
	return &row, nil
}

// Counts returns the live row count per synced type and the user's stamp.
func (a *Authority) Counts(ctx context.Context, userID string) (map[models.EntityType]int, time.Time, error) {
	stamp, err := a.store.Users().LastStamp(ctx, userID)
	if err != nil {
		return nil, time.Time{}, err
	}
	counts := make(map[models.EntityType]int, len(models.SyncedTypes))
	for _, t := range models.SyncedTypes {
		var n int
		if err := a.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+schemas[t].name+`
			WHERE user_id = $1 AND deleted_at IS NULL`, userID).Scan(&n); err != nil {
			return nil, time.Time{}, storageErr("count "+string(t), err)
		}
		counts[t] = n
	}
	return counts, stamp, nil
}
