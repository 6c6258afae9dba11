package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/timex"
)

type loadFunc func(ctx context.Context, db dbx.DBTX, revs *[]int64, where string, args ...any) ([]models.Entity, error)

type mirrorTable struct {
	name   string
	load   loadFunc
	insert func(ctx context.Context, db dbx.DBTX, e models.Entity) error
}

func loadAs[T models.Entity](scan func(scanner, *int64) (T, error), columns, name string) loadFunc {
	return func(ctx context.Context, db dbx.DBTX, revs *[]int64, where string, args ...any) ([]models.Entity, error) {
		return queryAll(ctx, db, `SELECT `+columns+` FROM `+name+` WHERE `+where+` ORDER BY updated_at, id`,
			func(s scanner) (models.Entity, error) {
				var rev int64
				v, err := scan(s, &rev)
				if err != nil {
					return nil, err
				}
				if revs != nil {
					*revs = append(*revs, rev)
				}
				return v, nil
			}, args...)
	}
}

func loadQuests(ctx context.Context, db dbx.DBTX, revs *[]int64, where string, args ...any) ([]models.Entity, error) {
	qs, err := selectQuests(ctx, db, revs, where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]models.Entity, len(qs))
	for i, q := range qs {
		out[i] = q
	}
	return out, nil
}

// Pulled rows are inserted with pending = 0.
var mirrorTables = map[models.EntityType]mirrorTable{
	models.EntityInboxItem: {
		name: "inbox_items",
		load: loadAs(scanInbox, inboxColumns, "inbox_items"),
		insert: func(ctx context.Context, db dbx.DBTX, e models.Entity) error {
			return insertInbox(ctx, db, e.(*models.InboxItem), 0)
		},
	},
	models.EntityQuest: {
		name: "quests",
		load: loadQuests,
		insert: func(ctx context.Context, db dbx.DBTX, e models.Entity) error {
			q := e.(*models.Quest)
			if err := insertQuest(ctx, db, q, 0); err != nil {
				return err
			}
			return insertCheckpoints(ctx, db, q.Checkpoints)
		},
	},
	models.EntityNote: {
		name: "notes",
		load: loadAs(scanNote, noteColumns, "notes"),
		insert: func(ctx context.Context, db dbx.DBTX, e models.Entity) error {
			return insertNote(ctx, db, e.(*models.Note), 0)
		},
	},
	models.EntityItem: {
		name: "items",
		load: loadAs(scanItem, itemColumns, "items"),
		insert: func(ctx context.Context, db dbx.DBTX, e models.Entity) error {
			return insertItem(ctx, db, e.(*models.Item), 0)
		},
	},
	models.EntitySourceDocument: {
		name: "source_documents",
		load: loadAs(scanSource, sourceColumns, "source_documents"),
		insert: func(ctx context.Context, db dbx.DBTX, e models.Entity) error {
			return insertSource(ctx, db, e.(*models.SourceDocument), 0)
		},
	},
	models.EntityRoutine: {
		name: "routines",
		load: loadAs(scanRoutine, routineColumns, "routines"),
		insert: func(ctx context.Context, db dbx.DBTX, e models.Entity) error {
			return insertRoutine(ctx, db, e.(*models.Routine), 0)
		},
	},
}

func tableFor(t models.EntityType) (mirrorTable, error) {
	mt, ok := mirrorTables[t]
	if !ok {
		return mirrorTable{}, common.Validation("type", fmt.Sprintf("unknown entity type %q", t))
	}
	return mt, nil
}

// Mirror is the sync-facing side of the local store.
type Mirror struct {
	store *Store

	// Location decides the civil date of pulled completions. Defaults to UTC.
	Location *time.Location
	// DefaultBudget is used when a pulled completion creates an energy row.
	DefaultBudget int
}

func NewMirror(s *Store) *Mirror {
	return &Mirror{store: s, Location: time.UTC, DefaultBudget: common.DefaultDailyBudget}
}

func (s *Store) Metadata() *MetadataRepository { return NewMetadataRepository(s.db) }

// Pending returns the user's unpushed rows of type t, tombstones included.
// Each record carries the local_rev it was read at.
func (m *Mirror) Pending(ctx context.Context, userID string, t models.EntityType) ([]models.SyncRecord, error) {
	mt, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	var revs []int64
	entities, err := mt.load(ctx, m.store.db, &revs, `user_id = ? AND pending = 1`, userID)
	if err != nil {
		return nil, storageErr("select pending "+string(t), err)
	}
	out := make([]models.SyncRecord, 0, len(entities))
	for i, e := range entities {
		rec, err := models.EncodeRecord(e)
		if err != nil {
			return nil, err
		}
		rec.Rev = revs[i]
		out = append(out, rec)
	}
	return out, nil
}

// ApplyRemote writes pulled records in one transaction. The remote copy wins
// unless the row has an unresolved conflict, in which case it is stashed on
// the conflict for later resolution. It returns the number of rows written.
func (m *Mirror) ApplyRemote(ctx context.Context, userID string, recs []models.SyncRecord, now time.Time) (int, error) {
	applied := 0
	err := dbx.WithTx(ctx, m.store.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		applied = 0
		for _, rec := range recs {
			stashed, err := m.stashIfConflicted(ctx, tx, userID, rec)
			if err != nil {
				return err
			}
			if stashed {
				continue
			}
			ok, err := m.apply(ctx, tx, userID, rec, now)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return nil
	})
	return applied, err
}

func (m *Mirror) stashIfConflicted(ctx context.Context, db dbx.DBTX, userID string, rec models.SyncRecord) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	n, err := dbx.ExecAffected(ctx, db, `UPDATE sync_conflicts SET remote = ?, server_version = ?
		WHERE entity_type = ? AND entity_id = ? AND user_id = ?`,
		raw, rec.Version, string(rec.Type), rec.ID.String(), userID)
	if err != nil {
		return false, storageErr("stash remote copy", err)
	}
	return n > 0, nil
}

// apply replaces the local row with rec. It reports false when the record
// was parked as a conflict instead.
func (m *Mirror) apply(ctx context.Context, db dbx.DBTX, userID string, rec models.SyncRecord, now time.Time) (bool, error) {
	mt, err := tableFor(rec.Type)
	if err != nil {
		return false, err
	}
	e, err := rec.Decode()
	if err != nil {
		return false, err
	}
	meta := e.Meta()
	meta.UserID = userID

	var revs []int64
	existing, err := mt.load(ctx, db, &revs, `id = ?`, rec.ID.String())
	if err != nil {
		return false, storageErr("select "+string(rec.Type), err)
	}
	var prev models.Entity
	rev := int64(0)
	if len(existing) > 0 {
		prev, rev = existing[0], revs[0]
		if prev.Meta().UserID != userID {
			return false, common.NotFound(string(rec.Type), rec.ID)
		}
	}

	q, isQuest := e.(*models.Quest)
	if isQuest && q.Status == models.QuestActive && q.DeletedAt == nil {
		parked, err := m.parkIfWipBlocked(ctx, db, userID, rec, now)
		if err != nil || parked {
			return false, err
		}
	}

	if isQuest {
		if _, err := db.ExecContext(ctx, `DELETE FROM checkpoints WHERE quest_id = ?`, rec.ID.String()); err != nil {
			return false, storageErr("replace checkpoints", err)
		}
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM `+mt.name+` WHERE id = ?`, rec.ID.String()); err != nil {
		return false, storageErr("replace "+string(rec.Type), err)
	}
	if err := mt.insert(ctx, db, e); err != nil {
		return false, storageErr("replace "+string(rec.Type), err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE `+mt.name+` SET local_rev = ? WHERE id = ?`, rev+1, rec.ID.String()); err != nil {
		return false, storageErr("replace "+string(rec.Type), err)
	}

	if isQuest && q.Status == models.QuestCompleted && q.DeletedAt == nil {
		if pq, ok := prev.(*models.Quest); !ok || pq.Status != models.QuestCompleted {
			if err := m.chargeCompletion(ctx, db, q, now); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (m *Mirror) parkIfWipBlocked(ctx context.Context, db dbx.DBTX, userID string, rec models.SyncRecord, now time.Time) (bool, error) {
	var active string
	err := db.QueryRowContext(ctx, `SELECT id FROM quests WHERE user_id = ? AND status = 'ACTIVE'
		AND deleted_at IS NULL AND id <> ?`, userID, rec.ID.String()).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("lookup active quest", err)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	msg := common.WipLimitExceeded(common.ID(active), common.WipLimit, common.WipLimit).Message
	_, err = db.ExecContext(ctx, `INSERT INTO sync_conflicts (entity_type, entity_id, user_id, server_version,
		client_version, message, detected_at, remote) VALUES (?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET server_version = excluded.server_version,
			message = excluded.message, remote = excluded.remote`,
		string(rec.Type), rec.ID.String(), userID, rec.Version, msg, micros(now), raw)
	if err != nil {
		return false, storageErr("record conflict", err)
	}
	return true, nil
}

func (m *Mirror) chargeCompletion(ctx context.Context, db dbx.DBTX, q *models.Quest, now time.Time) error {
	at := now
	if q.CompletedAt != nil {
		at = *q.CompletedAt
	}
	_, err := NewEnergyRepository(db).AddSpent(ctx, q.UserID, timex.DateIn(at, m.Location), q.EnergyCost, m.DefaultBudget, now)
	return err
}

// CompletePush records the outcome of a push. Accepted rows keep pending
// set when they were modified locally while the push was in flight.
func (m *Mirror) CompletePush(ctx context.Context, userID string, t models.EntityType, pushed []models.SyncRecord, resp *models.PushResponse, now time.Time) error {
	mt, err := tableFor(t)
	if err != nil {
		return err
	}
	byID := make(map[common.ID]models.SyncRecord, len(pushed))
	for _, r := range pushed {
		byID[r.ID] = r
	}
	return dbx.WithTx(ctx, m.store.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, id := range resp.Accepted {
			rec, ok := byID[id]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE `+mt.name+` SET version = MAX(version, ?),
				pending = CASE WHEN local_rev = ? THEN 0 ELSE pending END
				WHERE id = ? AND user_id = ?`, rec.Version+1, rec.Rev, id.String(), userID); err != nil {
				return storageErr("mark synced", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM sync_conflicts WHERE entity_type = ? AND entity_id = ?`,
				string(t), id.String()); err != nil {
				return storageErr("clear conflict", err)
			}
		}
		for _, c := range resp.Conflicts {
			if _, err := tx.ExecContext(ctx, `INSERT INTO sync_conflicts (entity_type, entity_id, user_id,
				server_version, client_version, message, detected_at) VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (entity_type, entity_id) DO UPDATE SET server_version = excluded.server_version,
					client_version = excluded.client_version, message = excluded.message,
					detected_at = excluded.detected_at`,
				string(t), c.EntityID.String(), userID, c.ServerVersion, c.ClientVersion, c.Message, micros(now)); err != nil {
				return storageErr("record conflict", err)
			}
		}
		return nil
	})
}

func scanConflict(s scanner) (models.LocalConflict, error) {
	var (
		c        models.LocalConflict
		detected int64
		remote   []byte
	)
	if err := s.Scan(&c.EntityType, &c.EntityID, &c.ServerVersion, &c.ClientVersion, &c.Message, &detected, &remote); err != nil {
		return c, err
	}
	c.DetectedAt = fromMicros(detected)
	if len(remote) > 0 {
		c.Remote = json.RawMessage(remote)
	}
	return c, nil
}

const conflictColumns = `entity_type, entity_id, server_version, client_version, message, detected_at, remote`

func (m *Mirror) Conflicts(ctx context.Context, userID string) ([]models.LocalConflict, error) {
	out, err := queryAll(ctx, m.store.db, `SELECT `+conflictColumns+` FROM sync_conflicts WHERE user_id = ?
		ORDER BY detected_at, entity_id`, scanConflict, userID)
	if err != nil {
		return nil, storageErr("select conflicts", err)
	}
	return out, nil
}

// ResolveConflict settles a recorded conflict. keepLocal re-bases the local
// row on the server version so the next push overwrites the server; otherwise
// the stashed server copy replaces the local row.
func (m *Mirror) ResolveConflict(ctx context.Context, userID string, t models.EntityType, id common.ID, keepLocal bool, now time.Time) error {
	mt, err := tableFor(t)
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, m.store.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := scanConflict(tx.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM sync_conflicts
			WHERE entity_type = ? AND entity_id = ? AND user_id = ?`, string(t), id.String(), userID))
		if errors.Is(err, sql.ErrNoRows) {
			return common.NotFound("sync_conflict", id)
		}
		if err != nil {
			return storageErr("select conflict", err)
		}

		if keepLocal {
			n, err := dbx.ExecAffected(ctx, tx, `UPDATE `+mt.name+` SET version = ?, `+dirty+` WHERE id = ? AND user_id = ?`,
				c.ServerVersion, id.String(), userID)
			if err != nil {
				return storageErr("rebase local row", err)
			}
			if n == 0 {
				return common.NotFound(string(t), id)
			}
		} else {
			if len(c.Remote) == 0 {
				return common.Validation("remote", "server copy not pulled yet; sync first")
			}
			var rec models.SyncRecord
			if err := json.Unmarshal(c.Remote, &rec); err != nil {
				return common.Validation("remote", "malformed server copy")
			}
			ok, err := m.apply(ctx, tx, userID, rec, now)
			if err != nil {
				return err
			}
			if !ok {
				return common.WipLimitExceeded("", common.WipLimit, common.WipLimit)
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM sync_conflicts WHERE entity_type = ? AND entity_id = ?`, string(t), id.String())
		if err != nil {
			return storageErr("clear conflict", err)
		}
		return nil
	})
}

// Counts returns the number of pending rows and recorded conflicts.
func (m *Mirror) Counts(ctx context.Context, userID string) (pending, conflicts int, err error) {
	for _, t := range models.SyncedTypes {
		mt := mirrorTables[t]
		var n int
		if err := m.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+mt.name+` WHERE user_id = ? AND pending = 1`,
			userID).Scan(&n); err != nil {
			return 0, 0, storageErr("count pending", err)
		}
		pending += n
	}
	if err := m.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_conflicts WHERE user_id = ?`,
		userID).Scan(&conflicts); err != nil {
		return 0, 0, storageErr("count conflicts", err)
	}
	return pending, conflicts, nil
}

func watermarkKey(userID string, t models.EntityType) string {
	return "sync.watermark." + userID + "." + string(t)
}

func lastSyncKey(userID string) string { return "sync.last." + userID }

func lastFailureKey(userID string) string { return "sync.failed." + userID }

func (m *Mirror) getTime(ctx context.Context, key string) (*time.Time, error) {
	v, err := m.store.Metadata().Get(ctx, key)
	if err != nil {
		return nil, storageErr("read "+key, err)
	}
	if v == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(v))
	if err != nil {
		return nil, storageErr("parse "+key, err)
	}
	return &t, nil
}

func (m *Mirror) setTime(ctx context.Context, key string, t time.Time) error {
	if err := m.store.Metadata().Set(ctx, key, []byte(t.UTC().Format(time.RFC3339Nano))); err != nil {
		return storageErr("write "+key, err)
	}
	return nil
}

// Watermark returns the last server timestamp fully applied for t, or nil.
func (m *Mirror) Watermark(ctx context.Context, userID string, t models.EntityType) (*time.Time, error) {
	return m.getTime(ctx, watermarkKey(userID, t))
}

func (m *Mirror) SetWatermark(ctx context.Context, userID string, t models.EntityType, ts time.Time) error {
	return m.setTime(ctx, watermarkKey(userID, t), ts)
}

func (m *Mirror) LastSync(ctx context.Context, userID string) (*time.Time, error) {
	return m.getTime(ctx, lastSyncKey(userID))
}

func (m *Mirror) SetLastSync(ctx context.Context, userID string, ts time.Time) error {
	return m.setTime(ctx, lastSyncKey(userID), ts)
}

// LastFailure returns when the most recent sync attempt failed, or nil when
// the last attempt succeeded.
func (m *Mirror) LastFailure(ctx context.Context, userID string) (*time.Time, error) {
	return m.getTime(ctx, lastFailureKey(userID))
}

// SetLastFailure records a failed attempt; nil clears it.
func (m *Mirror) SetLastFailure(ctx context.Context, userID string, ts *time.Time) error {
	if ts != nil {
		return m.setTime(ctx, lastFailureKey(userID), *ts)
	}
	if err := m.store.Metadata().Delete(ctx, lastFailureKey(userID)); err != nil {
		return storageErr("clear "+lastFailureKey(userID), err)
	}
	return nil
}
