package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

type loadFunc func(ctx context.Context, db dbx.DBTX, stamps *[]time.Time, where string, args ...any) ([]models.Entity, error)

// schema maps one synced entity type onto its table. Columns lists the
// type-specific columns written after id, user_id and the timestamps.
type schema struct {
	name    string
	entity  models.EntityType
	columns []string
	values  func(models.Entity) ([]any, error)
	load    loadFunc
	// after runs once the row itself is written, e.g. to replace children.
	after func(ctx context.Context, db dbx.DBTX, e models.Entity) error
}

func (s schema) insertSQL() string {
	cols := append([]string{"id", "user_id", "created_at", "updated_at", "deleted_at"}, s.columns...)
	cols = append(cols, "version", "modified_at")
	next := 7 + len(s.columns)
	return stamp + `INSERT INTO ` + s.name + ` (` + strings.Join(cols, ", ") + `)
		VALUES ($3, $2, $4, $5, $6, ` + placeholders(7, len(s.columns)) + `, $` + strconv.Itoa(next) + `,
		(SELECT last_stamp FROM stamp))`
}

// upsertSQL accepts the row only when it is new or the stored version is the
// one the client last observed.
func (s schema) upsertSQL() string {
	set := []string{"updated_at = EXCLUDED.updated_at", "deleted_at = EXCLUDED.deleted_at"}
	for _, c := range s.columns {
		set = append(set, c+" = EXCLUDED."+c)
	}
	set = append(set, "version = "+s.name+".version + 1", "modified_at = EXCLUDED.modified_at")
	guard := 8 + len(s.columns)
	return s.insertSQL() + `
		ON CONFLICT (id) DO UPDATE SET ` + strings.Join(set, ", ") + `
		WHERE ` + s.name + `.user_id = EXCLUDED.user_id AND ` + s.name + `.version = $` + strconv.Itoa(guard) + `
		RETURNING version`
}

func (s schema) args(e models.Entity, userID string, version int64, now time.Time) ([]any, error) {
	vals, err := s.values(e)
	if err != nil {
		return nil, err
	}
	m := e.Meta()
	args := []any{ts(now), userID, m.ID.String(), ts(m.CreatedAt), ts(m.UpdatedAt), nullTime(m.DeletedAt)}
	args = append(args, vals...)
	return append(args, version), nil
}

// insert writes a new row at version 1.
func (s schema) insert(ctx context.Context, db dbx.DBTX, e models.Entity, now time.Time) error {
	m := e.Meta()
	args, err := s.args(e, m.UserID, 1, now)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, s.insertSQL(), args...); err != nil {
		return err
	}
	m.Version = 1
	if s.after != nil {
		return s.after(ctx, db, e)
	}
	return nil
}

// upsert applies a pushed record. ok is false when the version guard or
// ownership check rejected it.
func (s schema) upsert(ctx context.Context, db dbx.DBTX, userID string, e models.Entity, clientVersion int64, now time.Time) (version int64, ok bool, err error) {
	args, err := s.args(e, userID, clientVersion+1, now)
	if err != nil {
		return 0, false, err
	}
	args = append(args, clientVersion)
	rows, err := queryAll(ctx, db, s.upsertSQL(), func(sc scanner) (int64, error) {
		var v int64
		return v, sc.Scan(&v)
	}, args...)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	if s.after != nil {
		if err := s.after(ctx, db, e); err != nil {
			return 0, false, err
		}
	}
	return rows[0], true, nil
}

func loadAs[T models.Entity](scan func(scanner, *time.Time) (T, error), columns, name string) loadFunc {
	return func(ctx context.Context, db dbx.DBTX, stamps *[]time.Time, where string, args ...any) ([]models.Entity, error) {
		return queryAll(ctx, db, `SELECT `+columns+` FROM `+name+` WHERE `+where,
			func(sc scanner) (models.Entity, error) {
				var at time.Time
				v, err := scan(sc, &at)
				if err != nil {
					return nil, err
				}
				if stamps != nil {
					*stamps = append(*stamps, at.UTC())
				}
				return v, nil
			}, args...)
	}
}

var schemas = map[models.EntityType]schema{
	models.EntityInboxItem:      inboxSchema,
	models.EntityQuest:          questSchema,
	models.EntityNote:           noteSchema,
	models.EntityItem:           itemSchema,
	models.EntitySourceDocument: sourceSchema,
	models.EntityRoutine:        routineSchema,
}
