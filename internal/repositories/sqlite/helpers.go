package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type scanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as unix microseconds.
func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func nullMicros(t *time.Time) any {
	if t == nil {
		return nil
	}
	return micros(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullID(id *common.ID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func idPtr(v sql.NullString) *common.ID {
	if !v.Valid {
		return nil
	}
	id := common.ID(v.String)
	return &id
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isPrimaryKeyViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isActiveQuestViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) &&
		se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		strings.Contains(se.Error(), "quests.user_id")
}

func storageErr(op string, err error) error {
	return common.Storage(op, err)
}

// queryAll runs query and scans every row with scan.
func queryAll[T any](ctx context.Context, db dbx.DBTX, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// table implements the lifecycle operations shared by every synced table.
type table struct {
	db     dbx.DBTX
	name   string
	entity string
}

// dirty is appended to every local write so the row is pushed on next sync.
const dirty = `pending = 1, local_rev = local_rev + 1`

func (t table) softDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	n, err := dbx.ExecAffected(ctx, t.db,
		`UPDATE `+t.name+` SET deleted_at = ?, updated_at = ?, `+dirty+`
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		micros(now), micros(now), id.String(), userID)
	if err != nil {
		return storageErr("soft delete "+t.entity, err)
	}
	if n == 0 {
		return common.NotFound(t.entity, id)
	}
	return nil
}

func (t table) restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	n, err := dbx.ExecAffected(ctx, t.db,
		`UPDATE `+t.name+` SET deleted_at = NULL, updated_at = ?, `+dirty+`
		 WHERE id = ? AND user_id = ? AND deleted_at IS NOT NULL`,
		micros(now), id.String(), userID)
	if err != nil {
		return storageErr("restore "+t.entity, err)
	}
	if n == 0 {
		return common.NotFound(t.entity, id)
	}
	return nil
}

// exists reports whether a live row with id exists for userID.
func (t table) exists(ctx context.Context, userID string, id common.ID) (bool, error) {
	var one int
	err := t.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+t.name+` WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		id.String(), userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("lookup "+t.entity, err)
	}
	return true, nil
}

func (t table) insertErr(id common.ID, err error) error {
	if isPrimaryKeyViolation(err) {
		return common.Duplicate(t.entity, id)
	}
	return storageErr("insert "+t.entity, err)
}

func (t table) updateResult(id common.ID, n int64, err error) error {
	if err != nil {
		return storageErr("update "+t.entity, err)
	}
	if n == 0 {
		return common.NotFound(t.entity, id)
	}
	return nil
}

func one[T any](id common.ID, entity string, items []T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, storageErr("select "+entity, err)
	}
	if len(items) == 0 {
		return zero, common.NotFound(entity, id)
	}
	return items[0], nil
}
