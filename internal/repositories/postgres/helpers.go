package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
)

type scanner interface {
	Scan(dest ...any) error
}

// stamp advances the caller's server stamp. Statements prefixed with it bind
// $1 to the write time and $2 to the user ID; their own arguments start at $3.
// The users row stays locked until commit, so stamps grow in commit order.
const stamp = `WITH stamp AS (
	UPDATE users SET last_stamp = GREATEST($1::timestamptz, last_stamp + interval '1 microsecond')
	WHERE id = $2 RETURNING last_stamp) `

// written is appended to every write of a synced row.
const written = `version = version + 1, modified_at = (SELECT last_stamp FROM stamp)`

const (
	uniqueViolation   = "23505"
	oneActiveQuestIdx = "quests_one_active_per_user"
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isActiveQuestViolation(err error) bool {
	return isUniqueViolation(err, oneActiveQuestIdx)
}

func storageErr(op string, err error) error {
	return common.Storage(op, err)
}

// lock takes the transaction-scoped advisory lock for key.
func lock(ctx context.Context, db dbx.DBTX, key string) error {
	if _, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return storageErr("advisory lock", err)
	}
	return nil
}

func lockKey(userID, scope string) string { return userID + ":" + scope }

// placeholders returns "$start, ..., $start+n-1".
func placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ps, ", ")
}

func ts(t time.Time) time.Time { return t.UTC() }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
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

// txRunner runs fn atomically; a repository bound to a transaction runs fn in it.
type txRunner struct {
	db   dbx.DBTX
	conn *sql.DB
}

func newTxRunner(db dbx.DBTX) txRunner {
	conn, _ := db.(*sql.DB)
	return txRunner{db: db, conn: conn}
}

func (r txRunner) atomic(ctx context.Context, fn func(ctx context.Context, db dbx.DBTX) error) error {
	if r.conn == nil {
		return fn(ctx, r.db)
	}
	return dbx.WithTx(ctx, r.conn, nil, fn)
}

// table implements the lifecycle operations shared by every synced table.
type table struct {
	db     dbx.DBTX
	name   string
	entity string
}

func (t table) softDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	n, err := dbx.ExecAffected(ctx, t.db, stamp+`UPDATE `+t.name+` SET deleted_at = $1, updated_at = $1, `+written+`
		WHERE id = $3 AND user_id = $2 AND deleted_at IS NULL`, ts(now), userID, id.String())
	if err != nil {
		return storageErr("soft delete "+t.entity, err)
	}
	if n == 0 {
		return common.NotFound(t.entity, id)
	}
	return nil
}

func (t table) restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	n, err := dbx.ExecAffected(ctx, t.db, stamp+`UPDATE `+t.name+` SET deleted_at = NULL, updated_at = $1, `+written+`
		WHERE id = $3 AND user_id = $2 AND deleted_at IS NOT NULL`, ts(now), userID, id.String())
	if err != nil {
		return storageErr("restore "+t.entity, err)
	}
	if n == 0 {
		return common.NotFound(t.entity, id)
	}
	return nil
}

func (t table) exists(ctx context.Context, db dbx.DBTX, userID string, id common.ID) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM `+t.name+` WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
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
	if isUniqueViolation(err, t.name+"_pkey") {
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
