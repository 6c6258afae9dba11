package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories/storetest"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

// liveStore opens the database named by ALTAIR_TEST_POSTGRES_DSN or skips.
func liveStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ALTAIR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ALTAIR_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func liveUser(t *testing.T, s *Store) string {
	t.Helper()
	u := &models.User{ID: common.NewID().String(), UserName: "user-" + common.NewID().String(), PasswordHash: []byte("x")}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u.ID
}

func TestStoreContract(t *testing.T) {
	s := liveStore(t)
	storetest.Run(t, func(t *testing.T) storetest.Harness {
		return storetest.Harness{
			Store:   s,
			NewUser: func(t *testing.T) string { return liveUser(t, s) },
		}
	})
}

func TestAuthority_RoundTripLive(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()
	user := liveUser(t, s)
	a := NewAuthority(s)

	n := &models.Note{Title: "draft", Content: "first"}
	n.UserID = user
	n.Touch(now)
	rec, err := models.EncodeRecord(n)
	require.NoError(t, err)

	pushed, err := a.Push(ctx, user, models.EntityNote, []models.SyncRecord{rec}, now)
	require.NoError(t, err)
	require.Equal(t, []common.ID{n.ID}, pushed.Accepted)

	page, err := a.Pull(ctx, user, models.EntityNote, nil, 50)
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, int64(1), page.Entities[0].Version)
	assert.False(t, page.HasMore)

	// a second device still holding version 0 is refused
	stale, err := a.Push(ctx, user, models.EntityNote, []models.SyncRecord{rec}, now)
	require.NoError(t, err)
	assert.Empty(t, stale.Accepted)
	require.Len(t, stale.Conflicts, 1)
	assert.Equal(t, int64(1), stale.Conflicts[0].ServerVersion)

	again, err := a.Pull(ctx, user, models.EntityNote, &page.ServerTimestamp, 50)
	require.NoError(t, err)
	assert.Empty(t, again.Entities, "a refused push leaves the row untouched")
}

func TestSchema_UpsertSQLGuardsVersionAndOwner(t *testing.T) {
	q := noteSchema.upsertSQL()
	assert.Contains(t, q, "WITH stamp AS")
	assert.Contains(t, q, "INSERT INTO notes (id, user_id, created_at, updated_at, deleted_at, title, content, folder_id, initiative_id, version, modified_at)")
	assert.Contains(t, q, "VALUES ($3, $2, $4, $5, $6, $7, $8, $9, $10, $11,")
	assert.Contains(t, q, "version = notes.version + 1")
	assert.Contains(t, q, "WHERE notes.user_id = EXCLUDED.user_id AND notes.version = $12")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(q), "RETURNING version"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3, $4, $5", placeholders(3, 3))
	assert.Equal(t, "", placeholders(1, 0))
}

func TestInboxCreate_DuplicateMapsToConflict(t *testing.T) {
	s, mock := newMock(t)
	item := storetest.NewInbox("u1", "twice")

	mock.ExpectExec(`INSERT INTO inbox_items`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "inbox_items_pkey"})

	err := s.Repos().Inbox.Create(context.Background(), item)
	assert.ErrorIs(t, err, common.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInboxCreate_DriverErrorIsRetryableStorage(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO inbox_items`).WillReturnError(errors.New("conn reset"))

	err := s.Repos().Inbox.Create(context.Background(), storetest.NewInbox("u1", "x"))
	assert.ErrorIs(t, err, common.ErrStorage)
	assert.True(t, common.IsRetryable(err))
}

func TestSoftDelete_StampsAndBumpsVersion(t *testing.T) {
	s, mock := newMock(t)
	id := common.NewID()

	mock.ExpectExec(`(?s)WITH stamp AS .*UPDATE notes SET deleted_at = \$1, updated_at = \$1, version = version \+ 1, modified_at = \(SELECT last_stamp FROM stamp\).*deleted_at IS NULL`).
		WithArgs(now, "u1", id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE notes SET deleted_at`).
		WithArgs(now, "u1", id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	notes := s.Repos().Notes
	require.NoError(t, notes.SoftDelete(context.Background(), "u1", id, now))
	assert.ErrorIs(t, notes.SoftDelete(context.Background(), "u1", id, now), common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func questRow(q *models.Quest) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "title", "description", "energy_cost", "status", "epic_id",
		"routine_id", "started_at", "completed_at", "created_at", "updated_at", "deleted_at", "version", "modified_at"}).
		AddRow(q.ID.String(), q.UserID, q.Title, q.Description, q.EnergyCost, string(q.Status), nil, nil,
			timeValue(q.StartedAt), nil, q.CreatedAt, q.UpdatedAt, nil, q.Version, q.UpdatedAt)
}

func timeValue(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return *t
}

var checkpointCols = []string{"id", "quest_id", "title", "completed", "sort_order", "completed_at"}

func TestActivate_TakesAdvisoryLockInTransaction(t *testing.T) {
	s, mock := newMock(t)
	q := storetest.NewQuest("u1", "Q1", 3)
	started := *q
	started.Status = models.QuestActive
	started.StartedAt = &now
	started.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtextextended\(\$1, 0\)\)`).
		WithArgs("u1:quest").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)UPDATE quests SET status = 'ACTIVE'.*status = 'BACKLOG'.*NOT EXISTS`).
		WithArgs(now, "u1", q.ID.String()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, user_id, title`).WithArgs(q.ID.String(), "u1").WillReturnRows(questRow(&started))
	mock.ExpectQuery(`FROM checkpoints`).WithArgs(q.ID.String()).WillReturnRows(sqlmock.NewRows(checkpointCols))
	mock.ExpectCommit()

	got, err := s.Repos().Quests.Activate(context.Background(), "u1", q.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.QuestActive, got.Status)
	assert.Empty(t, got.Checkpoints)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivate_WipConflictNamesActiveQuest(t *testing.T) {
	s, mock := newMock(t)
	q := storetest.NewQuest("u1", "Q2", 2)
	holder := common.NewID()

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE quests SET status = 'ACTIVE'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, user_id, title`).WillReturnRows(questRow(q))
	mock.ExpectQuery(`FROM checkpoints`).WillReturnRows(sqlmock.NewRows(checkpointCols))
	mock.ExpectQuery(`SELECT id FROM quests WHERE user_id = \$1 AND status = 'ACTIVE'`).
		WithArgs("u1", q.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(holder.String()))
	mock.ExpectRollback()

	_, err := s.Repos().Quests.Activate(context.Background(), "u1", q.ID, now)
	require.ErrorIs(t, err, common.ErrWipLimitExceeded)
	var e *common.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, holder.String(), e.EntityID)
	assert.Equal(t, 1, e.Current)
	assert.Equal(t, 1, e.Limit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivate_UniqueIndexBackstop(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE quests SET status = 'ACTIVE'`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "quests_one_active_per_user"})
	mock.ExpectRollback()

	_, err := s.Repos().Quests.Activate(context.Background(), "u1", common.NewID(), now)
	assert.ErrorIs(t, err, common.ErrWipLimitExceeded)
}

func TestEnergyAddSpent_UpsertReturnsRow(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`(?s)INSERT INTO energy_budgets.*ON CONFLICT \(user_id, date\) DO UPDATE SET spent = energy_budgets.spent \+ EXCLUDED.spent.*RETURNING`).
		WithArgs("u1", "2026-03-02", 5, 3, now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "date", "budget", "spent", "updated_at"}).
			AddRow("u1", "2026-03-02", 5, 3, now))

	e, err := s.Repos().Energy.AddSpent(context.Background(), "u1", "2026-03-02", 3, 5, now)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Spent)
	assert.Equal(t, 2, e.Remaining())

	_, err = s.Repos().Energy.AddSpent(context.Background(), "u1", "2026-03-02", -1, 5, now)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUsers_CreateDuplicateName(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`(?s)INSERT INTO users \(id, username, password_hash, disabled\).*RETURNING created_at`).
		WithArgs("u1", "alice", []byte("hash"), false).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	err := s.Users().Create(context.Background(), &models.User{ID: "u1", UserName: "alice", PasswordHash: []byte("hash")})
	assert.ErrorIs(t, err, common.ErrDuplicate)
}

func TestUsers_GetByUserName(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT id, username, password_hash, disabled, created_at FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "disabled", "created_at"}).
			AddRow("u1", "alice", []byte("hash"), true, now))
	mock.ExpectQuery(`FROM users WHERE username = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	u, err := s.Users().GetByUserName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.True(t, u.Disabled)

	_, err = s.Users().GetByUserName(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRefreshTokens_FindAndDelete(t *testing.T) {
	s, mock := newMock(t)
	exp := now.Add(time.Hour)
	mock.ExpectExec(`INSERT INTO refresh_tokens \(user_id, token, expires_at\)`).
		WithArgs("u1", "tok", exp).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT user_id, token, expires_at, created_at\s+FROM refresh_tokens`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "token", "expires_at", "created_at"}).AddRow("u1", "tok", exp, now))
	mock.ExpectExec(`DELETE FROM refresh_tokens`).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM refresh_tokens`).WithArgs("tok").WillReturnError(sql.ErrNoRows)

	repo := s.RefreshTokens()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, "u1", "tok", exp))
	got, err := repo.Find(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, exp.Equal(got.Expires))
	require.NoError(t, repo.Delete(ctx, "tok"))
	_, err = repo.Find(ctx, "tok")
	assert.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
