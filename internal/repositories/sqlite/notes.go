package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const noteColumns = `id, user_id, title, content, folder_id, initiative_id,
	created_at, updated_at, deleted_at, version, local_rev`

type NoteRepository struct {
	db dbx.DBTX
	t  table
}

func NewNoteRepository(db dbx.DBTX) *NoteRepository {
	return &NoteRepository{db: db, t: table{db: db, name: "notes", entity: "note"}}
}

func scanNote(s scanner, rev *int64) (*models.Note, error) {
	var (
		n                  models.Note
		folder, initiative sql.NullString
		created, updated   int64
		deleted            sql.NullInt64
	)
	if err := s.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &folder, &initiative,
		&created, &updated, &deleted, &n.Version, rev); err != nil {
		return nil, err
	}
	n.FolderID = idPtr(folder)
	n.InitiativeID = idPtr(initiative)
	n.CreatedAt = fromMicros(created)
	n.UpdatedAt = fromMicros(updated)
	n.DeletedAt = timePtr(deleted)
	return &n, nil
}

func (r *NoteRepository) list(ctx context.Context, where string, args ...any) ([]*models.Note, error) {
	var rev int64
	return queryAll(ctx, r.db, `SELECT `+noteColumns+` FROM notes WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.Note, error) { return scanNote(s, &rev) }, args...)
}

func (r *NoteRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Note, error) {
	notes, err := r.list(ctx, `id = ? AND user_id = ? AND deleted_at IS NULL`, id.String(), userID)
	return one(id, "note", notes, err)
}

func (r *NoteRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Note, error) {
	notes, err := r.list(ctx, `user_id = ? AND deleted_at IS NULL`, userID)
	if err != nil {
		return nil, storageErr("select note", err)
	}
	return notes, nil
}

func (r *NoteRepository) ListByFolder(ctx context.Context, userID string, folderID common.ID) ([]*models.Note, error) {
	notes, err := r.list(ctx, `user_id = ? AND folder_id = ? AND deleted_at IS NULL`, userID, folderID.String())
	if err != nil {
		return nil, storageErr("select note", err)
	}
	return notes, nil
}

func insertNote(ctx context.Context, db dbx.DBTX, n *models.Note, pending int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO notes (id, user_id, title, content, folder_id, initiative_id,
		created_at, updated_at, deleted_at, version, pending) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.UserID, n.Title, n.Content, nullID(n.FolderID), nullID(n.InitiativeID),
		micros(n.CreatedAt), micros(n.UpdatedAt), nullMicros(n.DeletedAt), n.Version, pending)
	return err
}

func (r *NoteRepository) Create(ctx context.Context, n *models.Note) error {
	if err := insertNote(ctx, r.db, n, 1); err != nil {
		return r.t.insertErr(n.ID, err)
	}
	return nil
}

func (r *NoteRepository) Update(ctx context.Context, n *models.Note) error {
	c, err := dbx.ExecAffected(ctx, r.db, `UPDATE notes SET title = ?, content = ?, folder_id = ?, initiative_id = ?,
		updated_at = ?, `+dirty+` WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		n.Title, n.Content, nullID(n.FolderID), nullID(n.InitiativeID), micros(n.UpdatedAt), n.ID.String(), n.UserID)
	return r.t.updateResult(n.ID, c, err)
}

func (r *NoteRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *NoteRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
