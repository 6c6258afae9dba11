package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const noteColumns = `id, user_id, title, content, folder_id, initiative_id,
	created_at, updated_at, deleted_at, version, modified_at`

var noteSchema = schema{
	name:    "notes",
	entity:  models.EntityNote,
	columns: []string{"title", "content", "folder_id", "initiative_id"},
	values: func(e models.Entity) ([]any, error) {
		n := e.(*models.Note)
		return []any{n.Title, n.Content, nullID(n.FolderID), nullID(n.InitiativeID)}, nil
	},
	load: loadAs(scanNote, noteColumns, "notes"),
}

type NoteRepository struct {
	db dbx.DBTX
	t  table
}

func NewNoteRepository(db dbx.DBTX) *NoteRepository {
	return &NoteRepository{db: db, t: table{db: db, name: "notes", entity: "note"}}
}

func scanNote(s scanner, modified *time.Time) (*models.Note, error) {
	var (
		n                  models.Note
		folder, initiative sql.NullString
		deleted            sql.NullTime
	)
	if err := s.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &folder, &initiative,
		&n.CreatedAt, &n.UpdatedAt, &deleted, &n.Version, modified); err != nil {
		return nil, err
	}
	n.FolderID = idPtr(folder)
	n.InitiativeID = idPtr(initiative)
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	n.DeletedAt = timePtr(deleted)
	return &n, nil
}

func (r *NoteRepository) list(ctx context.Context, where string, args ...any) ([]*models.Note, error) {
	var at time.Time
	notes, err := queryAll(ctx, r.db, `SELECT `+noteColumns+` FROM notes WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.Note, error) { return scanNote(s, &at) }, args...)
	if err != nil {
		return nil, storageErr("select note", err)
	}
	return notes, nil
}

func (r *NoteRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Note, error) {
	notes, err := r.list(ctx, `id = $1 AND user_id = $2 AND deleted_at IS NULL`, id.String(), userID)
	if err != nil {
		return nil, err
	}
	return one(id, "note", notes, nil)
}

func (r *NoteRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Note, error) {
	return r.list(ctx, `user_id = $1 AND deleted_at IS NULL`, userID)
}

func (r *NoteRepository) ListByFolder(ctx context.Context, userID string, folderID common.ID) ([]*models.Note, error) {
	return r.list(ctx, `user_id = $1 AND folder_id = $2 AND deleted_at IS NULL`, userID, folderID.String())
}

func (r *NoteRepository) Create(ctx context.Context, n *models.Note) error {
	if err := noteSchema.insert(ctx, r.db, n, n.UpdatedAt); err != nil {
		return r.t.insertErr(n.ID, err)
	}
	return nil
}

func (r *NoteRepository) Update(ctx context.Context, n *models.Note) error {
	c, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE notes SET title = $3, content = $4, folder_id = $5,
		initiative_id = $6, updated_at = $1, `+written+` WHERE id = $7 AND user_id = $2 AND deleted_at IS NULL`,
		ts(n.UpdatedAt), n.UserID, n.Title, n.Content, nullID(n.FolderID), nullID(n.InitiativeID), n.ID.String())
	return r.t.updateResult(n.ID, c, err)
}

func (r *NoteRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *NoteRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
