package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const sourceColumns = `id, user_id, title, source_type, uri, excerpt, folder_id, initiative_id,
	created_at, updated_at, deleted_at, version, local_rev`

type SourceDocumentRepository struct {
	db dbx.DBTX
	t  table
}

func NewSourceDocumentRepository(db dbx.DBTX) *SourceDocumentRepository {
	return &SourceDocumentRepository{db: db, t: table{db: db, name: "source_documents", entity: "source_document"}}
}

func scanSource(s scanner, rev *int64) (*models.SourceDocument, error) {
	var (
		d                  models.SourceDocument
		folder, initiative sql.NullString
		created, updated   int64
		deleted            sql.NullInt64
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.Title, &d.SourceType, &d.URI, &d.Excerpt, &folder, &initiative,
		&created, &updated, &deleted, &d.Version, rev); err != nil {
		return nil, err
	}
	d.FolderID = idPtr(folder)
	d.InitiativeID = idPtr(initiative)
	d.CreatedAt = fromMicros(created)
	d.UpdatedAt = fromMicros(updated)
	d.DeletedAt = timePtr(deleted)
	return &d, nil
}

func (r *SourceDocumentRepository) list(ctx context.Context, where string, args ...any) ([]*models.SourceDocument, error) {
	var rev int64
	docs, err := queryAll(ctx, r.db, `SELECT `+sourceColumns+` FROM source_documents WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.SourceDocument, error) { return scanSource(s, &rev) }, args...)
	if err != nil {
		return nil, storageErr("select source_document", err)
	}
	return docs, nil
}

func (r *SourceDocumentRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.SourceDocument, error) {
	docs, err := r.list(ctx, `id = ? AND user_id = ? AND deleted_at IS NULL`, id.String(), userID)
	if err != nil {
		return nil, err
	}
	return one(id, "source_document", docs, nil)
}

func (r *SourceDocumentRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.SourceDocument, error) {
	return r.list(ctx, `user_id = ? AND deleted_at IS NULL`, userID)
}

func (r *SourceDocumentRepository) ListByType(ctx context.Context, userID string, t models.SourceType) ([]*models.SourceDocument, error) {
	return r.list(ctx, `user_id = ? AND source_type = ? AND deleted_at IS NULL`, userID, string(t))
}

func insertSource(ctx context.Context, db dbx.DBTX, d *models.SourceDocument, pending int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO source_documents (id, user_id, title, source_type, uri, excerpt,
		folder_id, initiative_id, created_at, updated_at, deleted_at, version, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.UserID, d.Title, string(d.SourceType), d.URI, d.Excerpt, nullID(d.FolderID), nullID(d.InitiativeID),
		micros(d.CreatedAt), micros(d.UpdatedAt), nullMicros(d.DeletedAt), d.Version, pending)
	return err
}

func (r *SourceDocumentRepository) Create(ctx context.Context, d *models.SourceDocument) error {
	if err := insertSource(ctx, r.db, d, 1); err != nil {
		return r.t.insertErr(d.ID, err)
	}
	return nil
}

func (r *SourceDocumentRepository) Update(ctx context.Context, d *models.SourceDocument) error {
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE source_documents SET title = ?, source_type = ?, uri = ?, excerpt = ?,
		folder_id = ?, initiative_id = ?, updated_at = ?, `+dirty+` WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		d.Title, string(d.SourceType), d.URI, d.Excerpt, nullID(d.FolderID), nullID(d.InitiativeID), micros(d.UpdatedAt),
		d.ID.String(), d.UserID)
	return r.t.updateResult(d.ID, n, err)
}

func (r *SourceDocumentRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *SourceDocumentRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
