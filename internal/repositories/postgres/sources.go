package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const sourceColumns = `id, user_id, title, source_type, uri, excerpt, folder_id, initiative_id,
	created_at, updated_at, deleted_at, version, modified_at`

var sourceSchema = schema{
	name:    "source_documents",
	entity:  models.EntitySourceDocument,
	columns: []string{"title", "source_type", "uri", "excerpt", "folder_id", "initiative_id"},
	values: func(e models.Entity) ([]any, error) {
		d := e.(*models.SourceDocument)
		return []any{d.Title, string(d.SourceType), d.URI, d.Excerpt, nullID(d.FolderID), nullID(d.InitiativeID)}, nil
	},
	load: loadAs(scanSource, sourceColumns, "source_documents"),
}

type SourceDocumentRepository struct {
	db dbx.DBTX
	t  table
}

func NewSourceDocumentRepository(db dbx.DBTX) *SourceDocumentRepository {
	return &SourceDocumentRepository{db: db, t: table{db: db, name: "source_documents", entity: "source_document"}}
}

func scanSource(s scanner, modified *time.Time) (*models.SourceDocument, error) {
	var (
		d                  models.SourceDocument
		folder, initiative sql.NullString
		deleted            sql.NullTime
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.Title, &d.SourceType, &d.URI, &d.Excerpt, &folder, &initiative,
		&d.CreatedAt, &d.UpdatedAt, &deleted, &d.Version, modified); err != nil {
		return nil, err
	}
	d.FolderID = idPtr(folder)
	d.InitiativeID = idPtr(initiative)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	d.DeletedAt = timePtr(deleted)
	return &d, nil
}

func (r *SourceDocumentRepository) list(ctx context.Context, where string, args ...any) ([]*models.SourceDocument, error) {
	var at time.Time
	docs, err := queryAll(ctx, r.db, `SELECT `+sourceColumns+` FROM source_documents WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.SourceDocument, error) { return scanSource(s, &at) }, args...)
	if err != nil {
		return nil, storageErr("select source_document", err)
	}
	return docs, nil
}

func (r *SourceDocumentRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.SourceDocument, error) {
	docs, err := r.list(ctx, `id = $1 AND user_id = $2 AND deleted_at IS NULL`, id.String(), userID)
	if err != nil {
		return nil, err
	}
	return one(id, "source_document", docs, nil)
}

func (r *SourceDocumentRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.SourceDocument, error) {
	return r.list(ctx, `user_id = $1 AND deleted_at IS NULL`, userID)
}

func (r *SourceDocumentRepository) ListByType(ctx context.Context, userID string, t models.SourceType) ([]*models.SourceDocument, error) {
	return r.list(ctx, `user_id = $1 AND source_type = $2 AND deleted_at IS NULL`, userID, string(t))
}

func (r *SourceDocumentRepository) Create(ctx context.Context, d *models.SourceDocument) error {
	if err := sourceSchema.insert(ctx, r.db, d, d.UpdatedAt); err != nil {
		return r.t.insertErr(d.ID, err)
	}
	return nil
}

func (r *SourceDocumentRepository) Update(ctx context.Context, d *models.SourceDocument) error {
	n, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE source_documents SET title = $3, source_type = $4, uri = $5,
		excerpt = $6, folder_id = $7, initiative_id = $8, updated_at = $1, `+written+`
		WHERE id = $9 AND user_id = $2 AND deleted_at IS NULL`,
		ts(d.UpdatedAt), d.UserID, d.Title, string(d.SourceType), d.URI, d.Excerpt, nullID(d.FolderID),
		nullID(d.InitiativeID), d.ID.String())
	return r.t.updateResult(d.ID, n, err)
}

func (r *SourceDocumentRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *SourceDocumentRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
