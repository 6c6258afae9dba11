package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const inboxColumns = `id, user_id, content, source, attachment_ids,
	created_at, updated_at, deleted_at, version, modified_at`

var inboxSchema = schema{
	name:    "inbox_items",
	entity:  models.EntityInboxItem,
	columns: []string{"content", "source", "attachment_ids"},
	values: func(e models.Entity) ([]any, error) {
		i := e.(*models.InboxItem)
		ids := i.AttachmentIDs
		if ids == nil {
			ids = []common.ID{}
		}
		b, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		return []any{i.Content, string(i.Source), string(b)}, nil
	},
	load: loadAs(scanInbox, inboxColumns, "inbox_items"),
}

// InboxRepository stores captured inbox items.
type InboxRepository struct {
	db dbx.DBTX
	t  table
}

func NewInboxRepository(db dbx.DBTX) *InboxRepository {
	return &InboxRepository{db: db, t: table{db: db, name: "inbox_items", entity: "inbox_item"}}
}

func scanInbox(s scanner, modified *time.Time) (*models.InboxItem, error) {
	var (
		i           models.InboxItem
		attachments []byte
		deleted     sql.NullTime
	)
	if err := s.Scan(&i.ID, &i.UserID, &i.Content, &i.Source, &attachments,
		&i.CreatedAt, &i.UpdatedAt, &deleted, &i.Version, modified); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachments, &i.AttachmentIDs); err != nil {
		return nil, err
	}
	if i.AttachmentIDs == nil {
		i.AttachmentIDs = []common.ID{}
	}
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	i.DeletedAt = timePtr(deleted)
	return &i, nil
}

func (r *InboxRepository) list(ctx context.Context, where string, args ...any) ([]*models.InboxItem, error) {
	var at time.Time
	return queryAll(ctx, r.db, `SELECT `+inboxColumns+` FROM inbox_items WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.InboxItem, error) { return scanInbox(s, &at) }, args...)
}

func (r *InboxRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.InboxItem, error) {
	items, err := r.list(ctx, `id = $1 AND user_id = $2 AND deleted_at IS NULL`, id.String(), userID)
	return one(id, "inbox_item", items, err)
}

func (r *InboxRepository) GetDeleted(ctx context.Context, userID string, id common.ID) (*models.InboxItem, error) {
	items, err := r.list(ctx, `id = $1 AND user_id = $2 AND deleted_at IS NOT NULL`, id.String(), userID)
	return one(id, "inbox_item", items, err)
}

func (r *InboxRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.InboxItem, error) {
	items, err := r.list(ctx, `user_id = $1 AND deleted_at IS NULL`, userID)
	if err != nil {
		return nil, storageErr("select inbox_item", err)
	}
	return items, nil
}

func (r *InboxRepository) ListBySource(ctx context.Context, userID string, source models.CaptureSource) ([]*models.InboxItem, error) {
	items, err := r.list(ctx, `user_id = $1 AND source = $2 AND deleted_at IS NULL`, userID, string(source))
	if err != nil {
		return nil, storageErr("select inbox_item", err)
	}
	return items, nil
}

func (r *InboxRepository) Create(ctx context.Context, i *models.InboxItem) error {
	if err := inboxSchema.insert(ctx, r.db, i, i.UpdatedAt); err != nil {
		return r.t.insertErr(i.ID, err)
	}
	return nil
}

// AddAttachment appends attachmentID unless it is already referenced.
func (r *InboxRepository) AddAttachment(ctx context.Context, userID string, id, attachmentID common.ID, now time.Time) error {
	n, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE inbox_items
		SET attachment_ids = attachment_ids || to_jsonb($3::text), updated_at = $1, `+written+`
		WHERE id = $4 AND user_id = $2 AND deleted_at IS NULL AND NOT attachment_ids ? $3`,
		ts(now), userID, attachmentID.String(), id.String())
	if err != nil {
		return storageErr("update inbox_item", err)
	}
	if n > 0 {
		return nil
	}
	ok, err := r.t.exists(ctx, r.db, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return common.NotFound("inbox_item", id)
	}
	return nil
}

func (r *InboxRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *InboxRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
