package sqlite

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
	created_at, updated_at, deleted_at, version, local_rev`

// InboxRepository stores captured inbox items.
type InboxRepository struct {
	db dbx.DBTX
	t  table
}

func NewInboxRepository(db dbx.DBTX) *InboxRepository {
	return &InboxRepository{db: db, t: table{db: db, name: "inbox_items", entity: "inbox_item"}}
}

func scanInbox(s scanner, rev *int64) (*models.InboxItem, error) {
	var (
		i           models.InboxItem
		attachments string
		created     int64
		updated     int64
		deleted     sql.NullInt64
	)
	if err := s.Scan(&i.ID, &i.UserID, &i.Content, &i.Source, &attachments,
		&created, &updated, &deleted, &i.Version, rev); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attachments), &i.AttachmentIDs); err != nil {
		return nil, err
	}
	if i.AttachmentIDs == nil {
		i.AttachmentIDs = []common.ID{}
	}
	i.CreatedAt = fromMicros(created)
	i.UpdatedAt = fromMicros(updated)
	i.DeletedAt = timePtr(deleted)
	return &i, nil
}

func (r *InboxRepository) list(ctx context.Context, where string, args ...any) ([]*models.InboxItem, error) {
	var rev int64
	return queryAll(ctx, r.db, `SELECT `+inboxColumns+` FROM inbox_items WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.InboxItem, error) { return scanInbox(s, &rev) }, args...)
}

func (r *InboxRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.InboxItem, error) {
	items, err := r.list(ctx, `id = ? AND user_id = ? AND deleted_at IS NULL`, id.String(), userID)
	return one(id, "inbox_item", items, err)
}

func (r *InboxRepository) GetDeleted(ctx context.Context, userID string, id common.ID) (*models.InboxItem, error) {
	items, err := r.list(ctx, `id = ? AND user_id = ? AND deleted_at IS NOT NULL`, id.String(), userID)
	return one(id, "inbox_item", items, err)
}

func (r *InboxRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.InboxItem, error) {
	items, err := r.list(ctx, `user_id = ? AND deleted_at IS NULL`, userID)
	if err != nil {
		return nil, storageErr("select inbox_item", err)
	}
	return items, nil
}

func (r *InboxRepository) ListBySource(ctx context.Context, userID string, source models.CaptureSource) ([]*models.InboxItem, error) {
	items, err := r.list(ctx, `user_id = ? AND source = ? AND deleted_at IS NULL`, userID, string(source))
	if err != nil {
		return nil, storageErr("select inbox_item", err)
	}
	return items, nil
}

func insertInbox(ctx context.Context, db dbx.DBTX, i *models.InboxItem, pending int) error {
	attachments, err := json.Marshal(nonNilIDs(i.AttachmentIDs))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO inbox_items (id, user_id, content, source, attachment_ids,
		created_at, updated_at, deleted_at, version, pending) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID.String(), i.UserID, i.Content, string(i.Source), string(attachments),
		micros(i.CreatedAt), micros(i.UpdatedAt), nullMicros(i.DeletedAt), i.Version, pending)
	return err
}

func (r *InboxRepository) Create(ctx context.Context, i *models.InboxItem) error {
	if err := insertInbox(ctx, r.db, i, 1); err != nil {
		return r.t.insertErr(i.ID, err)
	}
	return nil
}

func (r *InboxRepository) AddAttachment(ctx context.Context, userID string, id, attachmentID common.ID, now time.Time) error {
	item, err := r.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if !item.AddAttachment(attachmentID) {
		return nil
	}
	attachments, err := json.Marshal(item.AttachmentIDs)
	if err != nil {
		return err
	}
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE inbox_items SET attachment_ids = ?, updated_at = ?, `+dirty+`
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		string(attachments), micros(now), id.String(), userID)
	return r.t.updateResult(id, n, err)
}

func (r *InboxRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *InboxRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}

func nonNilIDs(ids []common.ID) []common.ID {
	if ids == nil {
		return []common.ID{}
	}
	return ids
}
