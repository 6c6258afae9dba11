package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const itemColumns = `id, user_id, name, description, quantity, location_id, initiative_id,
	created_at, updated_at, deleted_at, version, local_rev`

type ItemRepository struct {
	db dbx.DBTX
	t  table
}

func NewItemRepository(db dbx.DBTX) *ItemRepository {
	return &ItemRepository{db: db, t: table{db: db, name: "items", entity: "item"}}
}

func scanItem(s scanner, rev *int64) (*models.Item, error) {
	var (
		i                    models.Item
		location, initiative sql.NullString
		created, updated     int64
		deleted              sql.NullInt64
	)
	if err := s.Scan(&i.ID, &i.UserID, &i.Name, &i.Description, &i.Quantity, &location, &initiative,
		&created, &updated, &deleted, &i.Version, rev); err != nil {
		return nil, err
	}
	i.LocationID = idPtr(location)
	i.InitiativeID = idPtr(initiative)
	i.CreatedAt = fromMicros(created)
	i.UpdatedAt = fromMicros(updated)
	i.DeletedAt = timePtr(deleted)
	return &i, nil
}

func (r *ItemRepository) list(ctx context.Context, where string, args ...any) ([]*models.Item, error) {
	var rev int64
	items, err := queryAll(ctx, r.db, `SELECT `+itemColumns+` FROM items WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.Item, error) { return scanItem(s, &rev) }, args...)
	if err != nil {
		return nil, storageErr("select item", err)
	}
	return items, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Item, error) {
	items, err := r.list(ctx, `id = ? AND user_id = ? AND deleted_at IS NULL`, id.String(), userID)
	if err != nil {
		return nil, err
	}
	return one(id, "item", items, nil)
}

func (r *ItemRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Item, error) {
	return r.list(ctx, `user_id = ? AND deleted_at IS NULL`, userID)
}

func (r *ItemRepository) ListByLocation(ctx context.Context, userID string, locationID common.ID) ([]*models.Item, error) {
	return r.list(ctx, `user_id = ? AND location_id = ? AND deleted_at IS NULL`, userID, locationID.String())
}

func insertItem(ctx context.Context, db dbx.DBTX, i *models.Item, pending int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO items (id, user_id, name, description, quantity, location_id,
		initiative_id, created_at, updated_at, deleted_at, version, pending) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID.String(), i.UserID, i.Name, i.Description, i.Quantity, nullID(i.LocationID), nullID(i.InitiativeID),
		micros(i.CreatedAt), micros(i.UpdatedAt), nullMicros(i.DeletedAt), i.Version, pending)
	return err
}

func (r *ItemRepository) Create(ctx context.Context, i *models.Item) error {
	if err := insertItem(ctx, r.db, i, 1); err != nil {
		return r.t.insertErr(i.ID, err)
	}
	return nil
}

func (r *ItemRepository) Update(ctx context.Context, i *models.Item) error {
	n, err := dbx.ExecAffected(ctx, r.db, `UPDATE items SET name = ?, description = ?, quantity = ?, location_id = ?,
		initiative_id = ?, updated_at = ?, `+dirty+` WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		i.Name, i.Description, i.Quantity, nullID(i.LocationID), nullID(i.InitiativeID), micros(i.UpdatedAt),
		i.ID.String(), i.UserID)
	return r.t.updateResult(i.ID, n, err)
}

func (r *ItemRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *ItemRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
