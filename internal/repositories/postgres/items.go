package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/models"
)

const itemColumns = `id, user_id, name, description, quantity, location_id, initiative_id,
	created_at, updated_at, deleted_at, version, modified_at`

var itemSchema = schema{
	name:    "items",
	entity:  models.EntityItem,
	columns: []string{"name", "description", "quantity", "location_id", "initiative_id"},
	values: func(e models.Entity) ([]any, error) {
		i := e.(*models.Item)
		return []any{i.Name, i.Description, i.Quantity, nullID(i.LocationID), nullID(i.InitiativeID)}, nil
	},
	load: loadAs(scanItem, itemColumns, "items"),
}

type ItemRepository struct {
	db dbx.DBTX
	t  table
}

func NewItemRepository(db dbx.DBTX) *ItemRepository {
	return &ItemRepository{db: db, t: table{db: db, name: "items", entity: "item"}}
}

func scanItem(s scanner, modified *time.Time) (*models.Item, error) {
	var (
		i                    models.Item
		location, initiative sql.NullString
		deleted              sql.NullTime
	)
	if err := s.Scan(&i.ID, &i.UserID, &i.Name, &i.Description, &i.Quantity, &location, &initiative,
		&i.CreatedAt, &i.UpdatedAt, &deleted, &i.Version, modified); err != nil {
		return nil, err
	}
	i.LocationID = idPtr(location)
	i.InitiativeID = idPtr(initiative)
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	i.DeletedAt = timePtr(deleted)
	return &i, nil
}

func (r *ItemRepository) list(ctx context.Context, where string, args ...any) ([]*models.Item, error) {
	var at time.Time
	items, err := queryAll(ctx, r.db, `SELECT `+itemColumns+` FROM items WHERE `+where+` ORDER BY created_at, id`,
		func(s scanner) (*models.Item, error) { return scanItem(s, &at) }, args...)
	if err != nil {
		return nil, storageErr("select item", err)
	}
	return items, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, userID string, id common.ID) (*models.Item, error) {
	items, err := r.list(ctx, `id = $1 AND user_id = $2 AND deleted_at IS NULL`, id.String(), userID)
	if err != nil {
		return nil, err
	}
	return one(id, "item", items, nil)
}

func (r *ItemRepository) GetAllForUser(ctx context.Context, userID string) ([]*models.Item, error) {
	return r.list(ctx, `user_id = $1 AND deleted_at IS NULL`, userID)
}

func (r *ItemRepository) ListByLocation(ctx context.Context, userID string, locationID common.ID) ([]*models.Item, error) {
	return r.list(ctx, `user_id = $1 AND location_id = $2 AND deleted_at IS NULL`, userID, locationID.String())
}

func (r *ItemRepository) Create(ctx context.Context, i *models.Item) error {
	if err := itemSchema.insert(ctx, r.db, i, i.UpdatedAt); err != nil {
		return r.t.insertErr(i.ID, err)
	}
	return nil
}

func (r *ItemRepository) Update(ctx context.Context, i *models.Item) error {
	n, err := dbx.ExecAffected(ctx, r.db, stamp+`UPDATE items SET name = $3, description = $4, quantity = $5,
		location_id = $6, initiative_id = $7, updated_at = $1, `+written+`
		WHERE id = $8 AND user_id = $2 AND deleted_at IS NULL`,
		ts(i.UpdatedAt), i.UserID, i.Name, i.Description, i.Quantity, nullID(i.LocationID), nullID(i.InitiativeID),
		i.ID.String())
	return r.t.updateResult(i.ID, n, err)
}

func (r *ItemRepository) SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.softDelete(ctx, userID, id, now)
}

func (r *ItemRepository) Restore(ctx context.Context, userID string, id common.ID, now time.Time) error {
	return r.t.restore(ctx, userID, id, now)
}
