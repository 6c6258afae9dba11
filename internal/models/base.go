// Package models defines the Altair entities shared by both stores, the
// sync wire types and entity validation.
package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/altair/internal/common"
)

// Base carries the fields every synced entity has.
type Base struct {
	ID        common.ID  `json:"id"`
	UserID    string     `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	Version   int64      `json:"version"`
}

// Meta exposes the shared fields of an entity.
func (b *Base) Meta() *Base { return b }

func (b *Base) IsDeleted() bool { return b.DeletedAt != nil }

// Touch initializes or refreshes timestamps. A fresh entity also gets an ID.
func (b *Base) Touch(now time.Time) {
	if b.ID.IsZero() {
		b.ID = common.NewID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func (b *Base) validate() error {
	if b.ID.IsZero() {
		return common.Validation("id", "required")
	}
	if _, err := common.ParseID(b.ID.String()); err != nil {
		return err
	}
	if b.UserID == "" {
		return common.Validation("userId", "required")
	}
	return nil
}

// Entity is implemented by every synced model.
type Entity interface {
	EntityType() EntityType
	Meta() *Base
	Validate() error
}

func requireText(field, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return common.Validation(field, "required")
	}
	if max > 0 && utf8.RuneCountInString(v) > max {
		return common.Validation(field, "too long")
	}
	return nil
}

func validateOptionalID(field string, id *common.ID) error {
	if id == nil {
		return nil
	}
	if _, err := common.ParseID(id.String()); err != nil {
		return common.Validation(field, "malformed identifier")
	}
	return nil
}
