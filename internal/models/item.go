package models

import (
	"github.com/dmitrijs2005/altair/internal/common"
)

// Item is a tracked physical possession.
type Item struct {
	Base
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Quantity     int        `json:"quantity"`
	LocationID   *common.ID `json:"locationId,omitempty"`
	InitiativeID *common.ID `json:"initiativeId,omitempty"`
}

func (*Item) EntityType() EntityType { return EntityItem }

func (i *Item) Validate() error {
	if err := i.validate(); err != nil {
		return err
	}
	if err := requireText("name", i.Name, 500); err != nil {
		return err
	}
	if i.Quantity < 0 {
		return common.Validation("quantity", "must not be negative")
	}
	if err := validateOptionalID("locationId", i.LocationID); err != nil {
		return err
	}
	return validateOptionalID("initiativeId", i.InitiativeID)
}
