package models

import (
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/timex"
)

// EnergyBudget is the per-day energy allowance of a user.
// Spent may exceed Budget; the budget paces, it does not block.
type EnergyBudget struct {
	UserID    string    `json:"userId"`
	Date      string    `json:"date"`
	Budget    int       `json:"budget"`
	Spent     int       `json:"spent"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (e *EnergyBudget) Remaining() int { return e.Budget - e.Spent }

func ValidateBudget(budget int) error {
	if budget < common.MinDailyBudget || budget > common.MaxDailyBudget {
		return common.Validation("budget", "must be between 1 and 10")
	}
	return nil
}

func ValidateDate(date string) error {
	if _, err := time.Parse(timex.DateLayout, date); err != nil {
		return common.Validation("date", "expected YYYY-MM-DD")
	}
	return nil
}
