package models

import (
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/robfig/cron/v3"
)

// Routine periodically spawns backlog quests. Schedule is a standard
// five-field cron expression.
type Routine struct {
	Base
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Schedule     string     `json:"schedule"`
	EnergyCost   int        `json:"energyCost"`
	Active       bool       `json:"active"`
	NextDue      time.Time  `json:"nextDue"`
	InitiativeID *common.ID `json:"initiativeId,omitempty"`
}

func (*Routine) EntityType() EntityType { return EntityRoutine }

func (r *Routine) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := requireText("title", r.Title, common.MaxQuestTitleLength); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return common.Validation("schedule", err.Error())
	}
	if r.EnergyCost < common.MinEnergyCost || r.EnergyCost > common.MaxEnergyCost {
		return common.Validation("energyCost", "must be between 1 and 5")
	}
	return validateOptionalID("initiativeId", r.InitiativeID)
}

// NextAfter returns the first occurrence of the schedule strictly after t.
func (r *Routine) NextAfter(t time.Time) (time.Time, error) {
	s, err := cron.ParseStandard(r.Schedule)
	if err != nil {
		return time.Time{}, common.Validation("schedule", err.Error())
	}
	return s.Next(t).UTC().Truncate(time.Microsecond), nil
}

// SpawnQuest builds the backlog quest a due routine produces.
func (r *Routine) SpawnQuest(now time.Time) *Quest {
	id := r.ID
	q := &Quest{
		Title:       r.Title,
		Description: r.Description,
		EnergyCost:  r.EnergyCost,
		Status:      QuestBacklog,
		RoutineID:   &id,
		Checkpoints: []Checkpoint{},
	}
	q.UserID = r.UserID
	q.Touch(now)
	return q
}
