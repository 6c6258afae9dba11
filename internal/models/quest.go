package models

import (
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
)

type QuestStatus string

const (
	QuestBacklog   QuestStatus = "BACKLOG"
	QuestActive    QuestStatus = "ACTIVE"
	QuestCompleted QuestStatus = "COMPLETED"
	QuestAbandoned QuestStatus = "ABANDONED"
)

func (s QuestStatus) Valid() bool {
	switch s {
	case QuestBacklog, QuestActive, QuestCompleted, QuestAbandoned:
		return true
	}
	return false
}

var questTransitions = map[QuestStatus][]QuestStatus{
	QuestBacklog:   {QuestActive},
	QuestActive:    {QuestCompleted, QuestAbandoned, QuestBacklog},
	QuestCompleted: {QuestBacklog},
	QuestAbandoned: {QuestBacklog},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to QuestStatus) bool {
	for _, s := range questTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Quest is a unit of work with an energy cost.
type Quest struct {
	Base
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	EnergyCost  int          `json:"energyCost"`
	Status      QuestStatus  `json:"status"`
	EpicID      *common.ID   `json:"epicId,omitempty"`
	RoutineID   *common.ID   `json:"routineId,omitempty"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Checkpoint is an ordered sub-step of a quest.
type Checkpoint struct {
	ID          common.ID  `json:"id"`
	QuestID     common.ID  `json:"questId"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	Order       int        `json:"order"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (*Quest) EntityType() EntityType { return EntityQuest }

func (q *Quest) Validate() error {
	if err := q.validate(); err != nil {
		return err
	}
	if err := requireText("title", q.Title, common.MaxQuestTitleLength); err != nil {
		return err
	}
	if q.EnergyCost < common.MinEnergyCost || q.EnergyCost > common.MaxEnergyCost {
		return common.Validation("energyCost", "must be between 1 and 5")
	}
	if !q.Status.Valid() {
		return common.Validation("status", "unknown status")
	}
	if err := validateOptionalID("epicId", q.EpicID); err != nil {
		return err
	}
	if err := validateOptionalID("routineId", q.RoutineID); err != nil {
		return err
	}
	seen := make(map[common.ID]struct{}, len(q.Checkpoints))
	for _, cp := range q.Checkpoints {
		if err := cp.Validate(); err != nil {
			return err
		}
		if cp.QuestID != q.ID {
			return common.Validation("checkpoints", "belongs to another quest")
		}
		if _, dup := seen[cp.ID]; dup {
			return common.Validation("checkpoints", "duplicate checkpoint id")
		}
		seen[cp.ID] = struct{}{}
	}
	return nil
}

func (c *Checkpoint) Validate() error {
	if _, err := common.ParseID(c.ID.String()); err != nil {
		return common.Validation("checkpoint.id", "malformed identifier")
	}
	if err := requireText("checkpoint.title", c.Title, common.MaxQuestTitleLength); err != nil {
		return err
	}
	if c.Order < 0 {
		return common.Validation("checkpoint.order", "must not be negative")
	}
	return nil
}
