// Package quest implements the quest lifecycle: one ACTIVE quest per user
// and a daily energy budget charged when quests complete.
package quest

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/timex"
)

// Controller drives quest state changes through a store.
type Controller struct {
	store  repositories.Store
	clock  timex.Clock
	logger logging.Logger

	// Location decides which civil date a completion is charged to.
	Location *time.Location
	// DefaultBudget seeds an energy row created by a completion.
	DefaultBudget int
}

func NewController(store repositories.Store, clock timex.Clock, logger logging.Logger) *Controller {
	return &Controller{
		store:         store,
		clock:         clock,
		logger:        logger.With("module", "quest"),
		Location:      time.UTC,
		DefaultBudget: common.DefaultDailyBudget,
	}
}

func (c *Controller) now() time.Time { return timex.Stamp(c.clock.Now()) }

// Today returns the civil date of the controller's clock.
func (c *Controller) Today() string { return timex.DateIn(c.clock.Now(), c.Location) }

// Start activates a BACKLOG quest. It fails with WipLimitExceeded naming the
// active quest when the slot is taken.
func (c *Controller) Start(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	q, err := c.store.Repos().Quests.Activate(ctx, userID, id, c.now())
	if err != nil {
		if errors.Is(err, common.ErrWipLimitExceeded) {
			c.logger.Info(ctx, "start refused", "quest", id, "error", err)
		}
		return nil, err
	}
	c.logger.Info(ctx, "quest started", "quest", id)
	return q, nil
}

// Complete finishes the active quest and charges its energy cost to today's
// budget in the same transaction.
func (c *Controller) Complete(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	now := c.now()
	date := timex.DateIn(now, c.Location)
	var (
		out    *models.Quest
		budget *models.EnergyBudget
	)
	err := c.store.WithinTx(ctx, func(ctx context.Context, r repositories.Repositories) error {
		q, err := r.Quests.Transition(ctx, userID, id, []models.QuestStatus{models.QuestActive}, models.QuestCompleted, now)
		if err != nil {
			return err
		}
		budget, err = r.Energy.AddSpent(ctx, userID, date, q.EnergyCost, c.DefaultBudget, now)
		if err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "quest completed", "quest", id, "date", date, "spent", budget.Spent, "budget", budget.Budget)
	return out, nil
}

// Abandon gives up on the active quest. Energy is not charged.
func (c *Controller) Abandon(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	return c.transition(ctx, userID, id, models.QuestAbandoned, models.QuestActive)
}

// Backlog returns the active quest to the backlog, freeing the slot.
func (c *Controller) Backlog(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	return c.transition(ctx, userID, id, models.QuestBacklog, models.QuestActive)
}

// Reopen moves a finished quest back to the backlog. Energy already
// charged stays charged.
func (c *Controller) Reopen(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	return c.transition(ctx, userID, id, models.QuestBacklog, models.QuestCompleted, models.QuestAbandoned)
}

func (c *Controller) transition(ctx context.Context, userID string, id common.ID, to models.QuestStatus, from ...models.QuestStatus) (*models.Quest, error) {
	q, err := c.store.Repos().Quests.Transition(ctx, userID, id, from, to, c.now())
	if err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "quest moved", "quest", id, "status", to)
	return q, nil
}

func (c *Controller) SetDailyBudget(ctx context.Context, userID, date string, budget int) (*models.EnergyBudget, error) {
	if err := models.ValidateDate(date); err != nil {
		return nil, err
	}
	if err := models.ValidateBudget(budget); err != nil {
		return nil, err
	}
	return c.store.Repos().Energy.SetBudget(ctx, userID, date, budget, c.now())
}

// ResetDailySpent zeroes the spent counter of date.
func (c *Controller) ResetDailySpent(ctx context.Context, userID, date string) (*models.EnergyBudget, error) {
	if err := models.ValidateDate(date); err != nil {
		return nil, err
	}
	e, err := c.store.Repos().Energy.ResetSpent(ctx, userID, date, c.now())
	if err != nil {
		return nil, err
	}
	c.logger.Warn(ctx, "daily spent reset", "date", date)
	return e, nil
}

// Budget returns the energy row of date, or an unsaved default row.
func (c *Controller) Budget(ctx context.Context, userID, date string) (*models.EnergyBudget, error) {
	if err := models.ValidateDate(date); err != nil {
		return nil, err
	}
	e, err := c.store.Repos().Energy.Get(ctx, userID, date)
	if errors.Is(err, common.ErrNotFound) {
		return &models.EnergyBudget{UserID: userID, Date: date, Budget: c.DefaultBudget}, nil
	}
	return e, err
}

func (c *Controller) AddCheckpoint(ctx context.Context, userID string, questID common.ID, title string) (*models.Checkpoint, error) {
	q, err := c.store.Repos().Quests.GetByID(ctx, userID, questID)
	if err != nil {
		return nil, err
	}
	order := 0
	for _, cp := range q.Checkpoints {
		if cp.Order >= order {
			order = cp.Order + 1
		}
	}
	cp := &models.Checkpoint{ID: common.NewID(), QuestID: questID, Title: title, Order: order}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.Repos().Quests.AddCheckpoint(ctx, userID, cp, c.now()); err != nil {
		return nil, err
	}
	return cp, nil
}

// ToggleCheckpoint flips completion of a checkpoint.
func (c *Controller) ToggleCheckpoint(ctx context.Context, userID string, questID, checkpointID common.ID) (*models.Checkpoint, error) {
	q, err := c.store.Repos().Quests.GetByID(ctx, userID, questID)
	if err != nil {
		return nil, err
	}
	for _, cp := range q.Checkpoints {
		if cp.ID == checkpointID {
			return c.store.Repos().Quests.SetCheckpointCompleted(ctx, userID, checkpointID, !cp.Completed, c.now())
		}
	}
	return nil, common.NotFound("checkpoint", checkpointID)
}

func (c *Controller) ReorderCheckpoints(ctx context.Context, userID string, questID common.ID, ids []common.ID) error {
	return c.store.Repos().Quests.ReorderCheckpoints(ctx, userID, questID, ids, c.now())
}

func (c *Controller) DeleteCheckpoint(ctx context.Context, userID string, checkpointID common.ID) error {
	return c.store.Repos().Quests.DeleteCheckpoint(ctx, userID, checkpointID, c.now())
}
