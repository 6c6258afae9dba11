// Package routines turns due recurring routines into backlog quests on a
// schedule.
package routines

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/server/metrics"
	"github.com/dmitrijs2005/altair/internal/timex"
)

// UserLister yields the accounts whose routines are evaluated.
type UserLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

type Runner struct {
	store     repositories.Store
	users     UserLister
	clock     timex.Clock
	logger    logging.Logger
	metrics   *metrics.Metrics
	scheduler gocron.Scheduler
}

func NewRunner(store repositories.Store, users UserLister, clock timex.Clock, logger logging.Logger, m *metrics.Metrics) *Runner {
	return &Runner{store: store, users: users, clock: clock, logger: logger.With("module", "routines"), metrics: m}
}

// RunOnce spawns one quest for every routine due at the current time and
// moves each routine's next due time past now. Missed occurrences collapse
// into a single quest. A failing routine is logged and skipped.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.users.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	now := timex.Stamp(r.clock.Now())
	spawned := 0
	for _, userID := range ids {
		due, err := r.store.Repos().Routines.ListDue(ctx, userID, now)
		if err != nil {
			r.logger.Error(ctx, "list due routines", "user_id", userID, "error", err)
			continue
		}
		for _, rt := range due {
			if err := r.spawn(ctx, rt, now); err != nil {
				r.logger.Error(ctx, "spawn routine", "user_id", userID, "routine_id", rt.ID, "error", err)
				continue
			}
			spawned++
		}
	}
	if spawned > 0 {
		r.logger.Info(ctx, "routines spawned", "count", spawned)
	}
	return spawned, nil
}

func (r *Runner) spawn(ctx context.Context, rt *models.Routine, now time.Time) error {
	next, err := rt.NextAfter(now)
	if err != nil {
		return err
	}
	err = r.store.WithinTx(ctx, func(ctx context.Context, repos repositories.Repositories) error {
		if err := repos.Quests.Create(ctx, rt.SpawnQuest(now)); err != nil {
			return err
		}
		return repos.Routines.AdvanceNextDue(ctx, rt.UserID, rt.ID, next, now)
	})
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RoutineSpawns.Inc()
	}
	return nil
}

// Start schedules RunOnce every interval until Stop. Overlapping runs are
// skipped rather than queued.
func (r *Runner) Start(ctx context.Context, interval time.Duration) error {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error(ctx, "routine run failed", "error", err)
			}
		}),
		gocron.WithName("routines"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule routines: %w", err)
	}
	r.scheduler = s
	s.Start()
	return nil
}

func (r *Runner) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}
