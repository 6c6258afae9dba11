// Package syncsvc is the server side of the pull/push protocol.
package syncsvc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/server/metrics"
	"github.com/dmitrijs2005/altair/internal/timex"
)

const (
	DefaultPullLimit = 50
	MaxPullLimit     = 100
	MaxPushBatch     = 500
)

// Authority is the remote store's sync surface.
type Authority interface {
	Pull(ctx context.Context, userID string, t models.EntityType, since *time.Time, limit int) (*models.PullResponse, error)
	Push(ctx context.Context, userID string, t models.EntityType, recs []models.SyncRecord, now time.Time) (*models.PushResponse, error)
	Counts(ctx context.Context, userID string) (map[models.EntityType]int, time.Time, error)
}

type Service struct {
	authority Authority
	clock     timex.Clock
	logger    logging.Logger
	metrics   *metrics.Metrics
}

func NewService(a Authority, clock timex.Clock, logger logging.Logger, m *metrics.Metrics) *Service {
	return &Service{authority: a, clock: clock, logger: logger.With("module", "syncsvc"), metrics: m}
}

func checkType(t models.EntityType) error {
	if !t.Valid() {
		return common.Validation("type", "unknown entity type "+string(t))
	}
	return nil
}

// Limit clamps a requested page size.
func Limit(n int) int {
	switch {
	case n <= 0:
		return DefaultPullLimit
	case n > MaxPullLimit:
		return MaxPullLimit
	}
	return n
}

func (s *Service) Pull(ctx context.Context, userID string, req models.PullRequest) (*models.PullResponse, error) {
	if err := checkType(req.Type); err != nil {
		return nil, err
	}
	resp, err := s.authority.Pull(ctx, userID, req.Type, req.Since, Limit(req.Limit))
	if err != nil {
		s.logger.Error(ctx, "pull failed", "user", userID, "type", req.Type, "error", err)
		return nil, err
	}
	s.metrics.PulledRecords.WithLabelValues(string(req.Type)).Add(float64(len(resp.Entities)))
	s.logger.Debug(ctx, "pull", "user", userID, "type", req.Type, "count", len(resp.Entities), "hasMore", resp.HasMore)
	return resp, nil
}

func (s *Service) Push(ctx context.Context, userID string, req models.PushRequest) (*models.PushResponse, error) {
	if err := checkType(req.Type); err != nil {
		return nil, err
	}
	if len(req.Entities) > MaxPushBatch {
		return nil, common.Validation("entities", "batch too large")
	}
	if len(req.Entities) == 0 {
		return &models.PushResponse{Accepted: []common.ID{}, Conflicts: []models.SyncConflict{}}, nil
	}

	now := timex.Stamp(s.clock.Now())
	resp, err := s.authority.Push(ctx, userID, req.Type, req.Entities, now)
	if err != nil {
		s.logger.Error(ctx, "push failed", "user", userID, "type", req.Type, "records", len(req.Entities), "error", err)
		return nil, err
	}
	s.metrics.PushedRecords.WithLabelValues(string(req.Type), "accepted").Add(float64(len(resp.Accepted)))
	s.metrics.PushedRecords.WithLabelValues(string(req.Type), "conflict").Add(float64(len(resp.Conflicts)))
	if len(resp.Conflicts) > 0 {
		s.logger.Info(ctx, "push conflicts", "user", userID, "type", req.Type, "conflicts", len(resp.Conflicts))
	}
	if skew := now.Sub(req.ClientTimestamp); !req.ClientTimestamp.IsZero() && (skew > time.Hour || skew < -time.Hour) {
		s.logger.Warn(ctx, "client clock skew", "user", userID, "skew", skew.String())
	}
	return resp, nil
}

func (s *Service) Status(ctx context.Context, userID string) (*models.SyncStatusResponse, error) {
	counts, stamp, err := s.authority.Counts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.SyncStatusResponse{UserID: userID, ServerTimestamp: stamp, Counts: counts}, nil
}
