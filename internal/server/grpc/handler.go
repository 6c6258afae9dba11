package grpc

import (
	"context"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/rpc"
	"github.com/dmitrijs2005/altair/internal/server/metrics"
)

func (s *GRPCServer) userID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", common.AuthError(common.ReasonUnauthorized, "not authenticated")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *rpc.Empty) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) Register(ctx context.Context, req *rpc.Credentials) (*rpc.RegisterResponse, error) {
	u, err := s.deps.Users.Register(ctx, req.UserName, req.Password)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Registered", "user_id", u.ID)
	return &rpc.RegisterResponse{UserID: u.ID}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.Credentials) (*rpc.TokenPair, error) {
	tokens, err := s.deps.Users.Login(ctx, req.UserName, req.Password)
	if err != nil {
		return nil, err
	}
	return &rpc.TokenPair{UserID: tokens.UserID, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *rpc.RefreshRequest) (*rpc.TokenPair, error) {
	tokens, err := s.deps.Users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &rpc.TokenPair{UserID: tokens.UserID, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) Pull(ctx context.Context, req *models.PullRequest) (*models.PullResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.deps.Sync.Pull(ctx, userID, *req)
}

func (s *GRPCServer) Push(ctx context.Context, req *models.PushRequest) (*models.PushResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.deps.Sync.Push(ctx, userID, *req)
}

func (s *GRPCServer) Status(ctx context.Context, _ *rpc.Empty) (*models.SyncStatusResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.deps.Sync.Status(ctx, userID)
}

func (s *GRPCServer) Triage(ctx context.Context, req *rpc.TriageRequest) (*rpc.TriageResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.deps.Triage.Triage(ctx, userID, req.ItemID, req.Target)
	s.deps.Metrics.TriageTotal.WithLabelValues(string(req.Target.Kind), metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	return &rpc.TriageResponse{TargetID: id}, nil
}

type questCall func(ctx context.Context, userID string, id common.ID) (*models.Quest, error)

func (s *GRPCServer) quest(ctx context.Context, req *rpc.QuestRequest, to models.QuestStatus, call questCall) (*models.Quest, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	q, err := call(ctx, userID, req.QuestID)
	s.deps.Metrics.QuestTransition.WithLabelValues(string(to), metrics.Result(err)).Inc()
	return q, err
}

func (s *GRPCServer) StartQuest(ctx context.Context, req *rpc.QuestRequest) (*models.Quest, error) {
	return s.quest(ctx, req, models.QuestActive, s.deps.Quests.Start)
}

func (s *GRPCServer) CompleteQuest(ctx context.Context, req *rpc.QuestRequest) (*models.Quest, error) {
	return s.quest(ctx, req, models.QuestCompleted, s.deps.Quests.Complete)
}

func (s *GRPCServer) AbandonQuest(ctx context.Context, req *rpc.QuestRequest) (*models.Quest, error) {
	return s.quest(ctx, req, models.QuestAbandoned, s.deps.Quests.Abandon)
}

func (s *GRPCServer) BacklogQuest(ctx context.Context, req *rpc.QuestRequest) (*models.Quest, error) {
	return s.quest(ctx, req, models.QuestBacklog, s.deps.Quests.Backlog)
}

// SetDailyBudget defaults the date to today in the server's zone.
func (s *GRPCServer) SetDailyBudget(ctx context.Context, req *rpc.BudgetRequest) (*models.EnergyBudget, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	date := req.Date
	if date == "" {
		date = s.deps.Quests.Today()
	}
	return s.deps.Quests.SetDailyBudget(ctx, userID, date, req.Budget)
}

func (s *GRPCServer) PresignAttachment(ctx context.Context, req *rpc.PresignRequest) (*rpc.PresignResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	up, err := s.deps.Attachments.PresignUpload(ctx, userID, req.InboxItemID, req.ContentType)
	if err != nil {
		return nil, err
	}
	return &rpc.PresignResponse{AttachmentID: up.AttachmentID, URL: up.URL, ExpiresAt: up.ExpiresAt}, nil
}
