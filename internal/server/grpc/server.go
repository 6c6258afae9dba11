// Package grpc serves the altair.v1.Altair service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/rpc"
	"github.com/dmitrijs2005/altair/internal/server/metrics"
	"github.com/dmitrijs2005/altair/internal/server/services"
	"github.com/dmitrijs2005/altair/internal/triage"
	"google.golang.org/grpc"
)

type UserService interface {
	Register(ctx context.Context, userName, password string) (*models.User, error)
	Login(ctx context.Context, userName, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

type SyncService interface {
	Pull(ctx context.Context, userID string, req models.PullRequest) (*models.PullResponse, error)
	Push(ctx context.Context, userID string, req models.PushRequest) (*models.PushResponse, error)
	Status(ctx context.Context, userID string) (*models.SyncStatusResponse, error)
}

type TriageService interface {
	Triage(ctx context.Context, userID string, itemID common.ID, target triage.Target) (common.ID, error)
}

type QuestService interface {
	Start(ctx context.Context, userID string, id common.ID) (*models.Quest, error)
	Complete(ctx context.Context, userID string, id common.ID) (*models.Quest, error)
	Abandon(ctx context.Context, userID string, id common.ID) (*models.Quest, error)
	Backlog(ctx context.Context, userID string, id common.ID) (*models.Quest, error)
	SetDailyBudget(ctx context.Context, userID, date string, budget int) (*models.EnergyBudget, error)
	Today() string
}

type AttachmentService interface {
	PresignUpload(ctx context.Context, userID string, inboxItemID common.ID, contentType string) (*services.PresignedUpload, error)
}

// Deps are the services behind the RPC surface.
type Deps struct {
	Users       UserService
	Sync        SyncService
	Triage      TriageService
	Quests      QuestService
	Attachments AttachmentService
	Metrics     *metrics.Metrics
}

type GRPCServer struct {
	address string
	logger  logging.Logger
	deps    Deps
}

var _ rpc.AltairServer = (*GRPCServer)(nil)

func NewGRPCServer(address string, l logging.Logger, deps Deps) *GRPCServer {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &GRPCServer{
		address: address,
		logger:  l.With("module", "grpc_server"),
		deps:    deps,
	}
}

// NewServer builds the grpc.Server with interceptors and the service
// registered, ready to Serve on any listener.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.observeInterceptor,
		s.errorInterceptor,
		s.accessTokenInterceptor,
	))
	rpc.RegisterAltairServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
