package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/rpc"
	"github.com/dmitrijs2005/altair/internal/syncer"
	"github.com/dmitrijs2005/altair/internal/triage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// DefaultCallTimeout bounds calls whose context carries no deadline.
const DefaultCallTimeout = 15 * time.Second

// Tokens is the session a client holds.
type Tokens struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *rpc.Client

	mu     sync.Mutex
	tokens Tokens

	// OnTokens is called after login and after every refresh.
	OnTokens func(Tokens)
}

var _ syncer.Remote = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// call invokes once and converts the failure into a typed error.
func call(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	var trailer metadata.MD
	opts = append(opts, grpc.Trailer(&trailer))
	if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
		return rpc.ClientError(err, trailer)
	}
	return nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	if rpc.PublicMethods[method] {
		return call(ctx, method, req, reply, cc, invoker, opts...)
	}

	tokens := s.Tokens()
	err := call(withAccessToken(ctx, tokens.AccessToken), method, req, reply, cc, invoker, opts...)
	if !errors.Is(err, common.ErrTokenExpired) || tokens.RefreshToken == "" {
		return err
	}

	if err := s.refresh(ctx, tokens.RefreshToken); err != nil {
		return err
	}

	// tokens refreshed, retrying with the new access token
	return call(withAccessToken(ctx, s.Tokens().AccessToken), method, req, reply, cc, invoker, opts...)
}

// refresh rotates the session unless a concurrent call already did.
func (s *GRPCClient) refresh(ctx context.Context, used string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens.RefreshToken != used {
		return nil
	}
	resp, err := s.client.RefreshToken(ctx, &rpc.RefreshRequest{RefreshToken: used})
	if err != nil {
		return err
	}
	s.tokens = Tokens{UserID: resp.UserID, AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if s.OnTokens != nil {
		s.OnTokens(s.tokens)
	}
	return nil
}

// NewAltairClient dials endpointURL lazily; no I/O happens until the first call.
func NewAltairClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(extra ...grpc.DialOption) error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		rpc.CallOption(),
	}, extra...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Tokens() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// SetTokens restores a persisted session.
func (s *GRPCClient) SetTokens(t Tokens) {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
}

func (s *GRPCClient) LoggedIn() bool { return s.Tokens().AccessToken != "" }

func (s *GRPCClient) Register(ctx context.Context, userName, password string) (string, error) {
	resp, err := s.client.Register(ctx, &rpc.Credentials{UserName: userName, Password: password})
	if err != nil {
		return "", err
	}
	return resp.UserID, nil
}

func (s *GRPCClient) Login(ctx context.Context, userName, password string) (Tokens, error) {
	resp, err := s.client.Login(ctx, &rpc.Credentials{UserName: userName, Password: password})
	if err != nil {
		return Tokens{}, err
	}
	t := Tokens{UserID: resp.UserID, AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	s.SetTokens(t)
	if s.OnTokens != nil {
		s.OnTokens(t)
	}
	return t, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &rpc.Empty{})
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return common.ServerError(0, "unexpected ping status "+resp.Status)
	}
	return nil
}

func (s *GRPCClient) authed() error {
	if !s.LoggedIn() {
		return ErrNotLoggedIn
	}
	return nil
}

func (s *GRPCClient) Pull(ctx context.Context, req models.PullRequest) (*models.PullResponse, error) {
	if err := s.authed(); err != nil {
		return nil, err
	}
	return s.client.Pull(ctx, &req)
}

func (s *GRPCClient) Push(ctx context.Context, req models.PushRequest) (*models.PushResponse, error) {
	if err := s.authed(); err != nil {
		return nil, err
	}
	return s.client.Push(ctx, &req)
}

func (s *GRPCClient) Status(ctx context.Context) (*models.SyncStatusResponse, error) {
	if err := s.authed(); err != nil {
		return nil, err
	}
	return s.client.Status(ctx, &rpc.Empty{})
}

func (s *GRPCClient) Triage(ctx context.Context, itemID common.ID, target triage.Target) (common.ID, error) {
	if err := s.authed(); err != nil {
		return "", err
	}
	resp, err := s.client.Triage(ctx, &rpc.TriageRequest{ItemID: itemID, Target: target})
	if err != nil {
		return "", err
	}
	return resp.TargetID, nil
}

// Quest runs a lifecycle transition on the server: one of StartQuest,
// CompleteQuest, AbandonQuest or BacklogQuest.
func (s *GRPCClient) Quest(ctx context.Context, to models.QuestStatus, id common.ID) (*models.Quest, error) {
	if err := s.authed(); err != nil {
		return nil, err
	}
	req := &rpc.QuestRequest{QuestID: id}
	switch to {
	case models.QuestActive:
		return s.client.StartQuest(ctx, req)
	case models.QuestCompleted:
		return s.client.CompleteQuest(ctx, req)
	case models.QuestAbandoned:
		return s.client.AbandonQuest(ctx, req)
	case models.QuestBacklog:
		return s.client.BacklogQuest(ctx, req)
	}
	return nil, common.Validation("status", "unknown quest status "+string(to))
}

func (s *GRPCClient) SetDailyBudget(ctx context.Context, date string, budget int) (*models.EnergyBudget, error) {
	if err := s.authed(); err != nil {
		return nil, err
	}
	return s.client.SetDailyBudget(ctx, &rpc.BudgetRequest{Date: date, Budget: budget})
}

func (s *GRPCClient) PresignAttachment(ctx context.Context, inboxItemID common.ID, contentType string) (*rpc.PresignResponse, error) {
	if err := s.authed(); err != nil {
		return nil, err
	}
	return s.client.PresignAttachment(ctx, &rpc.PresignRequest{InboxItemID: inboxItemID, ContentType: contentType})
}
