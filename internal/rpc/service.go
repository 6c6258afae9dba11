package rpc

import (
	"context"

	"github.com/dmitrijs2005/altair/internal/models"
	"google.golang.org/grpc"
)

const ServiceName = "altair.v1.Altair"

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// PublicMethods need no access token.
var PublicMethods = map[string]bool{
	FullMethod("Ping"):         true,
	FullMethod("Register"):     true,
	FullMethod("Login"):        true,
	FullMethod("RefreshToken"): true,
}

// AltairServer is implemented by the gRPC server.
type AltairServer interface {
	Ping(context.Context, *Empty) (*PingResponse, error)
	Register(context.Context, *Credentials) (*RegisterResponse, error)
	Login(context.Context, *Credentials) (*TokenPair, error)
	RefreshToken(context.Context, *RefreshRequest) (*TokenPair, error)

	Pull(context.Context, *models.PullRequest) (*models.PullResponse, error)
	Push(context.Context, *models.PushRequest) (*models.PushResponse, error)
	Status(context.Context, *Empty) (*models.SyncStatusResponse, error)

	Triage(context.Context, *TriageRequest) (*TriageResponse, error)
	StartQuest(context.Context, *QuestRequest) (*models.Quest, error)
	CompleteQuest(context.Context, *QuestRequest) (*models.Quest, error)
	AbandonQuest(context.Context, *QuestRequest) (*models.Quest, error)
	BacklogQuest(context.Context, *QuestRequest) (*models.Quest, error)
	SetDailyBudget(context.Context, *BudgetRequest) (*models.EnergyBudget, error)

	PresignAttachment(context.Context, *PresignRequest) (*PresignResponse, error)
}

func unary[Req, Resp any](name string, call func(AltairServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AltairServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AltairServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AltairServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", AltairServer.Ping),
		unary("Register", AltairServer.Register),
		unary("Login", AltairServer.Login),
		unary("RefreshToken", AltairServer.RefreshToken),
		unary("Pull", AltairServer.Pull),
		unary("Push", AltairServer.Push),
		unary("Status", AltairServer.Status),
		unary("Triage", AltairServer.Triage),
		unary("StartQuest", AltairServer.StartQuest),
		unary("CompleteQuest", AltairServer.CompleteQuest),
		unary("AbandonQuest", AltairServer.AbandonQuest),
		unary("BacklogQuest", AltairServer.BacklogQuest),
		unary("SetDailyBudget", AltairServer.SetDailyBudget),
		unary("PresignAttachment", AltairServer.PresignAttachment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "altair/v1/altair.json",
}

func RegisterAltairServer(s grpc.ServiceRegistrar, srv AltairServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the typed client of the service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, "Ping", in, opts...)
}

func (c *Client) Register(ctx context.Context, in *Credentials, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, "Register", in, opts...)
}

func (c *Client) Login(ctx context.Context, in *Credentials, opts ...grpc.CallOption) (*TokenPair, error) {
	return invoke[TokenPair](ctx, c.cc, "Login", in, opts...)
}

func (c *Client) RefreshToken(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*TokenPair, error) {
	return invoke[TokenPair](ctx, c.cc, "RefreshToken", in, opts...)
}

func (c *Client) Pull(ctx context.Context, in *models.PullRequest, opts ...grpc.CallOption) (*models.PullResponse, error) {
	return invoke[models.PullResponse](ctx, c.cc, "Pull", in, opts...)
}

func (c *Client) Push(ctx context.Context, in *models.PushRequest, opts ...grpc.CallOption) (*models.PushResponse, error) {
	return invoke[models.PushResponse](ctx, c.cc, "Push", in, opts...)
}

func (c *Client) Status(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*models.SyncStatusResponse, error) {
	return invoke[models.SyncStatusResponse](ctx, c.cc, "Status", in, opts...)
}

func (c *Client) Triage(ctx context.Context, in *TriageRequest, opts ...grpc.CallOption) (*TriageResponse, error) {
	return invoke[TriageResponse](ctx, c.cc, "Triage", in, opts...)
}

func (c *Client) StartQuest(ctx context.Context, in *QuestRequest, opts ...grpc.CallOption) (*models.Quest, error) {
	return invoke[models.Quest](ctx, c.cc, "StartQuest", in, opts...)
}

func (c *Client) CompleteQuest(ctx context.Context, in *QuestRequest, opts ...grpc.CallOption) (*models.Quest, error) {
	return invoke[models.Quest](ctx, c.cc, "CompleteQuest", in, opts...)
}

func (c *Client) AbandonQuest(ctx context.Context, in *QuestRequest, opts ...grpc.CallOption) (*models.Quest, error) {
	return invoke[models.Quest](ctx, c.cc, "AbandonQuest", in, opts...)
}

func (c *Client) BacklogQuest(ctx context.Context, in *QuestRequest, opts ...grpc.CallOption) (*models.Quest, error) {
	return invoke[models.Quest](ctx, c.cc, "BacklogQuest", in, opts...)
}

func (c *Client) SetDailyBudget(ctx context.Context, in *BudgetRequest, opts ...grpc.CallOption) (*models.EnergyBudget, error) {
	return invoke[models.EnergyBudget](ctx, c.cc, "SetDailyBudget", in, opts...)
}

func (c *Client) PresignAttachment(ctx context.Context, in *PresignRequest, opts ...grpc.CallOption) (*PresignResponse, error) {
	return invoke[PresignResponse](ctx, c.cc, "PresignAttachment", in, opts...)
}
