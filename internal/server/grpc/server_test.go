package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/rpc"
	"github.com/dmitrijs2005/altair/internal/server/metrics"
	"github.com/dmitrijs2005/altair/internal/server/services"
	"github.com/dmitrijs2005/altair/internal/triage"
)

// ---- fakes ----

type fakeUsers struct {
	loginErr error
}

func (f *fakeUsers) Register(ctx context.Context, userName, password string) (*models.User, error) {
	return &models.User{ID: "u-" + userName, UserName: userName}, nil
}

func (f *fakeUsers) Login(ctx context.Context, userName, password string) (*services.TokenPair, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.TokenPair{UserID: "u1", AccessToken: "good", RefreshToken: "r1"}, nil
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	return nil, common.AuthError(common.ReasonTokenExpired, "refresh token expired")
}

func (f *fakeUsers) Authenticate(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "good" {
		return "u1", nil
	}
	return "", common.AuthError(common.ReasonTokenExpired, "token expired")
}

type fakeSync struct{ SyncService }

func (fakeSync) Status(ctx context.Context, userID string) (*models.SyncStatusResponse, error) {
	return &models.SyncStatusResponse{UserID: userID}, nil
}

func (fakeSync) Pull(ctx context.Context, userID string, req models.PullRequest) (*models.PullResponse, error) {
	return nil, errors.New("driver exploded: password=hunter2")
}

type fakeTriage struct{}

func (fakeTriage) Triage(ctx context.Context, userID string, itemID common.ID, target triage.Target) (common.ID, error) {
	return "t1", nil
}

type fakeQuests struct {
	QuestService
	budgetDate string
}

func (f *fakeQuests) Start(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	return nil, common.WipLimitExceeded("q-active", 1, 1)
}

func (f *fakeQuests) Complete(ctx context.Context, userID string, id common.ID) (*models.Quest, error) {
	q := &models.Quest{Title: "done", Status: models.QuestCompleted}
	q.ID = id
	q.UserID = userID
	return q, nil
}

func (f *fakeQuests) SetDailyBudget(ctx context.Context, userID, date string, budget int) (*models.EnergyBudget, error) {
	f.budgetDate = date
	return &models.EnergyBudget{UserID: userID, Date: date, Budget: budget}, nil
}

func (f *fakeQuests) Today() string { return "2026-03-02" }

type fakeAttachments struct{}

func (fakeAttachments) PresignUpload(ctx context.Context, userID string, inboxItemID common.ID, contentType string) (*services.PresignedUpload, error) {
	return &services.PresignedUpload{AttachmentID: "a1", URL: "http://s3/put", ExpiresAt: time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)}, nil
}

// ---- harness ----

type harness struct {
	client  *rpc.Client
	quests  *fakeQuests
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, users *fakeUsers) *harness {
	t.Helper()
	h := &harness{quests: &fakeQuests{}, metrics: metrics.New()}
	s := NewGRPCServer("bufnet", logging.Nop(), Deps{
		Users:       users,
		Sync:        fakeSync{},
		Triage:      fakeTriage{},
		Quests:      h.quests,
		Attachments: fakeAttachments{},
		Metrics:     h.metrics,
	})

	lis := bufconn.Listen(1 << 20)
	srv := s.NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		rpc.CallOption(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	h.client = rpc.NewClient(conn)
	return h
}

func authed(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, token)
}

// ---- tests ----

func TestPublicMethodsNeedNoToken(t *testing.T) {
	h := newHarness(t, &fakeUsers{})

	pong, err := h.client.Ping(context.Background(), &rpc.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "OK", pong.Status)

	reg, err := h.client.Register(context.Background(), &rpc.Credentials{UserName: "alice", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, "u-alice", reg.UserID)

	pair, err := h.client.Login(context.Background(), &rpc.Credentials{UserName: "alice", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "good", pair.AccessToken)
}

func TestProtectedMethodsRequireToken(t *testing.T) {
	h := newHarness(t, &fakeUsers{})

	var trailer metadata.MD
	_, err := h.client.Status(context.Background(), &rpc.Empty{}, grpc.Trailer(&trailer))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.ErrorIs(t, rpc.ClientError(err, trailer), common.ErrUnauthorized)

	_, err = h.client.Status(authed("stale"), &rpc.Empty{}, grpc.Trailer(&trailer))
	assert.ErrorIs(t, rpc.ClientError(err, trailer), common.ErrTokenExpired)

	st, err := h.client.Status(authed("good"), &rpc.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "u1", st.UserID)
}

func TestTypedErrorsTravelInTrailer(t *testing.T) {
	h := newHarness(t, &fakeUsers{})

	var trailer metadata.MD
	_, err := h.client.StartQuest(authed("good"), &rpc.QuestRequest{QuestID: "q2"}, grpc.Trailer(&trailer))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	typed := rpc.ClientError(err, trailer)
	require.ErrorIs(t, typed, common.ErrWipLimitExceeded)
	var e *common.Error
	require.True(t, errors.As(typed, &e))
	assert.Equal(t, "q-active", e.EntityID)
	assert.Equal(t, 1, e.Limit)

	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.QuestTransition.WithLabelValues("ACTIVE", "error")))
}

func TestUntypedErrorsAreHidden(t *testing.T) {
	h := newHarness(t, &fakeUsers{})

	_, err := h.client.Pull(authed("good"), &models.PullRequest{Type: models.EntityQuest})
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
	assert.NotContains(t, st.Message(), "hunter2")
}

func TestLoginFailureMapsToUnauthenticated(t *testing.T) {
	h := newHarness(t, &fakeUsers{loginErr: common.AuthError(common.ReasonInvalidCredentials, "invalid user name or password")})

	var trailer metadata.MD
	_, err := h.client.Login(context.Background(), &rpc.Credentials{UserName: "a", Password: "b"}, grpc.Trailer(&trailer))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.ErrorIs(t, rpc.ClientError(err, trailer), common.ErrInvalidCredentials)
}

func TestQuestAndBudgetHandlers(t *testing.T) {
	h := newHarness(t, &fakeUsers{})

	q, err := h.client.CompleteQuest(authed("good"), &rpc.QuestRequest{QuestID: "q1"})
	require.NoError(t, err)
	assert.Equal(t, models.QuestCompleted, q.Status)
	assert.Equal(t, "u1", q.UserID)

	b, err := h.client.SetDailyBudget(authed("good"), &rpc.BudgetRequest{Budget: 7})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", b.Date)
	assert.Equal(t, "2026-03-02", h.quests.budgetDate)
}

func TestTriageAndPresign(t *testing.T) {
	h := newHarness(t, &fakeUsers{})

	resp, err := h.client.Triage(authed("good"), &rpc.TriageRequest{ItemID: "i1", Target: triage.Target{Kind: triage.KindNote}})
	require.NoError(t, err)
	assert.Equal(t, common.ID("t1"), resp.TargetID)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.TriageTotal.WithLabelValues("note", "ok")))

	up, err := h.client.PresignAttachment(authed("good"), &rpc.PresignRequest{InboxItemID: "i1"})
	require.NoError(t, err)
	assert.Equal(t, "http://s3/put", up.URL)
}

func TestRequestsAreCounted(t *testing.T) {
	h := newHarness(t, &fakeUsers{})

	_, _ = h.client.Ping(context.Background(), &rpc.Empty{})
	_, _ = h.client.Status(context.Background(), &rpc.Empty{})

	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.RPCRequests.WithLabelValues("Ping", "OK")))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.RPCRequests.WithLabelValues("Status", "Unauthenticated")))
}
