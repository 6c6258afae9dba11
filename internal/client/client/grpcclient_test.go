package client

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/rpc"
)

/*************
 * Fake server
 *************/

type fakeServer struct {
	rpc.AltairServer

	refreshes atomic.Int32
	lastToken atomic.Value
}

func tokenOf(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (f *fakeServer) Ping(ctx context.Context, _ *rpc.Empty) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

func (f *fakeServer) Login(ctx context.Context, c *rpc.Credentials) (*rpc.TokenPair, error) {
	if c.Password != "right-password" {
		return nil, rpc.ServerError(ctx, common.AuthError(common.ReasonInvalidCredentials, "invalid user name or password"))
	}
	return &rpc.TokenPair{UserID: "u1", AccessToken: "old", RefreshToken: "r1"}, nil
}

func (f *fakeServer) RefreshToken(ctx context.Context, r *rpc.RefreshRequest) (*rpc.TokenPair, error) {
	f.refreshes.Add(1)
	if r.RefreshToken != "r1" {
		return nil, rpc.ServerError(ctx, common.AuthError(common.ReasonUnauthorized, "unknown refresh token"))
	}
	return &rpc.TokenPair{UserID: "u1", AccessToken: "new", RefreshToken: "r2"}, nil
}

func (f *fakeServer) Status(ctx context.Context, _ *rpc.Empty) (*models.SyncStatusResponse, error) {
	tok := tokenOf(ctx)
	f.lastToken.Store(tok)
	if tok != "new" {
		return nil, rpc.ServerError(ctx, common.AuthError(common.ReasonTokenExpired, "token expired"))
	}
	return &models.SyncStatusResponse{UserID: "u1"}, nil
}

func (f *fakeServer) StartQuest(ctx context.Context, r *rpc.QuestRequest) (*models.Quest, error) {
	return nil, rpc.ServerError(ctx, common.WipLimitExceeded("q-active", 1, 1))
}

func newTestClient(t *testing.T) (*GRPCClient, *fakeServer) {
	t.Helper()
	fake := &fakeServer{}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterAltairServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewAltairClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fake
}

func TestLogin_StoresTokens(t *testing.T) {
	c, _ := newTestClient(t)

	var saved []Tokens
	c.OnTokens = func(tk Tokens) { saved = append(saved, tk) }

	_, err := c.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.False(t, c.LoggedIn())

	tk, err := c.Login(context.Background(), "alice", "right-password")
	require.NoError(t, err)
	assert.Equal(t, Tokens{UserID: "u1", AccessToken: "old", RefreshToken: "r1"}, tk)
	assert.True(t, c.LoggedIn())
	assert.Len(t, saved, 1)
}

func TestExpiredAccessTokenIsRefreshedOnce(t *testing.T) {
	c, fake := newTestClient(t)
	var saved []Tokens
	c.OnTokens = func(tk Tokens) { saved = append(saved, tk) }
	c.SetTokens(Tokens{UserID: "u1", AccessToken: "old", RefreshToken: "r1"})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, int32(1), fake.refreshes.Load())
	assert.Equal(t, "new", fake.lastToken.Load())
	assert.Equal(t, "r2", c.Tokens().RefreshToken)
	require.Len(t, saved, 1)
	assert.Equal(t, "new", saved[0].AccessToken)
}

func TestRefreshFailureSurfaces(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetTokens(Tokens{UserID: "u1", AccessToken: "old", RefreshToken: "revoked"})

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestCallsNeedSession(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = c.Pull(context.Background(), models.PullRequest{Type: models.EntityQuest})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTypedErrorsAreRebuilt(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetTokens(Tokens{UserID: "u1", AccessToken: "new", RefreshToken: "r2"})

	_, err := c.Quest(context.Background(), models.QuestActive, "q2")
	require.ErrorIs(t, err, common.ErrWipLimitExceeded)

	_, err = c.Quest(context.Background(), "FROZEN", "q2")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Ping(context.Background()))
}

func TestUnreachableServerIsConnectionFailure(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	require.NoError(t, lis.Close())
	c, err := NewAltairClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = c.Ping(ctx)
	assert.True(t, common.IsRetryable(err), "got %v", err)
}
