package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/triage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestCodecIsRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)

	in := &TriageRequest{ItemID: common.NewID(), Target: triage.Target{Kind: triage.KindNote, Note: &models.Note{Title: "x"}}}
	b, err := c.Marshal(in)
	require.NoError(t, err)
	var out TriageRequest
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, in.ItemID, out.ItemID)
	require.NotNil(t, out.Target.Note)
	assert.Nil(t, out.Target.Quest)
}

func TestCode(t *testing.T) {
	id := common.NewID()
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.NotFound("quest", id), codes.NotFound},
		{common.Validation("title", "required"), codes.InvalidArgument},
		{common.Duplicate("user", id), codes.AlreadyExists},
		{common.WipLimitExceeded(id, 1, 1), codes.FailedPrecondition},
		{common.AuthError(common.ReasonAccountDisabled, "disabled"), codes.PermissionDenied},
		{common.AuthError(common.ReasonTokenExpired, "expired"), codes.Unauthenticated},
		{common.Storage("x", errors.New("y")), codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), "%v", tt.err)
	}
}

func TestClientError_PrefersTrailer(t *testing.T) {
	id := common.NewID()
	sent := common.WipLimitExceeded(id, 1, 1)
	b, err := json.Marshal(sent)
	require.NoError(t, err)
	md := metadata.Pairs(common.ErrorTrailerName, string(b))

	got := ClientError(status.Error(codes.FailedPrecondition, sent.Message), md)
	require.ErrorIs(t, got, common.ErrWipLimitExceeded)
	var ce *common.Error
	require.ErrorAs(t, got, &ce)
	assert.Equal(t, id.String(), ce.EntityID)
	assert.Equal(t, 1, ce.Limit)
}

func TestClientError_FallsBackToCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unavailable, common.ErrConnectionFailed},
		{codes.DeadlineExceeded, common.ErrTimeout},
		{codes.Unauthenticated, common.ErrUnauthorized},
		{codes.PermissionDenied, common.ErrAccountDisabled},
		{codes.NotFound, common.ErrNotFound},
		{codes.Internal, common.ErrServerError},
	}
	for _, tt := range tests {
		got := ClientError(status.Error(tt.code, "x"), nil)
		assert.ErrorIs(t, got, tt.want, "code %s", tt.code)
	}
	assert.NoError(t, ClientError(nil, nil))
}

func TestServerError_HidesCause(t *testing.T) {
	err := ServerError(context.Background(), common.Storage("push note", errors.New("pq: password authentication failed")))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unavailable, st.Code())
	assert.NotContains(t, st.Message(), "password")

	st, _ = status.FromError(ServerError(context.Background(), errors.New("secret detail")))
	assert.Equal(t, "internal error", st.Message())
}
