package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKindAndReason(t *testing.T) {
	id := NewID()

	tests := []struct {
		name    string
		err     error
		match   []error
		noMatch []error
	}{
		{
			name:    "not found",
			err:     NotFound("quest", id),
			match:   []error{ErrNotFound},
			noMatch: []error{ErrValidation, ErrConflict},
		},
		{
			name:    "wip limit",
			err:     WipLimitExceeded(id, 1, 1),
			match:   []error{ErrConflict, ErrWipLimitExceeded},
			noMatch: []error{ErrVersionConflict, ErrDuplicate},
		},
		{
			name:    "version conflict",
			err:     VersionConflict("note", id, 3, 2),
			match:   []error{ErrConflict, ErrVersionConflict},
			noMatch: []error{ErrWipLimitExceeded},
		},
		{
			name:    "timeout",
			err:     Timeout(errors.New("deadline")),
			match:   []error{ErrNetwork, ErrTimeout},
			noMatch: []error{ErrConnectionFailed, ErrStorage},
		},
		{
			name:    "token expired",
			err:     AuthError(ReasonTokenExpired, "expired"),
			match:   []error{ErrAuth, ErrTokenExpired},
			noMatch: []error{ErrUnauthorized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("layer: %w", tt.err)
			for _, m := range tt.match {
				assert.ErrorIs(t, wrapped, m)
			}
			for _, m := range tt.noMatch {
				assert.NotErrorIs(t, wrapped, m)
			}
		})
	}
}

func TestWipLimitExceeded_CarriesActiveQuest(t *testing.T) {
	id := NewID()
	err := fmt.Errorf("start: %w", WipLimitExceeded(id, 1, 1))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, id.String(), e.EntityID)
	assert.Equal(t, 1, e.Current)
	assert.Equal(t, 1, e.Limit)
	assert.Contains(t, e.Error(), id.String())
}

func TestStorage_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage("insert quest", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "disk full")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Storage("x", nil)))
	assert.True(t, IsRetryable(ConnectionFailed(nil)))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", Timeout(nil))))
	assert.False(t, IsRetryable(ServerError(500, "boom")))
	assert.False(t, IsRetryable(WipLimitExceeded(NewID(), 1, 1)))
	assert.False(t, IsRetryable(NotFound("note", NewID())))
	assert.False(t, IsRetryable(Validation("title", "required")))
	assert.False(t, IsRetryable(AuthError(ReasonUnauthorized, "")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestError_JSONRoundTripKeepsMatching(t *testing.T) {
	src := VersionConflict("quest", NewID(), 4, 2)
	b, err := json.Marshal(src)
	require.NoError(t, err)

	var got Error
	require.NoError(t, json.Unmarshal(b, &got))
	assert.ErrorIs(t, &got, ErrVersionConflict)
	assert.Equal(t, int64(4), got.ServerVersion)
	assert.Equal(t, int64(2), got.ClientVersion)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("x: %w", Validation("a", "b"))))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
