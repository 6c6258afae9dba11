package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadata_SetGetDelete(t *testing.T) {
	r := openTestStore(t).Metadata()
	ctx := context.Background()

	v, err := r.Get(ctx, "absent")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))
	v, err = r.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)

	require.NoError(t, r.Delete(ctx, "k"))
	v, err = r.Get(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestMetadata_DeletePrefixAndList(t *testing.T) {
	r := openTestStore(t).Metadata()
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "sync.watermark.u1.quest", []byte("a")))
	require.NoError(t, r.Set(ctx, "sync.watermark.u1.note", []byte("b")))
	require.NoError(t, r.Set(ctx, "session.user", []byte("u1")))

	require.NoError(t, r.DeletePrefix(ctx, "sync.watermark.u1."))
	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"session.user": []byte("u1")}, all)
}
