package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/civic-console/storage"
)

func exerciseKV(t *testing.T, kv storage.KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "a", "1"))
	require.NoError(t, kv.Set(ctx, "b", "2"))
	require.NoError(t, kv.Set(ctx, "c", "3"))

	v, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	require.NoError(t, kv.Delete(ctx, "a", "b", "not-there"))
	_, ok, _ = kv.Get(ctx, "a")
	require.False(t, ok)
	_, ok, _ = kv.Get(ctx, "b")
	require.False(t, ok)
	v, ok, _ = kv.Get(ctx, "c")
	require.True(t, ok)
	require.Equal(t, "3", v)
}

func TestMemory(t *testing.T) {
	exerciseKV(t, storage.NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kv.json")
	f, err := storage.NewFile(path)
	require.NoError(t, err)
	exerciseKV(t, f)

	t.Run("survives reopen", func(t *testing.T) {
		reopened, err := storage.NewFile(path)
		require.NoError(t, err)
		v, ok, err := reopened.Get(context.Background(), "c")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "3", v)
	})

	t.Run("corrupt document", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
		_, err := storage.NewFile(bad)
		require.Error(t, err)
	})
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseKV(t, storage.NewRedis(client))
}

func TestRedis_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, _, err := storage.NewRedis(client).Get(context.Background(), "a")
	require.Error(t, err)
}
