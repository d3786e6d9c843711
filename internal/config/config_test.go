package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/civic-console/internal/config"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	c := config.New()

	require.Equal(t, ":8090", c.GetPort())
	require.Equal(t, "127.0.0.1:8090", c.GetListenAddr())
	require.Equal(t, 5*time.Minute, c.GetStaleTime())
	require.Equal(t, 30*time.Minute, c.GetExpireTime())
	require.Equal(t, 10*time.Second, c.GetRefreshTimeout())
	require.Equal(t, 3, c.GetRetryCount())
	require.False(t, c.GetRefetchOnReconnect())
	require.Equal(t, "civic_console_", c.GetStorageNamespace())
}

func TestConfig_EnvOverride(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("CACHE_STALE_TIME", "90s")
	t.Setenv("STORAGE_BACKEND", "bogus")

	c := config.New()
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, "127.0.0.1:9000", c.GetListenAddr())
	require.Equal(t, 90*time.Second, c.GetStaleTime())
	require.Equal(t, config.StorageFile, c.GetStorageBackend())
}

func TestConfig_ListenAddrHost(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8443")

	require.Equal(t, "0.0.0.0:8443", config.New().GetListenAddr())
}

func TestConfig_LoadOverlay(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://from-env/api/v1")

	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("API_BASE_URL: https://api.example.com/api/v1/\nSTORAGE_BACKEND: redis\nCACHE_RETRY_COUNT: \"1\"\n"), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/api/v1", c.GetBaseURL())
	require.Equal(t, config.StorageRedis, c.GetStorageBackend())
	require.Equal(t, 1, c.GetRetryCount())
}

func TestConfig_LoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
