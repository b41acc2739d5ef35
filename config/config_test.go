package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 60*time.Second, cfg.CacheTTL)
	require.Equal(t, 60*time.Second, cfg.Indexer.LiveWindow)
	require.Equal(t, []string{"binance", "bybit"}, cfg.Pricing.Platforms)
	require.Equal(t, 0.8, cfg.Conviction.ScoreFloor)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
cache_ttl: 30s
indexer:
  live_window: 90s
  max_live_events: 500
  stop_grace: 2s
pricing:
  platforms: [bybit]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, 30*time.Second, cfg.CacheTTL)
	require.Equal(t, 90*time.Second, cfg.Indexer.LiveWindow)
	require.Equal(t, 500, cfg.Indexer.MaxLiveEvents)
	require.Equal(t, []string{"bybit"}, cfg.Pricing.Platforms)
	// untouched sections keep their defaults
	require.Equal(t, "./wal", cfg.WALDir)
}

func TestLoad_APIKeyFromEnv(t *testing.T) {
	t.Setenv("HISTORY_API_KEY", "env-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.History.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pricing:
  platforms: [kraken]
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	path2 := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path2, []byte(`listen_addr: ""`), 0o600))
	_, err = Load(path2)
	require.Error(t, err)
}
