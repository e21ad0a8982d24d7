package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("sync-repo-path", "/repo")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.IndexPath)
	require.Equal(t, DefaultSyncIntervalSeconds, cfg.SyncIntervalSecs)
	require.Equal(t, "none", cfg.EmbeddingProvider)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvVarOverridesDefault(t *testing.T) {
	t.Setenv("KBD_SYNC_INTERVAL_SECONDS", "42")

	v := viper.New()
	v.Set("sync-repo-path", "/repo")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 42, cfg.SyncIntervalSecs)
}

func TestLoadRejectsNeitherRoutingNorSyncRepo(t *testing.T) {
	v := viper.New()
	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadRejectsBothRoutingAndSyncRepo(t *testing.T) {
	v := viper.New()
	v.Set("routing-path", "/routing.json")
	v.Set("sync-repo-path", "/repo")
	_, err := Load(v)
	require.Error(t, err)
}

func TestValidateRejectsUnknownEmbeddingProvider(t *testing.T) {
	c := &Config{IndexPath: "x", SyncRepoPath: "/repo", EmbeddingProvider: "bogus"}
	require.Error(t, c.Validate())
}

func TestValidateRejectsNegativeSyncInterval(t *testing.T) {
	c := &Config{IndexPath: "x", SyncRepoPath: "/repo", EmbeddingProvider: "none", SyncIntervalSecs: -1}
	require.Error(t, c.Validate())
}

func TestSyncIntervalZeroDisablesPeriodicSync(t *testing.T) {
	c := &Config{SyncIntervalSecs: 0}
	require.Equal(t, time.Duration(0), c.SyncInterval())
}
