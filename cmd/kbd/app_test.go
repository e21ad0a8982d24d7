package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/config"
)

func TestBuildAppWiresEveryComponent(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		IndexPath:         filepath.Join(dir, "index.db"),
		SyncRepoPath:      filepath.Join(dir, "repo"),
		EmbeddingProvider: "none",
		LogLevel:          "info",
	}

	a, err := buildApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.DB)
	require.NotNil(t, a.Routing)
	require.Len(t, a.Routing.Repos, 1)
	require.Equal(t, cfg.SyncRepoPath, a.Routing.Repos[0].Path)
	require.NotNil(t, a.Scheduler)
	require.NotNil(t, a.Mirror)
	require.NotNil(t, a.Lock)
	require.NotNil(t, a.Propagator)
	require.NotNil(t, a.Searcher)
	require.NotNil(t, a.Sync)
	require.NotNil(t, a.Tools)
}

func TestLoadRoutingRejectsMissingSyncRepoPath(t *testing.T) {
	cfg := &config.Config{IndexPath: "x"}
	_, err := loadRouting(cfg)
	require.Error(t, err, "a synthetic catch-all rule with an empty path must fail Validate")
}

func TestLockFilePath(t *testing.T) {
	cfg := &config.Config{IndexPath: "/data/kbd/index.db"}
	require.Equal(t, "/data/kbd/kbd.lock", lockFilePath(cfg))
}
