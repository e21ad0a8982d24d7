package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cristinecula/knowledge-mcp/internal/commitsched"
	"github.com/cristinecula/knowledge-mcp/internal/config"
	"github.com/cristinecula/knowledge-mcp/internal/embedding"
	"github.com/cristinecula/knowledge-mcp/internal/gitrepo"
	"github.com/cristinecula/knowledge-mcp/internal/lock"
	"github.com/cristinecula/knowledge-mcp/internal/logging"
	"github.com/cristinecula/knowledge-mcp/internal/mirror"
	"github.com/cristinecula/knowledge-mcp/internal/propagate"
	"github.com/cristinecula/knowledge-mcp/internal/routing"
	"github.com/cristinecula/knowledge-mcp/internal/search"
	"github.com/cristinecula/knowledge-mcp/internal/store/sqlite"
	syncengine "github.com/cristinecula/knowledge-mcp/internal/sync"
	"github.com/cristinecula/knowledge-mcp/internal/toolserver"
)

// app bundles every wired component for one kbd process, built once from a
// resolved config and reused across the CLI's subcommands.
type app struct {
	Config     *config.Config
	Log        *slog.Logger
	DB         *sqlite.DB
	Routing    *routing.Table
	Scheduler  *commitsched.Scheduler
	Mirror     *mirror.Mirror
	Lock       *lock.Coordinator
	Propagator *propagate.Propagator
	Searcher   *search.Searcher
	Sync       *syncengine.Engine
	Tools      *toolserver.Server
}

// buildApp opens the index, loads routing, and wires every component
// together per spec §2's component list. repoFor resolves a routing rule's
// path to a gitrepo.Repo; every rule sharing a path shares one Repo.
func buildApp(cfg *config.Config) (*app, error) {
	log := logging.New(logging.Options{Path: cfg.LogPath, Level: cfg.LogLevel})

	db, err := sqlite.Open(cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", cfg.IndexPath, err)
	}

	rt, err := loadRouting(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repos := map[string]*gitrepo.Repo{}
	repoFor := func(path string) *gitrepo.Repo {
		if r, ok := repos[path]; ok {
			return r
		}
		r := gitrepo.New(path)
		repos[path] = r
		return r
	}

	sched := commitsched.New(repoFor)
	mir := mirror.New(rt, sched)
	coord := lock.New(db.UnderlyingDB())
	prop := propagate.New(db)

	var provider embedding.Provider
	switch cfg.EmbeddingProvider {
	case "anthropic":
		p, err := embedding.NewAnthropicProvider(cfg.AnthropicAPIKey)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configuring anthropic embedding provider: %w", err)
		}
		provider = p
	default:
		provider = embedding.Noop{}
	}
	srch := search.New(db, provider)

	eng := syncengine.New(db, rt, mir, sched, coord, repoFor)

	tools := toolserver.New(db, prop, srch, mir, eng, provider)

	return &app{
		Config: cfg, Log: log, DB: db, Routing: rt, Scheduler: sched,
		Mirror: mir, Lock: coord, Propagator: prop, Searcher: srch,
		Sync: eng, Tools: tools,
	}, nil
}

// loadRouting builds the routing table from either an explicit routing
// file (spec §6's JSON shape) or, for a single-repo operator, a synthetic
// one-rule catch-all table around SyncRepoPath.
func loadRouting(cfg *config.Config) (*routing.Table, error) {
	if cfg.RoutingPath != "" {
		return routing.Load(cfg.RoutingPath)
	}
	rt := &routing.Table{Repos: []routing.Rule{{Name: "default", Path: cfg.SyncRepoPath}}}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (a *app) Close() error {
	return a.DB.Close()
}

func lockFilePath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.IndexPath), "kbd.lock")
}
