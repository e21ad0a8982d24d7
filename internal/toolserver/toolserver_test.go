package toolserver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/commitsched"
	"github.com/cristinecula/knowledge-mcp/internal/gitrepo"
	"github.com/cristinecula/knowledge-mcp/internal/mirror"
	"github.com/cristinecula/knowledge-mcp/internal/propagate"
	"github.com/cristinecula/knowledge-mcp/internal/routing"
	"github.com/cristinecula/knowledge-mcp/internal/search"
	"github.com/cristinecula/knowledge-mcp/internal/store/sqlite"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rt := &routing.Table{Repos: []routing.Rule{{Name: "main", Path: filepath.Join(dir, "repo")}}}
	sched := commitsched.New(func(path string) *gitrepo.Repo { return gitrepo.New(path) })
	mir := mirror.New(rt, sched)
	prop := propagate.New(db)
	srch := search.New(db, nil)

	return New(db, prop, srch, mir, nil, nil)
}

func TestCreateEntryMirrorsAndReturnsResult(t *testing.T) {
	env := newTestServer(t).CreateEntry(context.Background(), CreateEntryRequest{
		Type:   types.TypeFact,
		Title:  "Foo",
		Scope:  types.ScopeCompany,
		Source: "agent",
	})
	require.Len(t, env.Results, 1)
	require.Empty(t, env.Errors)
}

func TestGetEntryNotFound(t *testing.T) {
	env := newTestServer(t).GetEntry(context.Background(), "00000000-0000-4000-8000-000000000000")
	require.Equal(t, []string{"00000000-0000-4000-8000-000000000000"}, env.NotFound)
}

func TestUpdateEntryPropagatesOnContentChange(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	createEnv := s.CreateEntry(ctx, CreateEntryRequest{
		Type: types.TypeFact, Title: "A", Content: "original", Scope: types.ScopeCompany, Source: "agent",
	})
	a := createEnv.Results[0].(*types.Entry)

	createEnv2 := s.CreateEntry(ctx, CreateEntryRequest{
		Type: types.TypeFact, Title: "B", Content: "b content", Scope: types.ScopeCompany, Source: "agent",
	})
	b := createEnv2.Results[0].(*types.Entry)

	linkEnv := s.InsertLink(ctx, LinkRequest{SourceID: a.ID, TargetID: b.ID, LinkType: types.LinkDerived, Source: "agent"})
	require.Empty(t, linkEnv.Errors)

	updateEnv := s.UpdateEntry(ctx, a.ID, map[string]any{"content": "a completely different body of text"})
	require.Empty(t, updateEnv.Errors)

	bumped, err := s.Store.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Greater(t, bumped.Inaccuracy, 0.0, "updating A must propagate a bump to B via the derived link")
}

func TestInsertLinkSupersedesFlagsTarget(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	oldEnv := s.CreateEntry(ctx, CreateEntryRequest{Type: types.TypeDecision, Title: "Old", Scope: types.ScopeCompany, Source: "agent"})
	old := oldEnv.Results[0].(*types.Entry)
	newEnv := s.CreateEntry(ctx, CreateEntryRequest{Type: types.TypeDecision, Title: "New", Scope: types.ScopeCompany, Source: "agent"})
	newer := newEnv.Results[0].(*types.Entry)

	env := s.InsertLink(ctx, LinkRequest{SourceID: newer.ID, TargetID: old.ID, LinkType: types.LinkSupersedes, Source: "agent"})
	require.NotEmpty(t, env.Warnings, "supersedes flagging must surface as a warning")

	got, err := s.Store.Get(ctx, old.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, got.Inaccuracy, types.Threshold)
}

func TestDeleteEntryNotFound(t *testing.T) {
	env := newTestServer(t).DeleteEntry(context.Background(), "00000000-0000-4000-8000-000000000000")
	require.Equal(t, []string{"00000000-0000-4000-8000-000000000000"}, env.NotFound)
}

func TestSyncPullWithoutEngineReturnsError(t *testing.T) {
	env := newTestServer(t).SyncPull(context.Background())
	require.NotEmpty(t, env.Errors)
}
