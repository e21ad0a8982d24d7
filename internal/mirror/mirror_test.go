package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/commitsched"
	"github.com/cristinecula/knowledge-mcp/internal/gitrepo"
	"github.com/cristinecula/knowledge-mcp/internal/routing"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

func newTestMirror(t *testing.T, repoPath string) *Mirror {
	t.Helper()
	rt := &routing.Table{Repos: []routing.Rule{{Name: "main", Path: repoPath}}}
	sched := commitsched.New(func(path string) *gitrepo.Repo { return gitrepo.New(path) })
	return New(rt, sched)
}

func baseEntry() *types.Entry {
	return &types.Entry{
		ID:        "33333333-3333-4333-8333-333333333333",
		Type:      types.TypeFact,
		Title:     "Foo",
		Content:   "body",
		Scope:     types.ScopeCompany,
		Source:    "agent",
		CreatedAt: time.Now().UTC(),
		Status:    types.StatusActive,
		Version:   1,
	}
}

func TestMirrorWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	m := newTestMirror(t, dir)
	e := baseEntry()

	require.NoError(t, m.Write(context.Background(), nil, e, nil))

	path := filepath.Join(dir, "entries", "fact", "foo_33333333.md")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "title: Foo")
}

// TestMirrorRenameLeavesRedirect reproduces spec §8 scenario 5: a title
// rename leaves a redirect marker at the old path instead of deleting it.
func TestMirrorRenameLeavesRedirect(t *testing.T) {
	dir := t.TempDir()
	m := newTestMirror(t, dir)
	ctx := context.Background()

	prev := baseEntry()
	require.NoError(t, m.Write(ctx, nil, prev, nil))

	curr := *prev
	curr.Title = "Bar"
	curr.Version = 2
	require.NoError(t, m.Write(ctx, prev, &curr, nil))

	oldPath := filepath.Join(dir, "entries", "fact", "foo_33333333.md")
	data, err := os.ReadFile(oldPath)
	require.NoError(t, err)
	require.Equal(t, "Moved to: bar_33333333.md\n", string(data))

	newPath := filepath.Join(dir, "entries", "fact", "bar_33333333.md")
	_, err = os.Stat(newPath)
	require.NoError(t, err)
}

func TestMirrorSkipsConflictCopies(t *testing.T) {
	dir := t.TempDir()
	m := newTestMirror(t, dir)
	e := baseEntry()
	e.Title = types.ConflictCopyTitlePrefix + e.Title
	e.Source = types.ConflictCopySource

	require.NoError(t, m.Write(context.Background(), nil, e, nil))

	entries, err := os.ReadDir(filepath.Join(dir, "entries"))
	require.True(t, err != nil || len(entries) == 0, "conflict copies must never be mirrored (I6)")
}

func TestMirrorCrossRepoMoveDeletesOldFile(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	rt := &routing.Table{Repos: []routing.Rule{
		{Name: "project-a", Path: dirA, Project: strPtr("a")},
		{Name: "catch-all", Path: dirB},
	}}
	sched := commitsched.New(func(path string) *gitrepo.Repo { return gitrepo.New(path) })
	m := New(rt, sched)
	ctx := context.Background()

	prev := baseEntry()
	prev.Scope = types.ScopeProject
	prev.Project = strPtr("a")
	require.NoError(t, m.Write(ctx, nil, prev, nil))

	curr := *prev
	curr.Project = nil
	curr.Scope = types.ScopeCompany
	curr.Version = 2
	require.NoError(t, m.Write(ctx, prev, &curr, nil))

	oldPath := filepath.Join(dirA, "entries", "fact", "foo_33333333.md")
	_, err := os.Stat(oldPath)
	require.True(t, os.IsNotExist(err), "old repo's file must be removed after a cross-repo move")

	newPath := filepath.Join(dirB, "entries", "fact", "foo_33333333.md")
	_, err = os.Stat(newPath)
	require.NoError(t, err)
}

func strPtr(s string) *string { return &s }
