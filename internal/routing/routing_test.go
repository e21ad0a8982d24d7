package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/types"
)

func strPtr(s string) *string { return &s }

func TestLoadValidatesAndParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"repos": [
			{"name": "proj-a", "path": "/repos/a", "project": "a"},
			{"name": "main", "path": "/repos/main"}
		]
	}`), 0o644))

	table, err := Load(path)
	require.NoError(t, err)
	require.Len(t, table.Repos, 2)
	require.Equal(t, "proj-a", table.Repos[0].Name)
}

func TestValidateRejectsCatchAllNotLast(t *testing.T) {
	table := &Table{Repos: []Rule{
		{Name: "catch-all", Path: "/repos/main"},
		{Name: "proj-a", Path: "/repos/a", Project: strPtr("a")},
	}}
	require.Error(t, table.Validate())
}

func TestValidateRejectsEmptyTable(t *testing.T) {
	table := &Table{}
	require.Error(t, table.Validate())
}

func TestValidateRejectsMissingPath(t *testing.T) {
	table := &Table{Repos: []Rule{{Name: "x"}}}
	require.Error(t, table.Validate())
}

func TestResolveFirstMatchWins(t *testing.T) {
	table := &Table{Repos: []Rule{
		{Name: "proj-a", Path: "/repos/a", Scope: strPtr(string(types.ScopeProject)), Project: strPtr("a")},
		{Name: "company", Path: "/repos/company", Scope: strPtr(string(types.ScopeCompany))},
		{Name: "catch-all", Path: "/repos/main"},
	}}

	r, err := table.Resolve(types.ScopeProject, strPtr("a"))
	require.NoError(t, err)
	require.Equal(t, "proj-a", r.Name)

	r, err = table.Resolve(types.ScopeProject, strPtr("b"))
	require.NoError(t, err)
	require.Equal(t, "catch-all", r.Name, "a project filter that doesn't match falls through to the next rule")

	r, err = table.Resolve(types.ScopeCompany, nil)
	require.NoError(t, err)
	require.Equal(t, "company", r.Name)
}

func TestResolveNoMatchWithoutCatchAll(t *testing.T) {
	table := &Table{Repos: []Rule{
		{Name: "proj-a", Path: "/repos/a", Project: strPtr("a")},
	}}
	_, err := table.Resolve(types.ScopeProject, strPtr("b"))
	require.ErrorIs(t, err, ErrNoMatch)
}
