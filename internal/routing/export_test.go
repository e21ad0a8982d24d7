package routing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportTOMLContainsEachRepo(t *testing.T) {
	table := &Table{Repos: []Rule{
		{Name: "proj-a", Path: "/repos/a", Project: strPtr("a")},
		{Name: "catch-all", Path: "/repos/main"},
	}}

	var buf bytes.Buffer
	require.NoError(t, table.ExportTOML(&buf))

	out := buf.String()
	require.Contains(t, out, `name = "proj-a"`)
	require.Contains(t, out, `path = "/repos/a"`)
	require.Contains(t, out, `name = "catch-all"`)
}
