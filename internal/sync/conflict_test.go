package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/types"
)

func entryAt(version int, synced *int, content string) *types.Entry {
	return &types.Entry{
		ID:            "e1",
		Title:         "T",
		Content:       content,
		Type:          types.TypeFact,
		Scope:         types.ScopeCompany,
		Status:        types.StatusActive,
		Version:       version,
		SyncedVersion: synced,
		CreatedAt:     time.Now(),
	}
}

func intPtr(i int) *int { return &i }

func TestDetectTruthTable(t *testing.T) {
	// F,F -> no_change
	local := entryAt(2, intPtr(2), "x")
	remote := entryAt(2, nil, "x")
	require.Equal(t, ActionNoChange, Detect(local, remote))

	// F,T -> remote_wins (content differs)
	local = entryAt(2, intPtr(2), "x")
	remote = entryAt(3, nil, "y")
	require.Equal(t, ActionRemoteWins, Detect(local, remote))

	// F,T but content equal -> no_change
	local = entryAt(2, intPtr(2), "same")
	remote = entryAt(3, nil, "same")
	require.Equal(t, ActionNoChange, Detect(local, remote))

	// T,F -> local_wins (content differs)
	local = entryAt(3, intPtr(2), "x")
	remote = entryAt(2, nil, "y")
	require.Equal(t, ActionLocalWins, Detect(local, remote))

	// T,T -> conflict (content differs)
	local = entryAt(3, intPtr(2), "L")
	remote = entryAt(3, nil, "R")
	require.Equal(t, ActionConflict, Detect(local, remote))

	// T,T content equal -> no_change
	local = entryAt(3, intPtr(2), "same")
	remote = entryAt(3, nil, "same")
	require.Equal(t, ActionNoChange, Detect(local, remote))
}

func TestContentEqualToleratesRoundedInaccuracy(t *testing.T) {
	a := entryAt(1, nil, "x")
	b := entryAt(1, nil, "x")
	a.Inaccuracy = 0.5001
	b.Inaccuracy = 0.4999
	require.True(t, ContentEqual(a, b))

	b.Inaccuracy = 0.6
	require.False(t, ContentEqual(a, b))
}

func TestContentEqualIgnoresTrailingWhitespace(t *testing.T) {
	a := entryAt(1, nil, "body\n\n")
	b := entryAt(1, nil, "body")
	require.True(t, ContentEqual(a, b))
}
