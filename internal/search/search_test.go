package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/store/sqlite"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRRFScoreRank1AbsentFromOtherList(t *testing.T) {
	// spec §8 boundary behavior: an item ranked 1 in one list and absent
	// from the other scores 1/61.
	require.InDelta(t, 1.0/61.0, rrfScore(1)+rrfScore(0), 1e-12)
}

func TestSearchFusesLexicalAndBumpsAccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.Insert(ctx, store.InsertParams{
		Type:    types.TypeFact,
		Title:   "Retry backoff policy",
		Content: "use exponential backoff with jitter",
		Scope:   types.ScopeCompany,
		Source:  "agent",
	})
	require.NoError(t, err)

	searcher := New(s, nil)
	results, err := searcher.Search(ctx, store.SearchFilter{Query: "backoff"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, e.ID, results[0].Entry.ID)
	require.Equal(t, 1, results[0].LexicalRank)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.AccessCount, "a returned search result bumps access_count")
}

func TestSearchQueryLimitCapped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	searcher := New(s, nil)

	results, err := searcher.Search(ctx, store.SearchFilter{Query: "anything", Limit: 1000})
	require.NoError(t, err)
	require.Empty(t, results)
}
