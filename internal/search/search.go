// Package search implements the Searcher (spec §4.3): wraps Store.Search's
// lexical-ordered candidate pool with an optional semantic ranking pass,
// fuses the two via Reciprocal Rank Fusion, paginates, and bumps
// access_count for every entry actually returned to the caller.
//
// Grounded on untoldecay-BeadsLog's search-ranking layer is absent from the
// retrieval pack (the teacher's own search is a flat SQL LIKE filter), so
// this package is grounded instead on the teacher's own layering
// discipline — a thin package wrapping the storage layer's primitive,
// rather than duplicating SQL here — and on the Store's own bm25-ranked
// Search as the lexical substrate it fuses against.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/cristinecula/knowledge-mcp/internal/embedding"
	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// RRFK is Reciprocal Rank Fusion's k constant (spec §4.3: k = 60).
const RRFK = 60

// candidatePoolMultiplier widens the lexical candidate pool fetched from
// Store.Search before fusion/pagination, so semantic re-ranking has more
// than exactly `limit` items to work with.
const candidatePoolMultiplier = 4

// Searcher wraps Store with optional semantic ranking.
type Searcher struct {
	Store    store.Store
	Provider embedding.Provider
}

func New(s store.Store, p embedding.Provider) *Searcher {
	if p == nil {
		p = embedding.Noop{}
	}
	return &Searcher{Store: s, Provider: p}
}

// Search runs f against Store, optionally re-ranks by semantic similarity,
// fuses the two rank lists with RRF, paginates, and bumps access_count for
// every entry in the returned page (spec §4.3's side effect).
func (s *Searcher) Search(ctx context.Context, f store.SearchFilter) ([]store.SearchResult, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if f.Query == "" && limit > 100 {
		limit = 100
	} else if f.Query != "" && limit > 50 {
		limit = 50
	}

	poolFilter := f
	poolFilter.Limit = limit * candidatePoolMultiplier
	poolFilter.Offset = 0
	lexical, err := s.Store.Search(ctx, poolFilter)
	if err != nil {
		return nil, fmt.Errorf("search: lexical pass: %w", err)
	}

	lexicalRank := make(map[string]int, len(lexical))
	for i, e := range lexical {
		lexicalRank[e.ID] = i + 1
	}

	semanticRank := map[string]int{}
	if f.Query != "" {
		semanticRank = s.semanticRank(ctx, f.Query, lexical)
	}

	byID := make(map[string]*types.Entry, len(lexical))
	for _, e := range lexical {
		byID[e.ID] = e
	}

	results := make([]store.SearchResult, 0, len(lexical))
	for id, e := range byID {
		lr := lexicalRank[id]
		sr := semanticRank[id]
		results = append(results, store.SearchResult{
			Entry:        e,
			LexicalRank:  lr,
			SemanticRank: sr,
			Score:        rrfScore(lr) + rrfScore(sr),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Ties broken by lexical rank then by id (spec §4.3).
		li, lj := results[i].LexicalRank, results[j].LexicalRank
		if li == 0 {
			li = 1 << 30
		}
		if lj == 0 {
			lj = 1 << 30
		}
		if li != lj {
			return li < lj
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})

	start := f.Offset
	if start < 0 {
		start = 0
	}
	if start > len(results) {
		start = len(results)
	}
	end := start + limit
	if end > len(results) {
		end = len(results)
	}
	page := results[start:end]

	if err := s.bumpAccess(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// semanticRank embeds the query, compares it against the stored vector for
// each lexical candidate by cosine similarity, and returns a 1-based rank
// map over the candidates with a vector on file. Any provider failure
// (ErrUnavailable or otherwise) degrades to "no semantic signal" rather
// than failing the whole search (spec §7: ProviderUnavailable).
func (s *Searcher) semanticRank(ctx context.Context, query string, candidates []*types.Entry) map[string]int {
	queryVec, _, err := s.Provider.Embed(ctx, query)
	if err != nil {
		return map[string]int{}
	}

	type scored struct {
		id  string
		sim float64
	}
	var scoredList []scored
	for _, e := range candidates {
		_, vec, ok, err := s.Store.GetEmbedding(ctx, e.ID)
		if err != nil || !ok {
			continue
		}
		scoredList = append(scoredList, scored{id: e.ID, sim: embedding.CosineSimilarity(queryVec, vec)})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].sim > scoredList[j].sim })

	ranks := make(map[string]int, len(scoredList))
	for i, sc := range scoredList {
		ranks[sc.id] = i + 1
	}
	return ranks
}

func rrfScore(rank int) float64 {
	if rank == 0 {
		return 0
	}
	return 1.0 / float64(RRFK+rank)
}

// bumpAccess records access on every entry actually returned to the caller
// (spec §4.3's side effect), each bump already atomic at the Store layer.
func (s *Searcher) bumpAccess(ctx context.Context, page []store.SearchResult) error {
	if len(page) == 0 {
		return nil
	}
	for _, r := range page {
		if err := s.Store.RecordAccess(ctx, r.Entry.ID, 1); err != nil {
			return fmt.Errorf("search: recording access for %s: %w", r.Entry.ID, err)
		}
	}
	return nil
}
