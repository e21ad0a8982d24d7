// Package propagate implements the inaccuracy-propagation model (spec §4.2):
// the replacement for time-based "memory decay". When an entry's content
// changes, inaccuracy spreads through the typed outgoing-link graph and
// decays per hop, flagging downstream entries for revalidation.
//
// Grounded on untoldecay-BeadsLog's internal/storage/sqlite/dirty_helpers.go
// and internal/storage/sqlite/resurrection.go (BFS-shaped graph walks with
// an explicit visited set over the dependency edge table), generalized from
// dirty-marking/resurrection propagation to a weighted, decaying,
// saturating bump.
package propagate

import (
	"context"
	"fmt"
	"sort"

	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// Bump is one entry's inaccuracy change produced by a single Propagate
// call, in the order the BFS visited them. The changed entry itself never
// gets a Bump.
type Bump struct {
	EntryID    string
	Delta      float64
	NewValue   float64
	FlagReason *string
}

// Propagator computes and applies the bump set for a changed entry.
type Propagator struct {
	Store store.Store
}

func New(s store.Store) *Propagator {
	return &Propagator{Store: s}
}

// DiffFactor computes the scalar diff factor d ∈ [0,1] used to scale the
// root bump applied to a changed entry's neighbors (spec §4.2): the ratio
// of changed characters to the larger of the two contents, plus a smaller
// weight for title change and tag-set Jaccard distance. Weights are
// arbitrary as long as identical inputs give identical outputs, which this
// implementation, being pure and deterministic, satisfies.
func DiffFactor(oldTitle, newTitle, oldContent, newContent string, oldTags, newTags []string) float64 {
	const (
		contentWeight = 0.7
		titleWeight   = 0.2
		tagsWeight    = 0.1
	)

	contentDiff := levenshteinRatio(oldContent, newContent)
	titleDiff := 0.0
	if oldTitle != newTitle {
		titleDiff = levenshteinRatio(oldTitle, newTitle)
	}
	tagsDiff := jaccardDistance(oldTags, newTags)

	d := contentWeight*contentDiff + titleWeight*titleDiff + tagsWeight*tagsDiff
	if d > 1 {
		d = 1
	}
	if d < 0 {
		d = 0
	}
	return d
}

// levenshteinRatio approximates "ratio of changed characters to the larger
// of the two contents" using edit distance over runes, which is exact for
// the character-level notion of "changed" the spec describes and cheap
// enough for typical entry sizes (title/content, not whole documents).
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 0
	}
	ar, br := []rune(a), []rune(b)
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein(ar, br)
	return float64(dist) / float64(maxLen)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func jaccardDistance(a, b []string) float64 {
	setA := map[string]bool{}
	for _, t := range a {
		setA[t] = true
	}
	setB := map[string]bool{}
	for _, t := range b {
		setB[t] = true
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	union := map[string]bool{}
	inter := 0
	for t := range setA {
		union[t] = true
		if setB[t] {
			inter++
		}
	}
	for t := range setB {
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return 1 - float64(inter)/float64(len(union))
}

// Propagate runs the bounded BFS traversal over the outgoing-link graph of
// changedID, applies each reachable entry's saturated bump, and returns the
// bump set in visitation order. rootBump is the magnitude applied to
// changedID's direct successors before the first hop's LINK_WEIGHTS/decay
// are applied — callers compute it as DiffFactor(...) scaled to taste; the
// spec's worked example (§8 scenario 2) uses rootBump=1.0 directly.
func (p *Propagator) Propagate(ctx context.Context, changedID string, rootBump float64) ([]Bump, error) {
	visited := map[string]bool{changedID: true}
	var bumps []Bump

	type frontierItem struct {
		id   string
		bump float64
	}
	frontier := []frontierItem{{id: changedID, bump: rootBump}}

	for len(frontier) > 0 {
		var next []frontierItem
		for _, item := range frontier {
			outgoing, err := p.Store.LinksFrom(ctx, item.id)
			if err != nil {
				return nil, fmt.Errorf("loading outgoing links for %s: %w", item.id, err)
			}
			// Deterministic order so identical graphs produce identical
			// bump-set ordering across runs (important for reproducible
			// tests and for "a visited set prevents cycles" to behave
			// the same regardless of map iteration order).
			sort.Slice(outgoing, func(i, j int) bool { return outgoing[i].TargetID < outgoing[j].TargetID })

			for _, link := range outgoing {
				if visited[link.TargetID] {
					continue
				}
				weight := types.LinkWeights[link.LinkType]
				bump := item.bump * weight * types.HopDecay
				if bump < types.Floor {
					continue
				}
				visited[link.TargetID] = true

				entry, err := p.Store.Get(ctx, link.TargetID)
				if err != nil {
					return nil, fmt.Errorf("loading entry %s: %w", link.TargetID, err)
				}
				newValue := saturate(entry.Inaccuracy + bump)
				if _, err := p.Store.SetInaccuracy(ctx, entry.ID, newValue); err != nil {
					return nil, fmt.Errorf("bumping %s: %w", entry.ID, err)
				}
				bumps = append(bumps, Bump{EntryID: entry.ID, Delta: newValue - entry.Inaccuracy, NewValue: newValue})

				// Deprecated entries are visited but not further expanded
				// (spec §4.2).
				if entry.Status != types.StatusDeprecated {
					next = append(next, frontierItem{id: entry.ID, bump: bump})
				}
			}
		}
		frontier = next
	}

	return bumps, nil
}

func saturate(v float64) float64 {
	if v > types.Cap {
		return types.Cap
	}
	if v < 0 {
		return 0
	}
	return v
}

// ApplySupersedes implements the "supersedes flagging" rule (spec §4.2):
// when a new A--supersedes-->B link is created, B's inaccuracy is bumped by
// 1.0 (pushing it above Threshold) and flagged with a human-readable
// reason.
func (p *Propagator) ApplySupersedes(ctx context.Context, supersedingID, supersededID string) error {
	superseding, err := p.Store.Get(ctx, supersedingID)
	if err != nil {
		return fmt.Errorf("loading superseding entry: %w", err)
	}
	superseded, err := p.Store.Get(ctx, supersededID)
	if err != nil {
		return fmt.Errorf("loading superseded entry: %w", err)
	}

	newValue := saturate(superseded.Inaccuracy + 1.0)
	reason := fmt.Sprintf("superseded by %s", superseding.Title)
	_, err = p.Store.Update(ctx, supersededID, map[string]any{
		"inaccuracy":  newValue,
		"flag_reason": reason,
	})
	return err
}

// Reinforce implements "reinforcement / explicit update" (spec §4.2):
// resets an entry's inaccuracy to 0 and clears its flag reason. This is
// exactly Store.ResetInaccuracy; the wrapper exists so callers reason about
// propagation-domain operations through one package.
func (p *Propagator) Reinforce(ctx context.Context, id string) error {
	_, err := p.Store.ResetInaccuracy(ctx, id)
	return err
}
