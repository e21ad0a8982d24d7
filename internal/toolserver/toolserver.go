// Package toolserver implements the tool adapters (spec §7): thin,
// transport-agnostic handlers that validate inputs, drive a Store mutation
// through the Propagator and the write-through Mirror, and wrap every
// result in the structured envelope every tool call returns. The wire
// framing a real agent host speaks (stdio JSON-RPC, HTTP, whatever) is
// explicitly out of scope here; a cmd entrypoint adapts these methods onto
// one.
//
// Grounded on untoldecay-BeadsLog's internal/rpc/server_core.go: a single
// Server type wrapping the storage layer, one method per operation, each
// unmarshaling typed args and returning a uniform Response{Success, Data,
// Error} shape -- generalized here from Success/Data/Error to the spec's
// own {results, warnings, not_found, errors} envelope.
package toolserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/cristinecula/knowledge-mcp/internal/embedding"
	"github.com/cristinecula/knowledge-mcp/internal/mirror"
	"github.com/cristinecula/knowledge-mcp/internal/propagate"
	"github.com/cristinecula/knowledge-mcp/internal/search"
	"github.com/cristinecula/knowledge-mcp/internal/store"
	syncengine "github.com/cristinecula/knowledge-mcp/internal/sync"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// Envelope is the structured result every tool adapter returns (spec §7).
type Envelope struct {
	Results  []any    `json:"results,omitempty"`
	Warnings []string `json:"warnings"`
	NotFound []string `json:"not_found"`
	Errors   []string `json:"errors"`
}

// Server wires the core components into one set of tool-facing operations.
type Server struct {
	Store      store.Store
	Propagator *propagate.Propagator
	Searcher   *search.Searcher
	Mirror     *mirror.Mirror
	Sync       *syncengine.Engine
	Embeddings embedding.Provider
}

func New(s store.Store, prop *propagate.Propagator, srch *search.Searcher, mir *mirror.Mirror, eng *syncengine.Engine, emb embedding.Provider) *Server {
	return &Server{Store: s, Propagator: prop, Searcher: srch, Mirror: mir, Sync: eng, Embeddings: emb}
}

// CreateEntryRequest carries the caller-supplied fields for CreateEntry.
type CreateEntryRequest struct {
	Type         types.EntryType
	Title        string
	Content      string
	Tags         []string
	Declaration  *string
	Scope        types.Scope
	Project      *string
	ParentPageID *string
	Source       string
}

// CreateEntry inserts a new entry, mirrors it, and opportunistically embeds
// it if a provider is configured.
func (s *Server) CreateEntry(ctx context.Context, req CreateEntryRequest) *Envelope {
	e, err := s.Store.Insert(ctx, store.InsertParams{
		Type: req.Type, Title: req.Title, Content: req.Content, Tags: req.Tags,
		Declaration: req.Declaration, Scope: req.Scope, Project: req.Project,
		ParentPageID: req.ParentPageID, Source: req.Source,
	})
	if err != nil {
		return errEnvelope(err)
	}
	env := &Envelope{Results: []any{e}}
	if err := s.Mirror.Write(ctx, nil, e, nil); err != nil {
		env.Warnings = append(env.Warnings, fmt.Sprintf("mirror write failed: %v", err))
	}
	s.embed(ctx, e)
	return env
}

// GetEntry fetches a single entry by exact id.
func (s *Server) GetEntry(ctx context.Context, id string) *Envelope {
	e, err := s.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{id}}
	}
	if err != nil {
		return errEnvelope(err)
	}
	return &Envelope{Results: []any{e}}
}

// Resolve looks up an entry by short-id prefix (spec §4.1).
func (s *Server) Resolve(ctx context.Context, prefix string) *Envelope {
	res, err := s.Store.Resolve(ctx, prefix)
	if errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{prefix}}
	}
	var amb *store.AmbiguousError
	if errors.As(err, &amb) {
		return &Envelope{Warnings: []string{fmt.Sprintf("prefix %q is ambiguous: %d matches", prefix, amb.Matches)}}
	}
	if err != nil {
		return errEnvelope(err)
	}
	return &Envelope{Results: []any{res.Entry}}
}

// UpdateEntry applies field changes, runs inaccuracy propagation when a
// content-relevant field changed, and mirrors every touched entry.
func (s *Server) UpdateEntry(ctx context.Context, id string, fields map[string]any) *Envelope {
	prev, err := s.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{id}}
	}
	if err != nil {
		return errEnvelope(err)
	}

	updated, err := s.Store.Update(ctx, id, fields)
	if err != nil {
		return errEnvelope(err)
	}
	env := &Envelope{Results: []any{updated}}

	if updated.Version != prev.Version {
		d := propagate.DiffFactor(prev.Title, updated.Title, prev.Content, updated.Content, prev.Tags, updated.Tags)

		// A content-relevant update reinforces the edited entry itself
		// (spec §4.2: explicit update resets inaccuracy to 0) before the
		// bump spreads to its neighbors, so the entry in env.Results
		// reflects the reset rather than its pre-update inaccuracy.
		if reinforced, rerr := s.Store.ResetInaccuracy(ctx, id); rerr != nil {
			env.Warnings = append(env.Warnings, fmt.Sprintf("reinforcement failed: %v", rerr))
		} else {
			updated = reinforced
			env.Results[0] = updated
		}

		bumps, perr := s.Propagator.Propagate(ctx, id, d)
		if perr != nil {
			env.Warnings = append(env.Warnings, fmt.Sprintf("propagation failed: %v", perr))
		} else {
			s.mirrorBumped(ctx, bumps, env)
		}
		s.embed(ctx, updated)
	}

	outgoing, _ := s.Store.LinksFrom(ctx, id)
	if err := s.Mirror.Write(ctx, prev, updated, outgoing); err != nil {
		env.Warnings = append(env.Warnings, fmt.Sprintf("mirror write failed: %v", err))
	}
	if updated.IsConflictCopy() {
		env.Warnings = append(env.Warnings, fmt.Sprintf("%s is a sync conflict copy; resolve manually", updated.ID))
	}
	return env
}

// mirrorBumped re-serializes every entry the propagator touched and warns
// about any that crossed the revalidation threshold.
func (s *Server) mirrorBumped(ctx context.Context, bumps []propagate.Bump, env *Envelope) {
	for _, b := range bumps {
		bumped, err := s.Store.Get(ctx, b.EntryID)
		if err != nil {
			continue
		}
		outgoing, _ := s.Store.LinksFrom(ctx, b.EntryID)
		if err := s.Mirror.Write(ctx, nil, bumped, outgoing); err != nil {
			env.Warnings = append(env.Warnings, fmt.Sprintf("mirror write failed for %s: %v", b.EntryID, err))
		}
		if bumped.Inaccuracy >= types.Threshold {
			env.Warnings = append(env.Warnings, fmt.Sprintf("%s flagged for revalidation (inaccuracy %.3f)", b.EntryID, bumped.Inaccuracy))
		}
	}
}

// DeleteEntry hard-deletes an entry and its mirrored file.
func (s *Server) DeleteEntry(ctx context.Context, id string) *Envelope {
	e, err := s.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{id}}
	}
	if err != nil {
		return errEnvelope(err)
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return errEnvelope(err)
	}
	env := &Envelope{Results: []any{id}}
	if err := s.Mirror.Delete(ctx, e); err != nil {
		env.Warnings = append(env.Warnings, fmt.Sprintf("mirror delete failed: %v", err))
	}
	return env
}

// DeprecateEntry flips status to deprecated, records the reason, and
// mirrors the result.
func (s *Server) DeprecateEntry(ctx context.Context, id, reason string) *Envelope {
	prev, err := s.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{id}}
	}
	if err != nil {
		return errEnvelope(err)
	}
	updated, err := s.Store.Deprecate(ctx, id, reason)
	if err != nil {
		return errEnvelope(err)
	}
	env := &Envelope{Results: []any{updated}}
	outgoing, _ := s.Store.LinksFrom(ctx, id)
	if err := s.Mirror.Write(ctx, prev, updated, outgoing); err != nil {
		env.Warnings = append(env.Warnings, fmt.Sprintf("mirror write failed: %v", err))
	}
	return env
}

// ReinforceEntry resets inaccuracy to 0 and clears flag_reason (spec §4.2
// "reinforcement / explicit update").
func (s *Server) ReinforceEntry(ctx context.Context, id string) *Envelope {
	prev, err := s.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{id}}
	}
	if err != nil {
		return errEnvelope(err)
	}
	if err := s.Propagator.Reinforce(ctx, id); err != nil {
		return errEnvelope(err)
	}
	updated, err := s.Store.Get(ctx, id)
	if err != nil {
		return errEnvelope(err)
	}
	env := &Envelope{Results: []any{updated}}
	outgoing, _ := s.Store.LinksFrom(ctx, id)
	if err := s.Mirror.Write(ctx, prev, updated, outgoing); err != nil {
		env.Warnings = append(env.Warnings, fmt.Sprintf("mirror write failed: %v", err))
	}
	return env
}

// LinkRequest carries the caller-supplied fields for InsertLink.
type LinkRequest struct {
	SourceID    string
	TargetID    string
	LinkType    types.LinkType
	Description *string
	Source      string
}

// InsertLink creates a typed edge, applies supersedes flagging when
// applicable, and mirrors every entry whose outgoing-links frontmatter
// changed.
func (s *Server) InsertLink(ctx context.Context, req LinkRequest) *Envelope {
	if _, err := s.Store.Get(ctx, req.SourceID); errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{req.SourceID}}
	} else if err != nil {
		return errEnvelope(err)
	}
	if _, err := s.Store.Get(ctx, req.TargetID); errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{req.TargetID}}
	} else if err != nil {
		return errEnvelope(err)
	}

	link, err := s.Store.InsertLink(ctx, &types.Link{
		SourceID: req.SourceID, TargetID: req.TargetID, LinkType: req.LinkType,
		Description: req.Description, Source: req.Source,
	})
	if err != nil {
		return errEnvelope(err)
	}

	env := &Envelope{Results: []any{link}}
	if err := s.mirrorEntryByID(ctx, req.SourceID); err != nil {
		env.Warnings = append(env.Warnings, err.Error())
	}

	if link.LinkType == types.LinkSupersedes {
		if err := s.Propagator.ApplySupersedes(ctx, link.SourceID, link.TargetID); err != nil {
			env.Warnings = append(env.Warnings, fmt.Sprintf("supersedes flagging failed: %v", err))
		} else {
			if err := s.mirrorEntryByID(ctx, link.TargetID); err != nil {
				env.Warnings = append(env.Warnings, err.Error())
			}
			env.Warnings = append(env.Warnings, fmt.Sprintf("%s flagged as superseded", link.TargetID))
		}
	}
	return env
}

// DeleteLink removes an edge and re-mirrors its source entry.
func (s *Server) DeleteLink(ctx context.Context, id string) *Envelope {
	link, err := s.Store.GetLink(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &Envelope{NotFound: []string{id}}
	}
	if err != nil {
		return errEnvelope(err)
	}
	if err := s.Store.DeleteLink(ctx, id); err != nil {
		return errEnvelope(err)
	}
	env := &Envelope{Results: []any{id}}
	if err := s.mirrorEntryByID(ctx, link.SourceID); err != nil {
		env.Warnings = append(env.Warnings, err.Error())
	}
	return env
}

func (s *Server) mirrorEntryByID(ctx context.Context, id string) error {
	e, err := s.Store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("mirroring %s: %w", id, err)
	}
	outgoing, err := s.Store.LinksFrom(ctx, id)
	if err != nil {
		return fmt.Errorf("mirroring %s: %w", id, err)
	}
	if err := s.Mirror.Write(ctx, nil, e, outgoing); err != nil {
		return fmt.Errorf("mirroring %s: %w", id, err)
	}
	return nil
}

// Search runs a filtered, ranked query and bumps access_count for every
// result returned, per the Searcher's contract (spec §4.3).
func (s *Server) Search(ctx context.Context, f store.SearchFilter) *Envelope {
	results, err := s.Searcher.Search(ctx, f)
	if err != nil {
		return errEnvelope(err)
	}
	out := make([]any, len(results))
	env := &Envelope{}
	for i, r := range results {
		out[i] = r
		if r.Entry.IsConflictCopy() {
			env.Warnings = append(env.Warnings, fmt.Sprintf("%s is an unresolved sync conflict copy", r.Entry.ID))
		} else if r.Entry.Inaccuracy >= types.Threshold {
			env.Warnings = append(env.Warnings, fmt.Sprintf("%s needs revalidation (inaccuracy %.3f)", r.Entry.ID, r.Entry.Inaccuracy))
		}
	}
	env.Results = out
	return env
}

// SyncPull runs one pull cycle (spec §4.7). A Busy result means another
// process (or this one) currently holds the coordinator lock.
func (s *Server) SyncPull(ctx context.Context) *Envelope {
	if s.Sync == nil {
		return &Envelope{Errors: []string{"sync is not configured"}}
	}
	if err := s.Sync.Pull(ctx); err != nil {
		if errors.Is(err, store.ErrBusy) {
			return &Envelope{Errors: []string{"busy"}}
		}
		return errEnvelope(err)
	}
	return &Envelope{}
}

// SyncPush runs one push cycle (spec §4.7).
func (s *Server) SyncPush(ctx context.Context) *Envelope {
	if s.Sync == nil {
		return &Envelope{Errors: []string{"sync is not configured"}}
	}
	if err := s.Sync.Push(ctx); err != nil {
		if errors.Is(err, store.ErrBusy) {
			return &Envelope{Errors: []string{"busy"}}
		}
		return errEnvelope(err)
	}
	return &Envelope{}
}

// embed opportunistically computes and stores an entry's vector; any
// provider failure (including ErrUnavailable) is silently ignored, per
// spec §7's ProviderUnavailable degrade-to-lexical-only policy.
func (s *Server) embed(ctx context.Context, e *types.Entry) {
	if s.Embeddings == nil {
		return
	}
	vector, model, err := s.Embeddings.Embed(ctx, e.Title+"\n\n"+e.Content)
	if err != nil {
		return
	}
	_ = s.Store.SetEmbedding(ctx, e.ID, model, vector)
}

func errEnvelope(err error) *Envelope {
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		return &Envelope{Errors: []string{"validation_failed: " + ve.Error()}}
	}
	var amb *store.AmbiguousError
	if errors.As(err, &amb) {
		return &Envelope{Errors: []string{"ambiguous: " + amb.Error()}}
	}
	return &Envelope{Errors: []string{err.Error()}}
}
