package store

import (
	"context"
	"database/sql"

	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// InsertParams carries the caller-supplied fields for Store.Insert; fields
// left at their zero value take the documented defaults (spec §3
// Lifecycle: version=1, inaccuracy=0, status=active, synced_version=nil).
type InsertParams struct {
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

// ResolveResult is the outcome of a short-ID lookup.
type ResolveResult struct {
	Entry     *types.Entry
	Ambiguous bool
	Matches   int
}

// SearchFilter is the input to Store.Search / the Searcher (spec §4.3).
type SearchFilter struct {
	Query           string
	Type            *types.EntryType
	Tags            []string
	Project         *string
	Scope           *types.Scope
	Status          *types.Status // "all" is represented by the AllStatuses sentinel below
	AboveThreshold  bool
	Sort            SortMode
	Limit           int
	Offset          int
}

// AllStatuses, when set as SearchFilter.Status, disables the status filter
// entirely (spec: "status=all disables the status filter").
const AllStatuses types.Status = "all"

// SortMode selects the ordering used when SearchFilter.Query is empty.
type SortMode string

const (
	SortRecent  SortMode = "recent"  // last_accessed_at desc
	SortCreated SortMode = "created" // created_at desc
)

// SearchResult pairs an entry with the rank information that produced it,
// for callers that want to display or test the fusion math.
type SearchResult struct {
	Entry        *types.Entry
	LexicalRank  int // 1-based; 0 means "not present in the lexical list"
	SemanticRank int // 1-based; 0 means "not present in the semantic list"
	Score        float64
}

// Transaction exposes the subset of Store mutations that run inside a single
// database transaction, so multi-step workflows (e.g. insert an entry then
// link it) are atomic.
type Transaction interface {
	Insert(ctx context.Context, p InsertParams) (*types.Entry, error)
	Update(ctx context.Context, id string, fields map[string]any) (*types.Entry, error)
	Deprecate(ctx context.Context, id string, reason string) (*types.Entry, error)
	Get(ctx context.Context, id string) (*types.Entry, error)
	InsertLink(ctx context.Context, l *types.Link) (*types.Link, error)
	DeleteLink(ctx context.Context, id string) error
}

// Store is the persistent typed index of entries and links, kept in
// lock-step with a full-text index, plus the cross-process coordinator
// lock table.
type Store interface {
	Insert(ctx context.Context, p InsertParams) (*types.Entry, error)
	Get(ctx context.Context, id string) (*types.Entry, error)
	Resolve(ctx context.Context, prefix string) (*ResolveResult, error)
	Update(ctx context.Context, id string, fields map[string]any) (*types.Entry, error)
	RecordAccess(ctx context.Context, id string, boost int) error
	Deprecate(ctx context.Context, id string, reason string) (*types.Entry, error)
	ResetInaccuracy(ctx context.Context, id string) (*types.Entry, error)
	SetInaccuracy(ctx context.Context, id string, v float64) (*types.Entry, error)
	Delete(ctx context.Context, id string) error

	// ImportEntry upserts e, keeping its id, version and timestamps rather
	// than assigning fresh ones (an existing row keeps its created_at and
	// access stats); used only by the sync
	// engine to materialize an entry read from a peer's frontmatter
	// (spec §4.7).
	ImportEntry(ctx context.Context, e *types.Entry) error
	// MarkSynced records that id's current version has been reconciled with
	// the shared repo, so the next pull/push's Lc/Rc comparison starts from
	// this point (spec §4.7).
	MarkSynced(ctx context.Context, id string, version int) error

	InsertLink(ctx context.Context, l *types.Link) (*types.Link, error)
	GetLink(ctx context.Context, id string) (*types.Link, error)
	DeleteLink(ctx context.Context, id string) error
	LinksFrom(ctx context.Context, sourceID string) ([]*types.Link, error)
	LinksTo(ctx context.Context, targetID string) ([]*types.Link, error)
	AllLinks(ctx context.Context) ([]*types.Link, error)

	Search(ctx context.Context, f SearchFilter) ([]*types.Entry, error)

	// AllActiveEntries returns every non-conflict-copy entry, for the
	// mirror/push full-resync paths.
	AllActiveEntries(ctx context.Context) ([]*types.Entry, error)

	// GetEmbedding/SetEmbedding back the Searcher's optional semantic
	// ranking pass (spec §4.3); ok is false when no vector is stored.
	GetEmbedding(ctx context.Context, id string) (model string, vector []float32, ok bool, err error)
	SetEmbedding(ctx context.Context, id string, model string, vector []float32) error

	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
	Path() string
	UnderlyingDB() *sql.DB
}
