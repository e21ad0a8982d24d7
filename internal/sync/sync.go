package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cristinecula/knowledge-mcp/internal/commitsched"
	"github.com/cristinecula/knowledge-mcp/internal/gitrepo"
	"github.com/cristinecula/knowledge-mcp/internal/idgen"
	"github.com/cristinecula/knowledge-mcp/internal/lock"
	"github.com/cristinecula/knowledge-mcp/internal/mirror"
	"github.com/cristinecula/knowledge-mcp/internal/routing"
	"github.com/cristinecula/knowledge-mcp/internal/serialize"
	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// Engine drives the sync cycle (spec §4.7) over every repo the routing
// table names: pull (fetch, merge-or-adopt, reconcile on-disk entries into
// the local index) and push (flush, re-serialize, prune stale files,
// commit, push), all under the cross-process coordinator lock.
type Engine struct {
	Store     store.Store
	Routing   *routing.Table
	Mirror    *mirror.Mirror
	Scheduler *commitsched.Scheduler
	Lock      *lock.Coordinator
	RepoFor   func(path string) *gitrepo.Repo
	// Remote is the git remote name to fetch/push against; "origin" if
	// empty.
	Remote string
}

func New(s store.Store, rt *routing.Table, m *mirror.Mirror, sched *commitsched.Scheduler, lk *lock.Coordinator, repoFor func(string) *gitrepo.Repo) *Engine {
	return &Engine{Store: s, Routing: rt, Mirror: m, Scheduler: sched, Lock: lk, RepoFor: repoFor}
}

// Pull runs the fetch/merge/import side of the sync cycle across every
// distinct repo the routing table names (spec §4.7 pull steps 1-6).
func (e *Engine) Pull(ctx context.Context) error {
	acquired, err := e.Lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("sync: acquiring lock: %w", err)
	}
	if !acquired {
		return store.ErrBusy
	}
	defer e.Lock.Release(ctx)

	for _, rule := range e.distinctRepos() {
		if err := e.pullRepo(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pullRepo(ctx context.Context, rule *routing.Rule) error {
	repo := e.RepoFor(rule.Path)
	if !repo.IsRepo(ctx) {
		return fmt.Errorf("sync: %s is not a git repository", rule.Path)
	}

	if err := ensureMeta(rule.Path, e.Scheduler); err != nil {
		return fmt.Errorf("sync: checking repo layout for %s: %w", rule.Name, err)
	}

	remote := e.remoteName()
	if err := repo.Fetch(ctx, remote); err != nil {
		return fmt.Errorf("sync: fetching %s: %w", rule.Name, err)
	}
	remoteBranch, err := repo.RemoteBranchName(ctx, remote)
	if err != nil {
		return fmt.Errorf("sync: resolving remote branch for %s: %w", rule.Name, err)
	}

	if !repo.HasCommits(ctx) {
		if err := repo.AdoptRemote(ctx, remoteBranch); err != nil {
			return fmt.Errorf("sync: adopting remote for %s: %w", rule.Name, err)
		}
	} else if err := repo.MergeRemote(ctx, remoteBranch); err != nil {
		conflicted, cErr := repo.ConflictedFiles(ctx)
		if cErr != nil || len(conflicted) == 0 {
			return fmt.Errorf("sync: merging %s: %w", rule.Name, err)
		}
		// Automatic resolution always prefers the remote side (spec §4.7
		// pull step 2); per-entry version comparison still runs below, so
		// a local edit that's actually newer survives as a conflict copy
		// rather than being silently lost.
		if err := repo.ResolveWithRemote(ctx, conflicted); err != nil {
			return fmt.Errorf("sync: resolving merge conflicts in %s: %w", rule.Name, err)
		}
	}

	if err := migrateLegacyLayout(rule.Path); err != nil {
		return fmt.Errorf("sync: migrating legacy layout for %s: %w", rule.Name, err)
	}

	scanned, err := scanRepo(rule.Path)
	if err != nil {
		return err
	}

	for _, sc := range scanned {
		if err := e.reconcileEntry(ctx, sc.parsed.Entry, sc.parsed.Links); err != nil {
			return fmt.Errorf("sync: reconciling %s: %w", sc.parsed.Entry.ID, err)
		}
	}
	return e.detectTombstones(ctx, rule.Path, scanned)
}

// reconcileEntry merges one on-disk (remote) entry into the local index,
// per the Lc/Rc action table in conflict.go.
func (e *Engine) reconcileEntry(ctx context.Context, remote *types.Entry, links []serialize.LinkRef) error {
	local, err := e.Store.Get(ctx, remote.ID)
	if errors.Is(err, store.ErrNotFound) {
		imported := *remote
		markSynced(&imported, remote.Version)
		if err := e.Store.ImportEntry(ctx, &imported); err != nil {
			return err
		}
		return e.reconcileLinks(ctx, remote.ID, links)
	}
	if err != nil {
		return err
	}

	switch Detect(local, remote) {
	case ActionNoChange, ActionLocalWins:
		// local_wins: nothing to import now; Push re-serializes the local
		// copy over the remote file on the next push cycle.
		return nil

	case ActionRemoteWins:
		merged := mergeKeepingLocalStats(local, remote)
		if err := e.Store.ImportEntry(ctx, merged); err != nil {
			return err
		}
		return e.reconcileLinks(ctx, remote.ID, links)

	case ActionConflict:
		if _, err := e.createConflictCopy(ctx, remote.ID, local); err != nil {
			return err
		}
		merged := mergeKeepingLocalStats(local, remote)
		if err := e.Store.ImportEntry(ctx, merged); err != nil {
			return err
		}
		return e.reconcileLinks(ctx, remote.ID, links)
	}
	return nil
}

// mergeKeepingLocalStats takes remote's content fields as canonical but
// preserves the access-count bookkeeping and original creation time that
// never travel through the mirror (spec §4.7: "content equality compares
// the shared fields only").
func mergeKeepingLocalStats(local, remote *types.Entry) *types.Entry {
	merged := *remote
	merged.CreatedAt = local.CreatedAt
	merged.AccessCount = local.AccessCount
	merged.LastAccessedAt = local.LastAccessedAt
	markSynced(&merged, remote.Version)
	return &merged
}

func markSynced(e *types.Entry, version int) {
	v := version
	now := time.Now().UTC()
	e.SyncedVersion = &v
	e.SyncedAt = &now
}

// createConflictCopy materializes the losing local version as a standalone,
// never-mirrored entry linked back to the canonical (now remote-derived)
// entry via a local-only conflicts_with edge (spec I6).
func (e *Engine) createConflictCopy(ctx context.Context, canonicalID string, local *types.Entry) (*types.Entry, error) {
	now := time.Now().UTC()
	copyEntry := &types.Entry{
		ID:           idgen.NewEntryID(),
		Type:         local.Type,
		Title:        types.ConflictCopyTitlePrefix + local.Title,
		Content:      local.Content,
		Tags:         local.Tags,
		Declaration:  local.Declaration,
		Scope:        local.Scope,
		Project:      local.Project,
		ParentPageID: local.ParentPageID,
		Source:       types.ConflictCopySource,
		CreatedAt:    now,
		Status:       types.StatusActive,
		Inaccuracy:   types.Threshold,
		Version:      1,
		UpdatedAt:    now,
		ContentUpdatedAt: now,
	}
	if err := e.Store.ImportEntry(ctx, copyEntry); err != nil {
		return nil, fmt.Errorf("sync: creating conflict copy for %s: %w", local.ID, err)
	}
	link := &types.Link{
		ID:       idgen.NewLinkID(),
		SourceID: copyEntry.ID,
		TargetID: canonicalID,
		LinkType: types.LinkConflictsWith,
		Source:   types.ConflictCopySource,
	}
	if _, err := e.Store.InsertLink(ctx, link); err != nil {
		return nil, fmt.Errorf("sync: linking conflict copy %s: %w", copyEntry.ID, err)
	}
	return copyEntry, nil
}

// reconcileLinks imports every outgoing link an on-disk entry declared,
// computing the deterministic id so independently-created "same" edges
// converge on one row rather than duplicating (spec I2, §4.4), then deletes
// any previously sync-imported link from this source that the remote no
// longer declares (spec §4.7 pull step 6).
func (e *Engine) reconcileLinks(ctx context.Context, sourceID string, refs []serialize.LinkRef) error {
	wanted := make(map[string]bool, len(refs))
	for _, ref := range refs {
		id := serialize.ResolveLinkID(sourceID, ref)
		wanted[id] = true
		link := &types.Link{
			ID:       id,
			SourceID: sourceID,
			TargetID: ref.Target,
			LinkType: types.LinkType(ref.Type),
			Source:   "sync",
		}
		if ref.Description != "" {
			d := ref.Description
			link.Description = &d
		}
		if _, err := e.Store.InsertLink(ctx, link); err != nil {
			return fmt.Errorf("sync: importing link %s -> %s: %w", sourceID, ref.Target, err)
		}
	}

	existing, err := e.Store.LinksFrom(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, l := range existing {
		if l.Source != "sync" || wanted[l.ID] {
			continue
		}
		if err := e.Store.DeleteLink(ctx, l.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("sync: deleting stale link %s: %w", l.ID, err)
		}
	}
	return nil
}

// detectTombstones deletes local entries routed to repoPath that were
// previously synced (so the peer is known to have seen them) but no longer
// appear anywhere on disk: the upstream owner deleted them outright (spec
// §3: deletion removes the mirror file entirely, leaving no redirect).
func (e *Engine) detectTombstones(ctx context.Context, repoPath string, scanned map[string]*scanned) error {
	active, err := e.Store.AllActiveEntries(ctx)
	if err != nil {
		return err
	}
	for _, ent := range active {
		rule, err := e.Routing.Resolve(ent.Scope, ent.Project)
		if err != nil || rule.Path != repoPath {
			continue
		}
		if ent.SyncedVersion == nil {
			continue
		}
		if _, ok := scanned[ent.ID]; ok {
			continue
		}
		if err := e.Store.Delete(ctx, ent.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("sync: deleting tombstoned entry %s: %w", ent.ID, err)
		}
	}
	return nil
}

// Push runs the export/commit/push side of the sync cycle: flush any
// pending debounced commits, re-serialize every active entry so drift
// between the index and the mirror never survives a sync, prune files for
// entries no longer active, drop redirect markers nobody needs anymore,
// commit, and push (spec §4.7 push steps 1-5).
func (e *Engine) Push(ctx context.Context) error {
	acquired, err := e.Lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("sync: acquiring lock: %w", err)
	}
	if !acquired {
		return store.ErrBusy
	}
	defer e.Lock.Release(ctx)

	if err := e.Scheduler.Flush(ctx); err != nil {
		return fmt.Errorf("sync: flushing pending commits: %w", err)
	}

	active, err := e.Store.AllActiveEntries(ctx)
	if err != nil {
		return err
	}

	for _, rule := range e.distinctRepos() {
		if err := e.pushRepo(ctx, rule, active); err != nil {
			return err
		}
	}

	if err := e.Scheduler.Flush(ctx); err != nil {
		return fmt.Errorf("sync: flushing export commits: %w", err)
	}

	for _, rule := range e.distinctRepos() {
		repo := e.RepoFor(rule.Path)
		if err := repo.Push(ctx, e.remoteName()); err != nil {
			return fmt.Errorf("sync: pushing %s: %w", rule.Name, err)
		}
	}
	return nil
}

func (e *Engine) pushRepo(ctx context.Context, rule *routing.Rule, active []*types.Entry) error {
	if err := ensureMeta(rule.Path, e.Scheduler); err != nil {
		return fmt.Errorf("sync: checking repo layout for %s: %w", rule.Name, err)
	}

	scanned, err := scanRepo(rule.Path)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(scanned))
	for _, ent := range active {
		r, err := e.Routing.Resolve(ent.Scope, ent.Project)
		if err != nil || r.Path != rule.Path {
			continue
		}
		outgoing, err := e.Store.LinksFrom(ctx, ent.ID)
		if err != nil {
			return err
		}
		if err := e.Mirror.Write(ctx, nil, ent, outgoing); err != nil {
			return fmt.Errorf("sync: writing %s: %w", ent.ID, err)
		}
		keep[ent.ID] = true
		if err := e.Store.MarkSynced(ctx, ent.ID, ent.Version); err != nil {
			return fmt.Errorf("sync: marking %s synced: %w", ent.ID, err)
		}
	}

	for id, sc := range scanned {
		if keep[id] {
			continue
		}
		abs := filepath.Join(rule.Path, sc.path)
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sync: removing stale file %s: %w", abs, err)
		}
		e.Scheduler.ScheduleCommit(rule.Path, fmt.Sprintf("remove stale %s", filepath.Base(abs)))
	}

	return e.removeStaleRedirects(rule.Path)
}

// removeStaleRedirects deletes a redirect marker once the file it points to
// is present on disk: every peer that still needed the old path to resolve
// a stale clone has long since pulled the rename, so the marker no longer
// serves a purpose.
func (e *Engine) removeStaleRedirects(repoPath string) error {
	entriesDir := filepath.Join(repoPath, "entries")
	for _, t := range types.AllEntryTypes {
		typeDir := filepath.Join(entriesDir, string(t))
		files, err := os.ReadDir(typeDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("sync: reading %s: %w", typeDir, err)
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".md" {
				continue
			}
			path := filepath.Join(typeDir, f.Name())
			data, err := os.ReadFile(path) // #nosec G304 -- path built from a fixed, validated routing-table repo root
			if err != nil {
				return fmt.Errorf("sync: reading %s: %w", path, err)
			}
			target, ok := serialize.ParseRedirect(data)
			if !ok {
				continue
			}
			if _, err := os.Stat(filepath.Join(typeDir, target)); err != nil {
				continue
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("sync: removing stale redirect %s: %w", path, err)
			}
			e.Scheduler.ScheduleCommit(repoPath, fmt.Sprintf("remove stale redirect %s", f.Name()))
		}
	}
	return nil
}

func (e *Engine) distinctRepos() []*routing.Rule {
	seen := make(map[string]bool, len(e.Routing.Repos))
	var out []*routing.Rule
	for i := range e.Routing.Repos {
		r := &e.Routing.Repos[i]
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		out = append(out, r)
	}
	return out
}

func (e *Engine) remoteName() string {
	if e.Remote != "" {
		return e.Remote
	}
	return "origin"
}
