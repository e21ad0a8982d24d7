// Package mirror implements the write-through mirror (spec §4.5): after
// every successful local Store mutation, writes the entry's Markdown file
// into the repo the routing table resolves it to, handles cross-repo and
// cross-type moves, leaves redirect markers behind renamed entries, and
// marks the repo dirty for the commit scheduler.
//
// Grounded on untoldecay-BeadsLog's internal/git/worktree.go
// (SyncJSONLToWorktree's "resolve destination path, ensure parent dir,
// write" shape) and internal/storage/sqlite's single writer-lock
// discipline, adapted from copying a JSONL snapshot to serializing one
// Markdown file per mutated entry.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cristinecula/knowledge-mcp/internal/commitsched"
	"github.com/cristinecula/knowledge-mcp/internal/routing"
	"github.com/cristinecula/knowledge-mcp/internal/serialize"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// Mirror writes entries to their routed repo and schedules a commit for
// every touched repo.
type Mirror struct {
	Routing   *routing.Table
	Scheduler *commitsched.Scheduler
}

func New(rt *routing.Table, sched *commitsched.Scheduler) *Mirror {
	return &Mirror{Routing: rt, Scheduler: sched}
}

// Write mirrors curr to disk. prev is the entry's state before this
// mutation, or nil for a brand-new entry; it is used to detect a cross-repo
// move, a cross-type move, or a title rename that needs a redirect marker.
// Conflict-copy entries are skipped entirely (spec I6).
func (m *Mirror) Write(ctx context.Context, prev, curr *types.Entry, outgoing []*types.Link) error {
	if curr.IsConflictCopy() {
		return nil
	}

	rule, err := m.Routing.Resolve(curr.Scope, curr.Project)
	if err != nil {
		return fmt.Errorf("mirror: resolving repo for entry %s: %w", curr.ID, err)
	}
	newRel := serialize.Filename(curr)
	newAbs, err := safeJoin(rule.Path, newRel)
	if err != nil {
		return err
	}

	if prev != nil && !prev.IsConflictCopy() {
		prevRule, err := m.Routing.Resolve(prev.Scope, prev.Project)
		if err != nil {
			return fmt.Errorf("mirror: resolving previous repo for entry %s: %w", prev.ID, err)
		}
		prevRel := serialize.Filename(prev)
		prevAbs, err := safeJoin(prevRule.Path, prevRel)
		if err != nil {
			return err
		}

		switch {
		case prevRule.Path != rule.Path:
			// Moved between repos: delete the old file from the source repo.
			if err := removeIfExists(prevAbs); err != nil {
				return err
			}
			m.Scheduler.ScheduleCommit(prevRule.Path, fmt.Sprintf("remove %s (moved repos)", filepath.Base(prevAbs)))

		case prev.Type != curr.Type:
			// Type changed within the same repo: delete the old type-dir file.
			if err := removeIfExists(prevAbs); err != nil {
				return err
			}

		case prevAbs != newAbs:
			// Title rename: leave a redirect marker at the old path instead
			// of deleting it, so git sees a modify (spec I5).
			if err := os.MkdirAll(filepath.Dir(prevAbs), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(prevAbs, serialize.RedirectMarker(filepath.Base(newAbs)), 0o644); err != nil { //nolint:gosec // redirect markers are non-sensitive text
				return fmt.Errorf("mirror: writing redirect marker: %w", err)
			}
		}
	}

	data, err := serialize.Serialize(curr, outgoing)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(newAbs, data, 0o644); err != nil { //nolint:gosec // entry content is caller-supplied knowledge text, not secret
		return fmt.Errorf("mirror: writing %s: %w", newAbs, err)
	}

	m.Scheduler.ScheduleCommit(rule.Path, fmt.Sprintf("update %s: %s", shortID(curr.ID), curr.Title))
	return nil
}

// Delete removes e's mirrored file from disk (spec §3: "Deletion is hard
// (removes local + mirror file)"). Conflict copies are skipped since they
// were never mirrored.
func (m *Mirror) Delete(ctx context.Context, e *types.Entry) error {
	if e.IsConflictCopy() {
		return nil
	}
	rule, err := m.Routing.Resolve(e.Scope, e.Project)
	if err != nil {
		return fmt.Errorf("mirror: resolving repo for entry %s: %w", e.ID, err)
	}
	abs, err := safeJoin(rule.Path, serialize.Filename(e))
	if err != nil {
		return err
	}
	if err := removeIfExists(abs); err != nil {
		return err
	}
	m.Scheduler.ScheduleCommit(rule.Path, fmt.Sprintf("delete %s: %s", shortID(e.ID), e.Title))
	return nil
}

// safeJoin joins repoRoot and rel, rejecting anything that would resolve
// outside repoRoot (spec §9: "Path construction must reject anything that
// would escape the repo root (defense against crafted IDs)").
func safeJoin(repoRoot, rel string) (string, error) {
	joined := filepath.Join(repoRoot, rel)
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("mirror: path %q escapes repo root %q", rel, repoRoot)
	}
	return absJoined, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("mirror: removing %s: %w", path, err)
	}
	return nil
}

func shortID(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) < 8 {
		return compact
	}
	return compact[:8]
}
