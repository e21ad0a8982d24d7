// Package commitsched implements the debounced commit batcher (spec §4.6):
// rapid successive writes to one or more repos collapse into a single git
// commit per quiescent burst.
//
// Grounded on untoldecay-BeadsLog's debounced file-watch trigger (its
// cmd/bd package wires a Debouncer with Trigger()/Cancel() around
// time.AfterFunc at daemon_watcher.go and daemon_event_loop.go, though the
// Debouncer type's own definition fell outside this retrieval); this
// package follows the same Trigger/Cancel shape, re-armed per call, with a
// force-flush path the teacher's file-watch debounce doesn't need but the
// spec's flush() does.
package commitsched

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cristinecula/knowledge-mcp/internal/gitrepo"
)

// Debounce is the quiescence window before a pending batch auto-commits
// (spec §4.6: DEBOUNCE = 150ms).
const Debounce = 150 * time.Millisecond

// Scheduler batches touched-repo commits behind a single debounce timer.
// Safe for concurrent use; every exported method takes Scheduler's mutex.
type Scheduler struct {
	mu       sync.Mutex
	touched  map[string]bool
	messages []string
	timer    *time.Timer

	repoFor func(path string) *gitrepo.Repo
}

// New returns a Scheduler that resolves touched repo paths to gitrepo.Repo
// via repoFor (so the Scheduler itself stays storage-agnostic; callers
// typically pass gitrepo.New).
func New(repoFor func(path string) *gitrepo.Repo) *Scheduler {
	return &Scheduler{
		touched: make(map[string]bool),
		repoFor: repoFor,
	}
}

// ScheduleCommit appends message to the pending batch, touches repoPath,
// and (re)arms the debounce timer (spec §4.6: schedule_commit).
func (s *Scheduler) ScheduleCommit(repoPath, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touched[repoPath] = true
	s.messages = append(s.messages, message)

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(Debounce, func() {
		_ = s.commitPending(context.Background())
	})
}

// HasPending reports whether a commit timer is currently armed.
func (s *Scheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Flush cancels the timer and runs the pending commit immediately; a no-op
// if nothing is pending (spec §4.6: flush(), and §8's "flush(); flush() is
// a no-op on the second call").
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.touched) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.commitPending(ctx)
}

// commitPending drains the touched-repo set and message list and commits
// each touched repo's staged changes in turn, skipping any repo with
// nothing staged.
func (s *Scheduler) commitPending(ctx context.Context) error {
	s.mu.Lock()
	repos := make([]string, 0, len(s.touched))
	for p := range s.touched {
		repos = append(repos, p)
	}
	sort.Strings(repos)
	messages := s.messages

	s.touched = make(map[string]bool)
	s.messages = nil
	s.timer = nil
	s.mu.Unlock()

	if len(messages) == 0 {
		return nil
	}
	headline, body := messages[0], messages[1:]

	var firstErr error
	for _, path := range repos {
		repo := s.repoFor(path)
		if err := repo.StageAll(ctx, "."); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		staged, err := repo.HasStagedChanges(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !staged {
			continue
		}
		if err := repo.Commit(ctx, headline, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
