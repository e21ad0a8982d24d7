// Package gitrepo wraps the git CLI operations the sync engine needs
// (spec §4.7): fetch/merge-or-adopt on pull, stage/commit/push-with-upstream
// on push, plus the low-level status/log helpers the conflict path and the
// commit scheduler use.
//
// Grounded on untoldecay-BeadsLog's cmd/bd/sync_git.go and
// internal/git/worktree.go: every git invocation is exec.CommandContext
// scoped with -C <repo>, errors wrap CombinedOutput so a failing command's
// stderr is never silently dropped, and constant git subcommand names mean
// the #nosec G204 reasoning those files document (args built from internal
// state, not raw user input) applies here too.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Repo is a working tree the sync engine drives via the git CLI.
type Repo struct {
	Path string
}

func New(path string) *Repo {
	return &Repo{Path: path}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.Path}, args...)...) //nolint:gosec // G204: args are fixed subcommands plus internally-tracked paths/refs
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, out)
	}
	return string(out), nil
}

// IsRepo reports whether Path is inside a git working tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", r.Path, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// HasCommits reports whether HEAD resolves to a commit (false for a freshly
// initialized, empty repo).
func (r *Repo) HasCommits(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", r.Path, "rev-parse", "--verify", "HEAD")
	return cmd.Run() == nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "symbolic-ref", "--short", "HEAD")
	return strings.TrimSpace(out), err
}

// RemoteBranchName returns <remoteName>/<current branch>, with remoteName
// defaulting to "origin". The branch's tracking config is not consulted.
func (r *Repo) RemoteBranchName(ctx context.Context, remoteName string) (string, error) {
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	if remoteName == "" {
		remoteName = "origin"
	}
	return remoteName + "/" + branch, nil
}

// Fetch runs `git fetch <remote>`.
func (r *Repo) Fetch(ctx context.Context, remote string) error {
	if remote == "" {
		remote = "origin"
	}
	_, err := r.run(ctx, "fetch", remote)
	return err
}

// AdoptRemote checks out the remote branch wholesale, for a local repo with
// no commits yet (spec §4.7 pull step 1). Untracked files that would
// conflict with the incoming tree are removed first.
func (r *Repo) AdoptRemote(ctx context.Context, remoteBranch string) error {
	if _, err := r.run(ctx, "clean", "-fd"); err != nil {
		return err
	}
	_, err := r.run(ctx, "checkout", "-B", "main", remoteBranch)
	return err
}

// MergeRemote merges (never rebases) remoteBranch into the current branch
// with --allow-unrelated-histories (spec §4.7 pull step 1), leaving
// conflict markers in place on failure rather than aborting, so the caller
// can run ConflictedFiles + ResolveWithRemote.
func (r *Repo) MergeRemote(ctx context.Context, remoteBranch string) error {
	_, err := r.run(ctx, "merge", "--allow-unrelated-histories", "-m", "sync merge", remoteBranch)
	return err
}

// ConflictedFiles returns paths git reports as unmerged.
func (r *Repo) ConflictedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// ResolveWithRemote accepts the remote (--theirs) version of every
// conflicted path, stages, and commits the merge (spec §4.7 pull step 2:
// "accept the remote version for every conflicting file").
func (r *Repo) ResolveWithRemote(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	checkoutArgs := append([]string{"checkout", "--theirs", "--"}, paths...)
	if _, err := r.run(ctx, checkoutArgs...); err != nil {
		return err
	}
	addArgs := append([]string{"add", "--"}, paths...)
	if _, err := r.run(ctx, addArgs...); err != nil {
		return err
	}
	_, err := r.run(ctx, "commit", "--no-edit")
	return err
}

// ListFiles lists tracked+untracked files under relDir (e.g. "entries"),
// relative to the repo root.
func (r *Repo) ListFiles(ctx context.Context, relDir string) ([]string, error) {
	out, err := r.run(ctx, "ls-files", "--cached", "--others", "--exclude-standard", "--", relDir)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// StageAll stages every change under relDir ("." for the whole tree).
func (r *Repo) StageAll(ctx context.Context, relDir string) error {
	_, err := r.run(ctx, "add", "--", relDir)
	return err
}

// HasStagedChanges reports whether the index currently differs from HEAD.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", r.Path, "diff", "--cached", "--quiet")
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Commit creates a commit with headline as the first line and the
// remaining lines as the body (spec §4.6: "first message as headline,
// remainder as body lines").
func (r *Repo) Commit(ctx context.Context, headline string, body []string) error {
	message := headline
	if len(body) > 0 {
		message += "\n\n" + strings.Join(body, "\n")
	}
	_, err := r.run(ctx, "commit", "-m", message)
	return err
}

// Push pushes the current branch to remote, setting upstream tracking if
// none is configured yet (spec §4.7 push step 5: "push with upstream
// tracking").
func (r *Repo) Push(ctx context.Context, remote string) error {
	if remote == "" {
		remote = "origin"
	}
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	_, err = r.run(ctx, "push", "-u", remote, branch)
	return err
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
