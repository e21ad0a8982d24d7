package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func newScratchRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("init\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "init")
	return dir
}

func TestIsRepoAndHasCommits(t *testing.T) {
	dir := newScratchRepo(t)
	r := New(dir)
	ctx := context.Background()

	require.True(t, r.IsRepo(ctx))
	require.True(t, r.HasCommits(ctx))

	empty := t.TempDir()
	require.False(t, New(empty).IsRepo(ctx))
}

func TestCurrentBranch(t *testing.T) {
	dir := newScratchRepo(t)
	r := New(dir)
	branch, err := r.CurrentBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestStageCommitPush(t *testing.T) {
	dir := newScratchRepo(t)
	r := New(dir)
	ctx := context.Background()

	has, err := r.HasStagedChanges(ctx)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hi"), 0o644))
	require.NoError(t, r.StageAll(ctx, "."))

	has, err = r.HasStagedChanges(ctx)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, r.Commit(ctx, "add note", []string{"extra detail"}))

	has, err = r.HasStagedChanges(ctx)
	require.NoError(t, err)
	require.False(t, has, "nothing staged right after a commit")
}

func TestListFiles(t *testing.T) {
	dir := newScratchRepo(t)
	r := New(dir)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "entries", "fact"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entries", "fact", "a.md"), []byte("x"), 0o644))

	files, err := r.ListFiles(ctx, "entries")
	require.NoError(t, err)
	require.Contains(t, files, "entries/fact/a.md")
}

// TestMergeConflictResolveWithRemote reproduces the pull-side conflict path
// (spec §4.7 step 2): two clones of the same origin diverge on the same
// file, the merge leaves a conflict marker, and ResolveWithRemote accepts
// the remote (--theirs) version and commits the merge.
func TestMergeConflictResolveWithRemote(t *testing.T) {
	ctx := context.Background()

	bare := t.TempDir()
	runGit(t, bare, "init", "-q", "--bare", "-b", "main")

	cloneA := t.TempDir()
	runGit(t, cloneA, "clone", "-q", bare, ".")
	runGit(t, cloneA, "config", "user.email", "a@example.com")
	runGit(t, cloneA, "config", "user.name", "A")
	require.NoError(t, os.WriteFile(filepath.Join(cloneA, "shared.txt"), []byte("base\n"), 0o644))
	runGit(t, cloneA, "add", ".")
	runGit(t, cloneA, "commit", "-q", "-m", "base")
	runGit(t, cloneA, "push", "-q", "-u", "origin", "main")

	cloneB := t.TempDir()
	runGit(t, cloneB, "clone", "-q", bare, ".")
	runGit(t, cloneB, "config", "user.email", "b@example.com")
	runGit(t, cloneB, "config", "user.name", "B")

	require.NoError(t, os.WriteFile(filepath.Join(cloneA, "shared.txt"), []byte("from A\n"), 0o644))
	runGit(t, cloneA, "commit", "-q", "-am", "A edits")
	runGit(t, cloneA, "push", "-q", "origin", "main")

	require.NoError(t, os.WriteFile(filepath.Join(cloneB, "shared.txt"), []byte("from B\n"), 0o644))
	runGit(t, cloneB, "commit", "-q", "-am", "B edits")

	rb := New(cloneB)
	require.NoError(t, rb.Fetch(ctx, "origin"))

	remoteBranch, err := rb.RemoteBranchName(ctx, "origin")
	require.NoError(t, err)
	require.Equal(t, "origin/main", remoteBranch)

	err = rb.MergeRemote(ctx, remoteBranch)
	require.Error(t, err, "merging two divergent edits to the same file must conflict")

	conflicted, err := rb.ConflictedFiles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"shared.txt"}, conflicted)

	require.NoError(t, rb.ResolveWithRemote(ctx, conflicted))

	data, err := os.ReadFile(filepath.Join(cloneB, "shared.txt"))
	require.NoError(t, err)
	require.Equal(t, "from A\n", string(data), "ResolveWithRemote accepts the remote (--theirs) version")

	has, err := rb.HasStagedChanges(ctx)
	require.NoError(t, err)
	require.False(t, has, "the merge commit leaves a clean index")
}
