package commitsched

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/gitrepo"
)

func newScratchRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitkeep"), nil, 0o644))
	cmd := exec.Command("git", "add", ".")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "commit", "-q", "-m", "init")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
	return dir
}

func commitCount(t *testing.T, dir string) int {
	t.Helper()
	cmd := exec.Command("git", "log", "--oneline")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return 0
	}
	return len(lines)
}

// TestDebouncedCommitBatching reproduces spec §8 scenario 4: three writes
// each followed by ScheduleCommit collapse into exactly one new commit whose
// headline is the first message and whose body contains the rest.
func TestDebouncedCommitBatching(t *testing.T) {
	dir := newScratchRepo(t)
	before := commitCount(t, dir)

	sched := New(func(path string) *gitrepo.Repo { return gitrepo.New(path) })

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	write("f1.txt", "1")
	sched.ScheduleCommit(dir, "m1")
	write("f2.txt", "2")
	sched.ScheduleCommit(dir, "m2")
	write("f3.txt", "3")
	sched.ScheduleCommit(dir, "m3")

	require.NoError(t, sched.Flush(context.Background()))

	after := commitCount(t, dir)
	require.Equal(t, before+1, after, "one commit per quiescent burst")

	cmd := exec.Command("git", "log", "-1", "--pretty=%B")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	msg := string(out)
	require.Contains(t, msg, "m1")
	require.Contains(t, msg, "m2")
	require.Contains(t, msg, "m3")
	require.True(t, strings.HasPrefix(msg, "m1"), "first message is the headline")
}

func TestFlushTwiceIsNoop(t *testing.T) {
	dir := newScratchRepo(t)
	sched := New(func(path string) *gitrepo.Repo { return gitrepo.New(path) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f1.txt"), []byte("1"), 0o644))
	sched.ScheduleCommit(dir, "m1")
	require.NoError(t, sched.Flush(context.Background()))
	before := commitCount(t, dir)

	require.NoError(t, sched.Flush(context.Background()))
	require.Equal(t, before, commitCount(t, dir), "a second flush with nothing pending produces no commit")
}

func TestHasPendingReflectsArmedTimer(t *testing.T) {
	dir := newScratchRepo(t)
	sched := New(func(path string) *gitrepo.Repo { return gitrepo.New(path) })
	require.False(t, sched.HasPending())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f1.txt"), []byte("1"), 0o644))
	sched.ScheduleCommit(dir, "m1")
	require.True(t, sched.HasPending())

	require.NoError(t, sched.Flush(context.Background()))
	require.False(t, sched.HasPending())
}
