package lock

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cristinecula/knowledge-mcp/internal/store/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestCoordinatorLockStealing reproduces spec §8 scenario 6: a holder whose
// lease already expired and whose PID is dead gets its lock stolen by the
// next acquirer; a live, different-PID acquirer competing for the same
// still-held lock fails.
func TestCoordinatorLockStealing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	// Simulate P1 acquiring then disappearing: insert a row with an already
	// expired lease and a pid guaranteed not to be alive.
	deadPID := deadProcessPID(t)
	_, err := db.UnderlyingDB().ExecContext(ctx, `
		INSERT INTO sync_lock (name, holder_pid, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
		Name, deadPID, time.Now().UTC().Add(-2*time.Second), time.Now().UTC().Add(-1*time.Second))
	require.NoError(t, err)

	p2 := New(db.UnderlyingDB())
	acquired, err := p2.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired, "an expired, dead-holder lock must be stealable")

	var holderPID int
	require.NoError(t, db.UnderlyingDB().QueryRowContext(ctx,
		`SELECT holder_pid FROM sync_lock WHERE name = ?`, Name).Scan(&holderPID))
	require.Equal(t, os.Getpid(), holderPID)

	// A live p3 with a different PID (this test's parent process) then
	// competes for the lock p2 now holds and must fail.
	p3 := New(db.UnderlyingDB())
	p3.pid = os.Getppid()
	acquired, err = p3.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, acquired, "a live holder's lock must not be stealable")
}

func TestCoordinatorReleaseOnlyOwnRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	c := New(db.UnderlyingDB())
	acquired, err := c.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, c.Release(ctx))

	var count int
	require.NoError(t, db.UnderlyingDB().QueryRowContext(ctx,
		`SELECT count(*) FROM sync_lock WHERE name = ?`, Name).Scan(&count))
	require.Equal(t, 0, count)
}

// deadProcessPID returns a PID that does not correspond to a live process,
// by spawning and waiting on a short-lived child.
func deadProcessPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	return pid
}
