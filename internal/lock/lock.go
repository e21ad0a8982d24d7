// Package lock implements the cross-process coordinator lock (spec §4.7):
// a single row in the shared index's sync_lock table ensures only one peer
// process runs a full sync cycle against a shared repo at a time, with a
// TTL and dead-holder stealing so a crashed holder never wedges the lock
// forever.
//
// Grounded on untoldecay-BeadsLog's internal/daemon/registry.go (PID
// liveness check + atomic read-modify-write pattern), adapted from a
// file-backed JSON registry to a row in the existing SQLite index, per the
// spec's explicit placement of sync_lock in "the local index table".
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"syscall"
	"time"
)

// Name is the single row's key (spec: "a single row keyed \"sync\"").
const Name = "sync"

// DefaultTTL is the lock's time-to-live if the holder never releases it
// (spec §4.7: "TTL default = 90s").
const DefaultTTL = 90 * time.Second

// Coordinator manages the sync_lock row in db.
type Coordinator struct {
	db  *sql.DB
	pid int
	ttl time.Duration
}

// New returns a Coordinator bound to db's sync_lock table, using the
// current process's PID as its identity and DefaultTTL.
func New(db *sql.DB) *Coordinator {
	return &Coordinator{db: db, pid: os.Getpid(), ttl: DefaultTTL}
}

// WithTTL returns a copy of c using ttl instead of DefaultTTL.
func (c *Coordinator) WithTTL(ttl time.Duration) *Coordinator {
	cp := *c
	cp.ttl = ttl
	return &cp
}

// TryAcquire attempts to take the lock, following spec §4.7's table:
//   - no row: insert and return true
//   - same pid already holds it: refresh expires_at, return true
//   - expired, or holder process is dead: steal it, return true
//   - otherwise: return false
//
// The whole decision runs inside a single transaction so two processes
// racing to steal an expired lock can't both succeed.
func (c *Coordinator) TryAcquire(ctx context.Context) (bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var holderPID int
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT holder_pid, expires_at FROM sync_lock WHERE name = ?`, Name).
		Scan(&holderPID, &expiresAt)

	now := time.Now().UTC()
	acquired := false

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_lock (name, holder_pid, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
			Name, c.pid, now, now.Add(c.ttl)); err != nil {
			return false, err
		}
		acquired = true

	case err != nil:
		return false, err

	case holderPID == c.pid:
		if _, err := tx.ExecContext(ctx, `UPDATE sync_lock SET expires_at = ? WHERE name = ?`,
			now.Add(c.ttl), Name); err != nil {
			return false, err
		}
		acquired = true

	case expiresAt.Before(now) || !isProcessAlive(holderPID):
		if _, err := tx.ExecContext(ctx, `
			UPDATE sync_lock SET holder_pid = ?, acquired_at = ?, expires_at = ? WHERE name = ?`,
			c.pid, now, now.Add(c.ttl), Name); err != nil {
			return false, err
		}
		acquired = true
	}

	if !acquired {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Release deletes the lock row only if this process currently holds it;
// releasing a lock this process doesn't hold is a no-op.
func (c *Coordinator) Release(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM sync_lock WHERE name = ? AND holder_pid = ?`, Name, c.pid)
	return err
}

// Refresh extends the current holder's expires_at, for long-running sync
// cycles that want to renew the lease before it lapses; it is a no-op (no
// error) if this process isn't the current holder.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE sync_lock SET expires_at = ? WHERE name = ? AND holder_pid = ?`,
		time.Now().UTC().Add(c.ttl), Name, c.pid)
	return err
}

// isProcessAlive reports whether pid refers to a live OS process, by
// sending it signal 0 (no-op signal used purely for existence/permission
// checking). This is the one piece of the lock that is inherently a
// syscall-level concern with no third-party equivalent in the retrieval
// pack; the pack's own daemon registries implement the identical check by
// hand rather than importing a library for it.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
