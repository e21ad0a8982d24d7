package lock

import (
	"fmt"

	"github.com/gofrs/flock"
)

// ProcessLock is a local, file-based advisory lock guarding the whole kbd
// process instance against a second instance starting against the same
// index path. It is distinct from Coordinator, which arbitrates sync
// cycles across machines via a row in the shared index: ProcessLock never
// leaves the local filesystem and exists purely to fail fast instead of
// letting two local processes open the same SQLite file as separate
// writers.
//
// Grounded on untoldecay-BeadsLog's cmd/bd/sync.go, which takes a
// gofrs/flock lock on a ".sync.lock" file beside the data directory before
// running a sync, refusing with "another sync is in progress" when it's
// already held.
type ProcessLock struct {
	fl *flock.Flock
}

// AcquireProcessLock tries to take the advisory lock at path, returning
// immediately with ok=false if another process already holds it rather
// than blocking.
func AcquireProcessLock(path string) (lockHandle *ProcessLock, ok bool, err error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lock: acquiring process lock %s: %w", path, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &ProcessLock{fl: fl}, true, nil
}

// Release drops the lock.
func (p *ProcessLock) Release() error {
	return p.fl.Unlock()
}
