package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebounceFuncCollapsesBurst(t *testing.T) {
	var calls int32
	debounced := debounceFunc(func() { atomic.AddInt32(&calls, 1) }, 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		debounced()
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond,
		"a burst of calls within the debounce window collapses into exactly one")
}

func TestWatchFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var fired int32
	f, err := Watch(path, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, err)
	defer f.Stop()

	time.Sleep(20 * time.Millisecond) // let the watcher's goroutine start
	require.NoError(t, os.WriteFile(path, []byte(`{"repos":[]}`), 0o644))

	// 7s comfortably covers both the fsnotify path (500ms debounce) and the
	// polling fallback (5s tick) some sandboxed environments fall back to.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) > 0 }, 7*time.Second, 50*time.Millisecond,
		"a write to the watched path must invoke onChanged within the debounce window")
}
