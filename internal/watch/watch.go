// Package watch notifies a callback when an operator-facing config file
// changes on disk, so a long-running kbd process can pick up a routing
// table edit without a restart.
//
// Grounded on untoldecay-BeadsLog's cmd/bd/daemon_watcher.go: an
// fsnotify.Watcher on the file's parent directory (so creates/renames are
// caught even when the file itself doesn't exist yet), debounced, with a
// polling fallback when fsnotify.NewWatcher fails (some sandboxed/CI
// environments have no inotify), controllable via an env var the way the
// teacher's BEADS_WATCHER_FALLBACK is.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FallbackDisableEnv disables the polling fallback when set to "false" or
// "0", matching the teacher's BEADS_WATCHER_FALLBACK convention.
const FallbackDisableEnv = "KBD_WATCHER_FALLBACK"

const (
	debounce     = 500 * time.Millisecond
	pollInterval = 5 * time.Second
)

// File watches one path and invokes onChanged (debounced) whenever it's
// written, created, or renamed into place.
type File struct {
	watcher *fsnotify.Watcher
	polling bool
	path    string
	cancel  context.CancelFunc
}

// Watch starts watching path in the background. Call Stop to release it.
func Watch(path string, onChanged func()) (*File, error) {
	f := &File{path: path}

	fallbackEnv := os.Getenv(FallbackDisableEnv)
	fallbackDisabled := fallbackEnv == "false" || fallbackEnv == "0"

	w, err := fsnotify.NewWatcher()
	if err != nil {
		if fallbackDisabled {
			return nil, err
		}
		f.polling = true
	} else {
		f.watcher = w
		if err := w.Add(filepath.Dir(path)); err != nil {
			_ = w.Close()
			if fallbackDisabled {
				return nil, err
			}
			f.watcher = nil
			f.polling = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	debounced := debounceFunc(onChanged, debounce)
	if f.polling {
		go f.pollLoop(ctx, debounced)
	} else {
		go f.eventLoop(ctx, debounced)
	}
	return f, nil
}

// Stop releases the watcher and stops its background goroutine.
func (f *File) Stop() {
	f.cancel()
	if f.watcher != nil {
		_ = f.watcher.Close()
	}
}

func (f *File) eventLoop(ctx context.Context, onChanged func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Name == f.path && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				onChanged()
			}
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *File) pollLoop(ctx context.Context, onChanged func()) {
	var lastMod time.Time
	if st, err := os.Stat(f.path); err == nil {
		lastMod = st.ModTime()
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := os.Stat(f.path)
			if err != nil {
				continue
			}
			if st.ModTime().After(lastMod) {
				lastMod = st.ModTime()
				onChanged()
			}
		}
	}
}

// debounceFunc returns a function that calls fn only after d has elapsed
// with no further calls, collapsing a burst of filesystem events (a
// typical editor save emits several) into one reload.
func debounceFunc(fn func(), d time.Duration) func() {
	var timer *time.Timer
	return func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, fn)
	}
}
