package rendezvous

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is the fallback cadence when fsnotify can't be set up:
// inotify/kqueue/FSEvent where available, 200ms polling otherwise.
const pollInterval = 200 * time.Millisecond

// WaitForCreate blocks until name appears in the directory, ctx is
// cancelled, or it already exists.
func (d *Dir) WaitForCreate(ctx context.Context, name string) error {
	return d.waitFor(ctx, name, true)
}

// WaitForDelete blocks until name disappears from the directory or
// ctx is cancelled. Graceful drain has no timeout by design; callers
// that want one pass a context with a deadline.
func (d *Dir) WaitForDelete(ctx context.Context, name string) error {
	return d.waitFor(ctx, name, false)
}

func (d *Dir) waitFor(ctx context.Context, name string, wantExists bool) error {
	if d.Exists(name) == wantExists {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return d.pollFor(ctx, name, wantExists)
	}
	defer watcher.Close()

	if err := watcher.Add(d.path); err != nil {
		return d.pollFor(ctx, name, wantExists)
	}

	target := d.Path(name)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if d.Exists(name) == wantExists {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return d.pollFor(ctx, name, wantExists)
			}
			if ev.Name != target {
				continue
			}
			if wantExists && (ev.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				return nil
			}
			if !wantExists && (ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0) {
				return nil
			}
		case <-watcher.Errors:
			// fall through to the ticker; a missed event is covered
			// by the periodic re-check below.
		case <-ticker.C:
			// re-check below
		}
	}
}

// pollFor is the polling-only fallback used when fsnotify can't watch
// the directory (e.g. an unsupported filesystem).
func (d *Dir) pollFor(ctx context.Context, name string, wantExists bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if d.Exists(name) == wantExists {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReadPID reads and parses a decimal pid from a rendezvous file.
func (d *Dir) ReadPID(name string) (int, error) {
	data, err := os.ReadFile(d.Path(name))
	if err != nil {
		return 0, err
	}
	return parsePID(data)
}
