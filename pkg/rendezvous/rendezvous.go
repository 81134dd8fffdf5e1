// Package rendezvous implements the file-system coordination
// primitive workerman's processes use in place of shared memory:
// small JSON blobs written atomically under a working directory,
// plus exclusive advisory locks for callers that need mutual
// exclusion on a path.
package rendezvous

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/cuemby/workerman/pkg/werrors"
)

// Well-known rendezvous filenames. Per-process files use
// the worker's or master's hash string as the filename instead.
const (
	ProcessPID   = "process.pid"
	StatusFile   = "status.workerman"
	ShutdownFile = "shutdown.workerman"
	RestartFile  = "restart.workerman"
)

// WellKnown lists the four fixed-name rendezvous files. The master
// removes any of these it finds on startup and removes them all again
// on clean exit.
var WellKnown = []string{ProcessPID, StatusFile, ShutdownFile, RestartFile}

// Dir is a working directory used for rendezvous. All paths passed to
// its methods are filenames relative to the directory, never absolute
// paths — this keeps every rendezvous access confined to one place.
type Dir struct {
	path string

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

// New returns a Dir rooted at path, creating it if necessary.
func New(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &werrors.FileIOError{Path: path, Op: "mkdir", Cause: err}
	}
	return &Dir{path: path, locks: make(map[string]*flock.Flock)}, nil
}

// Path returns the path of name within the directory. It is absolute
// only when the directory's own path is.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.path, name)
}

// Exists reports whether name exists in the directory.
func (d *Dir) Exists(name string) bool {
	_, err := os.Stat(d.Path(name))
	return err == nil
}

// WriteJSON atomically writes v as JSON to name: it writes to a
// temporary file in the same directory and renames it into place, so
// readers never observe a partially written rendezvous file.
func (d *Dir) WriteJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &werrors.FileIOError{Path: name, Op: "marshal", Cause: err}
	}
	return d.WriteBytes(name, data)
}

// WriteBytes atomically writes data to name.
func (d *Dir) WriteBytes(name string, data []byte) error {
	target := d.Path(name)
	tmp, err := os.CreateTemp(d.path, ".tmp-"+name+"-*")
	if err != nil {
		return &werrors.FileIOError{Path: name, Op: "create", Cause: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &werrors.FileIOError{Path: name, Op: "write", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &werrors.FileIOError{Path: name, Op: "close", Cause: err}
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return &werrors.FileIOError{Path: name, Op: "rename", Cause: err}
	}
	return nil
}

// ReadJSON reads and unmarshals name into v.
func (d *Dir) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(d.Path(name))
	if err != nil {
		return &werrors.FileIOError{Path: name, Op: "read", Cause: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &werrors.FileIOError{Path: name, Op: "unmarshal", Cause: err}
	}
	return nil
}

// Delete best-effort removes name. A missing file is not an error —
// deletion is used as a completion signal, and the caller racing
// another deleter is expected.
func (d *Dir) Delete(name string) error {
	if err := os.Remove(d.Path(name)); err != nil && !os.IsNotExist(err) {
		return &werrors.FileIOError{Path: name, Op: "unlink", Cause: err}
	}
	return nil
}

// CleanWellKnown removes the four fixed-name rendezvous files. The
// master calls this on startup (to discard a stale run) and on clean
// exit.
func (d *Dir) CleanWellKnown() error {
	for _, name := range WellKnown {
		if err := d.Delete(name); err != nil {
			return err
		}
	}
	return nil
}

// Lock acquires an exclusive advisory lock on name and caches the
// underlying flock handle so a matching Unlock can release it.
func (d *Dir) Lock(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, locked := d.locks[name]; locked {
		return nil
	}
	fl := flock.New(d.Path(name))
	if err := fl.Lock(); err != nil {
		return &werrors.FileIOError{Path: name, Op: "lock", Cause: err}
	}
	d.locks[name] = fl
	return nil
}

// Unlock releases the lock held on name. It errors only when the file
// is *not* currently locked by this Dir — not the other way around.
func (d *Dir) Unlock(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fl, locked := d.locks[name]
	if !locked {
		return &werrors.FileIOError{Path: name, Op: "unlock", Cause: os.ErrInvalid}
	}
	delete(d.locks, name)
	if err := fl.Unlock(); err != nil {
		return &werrors.FileIOError{Path: name, Op: "unlock", Cause: err}
	}
	return nil
}
