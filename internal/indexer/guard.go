package indexer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Guard provides cross-process locking of the data directory using
// gofrs/flock. Two watch processes pointed at the same folder would race
// each other's SQLite writes and graph saves; the guard makes the second
// one fail fast instead. Works on all platforms (Unix, Linux, macOS,
// Windows).
type Guard struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewGuard creates a guard over the given lock file path.
func NewGuard(path string) *Guard {
	return &Guard{
		path:  path,
		flock: flock.New(path),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it's held by another
// process.
func (g *Guard) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := g.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	if acquired {
		g.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call multiple times or on an
// unacquired guard.
func (g *Guard) Unlock() error {
	if !g.locked {
		return nil
	}
	g.locked = false

	if err := g.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (g *Guard) Path() string {
	return g.path
}
