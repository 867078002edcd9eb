package indexer

import (
	"fmt"
	"sync"
	"time"
)

// FileError records one file that failed during a cycle. The file's prior
// index state is untouched; it will be retried next cycle.
type FileError struct {
	Path string
	Err  error
}

// CycleReport summarizes one indexing cycle.
type CycleReport struct {
	ID       string
	Started  time.Time
	Finished time.Time

	mu        sync.Mutex
	Added     int
	Updated   int
	Removed   int
	Unchanged int
	Errors    []FileError
}

func (r *CycleReport) addAdded() {
	r.mu.Lock()
	r.Added++
	r.mu.Unlock()
}

func (r *CycleReport) addUpdated() {
	r.mu.Lock()
	r.Updated++
	r.mu.Unlock()
}

func (r *CycleReport) addRemoved() {
	r.mu.Lock()
	r.Removed++
	r.mu.Unlock()
}

func (r *CycleReport) addUnchanged() {
	r.mu.Lock()
	r.Unchanged++
	r.mu.Unlock()
}

func (r *CycleReport) addError(path string, err error) {
	r.mu.Lock()
	r.Errors = append(r.Errors, FileError{Path: path, Err: err})
	r.mu.Unlock()
}

// Changed reports whether the cycle wrote anything.
func (r *CycleReport) Changed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Added+r.Updated+r.Removed > 0
}

// Duration returns the cycle wall time.
func (r *CycleReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Summary renders a one-line human-readable result.
func (r *CycleReport) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("added %d, updated %d, removed %d, unchanged %d, errors %d (%.2fs)",
		r.Added, r.Updated, r.Removed, r.Unchanged, len(r.Errors),
		r.Finished.Sub(r.Started).Seconds())
}
