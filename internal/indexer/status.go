package indexer

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/askfolder/askfolder/internal/store"
)

// FileState classifies a watched file relative to the index.
type FileState string

const (
	// StateIngested means the stored fingerprint matches the file on disk.
	StateIngested FileState = "INGESTED"
	// StateNew means the file is on disk but has never been indexed.
	StateNew FileState = "NEW"
	// StateStale means the file changed since it was last indexed.
	StateStale FileState = "STALE"
	// StateMissing means the index still holds a file no longer on disk.
	StateMissing FileState = "MISSING"
)

// FileStatus is one row of the files listing.
type FileStatus struct {
	Path      string
	State     FileState
	Size      int64
	ModTime   time.Time
	IndexedAt time.Time
}

// Statuses compares the watched folder against the fingerprint store
// without modifying anything. Results are sorted by path.
func (s *Scheduler) Statuses(ctx context.Context) ([]FileStatus, error) {
	// Unreadable entries are simply absent from the listing; the scratch
	// report swallows the per-entry errors a cycle would surface.
	disk, err := s.snapshot("", &CycleReport{})
	if err != nil {
		return nil, err
	}
	stored, err := s.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*store.SourceFile, len(stored))
	for _, f := range stored {
		byPath[f.Path] = f
	}

	out := make([]FileStatus, 0, len(disk)+len(stored))
	for path, stat := range disk {
		status := FileStatus{
			Path:    path,
			State:   StateNew,
			Size:    stat.size,
			ModTime: stat.modTime,
		}
		if rec, ok := byPath[path]; ok {
			status.IndexedAt = rec.IndexedAt
			status.State = StateStale
			// mtime and size are a cheap pre-check before hashing.
			if rec.ModTime.Equal(stat.modTime) && rec.Size == stat.size {
				status.State = StateIngested
			} else if content, err := os.ReadFile(stat.absPath); err == nil &&
				store.Fingerprint(content, stat.modTime) == rec.Fingerprint {
				status.State = StateIngested
			}
		}
		out = append(out, status)
	}
	for path, rec := range byPath {
		if _, onDisk := disk[path]; onDisk {
			continue
		}
		out = append(out, FileStatus{
			Path:      path,
			State:     StateMissing,
			Size:      rec.Size,
			ModTime:   rec.ModTime,
			IndexedAt: rec.IndexedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
