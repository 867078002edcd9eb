// Package indexer drives incremental indexing cycles: diff the watched
// folder against stored fingerprints, re-embed what changed, and keep the
// vector namespaces in step with SQLite.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/askfolder/askfolder/internal/chunk"
	"github.com/askfolder/askfolder/internal/config"
	"github.com/askfolder/askfolder/internal/embed"
	apperrors "github.com/askfolder/askfolder/internal/errors"
	"github.com/askfolder/askfolder/internal/extract"
	"github.com/askfolder/askfolder/internal/store"
)

// Deps are the collaborators a Scheduler needs.
type Deps struct {
	Config    *config.Config
	Store     store.FingerprintStore
	Index     *store.NamespacedIndex
	Embedders map[string]embed.Embedder // keyed by provider name
	Registry  *extract.Registry
	Splitter  *chunk.Splitter
	Logger    *slog.Logger
}

// Scheduler runs indexing cycles over the watched folder. A cycle is the
// unit of work: removals first, then adds and updates, each file
// all-or-nothing. Cycles never overlap.
type Scheduler struct {
	cfg       *config.Config
	store     store.FingerprintStore
	index     *store.NamespacedIndex
	embedders map[string]embed.Embedder
	registry  *extract.Registry
	splitter  *chunk.Splitter
	logger    *slog.Logger

	locks   *pathLocks
	guard   *Guard
	trigger chan struct{}

	cycleMu chanMutex
}

// chanMutex is a mutex that can also be tried, used to serialize cycles.
type chanMutex chan struct{}

func (m chanMutex) lock()   { m <- struct{}{} }
func (m chanMutex) unlock() { <-m }

// NewScheduler validates deps and builds a scheduler.
func NewScheduler(deps Deps) (*Scheduler, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("fingerprint store is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if len(deps.Embedders) == 0 {
		return nil, fmt.Errorf("at least one embedder is required")
	}
	if deps.Registry == nil {
		deps.Registry = extract.NewRegistry()
	}
	if deps.Splitter == nil {
		deps.Splitter = chunk.NewSplitter(chunk.Options{
			TargetSize: deps.Config.Chunking.TargetSize,
			Overlap:    deps.Config.Chunking.Overlap,
			MinLength:  deps.Config.Chunking.MinLength,
		})
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Scheduler{
		cfg:       deps.Config,
		store:     deps.Store,
		index:     deps.Index,
		embedders: deps.Embedders,
		registry:  deps.Registry,
		splitter:  deps.Splitter,
		logger:    deps.Logger,
		locks:     newPathLocks(),
		guard:     NewGuard(deps.Config.LockPath()),
		trigger:   make(chan struct{}, 1),
		cycleMu:   make(chanMutex, 1),
	}, nil
}

// Run loops cycles until ctx is cancelled: one immediately, then on every
// interval tick or TriggerNow call. The data directory is locked for the
// whole run so only one watcher owns it.
func (s *Scheduler) Run(ctx context.Context) error {
	acquired, err := s.guard.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return apperrors.ConfigError(
			fmt.Sprintf("another askfolder process holds %s", s.guard.Path()), nil).
			WithSuggestion("stop the other watcher or use a different data directory")
	}
	defer func() { _ = s.guard.Unlock() }()

	interval, err := s.cfg.IntervalDuration()
	if err != nil {
		return apperrors.ConfigError("invalid watch interval", err)
	}

	if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}

		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
	}
}

// TriggerNow requests an immediate cycle. Safe from any goroutine; extra
// triggers while one is pending are coalesced.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// fileStat is one file seen on disk during a walk.
type fileStat struct {
	absPath string
	size    int64
	modTime time.Time
}

// RunCycle performs one full indexing cycle and returns its report.
// Removals run before adds and updates so a rename never leaves both the
// old and new path retrievable at once.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleReport, error) {
	return s.runCycle(ctx, "")
}

// RunCycleFor runs one cycle restricted to a single file or subtree of the
// watched root. Relative targets are resolved against the root; targets
// outside it are rejected. The report counts only files inside the scope.
func (s *Scheduler) RunCycleFor(ctx context.Context, target string) (*CycleReport, error) {
	scope, err := s.scopeRel(target)
	if err != nil {
		return nil, err
	}
	return s.runCycle(ctx, scope)
}

func (s *Scheduler) runCycle(ctx context.Context, scope string) (*CycleReport, error) {
	s.cycleMu.lock()
	defer s.cycleMu.unlock()

	report := &CycleReport{
		ID:      uuid.NewString()[:8],
		Started: time.Now(),
	}
	log := s.logger.With(slog.String("cycle_id", report.ID))

	disk, err := s.snapshot(scope, report)
	if err != nil {
		if apperrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, apperrors.New(apperrors.ErrCodeFileUnreadable,
			fmt.Sprintf("walk %s: %v", s.cfg.Watch.Root, err), err)
	}

	stored, err := s.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	var removals []string
	for _, f := range stored {
		if scope != "" && !underScope(f.Path, scope) {
			continue
		}
		if _, onDisk := disk[f.Path]; !onDisk {
			removals = append(removals, f.Path)
		}
	}
	sort.Strings(removals)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Watch.Workers)
	for _, path := range removals {
		g.Go(func() error {
			if err := s.removeFile(gctx, path); err != nil {
				report.addError(path, err)
				log.Warn("remove failed", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			report.addRemoved()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if ctx.Err() != nil {
		report.Finished = time.Now()
		return report, ctx.Err()
	}

	paths := make([]string, 0, len(disk))
	for p := range disk {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Watch.Workers)
	for _, path := range paths {
		stat := disk[path]
		g.Go(func() error {
			status, err := s.indexFile(gctx, path, stat)
			if err != nil {
				// Cancellation is not a file failure
				if gctx.Err() != nil {
					return gctx.Err()
				}
				report.addError(path, err)
				log.Warn("index failed", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			switch status {
			case statusAdded:
				report.addAdded()
			case statusUpdated:
				report.addUpdated()
			default:
				report.addUnchanged()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		report.Finished = time.Now()
		return report, err
	}

	if report.Changed() {
		if err := s.index.SaveAll(); err != nil {
			return report, apperrors.IndexWriteError("persist vector graphs", err)
		}
	}

	report.Finished = time.Now()
	log.Info("cycle complete",
		slog.Int("added", report.Added),
		slog.Int("updated", report.Updated),
		slog.Int("removed", report.Removed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("errors", len(report.Errors)),
		slog.Duration("duration", report.Duration()))
	return report, nil
}

// scopeRel normalizes target to a slash path relative to the watched root.
// Relative targets are resolved against the root, matching how indexed
// paths are stored. Empty means the whole root.
func (s *Scheduler) scopeRel(target string) (string, error) {
	if target == "" {
		return "", nil
	}
	rootAbs, err := filepath.Abs(s.cfg.Watch.Root)
	if err != nil {
		return "", err
	}
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(rootAbs, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.ValidationError(
			fmt.Sprintf("%s is outside the watched folder %s", target, s.cfg.Watch.Root), err)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// underScope reports whether a stored path falls inside a scope path. Both
// are slash-separated and relative to the root.
func underScope(path, scope string) bool {
	return path == scope || strings.HasPrefix(path, scope+"/")
}

// eligible reports whether a file name passes the extension allow list and
// has a registered extractor. Hidden files never qualify.
func (s *Scheduler) eligible(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range s.cfg.Watch.Extensions {
		if strings.ToLower(allowed) == ext {
			return s.registry.Supports(name)
		}
	}
	return false
}

// snapshot collects the on-disk files of scope, or of the whole root when
// scope is empty. A scope naming a single eligible file yields a one-entry
// map; a vanished scope yields an empty map so its stored entries become
// removals.
func (s *Scheduler) snapshot(scope string, report *CycleReport) (map[string]fileStat, error) {
	start := s.cfg.Watch.Root
	if scope != "" {
		start = filepath.Join(start, filepath.FromSlash(scope))
	}

	info, err := os.Lstat(start)
	if os.IsNotExist(err) {
		return map[string]fileStat{}, nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().IsRegular() {
		if !s.eligible(filepath.Base(start)) {
			return nil, apperrors.New(apperrors.ErrCodeUnsupportedType,
				fmt.Sprintf("%s is not an indexable file type", scope), nil)
		}
		return map[string]fileStat{scope: {
			absPath: start,
			size:    info.Size(),
			modTime: info.ModTime(),
		}}, nil
	}

	return s.walkFrom(start, report)
}

// walkFrom walks a directory tree: regular files only, allow-listed
// extensions, symlinks and hidden directories skipped. Unreadable entries
// are recorded on the report and skipped so one bad directory cannot sink
// the cycle; only a failure at the start itself is fatal, since an empty
// snapshot would read as every file having been deleted.
func (s *Scheduler) walkFrom(start string, report *CycleReport) (map[string]fileStat, error) {
	root := s.cfg.Watch.Root
	out := make(map[string]fileStat)
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return err
			}
			s.recordWalkError(report, path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != start && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		// WalkDir lstats entries, so symlinks show up as symlinks and are
		// never followed.
		if !d.Type().IsRegular() {
			return nil
		}
		if !s.eligible(name) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Vanished between the directory read and the stat.
			s.recordWalkError(report, path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = fileStat{
			absPath: path,
			size:    info.Size(),
			modTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scheduler) recordWalkError(report *CycleReport, path string, err error) {
	rel, rerr := filepath.Rel(s.cfg.Watch.Root, path)
	if rerr != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	report.addError(rel, apperrors.New(apperrors.ErrCodeFileUnreadable,
		fmt.Sprintf("scan %s: %v", rel, err), err))
}

type indexStatus int

const (
	statusUnchanged indexStatus = iota
	statusAdded
	statusUpdated
)

// indexFile brings one file up to date. All providers are embedded before
// anything is written; the SQLite transaction then swaps the file's rows in
// one step, and only after it commits do the vector graphs change. A
// failure anywhere leaves the previous state fully intact.
func (s *Scheduler) indexFile(ctx context.Context, path string, stat fileStat) (indexStatus, error) {
	release := s.locks.acquire(path)
	defer release()

	content, err := os.ReadFile(stat.absPath)
	if err != nil {
		return statusUnchanged, apperrors.New(apperrors.ErrCodeFileUnreadable,
			fmt.Sprintf("read %s: %v", path, err), err)
	}

	fingerprint := store.Fingerprint(content, stat.modTime)

	existing, err := s.store.GetFile(ctx, path)
	if err != nil {
		return statusUnchanged, err
	}
	if existing != nil && existing.Fingerprint == fingerprint {
		return statusUnchanged, nil
	}

	doc, err := s.registry.Extract(path, content)
	if err != nil {
		return statusUnchanged, err
	}
	drafts := s.splitter.Split(doc)

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
	}

	// Embed with every provider before touching storage.
	var batches []nsBatch
	var chunks []*store.Chunk

	for _, name := range sortedKeys(s.embedders) {
		e := s.embedders[name]
		identity := e.Identity()
		ns := identity.Namespace()

		vectors, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return statusUnchanged, fmt.Errorf("embed %s with %s: %w", path, name, err)
		}

		dims := identity.Dimensions
		if dims == 0 && len(vectors) > 0 {
			dims = len(vectors[0])
		}

		batch := nsBatch{namespace: ns, dimensions: dims}
		for i, d := range drafts {
			id := chunk.ID(path, ns, d.Seq, d.Text)
			batch.ids = append(batch.ids, id)
			batch.vectors = append(batch.vectors, vectors[i])
			chunks = append(chunks, &store.Chunk{
				ID:          id,
				Path:        path,
				Namespace:   ns,
				Seq:         d.Seq,
				Page:        d.Page,
				StartOffset: d.StartOffset,
				EndOffset:   d.EndOffset,
				Text:        d.Text,
				Vector:      vectors[i],
			})
		}
		batches = append(batches, batch)
	}

	for _, b := range batches {
		if len(b.ids) == 0 {
			continue
		}
		if err := s.store.EnsureNamespace(ctx, b.namespace, b.dimensions); err != nil {
			return statusUnchanged, err
		}
	}

	// Old chunk IDs across all namespaces, including ones whose provider
	// is no longer configured.
	oldIDs, err := s.store.ChunkIDsByFile(ctx, path)
	if err != nil {
		return statusUnchanged, err
	}

	record := &store.SourceFile{
		Path:        path,
		Fingerprint: fingerprint,
		Size:        stat.size,
		ModTime:     stat.modTime,
		IndexedAt:   time.Now(),
	}
	if err := s.store.ReplaceFileChunks(ctx, record, chunks); err != nil {
		return statusUnchanged, err
	}

	// SQLite has committed; mirror the change into the graphs. Divergence
	// from a crash here is healed by RepairConsistency on startup, but an
	// in-process failure must not stand either: the fingerprint already
	// points at the new rows, so left alone the next cycle would read the
	// file as unchanged while its vectors stay unqueryable.
	if err := s.applyGraphChanges(ctx, path, oldIDs, batches); err != nil {
		if rbErr := s.rebuildTouched(ctx, oldIDs, batches); rbErr != nil {
			// Rebuild could not converge the graphs on the committed
			// rows. Clear the fingerprint so the next cycle retries the
			// file instead of skipping it.
			if invErr := s.store.InvalidateFile(ctx, path); invErr != nil {
				s.logger.Error("invalidate fingerprint after failed index write",
					slog.String("path", path), slog.String("error", invErr.Error()))
			}
			return statusUnchanged, err
		}
		s.logger.Warn("rebuilt vector graphs after failed index write",
			slog.String("path", path), slog.String("error", err.Error()))
	}

	if existing == nil {
		return statusAdded, nil
	}
	return statusUpdated, nil
}

// nsBatch is the embedded output of one provider for one file, keyed by the
// namespace its vectors go into.
type nsBatch struct {
	namespace  string
	dimensions int
	ids        []string
	vectors    [][]float32
}

// applyGraphChanges mirrors one committed file update into the vector
// graphs: stale IDs out of every namespace, then the new batches in.
func (s *Scheduler) applyGraphChanges(ctx context.Context, path string, oldIDs map[string][]string, batches []nsBatch) error {
	for ns, ids := range oldIDs {
		if err := s.index.Delete(ctx, ns, ids); err != nil {
			return apperrors.IndexWriteError(
				fmt.Sprintf("drop stale vectors of %s in %s", path, ns), err)
		}
	}
	for _, b := range batches {
		if len(b.ids) == 0 {
			continue
		}
		if err := s.index.Upsert(ctx, b.namespace, b.dimensions, b.ids, b.vectors); err != nil {
			return apperrors.IndexWriteError(
				fmt.Sprintf("add vectors of %s to %s", path, b.namespace), err)
		}
	}
	return nil
}

// rebuildTouched reconstructs every namespace a failed graph update
// touched from the committed chunk rows. On success the graphs match
// SQLite again and the advanced fingerprint is safe to keep.
func (s *Scheduler) rebuildTouched(ctx context.Context, oldIDs map[string][]string, batches []nsBatch) error {
	dims := make(map[string]int, len(batches))
	for _, b := range batches {
		dims[b.namespace] = b.dimensions
	}
	if len(oldIDs) > 0 {
		registered, err := s.store.Namespaces(ctx)
		if err != nil {
			return err
		}
		for ns := range oldIDs {
			if _, ok := dims[ns]; !ok {
				dims[ns] = registered[ns]
			}
		}
	}
	for _, ns := range sortedKeys(dims) {
		if err := s.index.Rebuild(ctx, s.store, ns, dims[ns]); err != nil {
			return err
		}
	}
	return nil
}

// removeFile drops one vanished file from SQLite and every namespace.
func (s *Scheduler) removeFile(ctx context.Context, path string) error {
	release := s.locks.acquire(path)
	defer release()

	removed, err := s.store.RemoveFile(ctx, path)
	if err != nil {
		return err
	}
	for ns, ids := range removed {
		if err := s.index.Delete(ctx, ns, ids); err != nil {
			return apperrors.IndexWriteError(
				fmt.Sprintf("drop vectors of %s in %s", path, ns), err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
