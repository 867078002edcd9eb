package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// schema is applied on open. SQLite is the source of truth: chunk rows keep
// their embedding blobs so vector graphs can always be rebuilt.
const schema = `
CREATE TABLE IF NOT EXISTS files (
	path        TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	size        INTEGER NOT NULL,
	mtime       INTEGER NOT NULL,
	indexed_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS namespaces (
	name       TEXT PRIMARY KEY,
	dimensions INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	namespace    TEXT NOT NULL REFERENCES namespaces(name),
	seq          INTEGER NOT NULL,
	page         INTEGER NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	text         TEXT NOT NULL,
	vector       BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
CREATE INDEX IF NOT EXISTS idx_chunks_namespace ON chunks(namespace);
`

// SQLiteStore implements FingerprintStore on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ FingerprintStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. WAL mode plus a busy timeout lets a watch process and one-off CLI
// reads coexist; writes still funnel through a single connection.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536", // 64MB
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	// Single writer connection avoids SQLITE_BUSY between goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// GetFile returns the record for path, or nil if never indexed.
func (s *SQLiteStore) GetFile(ctx context.Context, path string) (*SourceFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, fingerprint, size, mtime, indexed_at FROM files WHERE path = ?`, path)

	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", path, err)
	}
	return f, nil
}

// ListFiles returns all indexed file records ordered by path.
func (s *SQLiteStore) ListFiles(ctx context.Context) ([]*SourceFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, fingerprint, size, mtime, indexed_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*SourceFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*SourceFile, error) {
	var f SourceFile
	var mtime, indexedAt int64
	if err := row.Scan(&f.Path, &f.Fingerprint, &f.Size, &mtime, &indexedAt); err != nil {
		return nil, err
	}
	f.ModTime = time.Unix(0, mtime)
	f.IndexedAt = time.Unix(0, indexedAt)
	return &f, nil
}

// ChunkIDsByFile returns the chunk IDs for a path grouped by namespace.
func (s *SQLiteStore) ChunkIDsByFile(ctx context.Context, path string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, namespace FROM chunks WHERE path = ? ORDER BY namespace, seq`, path)
	if err != nil {
		return nil, fmt.Errorf("chunk ids for %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]string)
	for rows.Next() {
		var id, ns string
		if err := rows.Scan(&id, &ns); err != nil {
			return nil, err
		}
		out[ns] = append(out[ns], id)
	}
	return out, rows.Err()
}

// ReplaceFileChunks atomically upserts the file record and swaps all of its
// chunk rows for the given set. One transaction makes per-file indexing
// all-or-nothing: a crash mid-write leaves either the old or the new state.
func (s *SQLiteStore) ReplaceFileChunks(ctx context.Context, file *SourceFile, chunks []*Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (path, fingerprint, size, mtime, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			size        = excluded.size,
			mtime       = excluded.mtime,
			indexed_at  = excluded.indexed_at`,
		file.Path, file.Fingerprint, file.Size,
		file.ModTime.UnixNano(), file.IndexedAt.UnixNano())
	if err != nil {
		return apperrors.IndexWriteError(fmt.Sprintf("upsert file %s", file.Path), err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, file.Path); err != nil {
		return apperrors.IndexWriteError(fmt.Sprintf("clear chunks of %s", file.Path), err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, path, namespace, seq, page, start_offset, end_offset, text, vector)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range chunks {
			_, err := stmt.ExecContext(ctx, c.ID, c.Path, c.Namespace,
				c.Seq, c.Page, c.StartOffset, c.EndOffset, c.Text, encodeVector(c.Vector))
			if err != nil {
				return apperrors.IndexWriteError(
					fmt.Sprintf("insert chunk %s of %s", c.ID, c.Path), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.IndexWriteError(fmt.Sprintf("commit %s", file.Path), err)
	}
	return nil
}

// RemoveFile deletes the file record and its chunks, returning the removed
// chunk IDs grouped by namespace.
func (s *SQLiteStore) RemoveFile(ctx context.Context, path string) (map[string][]string, error) {
	removed, err := s.ChunkIDsByFile(ctx, path)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin remove tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return nil, apperrors.IndexWriteError(fmt.Sprintf("delete chunks of %s", path), err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return nil, apperrors.IndexWriteError(fmt.Sprintf("delete file %s", path), err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.IndexWriteError(fmt.Sprintf("commit removal of %s", path), err)
	}
	return removed, nil
}

// InvalidateFile clears the stored fingerprint of path so the next cycle
// treats the file as changed and re-indexes it. The chunk rows stay; they
// are swapped out when the re-index lands.
func (s *SQLiteStore) InvalidateFile(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE files SET fingerprint = '' WHERE path = ?`, path); err != nil {
		return apperrors.IndexWriteError(fmt.Sprintf("invalidate %s", path), err)
	}
	return nil
}

// GetChunks fetches chunk rows by ID. Missing IDs are silently absent.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, path, namespace, seq, page, start_offset, end_offset, text, vector
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Path, &c.Namespace, &c.Seq, &c.Page,
			&c.StartOffset, &c.EndOffset, &c.Text, &blob); err != nil {
			return nil, err
		}
		c.Vector = decodeVector(blob)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Namespaces returns all registered namespaces with their dimensions.
func (s *SQLiteStore) Namespaces(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, dimensions FROM namespaces`)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var dims int
		if err := rows.Scan(&name, &dims); err != nil {
			return nil, err
		}
		out[name] = dims
	}
	return out, rows.Err()
}

// EnsureNamespace registers a namespace's dimensions. Registering the same
// namespace twice with different dimensions is a configuration error: the
// model behind the name must have changed.
func (s *SQLiteStore) EnsureNamespace(ctx context.Context, namespace string, dimensions int) error {
	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM namespaces WHERE name = ?`, namespace).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO namespaces (name, dimensions, created_at) VALUES (?, ?, ?)`,
			namespace, dimensions, time.Now().UnixNano())
		if err != nil {
			return apperrors.IndexWriteError(fmt.Sprintf("register namespace %s", namespace), err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("lookup namespace %s: %w", namespace, err)
	case existing != dimensions:
		return apperrors.New(apperrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("namespace %s registered with %d dims, provider now reports %d",
				namespace, existing, dimensions), nil).
			WithSuggestion("remove the namespace data or restore the original model")
	default:
		return nil
	}
}

// EmbeddingsByNamespace returns all (id, vector) pairs of a namespace.
func (s *SQLiteStore) EmbeddingsByNamespace(ctx context.Context, namespace string) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector FROM chunks WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("embeddings for %s: %w", namespace, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out[id] = decodeVector(blob)
	}
	return out, rows.Err()
}

// CountChunks returns per-namespace chunk counts.
func (s *SQLiteStore) CountChunks(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT namespace, COUNT(*) FROM chunks GROUP BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var ns string
		var count int
		if err := rows.Scan(&ns, &count); err != nil {
			return nil, err
		}
		out[ns] = count
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeVector packs float32s as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into float32s.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
