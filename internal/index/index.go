// Package index stores chunk embeddings in SQLite and answers filtered
// nearest-neighbour queries by cosine similarity.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

var (
	// ErrDimensionMismatch means an embedding does not match the dimension
	// established by the first insert, usually a model version skew.
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")
	ErrInvalidRecord     = errors.New("index: invalid record")
)

// Record is one chunk as stored in the index.
type Record struct {
	ID           string
	Embedding    []float32
	Text         string
	DocumentID   string
	DocumentName string
}

// Match is a query hit. Score is the cosine similarity, higher is closer.
type Match struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
}

// Metadata is the per-chunk attribute set, keyed like the original collection.
type Metadata struct {
	DocumentID   string `json:"fileId"`
	DocumentName string `json:"fileName"`
}

// Stats describes the index contents.
type Stats struct {
	Count          int       `json:"count"`
	Dimension      int       `json:"dimension"`
	DocumentIDs    []string  `json:"file_ids"`
	SampleMetadata *Metadata `json:"sample_metadata"`
}

// Index is safe for concurrent use. Writes are serialized; reads run in parallel.
type Index struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu sync.RWMutex
	// 0 until the first chunk is stored by this or another process
	dimension atomic.Int64
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens or creates the index file at path.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	idx := &Index{db: db, path: path, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index migration failed: %w", err)
	}
	if _, err := idx.currentDimension(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("vector index opened", "path", path, "dimension", idx.Dimension())
	return idx, nil
}

func (x *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		document_id   TEXT NOT NULL,
		document_name TEXT NOT NULL,
		content       TEXT NOT NULL,
		embedding     BLOB NOT NULL,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, seq);

	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	_, err := x.db.Exec(schema)
	return err
}

func readDimension(ctx context.Context, q rowQuerier) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading index dimension: %w", err)
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt index dimension %q: %w", value, err)
	}
	return dim, nil
}

// currentDimension returns the cached dimension. While it is unset the
// meta row is read again, since another process may share the file.
func (x *Index) currentDimension(ctx context.Context, q rowQuerier) (int, error) {
	if dim := x.dimension.Load(); dim != 0 {
		return int(dim), nil
	}
	dim, err := readDimension(ctx, q)
	if err != nil {
		return 0, err
	}
	if dim != 0 {
		x.dimension.CompareAndSwap(0, int64(dim))
	}
	return dim, nil
}

// Path returns the database file path.
func (x *Index) Path() string { return x.path }

// Dimension returns the established embedding dimension, 0 for an empty index.
func (x *Index) Dimension() int {
	return int(x.dimension.Load())
}

// Close closes the database handle.
func (x *Index) Close() error {
	return x.db.Close()
}

// Upsert appends a chunk. It is committed to disk before Upsert returns.
// The first insert fixes the index dimension.
func (x *Index) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" || rec.DocumentID == "" || len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: id, document id and embedding are required", ErrInvalidRecord)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	dim, err := x.currentDimension(ctx, tx)
	if err != nil {
		return err
	}
	if dim == 0 {
		// another writer may get here first; its dimension wins
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO index_meta (key, value) VALUES ('dimension', ?)`,
			strconv.Itoa(len(rec.Embedding))); err != nil {
			return fmt.Errorf("saving index dimension: %w", err)
		}
		if dim, err = readDimension(ctx, tx); err != nil {
			return err
		}
	}
	if len(rec.Embedding) != dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(rec.Embedding), dim)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (id, document_id, document_name, content, embedding)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.DocumentID, rec.DocumentName, rec.Text, float32SliceToBytes(rec.Embedding)); err != nil {
		return fmt.Errorf("saving chunk %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunk %s: %w", rec.ID, err)
	}
	x.dimension.CompareAndSwap(0, int64(dim))
	return nil
}

type scored struct {
	match Match
	seq   int64
}

// Query returns at most k chunks of documentID ordered by descending cosine
// similarity; equal scores keep insertion order. No match is not an error.
func (x *Index) Query(ctx context.Context, embedding []float32, k int, documentID string) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be > 0, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("index: query embedding is empty")
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	dim, err := x.currentDimension(ctx, x.db)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []Match{}, nil
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(embedding), dim)
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT seq, id, content, embedding
		FROM chunks WHERE document_id = ?
		ORDER BY seq`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []scored
	for rows.Next() {
		var (
			s    scored
			blob []byte
		)
		if err := rows.Scan(&s.seq, &s.match.ChunkID, &s.match.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		s.match.Score = cosine(embedding, bytesToFloat32Slice(blob))
		hits = append(hits, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].match.Score > hits[j].match.Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = h.match
	}
	return out, nil
}

// Stats reports the chunk count, the distinct document ids in first-seen
// order and the metadata of the oldest chunk.
func (x *Index) Stats(ctx context.Context) (*Stats, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	dim, err := x.currentDimension(ctx, x.db)
	if err != nil {
		return nil, err
	}
	st := &Stats{Dimension: dim, DocumentIDs: []string{}}
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Count); err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	if st.Count == 0 {
		return st, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT document_id FROM chunks
		GROUP BY document_id ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		st.DocumentIDs = append(st.DocumentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	var md Metadata
	if err := x.db.QueryRowContext(ctx, `
		SELECT document_id, document_name FROM chunks ORDER BY seq LIMIT 1`).
		Scan(&md.DocumentID, &md.DocumentName); err != nil {
		return nil, fmt.Errorf("reading sample metadata: %w", err)
	}
	st.SampleMetadata = &md
	return st, nil
}
