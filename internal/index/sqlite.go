package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"eurorag/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS corpora (
    name TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    count INTEGER NOT NULL,
    built_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS units (
    corpus TEXT NOT NULL,
    position INTEGER NOT NULL,
    text TEXT NOT NULL,
    embedding BLOB NOT NULL,
    PRIMARY KEY (corpus, position)
);
`

// SQLiteStore keeps every corpus in one sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; readers go through the same connection
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an open database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("index: db is nil")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("index: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save replaces the corpus inside a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, idx *domain.CorpusIndex) error {
	const op = "save sqlite artifacts"
	fail := func(err error) error { return domain.NewError(domain.ErrBuild, op, idx.Name, err) }

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE corpus = ?`, idx.Name); err != nil {
		return fail(err)
	}
	builtAt := idx.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO corpora(name, model, dimension, count, built_at) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET model = excluded.model, dimension = excluded.dimension,
		 count = excluded.count, built_at = excluded.built_at`,
		idx.Name, idx.Model, idx.Dimension, idx.Len(), builtAt.Format(time.RFC3339Nano)); err != nil {
		return fail(err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO units(corpus, position, text, embedding) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fail(err)
	}
	defer stmt.Close()
	for i, r := range idx.Records {
		if _, err := stmt.ExecContext(ctx, idx.Name, i, r.Text, encodeEmbedding(r.Vector)); err != nil {
			return fail(fmt.Errorf("unit %d: %w", i, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return nil
}

// Load reads a corpus back in position order.
func (s *SQLiteStore) Load(ctx context.Context, name string) (*domain.CorpusIndex, error) {
	const op = "load sqlite artifacts"
	fail := func(err error) error { return domain.NewError(domain.ErrIndexLoad, op, name, err) }

	var (
		model     string
		dimension int
		count     int
		builtAt   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT model, dimension, count, built_at FROM corpora WHERE name = ?`, name).
		Scan(&model, &dimension, &count, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fail(fmt.Errorf("corpus %q not found", name))
	}
	if err != nil {
		return nil, fail(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, text, embedding FROM units WHERE corpus = ? ORDER BY position`, name)
	if err != nil {
		return nil, fail(err)
	}
	defer rows.Close()

	vectors := make([][]float32, 0, count)
	texts := make([]string, 0, count)
	for rows.Next() {
		var (
			pos  int
			text string
			blob []byte
		)
		if err := rows.Scan(&pos, &text, &blob); err != nil {
			return nil, fail(err)
		}
		if pos != len(texts) {
			return nil, fail(fmt.Errorf("%w: expected position %d, found %d", domain.ErrMisaligned, len(texts), pos))
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fail(fmt.Errorf("unit %d: %w", pos, err))
		}
		vectors = append(vectors, vec)
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(err)
	}
	if len(texts) != count {
		return nil, fail(fmt.Errorf("%w: corpus row says %d units, found %d", domain.ErrMisaligned, count, len(texts)))
	}

	idx, err := domain.NewCorpusIndex(name, model, vectors, texts)
	if err != nil {
		return nil, fail(err)
	}
	if idx.Len() > 0 && idx.Dimension != dimension {
		return nil, fail(fmt.Errorf("%w: corpus row says %d, vectors have %d", domain.ErrDimensionMismatch, dimension, idx.Dimension))
	}
	idx.Dimension = dimension
	if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
		idx.BuiltAt = t
	}
	return idx, nil
}

// encodeEmbedding lays out float32 values little-endian without a length
// prefix; the length is derived from the blob size on decode.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
