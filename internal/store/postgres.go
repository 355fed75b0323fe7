package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/seanblong/docchat/pkg/models"
)

// PGStore keeps a collection as one pgvector table.
type PGStore struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
	dim   int
}

// NewPostgres connects to url. The collection name becomes the table name.
func NewPostgres(ctx context.Context, url, collection string, dim int) (*PGStore, error) {
	if url == "" {
		return nil, errors.New("postgres: database url is required")
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimension must be positive, got %d", dim)
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PGStore{pool: p, table: tableIdent(collection), dim: dim}, nil
}

func tableIdent(collection string) string {
	return pgx.Identifier{collection}.Sanitize()
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Reset drops and recreates the collection table.
func (s *PGStore) Reset(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

DROP TABLE IF EXISTS %[1]s;

CREATE TABLE %[1]s (
  id          TEXT PRIMARY KEY,
  content     TEXT NOT NULL,
  source      TEXT NOT NULL DEFAULT '',
  chunk_index INT NOT NULL DEFAULT 0,
  embedding   vector(%[2]d) NOT NULL,
  created_at  TIMESTAMP WITH TIME ZONE DEFAULT now()
);
`, s.table, s.dim)
	_, err := s.pool.Exec(ctx, q)
	return err
}

// Insert writes the records in one transaction.
func (s *PGStore) Insert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := fmt.Sprintf(`INSERT INTO %s (id, content, source, chunk_index, embedding) VALUES ($1, $2, $3, $4, $5)`, s.table)
	batch := &pgx.Batch{}
	for _, r := range records {
		if len(r.Embedding) != s.dim {
			return fmt.Errorf("record %s: embedding has dimension %d, want %d", r.ID, len(r.Embedding), s.dim)
		}
		idx, err := chunkIndex(r.Metadata)
		if err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		batch.Queue(q, r.ID, r.Text, r.Metadata[models.MetaSource], idx, pgvector.NewVector(r.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func chunkIndex(md map[string]string) (int, error) {
	v, ok := md[models.MetaChunkIndex]
	if !ok {
		return 0, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad chunk_index %q", v)
	}
	return i, nil
}

// Query ranks by cosine distance; Score is 1 - distance.
func (s *PGStore) Query(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	exists, err := s.tableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []models.SearchResult{}, nil
	}

	q := fmt.Sprintf(`
SELECT id, content, source, chunk_index, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var (
			r      models.SearchResult
			source string
			idx    int
		)
		if err := rows.Scan(&r.ID, &r.Text, &source, &idx, &r.Score); err != nil {
			return nil, err
		}
		r.Metadata = map[string]string{
			models.MetaSource:     source,
			models.MetaChunkIndex: strconv.Itoa(idx),
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Count(ctx context.Context) (int, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	var n int
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n)
	return n, err
}

func (s *PGStore) tableExists(ctx context.Context) (bool, error) {
	var ok bool
	// to_regclass takes the quoted identifier form
	err := s.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.table).Scan(&ok)
	return ok, err
}
