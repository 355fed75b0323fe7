package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docchat/pkg/models"
)

// errNoEmbeddingFunc is returned if chromem ever tries to embed on its own;
// every record and query arrives with a precomputed vector.
var errNoEmbeddingFunc = errors.New("chromem: embeddings must be precomputed")

func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// ChromemStore keeps one collection of an embedded chromem-go database that
// persists to a directory.
type ChromemStore struct {
	db         *chromem.DB
	collection string
}

// NewChromem opens (or creates) the database under dir.
func NewChromem(dir, collection string, compress bool) (*ChromemStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("chromem: persist directory is required")
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	path, err := expandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}
	log.Debug().Str("path", path).Str("collection", collection).Msg("chromem store opened")
	return &ChromemStore{db: db, collection: collection}, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) Reset(ctx context.Context) error {
	if s.db.GetCollection(s.collection, precomputedOnly) != nil {
		log.Info().Str("collection", s.collection).Msg("existing collection found, deleting to recreate")
		if err := s.db.DeleteCollection(s.collection); err != nil {
			return fmt.Errorf("deleting collection %s: %w", s.collection, err)
		}
	}
	if _, err := s.db.CreateCollection(s.collection, nil, precomputedOnly); err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *ChromemStore) Insert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	c := s.db.GetCollection(s.collection, precomputedOnly)
	if c == nil {
		return fmt.Errorf("collection %s does not exist", s.collection)
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("record %s has no embedding", r.ID)
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Metadata:  r.Metadata,
			Embedding: normalize(r.Embedding),
		}
	}
	// embeddings are precomputed so there is nothing to parallelize
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	c := s.db.GetCollection(s.collection, precomputedOnly)
	if c == nil {
		return []models.SearchResult{}, nil
	}
	// chromem requires nResults <= document count
	n := c.Count()
	if n == 0 {
		return []models.SearchResult{}, nil
	}
	if k > n {
		k = n
	}

	res, err := c.QueryEmbedding(ctx, normalize(embedding), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.collection, err)
	}
	out := make([]models.SearchResult, len(res))
	for i, r := range res {
		out[i] = models.SearchResult{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: r.Metadata,
			Score:    float64(r.Similarity),
		}
	}
	return out, nil
}

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	c := s.db.GetCollection(s.collection, precomputedOnly)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

// Close is a no-op; chromem writes through to disk on every insert.
func (s *ChromemStore) Close() error { return nil }

// normalize returns a unit-length copy of v. Zero vectors are returned
// unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}
