package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/seanblong/docchat/pkg/models"
)

// VectorStore is a single named collection of embedded records.
type VectorStore interface {
	// Reset deletes the collection if it exists and recreates it empty.
	Reset(ctx context.Context) error
	Insert(ctx context.Context, records []models.Record) error
	// Query returns up to k records nearest to embedding, best first. An
	// empty or missing collection yields an empty result, not an error.
	Query(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Backend names accepted by New.
const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"
)

var (
	ErrUnknownBackend    = errors.New("unknown store backend")
	ErrInvalidCollection = errors.New("invalid collection name")
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Collection string
	// Dim is the embedding dimension (postgres only).
	Dim int

	// PersistDir is the chromem database directory.
	PersistDir string
	Compress   bool

	// DatabaseURL is the postgres DSN.
	DatabaseURL string
}

var collectionRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)

// ValidateCollectionName rejects names that are not safe as a postgres
// identifier or a chromem collection directory.
func ValidateCollectionName(name string) error {
	if !collectionRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

// New opens the configured backend.
func New(ctx context.Context, opt Options) (VectorStore, error) {
	if err := ValidateCollectionName(opt.Collection); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(opt.Backend)) {
	case BackendChromem, "":
		return NewChromem(opt.PersistDir, opt.Collection, opt.Compress)
	case BackendPostgres:
		return NewPostgres(ctx, opt.DatabaseURL, opt.Collection, opt.Dim)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opt.Backend)
	}
}
