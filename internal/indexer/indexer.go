package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docchat/internal/ai"
	"github.com/seanblong/docchat/internal/chunker"
	"github.com/seanblong/docchat/pkg/models"
)

// ErrBuildAbort wraps every error that stops a build. The collection may be
// left partially filled; rerun the build from scratch.
var ErrBuildAbort = errors.New("index build aborted")

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 100
	DefaultBatchSize = 64
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// Sink is the write side of a vector store.
type Sink interface {
	Reset(ctx context.Context) error
	Insert(ctx context.Context, records []models.Record) error
}

// Source is one document to index.
type Source struct {
	ID   string
	Path string
}

// Progress is reported after every stored batch.
type Progress struct {
	Source  string
	Chunks  int
	Batches int
}

// Stats summarizes a finished build.
type Stats struct {
	Sources int
	Chunks  int
	Batches int
}

// Builder rebuilds a collection from text sources.
type Builder struct {
	Embedder  ai.Embedder
	Store     Sink
	Walker    FileSystemWalker
	ChunkSize int
	Overlap   int
	BatchSize int
	// Progress, if set, is called after each batch is stored.
	Progress func(Progress)
}

// New creates a Builder with default window and batch sizes.
func New(embedder ai.Embedder, sink Sink) *Builder {
	return &Builder{
		Embedder:  embedder,
		Store:     sink,
		Walker:    &DefaultFileSystemWalker{},
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
		BatchSize: DefaultBatchSize,
	}
}

func abort(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrBuildAbort, fmt.Errorf(format, args...))
}

// Sources resolves path into sources. A regular file is a single source named
// id, or its base name without extension when id is empty. A directory
// yields every .txt and .md file beneath it, named by slash-separated path
// relative to the directory, in lexical order.
func (b *Builder) Sources(path, id string) ([]Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		if id == "" {
			base := filepath.Base(path)
			id = strings.TrimSuffix(base, filepath.Ext(base))
		}
		return []Source{{ID: id, Path: path}}, nil
	}

	walker := b.Walker
	if walker == nil {
		walker = &DefaultFileSystemWalker{}
	}
	root := filepath.Clean(path)
	var out []Source
	err = walker.Walk(root, &godirwalk.Options{
		Callback: func(p string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if p != root && skipDir(de.Name()) {
					return godirwalk.SkipThis
				}
				return nil
			}
			if !indexable(p) {
				return nil
			}
			out = append(out, Source{ID: filepath.ToSlash(rel(root, p)), Path: p})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no .txt or .md files under %s", path)
	}
	return out, nil
}

// Run indexes path (see Sources) into a freshly reset collection.
func (b *Builder) Run(ctx context.Context, path, id string) (Stats, error) {
	if err := b.validate(); err != nil {
		return Stats{}, err
	}
	sources, err := b.Sources(path, id)
	if err != nil {
		return Stats{}, abort("resolving sources: %w", err)
	}
	return b.Build(ctx, sources)
}

// validate rejects settings that would fail only after the reset.
func (b *Builder) validate() error {
	if _, err := chunker.NewScanner(strings.NewReader(""), b.ChunkSize, b.Overlap); err != nil {
		return abort("%w", err)
	}
	if b.BatchSize <= 0 {
		return abort("batch size must be positive, got %d", b.BatchSize)
	}
	return nil
}

// Build resets the collection once and indexes every source in order.
func (b *Builder) Build(ctx context.Context, sources []Source) (Stats, error) {
	var stats Stats
	if err := b.validate(); err != nil {
		return stats, err
	}

	if err := b.Store.Reset(ctx); err != nil {
		return stats, abort("resetting collection: %w", err)
	}
	log.Info().Int("sources", len(sources)).Msg("collection reset")

	for _, src := range sources {
		if err := b.buildSource(ctx, src, &stats); err != nil {
			return stats, err
		}
		stats.Sources++
	}
	log.Info().
		Int("sources", stats.Sources).
		Int("chunks", stats.Chunks).
		Int("batches", stats.Batches).
		Msg("index build complete")
	return stats, nil
}

func (b *Builder) buildSource(ctx context.Context, src Source, stats *Stats) error {
	sc, err := chunker.Open(src.Path, b.ChunkSize, b.Overlap)
	if err != nil {
		return abort("opening %s: %w", src.Path, err)
	}
	defer func() {
		if err := sc.Close(); err != nil {
			log.Warn().Err(err).Str("path", src.Path).Msg("failed to close source")
		}
	}()

	batch := make([]models.Chunk, 0, b.BatchSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return abort("%w", err)
		}
		batch = append(batch, models.Chunk{Text: sc.Text(), Index: sc.Index(), SourceID: src.ID})
		if len(batch) == b.BatchSize {
			if err := b.flush(ctx, src, batch, stats); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return abort("reading %s: %w", src.Path, err)
	}
	if len(batch) > 0 {
		return b.flush(ctx, src, batch, stats)
	}
	return nil
}

// flush embeds and stores one batch with one call each.
func (b *Builder) flush(ctx context.Context, src Source, batch []models.Chunk, stats *Stats) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vecs, err := b.Embedder.Embed(ctx, texts)
	if err != nil {
		return abort("embedding batch at %s: %w", batch[0].RecordID(), err)
	}
	if len(vecs) != len(batch) {
		return abort("embedding batch at %s: got %d vectors for %d chunks", batch[0].RecordID(), len(vecs), len(batch))
	}

	records := make([]models.Record, len(batch))
	for i, c := range batch {
		records[i] = models.NewRecord(c, vecs[i])
	}
	if err := b.Store.Insert(ctx, records); err != nil {
		return abort("inserting batch at %s: %w", batch[0].RecordID(), err)
	}

	stats.Chunks += len(batch)
	stats.Batches++
	log.Debug().Str("source", src.ID).Int("size", len(batch)).Int("chunks", stats.Chunks).Msg("batch stored")
	if b.Progress != nil {
		b.Progress(Progress{Source: src.ID, Chunks: stats.Chunks, Batches: stats.Batches})
	}
	return nil
}

// indexable reports whether p is a text document to index.
func indexable(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// skipDir returns true for directories that never hold documentation.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "__pycache__", "venv":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}
