//go:build cgo

package ai

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// fastEmbedModels maps accepted model names to fastembed models and their
// output dimension.
var fastEmbedModels = map[string]struct {
	model fastembed.EmbeddingModel
	dim   int
}{
	"all-MiniLM-L6-v2":                       {fastembed.AllMiniLML6V2, 384},
	"sentence-transformers/all-MiniLM-L6-v2": {fastembed.AllMiniLML6V2, 384},
	"BAAI/bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
	"BAAI/bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
}

// FastEmbedClient runs a local ONNX sentence-embedding model.
type FastEmbedClient struct {
	model *fastembed.FlagEmbedding
	dim   int
	// the ONNX session is not safe for concurrent use
	mu sync.Mutex
}

// NewFastEmbedClient loads (downloading on first use) the configured model.
func NewFastEmbedClient(config *ClientConfig) (*FastEmbedClient, error) {
	if config.EmbedModel == "" {
		config.EmbedModel = "all-MiniLM-L6-v2"
	}
	m, ok := fastEmbedModels[config.EmbedModel]
	if !ok {
		return nil, fmt.Errorf("fastembed: unsupported model %q", config.EmbedModel)
	}
	config.Dim = m.dim

	cacheDir := config.CacheDir
	if cacheDir == "" {
		cacheDir = "local_cache"
	}
	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                m.model,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &FastEmbedClient{model: flag, dim: m.dim}, nil
}

// Embed uses the plain (unprefixed) encoder for both documents and queries.
func (c *FastEmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	vecs, err := c.model.Embed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("fastembed: %w", err)
	}
	if err := checkCount(len(vecs), len(texts)); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (c *FastEmbedClient) Dim() int { return c.dim }

// Close releases the ONNX runtime session.
func (c *FastEmbedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Destroy()
}
