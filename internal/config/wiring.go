package config

import (
	"github.com/seanblong/docchat/internal/ai"
	"github.com/seanblong/docchat/internal/generate"
	"github.com/seanblong/docchat/internal/store"
)

// EmbedderConfig returns the embedding client settings.
func (s *Specification) EmbedderConfig() (*ai.ClientConfig, error) {
	provider, err := ai.ProviderFromString(s.Provider)
	if err != nil {
		return nil, err
	}
	return &ai.ClientConfig{
		APIKey:     s.APIKey,
		EmbedModel: s.EmbedModel,
		Dim:        s.Dim,
		ProjectID:  s.ProjectID,
		Location:   s.Location,
		Provider:   provider,
		CacheDir:   s.ModelCacheDir,
	}, nil
}

// StoreOptions returns the vector store settings for embeddings of size dim.
func (s *Specification) StoreOptions(dim int) store.Options {
	return store.Options{
		Backend:     s.StoreBackend,
		Collection:  s.Collection,
		Dim:         dim,
		PersistDir:  s.PersistDir,
		Compress:    s.Compress,
		DatabaseURL: s.Database,
	}
}

// GenerationConfig returns the generation backend settings. The Vertex AI
// backend shares the embedding provider's project and location.
func (s *Specification) GenerationConfig() generate.Config {
	return generate.Config{
		Backend:      s.Generation.Backend,
		BaseURL:      s.Generation.URL,
		Model:        s.Generation.Model,
		APIKey:       s.Generation.APIKey,
		MaxNewTokens: s.Generation.MaxNewTokens,
		Temperature:  s.Generation.Temperature,
		ProbeTimeout: s.Generation.ProbeTimeout,
		Timeout:      s.Generation.Timeout,
		ProjectID:    s.ProjectID,
		Location:     s.Location,
	}
}
