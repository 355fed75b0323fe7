package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient creates a new embedding client for Vertex AI.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	cfg := *config
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-005"
	}
	if cfg.Dim == 0 {
		cfg.Dim = 768
	}
	if cfg.Location == "" && strings.TrimSpace(cfg.APIKey) == "" {
		cfg.Location = "us-central1"
	}

	client, err := NewGenAIClient(ctx, cfg.APIKey, cfg.ProjectID, cfg.Location)
	if err != nil {
		return nil, err
	}
	return &VertexAIClient{config: &cfg, client: client}, nil
}

// NewGenAIClient builds a Vertex AI backed genai client. It is shared with
// the Gemini generator.
func NewGenAIClient(ctx context.Context, apiKey, projectID, location string) (*genai.Client, error) {
	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(apiKey) != "" {
		cc.APIKey = apiKey
	}
	if strings.TrimSpace(projectID) != "" {
		cc.Project = projectID
	}
	if strings.TrimSpace(location) != "" {
		cc.Location = location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// maxVertexInputs is the most instances text-embedding models accept per
// request.
const maxVertexInputs = 250

// Embed embeds texts with one EmbedContent call per maxVertexInputs texts.
func (c *VertexAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	dim := int32(c.config.Dim)
	cfg := genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dim,
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxVertexInputs {
		part := texts[start:min(start+maxVertexInputs, len(texts))]
		contents := make([]*genai.Content, 0, len(part))
		for _, t := range part {
			contents = append(contents, genai.Text(t)...)
		}

		res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, contents, &cfg)
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		if res == nil {
			return nil, errors.New("no embedding returned")
		}
		if err := checkCount(len(res.Embeddings), len(part)); err != nil {
			return nil, err
		}
		for i, e := range res.Embeddings {
			if e == nil {
				return nil, fmt.Errorf("embedding %d missing", start+i)
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}
