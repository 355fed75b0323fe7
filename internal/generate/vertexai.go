package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/seanblong/docchat/internal/ai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// VertexAIClient generates answers with a Gemini model on Vertex AI.
type VertexAIClient struct {
	config Config
	client *genai.Client
}

func NewVertexAIClient(ctx context.Context, cfg Config) (*VertexAIClient, error) {
	cfg.applyDefaults()
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Location == "" && strings.TrimSpace(cfg.APIKey) == "" {
		cfg.Location = "us-central1"
	}
	client, err := ai.NewGenAIClient(ctx, cfg.APIKey, cfg.ProjectID, cfg.Location)
	if err != nil {
		return nil, err
	}
	return &VertexAIClient{config: cfg, client: client}, nil
}

// Ping looks up the configured model.
func (c *VertexAIClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()
	if _, err := c.client.Models.Get(ctx, c.config.Model, nil); err != nil {
		return fmt.Errorf("%w (%s): %w", ErrServiceUnavailable, classify(err), err)
	}
	return nil
}

func (c *VertexAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	temp := float32(c.config.Temperature)
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(c.config.MaxNewTokens),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(prompt), &cfg)
	if err != nil {
		return "", fmt.Errorf("%w (%s): %w", ErrUpstream, classify(err), err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w (%s): %w", ErrUpstream, KindResponse, errors.New("no candidates returned"))
	}
	return strings.TrimSpace(resp.Text()), nil
}
