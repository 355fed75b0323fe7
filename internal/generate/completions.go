package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "http://localhost:1234"

// CompletionsClient speaks the OpenAI-style /v1/completions protocol served
// by LM Studio and similar local servers.
type CompletionsClient struct {
	config Config
	http   *http.Client
}

func NewCompletionsClient(cfg Config) *CompletionsClient {
	cfg.applyDefaults()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	// timeouts are applied per call through the request context
	return &CompletionsClient{config: cfg, http: &http.Client{}}
}

type completionRequest struct {
	Model        string  `json:"model"`
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Ping probes the models endpoint and expects 200.
func (c *CompletionsClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w (%s): %w", ErrServiceUnavailable, classify(err), err)
	}
	defer closeBody(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w (%s): %s", ErrServiceUnavailable, KindStatus, resp.Status)
	}
	return nil
}

// Generate posts the prompt and returns the first choice, trimmed.
func (c *CompletionsClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(completionRequest{
		Model:        c.config.Model,
		Prompt:       prompt,
		MaxNewTokens: c.config.MaxNewTokens,
		Temperature:  c.config.Temperature,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w (%s): %w", ErrUpstream, classify(err), err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct{ Error struct{ Message string } }
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error.Message != "" {
			return "", fmt.Errorf("%w (%s): %s: %s", ErrUpstream, KindStatus, resp.Status, e.Error.Message)
		}
		return "", fmt.Errorf("%w (%s): %s", ErrUpstream, KindStatus, resp.Status)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w (%s): %w", ErrUpstream, KindTimeout, err)
		}
		return "", fmt.Errorf("%w (%s): %w", ErrUpstream, KindResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w (%s): no choices", ErrUpstream, KindResponse)
	}
	return strings.TrimSpace(out.Choices[0].Text), nil
}

func (c *CompletionsClient) setHeaders(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

func closeBody(b io.Closer) {
	if err := b.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close response body")
	}
}
