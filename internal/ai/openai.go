package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	openAIBaseURL = "https://api.openai.com"
	// maxEmbeddingInputs is the most inputs the embeddings endpoint accepts
	// in one request.
	maxEmbeddingInputs = 2048
)

var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIClient embeds through an OpenAI-compatible /v1/embeddings endpoint,
// either api.openai.com or a local server such as LM Studio.
type OpenAIClient struct {
	config *ClientConfig
	http   *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	cfg := *config
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Dim == 0 {
		cfg.Dim = openAIModelDims[cfg.EmbedModel]
		if cfg.Dim == 0 {
			cfg.Dim = 1536
		}
	}
	return &OpenAIClient{config: &cfg, http: newHTTPClient()}
}

// newHTTPClient honors DOCCHAT_SKIP_TLS_VERIFY for corporate proxies.
func newHTTPClient() *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if skip, _ := strconv.ParseBool(os.Getenv("DOCCHAT_SKIP_TLS_VERIFY")); skip {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: 60 * time.Second, Transport: transport}
}

// Embed returns one vector per text, splitting large inputs across requests.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	// local OpenAI-compatible servers do not need a key
	if c.config.APIKey == "" && c.config.BaseURL == openAIBaseURL {
		return nil, errors.New("PROVIDER_API_KEY unset")
	}

	vecs := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingInputs {
		end := min(start+maxEmbeddingInputs, len(texts))
		part, err := c.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, part...)
	}
	return vecs, nil
}

func (c *OpenAIClient) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: c.config.EmbedModel})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		var e apiError
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error.Message != "" {
			return nil, fmt.Errorf("openai embedding: %s: %s", resp.Status, e.Error.Message)
		}
		return nil, fmt.Errorf("openai embedding: %s", resp.Status)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai embedding: decoding response: %w", err)
	}
	if err := checkCount(len(out.Data), len(texts)); err != nil {
		return nil, err
	}

	// data is index-tagged; response order is not guaranteed
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

// setHeaders sets common headers for OpenAI requests
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}
