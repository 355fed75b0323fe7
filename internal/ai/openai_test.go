package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTransport implements http.RoundTripper for testing
type MockTransport struct {
	mu             sync.RWMutex
	responses      map[string]*http.Response
	responseBodies map[string]string
	requests       []*http.Request
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses:      make(map[string]*http.Response),
		responseBodies: make(map[string]string),
		requests:       make([]*http.Request, 0),
	}
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Store the request for inspection
	m.requests = append(m.requests, req)

	// Create a key based on method and URL
	key := fmt.Sprintf("%s %s", req.Method, req.URL.String())

	if respData, exists := m.responses[key]; exists {
		// Get the stored body for this response
		body := m.responseBodies[key]
		// Create a fresh response with a new body reader
		return &http.Response{
			StatusCode: respData.StatusCode,
			Status:     respData.Status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     copyHeaders(respData.Header),
		}, nil
	}

	// Default response if no mock is set up
	return &http.Response{
		StatusCode: 500,
		Status:     "500 Internal Server Error",
		Body:       io.NopCloser(strings.NewReader(`{"error": {"message": "Mock not configured"}}`)),
		Header:     make(http.Header),
	}, nil
}

func (m *MockTransport) AddResponse(method, url string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s %s", method, url)
	m.responses[key] = &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     make(http.Header),
	}
	m.responseBodies[key] = body
}

func (m *MockTransport) GetRequests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid concurrent access issues
	requests := make([]*http.Request, len(m.requests))
	copy(requests, m.requests)
	return requests
}

func (m *MockTransport) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = make([]*http.Request, 0)
}

// Helper function to copy HTTP headers
func copyHeaders(original http.Header) http.Header {
	copy := make(http.Header)
	for key, values := range original {
		copy[key] = make([]string, len(values))
		for i, value := range values {
			copy[key][i] = value
		}
	}
	return copy
}

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name          string
		config        *ClientConfig
		expectedModel string
		expectedDim   int
		expectedBase  string
	}{
		{
			name:          "defaults",
			config:        &ClientConfig{APIKey: "k"},
			expectedModel: "text-embedding-3-small",
			expectedDim:   1536,
			expectedBase:  openAIBaseURL,
		},
		{
			name:          "large model dimension",
			config:        &ClientConfig{APIKey: "k", EmbedModel: "text-embedding-3-large"},
			expectedModel: "text-embedding-3-large",
			expectedDim:   3072,
			expectedBase:  openAIBaseURL,
		},
		{
			name:          "explicit dimension and local server",
			config:        &ClientConfig{EmbedModel: "nomic-embed-text", Dim: 768, BaseURL: "http://localhost:1234"},
			expectedModel: "nomic-embed-text",
			expectedDim:   768,
			expectedBase:  "http://localhost:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAIClient(tt.config)
			if client.config.EmbedModel != tt.expectedModel {
				t.Errorf("Expected model %q, got %q", tt.expectedModel, client.config.EmbedModel)
			}
			if client.Dim() != tt.expectedDim {
				t.Errorf("Expected Dim %d, got %d", tt.expectedDim, client.Dim())
			}
			if client.config.BaseURL != tt.expectedBase {
				t.Errorf("Expected BaseURL %q, got %q", tt.expectedBase, client.config.BaseURL)
			}
			if client.http == nil {
				t.Error("Expected HTTP client to be initialized")
			}
		})
	}
}

func TestOpenAIClient_Embed(t *testing.T) {
	const url = "https://api.openai.com/v1/embeddings"

	tests := []struct {
		name         string
		apiKey       string
		texts        []string
		statusCode   int
		responseBody string
		expectError  bool
		errorMsg     string
		expected     [][]float32
	}{
		{
			name:        "missing API key",
			apiKey:      "",
			texts:       []string{"a"},
			expectError: true,
			errorMsg:    "PROVIDER_API_KEY unset",
		},
		{
			name:       "batch in index order",
			apiKey:     "test-key",
			texts:      []string{"first", "second"},
			statusCode: 200,
			responseBody: `{"data": [
				{"index": 1, "embedding": [0.3, 0.4]},
				{"index": 0, "embedding": [0.1, 0.2]}
			]}`,
			expected: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		},
		{
			name:         "error message from server",
			apiKey:       "test-key",
			texts:        []string{"a"},
			statusCode:   400,
			responseBody: `{"error": {"message": "Bad request"}}`,
			expectError:  true,
			errorMsg:     "Bad request",
		},
		{
			name:         "status without message",
			apiKey:       "test-key",
			texts:        []string{"a"},
			statusCode:   503,
			responseBody: `oops`,
			expectError:  true,
			errorMsg:     "503",
		},
		{
			name:         "invalid JSON response",
			apiKey:       "test-key",
			texts:        []string{"a"},
			statusCode:   200,
			responseBody: `invalid json`,
			expectError:  true,
		},
		{
			name:         "fewer vectors than texts",
			apiKey:       "test-key",
			texts:        []string{"a", "b"},
			statusCode:   200,
			responseBody: `{"data": [{"index": 0, "embedding": [1]}]}`,
			expectError:  true,
			errorMsg:     "count mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()
			if tt.statusCode != 0 {
				transport.AddResponse("POST", url, tt.statusCode, tt.responseBody)
			}

			client := NewOpenAIClient(&ClientConfig{
				APIKey:     tt.apiKey,
				EmbedModel: "text-embedding-3-small",
				Dim:        2,
			})
			client.http = &http.Client{Transport: transport}

			vecs, err := client.Embed(context.Background(), tt.texts)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				if vecs != nil {
					t.Errorf("Expected nil vectors when error occurs, got %v", vecs)
				}
			} else {
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				if fmt.Sprint(vecs) != fmt.Sprint(tt.expected) {
					t.Errorf("Expected %v, got %v", tt.expected, vecs)
				}
			}

			if tt.apiKey != "" {
				requests := transport.GetRequests()
				if len(requests) != 1 {
					t.Fatalf("Expected 1 request, got %d", len(requests))
				}
				req := requests[0]
				if req.Header.Get("Authorization") != "Bearer "+tt.apiKey {
					t.Errorf("Expected Authorization header 'Bearer %s', got '%s'", tt.apiKey, req.Header.Get("Authorization"))
				}
			}
		})
	}
}

func TestOpenAIClient_EmbedEmptyInput(t *testing.T) {
	transport := NewMockTransport()
	client := NewOpenAIClient(&ClientConfig{APIKey: "k"})
	client.http = &http.Client{Transport: transport}

	vecs, err := client.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("Expected nil, nil for empty input; got %v, %v", vecs, err)
	}
	if len(transport.GetRequests()) != 0 {
		t.Error("Expected no request for empty input")
	}
}

func TestOpenAIClient_LocalServer(t *testing.T) {
	var got struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("Expected no Authorization header without a key, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[1,0]},{"index":1,"embedding":[0,1]}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(&ClientConfig{EmbedModel: "local-embed", Dim: 2, BaseURL: srv.URL + "/"})
	vecs, err := client.Embed(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("Expected 2 vectors, got %d", len(vecs))
	}
	if got.Model != "local-embed" || len(got.Input) != 2 {
		t.Errorf("Unexpected request payload: %+v", got)
	}
}

func TestOpenAIClient_setHeaders(t *testing.T) {
	tests := []struct {
		name            string
		apiKey          string
		projectID       string
		expectedProject string
	}{
		{"project key with project id", "sk-proj-abc", "proj-1", "proj-1"},
		{"regular key ignores project id", "sk-abc", "proj-1", ""},
		{"project key without project id", "sk-proj-abc", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, ProjectID: tt.projectID})
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			client.setHeaders(req)

			if req.Header.Get("Content-Type") != "application/json" {
				t.Error("Expected Content-Type header to be application/json")
			}
			if req.Header.Get("OpenAI-Project") != tt.expectedProject {
				t.Errorf("Expected OpenAI-Project %q, got %q", tt.expectedProject, req.Header.Get("OpenAI-Project"))
			}
		})
	}
}

func TestOpenAIClient_ConcurrentRequests(t *testing.T) {
	transport := NewMockTransport()
	transport.AddResponse("POST", "https://api.openai.com/v1/embeddings", 200,
		`{"data":[{"index":0,"embedding":[0.5]}]}`)

	client := NewOpenAIClient(&ClientConfig{APIKey: "k", Dim: 1})
	client.http = &http.Client{Transport: transport}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Embed(context.Background(), []string{"q"}); err != nil {
				t.Errorf("Embed failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(transport.GetRequests()); n != 10 {
		t.Errorf("Expected 10 requests, got %d", n)
	}
}

func TestOpenAIClient_EmbedSplitsLargeInput(t *testing.T) {
	var sizes []int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		sizes = append(sizes, len(req.Input))
		mu.Unlock()

		var out embeddingResponse
		for i := range req.Input {
			out.Data = append(out.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i)}})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	texts := make([]string, maxEmbeddingInputs+3)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	client := NewOpenAIClient(&ClientConfig{Dim: 1, BaseURL: srv.URL})
	vecs, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("Expected %d vectors, got %d", len(texts), len(vecs))
	}
	if fmt.Sprint(sizes) != fmt.Sprint([]int{maxEmbeddingInputs, 3}) {
		t.Errorf("request sizes = %v", sizes)
	}
	if vecs[maxEmbeddingInputs][0] != 0 || vecs[maxEmbeddingInputs+2][0] != 2 {
		t.Errorf("second request vectors out of place: %v", vecs[maxEmbeddingInputs:])
	}
}

func TestNewOpenAIClient_DoesNotMutateConfig(t *testing.T) {
	cfg := &ClientConfig{APIKey: "k"}
	_ = NewOpenAIClient(cfg)
	if cfg.EmbedModel != "" || cfg.Dim != 0 || cfg.BaseURL != "" {
		t.Errorf("caller config was modified: %+v", cfg)
	}
}
