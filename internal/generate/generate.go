// Package generate talks to the text-generation backend that writes the final
// answer.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrServiceUnavailable means the liveness probe failed; no generation
	// request was sent.
	ErrServiceUnavailable = errors.New("generation service unavailable")
	// ErrUpstream means the generation request itself failed.
	ErrUpstream = errors.New("generation request failed")
)

// Generator is a completion backend with a liveness probe.
type Generator interface {
	Ping(ctx context.Context) error
	Generate(ctx context.Context, prompt string) (string, error)
}

// Backend names accepted by New.
const (
	BackendCompletions = "completions"
	BackendVertexAI    = "vertexai"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultTimeout      = 60 * time.Second
	DefaultMaxNewTokens = 400
	DefaultTemperature  = 0.2
)

// Config configures either backend.
type Config struct {
	Backend      string
	BaseURL      string
	Model        string
	APIKey       string
	MaxNewTokens int
	Temperature  float64
	ProbeTimeout time.Duration
	Timeout      time.Duration

	// Vertex AI only.
	ProjectID string
	Location  string
}

func (c *Config) applyDefaults() {
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = DefaultMaxNewTokens
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendCompletions, "":
		return NewCompletionsClient(cfg), nil
	case BackendVertexAI, "google":
		return NewVertexAIClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported generation backend: %s", cfg.Backend)
	}
}

// Failure kinds reported in wrapped errors.
const (
	KindTimeout   = "timeout"
	KindRefused   = "connection refused"
	KindTransport = "transport error"
	KindStatus    = "unexpected status"
	KindResponse  = "invalid response"
)

// classify names the transport failure mode of err.
func classify(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindRefused
	default:
		return KindTransport
	}
}
