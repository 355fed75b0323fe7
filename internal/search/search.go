package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docchat/internal/ai"
	"github.com/seanblong/docchat/internal/generate"
	"github.com/seanblong/docchat/internal/metrics"
	"github.com/seanblong/docchat/pkg/models"
)

// ErrInvalidInput is returned for a question that is empty after trimming.
var ErrInvalidInput = errors.New("question cannot be empty")

const (
	DefaultTopK          = 5
	DefaultAssistantName = "documentation"

	NoContextAnswer   = "No relevant information found in the documentation."
	UnavailableAnswer = "The generation server is not running. Please start it with a model loaded."
)

// Store is the read side of a vector store.
type Store interface {
	Query(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error)
}

type Service struct {
	Embedder      ai.Embedder
	Store         Store
	Generator     generate.Generator
	TopK          int
	AssistantName string
	Metrics       *metrics.Metrics
}

// NewService creates a new search service with the provided embedder, store
// and generator.
func NewService(embedder ai.Embedder, store Store, gen generate.Generator) *Service {
	return &Service{
		Embedder:      embedder,
		Store:         store,
		Generator:     gen,
		TopK:          DefaultTopK,
		AssistantName: DefaultAssistantName,
		Metrics:       metrics.Get(),
	}
}

// Query returns the TopK records nearest to the question, best first.
func (s *Service) Query(ctx context.Context, question string) ([]models.SearchResult, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, ErrInvalidInput
	}
	k := s.TopK
	if k <= 0 {
		k = DefaultTopK
	}

	vecs, err := s.Embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding question: got %d vectors, want 1", len(vecs))
	}

	res, err := s.Store.Query(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}
	return res, nil
}

// Answer retrieves context for the question and asks the generator to answer
// from it. Only ErrInvalidInput is returned as an error; every other failure
// is reported in the answer text.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		s.record(metrics.OutcomeInvalid)
		return "", ErrInvalidInput
	}

	results, err := s.Query(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("retrieval failed")
		s.record(metrics.OutcomeRetrievalError)
		return "Error: " + err.Error(), nil
	}
	if len(results) == 0 {
		s.record(metrics.OutcomeNoContext)
		return NoContextAnswer, nil
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	prompt := BuildPrompt(s.AssistantName, q, texts)

	if err := s.Generator.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("generation backend probe failed")
		s.record(metrics.OutcomeUnavailable)
		return UnavailableAnswer, nil
	}

	start := time.Now()
	answer, err := s.Generator.Generate(ctx, prompt)
	if s.Metrics != nil {
		s.Metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		log.Error().Err(err).Msg("generation failed")
		s.record(metrics.OutcomeUpstreamError)
		return "Error: " + err.Error(), nil
	}

	log.Debug().Int("chunks", len(results)).Dur("took", time.Since(start)).Msg("answered question")
	s.record(metrics.OutcomeOK)
	return answer, nil
}

func (s *Service) record(outcome string) {
	if s.Metrics != nil {
		s.Metrics.RecordChat(outcome)
	}
}

// BuildPrompt fills the answer template. Context texts are joined with a
// blank line in the order given.
func BuildPrompt(assistant, question string, contexts []string) string {
	if strings.TrimSpace(assistant) == "" {
		assistant = DefaultAssistantName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s assistant. Use ONLY the information provided in the context below to answer the question.\n", assistant)
	b.WriteString("Do not mention or reference any external links, file paths, documentation URLs, or redirect to other sources.\n")
	b.WriteString("Provide a clear, concise explanation using the actual content from the context provided only.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(contexts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
