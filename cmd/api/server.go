package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docchat/internal/auth"
	"github.com/seanblong/docchat/internal/metrics"
	"github.com/seanblong/docchat/internal/search"
	"github.com/seanblong/docchat/pkg/models"
)

const (
	statusMessage      = "RAG Chat API is running"
	emptyQuestionError = "Question cannot be empty"
	maxRequestBytes    = 1 << 20
)

// Answerer answers a question from the indexed corpus.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Counter reports how many records the served collection holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type server struct {
	chat        Answerer
	index       Counter
	auth        *auth.Authenticator
	frontendDir string
}

// routes builds the API handler. CORS wraps everything so preflight requests
// never reach auth.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/chat", s.auth.Middleware(http.HandlerFunc(s.handleChat)))

	if s.frontendDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.frontendDir)))
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			s.handleStatus(w, r)
		})
	}
	return cors(mux)
}

// handleMetrics refreshes the collection size gauge before each scrape.
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	_, _ = s.refreshIndexSize(r.Context())
	metrics.Handler().ServeHTTP(w, r)
}

func (s *server) refreshIndexSize(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	n, err := s.index.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not count indexed chunks")
		return 0, err
	}
	metrics.Get().IndexedChunks.Set(float64(n))
	return n, nil
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": statusMessage})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method not allowed"})
		return
	}
	start := time.Now()

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("malformed chat request")
		// answered as an empty question
		req.Question = ""
	}

	answer, err := s.chat.Answer(r.Context(), req.Question)
	if errors.Is(err, search.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": emptyQuestionError})
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("chat failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Answer: answer})
	hlog.FromRequest(r).Debug().Str("path", "/chat").Int("question_len", len(req.Question)).Dur("dur", time.Since(start)).Msg("served")
}

// cors allows any origin and answers preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
