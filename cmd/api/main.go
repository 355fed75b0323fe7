package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/docchat/internal/ai"
	"github.com/seanblong/docchat/internal/auth"
	"github.com/seanblong/docchat/internal/config"
	"github.com/seanblong/docchat/internal/generate"
	"github.com/seanblong/docchat/internal/search"
	"github.com/seanblong/docchat/internal/store"
)

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("docchat-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	zlog.Logger = logger
	logger.Info().
		Str("provider", cfg.Provider).
		Str("store", cfg.StoreBackend).
		Str("generation", cfg.Generation.Backend).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting docchat api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientConfig, err := cfg.EmbedderConfig()
	if err != nil {
		log.Fatalf("Failed to configure embedder: %v", err)
	}
	emb, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	if c, ok := emb.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	logger.Info().Int("embedding_dim", emb.Dim()).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	st, err := store.New(ctx, cfg.StoreOptions(emb.Dim()))
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer st.Close()

	gen, err := generate.New(ctx, cfg.GenerationConfig())
	if err != nil {
		log.Fatalf("Failed to create generation client: %v", err)
	}

	authenticator, err := auth.New(cfg.Auth.JwtSecret, cfg.Auth.Enabled)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	if authenticator.Enabled() {
		logger.Info().Msg("Authentication is ENABLED")
	} else {
		logger.Info().Msg("Authentication is DISABLED - running in open mode")
	}

	svc := search.NewService(emb, st, gen)
	svc.TopK = cfg.TopK
	svc.AssistantName = cfg.AssistantName

	srv := &server{chat: svc, index: st, auth: authenticator, frontendDir: cfg.FrontendDir}
	if n, err := srv.refreshIndexSize(ctx); err == nil && n == 0 {
		logger.Warn().Str("collection", cfg.Collection).Msg("collection is empty; run the indexer first")
	}
	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(srv.routes()),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.Addr).Msg("api server listening")
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
