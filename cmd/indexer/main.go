package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"

	"github.com/seanblong/docchat/internal/ai"
	"github.com/seanblong/docchat/internal/config"
	"github.com/seanblong/docchat/internal/indexer"
	"github.com/seanblong/docchat/internal/store"
)

func main() {
	fs := pflag.NewFlagSet("docchat-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	zlog.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("index build failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Specification, logger zerolog.Logger) error {
	clientConfig, err := cfg.EmbedderConfig()
	if err != nil {
		return err
	}
	logger.Info().Str("provider", string(clientConfig.Provider)).Str("source", cfg.SourcePath).Msg("starting index build")

	emb, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		return err
	}
	if c, ok := emb.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close embedder")
			}
		}()
	}

	st, err := store.New(ctx, cfg.StoreOptions(emb.Dim()))
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	b := indexer.New(emb, st)
	b.ChunkSize = cfg.ChunkSize
	b.Overlap = cfg.ChunkOverlap
	b.BatchSize = cfg.BatchSize
	b.Progress = func(p indexer.Progress) {
		bar.Describe("[cyan]Indexing[reset] " + p.Source)
		_ = bar.Set(p.Chunks)
	}

	stats, err := b.Run(ctx, cfg.SourcePath, cfg.SourceID)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	n, err := st.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("sources", stats.Sources).
		Int("chunks", stats.Chunks).
		Int("batches", stats.Batches).
		Int("stored", n).
		Str("collection", cfg.Collection).
		Msg("vector database created successfully")
	return nil
}
