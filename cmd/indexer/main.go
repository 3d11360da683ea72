// The indexer is an offline tool that rebuilds the sharded index from
// the document store and writes fresh checkpoints. Run it to seed a new
// searcher data directory or to recover from corrupt checkpoint files;
// the searcher picks up the checkpoints on its next start.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openfts/openfts/internal/indexer/shard"
	"github.com/openfts/openfts/internal/indexer/tokenizer"
	"github.com/openfts/openfts/internal/ingestion/store"
	"github.com/openfts/openfts/pkg/config"
	"github.com/openfts/openfts/pkg/logger"
	"github.com/openfts/openfts/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dataDir := flag.String("data-dir", "", "override indexer.dataDir from the config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Indexer.DataDir = *dataDir
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting offline index rebuild",
		"data_dir", cfg.Indexer.DataDir,
		"num_shards", cfg.Indexer.NumShards,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tok, err := tokenizer.New(tokenizer.Config{
		Stopwords:        cfg.Analysis.Stopwords,
		DisableStopwords: cfg.Analysis.DisableStopwords,
		EnableStemming:   cfg.Analysis.EnableStemming,
		MinTokenLength:   cfg.Analysis.MinTokenLength,
	})
	if err != nil {
		slog.Error("invalid analysis config", "error", err)
		os.Exit(1)
	}

	router, err := shard.NewRouter(cfg.Indexer, tok)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}

	indexed, err := router.RebuildAll(ctx, store.New(db))
	if err != nil {
		slog.Error("rebuild failed", "error", err, "documents_indexed", indexed)
		router.Close()
		os.Exit(1)
	}

	if err := router.CheckpointAll(ctx); err != nil {
		slog.Error("checkpoint failed", "error", err)
		router.Close()
		os.Exit(1)
	}
	router.Close()

	for shardID, st := range router.Stats() {
		slog.Info("shard rebuilt",
			"shard_id", shardID,
			"documents", st.Documents,
			"terms", st.Terms,
			"tokens", st.Tokens,
		)
	}
	slog.Info("index rebuild complete", "documents", indexed)
}
