// The searcher hosts the sharded in-memory index and serves queries. It
// consumes document events from Kafka, checkpoints shards periodically,
// and exposes an internal RPC interface for index administration.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/openfts/openfts/internal/analytics"
	batchcollector "github.com/openfts/openfts/internal/analytics/collector"
	"github.com/openfts/openfts/internal/indexer/consumer"
	"github.com/openfts/openfts/internal/indexer/shard"
	"github.com/openfts/openfts/internal/indexer/tokenizer"
	"github.com/openfts/openfts/internal/ingestion/store"
	"github.com/openfts/openfts/internal/searcher/cache"
	"github.com/openfts/openfts/internal/searcher/executor"
	"github.com/openfts/openfts/internal/searcher/handler"
	"github.com/openfts/openfts/internal/searcher/parser"
	"github.com/openfts/openfts/pkg/config"
	"github.com/openfts/openfts/pkg/grpc"
	"github.com/openfts/openfts/pkg/health"
	"github.com/openfts/openfts/pkg/kafka"
	"github.com/openfts/openfts/pkg/logger"
	"github.com/openfts/openfts/pkg/metrics"
	"github.com/openfts/openfts/pkg/middleware"
	"github.com/openfts/openfts/pkg/postgres"
	"github.com/openfts/openfts/pkg/proto"
	pkgredis "github.com/openfts/openfts/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"num_shards", cfg.Indexer.NumShards,
		"scorer", cfg.Search.Scorer,
	)

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
	defer router.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The document store supplies rebuilds and receives status updates.
	// The searcher degrades to checkpoint-only recovery without it.
	var docStore *store.Store
	if pgClient, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("postgres unavailable, rebuild and status updates disabled", "error", err)
	} else {
		defer pgClient.Close()
		docStore = store.New(pgClient)
	}

	if cfg.Indexer.RebuildOnStart && docStore != nil && lifetimeTotal(router) == 0 {
		slog.Info("no checkpoint data found, rebuilding index from document store")
		indexed, err := router.RebuildAll(ctx, docStore)
		if err != nil {
			slog.Error("index rebuild failed", "error", err)
			os.Exit(1)
		}
		slog.Info("index rebuilt", "documents", indexed)
	}
	router.StartCheckpointLoops(ctx)

	var queryCache *cache.QueryCache
	if redisClient, err := pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()

	indexEvents := batchcollector.NewBatchCollector(analyticsProducer, 100, 0)
	indexEvents.Start(ctx)
	defer indexEvents.Close()

	// Document event consumer drives all index mutations.
	var statuses consumer.StatusStore
	if docStore != nil {
		statuses = docStore
	}
	var invalidator consumer.Invalidator
	if queryCache != nil {
		invalidator = queryCache
	}
	handleDoc := consumer.HandleMessage(router, cfg.Kafka.Topics.DocumentEvents, statuses, invalidator, indexEvents)
	docConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents, handleDoc))
	go func() {
		if err := docConsumer.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("document consumer stopped", "error", err)
		}
	}()

	if cfg.RPC.Enabled {
		rpcServer := rpcServer(ctx, router, docStore)
		go func() {
			if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
		defer rpcServer.Stop()
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := router.Stats()
		docs := 0
		for _, s := range stats {
			docs += s.Documents
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d shards, %d documents", len(stats), docs),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if queryCache == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	exec := executor.NewSharded(router, cfg.Search)
	h := handler.New(exec, exec, parser.New(tok), queryCache, collector, cfg.Search, cfg.Tracing)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics()(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func lifetimeTotal(router *shard.Router) uint64 {
	var total uint64
	for _, s := range router.Stats() {
		total += s.LifetimeIndexed
	}
	return total
}

// rpcServer exposes index administration to the gateway.
func rpcServer(ctx context.Context, router *shard.Router, docStore *store.Store) *grpc.Server {
	s := grpc.NewServer()

	s.Register("index.stats", func(_ context.Context, _ json.RawMessage) (any, error) {
		resp := &proto.StatsResponse{}
		for i, st := range router.Stats() {
			resp.TotalDocs += int64(st.Documents)
			resp.TotalTerms += int64(st.Terms)
			resp.TotalTokens += st.Tokens
			resp.LifetimeIndexed += st.LifetimeIndexed
			resp.Shards = append(resp.Shards, proto.ShardStat{
				ShardID:         int32(i),
				Documents:       int64(st.Documents),
				Terms:           int64(st.Terms),
				Tokens:          st.Tokens,
				LifetimeIndexed: st.LifetimeIndexed,
			})
		}
		return resp, nil
	})

	s.Register("index.checkpoint", func(callCtx context.Context, _ json.RawMessage) (any, error) {
		if err := router.CheckpointAll(callCtx); err != nil {
			return &proto.CheckpointResponse{Success: false, Message: err.Error()}, nil
		}
		return &proto.CheckpointResponse{
			Success: true,
			Shards:  int32(router.NumShards()),
			Message: "all shards checkpointed",
		}, nil
	})

	s.Register("index.rebuild", func(_ context.Context, _ json.RawMessage) (any, error) {
		if docStore == nil {
			return nil, fmt.Errorf("document store is not configured")
		}
		indexed, err := router.RebuildAll(ctx, docStore)
		if err != nil {
			return &proto.RebuildResponse{Success: false, Documents: int64(indexed), Message: err.Error()}, nil
		}
		return &proto.RebuildResponse{
			Success:   true,
			Documents: int64(indexed),
			Message:   "index rebuilt from document store",
		}, nil
	})

	return s
}
