// The gateway is the single external entry point. It authenticates API
// keys, applies per-key rate limits, proxies reads and writes to the
// backend services, and exposes index administration over the searcher's
// internal RPC interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openfts/openfts/internal/auth/apikey"
	"github.com/openfts/openfts/internal/auth/ratelimit"
	gwhandler "github.com/openfts/openfts/internal/gateway/handler"
	"github.com/openfts/openfts/internal/gateway/router"
	"github.com/openfts/openfts/internal/ingestion/store"
	"github.com/openfts/openfts/pkg/config"
	"github.com/openfts/openfts/pkg/grpc"
	"github.com/openfts/openfts/pkg/logger"
	"github.com/openfts/openfts/pkg/metrics"
	"github.com/openfts/openfts/pkg/postgres"
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
	slog.Info("starting gateway service",
		"port", cfg.Gateway.Port,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"searcher_url", cfg.Gateway.SearcherURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	validator := apikey.NewValidator(db)
	if err := validator.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create api key schema", "error", err)
		os.Exit(1)
	}
	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()

	// Index administration goes over the searcher's RPC interface; the
	// gateway runs without it when the searcher is down.
	var indexAdmin gwhandler.IndexAdmin
	if rpcClient, err := grpc.Dial(cfg.Gateway.SearcherRPCAddr); err != nil {
		slog.Warn("searcher rpc unavailable, index admin disabled",
			"addr", cfg.Gateway.SearcherRPCAddr, "error", err)
	} else {
		defer rpcClient.Close()
		indexAdmin = rpcClient
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	h := gwhandler.New(
		cfg.Gateway.IngestionURL,
		cfg.Gateway.SearcherURL,
		cfg.Gateway.AnalyticsURL,
		store.New(db),
		validator,
		indexAdmin,
	)
	chain := router.New(h, validator, limiter)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
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

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway service stopped")
}
