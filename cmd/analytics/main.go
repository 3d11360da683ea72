// The analytics service consumes search and index events from Kafka,
// keeps rolling aggregates in memory, snapshots them to PostgreSQL, and
// serves them over HTTP for dashboards.
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

	"github.com/openfts/openfts/internal/analytics"
	"github.com/openfts/openfts/internal/analytics/aggregator"
	"github.com/openfts/openfts/pkg/config"
	"github.com/openfts/openfts/pkg/health"
	"github.com/openfts/openfts/pkg/kafka"
	"github.com/openfts/openfts/pkg/logger"
	"github.com/openfts/openfts/pkg/middleware"
	"github.com/openfts/openfts/pkg/postgres"
)

const snapshotInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The aggregator and its consumer reference each other, so the
	// aggregator is built first and the consumer attached afterwards.
	agg := analytics.NewAggregator(nil)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("analytics consumer stopped", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	// Snapshot persistence is optional; aggregates survive in memory for
	// the process lifetime either way.
	var snapshots analytics.SnapshotLister
	if db, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("postgres unavailable, snapshot history disabled", "error", err)
	} else {
		defer db.Close()
		snapStore := aggregator.NewStore(db)
		if err := snapStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create analytics schema", "error", err)
			os.Exit(1)
		}
		snapStore.StartPeriodicSave(ctx, agg, snapshotInterval)
		snapshots = snapStore
	}

	analyticsHandler := analytics.NewHandler(agg, snapshots)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health", analyticsHandler.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
