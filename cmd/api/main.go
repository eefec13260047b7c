package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/config"
	"github.com/hybrid-bistoon/anbar/internal/database"
	"github.com/hybrid-bistoon/anbar/internal/handlers"
	"github.com/hybrid-bistoon/anbar/internal/logging"
	"github.com/hybrid-bistoon/anbar/internal/services/catalog"
	"github.com/hybrid-bistoon/anbar/internal/services/converter"
	"github.com/hybrid-bistoon/anbar/internal/services/picking"
	"github.com/hybrid-bistoon/anbar/internal/services/printer"
	"github.com/hybrid-bistoon/anbar/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize storage (embedded Postgres, external Postgres or MongoDB)
	store, err := database.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 3. Migrate schema
	logger.Info("🚀 Synchronizing database schema...")
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	logger.Info("✅ Schema synchronized successfully")

	// 4. Services
	hub := websocket.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	labels, err := printer.NewRenderer(cfg.Label)
	if err != nil {
		logger.Fatal("Failed to load label font", zap.Error(err))
	}
	conv := converter.NewClient(cfg.Converter, logger)
	logger.Info("Collaborators ready", zap.Stringer("converter", conv))

	router := handlers.NewRouter(handlers.Deps{
		Store:     store,
		Catalog:   catalog.NewService(store, logger),
		Picking:   picking.NewService(store, logger, picking.WithNotifier(hub), picking.WithLocation(cfg.Location())),
		Labels:    labels,
		Converter: conv,
		Hub:       hub,
		JWTSecret: cfg.JWTSecret,
		Log:       logger,
	})

	// 5. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("🚀 Server starting", zap.String("port", cfg.Port), zap.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Warn("⚠️  Shutdown signal received, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	stopHub()

	// Close database (this also stops embedded PostgreSQL)
	logger.Info("🛑 Closing database connection...")
	if err := store.Close(); err != nil {
		logger.Error("Database close error", zap.Error(err))
	}

	logger.Info("✅ Shutdown complete")
}
