package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/api"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/broadcast"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/catalog"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/config"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/game"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/leaderboard"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/limits"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/rollover"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/session"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting ai-or-not game server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"max_attempts", cfg.Game.MaxAttempts,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Connect the key-value store
	store, err := storage.NewRedisStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.Info("redis connected successfully")

	// Load the asset catalog
	cat, err := catalog.NewPostgresCatalog(initCtx, catalog.PostgresConfig{
		DSN:      cfg.Database.DSN,
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		slog.Error("failed to load asset catalog", "error", err)
		os.Exit(1)
	}

	if err := catalog.Validate(cat); err != nil {
		slog.Error("asset catalog is not playable", "error", err)
		os.Exit(1)
	}

	// Wire the game core
	publisher := broadcast.NewRedisPublisher(store.Client())
	gameManager := game.NewManager(store, cat, publisher, cfg.Game.StateTTL)
	limitManager := limits.NewManager(store, cfg.Game.MaxAttempts, cfg.Game.StateTTL)
	boards := leaderboard.NewManager(store, publisher)
	orchestrator := session.NewOrchestrator(store, gameManager, limitManager, boards, session.Config{
		BasePoints:    cfg.Game.BasePoints,
		TimeBonusRate: cfg.Game.TimeBonusRate,
		RoundTimeMs:   cfg.Game.RoundTimeMs,
		SessionTTL:    cfg.Game.SessionTTL,
	})

	// Make sure today's round set exists before accepting traffic
	if _, err := gameManager.InitializeOrFetch(initCtx, models.DateKey(time.Now())); err != nil {
		slog.Error("failed to initialize daily game state", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation for background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the rollover / consolidation worker
	worker := rollover.NewWorker(gameManager, boards, cfg.Maintenance.RolloverCheckInterval, cfg.Maintenance.ConsolidateInterval)
	worker.Start(ctx)

	// Start the live event hub
	hub := broadcast.NewHub(store.Client())
	go hub.Run(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, store, cat, gameManager, limitManager, boards, orchestrator, hub, api.HeaderIdentity{}, cfg.Admin.APIKey)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := cat.Close(); err != nil {
		slog.Error("catalog close error", "error", err)
	}

	if err := store.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("game server stopped")
}
