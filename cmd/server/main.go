package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pollpulse/pollpulse/internal/api"
	"github.com/pollpulse/pollpulse/internal/config"
	"github.com/pollpulse/pollpulse/internal/locks"
	"github.com/pollpulse/pollpulse/internal/polls"
	"github.com/pollpulse/pollpulse/internal/pubsub"
	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/internal/storage"
	"github.com/pollpulse/pollpulse/internal/voting"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting pollpulse server",
		logger.Int("port", cfg.Server.Port),
		logger.String("db_backend", cfg.Database.Backend),
		logger.Int("max_connections", cfg.Realtime.MaxConnections),
	)

	// Storage
	var store storage.PollStore
	switch cfg.Database.Backend {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize PostgreSQL store",
				logger.ErrorField(err),
			)
		}
	default:
		logger.Warn("Using in-memory store, data will not survive a restart")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	// Optional Redis side channels
	var events voting.EventSink
	var statsCache *pubsub.StatsCache
	if cfg.Redis.Enabled {
		redisClient, err := pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client",
				logger.ErrorField(err),
			)
		}
		defer redisClient.Close()
		events = pubsub.NewEventPublisher(redisClient, cfg.Redis.EventStream)
		statsCache = pubsub.NewStatsCache(redisClient, cfg.Redis.StatsTTL)
	}

	// Realtime hub
	hub := realtime.NewHub(cfg.Realtime)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub",
			logger.ErrorField(err),
		)
	}
	defer hub.Stop()

	authManager := realtime.NewAuthManager(cfg.Auth.JWTSecret)

	// Domain services share one per-poll lock namespace
	guard := polls.NewGuard(nil)
	pollLocks := locks.NewKeyedMutex()

	pollService := polls.NewService(store, guard, pollLocks, hub)
	voteEngine := voting.NewVoteEngine(store, guard, pollLocks, hub, events)
	likeEngine := voting.NewLikeEngine(store, pollLocks, hub, events)

	// Close polls past their deadline and announce it
	watcher := polls.NewExpiryWatcher(store, hub, cfg.Realtime.SweepInterval)
	watcher.Start()
	defer watcher.Stop()

	// HTTP server
	router := api.NewRouter(api.RouterDeps{
		Polls: api.NewPollHandler(pollService, statsCache),
		Votes: api.NewVoteHandler(voteEngine, likeEngine, statsCache),
		WS:    api.NewWSHandler(hub, authManager, cfg.Realtime),
		Hub:   hub,
		Auth:  authManager,

		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down pollpulse server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed",
			logger.ErrorField(err),
		)
	}

	logger.Info("Server stopped")
}
