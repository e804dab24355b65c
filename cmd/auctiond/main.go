package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/auth"
	"github.com/openbid/auctiond/internal/bus"
	"github.com/openbid/auctiond/internal/chat"
	"github.com/openbid/auctiond/internal/config"
	"github.com/openbid/auctiond/internal/gateway"
	"github.com/openbid/auctiond/internal/lock"
	"github.com/openbid/auctiond/internal/repository"
	"github.com/openbid/auctiond/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	// Shared state store.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to ping redis")
	}
	pingCancel()
	sharedStore := store.NewRedis(redisClient, cfg.Redis.OpTimeout)

	// Durable storage.
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	items := repository.NewPostgresItemRepo(db)
	bids := repository.NewPostgresBidRepo(db)
	messages := repository.NewPostgresMessageRepo(db)

	// Room event bus.
	var eventBus bus.Bus
	switch cfg.Bus.Backend {
	case "nats":
		natsBus, err := bus.NewNATSBus(cfg.Bus.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.Bus.NATSURL).Msg("failed to connect to NATS bus")
		}
		defer natsBus.Close()
		eventBus = natsBus
	case "redis":
		eventBus = bus.NewStoreBus(sharedStore)
	default:
		log.Fatal().Str("backend", cfg.Bus.Backend).Msg("unknown bus backend")
	}

	// One process-level ID so log fields and bus event origins line up.
	instanceID := uuid.NewString()[:8]

	clock := clockwork.NewRealClock()
	hub := gateway.NewHub()
	broadcaster := gateway.NewBroadcaster(hub, eventBus, instanceID)

	ctrl := auction.NewController(
		sharedStore,
		lock.NewManager(sharedStore, cfg.Auction.LockTTL),
		items,
		bids,
		broadcaster,
		clock,
		auction.Config{
			Duration:         cfg.Auction.Duration,
			SessionRetention: cfg.Auction.SessionRetention,
			InstanceID:       instanceID,
		},
	)
	defer ctrl.Close()

	relay := chat.NewRelay(messages, broadcaster, clock)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	svc := gateway.NewService(gateway.DefaultConfig(), hub, broadcaster, eventBus, ctrl, relay, verifier)

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("redis", cfg.Redis.Addr).
		Str("bus", cfg.Bus.Backend).
		Str("instance", broadcaster.InstanceID()).
		Dur("auction_duration", cfg.Auction.Duration).
		Msg("starting auctiond")

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      cors.AllowAll().Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.RunBusConsumer(ctx); err != nil {
			log.Error().Err(err).Msg("bus consumer failed")
		}
	}()

	sweeper := auction.NewSweeper(ctrl, cfg.Auction.SweepInterval)
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			log.Error().Err(err).Msg("sweeper failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("auctiond shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
