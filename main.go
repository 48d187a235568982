package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/config"
	"chatsync/internal/database"
	"chatsync/internal/handlers"
	"chatsync/internal/logger"
	"chatsync/internal/media"
	"chatsync/internal/presence"
	"chatsync/internal/routes"
	"chatsync/internal/service"
	"chatsync/internal/store"
	"chatsync/internal/utils"
	"chatsync/internal/websocket"
)

// backend is a message store that also serves users
type backend interface {
	store.MessageStore
	Users() store.UserStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Pretty:      cfg.LogPretty || cfg.IsDevelopment(),
		ServiceName: "chatsync",
	})
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the message store
	st, pinger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	// Presence registry
	var registry presence.Registry = presence.NewMemoryRegistry()
	if cfg.RedisURL != "" {
		instanceID := uuid.New().String()
		rr, err := presence.NewRedisRegistry(ctx, cfg.RedisURL, instanceID, cfg.PresenceTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect presence registry")
		}
		rr.StartHeartbeat(ctx)
		defer rr.Close()
		registry = rr
		log.Info().Str("instance", instanceID).Msg("presence mirrored to redis")
	}

	hub := websocket.NewHub(registry)
	uploader := media.NewLocalUploader(cfg.UploadDir)
	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	messages := service.NewMessageService(st, st.Users(), hub, uploader)

	app := routes.NewApp(routes.Deps{
		Handler: handlers.New(handlers.Options{
			Messages:      messages,
			Users:         st.Users(),
			Tokens:        tokens,
			Uploader:      uploader,
			Hub:           hub,
			Pinger:        pinger,
			SecureCookies: cfg.IsProduction(),
		}),
		Tokens:        tokens,
		Users:         st.Users(),
		Logger:        log,
		CORSOrigins:   cfg.CORSOrigins,
		AuthRateLimit: cfg.AuthRateLimit,
		APIRateLimit:  cfg.APIRateLimit,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// openStore picks PostgreSQL, then SQLite, then memory.
func openStore(ctx context.Context, cfg *config.Config) (backend, handlers.Pinger, func(), error) {
	log := logger.L()

	switch {
	case cfg.DatabaseURL != "":
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		pg := store.NewPostgresStore(pool)
		log.Info().Str("store", "postgres").Msg("store ready")
		return pg, pg, pg.Close, nil

	case cfg.SQLitePath != "":
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		log.Info().Str("store", "sqlite").Str("path", cfg.SQLitePath).Msg("store ready")
		return lite, lite, lite.Close, nil

	default:
		log.Warn().Str("store", "memory").Msg("no database configured, data is lost on restart")
		return store.NewMemoryStore(), nil, func() {}, nil
	}
}
