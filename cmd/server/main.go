package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagwise/auth-service/internal/config"
	"github.com/flagwise/auth-service/internal/database"
	"github.com/flagwise/auth-service/internal/handler"
	"github.com/flagwise/auth-service/internal/repository"
	"github.com/flagwise/auth-service/internal/service"
	"github.com/flagwise/auth-service/pkg/password"
	"github.com/flagwise/auth-service/pkg/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := newLogger(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("Starting auth service")

	if err := database.Migrate(cfg.DatabaseURL, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	ctx := context.Background()
	dbPool, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token codec")
	}
	hasher := password.NewHasher(nil)

	userRepo := repository.NewUserRepository(dbPool, log)
	adminRepo := repository.NewAdminRepository(dbPool, log)
	sessionRepo := repository.NewSessionRepository(dbPool, log)

	bridge := service.NewBridge(userRepo, service.DefaultRegistry(), log)
	authService := service.NewAuthService(adminRepo, sessionRepo, codec, hasher, service.AuthConfig{
		TokenTTL:         cfg.TokenTTL,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutWindow:    cfg.LockoutWindow,
		MaxSessions:      cfg.MaxAdminSessions,
	}, log)
	accountService := service.NewAccountService(userRepo, bridge, codec, hasher, cfg.TokenTTL, log)
	authorizer := service.NewAuthorizer(userRepo, adminRepo, sessionRepo, codec, log)

	h := handler.New(authorizer, authService, accountService, cfg.Production(), log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", "auth-service").
		Logger()

	if !cfg.Production() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return log
}
