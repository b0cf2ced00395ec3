package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homespot/identity-service/internal/api"
	"github.com/homespot/identity-service/internal/core/service"
	"github.com/homespot/identity-service/internal/infrastructure/config"
	mongostore "github.com/homespot/identity-service/internal/infrastructure/db/mongo"
	redisstore "github.com/homespot/identity-service/internal/infrastructure/db/redis"
	"github.com/homespot/identity-service/internal/infrastructure/notify"
	"github.com/homespot/identity-service/internal/infrastructure/queue"
	"github.com/homespot/identity-service/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Signing-key misconfiguration is fatal at startup, never per-request.
	issuer, err := service.NewTokenIssuer(service.TokenIssuerConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		SessionTTL: cfg.JWT.SessionTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("token issuer misconfigured")
	}

	client, db, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(shutdownCtx)
	}()

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	accountRepo := mongostore.NewAccountRepository(db, cfg.JWT.Secret)
	sessionRepo := mongostore.NewSessionRepository(db)
	if err := accountRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure account indexes")
	}
	if err := sessionRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure session indexes")
	}

	dispatcher := queue.NewDispatcher(0, notify.NewLogSender(log), log)
	dispatcher.Start(ctx)

	e := api.NewRouter(cfg, db, rdb, issuer, dispatcher, log)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil {
			log.Info().Err(err).Msg("http server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("identity service started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
