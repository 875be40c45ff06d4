package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/carddemo/auth-gateway/internal/api"
	"github.com/carddemo/auth-gateway/internal/api/handler"
	"github.com/carddemo/auth-gateway/internal/core/service"
	mongodb "github.com/carddemo/auth-gateway/internal/infrastructure/db/mongo"
	redisdb "github.com/carddemo/auth-gateway/internal/infrastructure/db/redis"
	"github.com/carddemo/auth-gateway/internal/infrastructure/queue"
	"github.com/carddemo/auth-gateway/internal/pkg/config"
	"github.com/carddemo/auth-gateway/internal/pkg/keys"
	"github.com/carddemo/auth-gateway/pkg/logger"
)

const (
	shutdownTimeout   = 15 * time.Second
	blacklistSweepDur = time.Minute
)

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "carddemo-auth",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// A missing signing key is fatal: the service cannot issue or check tokens.
	key, err := keys.Load(cfg.Token.PrivateKey, cfg.Token.Secret)
	if err != nil {
		return err
	}
	log.Info().Str("alg", key.Method.Alg()).Msg("signing key loaded")

	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:      cfg.Redis.Addr,
		DB:        cfg.Redis.DB,
		Password:  cfg.Redis.Password,
		OpTimeout: cfg.Session.StoreTimeout,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	credentials := mongodb.NewCredentialRepository(db)
	audit := mongodb.NewAuditRepository(db)
	owners := mongodb.NewOwnershipRepository(db)
	for _, ix := range []interface{ EnsureIndexes(context.Context) error }{credentials, audit, owners} {
		if err := ix.EnsureIndexes(ctx); err != nil {
			return err
		}
	}

	clock := clockwork.NewRealClock()
	store := redisdb.NewSessionStore(rdb, redisdb.SessionStoreConfig{
		Timeout:        cfg.Session.StoreTimeout,
		MaxRecordBytes: cfg.Session.MaxRecordBytes,
	}, clock, logger.Component("session_store"))
	blacklist := redisdb.NewBlacklist(rdb, cfg.Session.StoreTimeout, clock, logger.Component("blacklist"))

	tokens, err := service.NewTokenService(key, blacklist, service.TokenConfig{
		Issuer:        cfg.Token.Issuer,
		TTL:           cfg.Token.TTL,
		RefreshWindow: cfg.Token.RefreshWindow,
	}, clock, logger.Component("tokens"))
	if err != nil {
		return err
	}
	sessions := service.NewSessionService(credentials, tokens, store, audit,
		service.SessionConfig{TTL: cfg.Session.TTL}, clock, logger.Component("sessions"))
	authz := service.NewAuthorizationService(owners, logger.Component("authz"))

	activity := queue.NewDispatcher(cfg.Session.ActivityWorkers, store, cfg.Session.TTL, logger.Component("activity"))
	activity.Start(ctx)
	go blacklist.Run(ctx, blacklistSweepDur)

	e := api.NewRouter(api.Deps{
		Sessions: sessions,
		Tokens:   tokens,
		Authz:    authz,
		Activity: activity,
		Checks: []handler.DependencyCheck{
			{Name: "mongodb", Ping: func(ctx context.Context) error { return mongoClient.Ping(ctx, readpref.Primary()) }},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }, Optional: true},
		},
		LoginURL: cfg.LoginURL,
		ClientPolicy: handler.ClientPolicy{
			CheckInterval:    cfg.Client.CheckInterval,
			WarningThreshold: cfg.Client.WarningThreshold,
			RefreshThreshold: cfg.Client.RefreshThreshold,
		},
		Log: logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server starting")
		errCh <- e.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
