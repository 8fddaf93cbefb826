// Command server runs the support-relay backend: the webhook ingress that
// routes messages between end users and the support channel, and the query
// surface over the recorded conversations.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-support-relay/internal/config"
	httpapi "github.com/tbourn/go-support-relay/internal/http"
	"github.com/tbourn/go-support-relay/internal/observability"
	"github.com/tbourn/go-support-relay/internal/relay"
	"github.com/tbourn/go-support-relay/internal/store"
	"github.com/tbourn/go-support-relay/internal/store/gormstore"
	"github.com/tbourn/go-support-relay/internal/store/memstore"
	"github.com/tbourn/go-support-relay/internal/sysutil"
	"github.com/tbourn/go-support-relay/internal/telegram"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	sysutil.SetLogLevel(cfg.LogLevel)

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store init failed")
	}
	defer closeStore()

	client, err := telegram.NewClient(cfg.BotToken, cfg.BotAPIURL, cfg.BotTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("bot client init failed")
	}
	channel := relay.NewChannelConfig(cfg.SupportChatID)

	svc := relay.New(st, client, channel, log.Logger)
	svc.WelcomeOverride = cfg.WelcomeText

	// Verify the token before accepting traffic; a warning rather than a
	// fatal so a flaky upstream does not block startup.
	if me, err := client.GetMe(ctx); err != nil {
		log.Warn().Err(err).Msg("bot identity check failed")
	} else {
		log.Info().Int64("id", me.ID).Str("username", me.Username).Msg("bot identity verified")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, st, svc, channel, client, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore constructs the record store named by the configured driver and
// returns it with its cleanup function.
func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		return memstore.New(), func() {}, nil
	default:
		db, err := gormstore.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, err
		}
		if cfg.OTEL.Enabled {
			if err := gormstore.EnableTracing(db); err != nil {
				log.Warn().Err(err).Msg("db tracing setup failed")
			}
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return gormstore.New(db), closeFn, nil
	}
}
