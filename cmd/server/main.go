// Command server runs the chat relay: the WebSocket gateway, the HTTP API
// and the background idempotency janitor.
//
// @title       Chat Relay API
// @version     1.0
// @description Relays direct messages between connected users, stores them, and keeps an optional hash audit log.
// @BasePath    /api/v1
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
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/audit"
	"github.com/tbourn/go-chat-relay/internal/config"
	httpapi "github.com/tbourn/go-chat-relay/internal/http"
	"github.com/tbourn/go-chat-relay/internal/observability"
	"github.com/tbourn/go-chat-relay/internal/presence"
	"github.com/tbourn/go-chat-relay/internal/repo"
	"github.com/tbourn/go-chat-relay/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const idempotencySweepEvery = 15 * time.Minute

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.ConfigureLogger("info", false, os.Stdout)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if err := observability.InstrumentDB(db); err != nil {
		log.Warn().Err(err).Msg("db tracing disabled")
	}

	// Leave auditLog as a nil interface when disabled so the relay skips the
	// audit stage and GET /audit reports it as off.
	var auditLog audit.Log
	var redisLog *audit.RedisLog
	if cfg.Audit.Enabled {
		redisLog, err = audit.NewRedisLog(ctx, cfg.Audit.RedisURL, cfg.Audit.Key)
		if err != nil {
			log.Fatal().Err(err).Msg("audit store unreachable")
		}
		auditLog = redisLog
		log.Info().Str("key", redisLog.Key()).Msg("audit chain enabled")
	}

	reg := presence.New()
	r := gin.New()
	gw := httpapi.RegisterRoutes(r, db, reg, auditLog, cfg)

	go sweepIdempotency(ctx, db)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", appVersion).
			Str("db_driver", cfg.DBDriver).
			Str("ws_path", cfg.Gateway.Path).
			Msg("chat relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// WebSocket connections are hijacked and invisible to srv.Shutdown, so
	// the gateway closes them itself.
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gateway shutdown incomplete")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	reg.Close()
	if redisLog != nil {
		if err := redisLog.Close(); err != nil {
			log.Warn().Err(err).Msg("audit store close failed")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("stopped")
}

// sweepIdempotency deletes expired idempotency records until ctx ends.
func sweepIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencySweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("idempotency sweep")
			}
		}
	}
}
