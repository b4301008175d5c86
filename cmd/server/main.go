package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/MDx-Vision/nicehr-realtime/config"
	"github.com/MDx-Vision/nicehr-realtime/src/bridge"
	"github.com/MDx-Vision/nicehr-realtime/src/hub"
	"github.com/MDx-Vision/nicehr-realtime/src/notify"
	"github.com/MDx-Vision/nicehr-realtime/src/server"
	"github.com/MDx-Vision/nicehr-realtime/src/session"
	"github.com/MDx-Vision/nicehr-realtime/src/storage"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("configuration error")
	}

	logger := newLogger(cfg.LogLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	store := storage.New(rdb, cfg.RedisPrefix, logger)
	if err := store.Ping(context.Background()); err != nil {
		logger.Fatal().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("redis unreachable")
	}

	registry := hub.NewRegistry(logger)
	bc := hub.NewBroadcaster(registry, store, store, logger)

	agg := notify.NewAggregator(registry, logger)
	agg.Register(notify.Provider{Name: "open_tickets", Query: store.UserCounter("open_tickets")})
	agg.Register(notify.Provider{Name: "unread_messages", Query: store.UserCounter("unread_messages")})
	agg.Register(notify.Provider{Name: "expiring_documents", Query: store.UserCounter("expiring_documents")})
	agg.Register(notify.Provider{Name: "pending_approvals", AdminOnly: true, Query: store.TenantCounter("pending_approvals")})

	resolver := session.NewResolver(cfg.SessionSecret, cfg.SessionCookie, store, logger)

	supervisor := hub.NewSupervisor(registry, bc, cfg.HeartbeatInterval, logger)
	go supervisor.Run()

	ingress := bridge.NewRedisIngress(rdb, cfg.RedisPrefix, agg, logger)
	if err := ingress.Start(); err != nil {
		logger.Warn().Err(err).Msg("notify ingress unavailable, push endpoint only")
	}

	srv := server.New(cfg, resolver, registry, bc, agg, logger)

	app := fiber.New()
	srv.RegisterRoutes(app)

	// The upgrade handler needs the raw fasthttp context, so it sits in
	// front of the Fiber handler instead of inside it.
	wsHandler := srv.FastHTTPHandler()
	fiberHandler := app.Handler()
	httpServer := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				wsHandler(ctx)
				return
			}
			fiberHandler(ctx)
		},
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("realtime server listening")
		if err := httpServer.ListenAndServe(cfg.Addr()); err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	supervisor.Stop()
	if ingress.Available() {
		if err := ingress.Stop(); err != nil {
			logger.Error().Err(err).Msg("ingress stop error")
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := rdb.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
