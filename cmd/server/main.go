package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/brandpulse-io/adconnect"
	echoapi "github.com/brandpulse-io/adconnect/api/echo"
	"github.com/brandpulse-io/adconnect/cache"
	redisstore "github.com/brandpulse-io/adconnect/cache/redis"
	"github.com/brandpulse-io/adconnect/config"
	"github.com/brandpulse-io/adconnect/internal/clock"
	"github.com/brandpulse-io/adconnect/internal/httpx"
	"github.com/brandpulse-io/adconnect/log"
	"github.com/brandpulse-io/adconnect/mongodb"
	"github.com/brandpulse-io/adconnect/storage"
	"github.com/brandpulse-io/adconnect/tiktok"
	"github.com/brandpulse-io/adconnect/vault"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	logger.Info(ctx, "starting adconnect server", map[string]interface{}{
		"http_port":        cfg.HTTPPort,
		"connection_store": cfg.ConnectionStore,
		"state_store":      cfg.StateStore,
		"vault_mode":       cfg.VaultMode,
	})

	// Credential vault
	var vlt vault.Vault
	switch cfg.VaultMode {
	case "sealed":
		if cfg.VaultKey == "" {
			logger.Fatal(ctx, "sealed vault requires VAULT_KEY", nil)
		}
		vlt = vault.NewSealed(cfg.VaultKey, logger)
	default:
		vlt = vault.NewObfuscator(cfg.VaultKey, logger)
	}

	// Pending-state store
	var states cache.AuthStateStore
	switch cfg.StateStore {
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		states = redisstore.NewStateStore(client, "adconnect", adconnect.StateTTL)
	default:
		states = cache.NewMemoryStateStore(adconnect.StateTTL)
	}

	// Connection record store
	var connections cache.ConnectionStore
	switch cfg.ConnectionStore {
	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			logger.Fatal(ctx, "failed to connect to mongodb", err)
		}
		defer client.Disconnect(ctx)
		connections = mongodb.NewConnectionStore(client.Database(cfg.MongoDBName))
	case "memory":
		connections = cache.NewMemoryConnectionStore()
	default:
		store, err := storage.NewBoltConnectionStore(cfg.BoltPath)
		if err != nil {
			logger.Fatal(ctx, "failed to open bbolt store", err)
		}
		defer store.Close()
		connections = store
	}

	clk := clock.System{}

	var relays []httpx.Relay
	if cfg.RelayFallback {
		relays = httpx.DefaultRelays()
	}
	fetch := httpx.NewClient(relays, logger)

	exchanger := tiktok.NewExchangeClient(clk, logger)
	refresher := tiktok.NewRefreshClient(clk, logger)
	stateService := adconnect.NewStateService(states, clk, logger)
	flow := adconnect.NewFlowService(stateService, connections, vlt, exchanger, clk, logger)

	factory := tiktok.NewClientFactory(connections, vlt, refresher, fetch, clk, logger)

	e := echo.New()
	e.HideBanner = true
	api := echoapi.NewConnectAPI(flow, exchanger, refresher, connections, factory, logger).
		WithDefaultRedirectURI(cfg.RedirectURI)
	api.RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "http server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful shutdown failed", err)
	}
}
