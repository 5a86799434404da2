package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/dashboard-notifications/internal/client/dashboard"
	"github.com/jwalitptl/dashboard-notifications/internal/config"
	"github.com/jwalitptl/dashboard-notifications/internal/handler"
	notificationHandler "github.com/jwalitptl/dashboard-notifications/internal/handler/notification"
	"github.com/jwalitptl/dashboard-notifications/internal/middleware"
	"github.com/jwalitptl/dashboard-notifications/internal/router"
	notificationService "github.com/jwalitptl/dashboard-notifications/internal/service/notification"
	"github.com/jwalitptl/dashboard-notifications/internal/source"
	"github.com/jwalitptl/dashboard-notifications/pkg/credential"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
	"github.com/jwalitptl/dashboard-notifications/pkg/messaging/redis"
	"github.com/jwalitptl/dashboard-notifications/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(cfg.Log.ToLoggerConfig())
	log.Logger = appLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New("notifier", nil)

	// Redis backs both the broadcast and, optionally, the credential.
	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		redisClient, err = redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
		if err != nil {
			appLogger.Fatal(err, "failed to connect to Redis")
		}
		defer redisClient.Close()
	}

	creds, err := newCredentialStore(cfg.Credential, redisClient, appLogger)
	if err != nil {
		appLogger.Fatal(err, "failed to initialize credential store")
	}

	// Upstream sources and aggregator
	api := dashboard.NewClient(cfg.API.ToClientConfig(), nil)
	// A rejected token must not stay memoized until the cache expires.
	rejected := source.OnRejected(func() { credential.Invalidate(creds) })
	svc := notificationService.NewService(
		source.NewDashboard(api, appLogger, m, rejected),
		source.NewAlerts(api, appLogger, m, rejected),
		creds,
		notificationService.Config{
			PollInterval: cfg.Poll.Interval,
			FetchTimeout: cfg.Poll.FetchTimeout,
		},
		appLogger,
		m,
	)

	if cfg.Redis.Enabled {
		broker := redis.NewRedisBroker(redisClient, &appLogger.ZL)
		svc.Subscribe(notificationService.NewBroadcaster(broker, cfg.Redis.Channel, cfg.Redis.PublishTimeout, appLogger, m))
		appLogger.Info("broadcasting feed", "channel", cfg.Redis.Channel)
	}

	// HTTP surface
	r := router.NewRouter(
		handler.NewHandler(svc.Ready, nil),
		notificationHandler.NewHandler(svc),
		appLogger,
		m,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        cfg.RateLimit.RequestsPerSecond,
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       corsConfig(cfg.CORS),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	svc.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("shutting down server...")
	case err := <-serverErr:
		appLogger.Error(err, "server failed")
	}

	svc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}

func corsConfig(c config.CORSConfig) middleware.CORSConfig {
	out := middleware.DefaultCORSConfig()
	if len(c.AllowedOrigins) > 0 {
		out.AllowOrigins = c.AllowedOrigins
	}
	if len(c.AllowedMethods) > 0 {
		out.AllowMethods = c.AllowedMethods
	}
	if len(c.AllowedHeaders) > 0 {
		out.AllowHeaders = c.AllowedHeaders
	}
	return out
}
