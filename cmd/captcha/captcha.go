package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"captcha/internal/api"
	"captcha/internal/captcha"
	"captcha/internal/challenge"
	"captcha/internal/config"
	"captcha/internal/logger"
	"captcha/internal/models"
	"captcha/internal/observability"
	"captcha/internal/ratelimit"
	"captcha/internal/session"
	"captcha/internal/version"

	"github.com/redis/go-redis/v9"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	writeExample = flag.String("write-example-config", "", "Write an example configuration to this path and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	ctx := context.Background()

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = initializeRedis(ctx, cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// Initialize session store
	store, err := initializeSessionStore(ctx, cfg, redisClient)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err, "type", cfg.Session.Type)
		os.Exit(1)
	}
	defer store.Close()

	limiter, err := initializeLimiter(cfg, redisClient)
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err, "type", cfg.RateLimit.Type)
		os.Exit(1)
	}

	generator, err := initializeGenerator(cfg)
	if err != nil {
		slog.Error("Failed to initialize captcha generator", "error", err)
		os.Exit(1)
	}

	var service captcha.ServiceInterface = captcha.NewService(limiter, generator, store)
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedService(service)
		if err != nil {
			slog.Error("Failed to create instrumented service", "error", err)
			os.Exit(1)
		}
		service = instrumented
	}

	handlers := api.NewHandlers(service,
		api.WithSessionStore(store),
		api.WithLimiter(limiter),
		api.WithTestMode(cfg.Captcha.TestModeEnabled),
		api.WithVersion(ver),
	)

	if cfg.Captcha.TestModeEnabled {
		slog.Warn("Test mode is enabled; clients sending X-Captcha-Test-Mode receive the answer")
	}

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"session_store", cfg.Session.Type,
			"rate_limiter", cfg.RateLimit.Type,
			"bucket_capacity", cfg.RateLimit.Capacity,
			"refill_tokens", cfg.RateLimit.RefillTokens,
			"refill_interval", cfg.RateLimit.RefillInterval)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

func needsRedis(cfg *models.Config) bool {
	return cfg.Session.Type == models.SessionTypeRedis || cfg.RateLimit.Type == models.LimiterTypeRedis
}

// initializeRedis opens one client shared by the session store and the bucket.
func initializeRedis(ctx context.Context, cfg models.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// initializeSessionStore creates the configured store, instrumented when
// metrics are enabled.
func initializeSessionStore(ctx context.Context, cfg *models.Config, redisClient *redis.Client) (session.Store, error) {
	var opts []session.FactoryOption
	if redisClient != nil {
		opts = append(opts, session.WithRedis(redisClient, cfg.Redis.KeyPrefix))
	}

	store, err := session.NewFactory(opts...).Create(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}

	if !cfg.Metrics.Enabled {
		return store, nil
	}
	instrumented, err := observability.NewInstrumentedStore(store, cfg.Session.Type)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("instrument session store: %w", err)
	}
	return instrumented, nil
}

// initializeLimiter builds the shared generation bucket.
func initializeLimiter(cfg *models.Config, redisClient *redis.Client) (ratelimit.Limiter, error) {
	bucket := ratelimit.BucketConfig{
		Capacity:       cfg.RateLimit.Capacity,
		RefillTokens:   cfg.RateLimit.RefillTokens,
		RefillInterval: cfg.RateLimit.RefillInterval,
	}

	switch cfg.RateLimit.Type {
	case models.LimiterTypeMemory:
		return ratelimit.NewMemoryBucket(bucket)
	case models.LimiterTypeRedis:
		return ratelimit.NewRedisBucket(redisClient, cfg.RateLimit.Key, bucket)
	default:
		return nil, fmt.Errorf("unsupported rate limiter type: %s", cfg.RateLimit.Type)
	}
}

func initializeGenerator(cfg *models.Config) (captcha.Generator, error) {
	generator, err := challenge.NewGenerator(challenge.OptionsFromConfig(cfg.Captcha))
	if err != nil {
		return nil, err
	}
	if !cfg.Metrics.Enabled {
		return generator, nil
	}
	return observability.NewInstrumentedGenerator(generator)
}
