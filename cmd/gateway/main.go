package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"middleware-gateway/internal/admin"
	"middleware-gateway/internal/auth"
	"middleware-gateway/internal/breaker"
	"middleware-gateway/internal/cache"
	"middleware-gateway/internal/config"
	"middleware-gateway/internal/gatewayhttp"
	"middleware-gateway/internal/healthcheck"
	"middleware-gateway/internal/metrics"
	"middleware-gateway/internal/pipeline"
	"middleware-gateway/internal/proxy"
	"middleware-gateway/internal/ratelimit"
	"middleware-gateway/internal/ratelimit/domain"
	"middleware-gateway/internal/ratelimit/infra"
	"middleware-gateway/internal/router"
	"middleware-gateway/internal/security"

	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config/gateway.json", "path to the gateway configuration file")
	routesPath := flag.String("routes", "config/routes.json", "path to the routes file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gateway [--config path] [--routes path]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	if *routesPath != "" {
		cfg.RoutesFile = *routesPath
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := start(cfg, logger); err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// start wires every subsystem and blocks serving until a shutdown
// signal is received.
func start(cfg *config.Config, logger *slog.Logger) error {
	routes, err := router.NewRegistry(cfg.RoutesFile, logger)
	if err != nil {
		return fmt.Errorf("loading routes: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := routes.WatchForChanges(ctx); err != nil {
		logger.Warn("route file watcher failed to start, hot-reload disabled", "error", err)
	}
	defer routes.Stop()

	validator := security.New(cfg.Security.MaxHeaderSize, cfg.Server.MaxBodySize)
	validator.SetAllowedMethods(cfg.Security.AllowedMethods)
	validator.SetIPWhitelist(cfg.Security.IPWhitelist)
	validator.SetIPBlacklist(cfg.Security.IPBlacklist)
	validator.SetAPIKeys(cfg.Security.APIKeys)
	validator.SetMaxConnectionsPerIP(cfg.RateLimits.PerIPConnections)

	authManager, err := buildAuthManager(cfg.JWT)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
	}

	// A shared Redis backend, when configured, replaces both the
	// in-process rate limiter and the local cache: every gateway instance
	// behind that Redis then enforces one combined limit and serves from
	// one shared cache instead of N independent ones.
	var limiter *ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, "ratelimit", logger)
	} else {
		limiter = ratelimit.New(5*time.Minute, 10*time.Minute)
	}
	limiter.SetGlobalLimit(cfg.RateLimits.Global.Requests, cfg.RateLimits.Global.Window)
	limiter.SetPerIPLimit(cfg.RateLimits.PerIP.Requests, cfg.RateLimits.PerIP.Window)
	for pattern, lim := range cfg.RateLimits.Endpoints {
		limiter.SetEndpointLimit(pattern, lim.Requests, lim.Window)
	}
	limiter.StartJanitor(ctx)

	var statsStore interface {
		domain.StatsStore
		domain.StatsReader
	}
	if redisClient != nil {
		statsStore = infra.NewRedisStatsStore(redisClient)
	} else {
		statsStore = infra.NewMemoryStatsStore()
	}
	limiter.SetStats(statsStore)

	breakers := breaker.NewRegistry(cfg.Backends.CircuitBreaker.FailureThreshold, time.Duration(cfg.Backends.CircuitBreaker.RecoveryTimeout)*time.Second)
	fwd := proxy.New(breakers)

	var respCache cache.Cache
	if cfg.Cache.Enabled {
		respCache, err = buildCache(redisClient)
		if err != nil {
			return fmt.Errorf("configuring cache: %w", err)
		}
	}

	metricsRegistry := metrics.New()

	checker := healthcheck.New(routes, breakers, time.Duration(cfg.Backends.HealthCheckInterval)*time.Second, logger).WithMetrics(metricsRegistry)
	go checker.Run(ctx)

	pl := &pipeline.Handler{
		Validator:       validator,
		Limiter:         limiter,
		Routes:          routes,
		Auth:            authManager,
		Proxy:           fwd,
		Cache:           respCache,
		CacheTTL:        time.Duration(cfg.Cache.DefaultTTL) * time.Second,
		MaxBodySize:     cfg.Server.MaxBodySize,
		SecurityHeaders: cfg.Security.Headers,
		Metrics:         metricsRegistry,
		Logger:          logger,
	}

	adminHandler := &admin.Handler{
		Config:  cfg,
		Cache:   respCache,
		Limiter: limiter,
		Stats:   statsStore,
		Token:   cfg.Admin.Token,
	}

	handler := gatewayhttp.New(gatewayhttp.Options{
		Pipeline:       pl,
		Admin:          adminHandler,
		AdminEnabled:   cfg.Admin.Enabled,
		Metrics:        metricsRegistry,
		HealthChecker:  checker,
		MaxConnections: cfg.Server.MaxConnections,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	if cfg.Server.TLS.Enabled {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			},
		}
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "addr", srv.Addr, "tls", cfg.Server.TLS.Enabled, "routes_file", cfg.RoutesFile)

	var serveErr error
	if cfg.Server.TLS.Enabled {
		serveErr = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	} else {
		serveErr = srv.ListenAndServe()
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", serveErr)
	}
	return nil
}

func buildAuthManager(cfg config.JWTConfig) (*auth.Manager, error) {
	switch strings.ToUpper(cfg.Algorithm) {
	case "", "HS256":
		return auth.NewHS256(cfg.Secret, cfg.Issuer, cfg.Audience)
	case "RS256":
		return auth.NewRS256(cfg.PublicKeyFile, cfg.Issuer, cfg.Audience)
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}
}

// buildCache picks the local in-memory cache, unless a shared Redis
// backend is already connected, in which case the cache follows it too.
func buildCache(redisClient *redis.Client) (cache.Cache, error) {
	if redisClient == nil {
		return cache.NewLocal(64 << 20)
	}
	return cache.NewRedis(redisClient), nil
}

// connectRedis dials the shared backend and verifies it is reachable
// before any subsystem is wired to it.
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URI != "" {
		return redis.ParseURL(cfg.URI)
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &redis.Options{Addr: addr, Password: cfg.Password}, nil
}
