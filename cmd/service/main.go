package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zelara/weather-service/internal/cache"
	"github.com/zelara/weather-service/internal/config"
	httphandler "github.com/zelara/weather-service/internal/http"
	"github.com/zelara/weather-service/internal/lifecycle"
	"github.com/zelara/weather-service/internal/observability"
	"github.com/zelara/weather-service/internal/proximity"
	"github.com/zelara/weather-service/internal/refresh"
	"github.com/zelara/weather-service/internal/scheduler"
	"github.com/zelara/weather-service/internal/service"
	"github.com/zelara/weather-service/internal/store"
	"github.com/zelara/weather-service/internal/upstream"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var outboundLimiter *rate.Limiter
	if cfg.ProviderRateLimitRPS > 0 {
		outboundLimiter = rate.NewLimiter(rate.Limit(cfg.ProviderRateLimitRPS), cfg.ProviderRateLimitBurst)
	}
	provider := upstream.NewOpenWeatherClient(cfg.ProviderDataURL, cfg.ProviderGeoURL, cfg.ProviderTimeout, outboundLimiter)

	if cfg.CircuitBreakerEnabled {
		threshold := cfg.CircuitBreakerFailureThreshold
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "openweather",
			Timeout: cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				// Client-caused 4xx responses say nothing about provider
				// health; only 429 and 5xx/transport failures count.
				if err == nil {
					return true
				}
				if ue, ok := err.(*upstream.UpstreamError); ok {
					return ue.StatusCode < 500 && ue.StatusCode != http.StatusTooManyRequests
				}
				return false
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		provider.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	ctx := context.Background()
	var recordStore store.RecordStore
	switch cfg.StoreBackend {
	case "mongo":
		ms, err := store.NewMongoStore(ctx, cfg.MongoURL, cfg.MongoDatabase, cfg.MongoCollection, cfg.MongoConnectTimeout)
		if err != nil {
			logger.Fatal("mongo store", zap.Error(err))
		}
		recordStore = ms
		logger.Info("store backend: mongo",
			zap.String("database", cfg.MongoDatabase),
			zap.String("collection", cfg.MongoCollection))
	default:
		recordStore = store.NewMemoryStore()
		logger.Info("store backend: memory")
	}

	var hotCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		hotCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		hotCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	matcher := proximity.NewMatcher(cfg.Epsilon)
	coordinator := refresh.NewCoordinator(recordStore, provider, matcher, logger, cfg.RefreshConcurrency)
	proxy := service.NewProxyService(provider, hotCache, cfg.CacheTTL, cfg.CoalesceTimeout, logger)

	sweeper := scheduler.New(coordinator, cfg.ProviderAPIKey, cfg.RefreshInterval, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	defer sweeper.Stop()

	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(recordStore, coordinator, proxy, logger, cfg.ProviderAPIKey, cachePing)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/", handler.GetRoot).Methods("GET")
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.NewRoute().Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/data", handler.GetData).Methods("GET")
	api.HandleFunc("/data", handler.DeleteData).Methods("DELETE")
	api.HandleFunc("/find/city", handler.FindCity).Methods("GET")
	api.HandleFunc("/find/id", handler.FindByID).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(httphandler.AuthMiddleware())
	authed.HandleFunc("/add", handler.AddCity).Methods("POST")
	authed.HandleFunc("/update", handler.UpdateCity).Methods("GET")
	authed.HandleFunc("/bulk_refresh", handler.BulkRefresh).Methods("GET")
	authed.HandleFunc("/weather", handler.GetWeather).Methods("GET")
	authed.HandleFunc("/air_pollution", handler.GetAirPollution).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-signalCtx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := recordStore.Close(closeCtx); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
