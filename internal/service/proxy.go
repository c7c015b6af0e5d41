// Package service holds the pass-through proxy: provider queries answered
// directly to the caller, with a short-TTL hot cache in front so repeated
// lookups for the same city do not burn provider quota.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zelara/weather-service/internal/cache"
	"github.com/zelara/weather-service/internal/observability"
	"github.com/zelara/weather-service/internal/upstream"
	"github.com/zelara/weather-service/internal/validation"
)

// ProxyService serves the /weather and /air_pollution pass-through queries.
type ProxyService struct {
	provider  upstream.Provider
	cache     cache.Cache
	ttl       time.Duration
	coalescer *fetchCoalescer
	logger    *zap.Logger
}

// NewProxyService creates a ProxyService. ttl is the hot-cache expiry.
// coalesceTimeout > 0 enables single-flight coalescing of concurrent
// fetches for the same city.
func NewProxyService(provider upstream.Provider, c cache.Cache, ttl, coalesceTimeout time.Duration, logger *zap.Logger) *ProxyService {
	var coalescer *fetchCoalescer
	if coalesceTimeout > 0 {
		coalescer = newFetchCoalescer(coalesceTimeout)
	}
	return &ProxyService{
		provider:  provider,
		cache:     c,
		ttl:       ttl,
		coalescer: coalescer,
		logger:    logger,
	}
}

// CityWeather returns the provider's current-weather document for city.
func (s *ProxyService) CityWeather(ctx context.Context, city, apiKey string) (json.RawMessage, error) {
	key := "weather:" + validation.NormalizeCity(city)
	return s.cachedFetch(ctx, key, "weather", func() (json.RawMessage, error) {
		payload, err := s.provider.CurrentByCity(ctx, city, apiKey)
		if err != nil {
			return nil, err
		}
		return json.Marshal(payload)
	})
}

// AirPollution resolves city and returns the provider's air pollution
// forecast document. Two upstream calls on a cache miss: geocode, then the
// forecast itself.
func (s *ProxyService) AirPollution(ctx context.Context, city, apiKey string) (json.RawMessage, error) {
	key := "air:" + validation.NormalizeCity(city)
	return s.cachedFetch(ctx, key, "air_pollution", func() (json.RawMessage, error) {
		coord, err := s.provider.ResolveCity(ctx, city, apiKey)
		if err != nil {
			return nil, err
		}
		return s.provider.AirPollutionForecast(ctx, coord, apiKey)
	})
}

func (s *ProxyService) cachedFetch(ctx context.Context, key, cacheType string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return cached, nil
	}

	var result json.RawMessage
	if s.coalescer != nil {
		result, err = s.coalescer.GetOrDo(ctx, key, fn)
	} else {
		result, err = fn()
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cacheType, err)
	}

	if setErr := s.cache.Set(ctx, key, result, s.ttl); setErr != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	}
	return result, nil
}
