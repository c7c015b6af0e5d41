package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zelara/weather-service/internal/cache"
	"github.com/zelara/weather-service/internal/models"
)

type stubProvider struct {
	weatherCalls int32
	airCalls     int32
	resolveCalls int32
	weatherErr   error
	block        chan struct{} // when non-nil, CurrentByCity waits on it
}

func (p *stubProvider) ResolveCity(_ context.Context, _, _ string) (models.Coordinates, error) {
	atomic.AddInt32(&p.resolveCalls, 1)
	return models.Coordinates{Lat: 52.52, Lon: 13.405}, nil
}

func (p *stubProvider) CurrentByCity(_ context.Context, _, _ string) (models.WeatherPayload, error) {
	atomic.AddInt32(&p.weatherCalls, 1)
	if p.block != nil {
		<-p.block
	}
	if p.weatherErr != nil {
		return models.WeatherPayload{}, p.weatherErr
	}
	return models.WeatherPayload{
		Coord: models.Coordinates{Lat: 52.52, Lon: 13.405},
		Extra: map[string]interface{}{"name": "Berlin"},
	}, nil
}

func (p *stubProvider) CurrentByCoord(_ context.Context, coord models.Coordinates, _ string) (models.WeatherPayload, error) {
	return models.WeatherPayload{Coord: coord}, nil
}

func (p *stubProvider) AirPollutionForecast(_ context.Context, _ models.Coordinates, _ string) (json.RawMessage, error) {
	atomic.AddInt32(&p.airCalls, 1)
	return json.RawMessage(`{"list":[{"main":{"aqi":2}}]}`), nil
}

func newTestProxy(p *stubProvider) *ProxyService {
	return NewProxyService(p, cache.NewInMemoryCache(), time.Minute, 5*time.Second, zap.NewNop())
}

func TestCityWeather_CacheHitSkipsProvider(t *testing.T) {
	provider := &stubProvider{}
	proxy := newTestProxy(provider)
	ctx := context.Background()

	first, err := proxy.CityWeather(ctx, "Berlin", "key")
	if err != nil {
		t.Fatalf("CityWeather() error = %v", err)
	}
	second, err := proxy.CityWeather(ctx, "berlin", "key")
	if err != nil {
		t.Fatalf("CityWeather() second call error = %v", err)
	}

	if got := atomic.LoadInt32(&provider.weatherCalls); got != 1 {
		t.Errorf("provider calls = %d, want 1 (second lookup served from cache)", got)
	}
	if string(first) != string(second) {
		t.Errorf("cached payload differs: %s vs %s", first, second)
	}
}

func TestCityWeather_ErrorNotCached(t *testing.T) {
	provider := &stubProvider{weatherErr: errors.New("upstream down")}
	proxy := newTestProxy(provider)
	ctx := context.Background()

	if _, err := proxy.CityWeather(ctx, "Berlin", "key"); err == nil {
		t.Fatal("CityWeather() expected error")
	}

	provider.weatherErr = nil
	if _, err := proxy.CityWeather(ctx, "Berlin", "key"); err != nil {
		t.Fatalf("CityWeather() after recovery error = %v", err)
	}
	if got := atomic.LoadInt32(&provider.weatherCalls); got != 2 {
		t.Errorf("provider calls = %d, want 2 (failures must not populate the cache)", got)
	}
}

func TestAirPollution_GeocodeThenForecast(t *testing.T) {
	provider := &stubProvider{}
	proxy := newTestProxy(provider)

	body, err := proxy.AirPollution(context.Background(), "Berlin", "key")
	if err != nil {
		t.Fatalf("AirPollution() error = %v", err)
	}
	if atomic.LoadInt32(&provider.resolveCalls) != 1 || atomic.LoadInt32(&provider.airCalls) != 1 {
		t.Errorf("calls = (resolve %d, air %d), want (1, 1)",
			provider.resolveCalls, provider.airCalls)
	}

	var parsed struct {
		List []json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if len(parsed.List) != 1 {
		t.Errorf("list length = %d, want 1", len(parsed.List))
	}
}

// Concurrent misses for the same city must coalesce into one provider call.
func TestCityWeather_CoalescesConcurrentFetches(t *testing.T) {
	provider := &stubProvider{block: make(chan struct{})}
	proxy := newTestProxy(provider)
	ctx := context.Background()

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = proxy.CityWeather(ctx, "Berlin", "key")
		}(i)
	}

	// let the goroutines pile up behind the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(provider.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&provider.weatherCalls); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}
