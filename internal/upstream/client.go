// Package upstream talks to the OpenWeatherMap API: geocoding, current
// weather, and air pollution. Every method makes exactly one outbound call;
// failures propagate immediately with no retries so the caller sees the
// first upstream condition as-is.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/zelara/weather-service/internal/models"
	"github.com/zelara/weather-service/internal/observability"
)

// Provider is the outbound contract for city resolution and weather data.
// The credential is per call: it is either the server-held provider key or
// the caller's forwarded token.
type Provider interface {
	ResolveCity(ctx context.Context, city, apiKey string) (models.Coordinates, error)
	CurrentByCity(ctx context.Context, city, apiKey string) (models.WeatherPayload, error)
	CurrentByCoord(ctx context.Context, coord models.Coordinates, apiKey string) (models.WeatherPayload, error)
	AirPollutionForecast(ctx context.Context, coord models.Coordinates, apiKey string) (json.RawMessage, error)
}

// OpenWeatherClient implements Provider against api.openweathermap.org.
type OpenWeatherClient struct {
	dataURL string
	geoURL  string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client. dataURL is the data API base
// (e.g. https://api.openweathermap.org/data/2.5), geoURL the geocoding base
// (e.g. http://api.openweathermap.org/geo/1.0). limiter, when non-nil,
// gates every outbound call; the provider is rate limited and blowing the
// quota turns into 429s for everyone.
func NewOpenWeatherClient(dataURL, geoURL string, timeout time.Duration, limiter *rate.Limiter) *OpenWeatherClient {
	return &OpenWeatherClient{
		dataURL: dataURL,
		geoURL:  geoURL,
		timeout: timeout,
		limiter: limiter,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetCircuitBreaker wraps all outbound calls in cb. Optional.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

// geocodeEntry is one element of the geocoding result array.
type geocodeEntry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ResolveCity resolves a city name to coordinates via the geocoding API.
// Returns ErrCityNotFound when the result set is empty.
func (c *OpenWeatherClient) ResolveCity(ctx context.Context, city, apiKey string) (models.Coordinates, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")
	params.Set("appid", apiKey)

	body, err := c.call(ctx, "geocode", c.geoURL+"/direct", params)
	if err != nil {
		return models.Coordinates{}, err
	}

	var entries []geocodeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return models.Coordinates{}, fmt.Errorf("parse geocode response: %w", err)
	}
	if len(entries) == 0 {
		return models.Coordinates{}, fmt.Errorf("%w: %q", ErrCityNotFound, city)
	}
	return models.Coordinates{Lat: entries[0].Lat, Lon: entries[0].Lon}, nil
}

// CurrentByCity fetches current weather for a city name.
func (c *OpenWeatherClient) CurrentByCity(ctx context.Context, city, apiKey string) (models.WeatherPayload, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", apiKey)
	return c.currentWeather(ctx, params)
}

// CurrentByCoord fetches current weather for a coordinate pair.
func (c *OpenWeatherClient) CurrentByCoord(ctx context.Context, coord models.Coordinates, apiKey string) (models.WeatherPayload, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(coord.Lat))
	params.Set("lon", formatCoord(coord.Lon))
	params.Set("appid", apiKey)
	return c.currentWeather(ctx, params)
}

func (c *OpenWeatherClient) currentWeather(ctx context.Context, params url.Values) (models.WeatherPayload, error) {
	body, err := c.call(ctx, "weather", c.dataURL+"/weather", params)
	if err != nil {
		return models.WeatherPayload{}, err
	}

	var payload models.WeatherPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.WeatherPayload{}, fmt.Errorf("parse weather response: %w", err)
	}
	return payload, nil
}

// AirPollutionForecast fetches the air pollution forecast for a coordinate.
// The payload is passed through untouched.
func (c *OpenWeatherClient) AirPollutionForecast(ctx context.Context, coord models.Coordinates, apiKey string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(coord.Lat))
	params.Set("lon", formatCoord(coord.Lon))
	params.Set("appid", apiKey)

	body, err := c.call(ctx, "air_pollution", c.dataURL+"/air_pollution/forecast", params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// call performs one GET against endpoint with params. The per-call timeout
// bounds the whole exchange; the rate limiter wait happens before the
// timeout starts so a queued call is not charged for the queueing.
func (c *OpenWeatherClient) call(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: endpoint, Err: err}
		}
	}

	if c.breaker != nil {
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doCall(ctx, endpoint, rawURL, params)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, &TransportError{Op: endpoint, Err: err}
			}
			return nil, err
		}
		return res.([]byte), nil
	}
	return c.doCall(ctx, endpoint, rawURL, params)
}

func (c *OpenWeatherClient) doCall(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return nil, &TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
	}
	return body, nil
}

// upstreamMessage extracts the provider's error message field when present.
func upstreamMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return "error fetching data"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
