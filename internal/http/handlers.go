package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zelara/weather-service/internal/lifecycle"
	"github.com/zelara/weather-service/internal/models"
	"github.com/zelara/weather-service/internal/refresh"
	"github.com/zelara/weather-service/internal/service"
	"github.com/zelara/weather-service/internal/store"
	"github.com/zelara/weather-service/internal/upstream"
	"github.com/zelara/weather-service/internal/validation"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store       store.RecordStore
	coordinator *refresh.Coordinator
	proxy       *service.ProxyService
	logger      *zap.Logger
	// serverProviderKey, when set, is the provider credential for all
	// upstream calls; the caller's token then only authenticates the caller.
	// When empty the caller's token is forwarded as the provider key, which
	// is the original deployment mode.
	serverProviderKey string
	// cachePing, when set, is called to check hot-cache reachability.
	cachePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(
	st store.RecordStore,
	coordinator *refresh.Coordinator,
	proxy *service.ProxyService,
	logger *zap.Logger,
	serverProviderKey string,
	cachePing func() error,
) *Handler {
	return &Handler{
		store:             st,
		coordinator:       coordinator,
		proxy:             proxy,
		logger:            logger,
		serverProviderKey: serverProviderKey,
		cachePing:         cachePing,
	}
}

// providerKey picks the upstream credential for this request: the
// server-held key when configured, else the caller's own token. Routes
// without AuthMiddleware never populate the context, so the request
// headers are the fallback there.
func (h *Handler) providerKey(r *http.Request) string {
	if h.serverProviderKey != "" {
		return h.serverProviderKey
	}
	if token := tokenFromContext(r.Context()); token != "" {
		return token
	}
	return credentialFromRequest(r)
}

// GetRoot handles GET /.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Zelara Weather API!",
	})
}

// GetData handles GET /data. Returns every stored record; an empty store is
// a 404, not an empty list.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAll(r.Context())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"data":  records,
	})
}

// DeleteData handles DELETE /data. Irreversible whole-collection wipe.
func (h *Handler) DeleteData(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteAll(r.Context())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	h.logger.Info("all records deleted", zap.Int64("count", deleted))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// FindCity handles GET /find/city?name=&lat=&lon=. When lat and lon are both
// present the geocoding call is skipped; otherwise name is resolved first,
// which needs a provider credential.
func (h *Handler) FindCity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var coord *models.Coordinates
	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr != "" && lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lon must be decimal degrees")
			return
		}
		coord = &models.Coordinates{Lat: lat, Lon: lon}
	}

	name := q.Get("name")
	if coord == nil {
		if _, err := validation.ValidateCityName(name); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
			return
		}
	}

	key := h.providerKey(r)
	if coord == nil && key == "" {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "resolving a city name requires a credential")
		return
	}

	match, err := h.coordinator.FindByName(r.Context(), name, coord, key)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":       match.ID,
		"location": match.Location,
	})
}

// FindByID handles GET /find/id?id=.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	record, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if record == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no record with id "+id)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// AddCity handles POST /add?city=.
func (h *Handler) AddCity(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCityName(r.URL.Query().Get("city"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	id, err := h.coordinator.AddCity(r.Context(), city, h.providerKey(r))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateCity handles GET /update?id=&location=. Staleness-gated: a fresh
// record reports zero updates and makes no upstream call.
func (h *Handler) UpdateCity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")

	location := q.Get("location")
	if location != "" {
		var err error
		if location, err = validation.ValidateCityName(location); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
			return
		}
	}

	updated, err := h.coordinator.RefreshOne(r.Context(), id, location, h.providerKey(r))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// BulkRefresh handles GET /bulk_refresh. Unconditional refresh of every
// record with per-record failure isolation.
func (h *Handler) BulkRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.coordinator.RefreshAll(r.Context(), h.providerKey(r))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetWeather handles GET /weather?city=. Pass-through provider query.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, h.proxy.CityWeather)
}

// GetAirPollution handles GET /air_pollution?city=. Pass-through provider query.
func (h *Handler) GetAirPollution(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, h.proxy.AirPollution)
}

func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, city, apiKey string) (json.RawMessage, error)) {
	city, err := validation.ValidateCityName(r.URL.Query().Get("city"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	payload, err := fetch(r.Context(), city, h.providerKey(r))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// GetHealth handles GET /health. Health is dependency reachability: record
// store ping, hot cache ping when the backend supports it, and the shutdown
// flag.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if lifecycle.IsShuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "shutting-down",
			"service":   "zelara-weather-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if err := h.store.Ping(r.Context()); err != nil {
		checks["store"] = "unhealthy"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "healthy"
	}
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "zelara-weather-service",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeMappedError translates domain errors into the response envelope,
// keeping client-caused and upstream-caused failures distinguishable.
func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	var upstreamErr *upstream.UpstreamError
	var transportErr *upstream.TransportError

	switch {
	case errors.Is(err, refresh.ErrDuplicateCity):
		writeError(w, r, http.StatusConflict, "DUPLICATE_CITY", err.Error())
	case errors.Is(err, refresh.ErrRecordNotFound),
		errors.Is(err, store.ErrEmptyStore),
		errors.Is(err, upstream.ErrCityNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error())
	case errors.As(err, &upstreamErr):
		writeError(w, r, upstreamErr.StatusCode, "UPSTREAM_ERROR", upstreamErr.Message)
	case errors.As(err, &transportErr):
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNREACHABLE", "unable to reach weather provider")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Debug("transport error", zap.Error(err))
		}
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "record store unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("unhandled error", zap.Error(err))
		}
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
