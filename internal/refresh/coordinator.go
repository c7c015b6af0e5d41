// Package refresh is the orchestration core: it decides when stored city
// records are refetched from the provider and writes results back through
// the record store. Add and refresh hold a per-coordinate-bucket lock across
// their read-check-write sequence so concurrent requests for the same city
// cannot both pass the duplicate or staleness check.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zelara/weather-service/internal/freshness"
	"github.com/zelara/weather-service/internal/models"
	"github.com/zelara/weather-service/internal/observability"
	"github.com/zelara/weather-service/internal/proximity"
	"github.com/zelara/weather-service/internal/store"
	"github.com/zelara/weather-service/internal/upstream"
	"github.com/zelara/weather-service/internal/validation"
)

// ErrDuplicateCity is returned by AddCity when a stored record already
// represents the same city within the proximity tolerance.
var ErrDuplicateCity = errors.New("city already exists")

// ErrRecordNotFound is returned when the requested record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// DefaultConcurrency bounds the bulk-refresh worker pool.
const DefaultConcurrency = 4

// Coordinator wires the provider, the proximity matcher, and the record
// store into the add/refresh flows.
type Coordinator struct {
	store       store.RecordStore
	provider    upstream.Provider
	matcher     *proximity.Matcher
	locks       *proximity.KeyedMutex
	logger      *zap.Logger
	concurrency int
}

// NewCoordinator returns a Coordinator. concurrency bounds the bulk-refresh
// worker pool; non-positive values fall back to DefaultConcurrency.
func NewCoordinator(st store.RecordStore, provider upstream.Provider, matcher *proximity.Matcher, logger *zap.Logger, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Coordinator{
		store:       st,
		provider:    provider,
		matcher:     matcher,
		locks:       proximity.NewKeyedMutex(),
		logger:      logger,
		concurrency: concurrency,
	}
}

// RefreshResult is the outcome of one record's refresh.
type RefreshResult struct {
	ID       string `json:"id"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Report aggregates per-record refresh outcomes. One record's failure never
// aborts the rest of the batch.
type Report struct {
	Refreshed int             `json:"refreshed"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Results   []RefreshResult `json:"results"`
}

// AddCity resolves the city, rejects it when a stored record already sits
// within the proximity tolerance, and otherwise fetches weather by
// coordinate and inserts a new record dated today.
func (c *Coordinator) AddCity(ctx context.Context, city, apiKey string) (string, error) {
	coord, err := c.provider.ResolveCity(ctx, city, apiKey)
	if err != nil {
		return "", err
	}

	unlock := c.locks.Lock(c.matcher.BucketKey(coord))
	defer unlock()

	records, err := c.store.ListAll(ctx)
	if err != nil && !errors.Is(err, store.ErrEmptyStore) {
		observability.RecordStoreOperation("list", err)
		return "", err
	}

	if match := c.matcher.FindMatch(coord, records); match != nil {
		observability.DuplicateCitiesRejectedTotal.Inc()
		c.logger.Info("duplicate city rejected",
			zap.String("city", city),
			zap.String("existing_id", match.ID),
			zap.Float64("lat", coord.Lat),
			zap.Float64("lon", coord.Lon))
		return "", fmt.Errorf("%w: %s matches record %s", ErrDuplicateCity, city, match.ID)
	}

	payload, err := c.provider.CurrentByCoord(ctx, coord, apiKey)
	if err != nil {
		return "", err
	}

	id, err := c.store.Insert(ctx, models.CityRecord{
		Location:    validation.NormalizeCity(city),
		WeatherData: payload,
		LastUpdated: freshness.Today(),
		CreatedAt:   freshness.Now().UTC(),
	})
	observability.RecordStoreOperation("insert", err)
	if err != nil {
		return "", err
	}

	c.logger.Info("city added", zap.String("id", id), zap.String("city", city))
	return id, nil
}

// RefreshOne refreshes a single record when it is stale for newLocation.
// Returns the number of records updated: 0 when the record was fresh (no
// upstream call, no write), 1 after a successful refresh. An empty
// newLocation means "same location".
func (c *Coordinator) RefreshOne(ctx context.Context, id, newLocation, apiKey string) (int, error) {
	record, err := c.store.GetByID(ctx, id)
	observability.RecordStoreOperation("get", err)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	unlock := c.locks.Lock(c.matcher.BucketKey(record.Coord()))
	defer unlock()

	// Re-read under the lock: another request for the same bucket may have
	// refreshed the record while this one waited, and the staleness check
	// must see that write.
	record, err = c.store.GetByID(ctx, id)
	observability.RecordStoreOperation("get", err)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	location := newLocation
	if location == "" {
		location = record.Location
	}

	if !freshness.IsStale(*record, location, freshness.Today()) {
		observability.RefreshRecordsTotal.WithLabelValues("one", "skipped").Inc()
		c.logger.Debug("record fresh, skipping refresh", zap.String("id", id))
		return 0, nil
	}

	if err := c.refreshRecord(ctx, *record, location, apiKey); err != nil {
		observability.RefreshRecordsTotal.WithLabelValues("one", "failed").Inc()
		return 0, err
	}
	observability.RefreshRecordsTotal.WithLabelValues("one", "refreshed").Inc()
	return 1, nil
}

// RefreshAll unconditionally refetches weather for every stored record.
// Failures are isolated per record and aggregated into the report.
func (c *Coordinator) RefreshAll(ctx context.Context, apiKey string) (Report, error) {
	return c.refreshMany(ctx, apiKey, "all", false)
}

// RefreshStale refetches only records that are stale today. Used by the
// periodic sweep.
func (c *Coordinator) RefreshStale(ctx context.Context, apiKey string) (Report, error) {
	return c.refreshMany(ctx, apiKey, "stale", true)
}

func (c *Coordinator) refreshMany(ctx context.Context, apiKey, mode string, staleOnly bool) (Report, error) {
	records, err := c.store.ListAll(ctx)
	observability.RecordStoreOperation("list", err)
	if err != nil {
		return Report{}, err
	}

	today := freshness.Today()
	results := make([]RefreshResult, len(records))
	skipped := make([]bool, len(records))
	for i := range records {
		results[i] = RefreshResult{ID: records[i].ID, Location: records[i].Location}
		if staleOnly && !freshness.IsStale(records[i], records[i].Location, today) {
			skipped[i] = true
			observability.RefreshRecordsTotal.WithLabelValues(mode, "skipped").Inc()
		}
	}

	// Bounded fan-out. Each worker owns the records it dequeues, so
	// completion order cannot affect the report.
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := c.concurrency
	if workers > len(records) {
		workers = len(records)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec := records[i]
				if err := c.refreshRecord(ctx, rec, rec.Location, apiKey); err != nil {
					results[i].Error = err.Error()
					observability.RefreshRecordsTotal.WithLabelValues(mode, "failed").Inc()
					c.logger.Warn("record refresh failed",
						zap.String("id", rec.ID),
						zap.String("location", rec.Location),
						zap.Error(err))
					continue
				}
				observability.RefreshRecordsTotal.WithLabelValues(mode, "refreshed").Inc()
			}
		}()
	}

	for i := range records {
		if skipped[i] {
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report := Report{Results: results}
	for i := range results {
		switch {
		case staleOnly && skipped[i]:
			report.Skipped++
		case results[i].Error != "":
			report.Failed++
		default:
			report.Refreshed++
		}
	}
	return report, nil
}

// refreshRecord fetches fresh weather for location and writes it back with
// today's date. When the record has no usable location (legacy shapes), the
// stored coordinate is used instead.
func (c *Coordinator) refreshRecord(ctx context.Context, record models.CityRecord, location, apiKey string) error {
	var (
		payload models.WeatherPayload
		err     error
	)
	if location != "" {
		payload, err = c.provider.CurrentByCity(ctx, location, apiKey)
	} else {
		payload, err = c.provider.CurrentByCoord(ctx, record.Coord(), apiKey)
	}
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		store.FieldWeatherData: payload,
		store.FieldLastUpdated: freshness.Today(),
	}
	if location != "" {
		fields[store.FieldLocation] = validation.NormalizeCity(location)
	}
	err = c.store.UpdateFields(ctx, record.ID, fields)
	observability.RecordStoreOperation("update", err)
	return err
}

// FindByName resolves a city name and returns the first stored record within
// the proximity tolerance. coord, when non-nil, skips the geocoding call.
func (c *Coordinator) FindByName(ctx context.Context, name string, coord *models.Coordinates, apiKey string) (*models.CityRecord, error) {
	target := models.Coordinates{}
	if coord != nil {
		target = *coord
	} else {
		resolved, err := c.provider.ResolveCity(ctx, name, apiKey)
		if err != nil {
			return nil, err
		}
		target = resolved
	}

	records, err := c.store.ListAll(ctx)
	observability.RecordStoreOperation("list", err)
	if err != nil {
		if errors.Is(err, store.ErrEmptyStore) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, name)
		}
		return nil, err
	}

	match := c.matcher.FindMatch(target, records)
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, name)
	}
	return match, nil
}
