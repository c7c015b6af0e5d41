// Package freshness decides when a stored city record needs a re-fetch.
// Staleness is day-granular: any calendar date difference counts as at
// least one day, and a changed location is always stale regardless of date.
package freshness

import (
	"time"

	"github.com/zelara/weather-service/internal/models"
	"github.com/zelara/weather-service/internal/validation"
)

// Today returns the current calendar date in UTC, formatted at day granularity.
func Today() string {
	return Now().UTC().Format(models.DateLayout)
}

// IsStale reports whether record needs a refresh for requestedLocation on
// the given calendar date (models.DateLayout). Stale iff the requested
// location differs from the stored one, or the last update happened on an
// earlier calendar date. A record with an unparseable LastUpdated is stale.
func IsStale(record models.CityRecord, requestedLocation, today string) bool {
	if validation.NormalizeCity(requestedLocation) != validation.NormalizeCity(record.Location) {
		return true
	}
	last, err := time.Parse(models.DateLayout, record.LastUpdated)
	if err != nil {
		return true
	}
	cur, err := time.Parse(models.DateLayout, today)
	if err != nil {
		return true
	}
	return !last.Equal(cur)
}
