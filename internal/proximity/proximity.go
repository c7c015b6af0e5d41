// Package proximity decides whether two coordinates name the same city.
// Cities are deduplicated by geographic closeness, not by name string: a
// stored record matches a target when both axes differ by strictly less
// than the configured epsilon.
package proximity

import (
	"fmt"
	"math"

	"github.com/zelara/weather-service/internal/models"
)

// DefaultEpsilon is the coordinate tolerance in decimal degrees, roughly 11m.
const DefaultEpsilon = 1e-4

// Matcher performs epsilon-tolerant coordinate matching over record snapshots.
type Matcher struct {
	eps float64
}

// NewMatcher returns a Matcher with the given tolerance. Non-positive eps
// falls back to DefaultEpsilon.
func NewMatcher(eps float64) *Matcher {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return &Matcher{eps: eps}
}

// Epsilon returns the configured tolerance.
func (m *Matcher) Epsilon() float64 {
	return m.eps
}

// Matches reports whether a and b are the same city: both latitude and
// longitude deltas strictly below epsilon. A delta of exactly epsilon is a
// distinct city.
func (m *Matcher) Matches(a, b models.Coordinates) bool {
	return math.Abs(a.Lat-b.Lat) < m.eps && math.Abs(a.Lon-b.Lon) < m.eps
}

// FindMatch scans records in the given order and returns the first whose
// stored coordinate matches target, or nil when none does. Records are
// expected in creation order, so the first created record wins on ties.
// The scan is linear; record counts here are small and a spatial index
// would buy nothing.
func (m *Matcher) FindMatch(target models.Coordinates, records []models.CityRecord) *models.CityRecord {
	for i := range records {
		if m.Matches(records[i].Coord(), target) {
			return &records[i]
		}
	}
	return nil
}

// BucketKey quantizes a coordinate to an epsilon-sized grid cell. Two
// coordinates that can possibly match share a bucket or an adjacent one;
// callers lock the bucket to serialize writes for the same city.
func (m *Matcher) BucketKey(c models.Coordinates) string {
	return fmt.Sprintf("%d:%d", int64(math.Floor(c.Lat/m.eps)), int64(math.Floor(c.Lon/m.eps)))
}
