package freshness_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/zelara/weather-service/internal/freshness"
	"github.com/zelara/weather-service/internal/models"
)

func frozenClock(t *testing.T, at time.Time) {
	t.Helper()
	freshness.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { freshness.SetClock(nil) })
}

func TestIsStale(t *testing.T) {
	noon := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	frozenClock(t, noon)
	today := freshness.Today()
	assert.Equal(t, "2024-03-15", today)

	rec := func(location, lastUpdated string) models.CityRecord {
		return models.CityRecord{Location: location, LastUpdated: lastUpdated}
	}

	tests := []struct {
		name      string
		record    models.CityRecord
		requested string
		want      bool
	}{
		{
			name:      "fresh when location and date both match",
			record:    rec("berlin", "2024-03-15"),
			requested: "berlin",
			want:      false,
		},
		{
			name:      "location differs even though updated today",
			record:    rec("berlin", "2024-03-15"),
			requested: "hamburg",
			want:      true,
		},
		{
			name:      "updated yesterday with unchanged location",
			record:    rec("berlin", "2024-03-14"),
			requested: "berlin",
			want:      true,
		},
		{
			name:      "case and whitespace do not make a location differ",
			record:    rec("berlin", "2024-03-15"),
			requested: " Berlin ",
			want:      false,
		},
		{
			name:      "unparseable last_updated is stale",
			record:    rec("berlin", "not-a-date"),
			requested: "berlin",
			want:      true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, freshness.IsStale(tc.record, tc.requested, today))
		})
	}
}

// A date difference of one calendar day is stale even when fewer than 24
// hours have elapsed.
func TestIsStale_CalendarDayBoundary(t *testing.T) {
	justAfterMidnight := time.Date(2024, 3, 15, 0, 5, 0, 0, time.UTC)
	frozenClock(t, justAfterMidnight)

	record := models.CityRecord{Location: "berlin", LastUpdated: "2024-03-14"}
	assert.True(t, freshness.IsStale(record, "berlin", freshness.Today()))
}

func TestToday_UsesInjectedClock(t *testing.T) {
	frozenClock(t, time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, "2023-12-31", freshness.Today())
}
