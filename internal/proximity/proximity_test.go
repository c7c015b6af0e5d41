package proximity

import (
	"sync"
	"testing"
	"time"

	"github.com/zelara/weather-service/internal/models"
)

func record(id string, lat, lon float64) models.CityRecord {
	return models.CityRecord{
		ID: id,
		WeatherData: models.WeatherPayload{
			Coord: models.Coordinates{Lat: lat, Lon: lon},
		},
	}
}

// TestMatcher_Matches verifies the strict epsilon comparison on both axes,
// including the exact-boundary case where a delta of 1e-4 is a distinct city.
func TestMatcher_Matches(t *testing.T) {
	m := NewMatcher(0)

	tests := []struct {
		name   string
		a, b   models.Coordinates
		want   bool
	}{
		{
			name: "identical",
			a:    models.Coordinates{Lat: 52.52, Lon: 13.405},
			b:    models.Coordinates{Lat: 52.52, Lon: 13.405},
			want: true,
		},
		{
			name: "within epsilon both axes",
			a:    models.Coordinates{Lat: 52.52, Lon: 13.405},
			b:    models.Coordinates{Lat: 52.52004, Lon: 13.40504},
			want: true,
		},
		{
			name: "lat delta exactly epsilon",
			a:    models.Coordinates{Lat: 48.8566, Lon: 2.3522},
			b:    models.Coordinates{Lat: 48.8567, Lon: 2.3522},
			want: false,
		},
		{
			name: "lon delta exactly epsilon",
			a:    models.Coordinates{Lat: 48.8566, Lon: 2.3522},
			b:    models.Coordinates{Lat: 48.8566, Lon: 2.3523},
			want: false,
		},
		{
			name: "lat within but lon beyond",
			a:    models.Coordinates{Lat: 52.52, Lon: 13.405},
			b:    models.Coordinates{Lat: 52.52, Lon: 13.406},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.Matches(tc.a, tc.b); got != tc.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

// TestMatcher_FindMatch_FirstCreatedWins verifies that the first record in
// enumeration order wins when multiple records match the target.
func TestMatcher_FindMatch_FirstCreatedWins(t *testing.T) {
	m := NewMatcher(0)
	records := []models.CityRecord{
		record("older", 52.52, 13.405),
		record("newer", 52.52001, 13.40501),
	}

	got := m.FindMatch(models.Coordinates{Lat: 52.52, Lon: 13.405}, records)
	if got == nil {
		t.Fatal("FindMatch() = nil, want match")
	}
	if got.ID != "older" {
		t.Errorf("FindMatch() id = %s, want older", got.ID)
	}
}

// TestMatcher_FindMatch_NoMatch verifies nil is returned when nothing is
// within tolerance, including against an empty snapshot.
func TestMatcher_FindMatch_NoMatch(t *testing.T) {
	m := NewMatcher(0)

	if got := m.FindMatch(models.Coordinates{Lat: 48.8566, Lon: 2.3522}, nil); got != nil {
		t.Errorf("FindMatch() on empty = %v, want nil", got)
	}

	records := []models.CityRecord{record("paris", 48.8567, 2.3522)}
	if got := m.FindMatch(models.Coordinates{Lat: 48.8566, Lon: 2.3522}, records); got != nil {
		t.Errorf("FindMatch() at boundary = %v, want nil", got)
	}
}

// TestMatcher_BucketKey verifies that nearby coordinates quantize to stable
// bucket keys.
func TestMatcher_BucketKey(t *testing.T) {
	m := NewMatcher(0)

	a := m.BucketKey(models.Coordinates{Lat: 52.52, Lon: 13.405})
	b := m.BucketKey(models.Coordinates{Lat: 52.52, Lon: 13.405})
	if a != b {
		t.Errorf("BucketKey not stable: %s vs %s", a, b)
	}

	far := m.BucketKey(models.Coordinates{Lat: 51.5, Lon: -0.12})
	if a == far {
		t.Errorf("BucketKey(%s) should differ for distant coordinates", far)
	}
}

// TestKeyedMutex_SerializesSameKey verifies mutual exclusion per key by
// racing increments of an unguarded counter under the bucket lock.
func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("bucket")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

// TestKeyedMutex_IndependentKeys verifies that different keys do not block
// each other: a held lock on one key must not stop another key's Lock.
func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Lock(b) blocked behind Lock(a)")
	}
}
