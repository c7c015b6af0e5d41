package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zelara/weather-service/internal/freshness"
	"github.com/zelara/weather-service/internal/models"
)

// MemoryStore implements RecordStore with an in-process slice. Insertion
// order is creation order, so ListAll needs no sort. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.CityRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert implements RecordStore.Insert. IDs are random UUIDs.
func (s *MemoryStore) Insert(ctx context.Context, record models.CityRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = uuid.New().String()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = freshness.Now().UTC()
	}
	s.records = append(s.records, record)
	return record.ID, nil
}

// ListAll implements RecordStore.ListAll.
func (s *MemoryStore) ListAll(ctx context.Context) ([]models.CityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, ErrEmptyStore
	}
	out := make([]models.CityRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// GetByID implements RecordStore.GetByID. An id that is not a UUID is
// malformed for this backend.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.CityRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// UpdateFields implements RecordStore.UpdateFields. Unknown field names are
// ignored. Updating a missing record is a no-op, matching Mongo's $set on a
// non-matching filter.
func (s *MemoryStore) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if v, ok := fields[FieldLocation].(string); ok {
			s.records[i].Location = v
		}
		if v, ok := fields[FieldWeatherData].(models.WeatherPayload); ok {
			s.records[i].WeatherData = v
		}
		if v, ok := fields[FieldLastUpdated].(string); ok {
			s.records[i].LastUpdated = v
		}
		return nil
	}
	return nil
}

// DeleteAll implements RecordStore.DeleteAll.
func (s *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.records))
	s.records = nil
	return n, nil
}

// Ping implements RecordStore.Ping. Always reachable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close implements RecordStore.Close.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
