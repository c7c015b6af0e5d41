// Package store owns persistence of city weather records. Two backends
// implement the same interface: MongoDB for deployments and an in-memory
// store for tests and local development, selected by config the same way
// the cache backend is.
package store

import (
	"context"
	"errors"

	"github.com/zelara/weather-service/internal/models"
)

// ErrEmptyStore is returned by ListAll when the collection holds zero
// records. Emptiness is surfaced as an error because every caller of
// ListAll expects data; an empty sequence would silently succeed.
var ErrEmptyStore = errors.New("no records in store")

// ErrInvalidID is returned when an identifier is malformed for the backend.
var ErrInvalidID = errors.New("invalid record id")

// ErrUnavailable wraps backend failures (connection loss, timeouts).
var ErrUnavailable = errors.New("store unavailable")

// RecordStore is the persistence contract for city weather records.
// The store assigns identity on Insert and owns enumeration order:
// ListAll returns records in creation order, which gives proximity
// matching its first-created-wins semantics.
type RecordStore interface {
	// Insert persists a new record and returns its assigned id.
	Insert(ctx context.Context, record models.CityRecord) (string, error)

	// ListAll returns every record in creation order. Returns ErrEmptyStore
	// when the collection holds zero records.
	ListAll(ctx context.Context) ([]models.CityRecord, error)

	// GetByID returns the record with the given id, or (nil, nil) when no
	// such record exists. A malformed id yields ErrInvalidID.
	GetByID(ctx context.Context, id string) (*models.CityRecord, error)

	// UpdateFields applies a partial update to the record with the given id.
	// Last write wins; there is no optimistic concurrency.
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error

	// DeleteAll removes every record and returns the number removed.
	DeleteAll(ctx context.Context) (int64, error)

	// Ping checks backend reachability. Used by the health handler.
	Ping(ctx context.Context) error

	// Close releases backend resources. Call during shutdown.
	Close(ctx context.Context) error
}

// Field names accepted by UpdateFields. Both backends understand exactly
// this set; unknown fields are ignored by the memory backend and stored
// verbatim by Mongo.
const (
	FieldLocation    = "location"
	FieldWeatherData = "weather_data"
	FieldLastUpdated = "last_updated"
)
