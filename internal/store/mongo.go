package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/zelara/weather-service/internal/freshness"
	"github.com/zelara/weather-service/internal/models"
)

// MongoStore implements RecordStore over a single MongoDB collection. The
// client holds a connection pool created once at startup and injected here;
// nothing reconnects per call.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// mongoRecord is the BSON shape of a stored record. The hex ObjectID becomes
// the record's opaque string id at the interface boundary.
type mongoRecord struct {
	ID          primitive.ObjectID    `bson:"_id,omitempty"`
	Location    string                `bson:"location,omitempty"`
	WeatherData models.WeatherPayload `bson:"weather_data"`
	LastUpdated string                `bson:"last_updated"`
	CreatedAt   time.Time             `bson:"created_at"`
}

// NewMongoStore connects to MongoDB and returns a store bound to
// database/collection. The connect timeout applies only to establishing the
// initial pool.
func NewMongoStore(ctx context.Context, uri, database, collection string, connectTimeout time.Duration) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Insert implements RecordStore.Insert.
func (s *MongoStore) Insert(ctx context.Context, record models.CityRecord) (string, error) {
	doc := mongoRecord{
		Location:    record.Location,
		WeatherData: record.WeatherData,
		LastUpdated: record.LastUpdated,
		CreatedAt:   record.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = freshness.Now().UTC()
	}

	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("%w: insert: %v", ErrUnavailable, err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("%w: unexpected inserted id type %T", ErrUnavailable, res.InsertedID)
	}
	return oid.Hex(), nil
}

// ListAll implements RecordStore.ListAll. Sorted by _id ascending: ObjectIDs
// are time-ordered, so this is creation order.
func (s *MongoStore) ListAll(ctx context.Context) ([]models.CityRecord, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: find: %v", ErrUnavailable, err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if len(docs) == 0 {
		return nil, ErrEmptyStore
	}

	records := make([]models.CityRecord, len(docs))
	for i, d := range docs {
		records[i] = d.toRecord()
	}
	return records, nil
}

// GetByID implements RecordStore.GetByID.
func (s *MongoStore) GetByID(ctx context.Context, id string) (*models.CityRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	var doc mongoRecord
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find one: %v", ErrUnavailable, err)
	}
	rec := doc.toRecord()
	return &rec, nil
}

// UpdateFields implements RecordStore.UpdateFields.
func (s *MongoStore) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}

	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	if _, err := s.collection.UpdateByID(ctx, oid, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("%w: update: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteAll implements RecordStore.DeleteAll.
func (s *MongoStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return res.DeletedCount, nil
}

// Ping implements RecordStore.Ping.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Close implements RecordStore.Close.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (d mongoRecord) toRecord() models.CityRecord {
	return models.CityRecord{
		ID:          d.ID.Hex(),
		Location:    d.Location,
		WeatherData: d.WeatherData,
		LastUpdated: d.LastUpdated,
		CreatedAt:   d.CreatedAt,
	}
}
