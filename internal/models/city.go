package models

import (
	"encoding/json"
	"time"
)

// DateLayout is the day-granularity format used for LastUpdated.
const DateLayout = "2006-01-02"

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// WeatherPayload is the provider's current-weather document. Only Coord is
// interpreted by this service; every other field rides along untouched in
// Extra so the stored document stays byte-equivalent to what the provider
// returned.
type WeatherPayload struct {
	Coord Coordinates            `bson:"coord"`
	Extra map[string]interface{} `bson:",inline"`
}

// MarshalJSON flattens Extra back around the coord object so clients see the
// original provider shape.
func (p WeatherPayload) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(p.Extra)+1)
	for k, v := range p.Extra {
		doc[k] = v
	}
	doc["coord"] = p.Coord
	return json.Marshal(doc)
}

// UnmarshalJSON splits the provider document into the typed coord and the
// opaque remainder.
func (p *WeatherPayload) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if raw, ok := doc["coord"]; ok {
		if err := json.Unmarshal(raw, &p.Coord); err != nil {
			return err
		}
		delete(doc, "coord")
	}
	p.Extra = make(map[string]interface{}, len(doc))
	for k, raw := range doc {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		p.Extra[k] = v
	}
	return nil
}

// CityRecord is the persisted unit: one city, its last fetched weather
// document, and the calendar date of the last successful refresh.
// ID is assigned by the store on insert and immutable afterwards.
type CityRecord struct {
	ID          string         `json:"id"`
	Location    string         `json:"location,omitempty"`
	WeatherData WeatherPayload `json:"weather_data"`
	LastUpdated string         `json:"last_updated"`
	CreatedAt   time.Time      `json:"-"`
}

// Coord returns the coordinate of the stored weather document.
func (r CityRecord) Coord() Coordinates {
	return r.WeatherData.Coord
}
