package testutil

import (
	"fmt"
	"math/rand"
)

// Entity is a geopolitical entity served by the mock backend as a square
// polygon around its centre
type Entity struct {
	ID        string
	Name      string
	Status    string
	Lat       float64
	Lon       float64
	HalfSize  float64
	Stability float64
}

// SDRReceiver is an SDR receiver as served by the mock backend
type SDRReceiver struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Status       string  `json:"status"`
	FrequencyKHz float64 `json:"frequency_khz,omitempty"`
	Users        int     `json:"users,omitempty"`
	Country      string  `json:"country,omitempty"`
}

// Quake is an earthquake as served by the mock backend
type Quake struct {
	ID        string
	Place     string
	Lat       float64
	Lon       float64
	Magnitude float64
	DepthKm   float64
	Time      int64
}

// WeatherPoint is a sampled weather value
type WeatherPoint struct {
	Name  string
	Lat   float64
	Lon   float64
	Value float64
	Unit  string
}

// EntitiesCollection renders entities as a GeoJSON FeatureCollection
func EntitiesCollection(entities []Entity) map[string]interface{} {
	features := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		h := e.HalfSize
		if h <= 0 {
			h = 1
		}
		ring := [][]float64{
			{e.Lon - h, e.Lat - h},
			{e.Lon + h, e.Lat - h},
			{e.Lon + h, e.Lat + h},
			{e.Lon - h, e.Lat + h},
			{e.Lon - h, e.Lat - h},
		}
		features = append(features, map[string]interface{}{
			"type": "Feature",
			"id":   e.ID,
			"geometry": map[string]interface{}{
				"type":        "Polygon",
				"coordinates": [][][]float64{ring},
			},
			"properties": map[string]interface{}{
				"name":      e.Name,
				"status":    e.Status,
				"stability": e.Stability,
			},
		})
	}
	return collection(features)
}

// ReceiversCollection renders receivers as a GeoJSON FeatureCollection
func ReceiversCollection(receivers []SDRReceiver) map[string]interface{} {
	features := make([]interface{}, 0, len(receivers))
	for _, r := range receivers {
		features = append(features, point(r.ID, r.Lon, r.Lat, map[string]interface{}{
			"name":          r.Name,
			"status":        r.Status,
			"frequency_khz": r.FrequencyKHz,
			"users":         r.Users,
		}))
	}
	return collection(features)
}

// QuakesCollection renders earthquakes as a GeoJSON FeatureCollection
func QuakesCollection(quakes []Quake) map[string]interface{} {
	features := make([]interface{}, 0, len(quakes))
	for _, q := range quakes {
		features = append(features, point(q.ID, q.Lon, q.Lat, map[string]interface{}{
			"mag":   q.Magnitude,
			"place": q.Place,
			"depth": q.DepthKm,
			"time":  q.Time,
		}))
	}
	return collection(features)
}

// WeatherCollection renders weather samples as a GeoJSON FeatureCollection
func WeatherCollection(metric string, points []WeatherPoint) map[string]interface{} {
	features := make([]interface{}, 0, len(points))
	for i, p := range points {
		features = append(features, point(fmt.Sprintf("%s-%d", metric, i), p.Lon, p.Lat, map[string]interface{}{
			"name":   p.Name,
			"metric": metric,
			"value":  p.Value,
			"unit":   p.Unit,
		}))
	}
	return collection(features)
}

func point(id string, lon, lat float64, props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": "Feature",
		"id":   id,
		"geometry": map[string]interface{}{
			"type":        "Point",
			"coordinates": []float64{lon, lat},
		},
		"properties": props,
	}
}

func collection(features []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
	}
}

// SampleQuakes returns a fixed earthquake catalogue spanning magnitudes 2.8 to 7.1
func SampleQuakes() []Quake {
	return []Quake{
		{ID: "us1", Place: "Off the coast of Honshu", Lat: 38.3, Lon: 142.4, Magnitude: 7.1, DepthKm: 29, Time: 1700000000000},
		{ID: "us2", Place: "Central Chile", Lat: -33.4, Lon: -71.6, Magnitude: 5.2, DepthKm: 40, Time: 1700000300000},
		{ID: "us3", Place: "Aegean Sea", Lat: 38.9, Lon: 25.9, Magnitude: 4.6, DepthKm: 10, Time: 1700000600000},
		{ID: "us4", Place: "Northern California", Lat: 38.8, Lon: -122.8, Magnitude: 3.1, DepthKm: 2, Time: 1700000900000},
		{ID: "us5", Place: "Iceland", Lat: 63.9, Lon: -22.4, Magnitude: 2.8, DepthKm: 5, Time: 1700001200000},
	}
}

// SampleEntities returns a few geopolitical entities
func SampleEntities() []Entity {
	return []Entity{
		{ID: "fr", Name: "France", Status: "stable", Lat: 46.6, Lon: 2.4, HalfSize: 4, Stability: 0.82},
		{ID: "ua", Name: "Ukraine", Status: "conflict", Lat: 49.0, Lon: 31.4, HalfSize: 5, Stability: 0.21},
	}
}

// SampleReceivers returns a few SDR receivers
func SampleReceivers() []SDRReceiver {
	return []SDRReceiver{
		{ID: "twente", Name: "University of Twente", Lat: 52.24, Lon: 6.85, Status: "online", FrequencyKHz: 7100, Users: 42, Country: "NL"},
		{ID: "kiwi-au", Name: "Sydney KiwiSDR", Lat: -33.87, Lon: 151.21, Status: "offline", Country: "AU"},
	}
}

// GenerateWeather returns count random samples for a metric
func GenerateWeather(count int, unit string) []WeatherPoint {
	points := make([]WeatherPoint, count)
	for i := range points {
		points[i] = WeatherPoint{
			Name:  fmt.Sprintf("Station %d", i+1),
			Lat:   randomFloat(-60, 60),
			Lon:   randomFloat(-170, 170),
			Value: randomFloat(-10, 35),
			Unit:  unit,
		}
	}
	return points
}

func randomFloat(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}
