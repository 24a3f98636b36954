// Package geo provides coordinates, projections and GeoJSON feature parsing for the geopol map
package geo

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/wroge/wgs84"
)

// MaxMercatorLat is the latitude limit of the web mercator projection
const MaxMercatorLat = 85.05112878

// LatLng is a WGS84 coordinate. It marshals as a [lat, lng] pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// MarshalJSON encodes the coordinate as [lat, lng]
func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON accepts [lat, lng] or {"lat":..,"lng":..}
func (p *LatLng) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) < 2 {
			return fmt.Errorf("coordinate needs 2 values, got %d", len(pair))
		}
		p.Lat, p.Lng = pair[0], pair[1]
		return nil
	}

	var obj struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
		Lon *float64 `json:"lon"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid coordinate: %w", err)
	}
	if obj.Lat == nil || (obj.Lng == nil && obj.Lon == nil) {
		return fmt.Errorf("invalid coordinate: missing lat/lng")
	}
	p.Lat = *obj.Lat
	if obj.Lng != nil {
		p.Lng = *obj.Lng
	} else {
		p.Lng = *obj.Lon
	}
	return nil
}

// Normalize clamps latitude to the mercator limit and wraps longitude to [-180, 180)
func (p LatLng) Normalize() LatLng {
	lat := math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, p.Lat))
	lng := math.Mod(p.Lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return LatLng{Lat: lat, Lng: lng - 180}
}

var (
	toMercator   = wgs84.EPSG().Transform(4326, 3857)
	fromMercator = wgs84.EPSG().Transform(3857, 4326)
)

// ToMercator projects a coordinate to EPSG:3857 meters
func ToMercator(p LatLng) (x, y float64) {
	n := p.Normalize()
	x, y, _ = toMercator(n.Lng, n.Lat, 0)
	return x, y
}

// FromMercator converts EPSG:3857 meters back to a coordinate
func FromMercator(x, y float64) LatLng {
	lng, lat, _ := fromMercator(x, y, 0)
	return LatLng{Lat: lat, Lng: lng}
}

// HaversineDistance calculates distance in kilometres between two points
func HaversineDistance(a, b LatLng) float64 {
	const R = 6371.0088 // Earth mean radius in km
	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BresenhamLine generates grid points along a line using Bresenham's algorithm
func BresenhamLine(x1, y1, x2, y2 int) [][2]int {
	var points [][2]int

	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 >= x2 {
		sx = -1
	}
	sy := 1
	if y1 >= y2 {
		sy = -1
	}
	err := dx - dy

	const maxPoints = 400
	count := 0

	for count < maxPoints {
		points = append(points, [2]int{x1, y1})
		count++

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}

	return points
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
