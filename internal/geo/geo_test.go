package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatLngJSON(t *testing.T) {
	data, err := json.Marshal(LatLng{Lat: 48.8, Lng: 2.3})
	require.NoError(t, err)
	assert.JSONEq(t, `[48.8, 2.3]`, string(data))

	tests := []struct {
		name  string
		input string
		want  LatLng
	}{
		{"pair", `[10, 20]`, LatLng{Lat: 10, Lng: 20}},
		{"object lng", `{"lat": 1.5, "lng": -3}`, LatLng{Lat: 1.5, Lng: -3}},
		{"object lon", `{"lat": 1.5, "lon": 7}`, LatLng{Lat: 1.5, Lng: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p LatLng
			require.NoError(t, json.Unmarshal([]byte(tt.input), &p))
			assert.Equal(t, tt.want, p)
		})
	}

	var p LatLng
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"lat": 1}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &p))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   LatLng
		want LatLng
	}{
		{LatLng{Lat: 10, Lng: 20}, LatLng{Lat: 10, Lng: 20}},
		{LatLng{Lat: 90, Lng: 180}, LatLng{Lat: MaxMercatorLat, Lng: -180}},
		{LatLng{Lat: -90, Lng: -190}, LatLng{Lat: -MaxMercatorLat, Lng: 170}},
		{LatLng{Lat: 0, Lng: 540}, LatLng{Lat: 0, Lng: -180}},
	}
	for _, tt := range tests {
		got := tt.in.Normalize()
		assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
		assert.InDelta(t, tt.want.Lng, got.Lng, 1e-9)
	}
}

func TestMercatorRoundTrip(t *testing.T) {
	x, y := ToMercator(LatLng{})
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, _ = ToMercator(LatLng{Lng: 180 - 1e-9})
	assert.InDelta(t, 20037508.34, x, 1)

	for _, p := range []LatLng{{Lat: 48.8566, Lng: 2.3522}, {Lat: -33.87, Lng: 151.21}, {Lat: 64.1, Lng: -21.9}} {
		back := FromMercator(ToMercator(p))
		assert.InDelta(t, p.Lat, back.Lat, 1e-6)
		assert.InDelta(t, p.Lng, back.Lng, 1e-6)
	}
}

func TestHaversineDistance(t *testing.T) {
	paris := LatLng{Lat: 48.8566, Lng: 2.3522}
	london := LatLng{Lat: 51.5074, Lng: -0.1278}

	d := HaversineDistance(paris, london)
	assert.InDelta(t, 343.5, d, 2)
	assert.Equal(t, 0.0, HaversineDistance(paris, paris))

	// a quarter of the equator
	assert.InDelta(t, math.Pi/2*6371.0088, HaversineDistance(LatLng{}, LatLng{Lng: 90}), 1e-6)
}

func TestBresenhamLine(t *testing.T) {
	pts := BresenhamLine(0, 0, 3, 0)
	assert.Equal(t, [][2]int{{0, 0}, {1, 0}, {2, 0}, {3, 0}}, pts)

	pts = BresenhamLine(2, 2, 0, 0)
	assert.Equal(t, [][2]int{{2, 2}, {1, 1}, {0, 0}}, pts)

	assert.Equal(t, [][2]int{{5, 5}}, BresenhamLine(5, 5, 5, 5))
	assert.Len(t, BresenhamLine(0, 0, 10000, 0), 400, "long lines are capped")
}
