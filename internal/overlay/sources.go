package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geopol/geopol-go/internal/api"
	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/geo"
	"github.com/geopol/geopol-go/internal/maphost"
)

// Parameter keys
const (
	ParamMinMagnitude = "min_magnitude"
	ParamMetric       = "metric"
)

// Earthquake magnitude bounds and default, matching the magnitude slider
const (
	DefaultMinMagnitude = 4.5
	MinMagnitude        = 2.5
	MaxMagnitude        = 8.0
	MagnitudeStep       = 0.5
)

// DefaultMetric is the weather metric shown when none is chosen
const DefaultMetric = "temperature"

// Metrics lists the weather metrics served by the backend
var Metrics = []string{"temperature", "precipitation", "wind", "pressure", "clouds"}

// ValidMetric reports whether m is a known weather metric
func ValidMetric(m string) bool {
	for _, known := range Metrics {
		if m == known {
			return true
		}
	}
	return false
}

// Backend is the subset of the API client the sources need
type Backend interface {
	EntitiesGeoJSON(ctx context.Context) (json.RawMessage, error)
	SDRGeoJSON(ctx context.Context) (json.RawMessage, error)
	SDRReceivers(ctx context.Context) ([]api.Receiver, error)
	WeatherLayer(ctx context.Context, metric string) (json.RawMessage, error)
	EarthquakesGeoJSON(ctx context.Context, minMagnitude float64) (json.RawMessage, error)
}

// --- Geopolitical entities ---

// EntitySource serves geopolitical entity shapes
type EntitySource struct {
	backend Backend
}

// NewEntitySource creates the geopolitical entities source
func NewEntitySource(b Backend) *EntitySource {
	return &EntitySource{backend: b}
}

func (s *EntitySource) ID() string          { return config.OverlayEntities }
func (s *EntitySource) QueryKeys() []string { return nil }

// Fetch returns one marker per entity, carrying its outline
func (s *EntitySource) Fetch(ctx context.Context, _ map[string]interface{}) ([]maphost.Marker, error) {
	raw, err := s.backend.EntitiesGeoJSON(ctx)
	if err != nil {
		return nil, err
	}
	features, err := geo.ParseFeatureCollection(raw)
	if err != nil {
		return nil, err
	}

	markers := make([]maphost.Marker, 0, len(features))
	for _, f := range features {
		status := geo.PropString(f.Properties, "status")
		name := orDefault(f.Name, f.ID)
		tooltip := name
		if status != "" {
			tooltip = fmt.Sprintf("%s (%s)", name, status)
		}
		markers = append(markers, maphost.Marker{
			ID:       f.ID,
			Position: f.Anchor,
			Paths:    f.Paths,
			Label:    '■',
			Color:    entityColor(status),
			Tooltip:  tooltip,
			Popup:    popup(f.Properties, "name"),
		})
	}
	return markers, nil
}

func entityColor(status string) string {
	switch strings.ToLower(status) {
	case "conflict", "war", "crisis":
		return maphost.ColorCritical
	case "tension", "unstable", "alert":
		return maphost.ColorWarning
	case "stable", "normal":
		return maphost.ColorOK
	default:
		return maphost.ColorInfo
	}
}

// --- SDR receivers ---

// SDRSource serves SDR receivers, falling back to the receiver list when
// the GeoJSON endpoint carries no data
type SDRSource struct {
	backend Backend
}

// NewSDRSource creates the SDR receivers source
func NewSDRSource(b Backend) *SDRSource {
	return &SDRSource{backend: b}
}

func (s *SDRSource) ID() string          { return config.OverlaySDR }
func (s *SDRSource) QueryKeys() []string { return nil }

// Fetch returns one marker per receiver
func (s *SDRSource) Fetch(ctx context.Context, _ map[string]interface{}) ([]maphost.Marker, error) {
	raw, err := s.backend.SDRGeoJSON(ctx)
	if errors.Is(err, api.ErrMissingField) {
		return s.fetchList(ctx)
	}
	if err != nil {
		return nil, err
	}

	features, err := geo.ParseFeatureCollection(raw)
	if err != nil {
		return nil, err
	}
	markers := make([]maphost.Marker, 0, len(features))
	for _, f := range features {
		status := geo.PropString(f.Properties, "status")
		markers = append(markers, receiverMarker(f.ID, orDefault(f.Name, f.ID), status, f.Anchor, popup(f.Properties, "name")))
	}
	return markers, nil
}

func (s *SDRSource) fetchList(ctx context.Context) ([]maphost.Marker, error) {
	receivers, err := s.backend.SDRReceivers(ctx)
	if err != nil {
		return nil, err
	}
	markers := make([]maphost.Marker, 0, len(receivers))
	for _, r := range receivers {
		p := map[string]string{"Status": orDefault(r.Status, "unknown")}
		if r.FrequencyKHz > 0 {
			p["Frequency"] = fmt.Sprintf("%.0f kHz", r.FrequencyKHz)
		}
		if r.Users > 0 {
			p["Users"] = strconv.Itoa(r.Users)
		}
		if r.Country != "" {
			p["Country"] = r.Country
		}
		markers = append(markers, receiverMarker(r.ID, orDefault(r.Name, r.ID), r.Status,
			geo.LatLng{Lat: r.Lat, Lng: r.Lon}, p))
	}
	return markers, nil
}

func receiverMarker(id, name, status string, pos geo.LatLng, p map[string]string) maphost.Marker {
	label, color := '◇', maphost.ColorMuted
	if strings.EqualFold(status, "online") || strings.EqualFold(status, "active") {
		label, color = '◆', maphost.ColorAccent
	}
	tooltip := name
	if status != "" {
		tooltip = fmt.Sprintf("%s (%s)", name, status)
	}
	return maphost.Marker{
		ID:       id,
		Position: pos,
		Label:    label,
		Color:    color,
		Tooltip:  tooltip,
		Popup:    p,
	}
}

// --- Weather ---

// WeatherSource serves one weather metric layer
type WeatherSource struct {
	backend Backend
}

// NewWeatherSource creates the weather source
func NewWeatherSource(b Backend) *WeatherSource {
	return &WeatherSource{backend: b}
}

func (s *WeatherSource) ID() string          { return config.OverlayWeather }
func (s *WeatherSource) QueryKeys() []string { return []string{ParamMetric} }

// NormalizeParam accepts known metric names only
func (s *WeatherSource) NormalizeParam(key string, value interface{}) (interface{}, error) {
	if key != ParamMetric {
		return value, nil
	}
	m, ok := value.(string)
	if !ok || !ValidMetric(m) {
		return nil, fmt.Errorf("unknown weather metric %v", value)
	}
	return m, nil
}

// Fetch returns one marker per sample point
func (s *WeatherSource) Fetch(ctx context.Context, params map[string]interface{}) ([]maphost.Marker, error) {
	metric, _ := params[ParamMetric].(string)
	if metric == "" {
		metric = DefaultMetric
	}

	raw, err := s.backend.WeatherLayer(ctx, metric)
	if err != nil {
		return nil, err
	}
	features, err := geo.ParseFeatureCollection(raw)
	if err != nil {
		return nil, err
	}

	markers := make([]maphost.Marker, 0, len(features))
	for _, f := range features {
		tooltip := orDefault(f.Name, f.ID)
		if v, ok := geo.PropFloat(f.Properties, "value", metric); ok {
			tooltip = fmt.Sprintf("%s: %s%s", tooltip, strconv.FormatFloat(v, 'f', 1, 64), geo.PropString(f.Properties, "unit"))
		}
		markers = append(markers, maphost.Marker{
			ID:       f.ID,
			Position: f.Anchor,
			Paths:    f.Paths,
			Label:    metricGlyph(metric),
			Color:    maphost.ColorInfo,
			Tooltip:  tooltip,
			Popup:    popup(f.Properties, "name"),
		})
	}
	return markers, nil
}

func metricGlyph(metric string) rune {
	switch metric {
	case "precipitation":
		return '☂'
	case "wind":
		return '≈'
	case "pressure":
		return '◎'
	case "clouds":
		return '☁'
	default:
		return '°'
	}
}

// --- Earthquakes ---

// EarthquakeSource serves earthquakes above a magnitude threshold
type EarthquakeSource struct {
	backend Backend
}

// NewEarthquakeSource creates the earthquakes source
func NewEarthquakeSource(b Backend) *EarthquakeSource {
	return &EarthquakeSource{backend: b}
}

func (s *EarthquakeSource) ID() string          { return config.OverlayEarthquakes }
func (s *EarthquakeSource) QueryKeys() []string { return []string{ParamMinMagnitude} }

// NormalizeParam converts the magnitude threshold to float64 and checks its range
func (s *EarthquakeSource) NormalizeParam(key string, value interface{}) (interface{}, error) {
	if key != ParamMinMagnitude {
		return value, nil
	}
	var mag float64
	switch v := value.(type) {
	case float64:
		mag = v
	case float32:
		mag = float64(v)
	case int:
		mag = float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid magnitude %q", v)
		}
		mag = f
	default:
		return nil, fmt.Errorf("invalid magnitude %v", value)
	}
	if mag < 0 || mag > 10 {
		return nil, fmt.Errorf("magnitude %.1f out of range", mag)
	}
	return mag, nil
}

// Fetch returns one marker per earthquake; the tooltip carries the magnitude
func (s *EarthquakeSource) Fetch(ctx context.Context, params map[string]interface{}) ([]maphost.Marker, error) {
	minMag, ok := params[ParamMinMagnitude].(float64)
	if !ok {
		minMag = DefaultMinMagnitude
	}

	raw, err := s.backend.EarthquakesGeoJSON(ctx, minMag)
	if err != nil {
		return nil, err
	}
	features, err := geo.ParseFeatureCollection(raw)
	if err != nil {
		return nil, err
	}

	markers := make([]maphost.Marker, 0, len(features))
	for _, f := range features {
		mag, _ := geo.PropFloat(f.Properties, "mag", "magnitude")
		magText := fmt.Sprintf("M%.1f", mag)

		tooltip := magText
		if f.Name != "" {
			tooltip = magText + " " + f.Name
		}

		p := map[string]string{"Magnitude": magText}
		if f.Name != "" {
			p["Place"] = f.Name
		}
		if depth, ok := geo.PropFloat(f.Properties, "depth"); ok {
			p["Depth"] = fmt.Sprintf("%.0f km", depth)
		}
		if ms, ok := geo.PropFloat(f.Properties, "time"); ok && ms > 0 {
			p["Time"] = time.UnixMilli(int64(ms)).UTC().Format("2006-01-02 15:04 UTC")
		}

		markers = append(markers, maphost.Marker{
			ID:       f.ID,
			Position: f.Anchor,
			Label:    quakeGlyph(mag),
			Color:    quakeColor(mag),
			Tooltip:  tooltip,
			Popup:    p,
		})
	}
	return markers, nil
}

func quakeGlyph(mag float64) rune {
	switch {
	case mag >= 6:
		return '●'
	case mag >= 4.5:
		return '○'
	default:
		return '∘'
	}
}

func quakeColor(mag float64) string {
	switch {
	case mag >= 6:
		return maphost.ColorCritical
	case mag >= 4.5:
		return maphost.ColorWarning
	default:
		return maphost.ColorMuted
	}
}

// popup renders scalar properties as display strings, skipping keys in skip
func popup(props map[string]interface{}, skip ...string) map[string]string {
	out := make(map[string]string, len(props))
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if containsKey(skip, k) {
			continue
		}
		if v := geo.PropString(props, k); v != "" {
			out[displayKey(k)] = v
		}
	}
	return out
}

func displayKey(k string) string {
	k = strings.ReplaceAll(k, "_", " ")
	if k == "" {
		return k
	}
	return strings.ToUpper(k[:1]) + k[1:]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
