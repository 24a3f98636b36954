// Package profile captures, persists and applies named map configurations.
//
// A profile records which overlays are visible, their opacity and query
// parameters, the theme and a default viewport. Three built-in profiles are
// always available and can never be overwritten or deleted.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/overlay"
	"github.com/geopol/geopol-go/internal/theme"
)

// Built-in profile names
const (
	Default = "default"
	Analyst = "analyst"
	Meteo   = "meteo"
)

var builtInNames = []string{Default, Analyst, Meteo}

// Errors returned by Manager operations
var (
	ErrBuiltIn   = errors.New("built-in profiles are read-only")
	ErrNotFound  = errors.New("profile not found")
	ErrCancelled = errors.New("cancelled by user")
)

// ValidationError reports a profile rejected by local or backend validation
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid profile: " + e.Reason
}

// LayerSettings is the per-overlay part of a profile
type LayerSettings struct {
	Enabled bool    `json:"enabled"`
	Opacity float64 `json:"opacity"`
	ZIndex  int     `json:"z_index,omitempty"`
}

// WeatherSettings mirrors the weather controls
type WeatherSettings struct {
	Enabled bool    `json:"enabled"`
	Metric  string  `json:"metric"`
	Opacity float64 `json:"opacity"`
}

// EarthquakeSettings mirrors the earthquake controls
type EarthquakeSettings struct {
	Enabled      bool    `json:"enabled"`
	MinMagnitude float64 `json:"min_magnitude"`
}

// View is a map viewport as stored in a profile. Center is [lat, lng].
type View struct {
	Center [2]float64 `json:"center"`
	Zoom   int        `json:"zoom"`
}

// Profile is a named snapshot of the map configuration
type Profile struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Layers      map[string]LayerSettings `json:"layers"`
	Weather     WeatherSettings          `json:"weather"`
	Earthquakes EarthquakeSettings       `json:"earthquakes"`
	Theme       string                   `json:"theme"`
	DefaultView View                     `json:"default_view"`
	CreatedAt   time.Time                `json:"created_at,omitzero"`
	UpdatedAt   time.Time                `json:"updated_at,omitzero"`
}

// Summary is one entry of a profile listing
type Summary struct {
	Name        string
	Description string
	BuiltIn     bool
	Active      bool
}

// defaultOpacity is used when a profile leaves a layer's opacity unset
var defaultOpacity = map[string]float64{
	config.OverlayEntities:    0.8,
	config.OverlaySDR:         1.0,
	config.OverlayWeather:     0.6,
	config.OverlayEarthquakes: 1.0,
}

// IsBuiltIn reports whether name is one of the read-only profiles
func IsBuiltIn(name string) bool {
	for _, n := range builtInNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// BuiltInNames returns the built-in profile names in display order
func BuiltInNames() []string {
	out := make([]string, len(builtInNames))
	copy(out, builtInNames)
	return out
}

// BuiltIn returns a fresh copy of a built-in profile
func BuiltIn(name string) (*Profile, bool) {
	var p *Profile
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Default:
		p = &Profile{
			Name:        Default,
			Description: "Geopolitical entities over a world view",
			Layers: map[string]LayerSettings{
				config.OverlayEntities: {Enabled: true, Opacity: 0.8},
			},
			Weather:     WeatherSettings{Metric: overlay.DefaultMetric, Opacity: 0.6},
			Earthquakes: EarthquakeSettings{MinMagnitude: overlay.DefaultMinMagnitude},
			Theme:       theme.Dark,
			DefaultView: View{Center: [2]float64{20, 0}, Zoom: 2},
		}
	case Analyst:
		p = &Profile{
			Name:        Analyst,
			Description: "Entities, SDR receivers and significant earthquakes over Europe",
			Layers: map[string]LayerSettings{
				config.OverlayEntities:    {Enabled: true, Opacity: 0.8},
				config.OverlaySDR:         {Enabled: true, Opacity: 1},
				config.OverlayEarthquakes: {Enabled: true, Opacity: 1},
			},
			Weather:     WeatherSettings{Metric: overlay.DefaultMetric, Opacity: 0.6},
			Earthquakes: EarthquakeSettings{Enabled: true, MinMagnitude: 5.0},
			Theme:       theme.Dark,
			DefaultView: View{Center: [2]float64{50, 10}, Zoom: 4},
		}
	case Meteo:
		p = &Profile{
			Name:        Meteo,
			Description: "Precipitation and seismic activity on satellite imagery",
			Layers: map[string]LayerSettings{
				config.OverlayWeather:     {Enabled: true, Opacity: 0.6},
				config.OverlayEarthquakes: {Enabled: true, Opacity: 1},
			},
			Weather:     WeatherSettings{Enabled: true, Metric: "precipitation", Opacity: 0.6},
			Earthquakes: EarthquakeSettings{Enabled: true, MinMagnitude: 3.5},
			Theme:       theme.Satellite,
			DefaultView: View{Center: [2]float64{30, 0}, Zoom: 3},
		}
	default:
		return nil, false
	}
	p.Normalize()
	return p, true
}

// Normalize fills unset fields with defaults and reconciles the weather and
// earthquake sections with their entries in Layers. Layers wins when both
// are present.
func (p *Profile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	if p.Layers == nil {
		p.Layers = make(map[string]LayerSettings, len(config.OverlayIDs))
	}

	if _, ok := p.Layers[config.OverlayWeather]; !ok {
		p.Layers[config.OverlayWeather] = LayerSettings{Enabled: p.Weather.Enabled, Opacity: p.Weather.Opacity}
	}
	if _, ok := p.Layers[config.OverlayEarthquakes]; !ok {
		p.Layers[config.OverlayEarthquakes] = LayerSettings{Enabled: p.Earthquakes.Enabled}
	}

	for _, id := range config.OverlayIDs {
		ls := p.Layers[id]
		if ls.Opacity <= 0 {
			ls.Opacity = defaultOpacity[id]
		}
		if ls.Opacity > 1 {
			ls.Opacity = 1
		}
		p.Layers[id] = ls
	}

	weather := p.Layers[config.OverlayWeather]
	p.Weather.Enabled = weather.Enabled
	p.Weather.Opacity = weather.Opacity
	if p.Weather.Metric == "" {
		p.Weather.Metric = overlay.DefaultMetric
	}

	p.Earthquakes.Enabled = p.Layers[config.OverlayEarthquakes].Enabled
	if p.Earthquakes.MinMagnitude == 0 {
		p.Earthquakes.MinMagnitude = overlay.DefaultMinMagnitude
	}

	if p.Theme == "" {
		p.Theme = theme.Default
	}
}

// Validate checks the profile locally
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Reason: "name is required"}
	}
	if !theme.Valid(p.Theme) {
		return &ValidationError{Reason: fmt.Sprintf("unknown theme %q", p.Theme)}
	}
	if !overlay.ValidMetric(p.Weather.Metric) {
		return &ValidationError{Reason: fmt.Sprintf("unknown weather metric %q", p.Weather.Metric)}
	}
	if p.Earthquakes.MinMagnitude < overlay.MinMagnitude || p.Earthquakes.MinMagnitude > overlay.MaxMagnitude {
		return &ValidationError{Reason: fmt.Sprintf("min_magnitude %.1f outside %.1f-%.1f",
			p.Earthquakes.MinMagnitude, overlay.MinMagnitude, overlay.MaxMagnitude)}
	}
	for id := range p.Layers {
		if !knownOverlay(id) {
			return &ValidationError{Reason: fmt.Sprintf("unknown layer %q", id)}
		}
	}
	return nil
}

// Clone returns a deep copy
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Layers = make(map[string]LayerSettings, len(p.Layers))
	for k, v := range p.Layers {
		c.Layers[k] = v
	}
	return &c
}

// Decode parses a profile document and normalizes it
func Decode(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed profile: %v", err)}
	}
	p.Normalize()
	return &p, nil
}

func knownOverlay(id string) bool {
	for _, known := range config.OverlayIDs {
		if id == known {
			return true
		}
	}
	return false
}

// sortSummaries orders built-ins first in their fixed order, then custom
// profiles by name
func sortSummaries(list []Summary) {
	rank := func(s Summary) int {
		for i, n := range builtInNames {
			if s.BuiltIn && s.Name == n {
				return i
			}
		}
		return len(builtInNames)
	}
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := rank(list[i]), rank(list[j])
		if ri != rj {
			return ri < rj
		}
		return list[i].Name < list[j].Name
	})
}
