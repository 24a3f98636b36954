package app

import (
	"fmt"
	"math"

	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/overlay"
)

// Control panel identifiers
const (
	ControlEntities      = "geopolitical-entities-toggle"
	ControlSDR           = "sdr-receivers-toggle"
	ControlWeather       = "meteo-layer-toggle"
	ControlEarthquakes   = "earthquakes-layer-toggle"
	ControlMagnitude     = "magnitude-slider"
	ControlWeatherMetric = "weather-metric-select"
)

// ControlKind is the widget type of a control
type ControlKind int

const (
	KindToggle ControlKind = iota
	KindSlider
	KindSelect
)

// Control is one entry of the control panel
type Control struct {
	ID      string
	Label   string
	Key     string
	Kind    ControlKind
	Overlay string
}

// controls lists the panel in display order
var controls = []Control{
	{ID: ControlEntities, Label: "Geopolitical", Key: "1", Kind: KindToggle, Overlay: config.OverlayEntities},
	{ID: ControlSDR, Label: "SDR receivers", Key: "2", Kind: KindToggle, Overlay: config.OverlaySDR},
	{ID: ControlWeather, Label: "Weather", Key: "3", Kind: KindToggle, Overlay: config.OverlayWeather},
	{ID: ControlEarthquakes, Label: "Earthquakes", Key: "4", Kind: KindToggle, Overlay: config.OverlayEarthquakes},
	{ID: ControlMagnitude, Label: "Min magnitude", Key: "[ ]", Kind: KindSlider, Overlay: config.OverlayEarthquakes},
	{ID: ControlWeatherMetric, Label: "Metric", Key: "w", Kind: KindSelect, Overlay: config.OverlayWeather},
}

// ControlState is the displayed value of a control
type ControlState struct {
	Control
	Enabled bool
	Value   string
	Phase   overlay.Phase
	Err     error
}

// toggleForKey returns the toggle bound to a number key
func toggleForKey(key string) (Control, bool) {
	for _, c := range controls {
		if c.Kind == KindToggle && c.Key == key {
			return c, true
		}
	}
	return Control{}, false
}

// stepMagnitude moves v by steps slider notches, snapped to the grid and
// clamped to the slider range
func stepMagnitude(v float64, steps int) float64 {
	v = math.Round(v/overlay.MagnitudeStep)*overlay.MagnitudeStep + float64(steps)*overlay.MagnitudeStep
	return math.Max(overlay.MinMagnitude, math.Min(overlay.MaxMagnitude, v))
}

// nextMetric returns the metric following current, wrapping around
func nextMetric(current string) string {
	for i, m := range overlay.Metrics {
		if m == current {
			return overlay.Metrics[(i+1)%len(overlay.Metrics)]
		}
	}
	return overlay.DefaultMetric
}

func formatMagnitude(v float64) string {
	return fmt.Sprintf("M%.1f+", v)
}
