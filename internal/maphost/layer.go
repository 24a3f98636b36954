package maphost

import (
	"sync"

	"github.com/geopol/geopol-go/internal/geo"
)

// Marker colour roles, resolved to concrete colours by the active theme
const (
	ColorCritical = "critical"
	ColorWarning  = "warning"
	ColorInfo     = "info"
	ColorOK       = "ok"
	ColorMuted    = "muted"
	ColorAccent   = "accent"
)

// Marker is one rendered feature in a layer group
type Marker struct {
	ID       string
	Position geo.LatLng
	Paths    [][]geo.LatLng
	Label    rune
	Color    string
	Tooltip  string
	Popup    map[string]string
}

// LayerGroup is a named container of markers that is attached to and
// detached from the map as a unit. It is safe for concurrent use.
type LayerGroup struct {
	mu      sync.RWMutex
	name    string
	pane    string
	opacity float64
	markers []Marker
}

func newLayerGroup(name, pane string) *LayerGroup {
	return &LayerGroup{
		name:    name,
		pane:    pane,
		opacity: 1.0,
	}
}

// Name returns the group name
func (g *LayerGroup) Name() string {
	return g.name
}

// Pane returns the pane the group draws into
func (g *LayerGroup) Pane() string {
	return g.pane
}

// Replace clears the group and rebuilds it from markers
func (g *LayerGroup) Replace(markers []Marker) {
	cp := make([]Marker, len(markers))
	copy(cp, markers)

	g.mu.Lock()
	g.markers = cp
	g.mu.Unlock()
}

// Clear removes all markers
func (g *LayerGroup) Clear() {
	g.mu.Lock()
	g.markers = nil
	g.mu.Unlock()
}

// Markers returns a copy of the group's markers
func (g *LayerGroup) Markers() []Marker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make([]Marker, len(g.markers))
	copy(cp, g.markers)
	return cp
}

// Len returns the number of markers
func (g *LayerGroup) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.markers)
}

// Opacity returns the group opacity
func (g *LayerGroup) Opacity() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.opacity
}

// SetOpacity sets the group opacity, clamped to [0, 1]
func (g *LayerGroup) SetOpacity(v float64) float64 {
	v = ClampOpacity(v)
	g.mu.Lock()
	g.opacity = v
	g.mu.Unlock()
	return v
}

// ClampOpacity clamps an opacity value to [0, 1]
func ClampOpacity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
