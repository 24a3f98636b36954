// Package maphost owns the map viewport, the base layer, z-ordered panes and
// the layer groups overlays render into.
package maphost

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/geopol/geopol-go/internal/geo"
	"github.com/rs/zerolog"
)

// ErrAlreadyInitialized is returned when Initialize is called twice on a Host
var ErrAlreadyInitialized = errors.New("map already initialized")

// ErrNotInitialized is returned by operations that need an initialized map
var ErrNotInitialized = errors.New("map not initialized")

// Default zoom bounds
const (
	DefaultMinZoom = 1
	DefaultMaxZoom = 18
)

// BasePane is the pane holding the base tile layer
const BasePane = "tilePane"

// Viewport is the camera state of the map
type Viewport struct {
	Center geo.LatLng `json:"center"`
	Zoom   int        `json:"zoom"`
}

// Pane is a z-ordered rendering plane
type Pane struct {
	Name   string
	ZIndex int
}

// Option configures a Host
type Option func(*Host)

// WithZoomBounds sets the allowed zoom range
func WithZoomBounds(minZoom, maxZoom int) Option {
	return func(h *Host) {
		if minZoom > maxZoom {
			minZoom, maxZoom = maxZoom, minZoom
		}
		h.minZoom = minZoom
		h.maxZoom = maxZoom
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(h *Host) {
		h.log = log
	}
}

// Host is one map instance. It is safe for concurrent use.
type Host struct {
	mu          sync.RWMutex
	containerID string
	initialized bool
	viewport    Viewport
	minZoom     int
	maxZoom     int
	panes       map[string]Pane
	groups      map[string]*LayerGroup
	attached    map[string]bool
	baseLayer   bool
	log         zerolog.Logger
}

// New creates an uninitialized map host
func New(opts ...Option) *Host {
	h := &Host{
		minZoom:  DefaultMinZoom,
		maxZoom:  DefaultMaxZoom,
		panes:    make(map[string]Pane),
		groups:   make(map[string]*LayerGroup),
		attached: make(map[string]bool),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Initialize binds the host to a container, sets the initial viewport and
// adds the base tile layer. It can only succeed once per host.
func (h *Host) Initialize(containerID string, v Viewport) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		h.log.Warn().Str("container", containerID).Msg("Map already initialized")
		return ErrAlreadyInitialized
	}

	h.containerID = containerID
	h.viewport = h.clampLocked(v)
	h.panes[BasePane] = Pane{Name: BasePane, ZIndex: 200}
	h.baseLayer = true
	h.initialized = true

	h.log.Info().
		Str("container", containerID).
		Float64("lat", h.viewport.Center.Lat).
		Float64("lng", h.viewport.Center.Lng).
		Int("zoom", h.viewport.Zoom).
		Msg("Map initialized")
	return nil
}

// Initialized reports whether Initialize has succeeded
func (h *Host) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initialized
}

// ContainerID returns the container the map is bound to
func (h *Host) ContainerID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.containerID
}

// CreatePane registers a pane if absent. It returns the registered pane and
// whether it was newly created.
func (h *Host) CreatePane(name string, zIndex int) (Pane, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.panes[name]; ok {
		return p, false
	}
	p := Pane{Name: name, ZIndex: zIndex}
	h.panes[name] = p
	return p, true
}

// SetPaneZIndex changes the z-index of an existing pane
func (h *Host) SetPaneZIndex(name string, zIndex int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.panes[name]
	if !ok {
		return false
	}
	p.ZIndex = zIndex
	h.panes[name] = p
	return true
}

// Pane returns a registered pane
func (h *Host) Pane(name string) (Pane, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.panes[name]
	return p, ok
}

// Panes returns all panes ordered by z-index
func (h *Host) Panes() []Pane {
	h.mu.RLock()
	defer h.mu.RUnlock()
	panes := make([]Pane, 0, len(h.panes))
	for _, p := range h.panes {
		panes = append(panes, p)
	}
	sort.Slice(panes, func(i, j int) bool {
		if panes[i].ZIndex == panes[j].ZIndex {
			return panes[i].Name < panes[j].Name
		}
		return panes[i].ZIndex < panes[j].ZIndex
	})
	return panes
}

// Viewport returns the current camera state
func (h *Host) Viewport() Viewport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.viewport
}

// SetViewport moves the camera, clamping zoom and coordinates
func (h *Host) SetViewport(v Viewport) Viewport {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewport = h.clampLocked(v)
	return h.viewport
}

// ZoomBy changes the zoom level by delta
func (h *Host) ZoomBy(delta int) Viewport {
	v := h.Viewport()
	v.Zoom += delta
	return h.SetViewport(v)
}

// PanBy moves the centre by a fraction of the visible span
func (h *Host) PanBy(dx, dy float64) Viewport {
	v := h.Viewport()
	span := 360.0 / float64(int(1)<<uint(max(v.Zoom, 0)))
	v.Center.Lng += dx * span
	v.Center.Lat += dy * span / 2
	return h.SetViewport(v)
}

// ZoomBounds returns the allowed zoom range
func (h *Host) ZoomBounds() (int, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.minZoom, h.maxZoom
}

func (h *Host) clampLocked(v Viewport) Viewport {
	if v.Zoom < h.minZoom {
		v.Zoom = h.minZoom
	}
	if v.Zoom > h.maxZoom {
		v.Zoom = h.maxZoom
	}
	v.Center = v.Center.Normalize()
	return v
}

// NewLayerGroup creates a named layer group drawn in the given pane. The
// pane is created with zIndex if it does not exist yet. Creating a group
// with an existing name returns the existing group.
func (h *Host) NewLayerGroup(name, pane string, zIndex int) *LayerGroup {
	h.CreatePane(pane, zIndex)

	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[name]; ok {
		return g
	}
	g := newLayerGroup(name, pane)
	h.groups[name] = g
	return g
}

// Attach makes a layer group visible on the map. The map must have been
// initialized.
func (h *Host) Attach(g *LayerGroup) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return fmt.Errorf("attach %s: %w", g.Name(), ErrNotInitialized)
	}
	h.groups[g.Name()] = g
	h.attached[g.Name()] = true
	return nil
}

// Detach hides a layer group without clearing its markers
func (h *Host) Detach(g *LayerGroup) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attached, g.Name())
}

// IsAttached reports whether a layer group is visible
func (h *Host) IsAttached(g *LayerGroup) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attached[g.Name()]
}

// Attached returns the visible layer groups, lowest pane z-index first
func (h *Host) Attached() []*LayerGroup {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := make([]*LayerGroup, 0, len(h.attached))
	for name := range h.attached {
		if g, ok := h.groups[name]; ok {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		zi := h.panes[groups[i].Pane()].ZIndex
		zj := h.panes[groups[j].Pane()].ZIndex
		if zi == zj {
			return groups[i].Name() < groups[j].Name()
		}
		return zi < zj
	})
	return groups
}

// HasBaseLayer reports whether base tiles were added
func (h *Host) HasBaseLayer() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.baseLayer
}
