package overlay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/maphost"
)

// Registry holds the overlay controllers in display order
type Registry struct {
	controllers []*Controller
	byID        map[string]*Controller
}

// NewRegistry creates a registry from controllers, kept in the given order
func NewRegistry(controllers ...*Controller) *Registry {
	r := &Registry{byID: make(map[string]*Controller, len(controllers))}
	for _, c := range controllers {
		if _, dup := r.byID[c.ID()]; dup {
			continue
		}
		r.controllers = append(r.controllers, c)
		r.byID[c.ID()] = c
	}
	return r
}

// Build creates the four standard overlays on host, configured from cfg
func Build(host *maphost.Host, backend Backend, cfg *config.Config, log zerolog.Logger, onUpdate func(Update)) (*Registry, error) {
	sources := []Source{
		NewEntitySource(backend),
		NewSDRSource(backend),
		NewWeatherSource(backend),
		NewEarthquakeSource(backend),
	}
	params := map[string]map[string]interface{}{
		config.OverlayWeather:     {ParamMetric: DefaultMetric},
		config.OverlayEarthquakes: {ParamMinMagnitude: DefaultMinMagnitude},
	}

	controllers := make([]*Controller, 0, len(sources))
	for _, src := range sources {
		id := src.ID()
		ov := cfg.Overlays[id]
		c, err := New(src, host, Settings{
			Opacity:  ov.Opacity,
			ZIndex:   ov.ZIndex,
			Interval: cfg.RefreshInterval(id),
			Params:   params[id],
		}, WithLogger(log), WithOnUpdate(onUpdate))
		if err != nil {
			return nil, fmt.Errorf("overlay %s: %w", id, err)
		}
		controllers = append(controllers, c)
	}
	return NewRegistry(controllers...), nil
}

// Get returns the controller for id
func (r *Registry) Get(id string) (*Controller, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// List returns the controllers in display order
func (r *Registry) List() []*Controller {
	out := make([]*Controller, len(r.controllers))
	copy(out, r.controllers)
	return out
}

// States returns a snapshot of every overlay state keyed by id
func (r *Registry) States() map[string]State {
	out := make(map[string]State, len(r.controllers))
	for _, c := range r.controllers {
		out[c.ID()] = c.State()
	}
	return out
}

// RefreshAll refreshes every enabled overlay in parallel. One overlay
// failing does not cancel the others; the first error is returned.
func (r *Registry) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	for _, c := range r.controllers {
		if !c.Enabled() {
			continue
		}
		c := c
		g.Go(func() error {
			return c.Refresh(ctx)
		})
	}
	return g.Wait()
}

// StopAll halts every auto-refresh task and request in flight
func (r *Registry) StopAll() {
	for _, c := range r.controllers {
		c.Stop()
	}
}
