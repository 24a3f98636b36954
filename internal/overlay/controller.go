// Package overlay implements the togglable, independently refreshed data
// layers drawn on the map: geopolitical entities, SDR receivers, weather and
// earthquakes.
//
// Each Controller owns one layer group on the map host, at most one
// auto-refresh task and a monotonic request token. A fetch result is applied
// only if its token is still the latest one issued, so a slow response can
// never overwrite a newer one.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/geopol/geopol-go/internal/maphost"
)

// Phase is the display phase of an overlay
type Phase int

const (
	PhaseDisabled Phase = iota
	PhaseLoading
	PhaseDisplayed
	PhaseDisplayedStale
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseDisabled:
		return "disabled"
	case PhaseLoading:
		return "loading"
	case PhaseDisplayed:
		return "displayed"
	case PhaseDisplayedStale:
		return "stale"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of an overlay
type State struct {
	Enabled    bool                   `json:"enabled"`
	Opacity    float64                `json:"opacity"`
	ZIndex     int                    `json:"z_index"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Source fetches one overlay's data and converts it into map markers
type Source interface {
	ID() string
	// QueryKeys lists the parameters that change what Fetch asks the server for
	QueryKeys() []string
	Fetch(ctx context.Context, params map[string]interface{}) ([]maphost.Marker, error)
}

// ParamNormalizer is implemented by sources that validate parameter values
type ParamNormalizer interface {
	NormalizeParam(key string, value interface{}) (interface{}, error)
}

// Update is published after every phase or state change
type Update struct {
	Overlay string
	Phase   Phase
	Markers int
	Err     error
}

// Settings are the initial display settings of a controller
type Settings struct {
	Opacity  float64
	ZIndex   int
	Interval time.Duration
	Params   map[string]interface{}
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithOnUpdate registers a callback invoked after every change. The callback
// must not block.
func WithOnUpdate(fn func(Update)) Option {
	return func(c *Controller) {
		c.onUpdate = fn
	}
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller manages a single overlay
type Controller struct {
	id       string
	source   Source
	host     *maphost.Host
	group    *maphost.LayerGroup
	interval time.Duration
	log      zerolog.Logger
	metrics  *fetchMetrics
	onUpdate func(Update)

	// lifecycle serializes Enable, Disable and Stop
	lifecycle sync.Mutex

	mu         sync.Mutex
	state      State
	phase      Phase
	loaded     bool
	lastErr    error
	lastUpdate time.Time
	token      uint64
	inflight   context.CancelFunc
	task       *task

	activeTasks atomic.Int32
}

// New creates a controller for source drawing into its own pane on host
func New(source Source, host *maphost.Host, s Settings, opts ...Option) (*Controller, error) {
	id := source.ID()
	metrics, err := newFetchMetrics(id)
	if err != nil {
		return nil, err
	}

	params := make(map[string]interface{}, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}

	host.CreatePane(id, s.ZIndex)
	group := host.NewLayerGroup(id, id, s.ZIndex)

	c := &Controller{
		id:       id,
		source:   source,
		host:     host,
		group:    group,
		interval: s.Interval,
		log:      zerolog.Nop(),
		metrics:  metrics,
		state: State{
			Opacity:    group.SetOpacity(s.Opacity),
			ZIndex:     s.ZIndex,
			Parameters: params,
		},
		phase: PhaseDisabled,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("overlay", id).Logger()
	return c, nil
}

// ID returns the overlay identifier
func (c *Controller) ID() string {
	return c.id
}

// Group returns the layer group the controller draws into
func (c *Controller) Group() *maphost.LayerGroup {
	return c.group
}

// Enable attaches the overlay, fetches it if nothing is cached yet and
// starts the auto-refresh task. Re-enabling replaces any running task.
func (c *Controller) Enable(ctx context.Context) error {
	c.lifecycle.Lock()
	needFetch, err := c.enableLocked()
	c.lifecycle.Unlock()
	if err != nil {
		return err
	}
	return c.finishEnable(ctx, needFetch)
}

// enableLocked must be called with lifecycle held. It reports whether the
// overlay still needs its first fetch.
func (c *Controller) enableLocked() (bool, error) {
	c.stopTask()

	if err := c.host.Attach(c.group); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.state.Enabled = true
	needFetch := !c.loaded
	if !needFetch {
		c.phase = c.settledPhase()
	}
	c.mu.Unlock()

	c.startTask()
	return needFetch, nil
}

func (c *Controller) finishEnable(ctx context.Context, needFetch bool) error {
	c.log.Debug().Bool("fetch", needFetch).Msg("Overlay enabled")
	if !needFetch {
		c.notify()
		return nil
	}
	return c.Refresh(ctx)
}

// Disable detaches the overlay, keeping its cached markers, stops the
// auto-refresh task and invalidates any request in flight.
func (c *Controller) Disable() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.disableLocked()
}

// disableLocked must be called with lifecycle held
func (c *Controller) disableLocked() {
	c.stopTask()

	c.mu.Lock()
	c.state.Enabled = false
	c.phase = PhaseDisabled
	c.token++
	if c.inflight != nil {
		c.inflight()
		c.inflight = nil
	}
	c.mu.Unlock()

	c.host.Detach(c.group)
	c.log.Debug().Msg("Overlay disabled")
	c.notify()
}

// SetEnabled enables or disables the overlay. It does nothing when the
// overlay is already in the requested state.
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) error {
	if c.Enabled() == enabled {
		return nil
	}
	if enabled {
		return c.Enable(ctx)
	}
	c.Disable()
	return nil
}

// Toggle flips the enabled state and returns the new one. The flip is
// decided under the lifecycle lock, so back-to-back toggles alternate.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	c.lifecycle.Lock()
	if c.Enabled() {
		c.disableLocked()
		c.lifecycle.Unlock()
		return false, nil
	}
	needFetch, err := c.enableLocked()
	c.lifecycle.Unlock()
	if err != nil {
		return false, err
	}
	return true, c.finishEnable(ctx, needFetch)
}

// Enabled reports whether the overlay is enabled
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Enabled
}

// Refresh re-fetches the overlay and replaces its markers. It is a no-op
// while the overlay is disabled. On failure the previous markers stay on the
// map and the phase becomes DisplayedStale.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Enabled {
		c.mu.Unlock()
		return nil
	}
	c.token++
	tok := c.token
	if c.inflight != nil {
		c.inflight()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.inflight = cancel
	params := copyParams(c.state.Parameters)
	c.phase = PhaseLoading
	c.mu.Unlock()
	defer cancel()

	c.notify()

	start := time.Now()
	markers, err := c.source.Fetch(reqCtx, params)

	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		c.metrics.dropped()
		c.log.Debug().Uint64("token", tok).Msg("Dropping stale overlay response")
		return nil
	}
	c.inflight = nil

	if err != nil && reqCtx.Err() != nil && errors.Is(err, context.Canceled) {
		c.phase = c.settledPhase()
		c.mu.Unlock()
		c.log.Debug().Err(err).Msg("Overlay fetch cancelled")
		c.notify()
		return fmt.Errorf("refresh %s: %w", c.id, err)
	}

	if err != nil {
		c.lastErr = err
		c.phase = PhaseDisplayedStale
		c.mu.Unlock()

		c.metrics.failed()
		c.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Overlay fetch failed")
		c.notify()
		return fmt.Errorf("refresh %s: %w", c.id, err)
	}

	c.group.Replace(markers)
	c.loaded = true
	c.lastErr = nil
	c.lastUpdate = time.Now()
	c.phase = PhaseDisplayed
	c.mu.Unlock()

	c.metrics.succeeded()
	c.log.Debug().Int("markers", len(markers)).Dur("duration", time.Since(start)).Msg("Overlay refreshed")
	c.notify()
	return nil
}

// SetOpacity sets the overlay opacity, clamped to [0,1], and returns the
// applied value
func (c *Controller) SetOpacity(v float64) float64 {
	applied := c.group.SetOpacity(v)
	c.mu.Lock()
	c.state.Opacity = applied
	c.mu.Unlock()
	c.notify()
	return applied
}

// SetZIndex moves the overlay pane
func (c *Controller) SetZIndex(z int) {
	c.host.SetPaneZIndex(c.id, z)
	c.mu.Lock()
	c.state.ZIndex = z
	c.mu.Unlock()
	c.notify()
}

// SetParameter sets an overlay parameter. When the parameter is part of the
// server query the overlay is refreshed if enabled, or marked for a fetch on
// the next Enable otherwise. Setting a parameter to its current value does
// nothing.
func (c *Controller) SetParameter(ctx context.Context, key string, value interface{}) error {
	if n, ok := c.source.(ParamNormalizer); ok {
		v, err := n.NormalizeParam(key, value)
		if err != nil {
			return fmt.Errorf("%s %s: %w", c.id, key, err)
		}
		value = v
	}

	c.mu.Lock()
	if old, ok := c.state.Parameters[key]; ok && cmp.Equal(old, value) {
		c.mu.Unlock()
		return nil
	}
	c.state.Parameters[key] = value
	affects := containsKey(c.source.QueryKeys(), key)
	enabled := c.state.Enabled
	if affects && !enabled {
		c.loaded = false
	}
	c.mu.Unlock()

	c.log.Debug().Str("key", key).Interface("value", value).Msg("Overlay parameter changed")
	if affects && enabled {
		return c.Refresh(ctx)
	}
	c.notify()
	return nil
}

// Parameter returns a parameter value
func (c *Controller) Parameter(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state.Parameters[key]
	return v, ok
}

// State returns a snapshot of the overlay state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Parameters = copyParams(c.state.Parameters)
	return s
}

// Phase returns the current display phase
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastError returns the error of the most recent failed fetch, or nil
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastUpdate returns when markers were last replaced
func (c *Controller) LastUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdate
}

// Markers returns the cached markers
func (c *Controller) Markers() []maphost.Marker {
	return c.group.Markers()
}

// ActiveTasks returns the number of running auto-refresh tasks
func (c *Controller) ActiveTasks() int {
	return int(c.activeTasks.Load())
}

// Stop halts auto-refresh and any request in flight without changing the
// enabled state
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stopTask()

	c.mu.Lock()
	if c.inflight != nil {
		c.inflight()
		c.inflight = nil
	}
	c.mu.Unlock()
}

// startTask must be called with lifecycle held and no task running
func (c *Controller) startTask() {
	if c.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.task = t
	c.mu.Unlock()

	c.activeTasks.Add(1)
	go func() {
		defer close(t.done)
		defer c.activeTasks.Add(-1)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.Refresh(ctx)
			}
		}
	}()
}

// stopTask must be called with lifecycle held
func (c *Controller) stopTask() {
	c.mu.Lock()
	t := c.task
	c.task = nil
	c.mu.Unlock()

	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// settledPhase must be called with mu held
func (c *Controller) settledPhase() Phase {
	switch {
	case !c.state.Enabled:
		return PhaseDisabled
	case !c.loaded || c.lastErr != nil:
		return PhaseDisplayedStale
	default:
		return PhaseDisplayed
	}
}

func (c *Controller) notify() {
	if c.onUpdate == nil {
		return
	}
	c.mu.Lock()
	u := Update{Overlay: c.id, Phase: c.phase, Err: c.lastErr}
	c.mu.Unlock()
	u.Markers = c.group.Len()
	c.onUpdate(u)
}

func copyParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
