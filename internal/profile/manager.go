package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"github.com/geopol/geopol-go/internal/api"
	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/export"
	"github.com/geopol/geopol-go/internal/geo"
	"github.com/geopol/geopol-go/internal/maphost"
	"github.com/geopol/geopol-go/internal/overlay"
	"github.com/geopol/geopol-go/internal/theme"
)

// Remote is the backend profile store
type Remote interface {
	ListProfiles(ctx context.Context) ([]api.ProfileSummary, error)
	GetProfile(ctx context.Context, name string) (json.RawMessage, error)
	SaveProfile(ctx context.Context, profile interface{}) error
	SaveProfileFromState(ctx context.Context, req api.FromStateRequest) (json.RawMessage, error)
	DeleteProfile(ctx context.Context, name string) error
	ValidateProfile(ctx context.Context, profile interface{}) (api.ValidationResult, error)
}

// LocalCache is the on-disk fallback store
type LocalCache interface {
	LoadProfiles() (map[string]json.RawMessage, error)
	SaveProfiles(profiles map[string]json.RawMessage) error
	CurrentProfile() (string, error)
	SetCurrentProfile(name string) error
}

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(question string) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(question string) bool

// Confirm calls f
func (f ConfirmFunc) Confirm(question string) bool { return f(question) }

// Level of a user notification
type Level int

const (
	LevelInfo Level = iota
	LevelAlert
)

// Notifier shows messages to the user
type Notifier interface {
	Notify(level Level, message string)
}

// NotifyFunc adapts a function to Notifier
type NotifyFunc func(level Level, message string)

// Notify calls f
func (f NotifyFunc) Notify(level Level, message string) { f(level, message) }

// EventType identifies a Manager event
type EventType string

const (
	EventApplied      EventType = "profileApplied"
	EventSaved        EventType = "profileSaved"
	EventDeleted      EventType = "profileDeleted"
	EventDirtyChanged EventType = "dirtyChanged"
)

// Event is delivered to OnChange listeners
type Event struct {
	Type    EventType
	Profile string
	Dirty   bool
}

// Deps are the collaborators a Manager reads and drives. Remote and Local
// may be nil.
type Deps struct {
	Remote   Remote
	Local    LocalCache
	Overlays *overlay.Registry
	Host     *maphost.Host
	Themes   *theme.Selector
}

// Option configures a Manager
type Option func(*Manager)

// WithConfirmer sets the confirmation prompt; without one every question is
// answered "no"
func WithConfirmer(c Confirmer) Option {
	return func(m *Manager) { m.confirm = c }
}

// WithNotifier sets where user-visible messages go
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithExportDir sets the default export directory
func WithExportDir(dir string) Option {
	return func(m *Manager) { m.exportDir = dir }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the active profile and the dirty flag
type Manager struct {
	remote    Remote
	local     LocalCache
	overlays  *overlay.Registry
	host      *maphost.Host
	themes    *theme.Selector
	confirm   Confirmer
	notifier  Notifier
	log       zerolog.Logger
	exportDir string
	now       func() time.Time

	// localMu serializes read-modify-write cycles on the local cache
	localMu sync.Mutex

	mu        sync.Mutex
	cache     map[string]*Profile
	active    *Profile
	dirty     bool
	listeners []func(Event)
}

// New creates a Manager
func New(deps Deps, opts ...Option) *Manager {
	m := &Manager{
		remote:   deps.Remote,
		local:    deps.Local,
		overlays: deps.Overlays,
		host:     deps.Host,
		themes:   deps.Themes,
		confirm:  ConfirmFunc(func(string) bool { return false }),
		notifier: NotifyFunc(func(Level, string) {}),
		log:      zerolog.Nop(),
		now:      time.Now,
		cache:    make(map[string]*Profile),
	}
	if m.themes == nil {
		m.themes = theme.NewSelector(theme.Default)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers a listener for Manager events
func (m *Manager) OnChange(fn func(Event)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	listeners := make([]func(Event), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Active returns a copy of the active profile, or nil
func (m *Manager) Active() *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Clone()
}

// ActiveName returns the active profile name, or ""
func (m *Manager) ActiveName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.Name
}

// Dirty returns the last computed dirty flag
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// CaptureCurrentState reads the overlay controls, theme and viewport into an
// unnamed profile
func (m *Manager) CaptureCurrentState() Profile {
	p := Profile{
		Layers:      make(map[string]LayerSettings, len(config.OverlayIDs)),
		Weather:     WeatherSettings{Metric: overlay.DefaultMetric},
		Earthquakes: EarthquakeSettings{MinMagnitude: overlay.DefaultMinMagnitude},
		Theme:       m.themes.ThemeName(),
	}

	if m.overlays != nil {
		for _, c := range m.overlays.List() {
			st := c.State()
			p.Layers[c.ID()] = LayerSettings{Enabled: st.Enabled, Opacity: st.Opacity, ZIndex: st.ZIndex}

			switch c.ID() {
			case config.OverlayWeather:
				p.Weather.Enabled = st.Enabled
				p.Weather.Opacity = st.Opacity
				if metric, ok := st.Parameters[overlay.ParamMetric].(string); ok {
					p.Weather.Metric = metric
				}
			case config.OverlayEarthquakes:
				p.Earthquakes.Enabled = st.Enabled
				if mag, ok := st.Parameters[overlay.ParamMinMagnitude].(float64); ok {
					p.Earthquakes.MinMagnitude = mag
				}
			}
		}
	}

	if m.host != nil {
		v := m.host.Viewport()
		p.DefaultView = View{Center: [2]float64{v.Center.Lat, v.Center.Lng}, Zoom: v.Zoom}
	}
	return p
}

// dirtyOptions exclude identity, timestamps, viewport and draw order from the
// comparison
var dirtyOptions = cmp.Options{
	cmpopts.IgnoreFields(Profile{}, "Name", "Description", "DefaultView", "CreatedAt", "UpdatedAt"),
	cmpopts.IgnoreFields(LayerSettings{}, "ZIndex"),
	cmpopts.EquateApprox(0, 1e-9),
	cmpopts.EquateEmpty(),
}

// DetectDirtyState compares the live state with the active profile and
// updates the dirty flag. With no active profile the state is clean.
func (m *Manager) DetectDirtyState() bool {
	current := m.CaptureCurrentState()
	current.Normalize()

	m.mu.Lock()
	dirty := false
	if m.active != nil {
		dirty = !cmp.Equal(current, *m.active, dirtyOptions)
	}
	changed := dirty != m.dirty
	m.dirty = dirty
	name := ""
	if m.active != nil {
		name = m.active.Name
	}
	m.mu.Unlock()

	if changed {
		m.log.Debug().Str("profile", name).Bool("dirty", dirty).Msg("Dirty state changed")
		m.emit(Event{Type: EventDirtyChanged, Profile: name, Dirty: dirty})
	}
	return dirty
}

// Diff describes how the live state differs from the active profile
func (m *Manager) Diff() string {
	current := m.CaptureCurrentState()
	current.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return cmp.Diff(*m.active, current, dirtyOptions)
}

// ApplyProfile drives the overlays, viewport and theme to match p. Overlays
// whose state already matches are left untouched. Fetch failures are logged
// and do not stop the remaining settings from being applied.
func (m *Manager) ApplyProfile(ctx context.Context, p *Profile) error {
	if p == nil {
		return ErrNotFound
	}
	p = p.Clone()
	p.Normalize()

	if m.overlays != nil {
		for _, c := range m.overlays.List() {
			m.applyParameters(ctx, c, p)

			ls := p.Layers[c.ID()]
			st := c.State()
			if st.Opacity != ls.Opacity {
				c.SetOpacity(ls.Opacity)
			}
			if ls.ZIndex > 0 && st.ZIndex != ls.ZIndex {
				c.SetZIndex(ls.ZIndex)
			}
			if c.Enabled() != ls.Enabled {
				if err := c.SetEnabled(ctx, ls.Enabled); err != nil {
					m.log.Error().Err(err).Str("overlay", c.ID()).Str("profile", p.Name).Msg("Overlay failed while applying profile")
				}
			}
		}
	}

	if m.host != nil && p.DefaultView.Zoom > 0 {
		m.host.SetViewport(maphost.Viewport{
			Center: geo.LatLng{Lat: p.DefaultView.Center[0], Lng: p.DefaultView.Center[1]},
			Zoom:   p.DefaultView.Zoom,
		})
	}

	if err := m.themes.SetTheme(p.Theme); err != nil {
		m.log.Warn().Err(err).Str("profile", p.Name).Msg("Profile theme ignored")
	}

	m.mu.Lock()
	wasDirty := m.dirty
	m.active = p.Clone()
	m.dirty = false
	m.cache[p.Name] = p.Clone()
	m.mu.Unlock()

	m.remember(p.Name)
	m.log.Info().Str("profile", p.Name).Msg("Profile applied")
	m.emit(Event{Type: EventApplied, Profile: p.Name})
	if wasDirty {
		m.emit(Event{Type: EventDirtyChanged, Profile: p.Name, Dirty: false})
	}
	return nil
}

func (m *Manager) applyParameters(ctx context.Context, c *overlay.Controller, p *Profile) {
	var key string
	var want interface{}
	switch c.ID() {
	case config.OverlayWeather:
		key, want = overlay.ParamMetric, p.Weather.Metric
	case config.OverlayEarthquakes:
		key, want = overlay.ParamMinMagnitude, p.Earthquakes.MinMagnitude
	default:
		return
	}
	if cur, ok := c.Parameter(key); ok && cmp.Equal(cur, want) {
		return
	}
	if err := c.SetParameter(ctx, key, want); err != nil {
		m.log.Error().Err(err).Str("overlay", c.ID()).Str("param", key).Msg("Failed to apply profile parameter")
	}
}

func (m *Manager) remember(name string) {
	if m.local == nil {
		return
	}
	if err := m.local.SetCurrentProfile(name); err != nil {
		m.log.Warn().Err(err).Str("profile", name).Msg("Failed to remember profile")
	}
}

// lookup finds a profile in memory, then on the backend, then in the local
// cache, then among the built-ins
func (m *Manager) lookup(ctx context.Context, name string) (*Profile, error) {
	m.mu.Lock()
	if p, ok := m.cache[name]; ok {
		m.mu.Unlock()
		return p.Clone(), nil
	}
	m.mu.Unlock()

	if p, err := m.fetchRemote(ctx, name); err == nil {
		m.store(p)
		return p, nil
	} else if !errors.Is(err, ErrNotFound) {
		m.log.Warn().Err(err).Str("profile", name).Msg("Backend profile lookup failed")
	}

	if p, ok := m.localProfile(name); ok {
		m.store(p)
		return p, nil
	}

	if p, ok := BuiltIn(name); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (m *Manager) fetchRemote(ctx context.Context, name string) (*Profile, error) {
	if m.remote == nil {
		return nil, ErrNotFound
	}
	raw, err := m.remote.GetProfile(ctx, name)
	if err != nil {
		var be *api.BackendError
		if errors.As(err, &be) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

func (m *Manager) localProfiles() map[string]json.RawMessage {
	if m.local == nil {
		return map[string]json.RawMessage{}
	}
	profiles, err := m.local.LoadProfiles()
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to read local profile cache")
		return map[string]json.RawMessage{}
	}
	return profiles
}

func (m *Manager) localProfile(name string) (*Profile, bool) {
	raw, ok := m.localProfiles()[name]
	if !ok {
		return nil, false
	}
	p, err := Decode(raw)
	if err != nil {
		m.log.Warn().Err(err).Str("profile", name).Msg("Ignoring corrupt cached profile")
		return nil, false
	}
	return p, true
}

func (m *Manager) store(p *Profile) {
	m.mu.Lock()
	m.cache[p.Name] = p.Clone()
	m.mu.Unlock()
}

// LoadProfile finds a profile by name and, when apply is set, applies it
func (m *Manager) LoadProfile(ctx context.Context, name string, apply bool) (*Profile, bool) {
	name = strings.TrimSpace(name)
	p, err := m.lookup(ctx, name)
	if err != nil {
		m.log.Error().Err(err).Str("profile", name).Msg("Failed to load profile")
		m.notifier.Notify(LevelAlert, fmt.Sprintf("Profile %q not found", name))
		return nil, false
	}
	if apply {
		if err := m.ApplyProfile(ctx, p); err != nil {
			m.log.Error().Err(err).Str("profile", name).Msg("Failed to apply profile")
			m.notifier.Notify(LevelAlert, fmt.Sprintf("Failed to apply profile %q: %v", name, err))
			return nil, false
		}
	}
	return p, true
}

// RestoreRemembered loads and applies the last applied profile, or the
// default profile when none was remembered or it no longer exists
func (m *Manager) RestoreRemembered(ctx context.Context) (*Profile, bool) {
	name := Default
	if m.local != nil {
		if remembered, err := m.local.CurrentProfile(); err != nil {
			m.log.Warn().Err(err).Msg("Failed to read remembered profile")
		} else if remembered != "" {
			name = remembered
		}
	}

	if p, err := m.lookup(ctx, name); err == nil {
		if err := m.ApplyProfile(ctx, p); err == nil {
			return p, true
		}
	} else {
		m.log.Warn().Err(err).Str("profile", name).Msg("Remembered profile unavailable, using default")
	}
	return m.LoadProfile(ctx, Default, true)
}

// exists reports whether a custom profile with this name is known anywhere
func (m *Manager) exists(ctx context.Context, name string) (*Profile, bool) {
	m.mu.Lock()
	if p, ok := m.cache[name]; ok {
		m.mu.Unlock()
		return p.Clone(), true
	}
	m.mu.Unlock()
	if p, ok := m.localProfile(name); ok {
		return p, true
	}
	if p, err := m.fetchRemote(ctx, name); err == nil {
		return p, true
	}
	return nil, false
}

// persist writes p to the backend and the local cache. The local cache is
// always written; the call fails only when neither store accepted it.
func (m *Manager) persist(ctx context.Context, p *Profile) error {
	var remoteErr, localErr error

	if m.remote != nil {
		if remoteErr = m.remote.SaveProfile(ctx, p); remoteErr != nil {
			m.log.Warn().Err(remoteErr).Str("profile", p.Name).Msg("Backend save failed, keeping local copy")
		}
	} else {
		remoteErr = errors.New("no backend configured")
	}

	if m.local != nil {
		localErr = m.writeLocal(func(profiles map[string]json.RawMessage) error {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			profiles[p.Name] = data
			return nil
		})
		if localErr != nil {
			m.log.Warn().Err(localErr).Str("profile", p.Name).Msg("Local cache save failed")
		}
	} else {
		localErr = errors.New("no local cache configured")
	}

	if remoteErr != nil && localErr != nil {
		return fmt.Errorf("save profile %s: %w", p.Name, remoteErr)
	}
	m.store(p)
	return nil
}

func (m *Manager) writeLocal(mutate func(map[string]json.RawMessage) error) error {
	m.localMu.Lock()
	defer m.localMu.Unlock()

	profiles := m.localProfiles()
	if err := mutate(profiles); err != nil {
		return err
	}
	return m.local.SaveProfiles(profiles)
}

// SaveCurrentAsProfile captures the live state under name. Built-in names
// are refused without asking; an existing custom profile is overwritten only
// after confirmation.
func (m *Manager) SaveCurrentAsProfile(ctx context.Context, name, description string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		m.notifier.Notify(LevelAlert, "Profile name is required")
		return false
	}
	if IsBuiltIn(name) {
		m.log.Warn().Str("profile", name).Msg("Refusing to overwrite built-in profile")
		m.notifier.Notify(LevelAlert, fmt.Sprintf("%q is a built-in profile and cannot be overwritten", name))
		return false
	}

	now := m.now().UTC()
	createdAt := now
	if existing, ok := m.exists(ctx, name); ok {
		if !m.confirm.Confirm(fmt.Sprintf("Profile %q exists. Overwrite?", name)) {
			m.log.Info().Str("profile", name).Msg("Overwrite declined")
			return false
		}
		if !existing.CreatedAt.IsZero() {
			createdAt = existing.CreatedAt
		}
	}

	current := m.CaptureCurrentState()
	p := &current
	p.Name = name
	p.Description = description
	p.CreatedAt = createdAt
	p.UpdatedAt = now
	p.Normalize()

	if err := m.persist(ctx, p); err != nil {
		m.log.Error().Err(err).Str("profile", name).Msg("Failed to save profile")
		m.notifier.Notify(LevelAlert, fmt.Sprintf("Failed to save profile %q: %v", name, err))
		return false
	}

	m.mu.Lock()
	wasDirty := m.dirty
	m.active = p.Clone()
	m.dirty = false
	m.mu.Unlock()
	m.remember(name)

	m.log.Info().Str("profile", name).Msg("Profile saved")
	m.notifier.Notify(LevelInfo, fmt.Sprintf("Profile %q saved", name))
	m.emit(Event{Type: EventSaved, Profile: name})
	if wasDirty {
		m.emit(Event{Type: EventDirtyChanged, Profile: name, Dirty: false})
	}
	return true
}

// SaveStateToBackend asks the backend to build a profile from the captured
// state and caches the result locally
func (m *Manager) SaveStateToBackend(ctx context.Context, name, description string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if IsBuiltIn(name) {
		return nil, fmt.Errorf("%w: %s", ErrBuiltIn, name)
	}
	if m.remote == nil {
		return nil, errors.New("no backend configured")
	}

	state := m.CaptureCurrentState()
	raw, err := m.remote.SaveProfileFromState(ctx, api.FromStateRequest{
		Name:        name,
		Description: description,
		State:       state,
	})
	if err != nil {
		m.log.Error().Err(err).Str("profile", name).Msg("Backend rejected state save")
		m.notifier.Notify(LevelAlert, fmt.Sprintf("Failed to save profile %q: %v", name, err))
		return nil, fmt.Errorf("save state %s: %w", name, err)
	}

	p, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = name
	}
	if m.local != nil {
		if err := m.writeLocal(func(profiles map[string]json.RawMessage) error {
			data, err := json.Marshal(p)
			profiles[p.Name] = data
			return err
		}); err != nil {
			m.log.Warn().Err(err).Str("profile", p.Name).Msg("Local cache save failed")
		}
	}
	m.store(p)

	m.log.Info().Str("profile", p.Name).Msg("Profile saved from state")
	m.emit(Event{Type: EventSaved, Profile: p.Name})
	return p.Clone(), nil
}

// ListProfiles merges built-ins, backend profiles and locally cached
// profiles. Built-ins come first.
func (m *Manager) ListProfiles(ctx context.Context) []Summary {
	seen := make(map[string]int)
	var list []Summary
	add := func(s Summary) {
		if i, ok := seen[s.Name]; ok {
			if list[i].Description == "" {
				list[i].Description = s.Description
			}
			return
		}
		seen[s.Name] = len(list)
		list = append(list, s)
	}

	for _, name := range builtInNames {
		p, _ := BuiltIn(name)
		add(Summary{Name: name, Description: p.Description, BuiltIn: true})
	}

	if m.remote != nil {
		remote, err := m.remote.ListProfiles(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("Backend profile list unavailable")
		}
		for _, r := range remote {
			add(Summary{Name: r.Name, Description: r.Description, BuiltIn: IsBuiltIn(r.Name)})
		}
	}

	for name, raw := range m.localProfiles() {
		desc := ""
		if p, err := Decode(raw); err == nil {
			desc = p.Description
		}
		add(Summary{Name: name, Description: desc})
	}

	m.mu.Lock()
	for name, p := range m.cache {
		add(Summary{Name: name, Description: p.Description, BuiltIn: IsBuiltIn(name)})
	}
	active := ""
	if m.active != nil {
		active = m.active.Name
	}
	m.mu.Unlock()

	for i := range list {
		list[i].Active = list[i].Name == active
	}
	sortSummaries(list)
	return list
}

// DeleteProfile removes a custom profile from the backend and local caches
// after confirmation. Deleting the active profile makes default the
// remembered profile.
func (m *Manager) DeleteProfile(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if IsBuiltIn(name) {
		m.log.Warn().Str("profile", name).Msg("Refusing to delete built-in profile")
		m.notifier.Notify(LevelAlert, fmt.Sprintf("%q is a built-in profile and cannot be deleted", name))
		return false
	}
	if !m.confirm.Confirm(fmt.Sprintf("Delete profile %q?", name)) {
		return false
	}

	_, inLocal := m.localProfiles()[name]
	m.mu.Lock()
	_, inMemory := m.cache[name]
	m.mu.Unlock()

	remoteDeleted := false
	if m.remote != nil {
		if err := m.remote.DeleteProfile(ctx, name); err != nil {
			m.log.Warn().Err(err).Str("profile", name).Msg("Backend delete failed")
		} else {
			remoteDeleted = true
		}
	}
	if !remoteDeleted && !inLocal && !inMemory {
		m.notifier.Notify(LevelAlert, fmt.Sprintf("Profile %q not found", name))
		return false
	}

	if inLocal {
		if err := m.writeLocal(func(profiles map[string]json.RawMessage) error {
			delete(profiles, name)
			return nil
		}); err != nil {
			m.log.Warn().Err(err).Str("profile", name).Msg("Failed to remove profile from local cache")
		}
	}

	m.mu.Lock()
	delete(m.cache, name)
	wasActive := m.active != nil && m.active.Name == name
	if wasActive {
		m.active = nil
		m.dirty = false
	}
	m.mu.Unlock()

	if wasActive {
		m.remember(Default)
	} else if m.local != nil {
		if current, err := m.local.CurrentProfile(); err == nil && current == name {
			m.remember(Default)
		}
	}

	m.log.Info().Str("profile", name).Msg("Profile deleted")
	m.notifier.Notify(LevelInfo, fmt.Sprintf("Profile %q deleted", name))
	m.emit(Event{Type: EventDeleted, Profile: name})
	return true
}

// ExportProfile writes the named profile to a JSON file and returns its path
func (m *Manager) ExportProfile(ctx context.Context, name, dir string) (string, error) {
	p, err := m.lookup(ctx, strings.TrimSpace(name))
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = m.exportDir
	}
	path, err := export.ExportProfile(p.Name, p, dir)
	if err != nil {
		return "", fmt.Errorf("export profile %s: %w", p.Name, err)
	}
	m.log.Info().Str("profile", p.Name).Str("file", path).Msg("Profile exported")
	return path, nil
}

// ImportProfileFromFile reads a profile document, validates it with the
// backend and saves it. rename, when set, replaces the name in the file.
// Nothing is written until validation has passed.
func (m *Manager) ImportProfileFromFile(ctx context.Context, path, rename string) (*Profile, error) {
	p, err := m.importProfile(ctx, path, rename)
	if err != nil {
		m.log.Error().Err(err).Str("file", path).Msg("Profile import failed")
		if !errors.Is(err, ErrCancelled) {
			m.notifier.Notify(LevelAlert, fmt.Sprintf("Import failed: %v", err))
		}
		return nil, err
	}
	m.log.Info().Str("profile", p.Name).Str("file", path).Msg("Profile imported")
	m.notifier.Notify(LevelInfo, fmt.Sprintf("Profile %q imported", p.Name))
	m.emit(Event{Type: EventSaved, Profile: p.Name})
	return p.Clone(), nil
}

func (m *Manager) importProfile(ctx context.Context, path, rename string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if rename = strings.TrimSpace(rename); rename != "" {
		p.Name = rename
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if IsBuiltIn(p.Name) {
		return nil, fmt.Errorf("%w: %s", ErrBuiltIn, p.Name)
	}

	if m.remote == nil {
		return nil, errors.New("validation requires a backend connection")
	}
	res, err := m.remote.ValidateProfile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("validate profile: %w", err)
	}
	if !res.Valid {
		return nil, &ValidationError{Reason: res.Reason()}
	}

	if _, ok := m.exists(ctx, p.Name); ok {
		if !m.confirm.Confirm(fmt.Sprintf("Profile %q exists. Overwrite?", p.Name)) {
			return nil, ErrCancelled
		}
	}

	now := m.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := m.persist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
