package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/geopol/geopol-go/internal/api"
	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/geo"
	"github.com/geopol/geopol-go/internal/maphost"
	"github.com/geopol/geopol-go/internal/overlay"
	"github.com/geopol/geopol-go/internal/storage"
	"github.com/geopol/geopol-go/internal/testutil"
	"github.com/geopol/geopol-go/internal/theme"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type env struct {
	srv    *testutil.MockServer
	client *api.Client
	store  *storage.Store
	host   *maphost.Host
	reg    *overlay.Registry
	themes *theme.Selector
	mgr    *Manager

	mu        sync.Mutex
	answer    bool
	questions []string
	notices   []string
	events    []Event
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{}

	e.srv = testutil.StartMockServer(t)
	e.srv.SetEntities(testutil.SampleEntities()...)
	e.srv.SetReceivers(testutil.SampleReceivers()...)
	e.srv.SetQuakes(testutil.SampleQuakes()...)
	for _, metric := range overlay.Metrics {
		e.srv.SetWeather(metric, testutil.GenerateWeather(4, "u")...)
	}

	transport := &http.Transport{}
	t.Cleanup(transport.CloseIdleConnections)
	e.client = api.New(e.srv.BaseURL(),
		api.WithTimeout(2*time.Second),
		api.WithHTTPClient(&http.Client{Transport: transport}))

	store, err := storage.Open(storage.MemoryPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	e.store = store

	e.host = maphost.New()
	require.NoError(t, e.host.Initialize("map", maphost.Viewport{Center: geo.LatLng{Lat: 20}, Zoom: 2}))

	cfg := config.DefaultConfig()
	for id, ov := range cfg.Overlays {
		ov.RefreshSec = 0
		cfg.Overlays[id] = ov
	}
	e.reg, err = overlay.Build(e.host, e.client, cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(e.reg.StopAll)

	e.themes = theme.NewSelector(theme.Dark)
	e.mgr = New(Deps{
		Remote:   e.client,
		Local:    e.store,
		Overlays: e.reg,
		Host:     e.host,
		Themes:   e.themes,
	},
		WithConfirmer(ConfirmFunc(func(q string) bool {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.questions = append(e.questions, q)
			return e.answer
		})),
		WithNotifier(NotifyFunc(func(_ Level, msg string) {
			e.mu.Lock()
			e.notices = append(e.notices, msg)
			e.mu.Unlock()
		})),
		WithClock(func() time.Time { return fixedNow }),
		WithExportDir(t.TempDir()),
	)
	e.mgr.OnChange(func(ev Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	})
	return e
}

func (e *env) confirmWith(answer bool) {
	e.mu.Lock()
	e.answer = answer
	e.mu.Unlock()
}

func (e *env) questionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.questions)
}

func (e *env) eventsOf(typ EventType) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (e *env) controller(t *testing.T, id string) *overlay.Controller {
	t.Helper()
	c, ok := e.reg.Get(id)
	require.True(t, ok, id)
	return c
}

func TestSaveBuiltInNameIsRefused(t *testing.T) {
	e := newEnv(t)
	e.confirmWith(true)
	ctx := context.Background()

	for _, name := range []string{"default", "Analyst", " meteo "} {
		assert.False(t, e.mgr.SaveCurrentAsProfile(ctx, name, "mine"), name)
	}

	assert.Zero(t, e.questionCount(), "no confirmation is asked for built-ins")
	assert.Zero(t, e.srv.RequestCount(http.MethodPost, "/api/geopol/profiles"))
	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.Empty(t, cached)
	assert.Empty(t, e.eventsOf(EventSaved))
}

func TestSaveCurrentAsProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.controller(t, config.OverlayEarthquakes).SetEnabled(ctx, true))
	require.NoError(t, e.controller(t, config.OverlayEarthquakes).SetParameter(ctx, overlay.ParamMinMagnitude, 5.5))

	require.True(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", "night shift"))

	raw, ok := e.srv.Profile("ops")
	require.True(t, ok, "saved to backend")
	saved, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, saved.Layers[config.OverlayEarthquakes].Enabled)
	assert.Equal(t, 5.5, saved.Earthquakes.MinMagnitude)
	assert.Equal(t, "night shift", saved.Description)
	assert.True(t, fixedNow.Equal(saved.CreatedAt), "created_at = %v", saved.CreatedAt)

	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.Contains(t, cached, "ops", "local cache is always written")

	assert.Equal(t, "ops", e.mgr.ActiveName())
	assert.False(t, e.mgr.DetectDirtyState())
	remembered, err := e.store.CurrentProfile()
	require.NoError(t, err)
	assert.Equal(t, "ops", remembered)
	assert.Len(t, e.eventsOf(EventSaved), 1)
}

func TestSaveOverwriteRequiresConfirmation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.True(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", "first"))
	assert.Zero(t, e.questionCount())

	e.confirmWith(false)
	assert.False(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", "second"))
	assert.Equal(t, 1, e.questionCount())
	p, ok := e.mgr.LoadProfile(ctx, "ops", false)
	require.True(t, ok)
	assert.Equal(t, "first", p.Description)

	e.confirmWith(true)
	assert.True(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", "second"))
	p, ok = e.mgr.LoadProfile(ctx, "ops", false)
	require.True(t, ok)
	assert.Equal(t, "second", p.Description)
}

func TestSaveSurvivesBackendFailure(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail("/api/geopol/profiles", testutil.Failure{StatusCode: http.StatusServiceUnavailable})

	assert.True(t, e.mgr.SaveCurrentAsProfile(context.Background(), "offline", ""))

	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.Contains(t, cached, "offline")
}

func TestConcurrentLocalWritesKeepEveryProfile(t *testing.T) {
	e := newEnv(t)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("local-%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.mgr.writeLocal(func(profiles map[string]json.RawMessage) error {
				profiles[name] = json.RawMessage(`{"name":"` + name + `"}`)
				return nil
			}))
		}()
	}
	wg.Wait()

	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.Len(t, cached, n)
	for i := 0; i < n; i++ {
		assert.Contains(t, cached, fmt.Sprintf("local-%02d", i))
	}
}

func TestLoadProfileTwiceIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, ok := e.mgr.LoadProfile(ctx, Analyst, true)
	require.True(t, ok)
	assert.Equal(t, Analyst, p.Name)

	first := e.reg.States()
	firstView := e.host.Viewport()
	requests := len(e.srv.Requests())

	_, ok = e.mgr.LoadProfile(ctx, Analyst, true)
	require.True(t, ok)

	assert.Equal(t, first, e.reg.States())
	assert.Equal(t, firstView, e.host.Viewport())
	assert.False(t, e.mgr.DetectDirtyState())
	assert.Equal(t, requests, len(e.srv.Requests()), "second apply is served from memory and refetches nothing")

	assert.True(t, e.controller(t, config.OverlaySDR).Enabled())
	assert.False(t, e.controller(t, config.OverlayWeather).Enabled())
	assert.Equal(t, 4, e.host.Viewport().Zoom)
	assert.Len(t, e.eventsOf(EventApplied), 2)
}

func TestApplyProfileDrivesOverlaysAndTheme(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, ok := e.mgr.LoadProfile(ctx, Meteo, true)
	require.True(t, ok)

	weather := e.controller(t, config.OverlayWeather)
	assert.True(t, weather.Enabled())
	metric, _ := weather.Parameter(overlay.ParamMetric)
	assert.Equal(t, "precipitation", metric)
	assert.Equal(t, overlay.PhaseDisplayed, weather.Phase())
	assert.Equal(t, theme.Satellite, e.themes.ThemeName())

	quakes := e.controller(t, config.OverlayEarthquakes)
	mag, _ := quakes.Parameter(overlay.ParamMinMagnitude)
	assert.Equal(t, 3.5, mag)

	assert.Equal(t, 1, e.srv.RequestCount(http.MethodGet, "/api/weather/layer/precipitation"),
		"parameter is applied before enabling so the overlay fetches once")
	assert.Zero(t, e.srv.RequestCount(http.MethodGet, "/api/weather/layer/temperature"))
}

func TestApplyKeepsGoingWhenAnOverlayFails(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail("/api/sdr", testutil.Failure{Message: "receivers offline"})
	e.srv.Fail("/api/geopol/sdr-receivers", testutil.Failure{Message: "receivers offline"})

	_, ok := e.mgr.LoadProfile(context.Background(), Analyst, true)
	require.True(t, ok)

	sdr := e.controller(t, config.OverlaySDR)
	assert.True(t, sdr.Enabled())
	assert.Equal(t, overlay.PhaseDisplayedStale, sdr.Phase())
	assert.True(t, e.controller(t, config.OverlayEarthquakes).Enabled())
	assert.Equal(t, Analyst, e.mgr.ActiveName())
}

func TestDirtyStateTracksEarthquakeToggle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, ok := e.mgr.LoadProfile(ctx, Default, true)
	require.True(t, ok)
	require.False(t, e.mgr.Active().Layers[config.OverlayEarthquakes].Enabled)
	assert.False(t, e.mgr.DetectDirtyState())

	quakes := e.controller(t, config.OverlayEarthquakes)
	require.NoError(t, quakes.SetEnabled(ctx, true))
	assert.True(t, e.mgr.DetectDirtyState())
	assert.True(t, e.mgr.Dirty())
	assert.Contains(t, e.mgr.Diff(), "Enabled")

	require.NoError(t, quakes.SetEnabled(ctx, false))
	assert.False(t, e.mgr.DetectDirtyState())

	changes := e.eventsOf(EventDirtyChanged)
	require.Len(t, changes, 2)
	assert.True(t, changes[0].Dirty)
	assert.False(t, changes[1].Dirty)
}

func TestDirtyStateCoversParametersButNotViewport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, ok := e.mgr.LoadProfile(ctx, Default, true)
	require.True(t, ok)

	e.host.PanBy(15, -10)
	e.host.ZoomBy(3)
	assert.False(t, e.mgr.DetectDirtyState(), "panning and zooming are not changes")

	weather := e.controller(t, config.OverlayWeather)
	require.NoError(t, weather.SetParameter(ctx, overlay.ParamMetric, "wind"))
	assert.True(t, e.mgr.DetectDirtyState())
	require.NoError(t, weather.SetParameter(ctx, overlay.ParamMetric, overlay.DefaultMetric))
	assert.False(t, e.mgr.DetectDirtyState())

	weather.SetOpacity(0.2)
	assert.True(t, e.mgr.DetectDirtyState())
	weather.SetOpacity(0.6)
	assert.False(t, e.mgr.DetectDirtyState())

	require.NoError(t, e.themes.SetTheme(theme.Light))
	assert.True(t, e.mgr.DetectDirtyState())
}

func TestDirtyWithoutActiveProfile(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.controller(t, config.OverlayEarthquakes).SetEnabled(context.Background(), true))
	assert.False(t, e.mgr.DetectDirtyState())
	assert.Empty(t, e.mgr.Diff())
}

func TestLoadFallsBackToLocalCache(t *testing.T) {
	e := newEnv(t)
	local := &Profile{Name: "field", Description: "cached only", Theme: theme.Light}
	local.Normalize()
	data, err := json.Marshal(local)
	require.NoError(t, err)
	require.NoError(t, e.store.SaveProfiles(map[string]json.RawMessage{"field": data}))

	e.srv.Fail("/api/geopol/profiles/", testutil.Failure{StatusCode: http.StatusBadGateway})

	p, ok := e.mgr.LoadProfile(context.Background(), "field", false)
	require.True(t, ok)
	assert.Equal(t, "cached only", p.Description)
	assert.Equal(t, theme.Light, p.Theme)
}

func TestLoadUnknownProfile(t *testing.T) {
	e := newEnv(t)
	p, ok := e.mgr.LoadProfile(context.Background(), "nope", true)
	assert.False(t, ok)
	assert.Nil(t, p)
	assert.Empty(t, e.mgr.ActiveName())
	assert.NotEmpty(t, e.notices)
}

func TestExportImportRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.controller(t, config.OverlayWeather).SetParameter(ctx, overlay.ParamMetric, "clouds"))
	require.NoError(t, e.controller(t, config.OverlayEntities).SetEnabled(ctx, true))
	require.True(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", "export me"))
	original, ok := e.mgr.LoadProfile(ctx, "ops", false)
	require.True(t, ok)

	dir := t.TempDir()
	path, err := e.mgr.ExportProfile(ctx, "ops", dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `^geopol_profile_ops_\d{8}_\d{6}\.json$`, filepath.Base(path))

	imported, err := e.mgr.ImportProfileFromFile(ctx, path, "ops-copy")
	require.NoError(t, err)
	assert.Equal(t, "ops-copy", imported.Name)

	if diff := cmp.Diff(original, imported, cmpopts.IgnoreFields(Profile{}, "Name", "UpdatedAt")); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	e.confirmWith(true)
	same, err := e.mgr.ImportProfileFromFile(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, "ops", same.Name)
	assert.Equal(t, 1, e.questionCount(), "re-importing under the same name asks first")
}

func TestImportRejectedByBackend(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	path := writeProfileFile(t, `{"name":"bad","theme":"dark","weather":{"metric":"wind"}}`)

	e.srv.RejectValidation("layers.weather: unsupported opacity")
	p, err := e.mgr.ImportProfileFromFile(ctx, path, "")
	require.Error(t, err)
	assert.Nil(t, p)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "unsupported opacity")

	_, onBackend := e.srv.Profile("bad")
	assert.False(t, onBackend)
	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.NotContains(t, cached, "bad")
	assert.NotEmpty(t, e.notices)
}

func TestImportLocalValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		rename  string
		want    error
	}{
		{name: "malformed", content: `{"name":`, want: &ValidationError{}},
		{name: "bad theme", content: `{"name":"x","theme":"neon"}`, want: &ValidationError{}},
		{name: "bad metric", content: `{"name":"x","weather":{"metric":"humidity"}}`, want: &ValidationError{}},
		{name: "missing name", content: `{"theme":"dark"}`, want: &ValidationError{}},
		{name: "built-in", content: `{"name":"default"}`, want: ErrBuiltIn},
		{name: "renamed to built-in", content: `{"name":"mine"}`, rename: "meteo", want: ErrBuiltIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.mgr.ImportProfileFromFile(ctx, writeProfileFile(t, tt.content), tt.rename)
			require.Error(t, err)
			if verr, ok := tt.want.(*ValidationError); ok {
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
	assert.Zero(t, e.srv.RequestCount(http.MethodPost, "/api/geopol/profiles/validate"))
}

func TestImportCollisionDeclined(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.True(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", "keep me"))

	_, err := e.mgr.ImportProfileFromFile(ctx, writeProfileFile(t, `{"name":"ops","description":"replacement"}`), "")
	assert.ErrorIs(t, err, ErrCancelled)

	p, ok := e.mgr.LoadProfile(ctx, "ops", false)
	require.True(t, ok)
	assert.Equal(t, "keep me", p.Description)
}

func TestImportNeedsBackend(t *testing.T) {
	mgr := New(Deps{})
	_, err := mgr.ImportProfileFromFile(context.Background(), writeProfileFile(t, `{"name":"x"}`), "")
	assert.Error(t, err)
}

func TestDeleteProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.confirmWith(true)

	assert.False(t, e.mgr.DeleteProfile(ctx, Default))
	assert.Zero(t, e.srv.RequestCount(http.MethodDelete, "/api/geopol/profiles/"))

	require.True(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", ""))
	require.Equal(t, "ops", e.mgr.ActiveName())

	assert.True(t, e.mgr.DeleteProfile(ctx, "ops"))
	_, onBackend := e.srv.Profile("ops")
	assert.False(t, onBackend)
	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.NotContains(t, cached, "ops")
	assert.Empty(t, e.mgr.ActiveName())

	remembered, err := e.store.CurrentProfile()
	require.NoError(t, err)
	assert.Equal(t, Default, remembered)
	assert.Len(t, e.eventsOf(EventDeleted), 1)

	_, ok := e.mgr.LoadProfile(ctx, "ops", false)
	assert.False(t, ok)
	assert.False(t, e.mgr.DeleteProfile(ctx, "ops"), "already gone")
}

func TestDeleteDeclined(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.True(t, e.mgr.SaveCurrentAsProfile(ctx, "ops", ""))

	assert.False(t, e.mgr.DeleteProfile(ctx, "ops"))
	_, onBackend := e.srv.Profile("ops")
	assert.True(t, onBackend)
}

func TestDeleteLocalOnlyProfile(t *testing.T) {
	e := newEnv(t)
	e.confirmWith(true)
	data, err := json.Marshal(&Profile{Name: "laptop"})
	require.NoError(t, err)
	require.NoError(t, e.store.SaveProfiles(map[string]json.RawMessage{"laptop": data}))

	assert.True(t, e.mgr.DeleteProfile(context.Background(), "laptop"))
	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestListProfilesMergesSources(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.srv.PutProfile("zulu", json.RawMessage(`{"name":"zulu"}`))
	data, err := json.Marshal(&Profile{Name: "alpha", Description: "local"})
	require.NoError(t, err)
	require.NoError(t, e.store.SaveProfiles(map[string]json.RawMessage{"alpha": data}))
	require.True(t, e.mgr.SaveCurrentAsProfile(ctx, "mike", ""))

	list := e.mgr.ListProfiles(ctx)
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"default", "analyst", "meteo", "alpha", "mike", "zulu"}, names)

	for _, s := range list[:3] {
		assert.True(t, s.BuiltIn, s.Name)
	}
	assert.False(t, list[3].BuiltIn)
	assert.Equal(t, "local", list[3].Description)
	assert.True(t, list[4].Active)
}

func TestListProfilesWithBackendDown(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail("/api/geopol/profiles", testutil.Failure{StatusCode: http.StatusInternalServerError})

	list := e.mgr.ListProfiles(context.Background())
	require.Len(t, list, 3)
	assert.Equal(t, Default, list[0].Name)
}

func TestRestoreRemembered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.SetCurrentProfile(Meteo))

	p, ok := e.mgr.RestoreRemembered(ctx)
	require.True(t, ok)
	assert.Equal(t, Meteo, p.Name)
	assert.Equal(t, theme.Satellite, e.themes.ThemeName())
}

func TestRestoreRememberedFallsBackToDefault(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, ok := e.mgr.RestoreRemembered(ctx)
	require.True(t, ok)
	assert.Equal(t, Default, p.Name)

	require.NoError(t, e.store.SetCurrentProfile("vanished"))
	p, ok = e.mgr.RestoreRemembered(ctx)
	require.True(t, ok)
	assert.Equal(t, Default, p.Name)
	assert.True(t, e.controller(t, config.OverlayEntities).Enabled())
}

func TestSaveStateToBackend(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.controller(t, config.OverlaySDR).SetEnabled(ctx, true))

	p, err := e.mgr.SaveStateToBackend(ctx, "snapshot", "from live state")
	require.NoError(t, err)
	assert.Equal(t, "snapshot", p.Name)
	assert.Equal(t, "from live state", p.Description)
	assert.True(t, p.Layers[config.OverlaySDR].Enabled)

	_, onBackend := e.srv.Profile("snapshot")
	assert.True(t, onBackend)
	cached, err := e.store.LoadProfiles()
	require.NoError(t, err)
	assert.Contains(t, cached, "snapshot")

	_, err = e.mgr.SaveStateToBackend(ctx, Analyst, "")
	assert.ErrorIs(t, err, ErrBuiltIn)
}

func TestSaveStateToBackendFailure(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail("/api/geopol/profiles/from-state", testutil.Failure{Message: "state rejected"})

	_, err := e.mgr.SaveStateToBackend(context.Background(), "snapshot", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrBackend))
}

func writeProfileFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
