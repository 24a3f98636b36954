// Package app provides the Bubble Tea application model for the geopol map
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/export"
	"github.com/geopol/geopol-go/internal/maphost"
	"github.com/geopol/geopol-go/internal/overlay"
	"github.com/geopol/geopol-go/internal/profile"
	"github.com/geopol/geopol-go/internal/status"
	"github.com/geopol/geopol-go/internal/theme"
)

// ViewMode represents the current view
type ViewMode int

const (
	ViewMap ViewMode = iota
	ViewHelp
	ViewProfiles
	ViewPrompt
)

// promptKind says what the text input is collecting
type promptKind int

const (
	promptSave promptKind = iota
	promptImport
)

// panFraction is the share of the visible span moved per arrow key
const panFraction = 0.25

// Notification display durations in seconds
const (
	infoDuration  = 3.0
	alertDuration = 6.0
)

// Deps are the components the model drives
type Deps struct {
	Config   *config.Config
	Host     *maphost.Host
	Overlays *overlay.Registry
	Profiles *profile.Manager
	Themes   *theme.Selector
	// Monitor is optional; nil hides the liveness indicator
	Monitor *status.Monitor
	Bridge  *Bridge
	// InitialProfile is applied at start instead of the remembered profile
	InitialProfile string
	Log            zerolog.Logger
}

// Model is the main application model
type Model struct {
	cfg      *config.Config
	host     *maphost.Host
	overlays *overlay.Registry
	profiles *profile.Manager
	themes   *theme.Selector
	monitor  *status.Monitor
	bridge   *Bridge
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	initialProfile string

	// UI state
	viewMode          ViewMode
	notification      string
	notificationLevel profile.Level
	notificationTime  float64
	width, height     int
	frame             int
	spinners          []string
	lastRenderedView  string
	busy              int

	// Liveness
	liveness status.Snapshot
	checked  bool

	// Profile panel
	profileList   []profile.Summary
	profileCursor int

	// Text prompt
	input      textinput.Model
	prompt     promptKind
	returnMode ViewMode

	// Confirmations from background operations, answered in arrival order
	confirms []confirmRequest

	quitting bool
}

// New creates the application model
func New(deps Deps) *Model {
	ctx, cancel := context.WithCancel(context.Background())

	ti := textinput.New()
	ti.CharLimit = 64
	ti.Width = 32

	bridge := deps.Bridge
	if bridge == nil {
		bridge = NewBridge()
	}
	themes := deps.Themes
	if themes == nil {
		themes = theme.NewSelector(deps.Config.Display.Theme)
	}

	return &Model{
		cfg:            deps.Config,
		host:           deps.Host,
		overlays:       deps.Overlays,
		profiles:       deps.Profiles,
		themes:         themes,
		monitor:        deps.Monitor,
		bridge:         bridge,
		log:            deps.Log,
		ctx:            ctx,
		cancel:         cancel,
		initialProfile: strings.TrimSpace(deps.InitialProfile),
		viewMode:       ViewMap,
		spinners:       []string{"◐", "◓", "◑", "◒"},
		input:          ti,
	}
}

// Init starts the liveness monitor and restores the starting profile
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(),
		m.bridge.listen(),
		m.restoreCmd(),
	}
	if m.monitor != nil {
		m.monitor.Start(m.ctx)
		cmds = append(cmds, statusCmd(m.monitor))
	}
	return tea.Batch(cmds...)
}

// tickMsg is sent on each animation tick
type tickMsg time.Time

// statusMsg carries a liveness snapshot
type statusMsg status.Snapshot

// profileRestoredMsg reports the outcome of the start-up profile
type profileRestoredMsg struct {
	name string
	ok   bool
}

// profilesMsg carries a fresh profile listing
type profilesMsg []profile.Summary

// opDoneMsg reports the end of a background operation
type opDoneMsg struct {
	note string
	err  error
	// relist refreshes the profile panel afterwards
	relist bool
}

func tickCmd() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func statusCmd(mon *status.Monitor) tea.Cmd {
	if mon == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-mon.Updates()
		if !ok {
			return nil
		}
		return statusMsg(snap)
	}
}

func (m *Model) restoreCmd() tea.Cmd {
	name := m.initialProfile
	return func() tea.Msg {
		var p *profile.Profile
		var ok bool
		if name != "" {
			p, ok = m.profiles.LoadProfile(m.ctx, name, true)
		} else {
			p, ok = m.profiles.RestoreRemembered(m.ctx)
		}
		if ok {
			name = p.Name
		}
		return profileRestoredMsg{name: name, ok: ok}
	}
}

// Update handles messages and updates state
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m.handleTick()

	case statusMsg:
		m.liveness = status.Snapshot(msg)
		m.checked = true
		return m, statusCmd(m.monitor)

	case confirmRequest:
		m.confirms = append(m.confirms, msg)
		return m, m.bridge.listen()

	case noticeMsg:
		m.notifyLevel(msg.level, msg.text)
		return m, m.bridge.listen()

	case overlayUpdateMsg:
		m.handleOverlayUpdate(overlay.Update(msg))
		return m, m.bridge.listen()

	case profileEventMsg:
		return m, tea.Batch(m.bridge.listen(), m.handleProfileEvent(profile.Event(msg)))

	case profileRestoredMsg:
		if msg.ok {
			m.log.Info().Str("profile", msg.name).Msg("Profile restored")
		}
		return m, nil

	case profilesMsg:
		m.profileList = msg
		if m.profileCursor >= len(m.profileList) {
			m.profileCursor = max(0, len(m.profileList)-1)
		}
		return m, nil

	case opDoneMsg:
		m.busy = max(0, m.busy-1)
		if msg.err != nil {
			m.notifyLevel(profile.LevelAlert, msg.err.Error())
		} else if msg.note != "" {
			m.notify(msg.note)
		}
		if msg.relist && m.viewMode == ViewProfiles {
			return m, m.listProfilesCmd()
		}
		return m, nil
	}

	if m.viewMode == ViewPrompt {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleOverlayUpdate(u overlay.Update) {
	if u.Err == nil || errors.Is(u.Err, context.Canceled) {
		return
	}
	m.notifyLevel(profile.LevelAlert, fmt.Sprintf("%s: %v", overlayLabel(u.Overlay), u.Err))
}

func (m *Model) handleProfileEvent(ev profile.Event) tea.Cmd {
	switch ev.Type {
	case profile.EventApplied:
		m.notify("Profile: " + strings.ToUpper(ev.Profile))
	case profile.EventSaved, profile.EventDeleted:
		if m.viewMode == ViewProfiles {
			return m.listProfilesCmd()
		}
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, m.quit()
	}

	// A pending confirmation captures every key
	if len(m.confirms) > 0 {
		return m.handleConfirmKey(key)
	}

	switch m.viewMode {
	case ViewPrompt:
		return m.handlePromptKey(msg)
	case ViewHelp:
		m.viewMode = ViewMap
		return m, nil
	case ViewProfiles:
		return m.handleProfilesKey(key)
	default:
		return m.handleMapKey(key)
	}
}

func (m *Model) handleConfirmKey(key string) (tea.Model, tea.Cmd) {
	var answer bool
	switch key {
	case "y", "Y", "enter":
		answer = true
	case "n", "N", "esc":
		answer = false
	default:
		return m, nil
	}
	m.confirms[0].reply <- answer
	m.confirms = m.confirms[1:]
	return m, nil
}

func (m *Model) handleMapKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "Q":
		return m, m.quit()
	case "up", "k":
		m.host.PanBy(0, panFraction)
	case "down", "j":
		m.host.PanBy(0, -panFraction)
	case "left", "h":
		m.host.PanBy(-panFraction, 0)
	case "right", "l":
		m.host.PanBy(panFraction, 0)
	case "+", "=":
		m.zoom(1)
	case "-", "_":
		m.zoom(-1)
	case "1", "2", "3", "4":
		if c, ok := toggleForKey(key); ok {
			return m, m.toggleCmd(c)
		}
	case "[":
		return m, m.magnitudeCmd(-1)
	case "]":
		return m, m.magnitudeCmd(1)
	case "w", "W":
		return m, m.metricCmd()
	case "r", "R":
		return m, m.refreshCmd()
	case "t", "T":
		m.cycleTheme()
	case "p", "P":
		m.viewMode = ViewProfiles
		m.profileCursor = 0
		return m, m.listProfilesCmd()
	case "s", "S":
		return m, m.openPrompt(promptSave, "")
	case "i", "I":
		return m, m.openPrompt(promptImport, "")
	case "e", "E":
		if name := m.profiles.ActiveName(); name != "" {
			return m, m.exportCmd(name)
		}
		m.notifyLevel(profile.LevelAlert, "No active profile to export")
	case "x", "X":
		m.exportMarkers()
	case "c", "C":
		m.captureMap()
	case "?":
		m.viewMode = ViewHelp
	}
	return m, nil
}

func (m *Model) handleProfilesKey(key string) (tea.Model, tea.Cmd) {
	n := len(m.profileList)
	selected := func() (profile.Summary, bool) {
		if n == 0 || m.profileCursor >= n {
			return profile.Summary{}, false
		}
		return m.profileList[m.profileCursor], true
	}

	switch key {
	case "q", "Q":
		return m, m.quit()
	case "p", "P", "esc":
		m.viewMode = ViewMap
	case "up", "k":
		if n > 0 {
			m.profileCursor = (m.profileCursor - 1 + n) % n
		}
	case "down", "j":
		if n > 0 {
			m.profileCursor = (m.profileCursor + 1) % n
		}
	case "enter", " ":
		if s, ok := selected(); ok {
			return m, m.loadCmd(s.Name)
		}
	case "d", "D", "delete":
		if s, ok := selected(); ok {
			return m, m.deleteCmd(s.Name)
		}
	case "e", "E":
		if s, ok := selected(); ok {
			return m, m.exportCmd(s.Name)
		}
	case "s", "S":
		name := ""
		if s, ok := selected(); ok && !s.BuiltIn {
			name = s.Name
		}
		return m, m.openPrompt(promptSave, name)
	case "i", "I":
		return m, m.openPrompt(promptImport, "")
	}
	return m, nil
}

func (m *Model) openPrompt(kind promptKind, value string) tea.Cmd {
	m.prompt = kind
	m.returnMode = m.viewMode
	m.viewMode = ViewPrompt
	switch kind {
	case promptSave:
		m.input.Placeholder = "profile name"
		m.input.CharLimit = 64
	case promptImport:
		m.input.Placeholder = "path/to/profile.json"
		m.input.CharLimit = 512
	}
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) closePrompt() {
	m.input.Blur()
	m.input.SetValue("")
	m.viewMode = m.returnMode
}

func (m *Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closePrompt()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		kind := m.prompt
		m.closePrompt()
		if value == "" {
			return m, nil
		}
		if kind == promptImport {
			return m, m.importCmd(value)
		}
		return m, m.saveCmd(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleTick() (tea.Model, tea.Cmd) {
	m.frame++

	// Notification timer
	if m.notificationTime > 0 {
		m.notificationTime -= 0.15
		if m.notificationTime <= 0 {
			m.notification = ""
		}
	}

	if m.quitting {
		return m, nil
	}
	return m, tickCmd()
}

// --- Background operations ---

// run wraps fn as a command counted in the busy indicator
func (m *Model) run(fn func() opDoneMsg) tea.Cmd {
	m.busy++
	return func() tea.Msg {
		return fn()
	}
}

func (m *Model) toggleCmd(c Control) tea.Cmd {
	ctrl, ok := m.overlays.Get(c.Overlay)
	if !ok {
		return nil
	}
	return m.run(func() opDoneMsg {
		enable, err := ctrl.Toggle(m.ctx)
		m.profiles.DetectDirtyState()
		if err != nil {
			m.log.Warn().Err(err).Str("control", c.ID).Msg("Overlay toggle failed")
			return opDoneMsg{}
		}
		state := "OFF"
		if enable {
			state = "ON"
		}
		return opDoneMsg{note: c.Label + ": " + state}
	})
}

func (m *Model) magnitudeCmd(steps int) tea.Cmd {
	ctrl, ok := m.overlays.Get(config.OverlayEarthquakes)
	if !ok {
		return nil
	}
	current := overlay.DefaultMinMagnitude
	if v, ok := ctrl.Parameter(overlay.ParamMinMagnitude); ok {
		if f, ok := v.(float64); ok {
			current = f
		}
	}
	next := stepMagnitude(current, steps)
	if next == current {
		return nil
	}
	return m.run(func() opDoneMsg {
		err := ctrl.SetParameter(m.ctx, overlay.ParamMinMagnitude, next)
		m.profiles.DetectDirtyState()
		if err != nil {
			m.log.Warn().Err(err).Float64("magnitude", next).Msg("Magnitude change failed")
			return opDoneMsg{}
		}
		return opDoneMsg{note: "Min magnitude: " + formatMagnitude(next)}
	})
}

func (m *Model) metricCmd() tea.Cmd {
	ctrl, ok := m.overlays.Get(config.OverlayWeather)
	if !ok {
		return nil
	}
	current, _ := ctrl.Parameter(overlay.ParamMetric)
	name, _ := current.(string)
	next := nextMetric(name)
	return m.run(func() opDoneMsg {
		err := ctrl.SetParameter(m.ctx, overlay.ParamMetric, next)
		m.profiles.DetectDirtyState()
		if err != nil {
			m.log.Warn().Err(err).Str("metric", next).Msg("Metric change failed")
			return opDoneMsg{}
		}
		return opDoneMsg{note: "Metric: " + strings.ToUpper(next)}
	})
}

func (m *Model) refreshCmd() tea.Cmd {
	return m.run(func() opDoneMsg {
		if err := m.overlays.RefreshAll(m.ctx); err != nil {
			m.log.Warn().Err(err).Msg("Refresh failed")
			return opDoneMsg{}
		}
		return opDoneMsg{note: "Overlays refreshed"}
	})
}

func (m *Model) listProfilesCmd() tea.Cmd {
	return func() tea.Msg {
		return profilesMsg(m.profiles.ListProfiles(m.ctx))
	}
}

func (m *Model) loadCmd(name string) tea.Cmd {
	return m.run(func() opDoneMsg {
		m.profiles.LoadProfile(m.ctx, name, true)
		return opDoneMsg{relist: true}
	})
}

func (m *Model) saveCmd(name string) tea.Cmd {
	return m.run(func() opDoneMsg {
		m.profiles.SaveCurrentAsProfile(m.ctx, name, "")
		return opDoneMsg{relist: true}
	})
}

func (m *Model) deleteCmd(name string) tea.Cmd {
	return m.run(func() opDoneMsg {
		m.profiles.DeleteProfile(m.ctx, name)
		return opDoneMsg{relist: true}
	})
}

func (m *Model) exportCmd(name string) tea.Cmd {
	return m.run(func() opDoneMsg {
		path, err := m.profiles.ExportProfile(m.ctx, name, m.cfg.Export.Directory)
		if err != nil {
			return opDoneMsg{err: fmt.Errorf("export failed: %w", err)}
		}
		return opDoneMsg{note: "Exported: " + path}
	})
}

func (m *Model) importCmd(path string) tea.Cmd {
	return m.run(func() opDoneMsg {
		m.profiles.ImportProfileFromFile(m.ctx, path, "")
		return opDoneMsg{relist: true}
	})
}

// --- Synchronous actions ---

func (m *Model) cycleTheme() {
	names := theme.List()
	current := m.themes.ThemeName()
	next := names[0]
	for i, n := range names {
		if n == current {
			next = names[(i+1)%len(names)]
			break
		}
	}
	if err := m.themes.SetTheme(next); err != nil {
		m.notifyLevel(profile.LevelAlert, err.Error())
		return
	}
	m.profiles.DetectDirtyState()
	m.notify("Theme: " + m.themes.Current().Name)
}

func (m *Model) exportMarkers() {
	var sets []export.MarkerSet
	for _, c := range m.overlays.List() {
		if !c.Enabled() {
			continue
		}
		sets = append(sets, export.MarkerSet{Overlay: c.ID(), Markers: c.Markers()})
	}
	if len(sets) == 0 {
		m.notifyLevel(profile.LevelAlert, "No overlays enabled")
		return
	}
	path, err := export.ExportMarkers(sets, m.host.Viewport().Center, m.cfg.Export.Directory)
	if err != nil {
		m.log.Error().Err(err).Msg("Marker export failed")
		m.notifyLevel(profile.LevelAlert, "Export failed: "+err.Error())
		return
	}
	m.notify("Saved: " + path)
}

func (m *Model) captureMap() {
	content := m.lastRenderedView
	if content == "" {
		content = m.View()
	}
	path, err := export.CaptureScreen(content, m.cfg.Export.Directory)
	if err != nil {
		m.log.Error().Err(err).Msg("Map capture failed")
		m.notifyLevel(profile.LevelAlert, "Capture failed: "+err.Error())
		return
	}
	m.notify("Saved: " + path)
}

// zoom steps the map zoom, noting when a bound stops it
func (m *Model) zoom(delta int) {
	before := m.host.Viewport().Zoom
	if m.host.ZoomBy(delta).Zoom != before {
		return
	}
	lo, hi := m.host.ZoomBounds()
	if delta > 0 {
		m.notify(fmt.Sprintf("Maximum zoom %d", hi))
	} else {
		m.notify(fmt.Sprintf("Minimum zoom %d", lo))
	}
}

func (m *Model) quit() tea.Cmd {
	if !m.quitting {
		m.quitting = true
		for _, req := range m.confirms {
			req.reply <- false
		}
		m.confirms = nil
		m.bridge.Close()
		m.cancel()
		m.overlays.StopAll()
		if m.monitor != nil {
			m.monitor.Stop()
		}
	}
	return tea.Quit
}

func (m *Model) notify(message string) {
	m.notifyLevel(profile.LevelInfo, message)
}

func (m *Model) notifyLevel(level profile.Level, message string) {
	m.notification = message
	m.notificationLevel = level
	m.notificationTime = infoDuration
	if level == profile.LevelAlert {
		m.notificationTime = alertDuration
	}
}

// --- Accessors ---

// ViewMode returns the current view mode
func (m *Model) ViewMode() ViewMode {
	return m.viewMode
}

// Notification returns the visible notification, or ""
func (m *Model) Notification() string {
	if m.notificationTime <= 0 {
		return ""
	}
	return m.notification
}

// Pending returns the question awaiting confirmation, or ""
func (m *Model) Pending() string {
	if len(m.confirms) == 0 {
		return ""
	}
	return m.confirms[0].question
}

// Controls returns the control panel state in display order
func (m *Model) Controls() []ControlState {
	out := make([]ControlState, 0, len(controls))
	for _, c := range controls {
		st := ControlState{Control: c}
		ctrl, ok := m.overlays.Get(c.Overlay)
		if !ok {
			out = append(out, st)
			continue
		}
		st.Enabled = ctrl.Enabled()
		st.Phase = ctrl.Phase()
		switch c.Kind {
		case KindToggle:
			st.Err = ctrl.LastError()
			st.Value = "OFF"
			if st.Enabled {
				st.Value = "ON"
			}
		case KindSlider:
			if v, ok := ctrl.Parameter(overlay.ParamMinMagnitude); ok {
				if f, ok := v.(float64); ok {
					st.Value = formatMagnitude(f)
				}
			}
		case KindSelect:
			if v, ok := ctrl.Parameter(overlay.ParamMetric); ok {
				st.Value = fmt.Sprint(v)
			}
		}
		out = append(out, st)
	}
	return out
}

// Control returns the state of the control with the given id
func (m *Model) Control(id string) (ControlState, bool) {
	for _, c := range m.Controls() {
		if c.ID == id {
			return c, true
		}
	}
	return ControlState{}, false
}

func overlayLabel(id string) string {
	for _, c := range controls {
		if c.Kind == KindToggle && c.Overlay == id {
			return c.Label
		}
	}
	return id
}
