// Package theme provides the color schemes of the geopol map display
package theme

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme names, matching the profile theme values
const (
	Light     = "light"
	Dark      = "dark"
	Satellite = "satellite"
)

// Default is the theme used when none or an unknown one is requested
const Default = Dark

// Theme defines a color scheme for the map display
type Theme struct {
	Name        string
	Description string

	// Primary colors
	Primary       lipgloss.Color
	PrimaryBright lipgloss.Color
	Secondary     lipgloss.Color

	// Status colors
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	// UI elements
	Border     lipgloss.Color
	BorderDim  lipgloss.Color
	Text       lipgloss.Color
	TextDim    lipgloss.Color
	Background lipgloss.Color

	// Map specific
	Graticule lipgloss.Color
	Accent    lipgloss.Color
	Muted     lipgloss.Color
}

// order is the display order of themes
var order = []string{Light, Dark, Satellite}

// themes contains all available theme definitions
var themes = map[string]*Theme{
	Light: {
		Name:          "Light",
		Description:   "Paper map on a light terminal",
		Primary:       lipgloss.Color("25"),  // blue
		PrimaryBright: lipgloss.Color("27"),  // bright blue
		Secondary:     lipgloss.Color("30"),  // teal
		Success:       lipgloss.Color("28"),  // green
		Warning:       lipgloss.Color("166"), // orange
		Error:         lipgloss.Color("160"), // red
		Info:          lipgloss.Color("31"),  // steel blue
		Border:        lipgloss.Color("245"), // grey
		BorderDim:     lipgloss.Color("250"), // light grey
		Text:          lipgloss.Color("235"), // near black
		TextDim:       lipgloss.Color("243"), // grey
		Background:    lipgloss.Color("255"), // white
		Graticule:     lipgloss.Color("252"),
		Accent:        lipgloss.Color("91"), // purple
		Muted:         lipgloss.Color("247"),
	},
	Dark: {
		Name:          "Dark",
		Description:   "Operations room display",
		Primary:       lipgloss.Color("39"),  // deep sky blue
		PrimaryBright: lipgloss.Color("45"),  // turquoise
		Secondary:     lipgloss.Color("37"),  // cyan
		Success:       lipgloss.Color("46"),  // bright green
		Warning:       lipgloss.Color("214"), // orange
		Error:         lipgloss.Color("196"), // bright red
		Info:          lipgloss.Color("51"),  // bright cyan
		Border:        lipgloss.Color("240"), // dark grey
		BorderDim:     lipgloss.Color("236"),
		Text:          lipgloss.Color("252"), // light grey
		TextDim:       lipgloss.Color("244"),
		Background:    lipgloss.Color("0"), // black
		Graticule:     lipgloss.Color("238"),
		Accent:        lipgloss.Color("201"), // magenta
		Muted:         lipgloss.Color("242"),
	},
	Satellite: {
		Name:          "Satellite",
		Description:   "Imagery palette with earth tones",
		Primary:       lipgloss.Color("#7FB069"),
		PrimaryBright: lipgloss.Color("#B8E986"),
		Secondary:     lipgloss.Color("#4A90A4"),
		Success:       lipgloss.Color("#7FB069"),
		Warning:       lipgloss.Color("#F4A259"),
		Error:         lipgloss.Color("#E63946"),
		Info:          lipgloss.Color("#8ECAE6"),
		Border:        lipgloss.Color("#5C4D3C"),
		BorderDim:     lipgloss.Color("#3B3024"),
		Text:          lipgloss.Color("#EDE6D6"),
		TextDim:       lipgloss.Color("#A89F91"),
		Background:    lipgloss.Color("#1B2A1E"),
		Graticule:     lipgloss.Color("#3D5A40"),
		Accent:        lipgloss.Color("#FFD166"),
		Muted:         lipgloss.Color("#6B705C"),
	},
}

// Get returns a theme by name, defaults to dark if not found
func Get(name string) *Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes[Default]
}

// Valid reports whether name is a known theme
func Valid(name string) bool {
	_, ok := themes[name]
	return ok
}

// List returns all available theme names
func List() []string {
	names := make([]string, len(order))
	copy(names, order)
	return names
}

// ThemeInfo contains theme metadata for display
type ThemeInfo struct {
	Key         string
	Name        string
	Description string
}

// GetInfo returns information about all themes
func GetInfo() []ThemeInfo {
	info := make([]ThemeInfo, 0, len(order))
	for _, key := range order {
		t := themes[key]
		info = append(info, ThemeInfo{
			Key:         key,
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return info
}

// MarkerColor resolves a marker color role to a theme color
func (t *Theme) MarkerColor(role string) lipgloss.Color {
	switch role {
	case "critical":
		return t.Error
	case "warning":
		return t.Warning
	case "info":
		return t.Info
	case "ok":
		return t.Success
	case "muted":
		return t.Muted
	case "accent":
		return t.Accent
	default:
		return t.Text
	}
}

// Style helpers for creating lipgloss styles

// PrimaryStyle returns a style using the primary color
func (t *Theme) PrimaryStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Primary)
}

// PrimaryBrightStyle returns a style using the bright primary color
func (t *Theme) PrimaryBrightStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.PrimaryBright)
}

// SecondaryStyle returns a style using the secondary color
func (t *Theme) SecondaryStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Secondary)
}

// BorderStyle returns a style using the border color
func (t *Theme) BorderStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Border)
}

// TextStyle returns a style using the text color
func (t *Theme) TextStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Text)
}

// TextDimStyle returns a style using the dim text color
func (t *Theme) TextDimStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.TextDim)
}

// SuccessStyle returns a style using the success color
func (t *Theme) SuccessStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success)
}

// WarningStyle returns a style using the warning color
func (t *Theme) WarningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning)
}

// ErrorStyle returns a style using the error color
func (t *Theme) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error)
}

// InfoStyle returns a style using the info color
func (t *Theme) InfoStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Info)
}

// Selector holds the active theme. It is safe for concurrent use.
type Selector struct {
	mu       sync.RWMutex
	current  string
	onChange func(name string)
}

// NewSelector creates a selector starting on name (or the default theme)
func NewSelector(name string) *Selector {
	if !Valid(name) {
		name = Default
	}
	return &Selector{current: name}
}

// OnChange registers a callback invoked after the theme changes
func (s *Selector) OnChange(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SetTheme switches the active theme
func (s *Selector) SetTheme(name string) error {
	if !Valid(name) {
		return fmt.Errorf("unknown theme %q", name)
	}
	s.mu.Lock()
	changed := s.current != name
	s.current = name
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn(name)
	}
	return nil
}

// ThemeName returns the active theme name
func (s *Selector) ThemeName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Current returns the active theme
func (s *Selector) Current() *Theme {
	return Get(s.ThemeName())
}
