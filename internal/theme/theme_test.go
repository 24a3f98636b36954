package theme

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestGet_ValidTheme(t *testing.T) {
	for _, name := range []string{Light, Dark, Satellite} {
		t.Run(name, func(t *testing.T) {
			theme := Get(name)
			if theme == nil {
				t.Fatalf("Get(%q) returned nil", name)
			}
			if theme.Name == "" {
				t.Errorf("Theme %q has empty Name", name)
			}
			if theme.Description == "" {
				t.Errorf("Theme %q has empty Description", name)
			}
		})
	}
}

func TestGet_InvalidTheme(t *testing.T) {
	theme := Get("nonexistent")
	if theme == nil {
		t.Fatal("Get should return default theme for invalid name")
	}
	if theme != Get(Dark) {
		t.Error("Invalid theme name should return dark theme")
	}
	if Get("") != Get(Dark) {
		t.Error("Empty theme name should return dark theme")
	}
}

func TestValid(t *testing.T) {
	for _, name := range List() {
		if !Valid(name) {
			t.Errorf("Valid(%q) = false", name)
		}
	}
	if Valid("classic") {
		t.Error("Valid(classic) should be false")
	}
}

func TestList(t *testing.T) {
	list := List()
	want := []string{"light", "dark", "satellite"}
	if len(list) != len(want) {
		t.Fatalf("List() returned %d themes, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, list[i], want[i])
		}
	}

	list[0] = "mutated"
	if List()[0] != Light {
		t.Error("List should return a copy")
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if len(info) != 3 {
		t.Fatalf("GetInfo() returned %d entries, want 3", len(info))
	}
	for _, i := range info {
		if i.Key == "" || i.Name == "" || i.Description == "" {
			t.Errorf("incomplete info: %+v", i)
		}
	}
}

func TestAllThemesHaveColors(t *testing.T) {
	for _, name := range List() {
		theme := Get(name)
		colors := map[string]lipgloss.Color{
			"Primary":    theme.Primary,
			"Success":    theme.Success,
			"Warning":    theme.Warning,
			"Error":      theme.Error,
			"Info":       theme.Info,
			"Border":     theme.Border,
			"Text":       theme.Text,
			"TextDim":    theme.TextDim,
			"Background": theme.Background,
			"Graticule":  theme.Graticule,
			"Accent":     theme.Accent,
			"Muted":      theme.Muted,
		}
		for field, c := range colors {
			if c == "" {
				t.Errorf("theme %q has empty %s", name, field)
			}
		}
	}
}

func TestMarkerColor(t *testing.T) {
	th := Get(Dark)
	tests := map[string]lipgloss.Color{
		"critical": th.Error,
		"warning":  th.Warning,
		"info":     th.Info,
		"ok":       th.Success,
		"muted":    th.Muted,
		"accent":   th.Accent,
		"":         th.Text,
	}
	for role, want := range tests {
		if got := th.MarkerColor(role); got != want {
			t.Errorf("MarkerColor(%q) = %v, want %v", role, got, want)
		}
	}
}

func TestStyles(t *testing.T) {
	th := Get(Light)
	styles := []lipgloss.Style{
		th.PrimaryStyle(), th.PrimaryBrightStyle(), th.SecondaryStyle(), th.BorderStyle(),
		th.TextStyle(), th.TextDimStyle(), th.SuccessStyle(), th.WarningStyle(),
		th.ErrorStyle(), th.InfoStyle(),
	}
	for i, s := range styles {
		if s.Render("x") == "" {
			t.Errorf("style %d rendered empty output", i)
		}
	}
}

func TestSelector(t *testing.T) {
	s := NewSelector("bogus")
	if s.ThemeName() != Default {
		t.Fatalf("NewSelector(bogus) = %q, want %q", s.ThemeName(), Default)
	}

	var changes []string
	s.OnChange(func(name string) { changes = append(changes, name) })

	if err := s.SetTheme(Satellite); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if err := s.SetTheme(Satellite); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if err := s.SetTheme("neon"); err == nil {
		t.Error("SetTheme(neon) should fail")
	}

	if s.Current() != Get(Satellite) {
		t.Error("Current should be satellite")
	}
	if len(changes) != 1 || changes[0] != Satellite {
		t.Errorf("changes = %v, want [satellite]", changes)
	}
}
