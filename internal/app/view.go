package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/geopol/geopol-go/internal/maphost"
	"github.com/geopol/geopol-go/internal/overlay"
	"github.com/geopol/geopol-go/internal/profile"
	"github.com/geopol/geopol-go/internal/theme"
)

// Layout constants
const (
	minWidth     = 80
	sidebarWidth = 38
	chromeLines  = 6
	defaultRows  = 20
)

// DirtyBadge marks a live state that differs from the active profile
const DirtyBadge = "● MODIFIED"

// View renders the application
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	t := m.themes.Current()
	inner := m.innerWidth()

	// Header
	sb.WriteString(m.renderHeader(t, inner))
	sb.WriteString("\n")

	// Main content area
	mapW, mapH := m.mapSize()
	mapLines := strings.Split(m.renderMap(t, mapW, mapH), "\n")

	var sidebarView string
	switch {
	case len(m.confirms) > 0:
		sidebarView = m.renderConfirmPanel(t)
	case m.viewMode == ViewHelp:
		sidebarView = m.renderHelpPanel(t)
	case m.viewMode == ViewProfiles:
		sidebarView = m.renderProfilesPanel(t)
	case m.viewMode == ViewPrompt:
		sidebarView = m.renderPromptPanel(t)
	default:
		sidebarView = m.renderControlPanel(t)
	}
	sidebarLines := strings.Split(sidebarView, "\n")

	border := t.BorderStyle()
	for i := 0; i < mapH; i++ {
		sidebarLine := ""
		if i < len(sidebarLines) {
			sidebarLine = sidebarLines[i]
		}
		sb.WriteString(border.Render("║"))
		sb.WriteString(mapLines[i])
		sb.WriteString(border.Render("│"))
		sb.WriteString(padRight(sidebarLine, sidebarWidth))
		sb.WriteString(border.Render("║"))
		sb.WriteString("\n")
	}

	// Status bar
	sb.WriteString(m.renderStatusBar(t, inner))
	sb.WriteString("\n")

	// Footer
	sb.WriteString(border.Render("╚" + strings.Repeat("═", inner) + "╝"))

	result := sb.String()

	// Store last rendered view for map captures
	m.lastRenderedView = result

	return result
}

func (m *Model) innerWidth() int {
	w := m.width
	if w < minWidth {
		w = minWidth
	}
	return w - 2
}

// mapSize returns the canvas size left after the sidebar and the chrome
func (m *Model) mapSize() (int, int) {
	w := m.innerWidth() - sidebarWidth - 1
	h := defaultRows
	if m.height > 0 {
		h = m.height - chromeLines
	}
	if h < 8 {
		h = 8
	}
	return w, h
}

func (m *Model) renderHeader(t *theme.Theme, inner int) string {
	border := t.BorderStyle()
	title := lipgloss.NewStyle().Foreground(t.PrimaryBright).Bold(true).Reverse(true)
	secondary := t.SecondaryStyle().Bold(true)
	textDim := t.TextDimStyle()
	borderDim := lipgloss.NewStyle().Foreground(t.BorderDim)

	var line strings.Builder
	line.WriteString(textDim.Render(" ░░ "))
	line.WriteString(title.Render(" GEOPOL MAP "))
	line.WriteString(textDim.Render(" ░░ "))
	line.WriteString(m.renderLiveness(t))
	line.WriteString(borderDim.Render(" │ "))

	name := m.profiles.ActiveName()
	if name == "" {
		name = "none"
	}
	line.WriteString(textDim.Render("PROFILE "))
	line.WriteString(secondary.Render(strings.ToUpper(name)))
	if m.profiles.Dirty() {
		line.WriteString(" ")
		line.WriteString(t.WarningStyle().Bold(true).Render(DirtyBadge))
	}

	var sb strings.Builder
	sb.WriteString(border.Render("╔" + strings.Repeat("═", inner) + "╗"))
	sb.WriteString("\n")
	sb.WriteString(border.Render("║"))
	sb.WriteString(padRight(line.String(), inner))
	sb.WriteString(border.Render("║"))
	sb.WriteString("\n")
	sb.WriteString(border.Render("╠" + strings.Repeat("═", inner-sidebarWidth-1) + "╤" + strings.Repeat("═", sidebarWidth) + "╣"))
	return sb.String()
}

func (m *Model) renderLiveness(t *theme.Theme) string {
	switch {
	case m.monitor == nil:
		return t.TextDimStyle().Render("○ STATUS OFF")
	case !m.checked:
		spin := m.spinners[m.frame%len(m.spinners)]
		return t.InfoStyle().Render(spin + " CHECKING")
	case m.liveness.Online:
		return t.SuccessStyle().Bold(true).Render("◉ ONLINE")
	default:
		return t.ErrorStyle().Bold(true).Render("○ OFFLINE")
	}
}

// renderMap draws the map host canvas with theme colours
func (m *Model) renderMap(t *theme.Theme, width, height int) string {
	canvas := m.host.Render(width, height)
	graticule := lipgloss.NewStyle().Foreground(t.Graticule)

	styleFor := func(c maphost.Cell) (lipgloss.Style, bool) {
		switch {
		case c.Char == ' ':
			return lipgloss.Style{}, false
		case c.Base:
			return graticule, true
		default:
			return lipgloss.NewStyle().Foreground(t.MarkerColor(c.Color)).Faint(c.Faint), true
		}
	}

	lines := make([]string, 0, height)
	for _, row := range canvas.Cells {
		var sb strings.Builder
		var run []rune
		var runCell maphost.Cell
		flush := func() {
			if len(run) == 0 {
				return
			}
			if style, ok := styleFor(runCell); ok {
				sb.WriteString(style.Render(string(run)))
			} else {
				sb.WriteString(string(run))
			}
			run = run[:0]
		}
		for _, cell := range row {
			if len(run) > 0 && !sameStyle(cell, runCell) {
				flush()
			}
			if len(run) == 0 {
				runCell = cell
			}
			run = append(run, cell.Char)
		}
		flush()
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

func sameStyle(a, b maphost.Cell) bool {
	if a.Char == ' ' || b.Char == ' ' {
		return a.Char == b.Char
	}
	if a.Base || b.Base {
		return a.Base == b.Base
	}
	return a.Color == b.Color && a.Faint == b.Faint
}

func panelTitle(t *theme.Theme, title string) string {
	border := t.BorderStyle()
	titleStyle := t.PrimaryBrightStyle().Bold(true)
	bar := strings.Repeat("═", sidebarWidth-4)

	var sb strings.Builder
	sb.WriteString(border.Render(" ╔" + bar + "╗"))
	sb.WriteString("\n")
	sb.WriteString(border.Render(" ║") + titleStyle.Render(center(title, sidebarWidth-4)) + border.Render("║"))
	sb.WriteString("\n")
	sb.WriteString(border.Render(" ╚" + bar + "╝"))
	sb.WriteString("\n")
	return sb.String()
}

func sectionRule(t *theme.Theme, title string) string {
	borderDim := lipgloss.NewStyle().Foreground(t.BorderDim)
	var sb strings.Builder
	if title != "" {
		sb.WriteString(t.SecondaryStyle().Bold(true).Render("  " + title))
		sb.WriteString("\n")
	}
	sb.WriteString(borderDim.Render("  " + strings.Repeat("─", sidebarWidth-4)))
	sb.WriteString("\n")
	return sb.String()
}

func (m *Model) renderControlPanel(t *theme.Theme) string {
	textStyle := t.TextStyle()
	textDim := t.TextDimStyle()
	keyStyle := t.PrimaryBrightStyle()

	var sb strings.Builder
	sb.WriteString(panelTitle(t, "OVERLAYS"))
	sb.WriteString("\n")
	sb.WriteString(sectionRule(t, "LAYERS"))

	for _, c := range m.Controls() {
		if c.Kind != KindToggle {
			continue
		}
		marker := textDim.Render("○")
		if c.Enabled {
			marker = t.SuccessStyle().Render("●")
		}
		sb.WriteString("  " + keyStyle.Render("["+c.Key+"]") + " " + marker + " " + textStyle.Render(fmt.Sprintf("%-14s", c.Label)))
		sb.WriteString(" " + phaseLabel(t, c.Phase))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(sectionRule(t, "PARAMETERS"))
	for _, c := range m.Controls() {
		if c.Kind == KindToggle {
			continue
		}
		sb.WriteString("  " + keyStyle.Render(fmt.Sprintf("[%3s]", c.Key)) + " " + textStyle.Render(fmt.Sprintf("%-14s", c.Label)))
		sb.WriteString(t.InfoStyle().Render(strings.ToUpper(c.Value)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(sectionRule(t, ""))
	sb.WriteString(textDim.Render("  [P] Profiles  [S] Save  [?] Help"))

	return sb.String()
}

func phaseLabel(t *theme.Theme, p overlay.Phase) string {
	switch p {
	case overlay.PhaseLoading:
		return t.InfoStyle().Render("loading")
	case overlay.PhaseDisplayed:
		return t.SuccessStyle().Render("live")
	case overlay.PhaseDisplayedStale:
		return t.WarningStyle().Render("stale")
	default:
		return ""
	}
}

func (m *Model) renderProfilesPanel(t *theme.Theme) string {
	textStyle := t.TextStyle()
	textDim := t.TextDimStyle()
	selectedStyle := t.PrimaryBrightStyle().Bold(true)

	var sb strings.Builder
	sb.WriteString(panelTitle(t, "PROFILES"))
	sb.WriteString("\n")
	sb.WriteString(sectionRule(t, "SAVED VIEWS"))

	if len(m.profileList) == 0 {
		sb.WriteString(textDim.Render("  Loading..."))
		sb.WriteString("\n")
	}
	for i, s := range m.profileList {
		isCursor := i == m.profileCursor

		prefix := "  "
		style := textStyle
		if isCursor {
			prefix = "▶ "
			style = selectedStyle
		}
		marker := textDim.Render("○")
		if s.Active {
			marker = t.SuccessStyle().Render("●")
		}

		name := truncate(s.Name, 14)
		tag := ""
		if s.BuiltIn {
			tag = "built-in"
		}
		sb.WriteString("  " + style.Render(prefix) + marker + " " + style.Render(fmt.Sprintf("%-14s", name)) + textDim.Render(" "+tag))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(sectionRule(t, ""))
	sb.WriteString(textDim.Render("  [↑/↓] Navigate  [Enter] Load"))
	sb.WriteString("\n")
	sb.WriteString(textDim.Render("  [S] Save  [D] Delete  [E] Export"))
	sb.WriteString("\n")
	sb.WriteString(textDim.Render("  [I] Import  [P/Esc] Close"))

	return sb.String()
}

func (m *Model) renderPromptPanel(t *theme.Theme) string {
	title := "SAVE PROFILE"
	hint := "Name for the current view"
	if m.prompt == promptImport {
		title = "IMPORT PROFILE"
		hint = "Profile file to import"
	}

	var sb strings.Builder
	sb.WriteString(panelTitle(t, title))
	sb.WriteString("\n")
	sb.WriteString(t.TextStyle().Render("  " + hint))
	sb.WriteString("\n\n")
	sb.WriteString("  " + m.input.View())
	sb.WriteString("\n\n")
	sb.WriteString(sectionRule(t, ""))
	sb.WriteString(t.TextDimStyle().Render("  [Enter] Confirm  [Esc] Cancel"))
	return sb.String()
}

func (m *Model) renderConfirmPanel(t *theme.Theme) string {
	var sb strings.Builder
	sb.WriteString(panelTitle(t, "CONFIRM"))
	sb.WriteString("\n")
	for _, line := range wrap(m.confirms[0].question, sidebarWidth-4) {
		sb.WriteString(t.WarningStyle().Bold(true).Render("  " + line))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(sectionRule(t, ""))
	sb.WriteString(t.TextDimStyle().Render("  [Y] Yes  [N/Esc] No"))
	return sb.String()
}

func (m *Model) renderHelpPanel(t *theme.Theme) string {
	keyStyle := t.PrimaryBrightStyle()
	textStyle := t.TextStyle()

	var sb strings.Builder
	sb.WriteString(panelTitle(t, "GEOPOL HELP"))

	sections := []struct {
		title string
		items [][]string
	}{
		{"MAP", [][]string{{"←↑↓→ hjkl", "Pan"}, {"+/-", "Zoom"}, {"T", "Cycle theme"}}},
		{"OVERLAYS", [][]string{{"1-4", "Toggle layer"}, {"[ ]", "Magnitude"}, {"W", "Weather metric"}, {"R", "Refresh all"}}},
		{"PROFILES", [][]string{{"P", "Profiles"}, {"S", "Save as"}, {"I", "Import"}, {"E", "Export active"}}},
		{"EXPORT", [][]string{{"X", "Markers CSV"}, {"C", "Capture map"}, {"Q", "Quit"}}},
	}

	for _, section := range sections {
		sb.WriteString(sectionRule(t, section.title))
		for _, item := range section.items {
			sb.WriteString("  " + keyStyle.Render(fmt.Sprintf("[%9s]", item[0])) + " " + textStyle.Render(item[1]))
			sb.WriteString("\n")
		}
	}
	sb.WriteString(t.TextDimStyle().Render("  Press any key to close"))

	return sb.String()
}

func (m *Model) renderStatusBar(t *theme.Theme, inner int) string {
	border := t.BorderStyle()
	borderDim := lipgloss.NewStyle().Foreground(t.BorderDim)
	textDim := t.TextDimStyle()
	secondary := t.SecondaryStyle()

	var line strings.Builder
	v := m.host.Viewport()
	_, maxZoom := m.host.ZoomBounds()
	line.WriteString(secondary.Render(fmt.Sprintf(" Z%d/%d ", v.Zoom, maxZoom)))
	line.WriteString(borderDim.Render("│"))
	line.WriteString(textDim.Render(fmt.Sprintf(" %7.2f,%8.2f ", v.Center.Lat, v.Center.Lng)))
	line.WriteString(borderDim.Render("│"))

	if m.checked && m.liveness.Online {
		line.WriteString(textDim.Render(fmt.Sprintf(" CACHE %d ", m.liveness.CacheSize)))
		line.WriteString(borderDim.Render("│"))
	}

	line.WriteString(textDim.Render(" " + m.themes.Current().Name + " "))
	line.WriteString(borderDim.Render("│"))

	if m.busy > 0 {
		spin := m.spinners[m.frame%len(m.spinners)]
		line.WriteString(t.InfoStyle().Render(" " + spin + " "))
		line.WriteString(borderDim.Render("│"))
	}

	line.WriteString(secondary.Render(" " + time.Now().Format("15:04:05") + " "))

	// Notification
	if msg := m.Notification(); msg != "" {
		style := t.InfoStyle().Bold(true)
		if m.notificationLevel == profile.LevelAlert {
			style = t.ErrorStyle().Bold(true)
		}
		line.WriteString(borderDim.Render("│"))
		room := inner - lipgloss.Width(line.String()) - 2
		line.WriteString(style.Render(" " + truncate(msg, max(room, 8)) + " "))
	}

	var sb strings.Builder
	sb.WriteString(border.Render("╟" + strings.Repeat("─", inner-sidebarWidth-1) + "┴" + strings.Repeat("─", sidebarWidth) + "╢"))
	sb.WriteString("\n")
	sb.WriteString(border.Render("║"))
	sb.WriteString(padRight(line.String(), inner))
	sb.WriteString(border.Render("║"))
	return sb.String()
}

// Helper functions

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func center(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	left := (width - w) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-w-left)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// wrap breaks s into lines of at most width runes on word boundaries
func wrap(s string, width int) []string {
	var lines []string
	var cur string
	for _, word := range strings.Fields(s) {
		switch {
		case cur == "":
			cur = word
		case len([]rune(cur))+1+len([]rune(word)) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
