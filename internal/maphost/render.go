package maphost

import (
	"math"
	"strings"

	"github.com/geopol/geopol-go/internal/geo"
)

// worldWidth is the circumference of the web mercator plane in meters
const worldWidth = 2 * 20037508.342789244

// Cell is one character of the rendered map
type Cell struct {
	Char  rune
	Color string
	Faint bool
	Base  bool
}

// Canvas is a rendered character grid
type Canvas struct {
	Width  int
	Height int
	Cells  [][]Cell
}

// NewCanvas creates a blank canvas
func NewCanvas(width, height int) *Canvas {
	cells := make([][]Cell, height)
	for y := range cells {
		cells[y] = make([]Cell, width)
		for x := range cells[y] {
			cells[y][x] = Cell{Char: ' '}
		}
	}
	return &Canvas{Width: width, Height: height, Cells: cells}
}

func (c *Canvas) set(x, y int, cell Cell) {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return
	}
	c.Cells[y][x] = cell
}

// At returns the cell at x, y
func (c *Canvas) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return Cell{Char: ' '}
	}
	return c.Cells[y][x]
}

// String returns the canvas as plain text
func (c *Canvas) String() string {
	var sb strings.Builder
	for y, row := range c.Cells {
		for _, cell := range row {
			sb.WriteRune(cell.Char)
		}
		if y < len(c.Cells)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Count returns how many cells hold the given character
func (c *Canvas) Count(ch rune) int {
	n := 0
	for _, row := range c.Cells {
		for _, cell := range row {
			if cell.Char == ch {
				n++
			}
		}
	}
	return n
}

// projector maps coordinates to canvas cells around the viewport centre
type projector struct {
	cx, cy       float64
	metersPerCol float64
	metersPerRow float64
	width        int
	height       int
}

func newProjector(v Viewport, width, height int) projector {
	cx, cy := geo.ToMercator(v.Center)
	scale := math.Pow(2, float64(v.Zoom-1))
	perCol := worldWidth / (float64(width) * scale)
	return projector{
		cx:           cx,
		cy:           cy,
		metersPerCol: perCol,
		metersPerRow: perCol * 2, // character cells are about twice as tall as wide
		width:        width,
		height:       height,
	}
}

func (p projector) toCell(ll geo.LatLng) (int, int) {
	x, y := geo.ToMercator(ll)
	dx := x - p.cx
	// wrap across the antimeridian towards the centre
	if dx > worldWidth/2 {
		dx -= worldWidth
	} else if dx < -worldWidth/2 {
		dx += worldWidth
	}
	col := float64(p.width)/2 + dx/p.metersPerCol
	row := float64(p.height)/2 - (y-p.cy)/p.metersPerRow
	return int(math.Floor(col)), int(math.Floor(row))
}

func (p projector) colLng(col int) float64 {
	x := p.cx + (float64(col)+0.5-float64(p.width)/2)*p.metersPerCol
	return geo.FromMercator(x, p.cy).Lng
}

func (p projector) rowLat(row int) float64 {
	y := p.cy - (float64(row)+0.5-float64(p.height)/2)*p.metersPerRow
	y = math.Max(-worldWidth/2, math.Min(worldWidth/2, y))
	return geo.FromMercator(p.cx, y).Lat
}

func graticuleStep(zoom int) float64 {
	switch {
	case zoom <= 2:
		return 30
	case zoom <= 4:
		return 10
	case zoom <= 6:
		return 5
	default:
		return 1
	}
}

// Render draws the base layer and every attached layer group, lowest
// pane z-index first, onto a canvas of the given size.
func (h *Host) Render(width, height int) *Canvas {
	canvas := NewCanvas(width, height)
	if width <= 0 || height <= 0 {
		return canvas
	}

	v := h.Viewport()
	proj := newProjector(v, width, height)

	if h.HasBaseLayer() {
		drawGraticule(canvas, proj, graticuleStep(v.Zoom))
	}

	for _, g := range h.Attached() {
		opacity := g.Opacity()
		if opacity <= 0 {
			continue
		}
		faint := opacity < 0.5
		for _, m := range g.Markers() {
			drawMarker(canvas, proj, m, faint)
		}
	}
	return canvas
}

func drawGraticule(c *Canvas, p projector, step float64) {
	vertical := make([]bool, c.Width)
	for col := 1; col < c.Width; col++ {
		if math.Floor(p.colLng(col-1)/step) != math.Floor(p.colLng(col)/step) {
			vertical[col] = true
		}
	}
	horizontal := make([]bool, c.Height)
	for row := 1; row < c.Height; row++ {
		if math.Floor(p.rowLat(row-1)/step) != math.Floor(p.rowLat(row)/step) {
			horizontal[row] = true
		}
	}

	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			switch {
			case vertical[x] && horizontal[y]:
				c.set(x, y, Cell{Char: '┼', Base: true})
			case vertical[x]:
				c.set(x, y, Cell{Char: '┊', Base: true})
			case horizontal[y]:
				c.set(x, y, Cell{Char: '┈', Base: true})
			}
		}
	}
}

func drawMarker(c *Canvas, p projector, m Marker, faint bool) {
	for _, path := range m.Paths {
		for i := 0; i < len(path)-1; i++ {
			x1, y1 := p.toCell(path[i])
			x2, y2 := p.toCell(path[i+1])
			// skip segments entirely off screen
			if (x1 < 0 && x2 < 0) || (y1 < 0 && y2 < 0) ||
				(x1 >= c.Width && x2 >= c.Width) || (y1 >= c.Height && y2 >= c.Height) {
				continue
			}
			for _, pt := range geo.BresenhamLine(x1, y1, x2, y2) {
				c.set(pt[0], pt[1], Cell{Char: '·', Color: m.Color, Faint: faint})
			}
		}
	}

	label := m.Label
	if label == 0 {
		label = '•'
	}
	x, y := p.toCell(m.Position)
	c.set(x, y, Cell{Char: label, Color: m.Color, Faint: faint})
}
