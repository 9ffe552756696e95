// Package layout computes element arrangements for the canvas. All
// functions are pure: they read elements, return placements, and never
// touch the store. Callers submit the returned geometries back through
// the tool endpoint as ordinary update commands, so arranged positions
// flow through the same sequencing and delivery path as any other
// mutation.
//
// Arrange is deterministic for identical inputs — element input order
// decides fill order for every strategy.
package layout

import (
	"fmt"
	"math"

	"github.com/hazyhaar/canvasd/canvas"
)

// Strategy names an arrangement algorithm.
type Strategy string

const (
	StrategyGrid         Strategy = "grid"
	StrategyStack        Strategy = "stack"
	StrategyFlow         Strategy = "flow"
	StrategyHierarchical Strategy = "hierarchical"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyGrid, StrategyStack, StrategyFlow, StrategyHierarchical:
		return true
	}
	return false
}

// Params tunes an arrangement.
type Params struct {
	// OriginX/OriginY anchor the top-left of the arrangement.
	OriginX float64 `json:"originX"`
	OriginY float64 `json:"originY"`
	// Columns overrides the grid column count. 0 = floor(sqrt(n)).
	Columns int `json:"columns,omitempty"`
	// Unit is the grid unit every coordinate snaps to. Default: 8.
	Unit float64 `json:"unit,omitempty"`
	// Spacing is the gap between adjacent elements. Default: 16.
	Spacing float64 `json:"spacing,omitempty"`
	// MaxWidth is the wrap width for the flow strategy. Default: 1200.
	MaxWidth float64 `json:"maxWidth,omitempty"`
	// Indent is the child offset for the hierarchical strategy.
	// Default: 2 * Spacing.
	Indent float64 `json:"indent,omitempty"`
}

func (p *Params) defaults() {
	if p.Unit <= 0 {
		p.Unit = 8
	}
	if p.Spacing <= 0 {
		p.Spacing = 16
	}
	if p.MaxWidth <= 0 {
		p.MaxWidth = 1200
	}
	if p.Indent <= 0 {
		p.Indent = 2 * p.Spacing
	}
}

// Placement is the new geometry computed for one element.
type Placement struct {
	ID       string          `json:"id"`
	Geometry canvas.Geometry `json:"geometry"`
}

// Arrange computes new positions for elements under the given strategy.
// Sizes are preserved; only positions change, and every coordinate is
// snapped to the grid unit.
func Arrange(elements []canvas.Element, strategy Strategy, p Params) ([]Placement, error) {
	p.defaults()
	if len(elements) == 0 {
		return nil, nil
	}
	switch strategy {
	case StrategyGrid:
		return arrangeGrid(elements, p), nil
	case StrategyStack:
		return arrangeStack(elements, p), nil
	case StrategyFlow:
		return arrangeFlow(elements, p), nil
	case StrategyHierarchical:
		return arrangeHierarchical(elements, p), nil
	default:
		return nil, fmt.Errorf("layout: unknown strategy %q", strategy)
	}
}

// arrangeGrid fills row-major into a grid of uniform cells sized by the
// largest element. Column count is floor(sqrt(n)) unless overridden.
func arrangeGrid(elements []canvas.Element, p Params) []Placement {
	cols := p.Columns
	if cols <= 0 {
		cols = int(math.Floor(math.Sqrt(float64(len(elements)))))
		if cols < 1 {
			cols = 1
		}
	}

	var cellW, cellH float64
	for _, el := range elements {
		cellW = math.Max(cellW, el.Geometry.Width)
		cellH = math.Max(cellH, el.Geometry.Height)
	}

	out := make([]Placement, 0, len(elements))
	for i, el := range elements {
		row := i / cols
		col := i % cols
		g := el.Geometry
		g.X = snap(p.OriginX+float64(col)*(cellW+p.Spacing), p.Unit)
		g.Y = snap(p.OriginY+float64(row)*(cellH+p.Spacing), p.Unit)
		out = append(out, Placement{ID: el.ID, Geometry: g})
	}
	return out
}

// arrangeStack lays everything out in a single column with fixed
// spacing.
func arrangeStack(elements []canvas.Element, p Params) []Placement {
	out := make([]Placement, 0, len(elements))
	y := p.OriginY
	for _, el := range elements {
		g := el.Geometry
		g.X = snap(p.OriginX, p.Unit)
		g.Y = snap(y, p.Unit)
		out = append(out, Placement{ID: el.ID, Geometry: g})
		y = g.Y + g.Height + p.Spacing
	}
	return out
}

// arrangeFlow fills row-major and wraps when a row would exceed
// MaxWidth. Row height is the tallest element in the row.
func arrangeFlow(elements []canvas.Element, p Params) []Placement {
	out := make([]Placement, 0, len(elements))
	x, y := p.OriginX, p.OriginY
	rowHeight := 0.0
	for _, el := range elements {
		g := el.Geometry
		if x > p.OriginX && x+g.Width > p.OriginX+p.MaxWidth {
			x = p.OriginX
			y += rowHeight + p.Spacing
			rowHeight = 0
		}
		g.X = snap(x, p.Unit)
		g.Y = snap(y, p.Unit)
		out = append(out, Placement{ID: el.ID, Geometry: g})
		x = g.X + g.Width + p.Spacing
		rowHeight = math.Max(rowHeight, g.Height)
	}
	return out
}

// arrangeHierarchical stacks parents in input order, each followed by
// its children indented one level. Elements whose GroupID matches no
// element ID are treated as roots.
func arrangeHierarchical(elements []canvas.Element, p Params) []Placement {
	byID := make(map[string]bool, len(elements))
	for _, el := range elements {
		byID[el.ID] = true
	}
	children := make(map[string][]canvas.Element)
	var roots []canvas.Element
	for _, el := range elements {
		if el.GroupID != "" && byID[el.GroupID] && el.GroupID != el.ID {
			children[el.GroupID] = append(children[el.GroupID], el)
		} else {
			roots = append(roots, el)
		}
	}

	out := make([]Placement, 0, len(elements))
	y := p.OriginY
	var place func(el canvas.Element, depth int)
	place = func(el canvas.Element, depth int) {
		g := el.Geometry
		g.X = snap(p.OriginX+float64(depth)*p.Indent, p.Unit)
		g.Y = snap(y, p.Unit)
		out = append(out, Placement{ID: el.ID, Geometry: g})
		y = g.Y + g.Height + p.Spacing
		for _, child := range children[el.ID] {
			place(child, depth+1)
		}
	}
	for _, root := range roots {
		place(root, 0)
	}
	return out
}

// snap rounds v to the nearest multiple of unit.
func snap(v, unit float64) float64 {
	if unit <= 0 {
		return v
	}
	return math.Round(v/unit) * unit
}
