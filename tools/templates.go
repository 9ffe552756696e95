package tools

import (
	"fmt"

	"github.com/hazyhaar/canvasd/canvas"
)

// TemplateItem is one constituent element of a template, positioned
// relative to the template origin (the expansion function bakes the
// origin in).
type TemplateItem struct {
	Kind     canvas.Kind
	Geometry canvas.Geometry
	Style    canvas.Style
}

func (it TemplateItem) validate() error {
	if !it.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown element kind %q", it.Kind)}
	}
	if it.Geometry.Width < 0 {
		return &ValidationError{Field: "width", Reason: "must not be negative"}
	}
	if it.Geometry.Height < 0 {
		return &ValidationError{Field: "height", Reason: "must not be negative"}
	}
	return it.Geometry.Validate()
}

// Template expands to an ordered batch of items. All items of one
// expansion share a generated template tag as their group.
type Template func(originX, originY float64) []TemplateItem

func builtinTemplates() map[string]Template {
	return map[string]Template{
		"dashboard": dashboardTemplate,
		"kanban":    kanbanTemplate,
		"flowchart": flowchartTemplate,
	}
}

// dashboardTemplate is a header, four stat cards, a main chart area, a
// sidebar and a footer — eight constituents.
func dashboardTemplate(ox, oy float64) []TemplateItem {
	card := func(i int) TemplateItem {
		return TemplateItem{
			Kind:     canvas.KindRectangle,
			Geometry: canvas.Geometry{X: ox + float64(i)*200, Y: oy + 80, Width: 184, Height: 96},
			Style:    canvas.Style{FillColor: "#f1f5f9", StrokeColor: "#94a3b8", StrokeWidth: 1, CornerRoundness: 8},
		}
	}
	return []TemplateItem{
		{
			Kind:     canvas.KindText,
			Geometry: canvas.Geometry{X: ox, Y: oy, Width: 784, Height: 56},
			Style:    canvas.Style{Text: "Dashboard", FontSize: 28, StrokeColor: "#0f172a"},
		},
		card(0), card(1), card(2), card(3),
		{
			Kind:     canvas.KindRectangle,
			Geometry: canvas.Geometry{X: ox, Y: oy + 200, Width: 560, Height: 320},
			Style:    canvas.Style{FillColor: "#ffffff", StrokeColor: "#64748b", StrokeWidth: 1, CornerRoundness: 12},
		},
		{
			Kind:     canvas.KindRectangle,
			Geometry: canvas.Geometry{X: ox + 584, Y: oy + 200, Width: 200, Height: 320},
			Style:    canvas.Style{FillColor: "#f8fafc", StrokeColor: "#94a3b8", StrokeWidth: 1, CornerRoundness: 12},
		},
		{
			Kind:     canvas.KindText,
			Geometry: canvas.Geometry{X: ox, Y: oy + 544, Width: 784, Height: 32},
			Style:    canvas.Style{Text: "Updated just now", FontSize: 12, StrokeColor: "#64748b"},
		},
	}
}

// kanbanTemplate is a board title plus three columns with a sample card
// each.
func kanbanTemplate(ox, oy float64) []TemplateItem {
	col := func(i int, title string) []TemplateItem {
		x := ox + float64(i)*272
		return []TemplateItem{
			{
				Kind:     canvas.KindRectangle,
				Geometry: canvas.Geometry{X: x, Y: oy + 56, Width: 256, Height: 480},
				Style:    canvas.Style{FillColor: "#f1f5f9", StrokeColor: "#cbd5e1", StrokeWidth: 1, CornerRoundness: 8},
			},
			{
				Kind:     canvas.KindText,
				Geometry: canvas.Geometry{X: x + 16, Y: oy + 72, Width: 224, Height: 24},
				Style:    canvas.Style{Text: title, FontSize: 14, StrokeColor: "#334155"},
			},
			{
				Kind:     canvas.KindRectangle,
				Geometry: canvas.Geometry{X: x + 16, Y: oy + 112, Width: 224, Height: 72},
				Style:    canvas.Style{FillColor: "#ffffff", StrokeColor: "#94a3b8", StrokeWidth: 1, CornerRoundness: 6},
			},
		}
	}
	items := []TemplateItem{{
		Kind:     canvas.KindText,
		Geometry: canvas.Geometry{X: ox, Y: oy, Width: 800, Height: 40},
		Style:    canvas.Style{Text: "Board", FontSize: 24, StrokeColor: "#0f172a"},
	}}
	items = append(items, col(0, "To do")...)
	items = append(items, col(1, "In progress")...)
	items = append(items, col(2, "Done")...)
	return items
}

// flowchartTemplate is start → two process steps → end, connected by
// arrows.
func flowchartTemplate(ox, oy float64) []TemplateItem {
	return []TemplateItem{
		{
			Kind:     canvas.KindEllipse,
			Geometry: canvas.Geometry{X: ox, Y: oy, Width: 140, Height: 64},
			Style:    canvas.Style{FillColor: "#dcfce7", StrokeColor: "#16a34a", StrokeWidth: 2, Text: "Start"},
		},
		{
			Kind:     canvas.KindArrow,
			Geometry: canvas.Geometry{X: ox + 64, Y: oy + 64, Width: 8, Height: 48},
			Style:    canvas.Style{StrokeColor: "#475569", StrokeWidth: 2},
		},
		{
			Kind:     canvas.KindRectangle,
			Geometry: canvas.Geometry{X: ox, Y: oy + 112, Width: 140, Height: 64},
			Style:    canvas.Style{FillColor: "#e0f2fe", StrokeColor: "#0284c7", StrokeWidth: 2, CornerRoundness: 6, Text: "Step 1"},
		},
		{
			Kind:     canvas.KindArrow,
			Geometry: canvas.Geometry{X: ox + 64, Y: oy + 176, Width: 8, Height: 48},
			Style:    canvas.Style{StrokeColor: "#475569", StrokeWidth: 2},
		},
		{
			Kind:     canvas.KindRectangle,
			Geometry: canvas.Geometry{X: ox, Y: oy + 224, Width: 140, Height: 64},
			Style:    canvas.Style{FillColor: "#e0f2fe", StrokeColor: "#0284c7", StrokeWidth: 2, CornerRoundness: 6, Text: "Step 2"},
		},
		{
			Kind:     canvas.KindArrow,
			Geometry: canvas.Geometry{X: ox + 64, Y: oy + 288, Width: 8, Height: 48},
			Style:    canvas.Style{StrokeColor: "#475569", StrokeWidth: 2},
		},
		{
			Kind:     canvas.KindEllipse,
			Geometry: canvas.Geometry{X: ox, Y: oy + 336, Width: 140, Height: 64},
			Style:    canvas.Style{FillColor: "#fee2e2", StrokeColor: "#dc2626", StrokeWidth: 2, Text: "End"},
		},
	}
}
