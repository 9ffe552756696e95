// Package analytics computes read-only quality statistics over a canvas
// snapshot. It depends only on the snapshot it is handed — never on the
// bridge or its lifecycle — so it keeps working while the render
// surface is down.
package analytics

import (
	"math"

	"github.com/hazyhaar/canvasd/canvas"
	"github.com/hazyhaar/canvasd/layout"
)

// Summary is the analytics result for one snapshot.
type Summary struct {
	Version             int64                 `json:"version"`
	ElementCount        int                   `json:"elementCount"`
	TypeCounts          map[canvas.Kind]int   `json:"typeCounts"`
	ColorUsage          map[string]int        `json:"colorUsage"`
	GridComplianceScore int                   `json:"gridComplianceScore"`
	Bounds              canvas.Geometry       `json:"bounds"`
	Issues              []layout.Issue        `json:"issues,omitempty"`
	Suggestions         []string              `json:"suggestions,omitempty"`
}

// Analyze computes the summary for a snapshot. unit is the grid unit
// used for compliance scoring.
func Analyze(snap canvas.Snapshot, unit float64) Summary {
	s := Summary{
		Version:      snap.Version,
		ElementCount: len(snap.Elements),
		TypeCounts:   make(map[canvas.Kind]int),
		ColorUsage:   make(map[string]int),
	}
	for _, el := range snap.Elements {
		s.TypeCounts[el.Kind]++
		if el.Style.FillColor != "" {
			s.ColorUsage[el.Style.FillColor]++
		}
		if el.Style.StrokeColor != "" {
			s.ColorUsage[el.Style.StrokeColor]++
		}
	}
	s.Bounds = bounds(snap.Elements)

	report := layout.Analyze(snap.Elements, unit)
	s.GridComplianceScore = report.Score
	s.Issues = report.Issues
	s.Suggestions = report.Suggestions
	return s
}

// bounds returns the bounding box of all elements, or a zero geometry
// for an empty canvas.
func bounds(elements []canvas.Element) canvas.Geometry {
	if len(elements) == 0 {
		return canvas.Geometry{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, el := range elements {
		minX = math.Min(minX, el.Geometry.X)
		minY = math.Min(minY, el.Geometry.Y)
		maxX = math.Max(maxX, el.Geometry.X+el.Geometry.Width)
		maxY = math.Max(maxY, el.Geometry.Y+el.Geometry.Height)
	}
	return canvas.Geometry{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
