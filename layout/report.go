package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/hazyhaar/canvasd/canvas"
)

// Issue flags one layout problem found by Analyze.
type Issue struct {
	Kind       string   `json:"kind"` // "overlap", "off_grid", "uneven_spacing"
	ElementIDs []string `json:"elementIds"`
	Detail     string   `json:"detail"`
}

// Report scores an arrangement between 0 and 100 and lists what drags
// it down.
type Report struct {
	Score       int      `json:"score"`
	Issues      []Issue  `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// spacingVarianceThreshold is the gap variance (in square canvas units)
// above which sibling spacing counts as inconsistent.
const spacingVarianceThreshold = 64

// Analyze inspects elements for overlapping bounding boxes, coordinates
// off the grid unit, and uneven spacing between adjacent siblings. Pure
// and deterministic.
func Analyze(elements []canvas.Element, unit float64) Report {
	if unit <= 0 {
		unit = 8
	}
	var issues []Issue

	// Overlapping bounding boxes, pairwise.
	for i := 0; i < len(elements); i++ {
		for j := i + 1; j < len(elements); j++ {
			if overlaps(elements[i].Geometry, elements[j].Geometry) {
				issues = append(issues, Issue{
					Kind:       "overlap",
					ElementIDs: []string{elements[i].ID, elements[j].ID},
					Detail:     "bounding boxes overlap",
				})
			}
		}
	}

	// Coordinates not aligned to the grid unit.
	for _, el := range elements {
		if !aligned(el.Geometry.X, unit) || !aligned(el.Geometry.Y, unit) {
			issues = append(issues, Issue{
				Kind:       "off_grid",
				ElementIDs: []string{el.ID},
				Detail:     fmt.Sprintf("position (%.1f, %.1f) not aligned to unit %.0f", el.Geometry.X, el.Geometry.Y, unit),
			})
		}
	}

	// Inconsistent spacing between adjacent siblings, per group.
	for groupID, gaps := range siblingGaps(elements) {
		if len(gaps) < 2 {
			continue
		}
		if variance(gaps) > spacingVarianceThreshold {
			issues = append(issues, Issue{
				Kind:       "uneven_spacing",
				ElementIDs: nil,
				Detail:     fmt.Sprintf("group %q has inconsistent vertical gaps", groupID),
			})
		}
	}

	return Report{
		Score:       score(issues),
		Issues:      issues,
		Suggestions: suggestions(issues),
	}
}

func overlaps(a, b canvas.Geometry) bool {
	return a.X < b.X+b.Width && b.X < a.X+a.Width &&
		a.Y < b.Y+b.Height && b.Y < a.Y+a.Height
}

func aligned(v, unit float64) bool {
	_, frac := math.Modf(math.Abs(v) / unit)
	return frac < 1e-9 || frac > 1-1e-9
}

// siblingGaps computes the vertical gaps between consecutive elements
// sharing a GroupID, ordered by Y position. Ungrouped elements are
// skipped: they have no sibling relationship, and a multi-column
// arrangement would otherwise read as one jumbled vertical chain.
func siblingGaps(elements []canvas.Element) map[string][]float64 {
	groups := make(map[string][]canvas.Element)
	for _, el := range elements {
		if el.GroupID == "" {
			continue
		}
		groups[el.GroupID] = append(groups[el.GroupID], el)
	}
	out := make(map[string][]float64)
	for id, els := range groups {
		if len(els) < 3 {
			continue
		}
		sort.SliceStable(els, func(i, j int) bool { return els[i].Geometry.Y < els[j].Geometry.Y })
		for i := 1; i < len(els); i++ {
			gap := els[i].Geometry.Y - (els[i-1].Geometry.Y + els[i-1].Geometry.Height)
			out[id] = append(out[id], gap)
		}
	}
	return out
}

func variance(vals []float64) float64 {
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	sum := 0.0
	for _, v := range vals {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(vals))
}

func score(issues []Issue) int {
	s := 100
	for _, is := range issues {
		switch is.Kind {
		case "overlap":
			s -= 10
		case "off_grid":
			s -= 3
		case "uneven_spacing":
			s -= 15
		}
	}
	if s < 0 {
		s = 0
	}
	return s
}

func suggestions(issues []Issue) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, is := range issues {
		switch is.Kind {
		case "overlap":
			add("run arrange with the grid or flow strategy to separate overlapping elements")
		case "off_grid":
			add("run arrange to snap positions to the grid unit")
		case "uneven_spacing":
			add("run arrange with the stack strategy to equalise spacing")
		}
	}
	return out
}
