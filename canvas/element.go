// Package canvas owns the authoritative, versioned element state for one
// canvas instance. A single Store serialises all mutations behind one
// mutex (validate and apply are atomic — no partial state is ever
// observable) and publishes an immutable Snapshot plus a typed Change
// event on every successful mutation.
//
// Readers (layout, analytics) work on Snapshots and never lock against
// the writer. Delivery of changes to the render surface is someone
// else's job (see dispatch); the Store's success is independent of
// render delivery.
package canvas

import (
	"fmt"
	"math"
)

// Kind enumerates the element shapes the canvas understands.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindText      Kind = "text"
	KindArrow     Kind = "arrow"
	KindFreeform  Kind = "freeform"
)

// Valid reports whether k is a known element kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRectangle, KindEllipse, KindText, KindArrow, KindFreeform:
		return true
	}
	return false
}

// Geometry is an element's bounding box in canvas units.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate rejects non-finite coordinates and negative dimensions.
func (g Geometry) Validate() error {
	for _, v := range [...]float64{g.X, g.Y, g.Width, g.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidGeometry)
		}
	}
	if g.Width < 0 || g.Height < 0 {
		return fmt.Errorf("%w: negative width/height", ErrInvalidGeometry)
	}
	return nil
}

// Style holds the visual attributes of an element. FontSize and Text
// only apply to text elements but are carried uniformly.
type Style struct {
	StrokeColor     string  `json:"strokeColor,omitempty"`
	FillColor       string  `json:"fillColor,omitempty"`
	StrokeWidth     float64 `json:"strokeWidth,omitempty"`
	CornerRoundness float64 `json:"cornerRoundness,omitempty"`
	FontSize        float64 `json:"fontSize,omitempty"`
	Text            string  `json:"text,omitempty"`
}

// Element is one item on the canvas. ID is unique within a canvas
// instance. ZOrder strictly orders rendering but need not be contiguous.
type Element struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Geometry Geometry `json:"geometry"`
	ZOrder   int      `json:"zOrder"`
	Style    Style    `json:"style"`
	GroupID  string   `json:"groupId,omitempty"`
}

// Snapshot is an immutable, versioned view of the canvas. Version
// increases by exactly one per successful mutation. The element slice
// is a deep copy — holders can never observe later mutations.
type Snapshot struct {
	Version  int64     `json:"version"`
	Elements []Element `json:"elements"`
}

// Get returns the element with the given id, if present.
func (s Snapshot) Get(id string) (Element, bool) {
	for _, el := range s.Elements {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}
