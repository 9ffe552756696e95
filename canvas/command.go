package canvas

// Command is the closed set of mutations the Store accepts. The sum is
// sealed — validation is an exhaustive type switch, not a map lookup,
// so an unknown command shape cannot reach the apply step.
type Command interface {
	// Name is the stable wire name of the command, used as the
	// Operation kind by the dispatcher and the journal.
	Name() string
	isCommand()
}

// AddElement inserts a new element. Element.ID must be set by the
// caller (the tool endpoint generates them) and must be unique. If
// ZOrder is zero the store assigns the next top-most order.
type AddElement struct {
	Element Element `json:"element"`
}

// UpdateElement patches an existing element. Only non-nil patch fields
// are applied; the patched geometry is re-validated as a whole.
type UpdateElement struct {
	ID    string `json:"id"`
	Patch Patch  `json:"patch"`
}

// DeleteElement removes an element by id.
type DeleteElement struct {
	ID string `json:"id"`
}

// ClearAll removes every element. It produces a single change event
// regardless of how many elements were present.
type ClearAll struct{}

func (AddElement) Name() string    { return "add_element" }
func (UpdateElement) Name() string { return "update_element" }
func (DeleteElement) Name() string { return "delete_element" }
func (ClearAll) Name() string      { return "clear_all" }

func (AddElement) isCommand()    {}
func (UpdateElement) isCommand() {}
func (DeleteElement) isCommand() {}
func (ClearAll) isCommand()      {}

// Patch is a partial element update. Nil fields are left untouched.
type Patch struct {
	X               *float64 `json:"x,omitempty"`
	Y               *float64 `json:"y,omitempty"`
	Width           *float64 `json:"width,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	ZOrder          *int     `json:"zOrder,omitempty"`
	StrokeColor     *string  `json:"strokeColor,omitempty"`
	FillColor       *string  `json:"fillColor,omitempty"`
	StrokeWidth     *float64 `json:"strokeWidth,omitempty"`
	CornerRoundness *float64 `json:"cornerRoundness,omitempty"`
	FontSize        *float64 `json:"fontSize,omitempty"`
	Text            *string  `json:"text,omitempty"`
	GroupID         *string  `json:"groupId,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil &&
		p.ZOrder == nil && p.StrokeColor == nil && p.FillColor == nil &&
		p.StrokeWidth == nil && p.CornerRoundness == nil &&
		p.FontSize == nil && p.Text == nil && p.GroupID == nil
}

// applyTo merges the patch into a copy of el and returns it.
func (p Patch) applyTo(el Element) Element {
	if p.X != nil {
		el.Geometry.X = *p.X
	}
	if p.Y != nil {
		el.Geometry.Y = *p.Y
	}
	if p.Width != nil {
		el.Geometry.Width = *p.Width
	}
	if p.Height != nil {
		el.Geometry.Height = *p.Height
	}
	if p.ZOrder != nil {
		el.ZOrder = *p.ZOrder
	}
	if p.StrokeColor != nil {
		el.Style.StrokeColor = *p.StrokeColor
	}
	if p.FillColor != nil {
		el.Style.FillColor = *p.FillColor
	}
	if p.StrokeWidth != nil {
		el.Style.StrokeWidth = *p.StrokeWidth
	}
	if p.CornerRoundness != nil {
		el.Style.CornerRoundness = *p.CornerRoundness
	}
	if p.FontSize != nil {
		el.Style.FontSize = *p.FontSize
	}
	if p.Text != nil {
		el.Style.Text = *p.Text
	}
	if p.GroupID != nil {
		el.GroupID = *p.GroupID
	}
	return el
}
