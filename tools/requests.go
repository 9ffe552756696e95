package tools

import (
	"fmt"

	"github.com/hazyhaar/canvasd/canvas"
	"github.com/hazyhaar/canvasd/layout"
)

// ValidationError reports a bad or missing argument. It is produced
// before any store call — a command that fails validation never reaches
// the authoritative state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "required field is missing"}
}

// CreateElementRequest are the arguments of the create_element tool.
// Numeric required fields are pointers so "absent" and "zero" stay
// distinguishable.
type CreateElementRequest struct {
	Kind            string   `json:"kind"`
	X               *float64 `json:"x"`
	Y               *float64 `json:"y"`
	Width           *float64 `json:"width"`
	Height          *float64 `json:"height"`
	StrokeColor     string   `json:"strokeColor,omitempty"`
	FillColor       string   `json:"fillColor,omitempty"`
	StrokeWidth     float64  `json:"strokeWidth,omitempty"`
	CornerRoundness float64  `json:"cornerRoundness,omitempty"`
	FontSize        float64  `json:"fontSize,omitempty"`
	Text            string   `json:"text,omitempty"`
	GroupID         string   `json:"groupId,omitempty"`
}

func (r *CreateElementRequest) validate() error {
	if r.Kind == "" {
		return missing("kind")
	}
	if !canvas.Kind(r.Kind).Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown element kind %q", r.Kind)}
	}
	required := []struct {
		field string
		v     *float64
	}{{"x", r.X}, {"y", r.Y}, {"width", r.Width}, {"height", r.Height}}
	for _, f := range required {
		if f.v == nil {
			return missing(f.field)
		}
	}
	if *r.Width < 0 {
		return &ValidationError{Field: "width", Reason: "must not be negative"}
	}
	if *r.Height < 0 {
		return &ValidationError{Field: "height", Reason: "must not be negative"}
	}
	return nil
}

// UpdateElementRequest are the arguments of the update_element tool.
// Everything except ID is an optional patch field.
type UpdateElementRequest struct {
	ID    string       `json:"id"`
	Patch canvas.Patch `json:"patch"`
}

func (r *UpdateElementRequest) validate() error {
	if r.ID == "" {
		return missing("id")
	}
	if r.Patch.IsZero() {
		return &ValidationError{Field: "patch", Reason: "patch must set at least one field"}
	}
	return nil
}

// DeleteElementRequest are the arguments of the delete_element tool.
type DeleteElementRequest struct {
	ID string `json:"id"`
}

func (r *DeleteElementRequest) validate() error {
	if r.ID == "" {
		return missing("id")
	}
	return nil
}

// CreateTemplateRequest are the arguments of the create_template tool.
type CreateTemplateRequest struct {
	Name    string  `json:"name"`
	OriginX float64 `json:"originX"`
	OriginY float64 `json:"originY"`
}

func (r *CreateTemplateRequest) validate() error {
	if r.Name == "" {
		return missing("name")
	}
	return nil
}

// ArrangeRequest are the arguments of the arrange tool. IDs narrows the
// arrangement to a subset; empty means every element.
type ArrangeRequest struct {
	Strategy string        `json:"strategy"`
	IDs      []string      `json:"ids,omitempty"`
	Params   layout.Params `json:"params"`
}

func (r *ArrangeRequest) validate() error {
	if r.Strategy == "" {
		return missing("strategy")
	}
	if !layout.Strategy(r.Strategy).Valid() {
		return &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", r.Strategy)}
	}
	return nil
}

// MutationResult is returned by the single-element mutation tools.
type MutationResult struct {
	ID      string `json:"id,omitempty"`
	Version int64  `json:"version"`
	OpID    string `json:"opId"`
}

// TemplateResult is returned by create_template on full success.
type TemplateResult struct {
	Name    string   `json:"name"`
	Tag     string   `json:"tag"`
	IDs     []string `json:"ids"`
	Version int64    `json:"version"`
}

// ArrangeResult is returned by the arrange tool.
type ArrangeResult struct {
	Moved   int                `json:"moved"`
	Version int64              `json:"version"`
	Places  []layout.Placement `json:"placements"`
}
