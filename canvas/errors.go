package canvas

import "errors"

// Mutation errors. None of them leave any partial state behind; a
// failed Apply returns the store exactly as it was.
var (
	ErrElementNotFound = errors.New("canvas: element not found")
	ErrDuplicateID     = errors.New("canvas: duplicate element id")
	ErrInvalidGeometry = errors.New("canvas: invalid geometry")
	ErrUnknownKind     = errors.New("canvas: unknown element kind")
	ErrEmptyID         = errors.New("canvas: empty element id")
)
