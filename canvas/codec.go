package canvas

import (
	"encoding/json"
	"fmt"
)

// EncodeCommand serialises a command to its wire name and JSON payload.
// This is what crosses the bridge and what the journal stores; the
// render-surface serialisation stays a pluggable concern of the bridge
// adapter on top of it.
func EncodeCommand(cmd Command) (kind string, payload json.RawMessage, err error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("canvas: encode %s: %w", cmd.Name(), err)
	}
	return cmd.Name(), data, nil
}

// DecodeCommand is the inverse of EncodeCommand. Unknown kinds are an
// error — the command set is closed.
func DecodeCommand(kind string, payload json.RawMessage) (Command, error) {
	switch kind {
	case AddElement{}.Name():
		var c AddElement
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("canvas: decode %s: %w", kind, err)
		}
		return c, nil
	case UpdateElement{}.Name():
		var c UpdateElement
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("canvas: decode %s: %w", kind, err)
		}
		return c, nil
	case DeleteElement{}.Name():
		var c DeleteElement
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("canvas: decode %s: %w", kind, err)
		}
		return c, nil
	case ClearAll{}.Name():
		return ClearAll{}, nil
	default:
		return nil, fmt.Errorf("canvas: unknown command kind %q", kind)
	}
}
