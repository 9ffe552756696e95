package journal

import (
	"context"

	"github.com/hazyhaar/canvasd/bridge"
	"github.com/hazyhaar/canvasd/canvas"
)

// Rebuild replays the journal into a store, in seq order. The store
// should be empty; the result is exactly the state the journaled
// operations produced the first time around.
func Rebuild(ctx context.Context, j *J, store *canvas.Store) error {
	return j.Replay(ctx, func(op bridge.Operation) error {
		cmd, err := canvas.DecodeCommand(op.Kind, op.Payload)
		if err != nil {
			return err
		}
		_, err = store.Apply(cmd)
		return err
	})
}
