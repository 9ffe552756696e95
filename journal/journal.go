// Package journal persists accepted operations to SQLite in sequence
// order. The canvas snapshot itself is in-memory; the journal is what
// makes it reconstructible — replaying all rows in seq order against an
// empty store reproduces the current state exactly.
//
// Append is idempotent on the operation ID, so a dispatcher retry or a
// crashed-and-restarted accept path cannot double-write a row.
//
// Expected schema (created by EnsureTable):
//
//	CREATE TABLE IF NOT EXISTS canvas_ops (
//	    seq        INTEGER PRIMARY KEY,
//	    op_id      TEXT NOT NULL UNIQUE,
//	    kind       TEXT NOT NULL,
//	    payload    BLOB,
//	    created_at INTEGER NOT NULL   -- milliseconds since epoch
//	);
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/canvasd/bridge"
)

// J is the journal handle.
type J struct {
	db *sql.DB
}

// New creates a journal handle. Call EnsureTable once at startup.
func New(db *sql.DB) *J {
	return &J{db: db}
}

// EnsureTable creates the canvas_ops table if it doesn't exist.
func (j *J) EnsureTable(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS canvas_ops (
			seq        INTEGER PRIMARY KEY,
			op_id      TEXT NOT NULL UNIQUE,
			kind       TEXT NOT NULL,
			payload    BLOB,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Append records an accepted operation. Re-appending the same op_id is
// a no-op, so the accept path can be retried safely.
func (j *J) Append(ctx context.Context, op bridge.Operation) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO canvas_ops (seq, op_id, kind, payload, created_at)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(op_id) DO NOTHING`,
		op.Seq, op.ID, op.Kind, []byte(op.Payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("journal: append seq %d: %w", op.Seq, err)
	}
	return nil
}

// Replay streams all journaled operations in ascending seq order. fn is
// called once per operation; a non-nil return stops the replay and is
// propagated.
func (j *J) Replay(ctx context.Context, fn func(op bridge.Operation) error) error {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, op_id, kind, payload FROM canvas_ops ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("journal: replay query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var op bridge.Operation
		var payload []byte
		if err := rows.Scan(&op.Seq, &op.ID, &op.Kind, &payload); err != nil {
			return fmt.Errorf("journal: replay scan: %w", err)
		}
		op.Payload = json.RawMessage(payload)
		if err := fn(op); err != nil {
			return fmt.Errorf("journal: replay seq %d: %w", op.Seq, err)
		}
	}
	return rows.Err()
}

// LastSeq returns the highest journaled sequence number (0 when empty).
func (j *J) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM canvas_ops`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("journal: last seq: %w", err)
	}
	return seq.Int64, nil
}

// Len returns the number of journaled operations.
func (j *J) Len(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_ops`).Scan(&n)
	return n, err
}

// Purge deletes every journaled operation. Used when a canvas instance
// is torn down for good.
func (j *J) Purge(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `DELETE FROM canvas_ops`)
	return err
}
