package model

import (
	"context"
	"errors"
)

// Writer defines a generic interface for persisting analysis snapshots.
type Writer interface {
	// Name identifies the writer in logs and errors.
	Name() string

	// Write persists the snapshot. A failed write must leave any previously
	// persisted snapshot intact.
	Write(ctx context.Context, snapshot *Snapshot) error
}

// SnapshotReader is implemented by writers that can serve the most recently
// persisted snapshot without recomputation.
type SnapshotReader interface {
	LoadLatest(ctx context.Context) (*Snapshot, error)
}

// ErrNoSnapshot is returned by a SnapshotReader that has nothing persisted.
var ErrNoSnapshot = errors.New("no persisted snapshot")
