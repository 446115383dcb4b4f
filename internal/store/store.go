package store

import (
	"context"
	"time"

	"configtrack/internal/change"
)

// Store is the durable home of commits and snapshots, shared across
// sessions and process restarts. Commit writes are atomic with their
// index and latest-pointer updates; everything else is single-key,
// last-writer-wins.
type Store interface {
	Close(ctx context.Context) error

	// SaveCommit appends a commit and moves the environment's latest
	// pointer in one logical write.
	SaveCommit(ctx context.Context, commit *change.ConfigCommit) error
	// GetCommit returns nil, nil when the hash is unknown.
	GetCommit(ctx context.Context, environment, hash string) (*change.ConfigCommit, error)
	// LatestHash returns "" when the environment has no commits.
	LatestHash(ctx context.Context, environment string) (string, error)
	// ListCommits returns commits newest first, at most limit of them.
	ListCommits(ctx context.Context, environment string, limit int) ([]change.ConfigCommit, error)

	SaveSnapshot(ctx context.Context, snapshot change.Snapshot) error
	GetSnapshot(ctx context.Context, environment, entityType, entityID, versionID string) (*change.Snapshot, error)
	// GetSnapshotAt returns the most recent snapshot at or before asOf,
	// or nil, nil when none qualifies.
	GetSnapshotAt(ctx context.Context, environment, entityType, entityID string, asOf time.Time) (*change.Snapshot, error)
	GetEarliestSnapshot(ctx context.Context, environment, entityType, entityID string) (*change.Snapshot, error)
	// ListSnapshotVersions returns snapshots newest first, at most limit.
	ListSnapshotVersions(ctx context.Context, environment, entityType, entityID string, limit int) ([]change.Snapshot, error)

	// PruneSnapshots removes snapshots recorded before the cutoff and
	// returns how many were dropped.
	PruneSnapshots(ctx context.Context, environment string, before time.Time) (int64, error)
	// PruneCommits removes commits recorded before the cutoff, clearing
	// the latest pointer when its target is among them.
	PruneCommits(ctx context.Context, environment string, before time.Time) (int64, error)
}
