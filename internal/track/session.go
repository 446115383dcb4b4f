package track

import (
	"context"
	"errors"
	"fmt"
	"time"

	"configtrack/internal/cache"
	"configtrack/internal/change"
	"configtrack/internal/rpc"
	"configtrack/internal/store"
)

// ErrTrackingUnavailable means no durable store is configured or
// reachable; history and revert surfaces short-circuit on it.
var ErrTrackingUnavailable = errors.New("change tracking unavailable")

// Session owns one agent run's change tracking: the pending change list,
// the snapshot cache, and the remote tool caller. The agent issues one
// tool call at a time per session, so the pending list needs no lock;
// independent sessions never share a Session value.
type Session struct {
	ChatID      string
	Environment string

	caller    rpc.Caller
	snapshots cache.SnapshotCache
	commits   store.Store // nil when tracking is not configured
	pending   []change.EntityChange
	now       func() time.Time
}

func NewSession(environment, chatID string, caller rpc.Caller, snapshots cache.SnapshotCache, commits store.Store) *Session {
	return &Session{
		ChatID:      chatID,
		Environment: environment,
		caller:      caller,
		snapshots:   snapshots,
		commits:     commits,
		now:         time.Now,
	}
}

// Pending returns a copy of the not-yet-committed changes.
func (s *Session) Pending() []change.EntityChange {
	out := make([]change.EntityChange, len(s.pending))
	copy(out, s.pending)
	return out
}

// Flush persists the pending changes as one commit and clears the list.
// An empty pending list is a no-op returning nil, nil. The pending list
// is retained when the save fails, so no recorded change is ever lost.
func (s *Session) Flush(ctx context.Context, message, userRequest string) (*change.ConfigCommit, error) {
	if len(s.pending) == 0 {
		return nil, nil
	}
	if s.commits == nil {
		return nil, ErrTrackingUnavailable
	}

	parent, err := s.commits.LatestHash(ctx, s.Environment)
	if err != nil {
		return nil, fmt.Errorf("resolving parent commit: %w", err)
	}

	commit := &change.ConfigCommit{
		Hash:        change.NewCommitHash(),
		Parent:      parent,
		ChatID:      s.ChatID,
		Timestamp:   s.now().UTC(),
		Message:     message,
		UserRequest: userRequest,
		Environment: s.Environment,
		Changes:     s.Pending(),
	}
	if err := s.commits.SaveCommit(ctx, commit); err != nil {
		return nil, fmt.Errorf("saving commit: %w", err)
	}

	s.pending = nil
	return commit, nil
}

// Store exposes the durable store for the history/revert surfaces; nil
// when tracking is not configured.
func (s *Session) Store() store.Store {
	return s.commits
}
