package track

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"configtrack/internal/change"
	"configtrack/internal/classify"
	"configtrack/internal/rpc"
)

// Call intercepts one tool invocation. Reads pass through and
// opportunistically warm the snapshot cache; writes run the full
// before/after recording protocol. Errors from the underlying call
// propagate untouched with nothing recorded.
func (s *Session) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	c, ok := classify.Classify(name)
	if !ok {
		log.WithField("tool", name).Debug("tool not classified as an entity call, proceeding untracked")
		result, err := s.caller.Call(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return result.Payload, nil
	}

	if c.Read {
		return s.callRead(ctx, name, args, c)
	}
	return s.callWrite(ctx, name, args, c)
}

func (s *Session) callRead(ctx context.Context, name string, args map[string]any, c classify.Classification) (any, error) {
	result, err := s.caller.Call(ctx, name, args)
	if err != nil {
		return nil, err
	}

	if obj := result.Object(); obj != nil {
		if id := classify.EntityID(c, args, obj); id != "" {
			if err := s.snapshots.Put(ctx, c.EntityType, id, obj); err != nil {
				log.WithError(err).WithField("tool", name).Warn("failed to cache read result")
			}
		}
	}
	return result.Payload, nil
}

func (s *Session) callWrite(ctx context.Context, name string, args map[string]any, c classify.Classification) (any, error) {
	entityID := classify.EntityID(c, args, nil)

	if err := s.autoCommit(ctx, c, entityID); err != nil {
		log.WithError(err).WithField("tool", name).Warn("auto-commit flush failed, keeping changes pending")
	}

	before := s.resolveBefore(ctx, c, entityID)

	result, err := s.caller.Call(ctx, name, args)
	if err != nil {
		// The write did not happen (or cannot be confirmed); record nothing.
		return nil, err
	}

	obj := result.Object()
	if entityID == "" {
		entityID = classify.EntityID(c, args, obj)
	}

	after := s.resolveAfter(ctx, c, entityID, obj)

	s.record(ctx, change.EntityChange{
		EntityType: c.EntityType,
		EntityID:   entityID,
		EntityName: change.DeriveName(before, after),
		Operation:  c.Operation,
		Before:     before,
		After:      after,
	})

	for _, tracked := range result.Tracked {
		s.recordTracked(ctx, c.Operation, tracked)
	}

	return result.Payload, nil
}

// autoCommit flushes the pending list before a write when the same
// entity already has a pending change of a different operation kind, so
// unrelated intents never merge during deduplication.
func (s *Session) autoCommit(ctx context.Context, c classify.Classification, entityID string) error {
	if entityID == "" {
		return nil
	}
	for _, pending := range s.pending {
		if pending.EntityType == c.EntityType && pending.EntityID == entityID && pending.Operation != c.Operation {
			message := fmt.Sprintf("Auto-commit: %s on %s %s follows pending %s", c.Operation, c.EntityType, entityID, pending.Operation)
			_, err := s.Flush(ctx, message, "")
			return err
		}
	}
	return nil
}

// resolveBefore reads the entity's pre-write state from the cache, or
// proactively from the remote API. A fetch failure degrades to nil; it
// must never block the write.
func (s *Session) resolveBefore(ctx context.Context, c classify.Classification, entityID string) map[string]any {
	if c.Operation == change.OpCreate || entityID == "" {
		return nil
	}

	if cached, ok, err := s.snapshots.Get(ctx, c.EntityType, entityID); err == nil && ok {
		return cached
	} else if err != nil {
		log.WithError(err).WithField("entity", c.EntityType+":"+entityID).Warn("snapshot cache read failed")
	}

	state := s.fetchEntity(ctx, c.EntityType, entityID)
	if state != nil {
		if err := s.snapshots.Put(ctx, c.EntityType, entityID, state); err != nil {
			log.WithError(err).Warn("failed to cache before-state")
		}
	}
	return state
}

// resolveAfter determines the post-write state: creates trust the write
// result, deletes have none, and updates re-read the entity because the
// write call's own return value may omit fields.
func (s *Session) resolveAfter(ctx context.Context, c classify.Classification, entityID string, writeResult map[string]any) map[string]any {
	switch c.Operation {
	case change.OpCreate:
		s.cacheState(ctx, c.EntityType, entityID, writeResult)
		return writeResult
	case change.OpDelete:
		if entityID != "" {
			if err := s.snapshots.Invalidate(ctx, c.EntityType, entityID); err != nil {
				log.WithError(err).Warn("failed to invalidate cached state")
			}
		}
		return nil
	default:
		state := s.fetchEntity(ctx, c.EntityType, entityID)
		s.cacheState(ctx, c.EntityType, entityID, state)
		return state
	}
}

func (s *Session) fetchEntity(ctx context.Context, entityType, entityID string) map[string]any {
	if entityID == "" {
		return nil
	}
	result, err := s.caller.Call(ctx, "get_"+entityType, map[string]any{entityType + "_id": entityID})
	if err != nil {
		log.WithError(err).WithField("entity", entityType+":"+entityID).Warn("snapshot fetch failed, degrading to null")
		return nil
	}
	return result.Object()
}

func (s *Session) cacheState(ctx context.Context, entityType, entityID string, state map[string]any) {
	if entityID == "" || state == nil {
		return
	}
	if err := s.snapshots.Put(ctx, entityType, entityID, state); err != nil {
		log.WithError(err).Warn("failed to cache after-state")
	}
}

func (s *Session) record(ctx context.Context, ec change.EntityChange) {
	s.pending = append(s.pending, ec)
	s.saveSnapshot(ctx, ec.EntityType, ec.EntityID, ec.After)
}

// recordTracked ingests one side-effect resource reported alongside a
// primary write, using the primary call's declared operation.
func (s *Session) recordTracked(ctx context.Context, op change.Operation, tracked rpc.TrackedResource) {
	ec := change.EntityChange{
		EntityType: tracked.EntityType,
		EntityID:   tracked.EntityID,
		EntityName: change.DeriveName(nil, tracked.Data),
		Operation:  op,
	}
	switch op {
	case change.OpDelete:
		ec.Before = tracked.Data
	default:
		ec.After = tracked.Data
	}
	s.cacheState(ctx, tracked.EntityType, tracked.EntityID, ec.After)
	s.pending = append(s.pending, ec)
	s.saveSnapshot(ctx, ec.EntityType, ec.EntityID, ec.After)
}

// saveSnapshot records a point-in-time copy in the durable snapshot
// store for later audit; best effort, never blocks the write path.
func (s *Session) saveSnapshot(ctx context.Context, entityType, entityID string, state map[string]any) {
	if s.commits == nil || state == nil || entityID == "" {
		return
	}
	snapshot := change.Snapshot{
		Environment: s.Environment,
		EntityType:  entityType,
		EntityID:    entityID,
		VersionID:   change.NewVersionID(),
		Timestamp:   s.now().UTC(),
		Data:        state,
	}
	if err := s.commits.SaveSnapshot(ctx, snapshot); err != nil {
		log.WithError(err).WithField("entity", entityType+":"+entityID).Warn("failed to save snapshot")
	}
}
