package cache

import "context"

// SnapshotCache holds the last known JSON state of remote entities,
// keyed by (entity_type, entity_id). Implementations are selected by
// configuration: an in-process map for a single session, or a shared
// TTL'd redis cache.
type SnapshotCache interface {
	Get(ctx context.Context, entityType, entityID string) (map[string]any, bool, error)
	Put(ctx context.Context, entityType, entityID string, data map[string]any) error
	Invalidate(ctx context.Context, entityType, entityID string) error
}
