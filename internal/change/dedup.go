package change

type entityKey struct {
	entityType string
	entityID   string
}

// Deduplicate collapses a commit's change list to the net effect per
// entity: the first-seen before, the last-seen after, and an operation
// derived from the sequence of operations. A create followed by a delete
// cancels out and the entity is dropped from the result. Entities keep
// the order in which they first appeared. The function is idempotent.
func Deduplicate(changes []EntityChange) []EntityChange {
	var order []entityKey
	merged := map[entityKey]*EntityChange{}

	for _, c := range changes {
		key := entityKey{c.EntityType, c.EntityID}
		existing, ok := merged[key]
		if !ok {
			copied := c
			merged[key] = &copied
			order = append(order, key)
			continue
		}
		if existing.Operation == OpCreate && c.Operation == OpDelete {
			// The entity never existed outside this commit; nothing to revert.
			delete(merged, key)
			order = removeKey(order, key)
			continue
		}
		existing.Operation = netOperation(existing.Operation, c.Operation)
		existing.After = c.After
		if c.EntityName != "" {
			existing.EntityName = c.EntityName
		}
	}

	result := make([]EntityChange, 0, len(merged))
	for _, key := range order {
		if c, ok := merged[key]; ok {
			result = append(result, *c)
		}
	}
	return result
}

func netOperation(first, next Operation) Operation {
	switch {
	case first == next:
		return first
	case first == OpCreate && next == OpUpdate:
		return OpCreate
	case first == OpUpdate && next == OpDelete:
		return OpDelete
	default:
		return next
	}
}

func removeKey(keys []entityKey, key entityKey) []entityKey {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
