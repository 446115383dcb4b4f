package revert

import "reflect"

// readOnlyFields are server-assigned and must never appear in a patch or
// a recreate payload.
var readOnlyFields = map[string]bool{
	"id":           true,
	"url":          true,
	"organization": true,
	"created_at":   true,
	"created_by":   true,
	"modified_at":  true,
	"modified_by":  true,
}

// ComputePatch returns the subset of before's top-level keys whose value
// differs from after's, excluding read-only fields. The patch carries
// before's values: applying it restores the pre-change state. An empty
// patch means there is nothing to revert.
func ComputePatch(before, after map[string]any) map[string]any {
	patch := map[string]any{}
	for key, value := range before {
		if readOnlyFields[key] {
			continue
		}
		if !reflect.DeepEqual(value, after[key]) {
			patch[key] = value
		}
	}
	return patch
}

// contentPatch builds the restore payload for schema-like entities: the
// entire content array cloned from before, with read-only annotations
// sanitized out of every node. Nested content trees cannot be key-diffed,
// and the remote API rejects content that still carries server-assigned
// fields.
func contentPatch(before map[string]any) map[string]any {
	content, ok := before["content"]
	if !ok {
		return nil
	}
	return map[string]any{"content": sanitizeContent(content)}
}

func sanitizeContent(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if key == "id" {
				// Node ids are caller-assigned labels, not server fields.
				out[key] = value
				continue
			}
			if readOnlyFields[key] {
				continue
			}
			out[key] = sanitizeContent(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeContent(item)
		}
		return out
	default:
		return v
	}
}

// recreatePayload strips read-only fields from a before-snapshot so it
// can be replayed through a create call.
func recreatePayload(before map[string]any) map[string]any {
	payload := make(map[string]any, len(before))
	for key, value := range before {
		if readOnlyFields[key] {
			continue
		}
		payload[key] = value
	}
	return payload
}
