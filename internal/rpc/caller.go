package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// trackedResourcesKey is the reserved result key under which a write tool
// reports secondary entities it silently created or mutated. The caller
// never sees it; the interceptor records one extra change per entry.
const trackedResourcesKey = "_tracked_resources"

// TrackedResource is one side-effect entity reported alongside a primary
// write, e.g. the default schema provisioned with a new queue.
type TrackedResource struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Data       map[string]any `json:"data"`
}

// Result is the typed envelope for a tool call: the payload returned to
// the caller plus any tracked side-effect resources stripped from it.
type Result struct {
	Payload any
	Tracked []TrackedResource
}

// Object returns the payload as a JSON object, or nil when the payload is
// not one.
func (r *Result) Object() map[string]any {
	if r == nil {
		return nil
	}
	obj, _ := r.Payload.(map[string]any)
	return obj
}

// Caller is the remote tool-call boundary: named tools taking a JSON
// argument map. Errors from the remote side propagate as Go errors.
type Caller interface {
	Call(ctx context.Context, name string, args map[string]any) (*Result, error)
}

// decodeResult turns a raw decoded JSON value into a Result, splitting
// the reserved tracked-resources key out of object payloads.
func decodeResult(raw any) (*Result, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return &Result{Payload: raw}, nil
	}

	side, present := obj[trackedResourcesKey]
	if !present {
		return &Result{Payload: obj}, nil
	}

	encoded, err := json.Marshal(side)
	if err != nil {
		return nil, fmt.Errorf("encoding tracked resources: %w", err)
	}
	var tracked []TrackedResource
	if err := json.Unmarshal(encoded, &tracked); err != nil {
		return nil, fmt.Errorf("decoding tracked resources: %w", err)
	}

	stripped := make(map[string]any, len(obj)-1)
	for k, v := range obj {
		if k == trackedResourcesKey {
			continue
		}
		stripped[k] = v
	}
	return &Result{Payload: stripped, Tracked: tracked}, nil
}

// IsRateLimited reports whether a remote error carries a rate-limit
// signal. The remote side surfaces errors as text, so this is a message
// sniff.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// IsConflict reports whether a remote error carries an
// optimistic-concurrency conflict signal.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "409") || strings.Contains(msg, "conflict") || strings.Contains(msg, "precondition")
}
