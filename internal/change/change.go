package change

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of mutation a tool call performed on an entity.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityChange records one mutation of one remote entity. For an update
// both Before and After are set; a create has no Before and a delete has
// no After.
type EntityChange struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	EntityName string         `json:"entity_name,omitempty"`
	Operation  Operation      `json:"operation"`
	Before     map[string]any `json:"before"`
	After      map[string]any `json:"after"`
}

// ConfigCommit is an immutable group of entity changes recorded as one
// unit against an environment. Parent links to the previous commit for
// that environment; only the latest commit is ever reverted.
type ConfigCommit struct {
	Hash        string         `json:"hash"`
	Parent      string         `json:"parent,omitempty"`
	ChatID      string         `json:"chat_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Message     string         `json:"message"`
	UserRequest string         `json:"user_request,omitempty"`
	Environment string         `json:"environment"`
	Changes     []EntityChange `json:"changes"`
}

// Snapshot is a point-in-time copy of one entity, stored independently of
// the commit log and pruned by TTL only.
type Snapshot struct {
	Environment string         `json:"environment"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	VersionID   string         `json:"version_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data"`
}

// NewCommitHash returns a fresh 32-character commit identifier.
func NewCommitHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewVersionID returns a fresh snapshot version identifier.
func NewVersionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var nameFields = []string{"name", "label", "title", "subject"}

// DeriveName extracts a best-effort human label for an entity from its
// after state, falling back to the before state. Returns "" when no
// candidate field holds a non-empty string.
func DeriveName(before, after map[string]any) string {
	for _, state := range []map[string]any{after, before} {
		if state == nil {
			continue
		}
		for _, field := range nameFields {
			if v, ok := state[field].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
