package classify

import (
	"encoding/json"
	"testing"

	"configtrack/internal/change"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		tool       string
		entityType string
		operation  change.Operation
		read       bool
		ok         bool
	}{
		{tool: "create_queue", entityType: "queue", operation: change.OpCreate, ok: true},
		{tool: "update_schema", entityType: "schema", operation: change.OpUpdate, ok: true},
		{tool: "patch_hook", entityType: "hook", operation: change.OpUpdate, ok: true},
		{tool: "delete_rule", entityType: "rule", operation: change.OpDelete, ok: true},
		{tool: "get_queue", entityType: "queue", read: true, ok: true},
		{tool: "list_queues", entityType: "queue", read: true, ok: true},
		{tool: "list_categories", entityType: "category", read: true, ok: true},
		{tool: "create_queue_from_template", entityType: "queue", operation: change.OpCreate, ok: true},
		{tool: "add_schema_rule", entityType: "rule", operation: change.OpCreate, ok: true},
		{tool: "prune_schema", entityType: "schema", operation: change.OpUpdate, ok: true},
		{tool: "search_documents", ok: false},
		{tool: "create_", ok: false},
		{tool: "", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.tool, func(t *testing.T) {
			c, ok := Classify(tc.tool)
			if ok != tc.ok {
				t.Fatalf("Classify(%q) ok = %v, want %v", tc.tool, ok, tc.ok)
			}
			if !ok {
				return
			}
			if c.EntityType != tc.entityType {
				t.Fatalf("entity type = %q, want %q", c.EntityType, tc.entityType)
			}
			if c.Operation != tc.operation {
				t.Fatalf("operation = %q, want %q", c.Operation, tc.operation)
			}
			if c.Read != tc.read {
				t.Fatalf("read = %v, want %v", c.Read, tc.read)
			}
		})
	}
}

func TestEntityID(t *testing.T) {
	update, _ := Classify("update_queue")
	create, _ := Classify("create_queue")

	t.Run("typed id argument wins", func(t *testing.T) {
		id := EntityID(update, map[string]any{"queue_id": "42", "id": "7"}, nil)
		if id != "42" {
			t.Fatalf("got %q", id)
		}
	})

	t.Run("generic id fallback", func(t *testing.T) {
		id := EntityID(update, map[string]any{"id": float64(7)}, nil)
		if id != "7" {
			t.Fatalf("got %q", id)
		}
	})

	t.Run("create falls back to result payload", func(t *testing.T) {
		id := EntityID(create, map[string]any{"name": "q"}, map[string]any{"id": float64(99)})
		if id != "99" {
			t.Fatalf("got %q", id)
		}
	})

	t.Run("update never reads result payload", func(t *testing.T) {
		id := EntityID(update, map[string]any{}, map[string]any{"id": "99"})
		if id != "" {
			t.Fatalf("got %q", id)
		}
	})

	t.Run("numeric ids keep integer form", func(t *testing.T) {
		id := EntityID(update, map[string]any{"queue_id": float64(1234567)}, nil)
		if id != "1234567" {
			t.Fatalf("got %q", id)
		}
	})

	t.Run("json.Number ids above 2^53 stay exact", func(t *testing.T) {
		id := EntityID(update, map[string]any{"queue_id": json.Number("9007199254740993")}, nil)
		if id != "9007199254740993" {
			t.Fatalf("got %q", id)
		}
	})
}
