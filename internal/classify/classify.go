package classify

import (
	"encoding/json"
	"strconv"
	"strings"

	"configtrack/internal/change"
)

// Classification describes what an entity lifecycle tool does: which
// entity type it touches and whether it reads or mutates it.
type Classification struct {
	EntityType string
	Operation  change.Operation
	Read       bool
}

type prefixRule struct {
	prefix    string
	operation change.Operation
	read      bool
}

// Ordered: longer or more specific prefixes would go first if they ever
// overlapped. Resolution is a pure string match over the tool name.
var prefixRules = []prefixRule{
	{prefix: "create_", operation: change.OpCreate},
	{prefix: "update_", operation: change.OpUpdate},
	{prefix: "patch_", operation: change.OpUpdate},
	{prefix: "delete_", operation: change.OpDelete},
	{prefix: "get_", read: true},
	{prefix: "list_", read: true},
}

// overrides maps tool names that do not follow the prefix convention to
// their classification. Checked before the prefix table.
var overrides = map[string]Classification{
	"create_queue_from_template": {EntityType: "queue", Operation: change.OpCreate},
	"add_schema_rule":            {EntityType: "rule", Operation: change.OpCreate},
	"prune_schema":               {EntityType: "schema", Operation: change.OpUpdate},
}

// Classify maps a tool name to its entity classification. The second
// return is false for tools that are not entity lifecycle calls.
func Classify(toolName string) (Classification, bool) {
	if c, ok := overrides[toolName]; ok {
		return c, true
	}
	for _, rule := range prefixRules {
		rest, ok := strings.CutPrefix(toolName, rule.prefix)
		if !ok || rest == "" {
			continue
		}
		entityType := rest
		if rule.prefix == "list_" {
			entityType = singularize(rest)
		}
		return Classification{EntityType: entityType, Operation: rule.operation, Read: rule.read}, true
	}
	return Classification{}, false
}

// EntityID resolves the entity id for a classified call: a
// "<entity_type>_id" argument, then a generic "id" argument, then (for
// creates, where the id is assigned remotely) the result payload's "id".
func EntityID(c Classification, args map[string]any, result map[string]any) string {
	if id := idValue(args[c.EntityType+"_id"]); id != "" {
		return id
	}
	if id := idValue(args["id"]); id != "" {
		return id
	}
	if c.Operation == change.OpCreate && result != nil {
		return idValue(result["id"])
	}
	return ""
}

func idValue(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

func singularize(plural string) string {
	switch {
	case strings.HasSuffix(plural, "ies"):
		return strings.TrimSuffix(plural, "ies") + "y"
	case strings.HasSuffix(plural, "es") && (strings.HasSuffix(plural, "ches") || strings.HasSuffix(plural, "shes") || strings.HasSuffix(plural, "xes")):
		return strings.TrimSuffix(plural, "es")
	case strings.HasSuffix(plural, "s"):
		return strings.TrimSuffix(plural, "s")
	default:
		return plural
	}
}
