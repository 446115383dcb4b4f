package revert

// capability names the direct API tools available to invert operations
// on one entity type. Entity types without an entry can only be reverted
// manually by the calling agent.
type capability struct {
	mutate  string
	create  string
	destroy string

	// contentOnly marks entity types whose update inverse restores the
	// whole content tree instead of a per-key diff.
	contentOnly bool
}

var capabilities = map[string]capability{
	"queue":  {mutate: "update_queue", create: "create_queue", destroy: "delete_queue"},
	"schema": {mutate: "update_schema", create: "create_schema", destroy: "delete_schema", contentOnly: true},
	"hook":   {mutate: "update_hook", create: "create_hook", destroy: "delete_hook"},
	"rule":   {mutate: "update_rule", create: "create_rule", destroy: "delete_rule"},
}
