package agent

// RouteName identifies a handling path for a request.
type RouteName string

const (
	RouteFileList          RouteName = "file_list"
	RouteExternalKnowledge RouteName = "external_knowledge"
	RouteLedger            RouteName = "ledger"
	RouteSQLGenerate       RouteName = "sql_generate"
)

// AllowList is the set of tool names permitted for a route. Invocation
// outside it is rejected, not silently ignored.
type AllowList map[string]struct{}

// NewAllowList builds an allow-list from tool names.
func NewAllowList(names ...string) AllowList {
	al := make(AllowList, len(names))
	for _, name := range names {
		al[name] = struct{}{}
	}
	return al
}

// Allows reports whether the named tool may run on this route.
func (a AllowList) Allows(name string) bool {
	_, ok := a[name]
	return ok
}

// RouteContext carries everything route-specific the loop needs: the system
// prompt, the tool allow-list, and any extra system messages (the SQL route
// injects the schema and glossary documents this way).
type RouteContext struct {
	Name         RouteName
	SystemPrompt string
	Allowed      AllowList
	ExtraSystem  []string
}

// RoutePrompts holds the per-route system prompt texts.
type RoutePrompts struct {
	FileList          string
	ExternalKnowledge string
	Ledger            string
	SQLGenerate       string

	// SQLExtras are additional system messages for the SQL route, typically
	// the schema document and the business glossary.
	SQLExtras []string
}

// RouteTable maps route names to their contexts. Unknown names fall back to
// the external-knowledge route.
type RouteTable struct {
	routes   map[RouteName]RouteContext
	fallback RouteName
}

// NewRouteTable builds the standard route table.
func NewRouteTable(prompts RoutePrompts) *RouteTable {
	routes := map[RouteName]RouteContext{
		RouteFileList: {
			Name:         RouteFileList,
			SystemPrompt: prompts.FileList,
			Allowed:      NewAllowList("list_directory", "read_file"),
		},
		RouteExternalKnowledge: {
			Name:         RouteExternalKnowledge,
			SystemPrompt: prompts.ExternalKnowledge,
			Allowed:      NewAllowList("web_search"),
		},
		RouteLedger: {
			Name:         RouteLedger,
			SystemPrompt: prompts.Ledger,
			Allowed:      NewAllowList("ledger_upsert"),
		},
		RouteSQLGenerate: {
			Name:         RouteSQLGenerate,
			SystemPrompt: prompts.SQLGenerate,
			Allowed:      NewAllowList(),
			ExtraSystem:  prompts.SQLExtras,
		},
	}
	return &RouteTable{routes: routes, fallback: RouteExternalKnowledge}
}

// Get returns the context for a route, falling back to external_knowledge
// for unknown names.
func (t *RouteTable) Get(name RouteName) RouteContext {
	if rc, ok := t.routes[name]; ok {
		return rc
	}
	return t.routes[t.fallback]
}

// Known reports whether the route name is part of the table.
func (t *RouteTable) Known(name RouteName) bool {
	_, ok := t.routes[name]
	return ok
}

// SetAllowList overrides the allow-list for a route. Deployments use this to
// restrict tools beyond the defaults or to admit external server tools,
// whose registered names carry a server-ID prefix.
func (t *RouteTable) SetAllowList(name RouteName, allowed AllowList) {
	if rc, ok := t.routes[name]; ok {
		rc.Allowed = allowed
		t.routes[name] = rc
	}
}
