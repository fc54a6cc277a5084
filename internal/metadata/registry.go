package metadata

// Registry holds all module definitions, keyed by slug. It is populated once
// at startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	title   string
	modules map[string]*ModuleDefinition
	order   []string
}

// Group is a navigation category with its modules in declaration order.
type Group struct {
	Label   string
	Modules []*ModuleDefinition
}

func NewRegistry(title string, modules []*ModuleDefinition) *Registry {
	r := &Registry{
		title:   title,
		modules: make(map[string]*ModuleDefinition, len(modules)),
	}
	for _, m := range modules {
		r.modules[m.Slug] = m
		r.order = append(r.order, m.Slug)
	}
	return r
}

// Title returns the configured console title.
func (r *Registry) Title() string {
	return r.title
}

// Get returns the module with the given slug, or nil.
func (r *Registry) Get(slug string) *ModuleDefinition {
	return r.modules[slug]
}

// All returns every module in declaration order.
func (r *Registry) All() []*ModuleDefinition {
	out := make([]*ModuleDefinition, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.modules[slug])
	}
	return out
}

// Groups returns modules bucketed by navigation group. Group order follows
// first appearance; modules keep declaration order within each group.
func (r *Registry) Groups() []Group {
	var groups []Group
	index := make(map[string]int)
	for _, m := range r.All() {
		i, ok := index[m.Group]
		if !ok {
			i = len(groups)
			index[m.Group] = i
			groups = append(groups, Group{Label: m.Group})
		}
		groups[i].Modules = append(groups[i].Modules, m)
	}
	return groups
}
