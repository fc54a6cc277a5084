package metadata

import (
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// FieldKind is the closed set of field types a module may declare.
// Unknown kinds normalize to KindText at load time.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextarea FieldKind = "textarea"
	KindEmail    FieldKind = "email"
	KindNumber   FieldKind = "number"
	KindDecimal  FieldKind = "decimal"
	KindDate     FieldKind = "date"
	KindDatetime FieldKind = "datetime"
	KindTime     FieldKind = "time"
	KindBoolean  FieldKind = "boolean"
	KindPassword FieldKind = "password"
	KindSelect   FieldKind = "select"
	KindEnum     FieldKind = "enum"
)

var fieldKinds = map[FieldKind]bool{
	KindText: true, KindTextarea: true, KindEmail: true, KindNumber: true,
	KindDecimal: true, KindDate: true, KindDatetime: true, KindTime: true,
	KindBoolean: true, KindPassword: true, KindSelect: true, KindEnum: true,
}

// ParseFieldKind maps a configured type string to a FieldKind, falling back
// to KindText for anything outside the closed set.
func ParseFieldKind(s string) FieldKind {
	k := FieldKind(s)
	if fieldKinds[k] {
		return k
	}
	return KindText
}

// RelationSpec describes a foreign mapping: the field's stored value is a key
// into another table, displayed via the label column.
type RelationSpec struct {
	Table   string `yaml:"table"`
	Key     string `yaml:"key"`
	Label   string `yaml:"label"`
	OrderBy string `yaml:"order_by,omitempty"`
}

type FieldSpec struct {
	Name     string            `yaml:"-"`
	Kind     FieldKind         `yaml:"type"`
	Label    string            `yaml:"label"`
	Required bool              `yaml:"required,omitempty"`
	Readonly bool              `yaml:"readonly,omitempty"`
	Default  any               `yaml:"default,omitempty"`
	Relation *RelationSpec     `yaml:"relation,omitempty"`
	Options  map[string]string `yaml:"options,omitempty"`
	Step     string            `yaml:"step,omitempty"`
}

// HasDefault reports whether a create-time default is configured.
func (f *FieldSpec) HasDefault() bool {
	return f.Default != nil
}

type OrderBy struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction"`
}

// ComputedRule derives a storage column from other payload fields.
// Kind "point" combines two numeric fields into a geometry literal;
// kind "expr" evaluates a compiled expression over the payload.
type ComputedRule struct {
	Kind       string `yaml:"type"`
	Lat        string `yaml:"lat,omitempty"`
	Lng        string `yaml:"lng,omitempty"`
	Expression string `yaml:"expression,omitempty"`

	// Program is the compiled form of Expression, set once by the loader.
	Program *vm.Program `yaml:"-"`
}

// ModuleDefinition is the declarative configuration for one manageable
// entity. Definitions are normalized at load time and immutable afterwards:
// every consumer can rely on defaults already being applied.
type ModuleDefinition struct {
	Slug        string                   `yaml:"-"`
	Label       string                   `yaml:"label"`
	Table       string                   `yaml:"table"`
	Group       string                   `yaml:"group"`
	Primary     string                   `yaml:"primary,omitempty"`
	Composite   []string                 `yaml:"composite,omitempty"`
	Fields      map[string]*FieldSpec    `yaml:"fields"`
	FieldOrder  []string                 `yaml:"-"`
	List        []string                 `yaml:"list"`
	Form        []string                 `yaml:"form"`
	Searchable  []string                 `yaml:"searchable,omitempty"`
	OrderBy     *OrderBy                 `yaml:"order_by,omitempty"`
	PerPage     int                      `yaml:"per_page"`
	AllowCreate bool                     `yaml:"allow_create"`
	AllowEdit   bool                     `yaml:"allow_edit"`
	AllowDelete bool                     `yaml:"allow_delete"`
	Computed    map[string]*ComputedRule `yaml:"computed,omitempty"`
}

// UnmarshalYAML decodes a module with defaults pre-applied, so absent keys
// resolve to their documented values, and records field declaration order.
func (m *ModuleDefinition) UnmarshalYAML(node *yaml.Node) error {
	type plain ModuleDefinition
	tmp := plain{
		Group:       "General",
		PerPage:     15,
		AllowCreate: true,
		AllowEdit:   true,
		AllowDelete: true,
	}
	if err := node.Decode(&tmp); err != nil {
		return err
	}
	*m = ModuleDefinition(tmp)
	m.FieldOrder = mappingKeys(node, "fields")
	return nil
}

// mappingKeys returns the declaration-order keys of the named nested mapping.
func mappingKeys(node *yaml.Node, name string) []string {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != name {
			continue
		}
		inner := node.Content[i+1]
		keys := make([]string, 0, len(inner.Content)/2)
		for j := 0; j+1 < len(inner.Content); j += 2 {
			keys = append(keys, inner.Content[j].Value)
		}
		return keys
	}
	return nil
}

// GetField returns the field with the given name, or nil.
func (m *ModuleDefinition) GetField(name string) *FieldSpec {
	return m.Fields[name]
}

// HasCompositeKey reports whether identity is an ordered composite key.
// Composite takes precedence over Primary when both are configured.
func (m *ModuleDefinition) HasCompositeKey() bool {
	return len(m.Composite) > 0
}

// OrderField resolves the list-ordering fallback chain:
// order_by.field, then primary, then the first list field. Empty means no
// ordering is applied and the storage engine's default order wins.
func (m *ModuleDefinition) OrderField() (field, direction string) {
	direction = "desc"
	if m.OrderBy != nil {
		if m.OrderBy.Direction != "" {
			direction = m.OrderBy.Direction
		}
		if m.OrderBy.Field != "" {
			return m.OrderBy.Field, direction
		}
	}
	if m.Primary != "" {
		return m.Primary, direction
	}
	if len(m.List) > 0 {
		return m.List[0], direction
	}
	return "", direction
}
