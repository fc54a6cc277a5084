package metadata

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"
)

// moduleFile is the on-disk shape of the module configuration. The modules
// mapping is kept as a raw node so declaration order survives decoding.
type moduleFile struct {
	Title   string    `yaml:"title"`
	Modules yaml.Node `yaml:"modules"`
}

// LoadFile reads and normalizes the module configuration, returning a
// ready-to-use registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read modules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, normalizes and validates module configuration bytes.
func Parse(data []byte) (*Registry, error) {
	var file moduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse modules: %w", err)
	}

	if file.Modules.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("modules: expected a mapping of slug to definition")
	}

	var modules []*ModuleDefinition
	content := file.Modules.Content
	for i := 0; i+1 < len(content); i += 2 {
		slug := content[i].Value
		var m ModuleDefinition
		if err := content[i+1].Decode(&m); err != nil {
			return nil, fmt.Errorf("module %s: %w", slug, err)
		}
		m.Slug = slug
		if err := normalize(&m); err != nil {
			return nil, fmt.Errorf("module %s: %w", slug, err)
		}
		modules = append(modules, &m)
	}

	title := file.Title
	if title == "" {
		title = "Admin"
	}
	return NewRegistry(title, modules), nil
}

func normalize(m *ModuleDefinition) error {
	if m.Table == "" {
		return fmt.Errorf("table is required")
	}
	if m.Label == "" {
		m.Label = m.Slug
	}

	for name, f := range m.Fields {
		f.Name = name
		f.Kind = ParseFieldKind(string(f.Kind))
		if f.Label == "" {
			f.Label = name
		}
	}

	// Editing or deleting needs a way to address a single row.
	if (m.AllowEdit || m.AllowDelete) && m.Primary == "" && len(m.Composite) == 0 {
		return fmt.Errorf("edit/delete enabled but no primary or composite key configured")
	}

	if m.OrderBy != nil {
		switch m.OrderBy.Direction {
		case "", "asc", "desc":
		default:
			return fmt.Errorf("order_by direction must be asc or desc, got %q", m.OrderBy.Direction)
		}
	}

	for col, rule := range m.Computed {
		switch rule.Kind {
		case "point":
			if rule.Lat == "" || rule.Lng == "" {
				return fmt.Errorf("computed %s: point rule needs lat and lng fields", col)
			}
		case "expr":
			prog, err := expr.Compile(rule.Expression)
			if err != nil {
				return fmt.Errorf("computed %s: %w", col, err)
			}
			rule.Program = prog
		default:
			return fmt.Errorf("computed %s: unknown rule type %q", col, rule.Kind)
		}
	}

	return nil
}
