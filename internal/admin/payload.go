package admin

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/expr-lang/expr"

	"github.com/evw88/nifayatech/internal/metadata"
	"github.com/evw88/nifayatech/internal/store"
)

// SecretHasher one-way hashes password-type field values before storage.
type SecretHasher interface {
	Hash(plain string) (string, error)
}

// Payload is the ordered set of column values for a write. Values are either
// literals or raw expressions (computed geometry).
type Payload struct {
	Columns []string
	Values  map[string]store.Value
}

func newPayload() Payload {
	return Payload{Values: make(map[string]store.Value)}
}

// Set adds or replaces a column value, preserving first-set column order.
func (p *Payload) Set(column string, v store.Value) {
	if _, exists := p.Values[column]; !exists {
		p.Columns = append(p.Columns, column)
	}
	p.Values[column] = v
}

// Empty reports whether the payload carries no columns at all.
func (p *Payload) Empty() bool {
	return len(p.Columns) == 0
}

// BuildPayload derives the persisted column set from submitted input.
// Readonly and unknown form fields are skipped; a blank password on update is
// omitted entirely so the stored hash survives; booleans are always written;
// other fields fall back to the configured default on create, else null.
// Computed columns are derived last, over the fully resolved field values.
func BuildPayload(input map[string]any, m *metadata.ModuleDefinition, mode Mode, hasher SecretHasher) (Payload, error) {
	p := newPayload()

	for _, name := range m.Form {
		f := m.GetField(name)
		if f == nil || f.Readonly {
			continue
		}

		switch f.Kind {
		case metadata.KindPassword:
			raw := stringValue(input[name])
			if raw == "" {
				continue
			}
			hashed, err := hasher.Hash(raw)
			if err != nil {
				return Payload{}, fmt.Errorf("hash %s: %w", name, err)
			}
			p.Set(name, store.Lit(hashed))

		case metadata.KindBoolean:
			p.Set(name, store.Lit(coerceBool(input[name])))

		default:
			v := input[name]
			if isEmpty(v) {
				if mode == ModeCreate && f.HasDefault() {
					v = f.Default
				} else {
					v = nil
				}
			}
			p.Set(name, store.Lit(v))
		}
	}

	applyComputed(&p, m)
	return p, nil
}

// applyComputed runs each computed rule exactly once, after all plain fields
// have resolved, so derived columns see final values including defaults.
// Computed values bypass validation.
func applyComputed(p *Payload, m *metadata.ModuleDefinition) {
	for _, col := range sortedComputedColumns(m) {
		rule := m.Computed[col]
		switch rule.Kind {
		case "point":
			lat, latOK := payloadFloat(p, rule.Lat)
			lng, lngOK := payloadFloat(p, rule.Lng)
			if latOK && lngOK {
				p.Set(col, store.RawExpr(fmt.Sprintf("POINT(%s, %s)", formatFloat(lng), formatFloat(lat))))
			}
		case "expr":
			if rule.Program == nil {
				continue
			}
			result, err := expr.Run(rule.Program, map[string]any{"record": p.literals()})
			if err != nil {
				continue
			}
			p.Set(col, store.Lit(result))
		}
	}
}

func (p *Payload) literals() map[string]any {
	out := make(map[string]any, len(p.Columns))
	for _, col := range p.Columns {
		v := p.Values[col]
		if !v.IsExpr() {
			out[col] = v.Literal()
		}
	}
	return out
}

func sortedComputedColumns(m *metadata.ModuleDefinition) []string {
	cols := make([]string, 0, len(m.Computed))
	for col := range m.Computed {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// payloadFloat reads a resolved payload column as a float. Columns that are
// absent or null do not count as present; a blank coordinate suppresses the
// derived geometry.
func payloadFloat(p *Payload, column string) (float64, bool) {
	v, ok := p.Values[column]
	if !ok || v.IsExpr() || v.Literal() == nil {
		return 0, false
	}
	return floatOf(v.Literal()), true
}

func floatOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// coerceBool converts truthy-ish form input to a strict boolean.
func coerceBool(v any) bool {
	switch n := v.(type) {
	case bool:
		return n
	case float64:
		return n != 0
	case int:
		return n != 0
	case string:
		switch n {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}
