package admin

import (
	"fmt"
	"strings"
	"time"

	"github.com/evw88/nifayatech/internal/metadata"
)

// keyDelimiter joins composite key parts into one URL-safe token. A key value
// containing the delimiter breaks round-tripping; key-eligible columns are
// expected not to contain it.
const keyDelimiter = "--"

// Filter is a single equality constraint on a column.
type Filter struct {
	Column string
	Value  any
}

// RowKey encodes a record's identity as an opaque token: composite columns
// joined in declared order, else the primary key value, else empty.
func RowKey(row map[string]any, m *metadata.ModuleDefinition) string {
	if m.HasCompositeKey() {
		parts := make([]string, len(m.Composite))
		for i, col := range m.Composite {
			parts[i] = keyString(row[col])
		}
		return strings.Join(parts, keyDelimiter)
	}
	if m.Primary != "" {
		return keyString(row[m.Primary])
	}
	return ""
}

// KeyFilters decodes an identity token into equality filters. Composite
// tokens are split on the delimiter and matched positionally; extra or
// missing parts are silently ignored.
func KeyFilters(m *metadata.ModuleDefinition, token string) []Filter {
	if m.HasCompositeKey() {
		parts := strings.Split(token, keyDelimiter)
		var filters []Filter
		for i, col := range m.Composite {
			if i < len(parts) {
				filters = append(filters, Filter{Column: col, Value: parts[i]})
			}
		}
		return filters
	}
	if m.Primary != "" {
		return []Filter{{Column: m.Primary, Value: token}}
	}
	return nil
}

func keyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		// Whole floats stringify without a trailing ".0" so numeric keys
		// coming back from JSON round-trip cleanly.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
