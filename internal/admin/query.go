package admin

import (
	"fmt"
	"strings"

	"github.com/evw88/nifayatech/internal/metadata"
	"github.com/evw88/nifayatech/internal/store"
)

// BuildListSQL builds the paginated list query: optional OR-combined
// case-insensitive substring search across the searchable fields, the
// ordering fallback chain, and LIMIT/OFFSET pagination.
func BuildListSQL(d store.Dialect, m *metadata.ModuleDefinition, search string, page int) (string, []any) {
	pb := d.NewParamBuilder()

	sqlStr := fmt.Sprintf("SELECT * FROM %s", m.Table)
	if clause := searchClause(m, search, pb); clause != "" {
		sqlStr += " WHERE " + clause
	}

	if field, dir := m.OrderField(); field != "" {
		sqlStr += fmt.Sprintf(" ORDER BY %s %s", field, strings.ToUpper(dir))
	}

	if page < 1 {
		page = 1
	}
	limit := pb.Add(m.PerPage)
	offset := pb.Add((page - 1) * m.PerPage)
	sqlStr += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return sqlStr, pb.Params()
}

// BuildListCountSQL builds the COUNT query with the same search filter as
// the list query.
func BuildListCountSQL(d store.Dialect, m *metadata.ModuleDefinition, search string) (string, []any) {
	pb := d.NewParamBuilder()

	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", m.Table)
	if clause := searchClause(m, search, pb); clause != "" {
		sqlStr += " WHERE " + clause
	}
	return sqlStr, pb.Params()
}

// searchClause returns the OR-combined LIKE filter, or empty when the search
// string is blank or the module declares no searchable fields. Field names
// absent from the field map are skipped, not an error.
func searchClause(m *metadata.ModuleDefinition, search string, pb store.ParamBuilder) string {
	if search == "" || len(m.Searchable) == 0 {
		return ""
	}

	pattern := "%" + strings.ToLower(search) + "%"
	var parts []string
	for _, name := range m.Searchable {
		if m.GetField(name) == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE %s", name, pb.Add(pattern)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// BuildSelectByKeySQL selects the single record addressed by an identity token.
func BuildSelectByKeySQL(d store.Dialect, m *metadata.ModuleDefinition, token string) (string, []any) {
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT * FROM %s", m.Table)
	if where := keyWhere(m, token, pb); where != "" {
		sqlStr += " WHERE " + where
	}
	sqlStr += " LIMIT " + pb.Add(1)
	return sqlStr, pb.Params()
}

// BuildInsertSQL builds the INSERT statement for a payload. Raw-expression
// values are spliced inline; literals become bound parameters.
func BuildInsertSQL(d store.Dialect, m *metadata.ModuleDefinition, p Payload) (string, []any) {
	pb := d.NewParamBuilder()

	placeholders := make([]string, len(p.Columns))
	for i, col := range p.Columns {
		placeholders[i] = p.Values[col].Render(pb)
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		m.Table, strings.Join(p.Columns, ", "), strings.Join(placeholders, ", "))
	return sqlStr, pb.Params()
}

// BuildUpdateSQL builds the single-statement UPDATE constrained by the
// identity token. Returns an empty statement when the payload has no columns
// (e.g. an update consisting solely of an omitted blank password).
func BuildUpdateSQL(d store.Dialect, m *metadata.ModuleDefinition, p Payload, token string) (string, []any) {
	if p.Empty() {
		return "", nil
	}
	pb := d.NewParamBuilder()

	sets := make([]string, len(p.Columns))
	for i, col := range p.Columns {
		sets[i] = fmt.Sprintf("%s = %s", col, p.Values[col].Render(pb))
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s", m.Table, strings.Join(sets, ", "))
	if where := keyWhere(m, token, pb); where != "" {
		sqlStr += " WHERE " + where
	}
	return sqlStr, pb.Params()
}

// BuildDeleteSQL builds the single-statement DELETE constrained by the
// identity token.
func BuildDeleteSQL(d store.Dialect, m *metadata.ModuleDefinition, token string) (string, []any) {
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s", m.Table)
	if where := keyWhere(m, token, pb); where != "" {
		sqlStr += " WHERE " + where
	}
	return sqlStr, pb.Params()
}

func keyWhere(m *metadata.ModuleDefinition, token string, pb store.ParamBuilder) string {
	filters := KeyFilters(m, token)
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = fmt.Sprintf("%s = %s", f.Column, pb.Add(f.Value))
	}
	return strings.Join(parts, " AND ")
}
