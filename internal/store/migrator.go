package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/evw88/nifayatech/internal/metadata"
)

// Migrator derives table DDL from module metadata.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// EnsureTables creates the table for each module if it does not already
// exist. Columns follow field declaration order; computed columns are
// appended after the declared fields.
func (m *Migrator) EnsureTables(ctx context.Context, modules []*metadata.ModuleDefinition) error {
	for _, mod := range modules {
		if err := m.ensureTable(ctx, mod); err != nil {
			return fmt.Errorf("ensure table %s: %w", mod.Table, err)
		}
	}
	return nil
}

func (m *Migrator) ensureTable(ctx context.Context, mod *metadata.ModuleDefinition) error {
	d := m.store.Dialect

	var cols []string
	seen := make(map[string]bool)
	for _, name := range mod.FieldOrder {
		f := mod.GetField(name)
		if f == nil {
			continue
		}
		cols = append(cols, m.buildColumnDef(mod, f))
		seen[name] = true
	}

	// Primary key declared outside fields (e.g. generated ids not shown in forms).
	if mod.Primary != "" && !seen[mod.Primary] {
		cols = append([]string{mod.Primary + " " + d.SerialPrimaryKey()}, cols...)
	}

	for _, name := range computedColumns(mod) {
		if seen[name] {
			continue
		}
		if mod.Computed[name].Kind == "point" {
			cols = append(cols, name+" "+d.PointType())
		} else {
			cols = append(cols, name+" "+d.ColumnType(metadata.KindText))
		}
	}

	if mod.HasCompositeKey() {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(mod.Composite, ", ")))
	}

	sqlStr := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", mod.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sqlStr); err != nil {
		return err
	}
	return nil
}

func (m *Migrator) buildColumnDef(mod *metadata.ModuleDefinition, f *metadata.FieldSpec) string {
	d := m.store.Dialect

	if f.Name == mod.Primary && f.Kind == metadata.KindNumber {
		return f.Name + " " + d.SerialPrimaryKey()
	}

	col := f.Name + " " + d.ColumnType(f.Kind)
	if f.Name == mod.Primary {
		col += " PRIMARY KEY"
	} else if f.Required {
		col += " NOT NULL"
	}
	return col
}

func computedColumns(mod *metadata.ModuleDefinition) []string {
	cols := make([]string, 0, len(mod.Computed))
	for name := range mod.Computed {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// EnsureAuthTables creates the refresh-token table backing session rotation.
// The users table itself is module-defined and created by EnsureTables.
func (m *Migrator) EnsureAuthTables(ctx context.Context) error {
	d := m.store.Dialect
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS auth_refresh_tokens (
  id %s,
  user_id BIGINT NOT NULL,
  token TEXT NOT NULL UNIQUE,
  expires_at %s NOT NULL,
  created_at %s NOT NULL DEFAULT %s
)`, d.SerialPrimaryKey(), d.ColumnType(metadata.KindDatetime), d.ColumnType(metadata.KindDatetime), d.NowExpr())

	if _, err := m.store.DB.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("ensure auth tables: %w", err)
	}
	return nil
}
