package admin

import (
	"context"
	"fmt"
	"sort"

	"github.com/evw88/nifayatech/internal/metadata"
	"github.com/evw88/nifayatech/internal/store"
)

// Option is a single select choice: the stored key and its display label.
type Option struct {
	Key   any    `json:"key"`
	Label string `json:"label"`
}

// RelationOptions fetches the ordered key/label pairs backing a relation
// field, ordered by the configured column or the label column.
func RelationOptions(ctx context.Context, st *store.Store, rel *metadata.RelationSpec) ([]Option, error) {
	orderField := rel.OrderBy
	if orderField == "" {
		orderField = rel.Label
	}

	sqlStr := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s", rel.Key, rel.Label, rel.Table, orderField)
	rows, err := store.QueryRows(ctx, st.DB, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("relation options %s: %w", rel.Table, err)
	}

	opts := make([]Option, 0, len(rows))
	for _, row := range rows {
		opts = append(opts, Option{Key: row[rel.Key], Label: stringValue(row[rel.Label])})
	}
	return opts, nil
}

// FieldOptions resolves the select/enum option lists for a module's form
// fields: relation-backed fields query their table, static fields use the
// configured options mapping.
func FieldOptions(ctx context.Context, st *store.Store, m *metadata.ModuleDefinition) (map[string][]Option, error) {
	options := make(map[string][]Option)
	for _, name := range m.Form {
		f := m.GetField(name)
		if f == nil {
			continue
		}
		if f.Kind != metadata.KindSelect && f.Kind != metadata.KindEnum {
			continue
		}
		if f.Relation != nil {
			opts, err := RelationOptions(ctx, st, f.Relation)
			if err != nil {
				return nil, err
			}
			options[name] = opts
			continue
		}
		options[name] = staticOptions(f.Options)
	}
	return options, nil
}

// RelationMaps translates stored foreign-key values into display labels for
// the list view. Only fields present in the list are mapped.
func RelationMaps(ctx context.Context, st *store.Store, m *metadata.ModuleDefinition) (map[string]map[string]string, error) {
	maps := make(map[string]map[string]string)
	for _, name := range m.List {
		f := m.GetField(name)
		if f == nil || f.Relation == nil {
			continue
		}
		opts, err := RelationOptions(ctx, st, f.Relation)
		if err != nil {
			return nil, err
		}
		labels := make(map[string]string, len(opts))
		for _, opt := range opts {
			labels[keyString(opt.Key)] = opt.Label
		}
		maps[name] = labels
	}
	return maps, nil
}

func staticOptions(options map[string]string) []Option {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]Option, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, Option{Key: k, Label: options[k]})
	}
	return opts
}
