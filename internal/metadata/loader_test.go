package metadata

import (
	"strings"
	"testing"
)

const sampleConfig = `
title: Waste Ops
modules:
  zones:
    label: Zones
    table: zones
    group: Infrastructure
    primary: zone_id
    fields:
      zone_name: {type: text, label: Name, required: true}
      city: {type: text, label: City}
    list: [zone_name, city]
    form: [zone_name, city]
    searchable: [zone_name]
  containers:
    label: Containers
    table: containers
    group: Infrastructure
    primary: container_id
    per_page: 25
    order_by: {field: container_code, direction: asc}
    fields:
      container_code: {type: text, label: Code, required: true}
      latitude: {type: decimal, label: Latitude}
      longitude: {type: decimal, label: Longitude}
      mystery: {type: hologram, label: Mystery}
    list: [container_code]
    form: [container_code, latitude, longitude]
    computed:
      location: {type: point, lat: latitude, lng: longitude}
  readings:
    label: Readings
    table: sensor_readings
    group: Telemetry
    primary: reading_id
    allow_create: false
    allow_edit: false
    fields:
      fill_percentage: {type: decimal, label: Fill}
    list: [fill_percentage]
    form: []
  route-stops:
    label: Route Stops
    table: route_containers
    composite: [route_id, container_id]
    fields:
      route_id: {type: number, label: Route}
      container_id: {type: number, label: Container}
      sequence_order: {type: number, label: Sequence}
    list: [route_id, container_id, sequence_order]
    form: [route_id, container_id, sequence_order]
`

func TestParse_DefaultsApplied(t *testing.T) {
	reg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	zones := reg.Get("zones")
	if zones == nil {
		t.Fatal("expected zones module")
	}
	if zones.PerPage != 15 {
		t.Fatalf("expected default per_page 15, got %d", zones.PerPage)
	}
	if !zones.AllowCreate || !zones.AllowEdit || !zones.AllowDelete {
		t.Fatal("expected allow flags to default to true")
	}

	readings := reg.Get("readings")
	if readings.AllowCreate || readings.AllowEdit {
		t.Fatal("expected explicit allow_create/allow_edit false to survive")
	}
	if !readings.AllowDelete {
		t.Fatal("expected allow_delete to default to true")
	}
	if readings.Group != "Telemetry" {
		t.Fatalf("expected group Telemetry, got %s", readings.Group)
	}

	stops := reg.Get("route-stops")
	if stops.Group != "General" {
		t.Fatalf("expected default group General, got %s", stops.Group)
	}
	if !stops.HasCompositeKey() {
		t.Fatal("expected composite key module")
	}
}

func TestParse_UnknownFieldKindFallsBackToText(t *testing.T) {
	reg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := reg.Get("containers").GetField("mystery")
	if f == nil {
		t.Fatal("expected mystery field")
	}
	if f.Kind != KindText {
		t.Fatalf("expected unknown kind to normalize to text, got %s", f.Kind)
	}
}

func TestParse_FieldOrderPreserved(t *testing.T) {
	reg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := reg.Get("containers").FieldOrder
	want := []string{"container_code", "latitude", "longitude", "mystery"}
	if len(got) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field order mismatch at %d: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestParse_GroupsPreserveDeclarationOrder(t *testing.T) {
	reg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	groups := reg.Groups()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0].Label != "Infrastructure" || groups[1].Label != "Telemetry" || groups[2].Label != "General" {
		t.Fatalf("unexpected group order: %s, %s, %s", groups[0].Label, groups[1].Label, groups[2].Label)
	}
	if len(groups[0].Modules) != 2 || groups[0].Modules[0].Slug != "zones" {
		t.Fatalf("expected zones first in Infrastructure, got %+v", groups[0].Modules)
	}
}

func TestParse_EditWithoutIdentityRejected(t *testing.T) {
	cfg := `
modules:
  broken:
    table: broken
    fields:
      name: {type: text}
    list: [name]
    form: [name]
`
	_, err := Parse([]byte(cfg))
	if err == nil {
		t.Fatal("expected error for edit-enabled module without identity")
	}
	if !strings.Contains(err.Error(), "primary or composite") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParse_ComputedExprCompiledAtLoad(t *testing.T) {
	cfg := `
modules:
  stock:
    table: material_inventory
    primary: inventory_id
    fields:
      quantity_kg: {type: decimal}
    list: [quantity_kg]
    form: [quantity_kg]
    computed:
      quantity_tons: {type: expr, expression: "record.quantity_kg / 1000"}
`
	reg, err := Parse([]byte(cfg))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rule := reg.Get("stock").Computed["quantity_tons"]
	if rule.Program == nil {
		t.Fatal("expected compiled program on expr rule")
	}
}

func TestParse_ComputedExprCompileErrorRejected(t *testing.T) {
	cfg := `
modules:
  stock:
    table: material_inventory
    primary: inventory_id
    fields:
      quantity_kg: {type: decimal}
    list: [quantity_kg]
    form: [quantity_kg]
    computed:
      bad: {type: expr, expression: "record.quantity_kg +"}
`
	if _, err := Parse([]byte(cfg)); err == nil {
		t.Fatal("expected compile error for malformed expression")
	}
}

func TestOrderFieldFallbackChain(t *testing.T) {
	cases := []struct {
		name    string
		module  ModuleDefinition
		field   string
		dir     string
	}{
		{
			name:   "explicit order_by wins",
			module: ModuleDefinition{OrderBy: &OrderBy{Field: "created_at", Direction: "asc"}, Primary: "id", List: []string{"name"}},
			field:  "created_at",
			dir:    "asc",
		},
		{
			name:   "primary when no order_by",
			module: ModuleDefinition{Primary: "id", List: []string{"name"}},
			field:  "id",
			dir:    "desc",
		},
		{
			name:   "first list field when no primary",
			module: ModuleDefinition{List: []string{"name", "city"}},
			field:  "name",
			dir:    "desc",
		},
		{
			name:   "nothing configured means no ordering",
			module: ModuleDefinition{},
			field:  "",
			dir:    "desc",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			field, dir := tc.module.OrderField()
			if field != tc.field || dir != tc.dir {
				t.Fatalf("want (%q, %q), got (%q, %q)", tc.field, tc.dir, field, dir)
			}
		})
	}
}
