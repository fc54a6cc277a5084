package admin

import (
	"github.com/evw88/nifayatech/internal/metadata"
)

func containersModule() *metadata.ModuleDefinition {
	return &metadata.ModuleDefinition{
		Slug:    "containers",
		Label:   "Containers",
		Table:   "containers",
		Group:   "Infrastructure",
		Primary: "id",
		Fields: map[string]*metadata.FieldSpec{
			"id":        {Name: "id", Kind: metadata.KindNumber, Label: "ID"},
			"code":      {Name: "code", Kind: metadata.KindText, Label: "Code", Required: true},
			"zone_id":   {Name: "zone_id", Kind: metadata.KindSelect, Label: "Zone", Relation: &metadata.RelationSpec{Table: "zones", Key: "id", Label: "name"}},
			"status":    {Name: "status", Kind: metadata.KindEnum, Label: "Status", Default: "active", Options: map[string]string{"active": "Active", "inactive": "Inactive"}},
			"latitude":  {Name: "latitude", Kind: metadata.KindDecimal, Label: "Latitude"},
			"longitude": {Name: "longitude", Kind: metadata.KindDecimal, Label: "Longitude"},
			"is_smart":  {Name: "is_smart", Kind: metadata.KindBoolean, Label: "Smart Bin"},
		},
		FieldOrder:  []string{"id", "code", "zone_id", "status", "latitude", "longitude", "is_smart"},
		List:        []string{"code", "zone_id", "status", "is_smart"},
		Form:        []string{"code", "zone_id", "status", "latitude", "longitude", "is_smart"},
		Searchable:  []string{"code", "status"},
		OrderBy:     &metadata.OrderBy{Field: "code", Direction: "asc"},
		PerPage:     10,
		AllowCreate: true,
		AllowEdit:   true,
		AllowDelete: true,
		Computed: map[string]*metadata.ComputedRule{
			"location": {Kind: "point", Lat: "latitude", Lng: "longitude"},
		},
	}
}

func routeStopsModule() *metadata.ModuleDefinition {
	return &metadata.ModuleDefinition{
		Slug:      "route-stops",
		Label:     "Route Stops",
		Table:     "route_stops",
		Group:     "Operations",
		Composite: []string{"route_id", "container_id"},
		Fields: map[string]*metadata.FieldSpec{
			"route_id":     {Name: "route_id", Kind: metadata.KindNumber, Label: "Route", Required: true},
			"container_id": {Name: "container_id", Kind: metadata.KindNumber, Label: "Container", Required: true},
			"position":     {Name: "position", Kind: metadata.KindNumber, Label: "Position"},
		},
		FieldOrder:  []string{"route_id", "container_id", "position"},
		List:        []string{"route_id", "container_id", "position"},
		Form:        []string{"route_id", "container_id", "position"},
		PerPage:     15,
		AllowCreate: true,
		AllowEdit:   true,
		AllowDelete: true,
	}
}

func usersModule() *metadata.ModuleDefinition {
	return &metadata.ModuleDefinition{
		Slug:    "users",
		Label:   "Users",
		Table:   "users",
		Group:   "Access",
		Primary: "id",
		Fields: map[string]*metadata.FieldSpec{
			"id":       {Name: "id", Kind: metadata.KindNumber, Label: "ID"},
			"name":     {Name: "name", Kind: metadata.KindText, Label: "Name", Required: true},
			"email":    {Name: "email", Kind: metadata.KindEmail, Label: "Email", Required: true},
			"password": {Name: "password", Kind: metadata.KindPassword, Label: "Password"},
		},
		FieldOrder:  []string{"id", "name", "email", "password"},
		List:        []string{"name", "email"},
		Form:        []string{"name", "email", "password"},
		PerPage:     15,
		AllowCreate: true,
		AllowEdit:   true,
		AllowDelete: true,
	}
}

// readingsModule has every mutation turned off.
func readingsModule() *metadata.ModuleDefinition {
	return &metadata.ModuleDefinition{
		Slug:    "readings",
		Label:   "Sensor Readings",
		Table:   "sensor_readings",
		Group:   "Telemetry",
		Primary: "id",
		Fields: map[string]*metadata.FieldSpec{
			"id":         {Name: "id", Kind: metadata.KindNumber, Label: "ID"},
			"fill_level": {Name: "fill_level", Kind: metadata.KindNumber, Label: "Fill Level"},
		},
		FieldOrder: []string{"id", "fill_level"},
		List:       []string{"id", "fill_level"},
		PerPage:    25,
	}
}

type staticHasher struct{}

func (staticHasher) Hash(plain string) (string, error) {
	return "hashed:" + plain, nil
}
