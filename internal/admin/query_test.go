package admin

import (
	"reflect"
	"testing"

	"github.com/evw88/nifayatech/internal/metadata"
	"github.com/evw88/nifayatech/internal/store"
)

var pg = store.NewDialect("postgres")

func TestBuildListSQL(t *testing.T) {
	m := containersModule()

	sqlStr, params := BuildListSQL(pg, m, "", 1)
	want := "SELECT * FROM containers ORDER BY code ASC LIMIT $1 OFFSET $2"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
	if !reflect.DeepEqual(params, []any{10, 0}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildListSQLSearch(t *testing.T) {
	m := containersModule()

	sqlStr, params := BuildListSQL(pg, m, "Bin", 2)
	want := "SELECT * FROM containers WHERE (LOWER(code) LIKE $1 OR LOWER(status) LIKE $2) ORDER BY code ASC LIMIT $3 OFFSET $4"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
	if !reflect.DeepEqual(params, []any{"%bin%", "%bin%", 10, 10}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildListSQLNoOrdering(t *testing.T) {
	m := &metadata.ModuleDefinition{
		Slug: "logs", Table: "logs", PerPage: 15,
		Fields: map[string]*metadata.FieldSpec{},
	}

	sqlStr, _ := BuildListSQL(pg, m, "", 1)
	want := "SELECT * FROM logs LIMIT $1 OFFSET $2"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
}

func TestBuildListSQLOrderingFallback(t *testing.T) {
	m := containersModule()
	m.OrderBy = nil

	sqlStr, _ := BuildListSQL(pg, m, "", 1)
	want := "SELECT * FROM containers ORDER BY id DESC LIMIT $1 OFFSET $2"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
}

func TestSearchClauseSkipsUnknownFields(t *testing.T) {
	m := containersModule()
	m.Searchable = []string{"code", "no_such_field"}

	sqlStr, params := BuildListCountSQL(pg, m, "abc")
	want := "SELECT COUNT(*) AS count FROM containers WHERE (LOWER(code) LIKE $1)"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
	if len(params) != 1 {
		t.Errorf("params = %v", params)
	}
}

func TestBuildSelectByKeySQLComposite(t *testing.T) {
	m := routeStopsModule()

	sqlStr, params := BuildSelectByKeySQL(pg, m, "3--7")
	want := "SELECT * FROM route_stops WHERE route_id = $1 AND container_id = $2 LIMIT $3"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
	if !reflect.DeepEqual(params, []any{"3", "7", 1}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildInsertSQLWithRawExpr(t *testing.T) {
	m := containersModule()

	p := newPayload()
	p.Set("code", store.Lit("C-1"))
	p.Set("location", store.RawExpr("POINT(54.38, 24.45)"))

	sqlStr, params := BuildInsertSQL(pg, m, p)
	want := "INSERT INTO containers (code, location) VALUES ($1, POINT(54.38, 24.45))"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
	if !reflect.DeepEqual(params, []any{"C-1"}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildUpdateSQL(t *testing.T) {
	m := containersModule()

	p := newPayload()
	p.Set("code", store.Lit("C-2"))
	p.Set("location", store.RawExpr("POINT(54.38, 24.45)"))

	sqlStr, params := BuildUpdateSQL(pg, m, p, "42")
	want := "UPDATE containers SET code = $1, location = POINT(54.38, 24.45) WHERE id = $2"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
	if !reflect.DeepEqual(params, []any{"C-2", "42"}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildUpdateSQLEmptyPayload(t *testing.T) {
	m := containersModule()

	sqlStr, params := BuildUpdateSQL(pg, m, newPayload(), "42")
	if sqlStr != "" || params != nil {
		t.Errorf("expected empty statement, got %q / %v", sqlStr, params)
	}
}

func TestBuildDeleteSQLComposite(t *testing.T) {
	m := routeStopsModule()

	sqlStr, params := BuildDeleteSQL(pg, m, "3--7")
	want := "DELETE FROM route_stops WHERE route_id = $1 AND container_id = $2"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
	if !reflect.DeepEqual(params, []any{"3", "7"}) {
		t.Errorf("params = %v", params)
	}
}

func TestSQLitePlaceholders(t *testing.T) {
	m := containersModule()
	lite := store.NewDialect("sqlite")

	sqlStr, _ := BuildDeleteSQL(lite, m, "5")
	want := "DELETE FROM containers WHERE id = ?1"
	if sqlStr != want {
		t.Errorf("sql = %q, want %q", sqlStr, want)
	}
}
