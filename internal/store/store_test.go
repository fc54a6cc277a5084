package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db, Dialect: NewDialect("postgres")}, mock
}

func TestQueryRowNotFound(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectQuery("SELECT * FROM zones WHERE id = $1").WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := QueryRow(context.Background(), st.DB, "SELECT * FROM zones WHERE id = $1", 99)
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertIDPostgresReturning(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO zones (name) VALUES ($1) RETURNING id").
		WithArgs("Downtown").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := InsertID(context.Background(), st.DB, st.Dialect,
		"INSERT INTO zones (name) VALUES ($1)", "id", "Downtown")
	if err != nil {
		t.Fatalf("InsertID: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCount(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectQuery("SELECT COUNT(*) AS count FROM containers").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := Count(context.Background(), st.DB, "containers")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
}

func TestParamBuilders(t *testing.T) {
	pg := NewDialect("postgres").NewParamBuilder()
	if p := pg.Add("a"); p != "$1" {
		t.Errorf("pg first placeholder = %s", p)
	}
	if p := pg.Add("b"); p != "$2" {
		t.Errorf("pg second placeholder = %s", p)
	}

	lite := NewDialect("sqlite").NewParamBuilder()
	if p := lite.Add("a"); p != "?1" {
		t.Errorf("sqlite first placeholder = %s", p)
	}
	if got := len(lite.Params()); got != 1 {
		t.Errorf("params = %d, want 1", got)
	}
}

func TestNormalizeBooleans(t *testing.T) {
	rows := []map[string]any{
		{"id": int64(1), "is_smart": int64(1), "code": "C-1"},
		{"id": int64(2), "is_smart": int64(0), "code": "C-2"},
	}

	NormalizeBooleans(rows, []string{"is_smart"})

	if rows[0]["is_smart"] != true || rows[1]["is_smart"] != false {
		t.Errorf("rows = %v", rows)
	}
	if rows[0]["id"] != int64(1) {
		t.Error("non-boolean fields must be untouched")
	}
}

func TestValueRender(t *testing.T) {
	pb := NewDialect("postgres").NewParamBuilder()

	if got := Lit("hello").Render(pb); got != "$1" {
		t.Errorf("literal render = %s, want $1", got)
	}
	if got := RawExpr("NOW()").Render(pb); got != "NOW()" {
		t.Errorf("expr render = %s, want NOW()", got)
	}
	if params := pb.Params(); len(params) != 1 || params[0] != "hello" {
		t.Errorf("params = %v, want [hello]", params)
	}
}

func TestMapErrorUniqueViolation(t *testing.T) {
	lite := NewDialect("sqlite")

	err := lite.MapError(errors.New("constraint failed: UNIQUE constraint failed: users.username"))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("sqlite unique violation not mapped: %v", err)
	}

	passthrough := errors.New("database is locked")
	if got := lite.MapError(passthrough); got != passthrough {
		t.Errorf("unrelated error must pass through, got %v", got)
	}
}
