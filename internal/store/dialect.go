package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evw88/nifayatech/internal/metadata"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// ColumnType maps a field kind to the database DDL type.
	ColumnType(kind metadata.FieldKind) string

	// SerialPrimaryKey returns the DDL for an auto-incrementing integer
	// primary key column.
	SerialPrimaryKey() string

	// PointType returns the DDL type for computed geometry columns.
	PointType() string

	// NowExpr returns the SQL expression for the current timestamp.
	NowExpr() string

	// MapError inspects a driver error and returns a well-known sentinel
	// error if applicable.
	MapError(err error) error

	// NeedsBoolFix returns true if boolean columns come back as integers (SQLite).
	NeedsBoolFix() bool
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// --- PostgreSQL ---

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder { return &pgParamBuilder{} }

func (d *PostgresDialect) ColumnType(kind metadata.FieldKind) string {
	switch kind {
	case metadata.KindNumber:
		return "BIGINT"
	case metadata.KindDecimal:
		return "NUMERIC(18,6)"
	case metadata.KindBoolean:
		return "BOOLEAN"
	case metadata.KindDate:
		return "DATE"
	case metadata.KindDatetime:
		return "TIMESTAMPTZ"
	case metadata.KindTime:
		return "TIME"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) SerialPrimaryKey() string { return "BIGSERIAL PRIMARY KEY" }
func (d *PostgresDialect) PointType() string        { return "POINT" }
func (d *PostgresDialect) NowExpr() string          { return "NOW()" }

func (d *PostgresDialect) MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
	}
	return err
}

func (d *PostgresDialect) NeedsBoolFix() bool { return false }

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }

// --- SQLite ---

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder { return &sqliteParamBuilder{} }

func (d *SQLiteDialect) ColumnType(kind metadata.FieldKind) string {
	switch kind {
	case metadata.KindNumber:
		return "INTEGER"
	case metadata.KindDecimal:
		return "REAL"
	case metadata.KindBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) SerialPrimaryKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (d *SQLiteDialect) PointType() string        { return "TEXT" }
func (d *SQLiteDialect) NowExpr() string          { return "CURRENT_TIMESTAMP" }

func (d *SQLiteDialect) MapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	}
	return err
}

func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
