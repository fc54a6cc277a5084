package store

// Value is a column value destined for an INSERT or UPDATE. It is either a
// literal bound as a query parameter or a raw SQL expression (used for
// computed geometry columns). Keeping the two cases distinct means a raw
// expression can never be confused with user-supplied data.
type Value struct {
	lit    any
	expr   string
	isExpr bool
}

// Lit wraps a literal value.
func Lit(v any) Value {
	return Value{lit: v}
}

// RawExpr wraps a SQL expression fragment emitted verbatim.
func RawExpr(expr string) Value {
	return Value{expr: expr, isExpr: true}
}

// IsExpr reports whether the value is a raw SQL expression.
func (v Value) IsExpr() bool { return v.isExpr }

// Literal returns the wrapped literal (nil for expressions).
func (v Value) Literal() any { return v.lit }

// Render returns the SQL fragment for this value, binding literals through
// the parameter builder and splicing expressions verbatim.
func (v Value) Render(pb ParamBuilder) string {
	if v.isExpr {
		return v.expr
	}
	return pb.Add(v.lit)
}
