// Package odata builds and serializes OData v4 filter expressions for the
// $filter query parameter.
//
// Field is the entry point: comparison methods on a field reference yield
// expression leaves, which combine through And/Or/Not into trees. Nodes are
// immutable; every combinator returns a new expression and never mutates
// its operands. Field paths use dot-separated segments and are rendered
// with slash separators, per OData convention:
//
//	expr := odata.Field("worker.firstName").Eq("John").
//		And(odata.Field("hireDate").Ge("2020-01-01"))
//	expr.Serialize() // (worker/firstName eq 'John' and hireDate ge '2020-01-01')
package odata

import (
	"fmt"
	"strings"
)

// Comparison operators.
const (
	opEq = "eq"
	opNe = "ne"
	opGt = "gt"
	opGe = "ge"
	opLt = "lt"
	opLe = "le"

	opAnd = "and"
	opOr  = "or"
)

// String function operators, rendered as fn(field,'value').
const (
	fnContains   = "contains"
	fnStartsWith = "startswith"
	fnEndsWith   = "endswith"
)

// node is one vertex of the expression tree. render receives the parent
// operator so logical chains with the same operator flatten while mixed
// operators stay parenthesized.
type node interface {
	render(parentOp string) string
}

// Expr is an immutable filter expression.
type Expr struct {
	n node
}

// IsZero reports whether the expression is empty.
func (e Expr) IsZero() bool {
	return e.n == nil
}

// Serialize renders the expression as an OData filter string.
func (e Expr) Serialize() string {
	if e.n == nil {
		return ""
	}
	return e.n.render("")
}

// And combines two expressions with logical AND.
func (e Expr) And(other Expr) Expr {
	return Expr{n: logical{op: opAnd, left: e.n, right: other.n}}
}

// Or combines two expressions with logical OR.
func (e Expr) Or(other Expr) Expr {
	return Expr{n: logical{op: opOr, left: e.n, right: other.n}}
}

// And combines two expressions with logical AND.
func And(left, right Expr) Expr {
	return left.And(right)
}

// Or combines two expressions with logical OR.
func Or(left, right Expr) Expr {
	return left.Or(right)
}

// Not inverts an expression with logical NOT.
func Not(operand Expr) Expr {
	return Expr{n: unary{operand: operand.n}}
}

// Raw wraps a pre-formatted filter string. It passes through serialization
// untouched.
func Raw(filter string) Expr {
	return Expr{n: raw(filter)}
}

// Ident is a field path used as a comparison value, rendered unquoted with
// slash separators.
type Ident string

// FieldRef is a reference to a field by its dot-separated path. Comparison
// methods on it produce expression leaves.
type FieldRef struct {
	path string
}

// Field creates a field reference for building filter conditions, e.g.
// Field("worker.person.legalName.familyName").
func Field(path string) FieldRef {
	return FieldRef{path: path}
}

// Eq creates an equality comparison (field eq value).
func (f FieldRef) Eq(v any) Expr { return f.compare(opEq, v) }

// Ne creates a not-equal comparison (field ne value).
func (f FieldRef) Ne(v any) Expr { return f.compare(opNe, v) }

// Gt creates a greater-than comparison (field gt value).
func (f FieldRef) Gt(v any) Expr { return f.compare(opGt, v) }

// Ge creates a greater-than-or-equal comparison (field ge value).
func (f FieldRef) Ge(v any) Expr { return f.compare(opGe, v) }

// Lt creates a less-than comparison (field lt value).
func (f FieldRef) Lt(v any) Expr { return f.compare(opLt, v) }

// Le creates a less-than-or-equal comparison (field le value).
func (f FieldRef) Le(v any) Expr { return f.compare(opLe, v) }

// Contains creates a substring filter, contains(field,'value').
func (f FieldRef) Contains(v any) Expr { return f.compare(fnContains, v) }

// StartsWith creates a prefix filter, startswith(field,'value').
func (f FieldRef) StartsWith(v any) Expr { return f.compare(fnStartsWith, v) }

// EndsWith creates a suffix filter, endswith(field,'value').
func (f FieldRef) EndsWith(v any) Expr { return f.compare(fnEndsWith, v) }

// IsIn matches the field against any of the given values. OData v4 has no
// native in operator here, so it expands to an or-chain of eq comparisons
// at serialization time. An empty value list serializes to the
// always-false 1 eq 0.
func (f FieldRef) IsIn(values ...any) Expr {
	vs := make([]any, len(values))
	copy(vs, values)
	return Expr{n: in{field: f.path, values: vs}}
}

func (f FieldRef) compare(op string, v any) Expr {
	return Expr{n: comparison{field: f.path, op: op, value: v}}
}

// comparison is a single field-operator-value leaf.
type comparison struct {
	field string
	op    string
	value any
}

func (c comparison) render(string) string {
	field := slashPath(c.field)
	switch c.op {
	case fnContains, fnStartsWith, fnEndsWith:
		return fmt.Sprintf("%s(%s,%s)", c.op, field, renderValue(c.value))
	default:
		return fmt.Sprintf("%s %s %s", field, c.op, renderValue(c.value))
	}
}

// logical joins two subtrees with and/or. A chain of the same operator
// renders flat; a subtree whose operator differs from its parent's is
// parenthesized, as is the tree root.
type logical struct {
	op          string
	left, right node
}

func (l logical) render(parentOp string) string {
	inner := l.renderBare()
	if parentOp == l.op {
		return inner
	}
	return "(" + inner + ")"
}

func (l logical) renderBare() string {
	return l.left.render(l.op) + " " + l.op + " " + l.right.render(l.op)
}

// unary is logical NOT; the operand is always parenthesized.
type unary struct {
	operand node
}

func (u unary) render(string) string {
	return "not (" + bare(u.operand) + ")"
}

// in expands to an or-chain of eq comparisons.
type in struct {
	field  string
	values []any
}

func (i in) render(parentOp string) string {
	if len(i.values) == 0 {
		// Empty in can match nothing.
		return "1 eq 0"
	}

	field := slashPath(i.field)
	clauses := make([]string, len(i.values))
	for idx, v := range i.values {
		clauses[idx] = fmt.Sprintf("%s eq %s", field, renderValue(v))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}

	inner := strings.Join(clauses, " or ")
	if parentOp == opOr {
		return inner
	}
	return "(" + inner + ")"
}

// fieldNode is a bare field used as a boolean expression (e.g. not isActive).
type fieldNode string

func (f fieldNode) render(string) string {
	return slashPath(string(f))
}

// raw is a pre-formatted filter fragment.
type raw string

func (r raw) render(string) string {
	return string(r)
}

// bare renders a node without its own outer parentheses, for contexts that
// supply their own (the not operand).
func bare(n node) string {
	switch t := n.(type) {
	case logical:
		return t.renderBare()
	case in:
		return t.render(opOr)
	default:
		return n.render("")
	}
}

// slashPath rewrites dot-separated paths to OData slash notation.
func slashPath(path string) string {
	return strings.ReplaceAll(path, ".", "/")
}

// renderValue renders a literal: null for nil, bare booleans and numbers,
// single-quoted strings with embedded quotes doubled.
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprintf("%v", t)
	case Ident:
		return slashPath(string(t))
	case string:
		return quoteString(t)
	default:
		return quoteString(fmt.Sprint(t))
	}
}

// quoteString single-quotes a string literal, doubling embedded quotes.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
