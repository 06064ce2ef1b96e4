// Package object defines NotScheme's runtime value set: what lives on
// the VM's operand stack and in environment frames.
package object

import (
	"fmt"
	"strconv"
	"strings"
)

// Type names a Value's runtime tag, used by the is_* type predicates and
// in runtime-error diagnostics.
type Type string

const (
	IntegerType      Type = "INTEGER"
	FloatType        Type = "FLOAT"
	StringType       Type = "STRING"
	BooleanType      Type = "BOOLEAN"
	NilType          Type = "NIL"
	ListType         Type = "LIST"
	QuotedSymbolType Type = "QUOTED_SYMBOL"
	StructType_      Type = "STRUCT"
	ClosureType      Type = "CLOSURE"
)

// Value is the tagged union of every runtime value: what PUSH pushes,
// LOAD/STORE move between the stack and an environment frame, and what a
// closure captures.
type Value interface {
	Type() Type
	// Display is how PRINT renders the value: bare, unquoted scalars.
	Display() string
	// Repr is how the value renders when nested inside a List's Display
	// — e.g. a string gets quotes it doesn't get at the top level.
	Repr() string
	// Truthy is false only for the boolean false and Nil; everything
	// else, including 0, "", and an empty list, is truthy.
	Truthy() bool
}

// Integer is a whole-number literal.
type Integer struct{ Value int64 }

func (i *Integer) Type() Type        { return IntegerType }
func (i *Integer) Display() string   { return strconv.FormatInt(i.Value, 10) }
func (i *Integer) Repr() string      { return i.Display() }
func (i *Integer) Truthy() bool      { return true }

// Float is a floating-point literal, or the result of DIV (spec.md: DIV
// is always real division).
type Float struct{ Value float64 }

func (f *Float) Type() Type      { return FloatType }
func (f *Float) Display() string { return formatFloat(f.Value) }
func (f *Float) Repr() string    { return f.Display() }
func (f *Float) Truthy() bool    { return true }

// formatFloat renders a float always in fixed-point notation with at
// least one digit after the decimal point, never Go's 'g'-format
// scientific notation. Keeps a Float's Display()
// distinguishable from an Integer's even on whole-number results (e.g.
// `2.0`, not `2`), which spec.md §3's tagged union and §4.4's "DIV is
// always real division" both depend on.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// String is a text value.
type String struct{ Value string }

func (s *String) Type() Type      { return StringType }
func (s *String) Display() string { return s.Value }
func (s *String) Repr() string    { return strconv.Quote(s.Value) }
func (s *String) Truthy() bool    { return true } // empty string is truthy, per spec.md §4.4

// Boolean is true or false.
type Boolean struct{ Value bool }

func (b *Boolean) Type() Type      { return BooleanType }
func (b *Boolean) Display() string { return strconv.FormatBool(b.Value) }
func (b *Boolean) Repr() string    { return b.Display() }
func (b *Boolean) Truthy() bool    { return b.Value }

// True and False are shared instances; nothing requires identity, but
// reusing them avoids needless allocation in hot arithmetic/comparison
// paths.
var (
	True  = &Boolean{Value: true}
	False = &Boolean{Value: false}
)

// NativeBool returns the shared True/False instance for b.
func NativeBool(b bool) *Boolean {
	if b {
		return True
	}
	return False
}

// Nil is the empty-list / unit value: the only non-boolean falsy value.
type Nil struct{}

func (n *Nil) Type() Type      { return NilType }
func (n *Nil) Display() string { return "nil" }
func (n *Nil) Repr() string    { return "nil" }
func (n *Nil) Truthy() bool    { return false }

// NilValue is the single shared Nil instance.
var NilValue = &Nil{}

// List is an ordered sequence of values. A List with zero Items is a
// distinct value from Nil (spec.md §4.4): MAKE_LIST 0 / (list) produces
// an empty List, not Nil, even though both are accepted by IS_LIST. They
// also differ in truthiness: a List, even an empty one, is always truthy,
// while Nil is falsy.
type List struct{ Items []Value }

func (l *List) Type() Type { return ListType }
func (l *List) Display() string {
	parts := make([]string, len(l.Items))
	for i, it := range l.Items {
		parts[i] = it.Repr()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (l *List) Repr() string { return l.Display() }
func (l *List) Truthy() bool { return true }

// QuotedSymbol is a runtime value representing an unevaluated
// identifier. It is deliberately a distinct type from String so
// is_string is false for it and equality reflects symbol identity
// (spec.md §9).
type QuotedSymbol struct{ Name string }

func (q *QuotedSymbol) Type() Type      { return QuotedSymbolType }
func (q *QuotedSymbol) Display() string { return q.Name }
func (q *QuotedSymbol) Repr() string    { return q.Name }
func (q *QuotedSymbol) Truthy() bool    { return true }

// StructDescriptor is a struct type's immutable identity: its name and
// the order its fields were declared in. Per spec.md §9, using an
// ordered field layout plus a name→index map (built once per type)
// turns GET_FIELD/SET_FIELD into an index lookup rather than a map scan.
type StructDescriptor struct {
	Name       string
	FieldNames []string
	fieldIndex map[string]int
}

// NewStructDescriptor builds the name→index map once, at struct-type
// registration time.
func NewStructDescriptor(name string, fields []string) *StructDescriptor {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return &StructDescriptor{Name: name, FieldNames: fields, fieldIndex: idx}
}

// FieldIndex returns the declared position of field, and whether it
// exists on this struct type.
func (d *StructDescriptor) FieldIndex(field string) (int, bool) {
	i, ok := d.fieldIndex[field]
	return i, ok
}

// StructInstance is a single struct value: a type tag plus one value per
// declared field, in declaration order. SET_FIELD mutates Values in
// place (spec.md §4.5): every alias of the same *StructInstance observes
// the change.
type StructInstance struct {
	Descriptor *StructDescriptor
	Values     []Value
}

func (s *StructInstance) Type() Type { return StructType_ }
func (s *StructInstance) Display() string {
	parts := make([]string, len(s.Values))
	for i, v := range s.Values {
		parts[i] = fmt.Sprintf("%s: %s", s.Descriptor.FieldNames[i], v.Repr())
	}
	return fmt.Sprintf("%s{%s}", s.Descriptor.Name, strings.Join(parts, ", "))
}
func (s *StructInstance) Repr() string { return s.Display() }
func (s *StructInstance) Truthy() bool { return true }

// Closure is a pair of (code entry point label, captured environment
// chain snapshot). MAKE_CLOSURE creates it; CALL pushes a new innermost
// frame onto Env for each invocation.
type Closure struct {
	Label string
	Env   *Environment
}

func (c *Closure) Type() Type      { return ClosureType }
func (c *Closure) Display() string { return fmt.Sprintf("<closure %s>", c.Label) }
func (c *Closure) Repr() string    { return c.Display() }
func (c *Closure) Truthy() bool    { return true }
