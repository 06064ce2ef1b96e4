// Package ast defines the node types the parser produces and the code
// generator consumes. Every node is read-only to the code generator: the
// parser builds them, nothing downstream mutates them.
package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is the root interface implemented by every AST node.
type Node interface {
	String() string
}

// TopLevelForm is anything that may appear directly inside a Program:
// the three definition forms (Static, Fn, StructDef), Use, and any
// Expression (a bare top-level expression, whose value is discarded
// unless it is the program's last form).
type TopLevelForm interface {
	Node
	topLevelFormNode()
}

// Expression is any node that produces exactly one value when compiled.
type Expression interface {
	Node
	TopLevelForm
	expressionNode()
}

// Program is the root node: an ordered sequence of top-level forms.
type Program struct {
	Forms []TopLevelForm
}

func (p *Program) String() string {
	var out strings.Builder
	for _, f := range p.Forms {
		out.WriteString(f.String())
		out.WriteString("\n")
	}
	return out.String()
}

// Symbol is an identifier, both as a standalone expression (variable
// reference) and as the name field of other nodes.
type Symbol struct {
	Name string
}

func (s *Symbol) String() string  { return s.Name }
func (s *Symbol) expressionNode() {}
func (s *Symbol) topLevelFormNode() {}

// Static is a top-level, once-initialized binding: (static name value).
type Static struct {
	Name  *Symbol
	Value Expression
}

func (s *Static) String() string    { return fmt.Sprintf("(static %s %s)", s.Name, s.Value) }
func (s *Static) topLevelFormNode() {}

// Fn is a top-level named function: (fn name (params...) body...).
type Fn struct {
	Name   *Symbol
	Params []*Symbol
	Body   []Expression
}

func (f *Fn) String() string {
	return fmt.Sprintf("(fn %s (%s) ...)", f.Name, symbolList(f.Params))
}
func (f *Fn) topLevelFormNode() {}

// StructDef declares a nominal record type: (struct Name (field...)).
type StructDef struct {
	Name   *Symbol
	Fields []*Symbol
}

func (s *StructDef) String() string {
	return fmt.Sprintf("(struct %s (%s))", s.Name, symbolList(s.Fields))
}
func (s *StructDef) topLevelFormNode() {}

// Use imports definitions from another module: (use module *) or
// (use module (a b c)). Wildcard is true for the former; Items holds the
// explicit names for the latter.
type Use struct {
	Module   *Symbol
	Wildcard bool
	Items    []*Symbol
}

func (u *Use) String() string {
	if u.Wildcard {
		return fmt.Sprintf("(use %s *)", u.Module)
	}
	return fmt.Sprintf("(use %s (%s))", u.Module, symbolList(u.Items))
}
func (u *Use) topLevelFormNode() {}

// Number is an integer or float literal. IsFloat distinguishes which
// field is meaningful, since spec.md requires int/float to remain
// distinguishable until arithmetic promotion forces a conversion.
type Number struct {
	IsFloat    bool
	IntValue   int64
	FloatValue float64
}

func (n *Number) String() string {
	if n.IsFloat {
		return strconv.FormatFloat(n.FloatValue, 'g', -1, 64)
	}
	return strconv.FormatInt(n.IntValue, 10)
}
func (n *Number) expressionNode()   {}
func (n *Number) topLevelFormNode() {}

// String is a string literal.
type String struct {
	Value string
}

func (s *String) String() string    { return strconv.Quote(s.Value) }
func (s *String) expressionNode()   {}
func (s *String) topLevelFormNode() {}

// Boolean is a true/false literal.
type Boolean struct {
	Value bool
}

func (b *Boolean) String() string    { return strconv.FormatBool(b.Value) }
func (b *Boolean) expressionNode()   {}
func (b *Boolean) topLevelFormNode() {}

// Nil is the nil literal: the empty-list / unit value.
type Nil struct{}

func (n *Nil) String() string    { return "nil" }
func (n *Nil) expressionNode()   {}
func (n *Nil) topLevelFormNode() {}

// QuoteDatum is the raw, unevaluated payload of a Quote node: a symbol,
// an atom, a nested list of data, or a nested quote.
type QuoteDatum interface {
	Node
	quoteDatumNode()
}

func (s *Symbol) quoteDatumNode()  {}
func (n *Number) quoteDatumNode()  {}
func (s *String) quoteDatumNode()  {}
func (b *Boolean) quoteDatumNode() {}
func (n *Nil) quoteDatumNode()     {}

// QuoteList is a quoted list of data: '(a b c).
type QuoteList struct {
	Items []QuoteDatum
}

func (q *QuoteList) String() string {
	parts := make([]string, len(q.Items))
	for i, it := range q.Items {
		parts[i] = it.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}
func (q *QuoteList) quoteDatumNode() {}

// Quote is both an Expression (the top-level '<datum> form) and a
// QuoteDatum (a quote nested inside another quote, e.g. ''x).
type Quote struct {
	Payload QuoteDatum
}

func (q *Quote) String() string    { return "'" + q.Payload.String() }
func (q *Quote) expressionNode()   {}
func (q *Quote) topLevelFormNode() {}
func (q *Quote) quoteDatumNode()   {}

// Call applies callee to args: (callee arg...). callee is frequently a
// Symbol naming a primitive, a struct type, or a user function/closure.
type Call struct {
	Callee Expression
	Args   []Expression
}

func (c *Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("(%s %s)", c.Callee, strings.Join(parts, " "))
}
func (c *Call) expressionNode()   {}
func (c *Call) topLevelFormNode() {}

// If requires all three branches; both Then and Else must each leave
// exactly one value on the operand stack when compiled.
type If struct {
	Cond Expression
	Then Expression
	Else Expression
}

func (i *If) String() string {
	return fmt.Sprintf("(if %s %s %s)", i.Cond, i.Then, i.Else)
}
func (i *If) expressionNode()   {}
func (i *If) topLevelFormNode() {}

// LetBinding is one (name value) pair inside a Let's binding list.
type LetBinding struct {
	Name  *Symbol
	Value Expression
}

// Let introduces a new lexical scope: (let ((a 1) (b 2)) body...).
type Let struct {
	Bindings []LetBinding
	Body     []Expression
}

func (l *Let) String() string {
	parts := make([]string, len(l.Bindings))
	for i, b := range l.Bindings {
		parts[i] = fmt.Sprintf("(%s %s)", b.Name, b.Value)
	}
	return fmt.Sprintf("(let (%s) ...)", strings.Join(parts, " "))
}
func (l *Let) expressionNode()   {}
func (l *Let) topLevelFormNode() {}

// Lambda is an anonymous closure: (lambda (params...) body...).
type Lambda struct {
	Params []*Symbol
	Body   []Expression
}

func (l *Lambda) String() string {
	return fmt.Sprintf("(lambda (%s) ...)", symbolList(l.Params))
}
func (l *Lambda) expressionNode()   {}
func (l *Lambda) topLevelFormNode() {}

// Get reads a struct field: (get instance field).
type Get struct {
	Instance Expression
	Field    *Symbol
}

func (g *Get) String() string    { return fmt.Sprintf("(get %s %s)", g.Instance, g.Field) }
func (g *Get) expressionNode()   {}
func (g *Get) topLevelFormNode() {}

// Set mutates a struct field in place and evaluates to the mutated
// struct: (set instance field value).
type Set struct {
	Instance Expression
	Field    *Symbol
	Value    Expression
}

func (s *Set) String() string {
	return fmt.Sprintf("(set %s %s %s)", s.Instance, s.Field, s.Value)
}
func (s *Set) expressionNode()   {}
func (s *Set) topLevelFormNode() {}

// While evaluates to nil; its body is run for side effects while Cond is
// truthy.
type While struct {
	Cond Expression
	Body []Expression
}

func (w *While) String() string { return fmt.Sprintf("(while %s ...)", w.Cond) }
func (w *While) expressionNode()   {}
func (w *While) topLevelFormNode() {}

// Begin sequences expressions, evaluating to the last one (or nil if
// empty).
type Begin struct {
	Expressions []Expression
}

func (b *Begin) String() string {
	parts := make([]string, len(b.Expressions))
	for i, e := range b.Expressions {
		parts[i] = e.String()
	}
	return fmt.Sprintf("(begin %s)", strings.Join(parts, " "))
}
func (b *Begin) expressionNode()   {}
func (b *Begin) topLevelFormNode() {}

func symbolList(syms []*Symbol) string {
	parts := make([]string, len(syms))
	for i, s := range syms {
		parts[i] = s.Name
	}
	return strings.Join(parts, " ")
}
