package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wegfawefgawefg/notscheme-go/ast"
	"github.com/wegfawefgawefg/notscheme-go/lexer"
)

func parseProgram(t *testing.T, input string) *ast.Program {
	t.Helper()
	p, err := New(lexer.New(input))
	require.NoError(t, err)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	return prog
}

func TestParseStaticAndFn(t *testing.T) {
	prog := parseProgram(t, `(static a 10)(fn add (x y) (+ x y))`)
	require.Len(t, prog.Forms, 2)

	static, ok := prog.Forms[0].(*ast.Static)
	require.True(t, ok)
	require.Equal(t, "a", static.Name.Name)

	fn, ok := prog.Forms[1].(*ast.Fn)
	require.True(t, ok)
	require.Equal(t, "add", fn.Name.Name)
	require.Len(t, fn.Params, 2)
	require.Len(t, fn.Body, 1)
}

func TestParseStructDef(t *testing.T) {
	prog := parseProgram(t, `(struct Vec2 (x y))`)
	sd, ok := prog.Forms[0].(*ast.StructDef)
	require.True(t, ok)
	require.Equal(t, "Vec2", sd.Name.Name)
	require.Len(t, sd.Fields, 2)
}

func TestParseUseWildcardAndExplicit(t *testing.T) {
	prog := parseProgram(t, `(use math_utils *)(use string_ext (greeting get_greeting))`)
	u1 := prog.Forms[0].(*ast.Use)
	require.True(t, u1.Wildcard)
	u2 := prog.Forms[1].(*ast.Use)
	require.False(t, u2.Wildcard)
	require.Len(t, u2.Items, 2)
}

func TestParseIfLetLambdaWhileBegin(t *testing.T) {
	prog := parseProgram(t, `
		(if true 1 2)
		(let ((a 1) (b 2)) (+ a b))
		(lambda (x) (* x x))
		(while true (print 1))
		(begin 1 2 3)
	`)
	require.Len(t, prog.Forms, 5)
	require.IsType(t, &ast.If{}, prog.Forms[0])
	require.IsType(t, &ast.Let{}, prog.Forms[1])
	require.IsType(t, &ast.Lambda{}, prog.Forms[2])
	require.IsType(t, &ast.While{}, prog.Forms[3])
	require.IsType(t, &ast.Begin{}, prog.Forms[4])
}

func TestParseGetAndSet(t *testing.T) {
	prog := parseProgram(t, `(get v x)(set v x 10)`)
	require.IsType(t, &ast.Get{}, prog.Forms[0])
	require.IsType(t, &ast.Set{}, prog.Forms[1])
}

func TestParseQuoteSymbolAndList(t *testing.T) {
	prog := parseProgram(t, `'my_symbol '(item1 10 true nil)`)
	q1 := prog.Forms[0].(*ast.Quote)
	sym, ok := q1.Payload.(*ast.Symbol)
	require.True(t, ok)
	require.Equal(t, "my_symbol", sym.Name)

	q2 := prog.Forms[1].(*ast.Quote)
	list, ok := q2.Payload.(*ast.QuoteList)
	require.True(t, ok)
	require.Len(t, list.Items, 4)
}

func TestParseNestedQuote(t *testing.T) {
	prog := parseProgram(t, `''x`)
	outer := prog.Forms[0].(*ast.Quote)
	inner, ok := outer.Payload.(*ast.Quote)
	require.True(t, ok)
	sym, ok := inner.Payload.(*ast.Symbol)
	require.True(t, ok)
	require.Equal(t, "x", sym.Name)
}

func TestParseCallGeneral(t *testing.T) {
	prog := parseProgram(t, `(fib 10)`)
	call := prog.Forms[0].(*ast.Call)
	callee := call.Callee.(*ast.Symbol)
	require.Equal(t, "fib", callee.Name)
	require.Len(t, call.Args, 1)
}

func TestParseFloatNumber(t *testing.T) {
	prog := parseProgram(t, `3.14`)
	num := prog.Forms[0].(*ast.Number)
	require.True(t, num.IsFloat)
	require.InDelta(t, 3.14, num.FloatValue, 1e-9)
}
