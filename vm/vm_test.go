package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wegfawefgawefg/notscheme-go/compiler"
	"github.com/wegfawefgawefg/notscheme-go/lexer"
	"github.com/wegfawefgawefg/notscheme-go/linker"
	"github.com/wegfawefgawefg/notscheme-go/parser"
)

// runSource compiles and runs src as a standalone main module (no
// dependencies), returning the result value's Display() and everything
// written to the output sink.
func runSource(t *testing.T, src string) (string, string) {
	t.Helper()
	files := map[string]string{"main": src}
	loader := compiler.SourceLoader(func(name string) (string, error) {
		s, ok := files[name]
		if !ok {
			return "", errTestNotFound(name)
		}
		return s, nil
	})

	l := linker.New(loader, nil)
	img, err := l.Link("main")
	require.NoError(t, err)

	var out bytes.Buffer
	machine, err := New(img, &out, nil)
	require.NoError(t, err)
	require.NoError(t, machine.Run())

	return machine.Result().Display(), out.String()
}

type testNotFoundErr struct{ name string }

func (e testNotFoundErr) Error() string { return "not found: " + e.name }
func errTestNotFound(name string) error { return testNotFoundErr{name: name} }

func TestStaticArithmeticChain(t *testing.T) {
	result, _ := runSource(t, `(static a 10)(static b (+ a 5)) b`)
	require.Equal(t, "15", result)
}

func TestFunctionCallWithArguments(t *testing.T) {
	result, _ := runSource(t, `(fn add (x y) (+ x y))(static r (add 10 20)) r`)
	require.Equal(t, "30", result)
}

func TestPrintFormattingScenario(t *testing.T) {
	result, out := runSource(t, `(print "Hello")(print 123)(print true)(print nil)(+ 1 1)`)
	require.Equal(t, "2", result)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Equal(t, []string{"Output: Hello", "Output: 123", "Output: true", "Output: nil", "Execution halted."}, lines)
}

func TestListOperationsScenario(t *testing.T) {
	result, out := runSource(t, `(static L (list 1 (+ 1 1) "three")) (print (first L)) (print (rest L)) (static L2 (cons 0 L)) (print L2) (print (is_nil nil)) (print (is_nil L2)) (first (list "final"))`)
	require.Equal(t, "final", result)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Equal(t, []string{
		"Output: 1",
		`Output: [2, "three"]`,
		`Output: [0, 1, 2, "three"]`,
		"Output: true",
		"Output: false",
		"Execution halted.",
	}, lines)
}

func TestPrintQuotedSymbolShowsBareName(t *testing.T) {
	_, out := runSource(t, `(print 'my_symbol)`)
	require.Equal(t, "Output: my_symbol\nExecution halted.\n", out)
}

func TestRecursiveFibonacci(t *testing.T) {
	result, _ := runSource(t, `(fn fib (n) (if (< n 2) n (+ (fib (- n 1)) (fib (- n 2))))) (fib 10)`)
	require.Equal(t, "55", result)
}

func TestStructMutationAliasing(t *testing.T) {
	result, _ := runSource(t, `
(struct Counter (n))
(static c (Counter 0))
(static alias c)
(set alias n 42)
(get c n)`)
	require.Equal(t, "42", result)
}

func TestClosureCapturesParameterAfterCallReturns(t *testing.T) {
	result, _ := runSource(t, `
(static make_adder (lambda (x) (lambda (y) (+ x y))))
(static add5 (make_adder 5))
(add5 10)`)
	require.Equal(t, "15", result)
}

func TestLetBoundFunctionClosesOverBindingAfterLetEnds(t *testing.T) {
	result, _ := runSource(t, `
(static make_adder
  (lambda (x)
    (let ((offset x))
      (lambda (y) (+ offset y)))))
(static add5 (make_adder 5))
(add5 10)`)
	require.Equal(t, "15", result)
}

func TestWhileLoopAccumulates(t *testing.T) {
	result, _ := runSource(t, `
(struct Box (i n))
(static b (Box 0 0))
(while (< (get b i) 5)
  (begin
    (set b n (+ (get b n) (get b i)))
    (set b i (+ (get b i) 1))))
(get b n)`)
	require.Equal(t, "10", result)
}

func TestDivisionIsAlwaysFloat(t *testing.T) {
	result, _ := runSource(t, `(/ 6 4)`)
	require.Equal(t, "1.5", result)
}

func TestDivisionWholeNumberResultKeepsDecimalPoint(t *testing.T) {
	_, out := runSource(t, `(print (/ 4 2))`)
	require.Equal(t, "Output: 2.0\nExecution halted.\n", out,"a whole-number float must stay distinguishable from an integer")
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	files := map[string]string{"main": `(/ 1 0)`}
	loader := compiler.SourceLoader(func(name string) (string, error) { return files[name], nil })
	l := linker.New(loader, nil)
	img, err := l.Link("main")
	require.NoError(t, err)

	var out bytes.Buffer
	machine, err := New(img, &out, nil)
	require.NoError(t, err)
	err = machine.Run()
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
}

func TestParserAndLexerAreReachableFromMachinery(t *testing.T) {
	// Smoke test proving the parser/lexer packages used by runSource
	// parse a trivial program without involvement of the VM at all.
	l := lexer.New(`(static x 1)`)
	p, err := parser.New(l)
	require.NoError(t, err)
	_, err = p.ParseProgram()
	require.NoError(t, err)
}
