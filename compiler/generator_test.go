package compiler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wegfawefgawefg/notscheme-go/code"
	"github.com/wegfawefgawefg/notscheme-go/lexer"
	"github.com/wegfawefgawefg/notscheme-go/parser"
)

func opcodeSequence(img code.Image) []code.Opcode {
	var ops []code.Opcode
	for _, el := range img {
		if instr, ok := el.(*code.Instruction); ok {
			ops = append(ops, instr.Op)
		}
	}
	return ops
}

func compileSource(t *testing.T, src string, loader SourceLoader) (code.Image, map[string]bool) {
	t.Helper()
	l := lexer.New(src)
	p, err := parser.New(l)
	require.NoError(t, err)
	prog, err := p.ParseProgram()
	require.NoError(t, err)

	g := New("main", loader, nil, nil)
	img, deps, err := g.GenerateProgram(prog)
	require.NoError(t, err)
	return img, deps
}

func findInstruction(img code.Image, op code.Opcode) (*code.Instruction, bool) {
	for _, el := range img {
		if instr, ok := el.(*code.Instruction); ok && instr.Op == op {
			return instr, true
		}
	}
	return nil, false
}

func TestGenerateStaticEmitsStore(t *testing.T) {
	img, _ := compileSource(t, `(static x 10)`, nil)
	_, ok := findInstruction(img, code.STORE)
	require.True(t, ok)
}

func TestGenerateTopLevelExpressionPopsExceptLast(t *testing.T) {
	img, _ := compileSource(t, `(+ 1 2) (+ 3 4)`, nil)
	popCount := 0
	for _, el := range img {
		if instr, ok := el.(*code.Instruction); ok && instr.Op == code.POP {
			popCount++
		}
	}
	require.Equal(t, 1, popCount, "only the non-final discarded expression should be popped")
}

func TestGenerateIfOpcodeSequence(t *testing.T) {
	img, _ := compileSource(t, `(if true 1 2)`, nil)
	want := []code.Opcode{code.PUSH, code.JUMPIfFalse, code.PUSH, code.JUMP, code.PUSH}
	if diff := cmp.Diff(want, opcodeSequence(img)); diff != "" {
		t.Errorf("opcode sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateFnEmitsClosureJumpOverBody(t *testing.T) {
	img, _ := compileSource(t, `(fn add (a b) (+ a b))`, nil)
	_, ok := findInstruction(img, code.MakeClosure)
	require.True(t, ok)
	_, ok = findInstruction(img, code.JUMP)
	require.True(t, ok)
	_, ok = findInstruction(img, code.RETURN)
	require.True(t, ok)
}

func TestGenerateStructDefRedefinitionWithDifferentFieldsErrors(t *testing.T) {
	_, err := func() (code.Image, error) {
		l := lexer.New(`(struct Vec2 (x y)) (struct Vec2 (x y z))`)
		p, err := parser.New(l)
		require.NoError(t, err)
		prog, err := p.ParseProgram()
		require.NoError(t, err)
		g := New("main", nil, nil, nil)
		img, _, err := g.GenerateProgram(prog)
		return img, err
	}()
	require.Error(t, err)
}

func TestGenerateStructConstructorCall(t *testing.T) {
	img, _ := compileSource(t, `(struct Vec2 (x y)) (Vec2 1 2)`, nil)
	instr, ok := findInstruction(img, code.MakeStruct)
	require.True(t, ok)
	desc := instr.Operands[0].(code.StructDescriptor)
	require.Equal(t, "Vec2", desc.Name)
	require.Equal(t, []string{"x", "y"}, desc.Fields)
}

func TestGeneratePrimitiveArityMismatchErrors(t *testing.T) {
	l := lexer.New(`(+ 1)`)
	p, err := parser.New(l)
	require.NoError(t, err)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	g := New("main", nil, nil, nil)
	_, _, err = g.GenerateProgram(prog)
	require.Error(t, err)
}

func TestGenerateConsOrdersListBeforeItem(t *testing.T) {
	img, _ := compileSource(t, `(cons 1 (list))`, nil)
	consInstr, ok := findInstruction(img, code.CONS)
	require.True(t, ok)
	require.Empty(t, consInstr.Operands)
	require.Equal(t, []code.Opcode{code.MakeList, code.PUSH, code.CONS}, opcodeSequence(img))
}

func TestGeneratePrintWrapsEachArgument(t *testing.T) {
	img, _ := compileSource(t, `(print 1 2)`, nil)
	count := 0
	for _, el := range img {
		if instr, ok := el.(*code.Instruction); ok && instr.Op == code.PRINT {
			count++
		}
	}
	require.Equal(t, 2, count)
}

func TestGenerateUseWildcardImportsDefinitions(t *testing.T) {
	loader := func(name string) (string, error) {
		if name == "geometry" {
			return `(struct Vec2 (x y)) (fn origin () (Vec2 0 0))`, nil
		}
		return "", errNotFound(name)
	}
	img, deps := compileSource(t, `(use geometry *) (origin)`, loader)
	require.True(t, deps["geometry"])
	_, ok := findInstruction(img, code.CALL)
	require.True(t, ok)
}

func TestGenerateUseExplicitUnknownItemDoesNotError(t *testing.T) {
	loader := func(name string) (string, error) {
		return `(static known 1)`, nil
	}
	l := lexer.New(`(use geometry (unknown_thing))`)
	p, err := parser.New(l)
	require.NoError(t, err)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	g := New("main", loader, nil, nil)
	_, _, err = g.GenerateProgram(prog)
	require.NoError(t, err, "an unresolved explicit import name is a warning, not a compile error")
}

type notFoundError struct{ name string }

func (e notFoundError) Error() string { return "module not found: " + e.name }

func errNotFound(name string) error { return notFoundError{name: name} }
