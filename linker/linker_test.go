package linker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wegfawefgawefg/notscheme-go/code"
)

func memLoader(files map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		src, ok := files[name]
		if !ok {
			return "", errNotFound(name)
		}
		return src, nil
	}
}

type notFoundErr struct{ name string }

func (e notFoundErr) Error() string { return "module not found: " + e.name }
func errNotFound(name string) error { return notFoundErr{name: name} }

func TestLinkSingleModuleAppendsHalt(t *testing.T) {
	loader := memLoader(map[string]string{
		"main": `(static x 10) x`,
	})
	l := New(loader, nil)
	img, err := l.Link("main")
	require.NoError(t, err)
	require.NotEmpty(t, img)
	last, ok := img[len(img)-1].(*code.Instruction)
	require.True(t, ok)
	require.Equal(t, code.HALT, last.Op)
}

func TestLinkDependencyPostOrder(t *testing.T) {
	loader := memLoader(map[string]string{
		"main": `(use helper *) (greet)`,
		"helper": `(fn greet () (print "hi"))`,
	})
	l := New(loader, nil)
	_, err := l.Link("main")
	require.NoError(t, err)

	require.Equal(t, []string{"helper", "main"}, l.orderedModules,
		"a dependency must be ordered before its dependent")
}

func TestLinkCyclicModulesDoNotDeadlock(t *testing.T) {
	loader := memLoader(map[string]string{
		"a": `(use b *) (static from_a 1)`,
		"b": `(use a *) (static from_b 2)`,
	})
	l := New(loader, nil)
	img, err := l.Link("a")
	require.NoError(t, err)
	require.NotEmpty(t, img)
	require.ElementsMatch(t, []string{"a", "b"}, l.orderedModules)
}

func TestLinkStripsNonMainTrailingHalt(t *testing.T) {
	loader := memLoader(map[string]string{
		"main":   `(use dep *) (static result (dep_value))`,
		"dep":    `(fn dep_value () 42)`,
	})
	l := New(loader, nil)
	img, err := l.Link("main")
	require.NoError(t, err)

	haltCount := 0
	for _, el := range img {
		if instr, ok := el.(*code.Instruction); ok && instr.Op == code.HALT {
			haltCount++
		}
	}
	require.Equal(t, 1, haltCount, "only one HALT should survive linking")
}

func TestLinkMissingModuleErrors(t *testing.T) {
	loader := memLoader(map[string]string{
		"main": `(use missing *) 1`,
	})
	l := New(loader, nil)
	_, err := l.Link("main")
	require.Error(t, err)
}
