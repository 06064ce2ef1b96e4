// Package linker implements NotScheme's module linker (spec.md §4.3): it
// drives recursive, dependency-post-order compilation rooted at a main
// module and concatenates the result into a single executable image.
package linker

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wegfawefgawefg/notscheme-go/code"
	"github.com/wegfawefgawefg/notscheme-go/compiler"
	"github.com/wegfawefgawefg/notscheme-go/lexer"
	"github.com/wegfawefgawefg/notscheme-go/parser"
)

// FileLoader returns a compiler.SourceLoader that reads "<name>.ns" from
// dir, per spec.md §6: module references resolve relative to the working
// directory rooted at the main file.
func FileLoader(dir string) compiler.SourceLoader {
	return func(name string) (string, error) {
		path := filepath.Join(dir, name+".ns")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrapf(err, "module %q", name)
		}
		return string(data), nil
	}
}

// Linker drives the recursive compile-and-order algorithm. It is
// single-use: construct one per Link call.
type Linker struct {
	loader compiler.SourceLoader
	logger *logrus.Logger

	ownBytecode      map[string]code.Image
	orderedModules   []string
	inProgress       map[string]bool
	processedModules map[string]bool // shared with every Generator for `use` summarization
}

// New constructs a Linker. logger may be nil, in which case the standard
// logrus logger is used.
func New(loader compiler.SourceLoader, logger *logrus.Logger) *Linker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Linker{
		loader:           loader,
		logger:           logger,
		ownBytecode:      make(map[string]code.Image),
		inProgress:       make(map[string]bool),
		processedModules: make(map[string]bool),
	}
}

// Link compiles mainModule and every module it transitively depends on,
// then concatenates them into one image with correct halt semantics.
func (l *Linker) Link(mainModule string) (code.Image, error) {
	if err := l.compileModule(mainModule); err != nil {
		return nil, err
	}

	var final code.Image
	for _, name := range l.orderedModules {
		img := l.ownBytecode[name]
		if name != mainModule {
			img = stripTrailingHalt(img)
		}
		final = append(final, img...)
	}
	if !endsWithTerminator(final) {
		final = append(final, code.Make(code.HALT))
	}
	return final, nil
}

// compileModule recursively compiles name and its dependencies, appending
// name to orderedModules strictly after every dependency it reaches
// (post-order), per spec.md §4.3 step 2. It returns immediately if name
// is already compiled or currently being compiled higher up the call
// stack (cycle break via in_progress).
func (l *Linker) compileModule(name string) error {
	if _, done := l.ownBytecode[name]; done {
		return nil
	}
	if l.inProgress[name] {
		return nil
	}
	l.inProgress[name] = true
	defer delete(l.inProgress, name)

	src, err := l.loader(name)
	if err != nil {
		return errors.Wrapf(err, "module resolution: loading %q", name)
	}

	lx := lexer.New(src)
	p, err := parser.New(lx)
	if err != nil {
		return errors.Wrapf(err, "module resolution: lexing %q", name)
	}
	prog, err := p.ParseProgram()
	if err != nil {
		return errors.Wrapf(err, "module resolution: parsing %q", name)
	}

	g := compiler.New(name, l.loader, l.processedModules, l.logger)
	img, deps, err := g.GenerateProgram(prog)
	if err != nil {
		return errors.Wrapf(err, "code generation: %q", name)
	}
	l.ownBytecode[name] = img

	depNames := make([]string, 0, len(deps))
	for d := range deps {
		depNames = append(depNames, d)
	}
	sort.Strings(depNames) // deterministic dependency-compile order

	for _, d := range depNames {
		if err := l.compileModule(d); err != nil {
			return err
		}
	}

	l.orderedModules = append(l.orderedModules, name)
	return nil
}

// stripTrailingHalt removes one trailing HALT instruction from img, if
// present, so only the main module's halt survives concatenation
// (spec.md §4.3 step 3).
func stripTrailingHalt(img code.Image) code.Image {
	if len(img) == 0 {
		return img
	}
	if instr, ok := img[len(img)-1].(*code.Instruction); ok && instr.Op == code.HALT {
		return img[:len(img)-1]
	}
	return img
}

func endsWithTerminator(img code.Image) bool {
	if len(img) == 0 {
		return false
	}
	instr, ok := img[len(img)-1].(*code.Instruction)
	return ok && instr.Op == code.HALT
}
