// Package compiler is NotScheme's code generator: it lowers one
// module's AST into a label-bearing bytecode stream (the code package's
// Image) plus the set of modules it directly depends on, and resolves
// `use` imports by running a nested generator over the dependency's
// source purely to harvest its exported descriptors (spec.md §4.2) — the
// dependency's actual bytecode is produced once, later, by the linker.
package compiler

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wegfawefgawefg/notscheme-go/ast"
	"github.com/wegfawefgawefg/notscheme-go/code"
	"github.com/wegfawefgawefg/notscheme-go/lexer"
	"github.com/wegfawefgawefg/notscheme-go/object"
	"github.com/wegfawefgawefg/notscheme-go/parser"
)

// SourceLoader reads the source text for a module by name (without the
// .ns extension). Both the generator (for `use` summaries) and the
// linker (for full compilation) depend on this rather than touching the
// filesystem directly, so tests can supply an in-memory loader.
type SourceLoader func(moduleName string) (string, error)

// GlobalKind distinguishes the three things a top-level name can be
// bound to.
type GlobalKind int

const (
	KindStatic GlobalKind = iota
	KindFunction
	KindStruct
)

// GlobalEntry is one entry of global_env (spec.md §3): a descriptor for
// a name visible at the top level, whether defined locally or imported
// via `use`.
type GlobalEntry struct {
	Kind   GlobalKind
	Label  string   // KindFunction: the closure's entry label
	Params []string // KindFunction: parameter names, in order
	Fields []string // KindStruct: field names, in declared order
}

// Error is a code-generation error: unsupported form, duplicate struct
// fields, wrong primitive arity, or a definition node found where only
// an expression is legal.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

func genError(format string, args ...interface{}) error {
	return errors.WithStack(&Error{msg: fmt.Sprintf(format, args...)})
}

// Generator is one code generator instance, scoped to a single module.
// Per spec.md §3, it owns three compile-time tables: global_env,
// struct_definitions, and a scope stack that records which names are
// locals (values are never consulted — locals resolve by name at
// runtime through the environment chain, not by slot index).
type Generator struct {
	moduleName string // sanitized, used as the label prefix
	image      code.Image
	labelSeq   int

	globalEnv  map[string]GlobalEntry
	structDefs map[string][]string
	scopes     []map[string]bool // compile-time locals-tracking stack; never includes the implicit global scope

	dependencies map[string]bool

	// processedModules is shared across every nested Generator spawned
	// during one compilation run for `use` resolution, so a module's
	// definitions are only summarized once even if several modules
	// import it (spec.md §4.2 step 2).
	processedModules map[string]bool

	loader SourceLoader
	logger *logrus.Logger
}

// New constructs a Generator for moduleName. processedModules and logger
// may be nil; New fills in empty/default values so top-level callers
// (the linker) don't need to construct them.
func New(moduleName string, loader SourceLoader, processedModules map[string]bool, logger *logrus.Logger) *Generator {
	if processedModules == nil {
		processedModules = make(map[string]bool)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Generator{
		moduleName:       sanitizeModuleName(moduleName),
		globalEnv:        make(map[string]GlobalEntry),
		structDefs:       make(map[string][]string),
		dependencies:     make(map[string]bool),
		processedModules: processedModules,
		loader:           loader,
		logger:           logger,
	}
}

func sanitizeModuleName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// GlobalEnv and StructDefs expose the tables harvested after
// GenerateProgram runs, used by `use` resolution in the importer.
func (g *Generator) GlobalEnv() map[string]GlobalEntry { return g.globalEnv }
func (g *Generator) StructDefs() map[string][]string   { return g.structDefs }

// GenerateProgram emits bytecode for prog and returns it along with the
// set of modules prog directly depends on.
func (g *Generator) GenerateProgram(prog *ast.Program) (code.Image, map[string]bool, error) {
	var useForms []*ast.Use
	var otherForms []ast.TopLevelForm
	for _, f := range prog.Forms {
		if u, ok := f.(*ast.Use); ok {
			useForms = append(useForms, u)
		} else {
			otherForms = append(otherForms, f)
		}
	}

	for _, u := range useForms {
		if err := g.generateUse(u); err != nil {
			return nil, nil, err
		}
	}

	for i, form := range otherForms {
		isLast := i == len(otherForms)-1
		if err := g.generateTopLevelForm(form, isLast); err != nil {
			return nil, nil, err
		}
	}

	return g.image, g.dependencies, nil
}

func (g *Generator) emit(instr *code.Instruction) {
	g.image = append(g.image, instr)
}

func (g *Generator) emitLabel(l code.Label) {
	g.image = append(g.image, l)
}

func (g *Generator) newLabel(prefix string) code.Label {
	g.labelSeq++
	return code.Label(fmt.Sprintf("%s_%s%d", g.moduleName, prefix, g.labelSeq))
}

func (g *Generator) enterScope() {
	g.scopes = append(g.scopes, make(map[string]bool))
}

func (g *Generator) exitScope() {
	if len(g.scopes) == 0 {
		g.logger.Warn("attempted to pop the global scope from the compile-time scope stack")
		return
	}
	g.scopes = g.scopes[:len(g.scopes)-1]
}

func (g *Generator) addLocal(name string) {
	if len(g.scopes) == 0 {
		g.logger.Warnf("could not add %q to a local compile-time scope: no scope is open", name)
		return
	}
	g.scopes[len(g.scopes)-1][name] = true
}

// maybeEmitPopForDiscardedResult implements spec.md §4.1's top-level POP
// rule: a discarded expression's result is popped unless the very last
// emitted element is a stack-neutral terminator. Only that last element
// is inspected: when it is a label (as after an if or a lambda), no POP
// is emitted and the form's value stays on the operand stack.
func (g *Generator) maybeEmitPopForDiscardedResult() {
	if len(g.image) == 0 {
		return
	}
	instr, ok := g.image[len(g.image)-1].(*code.Instruction)
	if !ok {
		return
	}
	if code.StopsControlFlow(instr.Op) {
		return
	}
	g.emit(code.Make(code.POP))
}

func (g *Generator) generateTopLevelForm(form ast.TopLevelForm, isLast bool) error {
	switch f := form.(type) {
	case *ast.Static:
		return g.generateStatic(f)
	case *ast.Fn:
		return g.generateFn(f)
	case *ast.StructDef:
		return g.generateStructDef(f)
	case ast.Expression:
		startLen := len(g.image)
		if err := g.generateExpression(f); err != nil {
			return err
		}
		if !isLast && len(g.image) > startLen {
			g.maybeEmitPopForDiscardedResult()
		}
		return nil
	default:
		return genError("unsupported top-level form: %T", form)
	}
}

func literalValue(expr ast.Node) (object.Value, error) {
	switch n := expr.(type) {
	case *ast.Number:
		if n.IsFloat {
			return &object.Float{Value: n.FloatValue}, nil
		}
		return &object.Integer{Value: n.IntValue}, nil
	case *ast.String:
		return &object.String{Value: n.Value}, nil
	case *ast.Boolean:
		return object.NativeBool(n.Value), nil
	case *ast.Nil:
		return object.NilValue, nil
	default:
		return nil, genError("not a literal node: %T", expr)
	}
}

func (g *Generator) generateExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.Number, *ast.String, *ast.Boolean, *ast.Nil:
		v, err := literalValue(e)
		if err != nil {
			return err
		}
		g.emit(code.Make(code.PUSH, v))
		return nil
	case *ast.Symbol:
		g.emit(code.Make(code.LOAD, e.Name))
		return nil
	case *ast.Quote:
		return g.generateQuoteDatum(e.Payload)
	case *ast.Call:
		return g.generateCall(e)
	case *ast.If:
		return g.generateIf(e)
	case *ast.Let:
		return g.generateLet(e)
	case *ast.Lambda:
		return g.generateFnOrLambdaBody("anon", e.Params, e.Body, false)
	case *ast.Get:
		return g.generateGet(e)
	case *ast.Set:
		return g.generateSet(e)
	case *ast.While:
		return g.generateWhile(e)
	case *ast.Begin:
		return g.generateBegin(e)
	default:
		return genError("unsupported expression type: %T", expr)
	}
}

// generateQuoteDatum generates the runtime value a quoted datum builds,
// per spec.md §4.1's quote-lowering rules.
func (g *Generator) generateQuoteDatum(d ast.QuoteDatum) error {
	switch item := d.(type) {
	case *ast.Symbol:
		g.emit(code.Make(code.PUSH, &object.QuotedSymbol{Name: item.Name}))
		return nil
	case *ast.QuoteList:
		for _, sub := range item.Items {
			if err := g.generateQuoteDatum(sub); err != nil {
				return err
			}
		}
		g.emit(code.Make(code.MakeList, len(item.Items)))
		return nil
	case *ast.Quote:
		g.emit(code.Make(code.PUSH, &object.QuotedSymbol{Name: "quote"}))
		if err := g.generateQuoteDatum(item.Payload); err != nil {
			return err
		}
		g.emit(code.Make(code.MakeList, 2))
		return nil
	case *ast.Number, *ast.String, *ast.Boolean, *ast.Nil:
		v, err := literalValue(item)
		if err != nil {
			return err
		}
		g.emit(code.Make(code.PUSH, v))
		return nil
	default:
		return genError("cannot generate runtime value for quoted item of type %T", d)
	}
}

func (g *Generator) generateStatic(node *ast.Static) error {
	if err := g.generateExpression(node.Value); err != nil {
		return err
	}
	g.emit(code.Make(code.STORE, node.Name.Name))
	g.globalEnv[node.Name.Name] = GlobalEntry{Kind: KindStatic}
	return nil
}

// generateFnOrLambdaBody emits a closure's body out-of-line and a
// MAKE_CLOSURE where the fn or lambda is defined, per spec.md §4.1's "closure body
// emission" rule: the body is hopped over with a JUMP so falling off the
// end of the enclosing form never executes it.
func (g *Generator) generateFnOrLambdaBody(nameForLabel string, params []*ast.Symbol, body []ast.Expression, isNamedFn bool) error {
	kind := "lambda"
	if isNamedFn {
		kind = "fn"
	}
	entryLabel := g.newLabel(fmt.Sprintf("%s_%s_", kind, nameForLabel))

	g.emit(code.Make(code.MakeClosure, string(entryLabel)))
	if isNamedFn {
		g.emit(code.Make(code.STORE, nameForLabel))
		paramNames := make([]string, len(params))
		for i, p := range params {
			paramNames[i] = p.Name
		}
		g.globalEnv[nameForLabel] = GlobalEntry{Kind: KindFunction, Label: string(entryLabel), Params: paramNames}
	}

	endLabel := g.newLabel(fmt.Sprintf("end_%s_%s_", kind, nameForLabel))
	g.emit(code.Make(code.JUMP, string(endLabel)))
	g.emitLabel(entryLabel)

	g.enterScope()
	for i := len(params) - 1; i >= 0; i-- {
		g.emit(code.Make(code.STORE, params[i].Name))
		g.addLocal(params[i].Name)
	}
	if len(body) == 0 {
		g.emit(code.Make(code.PUSH, object.NilValue))
	} else {
		for i, expr := range body {
			if err := g.generateExpression(expr); err != nil {
				return err
			}
			if i < len(body)-1 {
				g.emit(code.Make(code.POP))
			}
		}
	}
	g.emit(code.Make(code.RETURN))
	g.exitScope()
	g.emitLabel(endLabel)
	return nil
}

func (g *Generator) generateFn(node *ast.Fn) error {
	return g.generateFnOrLambdaBody(node.Name.Name, node.Params, node.Body, true)
}

func (g *Generator) generateStructDef(node *ast.StructDef) error {
	fieldNames := make([]string, len(node.Fields))
	seen := make(map[string]bool, len(node.Fields))
	for i, f := range node.Fields {
		if seen[f.Name] {
			return genError("struct %q has duplicate field %q", node.Name.Name, f.Name)
		}
		seen[f.Name] = true
		fieldNames[i] = f.Name
	}
	if existing, ok := g.structDefs[node.Name.Name]; ok && !stringSliceEqual(existing, fieldNames) {
		return genError("struct %q already defined with different fields", node.Name.Name)
	}
	g.structDefs[node.Name.Name] = fieldNames
	g.globalEnv[node.Name.Name] = GlobalEntry{Kind: KindStruct, Fields: fieldNames}
	return nil
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (g *Generator) generateIf(node *ast.If) error {
	elseLabel := g.newLabel("else")
	endLabel := g.newLabel("end_if")

	if err := g.generateExpression(node.Cond); err != nil {
		return err
	}
	g.emit(code.Make(code.JUMPIfFalse, string(elseLabel)))
	if err := g.generateExpression(node.Then); err != nil {
		return err
	}
	g.emit(code.Make(code.JUMP, string(endLabel)))
	g.emitLabel(elseLabel)
	if err := g.generateExpression(node.Else); err != nil {
		return err
	}
	g.emitLabel(endLabel)
	return nil
}

func (g *Generator) generateLet(node *ast.Let) error {
	g.enterScope()
	for _, b := range node.Bindings {
		if err := g.generateExpression(b.Value); err != nil {
			return err
		}
		g.emit(code.Make(code.STORE, b.Name.Name))
		g.addLocal(b.Name.Name)
	}
	if len(node.Body) == 0 {
		g.emit(code.Make(code.PUSH, object.NilValue))
	} else {
		for i, expr := range node.Body {
			if err := g.generateExpression(expr); err != nil {
				return err
			}
			if i < len(node.Body)-1 {
				g.emit(code.Make(code.POP))
			}
		}
	}
	g.exitScope()
	return nil
}

func (g *Generator) generateGet(node *ast.Get) error {
	if err := g.generateExpression(node.Instance); err != nil {
		return err
	}
	g.emit(code.Make(code.GetField, node.Field.Name))
	return nil
}

func (g *Generator) generateSet(node *ast.Set) error {
	if err := g.generateExpression(node.Instance); err != nil {
		return err
	}
	if err := g.generateExpression(node.Value); err != nil {
		return err
	}
	g.emit(code.Make(code.SetField, node.Field.Name))
	return nil
}

func (g *Generator) generateWhile(node *ast.While) error {
	startLabel := g.newLabel("while_start")
	endLabel := g.newLabel("while_end")

	g.emitLabel(startLabel)
	if err := g.generateExpression(node.Cond); err != nil {
		return err
	}
	g.emit(code.Make(code.JUMPIfFalse, string(endLabel)))
	for _, expr := range node.Body {
		if err := g.generateExpression(expr); err != nil {
			return err
		}
		g.emit(code.Make(code.POP))
	}
	g.emit(code.Make(code.JUMP, string(startLabel)))
	g.emitLabel(endLabel)
	g.emit(code.Make(code.PUSH, object.NilValue))
	return nil
}

func (g *Generator) generateBegin(node *ast.Begin) error {
	if len(node.Expressions) == 0 {
		g.emit(code.Make(code.PUSH, object.NilValue))
		return nil
	}
	for i, expr := range node.Expressions {
		if err := g.generateExpression(expr); err != nil {
			return err
		}
		if i < len(node.Expressions)-1 {
			g.emit(code.Make(code.POP))
		}
	}
	return nil
}

// lookupStructFields finds a struct type's field list, whether declared
// in this module or imported via `use`.
func (g *Generator) lookupStructFields(name string) ([]string, bool) {
	if fields, ok := g.structDefs[name]; ok {
		return fields, true
	}
	if entry, ok := g.globalEnv[name]; ok && entry.Kind == KindStruct {
		return entry.Fields, true
	}
	return nil, false
}

func (g *Generator) generateCall(node *ast.Call) error {
	if sym, ok := node.Callee.(*ast.Symbol); ok {
		switch sym.Name {
		case "static", "fn", "struct", "use":
			return genError("(%s ...) is a definition and is only allowed at the top level", sym.Name)
		}
		if handled, err := g.tryGeneratePrimitiveCall(sym.Name, node.Args); handled || err != nil {
			return err
		}
		if fields, ok := g.lookupStructFields(sym.Name); ok {
			if len(node.Args) != len(fields) {
				return genError("struct %q: expected %d args, got %d", sym.Name, len(fields), len(node.Args))
			}
			for _, a := range node.Args {
				if err := g.generateExpression(a); err != nil {
					return err
				}
			}
			g.emit(code.Make(code.MakeStruct, code.StructDescriptor{Name: sym.Name, Fields: fields}))
			return nil
		}
	}

	for _, a := range node.Args {
		if err := g.generateExpression(a); err != nil {
			return err
		}
	}
	if err := g.generateExpression(node.Callee); err != nil {
		return err
	}
	g.emit(code.Make(code.CALL, len(node.Args)))
	return nil
}

type primitiveInfo struct {
	op    code.Opcode
	arity int
}

var primitives = map[string]primitiveInfo{
	"+":           {code.ADD, 2},
	"-":           {code.SUB, 2},
	"*":           {code.MUL, 2},
	"/":           {code.DIV, 2},
	"=":           {code.EQ, 2},
	">":           {code.GT, 2},
	"<":           {code.LT, 2},
	"cons":        {code.CONS, 2},
	"not":         {code.NOT, 1},
	"is_nil":      {code.IsNil, 1},
	"first":       {code.FIRST, 1},
	"rest":        {code.REST, 1},
	"is_boolean":  {code.IsBoolean, 1},
	"is_number":   {code.IsNumber, 1},
	"is_string":   {code.IsString, 1},
	"is_list":     {code.IsList, 1},
	"is_struct":   {code.IsStruct, 1},
	"is_function": {code.IsFunction, 1},
}

// tryGeneratePrimitiveCall lowers a call whose callee names a primitive
// operation. It reports handled=false (with a nil error) when name isn't
// a primitive at all, so the caller can fall through to struct/general
// call lowering.
func (g *Generator) tryGeneratePrimitiveCall(name string, args []ast.Expression) (handled bool, err error) {
	switch name {
	case "print":
		if len(args) == 0 {
			g.emit(code.Make(code.PUSH, &object.String{Value: ""}))
			g.emit(code.Make(code.PRINT))
		} else {
			for _, a := range args {
				if err := g.generateExpression(a); err != nil {
					return true, err
				}
				g.emit(code.Make(code.PRINT))
			}
		}
		g.emit(code.Make(code.PUSH, object.NilValue))
		return true, nil
	case "list":
		for _, a := range args {
			if err := g.generateExpression(a); err != nil {
				return true, err
			}
		}
		g.emit(code.Make(code.MakeList, len(args)))
		return true, nil
	}

	info, ok := primitives[name]
	if !ok {
		return false, nil
	}
	if len(args) != info.arity {
		return true, genError("primitive %q expects %d args, got %d", name, info.arity, len(args))
	}
	if name == "cons" {
		// CONS pops item then list; args are (item list) in source order,
		// so emit list first, then item (spec.md §4.1).
		if err := g.generateExpression(args[1]); err != nil {
			return true, err
		}
		if err := g.generateExpression(args[0]); err != nil {
			return true, err
		}
	} else {
		for _, a := range args {
			if err := g.generateExpression(a); err != nil {
				return true, err
			}
		}
	}
	g.emit(code.Make(info.op))
	return true, nil
}

// generateUse resolves one `use` form (spec.md §4.2): it reads, parses
// and summarizes the dependency module (recursively, sharing
// processedModules so a transitively-imported module is only summarized
// once per compilation run), then copies the requested descriptors into
// this generator's tables. Use emits no bytecode of its own.
func (g *Generator) generateUse(node *ast.Use) error {
	moduleName := node.Module.Name
	g.dependencies[moduleName] = true

	if g.processedModules[moduleName] {
		return nil
	}
	g.processedModules[moduleName] = true

	src, err := g.loader(moduleName)
	if err != nil {
		return errors.Wrapf(err, "module resolution: reading %q", moduleName)
	}

	l := lexer.New(src)
	p, err := parser.New(l)
	if err != nil {
		return errors.Wrapf(err, "module resolution: lexing %q", moduleName)
	}
	depProgram, err := p.ParseProgram()
	if err != nil {
		return errors.Wrapf(err, "module resolution: parsing %q", moduleName)
	}

	nested := New(moduleName, g.loader, g.processedModules, g.logger)
	_, nestedDeps, err := nested.GenerateProgram(depProgram)
	if err != nil {
		return errors.Wrapf(err, "module resolution: summarizing %q", moduleName)
	}
	for d := range nestedDeps {
		g.dependencies[d] = true
	}

	var names []string
	if node.Wildcard {
		seen := make(map[string]bool)
		for name := range nested.globalEnv {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		for name := range nested.structDefs {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	} else {
		for _, item := range node.Items {
			names = append(names, item.Name)
		}
	}

	for _, name := range names {
		imported := false
		if entry, ok := nested.globalEnv[name]; ok {
			g.globalEnv[name] = entry
			imported = true
		}
		if fields, ok := nested.structDefs[name]; ok {
			g.structDefs[name] = fields
			imported = true
		}
		if !imported && !node.Wildcard {
			g.logger.Warnf("item %q in (use %s ...) not found in module %q", name, moduleName, moduleName)
		}
	}

	return nil
}
