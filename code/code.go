// Package code defines the bytecode element types emitted by the
// compiler and consumed by the linker and the VM: instruction records
// and label markers, mixed together in one flat stream. Labels are
// resolved to instruction indices once, at VM load time (see vm
// package), not at emission time — the linker concatenates
// independently-compiled modules, so a jump target can't be pinned down
// until the whole image is assembled.
package code

import (
	"fmt"
	"strings"
)

// Opcode identifies a VM instruction.
type Opcode int

const (
	PUSH Opcode = iota
	POP

	ADD
	SUB
	MUL
	DIV
	EQ
	LT
	GT
	NOT

	LOAD
	STORE

	JUMP
	JUMPIfFalse

	MakeClosure
	CALL
	RETURN

	MakeStruct
	GetField
	SetField

	HALT
	PRINT

	IsNil
	CONS
	FIRST
	REST
	MakeList

	IsBoolean
	IsNumber
	IsString
	IsList
	IsStruct
	IsFunction
)

var opcodeNames = map[Opcode]string{
	PUSH: "PUSH", POP: "POP",
	ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV",
	EQ: "EQ", LT: "LT", GT: "GT", NOT: "NOT",
	LOAD: "LOAD", STORE: "STORE",
	JUMP: "JUMP", JUMPIfFalse: "JUMP_IF_FALSE",
	MakeClosure: "MAKE_CLOSURE", CALL: "CALL", RETURN: "RETURN",
	MakeStruct: "MAKE_STRUCT", GetField: "GET_FIELD", SetField: "SET_FIELD",
	HALT: "HALT", PRINT: "PRINT",
	IsNil: "IS_NIL", CONS: "CONS", FIRST: "FIRST", REST: "REST", MakeList: "MAKE_LIST",
	IsBoolean: "IS_BOOLEAN", IsNumber: "IS_NUMBER", IsString: "IS_STRING",
	IsList: "IS_LIST", IsStruct: "IS_STRUCT", IsFunction: "IS_FUNCTION",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP(%d)", int(op))
}

// StructDescriptor is the MAKE_STRUCT operand: the struct's type name and
// its ordered field names.
type StructDescriptor struct {
	Name   string
	Fields []string
}

// Element is either an *Instruction or a Label. A linked image is a flat
// []Element.
type Element interface {
	isElement()
	String() string
}

// Label marks a position in the stream; it occupies no execution
// position once the image is loaded.
type Label string

func (Label) isElement()       {}
func (l Label) String() string { return string(l) + ":" }

// Instruction is one opcode plus its operands. Operand kinds, per
// spec.md §6: int (CALL/MAKE_LIST), string label name
// (JUMP/JUMP_IF_FALSE/MAKE_CLOSURE), string identifier
// (LOAD/STORE/GET_FIELD/SET_FIELD), StructDescriptor (MAKE_STRUCT), or a
// literal runtime value (PUSH).
type Instruction struct {
	Op       Opcode
	Operands []interface{}
}

func (*Instruction) isElement() {}

func (i *Instruction) String() string {
	if len(i.Operands) == 0 {
		return i.Op.String()
	}
	parts := make([]string, len(i.Operands))
	for idx, o := range i.Operands {
		parts[idx] = fmt.Sprintf("%v", o)
	}
	return i.Op.String() + " " + strings.Join(parts, " ")
}

// Make builds an *Instruction. It's a thin convenience wrapper so
// callers in the compiler don't hand-construct the struct literal
// everywhere.
func Make(op Opcode, operands ...interface{}) *Instruction {
	return &Instruction{Op: op, Operands: operands}
}

// Image is a flat bytecode stream: instructions and label markers
// interleaved, exactly as emitted by the compiler or concatenated by the
// linker.
type Image []Element

// String renders the image one element per line, annotated with the
// index each instruction would occupy in the label-stripped "effective"
// view the VM executes (see vm.New).
func (img Image) String() string {
	var out strings.Builder
	effectiveIdx := 0
	for _, el := range img {
		if lbl, ok := el.(Label); ok {
			fmt.Fprintf(&out, "%s\n", lbl.String())
			continue
		}
		fmt.Fprintf(&out, "%04d %s\n", effectiveIdx, el.String())
		effectiveIdx++
	}
	return out.String()
}

// StopsControlFlow reports whether an instruction with this opcode never
// falls through to leave a value the compiler needs to clean up with a
// POP — used by the compiler's top-level emission rule (spec.md §4.1) to
// decide when a stack-neutral terminator already disposed of the
// expression's result.
func StopsControlFlow(op Opcode) bool {
	switch op {
	case STORE, JUMP, RETURN, HALT, PRINT:
		return true
	default:
		return false
	}
}
