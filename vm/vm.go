// Package vm implements NotScheme's stack-oriented virtual machine
// (spec.md §4.4): it loads a flat, linked bytecode image, resolves
// labels to instruction indices once at load time, then interprets the
// image over an operand stack, a call stack of return frames, and an
// environment chain.
package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wegfawefgawefg/notscheme-go/code"
	"github.com/wegfawefgawefg/notscheme-go/object"
)

const StackSize = 2048  // arbitrary, generous headroom for recursion depth
const MaxCallDepth = 4096

// LoadError is a fatal error discovered while preparing an image to run:
// currently, only a duplicate label definition (spec.md §4.4).
type LoadError struct{ msg string }

func (e *LoadError) Error() string { return e.msg }

// RuntimeError is what a failing instruction produces: enough context
// (spec.md §7) to print "diagnostic with ip, offending instruction,
// stack snapshot" without wrapping a cause, since there is no underlying
// error to preserve — the VM itself detected the fault.
type RuntimeError struct {
	IP          int
	Instruction string
	Stack       []string
	Msg         string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at ip=%d (%s): %s [stack: %s]",
		e.IP, e.Instruction, e.Msg, strings.Join(e.Stack, ", "))
}

// VM is one execution of a linked image.
type VM struct {
	effective []*code.Instruction // label-stripped "effective" view (spec.md §4.4)
	labels    map[string]int

	stack []object.Value
	sp    int

	callStack []*Frame
	env       *object.Environment

	// structDescriptors caches one *StructDescriptor per type name so
	// every instance of a type shares the same descriptor identity,
	// built once the first time that type is constructed (spec.md §9:
	// "built once per struct type").
	structDescriptors map[string]*object.StructDescriptor

	ip int

	out    io.Writer
	logger *logrus.Logger

	halted bool
	result object.Value
}

// New prepares img for execution: it builds the label→index map over
// the label-stripped effective view. A duplicate label is a fatal
// load-time error.
func New(img code.Image, out io.Writer, logger *logrus.Logger) (*VM, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	effective := make([]*code.Instruction, 0, len(img))
	labels := make(map[string]int)
	for _, el := range img {
		switch v := el.(type) {
		case code.Label:
			name := string(v)
			if _, exists := labels[name]; exists {
				return nil, &LoadError{msg: fmt.Sprintf("duplicate label %q", name)}
			}
			labels[name] = len(effective)
		case *code.Instruction:
			effective = append(effective, v)
		}
	}

	return &VM{
		effective:         effective,
		labels:            labels,
		stack:             make([]object.Value, StackSize),
		env:               object.NewGlobalEnvironment(),
		structDescriptors: make(map[string]*object.StructDescriptor),
		out:               out,
		logger:            logger,
	}, nil
}

// Result returns the program's final value: the top of the operand
// stack at HALT, or nil if the stack was empty.
func (vm *VM) Result() object.Value {
	if vm.result == nil {
		return object.NilValue
	}
	return vm.result
}

// Run executes from ip 0 until HALT or a runtime error. HALT always
// writes the literal line "Execution halted." to the output sink
// (spec.md §6).
func (vm *VM) Run() error {
	for !vm.halted {
		if vm.ip >= len(vm.effective) {
			vm.result = vm.top()
			return nil
		}
		instr := vm.effective[vm.ip]
		vm.ip++

		if err := vm.execute(instr); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) execute(instr *code.Instruction) error {
	switch instr.Op {
	case code.PUSH:
		return vm.push(instr.Operands[0].(object.Value))

	case code.POP:
		_, err := vm.pop(instr)
		return err

	case code.ADD, code.SUB, code.MUL:
		return vm.executeArithmetic(instr)

	case code.DIV:
		return vm.executeDivide(instr)

	case code.EQ, code.LT, code.GT:
		return vm.executeComparison(instr)

	case code.NOT:
		v, err := vm.pop(instr)
		if err != nil {
			return err
		}
		return vm.push(object.NativeBool(!v.Truthy()))

	case code.LOAD:
		name := instr.Operands[0].(string)
		v, ok := vm.env.Lookup(name)
		if !ok {
			return vm.fault(instr, "undefined name %q", name)
		}
		return vm.push(v)

	case code.STORE:
		name := instr.Operands[0].(string)
		v, err := vm.pop(instr)
		if err != nil {
			return err
		}
		vm.env.Store(name, v)
		return nil

	case code.JUMP:
		return vm.jumpTo(instr, instr.Operands[0].(string))

	case code.JUMPIfFalse:
		v, err := vm.pop(instr)
		if err != nil {
			return err
		}
		if !v.Truthy() {
			return vm.jumpTo(instr, instr.Operands[0].(string))
		}
		return nil

	case code.MakeClosure:
		label := instr.Operands[0].(string)
		return vm.push(&object.Closure{Label: label, Env: vm.env.Snapshot()})

	case code.CALL:
		return vm.executeCall(instr)

	case code.RETURN:
		return vm.executeReturn(instr)

	case code.MakeStruct:
		return vm.executeMakeStruct(instr)

	case code.GetField:
		return vm.executeGetField(instr)

	case code.SetField:
		return vm.executeSetField(instr)

	case code.HALT:
		vm.result = vm.top()
		vm.halted = true
		fmt.Fprintln(vm.out, "Execution halted.")
		return nil

	case code.PRINT:
		v, err := vm.pop(instr)
		if err != nil {
			return err
		}
		fmt.Fprintf(vm.out, "Output: %s\n", v.Display())
		return nil

	case code.IsNil:
		v, err := vm.pop(instr)
		if err != nil {
			return err
		}
		_, isNil := v.(*object.Nil)
		return vm.push(object.NativeBool(isNil))

	case code.CONS:
		return vm.executeCons(instr)

	case code.FIRST:
		return vm.executeFirst(instr)

	case code.REST:
		return vm.executeRest(instr)

	case code.MakeList:
		return vm.executeMakeList(instr)

	case code.IsBoolean, code.IsNumber, code.IsString, code.IsList, code.IsStruct, code.IsFunction:
		return vm.executeTypePredicate(instr)

	default:
		return vm.fault(instr, "unknown opcode %s", instr.Op)
	}
}

func (vm *VM) push(v object.Value) error {
	if vm.sp >= StackSize {
		return &RuntimeError{IP: vm.ip, Msg: "operand stack overflow"}
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

// pop removes and returns the top of the operand stack. instr is the
// instruction doing the popping, attached to the error on underflow so
// the diagnostic names the offender.
func (vm *VM) pop(instr *code.Instruction) (object.Value, error) {
	if vm.sp == 0 {
		return nil, vm.fault(instr, "operand stack underflow")
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

func (vm *VM) top() object.Value {
	if vm.sp == 0 {
		return object.NilValue
	}
	return vm.stack[vm.sp-1]
}

func (vm *VM) jumpTo(instr *code.Instruction, label string) error {
	idx, ok := vm.labels[label]
	if !ok {
		return vm.fault(instr, "jump to undefined label %q", label)
	}
	vm.ip = idx
	return nil
}

// fault builds a RuntimeError carrying the current ip, the offending
// instruction, and a snapshot of the operand stack, per spec.md §7.
func (vm *VM) fault(instr *code.Instruction, format string, args ...interface{}) error {
	snapshot := make([]string, vm.sp)
	for i := 0; i < vm.sp; i++ {
		snapshot[i] = vm.stack[i].Display()
	}
	return &RuntimeError{
		IP:          vm.ip - 1,
		Instruction: instr.String(),
		Stack:       snapshot,
		Msg:         fmt.Sprintf(format, args...),
	}
}

func numeric(v object.Value) (float64, bool, bool) {
	switch n := v.(type) {
	case *object.Integer:
		return float64(n.Value), false, true
	case *object.Float:
		return n.Value, true, true
	default:
		return 0, false, false
	}
}

func (vm *VM) executeArithmetic(instr *code.Instruction) error {
	right, err := vm.pop(instr)
	if err != nil {
		return err
	}
	left, err := vm.pop(instr)
	if err != nil {
		return err
	}

	li, liOK := left.(*object.Integer)
	ri, riOK := right.(*object.Integer)
	if liOK && riOK {
		var result int64
		switch instr.Op {
		case code.ADD:
			result = li.Value + ri.Value
		case code.SUB:
			result = li.Value - ri.Value
		case code.MUL:
			result = li.Value * ri.Value
		}
		return vm.push(&object.Integer{Value: result})
	}

	lf, _, lIsNum := numeric(left)
	rf, _, rIsNum := numeric(right)
	if !lIsNum || !rIsNum {
		return vm.fault(instr, "arithmetic on non-numeric operands: %s, %s", left.Type(), right.Type())
	}
	var result float64
	switch instr.Op {
	case code.ADD:
		result = lf + rf
	case code.SUB:
		result = lf - rf
	case code.MUL:
		result = lf * rf
	}
	return vm.push(&object.Float{Value: result})
}

func (vm *VM) executeDivide(instr *code.Instruction) error {
	right, err := vm.pop(instr)
	if err != nil {
		return err
	}
	left, err := vm.pop(instr)
	if err != nil {
		return err
	}

	lf, _, lIsNum := numeric(left)
	rf, _, rIsNum := numeric(right)
	if !lIsNum || !rIsNum {
		return vm.fault(instr, "division on non-numeric operands: %s, %s", left.Type(), right.Type())
	}
	if rf == 0 {
		return vm.fault(instr, "division by zero")
	}
	return vm.push(&object.Float{Value: lf / rf})
}

func (vm *VM) executeComparison(instr *code.Instruction) error {
	right, err := vm.pop(instr)
	if err != nil {
		return err
	}
	left, err := vm.pop(instr)
	if err != nil {
		return err
	}

	if instr.Op == code.EQ {
		return vm.push(object.NativeBool(valuesEqual(left, right)))
	}

	lf, _, lIsNum := numeric(left)
	rf, _, rIsNum := numeric(right)
	if lIsNum && rIsNum {
		switch instr.Op {
		case code.LT:
			return vm.push(object.NativeBool(lf < rf))
		case code.GT:
			return vm.push(object.NativeBool(lf > rf))
		}
	}

	ls, lIsStr := left.(*object.String)
	rs, rIsStr := right.(*object.String)
	if lIsStr && rIsStr {
		switch instr.Op {
		case code.LT:
			return vm.push(object.NativeBool(ls.Value < rs.Value))
		case code.GT:
			return vm.push(object.NativeBool(ls.Value > rs.Value))
		}
	}

	return vm.fault(instr, "%s not supported between %s and %s", instr.Op, left.Type(), right.Type())
}

func valuesEqual(a, b object.Value) bool {
	if af, _, aOK := numeric(a); aOK {
		if bf, _, bOK := numeric(b); bOK {
			return af == bf // numeric cross-type (int vs float) compares by value
		}
	}
	switch av := a.(type) {
	case *object.String:
		bv, ok := b.(*object.String)
		return ok && av.Value == bv.Value
	case *object.Boolean:
		bv, ok := b.(*object.Boolean)
		return ok && av.Value == bv.Value
	case *object.Nil:
		_, ok := b.(*object.Nil)
		return ok
	case *object.QuotedSymbol:
		bv, ok := b.(*object.QuotedSymbol)
		return ok && av.Name == bv.Name
	case *object.List:
		bv, ok := b.(*object.List)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !valuesEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *object.StructInstance:
		bv, ok := b.(*object.StructInstance)
		if !ok || av.Descriptor != bv.Descriptor || len(av.Values) != len(bv.Values) {
			return false
		}
		for i := range av.Values {
			if !valuesEqual(av.Values[i], bv.Values[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func (vm *VM) executeCall(instr *code.Instruction) error {
	if len(vm.callStack) >= MaxCallDepth {
		return vm.fault(instr, "call stack exceeded depth %d", MaxCallDepth)
	}
	callee, err := vm.pop(instr)
	if err != nil {
		return err
	}
	closure, ok := callee.(*object.Closure)
	if !ok {
		return vm.fault(instr, "cannot call a %s", callee.Type())
	}
	idx, ok := vm.labels[closure.Label]
	if !ok {
		return vm.fault(instr, "closure entry label %q not found", closure.Label)
	}

	vm.callStack = append(vm.callStack, &Frame{ReturnIP: vm.ip, SavedEnv: vm.env})
	vm.env = closure.Env.Extend()
	vm.ip = idx
	return nil
}

func (vm *VM) executeReturn(instr *code.Instruction) error {
	if len(vm.callStack) == 0 {
		vm.logger.Warn("RETURN at top level; halting")
		vm.result = vm.top()
		vm.halted = true
		fmt.Fprintln(vm.out, "Execution halted.")
		return nil
	}
	frame := vm.callStack[len(vm.callStack)-1]
	vm.callStack = vm.callStack[:len(vm.callStack)-1]
	vm.ip = frame.ReturnIP
	vm.env = frame.SavedEnv
	return nil
}

func (vm *VM) executeMakeStruct(instr *code.Instruction) error {
	desc := instr.Operands[0].(code.StructDescriptor)
	values := make([]object.Value, len(desc.Fields))
	for i := len(desc.Fields) - 1; i >= 0; i-- {
		v, err := vm.pop(instr)
		if err != nil {
			return err
		}
		values[i] = v
	}
	descriptor, ok := vm.structDescriptors[desc.Name]
	if !ok {
		descriptor = object.NewStructDescriptor(desc.Name, desc.Fields)
		vm.structDescriptors[desc.Name] = descriptor
	}
	instance := &object.StructInstance{Descriptor: descriptor, Values: values}
	return vm.push(instance)
}

func (vm *VM) executeGetField(instr *code.Instruction) error {
	field := instr.Operands[0].(string)
	instanceVal, err := vm.pop(instr)
	if err != nil {
		return err
	}
	instance, ok := instanceVal.(*object.StructInstance)
	if !ok {
		return vm.fault(instr, "cannot get field %q of a %s", field, instanceVal.Type())
	}
	idx, ok := instance.Descriptor.FieldIndex(field)
	if !ok {
		return vm.fault(instr, "struct %q has no field %q", instance.Descriptor.Name, field)
	}
	return vm.push(instance.Values[idx])
}

func (vm *VM) executeSetField(instr *code.Instruction) error {
	field := instr.Operands[0].(string)
	value, err := vm.pop(instr)
	if err != nil {
		return err
	}
	instanceVal, err := vm.pop(instr)
	if err != nil {
		return err
	}
	instance, ok := instanceVal.(*object.StructInstance)
	if !ok {
		return vm.fault(instr, "cannot set field %q of a %s", field, instanceVal.Type())
	}
	idx, ok := instance.Descriptor.FieldIndex(field)
	if !ok {
		return vm.fault(instr, "struct %q has no field %q", instance.Descriptor.Name, field)
	}
	instance.Values[idx] = value
	return vm.push(instance)
}

// asListItems normalizes a list-or-nil value to its item slice, per
// spec.md §4.4: nil is treated as the empty list by CONS.
func asListItems(v object.Value) ([]object.Value, bool) {
	switch l := v.(type) {
	case *object.List:
		return l.Items, true
	case *object.Nil:
		return nil, true
	default:
		return nil, false
	}
}

func (vm *VM) executeCons(instr *code.Instruction) error {
	item, err := vm.pop(instr)
	if err != nil {
		return err
	}
	listVal, err := vm.pop(instr)
	if err != nil {
		return err
	}
	items, ok := asListItems(listVal)
	if !ok {
		return vm.fault(instr, "cons: second argument is not a list (%s)", listVal.Type())
	}
	newItems := make([]object.Value, 0, len(items)+1)
	newItems = append(newItems, item)
	newItems = append(newItems, items...)
	return vm.push(&object.List{Items: newItems})
}

func (vm *VM) executeFirst(instr *code.Instruction) error {
	v, err := vm.pop(instr)
	if err != nil {
		return err
	}
	items, ok := asListItems(v)
	if !ok {
		return vm.fault(instr, "first: not a list (%s)", v.Type())
	}
	if len(items) == 0 {
		return vm.fault(instr, "first: empty list")
	}
	return vm.push(items[0])
}

func (vm *VM) executeRest(instr *code.Instruction) error {
	v, err := vm.pop(instr)
	if err != nil {
		return err
	}
	items, ok := asListItems(v)
	if !ok {
		return vm.fault(instr, "rest: not a list (%s)", v.Type())
	}
	if len(items) == 0 {
		return vm.fault(instr, "rest: empty list")
	}
	if len(items) == 1 {
		return vm.push(object.NilValue)
	}
	return vm.push(&object.List{Items: items[1:]})
}

func (vm *VM) executeMakeList(instr *code.Instruction) error {
	n := instr.Operands[0].(int)
	items := make([]object.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := vm.pop(instr)
		if err != nil {
			return err
		}
		items[i] = v
	}
	return vm.push(&object.List{Items: items})
}

func (vm *VM) executeTypePredicate(instr *code.Instruction) error {
	v, err := vm.pop(instr)
	if err != nil {
		return err
	}
	var result bool
	switch instr.Op {
	case code.IsBoolean:
		_, result = v.(*object.Boolean)
	case code.IsNumber:
		_, isInt := v.(*object.Integer)
		_, isFloat := v.(*object.Float)
		result = isInt || isFloat
	case code.IsString:
		_, result = v.(*object.String)
	case code.IsList:
		_, isList := v.(*object.List)
		_, isNil := v.(*object.Nil)
		result = isList || isNil
	case code.IsStruct:
		_, result = v.(*object.StructInstance)
	case code.IsFunction:
		_, result = v.(*object.Closure)
	}
	return vm.push(object.NativeBool(result))
}
