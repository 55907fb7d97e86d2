package bytecode

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/kumir/pkg/actor"
	"github.com/chazu/kumir/pkg/value"
)

var log = commonlog.GetLogger("kumir.vm")

const (
	// DefaultMaxCallDepth bounds nested algorithm calls.
	DefaultMaxCallDepth = 4096

	// DefaultStopMarker is written to the output when "стоп" executes.
	DefaultStopMarker = "СТОП."

	// cancelCheckInterval is how many instructions run between checks of
	// the execution context.
	cancelCheckInterval = 1024
)

// Variable is a typed binding in a namespace. Set is false until the first
// assignment.
type Variable struct {
	Type     value.Type
	Value    value.Value
	Set      bool
	ReadOnly bool // арг parameters and actor constants
}

type namespace map[string]*Variable

// frame is one activation: the main program or an algorithm call.
type frame struct {
	alg    *Algorithm // nil for the main program
	chunk  *Chunk
	ip     int
	locals namespace // nil for the main program, whose stores go to globals

	refs   []string // caller variables receiving рез/аргрез values
	result bool     // push the function value on return
	line   int      // line of the call
}

// lineSource is where input statements read text from: the console or an
// open file.
type lineSource interface {
	ReadLine() (string, error)
}

type consoleReader struct {
	r *bufio.Reader
}

func (c consoleReader) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err == io.EOF && line == "" {
		return "", io.EOF
	}
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// VM executes a compiled Program.
type VM struct {
	program *Program
	globals namespace
	frames  []*frame
	stack   []value.Value

	registry  *actor.Registry
	actx      *actor.Context
	loaded    map[string]actor.Actor
	loadOrder []actor.Actor
	funcs     map[string]*actor.Func

	out     io.Writer
	console lineSource

	maxDepth   int
	stopMarker string
	stopped    bool

	// Trace logs every executed instruction at debug level.
	Trace bool
}

// NewVM creates a VM for program with no input, discarded output and the
// default actor registry.
func NewVM(program *Program) *VM {
	return &VM{
		program:    program,
		globals:    make(namespace),
		stack:      make([]value.Value, 0, 64),
		registry:   actor.Default(),
		loaded:     make(map[string]actor.Actor),
		funcs:      make(map[string]*actor.Func),
		out:        io.Discard,
		console:    consoleReader{r: bufio.NewReader(strings.NewReader(""))},
		maxDepth:   DefaultMaxCallDepth,
		stopMarker: DefaultStopMarker,
	}
}

// SetOutput sets the writer receiving console output.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetInput sets the reader console input is taken from.
func (vm *VM) SetInput(r io.Reader) {
	vm.console = consoleReader{r: bufio.NewReader(r)}
}

// SetRegistry replaces the actor registry.
func (vm *VM) SetRegistry(r *actor.Registry) {
	vm.registry = r
}

// SetActorContext sets the context passed to actor functions.
func (vm *VM) SetActorContext(c *actor.Context) {
	vm.actx = c
}

// SetMaxCallDepth sets the call depth limit. Values below 1 restore the
// default.
func (vm *VM) SetMaxCallDepth(n int) {
	if n < 1 {
		n = DefaultMaxCallDepth
	}
	vm.maxDepth = n
}

// SetStopMarker sets the text written by "стоп".
func (vm *VM) SetStopMarker(s string) {
	vm.stopMarker = s
}

// Stopped reports whether the program ended with "стоп".
func (vm *VM) Stopped() bool { return vm.stopped }

// Global returns the value of a global variable, if it is set.
func (vm *VM) Global(name string) (value.Value, bool) {
	v, ok := vm.globals[name]
	if !ok || !v.Set {
		return value.Value{}, false
	}
	return v.Value, true
}

// Execute runs the program to completion. Cancelling ctx aborts a running
// program with a RuntimeError wrapping ctx.Err().
func (vm *VM) Execute(ctx context.Context) error {
	if vm.actx == nil {
		vm.actx = actor.NewContext("", "")
	}
	defer vm.closeActors()

	if err := vm.useActor(0, actor.BuiltinsName); err != nil {
		return err
	}
	vm.frames = append(vm.frames[:0], &frame{chunk: vm.program.Main})
	vm.stack = vm.stack[:0]
	return vm.run(ctx)
}

func (vm *VM) run(ctx context.Context) error {
	steps := 0
	for !vm.stopped {
		f := vm.frames[len(vm.frames)-1]
		if f.ip >= len(f.chunk.Code) {
			if f.alg == nil {
				return nil
			}
			if err := vm.doReturn(0); err != nil {
				return err
			}
			continue
		}

		inst := &f.chunk.Code[f.ip]
		if steps++; steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return &RuntimeError{Line: inst.Line, Message: "выполнение прервано", Err: err}
			}
		}
		if vm.Trace {
			log.Debugf("[%04d] %-18s line=%d sp=%d depth=%d", f.ip, inst.Op, inst.Line, len(vm.stack), len(vm.frames))
		}
		f.ip++

		if err := vm.step(f, inst); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) step(f *frame, inst *Instruction) error {
	switch inst.Op {
	case OpLoadConst:
		vm.push(inst.Value)
	case OpLoadName:
		return vm.loadName(f, inst)
	case OpStore:
		return vm.store(f, inst)
	case OpMakeTable:
		return vm.makeTable(inst)

	case OpBinary:
		b := vm.pop()
		a := vm.pop()
		r, err := value.Binary(inst.Name, a, b)
		if err != nil {
			return wrapError(inst.Line, err)
		}
		vm.push(r)
	case OpUnary:
		r, err := value.Unary(inst.Name, vm.pop())
		if err != nil {
			return wrapError(inst.Line, err)
		}
		vm.push(r)

	case OpGetItem:
		return vm.getItem(f, inst)
	case OpSetItem:
		v := vm.pop()
		idx, err := vm.popIndexes(inst.Line, inst.Arg)
		if err != nil {
			return err
		}
		return vm.setElement(f, inst.Line, inst.Name, idx, v)
	case OpMakeSlice:
		return vm.makeSlice(f, inst)

	case OpJump:
		return vm.jump(f, inst)
	case OpJumpIfFalse, OpJumpIfTrue:
		c, err := vm.condition(inst.Line)
		if err != nil {
			return err
		}
		if c == (inst.Op == OpJumpIfTrue) {
			return vm.jump(f, inst)
		}

	case OpCall:
		return vm.call(f, inst)
	case OpReturn:
		return vm.doReturn(inst.Line)

	case OpOutput:
		return vm.output(inst)
	case OpInput:
		return vm.input(f, inst)
	case OpAssert:
		c, err := vm.condition(inst.Line)
		if err != nil {
			return err
		}
		if !c {
			return &RuntimeError{Line: inst.Line, Message: ErrAssertion.Error(), Err: ErrAssertion}
		}
	case OpStop:
		if _, err := io.WriteString(vm.out, vm.stopMarker); err != nil {
			return wrapError(inst.Line, err)
		}
		vm.stopped = true
		log.Debugf("stopped at line %d", inst.Line)
	case OpUseActor:
		return vm.useActor(inst.Line, inst.Name)

	default:
		return runtimeErrorf(inst.Line, "неизвестная инструкция %s", inst.Op)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stack and namespace helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

// popN pops n values and returns them in push order.
func (vm *VM) popN(n int) []value.Value {
	start := len(vm.stack) - n
	vals := make([]value.Value, n)
	copy(vals, vm.stack[start:])
	vm.stack = vm.stack[:start]
	return vals
}

// active is the namespace declarations in f go to.
func (vm *VM) active(f *frame) namespace {
	if f.locals != nil {
		return f.locals
	}
	return vm.globals
}

// lookup resolves a name local-then-global.
func (vm *VM) lookup(f *frame, name string) *Variable {
	if v, ok := f.locals[name]; ok {
		return v
	}
	return vm.globals[name]
}

func (vm *VM) jump(f *frame, inst *Instruction) error {
	off, err := f.chunk.Resolve(inst.Arg)
	if err != nil {
		return wrapError(inst.Line, err)
	}
	f.ip = off
	return nil
}

func (vm *VM) condition(line int) (bool, error) {
	v := vm.pop()
	if v.Type != value.Scalar(value.KindBool) {
		return false, runtimeErrorf(line, "условие должно быть логическим, получено %s", v.Type)
	}
	return v.B, nil
}

// ---------------------------------------------------------------------------
// Actors
// ---------------------------------------------------------------------------

func (vm *VM) useActor(line int, name string) error {
	if _, ok := vm.loaded[name]; ok {
		return nil
	}
	a, err := vm.registry.New(name)
	if err != nil {
		return wrapError(line, err)
	}
	vm.loaded[name] = a
	vm.loadOrder = append(vm.loadOrder, a)

	for cname, cv := range a.Constants() {
		vm.globals[cname] = &Variable{Type: cv.Type, Value: cv, Set: true, ReadOnly: true}
	}
	for _, fn := range a.Functions() {
		vm.funcs[fn.Name] = fn
	}
	return nil
}

func (vm *VM) closeActors() {
	for _, a := range vm.loadOrder {
		if c, ok := a.(actor.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warningf("closing actor %s: %s", a.Name(), err)
			}
		}
	}
}
