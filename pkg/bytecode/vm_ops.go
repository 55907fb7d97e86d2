package bytecode

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/kumir/compiler"
	"github.com/chazu/kumir/pkg/actor"
	"github.com/chazu/kumir/pkg/value"
)

var (
	tString = value.Scalar(value.KindString)
	tChar   = value.Scalar(value.KindChar)
	tFile   = value.Scalar(value.KindFile)
)

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (vm *VM) loadName(f *frame, inst *Instruction) error {
	v := vm.lookup(f, inst.Name)
	if v == nil {
		if vm.callable(inst.Name) {
			return vm.call(f, &Instruction{Line: inst.Line, Op: OpCall, Name: inst.Name, Result: true})
		}
		return runtimeErrorf(inst.Line, "имя \"%s\" не описано", inst.Name)
	}
	if !v.Set {
		return runtimeErrorf(inst.Line, "величина \"%s\" не имеет значения", inst.Name)
	}
	vm.push(v.Value)
	return nil
}

func (vm *VM) callable(name string) bool {
	if _, ok := vm.program.Algorithms[name]; ok {
		return true
	}
	_, ok := vm.funcs[name]
	return ok
}

func (vm *VM) store(f *frame, inst *Instruction) error {
	var val value.Value
	if inst.Init {
		val = vm.pop()
	}

	switch inst.Mode {
	case StoreDeclare:
		ns := vm.active(f)
		var last *Variable
		for _, name := range inst.Names {
			last = &Variable{Type: inst.Type}
			ns[name] = last
		}
		if inst.Init {
			return vm.assign(inst.Line, last, val)
		}
		return nil

	case StoreDeclareOrAssign:
		name := inst.Names[0]
		if vm.lookup(f, name) == nil {
			v := &Variable{Type: inst.Type}
			vm.active(f)[name] = v
			return vm.assign(inst.Line, v, val)
		}
	}

	v, err := vm.writable(f, inst.Line, inst.Names[0])
	if err != nil {
		return err
	}
	return vm.assign(inst.Line, v, val)
}

// writable resolves a variable that is about to be modified.
func (vm *VM) writable(f *frame, line int, name string) (*Variable, error) {
	v := vm.lookup(f, name)
	if v == nil {
		return nil, runtimeErrorf(line, "имя \"%s\" не описано", name)
	}
	if v.ReadOnly {
		return nil, runtimeErrorf(line, "величину \"%s\" нельзя изменять", name)
	}
	return v, nil
}

// assign stores val into v, converting it to the declared type. Tables are
// copied so that no two variables share one; a table keeps the bounds it
// was first given.
func (vm *VM) assign(line int, v *Variable, val value.Value) error {
	conv, err := value.Coerce(v.Type, val)
	if err != nil {
		return wrapError(line, err)
	}
	if v.Type.Table && v.Set && v.Value.T != nil && conv.T != nil && !v.Value.T.SameShape(conv.T) {
		return runtimeErrorf(line, "границы таблиц не совпадают: %s и %s", boundsString(v.Value.T), boundsString(conv.T))
	}
	v.Value = conv.Copy()
	v.Set = true
	return nil
}

// ---------------------------------------------------------------------------
// Tables and strings
// ---------------------------------------------------------------------------

func boundsString(t *value.Table) string {
	parts := make([]string, len(t.Bounds))
	for i, b := range t.Bounds {
		parts[i] = fmt.Sprintf("%d:%d", b.Lo, b.Hi)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (vm *VM) makeTable(inst *Instruction) error {
	vals := vm.popN(2 * inst.Arg)
	bounds := make([]value.Bound, inst.Arg)
	for i := range bounds {
		lo, hi := vals[2*i], vals[2*i+1]
		if lo.Type != intType || hi.Type != intType {
			return runtimeErrorf(inst.Line, "границы таблицы должны быть целыми")
		}
		bounds[i] = value.Bound{Lo: lo.I, Hi: hi.I}
	}
	t, err := value.NewTable(inst.Type.Kind, bounds)
	if err != nil {
		return wrapError(inst.Line, err)
	}
	vm.push(value.TableValue(t))
	return nil
}

func (vm *VM) popIndexes(line, n int) ([]int64, error) {
	vals := vm.popN(n)
	idx := make([]int64, n)
	for i, v := range vals {
		if v.Type != intType {
			return nil, runtimeErrorf(line, "индекс должен быть целым, получено %s", v.Type)
		}
		idx[i] = v.I
	}
	return idx, nil
}

// indexable resolves a table or string variable holding a value.
func (vm *VM) indexable(f *frame, line int, name string) (*Variable, error) {
	v := vm.lookup(f, name)
	if v == nil {
		return nil, runtimeErrorf(line, "имя \"%s\" не описано", name)
	}
	if !v.Type.Table && v.Type != tString {
		return nil, runtimeErrorf(line, "величина \"%s\" не является таблицей или строкой", name)
	}
	if !v.Set {
		return nil, runtimeErrorf(line, "величина \"%s\" не имеет значения", name)
	}
	return v, nil
}

func charIndex(line int, s []rune, idx []int64) (int, error) {
	if len(idx) != 1 {
		return 0, runtimeErrorf(line, "у строки один индекс, указано %d", len(idx))
	}
	i := idx[0]
	if i < 1 || i > int64(len(s)) {
		return 0, runtimeErrorf(line, "индекс %d вне строки длины %d", i, len(s))
	}
	return int(i - 1), nil
}

func (vm *VM) getItem(f *frame, inst *Instruction) error {
	idx, err := vm.popIndexes(inst.Line, inst.Arg)
	if err != nil {
		return err
	}
	v, err := vm.indexable(f, inst.Line, inst.Name)
	if err != nil {
		return err
	}

	if v.Type.Table {
		cell, ok, err := v.Value.T.Get(idx)
		if err != nil {
			return wrapError(inst.Line, err)
		}
		if !ok {
			return runtimeErrorf(inst.Line, "элемент таблицы %s%v не имеет значения", inst.Name, idx)
		}
		vm.push(cell)
		return nil
	}

	s := []rune(v.Value.S)
	i, err := charIndex(inst.Line, s, idx)
	if err != nil {
		return err
	}
	vm.push(value.Char(s[i]))
	return nil
}

// setElement assigns a table cell or a character of a string variable.
func (vm *VM) setElement(f *frame, line int, name string, idx []int64, val value.Value) error {
	if _, err := vm.writable(f, line, name); err != nil {
		return err
	}
	v, err := vm.indexable(f, line, name)
	if err != nil {
		return err
	}

	if v.Type.Table {
		return wrapError(line, v.Value.T.Set(idx, val))
	}

	s := []rune(v.Value.S)
	i, err := charIndex(line, s, idx)
	if err != nil {
		return err
	}
	c, err := value.Coerce(tChar, val)
	if err != nil {
		return wrapError(line, err)
	}
	s[i] = c.C
	v.Value = value.String(string(s))
	return nil
}

func (vm *VM) makeSlice(f *frame, inst *Instruction) error {
	idx, err := vm.popIndexes(inst.Line, 2)
	if err != nil {
		return err
	}
	v, err := vm.indexable(f, inst.Line, inst.Name)
	if err != nil {
		return err
	}
	if v.Type.Table {
		return runtimeErrorf(inst.Line, "вырезка определена только для строк")
	}

	s := []rune(v.Value.S)
	from, to := idx[0], idx[1]
	if from > to {
		vm.push(value.String(""))
		return nil
	}
	if from < 1 || to > int64(len(s)) {
		return runtimeErrorf(inst.Line, "вырезка [%d:%d] вне строки длины %d", from, to, len(s))
	}
	vm.push(value.String(string(s[from-1 : to])))
	return nil
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (vm *VM) call(f *frame, inst *Instruction) error {
	if alg, ok := vm.program.Algorithm(inst.Name); ok {
		return vm.callAlgorithm(alg, inst)
	}
	if fn, ok := vm.funcs[inst.Name]; ok {
		return vm.callNative(fn, inst)
	}
	return runtimeErrorf(inst.Line, "алгоритм \"%s\" не найден", inst.Name)
}

func argError(line, i int, name string, err error) error {
	return &RuntimeError{
		Line:    line,
		Message: fmt.Sprintf("аргумент %d алгоритма \"%s\": %s", i+1, name, err),
		Err:     err,
	}
}

func (vm *VM) callAlgorithm(alg *Algorithm, inst *Instruction) error {
	if inst.Arg != len(alg.Params) {
		return runtimeErrorf(inst.Line, "алгоритм \"%s\" ожидает %d аргументов, передано %d",
			alg.Name, len(alg.Params), inst.Arg)
	}
	if inst.Result && !alg.IsFunction() {
		return runtimeErrorf(inst.Line, "алгоритм \"%s\" не возвращает значения", alg.Name)
	}
	if len(vm.frames) > vm.maxDepth {
		return runtimeErrorf(inst.Line, "превышена глубина вызовов (%d)", vm.maxDepth)
	}

	pushed := 0
	for _, p := range alg.Params {
		if p.Mode != compiler.ModeOut {
			pushed++
		}
	}
	args := vm.popN(pushed)

	locals := make(namespace, len(alg.Params)+1)
	next := 0
	for i, p := range alg.Params {
		v := &Variable{Type: p.Type, ReadOnly: p.Mode == compiler.ModeIn}
		if p.Mode != compiler.ModeOut {
			conv, err := value.Coerce(p.Type, args[next])
			if err != nil {
				return argError(inst.Line, i, alg.Name, err)
			}
			next++
			v.Value, v.Set = conv.Copy(), true
		}
		locals[p.Name] = v
	}
	if alg.IsFunction() {
		locals[ReturnVar] = &Variable{Type: alg.ReturnType}
	}

	vm.frames = append(vm.frames, &frame{
		alg:    alg,
		chunk:  alg.Chunk,
		locals: locals,
		refs:   inst.Refs,
		result: inst.Result,
		line:   inst.Line,
	})
	return nil
}

// doReturn leaves the current algorithm, copying рез/аргрез parameters back
// to the caller's variables.
func (vm *VM) doReturn(line int) error {
	n := len(vm.frames) - 1
	f := vm.frames[n]
	vm.frames = vm.frames[:n]
	caller := vm.frames[n-1]

	var result value.Value
	if f.alg.IsFunction() {
		rv := f.locals[ReturnVar]
		if !rv.Set {
			return runtimeErrorf(line, "алгоритм \"%s\" должен вернуть значение", f.alg.Name)
		}
		result = rv.Value
	}

	for i, ref := range f.refs {
		if ref == "" {
			continue
		}
		local := f.locals[f.alg.Params[i].Name]
		if !local.Set {
			continue
		}
		target, err := vm.writable(caller, f.line, ref)
		if err != nil {
			return err
		}
		if err := vm.assign(f.line, target, local.Value); err != nil {
			return err
		}
	}

	if f.result {
		vm.push(result)
	}
	return nil
}

func (vm *VM) callNative(fn *actor.Func, inst *Instruction) error {
	if inst.Arg != len(fn.Params) {
		return runtimeErrorf(inst.Line, "алгоритм \"%s\" ожидает %d аргументов, передано %d",
			fn.Name, len(fn.Params), inst.Arg)
	}
	if inst.Result && !fn.Return.IsValid() {
		return runtimeErrorf(inst.Line, "алгоритм \"%s\" не возвращает значения", fn.Name)
	}

	args := vm.popN(inst.Arg)
	for i, p := range fn.Params {
		conv, err := value.Coerce(p, args[i])
		if err != nil {
			return argError(inst.Line, i, fn.Name, err)
		}
		args[i] = conv
	}

	res, err := fn.Call(vm.actx, args)
	if err != nil {
		return wrapError(inst.Line, err)
	}
	if inst.Result {
		vm.push(res)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Input and output
// ---------------------------------------------------------------------------

func openHandle(line int, v value.Value) (value.Handle, error) {
	if v.F == nil {
		return nil, runtimeErrorf(line, "файл не открыт")
	}
	return v.F, nil
}

func (vm *VM) output(inst *Instruction) error {
	vals := vm.popN(inst.Arg)

	var w io.Writer = vm.out
	if len(vals) > 0 && vals[0].Type == tFile {
		h, err := openHandle(inst.Line, vals[0])
		if err != nil {
			return err
		}
		w = handleWriter{h}
		vals = vals[1:]
	}

	var b strings.Builder
	for _, v := range vals {
		if v.Type.Table {
			return runtimeErrorf(inst.Line, "нельзя вывести таблицу целиком")
		}
		b.WriteString(v.String())
	}
	_, err := io.WriteString(w, b.String())
	return wrapError(inst.Line, err)
}

type handleWriter struct {
	h value.Handle
}

func (w handleWriter) Write(p []byte) (int, error) {
	return w.h.WriteString(string(p))
}

var errNoInput = errors.New("нет данных для ввода")

func (vm *VM) input(f *frame, inst *Instruction) error {
	targets := inst.Targets
	idxs := make([][]int64, len(targets))
	for i := len(targets) - 1; i >= 0; i-- {
		idx, err := vm.popIndexes(inst.Line, targets[i].Dims)
		if err != nil {
			return err
		}
		idxs[i] = idx
	}

	src := vm.console
	if len(targets) > 0 && targets[0].Dims == 0 {
		if v := vm.lookup(f, targets[0].Name); v != nil && v.Type == tFile {
			if !v.Set {
				return runtimeErrorf(inst.Line, "файл не открыт")
			}
			h, err := openHandle(inst.Line, v.Value)
			if err != nil {
				return err
			}
			src = h
			targets, idxs = targets[1:], idxs[1:]
		}
	}
	if len(targets) == 0 {
		return nil
	}

	kinds := make([]value.Kind, len(targets))
	for i, t := range targets {
		k, err := vm.targetKind(f, inst.Line, t)
		if err != nil {
			return err
		}
		kinds[i] = k
	}

	readLine := func() (string, error) {
		line, err := src.ReadLine()
		if err == io.EOF {
			return "", &RuntimeError{Line: inst.Line, Message: errNoInput.Error(), Err: errNoInput}
		}
		return line, wrapError(inst.Line, err)
	}

	if len(targets) == 1 && kinds[0] == value.KindString {
		line, err := readLine()
		if err != nil {
			return err
		}
		return vm.storeTarget(f, inst.Line, targets[0], idxs[0], value.String(line))
	}

	var fields []string
	for i, t := range targets {
		for len(fields) == 0 {
			line, err := readLine()
			if err != nil {
				return err
			}
			fields = strings.Fields(line)
		}
		v, err := value.Parse(kinds[i], fields[0])
		if err != nil {
			return wrapError(inst.Line, err)
		}
		fields = fields[1:]
		if err := vm.storeTarget(f, inst.Line, t, idxs[i], v); err != nil {
			return err
		}
	}
	return nil
}

// targetKind is the kind of value an input target receives.
func (vm *VM) targetKind(f *frame, line int, t InputTarget) (value.Kind, error) {
	v := vm.lookup(f, t.Name)
	if v == nil {
		return 0, runtimeErrorf(line, "имя \"%s\" не описано", t.Name)
	}
	switch {
	case t.Dims == 0 && v.Type.Table:
		return 0, runtimeErrorf(line, "нельзя ввести таблицу \"%s\" целиком", t.Name)
	case t.Dims > 0 && v.Type == tString:
		return value.KindChar, nil
	}
	return v.Type.Kind, nil
}

func (vm *VM) storeTarget(f *frame, line int, t InputTarget, idx []int64, val value.Value) error {
	if t.Dims > 0 {
		return vm.setElement(f, line, t.Name, idx, val)
	}
	v, err := vm.writable(f, line, t.Name)
	if err != nil {
		return err
	}
	return vm.assign(line, v, val)
}
