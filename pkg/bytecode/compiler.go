package bytecode

import (
	"fmt"

	"github.com/chazu/kumir/compiler"
	"github.com/chazu/kumir/pkg/value"
)

// Compiler turns the flat statement list produced by the parser into a
// Program. It works in two passes: the first hands out jump tags to every
// control-flow statement and records algorithm signatures, the second emits
// instructions into the chunk of the algorithm being defined.
type Compiler struct {
	program *Program
	chunk   *Chunk // active chunk
	line    int    // line of the statement being compiled

	nextTag int
	tags    map[int][]int // statement index -> tags
	exits   map[int]int   // Exit statement index -> loop exit tag
	sigs    map[string][]compiler.Param

	ifs   []int           // open IfStart statements
	loops []compiler.Stmt // open loop start statements
	loopI []int           // their statement indexes
}

// Compile compiles a parsed program.
func Compile(stmts []compiler.Stmt) (*Program, error) {
	c := &Compiler{
		program: &Program{
			Main:       NewChunk(),
			Algorithms: make(map[string]*Algorithm),
		},
		tags:  make(map[int][]int),
		exits: make(map[int]int),
		sigs:  make(map[string][]compiler.Param),
	}
	c.chunk = c.program.Main

	if err := c.assignTags(stmts); err != nil {
		return nil, err
	}
	for i, stmt := range stmts {
		c.line = stmt.Line()
		if err := c.compileStatement(i, stmt); err != nil {
			return nil, err
		}
	}
	if c.chunk != c.program.Main {
		return nil, c.errorf("нет кон после нач")
	}

	if len(c.program.Order) > 0 {
		entry := c.program.Algorithms[c.program.Entry]
		c.program.Main.Emit(Instruction{Line: entry.Line, Op: OpCall, Name: entry.Name})
	}
	return c.program, nil
}

// CompileSource parses and compiles program text.
func CompileSource(source string) (*Program, error) {
	stmts, err := compiler.Parse(source)
	if err != nil {
		return nil, err
	}
	return Compile(stmts)
}

func (c *Compiler) errorf(format string, args ...any) error {
	return &compiler.SyntaxError{Line: c.line, Message: fmt.Sprintf(format, args...)}
}

func (c *Compiler) newTag() int {
	t := c.nextTag
	c.nextTag++
	return t
}

func (c *Compiler) emit(inst Instruction) int {
	inst.Line = c.line
	return c.chunk.Emit(inst)
}

// ---------------------------------------------------------------------------
// Pass 1: tags and signatures
// ---------------------------------------------------------------------------

func (c *Compiler) assignTags(stmts []compiler.Stmt) error {
	var ifs, loops []int
	for i, stmt := range stmts {
		c.line = stmt.Line()
		switch s := stmt.(type) {
		case *compiler.AlgStart:
			if _, dup := c.sigs[s.Name]; dup {
				return c.errorf("алгоритм \"%s\" уже описан", s.Name)
			}
			c.sigs[s.Name] = s.Params

		case *compiler.IfStart:
			c.tags[i] = []int{c.newTag()}
			ifs = append(ifs, i)
		case *compiler.ElseStart:
			if len(ifs) == 0 {
				return c.errorf("иначе без если")
			}
			top := ifs[len(ifs)-1]
			c.tags[top] = append(c.tags[top], c.newTag())
		case *compiler.IfEnd:
			if len(ifs) == 0 {
				return c.errorf("все без если")
			}
			ifs = ifs[:len(ifs)-1]

		case *compiler.LoopCountStart, *compiler.LoopWhileStart,
			*compiler.LoopForStart, *compiler.LoopUntilStart:
			c.tags[i] = []int{c.newTag(), c.newTag()} // body, exit
			loops = append(loops, i)
		case *compiler.LoopCountEnd, *compiler.LoopWhileEnd,
			*compiler.LoopForEnd, *compiler.LoopUntilEnd:
			if len(loops) == 0 {
				return c.errorf("кц без нц")
			}
			loops = loops[:len(loops)-1]
		case *compiler.Exit:
			if len(loops) == 0 {
				return c.errorf("выход можно использовать только внутри цикла")
			}
			c.exits[i] = c.tags[loops[len(loops)-1]][1]
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pass 2: code generation
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatement(i int, stmt compiler.Stmt) error {
	switch s := stmt.(type) {
	case *compiler.VarDecl:
		return c.compileDecl(s)

	case *compiler.Assign:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpStore, Mode: StoreAssign, Names: []string{s.Name}, Init: true})

	case *compiler.SetItem:
		for _, idx := range s.Indexes {
			if err := c.compileExpr(idx); err != nil {
				return err
			}
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpSetItem, Name: s.Name, Arg: len(s.Indexes)})

	case *compiler.Output:
		for _, e := range s.Exprs {
			if err := c.compileExpr(e); err != nil {
				return err
			}
		}
		c.emit(Instruction{Op: OpOutput, Arg: len(s.Exprs)})

	case *compiler.Input:
		targets := make([]InputTarget, len(s.Targets))
		for j, t := range s.Targets {
			for _, idx := range t.Indexes {
				if err := c.compileExpr(idx); err != nil {
					return err
				}
			}
			targets[j] = InputTarget{Name: t.Name, Dims: len(t.Indexes)}
		}
		c.emit(Instruction{Op: OpInput, Targets: targets})

	case *compiler.CallStmt:
		return c.compileCall(s.Call, false)

	case *compiler.Use:
		c.emit(Instruction{Op: OpUseActor, Name: s.Actor})

	case *compiler.AlgStart:
		if c.chunk != c.program.Main {
			return c.errorf("алг внутри алгоритма")
		}
		alg := &Algorithm{
			Name:       s.Name,
			Line:       s.LineVal,
			Params:     s.Params,
			ReturnType: s.ReturnType,
			Chunk:      NewChunk(),
		}
		c.program.Algorithms[s.Name] = alg
		c.program.Order = append(c.program.Order, s.Name)
		if s.IsMain {
			c.program.Entry = s.Name
		}
		c.chunk = alg.Chunk

	case *compiler.AlgEnd:
		c.emit(Instruction{Op: OpReturn})
		c.chunk = c.program.Main

	case *compiler.IfStart:
		if err := c.compileExpr(s.Cond); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpJumpIfFalse, Arg: c.tags[i][0]})
		c.ifs = append(c.ifs, i)

	case *compiler.ElseStart:
		t := c.tags[c.ifs[len(c.ifs)-1]]
		c.emit(Instruction{Op: OpJump, Arg: t[1]})
		c.chunk.MarkTag(t[0])

	case *compiler.IfEnd:
		t := c.tags[c.ifs[len(c.ifs)-1]]
		c.ifs = c.ifs[:len(c.ifs)-1]
		c.chunk.MarkTag(t[len(t)-1])

	case *compiler.LoopCountStart, *compiler.LoopWhileStart,
		*compiler.LoopForStart, *compiler.LoopUntilStart:
		c.loops = append(c.loops, stmt)
		c.loopI = append(c.loopI, i)
		return c.compileLoopStart(i, stmt)

	case *compiler.LoopCountEnd, *compiler.LoopWhileEnd,
		*compiler.LoopForEnd, *compiler.LoopUntilEnd:
		n := len(c.loops) - 1
		start, si := c.loops[n], c.loopI[n]
		c.loops, c.loopI = c.loops[:n], c.loopI[:n]
		return c.compileLoopEnd(si, start, stmt)

	case *compiler.Assert:
		if err := c.compileExpr(s.Cond); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpAssert})

	case *compiler.Stop:
		c.emit(Instruction{Op: OpStop})

	case *compiler.Exit:
		c.emit(Instruction{Op: OpJump, Arg: c.exits[i]})

	default:
		return c.errorf("неизвестный оператор %T", stmt)
	}
	return nil
}

func (c *Compiler) compileDecl(s *compiler.VarDecl) error {
	for _, tab := range s.Tables {
		for _, b := range tab.Bounds {
			if err := c.compileExpr(b.Lo); err != nil {
				return err
			}
			if err := c.compileExpr(b.Hi); err != nil {
				return err
			}
		}
		c.emit(Instruction{Op: OpMakeTable, Type: s.Type, Arg: len(tab.Bounds)})
		c.emit(Instruction{Op: OpStore, Mode: StoreDeclare, Names: []string{tab.Name}, Type: s.Type, Init: true})
	}
	if len(s.Names) == 0 {
		return nil
	}
	init := s.Init != nil
	if init {
		if err := c.compileExpr(s.Init); err != nil {
			return err
		}
	}
	c.emit(Instruction{Op: OpStore, Mode: StoreDeclare, Names: s.Names, Type: s.Type, Init: init})
	return nil
}

// Hidden loop variables. The "#" prefix keeps them out of reach of programs.
func counterVar(i int) string { return fmt.Sprintf("#счётчик%d", i) }
func toVar(i int) string      { return fmt.Sprintf("#до%d", i) }
func stepVar(i int) string    { return fmt.Sprintf("#шаг%d", i) }

var intType = value.Scalar(value.KindInt)

func (c *Compiler) compileLoopStart(i int, stmt compiler.Stmt) error {
	body, exit := c.tags[i][0], c.tags[i][1]
	switch s := stmt.(type) {
	case *compiler.LoopCountStart:
		if err := c.compileExpr(s.Count); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpStore, Mode: StoreDeclare, Names: []string{counterVar(i)}, Type: intType, Init: true})
		c.emitCountTest(counterVar(i), exit)

	case *compiler.LoopWhileStart:
		if err := c.compileExpr(s.Cond); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpJumpIfFalse, Arg: exit})

	case *compiler.LoopForStart:
		if err := c.compileExpr(s.From); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpStore, Mode: StoreDeclareOrAssign, Names: []string{s.Var}, Type: intType, Init: true})
		if err := c.compileExpr(s.To); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpStore, Mode: StoreDeclare, Names: []string{toVar(i)}, Type: intType, Init: true})
		if err := c.compileExpr(s.Step); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpStore, Mode: StoreDeclare, Names: []string{stepVar(i)}, Type: intType, Init: true})
		c.emitForTest(s.Var, i, exit)
	}
	c.chunk.MarkTag(body)
	return nil
}

func (c *Compiler) compileLoopEnd(i int, start, end compiler.Stmt) error {
	body, exit := c.tags[i][0], c.tags[i][1]
	switch s := start.(type) {
	case *compiler.LoopCountStart:
		c.emitCountTest(counterVar(i), exit)
		c.emit(Instruction{Op: OpJump, Arg: body})

	case *compiler.LoopWhileStart:
		if err := c.compileExpr(s.Cond); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpJumpIfFalse, Arg: exit})
		c.emit(Instruction{Op: OpJump, Arg: body})

	case *compiler.LoopForStart:
		c.emit(Instruction{Op: OpLoadName, Name: s.Var})
		c.emit(Instruction{Op: OpLoadName, Name: stepVar(i)})
		c.emit(Instruction{Op: OpBinary, Name: "+"})
		c.emit(Instruction{Op: OpStore, Mode: StoreAssign, Names: []string{s.Var}, Init: true})
		c.emitForTest(s.Var, i, exit)
		c.emit(Instruction{Op: OpJump, Arg: body})

	case *compiler.LoopUntilStart:
		cond := end.(*compiler.LoopUntilEnd).Cond
		if err := c.compileExpr(cond); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpJumpIfFalse, Arg: body})
	}
	c.chunk.MarkTag(exit)
	return nil
}

// emitCountTest decrements the hidden counter and leaves the loop once it
// drops below zero.
func (c *Compiler) emitCountTest(counter string, exit int) {
	c.emit(Instruction{Op: OpLoadName, Name: counter})
	c.emit(Instruction{Op: OpLoadConst, Value: value.Int(1)})
	c.emit(Instruction{Op: OpBinary, Name: "-"})
	c.emit(Instruction{Op: OpStore, Mode: StoreAssign, Names: []string{counter}, Init: true})
	c.emit(Instruction{Op: OpLoadName, Name: counter})
	c.emit(Instruction{Op: OpLoadConst, Value: value.Int(-1)})
	c.emit(Instruction{Op: OpBinary, Name: ">"})
	c.emit(Instruction{Op: OpJumpIfFalse, Arg: exit})
}

// emitForTest leaves the loop once the variable passes the bound:
//
//	(шаг >= 0 и v <= до) или (шаг < 0 и v >= до)
func (c *Compiler) emitForTest(v string, i, exit int) {
	for _, half := range [][2]string{{">=", "<="}, {"<", ">="}} {
		c.emit(Instruction{Op: OpLoadName, Name: stepVar(i)})
		c.emit(Instruction{Op: OpLoadConst, Value: value.Int(0)})
		c.emit(Instruction{Op: OpBinary, Name: half[0]})
		c.emit(Instruction{Op: OpLoadName, Name: v})
		c.emit(Instruction{Op: OpLoadName, Name: toVar(i)})
		c.emit(Instruction{Op: OpBinary, Name: half[1]})
		c.emit(Instruction{Op: OpBinary, Name: "и"})
	}
	c.emit(Instruction{Op: OpBinary, Name: "или"})
	c.emit(Instruction{Op: OpJumpIfFalse, Arg: exit})
}

// ---------------------------------------------------------------------------
// Expressions and calls
// ---------------------------------------------------------------------------

func (c *Compiler) compileExpr(e compiler.Expr) error {
	for _, it := range e {
		switch it := it.(type) {
		case *compiler.Const:
			c.emit(Instruction{Op: OpLoadConst, Value: it.Value})
		case *compiler.NameRef:
			c.emit(Instruction{Op: OpLoadName, Name: it.Name})
		case *compiler.Operator:
			if it.Unary {
				c.emit(Instruction{Op: OpUnary, Name: it.Op})
			} else {
				c.emit(Instruction{Op: OpBinary, Name: it.Op})
			}
		case *compiler.Call:
			if err := c.compileCall(it, true); err != nil {
				return err
			}
		case *compiler.GetItem:
			for _, idx := range it.Indexes {
				if err := c.compileExpr(idx); err != nil {
					return err
				}
			}
			c.emit(Instruction{Op: OpGetItem, Name: it.Name, Arg: len(it.Indexes)})
		case *compiler.Slice:
			if err := c.compileExpr(it.From); err != nil {
				return err
			}
			if err := c.compileExpr(it.To); err != nil {
				return err
			}
			c.emit(Instruction{Op: OpMakeSlice, Name: it.Name})
		default:
			return c.errorf("неизвестный элемент выражения %T", it)
		}
	}
	return nil
}

// compileCall emits a call. Arguments bound to рез/аргрез parameters of a
// known algorithm must be plain variable names; рез arguments push nothing.
func (c *Compiler) compileCall(call *compiler.Call, result bool) error {
	params, known := c.sigs[call.Name]
	known = known && len(params) == len(call.Args)

	var refs []string
	for i, arg := range call.Args {
		if known && params[i].Mode != compiler.ModeIn {
			name, ok := bareName(arg)
			if !ok {
				return c.errorf("аргумент %d алгоритма \"%s\" должен быть именем величины", i+1, call.Name)
			}
			if refs == nil {
				refs = make([]string, len(call.Args))
			}
			refs[i] = name
			if params[i].Mode == compiler.ModeOut {
				continue
			}
		}
		if err := c.compileExpr(arg); err != nil {
			return err
		}
	}
	c.emit(Instruction{Op: OpCall, Name: call.Name, Arg: len(call.Args), Refs: refs, Result: result})
	return nil
}

func bareName(e compiler.Expr) (string, bool) {
	if len(e) != 1 {
		return "", false
	}
	ref, ok := e[0].(*compiler.NameRef)
	if !ok {
		return "", false
	}
	return ref.Name, true
}
