package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/kumir/pkg/value"
)

// ---------------------------------------------------------------------------
// AST: flat statement list for KuMir programs
// ---------------------------------------------------------------------------
//
// A parsed program is a flat slice of statements. Block structure is
// expressed with paired start/end statements (IfStart ... IfEnd,
// LoopWhileStart ... LoopWhileEnd, AlgStart ... AlgEnd) rather than nesting.

// Stmt is the interface implemented by all statements.
type Stmt interface {
	Line() int
	stmt() // marker method
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Expr is an expression in reverse-Polish order.
type Expr []ExprItem

// ExprItem is one element of a reverse-Polish expression.
type ExprItem interface {
	item() // marker method
}

// Const is a literal value.
type Const struct {
	Value value.Value
}

// NameRef reads a variable, or calls a parameterless algorithm.
type NameRef struct {
	Name string
}

// Operator applies an operator to the operands before it.
type Operator struct {
	Op    string
	Unary bool
}

// Call invokes an algorithm or actor function and yields its result.
type Call struct {
	Name string
	Args []Expr
}

// GetItem reads one element of a table, or one character of a string.
type GetItem struct {
	Name    string
	Indexes []Expr
}

// Slice reads the substring name[From:To].
type Slice struct {
	Name     string
	From, To Expr
}

func (*Const) item()    {}
func (*NameRef) item()  {}
func (*Operator) item() {}
func (*Call) item()     {}
func (*GetItem) item()  {}
func (*Slice) item()    {}

// String renders the expression in reverse-Polish notation.
func (e Expr) String() string {
	parts := make([]string, 0, len(e))
	for _, it := range e {
		switch it := it.(type) {
		case *Const:
			if it.Value.Type.Kind == value.KindString {
				parts = append(parts, fmt.Sprintf("%q", it.Value.S))
			} else {
				parts = append(parts, it.Value.String())
			}
		case *NameRef:
			parts = append(parts, it.Name)
		case *Operator:
			if it.Unary {
				parts = append(parts, "u"+it.Op)
			} else {
				parts = append(parts, it.Op)
			}
		case *Call:
			args := make([]string, len(it.Args))
			for i, a := range it.Args {
				args[i] = a.String()
			}
			parts = append(parts, fmt.Sprintf("%s(%s)", it.Name, strings.Join(args, "; ")))
		case *GetItem:
			idx := make([]string, len(it.Indexes))
			for i, a := range it.Indexes {
				idx[i] = a.String()
			}
			parts = append(parts, fmt.Sprintf("%s[%s]", it.Name, strings.Join(idx, "; ")))
		case *Slice:
			parts = append(parts, fmt.Sprintf("%s[%s:%s]", it.Name, it.From, it.To))
		}
	}
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Declarations and assignments
// ---------------------------------------------------------------------------

// Bound is the source form of one table dimension.
type Bound struct {
	Lo, Hi Expr
}

// TableDecl is one table named in a declaration.
type TableDecl struct {
	Name   string
	Bounds []Bound
}

// VarDecl declares variables. Scalars are listed in Names; tables in Tables.
// Init is set only when exactly one scalar is declared.
type VarDecl struct {
	LineVal int
	Type    value.Type
	Names   []string
	Tables  []TableDecl
	Init    Expr
}

// Assign stores a value into an existing variable.
type Assign struct {
	LineVal int
	Name    string
	Value   Expr
}

// SetItem stores a value into a table element or string character.
type SetItem struct {
	LineVal int
	Name    string
	Indexes []Expr
	Value   Expr
}

// ---------------------------------------------------------------------------
// Input/output, calls, actors
// ---------------------------------------------------------------------------

// Output prints its expressions in order.
type Output struct {
	LineVal int
	Exprs   []Expr
}

// InputTarget is a variable or a table element receiving input.
type InputTarget struct {
	Name    string
	Indexes []Expr // nil for a plain variable
}

// Input reads values into its targets.
type Input struct {
	LineVal int
	Targets []InputTarget
}

// CallStmt calls an algorithm as a statement.
type CallStmt struct {
	LineVal int
	Call    *Call
}

// Use loads an actor by name.
type Use struct {
	LineVal int
	Actor   string
}

// ---------------------------------------------------------------------------
// Algorithms
// ---------------------------------------------------------------------------

// ParamMode is the passing mode of a parameter.
type ParamMode int

const (
	ModeIn    ParamMode = iota // арг
	ModeOut                    // рез
	ModeInOut                  // аргрез
)

func (m ParamMode) String() string {
	switch m {
	case ModeOut:
		return "рез"
	case ModeInOut:
		return "аргрез"
	}
	return "арг"
}

// Param is a formal parameter.
type Param struct {
	Mode ParamMode
	Type value.Type
	Name string
}

// AlgStart opens an algorithm body. ReturnType is invalid for procedures.
type AlgStart struct {
	LineVal    int
	Name       string
	IsMain     bool
	ReturnType value.Type
	Params     []Param
}

// AlgEnd closes the current algorithm body.
type AlgEnd struct {
	LineVal int
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

type IfStart struct {
	LineVal int
	Cond    Expr
}

type ElseStart struct {
	LineVal int
}

type IfEnd struct {
	LineVal int
}

// LoopCountStart opens "нц N раз".
type LoopCountStart struct {
	LineVal int
	Count   Expr
}

type LoopCountEnd struct {
	LineVal int
}

// LoopWhileStart opens "нц пока cond".
type LoopWhileStart struct {
	LineVal int
	Cond    Expr
}

type LoopWhileEnd struct {
	LineVal int
}

// LoopForStart opens "нц для Var от From до To шаг Step".
type LoopForStart struct {
	LineVal  int
	Var      string
	From, To Expr
	Step     Expr
}

type LoopForEnd struct {
	LineVal int
}

// LoopUntilStart opens a loop whose condition is tested at "кц при".
type LoopUntilStart struct {
	LineVal int
}

// LoopUntilEnd closes a post-condition loop. The loop finishes once Cond
// holds.
type LoopUntilEnd struct {
	LineVal int
	Cond    Expr
}

// Assert fails the run when Cond is false.
type Assert struct {
	LineVal int
	Cond    Expr
}

// Stop halts the whole program.
type Stop struct {
	LineVal int
}

// Exit leaves the innermost loop.
type Exit struct {
	LineVal int
}

func (s *VarDecl) Line() int        { return s.LineVal }
func (s *Assign) Line() int         { return s.LineVal }
func (s *SetItem) Line() int        { return s.LineVal }
func (s *Output) Line() int         { return s.LineVal }
func (s *Input) Line() int          { return s.LineVal }
func (s *CallStmt) Line() int       { return s.LineVal }
func (s *Use) Line() int            { return s.LineVal }
func (s *AlgStart) Line() int       { return s.LineVal }
func (s *AlgEnd) Line() int         { return s.LineVal }
func (s *IfStart) Line() int        { return s.LineVal }
func (s *ElseStart) Line() int      { return s.LineVal }
func (s *IfEnd) Line() int          { return s.LineVal }
func (s *LoopCountStart) Line() int { return s.LineVal }
func (s *LoopCountEnd) Line() int   { return s.LineVal }
func (s *LoopWhileStart) Line() int { return s.LineVal }
func (s *LoopWhileEnd) Line() int   { return s.LineVal }
func (s *LoopForStart) Line() int   { return s.LineVal }
func (s *LoopForEnd) Line() int     { return s.LineVal }
func (s *LoopUntilStart) Line() int { return s.LineVal }
func (s *LoopUntilEnd) Line() int   { return s.LineVal }
func (s *Assert) Line() int         { return s.LineVal }
func (s *Stop) Line() int           { return s.LineVal }
func (s *Exit) Line() int           { return s.LineVal }

func (*VarDecl) stmt()        {}
func (*Assign) stmt()         {}
func (*SetItem) stmt()        {}
func (*Output) stmt()         {}
func (*Input) stmt()          {}
func (*CallStmt) stmt()       {}
func (*Use) stmt()            {}
func (*AlgStart) stmt()       {}
func (*AlgEnd) stmt()         {}
func (*IfStart) stmt()        {}
func (*ElseStart) stmt()      {}
func (*IfEnd) stmt()          {}
func (*LoopCountStart) stmt() {}
func (*LoopCountEnd) stmt()   {}
func (*LoopWhileStart) stmt() {}
func (*LoopWhileEnd) stmt()   {}
func (*LoopForStart) stmt()   {}
func (*LoopForEnd) stmt()     {}
func (*LoopUntilStart) stmt() {}
func (*LoopUntilEnd) stmt()   {}
func (*Assert) stmt()         {}
func (*Stop) stmt()           {}
func (*Exit) stmt()           {}
