package bytecode

import (
	"fmt"

	"github.com/chazu/kumir/compiler"
	"github.com/chazu/kumir/pkg/value"
)

// ReturnVar is the variable holding a function's result.
const ReturnVar = "знач"

// StoreMode selects how OpStore treats its target names.
type StoreMode uint8

const (
	// StoreAssign assigns to an existing variable.
	StoreAssign StoreMode = iota
	// StoreDeclare declares the names in the active namespace, optionally
	// initializing a single one from the stack.
	StoreDeclare
	// StoreDeclareOrAssign assigns when the name is bound, declares otherwise.
	StoreDeclareOrAssign
)

func (m StoreMode) String() string {
	switch m {
	case StoreDeclare:
		return "declare"
	case StoreDeclareOrAssign:
		return "declare-or-assign"
	}
	return "assign"
}

// InputTarget is one destination of OpInput. Dims is zero for a plain
// variable and the number of popped indexes for an element.
type InputTarget struct {
	Name string
	Dims int
}

// Instruction is one bytecode instruction. Only the operand fields used by
// Op are meaningful.
type Instruction struct {
	Line int
	Op   Opcode

	Value   value.Value   // OpLoadConst
	Name    string        // variable, algorithm, operator or actor name
	Names   []string      // OpStore
	Type    value.Type    // OpStore (declare), OpMakeTable
	Mode    StoreMode     // OpStore
	Init    bool          // OpStore: a value to store is on the stack
	Arg     int           // tag, argument count or dimension count
	Refs    []string      // OpCall: by-reference targets, "" for by-value
	Result  bool          // OpCall: push the function result
	Targets []InputTarget // OpInput
}

// Chunk is the code of one algorithm, or of the main program, together
// with the tag table resolving its jump targets.
type Chunk struct {
	Code []Instruction
	Tags map[int]int // tag -> instruction offset
}

// NewChunk creates an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code: make([]Instruction, 0, 64),
		Tags: make(map[int]int),
	}
}

// Emit appends an instruction and returns its offset.
func (c *Chunk) Emit(inst Instruction) int {
	c.Code = append(c.Code, inst)
	return len(c.Code) - 1
}

// MarkTag binds tag to the offset of the next instruction emitted.
func (c *Chunk) MarkTag(tag int) {
	c.Tags[tag] = len(c.Code)
}

// Resolve returns the offset bound to tag.
func (c *Chunk) Resolve(tag int) (int, error) {
	off, ok := c.Tags[tag]
	if !ok {
		return 0, fmt.Errorf("unresolved tag %d", tag)
	}
	return off, nil
}

// Algorithm is a compiled algorithm.
type Algorithm struct {
	Name       string
	Line       int
	Params     []compiler.Param
	ReturnType value.Type // invalid for procedures
	Chunk      *Chunk
}

// IsFunction reports whether the algorithm returns a value.
func (a *Algorithm) IsFunction() bool {
	return a.ReturnType.IsValid()
}

// Program is a compiled program: the main-program chunk, which runs first
// and ends by calling the main algorithm, plus every algorithm by name.
type Program struct {
	Main       *Chunk
	Algorithms map[string]*Algorithm
	Order      []string // algorithm names in source order
	Entry      string   // name of the main algorithm, if any
}

// Algorithm returns the algorithm with the given name.
func (p *Program) Algorithm(name string) (*Algorithm, bool) {
	a, ok := p.Algorithms[name]
	return a, ok
}
