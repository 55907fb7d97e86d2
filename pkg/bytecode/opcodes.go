package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Values and variables (0x00-0x0F)
	// ========================================================================

	OpLoadConst Opcode = 0x00 // Push Instruction.Value
	OpLoadName  Opcode = 0x01 // Push variable Name, or call parameterless algorithm Name
	OpStore     Opcode = 0x02 // Pop and store into Names (declare, assign or both)
	OpMakeTable Opcode = 0x03 // Pop Arg bound pairs, push a new table of Type.Kind

	// ========================================================================
	// Operators (0x10-0x1F)
	// ========================================================================

	OpBinary Opcode = 0x10 // Pop b, a; push a Name b
	OpUnary  Opcode = 0x11 // Pop a; push Name a

	// ========================================================================
	// Tables and strings (0x20-0x2F)
	// ========================================================================

	OpGetItem   Opcode = 0x20 // Pop Arg indexes, push Name[indexes]
	OpSetItem   Opcode = 0x21 // Pop value and Arg indexes, Name[indexes] := value
	OpMakeSlice Opcode = 0x22 // Pop to, from; push Name[from:to]

	// ========================================================================
	// Control flow (0x30-0x3F)
	// ========================================================================

	OpJump        Opcode = 0x30 // Jump to tag Arg
	OpJumpIfFalse Opcode = 0x31 // Pop condition, jump to tag Arg when false
	OpJumpIfTrue  Opcode = 0x32 // Pop condition, jump to tag Arg when true

	// ========================================================================
	// Calls (0x40-0x4F)
	// ========================================================================

	OpCall   Opcode = 0x40 // Call Name with Arg arguments; Refs name by-reference targets
	OpReturn Opcode = 0x41 // Leave the current algorithm

	// ========================================================================
	// Input/output and environment (0x50-0x5F)
	// ========================================================================

	OpOutput   Opcode = 0x50 // Pop Arg values and print them
	OpInput    Opcode = 0x51 // Read into Targets; indexes are popped first
	OpAssert   Opcode = 0x52 // Pop condition, fail the run when false
	OpStop     Opcode = 0x53 // Halt the program
	OpUseActor Opcode = 0x54 // Load actor Name
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Human-readable name
	StackPop  int    // How many values popped from stack (-1 = variable)
	StackPush int    // How many values pushed to stack (-1 = variable)
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpLoadConst: {"LOAD_CONST", 0, 1},
	OpLoadName:  {"LOAD_NAME", 0, 1},
	OpStore:     {"STORE", -1, 0},
	OpMakeTable: {"MAKE_TABLE", -1, 1},

	OpBinary: {"BINARY_OP", 2, 1},
	OpUnary:  {"UNARY_OP", 1, 1},

	OpGetItem:   {"GET_ITEM", -1, 1},
	OpSetItem:   {"SET_ITEM", -1, 0},
	OpMakeSlice: {"MAKE_SLICE", 2, 1},

	OpJump:        {"JUMP_TAG", 0, 0},
	OpJumpIfFalse: {"JUMP_TAG_IF_FALSE", 1, 0},
	OpJumpIfTrue:  {"JUMP_TAG_IF_TRUE", 1, 0},

	OpCall:   {"CALL", -1, -1},
	OpReturn: {"RETURN", 0, 0},

	OpOutput:   {"OUTPUT", -1, 0},
	OpInput:    {"INPUT", -1, 0},
	OpAssert:   {"ASSERT", 1, 0},
	OpStop:     {"STOP", 0, 0},
	OpUseActor: {"USE_ACTOR", 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpIfTrue
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
