package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
	if OpcodeCount() != 19 {
		t.Errorf("OpcodeCount() = %d, want 19", OpcodeCount())
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpLoadConst, "LOAD_CONST"},
		{OpStore, "STORE"},
		{OpBinary, "BINARY_OP"},
		{OpJumpIfFalse, "JUMP_TAG_IF_FALSE"},
		{OpCall, "CALL"},
		{OpUseActor, "USE_ACTOR"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}

	if got := Opcode(0xEE).String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("unknown opcode = %q", got)
	}
}

func TestOpcodeIsJump(t *testing.T) {
	for _, op := range AllOpcodes() {
		want := op == OpJump || op == OpJumpIfFalse || op == OpJumpIfTrue
		if op.IsJump() != want {
			t.Errorf("%s.IsJump() = %v", op, op.IsJump())
		}
	}
}

func TestChunkTags(t *testing.T) {
	c := NewChunk()
	c.Emit(Instruction{Op: OpLoadConst})
	c.MarkTag(7)
	off := c.Emit(Instruction{Op: OpStop})
	if off != 1 {
		t.Errorf("Emit offset = %d", off)
	}
	if got, err := c.Resolve(7); err != nil || got != 1 {
		t.Errorf("Resolve(7) = %d, %v", got, err)
	}
	if _, err := c.Resolve(8); err == nil {
		t.Error("Resolve of an unbound tag succeeded")
	}
}
