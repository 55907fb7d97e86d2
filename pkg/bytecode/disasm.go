package bytecode

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/kumir/pkg/value"
)

// Disassemble returns a listing of the whole program: the main chunk first,
// then every algorithm in source order.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	sb.WriteString(p.Main.DisassembleWithName("main"))
	for _, name := range p.Order {
		alg := p.Algorithms[name]
		sb.WriteString("\n")
		sb.WriteString(alg.Chunk.DisassembleWithName(alg.header()))
	}
	return sb.String()
}

// header renders the algorithm signature for listings.
func (a *Algorithm) header() string {
	var sb strings.Builder
	sb.WriteString("алг ")
	if a.IsFunction() {
		sb.WriteString(a.ReturnType.String() + " ")
	}
	sb.WriteString(a.Name)
	if len(a.Params) > 0 {
		parts := make([]string, len(a.Params))
		for i, p := range a.Params {
			parts[i] = fmt.Sprintf("%s %s %s", p.Mode, p.Type, p.Name)
		}
		sb.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	return sb.String()
}

// Disassemble returns a human-readable listing of the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header. Each row holds
// the offset, the source line and the instruction; jump tags are shown as
// labels before the instruction they resolve to.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}

	labels := make(map[int][]int)
	for tag, off := range c.Tags {
		labels[off] = append(labels[off], tag)
	}

	for off, inst := range c.Code {
		c.writeLabels(&sb, labels[off])
		sb.WriteString(fmt.Sprintf("%04d %4d  %s\n", off, inst.Line, disassembleInstruction(&inst)))
	}
	c.writeLabels(&sb, labels[len(c.Code)])
	return sb.String()
}

func (c *Chunk) writeLabels(sb *strings.Builder, tags []int) {
	slices.Sort(tags)
	for _, t := range tags {
		sb.WriteString(fmt.Sprintf("@%d:\n", t))
	}
}

func constString(v value.Value) string {
	if v.Kind() == value.KindString {
		return fmt.Sprintf("%q", v.S)
	}
	if v.Kind() == value.KindChar {
		return fmt.Sprintf("%q", v.C)
	}
	return v.String()
}

// disassembleInstruction formats a single instruction.
func disassembleInstruction(inst *Instruction) string {
	name := inst.Op.String()
	switch inst.Op {
	case OpLoadConst:
		return fmt.Sprintf("%s %s (%s)", name, constString(inst.Value), inst.Value.Type)

	case OpLoadName, OpMakeSlice, OpUseActor:
		return fmt.Sprintf("%s %s", name, inst.Name)

	case OpStore:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%s %s", name, inst.Mode))
		if inst.Mode != StoreAssign {
			sb.WriteString(" " + inst.Type.String())
		}
		sb.WriteString(" " + strings.Join(inst.Names, ", "))
		if inst.Init {
			sb.WriteString(" <-")
		}
		return sb.String()

	case OpMakeTable:
		return fmt.Sprintf("%s %s %d", name, inst.Type.Kind, inst.Arg)

	case OpBinary, OpUnary:
		return fmt.Sprintf("%s %s", name, inst.Name)

	case OpGetItem, OpSetItem:
		return fmt.Sprintf("%s %s %d", name, inst.Name, inst.Arg)

	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("%s @%d", name, inst.Arg)

	case OpCall:
		s := fmt.Sprintf("%s %s %d", name, inst.Name, inst.Arg)
		if inst.Refs != nil {
			refs := make([]string, len(inst.Refs))
			for i, r := range inst.Refs {
				if r == "" {
					r = "-"
				}
				refs[i] = r
			}
			s += " ref(" + strings.Join(refs, ", ") + ")"
		}
		if inst.Result {
			s += " result"
		}
		return s

	case OpOutput:
		return fmt.Sprintf("%s %d", name, inst.Arg)

	case OpInput:
		parts := make([]string, len(inst.Targets))
		for i, t := range inst.Targets {
			parts[i] = t.Name
			if t.Dims > 0 {
				parts[i] += fmt.Sprintf("[%d]", t.Dims)
			}
		}
		return fmt.Sprintf("%s %s", name, strings.Join(parts, ", "))
	}
	return name
}
