package bytecode

import (
	"errors"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"

	"github.com/chazu/kumir/compiler"
)

func mustCompile(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := CompileSource(src)
	if err != nil {
		t.Fatalf("compile failed: %v\nsource:\n%s", err, src)
	}
	return prog
}

func TestCompileProgramShape(t *testing.T) {
	prog := mustCompile(t, heredoc.Doc(`
		цел г := 1
		алг главный
		нач
		  вспомогательный
		кон
		алг вспомогательный
		нач
		кон
	`))

	if prog.Entry != "главный" {
		t.Errorf("Entry = %q", prog.Entry)
	}
	if strings.Join(prog.Order, ",") != "главный,вспомогательный" {
		t.Errorf("Order = %v", prog.Order)
	}
	last := prog.Main.Code[len(prog.Main.Code)-1]
	if last.Op != OpCall || last.Name != "главный" || last.Arg != 0 || last.Line != 2 {
		t.Errorf("main chunk ends with %+v", last)
	}
	for _, name := range prog.Order {
		alg, ok := prog.Algorithm(name)
		if !ok {
			t.Fatalf("algorithm %q missing", name)
		}
		code := alg.Chunk.Code
		if code[len(code)-1].Op != OpReturn {
			t.Errorf("%s does not end with RETURN", name)
		}
	}
}

func TestCompileWithoutAlgorithms(t *testing.T) {
	prog := mustCompile(t, "вывод 1")
	if prog.Entry != "" || len(prog.Algorithms) != 0 {
		t.Errorf("unexpected algorithms: %v", prog.Order)
	}
	if len(prog.Main.Code) != 2 || prog.Main.Code[1].Op != OpOutput {
		t.Errorf("main chunk = %+v", prog.Main.Code)
	}
}

func TestCompileTagsResolve(t *testing.T) {
	prog := mustCompile(t, heredoc.Doc(`
		алг
		нач
		  цел к := 0
		  нц 3 раз
		    если к > 1
		      то выход
		      иначе к := к + 1
		    все
		  кц
		  нц для м от 1 до 3
		    нц пока к < 10
		      к := к + 1
		    кц
		  кц
		  нц
		  кц при да
		  выбор
		    при к = 1: вывод 1
		    при к = 2: вывод 2
		  все
		кон
	`))
	alg := prog.Algorithms[prog.Entry]
	jumps := 0
	for off, inst := range alg.Chunk.Code {
		if !inst.Op.IsJump() {
			continue
		}
		jumps++
		target, err := alg.Chunk.Resolve(inst.Arg)
		if err != nil {
			t.Errorf("offset %d: %v", off, err)
			continue
		}
		if target < 0 || target > len(alg.Chunk.Code) {
			t.Errorf("offset %d: target %d out of range", off, target)
		}
	}
	if jumps == 0 {
		t.Fatal("no jumps compiled")
	}
	if len(prog.Main.Tags) != 0 {
		t.Errorf("main chunk has tags %v", prog.Main.Tags)
	}
}

func TestCompileCallReferences(t *testing.T) {
	prog := mustCompile(t, heredoc.Doc(`
		алг
		нач
		  цел а, б
		  ф(1, а, б)
		кон
		алг ф(цел х, рез цел у, аргрез цел з)
		нач
		кон
	`))
	var call *Instruction
	for i, inst := range prog.Algorithms[prog.Entry].Chunk.Code {
		if inst.Op == OpCall {
			call = &prog.Algorithms[prog.Entry].Chunk.Code[i]
		}
	}
	if call == nil {
		t.Fatal("no CALL emitted")
	}
	if call.Arg != 3 || call.Result {
		t.Errorf("call = %+v", call)
	}
	if strings.Join(call.Refs, ",") != ",а,б" {
		t.Errorf("Refs = %q", call.Refs)
	}

	// Two values are pushed: 1 for х and the current value of б for з.
	code := prog.Algorithms[prog.Entry].Chunk.Code
	var pushed []string
	for _, inst := range code {
		switch inst.Op {
		case OpLoadConst:
			pushed = append(pushed, inst.Value.String())
		case OpLoadName:
			pushed = append(pushed, inst.Name)
		}
	}
	if strings.Join(pushed, ",") != "1,б" {
		t.Errorf("pushed operands = %v", pushed)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		desc string
		src  string
	}{
		{"expression for рез", "алг\nнач\nф(1 + 2)\nкон\nалг ф(рез цел х)\nнач\nкон"},
		{"constant for аргрез", "алг\nнач\nф(1)\nкон\nалг ф(аргрез цел х)\nнач\nкон"},
		{"duplicate algorithm", "алг\nнач\nкон\nалг ф\nнач\nкон\nалг ф\nнач\nкон"},
	}
	for _, tt := range tests {
		_, err := CompileSource(tt.src)
		var se *compiler.SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("%s: error = %v, want SyntaxError", tt.desc, err)
			continue
		}
		if se.Line < 1 {
			t.Errorf("%s: line = %d", tt.desc, se.Line)
		}
	}
}

func TestCompileParseErrorPassesThrough(t *testing.T) {
	_, err := CompileSource("вывод")
	var se *compiler.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want SyntaxError", err)
	}
}
