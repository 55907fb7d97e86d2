package bytecode

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/chazu/kumir/pkg/actor"
	"github.com/chazu/kumir/pkg/value"
)

func newTestVM(t *testing.T, src, input string) (*VM, *strings.Builder) {
	t.Helper()
	prog, err := CompileSource(src)
	if err != nil {
		t.Fatalf("compile failed: %v\nsource:\n%s", err, src)
	}
	vm := NewVM(prog)
	out := &strings.Builder{}
	vm.SetOutput(out)
	vm.SetInput(strings.NewReader(input))
	vm.SetActorContext(&actor.Context{
		WorkDir: t.TempDir(),
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Now:     time.Now,
	})
	return vm, out
}

// runProgram compiles and runs src, returning the console output.
func runProgram(t *testing.T, src, input string) (string, error) {
	t.Helper()
	vm, out := newTestVM(t, src, input)
	err := vm.Execute(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, src, input string) string {
	t.Helper()
	out, err := runProgram(t, src, input)
	if err != nil {
		t.Fatalf("run failed: %v\nsource:\n%s", err, src)
	}
	return out
}

func runtimeError(t *testing.T, src, input string) *RuntimeError {
	t.Helper()
	_, err := runProgram(t, src, input)
	re, ok := IsRuntimeError(err)
	if !ok {
		t.Fatalf("want RuntimeError, got %v\nsource:\n%s", err, src)
	}
	return re
}

func TestVMExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"вывод (8 * (4 - 3) + 2) ** 2", "100"},
		{"цел а := 5 + 6\nвывод а", "11"},
		{"вещ а := 4 / 2\nвывод а", "2.0"},
		{"вывод 1 + 0.5", "1.5"},
		{"вывод 7 / 2", "3.5"},
		{"вывод 2 ** 10, \" \", 2 ** -1", "1024 0.5"},
		{"вывод -2 ** 2", "4"},
		{"вывод \"аб\" + 'в'", "абв"},
		{"вывод 1 < 2, \" \", \"а\" = \"а\", \" \", не да", "да да нет"},
		{"вывод 1 = 1.0 и 2 <> 3", "да"},
		{"цел а\nа := 3\nвывод а * а", "9"},
		{"вывод 1, нс, 2", "1\n2"},
	}
	for _, tt := range tests {
		if got := mustRun(t, tt.src, ""); got != tt.want {
			t.Errorf("%q: output %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestVMLoops(t *testing.T) {
	tests := []struct {
		desc string
		body string
		want string
	}{
		{"count", "цел н := 0\nнц 5+2 раз\nн := н + 1\nкц\nвывод н", "7"},
		{"count zero", "цел н := 0\nнц 0 раз\nн := н + 1\nкц\nвывод н", "0"},
		{"for with step", "нц для а от 0 до 5 шаг 2\nвывод а, \" \"\nкц", "0 2 4 "},
		{"for default step", "нц для а от 1 до 3\nвывод а\nкц", "123"},
		{"for negative step", "нц для к от 3 до 1 шаг -1\nвывод к\nкц", "321"},
		{"for empty", "нц для к от 5 до 1\nвывод к\nкц\nвывод \"-\"", "-"},
		{"for existing var", "цел к := 9\nнц для к от 1 до 2\nкц\nвывод к", "3"},
		{"while", "цел к := 0\nнц пока к < 3\nк := к + 1\nкц\nвывод к", "3"},
		{"while never", "цел к := 5\nнц пока к < 3\nк := к + 1\nкц\nвывод к", "5"},
		{"until", "цел к := 0\nнц\nк := к + 1\nкц при к >= 2\nвывод к", "2"},
		{"bare until runs once", "цел к := 0\nнц\nк := к + 1\nкц\nвывод к", "1"},
		{"exit", "цел к := 0\nнц пока да\nк := к + 1\nесли к = 3 то выход все\nкц\nвывод к", "3"},
		{"nested exit", "нц для к от 1 до 2\nнц пока да\nвыход\nкц\nвывод к\nкц", "12"},
	}
	for _, tt := range tests {
		src := "алг\nнач\n" + tt.body + "\nкон"
		if got := mustRun(t, src, ""); got != tt.want {
			t.Errorf("%s: output %q, want %q", tt.desc, got, tt.want)
		}
	}
}

func TestVMSwitchMatchesIfChain(t *testing.T) {
	src := heredoc.Doc(`
		алг
		нач
		  цел а
		  ввод а
		  выбор
		    при а = 0: вывод "ноль"
		    при а = 1: вывод "один"
		    при а = 2: вывод "два"
		    иначе вывод "много"
		  все
		  вывод "|"
		  если а = 0
		    то вывод "ноль"
		    иначе
		      если а = 1
		        то вывод "один"
		        иначе
		          если а = 2
		            то вывод "два"
		            иначе вывод "много"
		          все
		      все
		  все
		кон
	`)
	for _, in := range []string{"0", "1", "2", "7", "-3"} {
		out := mustRun(t, src, in+"\n")
		parts := strings.Split(out, "|")
		if len(parts) != 2 || parts[0] != parts[1] {
			t.Errorf("input %s: switch and if chain disagree: %q", in, out)
		}
	}
}

func TestVMStop(t *testing.T) {
	src := heredoc.Doc(`
		алг
		нач
		  вывод 1, нс
		  п
		  вывод 2
		кон
		алг п
		нач
		  стоп
		  вывод 3
		кон
	`)
	vm, out := newTestVM(t, src, "")
	if err := vm.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out.String() != "1\nСТОП." {
		t.Errorf("output %q", out.String())
	}
	if !vm.Stopped() {
		t.Error("Stopped() = false")
	}

	vm, out = newTestVM(t, "стоп", "")
	vm.SetStopMarker("[стоп]")
	vm.Execute(context.Background())
	if out.String() != "[стоп]" {
		t.Errorf("custom marker output %q", out.String())
	}
}

func TestVMTables(t *testing.T) {
	src := heredoc.Doc(`
		алг
		нач
		  цел таб т[1:3], м[0:1, 0:1]
		  нц для к от 1 до 3
		    т[к] := к * к
		  кц
		  м[0, 1] := т[2] + т[3]
		  вывод т[1], " ", т[3], " ", м[0, 1]
		кон
	`)
	if got := mustRun(t, src, ""); got != "1 9 13" {
		t.Errorf("output %q", got)
	}

	errs := []struct {
		desc string
		body string
	}{
		{"index above bound", "цел таб т[1:3]\nт[4] := 1"},
		{"index below bound", "цел таб т[1:3]\nвывод т[0]"},
		{"unset cell", "цел таб т[1:3]\nвывод т[2]"},
		{"real index", "цел таб т[1:3]\nт[1.5] := 1"},
		{"wrong element type", "цел таб т[1:3]\nт[1] := \"x\""},
		{"too many indexes", "цел таб т[1:3]\nт[1, 1] := 1"},
		{"not a table", "цел т := 1\nт[1] := 1"},
		{"longer table assigned", "цел таб т[1:3], у[1:5]\nу[5] := 1\nт := у"},
		{"shifted bounds assigned", "цел таб т[1:3], у[0:2]\nу[0] := 1\nт := у"},
		{"2-D table assigned to 1-D", "цел таб т[1:3], м[1:2, 1:2]\nм[2, 2] := 4\nт := м"},
		{"whole table output", "цел таб т[1:2]\nт[1] := 1\nт[2] := 2\nвывод т"},
	}
	for _, e := range errs {
		runtimeError(t, "алг\nнач\n"+e.body+"\nкон", "")
	}

	re := runtimeError(t, "алг\nнач\nцел таб т[5:1]\nвывод 1\nкон", "")
	if re.Line != 3 {
		t.Errorf("inverted bounds reported on line %d, want 3", re.Line)
	}

	copyBack := heredoc.Doc(`
		алг
		нач
		  цел таб т[1:3]
		  заполнить(т)
		кон
		алг заполнить(рез цел таб р)
		нач
		  цел таб н[1:5]
		  н[1] := 1
		  р := н
		кон
	`)
	runtimeError(t, copyBack, "")
}

func TestVMTablesAreValues(t *testing.T) {
	src := heredoc.Doc(`
		алг
		нач
		  цел таб а[1:2], б[1:2]
		  а[1] := 1
		  б := а
		  б[1] := 5
		  удвоить(а)
		  вывод а[1], " ", б[1], " ", первый(а)
		кон
		алг удвоить(аргрез цел таб т)
		нач
		  т[1] := т[1] * 2
		кон
		алг цел первый(цел таб т)
		нач
		  знач := т[1]
		кон
	`)
	if got := mustRun(t, src, ""); got != "2 5 2" {
		t.Errorf("output %q", got)
	}
}

func TestVMStrings(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"лит с := \"привет\"\nвывод с[1], с[2:4]", "прив"},
		{"лит с := \"привет\"\nвывод \"[\", с[3:2], \"]\"", "[]"},
		{"лит с := \"привет\"\nс[1] := 'П'\nвывод с", "Привет"},
		{"лит с := \"аб\"\nсим ч := с[2]\nвывод ч", "б"},
		{"лит с := 'я'\nвывод с + с", "яя"},
	}
	for _, tt := range tests {
		if got := mustRun(t, "алг\nнач\n"+tt.body+"\nкон", ""); got != tt.want {
			t.Errorf("%q: output %q, want %q", tt.body, got, tt.want)
		}
	}

	runtimeError(t, "алг\nнач\nлит с := \"аб\"\nвывод с[3]\nкон", "")
	runtimeError(t, "алг\nнач\nлит с := \"аб\"\nвывод с[0:1]\nкон", "")
	runtimeError(t, "алг\nнач\nлит с := \"аб\"\nс[1] := \"хх\"\nкон", "")
}

func TestVMInput(t *testing.T) {
	tests := []struct {
		desc  string
		body  string
		input string
		want  string
	}{
		{"two on one line", "цел а, б\nввод а, б\nвывод а + б", "3 4\n", "7"},
		{"two on two lines", "цел а, б\nввод а, б\nвывод а + б", "3\n\n4\n", "7"},
		{"whole line string", "лит с\nввод с\nвывод с", "привет мир\n", "привет мир"},
		{"mixed kinds", "лит с\nвещ в\nлог л\nввод с, в, л\nвывод с, в, л", "ы 2.5 да\n", "ы2.5да"},
		{"char", "сим с\nввод с\nвывод с", "ж\n", "ж"},
		{"table cell", "цел таб т[1:2]\nввод т[2]\nвывод т[2]", "8\n", "8"},
		{"int into real", "вещ в\nввод в\nвывод в", "2\n", "2.0"},
		{"crlf", "лит с\nввод с\nвывод \"[\", с, \"]\"", "ок\r\n", "[ок]"},
	}
	for _, tt := range tests {
		if got := mustRun(t, "алг\nнач\n"+tt.body+"\nкон", tt.input); got != tt.want {
			t.Errorf("%s: output %q, want %q", tt.desc, got, tt.want)
		}
	}

	bad := []struct {
		body  string
		input string
	}{
		{"цел а\nввод а", "x\n"},
		{"цел а\nввод а", "1.5\n"},
		{"лог а\nввод а", "может\n"},
		{"сим а\nввод а", "аб\n"},
		{"цел а\nввод а", ""},
	}
	for _, b := range bad {
		runtimeError(t, "алг\nнач\n"+b.body+"\nкон", b.input)
	}

	re := runtimeError(t, "алг\nнач\nцел а\nввод а\nкон", "")
	if !errors.Is(re, errNoInput) {
		t.Errorf("EOF error = %v", re)
	}
}

func TestVMTypeMismatch(t *testing.T) {
	bodies := []string{
		"цел а\nа := \"x\"",
		"вывод 1 + \"a\"",
		"цел а := 1.5",
		"лог л := 1",
		"вывод да + 1",
		"вывод 1 и да",
		"если 1 то вывод 1 все",
		"утв 5",
	}
	for _, b := range bodies {
		runtimeError(t, "алг\nнач\n"+b+"\nкон", "")
	}
}

func TestVMAlgorithms(t *testing.T) {
	tests := []struct {
		desc string
		src  string
		want string
	}{
		{"рез copy-back", heredoc.Doc(`
			алг
			нач
			  цел р
			  квадрат(3, р)
			  вывод р
			кон
			алг квадрат(цел х, рез цел у)
			нач
			  у := х * х
			кон
		`), "9"},
		{"аргрез", heredoc.Doc(`
			алг
			нач
			  цел а := 1
			  цел б := 2
			  обмен(а, б)
			  вывод а, б
			кон
			алг обмен(аргрез цел х, у)
			нач
			  цел т := х
			  х := у
			  у := т
			кон
		`), "21"},
		{"recursion", heredoc.Doc(`
			алг
			нач
			  вывод факт(5)
			кон
			алг цел факт(цел н)
			нач
			  если н <= 1
			    то знач := 1
			    иначе знач := н * факт(н - 1)
			  все
			кон
		`), "120"},
		{"parameterless function by name", heredoc.Doc(`
			алг
			нач
			  вывод пять + 1
			кон
			алг цел пять
			нач
			  знач := 5
			кон
		`), "6"},
		{"globals", heredoc.Doc(`
			цел г := 5
			алг
			нач
			  п
			  вывод г
			кон
			алг п
			нач
			  г := г * 2
			кон
		`), "10"},
		{"locals shadow globals", heredoc.Doc(`
			цел г := 5
			алг
			нач
			  цел г := 1
			  вывод г
			кон
		`), "1"},
		{"arguments widen", heredoc.Doc(`
			алг
			нач
			  вывод половина(3)
			кон
			алг вещ половина(вещ х)
			нач
			  знач := х / 2
			кон
		`), "1.5"},
		{"user algorithm shadows builtin", heredoc.Doc(`
			алг
			нач
			  вывод длин("абв")
			кон
			алг цел длин(лит с)
			нач
			  знач := 0
			кон
		`), "0"},
		{"дано holds", heredoc.Doc(`
			алг
			нач
			  вывод корень(4)
			кон
			алг вещ корень(вещ х)
			  дано х >= 0
			нач
			  знач := sqrt(х)
			кон
		`), "2.0"},
	}
	for _, tt := range tests {
		if got := mustRun(t, tt.src, ""); got != tt.want {
			t.Errorf("%s: output %q, want %q", tt.desc, got, tt.want)
		}
	}
}

func TestVMAlgorithmErrors(t *testing.T) {
	tests := []struct {
		desc string
		src  string
	}{
		{"assign to арг", "алг\nнач\nф(1)\nкон\nалг ф(цел х)\nнач\nх := 2\nкон"},
		{"function without value", "алг\nнач\nвывод ф\nкон\nалг цел ф\nнач\nкон"},
		{"procedure in expression", "алг\nнач\nвывод п(1)\nкон\nалг п(цел х)\nнач\nкон"},
		{"undefined algorithm", "алг\nнач\nнеизвестный(1)\nкон"},
		{"wrong argument count", "алг\nнач\nф(1, 2)\nкон\nалг ф(цел х)\nнач\nкон"},
		{"wrong argument type", "алг\nнач\nф(\"x\")\nкон\nалг ф(цел х)\nнач\nкон"},
		{"main with parameters", "алг главный(цел х)\nнач\nкон"},
		{"дано violated", "алг\nнач\nф(-1)\nкон\nалг ф(цел х)\nдано х > 0\nнач\nкон"},
		{"надо violated", "алг\nнач\nф(1)\nкон\nалг ф(цел х)\nнадо х > 5\nнач\nкон"},
		{"рез target missing", "алг\nнач\nф(р)\nкон\nалг ф(рез цел х)\nнач\nх := 1\nкон"},
		{"assign to constant", "алг\nнач\nМАКСЦЕЛ := 1\nкон"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			runtimeError(t, tt.src, "")
		})
	}
}

func TestVMNames(t *testing.T) {
	re := runtimeError(t, "алг\nнач\nцел а\nвывод а\nкон", "")
	if re.Line != 4 {
		t.Errorf("uninitialized read: line %d, want 4", re.Line)
	}
	if !strings.Contains(re.Error(), "строка 4") {
		t.Errorf("message %q lacks the line", re.Error())
	}
	runtimeError(t, "вывод ы", "")
	runtimeError(t, "ы := 1", "")
}

func TestVMArithmeticErrors(t *testing.T) {
	re := runtimeError(t, "вывод 1 / 0", "")
	if !errors.Is(re, value.ErrDivisionByZero) {
		t.Errorf("division by zero: %v", re)
	}
	re = runtimeError(t, "вывод МАКСЦЕЛ + 1", "")
	if !errors.Is(re, value.ErrIntOverflow) {
		t.Errorf("overflow: %v", re)
	}
	re = runtimeError(t, "вывод div(1, 0)", "")
	if !errors.Is(re, value.ErrDivisionByZero) {
		t.Errorf("div by zero: %v", re)
	}
}

func TestVMAssert(t *testing.T) {
	re := runtimeError(t, "утв 1 > 2", "")
	if !errors.Is(re, ErrAssertion) {
		t.Errorf("assert error = %v", re)
	}
	if out := mustRun(t, "утв 2 > 1\nвывод 1", ""); out != "1" {
		t.Errorf("output %q", out)
	}
}

func TestVMBuiltins(t *testing.T) {
	src := `вывод div(7, 2), " ", mod(-7, 2), " ", длин("абв"), " ", iabs(-4), " ", int(2.7), " ", МАКСЦЕЛ`
	if got := mustRun(t, src, ""); got != "3 1 3 4 2 2147483647" {
		t.Errorf("output %q", got)
	}
	runtimeError(t, "вывод sqrt(-1)", "")
	runtimeError(t, "вывод sqrt(\"x\")", "")
}

func TestVMFiles(t *testing.T) {
	src := heredoc.Doc(`
		использовать Файлы
		алг
		нач
		  файл ф
		  ф := открыть на запись("a.txt")
		  вывод ф, "строка 1", нс, 42, нс
		  закрыть(ф)
		  ф := открыть на чтение("a.txt")
		  лит с
		  цел ч
		  ввод ф, с
		  ввод ф, ч
		  вывод с, ";", ч, ";", конец файла(ф)
		  закрыть(ф)
		кон
	`)
	if got := mustRun(t, src, ""); got != "строка 1;42;да" {
		t.Errorf("output %q", got)
	}

	if got := mustRun(t, "использовать Файлы\nвывод существует(\"нет_такого\")", ""); got != "нет" {
		t.Errorf("существует = %q", got)
	}
	// Loading twice is harmless.
	if got := mustRun(t, "использовать Файлы\nиспользовать Файлы\nвывод 1", ""); got != "1" {
		t.Errorf("double use output %q", got)
	}

	runtimeError(t, "использовать Робот", "")
	runtimeError(t, "вывод существует(\"x\")", "")
	runtimeError(t, "алг\nнач\nфайл ф\nввод ф\nкон", "")
}

func TestVMCallDepth(t *testing.T) {
	vm, _ := newTestVM(t, "алг р\nнач\nр\nкон", "")
	vm.SetMaxCallDepth(100)
	err := vm.Execute(context.Background())
	if _, ok := IsRuntimeError(err); !ok || !strings.Contains(err.Error(), "глубина") {
		t.Errorf("deep recursion error = %v", err)
	}
}

func TestVMCancel(t *testing.T) {
	vm, _ := newTestVM(t, "алг\nнач\nнц пока да\nкц\nкон", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := vm.Execute(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run error = %v", err)
	}
}

func TestVMGlobal(t *testing.T) {
	vm, _ := newTestVM(t, "цел а := 5 + 6\nвещ б := 4 / 2\nцел в", "")
	if err := vm.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, ok := vm.Global("а"); !ok || v != value.Int(11) {
		t.Errorf("а = %v, %v", v, ok)
	}
	if v, ok := vm.Global("б"); !ok || v != value.Real(2) {
		t.Errorf("б = %v, %v", v, ok)
	}
	if _, ok := vm.Global("в"); ok {
		t.Error("unset global reported as set")
	}
}

func TestVMOutputPreservedOnError(t *testing.T) {
	out, err := runProgram(t, "алг\nнач\nвывод \"до\"\nвывод 1 / 0\nкон", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "до" {
		t.Errorf("output %q", out)
	}
}
