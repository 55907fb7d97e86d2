package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const testURI = "file:///work/main.kum"

const testSource = `алг главная
нач
  цел счёт
  счёт := 0
  нарисовать квадрат(счёт)
  вывод длин("абв"), нс | счёт в комментарии
кон

алг нарисовать квадрат(арг цел сторона)
нач
  вывод сторона
кон
`

func newTestIndex(t *testing.T, text string) *Index {
	t.Helper()
	ix := NewIndex(nil)
	ix.Update(testURI, text)
	return ix
}

func pos(line, char int) protocol.Position {
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(char)}
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

func TestAnalyze_Symbols(t *testing.T) {
	doc := Analyze(testURI, testSource)
	if doc.Err != nil {
		t.Fatalf("unexpected error: %v", doc.Err)
	}
	var algs []string
	for _, a := range doc.Algorithms {
		algs = append(algs, a.Name)
	}
	if got := strings.Join(algs, ","); got != "главная,нарисовать квадрат" {
		t.Errorf("algorithms = %q", got)
	}
	sq := findSymbol(doc.Algorithms, "нарисовать квадрат")
	if sq == nil || sq.Line != 9 || sq.Detail != "алг нарисовать квадрат(арг цел сторона)" {
		t.Errorf("symbol = %+v", sq)
	}
	if v := findSymbol(doc.Variables, "счёт"); v == nil || v.Line != 3 {
		t.Errorf("variable счёт = %+v", v)
	}
	if v := findSymbol(doc.Variables, "сторона"); v == nil || v.Line != 9 {
		t.Errorf("parameter сторона = %+v", v)
	}
}

func TestAnalyze_UseCollectsActors(t *testing.T) {
	doc := Analyze(testURI, "использовать Файлы\nалг\nнач\nкон\n")
	if doc.Err != nil {
		t.Fatalf("unexpected error: %v", doc.Err)
	}
	if len(doc.Actors) != 1 || doc.Actors[0] != "Файлы" {
		t.Errorf("actors = %v", doc.Actors)
	}
}

func TestAnalyze_SyntaxError(t *testing.T) {
	doc := Analyze(testURI, "алг\nнач\n  цел а\n  а := (1 + \nкон\n")
	if doc.Err == nil {
		t.Fatal("expected a syntax error")
	}
	if doc.Err.Line != 4 {
		t.Errorf("error line = %d, want 4", doc.Err.Line)
	}
}

func TestIndex_KeepsSymbolsWhileBroken(t *testing.T) {
	ix := newTestIndex(t, testSource)
	doc := ix.Update(testURI, testSource+"\nвывод (")
	if doc.Err == nil {
		t.Fatal("expected a syntax error")
	}
	if findSymbol(doc.Algorithms, "нарисовать квадрат") == nil {
		t.Error("symbols from the last good parse were dropped")
	}
}

func TestIndex_Remove(t *testing.T) {
	ix := newTestIndex(t, testSource)
	ix.Remove(testURI)
	if ix.Document(testURI) != nil {
		t.Error("document still present")
	}
	if got := ix.Hover(testURI, pos(0, 0)); got != nil {
		t.Errorf("Hover on a closed document = %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnostics_Clean(t *testing.T) {
	got := diagnostics(Analyze(testURI, testSource))
	if got == nil || len(got) != 0 {
		t.Errorf("diagnostics = %+v, want empty non-nil slice", got)
	}
}

func TestDiagnostics_Range(t *testing.T) {
	got := diagnostics(Analyze(testURI, "алг\nнач\n  вывод 1 +\nкон\n"))
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	d := got[0]
	if d.Range.Start.Line != 2 || d.Range.End.Line != 2 {
		t.Errorf("range = %+v, want line 2", d.Range)
	}
	if d.Range.End.Character < d.Range.Start.Character {
		t.Errorf("inverted range %+v", d.Range)
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Error("severity should be Error")
	}
	if d.Message == "" {
		t.Error("empty message")
	}
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func labels(items []protocol.CompletionItem) map[string]protocol.CompletionItem {
	m := make(map[string]protocol.CompletionItem, len(items))
	for _, it := range items {
		m[it.Label] = it
	}
	return m
}

func TestComplete(t *testing.T) {
	// The trailing fragment need not parse; symbols of the last good
	// version stay available.
	ix := newTestIndex(t, testSource)
	ix.Update(testURI, testSource+"  ли\n")

	tests := []struct {
		name    string
		line    int
		char    int
		want    []string
		notWant []string
	}{
		{"local variable", 3, 4, []string{"счёт"}, []string{"сторона"}},
		{"algorithm", 4, 5, []string{"нарисовать квадрат"}, nil},
		{"builtin", 12, 4, []string{"лит_в_цел", "лит_в_вещ", "лит", "литтаб"}, []string{"длин"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labels(ix.Complete(testURI, pos(tt.line, tt.char)))
			for _, w := range tt.want {
				if _, ok := got[w]; !ok {
					t.Errorf("missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if _, ok := got[w]; ok {
					t.Errorf("unexpected %q", w)
				}
			}
		})
	}
}

func TestComplete_Details(t *testing.T) {
	ix := newTestIndex(t, "алг\nнач\n  ди\nкон\n")
	got := labels(ix.Complete(testURI, pos(2, 4)))
	if _, ok := got["div"]; ok {
		t.Fatal("prefix ди should not match div")
	}
	ix.Update(testURI, "алг\nнач\n  d\nкон\n")
	got = labels(ix.Complete(testURI, pos(2, 3)))
	div, ok := got["div"]
	if !ok {
		t.Fatal("div missing")
	}
	if div.Detail == nil || *div.Detail != "алг цел div(арг цел, арг цел)" {
		t.Errorf("detail = %v", div.Detail)
	}
	if div.Kind == nil || *div.Kind != protocol.CompletionItemKindFunction {
		t.Error("kind should be Function")
	}
}

func TestComplete_ActorsAndConstants(t *testing.T) {
	ix := newTestIndex(t, "алг\nнач\n  \nкон\n")
	got := labels(ix.Complete(testURI, pos(2, 2)))
	for _, w := range []string{"Файлы", "МАКСЦЕЛ", "использовать", "нс"} {
		if _, ok := got[w]; !ok {
			t.Errorf("missing %q", w)
		}
	}
	if _, ok := got["Встроенные"]; ok {
		t.Error("the builtin actor should not be offered")
	}
	if _, ok := got["открыть на чтение"]; ok {
		t.Error("file functions offered without использовать")
	}

	ix.Update(testURI, "использовать Файлы\nалг\nнач\n  \nкон\n")
	got = labels(ix.Complete(testURI, pos(3, 2)))
	if _, ok := got["открыть на чтение"]; !ok {
		t.Error("file functions missing after использовать")
	}
}

// ---------------------------------------------------------------------------
// Hover, definition, references
// ---------------------------------------------------------------------------

func hoverText(h *protocol.Hover) string {
	if h == nil {
		return ""
	}
	if mc, ok := h.Contents.(protocol.MarkupContent); ok {
		return mc.Value
	}
	return ""
}

func TestHover(t *testing.T) {
	ix := newTestIndex(t, testSource)
	tests := []struct {
		name string
		line int
		char int
		want string
	}{
		{"multi-word algorithm second word", 4, 14, "алг нарисовать квадрат(арг цел сторона)"},
		{"multi-word algorithm first word", 4, 3, "алг нарисовать квадрат(арг цел сторона)"},
		{"variable", 3, 3, "цел счёт"},
		{"builtin", 5, 9, "алг цел длин(арг лит)"},
		{"parameter", 10, 9, "арг цел сторона"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hoverText(ix.Hover(testURI, pos(tt.line, tt.char)))
			if !strings.Contains(got, tt.want) {
				t.Errorf("hover = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestHover_Keyword(t *testing.T) {
	ix := newTestIndex(t, testSource)
	if got := ix.Hover(testURI, pos(1, 1)); got != nil {
		t.Errorf("hover on нач = %+v, want nil", got)
	}
}

func TestDefinition(t *testing.T) {
	ix := newTestIndex(t, testSource)

	locs := ix.Definition(testURI, pos(4, 14))
	if len(locs) != 1 {
		t.Fatalf("len = %d, want 1", len(locs))
	}
	r := locs[0].Range
	if r.Start.Line != 8 || r.Start.Character != 4 || r.End.Character != 22 {
		t.Errorf("range = %+v, want line 8 chars 4-22", r)
	}
	if string(locs[0].URI) != testURI {
		t.Errorf("uri = %q", locs[0].URI)
	}

	locs = ix.Definition(testURI, pos(3, 3))
	if len(locs) != 1 || locs[0].Range.Start.Line != 2 {
		t.Errorf("variable definition = %+v", locs)
	}

	if locs := ix.Definition(testURI, pos(5, 9)); len(locs) != 0 {
		t.Errorf("builtin definition = %+v, want none", locs)
	}
}

func TestReferences(t *testing.T) {
	ix := newTestIndex(t, testSource)
	locs := ix.References(testURI, pos(2, 7))

	var lines []int
	for _, l := range locs {
		lines = append(lines, int(l.Range.Start.Line))
	}
	// The occurrence inside the comment on line 5 is skipped.
	want := []int{2, 3, 4}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines = %v, want %v", lines, want)
			break
		}
	}
}

// ---------------------------------------------------------------------------
// Text helpers
// ---------------------------------------------------------------------------

func TestNameAt(t *testing.T) {
	names := []string{"нарисовать квадрат", "а"}
	tests := []struct {
		line string
		col  int
		want string
	}{
		{"  нарисовать квадрат(а)", 2, "нарисовать квадрат"},
		{"  нарисовать   квадрат(а)", 17, "нарисовать квадрат"},
		{"  нарисовать квадрат(а)", 21, "а"},
		{"  квадрат", 4, "квадрат"},
		{"  нарисоватьквадрат", 4, "нарисоватьквадрат"},
		{"", 0, ""},
	}
	for _, tt := range tests {
		if got := nameAt([]rune(tt.line), tt.col, names); got != tt.want {
			t.Errorf("nameAt(%q, %d) = %q, want %q", tt.line, tt.col, got, tt.want)
		}
	}
}

func TestPrefixAt(t *testing.T) {
	tests := []struct {
		line string
		col  int
		want string
	}{
		{"вывод лит_в", 11, "лит_в"},
		{"вывод ", 6, ""},
		{"цел", 3, "цел"},
		{"цел", 99, "цел"},
		{"а:=бв", 4, "б"},
	}
	for _, tt := range tests {
		if got := prefixAt([]rune(tt.line), tt.col); got != tt.want {
			t.Errorf("prefixAt(%q, %d) = %q, want %q", tt.line, tt.col, got, tt.want)
		}
	}
}

func TestStripComment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"а := 1 | комментарий", "а := 1 "},
		{`вывод "a|b" | x`, `вывод "a|b" `},
		{"вывод '|'", "вывод '|'"},
		{"нет", "нет"},
	}
	for _, tt := range tests {
		if got := string(stripComment([]rune(tt.in))); got != tt.want {
			t.Errorf("stripComment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWorker_DoAndPanic(t *testing.T) {
	w := NewWorker(NewIndex(nil))
	defer w.Stop()

	res, err := w.Do(func(ix *Index) any {
		return ix.Update(testURI, testSource).Err == nil
	})
	if err != nil || res != true {
		t.Errorf("Do = %v, %v", res, err)
	}

	_, err = w.Do(func(*Index) any { panic("boom") })
	if err == nil || err.Error() != "boom" {
		t.Errorf("panic error = %v, want boom", err)
	}
}

func TestWorker_Stopped(t *testing.T) {
	w := NewWorker(NewIndex(nil))
	w.Stop()
	w.Stop()
	if _, err := w.Do(func(*Index) any { return nil }); err != errStopped {
		t.Errorf("err = %v, want errStopped", err)
	}
}
