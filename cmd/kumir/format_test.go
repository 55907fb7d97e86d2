package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	"github.com/aymanbagabas/go-udiff"
)

func TestFormat_Reindents(t *testing.T) {
	input := heredoc.Doc(`
		| заголовок
		алг цел факт(цел к)
		      нач
		если к <= 1
		то знач := 1
		        иначе знач := к * факт(к - 1)
		все
		кон
	`)
	want := heredoc.Doc(`
		| заголовок
		алг цел факт(цел к)
		нач
		  если к <= 1
		    то знач := 1
		    иначе знач := к * факт(к - 1)
		  все
		кон
	`)
	got, err := Format(input)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("format mismatch:\n%s", udiff.Unified("want", "got", want, got))
	}
}

func TestFormat_NestedBlocks(t *testing.T) {
	input := heredoc.Doc(`
		алг
		нач
		цел а
		ввод а
		выбор
		при а = 0: вывод "ноль"
		иначе
		нц 2 раз
		вывод "*"
		| комментарий в цикле
		кц
		все

		нц
		а := а + 1
		кц при а > 3
		кон
	`)
	want := heredoc.Doc(`
		алг
		нач
		  цел а
		  ввод а
		  выбор
		    при а = 0: вывод "ноль"
		    иначе
		      нц 2 раз
		        вывод "*"
		        | комментарий в цикле
		      кц
		  все

		  нц
		    а := а + 1
		  кц при а > 3
		кон
	`)
	got, err := Format(input)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("format mismatch:\n%s", udiff.Unified("want", "got", want, got))
	}
}

func TestFormat_OneLineBlocks(t *testing.T) {
	input := "алг\nнач\nесли да то вывод 1 все\nвывод 2\nкон\n"
	want := "алг\nнач\n  если да то вывод 1 все\n  вывод 2\nкон\n"
	got, err := Format(input)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormat_Idempotent(t *testing.T) {
	progs, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.kum"))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range progs {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Format(string(data))
		if err != nil {
			t.Errorf("%s: %v", p, err)
			continue
		}
		if got != string(data) {
			t.Errorf("%s is not formatted:\n%s", p, udiff.Unified("file", "formatted", string(data), got))
		}
	}
}

func TestFormat_RejectsBrokenSource(t *testing.T) {
	if _, err := Format("алг\nнач\nесли да\nкон\n"); err == nil {
		t.Error("expected a syntax error")
	}
}

func TestRunFmt(t *testing.T) {
	dir := t.TempDir()
	messy := writeProgram(t, dir, "a.kum", "алг\nнач\nвывод 1\nкон\n")
	writeProgram(t, dir, "b.kum", "алг\nнач\n  вывод 2\nкон\n")
	writeProgram(t, dir, "notes.txt", "не программа")

	var out, errOut bytes.Buffer
	if code := runFmt([]string{"-check", dir}, &out, &errOut); code != 1 {
		t.Errorf("check exit %d, want 1 (stderr %q)", code, errOut.String())
	}
	if got := out.String(); !strings.Contains(got, "would format: "+messy) || strings.Contains(got, "b.kum") {
		t.Errorf("check output %q", got)
	}

	out.Reset()
	if code := runFmt([]string{dir}, &out, &errOut); code != 0 {
		t.Fatalf("exit %d (stderr %q)", code, errOut.String())
	}
	data, err := os.ReadFile(messy)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "алг\nнач\n  вывод 1\nкон\n" {
		t.Errorf("rewritten file %q", data)
	}

	out.Reset()
	if code := run([]string{"fmt", "-check", dir}, nil, &out, &errOut); code != 0 {
		t.Errorf("second check exit %d, output %q", code, out.String())
	}
}

func TestRunFmt_NotKumFile(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "x.txt", "")
	var out, errOut bytes.Buffer
	if code := runFmt([]string{path}, &out, &errOut); code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
}
