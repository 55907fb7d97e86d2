package integration_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aymanbagabas/go-udiff"

	"github.com/chazu/kumir/runner"
)

// ---------------------------------------------------------------------------
// Example programs
// ---------------------------------------------------------------------------

// Every examples/NAME.kum is run with NAME.in (if present) on stdin and its
// output compared with NAME.out.
func TestExamples(t *testing.T) {
	progs, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.kum"))
	if err != nil {
		t.Fatal(err)
	}
	if len(progs) == 0 {
		t.Fatal("no example programs found")
	}

	for _, prog := range progs {
		name := strings.TrimSuffix(filepath.Base(prog), ".kum")
		t.Run(name, func(t *testing.T) {
			base := strings.TrimSuffix(prog, ".kum")
			want, err := os.ReadFile(base + ".out")
			if err != nil {
				t.Fatalf("missing expected output: %v", err)
			}
			input, err := os.ReadFile(base + ".in")
			if err != nil && !os.IsNotExist(err) {
				t.Fatal(err)
			}

			var out bytes.Buffer
			_, err = runner.RunFile(context.Background(), prog, runner.Options{
				Output:  &out,
				Input:   bytes.NewReader(input),
				WorkDir: t.TempDir(),
				Seed:    1,
			})
			if err != nil {
				t.Fatalf("run failed: %v\noutput so far:\n%s", err, out.String())
			}
			if out.String() != string(want) {
				t.Errorf("output mismatch:\n%s", udiff.Unified("want", "got", string(want), out.String()))
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Whole-pipeline properties
// ---------------------------------------------------------------------------

// run executes body as the main algorithm.
func run(t *testing.T, body, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	src := "алг\nнач\n" + body + "\nкон\n"
	_, err := runner.Run(context.Background(), src, runner.Options{
		Output:  &out,
		Input:   strings.NewReader(input),
		WorkDir: t.TempDir(),
	})
	return out.String(), err
}

func TestExpressionPrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"вывод (8 * (4 - 3) + 2) ** 2", "100"},
		{"цел а := 5 + 6\nвывод а", "11"},
		{"вещ а := 4 / 2\nвывод а", "2.0"},
		{"вывод 2 + 3 * 4", "14"},
	}
	for _, tt := range tests {
		got, err := run(t, tt.src, "")
		if err != nil {
			t.Errorf("%q: %v", tt.src, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: output %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestLoopCounts(t *testing.T) {
	tests := []struct {
		desc string
		src  string
		want string
	}{
		{"count", "нц 5+2 раз\nвывод \"*\"\nкц", "*******"},
		{"for with step", "нц для а от 0 до 5 шаг 2\nвывод а\nкц", "024"},
		{"for counting down", "нц для а от 3 до 1 шаг -1\nвывод а\nкц", "321"},
		{"bare post-condition runs once", "нц\nвывод 1\nкц", "1"},
	}
	for _, tt := range tests {
		got, err := run(t, tt.src, "")
		if err != nil {
			t.Errorf("%s: %v", tt.desc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: output %q, want %q", tt.desc, got, tt.want)
		}
	}
}

func TestOutputKeptOnError(t *testing.T) {
	got, err := run(t, "вывод \"до\", нс\nцел а\nвывод а", "")
	if err == nil {
		t.Fatal("expected a runtime error for an unset variable")
	}
	if got != "до\n" {
		t.Errorf("output %q, want %q", got, "до\n")
	}
}
