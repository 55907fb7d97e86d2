package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/kumir/compiler"
)

// ---------------------------------------------------------------------------
// kumir fmt: block indentation for KuMir sources
// ---------------------------------------------------------------------------

const indentUnit = "  "

type blockKind int

const (
	blockAlg blockKind = iota
	blockLoop
	blockIf
	blockSwitch
)

type block struct {
	kind blockKind
	base int
	body int
}

// indenter tracks open blocks while walking a program line by line.
type indenter struct {
	stack []block
}

func (in *indenter) depth() int {
	if len(in.stack) == 0 {
		return 0
	}
	return in.stack[len(in.stack)-1].body
}

func (in *indenter) top() *block {
	if len(in.stack) == 0 {
		return nil
	}
	return &in.stack[len(in.stack)-1]
}

func (in *indenter) pop() block {
	b := in.stack[len(in.stack)-1]
	in.stack = in.stack[:len(in.stack)-1]
	return b
}

// label returns the indentation of a line starting with kw, given the
// state before the line.
func (in *indenter) label(kw string) int {
	top := in.top()
	switch kw {
	case "кон", "кц", "кц_при", "все":
		if top != nil {
			return top.base
		}
	case "то", "иначе", "при":
		if top != nil && (top.kind == blockIf || top.kind == blockSwitch) {
			return top.base + 1
		}
	}
	return in.depth()
}

// apply updates the block state for one keyword. prev is the keyword
// before it on the same line.
func (in *indenter) apply(kw, prev string) {
	cur := in.depth()
	top := in.top()
	switch kw {
	case "нач":
		in.stack = append(in.stack, block{kind: blockAlg, base: cur, body: cur + 1})
	case "нц":
		in.stack = append(in.stack, block{kind: blockLoop, base: cur, body: cur + 1})
	case "если":
		in.stack = append(in.stack, block{kind: blockIf, base: cur, body: cur + 1})
	case "выбор":
		in.stack = append(in.stack, block{kind: blockSwitch, base: cur, body: cur + 1})
	case "кон":
		if top != nil && top.kind == blockAlg {
			in.pop()
		}
	case "кц", "кц_при":
		if top != nil && top.kind == blockLoop {
			in.pop()
		}
	case "все":
		if top != nil && (top.kind == blockIf || top.kind == blockSwitch) {
			in.pop()
		}
	case "то", "иначе":
		if top != nil && (top.kind == blockIf || top.kind == blockSwitch) {
			top.body = top.base + 2
		}
	case "при":
		if prev != "кц" && top != nil && top.kind == blockSwitch {
			top.body = top.base + 2
		}
	}
}

// Format re-indents program text: two spaces per open block, with то,
// иначе and при one level inside their если or выбор. Line contents are
// otherwise kept. Text that does not parse is rejected.
func Format(source string) (string, error) {
	source = strings.TrimPrefix(source, "\ufeff")
	if _, err := compiler.Parse(source); err != nil {
		return "", err
	}

	keywords := make(map[int][]string)
	for _, tok := range compiler.Tokenize(source) {
		if tok.Type == compiler.TokenKeyword {
			keywords[tok.Pos.Line] = append(keywords[tok.Pos.Line], tok.Literal)
		}
	}

	var in indenter
	var b strings.Builder
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	for i, line := range lines {
		text := strings.TrimSpace(line)
		kws := keywords[i+1]

		level := in.depth()
		if len(kws) > 0 && startsWithWord(text, kws[0]) {
			level = in.label(kws[0])
		}
		if text != "" {
			b.WriteString(strings.Repeat(indentUnit, level))
			b.WriteString(text)
		}
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}

		prev := ""
		for _, kw := range kws {
			in.apply(kw, prev)
			prev = kw
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func startsWithWord(text, word string) bool {
	rest, ok := strings.CutPrefix(text, word)
	if !ok {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return rest == "" || !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

// ---------------------------------------------------------------------------
// CLI command: kumir fmt
// ---------------------------------------------------------------------------

func runFmt(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kumir fmt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	checkMode := fs.Bool("check", false, "Report files that need formatting without modifying them")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: kumir fmt [-check] <files or directories...>\n\n")
		fmt.Fprintf(stderr, "Re-indents .kum files. With no arguments formats the current directory.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{"."}
	}
	files, err := collectKumFiles(paths)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	anyChanged := false
	for _, path := range files {
		changed, err := formatFile(stdout, path, *checkMode)
		if err != nil {
			fmt.Fprintf(stderr, "Error formatting %s: %v\n", path, err)
			return 1
		}
		anyChanged = anyChanged || changed
	}
	if *checkMode && anyChanged {
		return 1
	}
	return 0
}

// formatFile formats a single file. In check mode it only reports whether
// the file would change; otherwise it rewrites the file in place.
func formatFile(w io.Writer, path string, checkMode bool) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	original := string(content)
	formatted, err := Format(original)
	if err != nil {
		return false, err
	}
	if original == formatted {
		return false, nil
	}

	if checkMode {
		fmt.Fprintf(w, "would format: %s\n", path)
		return true, nil
	}
	if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
		return false, err
	}
	fmt.Fprintf(w, "formatted: %s\n", path)
	return true, nil
}

// collectKumFiles resolves paths to a flat list of .kum files.
func collectKumFiles(paths []string) ([]string, error) {
	var result []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %q: %w", p, err)
		}
		if !info.IsDir() {
			if !strings.HasSuffix(p, ".kum") {
				return nil, fmt.Errorf("%q is not a .kum file", p)
			}
			result = append(result, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".kum") {
				result = append(result, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}
