package server

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/chazu/kumir/compiler"
	"github.com/chazu/kumir/pkg/actor"
	"github.com/chazu/kumir/pkg/bytecode"
)

// Symbol is a name declared in a document.
type Symbol struct {
	Name   string
	Line   int // 1-based
	Detail string
}

// Document is the analysed state of one open file.
type Document struct {
	URI        string
	Text       string
	Algorithms []Symbol
	Variables  []Symbol
	Actors     []string
	Err        *compiler.SyntaxError
}

// Analyze parses and compiles text. Symbols are collected only when
// parsing succeeds; Err carries the first syntax error otherwise.
func Analyze(uri, text string) *Document {
	doc := &Document{URI: uri, Text: text}
	stmts, err := compiler.Parse(text)
	if err == nil {
		doc.collect(stmts)
		_, err = bytecode.Compile(stmts)
	}
	if err != nil {
		var se *compiler.SyntaxError
		if errors.As(err, &se) {
			doc.Err = se
		} else {
			doc.Err = &compiler.SyntaxError{Line: 1, Message: err.Error()}
		}
	}
	return doc
}

func (d *Document) collect(stmts []compiler.Stmt) {
	for _, st := range stmts {
		switch s := st.(type) {
		case *compiler.AlgStart:
			if s.Name != "" {
				d.Algorithms = append(d.Algorithms, Symbol{Name: s.Name, Line: s.LineVal, Detail: algHeader(s)})
			}
			for _, p := range s.Params {
				d.Variables = append(d.Variables, Symbol{
					Name:   p.Name,
					Line:   s.LineVal,
					Detail: p.Mode.String() + " " + p.Type.String() + " " + p.Name,
				})
			}
		case *compiler.VarDecl:
			for _, n := range s.Names {
				d.Variables = append(d.Variables, Symbol{Name: n, Line: s.LineVal, Detail: s.Type.String() + " " + n})
			}
			for _, t := range s.Tables {
				d.Variables = append(d.Variables, Symbol{Name: t.Name, Line: s.LineVal, Detail: s.Type.String() + " " + t.Name})
			}
		case *compiler.Use:
			d.Actors = append(d.Actors, s.Actor)
		}
	}
}

func algHeader(s *compiler.AlgStart) string {
	var b strings.Builder
	b.WriteString("алг ")
	if s.ReturnType.IsValid() {
		b.WriteString(s.ReturnType.String())
		b.WriteByte(' ')
	}
	b.WriteString(s.Name)
	if len(s.Params) > 0 {
		parts := make([]string, len(s.Params))
		for i, p := range s.Params {
			parts[i] = p.Mode.String() + " " + p.Type.String() + " " + p.Name
		}
		b.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	return b.String()
}

// Index holds every open document and the actor registry used to
// resolve library names. It is owned by the Worker goroutine.
type Index struct {
	registry *actor.Registry
	docs     map[string]*Document
}

// NewIndex creates an empty index over registry.
func NewIndex(registry *actor.Registry) *Index {
	if registry == nil {
		registry = actor.Default()
	}
	return &Index{registry: registry, docs: make(map[string]*Document)}
}

// Update re-analyses a document. Symbols from the last successful parse
// are kept while the text does not parse.
func (ix *Index) Update(uri, text string) *Document {
	doc := Analyze(uri, text)
	if prev, ok := ix.docs[uri]; ok && doc.Err != nil && doc.Algorithms == nil && doc.Variables == nil {
		doc.Algorithms = prev.Algorithms
		doc.Variables = prev.Variables
		doc.Actors = prev.Actors
	}
	ix.docs[uri] = doc
	return doc
}

// Remove forgets a document.
func (ix *Index) Remove(uri string) {
	delete(ix.docs, uri)
}

// Document returns the analysed state of uri, or nil.
func (ix *Index) Document(uri string) *Document {
	return ix.docs[uri]
}

// actorFuncs lists the functions reachable from doc: the builtins plus
// every actor it uses.
func (ix *Index) actorFuncs(doc *Document) []*actor.Func {
	names := []string{actor.BuiltinsName}
	if doc != nil {
		names = append(names, doc.Actors...)
	}
	var funcs []*actor.Func
	for _, n := range names {
		a, err := ix.registry.New(n)
		if err != nil {
			continue
		}
		funcs = append(funcs, a.Functions()...)
		if c, ok := a.(actor.Closer); ok {
			c.Close()
		}
	}
	return funcs
}

// knownNames is every name the document can refer to, longest first so
// multi-word names win over their parts.
func (ix *Index) knownNames(doc *Document) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	if doc != nil {
		for _, s := range doc.Algorithms {
			add(s.Name)
		}
		for _, s := range doc.Variables {
			add(s.Name)
		}
	}
	for _, f := range ix.actorFuncs(doc) {
		add(f.Name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return len([]rune(names[i])) > len([]rune(names[j]))
	})
	return names
}

// ---------------------------------------------------------------------------
// Text helpers
// ---------------------------------------------------------------------------

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lineAt returns line n (0-based) of text as runes.
func lineAt(text string, n int) []rune {
	lines := strings.Split(text, "\n")
	if n < 0 || n >= len(lines) {
		return nil
	}
	return []rune(strings.TrimRight(lines[n], "\r"))
}

// occurrences returns the rune offsets where name appears in line as a
// whole word, with any run of spaces matching the single space in name.
func occurrences(line []rune, name string) [][2]int {
	words := strings.Fields(name)
	if len(words) == 0 {
		return nil
	}
	var out [][2]int
	for start := 0; start < len(line); start++ {
		if start > 0 && isWordRune(line[start-1]) {
			continue
		}
		end, ok := matchWords(line, start, words)
		if !ok {
			continue
		}
		if end < len(line) && isWordRune(line[end]) {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func matchWords(line []rune, pos int, words []string) (int, bool) {
	for i, w := range words {
		if i > 0 {
			if pos >= len(line) || !unicode.IsSpace(line[pos]) {
				return 0, false
			}
			for pos < len(line) && unicode.IsSpace(line[pos]) {
				pos++
			}
		}
		wr := []rune(w)
		if pos+len(wr) > len(line) || string(line[pos:pos+len(wr)]) != w {
			return 0, false
		}
		pos += len(wr)
	}
	return pos, true
}

// nameAt returns the known name covering column col of line, falling
// back to the single word under the cursor.
func nameAt(line []rune, col int, names []string) string {
	for _, n := range names {
		for _, o := range occurrences(line, n) {
			if col >= o[0] && col <= o[1] {
				return n
			}
		}
	}
	return wordAt(line, col)
}

// wordAt returns the identifier under the cursor.
func wordAt(line []rune, col int) string {
	if col > len(line) {
		col = len(line)
	}
	if col < 0 {
		col = 0
	}
	start := col
	for start > 0 && isWordRune(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordRune(line[end]) {
		end++
	}
	return string(line[start:end])
}

// prefixAt returns the part of the identifier before the cursor.
func prefixAt(line []rune, col int) string {
	if col > len(line) {
		col = len(line)
	}
	start := col
	for start > 0 && isWordRune(line[start-1]) {
		start--
	}
	return string(line[start:col])
}
