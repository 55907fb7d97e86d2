package server

import (
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/kumir/compiler"
	"github.com/chazu/kumir/pkg/actor"
	"github.com/chazu/kumir/pkg/value"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "kumir-lsp"

var log = commonlog.GetLogger("kumir.lsp")

// LspServer bridges LSP editor features to the document index via Worker.
// Positions are counted in runes; every character the language uses is
// in the Basic Multilingual Plane, where runes and UTF-16 units agree.
type LspServer struct {
	worker *Worker

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server resolving actor names through registry.
// A nil registry means actor.Default().
func NewLSP(registry *actor.Registry) *LspServer {
	s := &LspServer{
		worker:  NewWorker(NewIndex(registry)),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("initializing %s %s", lspName, s.version)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event carries the whole text.
	if len(params.ContentChanges) == 0 {
		return nil
	}
	last := params.ContentChanges[len(params.ContentChanges)-1]
	if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
		s.update(ctx, params.TextDocument.URI, whole.Text)
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.worker.Do(func(ix *Index) any {
		ix.Remove(string(uri))
		return nil
	})

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	res, err := s.worker.Do(func(ix *Index) any {
		return diagnostics(ix.Update(string(uri), text))
	})
	if err != nil {
		log.Errorf("analysing %s: %s", uri, err)
		return
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: res.([]protocol.Diagnostic),
	})
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	res, err := s.worker.Do(func(ix *Index) any {
		return ix.Complete(string(params.TextDocument.URI), params.Position)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	res, err := s.worker.Do(func(ix *Index) any {
		return ix.Hover(string(params.TextDocument.URI), params.Position)
	})
	if err != nil {
		return nil, err
	}
	return res.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	res, err := s.worker.Do(func(ix *Index) any {
		return ix.Definition(string(params.TextDocument.URI), params.Position)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	res, err := s.worker.Do(func(ix *Index) any {
		return ix.References(string(params.TextDocument.URI), params.Position)
	})
	if err != nil {
		return nil, err
	}
	return res.([]protocol.Location), nil
}

// ---------------------------------------------------------------------------
// Index queries
// ---------------------------------------------------------------------------

// Complete lists names starting with the identifier fragment before pos.
func (ix *Index) Complete(uri string, pos protocol.Position) []protocol.CompletionItem {
	doc := ix.Document(uri)
	prefix := ""
	if doc != nil {
		prefix = prefixAt(lineAt(doc.Text, int(pos.Line)), int(pos.Character))
	}

	seen := make(map[string]bool)
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail, docs string) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		item := protocol.CompletionItem{Label: label, Kind: &kind}
		if detail != "" {
			item.Detail = &detail
		}
		if docs != "" {
			item.Documentation = docs
		}
		items = append(items, item)
	}

	if doc != nil {
		for _, a := range doc.Algorithms {
			add(a.Name, protocol.CompletionItemKindFunction, a.Detail, "")
		}
		for _, v := range doc.Variables {
			add(v.Name, protocol.CompletionItemKindVariable, v.Detail, "")
		}
	}
	for _, f := range ix.actorFuncs(doc) {
		add(f.Name, protocol.CompletionItemKindFunction, f.Signature(), f.Doc)
	}
	for name, c := range ix.actorConstants(doc) {
		add(name, protocol.CompletionItemKindConstant, c.Type.String(), "")
	}
	for _, name := range ix.registry.Names() {
		if name != actor.BuiltinsName {
			add(name, protocol.CompletionItemKindModule, "исполнитель", "")
		}
	}
	for kw := range compiler.Keywords {
		add(kw, protocol.CompletionItemKindKeyword, "", "")
	}
	for _, w := range value.TypeWords() {
		add(w, protocol.CompletionItemKindKeyword, "", "")
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func (ix *Index) actorConstants(doc *Document) map[string]value.Value {
	names := []string{actor.BuiltinsName}
	if doc != nil {
		names = append(names, doc.Actors...)
	}
	out := make(map[string]value.Value)
	for _, n := range names {
		a, err := ix.registry.New(n)
		if err != nil {
			continue
		}
		for k, v := range a.Constants() {
			out[k] = v
		}
		if c, ok := a.(actor.Closer); ok {
			c.Close()
		}
	}
	return out
}

// Hover describes the algorithm, variable or library function at pos.
// It returns nil when nothing is known about the name.
func (ix *Index) Hover(uri string, pos protocol.Position) *protocol.Hover {
	doc := ix.Document(uri)
	if doc == nil {
		return nil
	}
	line := lineAt(doc.Text, int(pos.Line))
	name := nameAt(line, int(pos.Character), ix.knownNames(doc))
	if name == "" {
		return nil
	}

	var text string
	switch {
	case findSymbol(doc.Algorithms, name) != nil:
		text = codeBlock(findSymbol(doc.Algorithms, name).Detail)
	case findSymbol(doc.Variables, name) != nil:
		text = codeBlock(findSymbol(doc.Variables, name).Detail)
	default:
		for _, f := range ix.actorFuncs(doc) {
			if f.Name == name {
				text = codeBlock(f.Signature())
				if f.Doc != "" {
					text += "\n" + f.Doc
				}
				break
			}
		}
	}
	if text == "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: text},
	}
}

// Definition returns the declaration lines of the algorithm or variable
// at pos.
func (ix *Index) Definition(uri string, pos protocol.Position) []protocol.Location {
	doc := ix.Document(uri)
	if doc == nil {
		return nil
	}
	name := nameAt(lineAt(doc.Text, int(pos.Line)), int(pos.Character), ix.knownNames(doc))
	if name == "" {
		return nil
	}
	var locations []protocol.Location
	for _, group := range [][]Symbol{doc.Algorithms, doc.Variables} {
		for _, sym := range group {
			if sym.Name != name {
				continue
			}
			locations = append(locations, declLocation(doc, sym))
		}
	}
	return locations
}

// References returns every whole-name occurrence of the name at pos.
func (ix *Index) References(uri string, pos protocol.Position) []protocol.Location {
	doc := ix.Document(uri)
	if doc == nil {
		return nil
	}
	name := nameAt(lineAt(doc.Text, int(pos.Line)), int(pos.Character), ix.knownNames(doc))
	if name == "" {
		return nil
	}
	var locations []protocol.Location
	for n, raw := range strings.Split(doc.Text, "\n") {
		line := []rune(strings.TrimRight(raw, "\r"))
		for _, o := range occurrences(stripComment(line), name) {
			locations = append(locations, protocol.Location{
				URI:   protocol.DocumentUri(doc.URI),
				Range: lineRange(n, o[0], o[1]),
			})
		}
	}
	return locations
}

func findSymbol(syms []Symbol, name string) *Symbol {
	for i := range syms {
		if syms[i].Name == name {
			return &syms[i]
		}
	}
	return nil
}

func declLocation(doc *Document, sym Symbol) protocol.Location {
	n := sym.Line - 1
	start, end := 0, 0
	if occ := occurrences(lineAt(doc.Text, n), sym.Name); len(occ) > 0 {
		start, end = occ[0][0], occ[0][1]
	}
	return protocol.Location{URI: protocol.DocumentUri(doc.URI), Range: lineRange(n, start, end)}
}

// stripComment blanks everything from the first "|" outside a string.
func stripComment(line []rune) []rune {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '|':
			return line[:i]
		}
	}
	return line
}

func codeBlock(s string) string {
	return "```\n" + s + "\n```"
}

func lineRange(line, start, end int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(start)},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(end)},
	}
}

// --- Diagnostics ---

// diagnostics converts the document's syntax error, if any. The range
// covers the offending token when it is known and the rest of the line
// otherwise.
func diagnostics(doc *Document) []protocol.Diagnostic {
	out := []protocol.Diagnostic{}
	if doc.Err == nil {
		return out
	}
	e := doc.Err
	n := max(e.Line-1, 0)
	line := lineAt(doc.Text, n)
	start := 0
	if e.Column > 0 {
		start = min(e.Column-1, len(line))
	}
	end := len(line)
	if e.Token != "" && e.Column > 0 {
		end = min(start+len([]rune(e.Token)), len(line))
	}
	if end < start {
		end = start
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return append(out, protocol.Diagnostic{
		Range:    lineRange(n, start, end),
		Severity: &severity,
		Source:   &source,
		Message:  e.Message,
	})
}

func boolPtr(b bool) *bool {
	return &b
}
