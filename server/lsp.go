package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/kestrel/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "kestrel-lsp"

// keywordDocs is shown on hover and in completion details.
var keywordDocs = map[string]string{
	"make":    "`make <name> [be <expr>] [do <body>]`\n\nSets a variable, stores a procedure, or both.",
	"be":      "Introduces the initial value in `make`.",
	"do":      "Introduces a body. Bodies run until the next bare procedure call or the end of the script.",
	"change":  "`change <name> to <expr>`\n\nAssigns a variable, creating it if needed.",
	"to":      "Introduces the new value in `change`.",
	"say":     "`say <expr> {<expr>}`\n\nPrints the values joined with no separator. Variables after the first item are written `(x)`.",
	"if":      "`if <expr> [do] <body>`\n\nRuns the body when the condition is a nonzero number.",
	"repeat":  "`repeat <expr> times [do] <body>`\n\nRuns the body a fixed number of times. Text or non-positive counts run it zero times.",
	"times":   "Ends the count in `repeat`.",
	"forever": "`forever [do] <body>`\n\nPolls one key, runs the body, pauses briefly, and repeats until interrupted.",
	"pressed": "`pressed \"<key>\"`\n\n1 when the key polled by the enclosing `forever` matches, else 0. `pressed \"any\"` is the key name itself, or empty text.",
}

// LspServer provides editor features for Kestrel scripts.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → analyzed document

	handler protocol.Handler
	server  *glspserver.Server
	version string
	log     commonlog.Logger
}

// NewLSP creates a new LSP server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: version,
		log:     commonlog.GetLogger("kestrel.lsp"),
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
		TextDocumentFormatting: s.textDocumentFormatting,
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
	s.log.Info("Kestrel LSP initializing")

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
	capabilities.DocumentFormattingProvider = true

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
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// --- Document synchronization ---

func (s *LspServer) open(uri protocol.DocumentUri, text string) *document {
	doc := analyze(text)
	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
	return doc
}

func (s *LspServer) document(uri protocol.DocumentUri) *document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[string(uri)]
}

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc := s.open(uri, params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.open(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	return doc.complete(extractPrefix(doc.text, params.Position)), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return doc.hover(word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc := s.document(uri)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	sym, ok := doc.symbols[word]
	if !ok {
		return nil, nil
	}
	def, ok := sym.definition()
	if !ok {
		return nil, nil
	}
	return []protocol.Location{{URI: uri, Range: lspRange(doc.text, def.start, def.end)}}, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	doc := s.document(uri)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	sym, ok := doc.symbols[word]
	if !ok {
		return nil, nil
	}
	var locations []protocol.Location
	for _, o := range sym.occs {
		if o.def && !params.Context.IncludeDeclaration {
			continue
		}
		locations = append(locations, protocol.Location{URI: uri, Range: lspRange(doc.text, o.start, o.end)})
	}
	return locations, nil
}

func (s *LspServer) textDocumentFormatting(ctx *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	return doc.format(), nil
}

// --- Document-backed logic ---

func (d *document) complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	// Keywords
	keywords := make([]string, 0, len(compiler.Keywords))
	for kw := range compiler.Keywords {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		if strings.HasPrefix(kw, lowerPrefix) {
			kind := protocol.CompletionItemKindKeyword
			detail := "keyword"
			kwCopy := kw
			items = append(items, protocol.CompletionItem{
				Label:      kw,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &kwCopy,
			})
		}
	}

	// Declared names
	for _, sym := range d.names() {
		if !strings.HasPrefix(strings.ToLower(sym.name), lowerPrefix) || sym.name == prefix {
			continue
		}
		kind := protocol.CompletionItemKindVariable
		detail := "variable"
		switch {
		case sym.kind == symbolProcedure:
			kind = protocol.CompletionItemKindFunction
			detail = "procedure"
		case sym.kind == symbolVariable|symbolProcedure:
			detail = "variable and procedure"
		}
		nameCopy := sym.name
		items = append(items, protocol.CompletionItem{
			Label:      sym.name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (d *document) hover(word string) *protocol.Hover {
	var b strings.Builder

	if tt, ok := compiler.Keywords[word]; ok && tt.IsKeyword() {
		fmt.Fprintf(&b, "**%s** (keyword)\n\n%s", word, keywordDocs[word])
	} else {
		sym, ok := d.symbols[word]
		if !ok || sym.kind == 0 {
			return nil
		}
		fmt.Fprintf(&b, "**%s**", sym.name)
		if sym.kind&symbolVariable != 0 {
			b.WriteString("\n\nvariable")
			if sym.value != nil {
				fmt.Fprintf(&b, ", first set to `%s`", compiler.FormatExpr(sym.value))
			}
		}
		if sym.kind&symbolProcedure != 0 {
			b.WriteString("\n\nprocedure:\n\n```kestrel\n")
			b.WriteString(compiler.FormatStatements(sym.body))
			b.WriteString("```")
		}
		uses := 0
		for _, o := range sym.occs {
			if !o.def {
				uses++
			}
		}
		fmt.Fprintf(&b, "\n\n%d uses", uses)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// format replaces the whole document with its canonical form, comments
// included. Documents with parse diagnostics are left alone.
func (d *document) format() []protocol.TextEdit {
	formatted, err := compiler.Format(d.text)
	if err != nil {
		return nil
	}
	if formatted == d.text {
		return []protocol.TextEdit{}
	}
	return []protocol.TextEdit{{
		Range:   lspRange(d.text, 0, len(d.text)),
		NewText: formatted,
	}}
}

// --- Diagnostics ---

func (d *document) diagnostics() []protocol.Diagnostic {
	source := lspName
	diagnostics := []protocol.Diagnostic{}
	add := func(list []compiler.Diagnostic, severity protocol.DiagnosticSeverity) {
		for _, diag := range list {
			sev := severity
			start := diag.Pos.Offset
			end := start + wordLen(d.text, start)
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range:    lspRange(d.text, start, end),
				Severity: &sev,
				Source:   &source,
				Message:  diag.Message,
			})
		}
	}
	add(d.diags, protocol.DiagnosticSeverityWarning)
	add(d.warnings, protocol.DiagnosticSeverityInformation)
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	diagnostics := doc.diagnostics()
	s.log.Debugf("%s: %d diagnostics", uri, len(diagnostics))
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// wordLen returns the length of the token-like run at offset, at least 1
// unless offset is at the end of text.
func wordLen(text string, offset int) int {
	if offset >= len(text) {
		return 0
	}
	n := 0
	for offset+n < len(text) && isIdentChar(text[offset+n]) {
		n++
	}
	if n == 0 {
		return 1
	}
	return n
}

// --- Text extraction helpers ---

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	col := byteOffset(text, pos)

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(text[start-1]) {
		start--
	}
	if start == col {
		return ""
	}
	return text[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	col := byteOffset(text, pos)

	// Find start
	start := col
	for start > 0 && isIdentChar(text[start-1]) {
		start--
	}

	// Find end
	end := col
	for end < len(text) && isIdentChar(text[end]) {
		end++
	}

	if start == end {
		return ""
	}
	return text[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
