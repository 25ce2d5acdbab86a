// Copyright © 2024 The pikelsp authors

package lsp

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/piketools/pikelsp/analysis"
	"github.com/piketools/pikelsp/bridge"
)

// testSource is the Pike document the handler tests run against. The
// stub analyzer returns testAnalysis for it, mimicking what the compiler
// backend would extract.
const testSource = `int counter = 1;
string greet() {
  return "hi " + counter;
}
import Stdio;
do_method("GET");
`

func testAnalysis(uri string) *bridge.DocumentAnalysis {
	symbols := []analysis.Symbol{
		{
			Name:     "counter",
			Kind:     analysis.SymVariable,
			Type:     "int",
			Doc:      "Running total of processed requests.",
			Position: analysis.Position{Line: 1, Column: 5},
		},
		{
			Name:     "greet",
			Kind:     analysis.SymMethod,
			Type:     "string",
			Position: analysis.Position{Line: 2, Column: 8},
		},
		{
			Name:     "Stdio",
			Kind:     analysis.SymImport,
			Position: analysis.Position{Line: 5, Column: 8},
		},
	}
	idx := analysis.NewIndex(symbols)
	idx.Merge(map[string][]analysis.Position{
		"counter": {{Line: 3, Column: 18}},
	})
	return &bridge.DocumentAnalysis{
		URI:     uri,
		Version: 1,
		Symbols: symbols,
		Diagnostics: []analysis.Diagnostic{
			{
				Severity: analysis.SeverityWarning,
				Message:  "counter shadows a global",
				Range: analysis.Range{
					Start: analysis.Position{Line: 1, Column: 5},
					End:   analysis.Position{Line: 1, Column: 12},
				},
			},
		},
		Index: idx,
		Dependencies: []analysis.Dependency{
			{
				Kind:     "import",
				Path:     "Protocols.HTTP",
				Resolved: "/pike/modules/Protocols/HTTP.pmod",
				Symbols: []analysis.Symbol{
					{Name: "do_method", Kind: analysis.SymMethod, Position: analysis.Position{Line: 12, Column: 5}},
				},
			},
		},
	}
}

// stubAnalyzer implements Analyzer with canned results.
type stubAnalyzer struct {
	mu           sync.Mutex
	running      bool
	analyses     map[string]*bridge.DocumentAnalysis
	cached       map[string]*bridge.DocumentAnalysis
	stdlib       map[string]*bridge.StdlibModule
	analyzeErr   error
	analyzeCalls int
	invalidated  []string
}

func newStub() *stubAnalyzer {
	return &stubAnalyzer{
		analyses: make(map[string]*bridge.DocumentAnalysis),
		cached:   make(map[string]*bridge.DocumentAnalysis),
		stdlib:   make(map[string]*bridge.StdlibModule),
	}
}

func (a *stubAnalyzer) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	return nil
}

func (a *stubAnalyzer) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

func (a *stubAnalyzer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *stubAnalyzer) Unavailable() bool { return false }

func (a *stubAnalyzer) AnalyzeDocument(_ context.Context, uri string, _ int32, _ string) (*bridge.DocumentAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyzeCalls++
	if a.analyzeErr != nil {
		return nil, a.analyzeErr
	}
	if res, ok := a.analyses[uri]; ok {
		return res, nil
	}
	return &bridge.DocumentAnalysis{URI: uri, Index: analysis.Index{}}, nil
}

func (a *stubAnalyzer) CachedDocument(uri string) (*bridge.DocumentAnalysis, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.cached[uri]
	return res, ok
}

func (a *stubAnalyzer) InvalidateDocument(uri string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidated = append(a.invalidated, uri)
}

func (a *stubAnalyzer) ResolveStdlib(_ context.Context, module string) (*bridge.StdlibModule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mod, ok := a.stdlib[module]; ok {
		return mod, nil
	}
	return &bridge.StdlibModule{Path: module, Found: false}, nil
}

func (a *stubAnalyzer) CacheStats() bridge.TieredStats { return bridge.TieredStats{} }

func (a *stubAnalyzer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.analyzeCalls
}

// testServer creates a server backed by the stub analyzer, with the test
// document pre-registered.
func testServer(stub *stubAnalyzer) *Server {
	s := New(WithAnalyzer(stub))
	s.exitFn = func(int) {}
	return s
}

const testURI = "file:///proj/main.pike"

func openTestDoc(s *Server, stub *stubAnalyzer) *Document {
	stub.mu.Lock()
	stub.analyses[testURI] = testAnalysis(testURI)
	stub.mu.Unlock()
	return s.docs.Open(testURI, 1, testSource)
}

// mockContext returns a minimal glsp.Context for testing.
func mockContext() *glsp.Context {
	return &glsp.Context{
		Notify: func(method string, params any) {},
	}
}

// capturingContext returns a context that captures published diagnostics.
func capturingContext() (*glsp.Context, *[]*protocol.PublishDiagnosticsParams) {
	var captured []*protocol.PublishDiagnosticsParams
	ctx := &glsp.Context{
		Notify: func(method string, params any) {
			if method == protocol.ServerTextDocumentPublishDiagnostics {
				captured = append(captured, params.(*protocol.PublishDiagnosticsParams))
			}
		},
	}
	return ctx, &captured
}

// methodRecorder returns a context recording every notification method.
func methodRecorder() (*glsp.Context, *[]string) {
	var methods []string
	ctx := &glsp.Context{
		Notify: func(method string, params any) {
			methods = append(methods, method)
		},
	}
	return ctx, &methods
}

// completionLabels extracts labels from a completion result.
func completionLabels(t *testing.T, result any) []string {
	t.Helper()
	require.NotNil(t, result, "completion result should not be nil")
	items, ok := result.([]protocol.CompletionItem)
	require.True(t, ok, "completion result should be []CompletionItem, got %T", result)
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}
	return labels
}

func positionParams(uri string, line, char protocol.UInteger) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     protocol.Position{Line: line, Character: char},
	}
}

// --- Lifecycle ---

func TestInitializeCapabilities(t *testing.T) {
	s := testServer(newStub())
	result, err := s.initialize(mockContext(), &protocol.InitializeParams{})
	require.NoError(t, err)

	res, ok := result.(protocol.InitializeResult)
	require.True(t, ok)
	require.NotNil(t, res.ServerInfo)
	assert.Equal(t, "pikelsp", res.ServerInfo.Name)

	syncOpts, ok := res.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	require.True(t, ok)
	require.NotNil(t, syncOpts.Change)
	assert.Equal(t, protocol.TextDocumentSyncKindFull, *syncOpts.Change)

	require.NotNil(t, res.Capabilities.CompletionProvider)
	assert.Contains(t, res.Capabilities.CompletionProvider.TriggerCharacters, ".")
}

func TestInitializedStartsBackend(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	require.NoError(t, s.initialized(mockContext(), &protocol.InitializedParams{}))
	require.Eventually(t, stub.Running, 2*time.Second, 10*time.Millisecond,
		"backend starts asynchronously after initialized")
}

func TestShutdownStopsBackend(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	require.NoError(t, stub.Start(context.Background()))
	require.NoError(t, s.shutdown(mockContext()))
	assert.False(t, stub.Running())
}

func TestExitUsesExitFn(t *testing.T) {
	s := testServer(newStub())
	var code = -1
	s.exitFn = func(c int) { code = c }
	require.NoError(t, s.exit(mockContext()))
	assert.Equal(t, 0, code)
}

// --- Document sync ---

func TestDidOpenPublishesDiagnostics(t *testing.T) {
	stub := newStub()
	stub.analyses[testURI] = testAnalysis(testURI)
	s := testServer(stub)

	ctx, captured := capturingContext()
	err := s.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI: testURI, LanguageID: "pike", Version: 1, Text: testSource,
		},
	})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	pub := (*captured)[0]
	assert.Equal(t, testURI, pub.URI)
	require.Len(t, pub.Diagnostics, 1)
	assert.Equal(t, "counter shadows a global", pub.Diagnostics[0].Message)
	require.NotNil(t, pub.Diagnostics[0].Severity)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *pub.Diagnostics[0].Severity)
}

func TestDidChangeInvalidatesAndReanalyzes(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	err := s.textDocumentDidChange(mockContext(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI},
			Version:                2,
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEventWhole{Text: "int edited = 2;"},
		},
	})
	require.NoError(t, err)

	doc := s.docs.Get(testURI)
	require.NotNil(t, doc)
	assert.Equal(t, "int edited = 2;", doc.Content)
	assert.Equal(t, int32(2), doc.Version)
	assert.Nil(t, doc.Analysis(), "cached analysis cleared on change")
	stub.mu.Lock()
	assert.Contains(t, stub.invalidated, testURI)
	stub.mu.Unlock()

	// The debounced re-analysis lands without further requests.
	require.Eventually(t, func() bool { return stub.calls() >= 1 },
		2*time.Second, 25*time.Millisecond)
}

func TestDidSavePublishesImmediately(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	ctx, captured := capturingContext()
	err := s.textDocumentDidSave(ctx, &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)
	require.Len(t, *captured, 1)
	assert.Len(t, (*captured)[0].Diagnostics, 1)
}

func TestDidCloseClearsDiagnostics(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	ctx, captured := capturingContext()
	err := s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	assert.Empty(t, (*captured)[0].Diagnostics, "closing clears the file's diagnostics")
	assert.Nil(t, s.docs.Get(testURI))
}

// --- Features ---

func TestHoverOnMethod(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	hover, err := s.textDocumentHover(mockContext(), &protocol.HoverParams{
		TextDocumentPositionParams: positionParams(testURI, 1, 7),
	})
	require.NoError(t, err)
	require.NotNil(t, hover)

	content, ok := hover.Contents.(protocol.MarkupContent)
	require.True(t, ok)
	assert.Contains(t, content.Value, "**method** `greet`")
	assert.Contains(t, content.Value, "```pike")
	assert.Contains(t, content.Value, "string greet")
}

func TestHoverOnVariableOccurrence(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	// Over the use of counter inside greet, not its definition.
	hover, err := s.textDocumentHover(mockContext(), &protocol.HoverParams{
		TextDocumentPositionParams: positionParams(testURI, 2, 19),
	})
	require.NoError(t, err)
	require.NotNil(t, hover)

	content := hover.Contents.(protocol.MarkupContent)
	assert.Contains(t, content.Value, "**variable** `counter`")
	assert.Contains(t, content.Value, "Running total of processed requests.")
}

func TestHoverOnNothing(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	hover, err := s.textDocumentHover(mockContext(), &protocol.HoverParams{
		TextDocumentPositionParams: positionParams(testURI, 3, 0),
	})
	require.NoError(t, err)
	assert.Nil(t, hover)
}

func TestDefinitionWithinDocument(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	result, err := s.textDocumentDefinition(mockContext(), &protocol.DefinitionParams{
		TextDocumentPositionParams: positionParams(testURI, 2, 19),
	})
	require.NoError(t, err)

	loc, ok := result.(protocol.Location)
	require.True(t, ok)
	assert.Equal(t, testURI, loc.URI)
	assert.Equal(t, protocol.UInteger(0), loc.Range.Start.Line)
	assert.Equal(t, protocol.UInteger(4), loc.Range.Start.Character)
}

func TestDefinitionThroughDependency(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	result, err := s.textDocumentDefinition(mockContext(), &protocol.DefinitionParams{
		TextDocumentPositionParams: positionParams(testURI, 5, 2),
	})
	require.NoError(t, err)

	loc, ok := result.(protocol.Location)
	require.True(t, ok, "do_method resolves through the import's symbol table")
	assert.Equal(t, "file:///pike/modules/Protocols/HTTP.pmod", loc.URI)
	assert.Equal(t, protocol.UInteger(11), loc.Range.Start.Line)
}

func TestReferences(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	locations, err := s.textDocumentReferences(mockContext(), &protocol.ReferenceParams{
		TextDocumentPositionParams: positionParams(testURI, 0, 6),
	})
	require.NoError(t, err)

	require.Len(t, locations, 2, "definition plus one occurrence")
	assert.Equal(t, testURI, locations[0].URI)
	assert.Equal(t, protocol.UInteger(4), locations[0].Range.Start.Character)
	assert.Equal(t, protocol.UInteger(2), locations[1].Range.Start.Line)
}

func TestDocumentSymbolOutline(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	result, err := s.textDocumentDocumentSymbol(mockContext(), &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)

	symbols, ok := result.([]protocol.DocumentSymbol)
	require.True(t, ok)
	require.Len(t, symbols, 2, "imports are not part of the outline")
	assert.Equal(t, "counter", symbols[0].Name)
	assert.Equal(t, protocol.SymbolKindVariable, symbols[0].Kind)
	require.NotNil(t, symbols[0].Detail)
	assert.Equal(t, "int", *symbols[0].Detail)
	assert.Equal(t, "greet", symbols[1].Name)
	assert.Equal(t, protocol.SymbolKindMethod, symbols[1].Kind)
}

func TestCompletionSymbolsAndKeywords(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	openTestDoc(s, stub)

	result, err := s.textDocumentCompletion(mockContext(), &protocol.CompletionParams{
		TextDocumentPositionParams: positionParams(testURI, 0, 0),
	})
	require.NoError(t, err)

	labels := completionLabels(t, result)
	assert.Contains(t, labels, "counter")
	assert.Contains(t, labels, "greet")
	assert.Contains(t, labels, "do_method", "dependency symbols are offered")
	assert.Contains(t, labels, "foreach", "keywords are offered")
}

func TestCompletionStdlibMembers(t *testing.T) {
	stub := newStub()
	stub.stdlib["Stdio"] = &bridge.StdlibModule{
		Path:  "Stdio",
		Found: true,
		Symbols: []analysis.Symbol{
			{Name: "File", Kind: analysis.SymClass},
			{Name: "werror", Kind: analysis.SymMethod, Type: "int(string)"},
		},
	}
	s := testServer(stub)
	s.docs.Open("file:///proj/io.pike", 1, "Stdio.")

	result, err := s.textDocumentCompletion(mockContext(), &protocol.CompletionParams{
		TextDocumentPositionParams: positionParams("file:///proj/io.pike", 0, 6),
	})
	require.NoError(t, err)

	labels := completionLabels(t, result)
	assert.ElementsMatch(t, []string{"File", "werror"}, labels,
		"after Module. only that module's members are offered")
}

func TestCompletionUnknownStdlibModule(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	s.docs.Open("file:///proj/io.pike", 1, "Bogus.")

	result, err := s.textDocumentCompletion(mockContext(), &protocol.CompletionParams{
		TextDocumentPositionParams: positionParams("file:///proj/io.pike", 0, 6),
	})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestCompletionUnopenedDocument(t *testing.T) {
	s := testServer(newStub())
	result, err := s.textDocumentCompletion(mockContext(), &protocol.CompletionParams{
		TextDocumentPositionParams: positionParams("file:///nope.pike", 0, 0),
	})
	require.NoError(t, err)
	assert.Nil(t, result)
}

// --- Degraded operation ---

func TestBackendDownFallsBackToCachedAnalysis(t *testing.T) {
	stub := newStub()
	stub.analyzeErr = &bridge.ProcessError{Op: "exit"}
	stub.cached[testURI] = testAnalysis(testURI)
	s := testServer(stub)
	s.docs.Open(testURI, 1, testSource)

	ctx, methods := methodRecorder()
	result, err := s.textDocumentDocumentSymbol(ctx, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)

	symbols, ok := result.([]protocol.DocumentSymbol)
	require.True(t, ok, "cached analysis keeps the outline alive while the backend is down")
	assert.Len(t, symbols, 2)

	// A second request must not repeat the outage warning.
	_, err = s.textDocumentDocumentSymbol(ctx, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)

	warnings := 0
	for _, m := range *methods {
		if m == protocol.ServerWindowShowMessage {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings, "outage is reported once")
}

func TestBackendDownWithoutCacheReturnsNothing(t *testing.T) {
	stub := newStub()
	stub.analyzeErr = &bridge.TimeoutError{Method: "analyze", Elapsed: time.Second}
	s := testServer(stub)
	s.docs.Open(testURI, 1, testSource)

	result, err := s.textDocumentDocumentSymbol(mockContext(), &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEnsureAnalysisReusesDocumentResult(t *testing.T) {
	stub := newStub()
	s := testServer(stub)
	doc := openTestDoc(s, stub)

	for i := 0; i < 3; i++ {
		_, err := s.textDocumentHover(mockContext(), &protocol.HoverParams{
			TextDocumentPositionParams: positionParams(testURI, 1, 7),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, stub.calls(), "analysis is attached to the document after the first request")
	assert.NotNil(t, doc.Analysis())
}

// --- Helpers under test ---

func TestModuleBeforeDot(t *testing.T) {
	t.Run("dot", func(t *testing.T) {
		assert.Equal(t, "Stdio", moduleBeforeDot("Stdio.", 0, 6))
	})
	t.Run("arrow", func(t *testing.T) {
		assert.Equal(t, "Stdio", moduleBeforeDot("Stdio->", 0, 7))
	})
	t.Run("dotted path", func(t *testing.T) {
		assert.Equal(t, "Protocols.HTTP", moduleBeforeDot("Protocols.HTTP.", 0, 15))
	})
	t.Run("lowercase is not a module", func(t *testing.T) {
		assert.Equal(t, "", moduleBeforeDot("obj.", 0, 4))
	})
	t.Run("no dot", func(t *testing.T) {
		assert.Equal(t, "", moduleBeforeDot("Stdio", 0, 5))
	})
}

func TestWordAtPosition(t *testing.T) {
	content := "int counter = 1;\nreturn counter;"
	t.Run("middle of word", func(t *testing.T) {
		assert.Equal(t, "counter", wordAtPosition(content, 0, 6))
	})
	t.Run("start of word", func(t *testing.T) {
		assert.Equal(t, "counter", wordAtPosition(content, 0, 4))
	})
	t.Run("end of word", func(t *testing.T) {
		assert.Equal(t, "counter", wordAtPosition(content, 1, 14))
	})
	t.Run("on punctuation", func(t *testing.T) {
		assert.Equal(t, "", wordAtPosition(content, 0, 12))
	})
	t.Run("out of bounds", func(t *testing.T) {
		assert.Equal(t, "", wordAtPosition(content, -1, 0))
		assert.Equal(t, "", wordAtPosition(content, 9, 0))
	})
}

func TestPositionConversion(t *testing.T) {
	t.Run("1-based to 0-based", func(t *testing.T) {
		pos := pikeToLSPPosition(analysis.Position{Line: 1, Column: 1})
		assert.Equal(t, protocol.UInteger(0), pos.Line)
		assert.Equal(t, protocol.UInteger(0), pos.Character)
	})
	t.Run("zero values clamp", func(t *testing.T) {
		pos := pikeToLSPPosition(analysis.Position{})
		assert.Equal(t, protocol.UInteger(0), pos.Line)
		assert.Equal(t, protocol.UInteger(0), pos.Character)
	})
	t.Run("range without end", func(t *testing.T) {
		r := pikeToLSPRange(analysis.Range{Start: analysis.Position{Line: 2, Column: 3}}, 5)
		assert.Equal(t, protocol.UInteger(1), r.Start.Line)
		assert.Equal(t, protocol.UInteger(2), r.Start.Character)
		assert.Equal(t, protocol.UInteger(7), r.End.Character)
	})
	t.Run("range with end", func(t *testing.T) {
		r := pikeToLSPRange(analysis.Range{
			Start: analysis.Position{Line: 2, Column: 3},
			End:   analysis.Position{Line: 2, Column: 9},
		}, 5)
		assert.Equal(t, protocol.UInteger(8), r.End.Character)
	})
}

func TestURIConversion(t *testing.T) {
	assert.Equal(t, "/proj/main.pike", uriToPath("file:///proj/main.pike"))
	assert.Equal(t, "file:///proj/main.pike", pathToURI("/proj/main.pike"))
	assert.Equal(t, "rel/main.pike", pathToURI("rel/main.pike"))
}

func TestDocumentStore(t *testing.T) {
	t.Run("Open and Get", func(t *testing.T) {
		store := NewDocumentStore()
		doc := store.Open(testURI, 1, "int x;")
		require.NotNil(t, doc)
		assert.Equal(t, "int x;", doc.Content)
		assert.Same(t, doc, store.Get(testURI))
		assert.Nil(t, store.Get("file:///other.pike"))
	})
	t.Run("Change clears analysis", func(t *testing.T) {
		store := NewDocumentStore()
		doc := store.Open(testURI, 1, "int x;")
		doc.mu.Lock()
		doc.analysis = testAnalysis(testURI)
		doc.mu.Unlock()

		changed := store.Change(testURI, 2, "int y;")
		assert.Equal(t, "int y;", changed.Content)
		assert.Equal(t, int32(2), changed.Version)
		assert.Nil(t, changed.Analysis())
	})
	t.Run("Close", func(t *testing.T) {
		store := NewDocumentStore()
		store.Open(testURI, 1, "int x;")
		store.Close(testURI)
		assert.Nil(t, store.Get(testURI))
	})
	t.Run("All", func(t *testing.T) {
		store := NewDocumentStore()
		store.Open("file:///a.pike", 1, "")
		store.Open("file:///b.pike", 1, "")
		assert.Len(t, store.All(), 2)
	})
}

func TestBuildHoverContentWrapsDoc(t *testing.T) {
	long := strings.Repeat("word ", 40)
	sym := &analysis.Symbol{Name: "f", Kind: analysis.SymMethod, Doc: strings.TrimSpace(long)}
	content := buildHoverContent(sym)
	for _, line := range strings.Split(content, "\n") {
		assert.LessOrEqual(t, len(line), hoverDocWidth)
	}
}
