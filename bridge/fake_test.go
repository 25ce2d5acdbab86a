// Copyright © 2024 The pikelsp authors

package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/piketools/pikelsp/analysis"
)

// fakeCompiler is an in-memory Transport speaking the analyze-server
// wire protocol, with canned analysis for the Pike snippets the tests
// use. It counts requests per method so tests can assert on cache hits
// and deduplication, and can simulate a crash with kill.
type fakeCompiler struct {
	mu        sync.Mutex
	running   bool
	failStart bool
	onExit    func(error)
	delay     time.Duration

	reqR  *io.PipeReader
	reqW  *io.PipeWriter
	respR *io.PipeReader
	respW *io.PipeWriter

	calls      map[string]int
	readerGets int
}

func newFakeCompiler() *fakeCompiler {
	return &fakeCompiler{calls: make(map[string]int)}
}

func (f *fakeCompiler) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return &ProcessError{Op: "spawn", Err: errors.New("refused")}
	}
	if f.running {
		return nil
	}
	f.reqR, f.reqW = io.Pipe()
	f.respR, f.respW = io.Pipe()
	f.running = true
	go f.serve(f.reqR, f.respW)
	return nil
}

func (f *fakeCompiler) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil
	}
	f.running = false
	_ = f.reqR.Close()
	_ = f.respW.Close()
	return nil
}

// kill simulates an unexpected subprocess death: streams break and the
// exit listener fires, exactly as when the real process crashes.
func (f *fakeCompiler) kill() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	reqR, respW, fn := f.reqR, f.respW, f.onExit
	f.mu.Unlock()

	reqR.CloseWithError(io.ErrClosedPipe)
	respW.CloseWithError(io.ErrClosedPipe)
	if fn != nil {
		fn(errors.New("killed"))
	}
}

func (f *fakeCompiler) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeCompiler) Writer() io.Writer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqW
}

// Reader is fetched exactly once per codec attach, so the counter
// tracks how many ReadLoops were wired to this transport.
func (f *fakeCompiler) Reader() io.Reader {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readerGets++
	return f.respR
}

func (f *fakeCompiler) readerCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readerGets
}

func (f *fakeCompiler) OnExit(fn func(error)) {
	f.mu.Lock()
	f.onExit = fn
	f.mu.Unlock()
}

func (f *fakeCompiler) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeCompiler) setDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *fakeCompiler) setFailStart(v bool) {
	f.mu.Lock()
	f.failStart = v
	f.mu.Unlock()
}

func (f *fakeCompiler) serve(r *io.PipeReader, w *io.PipeWriter) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.calls[req.Method]++
		delay := f.delay
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}

		env := map[string]any{"id": req.ID}
		result, rpcErr := f.handle(req.Method, req.Params)
		if rpcErr != nil {
			env["error"] = rpcErr
		} else {
			env["result"] = result
		}
		line, err := json.Marshal(env)
		if err != nil {
			continue
		}
		// A write after kill fails with a pipe error; that is the point.
		_, _ = w.Write(append(line, '\n'))
	}
}

func (f *fakeCompiler) handle(method string, raw json.RawMessage) (any, *RPCError) {
	var params struct {
		Code     string       `json:"code"`
		Filename string       `json:"filename"`
		Include  []string     `json:"include"`
		Files    []FileSource `json:"files"`
		Module   string       `json:"module"`
		Path     string       `json:"path"`
	}
	_ = json.Unmarshal(raw, &params)

	switch method {
	case "parse":
		syms, diags := fakeParse(params.Code)
		return map[string]any{"symbols": syms, "diagnostics": diags}, nil

	case "tokenize":
		var tokens []analysis.Token
		for i, word := range strings.Fields(params.Code) {
			tokens = append(tokens, analysis.Token{
				Kind:     "word",
				Text:     word,
				Position: analysis.Position{Line: 1, Column: i + 1},
			})
		}
		return map[string]any{"tokens": tokens}, nil

	case "compile":
		syms, diags := fakeParse(params.Code)
		return map[string]any{
			"handle":      "prog-" + params.Filename,
			"symbols":     syms,
			"diagnostics": diags,
			"sizeBytes":   len(params.Code) * 2,
		}, nil

	case "analyze":
		return fakeAnalyze(params.Code, params.Include), nil

	case "batch_parse":
		results := make([]map[string]any, 0, len(params.Files))
		for _, file := range params.Files {
			syms, diags := fakeParse(file.Code)
			entry := map[string]any{
				"filename":    file.Filename,
				"symbols":     syms,
				"diagnostics": diags,
			}
			if hasErrors(diags) {
				entry["error"] = &RPCError{Code: 100, Message: "compilation failed"}
			}
			results = append(results, entry)
		}
		return map[string]any{"count": len(params.Files), "results": results}, nil

	case "resolve_stdlib":
		if params.Module == "Stdio" {
			return map[string]any{
				"path":  "Stdio",
				"found": true,
				"symbols": []analysis.Symbol{
					{Name: "File", Kind: analysis.SymClass, Position: analysis.Position{Line: 1, Column: 1}},
					{Name: "werror", Kind: analysis.SymMethod, Type: "int(string)", Position: analysis.Position{Line: 2, Column: 1}},
					{Name: "read_file", Kind: analysis.SymMethod, Type: "string(string)", Position: analysis.Position{Line: 3, Column: 1}},
				},
			}, nil
		}
		return map[string]any{"path": params.Module, "found": false}, nil

	case "resolve":
		if strings.HasPrefix(params.Path, "Missing") {
			return map[string]any{"resolved": nil}, nil
		}
		return map[string]any{"resolved": "/pike/modules/" + params.Path}, nil

	case "get_inherited":
		return map[string]any{"symbols": []analysis.Symbol{
			{Name: "create", Kind: analysis.SymMethod, Position: analysis.Position{Line: 1, Column: 1}},
		}}, nil

	case "get_version":
		return map[string]any{"version": "Pike v8.0 release 1738"}, nil

	case "get_cache_stats":
		return map[string]any{"programs": 2, "modules": 5}, nil

	case "set_debug", "invalidate_cache":
		return map[string]any{"ok": true}, nil
	}
	return nil, &RPCError{Code: -32601, Message: "unknown method: " + method}
}

var (
	reMethod = regexp.MustCompile(`^\s*(int|string|void|float|mixed)\s+(\w+)\s*\(`)
	reVar    = regexp.MustCompile(`^\s*(int|string|float|mixed)\s+(\w+)\s*(=|;)`)
	reClass  = regexp.MustCompile(`^\s*class\s+(\w+)`)
	reImport = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
)

// fakeParse is a toy symbol extractor: enough Pike to cover the shapes
// the bridge tests exercise, nothing more.
func fakeParse(code string) ([]analysis.Symbol, []analysis.Diagnostic) {
	var syms []analysis.Symbol
	var diags []analysis.Diagnostic
	for i, line := range strings.Split(code, "\n") {
		ln := i + 1
		switch {
		case reMethod.MatchString(line):
			m := reMethod.FindStringSubmatch(line)
			syms = append(syms, analysis.Symbol{
				Name:     m[2],
				Kind:     analysis.SymMethod,
				Type:     m[1],
				Position: analysis.Position{Line: ln, Column: strings.Index(line, m[2]) + 1},
			})
		case reVar.MatchString(line):
			m := reVar.FindStringSubmatch(line)
			syms = append(syms, analysis.Symbol{
				Name:     m[2],
				Kind:     analysis.SymVariable,
				Type:     m[1],
				Position: analysis.Position{Line: ln, Column: strings.Index(line, m[2]) + 1},
			})
		case reClass.MatchString(line):
			m := reClass.FindStringSubmatch(line)
			syms = append(syms, analysis.Symbol{
				Name:     m[1],
				Kind:     analysis.SymClass,
				Position: analysis.Position{Line: ln, Column: strings.Index(line, m[1]) + 1},
			})
		}
		if strings.Contains(line, "{{{") {
			diags = append(diags, analysis.Diagnostic{
				Severity: analysis.SeverityError,
				Message:  "syntax error",
				Range: analysis.Range{
					Start: analysis.Position{Line: ln, Column: 1},
					End:   analysis.Position{Line: ln, Column: len(line) + 1},
				},
				Source: "pike-compiler",
			})
		}
	}
	return syms, diags
}

func hasErrors(diags []analysis.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == analysis.SeverityError {
			return true
		}
	}
	return false
}

// fakeAnalyze mirrors the compiler's unified analyze envelope: one
// sub-result or failure per requested op, partial failures isolated.
func fakeAnalyze(code string, include []string) map[string]any {
	syms, diags := fakeParse(code)
	result := map[string]any{}
	failures := map[string]any{}
	for _, op := range include {
		switch op {
		case OpParse:
			result[OpParse] = map[string]any{"symbols": syms}
		case OpDiagnostics:
			result[OpDiagnostics] = diags
		case OpReferences:
			result[OpReferences] = fakeReferences(code, syms)
		case OpDependencies:
			result[OpDependencies] = fakeDependencies(code)
		case OpIntrospect:
			if strings.Contains(code, "Missing") {
				failures[OpIntrospect] = &RPCError{Code: 104, Message: "cannot resolve Missing"}
			} else {
				result[OpIntrospect] = map[string]any{"ok": true}
			}
		case OpCompletion:
			result[OpCompletion] = map[string]any{"context": "expression"}
		}
	}
	return map[string]any{"result": result, "failures": failures}
}

// fakeReferences records every textual occurrence of each symbol name.
func fakeReferences(code string, syms []analysis.Symbol) map[string][]analysis.Position {
	refs := make(map[string][]analysis.Position)
	lines := strings.Split(code, "\n")
	for _, sym := range syms {
		for i, line := range lines {
			col := 0
			for {
				idx := strings.Index(line[col:], sym.Name)
				if idx < 0 {
					break
				}
				col += idx
				refs[sym.Name] = append(refs[sym.Name], analysis.Position{Line: i + 1, Column: col + 1})
				col += len(sym.Name)
			}
		}
	}
	return refs
}

func fakeDependencies(code string) []analysis.Dependency {
	var deps []analysis.Dependency
	for _, line := range strings.Split(code, "\n") {
		m := reImport.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		dep := analysis.Dependency{Kind: "import", Path: m[1]}
		if !strings.HasPrefix(m[1], "Missing") {
			dep.Resolved = "/pike/modules/" + m[1] + ".pmod"
			dep.Symbols = []analysis.Symbol{
				{Name: "helper", Kind: analysis.SymMethod, Position: analysis.Position{Line: 1, Column: 1}},
			}
		}
		deps = append(deps, dep)
	}
	return deps
}
