// Copyright © 2024 The pikelsp authors

package bridge

import (
	"encoding/json"

	"github.com/piketools/pikelsp/analysis"
)

// Analyze sub-operation names understood by the compiler's unified
// analyze method.
const (
	OpParse        = "parse"
	OpDiagnostics  = "diagnostics"
	OpIntrospect   = "introspect"
	OpReferences   = "references"
	OpDependencies = "dependencies"
	OpCompletion   = "completion_context"
)

// ParseResult is the outcome of a parse round-trip. Diagnostics are data:
// broken source still produces a ParseResult, never a Go error.
type ParseResult struct {
	Symbols     []analysis.Symbol     `json:"symbols"`
	Diagnostics []analysis.Diagnostic `json:"diagnostics"`
}

// Program is a compiled unit: an opaque compiler-side handle plus the
// symbol table extracted from it. Cached in the program tier keyed by
// source fingerprint.
type Program struct {
	Handle      string                `json:"handle"`
	Symbols     []analysis.Symbol     `json:"symbols"`
	Diagnostics []analysis.Diagnostic `json:"diagnostics"`
	SizeBytes   int64                 `json:"sizeBytes"`
}

// StdlibModule is a resolved standard-library module's symbol table.
// Negative results (Found=false) are cached too; stdlib membership does
// not change within a session.
type StdlibModule struct {
	Path    string            `json:"path"`
	Found   bool              `json:"found"`
	Symbols []analysis.Symbol `json:"symbols"`
}

// FileSource is one input to BatchParse.
type FileSource struct {
	Code     string `json:"code"`
	Filename string `json:"filename"`
}

// FileResult is one per-file outcome of BatchParse. A file that failed
// to compile carries Err; the batch continues regardless.
type FileResult struct {
	Filename    string                `json:"filename"`
	Symbols     []analysis.Symbol     `json:"symbols"`
	Diagnostics []analysis.Diagnostic `json:"diagnostics"`
	Err         *RPCError             `json:"error,omitempty"`
}

// BatchResult aggregates BatchParse outcomes, one per input file, in
// input order.
type BatchResult struct {
	Count   int          `json:"count"`
	Results []FileResult `json:"results"`
}

// DocumentAnalysis is the document-cache value: the last known symbols,
// diagnostics, occurrence index, and resolved dependencies for one
// document version.
type DocumentAnalysis struct {
	URI          string
	Fingerprint  string // content fingerprint the entry was computed for
	Version      int32
	Symbols      []analysis.Symbol
	Diagnostics  []analysis.Diagnostic
	Index        analysis.Index
	Dependencies []analysis.Dependency
}

// AnalyzeResult is the outcome of the unified analyze call. Each
// requested sub-operation either has a result or an entry in Failures;
// a sub-operation absent from both was not requested. A failed
// sub-operation never hides the others' results and never turns into a
// Go error.
type AnalyzeResult struct {
	results  map[string]json.RawMessage
	Failures map[string]RPCError
}

// Result returns the raw result for op. ok is false when op was not
// requested or failed.
func (r *AnalyzeResult) Result(op string) (json.RawMessage, bool) {
	raw, ok := r.results[op]
	return raw, ok
}

// Failed returns the failure recorded for op, if any.
func (r *AnalyzeResult) Failed(op string) (*RPCError, bool) {
	e, ok := r.Failures[op]
	if !ok {
		return nil, false
	}
	return &e, true
}

// Attempted reports whether op was attempted at all (succeeded or
// failed), distinguishing "not requested" from "requested and failed".
func (r *AnalyzeResult) Attempted(op string) bool {
	if _, ok := r.results[op]; ok {
		return true
	}
	_, ok := r.Failures[op]
	return ok
}

// Symbols decodes the parse sub-result's symbol list, if present.
func (r *AnalyzeResult) Symbols() ([]analysis.Symbol, error) {
	raw, ok := r.Result(OpParse)
	if !ok {
		return nil, nil
	}
	var shape struct {
		Symbols []analysis.Symbol `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &ValidationError{Method: "analyze", Field: OpParse, Reason: err.Error()}
	}
	return shape.Symbols, nil
}

// Diagnostics decodes the diagnostics sub-result, if present.
func (r *AnalyzeResult) Diagnostics() ([]analysis.Diagnostic, error) {
	raw, ok := r.Result(OpDiagnostics)
	if !ok {
		return nil, nil
	}
	var diags []analysis.Diagnostic
	if err := json.Unmarshal(raw, &diags); err != nil {
		return nil, &ValidationError{Method: "analyze", Field: OpDiagnostics, Reason: err.Error()}
	}
	return diags, nil
}

// References decodes the references sub-result (name → occurrence
// positions), if present.
func (r *AnalyzeResult) References() (map[string][]analysis.Position, error) {
	raw, ok := r.Result(OpReferences)
	if !ok {
		return nil, nil
	}
	var refs map[string][]analysis.Position
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, &ValidationError{Method: "analyze", Field: OpReferences, Reason: err.Error()}
	}
	return refs, nil
}

// Dependencies decodes the dependencies sub-result, if present.
func (r *AnalyzeResult) Dependencies() ([]analysis.Dependency, error) {
	raw, ok := r.Result(OpDependencies)
	if !ok {
		return nil, nil
	}
	var deps []analysis.Dependency
	if err := json.Unmarshal(raw, &deps); err != nil {
		return nil, &ValidationError{Method: "analyze", Field: OpDependencies, Reason: err.Error()}
	}
	return deps, nil
}

// TieredStats reports the three host-side cache tiers.
type TieredStats struct {
	Program  Stats `json:"program"`
	Stdlib   Stats `json:"stdlib"`
	Document Stats `json:"document"`
}
