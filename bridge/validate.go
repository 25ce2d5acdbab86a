// Copyright © 2024 The pikelsp authors

package bridge

import (
	"bytes"
	"encoding/json"
)

// The compiler's wire contract: a computed-but-empty field is an
// explicit [] or null under its key; a missing key means the field was
// not computed. The decoders here enforce that distinction so an absent
// value is never silently treated as a valid empty result.

var nullToken = []byte("null")

// decodeArray decodes a raw array field into dst. A nil raw (missing
// key) is an error when required; an explicit null decodes as empty.
func decodeArray(method, field string, raw json.RawMessage, required bool, dst any) error {
	if raw == nil {
		if required {
			return &ValidationError{Method: method, Field: field, Reason: "missing"}
		}
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), nullToken) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Method: method, Field: field, Reason: err.Error()}
	}
	return nil
}

// decodeParseResult validates and decodes a parse (or per-file batch)
// payload. Both fields are required: the compiler always emits them,
// empty or not.
func decodeParseResult(method string, raw json.RawMessage) (*ParseResult, error) {
	var shape struct {
		Symbols     json.RawMessage `json:"symbols"`
		Diagnostics json.RawMessage `json:"diagnostics"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &ValidationError{Method: method, Field: "result", Reason: err.Error()}
	}
	res := &ParseResult{}
	if err := decodeArray(method, "symbols", shape.Symbols, true, &res.Symbols); err != nil {
		return nil, err
	}
	if err := decodeArray(method, "diagnostics", shape.Diagnostics, true, &res.Diagnostics); err != nil {
		return nil, err
	}
	return res, nil
}

// decodeAnalyzeResult validates the unified analyze envelope. The
// result and failures objects must both be present (possibly empty);
// sub-operation payloads stay raw until a typed accessor decodes them.
func decodeAnalyzeResult(raw json.RawMessage) (*AnalyzeResult, error) {
	var shape struct {
		Result   map[string]json.RawMessage `json:"result"`
		Failures map[string]RPCError        `json:"failures"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &ValidationError{Method: "analyze", Field: "result", Reason: err.Error()}
	}
	if shape.Result == nil {
		return nil, &ValidationError{Method: "analyze", Field: "result", Reason: "missing"}
	}
	if shape.Failures == nil {
		return nil, &ValidationError{Method: "analyze", Field: "failures", Reason: "missing"}
	}
	return &AnalyzeResult{results: shape.Result, Failures: shape.Failures}, nil
}

// decodeBatchResult validates a batch_parse payload. Per-file entries
// carry either symbols+diagnostics or an error object; a file's failure
// never aborts the batch.
func decodeBatchResult(raw json.RawMessage) (*BatchResult, error) {
	var shape struct {
		Count   *int              `json:"count"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &ValidationError{Method: "batch_parse", Field: "result", Reason: err.Error()}
	}
	if shape.Count == nil {
		return nil, &ValidationError{Method: "batch_parse", Field: "count", Reason: "missing"}
	}
	if len(shape.Results) != *shape.Count {
		return nil, &ValidationError{Method: "batch_parse", Field: "results", Reason: "count mismatch"}
	}
	res := &BatchResult{Count: *shape.Count}
	for _, entry := range shape.Results {
		var fr FileResult
		if err := json.Unmarshal(entry, &fr); err != nil {
			return nil, &ValidationError{Method: "batch_parse", Field: "results", Reason: err.Error()}
		}
		res.Results = append(res.Results, fr)
	}
	return res, nil
}

// decodeStdlibModule validates a resolve_stdlib payload. Found must be
// explicit; a found module must carry its symbols key.
func decodeStdlibModule(raw json.RawMessage) (*StdlibModule, error) {
	var shape struct {
		Path    string          `json:"path"`
		Found   *bool           `json:"found"`
		Symbols json.RawMessage `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &ValidationError{Method: "resolve_stdlib", Field: "result", Reason: err.Error()}
	}
	if shape.Found == nil {
		return nil, &ValidationError{Method: "resolve_stdlib", Field: "found", Reason: "missing"}
	}
	mod := &StdlibModule{Path: shape.Path, Found: *shape.Found}
	if err := decodeArray("resolve_stdlib", "symbols", shape.Symbols, mod.Found, &mod.Symbols); err != nil {
		return nil, err
	}
	return mod, nil
}
