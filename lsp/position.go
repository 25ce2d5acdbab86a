// Copyright © 2024 The pikelsp authors

package lsp

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/piketools/pikelsp/analysis"
	"github.com/piketools/pikelsp/bridge"
)

// pikeToLSPPosition converts a 1-based compiler position to a 0-based
// LSP position.
func pikeToLSPPosition(pos analysis.Position) protocol.Position {
	line := pos.Line
	col := pos.Column
	if line > 0 {
		line--
	}
	if col > 0 {
		col--
	}
	return protocol.Position{
		Line:      safeUint(line),
		Character: safeUint(col),
	}
}

// safeUint converts a non-negative int to protocol.UInteger, clamping
// negative values to zero.
func safeUint(n int) protocol.UInteger {
	if n < 0 {
		return 0
	}
	return protocol.UInteger(n) // #nosec G115 -- line/col are always small positive ints
}

// pikeToLSPRange converts a compiler range to an LSP range. A zero end
// position yields a range nameLen characters wide.
func pikeToLSPRange(r analysis.Range, nameLen int) protocol.Range {
	start := pikeToLSPPosition(r.Start)
	end := protocol.Position{
		Line:      start.Line,
		Character: start.Character + safeUint(nameLen),
	}
	if r.End.Line > 0 {
		end = pikeToLSPPosition(r.End)
	}
	return protocol.Range{Start: start, End: end}
}

// nameRange returns the LSP range covering a symbol's name at its
// definition position.
func nameRange(sym *analysis.Symbol) protocol.Range {
	start := pikeToLSPPosition(sym.Position)
	return protocol.Range{
		Start: start,
		End: protocol.Position{
			Line:      start.Line,
			Character: start.Character + safeUint(len(sym.Name)),
		},
	}
}

// symbolAtPosition finds the symbol whose name occurs at the given
// 0-based LSP position, using the document's occurrence index first and
// definitions second.
func symbolAtPosition(res *bridge.DocumentAnalysis, line, col int) *analysis.Symbol {
	if res == nil {
		return nil
	}
	// Convert LSP 0-based to compiler 1-based.
	name, ok := res.Index.At(line+1, col+1)
	if !ok {
		return nil
	}
	return findSymbol(res.Symbols, name)
}

// findSymbol locates a definition by name, searching class members too.
func findSymbol(syms []analysis.Symbol, name string) *analysis.Symbol {
	for i := range syms {
		if syms[i].Name == name {
			return &syms[i]
		}
		if sym := findSymbol(syms[i].Children, name); sym != nil {
			return sym
		}
	}
	return nil
}

// wordAtPosition extracts the identifier-like word at the given 0-based
// LSP position from the document content. The cursor can be inside or at
// the end of a word; in both cases the full word is returned.
func wordAtPosition(content string, line, col int) string {
	lines := strings.Split(content, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}
	ln := lines[line]
	if col < 0 || col > len(ln) {
		return ""
	}
	if col >= len(ln) {
		col = len(ln)
	}
	start := col
	for start > 0 && isIdentChar(ln[start-1]) {
		start--
	}
	end := col
	for end < len(ln) && isIdentChar(ln[end]) {
		end++
	}
	return ln[start:end]
}

func isIdentChar(c byte) bool {
	if c >= 'a' && c <= 'z' {
		return true
	}
	if c >= 'A' && c <= 'Z' {
		return true
	}
	if c >= '0' && c <= '9' {
		return true
	}
	return c == '_'
}

// moduleBeforeDot returns the capitalized module path immediately before
// a "." or "->" at the cursor, e.g. "Stdio" in "Stdio.File f;". Pike
// module names start with an uppercase letter.
func moduleBeforeDot(content string, line, col int) string {
	lines := strings.Split(content, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}
	ln := lines[line]
	if col > len(ln) {
		col = len(ln)
	}
	prefix := ln[:col]
	if strings.HasSuffix(prefix, "->") {
		prefix = prefix[:len(prefix)-2]
	} else if strings.HasSuffix(prefix, ".") {
		prefix = prefix[:len(prefix)-1]
	} else {
		return ""
	}
	end := len(prefix)
	start := end
	for start > 0 && (isIdentChar(prefix[start-1]) || prefix[start-1] == '.') {
		start--
	}
	word := prefix[start:end]
	if word == "" || word[0] < 'A' || word[0] > 'Z' {
		return ""
	}
	return word
}

// uriToPath converts a file:// URI to a filesystem path.
func uriToPath(uri string) string {
	if path, ok := strings.CutPrefix(uri, "file://"); ok {
		return path
	}
	return uri
}

// pathToURI converts a filesystem path to a file:// URI.
func pathToURI(path string) string {
	if strings.HasPrefix(path, "/") {
		return "file://" + path
	}
	return path
}

func strPtr(s string) *string {
	return &s
}
