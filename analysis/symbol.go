// Copyright © 2024 The pikelsp authors

// Package analysis defines the symbol, diagnostic, and dependency model
// produced by the Pike compiler backend. Values in this package are plain
// data decoded from the compiler's JSON output; no parsing happens here.
package analysis

import "fmt"

// SymbolKind classifies a symbol definition. Kinds use the compiler's
// wire spelling directly so decoding is a straight string copy.
type SymbolKind string

const (
	SymVariable SymbolKind = "variable"
	SymConstant SymbolKind = "constant"
	SymMethod   SymbolKind = "method"
	SymClass    SymbolKind = "class"
	SymTypedef  SymbolKind = "typedef"
	SymInherit  SymbolKind = "inherit"
	SymImport   SymbolKind = "import"
	SymEnum     SymbolKind = "enum"
	SymModule   SymbolKind = "module"
)

// Known reports whether k is a kind the compiler is documented to emit.
// Unknown kinds are preserved as-is so a newer compiler doesn't break an
// older server, but callers may want to log them.
func (k SymbolKind) Known() bool {
	switch k {
	case SymVariable, SymConstant, SymMethod, SymClass, SymTypedef,
		SymInherit, SymImport, SymEnum, SymModule:
		return true
	}
	return false
}

// Position is a 1-based source position as reported by the compiler.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Range is a half-open source range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Symbol represents a defined name extracted by the compiler.
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	Position  Position   `json:"position"`
	Type      string     `json:"type,omitempty"`      // Pike type expression, e.g. "int" or "string(string)"
	Doc       string     `json:"doc,omitempty"`       // AutoDoc text, already stripped of comment markers
	Modifiers []string   `json:"modifiers,omitempty"` // static, protected, final, ...
	Children  []Symbol   `json:"children,omitempty"`  // class/enum members
}

// HasModifier reports whether the symbol carries the given modifier.
func (s *Symbol) HasModifier(mod string) bool {
	for _, m := range s.Modifiers {
		if m == mod {
			return true
		}
	}
	return false
}

// Severity levels for diagnostics, matching the compiler's wire spelling.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Diagnostic is a compiler-reported problem. Diagnostics are data, not
// errors: source with syntax problems still yields a successful response
// carrying a non-empty diagnostics array.
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Range    Range  `json:"range"`
	Source   string `json:"source,omitempty"` // e.g. "pike-compiler"
}

// Dependency is a resolved import, include, or inherit recorded for a
// document, along with the symbols it contributes.
type Dependency struct {
	Kind     string   `json:"kind"` // import, include, inherit
	Path     string   `json:"path"`
	Resolved string   `json:"resolved,omitempty"` // absolute path, empty if unresolved
	Symbols  []Symbol `json:"symbols,omitempty"`
}

// Token is a lexical token from the compiler's tokenizer.
type Token struct {
	Kind     string   `json:"kind"`
	Text     string   `json:"text"`
	Position Position `json:"position"`
}
