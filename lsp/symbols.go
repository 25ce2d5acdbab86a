// Copyright © 2024 The pikelsp authors

package lsp

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/piketools/pikelsp/analysis"
)

// textDocumentDocumentSymbol handles the textDocument/documentSymbol
// request, returning the compiler-extracted outline.
func (s *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	s.captureNotify(ctx)
	doc := s.docs.Get(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	res := s.ensureAnalysis(doc)
	if res == nil {
		return nil, nil
	}

	symbols := make([]protocol.DocumentSymbol, 0, len(res.Symbols))
	for i := range res.Symbols {
		// Imports and inherits clutter the outline; skip them.
		if res.Symbols[i].Kind == analysis.SymImport {
			continue
		}
		symbols = append(symbols, convertSymbol(&res.Symbols[i]))
	}
	return symbols, nil
}

// convertSymbol maps a compiler symbol (and its members) to an LSP
// document symbol.
func convertSymbol(sym *analysis.Symbol) protocol.DocumentSymbol {
	r := nameRange(sym)
	out := protocol.DocumentSymbol{
		Name:           sym.Name,
		Kind:           mapSymbolKind(sym.Kind),
		Range:          r,
		SelectionRange: r,
	}
	if sym.Type != "" {
		out.Detail = strPtr(sym.Type)
	}
	for i := range sym.Children {
		out.Children = append(out.Children, convertSymbol(&sym.Children[i]))
	}
	return out
}

// mapSymbolKind converts a compiler symbol kind to an LSP symbol kind.
func mapSymbolKind(kind analysis.SymbolKind) protocol.SymbolKind {
	switch kind {
	case analysis.SymVariable:
		return protocol.SymbolKindVariable
	case analysis.SymConstant:
		return protocol.SymbolKindConstant
	case analysis.SymMethod:
		return protocol.SymbolKindMethod
	case analysis.SymClass:
		return protocol.SymbolKindClass
	case analysis.SymTypedef:
		return protocol.SymbolKindTypeParameter
	case analysis.SymInherit:
		return protocol.SymbolKindInterface
	case analysis.SymEnum:
		return protocol.SymbolKindEnum
	case analysis.SymModule:
		return protocol.SymbolKindModule
	default:
		return protocol.SymbolKindVariable
	}
}
