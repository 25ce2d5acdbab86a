// Copyright © 2024 The pikelsp authors

package lsp

import (
	"context"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/piketools/pikelsp/analysis"
)

// pikeKeywords are offered alongside symbol completions.
var pikeKeywords = []string{
	"array", "break", "case", "catch", "class", "constant", "continue",
	"default", "do", "else", "enum", "float", "for", "foreach", "function",
	"gauge", "if", "import", "inherit", "int", "lambda", "mapping", "mixed",
	"multiset", "object", "private", "protected", "public", "return",
	"sscanf", "static", "string", "switch", "typedef", "void", "while",
}

// textDocumentCompletion handles the textDocument/completion request.
// After "Module." or "Module->" the members of that stdlib module are
// offered; otherwise document symbols, dependency symbols, and keywords.
func (s *Server) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	s.captureNotify(ctx)
	doc := s.docs.Get(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}

	line := int(params.Position.Line)
	col := int(params.Position.Character)

	doc.mu.Lock()
	content := doc.Content
	doc.mu.Unlock()

	if module := moduleBeforeDot(content, line, col); module != "" {
		return s.stdlibCompletions(module)
	}

	res := s.ensureAnalysis(doc)

	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	if res != nil {
		for i := range res.Symbols {
			items = appendSymbolItem(items, seen, &res.Symbols[i])
		}
		for _, dep := range res.Dependencies {
			for i := range dep.Symbols {
				items = appendSymbolItem(items, seen, &dep.Symbols[i])
			}
		}
	}
	for _, kw := range pikeKeywords {
		if seen[kw] {
			continue
		}
		kind := protocol.CompletionItemKindKeyword
		items = append(items, protocol.CompletionItem{
			Label: kw,
			Kind:  &kind,
		})
	}
	return items, nil
}

// stdlibCompletions offers the members of a stdlib module such as Stdio.
func (s *Server) stdlibCompletions(module string) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mod, err := s.backend.ResolveStdlib(ctx, module)
	if err != nil || !mod.Found {
		return nil, nil
	}
	items := make([]protocol.CompletionItem, 0, len(mod.Symbols))
	seen := make(map[string]bool)
	for i := range mod.Symbols {
		items = appendSymbolItem(items, seen, &mod.Symbols[i])
	}
	return items, nil
}

// appendSymbolItem converts one symbol to a completion item, skipping
// duplicates by label.
func appendSymbolItem(items []protocol.CompletionItem, seen map[string]bool, sym *analysis.Symbol) []protocol.CompletionItem {
	if sym.Name == "" || seen[sym.Name] {
		return items
	}
	seen[sym.Name] = true
	kind := mapCompletionKind(sym.Kind)
	item := protocol.CompletionItem{
		Label: sym.Name,
		Kind:  &kind,
	}
	if sym.Type != "" {
		item.Detail = strPtr(sym.Type)
	}
	if sym.Doc != "" {
		item.Documentation = &protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: sym.Doc,
		}
	}
	return append(items, item)
}

// mapCompletionKind converts a compiler symbol kind to an LSP completion
// item kind.
func mapCompletionKind(kind analysis.SymbolKind) protocol.CompletionItemKind {
	switch kind {
	case analysis.SymVariable:
		return protocol.CompletionItemKindVariable
	case analysis.SymConstant:
		return protocol.CompletionItemKindConstant
	case analysis.SymMethod:
		return protocol.CompletionItemKindMethod
	case analysis.SymClass:
		return protocol.CompletionItemKindClass
	case analysis.SymTypedef:
		return protocol.CompletionItemKindTypeParameter
	case analysis.SymEnum:
		return protocol.CompletionItemKindEnum
	case analysis.SymModule:
		return protocol.CompletionItemKindModule
	default:
		return protocol.CompletionItemKindText
	}
}
