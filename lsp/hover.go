// Copyright © 2024 The pikelsp authors

package lsp

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/piketools/pikelsp/analysis"
)

// hoverDocWidth wraps AutoDoc prose so hover popups stay readable.
const hoverDocWidth = 78

// textDocumentHover handles the textDocument/hover request.
func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	s.captureNotify(ctx)
	doc := s.docs.Get(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	res := s.ensureAnalysis(doc)

	line := int(params.Position.Line)
	col := int(params.Position.Character)

	sym := symbolAtPosition(res, line, col)
	if sym == nil {
		return nil, nil
	}

	content := buildHoverContent(sym)
	if content == "" {
		return nil, nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: content,
		},
	}, nil
}

// buildHoverContent builds Markdown hover text for a symbol.
func buildHoverContent(sym *analysis.Symbol) string {
	var sb strings.Builder

	// Header: **kind** `name`
	fmt.Fprintf(&sb, "**%s** `%s`", sym.Kind, sym.Name)

	// Declaration line for typed symbols.
	if sym.Type != "" {
		fmt.Fprintf(&sb, "\n\n```pike\n%s %s\n```", sym.Type, sym.Name)
	}

	if len(sym.Modifiers) > 0 {
		fmt.Fprintf(&sb, "\n\n*%s*", strings.Join(sym.Modifiers, " "))
	}

	// AutoDoc prose, wrapped.
	if sym.Doc != "" {
		sb.WriteString("\n\n---\n\n")
		sb.WriteString(wordwrap.String(sym.Doc, hoverDocWidth))
	}

	return sb.String()
}
