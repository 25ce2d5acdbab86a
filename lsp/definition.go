// Copyright © 2024 The pikelsp authors

package lsp

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentDefinition handles the textDocument/definition request.
// Definitions resolve within the document first, then through resolved
// dependencies (imports, includes, inherits).
func (s *Server) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	s.captureNotify(ctx)
	doc := s.docs.Get(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	res := s.ensureAnalysis(doc)
	if res == nil {
		return nil, nil
	}

	line := int(params.Position.Line)
	col := int(params.Position.Character)

	if sym := symbolAtPosition(res, line, col); sym != nil {
		return protocol.Location{
			URI:   doc.URI,
			Range: nameRange(sym),
		}, nil
	}

	// Not defined here: look through dependency symbol tables.
	doc.mu.Lock()
	content := doc.Content
	doc.mu.Unlock()
	word := wordAtPosition(content, line, col)
	if word == "" {
		return nil, nil
	}
	for _, dep := range res.Dependencies {
		if dep.Resolved == "" {
			continue
		}
		for i := range dep.Symbols {
			if dep.Symbols[i].Name == word {
				return protocol.Location{
					URI:   pathToURI(dep.Resolved),
					Range: nameRange(&dep.Symbols[i]),
				}, nil
			}
		}
	}
	return nil, nil
}
