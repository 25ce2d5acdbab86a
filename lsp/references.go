// Copyright © 2024 The pikelsp authors

package lsp

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentReferences handles the textDocument/references request
// from the document's occurrence index alone — no subprocess call.
func (s *Server) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
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

	doc.mu.Lock()
	content := doc.Content
	doc.mu.Unlock()
	name := wordAtPosition(content, line, col)
	if name == "" {
		return nil, nil
	}

	positions := res.Index.Lookup(name)
	if len(positions) == 0 {
		return nil, nil
	}

	locations := make([]protocol.Location, 0, len(positions))
	for _, pos := range positions {
		start := pikeToLSPPosition(pos)
		locations = append(locations, protocol.Location{
			URI: doc.URI,
			Range: protocol.Range{
				Start: start,
				End: protocol.Position{
					Line:      start.Line,
					Character: start.Character + safeUint(len(name)),
				},
			},
		})
	}
	return locations, nil
}
