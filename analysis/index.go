// Copyright © 2024 The pikelsp authors

package analysis

// Index maps a symbol name to every source position at which it occurs
// in a document. It answers find-references queries without another
// round-trip to the compiler.
type Index map[string][]Position

// NewIndex builds an index from definition positions. Occurrence data
// from the compiler's references pass, when available, is merged on top
// with Merge.
func NewIndex(symbols []Symbol) Index {
	idx := make(Index)
	var walk func(syms []Symbol)
	walk = func(syms []Symbol) {
		for i := range syms {
			idx.Add(syms[i].Name, syms[i].Position)
			walk(syms[i].Children)
		}
	}
	walk(symbols)
	return idx
}

// Add records an occurrence of name at pos, ignoring exact duplicates.
func (idx Index) Add(name string, pos Position) {
	for _, p := range idx[name] {
		if p == pos {
			return
		}
	}
	idx[name] = append(idx[name], pos)
}

// Merge folds occurrence lists from other into idx.
func (idx Index) Merge(other map[string][]Position) {
	for name, positions := range other {
		for _, pos := range positions {
			idx.Add(name, pos)
		}
	}
}

// Lookup returns all recorded positions for name, or nil.
func (idx Index) Lookup(name string) []Position {
	return idx[name]
}

// At returns the name of a symbol occurring at the given position, if the
// index records one there. Column matching is prefix-based: a position
// inside the identifier still matches its start column.
func (idx Index) At(line, col int) (string, bool) {
	for name, positions := range idx {
		for _, p := range positions {
			if p.Line == line && col >= p.Column && col < p.Column+len(name) {
				return name, true
			}
		}
	}
	return "", false
}
