// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tap

import (
	"fmt"

	"github.com/pdiddy/clickup-tap/internal/streams"
)

// Selection names the streams whose records are emitted. The zero value
// selects every stream.
type Selection map[string]bool

// NewSelection builds a selection from stream names, rejecting unknown ones.
// No names selects every stream.
func NewSelection(g *streams.Graph, names []string) (Selection, error) {
	if len(names) == 0 {
		return nil, nil
	}
	sel := make(Selection, len(names))
	for _, n := range names {
		if _, ok := g.Lookup(n); !ok {
			return nil, fmt.Errorf("unknown stream %q (known: %v)", n, g.Names())
		}
		sel[n] = true
	}
	return sel, nil
}

// Emits reports whether records of the named stream are written out.
func (s Selection) Emits(name string) bool {
	return len(s) == 0 || s[name]
}

// Needed returns every stream that must be fetched: the selected streams
// and all of their ancestors.
func (s Selection) Needed(g *streams.Graph) map[string]bool {
	needed := make(map[string]bool)
	for _, d := range g.Definitions() {
		if !s.Emits(d.Name()) {
			continue
		}
		needed[d.Name()] = true
		for _, a := range g.Ancestors(d.Name()) {
			needed[a.Name()] = true
		}
	}
	return needed
}
