// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package streams holds the stream graph: a flat table of stream definitions
// linked by parent references and rooted at the team stream. The built-in
// catalog is embedded as YAML and validated when it is loaded, so a broken
// graph never reaches traversal.
package streams

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/clickup-tap/internal/records"
)

// ErrInvalidGraph reports a catalog that cannot be loaded.
var ErrInvalidGraph = errors.New("invalid stream graph")

//go:embed catalog.yaml
var catalogYAML []byte

//go:embed schemas/*.json
var schemaFS embed.FS

var defaultSchema = json.RawMessage(`{"type":"object"}`)

// catalogFile is the on-disk representation of a stream catalog.
type catalogFile struct {
	Streams []definitionSpec `yaml:"streams"`
}

type definitionSpec struct {
	Name        string            `yaml:"name"`
	Path        string            `yaml:"path"`
	PrimaryKeys []string          `yaml:"primary_keys"`
	RecordsPath string            `yaml:"records_path"`
	Schema      string            `yaml:"schema"`
	Parent      string            `yaml:"parent"`
	Context     map[string]string `yaml:"context"`
	Paginate    bool              `yaml:"paginate"`
}

// Graph is a validated set of stream definitions.
type Graph struct {
	defs     []*Definition
	byName   map[string]*Definition
	children map[string][]*Definition
	root     *Definition
}

// Default loads the embedded ClickUp catalog.
func Default() (*Graph, error) {
	return Load(catalogYAML)
}

// Load parses a YAML catalog and validates it against the embedded schemas.
func Load(data []byte) (*Graph, error) {
	sub, err := fs.Sub(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	return LoadWith(data, sub)
}

// LoadWith parses a YAML catalog, resolving schema file names in schemas.
func LoadWith(data []byte, schemas fs.FS) (*Graph, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: parsing catalog: %v", ErrInvalidGraph, err)
	}
	return build(cf.Streams, schemas)
}

func build(specs []definitionSpec, schemas fs.FS) (*Graph, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no streams declared", ErrInvalidGraph)
	}

	g := &Graph{
		byName:   make(map[string]*Definition, len(specs)),
		children: make(map[string][]*Definition),
	}

	for _, s := range specs {
		d, err := compile(s, schemas)
		if err != nil {
			return nil, err
		}
		if _, dup := g.byName[d.name]; dup {
			return nil, fmt.Errorf("%w: duplicate stream %q", ErrInvalidGraph, d.name)
		}
		g.byName[d.name] = d
		g.defs = append(g.defs, d)
	}

	for _, d := range g.defs {
		if d.parent == "" {
			continue
		}
		if _, ok := g.byName[d.parent]; !ok {
			return nil, fmt.Errorf("%w: stream %q names unknown parent %q", ErrInvalidGraph, d.name, d.parent)
		}
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}

	for _, d := range g.defs {
		if d.parent == "" {
			if g.root != nil {
				return nil, fmt.Errorf("%w: streams %q and %q both lack a parent", ErrInvalidGraph, g.root.name, d.name)
			}
			g.root = d
			continue
		}
		g.children[d.parent] = append(g.children[d.parent], d)
	}
	if g.root == nil {
		return nil, fmt.Errorf("%w: no root stream", ErrInvalidGraph)
	}
	if ph := g.root.Placeholders(); len(ph) > 0 {
		return nil, fmt.Errorf("%w: root stream %q path needs %s", ErrInvalidGraph, g.root.name, strings.Join(ph, ", "))
	}

	for _, d := range g.defs {
		if len(g.children[d.name]) > 0 && len(d.contextKeys) == 0 {
			return nil, fmt.Errorf("%w: stream %q has dependents but no context rule", ErrInvalidGraph, d.name)
		}
		if d.parent == "" {
			continue
		}
		parent := g.byName[d.parent]
		for _, ph := range d.Placeholders() {
			if _, ok := parent.contextField[ph]; !ok {
				return nil, fmt.Errorf("%w: stream %q needs {%s} but parent %q supplies only %v",
					ErrInvalidGraph, d.name, ph, parent.name, parent.contextKeys)
			}
		}
	}

	return g, nil
}

func compile(s definitionSpec, schemas fs.FS) (*Definition, error) {
	switch {
	case s.Name == "":
		return nil, fmt.Errorf("%w: stream without a name", ErrInvalidGraph)
	case s.Path == "":
		return nil, fmt.Errorf("%w: stream %q has no path", ErrInvalidGraph, s.Name)
	case s.RecordsPath == "":
		return nil, fmt.Errorf("%w: stream %q has no records path", ErrInvalidGraph, s.Name)
	}

	rule, err := records.Compile(s.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stream %q: %v", ErrInvalidGraph, s.Name, err)
	}

	keys := s.PrimaryKeys
	if len(keys) == 0 {
		keys = []string{"id"}
	}

	schema := defaultSchema
	if s.Schema != "" {
		data, err := fs.ReadFile(schemas, path.Clean(s.Schema))
		if err != nil {
			return nil, fmt.Errorf("%w: stream %q schema: %v", ErrInvalidGraph, s.Name, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: stream %q schema %s is not valid JSON", ErrInvalidGraph, s.Name, s.Schema)
		}
		schema = json.RawMessage(data)
	}

	fields := make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		if v == "" {
			return nil, fmt.Errorf("%w: stream %q context %q has no source field", ErrInvalidGraph, s.Name, k)
		}
		fields[k] = v
	}

	return &Definition{
		name:         s.Name,
		path:         s.Path,
		primaryKeys:  slices.Clone(keys),
		rule:         rule,
		parent:       s.Parent,
		schemaFile:   s.Schema,
		schema:       schema,
		contextKeys:  sortedKeys(fields),
		contextField: fields,
		paginate:     s.Paginate,
	}, nil
}

// checkCycles follows every parent chain and fails on the first stream that
// appears twice in its own ancestry.
func (g *Graph) checkCycles() error {
	done := make(map[string]bool, len(g.defs))
	for _, d := range g.defs {
		var chain []string
		onChain := make(map[string]bool)
		for cur := d; cur != nil && !done[cur.name]; cur = g.byName[cur.parent] {
			if onChain[cur.name] {
				chain = append(chain, cur.name)
				return fmt.Errorf("%w: cycle %s", ErrInvalidGraph, strings.Join(chain, " -> "))
			}
			onChain[cur.name] = true
			chain = append(chain, cur.name)
			if cur.parent == "" {
				break
			}
		}
		for name := range onChain {
			done[name] = true
		}
	}
	return nil
}

// Root returns the stream with no parent.
func (g *Graph) Root() *Definition { return g.root }

// Lookup returns the named stream.
func (g *Graph) Lookup(name string) (*Definition, bool) {
	d, ok := g.byName[name]
	return d, ok
}

// Definitions returns every stream in declaration order.
func (g *Graph) Definitions() []*Definition {
	return slices.Clone(g.defs)
}

// Children returns the streams whose parent is name, in declaration order.
func (g *Graph) Children(name string) []*Definition {
	return slices.Clone(g.children[name])
}

// Ancestors returns the parent chain of name, nearest first.
func (g *Graph) Ancestors(name string) []*Definition {
	var out []*Definition
	d, ok := g.byName[name]
	if !ok {
		return nil
	}
	for d.parent != "" {
		d = g.byName[d.parent]
		out = append(out, d)
	}
	return out
}

// Names returns every stream name in declaration order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.defs))
	for i, d := range g.defs {
		names[i] = d.name
	}
	return names
}

// Walk visits the graph depth-first from the root in declaration order,
// passing each stream's depth below the root.
func (g *Graph) Walk(fn func(d *Definition, depth int)) {
	var visit func(d *Definition, depth int)
	visit = func(d *Definition, depth int) {
		fn(d, depth)
		for _, c := range g.children[d.name] {
			visit(c, depth+1)
		}
	}
	visit(g.root, 0)
}
