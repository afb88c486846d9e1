// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package streams

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/clickup-tap/internal/records"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

// ErrMissingContext reports a placeholder or context field that has no value.
var ErrMissingContext = errors.New("missing context value")

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Definition describes one stream: where its records come from, how they are
// keyed, and what context its records hand to dependent streams. A
// Definition is immutable once its Graph is loaded.
type Definition struct {
	name         string
	path         string
	primaryKeys  []string
	rule         *records.Rule
	parent       string
	schemaFile   string
	schema       json.RawMessage
	contextKeys  []string
	contextField map[string]string
	paginate     bool
}

// Name returns the stream name.
func (d *Definition) Name() string { return d.name }

// Path returns the endpoint template, e.g. "/space/{space_id}/folder".
func (d *Definition) Path() string { return d.path }

// PrimaryKeys returns the fields that identify a record.
func (d *Definition) PrimaryKeys() []string {
	return append([]string(nil), d.primaryKeys...)
}

// RecordsPath returns the JSON-path rule source.
func (d *Definition) RecordsPath() string { return d.rule.String() }

// Rule returns the compiled extraction rule.
func (d *Definition) Rule() *records.Rule { return d.rule }

// Parent returns the parent stream name, or "" for the root.
func (d *Definition) Parent() string { return d.parent }

// IsRoot reports whether the stream has no parent.
func (d *Definition) IsRoot() bool { return d.parent == "" }

// Paginate reports whether requests walk the page query parameter.
func (d *Definition) Paginate() bool { return d.paginate }

// SchemaFile returns the schema document name, e.g. "list.json".
func (d *Definition) SchemaFile() string { return d.schemaFile }

// Schema returns the JSON Schema document for the stream's records.
func (d *Definition) Schema() json.RawMessage { return d.schema }

// ContextKeys returns the placeholder names this stream supplies to its
// children, sorted.
func (d *Definition) ContextKeys() []string {
	return append([]string(nil), d.contextKeys...)
}

// Placeholders returns the placeholder names in the endpoint template in
// order of appearance.
func (d *Definition) Placeholders() []string {
	return placeholders(d.path)
}

func placeholders(path string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(path, -1) {
		out = append(out, m[1])
	}
	return out
}

// Resolve substitutes context values into the endpoint template. Values are
// path-escaped. Every placeholder must have a value in c.
func (d *Definition) Resolve(c types.Context) (string, error) {
	var missing []string
	resolved := placeholderRe.ReplaceAllStringFunc(d.path, func(tok string) string {
		key := tok[1 : len(tok)-1]
		v, ok := c[key]
		if !ok || v == nil {
			missing = append(missing, key)
			return tok
		}
		return url.PathEscape(fmt.Sprint(v))
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: stream %s needs %s", ErrMissingContext, d.name, strings.Join(missing, ", "))
	}
	return resolved, nil
}

// ChildContext builds the context a record of this stream passes to its
// dependent streams. It is a pure function of the record.
func (d *Definition) ChildContext(rec types.Record) (types.Context, error) {
	c := make(types.Context, len(d.contextKeys))
	for _, key := range d.contextKeys {
		field := d.contextField[key]
		v, ok := rec[field]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s record has no %q for %s", ErrMissingContext, d.name, field, key)
		}
		if !isScalar(v) {
			return nil, fmt.Errorf("%w: %s record field %q is not a scalar", ErrMissingContext, d.name, field)
		}
		c[key] = v
	}
	return c, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, float64, json.Number:
		return true
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
