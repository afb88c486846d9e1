// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package records decodes API response bodies and pulls records out of them
// with JSON-path rules.
package records

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/pdiddy/clickup-tap/pkg/types"
)

var (
	// ErrMalformedPayload reports a response body that is not the JSON shape
	// a rule expects.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrPathNotFound reports a payload that lacks the value a rule addresses.
	ErrPathNotFound = errors.New("extraction path not found")
)

const wildcardSuffix = "[*]"

// Rule is a compiled JSON-path extraction rule. A rule ending in [*] fans
// out into one record per array element; any other rule yields the single
// value it addresses. Wildcards and descent elsewhere in the path are
// rejected by Compile.
type Rule struct {
	path      string
	expr      jp.Expr
	container jp.Expr
	fanout    bool
}

// Compile parses a JSON-path such as "$.teams[*]" or "$.shared".
func Compile(path string) (*Rule, error) {
	if !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("records path %q must start with $", path)
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("parsing records path %q: %w", path, err)
	}

	base := strings.TrimSuffix(path, wildcardSuffix)
	if strings.Contains(base, "*") || strings.Contains(base, "..") {
		return nil, fmt.Errorf("records path %q may fan out only with a trailing %s", path, wildcardSuffix)
	}

	r := &Rule{path: path, expr: expr, container: expr}
	if base != path {
		r.fanout = true
		if base == "$" {
			return nil, fmt.Errorf("records path %q must name a field", path)
		}
		if r.container, err = jp.ParseString(base); err != nil {
			return nil, fmt.Errorf("parsing records path %q: %w", path, err)
		}
	}
	return r, nil
}

// MustCompile is like Compile but panics on error. It is meant for
// package-level rules in tests and fixed tables.
func MustCompile(path string) *Rule {
	r, err := Compile(path)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the source path.
func (r *Rule) String() string { return r.path }

// Fanout reports whether the rule yields one record per array element.
func (r *Rule) Fanout() bool { return r.fanout }

// Extract evaluates the rule against a decoded payload. The payload is not
// modified, so repeated calls yield the same records.
func (r *Rule) Extract(payload any) ([]types.Record, error) {
	if _, ok := payload.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", ErrMalformedPayload, kind(payload))
	}

	found := r.container.Get(payload)
	if len(found) == 0 || found[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, r.path)
	}
	if r.fanout {
		if _, ok := found[0].([]any); !ok {
			return nil, fmt.Errorf("%w: %s addresses %s, not an array",
				ErrMalformedPayload, strings.TrimSuffix(r.path, wildcardSuffix), kind(found[0]))
		}
	} else {
		// A singular path yields exactly the addressed value.
		found = found[:1]
	}

	matches := found
	if r.fanout {
		matches = r.expr.Get(payload)
	}

	out := make([]types.Record, 0, len(matches))
	for i, m := range matches {
		obj, ok := m.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s element %d is %s, not an object",
				ErrMalformedPayload, r.path, i, kind(m))
		}
		out = append(out, types.Record(obj))
	}
	return out, nil
}

// Decode reads a JSON document from rd.
func Decode(rd io.Reader) (any, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	v, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return v, nil
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}
