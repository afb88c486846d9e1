// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strings"
)

// Record is one JSON object extracted from an API response. Its fields vary
// per stream.
type Record map[string]any

// Context maps placeholder names to scalar values. A parent record produces
// one Context for its dependent streams, which substitute the values into
// their endpoint templates.
type Context map[string]any

// String renders the context as sorted key=value pairs, e.g. "space_id=S1".
func (c Context) String() string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, c[k])
	}
	return strings.Join(parts, ",")
}

// Key joins the values of the given fields with "|". It returns an error if
// any field is missing from the record.
func (r Record) Key(fields []string) (string, error) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, ok := r[f]
		if !ok || v == nil {
			return "", fmt.Errorf("record has no primary key field %q", f)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "|"), nil
}
