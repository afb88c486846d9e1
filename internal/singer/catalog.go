// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package singer

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/clickup-tap/internal/streams"
)

// Catalog is the discover output: every stream with its schema and keys.
type Catalog struct {
	Streams []CatalogEntry `json:"streams" yaml:"streams"`
}

// CatalogEntry describes one stream.
type CatalogEntry struct {
	TapStreamID   string          `json:"tap_stream_id" yaml:"tap_stream_id"`
	Stream        string          `json:"stream" yaml:"stream"`
	KeyProperties []string        `json:"key_properties" yaml:"key_properties"`
	Schema        json.RawMessage `json:"schema" yaml:"-"`
	Metadata      EntryMetadata   `json:"metadata" yaml:"metadata"`
}

// EntryMetadata carries the stream's place in the graph.
type EntryMetadata struct {
	Path              string `json:"path" yaml:"path"`
	RecordsPath       string `json:"records_path" yaml:"records_path"`
	ParentStream      string `json:"parent-stream,omitempty" yaml:"parent-stream,omitempty"`
	ReplicationMethod string `json:"forced-replication-method" yaml:"forced-replication-method"`
	SchemaFile        string `json:"schema_file,omitempty" yaml:"schema_file,omitempty"`
}

// BuildCatalog describes every stream in g in declaration order.
func BuildCatalog(g *streams.Graph) Catalog {
	var c Catalog
	for _, d := range g.Definitions() {
		c.Streams = append(c.Streams, CatalogEntry{
			TapStreamID:   d.Name(),
			Stream:        d.Name(),
			KeyProperties: d.PrimaryKeys(),
			Schema:        d.Schema(),
			Metadata: EntryMetadata{
				Path:              d.Path(),
				RecordsPath:       d.RecordsPath(),
				ParentStream:      d.Parent(),
				ReplicationMethod: "FULL_TABLE",
				SchemaFile:        d.SchemaFile(),
			},
		})
	}
	return c
}

// WriteJSON writes the catalog as indented JSON.
func (c Catalog) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// WriteYAML writes the catalog as YAML. Schemas are omitted; use JSON for
// the full documents.
func (c Catalog) WriteYAML(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}
