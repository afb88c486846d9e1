// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// ExportYAML writes the stored records of stream (all streams when empty)
// to w as a YAML list.
func (s *Store) ExportYAML(ctx context.Context, stream string, w io.Writer) error {
	recs, err := s.exportRecords(ctx, stream)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the stored records of stream (all streams when empty)
// to w as an indented JSON array.
func (s *Store) ExportJSON(ctx context.Context, stream string, w io.Writer) error {
	recs, err := s.exportRecords(ctx, stream)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

func (s *Store) exportRecords(ctx context.Context, stream string) ([]StoredRecord, error) {
	recs, err := s.Records(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	if recs == nil {
		recs = []StoredRecord{}
	}
	return recs, nil
}
