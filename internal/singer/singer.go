// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package singer writes extracted streams as Singer messages: one JSON
// object per line, SCHEMA before RECORD, for any Singer target to consume.
package singer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pdiddy/clickup-tap/internal/streams"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

// Message types.
const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
)

// SchemaMessage announces a stream's record shape and key.
type SchemaMessage struct {
	Type          string          `json:"type"`
	Stream        string          `json:"stream"`
	Schema        json.RawMessage `json:"schema"`
	KeyProperties []string        `json:"key_properties"`
}

// RecordMessage carries one record.
type RecordMessage struct {
	Type          string       `json:"type"`
	Stream        string       `json:"stream"`
	Record        types.Record `json:"record"`
	TimeExtracted time.Time    `json:"time_extracted"`
}

// Writer emits Singer messages to an io.Writer. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
	now func() time.Time
}

// NewWriter returns a Writer on w. Call Flush when the run ends.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Writer{buf: buf, enc: enc, now: time.Now}
}

// WriteSchema implements tap.Sink.
func (w *Writer) WriteSchema(def *streams.Definition) error {
	return w.write(SchemaMessage{
		Type:          TypeSchema,
		Stream:        def.Name(),
		Schema:        def.Schema(),
		KeyProperties: def.PrimaryKeys(),
	})
}

// WriteRecord implements tap.Sink. The parent context is not part of the
// Singer record.
func (w *Writer) WriteRecord(def *streams.Definition, rec types.Record, _ types.Context) error {
	return w.write(RecordMessage{
		Type:          TypeRecord,
		Stream:        def.Name(),
		Record:        rec,
		TimeExtracted: w.now().UTC(),
	})
}

func (w *Writer) write(msg any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("encoding singer message: %w", err)
	}
	return nil
}

// Flush writes any buffered messages.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}
