// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tap walks the stream graph: it fetches the root stream, derives a
// context from every record, and fetches each dependent stream under that
// context, recursively. Records of selected streams go to a Sink.
package tap

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"time"

	"github.com/pdiddy/clickup-tap/internal/metrics"
	"github.com/pdiddy/clickup-tap/internal/streams"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

// Source yields the records of one stream under one parent context.
type Source interface {
	Records(ctx context.Context, def *streams.Definition, pc types.Context) iter.Seq2[types.Record, error]
}

// Sink receives the extracted stream. WriteSchema is called once per
// selected stream before any record.
type Sink interface {
	WriteSchema(def *streams.Definition) error
	WriteRecord(def *streams.Definition, rec types.Record, pc types.Context) error
}

// MultiSink writes to every sink in order and stops at the first error.
type MultiSink []Sink

// WriteSchema implements Sink.
func (m MultiSink) WriteSchema(def *streams.Definition) error {
	for _, s := range m {
		if err := s.WriteSchema(def); err != nil {
			return err
		}
	}
	return nil
}

// WriteRecord implements Sink.
func (m MultiSink) WriteRecord(def *streams.Definition, rec types.Record, pc types.Context) error {
	for _, s := range m {
		if err := s.WriteRecord(def, rec, pc); err != nil {
			return err
		}
	}
	return nil
}

// StreamError is a failure while extracting one stream under one context.
// It aborts the whole run.
type StreamError struct {
	Stream  string
	Context types.Context
	Err     error
}

func (e *StreamError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("stream %s: %v", e.Stream, e.Err)
	}
	return fmt.Sprintf("stream %s [%s]: %v", e.Stream, e.Context, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Summary counts what a run extracted.
type Summary struct {
	// Records counts emitted records per stream.
	Records map[string]int
	// Fetches counts stream fetches (one per parent context) per stream.
	Fetches map[string]int
	Elapsed time.Duration
}

// Total returns the number of emitted records.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Records {
		n += c
	}
	return n
}

// Streams returns the streams that emitted records, sorted.
func (s Summary) Streams() []string {
	names := make([]string, 0, len(s.Records))
	for name := range s.Records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tap runs one full-refresh extraction.
type Tap struct {
	Graph     *streams.Graph
	Source    Source
	Sink      Sink
	Selection Selection
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type run struct {
	*Tap
	log     *slog.Logger
	needed  map[string]bool
	summary Summary
}

// Run emits a schema for every selected stream and then walks the graph
// from the root. Streams that are not selected are still fetched when a
// selected stream depends on them, but their records are not emitted.
// The first error stops the run.
func (t *Tap) Run(ctx context.Context) (Summary, error) {
	log := t.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &run{
		Tap:    t,
		log:    log,
		needed: t.Selection.Needed(t.Graph),
		summary: Summary{
			Records: make(map[string]int),
			Fetches: make(map[string]int),
		},
	}

	start := time.Now()
	for _, d := range t.Graph.Definitions() {
		if !t.Selection.Emits(d.Name()) {
			continue
		}
		if err := t.Sink.WriteSchema(d); err != nil {
			return r.summary, fmt.Errorf("writing schema for %s: %w", d.Name(), err)
		}
	}

	err := r.walk(ctx, t.Graph.Root(), types.Context{})
	r.summary.Elapsed = time.Since(start)
	return r.summary, err
}

func (r *run) walk(ctx context.Context, def *streams.Definition, pc types.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := def.Name()
	emit := r.Selection.Emits(name)
	var children []*streams.Definition
	for _, c := range r.Graph.Children(name) {
		if r.needed[c.Name()] {
			children = append(children, c)
		}
	}

	r.summary.Fetches[name]++
	var parents []types.Record
	count := 0
	for rec, err := range r.Source.Records(ctx, def, pc) {
		if err != nil {
			r.Metrics.Failure(name)
			return &StreamError{Stream: name, Context: pc, Err: err}
		}
		count++
		if emit {
			if err := r.Sink.WriteRecord(def, rec, pc); err != nil {
				return &StreamError{Stream: name, Context: pc, Err: fmt.Errorf("writing record: %w", err)}
			}
			r.Metrics.Record(name)
			r.summary.Records[name]++
		}
		if len(children) > 0 {
			parents = append(parents, rec)
		}
	}
	r.log.Info("synced", "stream", name, "context", pc.String(), "records", count, "emitted", emit)

	for _, rec := range parents {
		cc, err := def.ChildContext(rec)
		if err != nil {
			return &StreamError{Stream: name, Context: pc, Err: err}
		}
		for _, child := range children {
			if err := r.walk(ctx, child, cc); err != nil {
				return err
			}
		}
	}
	return nil
}
