// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store keeps the latest full-refresh snapshot of every stream in a
// SQLite database, keyed by stream, parent context and primary key, along
// with a history of runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/clickup-tap/internal/streams"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Store manages the SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at cfg.Path and creates the schema if
// it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store path is empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer: the run transaction must not race other connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: cfg.Path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			records INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS streams (
			name TEXT PRIMARY KEY,
			key_properties TEXT NOT NULL,
			schema TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			stream TEXT NOT NULL,
			pk TEXT NOT NULL,
			data TEXT NOT NULL,
			context TEXT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			extracted_at TEXT NOT NULL,
			PRIMARY KEY (stream, pk)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Run is one extraction run writing into the store. It implements
// tap.Sink. Records written during the run become visible when Finish
// succeeds; a failed run leaves the previous snapshot in place.
type Run struct {
	ID      string
	ctx     context.Context
	store   *Store
	tx      *sql.Tx
	upsert  *sql.Stmt
	records int
	streams []string
}

// BeginRun records a new run and opens its transaction.
func (s *Store) BeginRun(ctx context.Context) (*Run, error) {
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), StatusRunning,
	); err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (stream, pk, data, context, run_id, extracted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(stream, pk) DO UPDATE SET
			data=excluded.data, context=excluded.context,
			run_id=excluded.run_id, extracted_at=excluded.extracted_at`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("preparing upsert: %w", err)
	}

	return &Run{ID: id, ctx: ctx, store: s, tx: tx, upsert: stmt}, nil
}

// WriteSchema stores the stream's schema and key properties.
func (r *Run) WriteSchema(def *streams.Definition) error {
	keys, _ := json.Marshal(def.PrimaryKeys())
	_, err := r.tx.ExecContext(r.ctx,
		`INSERT INTO streams (name, key_properties, schema) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET key_properties=excluded.key_properties, schema=excluded.schema`,
		def.Name(), string(keys), string(def.Schema()),
	)
	if err != nil {
		return fmt.Errorf("upserting stream %s: %w", def.Name(), err)
	}
	r.streams = append(r.streams, def.Name())
	return nil
}

// WriteRecord upserts a record by stream and key (see recordKey).
func (r *Run) WriteRecord(def *streams.Definition, rec types.Record, pc types.Context) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", def.Name(), err)
	}
	pk := recordKey(def, rec, pc, data)
	ctxJSON, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("encoding %s context: %w", def.Name(), err)
	}

	if _, err := r.upsert.ExecContext(r.ctx,
		def.Name(), pk, string(data), string(ctxJSON), r.ID, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upserting %s record %s: %w", def.Name(), pk, err)
	}
	r.records++
	return nil
}

// recordKey is the record's primary key scoped by its parent context, so the
// same custom field attached to two lists keeps a row per list. A record
// without its key fields, such as a tag or the shared hierarchy, is keyed by
// a hash of its encoded form. Root records have no scope.
func recordKey(def *streams.Definition, rec types.Record, pc types.Context, data []byte) string {
	pk, err := rec.Key(def.PrimaryKeys())
	if err != nil {
		pk = fmt.Sprintf("#%016x", xxhash.Sum64(data))
	}
	if scope := pc.String(); scope != "" {
		return scope + "/" + pk
	}
	return pk
}

// Finish commits the run when runErr is nil and rolls it back otherwise,
// then records the outcome. A committed run replaces the snapshot of every
// stream it wrote a schema for: rows that run did not write are removed.
func (r *Run) Finish(runErr error) error {
	r.upsert.Close()

	status := StatusSucceeded
	var errText sql.NullString
	var pruneErr error
	if runErr == nil {
		pruneErr = r.prune()
		runErr = pruneErr
	}
	if runErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
		if err := r.tx.Rollback(); err != nil {
			return fmt.Errorf("rolling back run %s: %w", r.ID, err)
		}
	} else if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", r.ID, err)
	}

	// The run's context may be cancelled by now; the outcome is still recorded.
	_, err := r.store.db.ExecContext(context.Background(),
		`UPDATE runs SET finished_at = ?, status = ?, records = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, r.records, errText, r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", r.ID, err)
	}
	return pruneErr
}

// prune deletes the rows of the run's streams left by earlier runs.
func (r *Run) prune() error {
	for _, name := range r.streams {
		res, err := r.tx.ExecContext(r.ctx,
			`DELETE FROM records WHERE stream = ? AND run_id != ?`, name, r.ID)
		if err != nil {
			return fmt.Errorf("pruning stream %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			slog.Debug("pruned stale records", "run_id", r.ID, "stream", name, "rows", n)
		}
	}
	return nil
}

// StoredRecord is a record as persisted.
type StoredRecord struct {
	Stream      string        `json:"stream" yaml:"stream"`
	Key         string        `json:"key" yaml:"key"`
	Record      types.Record  `json:"record" yaml:"record"`
	Context     types.Context `json:"context,omitempty" yaml:"context,omitempty"`
	RunID       string        `json:"run_id" yaml:"run_id"`
	ExtractedAt time.Time     `json:"extracted_at" yaml:"extracted_at"`
}

// Records returns the stored records of a stream ordered by key. An empty
// stream name returns every stream.
func (s *Store) Records(ctx context.Context, stream string) ([]StoredRecord, error) {
	query := `SELECT stream, pk, data, context, run_id, extracted_at FROM records`
	var args []any
	if stream != "" {
		query += ` WHERE stream = ?`
		args = append(args, stream)
	}
	query += ` ORDER BY stream, pk`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			r               StoredRecord
			data, extracted string
			ctxJSON         sql.NullString
		)
		if err := rows.Scan(&r.Stream, &r.Key, &data, &ctxJSON, &r.RunID, &extracted); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &r.Record); err != nil {
			return nil, fmt.Errorf("decoding %s record %s: %w", r.Stream, r.Key, err)
		}
		if ctxJSON.Valid && ctxJSON.String != "" {
			if err := json.Unmarshal([]byte(ctxJSON.String), &r.Context); err != nil {
				return nil, fmt.Errorf("decoding %s context %s: %w", r.Stream, r.Key, err)
			}
		}
		r.ExtractedAt, _ = time.Parse(time.RFC3339Nano, extracted)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunInfo describes a recorded run.
type RunInfo struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Records    int
	Error      string
}

// Runs returns recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, records, error FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			ri               RunInfo
			started          string
			finished, errTxt sql.NullString
		)
		if err := rows.Scan(&ri.ID, &started, &finished, &ri.Status, &ri.Records, &errTxt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		ri.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			ri.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		ri.Error = errTxt.String
		out = append(out, ri)
	}
	return out, rows.Err()
}
