// ///////////////////////////////////////////////////////////////////////////
//
// # recode - Latin-1 to UTF-8 table repair
//
// Copyright (C) 2023 - 2026, pgEdge (https://www.pgedge.com/)
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package taskstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusSkipped   = "SKIPPED"
	StatusFailed    = "FAILED"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeUpdate = "UPDATE"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS recode_runs (
    run_id           TEXT PRIMARY KEY,
    run_status       TEXT NOT NULL,
    mode             TEXT NOT NULL,
    schema           TEXT NOT NULL,
    table_name       TEXT NOT NULL,
    statements_built INTEGER NOT NULL DEFAULT 0,
    rows_scanned     INTEGER NOT NULL DEFAULT 0,
    rows_updated     INTEGER NOT NULL DEFAULT 0,
    write_failures   INTEGER NOT NULL DEFAULT 0,
    run_context      TEXT,
    started_at       TEXT,
    finished_at      TEXT,
    time_taken       REAL
);`

var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

type Record struct {
	RunID           string
	Status          string
	Mode            string
	SchemaName      string
	TableName       string
	StatementsBuilt int64
	RowsScanned     int64
	RowsUpdated     int64
	WriteFailures   int64
	StartedAt       time.Time
	FinishedAt      time.Time
	TimeTaken       float64
	RunContext      map[string]any
	RawRunContext   string
}

// Recorder tracks a single run. It is safe to use with a nil store, in
// which case every call is a no-op.
type Recorder struct {
	store     *Store
	ownsStore bool
	created   bool
}

func NewRecorder(existing *Store, path string) (*Recorder, error) {
	if existing != nil {
		return &Recorder{store: existing}, nil
	}
	store, err := New(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: store, ownsStore: true}, nil
}

func (r *Recorder) Store() *Store {
	if r == nil {
		return nil
	}
	return r.store
}

func (r *Recorder) OwnsStore() bool {
	if r == nil {
		return false
	}
	return r.ownsStore
}

func (r *Recorder) HasStore() bool {
	return r != nil && r.store != nil
}

func (r *Recorder) Created() bool {
	return r != nil && r.created
}

func (r *Recorder) Create(rec Record) error {
	if !r.HasStore() {
		return nil
	}
	if err := r.store.Create(rec); err != nil {
		return err
	}
	r.created = true
	return nil
}

func (r *Recorder) Update(rec Record) error {
	if !r.HasStore() || !r.created {
		return nil
	}
	return r.store.Update(rec)
}

func (r *Recorder) Close() error {
	if !r.OwnsStore() || r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}

func New(path string) (*Store, error) {
	sqlitePath := resolvePath(path)
	if err := ensureDir(sqlitePath); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite3", sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectColumns = `run_id, run_status, mode, schema, table_name,
                statements_built, rows_scanned, rows_updated, write_failures,
                run_context, started_at, finished_at, time_taken`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec        Record
		ctxVal     sql.NullString
		startedAt  sql.NullString
		finishedAt sql.NullString
		timeTaken  sql.NullFloat64
	)
	if err := row.Scan(
		&rec.RunID,
		&rec.Status,
		&rec.Mode,
		&rec.SchemaName,
		&rec.TableName,
		&rec.StatementsBuilt,
		&rec.RowsScanned,
		&rec.RowsUpdated,
		&rec.WriteFailures,
		&ctxVal,
		&startedAt,
		&finishedAt,
		&timeTaken,
	); err != nil {
		return Record{}, err
	}

	if timeTaken.Valid {
		rec.TimeTaken = timeTaken.Float64
	}
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAt.String); err == nil {
			rec.StartedAt = t
		}
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			rec.FinishedAt = t
		}
	}
	if ctxVal.Valid && strings.TrimSpace(ctxVal.String) != "" {
		rec.RawRunContext = ctxVal.String
		var runContext map[string]any
		if err := json.Unmarshal([]byte(ctxVal.String), &runContext); err == nil {
			rec.RunContext = runContext
		}
	}
	return rec, nil
}

func (s *Store) Get(runID string) (Record, error) {
	if strings.TrimSpace(runID) == "" {
		return Record{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM recode_runs WHERE run_id = ?`, runID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("fetch run %s: %w", runID, err)
	}
	return rec, nil
}

// ListForTable returns the runs against schema.table, newest first.
func (s *Store) ListForTable(schema, table string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT `+selectColumns+` FROM recode_runs
         WHERE schema = ? AND table_name = ?
         ORDER BY started_at DESC LIMIT ?`, schema, table, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Create(rec Record) error {
	if err := rec.validateForCreate(); err != nil {
		return err
	}
	ctxVal, err := rec.contextValue()
	if err != nil {
		return fmt.Errorf("marshal run context: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO recode_runs (
            run_id, run_status, mode, schema, table_name,
            statements_built, rows_scanned, rows_updated, write_failures,
            run_context, started_at, finished_at, time_taken
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Status,
		rec.Mode,
		rec.SchemaName,
		rec.TableName,
		rec.StatementsBuilt,
		rec.RowsScanned,
		rec.RowsUpdated,
		rec.WriteFailures,
		ctxVal,
		timeOrNil(rec.StartedAt),
		timeOrNil(rec.FinishedAt),
		rec.TimeTaken,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) Update(rec Record) error {
	if strings.TrimSpace(rec.RunID) == "" {
		return errors.New("run id is required")
	}
	ctxVal, err := rec.contextValue()
	if err != nil {
		return fmt.Errorf("marshal run context: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE recode_runs SET
            run_status = ?,
            statements_built = ?,
            rows_scanned = ?,
            rows_updated = ?,
            write_failures = ?,
            run_context = ?,
            finished_at = ?,
            time_taken = ?
        WHERE run_id = ?`,
		rec.Status,
		rec.StatementsBuilt,
		rec.RowsScanned,
		rec.RowsUpdated,
		rec.WriteFailures,
		ctxVal,
		timeOrNil(rec.FinishedAt),
		rec.TimeTaken,
		rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("ensure recode_runs schema: %w", err)
	}
	return nil
}

func (r Record) validateForCreate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.Status) == "" {
		return errors.New("run status is required")
	}
	if strings.TrimSpace(r.Mode) == "" {
		return errors.New("run mode is required")
	}
	if strings.TrimSpace(r.SchemaName) == "" || strings.TrimSpace(r.TableName) == "" {
		return errors.New("schema and table are required")
	}
	return nil
}

func (r Record) contextValue() (any, error) {
	if len(r.RunContext) > 0 {
		blob, err := json.Marshal(r.RunContext)
		if err != nil {
			return nil, err
		}
		return string(blob), nil
	}
	if strings.TrimSpace(r.RawRunContext) != "" {
		return r.RawRunContext, nil
	}
	return nil, nil
}

func resolvePath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := os.Getenv("RECODE_TASKS_DB"); strings.TrimSpace(env) != "" {
		return env
	}
	return filepath.Join(".", "recode_tasks.db")
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
