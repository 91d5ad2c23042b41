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

package types

import (
	"time"

	"github.com/jackc/pgx/v5"
)

type TableRef struct {
	Schema string
	Table  string
}

// String returns the qualified name with both parts quoted for use as a
// regclass literal.
func (t TableRef) String() string {
	return pgx.Identifier{t.Schema, t.Table}.Sanitize()
}

// ColumnCatalog maps character column names to their declared types while
// keeping catalog attribute order.
type ColumnCatalog struct {
	names []string
	types map[string]string
}

func NewColumnCatalog() *ColumnCatalog {
	return &ColumnCatalog{types: make(map[string]string)}
}

// Add registers a column. Re-adding a column only updates its type.
func (c *ColumnCatalog) Add(name, dataType string) {
	if _, ok := c.types[name]; !ok {
		c.names = append(c.names, name)
	}
	c.types[name] = dataType
}

func (c *ColumnCatalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

func (c *ColumnCatalog) Type(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	t, ok := c.types[name]
	return t, ok
}

func (c *ColumnCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

type KeyColumn struct {
	Name     string
	DataType string
}

type UniqueKey []KeyColumn

func (k UniqueKey) Names() []string {
	names := make([]string, len(k))
	for i, col := range k {
		names[i] = col.Name
	}
	return names
}

// Row is one fetched record. Raw holds the bytes as sent by the server, nil
// for SQL NULL; Value holds the driver-decoded value used to bind keys.
type Row struct {
	index  map[string]int
	raw    [][]byte
	values []any
}

func NewRow(columns []string, raw [][]byte, values []any) Row {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return Row{index: index, raw: raw, values: values}
}

func (r Row) Raw(column string) []byte {
	i, ok := r.index[column]
	if !ok || i >= len(r.raw) {
		return nil
	}
	return r.raw[i]
}

func (r Row) Value(column string) (any, bool) {
	i, ok := r.index[column]
	if !ok || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], true
}

// CorrectionSet holds the re-encoded value for every column that needed it.
type CorrectionSet map[string][]byte

type RunStats struct {
	StatementsBuilt int64
	RowsScanned     int64
	RowsUpdated     int64
	WriteFailures   int64
	StartedAt       time.Time
	FinishedAt      time.Time
}

func (s RunStats) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

type OutcomeKind int

const (
	OutcomeClean OutcomeKind = iota
	OutcomeCorrected
	OutcomeWriteFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeClean:
		return "clean"
	case OutcomeCorrected:
		return "corrected"
	case OutcomeWriteFailed:
		return "write_failed"
	}
	return "unknown"
}

// RowOutcome is the result of processing a single row.
type RowOutcome struct {
	Kind         OutcomeKind
	Statement    string
	RowsAffected int64
	Code         string
	Message      string
}

// WriteFailure is the report entry for a row whose UPDATE was rejected.
type WriteFailure struct {
	Statement string `json:"statement"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
}
