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

package recode

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRows struct {
	raw    [][][]byte
	values [][]any
	idx    int
	err    error
}

func (f *fakeRows) Close()                                       {}
func (f *fakeRows) Err() error                                   { return f.err }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Next() bool {
	if f.idx < len(f.values) {
		f.idx++
		return true
	}
	return false
}

func (f *fakeRows) RawValues() [][]byte {
	if f.idx-1 < len(f.raw) {
		return f.raw[f.idx-1]
	}
	return nil
}

func (f *fakeRows) Values() ([]any, error) {
	return f.values[f.idx-1], nil
}

func (f *fakeRows) Scan(dest ...any) error {
	return assign(dest, f.values[f.idx-1])
}

type fakeRow struct {
	values []any
	err    error
}

func (f *fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	return assign(dest, f.values)
}

func assign(dest []any, src []any) error {
	if len(dest) != len(src) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(src))
	}
	for i, d := range dest {
		if src[i] == nil {
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(src[i]))
	}
	return nil
}

// fakeRecord is one fetched row: raw wire bytes and decoded values, both in
// select-list order.
type fakeRecord struct {
	raw    [][]byte
	values []any
}

// fakeSource answers the catalog queries a run issues and serves batches
// to FETCH in order. fetchErr is returned once the batches run out.
type fakeSource struct {
	encoding  string
	parent    bool
	parentErr error
	columns   [][2]string
	keyCols   []string
	keyTypes  []string
	estimate  int64
	batches   [][]fakeRecord
	fetchErr  error

	fetches int
	execs   []string
	closed  bool
}

func (f *fakeSource) Exec(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeSource) Query(_ context.Context, sql string, _ ...interface{}) (pgx.Rows, error) {
	switch {
	case strings.Contains(sql, "typcategory"):
		rows := &fakeRows{}
		for _, c := range f.columns {
			rows.values = append(rows.values, []any{c[0], c[1]})
		}
		return rows, nil
	case strings.Contains(sql, "out_unique_key_col"):
		if f.keyCols == nil {
			return &fakeRows{}, nil
		}
		return &fakeRows{values: [][]any{{f.keyCols, f.keyTypes}}}, nil
	case strings.HasPrefix(sql, "FETCH"):
		if f.fetches >= len(f.batches) {
			f.fetches++
			if f.fetchErr != nil {
				return nil, f.fetchErr
			}
			return &fakeRows{}, nil
		}
		batch := f.batches[f.fetches]
		f.fetches++
		rows := &fakeRows{}
		for _, r := range batch {
			rows.raw = append(rows.raw, r.raw)
			rows.values = append(rows.values, r.values)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", sql)
}

func (f *fakeSource) QueryRow(_ context.Context, sql string, _ ...interface{}) pgx.Row {
	switch {
	case strings.Contains(sql, "pg_inherits"):
		return &fakeRow{values: []any{f.parent}, err: f.parentErr}
	case strings.Contains(sql, "reltuples"):
		return &fakeRow{values: []any{f.estimate}}
	}
	return &fakeRow{err: fmt.Errorf("unexpected query: %s", sql)}
}

func (f *fakeSource) Encoding() string {
	if f.encoding == "" {
		return "SQL_ASCII"
	}
	return f.encoding
}

func (f *fakeSource) Close(context.Context) error {
	f.closed = true
	return nil
}

type fakeExec struct {
	sql  string
	args []any
}

type fakeTarget struct {
	calls  []fakeExec
	errFor func(args []any) error
	closed bool
}

func (f *fakeTarget) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, fakeExec{sql: sql, args: args})
	if f.errFor != nil {
		if err := f.errFor(args); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeTarget) Close() {
	f.closed = true
}
