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

package queries

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type mockRows struct {
	rows [][]any
	idx  int
	err  error
}

func (m *mockRows) Close()                                       {}
func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

func (m *mockRows) Next() bool {
	if m.idx < len(m.rows) {
		m.idx++
		return true
	}
	return false
}

func (m *mockRows) Values() ([]any, error) {
	return m.rows[m.idx-1], nil
}

func (m *mockRows) Scan(dest ...any) error {
	return assign(dest, m.rows[m.idx-1])
}

type mockRow struct {
	scanArgs []any
	scanErr  error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.scanErr != nil {
		return m.scanErr
	}
	return assign(dest, m.scanArgs)
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

type mockDB struct {
	execs   []string
	queries []string
	args    [][]any

	queryFn func(sql string, args []any) (pgx.Rows, error)
	rowFn   func(sql string, args []any) pgx.Row
}

func (m *mockDB) Exec(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (m *mockDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	m.queries = append(m.queries, sql)
	m.args = append(m.args, args)
	if m.queryFn == nil {
		return &mockRows{}, nil
	}
	return m.queryFn(sql, args)
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	m.queries = append(m.queries, sql)
	m.args = append(m.args, args)
	if m.rowFn == nil {
		return &mockRow{scanErr: pgx.ErrNoRows}
	}
	return m.rowFn(sql, args)
}
