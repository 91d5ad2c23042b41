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
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgedge/recode/db/queries"
	"github.com/pgedge/recode/pkg/types"
)

// Executor runs one statement on the write side. *pgxpool.Pool satisfies it
// and holds a connection only for the duration of the call.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Statement is a parameterized UPDATE together with the declared type of
// every parameter, which rendering needs.
type Statement struct {
	SQL      string
	Args     []any
	ArgTypes []string
}

func (s Statement) Render() (string, error) {
	return queries.RenderStatement(s.SQL, s.Args, s.ArgTypes)
}

// BuildUpdate builds the UPDATE for one corrected row. SET columns are sorted
// and cast to their declared types; WHERE follows key order.
func BuildUpdate(table types.TableRef, columns *types.ColumnCatalog, key types.UniqueKey, corrections types.CorrectionSet, row types.Row) (Statement, error) {
	if len(corrections) == 0 {
		return Statement{}, fmt.Errorf("no corrections for %s.%s", table.Schema, table.Table)
	}
	if len(key) == 0 {
		return Statement{}, fmt.Errorf("%s.%s: %w", table.Schema, table.Table, queries.ErrNoUniqueKey)
	}

	updateCols := make([]string, 0, len(corrections))
	for c := range corrections {
		updateCols = append(updateCols, c)
	}
	sort.Strings(updateCols)

	stmt := Statement{
		Args:     make([]any, 0, len(updateCols)+len(key)),
		ArgTypes: make([]string, 0, len(updateCols)+len(key)),
	}

	setParts := make([]string, 0, len(updateCols))
	for _, c := range updateCols {
		colType, ok := columns.Type(c)
		if !ok {
			return Statement{}, fmt.Errorf("column type for %s not found", c)
		}
		stmt.Args = append(stmt.Args, string(corrections[c]))
		stmt.ArgTypes = append(stmt.ArgTypes, colType)
		setParts = append(setParts, fmt.Sprintf("%s = $%d::%s", queries.QuoteIdent(c), len(stmt.Args), colType))
	}

	whereParts := make([]string, 0, len(key))
	for _, k := range key {
		val, ok := row.Value(k.Name)
		if !ok {
			return Statement{}, fmt.Errorf("key column %s missing from row", k.Name)
		}
		if val == nil {
			return Statement{}, fmt.Errorf("key column %s is NULL", k.Name)
		}
		stmt.Args = append(stmt.Args, val)
		stmt.ArgTypes = append(stmt.ArgTypes, k.DataType)
		whereParts = append(whereParts, fmt.Sprintf("%s = $%d", queries.QuoteIdent(k.Name), len(stmt.Args)))
	}

	sql, err := queries.RenderSQL(queries.SQLTemplates.UpdateRow, map[string]any{
		"TableIdent":  queries.QualifiedName(table.Schema, table.Table),
		"SetClause":   strings.Join(setParts, ", "),
		"WhereClause": strings.Join(whereParts, " and "),
	})
	if err != nil {
		return Statement{}, fmt.Errorf("failed to render UpdateRow SQL: %w", err)
	}
	stmt.SQL = sql
	return stmt, nil
}

type Writer struct {
	exec Executor
}

func NewWriter(exec Executor) *Writer {
	return &Writer{exec: exec}
}

// Apply executes stmt. A failure is reported in the outcome rather than
// returned so the caller can move on to the next row.
func (w *Writer) Apply(ctx context.Context, stmt Statement) types.RowOutcome {
	tag, err := w.exec.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return failedOutcome(err)
	}
	return types.RowOutcome{
		Kind:         types.OutcomeCorrected,
		RowsAffected: tag.RowsAffected(),
	}
}

func failedOutcome(err error) types.RowOutcome {
	out := types.RowOutcome{
		Kind:    types.OutcomeWriteFailed,
		Message: err.Error(),
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out.Code = pgErr.Code
		out.Message = pgErr.Message
		if pgErr.Detail != "" {
			out.Message += "\nDETAIL:  " + pgErr.Detail
		}
	}
	return out
}
