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
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgedge/recode/pkg/types"
)

// SQLSTATE raised when the key routine is not installed.
const undefinedFunction = "42883"

const keyLookupSavepoint = "recode_key_lookup"

// ErrNoUniqueKey is returned when a table has no usable unique key. Rows of
// such a table cannot be addressed individually.
var ErrNoUniqueKey = errors.New("no unique key found")

// Execer is the subset of DBTX needed for statements that return no rows.
type Execer interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

var bareIdentifierRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var validIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var reservedWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		all analyse analyze and any array as asc asymmetric authorization binary
		both case cast check collate collation column concurrently constraint
		create cross current_catalog current_date current_role current_schema
		current_time current_timestamp current_user default deferrable desc
		distinct do else end except false fetch for foreign freeze from full
		grant group having ilike in initially inner intersect into is isnull join
		lateral leading left like limit localtime localtimestamp natural not
		notnull null offset on only or order outer overlaps placing primary
		references returning right select session_user similar some symmetric
		system_user table tablesample then to trailing true union unique user
		using variadic verbose when where window with`) {
		reservedWords[w] = struct{}{}
	}
}

func SanitiseIdentifier(ident string) error {
	if !validIdentifierRegex.MatchString(ident) {
		return fmt.Errorf("invalid identifier: %s", ident)
	}
	return nil
}

// QuoteIdent quotes ident only when the server would otherwise fold or
// reject it.
func QuoteIdent(ident string) string {
	if bareIdentifierRegex.MatchString(ident) {
		if _, reserved := reservedWords[ident]; !reserved {
			return ident
		}
	}
	return pgx.Identifier{ident}.Sanitize()
}

func QualifiedName(schema, table string) string {
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}

// functionIdent accepts a plain or schema-qualified routine name.
func functionIdent(name string) (string, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid function name %q", name)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid function name %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

func RenderSQL(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render SQL: %w", err)
	}
	return buf.String(), nil
}

// IsParentTable reports whether any other table inherits from, or is a
// partition of, schema.table.
func IsParentTable(ctx context.Context, db DBTX, schema, table string) (bool, error) {
	sql, err := RenderSQL(SQLTemplates.IsParentTable, nil)
	if err != nil {
		return false, fmt.Errorf("failed to render IsParentTable SQL: %w", err)
	}

	var parent bool
	ref := types.TableRef{Schema: schema, Table: table}
	if err := db.QueryRow(ctx, sql, ref.String()).Scan(&parent); err != nil {
		return false, fmt.Errorf("query to check inheritance for %s.%s failed: %w", schema, table, err)
	}
	return parent, nil
}

// GetCharColumns returns the base string-category columns of schema.table in
// attribute order.
func GetCharColumns(ctx context.Context, db DBTX, schema, table string) (*types.ColumnCatalog, error) {
	sql, err := RenderSQL(SQLTemplates.GetCharColumns, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render GetCharColumns SQL: %w", err)
	}

	rows, err := db.Query(ctx, sql, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query to get character columns failed for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	catalog := types.NewColumnCatalog()
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("failed to scan character column: %w", err)
		}
		catalog.Add(name, dataType)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over character columns: %w", err)
	}

	return catalog, nil
}

func GetRowCountEstimate(ctx context.Context, db DBTX, schema, table string) (int64, error) {
	sql, err := RenderSQL(SQLTemplates.EstimateRowCount, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to render EstimateRowCount SQL: %w", err)
	}

	var count int64
	if err := db.QueryRow(ctx, sql, schema, table).Scan(&count); err != nil {
		return 0, fmt.Errorf("query to get row count estimate for '%s.%s' failed: %w", schema, table, err)
	}
	if count < 0 {
		// never analysed
		return 0, nil
	}
	return count, nil
}

// GetShortestUniqueKey resolves the key through the server routine named by
// function and flattens every candidate it returns. When the routine is not
// installed the same lookup runs directly against the catalog. db must be
// inside a transaction.
func GetShortestUniqueKey(ctx context.Context, db DBTX, function, schema, table string) (types.UniqueKey, error) {
	ident, err := functionIdent(function)
	if err != nil {
		return nil, err
	}
	sql, err := RenderSQL(SQLTemplates.GetShortestUniqueKey, map[string]any{
		"FunctionIdent": ident,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render GetShortestUniqueKey SQL: %w", err)
	}

	if _, err := db.Exec(ctx, "SAVEPOINT "+keyLookupSavepoint); err != nil {
		return nil, fmt.Errorf("failed to create savepoint for key lookup: %w", err)
	}

	key, err := collectKey(ctx, db, sql, schema, table)
	if err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != undefinedFunction {
			return nil, fmt.Errorf("query to get shortest unique key for %s.%s failed: %w", schema, table, err)
		}
		if _, rbErr := db.Exec(ctx, "ROLLBACK TO SAVEPOINT "+keyLookupSavepoint); rbErr != nil {
			return nil, fmt.Errorf("failed to roll back key lookup: %w", rbErr)
		}

		catalogSQL, rerr := RenderSQL(SQLTemplates.GetUniqueKeyFromCatalog, map[string]any{
			"SchemaArg": "$1",
			"TableArg":  "$2",
		})
		if rerr != nil {
			return nil, fmt.Errorf("failed to render GetUniqueKeyFromCatalog SQL: %w", rerr)
		}
		key, err = collectKey(ctx, db, catalogSQL, schema, table)
		if err != nil {
			return nil, fmt.Errorf("catalog query to get unique key for %s.%s failed: %w", schema, table, err)
		}
	}

	if _, err := db.Exec(ctx, "RELEASE SAVEPOINT "+keyLookupSavepoint); err != nil {
		return nil, fmt.Errorf("failed to release savepoint for key lookup: %w", err)
	}

	if len(key) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", schema, table, ErrNoUniqueKey)
	}
	return key, nil
}

func collectKey(ctx context.Context, db DBTX, sql, schema, table string) (types.UniqueKey, error) {
	rows, err := db.Query(ctx, sql, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var key types.UniqueKey
	for rows.Next() {
		var cols, dataTypes []string
		if err := rows.Scan(&cols, &dataTypes); err != nil {
			return nil, fmt.Errorf("failed to scan unique key candidate: %w", err)
		}
		if len(cols) != len(dataTypes) {
			return nil, fmt.Errorf("unique key candidate has %d columns but %d types", len(cols), len(dataTypes))
		}
		for i := range cols {
			key = append(key, types.KeyColumn{Name: cols[i], DataType: dataTypes[i]})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return key, nil
}

// InstallShortestUniqueKeyFunction creates or replaces the key routine.
func InstallShortestUniqueKeyFunction(ctx context.Context, db Execer, function string) error {
	ident, err := functionIdent(function)
	if err != nil {
		return err
	}
	sql, err := RenderSQL(SQLTemplates.CreateShortestUniqueKey, map[string]any{
		"FunctionIdent": ident,
		"SchemaArg":     "in_schema",
		"TableArg":      "in_table",
	})
	if err != nil {
		return fmt.Errorf("failed to render CreateShortestUniqueKey SQL: %w", err)
	}

	if _, err := db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("query to create %s failed: %w", function, err)
	}
	return nil
}

// SelectColumns is the union of character and key columns, first occurrence
// wins.
func SelectColumns(columns *types.ColumnCatalog, key types.UniqueKey) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range append(columns.Names(), key.Names()...) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func BuildSelectQuery(schema, table string, columns *types.ColumnCatalog, key types.UniqueKey) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%s.%s: %w", schema, table, ErrNoUniqueKey)
	}

	selectCols := SelectColumns(columns, key)
	quoted := make([]string, len(selectCols))
	for i, c := range selectCols {
		quoted[i] = QuoteIdent(c)
	}
	order := make([]string, len(key))
	for i, k := range key {
		order[i] = QuoteIdent(k.Name)
	}

	return RenderSQL(SQLTemplates.SelectRows, map[string]any{
		"Columns":    strings.Join(quoted, ", "),
		"TableIdent": QualifiedName(schema, table),
		"OrderBy":    strings.Join(order, ", "),
	})
}

func DeclareCursorSQL(cursor, query string) (string, error) {
	if err := SanitiseIdentifier(cursor); err != nil {
		return "", err
	}
	return RenderSQL(SQLTemplates.DeclareCursor, map[string]any{
		"CursorIdent": QuoteIdent(cursor),
		"Query":       query,
	})
}

func FetchCursorSQL(cursor string, batchSize int) (string, error) {
	if err := SanitiseIdentifier(cursor); err != nil {
		return "", err
	}
	if batchSize < 1 {
		return "", fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return RenderSQL(SQLTemplates.FetchCursor, map[string]any{
		"CursorIdent": QuoteIdent(cursor),
		"BatchSize":   batchSize,
	})
}

func CloseCursorSQL(cursor string) (string, error) {
	if err := SanitiseIdentifier(cursor); err != nil {
		return "", err
	}
	return RenderSQL(SQLTemplates.CloseCursor, map[string]any{
		"CursorIdent": QuoteIdent(cursor),
	})
}
