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

import "text/template"

type Templates struct {
	IsParentTable           *template.Template
	GetCharColumns          *template.Template
	EstimateRowCount        *template.Template
	GetShortestUniqueKey    *template.Template
	GetUniqueKeyFromCatalog *template.Template
	CreateShortestUniqueKey *template.Template
	SelectRows              *template.Template
	DeclareCursor           *template.Template
	FetchCursor             *template.Template
	CloseCursor             *template.Template
	UpdateRow               *template.Template
}

// uniqueKeyBody picks the primary key, or else the narrowest valid unique
// index without predicate or expressions whose columns are all NOT NULL.
const uniqueKeyBody = `
		SELECT
			array_agg(a.attname::text ORDER BY k.ord) AS out_unique_key_col,
			array_agg(pg_catalog.format_type(a.atttypid, a.atttypmod) ORDER BY k.ord) AS out_unique_key_data_type
		FROM
			(
				SELECT
					i.indrelid,
					i.indkey,
					i.indnkeyatts
				FROM
					pg_catalog.pg_index i
					JOIN pg_catalog.pg_class c ON c.oid = i.indrelid
					JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
				WHERE
					n.nspname = {{.SchemaArg}}
					AND c.relname = {{.TableArg}}
					AND i.indisunique
					AND i.indisvalid
					AND i.indpred IS NULL
					AND i.indexprs IS NULL
					AND NOT EXISTS (
						SELECT
							1
						FROM
							pg_catalog.pg_attribute na
						WHERE
							na.attrelid = i.indrelid
							AND na.attnum = ANY (i.indkey::int2[])
							AND NOT na.attnotnull
					)
				ORDER BY
					i.indisprimary DESC,
					i.indnkeyatts,
					i.indexrelid
				LIMIT 1
			) idx
			CROSS JOIN LATERAL unnest(idx.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
			JOIN pg_catalog.pg_attribute a ON a.attrelid = idx.indrelid
			AND a.attnum = k.attnum
		WHERE
			k.ord <= idx.indnkeyatts
		HAVING
			count(*) > 0`

var SQLTemplates = Templates{
	IsParentTable: template.Must(template.New("isParentTable").Parse(`
		SELECT
			EXISTS (
				SELECT
					1
				FROM
					pg_catalog.pg_inherits
				WHERE
					inhparent = $1::regclass
			);
	`)),
	GetCharColumns: template.Must(template.New("getCharColumns").Parse(`
		SELECT
			a.attname AS column_name,
			pg_catalog.format_type(a.atttypid, a.atttypmod) AS column_type
		FROM
			pg_catalog.pg_class c
			JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
			JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid
			JOIN pg_catalog.pg_type t ON a.atttypid = t.oid
		WHERE
			c.relkind = 'r'
			AND t.typtype = 'b'
			AND t.typcategory = 'S'
			AND NOT a.attisdropped
			AND a.attnum > 0
			AND n.nspname = $1
			AND c.relname = $2
		ORDER BY
			a.attnum;
	`)),
	EstimateRowCount: template.Must(template.New("estimateRowCount").Parse(`
		SELECT
			COALESCE(c.reltuples::bigint, 0)
		FROM
			pg_catalog.pg_class c
			JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
		WHERE
			n.nspname = $1
			AND c.relname = $2;
	`)),
	GetShortestUniqueKey: template.Must(template.New("getShortestUniqueKey").Parse(`
		SELECT
			out_unique_key_col,
			out_unique_key_data_type
		FROM
			{{.FunctionIdent}}($1, $2);
	`)),
	GetUniqueKeyFromCatalog: template.Must(template.New("getUniqueKeyFromCatalog").Parse(uniqueKeyBody + ";")),
	CreateShortestUniqueKey: template.Must(template.New("createShortestUniqueKey").Parse(`
		CREATE
		OR REPLACE FUNCTION {{.FunctionIdent}}(in_schema text, in_table text)
		RETURNS TABLE (out_unique_key_col text[], out_unique_key_data_type text[])
		LANGUAGE sql STABLE AS $fn$` + uniqueKeyBody + `
		$fn$;
	`)),
	SelectRows: template.Must(template.New("selectRows").Parse(
		`select {{.Columns}} from {{.TableIdent}} order by {{.OrderBy}}`,
	)),
	DeclareCursor: template.Must(template.New("declareCursor").Parse(
		`DECLARE {{.CursorIdent}} NO SCROLL CURSOR FOR {{.Query}}`,
	)),
	FetchCursor: template.Must(template.New("fetchCursor").Parse(
		`FETCH FORWARD {{.BatchSize}} FROM {{.CursorIdent}}`,
	)),
	CloseCursor: template.Must(template.New("closeCursor").Parse(
		`CLOSE {{.CursorIdent}}`,
	)),
	UpdateRow: template.Must(template.New("updateRow").Parse(
		`update {{.TableIdent}} set {{.SetClause}} where {{.WhereClause}} ;`,
	)),
}
