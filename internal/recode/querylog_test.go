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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryLogName(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 5, 3, 0, time.UTC)
	require.Equal(t, "public.customers-queries.2026-10-14-09-05-03", queryLogName("public", "customers", now))
}

func TestQueryLogWriteAndAppend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	now := time.Date(2026, 10, 14, 9, 5, 3, 0, time.UTC)

	qlog, err := OpenQueryLog(dir, "public", "customers", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "public.customers-queries.2026-10-14-09-05-03"), qlog.Path())
	require.NoError(t, qlog.Write("update public.customers set name = 'élé'::character varying where id = 7 ;"))
	require.NoError(t, qlog.Close())
	require.NoError(t, qlog.Close())

	qlog, err = OpenQueryLog(dir, "public", "customers", now)
	require.NoError(t, err)
	require.NoError(t, qlog.Write("update public.customers set name = 'Zoë'::character varying where id = 8 ;"))
	require.NoError(t, qlog.Close())

	data, err := os.ReadFile(filepath.Join(dir, "public.customers-queries.2026-10-14-09-05-03"))
	require.NoError(t, err)
	require.Equal(t,
		"update public.customers set name = 'élé'::character varying where id = 7 ;\n"+
			"update public.customers set name = 'Zoë'::character varying where id = 8 ;\n",
		string(data))
}

func TestQueryLogNilClose(t *testing.T) {
	var qlog *QueryLog
	require.NoError(t, qlog.Close())
	require.Empty(t, qlog.Path())
}
