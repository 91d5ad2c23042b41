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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScannerBatches(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{batches: [][]fakeRecord{
		{
			{raw: [][]byte{{0xE9}, []byte("1")}, values: []any{"\xe9", int32(1)}},
			{raw: [][]byte{nil, []byte("2")}, values: []any{nil, int32(2)}},
		},
		{
			{raw: [][]byte{[]byte("ok"), []byte("3")}, values: []any{"ok", int32(3)}},
		},
	}}

	s := NewScanner(src, "read_cursor", 2, []string{"name", "id"})
	require.NoError(t, s.Open(ctx, "select name, id from public.customers order by id"))
	require.Equal(t, []string{"DECLARE read_cursor NO SCROLL CURSOR FOR select name, id from public.customers order by id"}, src.execs)

	batch, err := s.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, []byte{0xE9}, batch[0].Raw("name"))
	require.Nil(t, batch[1].Raw("name"))
	v, ok := batch[1].Value("id")
	require.True(t, ok)
	require.Equal(t, int32(2), v)

	batch, err = s.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	batch, err = s.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, batch)

	// exhausted cursors are not fetched again
	batch, err = s.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, batch)
	require.Equal(t, 3, src.fetches)

	require.NoError(t, s.Close(ctx))
	require.Equal(t, "CLOSE read_cursor", src.execs[len(src.execs)-1])
}

func TestScannerCopiesRawValues(t *testing.T) {
	ctx := context.Background()
	buf := []byte{0xE9, 0x6C, 0xE9}
	src := &fakeSource{batches: [][]fakeRecord{{{raw: [][]byte{buf}, values: []any{"x"}}}}}

	s := NewScanner(src, "read_cursor", 10, []string{"name"})
	require.NoError(t, s.Open(ctx, "select name from t order by name"))
	batch, err := s.Next(ctx)
	require.NoError(t, err)

	buf[0] = 'X'
	require.Equal(t, []byte{0xE9, 0x6C, 0xE9}, batch[0].Raw("name"))
}

func TestScannerColumnMismatch(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{batches: [][]fakeRecord{{{raw: [][]byte{[]byte("1")}, values: []any{int32(1)}}}}}

	s := NewScanner(src, "read_cursor", 10, []string{"name", "id"})
	require.NoError(t, s.Open(ctx, "select name, id from t order by id"))
	_, err := s.Next(ctx)
	require.Error(t, err)
}

func TestScannerFetchError(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{fetchErr: errors.New("connection reset")}

	s := NewScanner(src, "read_cursor", 10, []string{"id"})
	require.NoError(t, s.Open(ctx, "select id from t order by id"))
	_, err := s.Next(ctx)
	require.ErrorContains(t, err, "connection reset")
}

func TestScannerLifecycle(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}

	s := NewScanner(src, "read_cursor", 10, []string{"id"})
	_, err := s.Next(ctx)
	require.Error(t, err)
	require.NoError(t, s.Close(ctx))
	require.Empty(t, src.execs)

	require.NoError(t, s.Open(ctx, "select id from t order by id"))
	require.Error(t, s.Open(ctx, "select id from t order by id"))

	bad := NewScanner(src, "bad cursor", 10, []string{"id"})
	require.Error(t, bad.Open(ctx, "select 1"))

	zero := NewScanner(src, "read_cursor", 0, []string{"id"})
	require.Error(t, zero.Open(ctx, "select 1"))
}
