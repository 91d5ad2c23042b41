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

	"github.com/pgedge/recode/db/queries"
	"github.com/pgedge/recode/pkg/types"
)

// Scanner streams a SELECT through a server-side cursor, one batch per
// FETCH. It is single pass.
type Scanner struct {
	db        queries.DBTX
	cursor    string
	batchSize int
	columns   []string

	fetchSQL string
	declared bool
	done     bool
}

// NewScanner prepares a scanner whose result columns are, in order, columns.
func NewScanner(db queries.DBTX, cursor string, batchSize int, columns []string) *Scanner {
	return &Scanner{
		db:        db,
		cursor:    cursor,
		batchSize: batchSize,
		columns:   columns,
	}
}

func (s *Scanner) Open(ctx context.Context, selectSQL string) error {
	if s.declared {
		return fmt.Errorf("cursor %s is already open", s.cursor)
	}
	fetchSQL, err := queries.FetchCursorSQL(s.cursor, s.batchSize)
	if err != nil {
		return err
	}
	declareSQL, err := queries.DeclareCursorSQL(s.cursor, selectSQL)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, declareSQL); err != nil {
		return fmt.Errorf("failed to declare cursor %s: %w", s.cursor, err)
	}
	s.fetchSQL = fetchSQL
	s.declared = true
	return nil
}

// Next returns the next batch, or nil once the cursor is exhausted.
func (s *Scanner) Next(ctx context.Context) ([]types.Row, error) {
	if !s.declared {
		return nil, fmt.Errorf("cursor %s is not open", s.cursor)
	}
	if s.done {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, s.fetchSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from cursor %s: %w", s.cursor, err)
	}
	defer rows.Close()

	batch := make([]types.Row, 0, s.batchSize)
	for rows.Next() {
		raw := rows.RawValues()
		if len(raw) != len(s.columns) {
			return nil, fmt.Errorf("cursor %s returned %d columns, expected %d", s.cursor, len(raw), len(s.columns))
		}
		// RawValues is only valid until the next call to Next.
		owned := make([][]byte, len(raw))
		for i, b := range raw {
			if b != nil {
				owned[i] = append([]byte{}, b...)
			}
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to decode row from cursor %s: %w", s.cursor, err)
		}
		batch = append(batch, types.NewRow(s.columns, owned, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over cursor %s: %w", s.cursor, err)
	}

	if len(batch) == 0 {
		s.done = true
		return nil, nil
	}
	return batch, nil
}

func (s *Scanner) Close(ctx context.Context) error {
	if !s.declared {
		return nil
	}
	s.declared = false
	closeSQL, err := queries.CloseCursorSQL(s.cursor)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, closeSQL); err != nil {
		return fmt.Errorf("failed to close cursor %s: %w", s.cursor, err)
	}
	return nil
}
