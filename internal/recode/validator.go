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
	"unicode/utf8"

	"github.com/pgedge/recode/pkg/types"
	"golang.org/x/text/encoding/charmap"
)

// ValidateColumn returns the UTF-8 re-encoding of raw read as Latin-1 when raw
// is not valid UTF-8. NULL and empty values never need correction.
func ValidateColumn(raw []byte) ([]byte, bool) {
	if len(raw) == 0 || utf8.Valid(raw) {
		return nil, false
	}
	// ISO-8859-1 maps every byte, so decoding cannot fail.
	fixed, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, false
	}
	return fixed, true
}

// CorrectRow validates every catalog column of row and keeps the ones that
// changed.
func CorrectRow(row types.Row, columns *types.ColumnCatalog) types.CorrectionSet {
	corrections := types.CorrectionSet{}
	for _, col := range columns.Names() {
		if fixed, ok := ValidateColumn(row.Raw(col)); ok {
			corrections[col] = fixed
		}
	}
	return corrections
}
