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
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var numericTypePrefixes = []string{
	"smallint", "integer", "bigint", "numeric", "decimal", "real",
	"double precision", "oid", "int2", "int4", "int8", "float4", "float8",
}

var numericLiteralRegex = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?([eE][-+]?[0-9]+)?$`)

func isNumericType(dataType string) bool {
	dt := strings.ToLower(strings.TrimSpace(dataType))
	for _, p := range numericTypePrefixes {
		if dt == p || strings.HasPrefix(dt, p+"(") {
			return true
		}
	}
	return false
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// RenderLiteral formats v as a SQL literal. dataType is the declared column
// type, if known, and only decides whether a string stays unquoted.
func RenderLiteral(v any, dataType string) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case string:
		if isNumericType(dataType) && numericLiteralRegex.MatchString(val) {
			return val, nil
		}
		return quoteLiteral(val), nil
	case []byte:
		if strings.EqualFold(strings.TrimSpace(dataType), "bytea") {
			return `'\x` + hex.EncodeToString(val) + `'`, nil
		}
		return quoteLiteral(string(val)), nil
	case time.Time:
		if strings.EqualFold(strings.TrimSpace(dataType), "date") {
			return quoteLiteral(val.Format("2006-01-02")), nil
		}
		return quoteLiteral(val.Format("2006-01-02 15:04:05.999999Z07:00")), nil
	case [16]byte:
		return quoteLiteral(uuid.UUID(val).String()), nil
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return "", fmt.Errorf("failed to get value of %T: %w", v, err)
		}
		return RenderLiteral(inner, dataType)
	case fmt.Stringer:
		return quoteLiteral(val.String()), nil
	}
	return quoteLiteral(fmt.Sprint(v)), nil
}

// RenderStatement substitutes $n placeholders with literals so the statement
// can be read or replayed by hand. Placeholders inside quoted identifiers and
// string literals are left alone.
func RenderStatement(sql string, args []any, argTypes []string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(sql) + 16*len(args))

	inIdent, inLiteral := false, false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inIdent:
			if ch == '"' {
				inIdent = false
			}
		case inLiteral:
			if ch == '\'' {
				inLiteral = false
			}
		case ch == '"':
			inIdent = true
		case ch == '\'':
			inLiteral = true
		case ch == '$' && i+1 < len(sql) && sql[i+1] >= '0' && sql[i+1] <= '9':
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(sql[i+1 : j])
			if err != nil || n < 1 || n > len(args) {
				return "", fmt.Errorf("placeholder %s has no matching argument", sql[i:j])
			}
			var dataType string
			if n <= len(argTypes) {
				dataType = argTypes[n-1]
			}
			lit, err := RenderLiteral(args[n-1], dataType)
			if err != nil {
				return "", err
			}
			sb.WriteString(lit)
			i = j - 1
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String(), nil
}
