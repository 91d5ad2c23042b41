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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pgedge/recode/pkg/logger"
)

// QueryLog receives every rendered UPDATE, one per line, in issue order.
type QueryLog struct {
	file  *os.File
	path  string
	count int64
}

func queryLogName(schema, table string, now time.Time) string {
	return fmt.Sprintf("%s.%s-queries.%s", schema, table, now.Format("2006-01-02-15-04-05"))
}

func OpenQueryLog(dir, schema, table string, now time.Time) (*QueryLog, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create query log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, queryLogName(schema, table, now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open query log %s: %w", path, err)
	}
	return &QueryLog{file: file, path: path}, nil
}

func (l *QueryLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *QueryLog) Write(statement string) error {
	if _, err := l.file.WriteString(statement + "\n"); err != nil {
		return fmt.Errorf("write query log %s: %w", l.path, err)
	}
	l.count++
	return nil
}

func (l *QueryLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("close query log %s: %w", l.path, err)
	}
	logger.Debug("wrote %d statements to %s", l.count, l.path)
	return nil
}
