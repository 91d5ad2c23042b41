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

package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgedge/recode/pkg/config"
)

func toConnectionString(cfg config.PostgresConfig, withPassword bool) string {
	var parts []string
	if h := strings.TrimSpace(cfg.Host); h != "" {
		parts = append(parts, "host="+h)
	}
	if cfg.Port != 0 {
		parts = append(parts, fmt.Sprintf("port=%d", cfg.Port))
	}
	if cfg.User != "" {
		parts = append(parts, "user="+cfg.User)
	}
	if withPassword && cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	if cfg.DBName != "" {
		parts = append(parts, "dbname="+cfg.DBName)
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+cfg.SSLMode)
	}
	if cfg.ConnectionTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", cfg.ConnectionTimeout))
	}
	return strings.Join(parts, " ")
}

// Describe renders the connection target without credentials.
func Describe(cfg config.PostgresConfig) string {
	return toConnectionString(cfg, false)
}

func runtimeParams(cfg config.PostgresConfig) map[string]string {
	params := map[string]string{
		"client_encoding":  cfg.ClientEncoding,
		"application_name": "recode",
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.Itoa(cfg.StatementTimeout)
	}
	return params
}

// ReadSession is the read side of a run: one connection holding one
// read-only repeatable-read transaction, so introspection and the scan see
// the same snapshot.
type ReadSession struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

func OpenReadSession(ctx context.Context, cfg config.PostgresConfig) (*ReadSession, error) {
	connConfig, err := pgx.ParseConfig(toConnectionString(cfg, true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse read connection config: %w", err)
	}
	for k, v := range runtimeParams(cfg) {
		connConfig.RuntimeParams[k] = v
	}
	// Text-format parameters and results keep character data byte-exact.
	// The simple protocol is not an option: pgx refuses it unless
	// client_encoding is UTF8.
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open read connection: %w", err)
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}

	return &ReadSession{conn: conn, tx: tx}, nil
}

func (s *ReadSession) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return s.tx.Exec(ctx, sql, args...)
}

func (s *ReadSession) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return s.tx.Query(ctx, sql, args...)
}

func (s *ReadSession) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return s.tx.QueryRow(ctx, sql, args...)
}

// Encoding reports the client encoding the server settled on.
func (s *ReadSession) Encoding() string {
	return s.conn.PgConn().ParameterStatus("client_encoding")
}

// Close rolls back the read transaction and closes the connection.
func (s *ReadSession) Close(ctx context.Context) error {
	rbErr := s.tx.Rollback(ctx)
	closeErr := s.conn.Close(ctx)
	if rbErr != nil && rbErr != pgx.ErrTxClosed {
		return fmt.Errorf("failed to roll back read transaction: %w", rbErr)
	}
	return closeErr
}

// OpenWritePool returns an autocommit pool capped at a single connection.
// Every Exec acquires it for the duration of one statement.
func OpenWritePool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(toConnectionString(cfg, true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse write connection config: %w", err)
	}
	for k, v := range runtimeParams(cfg) {
		poolConfig.ConnConfig.RuntimeParams[k] = v
	}
	poolConfig.MaxConns = 1
	poolConfig.MinConns = 0
	poolConfig.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	return pool, nil
}
