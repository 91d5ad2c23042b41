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
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/require"
)

// fakeResult is what the fake server answers for a query.
type fakeResult struct {
	fields []pgproto3.FieldDescription
	rows   [][][]byte
	tag    string
}

// receivedQuery is one statement as the fake server saw it.
type receivedQuery struct {
	sql      string
	extended bool
	params   [][]byte
	formats  []int16
}

// fakeServer speaks just enough of the backend protocol to serve one
// client: trust auth, simple queries, and unnamed extended queries.
type fakeServer struct {
	ln      net.Listener
	params  map[string]string
	answer  func(sql string) fakeResult
	txState byte

	mu       sync.Mutex
	received []receivedQuery
	done     chan error
}

func startFakeServer(t *testing.T, params map[string]string, answer func(sql string) fakeResult) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{
		ln:      ln,
		params:  params,
		answer:  answer,
		txState: 'I',
		done:    make(chan error, 1),
	}
	go func() {
		s.done <- s.serve()
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) queries() []receivedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]receivedQuery{}, s.received...)
}

func (s *fakeServer) record(q receivedQuery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, q)
}

// wait blocks until the client hung up and returns any protocol error.
func (s *fakeServer) wait(t *testing.T) {
	t.Helper()
	require.NoError(t, <-s.done)
}

func (s *fakeServer) serve() error {
	conn, err := s.ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	backend := pgproto3.NewBackend(conn, conn)

	startup, err := backend.ReceiveStartupMessage()
	if err != nil {
		return err
	}
	if _, ok := startup.(*pgproto3.StartupMessage); !ok {
		return errors.New("expected a startup message")
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	for name, value := range s.params {
		backend.Send(&pgproto3.ParameterStatus{Name: name, Value: value})
	}
	backend.Send(&pgproto3.BackendKeyData{ProcessID: 4242, SecretKey: 7})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: s.txState})
	if err := backend.Flush(); err != nil {
		return err
	}

	var pending receivedQuery
	for {
		msg, err := backend.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			s.record(receivedQuery{sql: m.String})
			s.trackTx(m.String)
			s.sendResult(backend, m.String, true)
			backend.Send(&pgproto3.ReadyForQuery{TxStatus: s.txState})
		case *pgproto3.Parse:
			pending = receivedQuery{sql: m.Query, extended: true}
			backend.Send(&pgproto3.ParseComplete{})
		case *pgproto3.Bind:
			for _, p := range m.Parameters {
				pending.params = append(pending.params, append([]byte{}, p...))
			}
			pending.formats = append([]int16{}, m.ParameterFormatCodes...)
			backend.Send(&pgproto3.BindComplete{})
		case *pgproto3.Describe:
			if res := s.answer(pending.sql); len(res.fields) > 0 {
				backend.Send(&pgproto3.RowDescription{Fields: res.fields})
			} else {
				backend.Send(&pgproto3.NoData{})
			}
		case *pgproto3.Execute:
			s.record(pending)
			s.sendResult(backend, pending.sql, false)
		case *pgproto3.Sync:
			backend.Send(&pgproto3.ReadyForQuery{TxStatus: s.txState})
		case *pgproto3.Terminate:
			return nil
		default:
			return errors.New("unexpected frontend message")
		}

		switch msg.(type) {
		case *pgproto3.Query, *pgproto3.Sync:
			if err := backend.Flush(); err != nil {
				return err
			}
		}
	}
}

func (s *fakeServer) trackTx(sql string) {
	switch upper := strings.ToUpper(strings.TrimSpace(sql)); {
	case strings.HasPrefix(upper, "BEGIN"):
		s.txState = 'T'
	case strings.HasPrefix(upper, "ROLLBACK"), strings.HasPrefix(upper, "COMMIT"):
		s.txState = 'I'
	}
}

func (s *fakeServer) sendResult(backend *pgproto3.Backend, sql string, describe bool) {
	res := s.answer(sql)
	if describe && len(res.fields) > 0 {
		backend.Send(&pgproto3.RowDescription{Fields: res.fields})
	}
	for _, row := range res.rows {
		backend.Send(&pgproto3.DataRow{Values: row})
	}
	backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(res.tag)})
}
