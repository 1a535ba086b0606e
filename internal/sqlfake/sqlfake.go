// Package sqlfake is a scripted database/sql driver for unit tests. Statements
// are matched by substring against handlers registered on a Script; every
// statement, transaction start, commit and rollback is recorded so tests can
// assert on what reached the database.
package sqlfake

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

const driverName = "sqlfake"

var (
	registerOnce sync.Once
	scripts      sync.Map // dsn -> *Script
	seq          atomic.Int64
)

// Call kinds recorded by a Script.
const (
	KindExec     = "exec"
	KindQuery    = "query"
	KindBegin    = "begin"
	KindCommit   = "commit"
	KindRollback = "rollback"
)

// Call is one recorded interaction.
type Call struct {
	Kind string
	SQL  string
	Args []any
}

// Result answers an exec.
type Result struct {
	RowsAffected int64
	LastInsertID int64
	Err          error
}

// Rows answers a query.
type Rows struct {
	Columns []string
	Values  [][]any
	Err     error
}

type execHandler struct {
	match   string
	results []Result
}

type queryHandler struct {
	match string
	rows  []Rows
}

// Script holds the expected answers and the recorded calls of one database.
type Script struct {
	mu       sync.Mutex
	calls    []Call
	execs    []*execHandler
	queries  []*queryHandler
	nextID   int64
	beginErr error
}

// Open registers the driver if needed and returns a database bound to a fresh Script.
func Open() (*sql.DB, *Script) {
	registerOnce.Do(func() {
		sql.Register(driverName, fakeDriver{})
	})
	s := &Script{}
	dsn := fmt.Sprintf("script-%d", seq.Add(1))
	scripts.Store(dsn, s)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		panic(err)
	}
	return db, s
}

// OnExec answers execs whose SQL contains match. Results are consumed in order
// and the last one repeats.
func (s *Script) OnExec(match string, results ...Result) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, &execHandler{match: match, results: results})
	return s
}

// OnQuery answers queries whose SQL contains match. Row sets are consumed in
// order and the last one repeats.
func (s *Script) OnQuery(match string, rows ...Rows) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, &queryHandler{match: match, rows: rows})
	return s
}

// FailBegin makes every following transaction start fail with err.
func (s *Script) FailBegin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginErr = err
}

// Calls returns every recorded call.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsOf returns the recorded calls of one kind.
func (s *Script) CallsOf(kind string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of recorded calls of one kind.
func (s *Script) Count(kind string) int {
	return len(s.CallsOf(kind))
}

func (s *Script) record(kind, query string, args []driver.NamedValue) {
	c := Call{Kind: kind, SQL: query}
	for _, a := range args {
		c.Args = append(c.Args, a.Value)
	}
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *Script) exec(query string, args []driver.NamedValue) (driver.Result, error) {
	s.record(KindExec, query, args)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.execs {
		if !strings.Contains(query, h.match) || len(h.results) == 0 {
			continue
		}
		r := h.results[0]
		if len(h.results) > 1 {
			h.results = h.results[1:]
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return result{rows: r.RowsAffected, id: r.LastInsertID}, nil
	}
	s.nextID++
	return result{rows: 1, id: s.nextID}, nil
}

func (s *Script) query(q string, args []driver.NamedValue) (driver.Rows, error) {
	s.record(KindQuery, q, args)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.queries {
		if !strings.Contains(q, h.match) || len(h.rows) == 0 {
			continue
		}
		r := h.rows[0]
		if len(h.rows) > 1 {
			h.rows = h.rows[1:]
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return &rows{columns: r.Columns, values: r.Values}, nil
	}
	return &rows{}, nil
}

type fakeDriver struct{}

func (fakeDriver) Open(dsn string) (driver.Conn, error) {
	v, ok := scripts.Load(dsn)
	if !ok {
		return nil, fmt.Errorf("sqlfake: unknown dsn %q", dsn)
	}
	return &conn{script: v.(*Script)}, nil
}

type conn struct {
	script *Script
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{script: c.script, query: query}, nil
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	c.script.mu.Lock()
	err := c.script.beginErr
	c.script.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.script.record(KindBegin, "", nil)
	return &tx{script: c.script}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return c.script.exec(query, args)
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.script.query(query, args)
}

type tx struct {
	script *Script
}

func (t *tx) Commit() error {
	t.script.record(KindCommit, "", nil)
	return nil
}

func (t *tx) Rollback() error {
	t.script.record(KindRollback, "", nil)
	return nil
}

type stmt struct {
	script *Script
	query  string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.script.exec(s.query, named(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.script.query(s.query, named(args))
}

func (s *stmt) ExecContext(_ context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.script.exec(s.query, args)
}

func (s *stmt) QueryContext(_ context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.script.query(s.query, args)
}

func named(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, a := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return out
}

type result struct {
	rows int64
	id   int64
}

func (r result) LastInsertId() (int64, error) { return r.id, nil }
func (r result) RowsAffected() (int64, error) { return r.rows, nil }

type rows struct {
	columns []string
	values  [][]any
	pos     int
}

func (r *rows) Columns() []string {
	if r.columns == nil && len(r.values) > 0 {
		cols := make([]string, len(r.values[0]))
		for i := range cols {
			cols[i] = fmt.Sprintf("c%d", i+1)
		}
		r.columns = cols
	}
	return r.columns
}

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	row := r.values[r.pos]
	r.pos++
	if len(row) != len(dest) {
		return errors.New("sqlfake: column count mismatch")
	}
	for i, v := range row {
		dest[i] = v
	}
	return nil
}
