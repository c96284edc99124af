// Package testutil provides a database/sql driver stub that keeps the
// postgres store's bucket table in memory.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	createShape = "CREATE TABLE IF NOT EXISTS state"
	upsertShape = "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	selectShape = "SELECT bucket, payload FROM state"
)

var registered atomic.Int64

// BucketConn is the single connection behind a stub sql.DB. Upserts made
// inside a transaction only reach Buckets on commit.
type BucketConn struct {
	mu sync.Mutex

	Statements []string
	Created    bool
	Buckets    map[string][]byte

	FailPing   bool
	FailBegin  bool
	FailUpsert bool
	FailCommit bool
	RowsErr    error

	staged map[string][]byte
}

// NewStubDB registers a fresh driver and returns a sql.DB bound to it.
func NewStubDB() (*sql.DB, *BucketConn) {
	conn := &BucketConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", registered.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *BucketConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn. Every statement runs through ExecContext
// or QueryContext instead.
func (c *BucketConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *BucketConn) Close() error { return nil }

func (c *BucketConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *BucketConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (c *BucketConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, fmt.Errorf("begin refused")
	}
	c.staged = make(map[string][]byte)
	return bucketTx{conn: c}, nil
}

// ExecContext accepts the table DDL and the bucket upsert.
func (c *BucketConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	query = normalize(query)
	c.Statements = append(c.Statements, query)
	switch {
	case strings.HasPrefix(query, createShape):
		c.Created = true
		return driver.RowsAffected(0), nil
	case query == upsertShape:
		if c.FailUpsert {
			return nil, fmt.Errorf("upsert refused")
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("upsert wants 2 args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket must be text, got %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
		}
		if c.staged != nil {
			c.staged[bucket] = slices.Clone(payload)
		} else {
			c.Buckets[bucket] = slices.Clone(payload)
		}
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

// QueryContext answers the bucket select in key order.
func (c *BucketConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	query = normalize(query)
	c.Statements = append(c.Statements, query)
	if query != selectShape {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	keys := make([]string, 0, len(c.Buckets))
	for k := range c.Buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	rows := &bucketRows{err: c.RowsErr}
	for _, k := range keys {
		rows.rows = append(rows.rows, []driver.Value{k, slices.Clone(c.Buckets[k])})
	}
	return rows, nil
}

type bucketTx struct{ conn *BucketConn }

func (t bucketTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	staged := c.staged
	c.staged = nil
	if c.FailCommit {
		return fmt.Errorf("commit refused")
	}
	for k, v := range staged {
		c.Buckets[k] = v
	}
	return nil
}

func (t bucketTx) Rollback() error {
	t.conn.mu.Lock()
	t.conn.staged = nil
	t.conn.mu.Unlock()
	return nil
}

type bucketRows struct {
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *bucketRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *bucketRows) Close() error      { return nil }

func (r *bucketRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// normalize collapses whitespace so multi-line DDL matches its shape.
func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
