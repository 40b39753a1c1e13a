package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeConn keeps the table in a map and recognizes the statements by their first word.

type fakeConn struct {
	rows   map[string]string
	execs  int
	failed bool
	closed bool
}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.value
	return nil
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs++
	if c.failed {
		return pgconn.NewCommandTag(""), errors.New("connection lost")
	}
	if strings.HasPrefix(strings.TrimSpace(sql), "INSERT") {
		c.rows[args[0].(string)+"/"+args[1].(string)] = args[2].(string)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if c.failed {
		return fakeRow{err: errors.New("connection lost")}
	}
	v, found := c.rows[args[0].(string)+"/"+args[1].(string)]
	if !found {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: v}
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{rows: make(map[string]string)}
	a := New(conn)
	if err := a.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, found, err := a.Lookup(ctx, "della", "1"); found || err != nil {
		t.Fatalf("Lookup of missing job: %v %v", found, err)
	}
	if err := a.Store(ctx, "della", "1", "JS1:abc"); err != nil {
		t.Fatal(err)
	}
	if err := a.Store(ctx, "della", "1", "JS1:def"); err != nil {
		t.Fatal(err)
	}
	p, found, err := a.Lookup(ctx, "della", "1")
	if !found || err != nil || p != "JS1:def" {
		t.Fatalf("Lookup: %s %v %v", p, found, err)
	}
	if _, found, _ := a.Lookup(ctx, "tiger", "1"); found {
		t.Fatalf("Cluster ignored")
	}
	a.Close(ctx)
	if !conn.closed {
		t.Fatalf("Not closed")
	}
}

func TestArchiveErrors(t *testing.T) {
	ctx := context.Background()
	a := New(&fakeConn{rows: make(map[string]string), failed: true})
	if err := a.Store(ctx, "della", "1", "x"); err == nil || !strings.Contains(err.Error(), "della/1") {
		t.Fatalf("Store error: %v", err)
	}
	if _, _, err := a.Lookup(ctx, "della", "1"); err == nil {
		t.Fatalf("Lookup error expected")
	}
}
