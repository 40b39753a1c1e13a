// A PostgreSQL archive of job statistics payloads, keyed by cluster and job id.  It stands in for the
// scheduler's AdminComment on sites where the epilog cannot write that field, and it is what the
// daemon's Kafka ingest writes to.
//
// The payload stored is the JS1 form ("JS1:" + base64(gzip(json))), exactly as it would appear in
// the scheduler.

package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_payload (
	cluster TEXT NOT NULL,
	jobid   TEXT NOT NULL,
	payload TEXT NOT NULL,
	stored  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (cluster, jobid)
)`

const (
	insertPayload = `
INSERT INTO job_payload (cluster, jobid, payload) VALUES ($1, $2, $3)
ON CONFLICT (cluster, jobid) DO UPDATE SET payload = EXCLUDED.payload, stored = now()`

	selectPayload = `SELECT payload FROM job_payload WHERE cluster = $1 AND jobid = $2`
)

// Conn is the part of *pgx.Conn that we use.

type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// A pgx connection is not thread-safe, all uses go through the lock.

type Archive struct {
	lock sync.Mutex
	conn Conn
}

// Open connects to the database and creates the table if necessary.

func Open(ctx context.Context, databaseURI string) (*Archive, error) {
	conn, err := pgx.Connect(ctx, databaseURI)
	if err != nil {
		return nil, fmt.Errorf("Unable to connect to database: %v", err)
	}
	a := New(conn)
	if err := a.Migrate(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return a, nil
}

func New(conn Conn) *Archive {
	return &Archive{conn: conn}
}

func (a *Archive) Migrate(ctx context.Context) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if _, err := a.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("Unable to create payload table: %v", err)
	}
	return nil
}

// Store inserts or replaces the payload for the job.

func (a *Archive) Store(ctx context.Context, cluster, jobid, payload string) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	_, err := a.conn.Exec(ctx, insertPayload, cluster, jobid, payload)
	if err != nil {
		return fmt.Errorf("Unable to store payload for %s/%s: %v", cluster, jobid, err)
	}
	return nil
}

// Lookup returns the payload for the job, and false if there is none.

func (a *Archive) Lookup(ctx context.Context, cluster, jobid string) (string, bool, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	var payload string
	err := a.conn.QueryRow(ctx, selectPayload, cluster, jobid).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("Unable to look up payload for %s/%s: %v", cluster, jobid, err)
	}
	return payload, true, nil
}

func (a *Archive) Close(ctx context.Context) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.conn.Close(ctx)
}
