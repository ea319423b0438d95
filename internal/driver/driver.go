// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package driver is the Driver Adapter (SPEC_FULL.md §4.1): a thin
// contract over the native SQL client so that everything above it
// speaks only in terms of Conn, never database/sql directly. The MySQL
// implementation is grounded on the teacher's
// internal/util/stdpool/my.go (OpenMySQLAsTarget): DSN construction
// from discrete fields and a ping-retry-on-startup-error loop. Unlike
// the teacher, Connect runs no version probe; the schema version is
// checked by internal/writer against the dbversion table.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/monitoring-ido/dbwriter/internal/idoerr"
)

// Result mirrors the two facts the Composer needs after an Exec: how
// many rows it touched, and (for INSERT) the surrogate id it produced.
type Result struct {
	rowsAffected int64
	lastInsertID int64
	hasInsertID  bool
}

// RowsAffected returns the number of rows the statement touched.
func (r Result) RowsAffected() int64 { return r.rowsAffected }

// LastInsertID returns the auto-increment id produced by an INSERT, if
// the driver reported one.
func (r Result) LastInsertID() (int64, bool) { return r.lastInsertID, r.hasInsertID }

// NewResultForTest builds a Result with the given fields. Result's
// fields are otherwise unexported so that only the Driver Adapter can
// construct one from a real database/sql outcome; fakes in other
// packages' tests (compose, writer) need this constructor since they
// implement Conn without access to this package's internals.
func NewResultForTest(rowsAffected, lastInsertID int64, hasInsertID bool) Result {
	return Result{rowsAffected: rowsAffected, lastInsertID: lastInsertID, hasInsertID: hasInsertID}
}

// Rows is the subset of *sql.Rows the Adapter's callers need.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Conn is the Driver Adapter contract. Every Composer/Lifecycle
// operation against the remote database goes through this interface,
// never through database/sql directly, so that tests can substitute a
// fake (the fakeConn types in internal/compose and internal/writer
// tests) or a chaos-injecting wrapper (internal/chaos).
type Conn interface {
	// Connect establishes the connection. Host/port/user/password/db
	// come from Config (SPEC_FULL.md §6); empty strings are the
	// caller's responsibility to translate to connector defaults.
	Connect(ctx context.Context, host string, port int, user, password, database string) error

	// Ping probes connection liveness without blocking on a query.
	Ping(ctx context.Context) error

	// Close releases the connection. Safe to call on an already-closed
	// or never-connected Conn.
	Close() error

	// Exec runs a statement that does not return rows. Composed SQL
	// from internal/compose embeds values as literals (SPEC_FULL.md
	// §4.3/§4.4), and every Exec the writer issues passes no args; args
	// is there for callers that bind placeholders, as Query's objecttypes
	// lookup in internal/writer does.
	Exec(ctx context.Context, query string, args ...any) (Result, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// Escape quotes a string scalar for embedding in composed SQL
	// (SPEC_FULL.md §4.3 rule 6). It does not add the surrounding
	// single quotes; callers supply those.
	Escape(s string) string

	// Begin opens the standing transaction (SPEC_FULL.md §4.6 step 11,
	// and the periodic commit;begin pair).
	Begin(ctx context.Context) error

	// Commit commits the standing transaction.
	Commit(ctx context.Context) error
}

// MySQL is the production Conn implementation, backed by
// database/sql with github.com/go-sql-driver/mysql registered.
type MySQL struct {
	db *sql.DB
	tx *sql.Tx

	// WaitForStartup, if true, retries Ping against a not-yet-ready
	// server instead of failing Connect outright, mirroring the
	// teacher's isMySQLStartupError retry loop.
	WaitForStartup bool
}

var _ Conn = (*MySQL)(nil)

// Connect opens the pool and forces the session time zone to UTC so
// that FROM_UNIXTIME/NOW() agree with the Unix timestamps the Encoder
// produces (SPEC_FULL.md §4.4 "Numeric/literal semantics").
func (m *MySQL) Connect(
	ctx context.Context, host string, port int, user, password, database string,
) error {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.User = user
	cfg.Passwd = password
	cfg.DBName = database
	cfg.ParseTime = false
	cfg.Params = map[string]string{"sql_mode": "ansi"}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return errors.WithStack(err)
	}

	for {
		if err := db.PingContext(ctx); err != nil {
			if m.WaitForStartup && isStartupError(err) {
				log.WithError(err).Info("waiting for database to become ready")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(2 * time.Second):
					continue
				}
			}
			_ = db.Close()
			return errors.Wrap(err, "could not ping the database")
		}
		break
	}

	if _, err := db.ExecContext(ctx, "SET SESSION TIME_ZONE='+00:00'"); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "could not set session time zone")
	}

	m.db = db
	return nil
}

func isStartupError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1040: Too many connections, 1053: server shutdown in progress.
		return mysqlErr.Number == 1040 || mysqlErr.Number == 1053
	}
	return errors.Is(err, mysql.ErrInvalidConn)
}

// Ping reports connection liveness.
func (m *MySQL) Ping(ctx context.Context) error {
	if m.db == nil {
		return idoerr.NewDriverTransient(errors.New("not connected"))
	}
	if err := m.db.PingContext(ctx); err != nil {
		return idoerr.NewDriverTransient(err)
	}
	return nil
}

// Close releases the connection.
func (m *MySQL) Close() error {
	if m.db == nil {
		return nil
	}
	db := m.db
	m.db = nil
	m.tx = nil
	return db.Close()
}

func (m *MySQL) execer() interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
} {
	if m.tx != nil {
		return m.tx
	}
	return m.db
}

// Exec runs a statement within the standing transaction if one is
// open, otherwise directly against the pool.
func (m *MySQL) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := m.execer().ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, idoerr.NewDatabaseError(query, err)
	}
	affected, _ := res.RowsAffected()
	lastID, idErr := res.LastInsertId()
	return Result{
		rowsAffected: affected,
		lastInsertID: lastID,
		hasInsertID:  idErr == nil,
	}, nil
}

// Query runs a statement that returns rows.
func (m *MySQL) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if m.tx != nil {
		rows, err = m.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = m.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, idoerr.NewDatabaseError(query, err)
	}
	return rows, nil
}

// Escape quotes a string scalar the way MySQL's ANSI sql_mode expects:
// doubling embedded single quotes and backslash-escaping backslashes.
// This mirrors the teacher's choice (stdpool/my.go) to force
// sql_mode=ansi so that double quotes can be used for identifiers,
// leaving single quotes as the sole string delimiter that needs
// escaping here.
func (m *MySQL) Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Begin opens the standing transaction.
func (m *MySQL) Begin(ctx context.Context) error {
	if m.tx != nil {
		return idoerr.NewProgrammerError("Begin called while a transaction is already open")
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return idoerr.NewDatabaseError("BEGIN", err)
	}
	m.tx = tx
	return nil
}

// Commit commits the standing transaction. Per SPEC_FULL.md I4, callers
// must immediately Begin again to preserve "always exactly one open
// transaction".
func (m *MySQL) Commit(ctx context.Context) error {
	if m.tx == nil {
		return idoerr.NewProgrammerError("Commit called without an open transaction")
	}
	tx := m.tx
	m.tx = nil
	if err := tx.Commit(); err != nil {
		return idoerr.NewDatabaseError("COMMIT", err)
	}
	return nil
}
