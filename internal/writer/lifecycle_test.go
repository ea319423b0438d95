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

package writer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitoring-ido/dbwriter/internal/config"
	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/driver"
	"github.com/monitoring-ido/dbwriter/internal/idoerr"
)

type fakeLiveObject struct {
	objectType   string
	name1, name2 string
}

func (o *fakeLiveObject) ObjectType() string      { return o.objectType }
func (o *fakeLiveObject) Names() (string, string) { return o.name1, o.name2 }

type fakeGraph struct {
	lookup func(objectType, name1, name2 string) (dbtype.LiveObject, bool)
	known  func(o dbtype.LiveObject) bool
}

func (g *fakeGraph) Lookup(objectType, name1, name2 string) (dbtype.LiveObject, bool) {
	if g.lookup != nil {
		return g.lookup(objectType, name1, name2)
	}
	return nil, false
}

func (g *fakeGraph) UpdateAllObjects(ctx context.Context) error { return nil }

func (g *fakeGraph) Known(o dbtype.LiveObject) bool {
	if g.known != nil {
		return g.known(o)
	}
	return true
}

func (g *fakeGraph) PrepareDatabase(ctx context.Context) error { return nil }

// fakeRows is a scripted driver.Rows over an in-memory table of scan
// targets.
type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *int64:
			*v = row[i].(int64)
		case *string:
			*v = row[i].(string)
		case *bool:
			*v = row[i].(bool)
		}
	}
	return nil
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

// fakeConn is a scripted driver.Conn, dispatching Exec/Query by
// substring match against the composed SQL the same way compose_test.go's
// fakeConn dispatches by call order.
type fakeConn struct {
	queryFunc func(query string) (driver.Rows, error)
	execFunc  func(query string) (driver.Result, error)

	beginCalls  int
	commitCalls int
	closed      bool
	connectErr  error
}

func (f *fakeConn) Connect(ctx context.Context, host string, port int, user, password, database string) error {
	return f.connectErr
}
func (f *fakeConn) Ping(ctx context.Context) error { return nil }
func (f *fakeConn) Close() error                   { f.closed = true; return nil }

func (f *fakeConn) Exec(ctx context.Context, query string, args ...any) (driver.Result, error) {
	return f.execFunc(query)
}

func (f *fakeConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return f.queryFunc(query)
}

func (f *fakeConn) Escape(s string) string { return s }

func (f *fakeConn) Begin(ctx context.Context) error  { f.beginCalls++; return nil }
func (f *fakeConn) Commit(ctx context.Context) error { f.commitCalls++; return nil }

func testConfig() *config.Config {
	return &config.Config{
		Host:         "db.example.com",
		Port:         3306,
		User:         "icinga",
		Database:     "icinga",
		TablePrefix:  "icinga_",
		InstanceName: "default",
	}
}

// coldStartConn scripts a fresh database with no prior instance row and
// no existing objects (S1 "cold start").
func coldStartConn() *fakeConn {
	return &fakeConn{
		queryFunc: func(query string) (driver.Rows, error) {
			switch {
			case strings.Contains(query, "dbversion"):
				return &fakeRows{rows: [][]any{{"1.14.0"}}}, nil
			case strings.Contains(query, "icinga_instances"):
				return &fakeRows{}, nil // no existing row
			case strings.Contains(query, "icinga_objects"):
				return &fakeRows{}, nil // nothing loaded yet
			default:
				return &fakeRows{}, nil
			}
		},
		execFunc: func(query string) (driver.Result, error) {
			switch {
			case strings.Contains(query, "INSERT INTO icinga_instances"):
				return driver.NewResultForTest(1, 9, true), nil
			default:
				return driver.Result{}, nil
			}
		},
	}
}

func TestConnectColdStartCreatesInstanceAndOpensTransaction(t *testing.T) {
	cfg := testConfig()
	conn := coldStartConn()
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return conn })
	w.registry.BindWorker()

	err := w.connect(context.Background())
	require.NoError(t, err)

	assert.True(t, w.isConnected())
	assert.Equal(t, int64(9), w.instanceID.Int64())
	assert.True(t, w.everConnected)
	assert.Equal(t, 1, conn.beginCalls)
}

func TestConnectRejectsSchemaOlderThanRequired(t *testing.T) {
	cfg := testConfig()
	conn := &fakeConn{
		queryFunc: func(query string) (driver.Rows, error) {
			if strings.Contains(query, "dbversion") {
				return &fakeRows{rows: [][]any{{"1.10.0"}}}, nil
			}
			return &fakeRows{}, nil
		},
		execFunc: func(query string) (driver.Result, error) { return driver.Result{}, nil },
	}
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return conn })
	w.registry.BindWorker()

	err := w.connect(context.Background())
	require.Error(t, err)
	assert.False(t, w.isConnected())
	assert.True(t, conn.closed, "a rejected schema version must close the connection it was probed on")
}

func TestConnectReusesExistingInstanceRow(t *testing.T) {
	cfg := testConfig()
	conn := &fakeConn{
		queryFunc: func(query string) (driver.Rows, error) {
			switch {
			case strings.Contains(query, "dbversion"):
				return &fakeRows{rows: [][]any{{"1.14.0"}}}, nil
			case strings.Contains(query, "icinga_instances"):
				return &fakeRows{rows: [][]any{{int64(3)}}}, nil
			default:
				return &fakeRows{}, nil
			}
		},
		execFunc: func(query string) (driver.Result, error) {
			if strings.Contains(query, "INSERT INTO icinga_instances") {
				t.Fatalf("an existing instance row must not be re-inserted")
			}
			return driver.Result{}, nil
		},
	}
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return conn })
	w.registry.BindWorker()

	err := w.connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.instanceID.Int64())
}

func TestLoadObjectsPopulatesRegistryAndStraysForActiveRows(t *testing.T) {
	cfg := testConfig()
	host := &fakeLiveObject{objectType: "host", name1: "web1"}
	graph := &fakeGraph{lookup: func(objectType, name1, name2 string) (dbtype.LiveObject, bool) {
		if objectType == "host" && name1 == "web1" {
			return host, true
		}
		return nil, false
	}}
	conn := &fakeConn{
		queryFunc: func(query string) (driver.Rows, error) {
			if strings.Contains(query, "icinga_objects") {
				return &fakeRows{rows: [][]any{
					{int64(101), "host", "web1", "", true},
					{int64(102), "host", "vanished", "", true},
				}}, nil
			}
			return &fakeRows{}, nil
		},
		execFunc: func(query string) (driver.Result, error) { return driver.Result{}, nil },
	}
	w := New(cfg, graph, func() driver.Conn { return conn })
	w.registry.BindWorker()

	strays, err := w.loadObjects(context.Background(), conn, dbtype.NewReference(1))
	require.NoError(t, err)

	assert.Equal(t, dbtype.NewReference(101), w.registry.ObjectID(host))
	assert.Len(t, strays, 1, "only the resolvable row becomes a stray candidate")
	assert.Contains(t, strays, dbtype.NewReference(101))
}

func TestDeactivateStraysOnlyTouchesObjectsTheGraphNoLongerKnows(t *testing.T) {
	cfg := testConfig()
	known := &fakeLiveObject{objectType: "host", name1: "still-here"}
	gone := &fakeLiveObject{objectType: "host", name1: "gone"}
	graph := &fakeGraph{known: func(o dbtype.LiveObject) bool { return o == known }}

	var deactivated []string
	conn := &fakeConn{
		execFunc: func(query string) (driver.Result, error) {
			if strings.Contains(query, "is_active = 0") {
				deactivated = append(deactivated, query)
			}
			return driver.Result{}, nil
		},
	}

	w := New(cfg, graph, func() driver.Conn { return conn })
	w.registry.BindWorker()
	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	strays := map[dbtype.DbReference]dbtype.LiveObject{
		dbtype.NewReference(1): known,
		dbtype.NewReference(2): gone,
	}
	w.deactivateStrays(context.Background(), strays)

	require.Len(t, deactivated, 1)
	assert.Contains(t, deactivated[0], "WHERE object_id = 2")
	assert.False(t, w.registry.Active(gone))
}

func TestReconnectIfNeededSkipsConnectWhenPingSucceeds(t *testing.T) {
	cfg := testConfig()
	pinged := &fakeConn{}
	connectAttempted := false
	w := New(cfg, &fakeGraph{}, func() driver.Conn {
		connectAttempted = true
		return coldStartConn()
	})
	w.registry.BindWorker()
	w.connMu.Lock()
	w.conn = pinged
	w.connected = true
	w.connMu.Unlock()

	err := w.reconnectIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, connectAttempted, "a live connection must not trigger a fresh dial")
}

func TestInternalActivateObjectInsertsNewRowThenUpdatesOnSecondCall(t *testing.T) {
	cfg := testConfig()
	host := &fakeLiveObject{objectType: "host", name1: "web1"}

	var statements []string
	conn := &fakeConn{
		queryFunc: func(query string) (driver.Rows, error) {
			if strings.Contains(query, "icinga_objecttypes") {
				return &fakeRows{rows: [][]any{{int64(1)}}}, nil
			}
			return &fakeRows{}, nil
		},
		execFunc: func(query string) (driver.Result, error) {
			statements = append(statements, query)
			if strings.Contains(query, "INSERT INTO icinga_objects") {
				return driver.NewResultForTest(1, 55, true), nil
			}
			return driver.Result{}, nil
		},
	}

	w := New(cfg, &fakeGraph{}, func() driver.Conn { return conn })
	w.registry.BindWorker()
	w.connMu.Lock()
	w.conn = conn
	w.connected = true
	w.connMu.Unlock()
	w.instanceID = dbtype.NewReference(1)

	ref, err := w.internalActivateObject(host)
	require.NoError(t, err)
	assert.Equal(t, int64(55), ref.Int64())
	require.Len(t, statements, 1)
	assert.Contains(t, statements[0], "INSERT INTO icinga_objects")

	ref2, err := w.internalActivateObject(host)
	require.NoError(t, err)
	assert.Equal(t, int64(55), ref2.Int64())
	require.Len(t, statements, 2)
	assert.Contains(t, statements[1], "UPDATE icinga_objects")
}

func TestCompareSchemaVersionsComparesDotSeparatedComponents(t *testing.T) {
	atLeast, err := compareSchemaVersions("1.14.1", "1.14.0")
	require.NoError(t, err)
	assert.True(t, atLeast)

	atLeast, err = compareSchemaVersions("1.9.0", "1.14.0")
	require.NoError(t, err)
	assert.False(t, atLeast)

	atLeast, err = compareSchemaVersions("1.14.0", "1.14.0")
	require.NoError(t, err)
	assert.True(t, atLeast)
}

func TestOnTaskExceptionRoutesProgrammerErrorToOnFatal(t *testing.T) {
	cfg := testConfig()
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return &fakeConn{} })

	fatalCh := make(chan error, 1)
	w.queue.OnFatal = func(err error) { fatalCh <- err }

	w.connMu.Lock()
	w.conn = &fakeConn{}
	w.connected = true
	w.connMu.Unlock()

	w.onTaskException(idoerr.NewProgrammerError("both ConfigUpdate and StatusUpdate unset"))

	select {
	case err := <-fatalCh:
		var perr *idoerr.ProgrammerError
		assert.ErrorAs(t, err, &perr)
	default:
		t.Fatal("a ProgrammerError reaching onTaskException must be routed to OnFatal")
	}

	assert.True(t, w.isConnected(), "a ProgrammerError must halt, not mark the connection down")
}

func TestOnTaskExceptionMarksConnectionDownOnOrdinaryError(t *testing.T) {
	cfg := testConfig()
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return &fakeConn{} })

	fatalCalled := false
	w.queue.OnFatal = func(err error) { fatalCalled = true }

	w.connMu.Lock()
	w.conn = &fakeConn{}
	w.connected = true
	w.connMu.Unlock()

	w.onTaskException(assert.AnError)

	assert.False(t, fatalCalled, "an ordinary error must not be treated as fatal")
	assert.False(t, w.isConnected(), "an ordinary task error must mark the connection down for the next reconnect tick")
}
