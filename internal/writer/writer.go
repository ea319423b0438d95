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

// Package writer is the Connection Lifecycle (SPEC_FULL.md §4.6), the
// Ingress Bridge (§6), the Stats Surface (§4.9) and Cleanup/FillIDCache
// (§4.7/§4.8): everything that owns the single worker goroutine driving
// one IDO MySQL connection. It replaces the teacher's generic
// DbConnection-style inheritance (SPEC_FULL.md §9 Design Notes) with a
// capability set, domain.Sink, implemented by the *Writer below.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/monitoring-ido/dbwriter/internal/chaos"
	"github.com/monitoring-ido/dbwriter/internal/compose"
	"github.com/monitoring-ido/dbwriter/internal/config"
	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/domain"
	"github.com/monitoring-ido/dbwriter/internal/driver"
	"github.com/monitoring-ido/dbwriter/internal/ident"
	"github.com/monitoring-ido/dbwriter/internal/idoerr"
	"github.com/monitoring-ido/dbwriter/internal/queue"
	"github.com/monitoring-ido/dbwriter/internal/registry"
	"github.com/monitoring-ido/dbwriter/internal/sqlval"
)

// SchemaVersion is the oldest dbversion row this writer accepts
// (SPEC_FULL.md §6 "Schema version gate").
const SchemaVersion = "1.14.0"

// agentName identifies this writer in the conninfo table.
const agentName = "dbwriter"

// NewConn constructs the Driver Adapter instance a Writer connects
// through; tests substitute a fake of their own instead of calling this.
type NewConn func() driver.Conn

// Writer owns one IDO MySQL connection end to end: the state machine,
// the Write Queue, the Identity Registry, the Value Encoder, and the
// Query Composer built on top of it. Per SPEC_FULL.md §9, connMu is
// purely an external-reader snapshot lock — every mutation of conn and
// connected happens on the queue's worker goroutine.
type Writer struct {
	cfg     *config.Config
	graph   domain.ObjectGraph
	newConn NewConn

	queue    *queue.Queue
	registry *registry.Registry
	encoder  *sqlval.Encoder
	composer *compose.Composer

	connMu    sync.Mutex
	conn      driver.Conn
	connected bool

	instanceID    dbtype.DbReference
	everConnected bool

	objectTypeIDs map[string]dbtype.DbReference

	timersCancel context.CancelFunc
	timersDone   sync.WaitGroup

	workerDone sync.WaitGroup
}

// New assembles a Writer. cfg must already have passed Preflight.
// graph is the embedding process's live object model (SPEC_FULL.md §6,
// Non-goal: this subsystem never implements it). newConn constructs a
// fresh Driver Adapter for each (re)connect attempt; production callers
// pass a closure returning &driver.MySQL{WaitForStartup: true}, wired by
// internal/writer/wire.go. dialConn wraps each new Conn with
// internal/chaos when cfg.ChaosProbability > 0.
func New(cfg *config.Config, graph domain.ObjectGraph, newConn NewConn) *Writer {
	w := &Writer{
		cfg:           cfg,
		graph:         graph,
		newConn:       newConn,
		queue:         queue.New(),
		registry:      registry.New(),
		objectTypeIDs: make(map[string]dbtype.DbReference),
	}

	w.encoder = &sqlval.Encoder{
		Registry:        w.registry,
		Activator:       activatorFunc(w.internalActivateObject),
		Domain:          domainLookup{w.graph},
		Escaper:         escaperFunc(w.escape),
		CrossRowColumns: map[ident.Column]bool{"notification_id": true},
	}
	w.composer = &compose.Composer{
		Registry:          w.registry,
		Encoder:           w.encoder,
		Prefix:            cfg.TablePrefix,
		EnabledCategories: cfg.EnabledCategories(),
		Connected:         w.isConnected,
		CrossRowTables:    map[ident.Table]bool{"notifications": true},
		InstanceName:      cfg.InstanceName,
	}

	w.queue.OnException = w.onTaskException

	return w
}

// activatorFunc adapts a plain function to sqlval.Activator.
type activatorFunc func(o dbtype.LiveObject) (dbtype.DbReference, error)

func (f activatorFunc) ActivateObject(o dbtype.LiveObject) (dbtype.DbReference, error) { return f(o) }

type domainLookup struct{ graph domain.ObjectGraph }

func (d domainLookup) Known(o dbtype.LiveObject) bool { return d.graph.Known(o) }

type escaperFunc func(string) string

func (f escaperFunc) Escape(s string) string { return f(s) }

func (w *Writer) escape(s string) string {
	w.connMu.Lock()
	conn := w.conn
	w.connMu.Unlock()
	if conn == nil {
		return s
	}
	return conn.Escape(s)
}

func (w *Writer) isConnected() bool {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.connected
}

// Start launches the worker goroutine and the two periodic timers
// (SPEC_FULL.md §4.6 "Periodic tasks"). It returns once the worker has
// bound the Identity Registry to itself, so callers can rely on Enqueue
// ordering from the moment Start returns.
func (w *Writer) Start(ctx context.Context) {
	w.workerDone.Add(1)
	bound := make(chan struct{})
	go func() {
		defer w.workerDone.Done()
		w.queue.Run(ctx, func() {
			w.registry.BindWorker()
			close(bound)
		})
	}()
	<-bound

	// EnqueueUrgent the first reconnect immediately rather than waiting
	// a full interval, so a fresh Writer does not sit Down for up to
	// reconnectInterval before its first Connecting attempt.
	w.enqueueReconnect(ctx)

	timerCtx, cancel := context.WithCancel(ctx)
	w.timersCancel = cancel
	w.timersDone.Add(2)
	go w.runTicker(timerCtx, w.cfg.CommitInterval, w.enqueueCommit)
	go w.runTicker(timerCtx, w.cfg.ReconnectInterval, w.enqueueReconnect)
}

func (w *Writer) runTicker(ctx context.Context, interval time.Duration, fire func(context.Context)) {
	defer w.timersDone.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fire(ctx)
		}
	}
}

func (w *Writer) enqueueCommit(ctx context.Context) {
	w.queue.EnqueueUrgent(queue.Task{Urgent: true, Run: w.commitAndBegin})
}

func (w *Writer) enqueueReconnect(ctx context.Context) {
	w.queue.EnqueueUrgent(queue.Task{Urgent: true, Run: w.reconnectIfNeeded})
}

// onTaskException is the Write Queue's default exception callback
// (SPEC_FULL.md §4.5): log, then close the driver and mark the
// connection Down under connMu so the next reconnect tick heals it.
// A ProgrammerError returned as a plain error (e.g. from the Composer's
// resolveType) gets the same halt treatment as one raised by panic and
// recovered in Queue.runTask — both are bugs, per SPEC_FULL.md §7, and
// must not be left to the next reconnect tick to paper over.
func (w *Writer) onTaskException(err error) {
	var perr *idoerr.ProgrammerError
	if errors.As(err, &perr) {
		w.queue.OnFatal(err)
		return
	}
	log.WithError(err).Error("write queue task failed; marking connection down")
	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.connected = false
	w.connMu.Unlock()
}

// Stop drains the queue, stops the timers, and closes the connection.
// Mirrors SPEC_FULL.md §4.6 "Shutdown": enqueue close, join the worker.
func (w *Writer) Stop() {
	if w.timersCancel != nil {
		w.timersCancel()
	}
	w.timersDone.Wait()

	w.queue.Enqueue(queue.Task{Run: func(ctx context.Context) error {
		w.connMu.Lock()
		defer w.connMu.Unlock()
		if w.conn == nil {
			return nil
		}
		err := w.conn.Commit(ctx)
		closeErr := w.conn.Close()
		w.conn = nil
		w.connected = false
		if err != nil {
			return err
		}
		return closeErr
	}})
	w.queue.Join()
	w.workerDone.Wait()
}

func (w *Writer) dialConn() driver.Conn {
	conn := w.newConn()
	if w.cfg.ChaosProbability > 0 {
		conn = chaos.Wrap(conn, w.cfg.ChaosProbability)
	}
	return conn
}
