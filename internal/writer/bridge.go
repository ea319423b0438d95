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
	"fmt"
	"time"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/domain"
	"github.com/monitoring-ido/dbwriter/internal/metrics"
	"github.com/monitoring-ido/dbwriter/internal/queue"
)

var _ domain.Sink = (*Writer)(nil)

// lowPriority is the set of categories the soft queue-depth bound
// (SPEC_FULL.md §5 expansion) sheds first: high-volume, low-value-per-row
// classes whose loss is least likely to matter to an operator.
const lowPriority = dbtype.CategoryStateHistory | dbtype.CategoryLog

// OnQuery implements domain.Sink. It is the Ingress Bridge's entry
// point: every DbQuery the domain produces flows through here into the
// Write Queue.
func (w *Writer) OnQuery(q dbtype.DbQuery) {
	if w.overCapacity() && q.Category&lowPriority != 0 {
		metrics.QueriesDroppedTotal.WithLabelValues(w.cfg.InstanceName, "queue_depth").Inc()
		return
	}
	w.queue.Enqueue(queue.Task{Run: func(ctx context.Context) error {
		return w.composer.Run(ctx, q)
	}})
	metrics.QueryQueueItems.WithLabelValues(w.cfg.InstanceName).Set(float64(w.queue.Len()))
}

func (w *Writer) overCapacity() bool {
	return w.cfg.MaxQueueDepth > 0 && w.queue.Len() >= w.cfg.MaxQueueDepth
}

// ActivateObject implements domain.Sink.
func (w *Writer) ActivateObject(o *dbtype.DbObject) {
	w.queue.Enqueue(queue.Task{Run: func(ctx context.Context) error {
		_, err := w.internalActivateObject(o.Owner)
		return err
	}})
}

// DeactivateObject implements domain.Sink.
func (w *Writer) DeactivateObject(o *dbtype.DbObject) {
	w.queue.Enqueue(queue.Task{Run: func(ctx context.Context) error {
		return w.deactivateObject(o)
	}})
}

// Cleanup implements domain.Sink (SPEC_FULL.md §4.7): enqueues a
// retention deletion.
func (w *Writer) Cleanup(table string, timeColumn string, maxAge time.Time) {
	w.queue.Enqueue(queue.Task{Run: func(ctx context.Context) error {
		w.connMu.Lock()
		conn := w.conn
		connected := w.connected
		w.connMu.Unlock()
		if !connected || conn == nil {
			return nil
		}
		sql := fmt.Sprintf(
			"DELETE FROM %s%s WHERE instance_id = %s AND %s < FROM_UNIXTIME(%d)",
			w.cfg.TablePrefix, table, w.instanceID.String(), timeColumn, maxAge.Unix())
		_, err := conn.Exec(ctx, sql)
		return err
	}})
}

// Stats implements domain.Sink (SPEC_FULL.md §4.9).
func (w *Writer) Stats() domain.Stats {
	return domain.Stats{
		Version:         SchemaVersion,
		InstanceName:    w.cfg.InstanceName,
		QueryQueueItems: w.queue.Len(),
	}
}

// FillIDCache implements SPEC_FULL.md §4.8: bulk-populates the Identity
// Registry's InsertID entries for every row of a detail table, so that
// subsequent rows referencing it (e.g. host-to-hostgroup membership)
// don't need a per-row lookup. objectType selects which live objects
// resolve returned via the graph; table is the singular table name (the
// physical table is <prefix><table>s, its auto-increment column
// <table>_id) and idColumn is the column holding the object_id.
func (w *Writer) FillIDCache(objectType, table, idColumn string) error {
	w.connMu.Lock()
	conn := w.conn
	connected := w.connected
	w.connMu.Unlock()
	if !connected || conn == nil {
		return nil
	}

	sql := fmt.Sprintf("SELECT %s AS object_id, %s_id FROM %s%ss", idColumn, table, w.cfg.TablePrefix, table)
	rows, err := conn.Query(context.Background(), sql)
	if err != nil {
		return err
	}
	defer rows.Close()

	fill := make(map[dbtype.DbReference]dbtype.DbReference)
	for rows.Next() {
		var objectID, insertID int64
		if err := rows.Scan(&objectID, &insertID); err != nil {
			return err
		}
		fill[dbtype.NewReference(objectID)] = dbtype.NewReference(insertID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.registry.SetInsertIDByType(func(objectID dbtype.DbReference) (dbtype.LiveObject, bool) {
		return w.resolveByObjectID(objectType, objectID)
	}, fill)
	return nil
}

// resolveByObjectID is FillIDCache's only use of the Registry's reverse
// direction: walk the already-populated entries looking for the one
// whose ObjectID matches. This is a linear scan per returned row of a
// FillIDCache call; FillIDCache itself runs per detail table, not per
// detail row written.
func (w *Writer) resolveByObjectID(objectType string, objectID dbtype.DbReference) (dbtype.LiveObject, bool) {
	var found dbtype.LiveObject
	var ok bool
	w.registry.Range(func(o dbtype.LiveObject, entry *dbtype.DbObject) {
		if ok || entry.ObjectID != objectID {
			return
		}
		if o.ObjectType() != objectType {
			return
		}
		found, ok = o, true
	})
	return found, ok
}
