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
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/driver"
	"github.com/monitoring-ido/dbwriter/internal/idoerr"
	"github.com/monitoring-ido/dbwriter/internal/metrics"
)

// reconnectIfNeeded runs the Connecting state (SPEC_FULL.md §4.6). It is
// always invoked as a Write Queue Task, so it always runs on the single
// worker goroutine.
func (w *Writer) reconnectIfNeeded(ctx context.Context) error {
	if w.isConnected() {
		if err := w.ping(ctx); err == nil {
			return nil
		}
		w.closeLocked()
	}
	return w.connect(ctx)
}

func (w *Writer) ping(ctx context.Context) error {
	w.connMu.Lock()
	conn := w.conn
	w.connMu.Unlock()
	if conn == nil {
		return idoerr.NewDriverTransient(fmt.Errorf("no connection"))
	}
	return conn.Ping(ctx)
}

func (w *Writer) closeLocked() {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// connect runs the full reconnect sequence: steps 2-13 of SPEC_FULL.md
// §4.6.
func (w *Writer) connect(ctx context.Context) error {
	w.registry.Clear()
	w.objectTypeIDs = make(map[string]dbtype.DbReference)

	conn := w.dialConn()
	if err := conn.Connect(ctx, w.cfg.Host, w.cfg.Port, w.cfg.User, w.cfg.Password, w.cfg.Database); err != nil {
		return err
	}

	if err := w.checkSchemaVersion(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}

	instanceID, err := w.loadOrCreateInstance(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	w.instanceID = instanceID
	w.encoder.InstanceID = instanceID

	if err := w.insertConninfo(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}

	if err := w.graph.PrepareDatabase(ctx); err != nil {
		_ = conn.Close()
		return err
	}

	strays, err := w.loadObjects(ctx, conn, instanceID)
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := conn.Begin(ctx); err != nil {
		_ = conn.Close()
		return err
	}

	w.connMu.Lock()
	w.conn = conn
	w.connected = true
	w.connMu.Unlock()

	if err := w.graph.UpdateAllObjects(ctx); err != nil {
		log.WithError(err).Error("UpdateAllObjects failed during reconnect")
	}

	w.deactivateStrays(ctx, strays)

	metrics.ReconnectsTotal.WithLabelValues(w.cfg.InstanceName).Inc()
	log.WithField("instance", w.cfg.InstanceName).Info("IDO connection established")
	return nil
}

// checkSchemaVersion implements SPEC_FULL.md §4.6 step 5.
func (w *Writer) checkSchemaVersion(ctx context.Context, conn driver.Conn) error {
	sql := fmt.Sprintf("SELECT version FROM %sdbversion WHERE name = 'idoutils'", w.cfg.TablePrefix)
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		return idoerr.NewSchemaError("dbversion has no row for name='idoutils'")
	}
	var version string
	if err := rows.Scan(&version); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	atLeast, err := compareSchemaVersions(version, SchemaVersion)
	if err != nil {
		return idoerr.NewSchemaError("%s", err.Error())
	}
	if !atLeast {
		return idoerr.NewSchemaError("server schema version %s is older than required %s", version, SchemaVersion)
	}
	return nil
}

// loadOrCreateInstance implements SPEC_FULL.md §4.6 step 6.
func (w *Writer) loadOrCreateInstance(ctx context.Context, conn driver.Conn) (dbtype.DbReference, error) {
	sql := fmt.Sprintf("SELECT instance_id FROM %sinstances WHERE instance_name = '%s'",
		w.cfg.TablePrefix, conn.Escape(w.cfg.InstanceName))
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return dbtype.InvalidReference, err
	}
	if rows.Next() {
		var id int64
		scanErr := rows.Scan(&id)
		rows.Close()
		if scanErr != nil {
			return dbtype.InvalidReference, scanErr
		}
		return dbtype.NewReference(id), nil
	}
	rows.Close()

	insert := fmt.Sprintf(
		"INSERT INTO %sinstances (instance_name, instance_description) VALUES ('%s', '%s')",
		w.cfg.TablePrefix, conn.Escape(w.cfg.InstanceName), conn.Escape(w.cfg.InstanceDescription))
	res, err := conn.Exec(ctx, insert)
	if err != nil {
		return dbtype.InvalidReference, err
	}
	lastID, ok := res.LastInsertID()
	if !ok {
		return dbtype.InvalidReference, idoerr.NewProgrammerError("instances insert did not report a last-insert-id")
	}
	return dbtype.NewReference(lastID), nil
}

// insertConninfo implements SPEC_FULL.md §4.6 step 8.
func (w *Writer) insertConninfo(ctx context.Context, conn driver.Conn) error {
	connectType := "INITIAL"
	if w.everConnected {
		connectType = "RECONNECT"
	}
	w.everConnected = true

	sql := fmt.Sprintf(
		"INSERT INTO %sconninfo (instance_id, connect_type, agent_name) VALUES (%s, '%s', '%s')",
		w.cfg.TablePrefix, w.instanceID.String(), connectType, conn.Escape(agentName))
	_, err := conn.Exec(ctx, sql)
	return err
}

// loadObjects implements SPEC_FULL.md §4.6 steps 9-10: materialize every
// objects row for this instance via the object graph, populating the
// Registry, and return the strays set (every row that was active before
// this reconnect) for step 13 to reconcile after UpdateAllObjects.
func (w *Writer) loadObjects(
	ctx context.Context, conn driver.Conn, instanceID dbtype.DbReference,
) (map[dbtype.DbReference]dbtype.LiveObject, error) {
	sql := fmt.Sprintf(
		"SELECT object_id, objecttype_id, name1, name2, is_active FROM %sobjects WHERE instance_id = %s",
		w.cfg.TablePrefix, instanceID.String())
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	strays := make(map[dbtype.DbReference]dbtype.LiveObject)
	for rows.Next() {
		var (
			objectID   int64
			objectType string
			name1      string
			name2      string
			isActive   bool
		)
		if err := rows.Scan(&objectID, &objectType, &name1, &name2, &isActive); err != nil {
			return nil, err
		}

		o, ok := w.graph.Lookup(objectType, name1, name2)
		if !ok {
			continue
		}
		ref := dbtype.NewReference(objectID)
		w.registry.SetObjectID(o, ref)
		w.registry.SetActive(o, isActive)
		if isActive {
			strays[ref] = o
		}
	}
	return strays, rows.Err()
}

// deactivateStrays implements SPEC_FULL.md §4.6 step 13: any
// pre-reconnect object whose live counterpart no longer exists after
// UpdateAllObjects gets is_active = 0. The row itself is kept for
// history; only the Registry's Active flag and the objects row change.
func (w *Writer) deactivateStrays(ctx context.Context, strays map[dbtype.DbReference]dbtype.LiveObject) {
	w.connMu.Lock()
	conn := w.conn
	w.connMu.Unlock()
	if conn == nil {
		return
	}

	for ref, o := range strays {
		if w.graph.Known(o) {
			continue
		}
		sql := fmt.Sprintf("UPDATE %sobjects SET is_active = 0 WHERE object_id = %s",
			w.cfg.TablePrefix, ref.String())
		if _, err := conn.Exec(ctx, sql); err != nil {
			log.WithError(err).WithField("object_id", ref).Warn("could not deactivate stray object")
			continue
		}
		w.registry.SetActive(o, false)
	}
}

// commitAndBegin implements the periodic "commit; begin" pair
// (SPEC_FULL.md §4.6 "Periodic tasks").
func (w *Writer) commitAndBegin(ctx context.Context) error {
	w.connMu.Lock()
	conn := w.conn
	connected := w.connected
	w.connMu.Unlock()
	if !connected || conn == nil {
		return nil
	}
	if err := conn.Commit(ctx); err != nil {
		return err
	}
	return conn.Begin(ctx)
}

// internalActivateObject implements InternalActivateObject (SPEC_FULL.md
// §4.6): called both by the Value Encoder inline during encoding, and by
// the Ingress Bridge's explicit ActivateObject.
func (w *Writer) internalActivateObject(o dbtype.LiveObject) (dbtype.DbReference, error) {
	w.connMu.Lock()
	conn := w.conn
	connected := w.connected
	w.connMu.Unlock()
	if !connected || conn == nil {
		return dbtype.InvalidReference, idoerr.NewDriverTransient(fmt.Errorf("not connected"))
	}

	ref := w.registry.ObjectID(o)
	if ref.Valid() {
		sql := fmt.Sprintf("UPDATE %sobjects SET is_active = 1 WHERE object_id = %s",
			w.cfg.TablePrefix, ref.String())
		if _, err := conn.Exec(context.Background(), sql); err != nil {
			return dbtype.InvalidReference, err
		}
		w.registry.SetActive(o, true)
		return ref, nil
	}

	typeID, err := w.objectTypeID(conn, o.ObjectType())
	if err != nil {
		return dbtype.InvalidReference, err
	}

	name1, name2 := o.Names()
	sql := fmt.Sprintf(
		"INSERT INTO %sobjects (instance_id, objecttype_id, name1, name2, is_active) VALUES (%s, %s, '%s', '%s', 1)",
		w.cfg.TablePrefix, w.instanceID.String(), typeID.String(), conn.Escape(name1), conn.Escape(name2))
	res, err := conn.Exec(context.Background(), sql)
	if err != nil {
		return dbtype.InvalidReference, err
	}
	lastID, ok := res.LastInsertID()
	if !ok {
		return dbtype.InvalidReference, idoerr.NewProgrammerError("objects insert did not report a last-insert-id")
	}
	ref = dbtype.NewReference(lastID)
	w.registry.SetObjectID(o, ref)
	w.registry.SetActive(o, true)
	return ref, nil
}

// deactivateObject implements DeactivateObject (SPEC_FULL.md §4.6): flip
// is_active only, never clear ConfigWritten/StatusWritten, since the row
// survives and its identity must hold across future reconnects.
func (w *Writer) deactivateObject(o *dbtype.DbObject) error {
	w.connMu.Lock()
	conn := w.conn
	connected := w.connected
	w.connMu.Unlock()
	if !connected || conn == nil {
		return nil
	}
	if !o.ObjectID.Valid() {
		return nil
	}
	sql := fmt.Sprintf("UPDATE %sobjects SET is_active = 0 WHERE object_id = %s",
		w.cfg.TablePrefix, o.ObjectID.String())
	_, err := conn.Exec(context.Background(), sql)
	if err == nil {
		w.registry.SetActive(o.Owner, false)
	}
	return err
}

// objectTypeID resolves (and caches) an objecttypes.name to its
// objecttype_id. The object model's type taxonomy is owned outside this
// subsystem (SPEC_FULL.md §1 Non-goals); this is the one place the
// writer reads it, to satisfy the objects table's foreign key.
func (w *Writer) objectTypeID(conn driver.Conn, name string) (dbtype.DbReference, error) {
	if ref, ok := w.objectTypeIDs[name]; ok {
		return ref, nil
	}

	sql := fmt.Sprintf("SELECT objecttype_id FROM %sobjecttypes WHERE name = ?", w.cfg.TablePrefix)
	rows, err := conn.Query(context.Background(), sql, name)
	if err != nil {
		return dbtype.InvalidReference, err
	}
	defer rows.Close()

	if !rows.Next() {
		return dbtype.InvalidReference, idoerr.NewSchemaError("objecttypes has no row for %q", name)
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return dbtype.InvalidReference, err
	}
	ref := dbtype.NewReference(id)
	w.objectTypeIDs[name] = ref
	return ref, nil
}

// compareSchemaVersions reports whether server (the dbversion row's
// value) is at least as new as required, comparing dot-separated numeric
// components left to right (SPEC_FULL.md §6 "Schema version gate").
func compareSchemaVersions(server, required string) (atLeast bool, err error) {
	sp := strings.Split(server, ".")
	rp := strings.Split(required, ".")
	for i := 0; i < len(sp) || i < len(rp); i++ {
		var s, r int64
		if i < len(sp) {
			s, err = strconv.ParseInt(sp[i], 10, 64)
			if err != nil {
				return false, fmt.Errorf("invalid schema version %q", server)
			}
		}
		if i < len(rp) {
			r, err = strconv.ParseInt(rp[i], 10, 64)
			if err != nil {
				return false, fmt.Errorf("invalid required schema version %q", required)
			}
		}
		if s != r {
			return s > r, nil
		}
	}
	return true, nil
}
